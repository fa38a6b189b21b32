package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/geo"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/pricing"
)

var calcTracer = otel.Tracer("service/calculator")

const (
	feetPerMeter       = 3.28084
	feetPerMile        = 5280
	squareFeetPerMeter = 10.7639
	squareFeetPerAcre  = 43560
)

// TreeScoreRequest holds raw field measurements.
type TreeScoreRequest struct {
	Height        float64  `json:"height"`
	DBH           float64  `json:"dbh"`
	CanopyRadius  float64  `json:"canopyRadius"`
	PercentToTrim *float64 `json:"percentToTrim,omitempty"`
}

type TreeScoreResult struct {
	TreeScore   float64  `json:"treeScore"`
	CrownSpread float64  `json:"crownSpread"`
	TrimScore   *float64 `json:"trimScore,omitempty"`
}

type EquipmentCostResult struct {
	Inputs                  pricing.EquipmentInputs `json:"inputs"`
	Costs                   pricing.EquipmentCosts  `json:"costs"`
	DailyRevenueRequirement float64                 `json:"dailyRevenueRequirement"`
	AnnualRevenueTarget     float64                 `json:"annualRevenueTarget"`
}

// MeasureRequest is a path or polygon drawn on the map.
type MeasureRequest struct {
	Type   string      `json:"type"`
	Points []geo.Point `json:"points"`
}

// Measurement is a path length or polygon area. Display follows the field
// convention: feet under a mile, then miles; square feet under an acre,
// then acres.
type Measurement struct {
	Type    string  `json:"type"`
	Meters  float64 `json:"meters,omitempty"`
	Feet    float64 `json:"feet,omitempty"`
	Miles   float64 `json:"miles,omitempty"`
	SqM     float64 `json:"squareMeters,omitempty"`
	SqFt    float64 `json:"squareFeet,omitempty"`
	Acres   float64 `json:"acres,omitempty"`
	Display string  `json:"display"`
}

// CalculatorService exposes the pure pricing engines.
type CalculatorService struct {
	table   pricing.CompensationTable
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewCalculatorService(table pricing.CompensationTable, metrics *observability.Metrics, logger *zap.Logger) *CalculatorService {
	return &CalculatorService{table: table, metrics: metrics, logger: logger}
}

func (s *CalculatorService) fail(engine string, err error) error {
	s.metrics.IncrCalculationError(engine)
	s.logger.Debug("calculation rejected", zap.String("engine", engine), zap.Error(err))
	return asValidation(err)
}

func (s *CalculatorService) TreeScore(ctx context.Context, req TreeScoreRequest) (*TreeScoreResult, error) {
	_, span := calcTracer.Start(ctx, "CalculatorService.TreeScore")
	defer span.End()

	score, err := pricing.TreeScore(req.Height, req.DBH, req.CanopyRadius)
	if err != nil {
		return nil, s.fail("tree_score", err)
	}
	out := &TreeScoreResult{TreeScore: score, CrownSpread: pricing.CrownSpread(req.CanopyRadius)}
	if req.PercentToTrim != nil {
		trim, err := pricing.TrimScore(req.Height, req.DBH, req.CanopyRadius, *req.PercentToTrim)
		if err != nil {
			return nil, s.fail("tree_score", err)
		}
		out.TrimScore = &trim
	}
	span.SetAttributes(attribute.Float64("tree.score", score))
	return out, nil
}

// EquipmentCost prices one machine. Zero depreciation years and
// maintenance percentage take the defaults.
func (s *CalculatorService) EquipmentCost(ctx context.Context, in pricing.EquipmentInputs) (*EquipmentCostResult, error) {
	_, span := calcTracer.Start(ctx, "CalculatorService.EquipmentCost")
	defer span.End()

	in = domain.ApplyEquipmentDefaults(in)
	costs, err := pricing.CalculateEquipmentCosts(in)
	if err != nil {
		return nil, s.fail("equipment_cost", err)
	}
	span.SetAttributes(attribute.Float64("equipment.hourly_cost", costs.Total))
	return &EquipmentCostResult{
		Inputs:                  in,
		Costs:                   costs,
		DailyRevenueRequirement: costs.DailyRevenueRequirement(in.AnnualHours),
		AnnualRevenueTarget:     costs.AnnualRevenueTarget(in.AnnualHours),
	}, nil
}

// Wage prices an employee with the configured multiplier table.
func (s *CalculatorService) Wage(ctx context.Context, in pricing.WageInput) (*pricing.Compensation, error) {
	_, span := calcTracer.Start(ctx, "CalculatorService.Wage")
	defer span.End()

	comp, err := s.table.Calculate(in)
	if err != nil {
		return nil, s.fail("wage", err)
	}
	return &comp, nil
}

// Measure returns a path length or polygon area. Too few points is
// unprocessable rather than malformed.
func (s *CalculatorService) Measure(ctx context.Context, req MeasureRequest) (*Measurement, error) {
	_, span := calcTracer.Start(ctx, "CalculatorService.Measure")
	defer span.End()
	span.SetAttributes(
		attribute.String("measure.type", req.Type),
		attribute.Int("measure.points", len(req.Points)),
	)

	for i, p := range req.Points {
		if !p.Valid() {
			return nil, s.fail("geometry", &domain.ErrValidation{
				Field:   fmt.Sprintf("points[%d]", i),
				Message: "latitude/longitude out of range",
			})
		}
	}

	switch req.Type {
	case "distance":
		meters, ok := geo.Distance(req.Points)
		if !ok {
			return nil, s.fail("geometry", &domain.ErrUnprocessable{
				Message: fmt.Sprintf("distance needs at least %d points", geo.MinDistancePoints),
			})
		}
		return distance(meters), nil
	case "area":
		sqm, ok := geo.Area(req.Points)
		if !ok {
			return nil, s.fail("geometry", &domain.ErrUnprocessable{
				Message: fmt.Sprintf("area needs at least %d points", geo.MinAreaPoints),
			})
		}
		return area(sqm), nil
	}
	return nil, &domain.ErrValidation{Field: "type", Message: "must be distance or area"}
}

func distance(meters float64) *Measurement {
	feet := meters * feetPerMeter
	m := &Measurement{Type: "distance", Meters: meters, Feet: feet, Miles: feet / feetPerMile}
	if feet < feetPerMile {
		m.Display = fmt.Sprintf("%.1f ft", feet)
	} else {
		m.Display = fmt.Sprintf("%.2f mi", m.Miles)
	}
	return m
}

func area(sqm float64) *Measurement {
	sqft := sqm * squareFeetPerMeter
	m := &Measurement{Type: "area", SqM: sqm, SqFt: sqft, Acres: sqft / squareFeetPerAcre}
	if sqft < squareFeetPerAcre {
		m.Display = fmt.Sprintf("%.1f sq ft", sqft)
	} else {
		m.Display = fmt.Sprintf("%.2f acres", m.Acres)
	}
	return m
}
