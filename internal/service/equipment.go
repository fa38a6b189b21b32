package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/port"
	"github.com/treeshop/treeshop-ops-go/internal/pricing"
)

var equipmentTracer = otel.Tracer("service/equipment")

// EquipmentRequest registers a machine. A zero fuel price takes the
// company's current price.
type EquipmentRequest struct {
	domain.EquipmentDetails
	Inputs pricing.EquipmentInputs `json:"costInputs"`
}

// EquipmentFilter narrows List.
type EquipmentFilter struct {
	Type               *domain.EquipmentType
	Status             *domain.EquipmentStatus
	NeedsReplacement   bool
	AvailableOnly      bool
	MaintenanceDueOnly bool
}

func (f EquipmentFilter) match(e *domain.Equipment) bool {
	switch {
	case f.Type != nil && e.Type != *f.Type:
		return false
	case f.Status != nil && e.Status != *f.Status:
		return false
	case f.NeedsReplacement && !e.ShouldConsiderReplacement():
		return false
	case f.AvailableOnly && !e.IsAvailable():
		return false
	case f.MaintenanceDueOnly && !e.MaintenanceDue():
		return false
	}
	return true
}

// UsageRequest logs hours on a machine.
type UsageRequest struct {
	Hours   float64    `json:"hours"`
	Revenue float64    `json:"revenue"`
	Date    *time.Time `json:"date,omitempty"`
}

// MaintenanceRequest records a service performed on a machine.
type MaintenanceRequest struct {
	Date         *time.Time `json:"date,omitempty"`
	Cost         float64    `json:"cost"`
	Description  string     `json:"description"`
	NextDueHours *float64   `json:"nextDueHours,omitempty"`
}

// EquipmentService manages the fleet and its hourly cost model.
type EquipmentService struct {
	core
}

func NewEquipmentService(repos *port.Repositories, metrics *observability.Metrics, logger *zap.Logger) *EquipmentService {
	return &EquipmentService{core: newCore(repos, metrics, logger)}
}

func (s *EquipmentService) Create(ctx context.Context, req EquipmentRequest) (*domain.Equipment, error) {
	ctx, span := equipmentTracer.Start(ctx, "EquipmentService.Create")
	defer span.End()

	in := req.Inputs
	if in.FuelPrice == 0 {
		settings, err := s.settings(ctx)
		if err != nil {
			return nil, err
		}
		in.FuelPrice = settings.FuelPrice
	}
	e, err := domain.NewEquipment(req.EquipmentDetails, in, s.now())
	if err != nil {
		s.countCostError(err)
		return nil, err
	}
	if err := create(ctx, &s.core, s.repos.Equipment, domain.KindEquipment, e); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("equipment.id", e.ID.String()))
	s.logger.Info("equipment registered",
		zap.String("equipment_id", e.ID.String()),
		zap.String("name", e.Name),
		zap.Float64("hourly_cost", e.Costs().Total),
	)
	return e, nil
}

func (s *EquipmentService) Get(ctx context.Context, id uuid.UUID) (*domain.Equipment, error) {
	ctx, span := equipmentTracer.Start(ctx, "EquipmentService.Get")
	defer span.End()

	return s.repos.Equipment.Get(ctx, id)
}

func (s *EquipmentService) List(ctx context.Context, f EquipmentFilter) ([]*domain.Equipment, error) {
	ctx, span := equipmentTracer.Start(ctx, "EquipmentService.List")
	defer span.End()

	return s.repos.Equipment.List(ctx, f.match)
}

func (s *EquipmentService) UpdateDetails(ctx context.Context, id uuid.UUID, details domain.EquipmentDetails, expected *int) (*domain.Equipment, error) {
	ctx, span := equipmentTracer.Start(ctx, "EquipmentService.UpdateDetails")
	defer span.End()

	now := s.now()
	return mutate(ctx, &s.core, s.repos.Equipment, domain.KindEquipment, id, expected, func(e *domain.Equipment) error {
		return e.UpdateDetails(details, now)
	})
}

// SetCostInputs replaces every cost input and recomputes the hourly costs.
// Zero depreciation years and maintenance percentage take the defaults.
func (s *EquipmentService) SetCostInputs(ctx context.Context, id uuid.UUID, in pricing.EquipmentInputs, expected *int) (*domain.Equipment, error) {
	ctx, span := equipmentTracer.Start(ctx, "EquipmentService.SetCostInputs")
	defer span.End()
	defer s.observe("EquipmentService.SetCostInputs", time.Now())

	now := s.now()
	e, err := mutate(ctx, &s.core, s.repos.Equipment, domain.KindEquipment, id, expected, func(e *domain.Equipment) error {
		return e.SetCostInputs(domain.ApplyEquipmentDefaults(in), now)
	})
	if err != nil {
		s.countCostError(err)
		return nil, err
	}
	return e, nil
}

func (s *EquipmentService) LogUsage(ctx context.Context, id uuid.UUID, req UsageRequest, expected *int) (*domain.Equipment, error) {
	ctx, span := equipmentTracer.Start(ctx, "EquipmentService.LogUsage")
	defer span.End()

	now := s.now()
	date := now
	if req.Date != nil {
		date = req.Date.UTC()
	}
	e, err := mutate(ctx, &s.core, s.repos.Equipment, domain.KindEquipment, id, expected, func(e *domain.Equipment) error {
		return e.LogUsage(req.Hours, date, req.Revenue, now)
	})
	if err != nil {
		return nil, err
	}
	if e.MaintenanceDue() {
		s.logger.Warn("equipment maintenance due",
			zap.String("equipment_id", id.String()),
			zap.Float64("total_hours", e.Usage.TotalHours),
		)
	}
	return e, nil
}

func (s *EquipmentService) AddMaintenance(ctx context.Context, id uuid.UUID, req MaintenanceRequest, expected *int) (*domain.Equipment, error) {
	ctx, span := equipmentTracer.Start(ctx, "EquipmentService.AddMaintenance")
	defer span.End()

	now := s.now()
	date := now
	if req.Date != nil {
		date = req.Date.UTC()
	}
	return mutate(ctx, &s.core, s.repos.Equipment, domain.KindEquipment, id, expected, func(e *domain.Equipment) error {
		_, err := e.AddMaintenance(date, req.Cost, req.Description, req.NextDueHours, now)
		return err
	})
}

func (s *EquipmentService) SetStatus(ctx context.Context, id uuid.UUID, status domain.EquipmentStatus, expected *int) (*domain.Equipment, error) {
	ctx, span := equipmentTracer.Start(ctx, "EquipmentService.SetStatus")
	defer span.End()

	now := s.now()
	e, err := mutate(ctx, &s.core, s.repos.Equipment, domain.KindEquipment, id, expected, func(e *domain.Equipment) error {
		return e.SetStatus(status, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("equipment status changed", zap.String("equipment_id", id.String()), zap.String("status", string(status)))
	return e, nil
}

// ResetYear zeroes the annual hour counter of every unit still in service.
func (s *EquipmentService) ResetYear(ctx context.Context) (int, error) {
	ctx, span := equipmentTracer.Start(ctx, "EquipmentService.ResetYear")
	defer span.End()

	return s.eachUnit(ctx, "hours not reset", func(e *domain.Equipment, now time.Time) error {
		e.ResetYear(now)
		return nil
	})
}

// RepriceFuel applies a new fuel price to every unit still in service.
func (s *EquipmentService) RepriceFuel(ctx context.Context, price float64) (int, error) {
	ctx, span := equipmentTracer.Start(ctx, "EquipmentService.RepriceFuel")
	defer span.End()
	span.SetAttributes(attribute.Float64("fuel.price", price))

	if price <= 0 {
		return 0, &domain.ErrValidation{Field: "fuelPrice", Message: "must be positive"}
	}
	n, err := s.eachUnit(ctx, "fuel price not applied", func(e *domain.Equipment, now time.Time) error {
		return e.SetFuelPrice(price, now)
	})
	if err != nil {
		return n, err
	}
	s.logger.Info("fuel price applied to fleet", zap.Float64("price", price), zap.Int("units", n))
	return n, nil
}

func (s *EquipmentService) eachUnit(ctx context.Context, failure string, fn func(*domain.Equipment, time.Time) error) (int, error) {
	units, err := s.repos.Equipment.List(ctx, func(e *domain.Equipment) bool {
		return e.Status != domain.EquipmentStatusSold && e.Status != domain.EquipmentStatusRetired
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, unit := range units {
		now := s.now()
		_, err := touchWithRetry(ctx, &s.core, s.repos.Equipment, domain.KindEquipment, unit.ID, func(e *domain.Equipment) error {
			return fn(e, now)
		})
		if err != nil {
			s.logger.Warn(failure, zap.String("equipment_id", unit.ID.String()), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

func (s *EquipmentService) countCostError(err error) {
	var invalid *domain.ErrValidation
	if errors.As(err, &invalid) {
		s.metrics.IncrCalculationError("equipment_cost")
	}
}
