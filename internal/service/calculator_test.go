package service_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/geo"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/pricing"
	"github.com/treeshop/treeshop-ops-go/internal/service"
)

func newCalculator() *service.CalculatorService {
	return service.NewCalculatorService(pricing.DefaultCompensationTable(), observability.NewMetrics(), zap.NewNop())
}

func TestCalculator_TreeScore(t *testing.T) {
	svc := newCalculator()
	trim := 25.0

	got, err := svc.TreeScore(context.Background(), service.TreeScoreRequest{Height: 50, DBH: 20, CanopyRadius: 15, PercentToTrim: &trim})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !near(got.TreeScore, 20225) || !near(got.CrownSpread, 30) {
		t.Fatalf("expected score 20225 / spread 30, got %v / %v", got.TreeScore, got.CrownSpread)
	}
	if got.TrimScore == nil || !near(*got.TrimScore, 56250) {
		t.Fatalf("expected trim score 56250, got %v", got.TrimScore)
	}

	_, err = svc.TreeScore(context.Background(), service.TreeScoreRequest{Height: -1, DBH: 20, CanopyRadius: 15})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation for a negative height, got %v", err)
	}
}

func TestCalculator_EquipmentCostAppliesDefaults(t *testing.T) {
	svc := newCalculator()

	got, err := svc.EquipmentCost(context.Background(), pricing.EquipmentInputs{
		PurchasePrice: 50000, AnnualHours: 1000, FuelGPH: 2, FuelPrice: 3.5,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Inputs.DepreciationYears != pricing.DefaultDepreciationYears {
		t.Fatalf("expected default depreciation years, got %d", got.Inputs.DepreciationYears)
	}
	// fuel 7 + depreciation 10 + maintenance 7.5
	if !near(got.Costs.Total, 24.5) {
		t.Fatalf("expected 24.5/hr, got %v", got.Costs.Total)
	}
}

func TestCalculator_Wage(t *testing.T) {
	svc := newCalculator()

	comp, err := svc.Wage(context.Background(), pricing.WageInput{
		BaseHourlyRate: 20, Tier: 3, Supervisor: true, TeamLeader: true,
		EquipmentLevel: 3, DriverClass: 2, ISACert: true,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !near(comp.HourlyWage, 51.5) || !near(comp.TrueBusinessCost, 92.7) {
		t.Fatalf("expected 51.50 wage / 92.70 cost, got %v / %v", comp.HourlyWage, comp.TrueBusinessCost)
	}

	_, err = svc.Wage(context.Background(), pricing.WageInput{BaseHourlyRate: 20, Tier: 9, EquipmentLevel: 1, DriverClass: 1})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) || validation.Field != "tier" {
		t.Fatalf("expected tier validation error, got %v", err)
	}
}

func TestCalculator_Measure(t *testing.T) {
	svc := newCalculator()
	ctx := context.Background()

	tests := []struct {
		name    string
		req     service.MeasureRequest
		display string
	}{
		{
			name:    "short distance in feet",
			req:     service.MeasureRequest{Type: "distance", Points: []geo.Point{{Lat: 28.5, Lon: -82.4}, {Lat: 28.501, Lon: -82.4}}},
			display: " ft",
		},
		{
			name:    "long distance in miles",
			req:     service.MeasureRequest{Type: "distance", Points: []geo.Point{{Lat: 28.5, Lon: -82.4}, {Lat: 28.6, Lon: -82.4}}},
			display: " mi",
		},
		{
			name: "small lot in square feet",
			req: service.MeasureRequest{Type: "area", Points: []geo.Point{
				{Lat: 28.5, Lon: -82.4}, {Lat: 28.5001, Lon: -82.4}, {Lat: 28.5001, Lon: -82.3999},
			}},
			display: " sq ft",
		},
		{
			name: "parcel in acres",
			req: service.MeasureRequest{Type: "area", Points: []geo.Point{
				{Lat: 28.5, Lon: -82.4}, {Lat: 28.51, Lon: -82.4}, {Lat: 28.51, Lon: -82.39}, {Lat: 28.5, Lon: -82.39},
			}},
			display: " acres",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := svc.Measure(ctx, tt.req)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(m.Display) <= len(tt.display) || m.Display[len(m.Display)-len(tt.display):] != tt.display {
				t.Fatalf("expected display ending in %q, got %q", tt.display, m.Display)
			}
		})
	}
}

func TestCalculator_MeasureRejectsBadInput(t *testing.T) {
	svc := newCalculator()
	ctx := context.Background()

	_, err := svc.Measure(ctx, service.MeasureRequest{Type: "area", Points: []geo.Point{{Lat: 28.5, Lon: -82.4}, {Lat: 28.6, Lon: -82.4}}})
	var unprocessable *domain.ErrUnprocessable
	if !errors.As(err, &unprocessable) {
		t.Fatalf("expected ErrUnprocessable for two area points, got %v", err)
	}

	_, err = svc.Measure(ctx, service.MeasureRequest{Type: "distance", Points: []geo.Point{{Lat: 91, Lon: 0}, {Lat: 0, Lon: 0}}})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation for an out-of-range point, got %v", err)
	}

	_, err = svc.Measure(ctx, service.MeasureRequest{Type: "volume"})
	if !errors.As(err, &validation) || validation.Field != "type" {
		t.Fatalf("expected type validation error, got %v", err)
	}
}
