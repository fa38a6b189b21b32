package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/pricing"
)

func newMulcher(t *testing.T, purchased time.Time) *domain.Equipment {
	t.Helper()
	e, err := domain.NewEquipment(
		domain.EquipmentDetails{Name: "FAE 140", Type: domain.EquipmentMulcher, PurchaseDate: purchased},
		pricing.EquipmentInputs{PurchasePrice: 115000, AnnualHours: 1200, FuelGPH: 14, FuelPrice: 3.50},
		t0,
	)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return e
}

func TestEquipment_CostsWithDefaults(t *testing.T) {
	e := newMulcher(t, t0)

	in := e.CostInputs()
	if in.DepreciationYears != 5 || in.MaintenancePercentage != 0.15 {
		t.Fatalf("expected 5 years and 15%% defaults, got %d / %v", in.DepreciationYears, in.MaintenancePercentage)
	}
	c := e.Costs()
	if !nearlyEqual(c.Fuel, 49) || !nearlyEqual(c.Maintenance, 14.375) {
		t.Errorf("unexpected fuel/maintenance %v / %v", c.Fuel, c.Maintenance)
	}
	if c.Total < 82.53 || c.Total > 82.55 {
		t.Errorf("expected total about 82.54, got %v", c.Total)
	}

	reasons := e.ReplacementReasons()
	if len(reasons) != 1 || reasons[0].Code != pricing.ReplacementMaintenanceCost {
		t.Errorf("expected only the maintenance trigger, got %+v", reasons)
	}

	if err := e.SetFuelPrice(4, t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !nearlyEqual(e.Costs().Fuel, 56) {
		t.Errorf("expected fuel 56 after repricing, got %v", e.Costs().Fuel)
	}
	if err := e.SetFuelPrice(-1, t0); err == nil {
		t.Error("expected negative fuel price to be rejected")
	}
	if !nearlyEqual(e.Costs().Fuel, 56) {
		t.Error("expected rejected inputs to keep the previous costs")
	}
}

func TestEquipment_ReplacementTriggers(t *testing.T) {
	old := newMulcher(t, t0.AddDate(-7, 0, 0))
	if err := old.LogUsage(200, t0, 5000, t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	codes := map[pricing.ReplacementCode]bool{}
	for _, r := range old.ReplacementReasons() {
		codes[r.Code] = true
	}
	if len(codes) != 3 {
		t.Errorf("expected all three triggers for an old idle machine, got %v", codes)
	}
	if !old.Utilization().Underutilized {
		t.Error("expected 200 of 1200 hours to be underutilized")
	}

	old.ResetYear(t0)
	for _, r := range old.ReplacementReasons() {
		if r.Code == pricing.ReplacementLowUtilization {
			t.Error("expected a fresh year not to flag low utilization")
		}
	}
}

func TestEquipment_YearsSincePurchase(t *testing.T) {
	e := newMulcher(t, time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC))
	cases := map[time.Time]int{
		time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC): 4,
		time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC): 5,
		time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC):  0,
	}
	for now, want := range cases {
		if got := e.YearsSincePurchase(now); got != want {
			t.Errorf("at %s: expected %d, got %d", now.Format(time.DateOnly), want, got)
		}
	}
}

func TestEquipment_UsageAndMaintenance(t *testing.T) {
	e := newMulcher(t, t0)
	_ = e.LogUsage(100, t0.AddDate(0, 0, 1), 8000, t0)
	if e.Usage.TotalHours != 100 || e.Usage.RevenueTotal != 8000 {
		t.Errorf("unexpected usage %+v", e.Usage)
	}

	behind := 50.0
	if _, err := e.AddMaintenance(t0, 300, "blade change", &behind, t0); err == nil {
		t.Error("expected a due mark behind the meter to be rejected")
	}
	due := 150.0
	if _, err := e.AddMaintenance(t0, 300, "blade change", &due, t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if e.MaintenanceDue() {
		t.Error("expected maintenance not yet due at 100h")
	}
	_ = e.LogUsage(60, t0.AddDate(0, 0, 2), 0, t0)
	if !e.MaintenanceDue() {
		t.Error("expected maintenance due at 160h")
	}

	if err := e.SetStatus(domain.EquipmentStatusSold, t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if e.IsAvailable() {
		t.Error("expected sold equipment to be unavailable")
	}
	if err := e.LogUsage(1, t0, 0, t0); err == nil {
		t.Error("expected usage on sold equipment to be rejected")
	}
	if err := e.SetStatus(domain.EquipmentStatusActive, t0); err == nil {
		t.Error("expected sold equipment to stay sold")
	}
}

func TestEquipment_JSON(t *testing.T) {
	e := newMulcher(t, t0)
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var back domain.Equipment
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !nearlyEqual(back.Costs().Total, e.Costs().Total) || !back.ShouldConsiderReplacement() {
		t.Errorf("expected decoded equipment to keep costs and replacement flag, got %+v", back.Costs())
	}
}
