package domain_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/pricing"
)

func newEmployee(t *testing.T, details domain.EmployeeDetails, wage pricing.WageInput) *domain.Employee {
	t.Helper()
	e, err := domain.NewEmployee(details, wage, pricing.DefaultCompensationTable(), t0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return e
}

func TestEmployee_Compensation(t *testing.T) {
	e := newEmployee(t,
		domain.EmployeeDetails{FirstName: "Ana", LastName: "Ruiz", PrimaryTrack: domain.TrackTRS},
		pricing.WageInput{BaseHourlyRate: 15, Tier: 1, Supervisor: true, EquipmentLevel: 3, DriverClass: 1, CraneCert: true},
	)
	comp := e.Compensation()
	if !nearlyEqual(comp.HourlyWage, 39) {
		t.Fatalf("expected wage 39.00, got %v", comp.HourlyWage)
	}
	if comp.BurdenMultiplier != 1.6 || !nearlyEqual(comp.TrueBusinessCost, 62.4) {
		t.Errorf("expected 1.6 burden and 62.40 loaded cost, got %v / %v", comp.BurdenMultiplier, comp.TrueBusinessCost)
	}

	promoted := e.WageInput()
	promoted.Tier = 3
	if err := e.SetCompensation(promoted, pricing.DefaultCompensationTable(), t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if e.Tier() != 3 || !nearlyEqual(e.Compensation().HourlyWage, 15*1.8+7+4+4) {
		t.Errorf("expected repriced wage for tier 3, got %v", e.Compensation().HourlyWage)
	}

	bad := promoted
	bad.Tier = 6
	var ve *domain.ErrValidation
	if err := e.SetCompensation(bad, pricing.DefaultCompensationTable(), t0); !errors.As(err, &ve) {
		t.Fatalf("expected ErrValidation for tier 6, got %v", err)
	}
	if e.Tier() != 3 {
		t.Error("expected a rejected update to keep the previous inputs")
	}
}

func TestEmployee_Code(t *testing.T) {
	esr, _ := domain.ParseCrossTraining("ESR3")
	trs, _ := domain.ParseCrossTraining("TRS2")
	e := newEmployee(t,
		domain.EmployeeDetails{
			FirstName:     "Kai", LastName: "Moss", PrimaryTrack: domain.TrackTRS, IsManager: true,
			CrossTraining: []domain.CrossTraining{esr, trs},
		},
		pricing.WageInput{BaseHourlyRate: 20, Tier: 3, Supervisor: true, EquipmentLevel: 3, DriverClass: 2, CraneCert: true, ISACert: true},
	)
	if got, want := e.EmployeeCode(), "TRS3+S+M+E3+D2+CRA+ISA / X-ESR3+X-TRS2"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	plain := newEmployee(t,
		domain.EmployeeDetails{FirstName: "Lee", LastName: "Ng", PrimaryTrack: domain.TrackATC},
		pricing.WageInput{BaseHourlyRate: 18, Tier: 2, TeamLeader: true, EquipmentLevel: 1, DriverClass: 1},
	)
	if got := plain.EmployeeCode(); got != "ATC2+L" {
		t.Errorf("expected ATC2+L, got %q", got)
	}
	if !plain.HasCrossTraining(domain.TrackATC) || plain.HasCrossTraining(domain.TrackESR) {
		t.Error("expected primary track to count as trained and ESR not")
	}
}

func TestParseCrossTraining(t *testing.T) {
	for _, raw := range []string{"ESR", "XXX3", "ESR9", "ESR33"} {
		if _, err := domain.ParseCrossTraining(raw); err == nil {
			t.Errorf("expected %q to be rejected", raw)
		}
	}
	x, err := domain.ParseCrossTraining("MNT5")
	if err != nil || x.Track != domain.TrackMNT || x.Tier != 5 {
		t.Errorf("expected MNT tier 5, got %+v (%v)", x, err)
	}
	if domain.TrackMNT.Category() != domain.CategoryEquipmentMaintenance {
		t.Errorf("unexpected category %q", domain.TrackMNT.Category())
	}
}

func TestEmployee_PerformanceAndTermination(t *testing.T) {
	e := newEmployee(t,
		domain.EmployeeDetails{FirstName: "Bo", LastName: "Lane", PrimaryTrack: domain.TrackSTG},
		pricing.WageInput{BaseHourlyRate: 16, Tier: 1, EquipmentLevel: 1, DriverClass: 1},
	)
	if e.Performance.AveragePpH() != 0 {
		t.Fatal("expected zero PpH without hours")
	}
	_ = e.RecordJob(4, 100, t0)
	_ = e.RecordJob(6, 200, t0)
	if e.Performance.JobsCompleted != 2 || e.Performance.AveragePpH() != 30 {
		t.Errorf("expected 2 jobs at 30 PpH, got %+v", e.Performance)
	}

	if err := e.Terminate(t0.AddDate(0, 0, -1), "", t0); err == nil {
		t.Error("expected termination before hire to be rejected")
	}
	if err := e.Terminate(t0.AddDate(0, 3, 0), "seasonal", t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if e.IsActive() {
		t.Error("expected terminated employee to be inactive")
	}
	details := e.EmployeeDetails
	details.Status = domain.EmploymentActive
	var te *domain.ErrInvalidTransition
	if err := e.UpdateDetails(details, t0); !errors.As(err, &te) {
		t.Errorf("expected un-terminating to fail, got %v", err)
	}
}

func TestEmployee_JSON(t *testing.T) {
	e := newEmployee(t,
		domain.EmployeeDetails{FirstName: "Ana", LastName: "Ruiz", PrimaryTrack: domain.TrackTRS},
		pricing.WageInput{BaseHourlyRate: 15, Tier: 1, Supervisor: true, EquipmentLevel: 3, DriverClass: 1, CraneCert: true},
	)
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(b, &raw)
	if raw["employeeCode"] != "TRS1+S+E3+CRA" || raw["careerTrackName"] == "" {
		t.Errorf("unexpected derived fields %v / %v", raw["employeeCode"], raw["careerTrackName"])
	}

	var back domain.Employee
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !nearlyEqual(back.Compensation().HourlyWage, 39) {
		t.Errorf("expected decoded wage 39, got %v", back.Compensation().HourlyWage)
	}
}
