package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
)

func TestStartTimeEntry_Validation(t *testing.T) {
	crew := []uuid.UUID{uuid.New()}
	wo := uuid.New()
	cases := []struct {
		name string
		in   domain.TimeEntryStart
		ok   bool
	}{
		{"support task", domain.TimeEntryStart{TaskType: domain.TaskSupport, TaskCategory: "Fuel Up", EmployeeIDs: crew}, true},
		{"unknown support task", domain.TimeEntryStart{TaskType: domain.TaskSupport, TaskCategory: "Lunch", EmployeeIDs: crew}, false},
		{"line item", domain.TimeEntryStart{TaskType: domain.TaskLineItem, TaskCategory: "TREE_REMOVAL", WorkOrderID: &wo, EmployeeIDs: crew}, true},
		{"line item without work order", domain.TimeEntryStart{TaskType: domain.TaskLineItem, TaskCategory: "TREE_REMOVAL", EmployeeIDs: crew}, false},
		{"no crew", domain.TimeEntryStart{TaskType: domain.TaskSupport, TaskCategory: "Training"}, false},
	}
	for _, tc := range cases {
		_, err := domain.StartTimeEntry(tc.in, t0)
		if (err == nil) != tc.ok {
			t.Errorf("%s: expected ok=%v, got %v", tc.name, tc.ok, err)
		}
	}
}

func TestTimeEntry_PauseResumeComplete(t *testing.T) {
	wo := uuid.New()
	te, err := domain.StartTimeEntry(domain.TimeEntryStart{
		TaskType:    domain.TaskLineItem, TaskCategory: "TREE_REMOVAL", WorkOrderID: &wo,
		EmployeeIDs: []uuid.UUID{uuid.New(), uuid.New()},
	}, t0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !te.IsBillable() {
		t.Error("expected line-item time to be billable")
	}

	if err := te.Pause(t0.Add(time.Hour)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := te.Pause(t0.Add(time.Hour)); err == nil {
		t.Error("expected pausing twice to fail")
	}
	if err := te.Resume(t0.Add(90 * time.Minute)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	points := 70.0
	err = te.Complete(domain.Completion{At: t0.Add(4 * time.Hour), Points: &points, CrewHourlyCost: 100, EquipmentHourlyCost: 50})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !nearlyEqual(te.Duration, 3.5) || !nearlyEqual(te.TotalPausedHours, 0.5) {
		t.Errorf("expected 3.5h worked and 0.5h paused, got %v / %v", te.Duration, te.TotalPausedHours)
	}
	if te.PPHAchieved == nil || !nearlyEqual(*te.PPHAchieved, 20) {
		t.Errorf("expected 20 PpH, got %v", te.PPHAchieved)
	}
	if !nearlyEqual(te.LaborCost, 350) || !nearlyEqual(te.EquipmentCost, 175) || !nearlyEqual(te.TotalCost(), 525) {
		t.Errorf("unexpected costs %v / %v", te.LaborCost, te.EquipmentCost)
	}
	totals := te.Totals()
	if !nearlyEqual(totals.Hours, 3.5) || totals.Points != 70 {
		t.Errorf("unexpected totals %+v", totals)
	}

	var tr *domain.ErrInvalidTransition
	if err := te.Complete(domain.Completion{At: t0.Add(5 * time.Hour)}); !errors.As(err, &tr) {
		t.Errorf("expected completing twice to fail, got %v", err)
	}
}

func TestTimeEntry_CompleteWhilePaused(t *testing.T) {
	te, _ := domain.StartTimeEntry(domain.TimeEntryStart{TaskType: domain.TaskSupport, TaskCategory: "Transport", EmployeeIDs: []uuid.UUID{uuid.New()}}, t0)
	_ = te.Pause(t0.Add(time.Hour))

	points := 5.0
	if err := te.Complete(domain.Completion{At: t0.Add(3 * time.Hour), Points: &points}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if te.IsPaused || !nearlyEqual(te.Duration, 1) {
		t.Errorf("expected the open pause to be closed and 1h worked, got paused=%v duration=%v", te.IsPaused, te.Duration)
	}

	zero, _ := domain.StartTimeEntry(domain.TimeEntryStart{TaskType: domain.TaskSupport, TaskCategory: "Training", EmployeeIDs: []uuid.UUID{uuid.New()}}, t0)
	if err := zero.Complete(domain.Completion{At: t0, Points: &points}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if zero.PPHAchieved != nil || zero.Duration != 0 {
		t.Error("expected no PpH for a zero-length entry")
	}
}

func newSiteVisit(t *testing.T) *domain.ScheduledJob {
	t.Helper()
	lead := uuid.New()
	j, err := domain.NewScheduledJob(domain.ScheduleRequest{
		JobType:        domain.JobTypeSiteVisit,
		LeadID:         &lead,
		ScheduledStart: t0,
		ScheduledEnd:   t0.Add(2 * time.Hour),
		CustomerName:   "Dana Reyes",
	}, t0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return j
}

func TestNewScheduledJob_Validation(t *testing.T) {
	if _, err := domain.NewScheduledJob(domain.ScheduleRequest{JobType: domain.JobTypeWork, ScheduledStart: t0, ScheduledEnd: t0.Add(time.Hour)}, t0); err == nil {
		t.Error("expected a job without a work order to be rejected")
	}
	lead := uuid.New()
	if _, err := domain.NewScheduledJob(domain.ScheduleRequest{JobType: domain.JobTypeSiteVisit, LeadID: &lead, ScheduledStart: t0, ScheduledEnd: t0}, t0); err == nil {
		t.Error("expected an empty window to be rejected")
	}
	if j := newSiteVisit(t); j.Priority != domain.PriorityMedium || j.Status != domain.JobScheduled {
		t.Errorf("unexpected defaults %s / %s", j.Priority, j.Status)
	}
}

func TestScheduledJob_Costs(t *testing.T) {
	j := newSiteVisit(t)
	a := uuid.New()
	if err := j.AssignCrew([]uuid.UUID{a, a}, &a, 80, t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := j.AssignEquipment([]uuid.UUID{uuid.New()}, 20, t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(j.EmployeeIDs) != 1 || j.EstimatedDuration() != 2 || j.TotalEstimatedCost() != 200 {
		t.Errorf("expected 1 crew, 2h, 200 estimated; got %d, %v, %v", len(j.EmployeeIDs), j.EstimatedDuration(), j.TotalEstimatedCost())
	}
	if _, ok := j.TotalActualCost(); ok {
		t.Error("expected no actual cost before completion")
	}

	_ = j.Start(t0.Add(10 * time.Minute))
	if err := j.Complete(t0.Add(190 * time.Minute)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cost, ok := j.TotalActualCost(); !ok || !nearlyEqual(cost, 300) {
		t.Errorf("expected actual cost 300, got %v", cost)
	}

	b, _ := json.Marshal(j)
	var raw map[string]any
	_ = json.Unmarshal(b, &raw)
	if raw["totalEstimatedCost"] != 200.0 || raw["jobStatus"] != "Completed" {
		t.Errorf("unexpected JSON %v / %v", raw["totalEstimatedCost"], raw["jobStatus"])
	}
}

func TestScheduledJob_Reschedule(t *testing.T) {
	j := newSiteVisit(t)
	next := t0.AddDate(0, 0, 1)
	if err := j.Reschedule(next, next.Add(3*time.Hour), t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if j.Status != domain.JobRescheduled || j.EstimatedDuration() != 3 {
		t.Errorf("expected rescheduled 3h window, got %s / %v", j.Status, j.EstimatedDuration())
	}
	if err := j.Reschedule(next, next.Add(-time.Hour), t0); err == nil {
		t.Error("expected an inverted window to be rejected")
	}
	_ = j.Cancel("rain", t0)
	var tr *domain.ErrInvalidTransition
	if err := j.Reschedule(next, next.Add(time.Hour), t0); !errors.As(err, &tr) {
		t.Errorf("expected a cancelled job not to be reschedulable, got %v", err)
	}
	if err := j.Start(next); !errors.As(err, &tr) {
		t.Errorf("expected a cancelled job not to start, got %v", err)
	}
}
