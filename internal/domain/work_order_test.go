package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
)

func TestNewWorkOrderFromProposal(t *testing.T) {
	_, p, wo := acceptedWorkOrder(t)

	if !p.ConvertedToWorkOrder || p.WorkOrderID == nil || *p.WorkOrderID != wo.ID {
		t.Fatal("expected proposal to record its work order")
	}
	if wo.JobDescription != "Work Order from Proposal "+p.Number {
		t.Errorf("unexpected job description %q", wo.JobDescription)
	}
	if len(wo.ServiceTypes) != 2 || wo.Status != domain.WorkOrderScheduled || wo.Priority != domain.PriorityHigh {
		t.Errorf("unexpected work order %+v", wo)
	}
	items := wo.LineItems()
	if len(items) != 2 || items[1].EstimatedCost != 300 || items[0].Status != domain.LineItemPending {
		t.Errorf("unexpected line items %+v", items)
	}
	if items[0].ProposalLineItemID != p.LineItems()[0].ID {
		t.Error("expected line items to point back at the proposal")
	}
	if !nearlyEqual(wo.EstimatedTotalCost(), 800) {
		t.Errorf("expected estimate 800, got %v", wo.EstimatedTotalCost())
	}
	if _, ok := wo.ActualTotalCost(); ok {
		t.Error("expected no actual cost before time is tracked")
	}

	var conflict *domain.ErrConflict
	if _, err := domain.NewWorkOrderFromProposal(p, "", t0); !errors.As(err, &conflict) {
		t.Errorf("expected a second conversion to conflict, got %v", err)
	}
}

func TestNewWorkOrderFromProposal_RequiresAccepted(t *testing.T) {
	_, p := sentProposal(t)
	var te *domain.ErrInvalidTransition
	if _, err := domain.NewWorkOrderFromProposal(p, "", t0); !errors.As(err, &te) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestAddTimeEntry_CompletionIsCappedAndMonotone(t *testing.T) {
	_, _, wo := acceptedWorkOrder(t)

	first := uuid.New()
	if err := wo.AddTimeEntry(first, domain.TimeEntryTotals{Hours: 5, LaborCost: 250, EquipmentCost: 100, Points: 40}, t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if wo.CompletionPercentage() != 25 {
		t.Fatalf("expected 25%%, got %d", wo.CompletionPercentage())
	}
	if cost, ok := wo.ActualTotalCost(); !ok || cost != 350 {
		t.Errorf("expected actual cost 350, got %v", cost)
	}
	if pph, ok := wo.ActualPpH(); !ok || pph != 8 {
		t.Errorf("expected 8 points per hour, got %v", pph)
	}

	var conflict *domain.ErrConflict
	if err := wo.AddTimeEntry(first, domain.TimeEntryTotals{Hours: 1}, t0); !errors.As(err, &conflict) {
		t.Errorf("expected duplicate entry to conflict, got %v", err)
	}
	if err := wo.AddTimeEntry(uuid.New(), domain.TimeEntryTotals{Hours: -1}, t0); err == nil {
		t.Error("expected negative hours to be rejected")
	}

	if err := wo.AddTimeEntry(uuid.New(), domain.TimeEntryTotals{Hours: 30}, t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if wo.CompletionPercentage() != 100 || wo.TotalHoursTracked() != 35 {
		t.Errorf("expected 100%% after 35h, got %d%% / %v", wo.CompletionPercentage(), wo.TotalHoursTracked())
	}
	if len(wo.TimeEntryIDs()) != 2 {
		t.Errorf("expected 2 entries recorded, got %d", len(wo.TimeEntryIDs()))
	}
}

func TestWorkOrder_Lifecycle(t *testing.T) {
	_, _, wo := acceptedWorkOrder(t)
	start := t0.Add(24 * time.Hour)

	if err := wo.CompleteWork(start); err == nil {
		t.Fatal("expected completing a scheduled job to fail")
	}
	if err := wo.StartWork(start); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := wo.Hold("rain", start.Add(time.Hour)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := wo.StartWork(start.Add(2 * time.Hour)); err != nil || wo.HoldReason != "" {
		t.Fatalf("expected resume to clear the hold, got %v", err)
	}
	if !wo.ActualStart.Equal(start) {
		t.Error("expected resume to keep the original start time")
	}
	if err := wo.CompleteWork(start.Add(6 * time.Hour)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if wo.CompletionPercentage() != 100 || wo.ActualDuration == nil || *wo.ActualDuration != 6 {
		t.Errorf("expected 100%% after 6h, got %d%% / %v", wo.CompletionPercentage(), wo.ActualDuration)
	}
	if err := wo.Cancel("", start); err == nil {
		t.Error("expected cancelling a completed job to fail")
	}
}

func TestWorkOrder_CancelledRejectsTime(t *testing.T) {
	_, _, wo := acceptedWorkOrder(t)
	if err := wo.Cancel("customer moved", t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var te *domain.ErrInvalidTransition
	if err := wo.AddTimeEntry(uuid.New(), domain.TimeEntryTotals{Hours: 1}, t0); !errors.As(err, &te) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestWorkOrder_CrewAndLineItems(t *testing.T) {
	_, _, wo := acceptedWorkOrder(t)
	a, b := uuid.New(), uuid.New()
	outsider := uuid.New()

	if err := wo.AssignCrew([]uuid.UUID{a, b, a}, &outsider, t0); err == nil {
		t.Error("expected a crew lead outside the crew to be rejected")
	}
	if err := wo.AssignCrew([]uuid.UUID{a, b, a}, &a, t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if wo.CrewSize() != 2 {
		t.Errorf("expected duplicates removed, got crew of %d", wo.CrewSize())
	}

	hours := 3.5
	item := wo.LineItems()[0]
	if err := wo.UpdateLineItem(item.ID, domain.LineItemProgress{Status: domain.LineItemCompleted, ActualHours: &hours}, t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := wo.LineItems()[0]; got.Status != domain.LineItemCompleted || *got.ActualHours != 3.5 {
		t.Errorf("unexpected line item %+v", got)
	}
	if err := wo.UpdateLineItem(item.ID, domain.LineItemProgress{Status: "Done"}, t0); err == nil {
		t.Error("expected an unknown status to be rejected")
	}

	if _, err := wo.AddJournalEntry(domain.JournalIncident, "", "", nil, t0); err == nil {
		t.Error("expected a journal entry without a title to be rejected")
	}
	if _, err := wo.AddJournalEntry(domain.JournalLesson, "Rig from the east side", "", &a, t0); err != nil || len(wo.Journal) != 1 {
		t.Errorf("expected one journal entry, got %v", err)
	}
}

func TestWorkOrder_JSONRoundTripKeepsTracking(t *testing.T) {
	_, _, wo := acceptedWorkOrder(t)
	_ = wo.AddTimeEntry(uuid.New(), domain.TimeEntryTotals{Hours: 4, LaborCost: 100}, t0)

	b, err := json.Marshal(wo)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var back domain.WorkOrder
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if back.CompletionPercentage() != 20 || back.TotalLaborCost() != 100 || len(back.LineItems()) != 2 {
		t.Errorf("expected tracking preserved, got %d%% / %v / %d", back.CompletionPercentage(), back.TotalLaborCost(), len(back.LineItems()))
	}

	bad := []byte(`{"completionPercentage":150}`)
	if err := json.Unmarshal(bad, &back); err == nil {
		t.Error("expected completion above 100 to be rejected")
	}
}
