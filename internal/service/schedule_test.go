package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/service"
)

// --- Mocks ---

type mockCalendar struct {
	published []uuid.UUID
	removed   []string
	err       error
}

func (m *mockCalendar) Publish(_ context.Context, job *domain.ScheduledJob) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.published = append(m.published, job.ID)
	return "evt-" + job.ID.String()[:8], nil
}

func (m *mockCalendar) Remove(_ context.Context, eventID string) error {
	if m.err != nil {
		return m.err
	}
	m.removed = append(m.removed, eventID)
	return nil
}

func newScheduleService(h *harness, cal *mockCalendar) *service.ScheduleService {
	var svc *service.ScheduleService
	if cal == nil {
		svc = service.NewScheduleService(h.repos, nil, h.metrics, zap.NewNop())
	} else {
		svc = service.NewScheduleService(h.repos, cal, h.metrics, zap.NewNop())
	}
	svc.SetClock(h.clock.Now)
	return svc
}

// --- Tests ---

func TestSchedule_SiteVisitLinksLeadAndPublishes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	cal := &mockCalendar{}
	svc := newScheduleService(h, cal)
	lead := h.lead(t, nil)

	start := t0.Add(24 * time.Hour)
	job, err := svc.Create(ctx, domain.ScheduleRequest{
		JobType:        domain.JobTypeSiteVisit,
		LeadID:         &lead.ID,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if job.CustomerName != "Dana Whitfield" || job.PropertyAddress == "" {
		t.Fatalf("expected details filled from the lead, got %q / %q", job.CustomerName, job.PropertyAddress)
	}
	if job.CalendarEventID == "" || len(cal.published) != 1 {
		t.Fatalf("expected one calendar publish, got %d (event %q)", len(cal.published), job.CalendarEventID)
	}
	stored, _ := svc.Get(ctx, job.ID)
	if stored.CalendarEventID != job.CalendarEventID {
		t.Fatalf("expected event id stored, got %q", stored.CalendarEventID)
	}

	lead, _ = h.leads.Get(ctx, lead.ID)
	if lead.SiteVisit.ScheduledJobID == nil || *lead.SiteVisit.ScheduledJobID != job.ID {
		t.Fatal("expected site visit linked to the job")
	}

	h.clock.Advance(24 * time.Hour)
	if _, err := svc.Start(ctx, job.ID, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(45 * time.Minute)
	done, err := svc.Complete(ctx, job.ID, "two oaks over the roof", nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.JobCompleted || done.ActualDuration == nil || !near(*done.ActualDuration, 0.75) {
		t.Fatalf("expected completed job of 0.75h, got %s", done.Status)
	}
	lead, _ = h.leads.Get(ctx, lead.ID)
	if lead.SiteVisit.CompletedAt == nil || lead.SiteVisit.Notes != "two oaks over the roof" {
		t.Fatalf("expected site visit completed on the lead, got %+v", lead.SiteVisit)
	}
}

func TestSchedule_CalendarFailureDoesNotBlockBooking(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	cal := &mockCalendar{err: errors.New("calendar unavailable")}
	svc := newScheduleService(h, cal)
	lead := h.lead(t, nil)

	start := t0.Add(2 * time.Hour)
	job, err := svc.Create(ctx, domain.ScheduleRequest{
		JobType:        domain.JobTypeSiteVisit,
		LeadID:         &lead.ID,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("expected booking to succeed, got %v", err)
	}
	if job.CalendarEventID != "" {
		t.Fatalf("expected no event id, got %q", job.CalendarEventID)
	}
	if _, err := svc.Cancel(ctx, job.ID, "customer away", nil); err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}
}

func TestSchedule_CancelRemovesCalendarEvent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	cal := &mockCalendar{}
	svc := newScheduleService(h, cal)
	lead := h.lead(t, nil)

	start := t0.Add(2 * time.Hour)
	job, err := svc.Create(ctx, domain.ScheduleRequest{
		JobType:        domain.JobTypeSiteVisit,
		LeadID:         &lead.ID,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	job, err = svc.Cancel(ctx, job.ID, "rain", nil)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if job.Status != domain.JobCancelled || len(cal.removed) != 1 || cal.removed[0] != job.CalendarEventID {
		t.Fatalf("expected cancelled job and removed event, got %s / %v", job.Status, cal.removed)
	}
	if _, err := svc.Reschedule(ctx, job.ID, start.Add(time.Hour), start.Add(2*time.Hour), nil); err == nil {
		t.Fatal("expected rescheduling a cancelled job to fail")
	}
}

func TestSchedule_WorkJobPricesCrew(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := newScheduleService(h, nil)
	lead := h.lead(t, nil)
	p, err := h.proposals.Create(ctx, service.ProposalRequest{LeadID: lead.ID, LineItems: removalItems()}, "office")
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	_, wo, err := h.proposals.Accept(ctx, p.ID, "", "office", nil)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	start := t0.Add(48 * time.Hour)
	job, err := svc.Create(ctx, domain.ScheduleRequest{
		JobType:        domain.JobTypeWork,
		WorkOrderID:    &wo.ID,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(8 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.LeadID == nil || *job.LeadID != lead.ID || job.ProposalID == nil || *job.ProposalID != p.ID {
		t.Fatal("expected lead and proposal filled from the work order")
	}

	a, b := h.climber(t, "Luis"), h.climber(t, "Ana")
	job, err = svc.AssignCrew(ctx, job.ID, service.CrewAssignment{EmployeeIDs: []uuid.UUID{a.ID, b.ID}, CrewLeadID: &a.ID}, nil)
	if err != nil {
		t.Fatalf("assign crew: %v", err)
	}
	want := a.Compensation().TrueBusinessCost + b.Compensation().TrueBusinessCost
	if !near(job.CrewHourlyCost, want) || !near(job.TotalEstimatedCost(), want*8) {
		t.Fatalf("expected crew cost %v/hr, got %v", want, job.CrewHourlyCost)
	}

	wo, _ = h.orders.Get(ctx, wo.ID)
	if wo.ScheduledJobID == nil || *wo.ScheduledJobID != job.ID {
		t.Fatal("expected work order linked to the job")
	}
}

func TestSchedule_UnknownLeadIsReferenceError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := newScheduleService(h, nil)
	missing := uuid.New()

	_, err := svc.Create(ctx, domain.ScheduleRequest{
		JobType:        domain.JobTypeSiteVisit,
		LeadID:         &missing,
		ScheduledStart: t0,
		ScheduledEnd:   t0.Add(time.Hour),
	})
	var ref *domain.ErrReferenceMissing
	if !errors.As(err, &ref) {
		t.Fatalf("expected ErrReferenceMissing, got %v", err)
	}
}
