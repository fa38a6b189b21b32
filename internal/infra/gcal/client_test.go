package gcal_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/gcal"
	"github.com/treeshop/treeshop-ops-go/internal/infra/resilience"
)

// --- Fake Calendar API ---

type fakeCalendar struct {
	mu       sync.Mutex
	requests []string
	events   map[string]calendar.Event
	failWith int
	nextID   int
}

func (f *fakeCalendar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	if f.failWith != 0 {
		writeAPIError(w, f.failWith)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/calendar/v3/calendars/"), "/")
	switch {
	case r.Method == http.MethodPost && len(parts) == 2:
		var ev calendar.Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		f.nextID++
		ev.Id = fmt.Sprintf("evt-%d", f.nextID)
		f.events[ev.Id] = ev
		_ = json.NewEncoder(w).Encode(ev)
	case r.Method == http.MethodPut && len(parts) == 3:
		if _, ok := f.events[parts[2]]; !ok {
			writeAPIError(w, http.StatusNotFound)
			return
		}
		var ev calendar.Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		ev.Id = parts[2]
		f.events[ev.Id] = ev
		_ = json.NewEncoder(w).Encode(ev)
	case r.Method == http.MethodDelete && len(parts) == 3:
		if _, ok := f.events[parts[2]]; !ok {
			writeAPIError(w, http.StatusGone)
			return
		}
		delete(f.events, parts[2])
		w.WriteHeader(http.StatusNoContent)
	default:
		writeAPIError(w, http.StatusBadRequest)
	}
}

func writeAPIError(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": http.StatusText(code)},
	})
}

func newClient(t *testing.T, fake *fakeCalendar) *gcal.Client {
	t.Helper()
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	srv, err := calendar.NewService(context.Background(),
		option.WithHTTPClient(ts.Client()),
		option.WithEndpoint(ts.URL+"/calendar/v3/"),
	)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 1}
	return gcal.New(srv, "crew@treeshop.test", resilience.NewCircuitBreaker(gcal.ServiceName), cfg, zap.NewNop())
}

func siteVisit(t *testing.T) *domain.ScheduledJob {
	t.Helper()
	leadID := uuid.New()
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	job, err := domain.NewScheduledJob(domain.ScheduleRequest{
		JobType:             domain.JobTypeSiteVisit,
		LeadID:              &leadID,
		ScheduledStart:      start,
		ScheduledEnd:        start.Add(time.Hour),
		CustomerName:        "Dana Whitfield",
		PropertyAddress:     "12 Live Oak Ln",
		ServiceTypes:        []domain.ServiceType{domain.ServiceTypes[0]},
		SpecialInstructions: "Gate code 4471",
	}, start.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return job
}

// --- Tests ---

func TestEventFor(t *testing.T) {
	job := siteVisit(t)
	ev := gcal.EventFor(job)

	if ev.Summary != "Site visit: Dana Whitfield" {
		t.Errorf("unexpected summary %q", ev.Summary)
	}
	if ev.Location != "12 Live Oak Ln" {
		t.Errorf("unexpected location %q", ev.Location)
	}
	if ev.Start.DateTime != "2026-05-04T09:00:00Z" || ev.End.DateTime != "2026-05-04T10:00:00Z" {
		t.Errorf("unexpected window %s - %s", ev.Start.DateTime, ev.End.DateTime)
	}
	if !strings.Contains(ev.Description, "Gate code 4471") || !strings.Contains(ev.Description, "Priority: Medium") {
		t.Errorf("description missing details: %q", ev.Description)
	}
	if ev.ExtendedProperties.Private["treeshop_job_id"] != job.ID.String() {
		t.Error("expected job id in private extended properties")
	}

	if err := job.Cancel("customer away", time.Now()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := gcal.EventFor(job).Summary; !strings.HasPrefix(got, "[Cancelled]") {
		t.Errorf("expected cancelled prefix, got %q", got)
	}
}

func TestPublish_InsertsThenUpdates(t *testing.T) {
	fake := &fakeCalendar{events: map[string]calendar.Event{}}
	client := newClient(t, fake)
	job := siteVisit(t)

	id, err := client.Publish(context.Background(), job)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if id == "" {
		t.Fatal("expected an event id")
	}
	job.SetCalendarEvent(id, time.Now())

	again, err := client.Publish(context.Background(), job)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if again != id {
		t.Errorf("expected update to keep id %s, got %s", id, again)
	}
	if len(fake.events) != 1 {
		t.Errorf("expected 1 event, got %d", len(fake.events))
	}
	if !strings.HasPrefix(fake.requests[1], http.MethodPut) {
		t.Errorf("expected second call to update, got %s", fake.requests[1])
	}
}

func TestPublish_RecreatesMissingEvent(t *testing.T) {
	fake := &fakeCalendar{events: map[string]calendar.Event{}}
	client := newClient(t, fake)
	job := siteVisit(t)
	job.SetCalendarEvent("deleted-by-hand", time.Now())

	id, err := client.Publish(context.Background(), job)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if id == "deleted-by-hand" || id == "" {
		t.Errorf("expected a fresh event id, got %q", id)
	}
}

func TestPublish_ClientErrorIsNotRetried(t *testing.T) {
	fake := &fakeCalendar{events: map[string]calendar.Event{}, failWith: http.StatusForbidden}
	client := newClient(t, fake)

	_, err := client.Publish(context.Background(), siteVisit(t))
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if ext.Service != gcal.ServiceName {
		t.Errorf("expected service %s, got %s", gcal.ServiceName, ext.Service)
	}
	if len(fake.requests) != 1 {
		t.Errorf("expected a single attempt, got %d", len(fake.requests))
	}
}

func TestPublish_ServerErrorIsRetried(t *testing.T) {
	fake := &fakeCalendar{events: map[string]calendar.Event{}, failWith: http.StatusServiceUnavailable}
	client := newClient(t, fake)

	if _, err := client.Publish(context.Background(), siteVisit(t)); err == nil {
		t.Fatal("expected error")
	}
	if len(fake.requests) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(fake.requests))
	}
}

func TestRemove(t *testing.T) {
	fake := &fakeCalendar{events: map[string]calendar.Event{}}
	client := newClient(t, fake)

	id, err := client.Publish(context.Background(), siteVisit(t))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := client.Remove(context.Background(), id); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(fake.events) != 0 {
		t.Errorf("expected event deleted, %d remain", len(fake.events))
	}
	if err := client.Remove(context.Background(), id); err != nil {
		t.Errorf("expected removing a gone event to succeed, got %v", err)
	}
}
