package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newLead(t *testing.T) *domain.Lead {
	t.Helper()
	l, err := domain.NewLead(domain.LeadDetails{
		CustomerName:  "Dana Reyes",
		CustomerPhone: "555-0142",
		Address:       domain.Address{Street: "12 Oak Lane", City: "Ocala", State: "FL", Zip: "34470"},
		ServiceTypes:  []domain.ServiceType{domain.ServiceTreeRemoval},
		Source:        domain.SourceReferral,
	}, "user-1", t0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return l
}

func requireLastStage(t *testing.T, l *domain.Lead) {
	t.Helper()
	h := l.History()
	if len(h) == 0 {
		t.Fatal("expected non-empty history")
	}
	if h[len(h)-1].To != l.Stage() {
		t.Fatalf("expected stage %s to match last transition %s", l.Stage(), h[len(h)-1].To)
	}
}

func TestNewLead_Defaults(t *testing.T) {
	l := newLead(t)

	if l.Stage() != domain.StageLead {
		t.Errorf("expected LEAD, got %s", l.Stage())
	}
	h := l.History()
	if len(h) != 1 || h[0].From != nil || h[0].Kind != domain.TransitionCreated {
		t.Errorf("expected a single creation record, got %+v", h)
	}
	if l.NextFollowUpDate == nil || !l.NextFollowUpDate.Equal(t0.Add(24*time.Hour)) {
		t.Errorf("expected follow-up one day after intake, got %v", l.NextFollowUpDate)
	}
	if l.Urgency != domain.UrgencyMedium || l.PreferredContact != domain.ContactPhone {
		t.Errorf("expected MEDIUM/PHONE defaults, got %s/%s", l.Urgency, l.PreferredContact)
	}
	if !l.IsActive || l.IsConverted {
		t.Error("expected an active, unconverted lead")
	}
}

func TestNewLead_RequiresName(t *testing.T) {
	_, err := domain.NewLead(domain.LeadDetails{}, "", t0)
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) || ve.Field != "customerName" {
		t.Fatalf("expected validation error on customerName, got %v", err)
	}
}

func TestAdvance_WalksThePipeline(t *testing.T) {
	l := newLead(t)

	if err := l.Advance("called back", "user-1", t0.Add(time.Hour)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if l.Stage() != domain.StageProposal || !l.IsConverted || len(l.History()) != 2 {
		t.Fatalf("expected PROPOSAL, converted, 2 records; got %s, %v, %d", l.Stage(), l.IsConverted, len(l.History()))
	}
	requireLastStage(t, l)

	for _, want := range []domain.WorkflowStage{domain.StageWorkOrder, domain.StageInvoice, domain.StageCompleted} {
		if err := l.Advance("", "user-1", t0.Add(2*time.Hour)); err != nil {
			t.Fatalf("expected no error advancing to %s, got %v", want, err)
		}
		if l.Stage() != want {
			t.Fatalf("expected %s, got %s", want, l.Stage())
		}
		requireLastStage(t, l)
	}

	last := l.History()[len(l.History())-1]
	if *last.From != domain.StageInvoice || last.Kind != domain.TransitionStage {
		t.Errorf("unexpected last record %+v", last)
	}
}

func TestAdvance_TerminalStageIsRejected(t *testing.T) {
	l := newLead(t)
	if err := l.SetStage(domain.StageCompleted, "closed by phone", "admin", t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	before := len(l.History())

	err := l.Advance("", "user-1", t0)
	var te *domain.ErrInvalidTransition
	if !errors.As(err, &te) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if len(l.History()) != before {
		t.Error("expected history untouched after a rejected transition")
	}
}

func TestAdvance_ArchivedLeadIsRejected(t *testing.T) {
	l := newLead(t)
	if err := l.Archive("went with competitor", t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var te *domain.ErrInvalidTransition
	if err := l.Advance("", "", t0); !errors.As(err, &te) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestSetStage_AdminOverrideAppendsHistory(t *testing.T) {
	l := newLead(t)

	if err := l.SetStage(domain.StageInvoice, "imported", "admin", t0.Add(time.Minute)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	h := l.History()
	if len(h) != 2 {
		t.Fatalf("expected 2 records, got %d", len(h))
	}
	if h[1].Kind != domain.TransitionAdminOverride || h[1].Notes != "imported" || h[1].Actor != "admin" {
		t.Errorf("unexpected override record %+v", h[1])
	}
	if !l.IsConverted {
		t.Error("expected a lead jumped past PROPOSAL to count as converted")
	}

	// Jumping backwards is allowed for admins and never unsets conversion.
	if err := l.SetStage(domain.StageLead, "", "admin", t0.Add(2*time.Minute)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	requireLastStage(t, l)
	if !l.IsConverted {
		t.Error("expected isConverted to stay set")
	}

	if err := l.SetStage("CLOSED", "", "admin", t0); err == nil {
		t.Error("expected an unknown stage to be rejected")
	}
}

func TestAdvanceTo(t *testing.T) {
	l := newLead(t)

	if err := l.AdvanceTo(domain.StageLead, "", "", t0); err != nil {
		t.Fatalf("expected no-op at current stage, got %v", err)
	}
	if len(l.History()) != 1 {
		t.Fatal("expected no history for a no-op")
	}
	if err := l.AdvanceTo(domain.StageInvoice, "", "", t0); err == nil {
		t.Fatal("expected skipping ahead to be rejected")
	}
	if err := l.AdvanceTo(domain.StageProposal, "", "", t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestHistory_IsACopy(t *testing.T) {
	l := newLead(t)
	h := l.History()
	h[0].To = domain.StageCompleted
	if l.Stage() != domain.StageLead {
		t.Fatal("expected the lead to be unaffected by edits to the returned history")
	}
}

func TestLead_JSONCarriesDerivedStage(t *testing.T) {
	l := newLead(t)
	_ = l.Advance("", "user-1", t0)

	b, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(b, &raw)
	if raw["workflowStage"] != "PROPOSAL" {
		t.Errorf("expected workflowStage PROPOSAL, got %v", raw["workflowStage"])
	}

	var back domain.Lead
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if back.Stage() != domain.StageProposal || len(back.History()) != 2 || back.ID != l.ID {
		t.Errorf("expected decoded lead to keep stage and history, got %s/%d", back.Stage(), len(back.History()))
	}
}

func TestLead_JSONRejectsInconsistentStage(t *testing.T) {
	doc := `{"id":"6f1c1f4e-6a0b-4f43-9a53-58e1bb1f4c11","customerName":"x","workflowStage":"INVOICE",
		"stageHistory":[{"toStage":"LEAD","timestamp":"2025-01-01T00:00:00Z","kind":"CREATED"}]}`
	var l domain.Lead
	if err := json.Unmarshal([]byte(doc), &l); err == nil {
		t.Fatal("expected a stage that disagrees with history to be rejected")
	}

	unknown := `{"customerName":"x","urgency":"SOMEDAY",
		"stageHistory":[{"toStage":"LEAD","timestamp":"2025-01-01T00:00:00Z","kind":"CREATED"}]}`
	if err := json.Unmarshal([]byte(unknown), &l); err == nil {
		t.Fatal("expected an unknown enum value to be rejected")
	}
}

func TestRecordContactAndOverdue(t *testing.T) {
	l := newLead(t)
	now := t0.Add(48 * time.Hour)
	if !l.Overdue(now) {
		t.Fatal("expected lead past its default follow-up to be overdue")
	}

	next := now.Add(72 * time.Hour)
	l.RecordContact(now, "left voicemail", &next, now)
	if l.AttemptCount != 1 || l.LastContactDate == nil || l.FollowUpNotes != "left voicemail" {
		t.Errorf("unexpected contact bookkeeping: %+v", l)
	}
	if l.Overdue(now) {
		t.Error("expected rescheduled follow-up to clear overdue")
	}

	_ = l.Archive("", now)
	if l.Overdue(next.Add(time.Hour)) {
		t.Error("expected archived leads never to be overdue")
	}
}

func TestSiteVisit(t *testing.T) {
	l := newLead(t)
	if l.SiteVisit.Pending() {
		t.Fatal("expected no pending visit by default")
	}
	if err := l.ScheduleSiteVisit(t0.Add(24*time.Hour), nil, nil, t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !l.SiteVisit.Pending() {
		t.Fatal("expected scheduled visit to be pending")
	}
	if err := l.CompleteSiteVisit(t0.Add(25*time.Hour), "two oaks over the garage", t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if l.SiteVisit.Pending() {
		t.Error("expected completed visit not to be pending")
	}
	if err := l.CompleteSiteVisit(t0, "", t0); err == nil {
		t.Error("expected completing twice to fail")
	}
}

func TestLeadQueries(t *testing.T) {
	a := newLead(t)
	b := newLead(t)
	b.CustomerName = "Lee Park"
	b.CustomerPhone = "555-9000"
	b.Source = domain.SourceGoogle
	b.Urgency = domain.UrgencyHigh
	_ = b.Advance("", "", t0)
	c := newLead(t)
	_ = c.Archive("duplicate", t0)

	contacted := t0.Add(2 * time.Hour)
	a.RecordContact(contacted, "", nil, contacted)
	b.RecordContact(t0.Add(4*time.Hour), "", nil, t0.Add(4*time.Hour))

	leads := []*domain.Lead{a, b, c}
	now := t0.Add(time.Hour)

	proposal := domain.StageProposal
	if got := domain.FilterLeads(leads, domain.LeadFilter{Stage: &proposal}, now); len(got) != 1 || got[0] != b {
		t.Errorf("expected only b at PROPOSAL, got %d", len(got))
	}
	if got := domain.FilterLeads(leads, domain.LeadFilter{ActiveOnly: true}, now); len(got) != 2 {
		t.Errorf("expected 2 active leads, got %d", len(got))
	}
	high := domain.UrgencyHigh
	if got := domain.FilterLeads(leads, domain.LeadFilter{Urgency: &high}, now); len(got) != 1 {
		t.Errorf("expected 1 high-urgency lead, got %d", len(got))
	}

	queries := map[string]int{
		"":         3,
		"dana":     2,
		"OAK LANE": 3,
		"9000":     1,
		"nobody":   0,
	}
	for q, want := range queries {
		if got := domain.FilterLeads(leads, domain.LeadFilter{Query: q}, now); len(got) != want {
			t.Errorf("query %q: expected %d, got %d", q, want, len(got))
		}
	}

	if rate := domain.ConversionRate(leads); rate < 33.33 || rate > 33.34 {
		t.Errorf("expected conversion rate 33.33, got %f", rate)
	}
	avg, ok := domain.AverageResponseTime(leads)
	if !ok || avg != 3*time.Hour {
		t.Errorf("expected 3h average response, got %v (%v)", avg, ok)
	}
	if _, ok := domain.AverageResponseTime(nil); ok {
		t.Error("expected no average without contacts")
	}

	stats := domain.ComputeLeadStats(leads, now)
	if stats.Total != 3 || stats.Active != 2 || stats.ByStage[domain.StageLead] != 2 || stats.BySource[domain.SourceReferral] != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.ByStage[domain.StageCompleted] != 0 {
		t.Error("expected every stage present in the breakdown")
	}
}
