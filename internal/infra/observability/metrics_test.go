package observability_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrStageTransition(domain.StageLead, domain.StageProposal)
	m.IncrStageTransition(domain.StageLead, domain.StageProposal)
	m.IncrProposalOutcome(domain.ProposalAccepted)
	m.IncrCalculationError("equipment")
	m.IncrVersionConflict(domain.KindLead)
	m.IncrExternalError("google-calendar")
	m.IncrCacheHit("reports")
	m.IncrCacheHit("reports")
	m.IncrCacheHit("reports")
	m.IncrCacheMiss("reports")
	m.RecordDuration("LeadService.Create", 20*time.Millisecond)
	m.RecordDuration("LeadService.Advance", 40*time.Millisecond)

	snap := m.Snapshot("reports", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	if got := snap.StageTransitions["LEAD->PROPOSAL"]; got != 2 {
		t.Errorf("expected 2 LEAD->PROPOSAL transitions, got %v", got)
	}
	if got := snap.ProposalOutcomes[string(domain.ProposalAccepted)]; got != 1 {
		t.Errorf("expected 1 accepted proposal, got %v", got)
	}
	if snap.CalculationErrors["equipment"] != 1 || snap.VersionConflicts[domain.KindLead] != 1 || snap.ExternalErrors["google-calendar"] != 1 {
		t.Errorf("unexpected counters %+v", snap)
	}
	if snap.CacheHitRate != 0.75 {
		t.Errorf("expected hit rate 0.75, got %v", snap.CacheHitRate)
	}
	if snap.OperationCount != 2 {
		t.Errorf("expected 2 operations, got %d", snap.OperationCount)
	}
	if snap.AvgOperationMs < 29.9 || snap.AvgOperationMs > 30.1 {
		t.Errorf("expected ~30ms average, got %v", snap.AvgOperationMs)
	}
	if snap.CollectedAt != "2025-03-10T09:00:00Z" {
		t.Errorf("unexpected collectedAt %s", snap.CollectedAt)
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := observability.NewMetrics()
	b := observability.NewMetrics()

	a.IncrVersionConflict(domain.KindProposal)

	if got := b.Snapshot("reports", time.Now()).VersionConflicts[domain.KindProposal]; got != 0 {
		t.Errorf("expected registries to be independent, got %v", got)
	}
}

func TestZapLoggerMiddleware_PassesStatus(t *testing.T) {
	h := observability.ZapLoggerMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/leads", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("expected 418, got %d", rec.Code)
	}
}
