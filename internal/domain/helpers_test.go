package domain_test

import (
	"math"
	"testing"
	"time"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
)

func nearlyEqual(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func removalItem(unitPrice float64, qty int, hours float64) domain.LineItemInput {
	return domain.LineItemInput{
		ServiceType:    domain.ServiceTreeRemoval,
		Description:    "Remove oak",
		Quantity:       qty,
		UnitOfMeasure:  "each",
		UnitPrice:      unitPrice,
		LaborCost:      unitPrice * float64(qty) * 0.4,
		EquipmentCost:  unitPrice * float64(qty) * 0.2,
		EstimatedHours: hours,
	}
}

// sentProposal returns a two-line proposal (subtotal 800 at 7% tax)
// for a lead already advanced to PROPOSAL.
func sentProposal(t *testing.T) (*domain.Lead, *domain.Proposal) {
	t.Helper()
	l := newLead(t)
	if err := l.Advance("", "user-1", t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	items := []domain.LineItemInput{removalItem(500, 1, 12), removalItem(150, 2, 8)}
	items[1].ServiceType = domain.ServiceStumpGrinding
	p, err := domain.NewProposal(l, items, 0.07, "", t0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := p.MarkSent(t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return l, p
}

func acceptedWorkOrder(t *testing.T) (*domain.Lead, *domain.Proposal, *domain.WorkOrder) {
	t.Helper()
	l, p := sentProposal(t)
	if err := p.MarkAccepted(t0.Add(time.Hour)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	wo, err := domain.NewWorkOrderFromProposal(p, domain.PriorityHigh, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return l, p, wo
}
