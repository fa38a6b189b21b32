package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
)

func completedWorkOrder(t *testing.T) (*domain.Proposal, *domain.WorkOrder) {
	t.Helper()
	_, p, wo := acceptedWorkOrder(t)
	if err := wo.StartWork(t0.Add(24 * time.Hour)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := wo.CompleteWork(t0.Add(30 * time.Hour)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return p, wo
}

func issuedInvoice(t *testing.T) *domain.Invoice {
	t.Helper()
	p, wo := completedWorkOrder(t)
	inv, err := domain.NewInvoiceFromWorkOrder(wo, p, false, t0.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return inv
}

func requireDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("expected %s %s, got %s", name, want, got)
	}
}

func TestDueDateFor(t *testing.T) {
	issue := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		terms   string
		want    time.Time
		wantErr bool
	}{
		{"Due on receipt", issue, false},
		{"Net 30", issue.AddDate(0, 0, 30), false},
		{"Net 15", issue.AddDate(0, 0, 15), false},
		{"50% deposit", issue, false},
		{"Net thirty", time.Time{}, true},
	}
	for _, tc := range cases {
		got, err := domain.DueDateFor(tc.terms, issue)
		if (err != nil) != tc.wantErr {
			t.Errorf("%q: expected error=%v, got %v", tc.terms, tc.wantErr, err)
			continue
		}
		if !tc.wantErr && !got.Equal(tc.want) {
			t.Errorf("%q: expected %v, got %v", tc.terms, tc.want, got)
		}
	}
}

func TestNewInvoiceFromWorkOrder(t *testing.T) {
	p, wo := completedWorkOrder(t)
	inv, err := domain.NewInvoiceFromWorkOrder(wo, p, false, t0.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	requireDecimal(t, "subtotal", inv.Subtotal(), "800")
	requireDecimal(t, "tax", inv.TaxAmount(), "56")
	requireDecimal(t, "total", inv.Total(), "856")
	requireDecimal(t, "balance", inv.BalanceDue(), "856")
	if len(inv.Lines()) != 2 || inv.Status != domain.InvoiceDraft {
		t.Errorf("unexpected invoice %+v", inv)
	}
	if !inv.DueDate.Equal(inv.IssueDate) {
		t.Error("expected default terms to fall due on issue")
	}
	if !wo.ConvertedToInvoice || *wo.InvoiceID != inv.ID {
		t.Error("expected work order to record its invoice")
	}

	var conflict *domain.ErrConflict
	if _, err := domain.NewInvoiceFromWorkOrder(wo, p, false, t0); !errors.As(err, &conflict) {
		t.Errorf("expected a second invoice to conflict, got %v", err)
	}
}

func TestNewInvoiceFromWorkOrder_RequiresCompletedWork(t *testing.T) {
	_, p, wo := acceptedWorkOrder(t)

	var te *domain.ErrInvalidTransition
	if _, err := domain.NewInvoiceFromWorkOrder(wo, p, false, t0); !errors.As(err, &te) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := domain.NewInvoiceFromWorkOrder(wo, p, true, t0); !errors.As(err, &te) {
		t.Fatalf("expected a scheduled work order to stay unbillable, got %v", err)
	}

	if err := wo.StartWork(t0.Add(time.Hour)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := domain.NewInvoiceFromWorkOrder(wo, p, false, t0); !errors.As(err, &te) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := domain.NewInvoiceFromWorkOrder(wo, p, true, t0); err != nil {
		t.Fatalf("expected early invoicing of work in progress, got %v", err)
	}
}

func TestNewInvoiceFromWorkOrder_OnHoldNotBillable(t *testing.T) {
	_, p, wo := acceptedWorkOrder(t)
	if err := wo.StartWork(t0.Add(time.Hour)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := wo.Hold("crane down", t0.Add(2*time.Hour)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var te *domain.ErrInvalidTransition
	if _, err := domain.NewInvoiceFromWorkOrder(wo, p, true, t0); !errors.As(err, &te) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestWorkOrder_ReleaseInvoiceAllowsRebilling(t *testing.T) {
	p, wo := completedWorkOrder(t)
	first, err := domain.NewInvoiceFromWorkOrder(wo, p, false, t0.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	wo.ReleaseInvoice(uuid.New(), t0.Add(49*time.Hour))
	if !wo.ConvertedToInvoice || *wo.InvoiceID != first.ID {
		t.Fatal("expected an unrelated invoice id to leave the link alone")
	}

	if err := first.Void("wrong address", t0.Add(49*time.Hour)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	wo.ReleaseInvoice(first.ID, t0.Add(49*time.Hour))
	if wo.ConvertedToInvoice || wo.InvoiceID != nil || wo.InvoiceCreatedAt != nil {
		t.Fatalf("expected invoice link cleared, got %+v", wo)
	}

	second, err := domain.NewInvoiceFromWorkOrder(wo, p, false, t0.Add(50*time.Hour))
	if err != nil {
		t.Fatalf("expected rebilling to succeed, got %v", err)
	}
	if second.ID == first.ID || *wo.InvoiceID != second.ID {
		t.Fatal("expected the work order to link the new invoice")
	}
}

func TestInvoice_ZeroTotalPaidOnSend(t *testing.T) {
	l := newLead(t)
	if err := l.Advance("", "user-1", t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	free := removalItem(0, 1, 2)
	free.ServiceType = domain.ServiceTreeAssessment
	p, err := domain.NewProposal(l, []domain.LineItemInput{free}, 0.07, "", t0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := p.MarkSent(t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := p.MarkAccepted(t0.Add(time.Hour)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	wo, err := domain.NewWorkOrderFromProposal(p, domain.PriorityLow, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	_ = wo.StartWork(t0.Add(2 * time.Hour))
	_ = wo.CompleteWork(t0.Add(3 * time.Hour))

	inv, err := domain.NewInvoiceFromWorkOrder(wo, p, false, t0.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	requireDecimal(t, "total", inv.Total(), "0")

	if err := inv.MarkSent(t0.Add(4 * time.Hour)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if inv.Status != domain.InvoicePaid || inv.PaidAt == nil || inv.SentAt == nil {
		t.Fatalf("expected a zero-total invoice to be paid on sending, got %s", inv.Status)
	}
}

func TestRecordPayment(t *testing.T) {
	inv := issuedInvoice(t)
	if err := inv.MarkSent(t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	full, err := inv.RecordPayment(decimal.RequireFromString("400.004"), "check", "1021", t0, t0)
	if err != nil || full {
		t.Fatalf("expected partial payment, got %v / %v", full, err)
	}
	if inv.Status != domain.InvoicePartiallyPaid {
		t.Errorf("expected Partially Paid, got %s", inv.Status)
	}
	requireDecimal(t, "balance", inv.BalanceDue(), "456")

	if _, err := inv.RecordPayment(decimal.RequireFromString("456.01"), "card", "", t0, t0); err == nil {
		t.Error("expected overpayment to be rejected")
	}
	if _, err := inv.RecordPayment(decimal.Zero, "card", "", t0, t0); err == nil {
		t.Error("expected zero payment to be rejected")
	}

	full, err = inv.RecordPayment(decimal.RequireFromString("456"), "card", "", t0, t0)
	if err != nil || !full {
		t.Fatalf("expected payment in full, got %v / %v", full, err)
	}
	if inv.Status != domain.InvoicePaid || inv.PaidAt == nil || len(inv.Payments()) != 2 {
		t.Errorf("unexpected paid invoice %+v", inv)
	}
	if err := inv.Void("", t0); err == nil {
		t.Error("expected voiding a paid invoice to fail")
	}
}

func TestInvoice_OverdueAndLateFee(t *testing.T) {
	inv := issuedInvoice(t)
	rate := decimal.RequireFromString("0.015")

	if inv.IsOverdue(inv.DueDate.Add(time.Hour)) {
		t.Fatal("expected a draft invoice never to be overdue")
	}
	_ = inv.MarkSent(inv.IssueDate)

	if !inv.LateFee(inv.DueDate, rate).IsZero() {
		t.Error("expected no fee on the due date")
	}
	oneDay := inv.DueDate.Add(24 * time.Hour)
	if inv.EffectiveStatus(oneDay) != domain.InvoiceOverdue {
		t.Errorf("expected Overdue, got %s", inv.EffectiveStatus(oneDay))
	}
	requireDecimal(t, "one-period fee", inv.LateFee(oneDay, rate), "12.84")
	requireDecimal(t, "two-period fee", inv.LateFee(inv.DueDate.Add(31*24*time.Hour), rate), "25.68")
}

func TestInvoice_Void(t *testing.T) {
	inv := issuedInvoice(t)
	if err := inv.Void("billed wrong customer", t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := inv.RecordPayment(decimal.NewFromInt(10), "cash", "", t0, t0); err == nil {
		t.Error("expected payments on a void invoice to be rejected")
	}
	if inv.IsOverdue(inv.DueDate.Add(90 * 24 * time.Hour)) {
		t.Error("expected a void invoice never to be overdue")
	}
}

func TestInvoice_JSON(t *testing.T) {
	inv := issuedInvoice(t)
	_, _ = inv.RecordPayment(decimal.NewFromInt(100), "cash", "", t0, t0)

	b, err := json.Marshal(inv)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(b, &raw)
	if raw["balanceDue"] != "756" {
		t.Errorf("expected balanceDue \"756\", got %v", raw["balanceDue"])
	}

	var back domain.Invoice
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	requireDecimal(t, "decoded balance", back.BalanceDue(), "756")
}
