package domain

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceLine is one billed line, in cents-exact currency.
type InvoiceLine struct {
	ID                 uuid.UUID       `json:"id"`
	ProposalLineItemID *uuid.UUID      `json:"proposalLineItemId,omitempty"`
	ServiceType        ServiceType     `json:"serviceType"`
	Description        string          `json:"description"`
	Quantity           int             `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unitPrice"`
}

// Amount is quantity * unit price rounded to cents.
func (l InvoiceLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
}

func (l InvoiceLine) MarshalJSON() ([]byte, error) {
	type alias InvoiceLine
	return json.Marshal(struct {
		alias
		Amount decimal.Decimal `json:"amount"`
	}{alias(l), l.Amount()})
}

// Payment is money received against an invoice.
type Payment struct {
	ID        uuid.UUID       `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    time.Time       `json:"paidAt"`
	Method    string          `json:"method"`
	Reference string          `json:"reference,omitempty"`
}

// Invoice bills a work order. Lines and payments change only through its
// methods; every money figure is derived from them.
type Invoice struct {
	Meta
	Number         string          `json:"invoiceNumber"`
	WorkOrderID    uuid.UUID       `json:"workOrderId"`
	ProposalID     uuid.UUID       `json:"proposalId"`
	LeadID         uuid.UUID       `json:"leadId"`
	CustomerID     *uuid.UUID      `json:"customerId,omitempty"`
	PropertyID     *uuid.UUID      `json:"propertyId,omitempty"`
	CustomerName   string          `json:"customerName"`
	BillingAddress Address         `json:"billingAddress"`
	TaxRate        decimal.Decimal `json:"taxRate"`
	PaymentTerms   string          `json:"paymentTerms"`
	IssueDate      time.Time       `json:"issueDate"`
	DueDate        time.Time       `json:"dueDate"`
	Status         InvoiceStatus   `json:"status"`
	SentAt         *time.Time      `json:"sentDate,omitempty"`
	PaidAt         *time.Time      `json:"paidDate,omitempty"`
	VoidedAt       *time.Time      `json:"voidedDate,omitempty"`
	VoidReason     string          `json:"voidReason,omitempty"`
	Notes          string          `json:"notes,omitempty"`

	lines    []InvoiceLine
	payments []Payment
}

// DueDateFor resolves payment terms: "Due on receipt" is the issue date,
// "Net N" adds N days. Unrecognized terms fall due on issue.
func DueDateFor(terms string, issue time.Time) (time.Time, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(terms), "Net ")
	if !ok {
		return issue, nil
	}
	days, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || days < 0 {
		return time.Time{}, &ErrValidation{Field: "paymentTerms", Message: "expected \"Net <days>\""}
	}
	return issue.AddDate(0, 0, days), nil
}

// NewInvoiceFromWorkOrder bills the proposal's line items for wo. The work
// order must be completed, or in progress when allowIncomplete is set, and
// it carries at most one live invoice.
func NewInvoiceFromWorkOrder(wo *WorkOrder, p *Proposal, allowIncomplete bool, now time.Time) (*Invoice, error) {
	if wo.ConvertedToInvoice {
		return nil, &ErrConflict{Message: "work order " + wo.Number + " already invoiced"}
	}
	switch wo.Status {
	case WorkOrderCompleted:
	case WorkOrderInProgress:
		if !allowIncomplete {
			return nil, &ErrInvalidTransition{Entity: "work order", From: string(wo.Status), To: "invoice", Reason: "work is not completed"}
		}
	default:
		return nil, &ErrInvalidTransition{Entity: "work order", From: string(wo.Status), To: "invoice"}
	}
	if p.ID != wo.ProposalID {
		return nil, &ErrValidation{Field: "proposalId", Message: "proposal does not belong to the work order"}
	}
	due, err := DueDateFor(p.PaymentTerms, now)
	if err != nil {
		return nil, err
	}
	inv := &Invoice{
		Meta:           NewMeta(now),
		Number:         documentNumber("INV", now),
		WorkOrderID:    wo.ID,
		ProposalID:     p.ID,
		LeadID:         wo.LeadID,
		CustomerID:     wo.CustomerID,
		PropertyID:     wo.PropertyID,
		CustomerName:   wo.CustomerName,
		BillingAddress: wo.PropertyAddress,
		TaxRate:        decimal.NewFromFloat(p.TaxRate()),
		PaymentTerms:   p.PaymentTerms,
		IssueDate:      now,
		DueDate:        due,
		Status:         InvoiceDraft,
	}
	for _, item := range p.lineItems {
		id := item.ID
		inv.lines = append(inv.lines, InvoiceLine{
			ID:                 uuid.New(),
			ProposalLineItemID: &id,
			ServiceType:        item.ServiceType,
			Description:        item.Description,
			Quantity:           item.Quantity,
			UnitPrice:          decimal.NewFromFloat(item.UnitPrice).Round(2),
		})
	}
	wo.markInvoiced(inv.ID, now)
	return inv, nil
}

func (inv *Invoice) Lines() []InvoiceLine { return slices.Clone(inv.lines) }
func (inv *Invoice) Payments() []Payment { return slices.Clone(inv.payments) }

func (inv *Invoice) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range inv.lines {
		sum = sum.Add(l.Amount())
	}
	return sum
}

// TaxAmount is subtotal * rate rounded to cents.
func (inv *Invoice) TaxAmount() decimal.Decimal {
	return inv.Subtotal().Mul(inv.TaxRate).Round(2)
}

func (inv *Invoice) Total() decimal.Decimal {
	return inv.Subtotal().Add(inv.TaxAmount())
}

func (inv *Invoice) AmountPaid() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range inv.payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

func (inv *Invoice) BalanceDue() decimal.Decimal {
	return inv.Total().Sub(inv.AmountPaid())
}

// IsOverdue reports an issued invoice with a balance past its due date.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	switch inv.Status {
	case InvoiceSent, InvoicePartiallyPaid:
		return now.After(inv.DueDate) && inv.BalanceDue().IsPositive()
	}
	return false
}

// EffectiveStatus reports Overdue in place of the stored status when it applies.
func (inv *Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if inv.IsOverdue(now) {
		return InvoiceOverdue
	}
	return inv.Status
}

// LateFee charges monthlyRate on the balance for every started 30-day
// period past the due date.
func (inv *Invoice) LateFee(now time.Time, monthlyRate decimal.Decimal) decimal.Decimal {
	if !inv.IsOverdue(now) {
		return decimal.Zero
	}
	months := int64(math.Ceil(now.Sub(inv.DueDate).Hours() / (24 * 30)))
	return inv.BalanceDue().Mul(monthlyRate).Mul(decimal.NewFromInt(months)).Round(2)
}

// MarkSent issues a draft. An invoice with nothing to collect is paid on
// sending.
func (inv *Invoice) MarkSent(now time.Time) error {
	if inv.Status != InvoiceDraft {
		return &ErrInvalidTransition{Entity: "invoice", From: string(inv.Status), To: string(InvoiceSent)}
	}
	inv.Status = InvoiceSent
	inv.SentAt = &now
	if !inv.BalanceDue().IsPositive() {
		inv.Status = InvoicePaid
		inv.PaidAt = &now
	}
	inv.touch(now)
	return nil
}

// RecordPayment applies a positive payment no larger than the balance and
// reports whether the invoice is now paid in full.
func (inv *Invoice) RecordPayment(amount decimal.Decimal, method, reference string, at, now time.Time) (paidInFull bool, err error) {
	switch inv.Status {
	case InvoiceDraft, InvoiceSent, InvoicePartiallyPaid:
	default:
		return false, &ErrInvalidTransition{Entity: "invoice", From: string(inv.Status), Reason: "cannot accept payments"}
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return false, &ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}
	if amount.GreaterThan(inv.BalanceDue()) {
		return false, &ErrValidation{Field: "amount", Message: "exceeds balance due " + inv.BalanceDue().StringFixed(2)}
	}
	inv.payments = append(inv.payments, Payment{ID: uuid.New(), Amount: amount, PaidAt: at, Method: method, Reference: reference})
	if inv.BalanceDue().IsZero() {
		inv.Status = InvoicePaid
		inv.PaidAt = &at
		paidInFull = true
	} else {
		inv.Status = InvoicePartiallyPaid
	}
	inv.touch(now)
	return paidInFull, nil
}

// Void cancels an invoice that has not collected any money.
func (inv *Invoice) Void(reason string, now time.Time) error {
	if inv.Status == InvoiceVoid || inv.Status == InvoicePaid || len(inv.payments) > 0 {
		return &ErrInvalidTransition{Entity: "invoice", From: string(inv.Status), To: string(InvoiceVoid)}
	}
	inv.Status = InvoiceVoid
	inv.VoidedAt = &now
	inv.VoidReason = reason
	inv.touch(now)
	return nil
}

type invoiceAmounts struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	TaxAmount  decimal.Decimal `json:"taxAmount"`
	Total      decimal.Decimal `json:"totalAmount"`
	AmountPaid decimal.Decimal `json:"amountPaid"`
	BalanceDue decimal.Decimal `json:"balanceDue"`
}

func (inv Invoice) MarshalJSON() ([]byte, error) {
	type alias Invoice
	lines, payments := inv.lines, inv.payments
	if lines == nil {
		lines = []InvoiceLine{}
	}
	if payments == nil {
		payments = []Payment{}
	}
	return json.Marshal(struct {
		alias
		Lines    []InvoiceLine `json:"lineItems"`
		Payments []Payment     `json:"payments"`
		invoiceAmounts
	}{alias(inv), lines, payments, invoiceAmounts{
		Subtotal:   inv.Subtotal(),
		TaxAmount:  inv.TaxAmount(),
		Total:      inv.Total(),
		AmountPaid: inv.AmountPaid(),
		BalanceDue: inv.BalanceDue(),
	}})
}

func (inv *Invoice) UnmarshalJSON(b []byte) error {
	type alias Invoice
	var w struct {
		alias
		Lines    []InvoiceLine `json:"lineItems"`
		Payments []Payment     `json:"payments"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*inv = Invoice(w.alias)
	inv.lines = w.Lines
	inv.payments = w.Payments
	return nil
}
