package domain

import (
	"encoding/json"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	// ProposalValidity is how long a proposal stays open after creation.
	ProposalValidity = 30 * 24 * time.Hour

	DefaultPaymentTerms = "Due on receipt"
)

// LineItemInput is the editable part of a proposal line item.
type LineItemInput struct {
	ServiceType     ServiceType `json:"serviceType"`
	Description     string      `json:"description"`
	Quantity        int         `json:"quantity"`
	UnitOfMeasure   string      `json:"unitOfMeasure"`
	UnitPrice       float64     `json:"unitPrice"`
	LaborCost       float64     `json:"laborCost"`
	EquipmentCost   float64     `json:"equipmentCost"`
	MaterialCost    float64     `json:"materialCost"`
	EstimatedHours  float64     `json:"estimatedHours"`
	TreeScorePoints *float64    `json:"treeScorePoints,omitempty"`
	TreeIDs         []uuid.UUID `json:"treeIds,omitempty"`
}

// Validate rejects inputs that would corrupt the rollups.
func (in LineItemInput) Validate() error {
	if in.ServiceType.Order() < 0 {
		return &ErrValidation{Field: "serviceType", Message: "unknown service type " + string(in.ServiceType)}
	}
	if in.Quantity < 1 {
		return &ErrValidation{Field: "quantity", Message: "must be at least 1"}
	}
	amounts := []struct {
		field string
		v     float64
	}{
		{"unitPrice", in.UnitPrice},
		{"laborCost", in.LaborCost},
		{"equipmentCost", in.EquipmentCost},
		{"materialCost", in.MaterialCost},
		{"estimatedHours", in.EstimatedHours},
	}
	for _, a := range amounts {
		if math.IsNaN(a.v) || math.IsInf(a.v, 0) || a.v < 0 {
			return &ErrValidation{Field: a.field, Message: "must be a finite non-negative number"}
		}
	}
	if in.TreeScorePoints != nil && (*in.TreeScorePoints < 0 || math.IsInf(*in.TreeScorePoints, 0) || math.IsNaN(*in.TreeScorePoints)) {
		return &ErrValidation{Field: "treeScorePoints", Message: "must be a finite non-negative number"}
	}
	return nil
}

// Order is the position in ServiceTypes, -1 when unknown.
func (s ServiceType) Order() int { return slices.Index(ServiceTypes, s) }

// ProposalLineItem is a priced line. TotalPrice is derived.
type ProposalLineItem struct {
	ID         uuid.UUID `json:"id"`
	ItemNumber int       `json:"itemNumber"`
	LineItemInput
}

// TotalPrice is quantity * unit price.
func (i ProposalLineItem) TotalPrice() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

func (i ProposalLineItem) MarshalJSON() ([]byte, error) {
	type alias ProposalLineItem
	return json.Marshal(struct {
		alias
		TotalPrice float64 `json:"totalPrice"`
	}{alias(i), i.TotalPrice()})
}

// ProposalTotals are the rollups of a line-item set.
type ProposalTotals struct {
	Subtotal           float64 `json:"subtotal"`
	TaxAmount          float64 `json:"taxAmount"`
	TotalAmount        float64 `json:"totalAmount"`
	TotalLaborCost     float64 `json:"totalLaborCost"`
	TotalEquipmentCost float64 `json:"totalEquipmentCost"`
	TotalMaterialCost  float64 `json:"totalMaterialCost"`
	TotalCost          float64 `json:"totalCost"`
	ProfitMargin       float64 `json:"profitMargin"`
	EstimatedDuration  float64 `json:"estimatedDuration"`
}

// ComputeTotals runs a full pass over items. profitMargin is 0 when there
// is no cost basis.
func ComputeTotals(items []ProposalLineItem, taxRate float64) ProposalTotals {
	var t ProposalTotals
	for _, item := range items {
		t.Subtotal += item.TotalPrice()
		t.TotalLaborCost += item.LaborCost
		t.TotalEquipmentCost += item.EquipmentCost
		t.TotalMaterialCost += item.MaterialCost
		t.EstimatedDuration += item.EstimatedHours
	}
	t.TaxAmount = t.Subtotal * taxRate
	t.TotalAmount = t.Subtotal + t.TaxAmount
	t.TotalCost = t.TotalLaborCost + t.TotalEquipmentCost + t.TotalMaterialCost
	if t.TotalCost > 0 {
		t.ProfitMargin = (t.Subtotal - t.TotalCost) / t.TotalCost
	}
	return t
}

// Proposal is a priced offer built from a lead. Line items and the tax
// rate are only reachable through the Draft-only editing methods, so the
// totals read from Totals are never stale.
type Proposal struct {
	Meta
	Number                string      `json:"proposalNumber"`
	LeadID                uuid.UUID   `json:"leadId"`
	CustomerID            *uuid.UUID  `json:"customerId,omitempty"`
	PropertyID            *uuid.UUID  `json:"propertyId,omitempty"`
	CustomerName          string      `json:"customerName"`
	CustomerPhone         string      `json:"customerPhone"`
	CustomerEmail         string      `json:"customerEmail,omitempty"`
	PropertyAddress       Address     `json:"propertyAddress"`
	AFISSMultiplier       *float64    `json:"afissMultiplier,omitempty"`
	EstimatedCrewIDs      []uuid.UUID `json:"estimatedCrewIds,omitempty"`
	EstimatedEquipmentIDs []uuid.UUID `json:"estimatedEquipmentIds,omitempty"`
	Notes                 string      `json:"notes,omitempty"`
	InternalNotes         string      `json:"internalNotes,omitempty"`

	Status         ProposalStatus `json:"status"`
	SentAt         *time.Time     `json:"sentDate,omitempty"`
	ViewedAt       *time.Time     `json:"viewedDate,omitempty"`
	AcceptedAt     *time.Time     `json:"acceptedDate,omitempty"`
	DeclinedAt     *time.Time     `json:"declinedDate,omitempty"`
	ExpirationDate time.Time      `json:"expirationDate"`
	DeclineReason  string         `json:"declineReason,omitempty"`

	PaymentTerms    string     `json:"paymentTerms"`
	DepositRequired *float64   `json:"depositRequired,omitempty"`
	DepositPaidAt   *time.Time `json:"depositPaidDate,omitempty"`

	ConvertedToWorkOrder bool       `json:"convertedToWorkOrder"`
	WorkOrderID          *uuid.UUID `json:"workOrderId,omitempty"`
	ConversionDate       *time.Time `json:"conversionDate,omitempty"`

	lineItems []ProposalLineItem
	taxRate   float64
}

// NewProposal drafts a proposal for lead.
func NewProposal(lead *Lead, items []LineItemInput, taxRate float64, paymentTerms string, now time.Time) (*Proposal, error) {
	if err := validateTaxRate(taxRate); err != nil {
		return nil, err
	}
	if paymentTerms == "" {
		paymentTerms = DefaultPaymentTerms
	}
	p := &Proposal{
		Meta:            NewMeta(now),
		Number:          documentNumber("PROP", now),
		LeadID:          lead.ID,
		CustomerID:      lead.CustomerID,
		PropertyID:      lead.PropertyID,
		CustomerName:    lead.CustomerName,
		CustomerPhone:   lead.CustomerPhone,
		CustomerEmail:   lead.CustomerEmail,
		PropertyAddress: lead.Address,
		Status:          ProposalDraft,
		ExpirationDate:  now.Add(ProposalValidity),
		PaymentTerms:    paymentTerms,
		taxRate:         taxRate,
	}
	for _, in := range items {
		if _, err := p.AddLineItem(in, now); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func validateTaxRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return &ErrValidation{Field: "taxRate", Message: "must be between 0 and 1"}
	}
	return nil
}

// LineItems returns a copy of the line items.
func (p *Proposal) LineItems() []ProposalLineItem {
	return slices.Clone(p.lineItems)
}

func (p *Proposal) TaxRate() float64 { return p.taxRate }

// Totals recomputes every rollup from the current line items.
func (p *Proposal) Totals() ProposalTotals { return ComputeTotals(p.lineItems, p.taxRate) }

func (p *Proposal) requireDraft() error {
	if p.Status != ProposalDraft {
		return &ErrConflict{Message: "proposal " + p.Number + " is " + string(p.Status) + "; only drafts can be edited"}
	}
	return nil
}

func (p *Proposal) AddLineItem(in LineItemInput, now time.Time) (ProposalLineItem, error) {
	if err := p.requireDraft(); err != nil {
		return ProposalLineItem{}, err
	}
	if err := in.Validate(); err != nil {
		return ProposalLineItem{}, err
	}
	item := ProposalLineItem{ID: uuid.New(), ItemNumber: len(p.lineItems) + 1, LineItemInput: in}
	p.lineItems = append(p.lineItems, item)
	p.touch(now)
	return item, nil
}

func (p *Proposal) UpdateLineItem(id uuid.UUID, in LineItemInput, now time.Time) error {
	if err := p.requireDraft(); err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}
	i := p.lineItemIndex(id)
	if i < 0 {
		return &ErrNotFound{Resource: "line item", ID: id.String()}
	}
	p.lineItems[i].LineItemInput = in
	p.touch(now)
	return nil
}

// RemoveLineItem drops the item and renumbers the rest.
func (p *Proposal) RemoveLineItem(id uuid.UUID, now time.Time) error {
	if err := p.requireDraft(); err != nil {
		return err
	}
	i := p.lineItemIndex(id)
	if i < 0 {
		return &ErrNotFound{Resource: "line item", ID: id.String()}
	}
	p.lineItems = slices.Delete(p.lineItems, i, i+1)
	for n := range p.lineItems {
		p.lineItems[n].ItemNumber = n + 1
	}
	p.touch(now)
	return nil
}

func (p *Proposal) SetTaxRate(rate float64, now time.Time) error {
	if err := p.requireDraft(); err != nil {
		return err
	}
	if err := validateTaxRate(rate); err != nil {
		return err
	}
	p.taxRate = rate
	p.touch(now)
	return nil
}

func (p *Proposal) lineItemIndex(id uuid.UUID) int {
	return slices.IndexFunc(p.lineItems, func(i ProposalLineItem) bool { return i.ID == id })
}

func (p *Proposal) invalid(to ProposalStatus, reason string) error {
	return &ErrInvalidTransition{Entity: "proposal", From: string(p.Status), To: string(to), Reason: reason}
}

// MarkSent moves a draft with at least one line item to Sent.
func (p *Proposal) MarkSent(now time.Time) error {
	if p.Status != ProposalDraft {
		return p.invalid(ProposalSent, "")
	}
	if len(p.lineItems) == 0 {
		return &ErrValidation{Field: "lineItems", Message: "a proposal needs at least one line item before sending"}
	}
	p.Status = ProposalSent
	p.SentAt = &now
	p.touch(now)
	return nil
}

// MarkViewed stamps the view time; status only changes from Sent.
func (p *Proposal) MarkViewed(now time.Time) {
	if p.Status == ProposalSent {
		p.Status = ProposalViewed
	}
	p.ViewedAt = &now
	p.touch(now)
}

// Open reports a proposal the customer can still act on.
func (p *Proposal) Open() bool {
	switch p.Status {
	case ProposalDraft, ProposalSent, ProposalViewed:
		return true
	}
	return false
}

// MarkAccepted accepts an open, unexpired proposal.
func (p *Proposal) MarkAccepted(now time.Time) error {
	if !p.Open() {
		return p.invalid(ProposalAccepted, "")
	}
	if now.After(p.ExpirationDate) {
		return p.invalid(ProposalAccepted, "proposal expired on "+p.ExpirationDate.Format(time.DateOnly))
	}
	if len(p.lineItems) == 0 {
		return &ErrValidation{Field: "lineItems", Message: "cannot accept a proposal without line items"}
	}
	p.Status = ProposalAccepted
	p.AcceptedAt = &now
	p.touch(now)
	return nil
}

func (p *Proposal) MarkDeclined(reason string, now time.Time) error {
	if !p.Open() {
		return p.invalid(ProposalDeclined, "")
	}
	p.Status = ProposalDeclined
	p.DeclinedAt = &now
	p.DeclineReason = reason
	p.touch(now)
	return nil
}

// Expire closes a Sent or Viewed proposal past its expiration date and
// reports whether it did.
func (p *Proposal) Expire(now time.Time) bool {
	if (p.Status != ProposalSent && p.Status != ProposalViewed) || !now.After(p.ExpirationDate) {
		return false
	}
	p.Status = ProposalExpired
	p.touch(now)
	return true
}

// RecordDeposit marks the deposit as received.
func (p *Proposal) RecordDeposit(now time.Time) error {
	if p.DepositRequired == nil {
		return &ErrConflict{Message: "proposal has no deposit requirement"}
	}
	p.DepositPaidAt = &now
	p.touch(now)
	return nil
}

// markConverted records the work order created from an accepted proposal.
func (p *Proposal) markConverted(workOrderID uuid.UUID, now time.Time) {
	p.ConvertedToWorkOrder = true
	p.WorkOrderID = &workOrderID
	p.ConversionDate = &now
	p.touch(now)
}

func (p Proposal) MarshalJSON() ([]byte, error) {
	type alias Proposal
	items := p.lineItems
	if items == nil {
		items = []ProposalLineItem{}
	}
	return json.Marshal(struct {
		alias
		LineItems []ProposalLineItem `json:"lineItems"`
		TaxRate   float64            `json:"taxRate"`
		ProposalTotals
	}{alias(p), items, p.taxRate, p.Totals()})
}

func (p *Proposal) UnmarshalJSON(b []byte) error {
	type alias Proposal
	var w struct {
		alias
		LineItems []ProposalLineItem `json:"lineItems"`
		TaxRate   float64            `json:"taxRate"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*p = Proposal(w.alias)
	p.lineItems = w.LineItems
	p.taxRate = w.TaxRate
	return nil
}
