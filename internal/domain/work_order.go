package domain

import (
	"encoding/json"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
)

// WorkOrderLineItem is a proposal line carried into execution with
// actual-versus-estimate tracking.
type WorkOrderLineItem struct {
	ID                 uuid.UUID      `json:"id"`
	ProposalLineItemID uuid.UUID      `json:"proposalLineItemId"`
	ServiceType        ServiceType    `json:"serviceType"`
	Description        string         `json:"description"`
	EstimatedHours     float64        `json:"estimatedHours"`
	EstimatedCost      float64        `json:"estimatedCost"`
	ActualHours        *float64       `json:"actualHours,omitempty"`
	ActualCost         *float64       `json:"actualCost,omitempty"`
	Status             LineItemStatus `json:"status"`
	AssignedTo         []uuid.UUID    `json:"assignedToEmployeeIds,omitempty"`
	TreeScorePoints    *float64       `json:"treeScorePoints,omitempty"`
	TreeIDs            []uuid.UUID    `json:"treeIds,omitempty"`
}

// WorkOrderLineItemFrom maps a proposal line: the estimate is carried
// over, actuals are reset and the status starts at Pending.
func WorkOrderLineItemFrom(item ProposalLineItem) WorkOrderLineItem {
	return WorkOrderLineItem{
		ID:                 uuid.New(),
		ProposalLineItemID: item.ID,
		ServiceType:        item.ServiceType,
		Description:        item.Description,
		EstimatedHours:     item.EstimatedHours,
		EstimatedCost:      item.TotalPrice(),
		Status:             LineItemPending,
		TreeScorePoints:    item.TreeScorePoints,
		TreeIDs:            slices.Clone(item.TreeIDs),
	}
}

// LineItemProgress updates execution data on one work order line.
type LineItemProgress struct {
	Status      LineItemStatus `json:"status"`
	ActualHours *float64       `json:"actualHours,omitempty"`
	ActualCost  *float64       `json:"actualCost,omitempty"`
	AssignedTo  []uuid.UUID    `json:"assignedToEmployeeIds,omitempty"`
}

// JournalEntry is a project note captured on site.
type JournalEntry struct {
	ID          uuid.UUID        `json:"id"`
	At          time.Time        `json:"timestamp"`
	Type        JournalEntryType `json:"entryType"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	AuthorID    *uuid.UUID       `json:"authorId,omitempty"`
}

// WorkOrder executes an accepted proposal. Time tracking totals and the
// completion percentage only move through AddTimeEntry and CompleteWork.
type WorkOrder struct {
	Meta
	Number          string        `json:"workOrderNumber"`
	ProposalID      uuid.UUID     `json:"proposalId"`
	LeadID          uuid.UUID     `json:"leadId"`
	CustomerID      *uuid.UUID    `json:"customerId,omitempty"`
	PropertyID      *uuid.UUID    `json:"propertyId,omitempty"`
	CustomerName    string        `json:"customerName"`
	CustomerPhone   string        `json:"customerPhone"`
	PropertyAddress Address       `json:"propertyAddress"`
	JobDescription  string        `json:"jobDescription"`
	ServiceTypes    []ServiceType `json:"serviceTypes"`

	ScheduledDate     *time.Time `json:"scheduledDate,omitempty"`
	ScheduledJobID    *uuid.UUID `json:"scheduledJobId,omitempty"`
	ActualStart       *time.Time `json:"actualStartDate,omitempty"`
	ActualEnd         *time.Time `json:"actualEndDate,omitempty"`
	EstimatedDuration float64    `json:"estimatedDuration"`
	ActualDuration    *float64   `json:"actualDuration,omitempty"`

	AssignedEmployeeIDs  []uuid.UUID `json:"assignedEmployeeIds"`
	CrewLeadID           *uuid.UUID  `json:"crewLeadId,omitempty"`
	AssignedEquipmentIDs []uuid.UUID `json:"assignedEquipmentIds"`

	Status          WorkOrderStatus `json:"status"`
	Priority        Priority        `json:"priority"`
	HoldReason      string          `json:"holdReason,omitempty"`
	CancelReason    string          `json:"cancelReason,omitempty"`
	Hazards         []string        `json:"hazardsIdentified,omitempty"`
	SafetyProtocols []string        `json:"safetyProtocols,omitempty"`
	RequiredPPE     []string        `json:"requiredPPE,omitempty"`
	Journal         []JournalEntry  `json:"journalEntries"`
	EstimatedPpH    *float64        `json:"estimatedPpH,omitempty"`

	ConvertedToInvoice bool       `json:"convertedToInvoice"`
	InvoiceID          *uuid.UUID `json:"invoiceId,omitempty"`
	InvoiceCreatedAt   *time.Time `json:"invoiceCreatedDate,omitempty"`

	lineItems []WorkOrderLineItem
	tracking  timeTracking
}

type timeTracking struct {
	TimeEntryIDs         []uuid.UUID `json:"timeEntryIds"`
	TotalHoursTracked    float64     `json:"totalHoursTracked"`
	TotalLaborCost       float64     `json:"totalLaborCost"`
	TotalEquipmentCost   float64     `json:"totalEquipmentCost"`
	PointsCompleted      float64     `json:"pointsCompleted"`
	CompletionPercentage int         `json:"completionPercentage"`
}

// NewWorkOrderFromProposal converts an accepted proposal and records the
// conversion on it. A proposal converts at most once.
func NewWorkOrderFromProposal(p *Proposal, priority Priority, now time.Time) (*WorkOrder, error) {
	if p.Status != ProposalAccepted {
		return nil, &ErrInvalidTransition{Entity: "proposal", From: string(p.Status), To: "work order", Reason: "only accepted proposals convert"}
	}
	if p.ConvertedToWorkOrder {
		return nil, &ErrConflict{Message: "proposal " + p.Number + " already converted to a work order"}
	}
	if priority == "" {
		priority = PriorityMedium
	}
	wo := &WorkOrder{
		Meta:                 NewMeta(now),
		Number:               documentNumber("WO", now),
		ProposalID:           p.ID,
		LeadID:               p.LeadID,
		CustomerID:           p.CustomerID,
		PropertyID:           p.PropertyID,
		CustomerName:         p.CustomerName,
		CustomerPhone:        p.CustomerPhone,
		PropertyAddress:      p.PropertyAddress,
		JobDescription:       "Work Order from Proposal " + p.Number,
		EstimatedDuration:    p.Totals().EstimatedDuration,
		AssignedEmployeeIDs:  slices.Clone(p.EstimatedCrewIDs),
		AssignedEquipmentIDs: slices.Clone(p.EstimatedEquipmentIDs),
		Status:               WorkOrderScheduled,
		Priority:             priority,
		Journal:              []JournalEntry{},
	}
	for _, item := range p.lineItems {
		wo.lineItems = append(wo.lineItems, WorkOrderLineItemFrom(item))
		if !slices.Contains(wo.ServiceTypes, item.ServiceType) {
			wo.ServiceTypes = append(wo.ServiceTypes, item.ServiceType)
		}
	}
	p.markConverted(wo.ID, now)
	return wo, nil
}

func (w *WorkOrder) LineItems() []WorkOrderLineItem { return slices.Clone(w.lineItems) }

func (w *WorkOrder) TimeEntryIDs() []uuid.UUID { return slices.Clone(w.tracking.TimeEntryIDs) }
func (w *WorkOrder) TotalHoursTracked() float64 { return w.tracking.TotalHoursTracked }
func (w *WorkOrder) TotalLaborCost() float64 { return w.tracking.TotalLaborCost }
func (w *WorkOrder) TotalEquipmentCost() float64 { return w.tracking.TotalEquipmentCost }
func (w *WorkOrder) CompletionPercentage() int { return w.tracking.CompletionPercentage }
func (w *WorkOrder) CrewSize() int { return len(w.AssignedEmployeeIDs) }

// EstimatedTotalCost sums the line-item estimates.
func (w *WorkOrder) EstimatedTotalCost() float64 {
	total := 0.0
	for _, item := range w.lineItems {
		total += item.EstimatedCost
	}
	return total
}

// ActualTotalCost is labor plus equipment; ok is false before any time is logged.
func (w *WorkOrder) ActualTotalCost() (cost float64, ok bool) {
	if len(w.tracking.TimeEntryIDs) == 0 {
		return 0, false
	}
	return w.tracking.TotalLaborCost + w.tracking.TotalEquipmentCost, true
}

// ActualPpH is points completed per tracked hour.
func (w *WorkOrder) ActualPpH() (pph float64, ok bool) {
	if w.tracking.TotalHoursTracked <= 0 {
		return 0, false
	}
	return w.tracking.PointsCompleted / w.tracking.TotalHoursTracked, true
}

// TimeEntryTotals is what a completed time entry contributes to its work order.
type TimeEntryTotals struct {
	Hours         float64
	LaborCost     float64
	EquipmentCost float64
	Points        float64
}

// AddTimeEntry folds a completed time entry into the tracked totals and
// recomputes completion. A zero estimated duration leaves completion alone.
func (w *WorkOrder) AddTimeEntry(id uuid.UUID, t TimeEntryTotals, now time.Time) error {
	if w.Status == WorkOrderCancelled {
		return &ErrInvalidTransition{Entity: "work order", From: string(w.Status), Reason: "cannot track time on a cancelled work order"}
	}
	if slices.Contains(w.tracking.TimeEntryIDs, id) {
		return &ErrConflict{Message: "time entry " + id.String() + " already recorded"}
	}
	for field, v := range map[string]float64{"hours": t.Hours, "laborCost": t.LaborCost, "equipmentCost": t.EquipmentCost, "points": t.Points} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return &ErrValidation{Field: field, Message: "must be a finite non-negative number"}
		}
	}
	w.tracking.TimeEntryIDs = append(w.tracking.TimeEntryIDs, id)
	w.tracking.TotalHoursTracked += t.Hours
	w.tracking.TotalLaborCost += t.LaborCost
	w.tracking.TotalEquipmentCost += t.EquipmentCost
	w.tracking.PointsCompleted += t.Points
	if w.EstimatedDuration > 0 {
		pct := int(math.Min(100, math.Round(w.tracking.TotalHoursTracked/w.EstimatedDuration*100)))
		w.tracking.CompletionPercentage = max(w.tracking.CompletionPercentage, pct)
	}
	w.touch(now)
	return nil
}

func (w *WorkOrder) transitionError(to WorkOrderStatus) error {
	return &ErrInvalidTransition{Entity: "work order", From: string(w.Status), To: string(to)}
}

// StartWork begins (or resumes from hold) a scheduled job.
func (w *WorkOrder) StartWork(now time.Time) error {
	if w.Status != WorkOrderScheduled && w.Status != WorkOrderOnHold {
		return w.transitionError(WorkOrderInProgress)
	}
	w.Status = WorkOrderInProgress
	w.HoldReason = ""
	if w.ActualStart == nil {
		w.ActualStart = &now
	}
	w.touch(now)
	return nil
}

// CompleteWork closes the job at 100% and measures its wall-clock duration.
func (w *WorkOrder) CompleteWork(now time.Time) error {
	if w.Status != WorkOrderInProgress {
		return w.transitionError(WorkOrderCompleted)
	}
	w.Status = WorkOrderCompleted
	w.ActualEnd = &now
	w.tracking.CompletionPercentage = 100
	if w.ActualStart != nil {
		hours := now.Sub(*w.ActualStart).Hours()
		w.ActualDuration = &hours
	}
	w.touch(now)
	return nil
}

func (w *WorkOrder) Hold(reason string, now time.Time) error {
	if w.Status != WorkOrderScheduled && w.Status != WorkOrderInProgress {
		return w.transitionError(WorkOrderOnHold)
	}
	w.Status = WorkOrderOnHold
	w.HoldReason = reason
	w.touch(now)
	return nil
}

func (w *WorkOrder) Cancel(reason string, now time.Time) error {
	if w.Status == WorkOrderCompleted || w.Status == WorkOrderCancelled {
		return w.transitionError(WorkOrderCancelled)
	}
	w.Status = WorkOrderCancelled
	w.CancelReason = reason
	w.touch(now)
	return nil
}

// AssignCrew replaces the crew. The crew lead, when given, must be on it.
func (w *WorkOrder) AssignCrew(employeeIDs []uuid.UUID, lead *uuid.UUID, now time.Time) error {
	crew := dedupe(employeeIDs)
	if lead != nil && !slices.Contains(crew, *lead) {
		return &ErrValidation{Field: "crewLeadId", Message: "crew lead must be a member of the crew"}
	}
	w.AssignedEmployeeIDs = crew
	w.CrewLeadID = lead
	w.touch(now)
	return nil
}

func (w *WorkOrder) AssignEquipment(equipmentIDs []uuid.UUID, now time.Time) {
	w.AssignedEquipmentIDs = dedupe(equipmentIDs)
	w.touch(now)
}

// Schedule links the calendar slot booked for this work order.
func (w *WorkOrder) Schedule(at time.Time, jobID uuid.UUID, now time.Time) {
	w.ScheduledDate = &at
	w.ScheduledJobID = &jobID
	w.touch(now)
}

func (w *WorkOrder) UpdateLineItem(id uuid.UUID, progress LineItemProgress, now time.Time) error {
	if progress.Status != "" && !slices.Contains(LineItemStatuses, progress.Status) {
		return &ErrValidation{Field: "status", Message: "unknown line item status " + string(progress.Status)}
	}
	for _, v := range []*float64{progress.ActualHours, progress.ActualCost} {
		if v != nil && (*v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return &ErrValidation{Field: "actual", Message: "must be a finite non-negative number"}
		}
	}
	i := slices.IndexFunc(w.lineItems, func(item WorkOrderLineItem) bool { return item.ID == id })
	if i < 0 {
		return &ErrNotFound{Resource: "work order line item", ID: id.String()}
	}
	item := &w.lineItems[i]
	if progress.Status != "" {
		item.Status = progress.Status
	}
	if progress.ActualHours != nil {
		item.ActualHours = progress.ActualHours
	}
	if progress.ActualCost != nil {
		item.ActualCost = progress.ActualCost
	}
	if progress.AssignedTo != nil {
		item.AssignedTo = dedupe(progress.AssignedTo)
	}
	w.touch(now)
	return nil
}

func (w *WorkOrder) AddJournalEntry(entryType JournalEntryType, title, description string, author *uuid.UUID, now time.Time) (JournalEntry, error) {
	if err := required("title", title); err != nil {
		return JournalEntry{}, err
	}
	entry := JournalEntry{ID: uuid.New(), At: now, Type: entryType, Title: title, Description: description, AuthorID: author}
	w.Journal = append(w.Journal, entry)
	w.touch(now)
	return entry, nil
}

func (w *WorkOrder) markInvoiced(invoiceID uuid.UUID, now time.Time) {
	w.ConvertedToInvoice = true
	w.InvoiceID = &invoiceID
	w.InvoiceCreatedAt = &now
	w.touch(now)
}

// ReleaseInvoice drops the link to a voided invoice so the work can be
// billed again. A different invoice id leaves the link alone.
func (w *WorkOrder) ReleaseInvoice(invoiceID uuid.UUID, now time.Time) {
	if w.InvoiceID == nil || *w.InvoiceID != invoiceID {
		return
	}
	w.ConvertedToInvoice = false
	w.InvoiceID = nil
	w.InvoiceCreatedAt = nil
	w.touch(now)
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		out, _ = appendUnique(out, id)
	}
	return out
}

type workOrderDerived struct {
	EstimatedTotalCost float64  `json:"estimatedTotalCost"`
	ActualTotalCost    *float64 `json:"actualTotalCost,omitempty"`
	ActualPpH          *float64 `json:"actualPpH,omitempty"`
	CrewSize           int      `json:"crewSize"`
}

func (w WorkOrder) MarshalJSON() ([]byte, error) {
	type alias WorkOrder
	derived := workOrderDerived{EstimatedTotalCost: w.EstimatedTotalCost(), CrewSize: w.CrewSize()}
	if cost, ok := w.ActualTotalCost(); ok {
		derived.ActualTotalCost = &cost
	}
	if pph, ok := w.ActualPpH(); ok {
		derived.ActualPpH = &pph
	}
	items := w.lineItems
	if items == nil {
		items = []WorkOrderLineItem{}
	}
	return json.Marshal(struct {
		alias
		LineItems []WorkOrderLineItem `json:"lineItems"`
		timeTracking
		workOrderDerived
	}{alias(w), items, w.tracking, derived})
}

func (w *WorkOrder) UnmarshalJSON(b []byte) error {
	type alias WorkOrder
	var wire struct {
		alias
		LineItems []WorkOrderLineItem `json:"lineItems"`
		timeTracking
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	if pct := wire.CompletionPercentage; pct < 0 || pct > 100 {
		return &ErrValidation{Field: "completionPercentage", Message: "must be within 0..100"}
	}
	*w = WorkOrder(wire.alias)
	w.lineItems = wire.LineItems
	w.tracking = wire.timeTracking
	return nil
}
