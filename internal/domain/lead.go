package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/treeshop/treeshop-ops-go/internal/geo"
)

// DefaultFollowUpDelay is how long after intake a new lead is due for follow-up.
const DefaultFollowUpDelay = 24 * time.Hour

// StageTransition is one append-only record in a lead's stage history.
// From is nil for the creation record.
type StageTransition struct {
	From  *WorkflowStage `json:"fromStage,omitempty"`
	To    WorkflowStage  `json:"toStage"`
	At    time.Time      `json:"timestamp"`
	Notes string         `json:"notes,omitempty"`
	Actor string         `json:"actor,omitempty"`
	Kind  TransitionKind `json:"kind"`
}

// SiteVisit tracks whether someone needs to walk the property before quoting.
type SiteVisit struct {
	Needed         bool       `json:"needed"`
	ScheduledAt    *time.Time `json:"scheduledAt,omitempty"`
	ScheduledJobID *uuid.UUID `json:"scheduledJobId,omitempty"`
	AssignedTo     *uuid.UUID `json:"assignedTo,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}

// Pending reports a visit that is needed and not yet done.
func (v SiteVisit) Pending() bool { return v.Needed && v.CompletedAt == nil }

// LeadDetails are the intake attributes of a lead.
type LeadDetails struct {
	CustomerName     string        `json:"customerName"`
	CustomerPhone    string        `json:"customerPhone"`
	CustomerEmail    string        `json:"customerEmail,omitempty"`
	PreferredContact ContactMethod `json:"preferredContact"`
	Address          Address       `json:"address"`
	Location         *geo.Point    `json:"location,omitempty"`
	CustomerID       *uuid.UUID    `json:"customerId,omitempty"`
	PropertyID       *uuid.UUID    `json:"propertyId,omitempty"`
	ServiceTypes     []ServiceType `json:"serviceTypes"`
	Urgency          Urgency       `json:"urgency"`
	Source           LeadSource    `json:"source"`
	ReferredBy       string        `json:"referredBy,omitempty"`
	Description      string        `json:"description,omitempty"`
	EstimatedValue   *float64      `json:"estimatedValue,omitempty"`
	NeedsSiteVisit   bool          `json:"needsSiteVisit"`
}

func (d *LeadDetails) normalize() error {
	if err := required("customerName", d.CustomerName); err != nil {
		return err
	}
	if d.Location != nil && !d.Location.Valid() {
		return &ErrValidation{Field: "location", Message: "latitude/longitude out of range"}
	}
	if d.EstimatedValue != nil && *d.EstimatedValue < 0 {
		return &ErrValidation{Field: "estimatedValue", Message: "must be non-negative"}
	}
	if d.PreferredContact == "" {
		d.PreferredContact = ContactPhone
	}
	if d.Urgency == "" {
		d.Urgency = UrgencyMedium
	}
	if d.Source == "" {
		d.Source = SourceOther
	}
	return nil
}

// Lead is a potential job moving through the lead-to-cash pipeline. Its
// current stage is always the target of the last history record; the
// history can only grow through Advance and SetStage.
type Lead struct {
	Meta
	LeadDetails
	SiteVisit        SiteVisit  `json:"siteVisit"`
	LastContactDate  *time.Time `json:"lastContactDate,omitempty"`
	NextFollowUpDate *time.Time `json:"nextFollowUpDate,omitempty"`
	FollowUpNotes    string     `json:"followUpNotes,omitempty"`
	AttemptCount     int        `json:"attemptCount"`
	ProposalID       *uuid.UUID `json:"proposalId,omitempty"`
	WorkOrderID      *uuid.UUID `json:"workOrderId,omitempty"`
	InvoiceID        *uuid.UUID `json:"invoiceId,omitempty"`
	IsActive         bool       `json:"isActive"`
	IsConverted      bool       `json:"isConverted"`
	IsArchived       bool       `json:"isArchived"`
	ArchivedAt       *time.Time `json:"archivedAt,omitempty"`
	ArchiveReason    string     `json:"archiveReason,omitempty"`

	history []StageTransition
}

// NewLead opens a lead at stage LEAD with its creation record.
func NewLead(details LeadDetails, actor string, now time.Time) (*Lead, error) {
	if err := details.normalize(); err != nil {
		return nil, err
	}
	l := &Lead{
		Meta:             NewMeta(now),
		LeadDetails:      details,
		SiteVisit:        SiteVisit{Needed: details.NeedsSiteVisit},
		NextFollowUpDate: timePtr(now.Add(DefaultFollowUpDelay)),
		IsActive:         true,
	}
	l.history = []StageTransition{{To: StageLead, At: now, Actor: actor, Kind: TransitionCreated}}
	return l, nil
}

// Stage is the canonical stage, read from the last history record.
func (l *Lead) Stage() WorkflowStage {
	if len(l.history) == 0 {
		return StageLead
	}
	return l.history[len(l.history)-1].To
}

// History returns a copy of the stage history.
func (l *Lead) History() []StageTransition {
	out := make([]StageTransition, len(l.history))
	copy(out, l.history)
	return out
}

// Advance moves the lead to the next pipeline stage. Archived leads and
// leads at COMPLETED are rejected.
func (l *Lead) Advance(notes, actor string, now time.Time) error {
	from := l.Stage()
	if l.IsArchived {
		return &ErrInvalidTransition{Entity: "lead", From: string(from), Reason: "lead is archived"}
	}
	next, ok := from.Next()
	if !ok {
		return &ErrInvalidTransition{Entity: "lead", From: string(from), Reason: "terminal stage has no next stage"}
	}
	l.appendTransition(from, next, notes, actor, TransitionStage, now)
	if next == StageProposal {
		l.IsConverted = true
	}
	return nil
}

// AdvanceTo advances only when target is the immediate next stage and is a
// no-op when the lead already sits at target.
func (l *Lead) AdvanceTo(target WorkflowStage, notes, actor string, now time.Time) error {
	from := l.Stage()
	if from == target {
		return nil
	}
	if next, ok := from.Next(); !ok || next != target {
		return &ErrInvalidTransition{Entity: "lead", From: string(from), To: string(target), Reason: "not the next stage"}
	}
	return l.Advance(notes, actor, now)
}

// SetStage is the administrative override: any known stage, recorded in
// the history as ADMIN_OVERRIDE.
func (l *Lead) SetStage(target WorkflowStage, notes, actor string, now time.Time) error {
	if target.Order() < 0 {
		return &ErrValidation{Field: "stage", Message: "unknown stage " + string(target)}
	}
	l.appendTransition(l.Stage(), target, notes, actor, TransitionAdminOverride, now)
	if target.Order() >= StageProposal.Order() {
		l.IsConverted = true
	}
	return nil
}

func (l *Lead) appendTransition(from, to WorkflowStage, notes, actor string, kind TransitionKind, now time.Time) {
	l.history = append(l.history, StageTransition{From: &from, To: to, At: now, Notes: notes, Actor: actor, Kind: kind})
	l.touch(now)
}

// RecordContact logs a follow-up attempt. A nil nextFollowUp clears the
// reminder.
func (l *Lead) RecordContact(at time.Time, notes string, nextFollowUp *time.Time, now time.Time) {
	l.LastContactDate = &at
	l.AttemptCount++
	if notes != "" {
		l.FollowUpNotes = notes
	}
	l.NextFollowUpDate = nextFollowUp
	l.touch(now)
}

// ScheduleSiteVisit books the walkthrough and marks a visit as needed.
func (l *Lead) ScheduleSiteVisit(at time.Time, jobID, assignee *uuid.UUID, now time.Time) error {
	if l.IsArchived {
		return &ErrConflict{Message: "cannot schedule a site visit for an archived lead"}
	}
	l.SiteVisit.Needed = true
	l.SiteVisit.ScheduledAt = &at
	l.SiteVisit.ScheduledJobID = jobID
	l.SiteVisit.AssignedTo = assignee
	l.touch(now)
	return nil
}

func (l *Lead) CompleteSiteVisit(at time.Time, notes string, now time.Time) error {
	if l.SiteVisit.CompletedAt != nil {
		return &ErrConflict{Message: "site visit already completed"}
	}
	l.SiteVisit.CompletedAt = &at
	l.SiteVisit.Notes = notes
	l.touch(now)
	return nil
}

// Archive soft-deletes the lead. Archiving twice is rejected.
func (l *Lead) Archive(reason string, now time.Time) error {
	if l.IsArchived {
		return &ErrConflict{Message: "lead already archived"}
	}
	l.IsArchived = true
	l.IsActive = false
	l.ArchivedAt = &now
	l.ArchiveReason = reason
	l.touch(now)
	return nil
}

// Overdue reports an active lead whose follow-up date has passed.
func (l *Lead) Overdue(now time.Time) bool {
	return l.IsActive && !l.IsArchived && l.NextFollowUpDate != nil && l.NextFollowUpDate.Before(now)
}

// FullAddress renders the property address on one line.
func (l *Lead) FullAddress() string { return l.Address.Full() }

func (l *Lead) DaysSinceCreated(now time.Time) int {
	return int(now.Sub(l.CreatedAt).Hours() / 24)
}

type leadWire struct {
	Stage   WorkflowStage     `json:"workflowStage"`
	History []StageTransition `json:"stageHistory"`
}

func (l Lead) MarshalJSON() ([]byte, error) {
	type alias Lead
	return json.Marshal(struct {
		alias
		leadWire
	}{alias(l), leadWire{Stage: l.Stage(), History: l.history}})
}

func (l *Lead) UnmarshalJSON(b []byte) error {
	type alias Lead
	var w struct {
		alias
		leadWire
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if len(w.History) == 0 {
		return &ErrValidation{Field: "stageHistory", Message: "must contain the creation record"}
	}
	if last := w.History[len(w.History)-1].To; w.Stage != "" && w.Stage != last {
		return &ErrValidation{Field: "workflowStage", Message: "does not match the last stage transition"}
	}
	*l = Lead(w.alias)
	l.history = w.History
	return nil
}
