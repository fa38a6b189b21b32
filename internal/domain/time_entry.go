package domain

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/treeshop/treeshop-ops-go/internal/geo"
)

// TimeEntryStart opens a timer.
type TimeEntryStart struct {
	WorkOrderID        *uuid.UUID  `json:"workOrderId,omitempty"`
	ScheduledJobID     *uuid.UUID  `json:"scheduledJobId,omitempty"`
	ProposalLineItemID *uuid.UUID  `json:"proposalLineItemId,omitempty"`
	TaskType           TaskType    `json:"taskType"`
	TaskCategory       string      `json:"taskCategory"`
	Description        string      `json:"description,omitempty"`
	EmployeeIDs        []uuid.UUID `json:"employeeIds"`
	CrewLeadID         *uuid.UUID  `json:"crewLeadId,omitempty"`
	EquipmentIDs       []uuid.UUID `json:"equipmentIds,omitempty"`
	StartLocation      *geo.Point  `json:"startLocation,omitempty"`
}

// validate checks the category against the task type: support tasks use
// the support list, line items use a service type.
func (s TimeEntryStart) validate() error {
	switch s.TaskType {
	case TaskSupport:
		if _, err := ParseSupportTask(s.TaskCategory); err != nil {
			return err
		}
	case TaskLineItem:
		if _, err := ParseServiceType(s.TaskCategory); err != nil {
			return &ErrValidation{Field: "taskCategory", Message: "line item tasks need a service type"}
		}
		if s.WorkOrderID == nil {
			return &ErrValidation{Field: "workOrderId", Message: "line item tasks must belong to a work order"}
		}
	default:
		return &ErrValidation{Field: "taskType", Message: "unknown task type " + string(s.TaskType)}
	}
	if len(s.EmployeeIDs) == 0 {
		return &ErrValidation{Field: "employeeIds", Message: "at least one crew member is required"}
	}
	if s.StartLocation != nil && !s.StartLocation.Valid() {
		return &ErrValidation{Field: "startLocation", Message: "latitude/longitude out of range"}
	}
	return nil
}

// TimeEntry is a crew timer with pause/resume accounting.
type TimeEntry struct {
	Meta
	TimeEntryStart
	StartTime        time.Time  `json:"startTime"`
	EndTime          *time.Time `json:"endTime,omitempty"`
	IsPaused         bool       `json:"isPaused"`
	PausedAt         *time.Time `json:"pausedAt,omitempty"`
	TotalPausedHours float64    `json:"totalPausedHours"`
	Duration         float64    `json:"durationHours"`
	EndLocation      *geo.Point `json:"endLocation,omitempty"`
	PointsCompleted  *float64   `json:"pointsCompleted,omitempty"`
	PPHAchieved      *float64   `json:"pphAchieved,omitempty"`
	LaborCost        float64    `json:"laborCost"`
	EquipmentCost    float64    `json:"equipmentCost"`
	Notes            string     `json:"notes,omitempty"`
	IsComplete       bool       `json:"isComplete"`
}

func StartTimeEntry(s TimeEntryStart, now time.Time) (*TimeEntry, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	s.EmployeeIDs = dedupe(s.EmployeeIDs)
	s.EquipmentIDs = dedupe(s.EquipmentIDs)
	return &TimeEntry{Meta: NewMeta(now), TimeEntryStart: s, StartTime: now}, nil
}

// IsBillable is true for line-item work.
func (t *TimeEntry) IsBillable() bool { return t.TaskType == TaskLineItem }

func (t *TimeEntry) TotalCost() float64 { return t.LaborCost + t.EquipmentCost }

func (t *TimeEntry) Pause(at time.Time) error {
	if t.IsComplete || t.IsPaused {
		return &ErrInvalidTransition{Entity: "time entry", From: t.state(), To: "paused"}
	}
	t.IsPaused = true
	t.PausedAt = &at
	t.touch(at)
	return nil
}

func (t *TimeEntry) Resume(at time.Time) error {
	if t.IsComplete || !t.IsPaused {
		return &ErrInvalidTransition{Entity: "time entry", From: t.state(), To: "running"}
	}
	t.resume(at)
	t.touch(at)
	return nil
}

func (t *TimeEntry) resume(at time.Time) {
	if t.PausedAt != nil && at.After(*t.PausedAt) {
		t.TotalPausedHours += at.Sub(*t.PausedAt).Hours()
	}
	t.IsPaused = false
	t.PausedAt = nil
}

func (t *TimeEntry) state() string {
	switch {
	case t.IsComplete:
		return "complete"
	case t.IsPaused:
		return "paused"
	}
	return "running"
}

// Completion carries what is known when a timer stops. The hourly rates
// are the crew's summed true business cost and the equipment's summed
// hourly cost.
type Completion struct {
	At                  time.Time
	Location            *geo.Point
	Points              *float64
	CrewHourlyCost      float64
	EquipmentHourlyCost float64
	Notes               string
}

// Complete stops the timer, resuming first if paused. Duration is elapsed
// time minus paused time, never negative.
func (t *TimeEntry) Complete(c Completion) error {
	if t.IsComplete {
		return &ErrInvalidTransition{Entity: "time entry", From: t.state(), To: "complete"}
	}
	if c.Location != nil && !c.Location.Valid() {
		return &ErrValidation{Field: "location", Message: "latitude/longitude out of range"}
	}
	if c.Points != nil && (*c.Points < 0 || math.IsNaN(*c.Points) || math.IsInf(*c.Points, 0)) {
		return &ErrValidation{Field: "pointsCompleted", Message: "must be a finite non-negative number"}
	}
	if c.CrewHourlyCost < 0 || c.EquipmentHourlyCost < 0 {
		return &ErrValidation{Field: "hourlyCost", Message: "must be non-negative"}
	}
	if t.IsPaused {
		t.resume(c.At)
	}
	t.EndTime = &c.At
	t.Duration = max(c.At.Sub(t.StartTime).Hours()-t.TotalPausedHours, 0)
	t.EndLocation = c.Location
	t.PointsCompleted = c.Points
	if c.Points != nil && t.Duration > 0 {
		pph := *c.Points / t.Duration
		t.PPHAchieved = &pph
	}
	t.LaborCost = c.CrewHourlyCost * t.Duration
	t.EquipmentCost = c.EquipmentHourlyCost * t.Duration
	if c.Notes != "" {
		t.Notes = c.Notes
	}
	t.IsComplete = true
	t.touch(c.At)
	return nil
}

// Totals is what this entry contributes to its work order.
func (t *TimeEntry) Totals() TimeEntryTotals {
	points := 0.0
	if t.PointsCompleted != nil {
		points = *t.PointsCompleted
	}
	return TimeEntryTotals{Hours: t.Duration, LaborCost: t.LaborCost, EquipmentCost: t.EquipmentCost, Points: points}
}
