package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/treeshop/treeshop-ops-go/internal/geo"
)

// ScheduleRequest books a calendar slot for a site visit or a job.
type ScheduleRequest struct {
	JobType             JobType       `json:"jobType"`
	WorkOrderID         *uuid.UUID    `json:"workOrderId,omitempty"`
	ProposalID          *uuid.UUID    `json:"proposalId,omitempty"`
	LeadID              *uuid.UUID    `json:"leadId,omitempty"`
	ScheduledStart      time.Time     `json:"scheduledStart"`
	ScheduledEnd        time.Time     `json:"scheduledEnd"`
	CustomerID          *uuid.UUID    `json:"customerId,omitempty"`
	CustomerName        string        `json:"customerName"`
	PropertyID          *uuid.UUID    `json:"propertyId,omitempty"`
	PropertyAddress     string        `json:"propertyAddress"`
	Location            *geo.Point    `json:"location,omitempty"`
	ServiceTypes        []ServiceType `json:"serviceTypes,omitempty"`
	Description         string        `json:"description,omitempty"`
	Priority            Priority      `json:"priority"`
	SpecialInstructions string        `json:"specialInstructions,omitempty"`
}

func (r *ScheduleRequest) normalize() error {
	switch r.JobType {
	case JobTypeSiteVisit:
		if r.LeadID == nil {
			return &ErrValidation{Field: "leadId", Message: "site visits are booked against a lead"}
		}
	case JobTypeWork:
		if r.WorkOrderID == nil {
			return &ErrValidation{Field: "workOrderId", Message: "jobs are booked against a work order"}
		}
	default:
		return &ErrValidation{Field: "jobType", Message: "unknown job type " + string(r.JobType)}
	}
	if err := validateWindow(r.ScheduledStart, r.ScheduledEnd); err != nil {
		return err
	}
	if r.Location != nil && !r.Location.Valid() {
		return &ErrValidation{Field: "location", Message: "latitude/longitude out of range"}
	}
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	return nil
}

func validateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return &ErrValidation{Field: "scheduledStart", Message: "start and end are required"}
	}
	if !end.After(start) {
		return &ErrValidation{Field: "scheduledEnd", Message: "must be after the start"}
	}
	return nil
}

// ScheduledJob is a booked slot. Crew and equipment costs are the summed
// hourly rates of what was assigned.
type ScheduledJob struct {
	Meta
	ScheduleRequest
	ActualStart         *time.Time  `json:"actualStartTime,omitempty"`
	ActualEnd           *time.Time  `json:"actualEndTime,omitempty"`
	ActualDuration      *float64    `json:"actualDuration,omitempty"`
	EmployeeIDs         []uuid.UUID `json:"assignedEmployeeIds"`
	CrewLeadID          *uuid.UUID  `json:"crewLeadId,omitempty"`
	CrewHourlyCost      float64     `json:"totalCrewCost"`
	EquipmentIDs        []uuid.UUID `json:"assignedEquipmentIds"`
	EquipmentHourlyCost float64     `json:"totalEquipmentCost"`
	Status              JobStatus   `json:"jobStatus"`
	CancelReason        string      `json:"cancelReason,omitempty"`
	CalendarEventID     string      `json:"calendarEventId,omitempty"`
}

func NewScheduledJob(req ScheduleRequest, now time.Time) (*ScheduledJob, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	return &ScheduledJob{
		Meta:            NewMeta(now),
		ScheduleRequest: req,
		EmployeeIDs:     []uuid.UUID{},
		EquipmentIDs:    []uuid.UUID{},
		Status:          JobScheduled,
	}, nil
}

// EstimatedDuration is the booked window in hours.
func (j *ScheduledJob) EstimatedDuration() float64 { return j.ScheduledEnd.Sub(j.ScheduledStart).Hours() }

// TotalEstimatedCost is the hourly crew and equipment cost over the window.
func (j *ScheduledJob) TotalEstimatedCost() float64 {
	return (j.CrewHourlyCost + j.EquipmentHourlyCost) * j.EstimatedDuration()
}

// TotalActualCost is only known once the job has an actual duration.
func (j *ScheduledJob) TotalActualCost() (float64, bool) {
	if j.ActualDuration == nil {
		return 0, false
	}
	return (j.CrewHourlyCost + j.EquipmentHourlyCost) * *j.ActualDuration, true
}

func (j *ScheduledJob) open() bool {
	return j.Status == JobScheduled || j.Status == JobRescheduled
}

// AssignCrew sets the crew with its summed hourly cost.
func (j *ScheduledJob) AssignCrew(ids []uuid.UUID, lead *uuid.UUID, hourlyCost float64, now time.Time) error {
	if hourlyCost < 0 {
		return &ErrValidation{Field: "crewCost", Message: "must be non-negative"}
	}
	j.EmployeeIDs = dedupe(ids)
	j.CrewLeadID = lead
	j.CrewHourlyCost = hourlyCost
	j.touch(now)
	return nil
}

func (j *ScheduledJob) AssignEquipment(ids []uuid.UUID, hourlyCost float64, now time.Time) error {
	if hourlyCost < 0 {
		return &ErrValidation{Field: "equipmentCost", Message: "must be non-negative"}
	}
	j.EquipmentIDs = dedupe(ids)
	j.EquipmentHourlyCost = hourlyCost
	j.touch(now)
	return nil
}

func (j *ScheduledJob) Start(at time.Time) error {
	if !j.open() {
		return &ErrInvalidTransition{Entity: "scheduled job", From: string(j.Status), To: string(JobInProgress)}
	}
	j.Status = JobInProgress
	j.ActualStart = &at
	j.touch(at)
	return nil
}

func (j *ScheduledJob) Complete(at time.Time) error {
	if j.Status != JobInProgress {
		return &ErrInvalidTransition{Entity: "scheduled job", From: string(j.Status), To: string(JobCompleted)}
	}
	j.Status = JobCompleted
	j.ActualEnd = &at
	hours := at.Sub(*j.ActualStart).Hours()
	j.ActualDuration = &hours
	j.touch(at)
	return nil
}

func (j *ScheduledJob) Cancel(reason string, now time.Time) error {
	if j.Status == JobCompleted || j.Status == JobCancelled {
		return &ErrInvalidTransition{Entity: "scheduled job", From: string(j.Status), To: string(JobCancelled)}
	}
	j.Status = JobCancelled
	j.CancelReason = reason
	j.touch(now)
	return nil
}

// Reschedule moves an open job to a new window.
func (j *ScheduledJob) Reschedule(start, end, now time.Time) error {
	if !j.open() {
		return &ErrInvalidTransition{Entity: "scheduled job", From: string(j.Status), To: string(JobRescheduled)}
	}
	if err := validateWindow(start, end); err != nil {
		return err
	}
	j.ScheduledStart, j.ScheduledEnd = start, end
	j.Status = JobRescheduled
	j.touch(now)
	return nil
}

// SetCalendarEvent remembers the published calendar event.
func (j *ScheduledJob) SetCalendarEvent(id string, now time.Time) {
	j.CalendarEventID = id
	j.touch(now)
}

func (j ScheduledJob) MarshalJSON() ([]byte, error) {
	type alias ScheduledJob
	out := struct {
		alias
		EstimatedDuration  float64  `json:"estimatedDuration"`
		TotalEstimatedCost float64  `json:"totalEstimatedCost"`
		TotalActualCost    *float64 `json:"totalActualCost,omitempty"`
	}{alias: alias(j), EstimatedDuration: j.EstimatedDuration(), TotalEstimatedCost: j.TotalEstimatedCost()}
	if cost, ok := j.TotalActualCost(); ok {
		out.TotalActualCost = &cost
	}
	return json.Marshal(out)
}
