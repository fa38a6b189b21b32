package service

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/port"
)

var scheduleTracer = otel.Tracer("service/schedule")

const calendarService = "calendar"

// JobFilter narrows List to a window and optionally a status or crew member.
type JobFilter struct {
	From       *time.Time
	To         *time.Time
	Status     *domain.JobStatus
	Type       *domain.JobType
	EmployeeID *uuid.UUID
}

func (f JobFilter) match(j *domain.ScheduledJob) bool {
	switch {
	case f.From != nil && j.ScheduledEnd.Before(*f.From):
		return false
	case f.To != nil && j.ScheduledStart.After(*f.To):
		return false
	case f.Status != nil && j.Status != *f.Status:
		return false
	case f.Type != nil && j.JobType != *f.Type:
		return false
	case f.EmployeeID != nil && !slices.Contains(j.EmployeeIDs, *f.EmployeeID):
		return false
	}
	return true
}

// ScheduleService books site visits and jobs and mirrors them to the
// external calendar when one is configured.
type ScheduleService struct {
	core
	calendar port.CalendarPublisher
}

// NewScheduleService builds the service. calendar may be nil.
func NewScheduleService(repos *port.Repositories, calendar port.CalendarPublisher, metrics *observability.Metrics, logger *zap.Logger) *ScheduleService {
	return &ScheduleService{core: newCore(repos, metrics, logger), calendar: calendar}
}

// Create books the slot. Customer and property details missing from the
// request are copied from the lead or work order it is booked against.
func (s *ScheduleService) Create(ctx context.Context, req domain.ScheduleRequest) (*domain.ScheduledJob, error) {
	ctx, span := scheduleTracer.Start(ctx, "ScheduleService.Create")
	defer span.End()
	defer s.observe("ScheduleService.Create", time.Now())

	switch req.JobType {
	case domain.JobTypeSiteVisit:
		if req.LeadID == nil {
			break
		}
		lead, err := s.repos.Leads.Get(ctx, *req.LeadID)
		if err != nil {
			return nil, asReference(err, "leadId", domain.KindLead, *req.LeadID)
		}
		if lead.IsArchived {
			return nil, &domain.ErrConflict{Message: "cannot schedule a site visit for an archived lead"}
		}
		fillFromLead(&req, lead)
	case domain.JobTypeWork:
		if req.WorkOrderID == nil {
			break
		}
		wo, err := s.repos.WorkOrders.Get(ctx, *req.WorkOrderID)
		if err != nil {
			return nil, asReference(err, "workOrderId", domain.KindWorkOrder, *req.WorkOrderID)
		}
		fillFromWorkOrder(&req, wo)
	}

	now := s.now()
	job, err := domain.NewScheduledJob(req, now)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, job)
	if err := create(ctx, &s.core, s.repos.Jobs, domain.KindScheduledJob, job); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.type", string(job.JobType)),
	)
	s.linkJob(ctx, job)

	s.logger.Info("job scheduled",
		zap.String("job_id", job.ID.String()),
		zap.String("type", string(job.JobType)),
		zap.Time("start", job.ScheduledStart),
		zap.Time("end", job.ScheduledEnd),
	)
	return job, nil
}

func fillFromLead(req *domain.ScheduleRequest, lead *domain.Lead) {
	if req.CustomerID == nil {
		req.CustomerID = lead.CustomerID
	}
	if req.PropertyID == nil {
		req.PropertyID = lead.PropertyID
	}
	if req.CustomerName == "" {
		req.CustomerName = lead.CustomerName
	}
	if req.PropertyAddress == "" {
		req.PropertyAddress = lead.FullAddress()
	}
	if req.Location == nil {
		req.Location = lead.Location
	}
	if len(req.ServiceTypes) == 0 {
		req.ServiceTypes = lead.ServiceTypes
	}
}

func fillFromWorkOrder(req *domain.ScheduleRequest, wo *domain.WorkOrder) {
	if req.LeadID == nil {
		id := wo.LeadID
		req.LeadID = &id
	}
	if req.ProposalID == nil {
		id := wo.ProposalID
		req.ProposalID = &id
	}
	if req.CustomerID == nil {
		req.CustomerID = wo.CustomerID
	}
	if req.PropertyID == nil {
		req.PropertyID = wo.PropertyID
	}
	if req.CustomerName == "" {
		req.CustomerName = wo.CustomerName
	}
	if req.PropertyAddress == "" {
		req.PropertyAddress = wo.PropertyAddress.Full()
	}
	if len(req.ServiceTypes) == 0 {
		req.ServiceTypes = wo.ServiceTypes
	}
	if req.Priority == "" {
		req.Priority = wo.Priority
	}
}

// linkJob records the booking on the lead or work order.
func (s *ScheduleService) linkJob(ctx context.Context, job *domain.ScheduledJob) {
	now := s.now()
	jobID := job.ID
	var err error
	switch job.JobType {
	case domain.JobTypeSiteVisit:
		_, err = touchWithRetry(ctx, &s.core, s.repos.Leads, domain.KindLead, *job.LeadID, func(l *domain.Lead) error {
			return l.ScheduleSiteVisit(job.ScheduledStart, &jobID, l.SiteVisit.AssignedTo, now)
		})
	case domain.JobTypeWork:
		_, err = touchWithRetry(ctx, &s.core, s.repos.WorkOrders, domain.KindWorkOrder, *job.WorkOrderID, func(w *domain.WorkOrder) error {
			w.Schedule(job.ScheduledStart, jobID, now)
			return nil
		})
	}
	if err != nil {
		s.logger.Warn("job not linked",
			zap.String("job_id", job.ID.String()),
			zap.String("type", string(job.JobType)),
			zap.Error(err),
		)
	}
}

func (s *ScheduleService) Get(ctx context.Context, id uuid.UUID) (*domain.ScheduledJob, error) {
	ctx, span := scheduleTracer.Start(ctx, "ScheduleService.Get")
	defer span.End()

	return s.repos.Jobs.Get(ctx, id)
}

func (s *ScheduleService) List(ctx context.Context, f JobFilter) ([]*domain.ScheduledJob, error) {
	ctx, span := scheduleTracer.Start(ctx, "ScheduleService.List")
	defer span.End()

	return s.repos.Jobs.List(ctx, f.match)
}

// AssignCrew sets the crew and prices it from their true business cost.
func (s *ScheduleService) AssignCrew(ctx context.Context, id uuid.UUID, req CrewAssignment, expected *int) (*domain.ScheduledJob, error) {
	ctx, span := scheduleTracer.Start(ctx, "ScheduleService.AssignCrew")
	defer span.End()

	if err := s.requireActiveCrew(ctx, req.EmployeeIDs); err != nil {
		return nil, err
	}
	cost, err := s.crewHourlyCost(ctx, req.EmployeeIDs)
	if err != nil {
		return nil, err
	}
	now := s.now()
	job, err := mutate(ctx, &s.core, s.repos.Jobs, domain.KindScheduledJob, id, expected, func(j *domain.ScheduledJob) error {
		return j.AssignCrew(req.EmployeeIDs, req.CrewLeadID, cost, now)
	})
	if err != nil {
		return nil, err
	}
	s.republish(ctx, job)
	return job, nil
}

func (s *ScheduleService) AssignEquipment(ctx context.Context, id uuid.UUID, equipmentIDs []uuid.UUID, expected *int) (*domain.ScheduledJob, error) {
	ctx, span := scheduleTracer.Start(ctx, "ScheduleService.AssignEquipment")
	defer span.End()

	if err := s.requireAvailableEquipment(ctx, equipmentIDs); err != nil {
		return nil, err
	}
	cost, err := s.equipmentHourlyCost(ctx, equipmentIDs)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return mutate(ctx, &s.core, s.repos.Jobs, domain.KindScheduledJob, id, expected, func(j *domain.ScheduledJob) error {
		return j.AssignEquipment(equipmentIDs, cost, now)
	})
}

func (s *ScheduleService) Start(ctx context.Context, id uuid.UUID, expected *int) (*domain.ScheduledJob, error) {
	ctx, span := scheduleTracer.Start(ctx, "ScheduleService.Start")
	defer span.End()

	now := s.now()
	job, err := mutate(ctx, &s.core, s.repos.Jobs, domain.KindScheduledJob, id, expected, func(j *domain.ScheduledJob) error {
		return j.Start(now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("job started", zap.String("job_id", id.String()))
	return job, nil
}

// Complete closes the job. A completed site visit is recorded on its lead.
func (s *ScheduleService) Complete(ctx context.Context, id uuid.UUID, notes string, expected *int) (*domain.ScheduledJob, error) {
	ctx, span := scheduleTracer.Start(ctx, "ScheduleService.Complete")
	defer span.End()

	now := s.now()
	job, err := mutate(ctx, &s.core, s.repos.Jobs, domain.KindScheduledJob, id, expected, func(j *domain.ScheduledJob) error {
		return j.Complete(now)
	})
	if err != nil {
		return nil, err
	}
	if job.JobType == domain.JobTypeSiteVisit && job.LeadID != nil {
		_, err := touchWithRetry(ctx, &s.core, s.repos.Leads, domain.KindLead, *job.LeadID, func(l *domain.Lead) error {
			return l.CompleteSiteVisit(now, notes, now)
		})
		if err != nil {
			s.logger.Warn("site visit not recorded on lead",
				zap.String("job_id", id.String()),
				zap.String("lead_id", job.LeadID.String()),
				zap.Error(err),
			)
		}
	}
	actual, _ := job.TotalActualCost()
	s.logger.Info("job completed",
		zap.String("job_id", id.String()),
		zap.Float64("actual_hours", *job.ActualDuration),
		zap.Float64("actual_cost", actual),
	)
	return job, nil
}

// Cancel cancels the job and removes its calendar event.
func (s *ScheduleService) Cancel(ctx context.Context, id uuid.UUID, reason string, expected *int) (*domain.ScheduledJob, error) {
	ctx, span := scheduleTracer.Start(ctx, "ScheduleService.Cancel")
	defer span.End()

	now := s.now()
	job, err := mutate(ctx, &s.core, s.repos.Jobs, domain.KindScheduledJob, id, expected, func(j *domain.ScheduledJob) error {
		return j.Cancel(reason, now)
	})
	if err != nil {
		return nil, err
	}
	if s.calendar != nil && job.CalendarEventID != "" {
		if err := s.calendar.Remove(ctx, job.CalendarEventID); err != nil {
			s.metrics.IncrExternalError(calendarService)
			s.logger.Warn("calendar event not removed",
				zap.String("job_id", id.String()),
				zap.String("event_id", job.CalendarEventID),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("job cancelled", zap.String("job_id", id.String()), zap.String("reason", reason))
	return job, nil
}

// Reschedule moves an open job and updates its calendar event.
func (s *ScheduleService) Reschedule(ctx context.Context, id uuid.UUID, start, end time.Time, expected *int) (*domain.ScheduledJob, error) {
	ctx, span := scheduleTracer.Start(ctx, "ScheduleService.Reschedule")
	defer span.End()

	now := s.now()
	job, err := mutate(ctx, &s.core, s.repos.Jobs, domain.KindScheduledJob, id, expected, func(j *domain.ScheduledJob) error {
		return j.Reschedule(start.UTC(), end.UTC(), now)
	})
	if err != nil {
		return nil, err
	}
	s.republish(ctx, job)
	s.logger.Info("job rescheduled",
		zap.String("job_id", id.String()),
		zap.Time("start", job.ScheduledStart),
		zap.Time("end", job.ScheduledEnd),
	)
	return job, nil
}

// publish mirrors a job that is not stored yet; the event id is stored
// with it.
func (s *ScheduleService) publish(ctx context.Context, job *domain.ScheduledJob) {
	if s.calendar == nil {
		return
	}
	eventID, err := s.calendar.Publish(ctx, job)
	if err != nil {
		s.metrics.IncrExternalError(calendarService)
		s.logger.Warn("job not published to calendar", zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	job.CalendarEventID = eventID
}

// republish updates the event of a stored job and saves a new event id.
func (s *ScheduleService) republish(ctx context.Context, job *domain.ScheduledJob) {
	if s.calendar == nil {
		return
	}
	eventID, err := s.calendar.Publish(ctx, job)
	if err != nil {
		s.metrics.IncrExternalError(calendarService)
		s.logger.Warn("calendar event not updated", zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	if eventID == job.CalendarEventID {
		return
	}
	now := s.now()
	updated, err := touchWithRetry(ctx, &s.core, s.repos.Jobs, domain.KindScheduledJob, job.ID, func(j *domain.ScheduledJob) error {
		j.SetCalendarEvent(eventID, now)
		return nil
	})
	if err != nil {
		s.logger.Warn("calendar event id not saved", zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	*job = *updated
}
