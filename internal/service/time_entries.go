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
	"github.com/treeshop/treeshop-ops-go/internal/geo"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/port"
)

var timeEntryTracer = otel.Tracer("service/time_entries")

// StopRequest stops a running timer. A nil At means now.
type StopRequest struct {
	At       *time.Time `json:"endTime,omitempty"`
	Location *geo.Point `json:"endLocation,omitempty"`
	Points   *float64   `json:"pointsCompleted,omitempty"`
	Notes    string     `json:"notes,omitempty"`
}

// TimeEntryFilter narrows List.
type TimeEntryFilter struct {
	WorkOrderID *uuid.UUID
	EmployeeID  *uuid.UUID
	OpenOnly    bool
}

func (f TimeEntryFilter) match(t *domain.TimeEntry) bool {
	if f.OpenOnly && t.IsComplete {
		return false
	}
	if f.WorkOrderID != nil && (t.WorkOrderID == nil || *t.WorkOrderID != *f.WorkOrderID) {
		return false
	}
	if f.EmployeeID != nil && !slices.Contains(t.EmployeeIDs, *f.EmployeeID) {
		return false
	}
	return true
}

// TimeEntryService runs crew timers and costs them when they stop.
type TimeEntryService struct {
	core
}

func NewTimeEntryService(repos *port.Repositories, metrics *observability.Metrics, logger *zap.Logger) *TimeEntryService {
	return &TimeEntryService{core: newCore(repos, metrics, logger)}
}

// Start opens a timer for an active crew.
func (s *TimeEntryService) Start(ctx context.Context, req domain.TimeEntryStart) (*domain.TimeEntry, error) {
	ctx, span := timeEntryTracer.Start(ctx, "TimeEntryService.Start")
	defer span.End()

	if req.WorkOrderID != nil {
		wo, err := s.repos.WorkOrders.Get(ctx, *req.WorkOrderID)
		if err != nil {
			return nil, asReference(err, "workOrderId", domain.KindWorkOrder, *req.WorkOrderID)
		}
		if wo.Status == domain.WorkOrderCancelled {
			return nil, &domain.ErrConflict{Message: "work order " + wo.Number + " is cancelled"}
		}
	}
	if err := requireRef(ctx, s.repos.Jobs, "scheduledJobId", domain.KindScheduledJob, req.ScheduledJobID); err != nil {
		return nil, err
	}
	if err := s.requireActiveCrew(ctx, req.EmployeeIDs); err != nil {
		return nil, err
	}
	if err := requireRef(ctx, s.repos.Employees, "crewLeadId", domain.KindEmployee, req.CrewLeadID); err != nil {
		return nil, err
	}
	if err := s.requireAvailableEquipment(ctx, req.EquipmentIDs); err != nil {
		return nil, err
	}

	t, err := domain.StartTimeEntry(req, s.now())
	if err != nil {
		return nil, err
	}
	if err := create(ctx, &s.core, s.repos.TimeEntries, domain.KindTimeEntry, t); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("time_entry.id", t.ID.String()))
	s.logger.Info("timer started",
		zap.String("time_entry_id", t.ID.String()),
		zap.String("task_type", string(t.TaskType)),
		zap.String("category", t.TaskCategory),
		zap.Int("crew", len(t.EmployeeIDs)),
	)
	return t, nil
}

func (s *TimeEntryService) Get(ctx context.Context, id uuid.UUID) (*domain.TimeEntry, error) {
	ctx, span := timeEntryTracer.Start(ctx, "TimeEntryService.Get")
	defer span.End()

	return s.repos.TimeEntries.Get(ctx, id)
}

func (s *TimeEntryService) List(ctx context.Context, f TimeEntryFilter) ([]*domain.TimeEntry, error) {
	ctx, span := timeEntryTracer.Start(ctx, "TimeEntryService.List")
	defer span.End()

	return s.repos.TimeEntries.List(ctx, f.match)
}

func (s *TimeEntryService) Pause(ctx context.Context, id uuid.UUID, expected *int) (*domain.TimeEntry, error) {
	ctx, span := timeEntryTracer.Start(ctx, "TimeEntryService.Pause")
	defer span.End()

	now := s.now()
	return mutate(ctx, &s.core, s.repos.TimeEntries, domain.KindTimeEntry, id, expected, func(t *domain.TimeEntry) error {
		return t.Pause(now)
	})
}

func (s *TimeEntryService) Resume(ctx context.Context, id uuid.UUID, expected *int) (*domain.TimeEntry, error) {
	ctx, span := timeEntryTracer.Start(ctx, "TimeEntryService.Resume")
	defer span.End()

	now := s.now()
	return mutate(ctx, &s.core, s.repos.TimeEntries, domain.KindTimeEntry, id, expected, func(t *domain.TimeEntry) error {
		return t.Resume(now)
	})
}

// Complete stops the timer and prices it from the crew's true business
// cost and the equipment's hourly cost. The hours then flow into the work
// order, the equipment hour meters and the crew's performance record.
func (s *TimeEntryService) Complete(ctx context.Context, id uuid.UUID, req StopRequest, expected *int) (*domain.TimeEntry, error) {
	ctx, span := timeEntryTracer.Start(ctx, "TimeEntryService.Complete")
	defer span.End()
	defer s.observe("TimeEntryService.Complete", time.Now())

	current, err := s.repos.TimeEntries.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	crewCost, err := s.crewHourlyCost(ctx, current.EmployeeIDs)
	if err != nil {
		return nil, err
	}
	equipmentCost, err := s.equipmentHourlyCost(ctx, current.EquipmentIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	at := now
	if req.At != nil {
		at = req.At.UTC()
	}
	t, err := mutate(ctx, &s.core, s.repos.TimeEntries, domain.KindTimeEntry, id, expected, func(t *domain.TimeEntry) error {
		return t.Complete(domain.Completion{
			At:                  at,
			Location:            req.Location,
			Points:              req.Points,
			CrewHourlyCost:      crewCost,
			EquipmentHourlyCost: equipmentCost,
			Notes:               req.Notes,
		})
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Float64("time_entry.duration", t.Duration),
		attribute.Float64("time_entry.cost", t.TotalCost()),
	)
	s.logger.Info("timer stopped",
		zap.String("time_entry_id", id.String()),
		zap.Float64("duration_hours", t.Duration),
		zap.Float64("labor_cost", t.LaborCost),
		zap.Float64("equipment_cost", t.EquipmentCost),
	)

	if t.WorkOrderID != nil {
		s.foldIntoWorkOrder(ctx, t)
	}
	s.logEquipmentHours(ctx, t)
	s.recordCrewPerformance(ctx, t)
	return t, nil
}

func (s *TimeEntryService) foldIntoWorkOrder(ctx context.Context, t *domain.TimeEntry) {
	now := s.now()
	wo, err := touchWithRetry(ctx, &s.core, s.repos.WorkOrders, domain.KindWorkOrder, *t.WorkOrderID, func(w *domain.WorkOrder) error {
		return w.AddTimeEntry(t.ID, t.Totals(), now)
	})
	if err != nil {
		s.logger.Error("time entry not added to work order",
			zap.String("time_entry_id", t.ID.String()),
			zap.String("work_order_id", t.WorkOrderID.String()),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("work order progress",
		zap.String("work_order_id", wo.ID.String()),
		zap.Float64("hours_tracked", wo.TotalHoursTracked()),
		zap.Int("completion", wo.CompletionPercentage()),
	)
}

func (s *TimeEntryService) logEquipmentHours(ctx context.Context, t *domain.TimeEntry) {
	if t.Duration <= 0 {
		return
	}
	for _, equipmentID := range t.EquipmentIDs {
		now := s.now()
		_, err := touchWithRetry(ctx, &s.core, s.repos.Equipment, domain.KindEquipment, equipmentID, func(e *domain.Equipment) error {
			return e.LogUsage(t.Duration, *t.EndTime, 0, now)
		})
		if err != nil {
			s.logger.Warn("equipment hours not logged",
				zap.String("equipment_id", equipmentID.String()),
				zap.String("time_entry_id", t.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// recordCrewPerformance books the hours on every crew member and splits
// the points evenly between them.
func (s *TimeEntryService) recordCrewPerformance(ctx context.Context, t *domain.TimeEntry) {
	if len(t.EmployeeIDs) == 0 {
		return
	}
	share := 0.0
	if t.PointsCompleted != nil {
		share = *t.PointsCompleted / float64(len(t.EmployeeIDs))
	}
	for _, employeeID := range t.EmployeeIDs {
		now := s.now()
		_, err := touchWithRetry(ctx, &s.core, s.repos.Employees, domain.KindEmployee, employeeID, func(e *domain.Employee) error {
			return e.RecordJob(t.Duration, share, now)
		})
		if err != nil {
			s.logger.Warn("crew performance not recorded",
				zap.String("employee_id", employeeID.String()),
				zap.String("time_entry_id", t.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// crewHourlyCost sums the true business cost of the crew.
func (c *core) crewHourlyCost(ctx context.Context, ids []uuid.UUID) (float64, error) {
	total := 0.0
	for _, id := range ids {
		e, err := c.repos.Employees.Get(ctx, id)
		if err != nil {
			return 0, asReference(err, "employeeIds", domain.KindEmployee, id)
		}
		total += e.Compensation().TrueBusinessCost
	}
	return total, nil
}

// equipmentHourlyCost sums the total hourly cost of the equipment.
func (c *core) equipmentHourlyCost(ctx context.Context, ids []uuid.UUID) (float64, error) {
	total := 0.0
	for _, id := range ids {
		e, err := c.repos.Equipment.Get(ctx, id)
		if err != nil {
			return 0, asReference(err, "equipmentIds", domain.KindEquipment, id)
		}
		total += e.Costs().Total
	}
	return total, nil
}
