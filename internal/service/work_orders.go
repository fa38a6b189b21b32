package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/port"
)

var workOrderTracer = otel.Tracer("service/work_orders")

// WorkOrderFilter narrows List. Zero value matches everything.
type WorkOrderFilter struct {
	Status     *domain.WorkOrderStatus
	LeadID     *uuid.UUID
	EmployeeID *uuid.UUID
}

func (f WorkOrderFilter) match(w *domain.WorkOrder) bool {
	if f.Status != nil && w.Status != *f.Status {
		return false
	}
	if f.LeadID != nil && w.LeadID != *f.LeadID {
		return false
	}
	if f.EmployeeID != nil {
		for _, id := range w.AssignedEmployeeIDs {
			if id == *f.EmployeeID {
				return true
			}
		}
		return false
	}
	return true
}

// CrewAssignment replaces a work order's crew.
type CrewAssignment struct {
	EmployeeIDs []uuid.UUID `json:"employeeIds"`
	CrewLeadID  *uuid.UUID  `json:"crewLeadId,omitempty"`
}

// JournalRequest is one on-site note.
type JournalRequest struct {
	Type        domain.JournalEntryType `json:"entryType"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	AuthorID    *uuid.UUID              `json:"authorId,omitempty"`
}

// WorkOrderService runs work order execution.
type WorkOrderService struct {
	core
}

func NewWorkOrderService(repos *port.Repositories, metrics *observability.Metrics, logger *zap.Logger) *WorkOrderService {
	return &WorkOrderService{core: newCore(repos, metrics, logger)}
}

func (s *WorkOrderService) Get(ctx context.Context, id uuid.UUID) (*domain.WorkOrder, error) {
	ctx, span := workOrderTracer.Start(ctx, "WorkOrderService.Get")
	defer span.End()

	return s.repos.WorkOrders.Get(ctx, id)
}

func (s *WorkOrderService) List(ctx context.Context, f WorkOrderFilter) ([]*domain.WorkOrder, error) {
	ctx, span := workOrderTracer.Start(ctx, "WorkOrderService.List")
	defer span.End()

	return s.repos.WorkOrders.List(ctx, f.match)
}

// ============================================================
// Status
// ============================================================

// Start begins work, or resumes a work order on hold.
func (s *WorkOrderService) Start(ctx context.Context, id uuid.UUID, expected *int) (*domain.WorkOrder, error) {
	return s.transition(ctx, "WorkOrderService.Start", id, expected, func(w *domain.WorkOrder, now time.Time) error {
		return w.StartWork(now)
	})
}

// Complete closes the work order and records the work on every tree its
// line items name. Trees under a removal line are marked removed.
func (s *WorkOrderService) Complete(ctx context.Context, id uuid.UUID, expected *int) (*domain.WorkOrder, error) {
	wo, err := s.transition(ctx, "WorkOrderService.Complete", id, expected, func(w *domain.WorkOrder, now time.Time) error {
		return w.CompleteWork(now)
	})
	if err != nil {
		return nil, err
	}
	s.recordTreeWork(ctx, wo)
	return wo, nil
}

func (s *WorkOrderService) Hold(ctx context.Context, id uuid.UUID, reason string, expected *int) (*domain.WorkOrder, error) {
	return s.transition(ctx, "WorkOrderService.Hold", id, expected, func(w *domain.WorkOrder, now time.Time) error {
		return w.Hold(reason, now)
	})
}

func (s *WorkOrderService) Cancel(ctx context.Context, id uuid.UUID, reason string, expected *int) (*domain.WorkOrder, error) {
	return s.transition(ctx, "WorkOrderService.Cancel", id, expected, func(w *domain.WorkOrder, now time.Time) error {
		return w.Cancel(reason, now)
	})
}

func (s *WorkOrderService) transition(ctx context.Context, op string, id uuid.UUID, expected *int, fn func(*domain.WorkOrder, time.Time) error) (*domain.WorkOrder, error) {
	ctx, span := workOrderTracer.Start(ctx, op)
	defer span.End()
	defer s.observe(op, time.Now())
	span.SetAttributes(attribute.String("work_order.id", id.String()))

	var from domain.WorkOrderStatus
	now := s.now()
	wo, err := mutate(ctx, &s.core, s.repos.WorkOrders, domain.KindWorkOrder, id, expected, func(w *domain.WorkOrder) error {
		from = w.Status
		return fn(w, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("work order status changed",
		zap.String("work_order_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(wo.Status)),
	)
	return wo, nil
}

func (s *WorkOrderService) recordTreeWork(ctx context.Context, wo *domain.WorkOrder) {
	now := s.now()
	for _, item := range wo.LineItems() {
		if len(item.TreeIDs) == 0 {
			continue
		}
		share := item.EstimatedCost / float64(len(item.TreeIDs))
		for _, treeID := range item.TreeIDs {
			_, err := touchWithRetry(ctx, &s.core, s.repos.Trees, domain.KindTree, treeID, func(t *domain.Tree) error {
				if _, err := t.AddWorkRecord(item.ServiceType, now, share, "work order "+wo.Number, now); err != nil {
					return err
				}
				if item.ServiceType == domain.ServiceTreeRemoval && !t.IsRemoved() {
					return t.MarkAsRemoved(now, now)
				}
				return nil
			})
			var notFound *domain.ErrNotFound
			if err != nil && !errors.As(err, &notFound) {
				s.logger.Warn("tree work not recorded",
					zap.String("work_order_id", wo.ID.String()),
					zap.String("tree_id", treeID.String()),
					zap.Error(err),
				)
			}
		}
	}
}

// ============================================================
// Crew, equipment and progress
// ============================================================

// AssignCrew replaces the crew. Every member must be an active employee.
func (s *WorkOrderService) AssignCrew(ctx context.Context, id uuid.UUID, req CrewAssignment, expected *int) (*domain.WorkOrder, error) {
	ctx, span := workOrderTracer.Start(ctx, "WorkOrderService.AssignCrew")
	defer span.End()

	if err := s.requireActiveCrew(ctx, req.EmployeeIDs); err != nil {
		return nil, err
	}
	now := s.now()
	return mutate(ctx, &s.core, s.repos.WorkOrders, domain.KindWorkOrder, id, expected, func(w *domain.WorkOrder) error {
		return w.AssignCrew(req.EmployeeIDs, req.CrewLeadID, now)
	})
}

// AssignEquipment replaces the equipment list. Every unit must be in
// service.
func (s *WorkOrderService) AssignEquipment(ctx context.Context, id uuid.UUID, equipmentIDs []uuid.UUID, expected *int) (*domain.WorkOrder, error) {
	ctx, span := workOrderTracer.Start(ctx, "WorkOrderService.AssignEquipment")
	defer span.End()

	if err := s.requireAvailableEquipment(ctx, equipmentIDs); err != nil {
		return nil, err
	}
	now := s.now()
	return mutate(ctx, &s.core, s.repos.WorkOrders, domain.KindWorkOrder, id, expected, func(w *domain.WorkOrder) error {
		w.AssignEquipment(equipmentIDs, now)
		return nil
	})
}

func (s *WorkOrderService) UpdateLineItem(ctx context.Context, id, itemID uuid.UUID, progress domain.LineItemProgress, expected *int) (*domain.WorkOrder, error) {
	ctx, span := workOrderTracer.Start(ctx, "WorkOrderService.UpdateLineItem")
	defer span.End()

	if err := requireRefs(ctx, s.repos.Employees, "assignedToEmployeeIds", domain.KindEmployee, progress.AssignedTo); err != nil {
		return nil, err
	}
	now := s.now()
	return mutate(ctx, &s.core, s.repos.WorkOrders, domain.KindWorkOrder, id, expected, func(w *domain.WorkOrder) error {
		return w.UpdateLineItem(itemID, progress, now)
	})
}

// AddJournalEntry appends a note. Journal entries never conflict with
// other edits, so no caller version is taken.
func (s *WorkOrderService) AddJournalEntry(ctx context.Context, id uuid.UUID, req JournalRequest) (domain.JournalEntry, error) {
	ctx, span := workOrderTracer.Start(ctx, "WorkOrderService.AddJournalEntry")
	defer span.End()

	if req.Type == "" {
		req.Type = domain.JournalNote
	}
	if _, err := domain.ParseJournalEntryType(string(req.Type)); err != nil {
		return domain.JournalEntry{}, err
	}
	if err := requireRef(ctx, s.repos.Employees, "authorId", domain.KindEmployee, req.AuthorID); err != nil {
		return domain.JournalEntry{}, err
	}

	now := s.now()
	var entry domain.JournalEntry
	_, err := touchWithRetry(ctx, &s.core, s.repos.WorkOrders, domain.KindWorkOrder, id, func(w *domain.WorkOrder) error {
		var err error
		entry, err = w.AddJournalEntry(req.Type, req.Title, req.Description, req.AuthorID, now)
		return err
	})
	if err != nil {
		return domain.JournalEntry{}, err
	}
	if req.Type == domain.JournalIncident {
		s.logger.Warn("incident logged on work order",
			zap.String("work_order_id", id.String()),
			zap.String("title", req.Title),
		)
	}
	return entry, nil
}

func (c *core) requireActiveCrew(ctx context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		e, err := c.repos.Employees.Get(ctx, id)
		if err != nil {
			return asReference(err, "employeeIds", domain.KindEmployee, id)
		}
		if !e.IsActive() {
			return &domain.ErrValidation{Field: "employeeIds", Message: e.FullName() + " is not active"}
		}
	}
	return nil
}

func (c *core) requireAvailableEquipment(ctx context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		eq, err := c.repos.Equipment.Get(ctx, id)
		if err != nil {
			return asReference(err, "equipmentIds", domain.KindEquipment, id)
		}
		if !eq.IsAvailable() {
			return &domain.ErrValidation{Field: "equipmentIds", Message: eq.Name + " is " + string(eq.Status)}
		}
	}
	return nil
}
