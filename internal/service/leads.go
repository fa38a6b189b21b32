package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/port"
)

var leadTracer = otel.Tracer("service/leads")

// LeadService runs intake and the manual pipeline moves of a lead.
type LeadService struct {
	core
}

func NewLeadService(repos *port.Repositories, metrics *observability.Metrics, logger *zap.Logger) *LeadService {
	return &LeadService{core: newCore(repos, metrics, logger)}
}

// ============================================================
// Create (POST /v1/leads)
// ============================================================

func (s *LeadService) Create(ctx context.Context, details domain.LeadDetails, actor string) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.Create")
	defer span.End()
	defer s.observe("LeadService.Create", time.Now())

	if err := requireRef(ctx, s.repos.Customers, "customerId", domain.KindCustomer, details.CustomerID); err != nil {
		return nil, err
	}
	if err := requireRef(ctx, s.repos.Properties, "propertyId", domain.KindProperty, details.PropertyID); err != nil {
		return nil, err
	}

	lead, err := domain.NewLead(details, actor, s.now())
	if err != nil {
		return nil, err
	}
	if err := create(ctx, &s.core, s.repos.Leads, domain.KindLead, lead); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("lead.id", lead.ID.String()))

	s.linkParties(ctx, lead.CustomerID, lead.PropertyID, domain.KindLead, lead.ID)
	s.logger.Info("lead created",
		zap.String("lead_id", lead.ID.String()),
		zap.String("source", string(lead.Source)),
		zap.String("urgency", string(lead.Urgency)),
	)
	return lead, nil
}

func (s *LeadService) Get(ctx context.Context, id uuid.UUID) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.Get")
	defer span.End()

	return s.repos.Leads.Get(ctx, id)
}

// List returns the leads matching f, oldest first.
func (s *LeadService) List(ctx context.Context, f domain.LeadFilter) ([]*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.List")
	defer span.End()

	now := s.now()
	return s.repos.Leads.List(ctx, func(l *domain.Lead) bool { return f.Match(l, now) })
}

// ============================================================
// Stage moves
// ============================================================

// Advance moves the lead to its next stage.
func (s *LeadService) Advance(ctx context.Context, id uuid.UUID, notes, actor string, expected *int) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.Advance")
	defer span.End()
	defer s.observe("LeadService.Advance", time.Now())
	span.SetAttributes(attribute.String("lead.id", id.String()))

	var from domain.WorkflowStage
	now := s.now()
	lead, err := mutate(ctx, &s.core, s.repos.Leads, domain.KindLead, id, expected, func(l *domain.Lead) error {
		from = l.Stage()
		return l.Advance(notes, actor, now)
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(lead, from, "advance")
	return lead, nil
}

// SetStage is the administrative override to any stage.
func (s *LeadService) SetStage(ctx context.Context, id uuid.UUID, target domain.WorkflowStage, notes, actor string, expected *int) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.SetStage")
	defer span.End()
	defer s.observe("LeadService.SetStage", time.Now())
	span.SetAttributes(
		attribute.String("lead.id", id.String()),
		attribute.String("lead.target_stage", string(target)),
	)

	var from domain.WorkflowStage
	now := s.now()
	lead, err := mutate(ctx, &s.core, s.repos.Leads, domain.KindLead, id, expected, func(l *domain.Lead) error {
		from = l.Stage()
		return l.SetStage(target, notes, actor, now)
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(lead, from, "admin_override")
	return lead, nil
}

func (s *LeadService) transitioned(lead *domain.Lead, from domain.WorkflowStage, kind string) {
	s.metrics.IncrStageTransition(from, lead.Stage())
	s.logger.Info("lead stage changed",
		zap.String("lead_id", lead.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(lead.Stage())),
		zap.String("kind", kind),
	)
}

// ============================================================
// Follow-up and site visits
// ============================================================

// ContactRequest logs one follow-up attempt. A nil NextFollowUp clears the
// reminder.
type ContactRequest struct {
	At           *time.Time `json:"at,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	NextFollowUp *time.Time `json:"nextFollowUp,omitempty"`
}

func (s *LeadService) RecordContact(ctx context.Context, id uuid.UUID, req ContactRequest, expected *int) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.RecordContact")
	defer span.End()

	now := s.now()
	at := now
	if req.At != nil {
		at = req.At.UTC()
	}
	return mutate(ctx, &s.core, s.repos.Leads, domain.KindLead, id, expected, func(l *domain.Lead) error {
		l.RecordContact(at, req.Notes, req.NextFollowUp, now)
		return nil
	})
}

// ScheduleSiteVisit records a walkthrough date without booking a calendar
// slot. ScheduleService.Create books the slot and links it here.
func (s *LeadService) ScheduleSiteVisit(ctx context.Context, id uuid.UUID, at time.Time, assignee *uuid.UUID, expected *int) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.ScheduleSiteVisit")
	defer span.End()

	if err := requireRef(ctx, s.repos.Employees, "assignedTo", domain.KindEmployee, assignee); err != nil {
		return nil, err
	}
	now := s.now()
	return mutate(ctx, &s.core, s.repos.Leads, domain.KindLead, id, expected, func(l *domain.Lead) error {
		return l.ScheduleSiteVisit(at, l.SiteVisit.ScheduledJobID, assignee, now)
	})
}

func (s *LeadService) CompleteSiteVisit(ctx context.Context, id uuid.UUID, at *time.Time, notes string, expected *int) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.CompleteSiteVisit")
	defer span.End()

	now := s.now()
	done := now
	if at != nil {
		done = at.UTC()
	}
	return mutate(ctx, &s.core, s.repos.Leads, domain.KindLead, id, expected, func(l *domain.Lead) error {
		return l.CompleteSiteVisit(done, notes, now)
	})
}

func (s *LeadService) Archive(ctx context.Context, id uuid.UUID, reason string, expected *int) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.Archive")
	defer span.End()

	now := s.now()
	lead, err := mutate(ctx, &s.core, s.repos.Leads, domain.KindLead, id, expected, func(l *domain.Lead) error {
		return l.Archive(reason, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("lead archived",
		zap.String("lead_id", id.String()),
		zap.String("stage", string(lead.Stage())),
		zap.String("reason", reason),
	)
	return lead, nil
}

// Stats aggregates the whole pipeline.
func (s *LeadService) Stats(ctx context.Context) (domain.LeadStats, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.Stats")
	defer span.End()

	leads, err := s.repos.Leads.List(ctx, nil)
	if err != nil {
		return domain.LeadStats{}, err
	}
	return domain.ComputeLeadStats(leads, s.now()), nil
}
