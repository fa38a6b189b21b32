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

var proposalTracer = otel.Tracer("service/proposals")

// ProposalRequest drafts a proposal for a lead. Nil TaxRate and empty
// PaymentTerms fall back to the customer's terms and the company defaults.
type ProposalRequest struct {
	LeadID                uuid.UUID              `json:"leadId"`
	LineItems             []domain.LineItemInput `json:"lineItems"`
	TaxRate               *float64               `json:"taxRate,omitempty"`
	PaymentTerms          string                 `json:"paymentTerms,omitempty"`
	DepositRequired       *float64               `json:"depositRequired,omitempty"`
	EstimatedCrewIDs      []uuid.UUID            `json:"estimatedCrewIds,omitempty"`
	EstimatedEquipmentIDs []uuid.UUID            `json:"estimatedEquipmentIds,omitempty"`
	Notes                 string                 `json:"notes,omitempty"`
	InternalNotes         string                 `json:"internalNotes,omitempty"`
}

// ProposalFilter narrows List. Zero value matches everything.
type ProposalFilter struct {
	Status     *domain.ProposalStatus
	LeadID     *uuid.UUID
	CustomerID *uuid.UUID
}

func (f ProposalFilter) match(p *domain.Proposal) bool {
	if f.Status != nil && p.Status != *f.Status {
		return false
	}
	if f.LeadID != nil && p.LeadID != *f.LeadID {
		return false
	}
	if f.CustomerID != nil && (p.CustomerID == nil || *p.CustomerID != *f.CustomerID) {
		return false
	}
	return true
}

// ProposalService prices leads and converts accepted proposals into work
// orders.
type ProposalService struct {
	core
}

func NewProposalService(repos *port.Repositories, metrics *observability.Metrics, logger *zap.Logger) *ProposalService {
	return &ProposalService{core: newCore(repos, metrics, logger)}
}

// ============================================================
// Create (POST /v1/proposals)
// ============================================================

// Create drafts a proposal and moves the lead to PROPOSAL. A lead holds at
// most one open proposal.
func (s *ProposalService) Create(ctx context.Context, req ProposalRequest, actor string) (*domain.Proposal, error) {
	ctx, span := proposalTracer.Start(ctx, "ProposalService.Create")
	defer span.End()
	defer s.observe("ProposalService.Create", time.Now())
	span.SetAttributes(attribute.String("lead.id", req.LeadID.String()))

	lead, err := s.repos.Leads.Get(ctx, req.LeadID)
	if err != nil {
		return nil, err
	}
	if lead.IsArchived {
		return nil, &domain.ErrConflict{Message: "cannot propose for an archived lead"}
	}
	if lead.ProposalID != nil {
		current, err := s.repos.Proposals.Get(ctx, *lead.ProposalID)
		if err == nil && current.Open() {
			return nil, &domain.ErrConflict{Message: "lead already has open proposal " + current.Number}
		}
	}
	if err := requireRefs(ctx, s.repos.Employees, "estimatedCrewIds", domain.KindEmployee, req.EstimatedCrewIDs); err != nil {
		return nil, err
	}
	if err := requireRefs(ctx, s.repos.Equipment, "estimatedEquipmentIds", domain.KindEquipment, req.EstimatedEquipmentIDs); err != nil {
		return nil, err
	}

	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}
	taxRate := settings.TaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}
	terms := req.PaymentTerms
	if terms == "" && lead.CustomerID != nil {
		if cu, err := s.repos.Customers.Get(ctx, *lead.CustomerID); err == nil {
			terms = cu.PaymentTerms
		}
	}
	if terms == "" {
		terms = settings.PaymentTerms
	}

	now := s.now()
	p, err := domain.NewProposal(lead, req.LineItems, taxRate, terms, now)
	if err != nil {
		return nil, err
	}
	p.DepositRequired = req.DepositRequired
	p.EstimatedCrewIDs = req.EstimatedCrewIDs
	p.EstimatedEquipmentIDs = req.EstimatedEquipmentIDs
	p.Notes = req.Notes
	p.InternalNotes = req.InternalNotes
	if lead.PropertyID != nil {
		if prop, err := s.repos.Properties.Get(ctx, *lead.PropertyID); err == nil && prop.AFISS != nil {
			m := prop.AFISSMultiplier()
			p.AFISSMultiplier = &m
		}
	}

	if err := create(ctx, &s.core, s.repos.Proposals, domain.KindProposal, p); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("proposal.number", p.Number))

	s.linkParties(ctx, p.CustomerID, p.PropertyID, domain.KindProposal, p.ID)
	s.advanceLead(ctx, lead.ID, domain.StageProposal, "proposal "+p.Number+" drafted", actor, func(l *domain.Lead) {
		id := p.ID
		l.ProposalID = &id
	})

	s.logger.Info("proposal created",
		zap.String("proposal_id", p.ID.String()),
		zap.String("number", p.Number),
		zap.String("lead_id", lead.ID.String()),
		zap.Float64("total", p.Totals().TotalAmount),
	)
	return p, nil
}

func (s *ProposalService) Get(ctx context.Context, id uuid.UUID) (*domain.Proposal, error) {
	ctx, span := proposalTracer.Start(ctx, "ProposalService.Get")
	defer span.End()

	return s.repos.Proposals.Get(ctx, id)
}

func (s *ProposalService) List(ctx context.Context, f ProposalFilter) ([]*domain.Proposal, error) {
	ctx, span := proposalTracer.Start(ctx, "ProposalService.List")
	defer span.End()

	return s.repos.Proposals.List(ctx, f.match)
}

// ============================================================
// Draft editing
// ============================================================

func (s *ProposalService) AddLineItem(ctx context.Context, id uuid.UUID, in domain.LineItemInput, expected *int) (*domain.Proposal, error) {
	ctx, span := proposalTracer.Start(ctx, "ProposalService.AddLineItem")
	defer span.End()

	now := s.now()
	return mutate(ctx, &s.core, s.repos.Proposals, domain.KindProposal, id, expected, func(p *domain.Proposal) error {
		_, err := p.AddLineItem(in, now)
		return err
	})
}

func (s *ProposalService) UpdateLineItem(ctx context.Context, id, itemID uuid.UUID, in domain.LineItemInput, expected *int) (*domain.Proposal, error) {
	ctx, span := proposalTracer.Start(ctx, "ProposalService.UpdateLineItem")
	defer span.End()

	now := s.now()
	return mutate(ctx, &s.core, s.repos.Proposals, domain.KindProposal, id, expected, func(p *domain.Proposal) error {
		return p.UpdateLineItem(itemID, in, now)
	})
}

func (s *ProposalService) RemoveLineItem(ctx context.Context, id, itemID uuid.UUID, expected *int) (*domain.Proposal, error) {
	ctx, span := proposalTracer.Start(ctx, "ProposalService.RemoveLineItem")
	defer span.End()

	now := s.now()
	return mutate(ctx, &s.core, s.repos.Proposals, domain.KindProposal, id, expected, func(p *domain.Proposal) error {
		return p.RemoveLineItem(itemID, now)
	})
}

func (s *ProposalService) SetTaxRate(ctx context.Context, id uuid.UUID, rate float64, expected *int) (*domain.Proposal, error) {
	ctx, span := proposalTracer.Start(ctx, "ProposalService.SetTaxRate")
	defer span.End()

	now := s.now()
	return mutate(ctx, &s.core, s.repos.Proposals, domain.KindProposal, id, expected, func(p *domain.Proposal) error {
		return p.SetTaxRate(rate, now)
	})
}

// ============================================================
// Customer-facing status
// ============================================================

func (s *ProposalService) Send(ctx context.Context, id uuid.UUID, expected *int) (*domain.Proposal, error) {
	ctx, span := proposalTracer.Start(ctx, "ProposalService.Send")
	defer span.End()
	defer s.observe("ProposalService.Send", time.Now())

	now := s.now()
	p, err := mutate(ctx, &s.core, s.repos.Proposals, domain.KindProposal, id, expected, func(p *domain.Proposal) error {
		return p.MarkSent(now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrProposalOutcome(domain.ProposalSent)
	s.logger.Info("proposal sent", zap.String("proposal_id", id.String()), zap.String("number", p.Number))
	return p, nil
}

// View records that the customer opened the proposal. It never carries a
// caller version.
func (s *ProposalService) View(ctx context.Context, id uuid.UUID) (*domain.Proposal, error) {
	ctx, span := proposalTracer.Start(ctx, "ProposalService.View")
	defer span.End()

	now := s.now()
	return touchWithRetry(ctx, &s.core, s.repos.Proposals, domain.KindProposal, id, func(p *domain.Proposal) error {
		p.MarkViewed(now)
		return nil
	})
}

// Accept accepts the proposal, creates its work order and moves the lead
// to WORK_ORDER. The proposal write decides races: a second accept loses
// on the version check.
func (s *ProposalService) Accept(ctx context.Context, id uuid.UUID, priority domain.Priority, actor string, expected *int) (*domain.Proposal, *domain.WorkOrder, error) {
	ctx, span := proposalTracer.Start(ctx, "ProposalService.Accept")
	defer span.End()
	defer s.observe("ProposalService.Accept", time.Now())
	span.SetAttributes(attribute.String("proposal.id", id.String()))

	now := s.now()
	var wo *domain.WorkOrder
	p, err := mutate(ctx, &s.core, s.repos.Proposals, domain.KindProposal, id, expected, func(p *domain.Proposal) error {
		if err := p.MarkAccepted(now); err != nil {
			return err
		}
		var err error
		wo, err = domain.NewWorkOrderFromProposal(p, priority, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.metrics.IncrProposalOutcome(domain.ProposalAccepted)

	if err := create(ctx, &s.core, s.repos.WorkOrders, domain.KindWorkOrder, wo); err != nil {
		s.logger.Error("work order not stored for accepted proposal",
			zap.String("proposal_id", p.ID.String()),
			zap.String("work_order_id", wo.ID.String()),
			zap.Error(err),
		)
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("work_order.number", wo.Number))

	s.linkParties(ctx, wo.CustomerID, wo.PropertyID, domain.KindWorkOrder, wo.ID)
	s.advanceLead(ctx, p.LeadID, domain.StageWorkOrder, "proposal "+p.Number+" accepted", actor, func(l *domain.Lead) {
		woID := wo.ID
		l.WorkOrderID = &woID
	})

	s.logger.Info("proposal accepted",
		zap.String("proposal_id", p.ID.String()),
		zap.String("work_order_id", wo.ID.String()),
		zap.String("work_order_number", wo.Number),
	)
	return p, wo, nil
}

func (s *ProposalService) Decline(ctx context.Context, id uuid.UUID, reason string, expected *int) (*domain.Proposal, error) {
	ctx, span := proposalTracer.Start(ctx, "ProposalService.Decline")
	defer span.End()

	now := s.now()
	p, err := mutate(ctx, &s.core, s.repos.Proposals, domain.KindProposal, id, expected, func(p *domain.Proposal) error {
		return p.MarkDeclined(reason, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrProposalOutcome(domain.ProposalDeclined)
	s.logger.Info("proposal declined",
		zap.String("proposal_id", id.String()),
		zap.String("reason", reason),
	)
	return p, nil
}

func (s *ProposalService) RecordDeposit(ctx context.Context, id uuid.UUID, expected *int) (*domain.Proposal, error) {
	ctx, span := proposalTracer.Start(ctx, "ProposalService.RecordDeposit")
	defer span.End()

	now := s.now()
	return mutate(ctx, &s.core, s.repos.Proposals, domain.KindProposal, id, expected, func(p *domain.Proposal) error {
		return p.RecordDeposit(now)
	})
}

// ExpireStale closes every sent or viewed proposal past its expiration
// date and returns how many it closed.
func (s *ProposalService) ExpireStale(ctx context.Context) (int, error) {
	ctx, span := proposalTracer.Start(ctx, "ProposalService.ExpireStale")
	defer span.End()

	now := s.now()
	stale, err := s.repos.Proposals.List(ctx, func(p *domain.Proposal) bool {
		return (p.Status == domain.ProposalSent || p.Status == domain.ProposalViewed) && now.After(p.ExpirationDate)
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range stale {
		var changed bool
		_, err := touchWithRetry(ctx, &s.core, s.repos.Proposals, domain.KindProposal, candidate.ID, func(p *domain.Proposal) error {
			changed = p.Expire(now)
			return nil
		})
		if err != nil {
			s.logger.Warn("proposal not expired",
				zap.String("proposal_id", candidate.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if changed {
			expired++
			s.metrics.IncrProposalOutcome(domain.ProposalExpired)
		}
	}
	span.SetAttributes(attribute.Int("proposals.expired", expired))
	return expired, nil
}
