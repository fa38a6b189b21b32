package service

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/geo"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/port"
)

var propertyTracer = otel.Tracer("service/properties")

// PropertyFilter narrows List. Archived properties are hidden unless
// IncludeArchived is set.
type PropertyFilter struct {
	CustomerID      *uuid.UUID
	IncludeArchived bool
}

// AFISSRequest is a site-complexity assessment.
type AFISSRequest struct {
	domain.AFISSScores
	AssessorID *uuid.UUID `json:"assessorId,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// TreeInventory is a property's linked trees with score totals over the
// trees still standing.
type TreeInventory struct {
	Trees          []*domain.Tree `json:"trees"`
	Standing       int            `json:"standing"`
	Removed        int            `json:"removed"`
	TotalTreeScore float64        `json:"totalTreeScore"`
	TotalTrimScore float64        `json:"totalTrimScore"`
}

// PropertyService manages job sites and their tree inventory.
type PropertyService struct {
	core
}

func NewPropertyService(repos *port.Repositories, metrics *observability.Metrics, logger *zap.Logger) *PropertyService {
	return &PropertyService{core: newCore(repos, metrics, logger)}
}

// Create stores the property and adds it to its customer.
func (s *PropertyService) Create(ctx context.Context, details domain.PropertyDetails) (*domain.Property, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.Create")
	defer span.End()

	if err := requireRef(ctx, s.repos.Customers, "customerId", domain.KindCustomer, details.CustomerID); err != nil {
		return nil, err
	}
	p, err := domain.NewProperty(details, s.now())
	if err != nil {
		return nil, err
	}
	if err := create(ctx, &s.core, s.repos.Properties, domain.KindProperty, p); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("property.id", p.ID.String()))
	s.attachToCustomer(ctx, p.CustomerID, p.ID)
	return p, nil
}

func (s *PropertyService) Get(ctx context.Context, id uuid.UUID) (*domain.Property, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.Get")
	defer span.End()

	return s.repos.Properties.Get(ctx, id)
}

func (s *PropertyService) List(ctx context.Context, f PropertyFilter) ([]*domain.Property, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.List")
	defer span.End()

	return s.repos.Properties.List(ctx, func(p *domain.Property) bool {
		if !p.IsActive && !f.IncludeArchived {
			return false
		}
		return f.CustomerID == nil || (p.CustomerID != nil && *p.CustomerID == *f.CustomerID)
	})
}

// Update replaces the editable attributes. Moving the property to another
// customer adds it to that customer's list.
func (s *PropertyService) Update(ctx context.Context, id uuid.UUID, details domain.PropertyDetails, expected *int) (*domain.Property, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.Update")
	defer span.End()

	if err := requireRef(ctx, s.repos.Customers, "customerId", domain.KindCustomer, details.CustomerID); err != nil {
		return nil, err
	}
	now := s.now()
	p, err := mutate(ctx, &s.core, s.repos.Properties, domain.KindProperty, id, expected, func(p *domain.Property) error {
		return p.Update(details, now)
	})
	if err != nil {
		return nil, err
	}
	s.attachToCustomer(ctx, p.CustomerID, p.ID)
	return p, nil
}

func (s *PropertyService) attachToCustomer(ctx context.Context, customerID *uuid.UUID, propertyID uuid.UUID) {
	if customerID == nil {
		return
	}
	now := s.now()
	_, err := touchWithRetry(ctx, &s.core, s.repos.Customers, domain.KindCustomer, *customerID, func(c *domain.Customer) error {
		c.AddProperty(propertyID, now)
		return nil
	})
	if err != nil {
		s.logger.Warn("property not attached to customer",
			zap.String("customer_id", customerID.String()),
			zap.String("property_id", propertyID.String()),
			zap.Error(err),
		)
	}
}

func (s *PropertyService) UpdateAFISS(ctx context.Context, id uuid.UUID, req AFISSRequest, expected *int) (*domain.Property, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.UpdateAFISS")
	defer span.End()

	if err := requireRef(ctx, s.repos.Employees, "assessorId", domain.KindEmployee, req.AssessorID); err != nil {
		return nil, err
	}
	now := s.now()
	p, err := mutate(ctx, &s.core, s.repos.Properties, domain.KindProperty, id, expected, func(p *domain.Property) error {
		return p.UpdateAFISS(req.AFISSScores, req.AssessorID, req.Notes, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("property assessed",
		zap.String("property_id", id.String()),
		zap.Float64("afiss_multiplier", p.AFISSMultiplier()),
	)
	return p, nil
}

func (s *PropertyService) SetParcelBoundary(ctx context.Context, id uuid.UUID, points []geo.Point, expected *int) (*domain.Property, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.SetParcelBoundary")
	defer span.End()

	now := s.now()
	return mutate(ctx, &s.core, s.repos.Properties, domain.KindProperty, id, expected, func(p *domain.Property) error {
		return p.SetParcelBoundary(points, now)
	})
}

func (s *PropertyService) RecordJob(ctx context.Context, id uuid.UUID, req JobRequest, expected *int) (*domain.Property, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.RecordJob")
	defer span.End()

	now := s.now()
	date := now
	if req.Date != nil {
		date = req.Date.UTC()
	}
	return mutate(ctx, &s.core, s.repos.Properties, domain.KindProperty, id, expected, func(p *domain.Property) error {
		return p.AddJob(req.Value, date, now)
	})
}

func (s *PropertyService) Archive(ctx context.Context, id uuid.UUID, expected *int) (*domain.Property, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.Archive")
	defer span.End()

	now := s.now()
	return mutate(ctx, &s.core, s.repos.Properties, domain.KindProperty, id, expected, func(p *domain.Property) error {
		return p.Archive(now)
	})
}

// Trees loads the property's tree inventory. Removed trees are listed but
// left out of the score totals.
func (s *PropertyService) Trees(ctx context.Context, id uuid.UUID) (*TreeInventory, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.Trees")
	defer span.End()

	p, err := s.repos.Properties.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	trees, err := s.repos.Trees.List(ctx, func(t *domain.Tree) bool { return slices.Contains(p.TreeIDs, t.ID) })
	if err != nil {
		return nil, err
	}
	inv := &TreeInventory{Trees: trees}
	for _, t := range trees {
		if t.IsRemoved() {
			inv.Removed++
			continue
		}
		inv.Standing++
		inv.TotalTreeScore += t.TreeScore()
		if trim := t.TrimScore(); trim != nil {
			inv.TotalTrimScore += *trim
		}
	}
	return inv, nil
}

// DetachTree unlinks a tree from the property without touching the tree.
func (s *PropertyService) DetachTree(ctx context.Context, id, treeID uuid.UUID, expected *int) (*domain.Property, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.DetachTree")
	defer span.End()

	now := s.now()
	return mutate(ctx, &s.core, s.repos.Properties, domain.KindProperty, id, expected, func(p *domain.Property) error {
		if !p.RemoveTree(treeID, now) {
			return &domain.ErrNotFound{Resource: "property tree", ID: treeID.String()}
		}
		return nil
	})
}

// Pipeline loads the records linked to the property.
func (s *PropertyService) Pipeline(ctx context.Context, id uuid.UUID) (*Pipeline, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.Pipeline")
	defer span.End()

	p, err := s.repos.Properties.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return loadPipeline(ctx, s.repos, p.Links)
}
