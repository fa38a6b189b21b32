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

var treeTracer = otel.Tracer("service/trees")

// TreeRequest records a field assessment.
type TreeRequest struct {
	domain.TreeDetails
	Measurements  domain.Measurements `json:"measurements"`
	PercentToTrim *float64            `json:"percentToTrim,omitempty"`
}

// WorkRecordRequest is one service performed on a tree.
type WorkRecordRequest struct {
	ServiceType domain.ServiceType `json:"serviceType"`
	Date        *time.Time         `json:"workDate,omitempty"`
	Revenue     float64            `json:"revenue"`
	Notes       string             `json:"notes,omitempty"`
}

// TreeService keeps the tree inventory and its scores.
type TreeService struct {
	core
}

func NewTreeService(repos *port.Repositories, metrics *observability.Metrics, logger *zap.Logger) *TreeService {
	return &TreeService{core: newCore(repos, metrics, logger)}
}

// Create stores the assessment and links the tree to its property.
func (s *TreeService) Create(ctx context.Context, req TreeRequest) (*domain.Tree, error) {
	ctx, span := treeTracer.Start(ctx, "TreeService.Create")
	defer span.End()

	if err := requireRef(ctx, s.repos.Properties, "propertyId", domain.KindProperty, req.PropertyID); err != nil {
		return nil, err
	}
	now := s.now()
	t, err := domain.NewTree(req.TreeDetails, req.Measurements, now)
	if err != nil {
		s.countScoreError(err)
		return nil, err
	}
	if req.PercentToTrim != nil {
		if err := t.SetTrimPercentage(*req.PercentToTrim, now); err != nil {
			s.countScoreError(err)
			return nil, err
		}
	}
	if err := create(ctx, &s.core, s.repos.Trees, domain.KindTree, t); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("tree.id", t.ID.String()),
		attribute.Float64("tree.score", t.TreeScore()),
	)
	if t.PropertyID != nil {
		s.attach(ctx, *t.PropertyID, t.ID)
	}
	return t, nil
}

func (s *TreeService) Get(ctx context.Context, id uuid.UUID) (*domain.Tree, error) {
	ctx, span := treeTracer.Start(ctx, "TreeService.Get")
	defer span.End()

	return s.repos.Trees.Get(ctx, id)
}

// List returns the trees of one property, or all trees when propertyID is nil.
func (s *TreeService) List(ctx context.Context, propertyID *uuid.UUID, includeRemoved bool) ([]*domain.Tree, error) {
	ctx, span := treeTracer.Start(ctx, "TreeService.List")
	defer span.End()

	return s.repos.Trees.List(ctx, func(t *domain.Tree) bool {
		if t.IsRemoved() && !includeRemoved {
			return false
		}
		return propertyID == nil || (t.PropertyID != nil && *t.PropertyID == *propertyID)
	})
}

// UpdateDetails replaces the descriptive attributes. A tree moved to
// another property is linked there; the old property keeps its link until
// detached.
func (s *TreeService) UpdateDetails(ctx context.Context, id uuid.UUID, details domain.TreeDetails, expected *int) (*domain.Tree, error) {
	ctx, span := treeTracer.Start(ctx, "TreeService.UpdateDetails")
	defer span.End()

	if err := requireRef(ctx, s.repos.Properties, "propertyId", domain.KindProperty, details.PropertyID); err != nil {
		return nil, err
	}
	now := s.now()
	t, err := mutate(ctx, &s.core, s.repos.Trees, domain.KindTree, id, expected, func(t *domain.Tree) error {
		return t.UpdateDetails(details, now)
	})
	if err != nil {
		return nil, err
	}
	if t.PropertyID != nil {
		s.attach(ctx, *t.PropertyID, t.ID)
	}
	return t, nil
}

func (s *TreeService) UpdateMeasurements(ctx context.Context, id uuid.UUID, m domain.Measurements, expected *int) (*domain.Tree, error) {
	ctx, span := treeTracer.Start(ctx, "TreeService.UpdateMeasurements")
	defer span.End()

	now := s.now()
	t, err := mutate(ctx, &s.core, s.repos.Trees, domain.KindTree, id, expected, func(t *domain.Tree) error {
		return t.UpdateMeasurements(m, now)
	})
	if err != nil {
		s.countScoreError(err)
		return nil, err
	}
	return t, nil
}

// SetTrimPercentage sets the share of the canopy to trim; nil clears it.
func (s *TreeService) SetTrimPercentage(ctx context.Context, id uuid.UUID, percent *float64, expected *int) (*domain.Tree, error) {
	ctx, span := treeTracer.Start(ctx, "TreeService.SetTrimPercentage")
	defer span.End()

	now := s.now()
	t, err := mutate(ctx, &s.core, s.repos.Trees, domain.KindTree, id, expected, func(t *domain.Tree) error {
		if percent == nil {
			t.ClearTrimPercentage(now)
			return nil
		}
		return t.SetTrimPercentage(*percent, now)
	})
	if err != nil {
		s.countScoreError(err)
		return nil, err
	}
	return t, nil
}

func (s *TreeService) AddWorkRecord(ctx context.Context, id uuid.UUID, req WorkRecordRequest, expected *int) (*domain.Tree, error) {
	ctx, span := treeTracer.Start(ctx, "TreeService.AddWorkRecord")
	defer span.End()

	now := s.now()
	date := now
	if req.Date != nil {
		date = req.Date.UTC()
	}
	return mutate(ctx, &s.core, s.repos.Trees, domain.KindTree, id, expected, func(t *domain.Tree) error {
		_, err := t.AddWorkRecord(req.ServiceType, date, req.Revenue, req.Notes, now)
		return err
	})
}

// MarkRemoved soft-deletes the tree. The property keeps the link so the
// work history stays reachable.
func (s *TreeService) MarkRemoved(ctx context.Context, id uuid.UUID, date *time.Time, expected *int) (*domain.Tree, error) {
	ctx, span := treeTracer.Start(ctx, "TreeService.MarkRemoved")
	defer span.End()

	now := s.now()
	removed := now
	if date != nil {
		removed = date.UTC()
	}
	t, err := mutate(ctx, &s.core, s.repos.Trees, domain.KindTree, id, expected, func(t *domain.Tree) error {
		return t.MarkAsRemoved(removed, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("tree removed", zap.String("tree_id", id.String()), zap.Time("removal_date", removed))
	return t, nil
}

func (s *TreeService) SetStatus(ctx context.Context, id uuid.UUID, status domain.TreeStatus, expected *int) (*domain.Tree, error) {
	ctx, span := treeTracer.Start(ctx, "TreeService.SetStatus")
	defer span.End()

	now := s.now()
	return mutate(ctx, &s.core, s.repos.Trees, domain.KindTree, id, expected, func(t *domain.Tree) error {
		return t.SetStatus(status, now)
	})
}

func (s *TreeService) attach(ctx context.Context, propertyID, treeID uuid.UUID) {
	now := s.now()
	_, err := touchWithRetry(ctx, &s.core, s.repos.Properties, domain.KindProperty, propertyID, func(p *domain.Property) error {
		p.AddTree(treeID, now)
		return nil
	})
	if err != nil {
		s.logger.Warn("tree not linked to property",
			zap.String("property_id", propertyID.String()),
			zap.String("tree_id", treeID.String()),
			zap.Error(err),
		)
	}
}

func (s *TreeService) countScoreError(err error) {
	var invalid *domain.ErrValidation
	if errors.As(err, &invalid) {
		s.metrics.IncrCalculationError("tree_score")
	}
}
