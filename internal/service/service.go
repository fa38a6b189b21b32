// Package service provides the business logic layer (use cases): the
// lead-to-cash workflow, the entity lifecycles around it and the
// calculators, on top of the repositories in port.Repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/port"
	"github.com/treeshop/treeshop-ops-go/internal/pricing"
)

// Clock returns the current time.
type Clock func() time.Time

// conflictRetries bounds how often bookkeeping writes re-read a record
// that changed underneath them.
const conflictRetries = 3

// core carries what every service needs.
type core struct {
	repos   *port.Repositories
	metrics *observability.Metrics
	logger  *zap.Logger
	clock   Clock
}

func newCore(repos *port.Repositories, metrics *observability.Metrics, logger *zap.Logger) core {
	return core{repos: repos, metrics: metrics, logger: logger, clock: time.Now}
}

// SetClock replaces the time source.
func (c *core) SetClock(clock Clock) { c.clock = clock }

func (c *core) now() time.Time { return c.clock().UTC() }

func (c *core) observe(op string, start time.Time) {
	c.metrics.RecordDuration(op, time.Since(start))
}

// ============================================================
// Generic persistence helpers
// ============================================================

// checkVersion compares an If-Match version with the loaded record.
func checkVersion(resource string, m *domain.Meta, expected *int) error {
	if expected != nil && *expected != m.Version {
		return &domain.ErrVersionConflict{Resource: resource, ID: m.ID.String(), Expected: *expected, Actual: m.Version}
	}
	return nil
}

func isVersionConflict(err error) bool {
	var conflict *domain.ErrVersionConflict
	return errors.As(err, &conflict)
}

func create[T any](ctx context.Context, c *core, repo port.Repository[T], resource string, entity *T) error {
	if err := repo.Create(ctx, entity); err != nil {
		return fmt.Errorf("create %s: %w", resource, err)
	}
	return nil
}

func update[T any](ctx context.Context, c *core, repo port.Repository[T], resource string, entity *T) error {
	if err := repo.Update(ctx, entity); err != nil {
		if isVersionConflict(err) {
			c.metrics.IncrVersionConflict(resource)
		}
		return fmt.Errorf("update %s: %w", resource, err)
	}
	return nil
}

// mutate loads id, checks the caller's version, applies fn and writes the
// result back. Nothing is written when fn fails.
func mutate[T any, P interface {
	*T
	domain.Entity
}](ctx context.Context, c *core, repo port.Repository[T], resource string, id uuid.UUID, expected *int, fn func(P) error) (*T, error) {
	entity, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(resource, P(entity).Base(), expected); err != nil {
		c.metrics.IncrVersionConflict(resource)
		return nil, err
	}
	if err := fn(P(entity)); err != nil {
		return nil, err
	}
	if err := update(ctx, c, repo, resource, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// touchWithRetry is mutate for bookkeeping writes with no caller version:
// a concurrent change is re-read and fn is applied again.
func touchWithRetry[T any, P interface {
	*T
	domain.Entity
}](ctx context.Context, c *core, repo port.Repository[T], resource string, id uuid.UUID, fn func(P) error) (*T, error) {
	var lastErr error
	for range conflictRetries {
		entity, err := mutate(ctx, c, repo, resource, id, nil, fn)
		if err == nil {
			return entity, nil
		}
		if !isVersionConflict(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// requireRef fails with ErrReferenceMissing when id is set and unknown.
func requireRef[T any](ctx context.Context, repo port.Repository[T], field, resource string, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	ok, err := repo.Exists(ctx, *id)
	if err != nil {
		return fmt.Errorf("check %s: %w", field, err)
	}
	if !ok {
		return &domain.ErrReferenceMissing{Field: field, Resource: resource, ID: id.String()}
	}
	return nil
}

func requireRefs[T any](ctx context.Context, repo port.Repository[T], field, resource string, ids []uuid.UUID) error {
	for i := range ids {
		if err := requireRef(ctx, repo, field, resource, &ids[i]); err != nil {
			return err
		}
	}
	return nil
}

// asReference turns a not-found lookup of a referenced record into
// ErrReferenceMissing.
func asReference(err error, field, resource string, id uuid.UUID) error {
	var notFound *domain.ErrNotFound
	if errors.As(err, &notFound) {
		return &domain.ErrReferenceMissing{Field: field, Resource: resource, ID: id.String()}
	}
	return err
}

// ============================================================
// Cross-entity bookkeeping
// ============================================================

// linkParties records a pipeline record on its customer and property.
// Failures are logged: the record itself is already stored and the
// orphan report will show any missing link.
func (c *core) linkParties(ctx context.Context, customerID, propertyID *uuid.UUID, kind string, id uuid.UUID) {
	now := c.now()
	if customerID != nil {
		_, err := touchWithRetry(ctx, c, c.repos.Customers, domain.KindCustomer, *customerID, func(cu *domain.Customer) error {
			cu.Link(kind, id, now)
			return nil
		})
		if err != nil {
			c.logger.Warn("link customer failed",
				zap.String("customer_id", customerID.String()),
				zap.String("kind", kind),
				zap.String("id", id.String()),
				zap.Error(err),
			)
		}
	}
	if propertyID != nil {
		_, err := touchWithRetry(ctx, c, c.repos.Properties, domain.KindProperty, *propertyID, func(p *domain.Property) error {
			p.Link(kind, id, now)
			return nil
		})
		if err != nil {
			c.logger.Warn("link property failed",
				zap.String("property_id", propertyID.String()),
				zap.String("kind", kind),
				zap.String("id", id.String()),
				zap.Error(err),
			)
		}
	}
}

// advanceLead walks the lead forward one stage at a time until it reaches
// target, recording each transition. A lead already at or past target is
// left alone. link sets the pipeline id the step produced.
func (c *core) advanceLead(ctx context.Context, leadID uuid.UUID, target domain.WorkflowStage, notes, actor string, link func(*domain.Lead)) {
	now := c.now()
	var (
		steps   [][2]domain.WorkflowStage
		blocked error
	)
	_, err := touchWithRetry(ctx, c, c.repos.Leads, domain.KindLead, leadID, func(l *domain.Lead) error {
		steps, blocked = steps[:0], nil
		if link != nil {
			link(l)
		}
		for l.Stage().Order() < target.Order() {
			from := l.Stage()
			if blocked = l.Advance(notes, actor, now); blocked != nil {
				break
			}
			steps = append(steps, [2]domain.WorkflowStage{from, l.Stage()})
		}
		return nil
	})
	if err == nil {
		err = blocked
	}
	if err != nil {
		c.logger.Warn("lead stage not advanced",
			zap.String("lead_id", leadID.String()),
			zap.String("target", string(target)),
			zap.Error(err),
		)
	}
	for _, s := range steps {
		c.metrics.IncrStageTransition(s[0], s[1])
		c.logger.Info("lead stage advanced",
			zap.String("lead_id", leadID.String()),
			zap.String("from", string(s[0])),
			zap.String("to", string(s[1])),
		)
	}
}

// SettingsID is the fixed id of the single company settings record.
var SettingsID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("treeshop:company_settings"))

// settings returns the company settings record, seeding the defaults on
// first use.
func (c *core) settings(ctx context.Context) (*domain.CompanySettings, error) {
	return c.ensureSettings(ctx, domain.DefaultCompanySettings(c.now()))
}

func (c *core) ensureSettings(ctx context.Context, seed *domain.CompanySettings) (*domain.CompanySettings, error) {
	s, err := c.repos.Settings.Get(ctx, SettingsID)
	if err == nil {
		return s, nil
	}
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	seed.ID = SettingsID
	err = c.repos.Settings.Create(ctx, seed)
	var conflict *domain.ErrConflict
	switch {
	case err == nil:
		return seed, nil
	case errors.As(err, &conflict):
		return c.repos.Settings.Get(ctx, SettingsID)
	default:
		return nil, fmt.Errorf("seed settings: %w", err)
	}
}

// asValidation turns a calculator input error into ErrValidation.
func asValidation(err error) error {
	var in *pricing.InputError
	if errors.As(err, &in) {
		return &domain.ErrValidation{Field: in.Field, Message: in.Reason}
	}
	return err
}
