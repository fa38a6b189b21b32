package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/port"
)

var customerTracer = otel.Tracer("service/customers")

// CustomerFilter narrows List. Archived customers are hidden unless
// IncludeArchived is set.
type CustomerFilter struct {
	Query           string
	Tag             string
	VIPOnly         bool
	IncludeArchived bool
}

func (f CustomerFilter) match(c *domain.Customer) bool {
	if c.IsArchived && !f.IncludeArchived {
		return false
	}
	if f.VIPOnly && !c.IsVIP() {
		return false
	}
	if f.Tag != "" && !slices.ContainsFunc(c.Tags, func(t string) bool { return strings.EqualFold(t, f.Tag) }) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.Email), q) ||
			strings.Contains(c.Phone, q)
	}
	return true
}

// JobRequest books a completed job outside the invoice flow, for example
// when importing history.
type JobRequest struct {
	Value float64    `json:"value"`
	Date  *time.Time `json:"date,omitempty"`
}

// Pipeline is every pipeline record linked to a customer or property.
type Pipeline struct {
	Leads      []*domain.Lead      `json:"leads"`
	Proposals  []*domain.Proposal  `json:"proposals"`
	WorkOrders []*domain.WorkOrder `json:"workOrders"`
	Invoices   []*domain.Invoice   `json:"invoices"`
}

// CustomerService manages billing parties.
type CustomerService struct {
	core
}

func NewCustomerService(repos *port.Repositories, metrics *observability.Metrics, logger *zap.Logger) *CustomerService {
	return &CustomerService{core: newCore(repos, metrics, logger)}
}

func (s *CustomerService) Create(ctx context.Context, details domain.CustomerDetails) (*domain.Customer, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Create")
	defer span.End()

	c, err := domain.NewCustomer(details, s.now())
	if err != nil {
		return nil, err
	}
	if err := create(ctx, &s.core, s.repos.Customers, domain.KindCustomer, c); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("customer.id", c.ID.String()))
	s.logger.Info("customer created",
		zap.String("customer_id", c.ID.String()),
		zap.String("type", string(c.Type)),
	)
	return c, nil
}

func (s *CustomerService) Get(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Get")
	defer span.End()

	return s.repos.Customers.Get(ctx, id)
}

func (s *CustomerService) List(ctx context.Context, f CustomerFilter) ([]*domain.Customer, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.List")
	defer span.End()

	return s.repos.Customers.List(ctx, f.match)
}

func (s *CustomerService) Update(ctx context.Context, id uuid.UUID, details domain.CustomerDetails, expected *int) (*domain.Customer, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Update")
	defer span.End()

	now := s.now()
	return mutate(ctx, &s.core, s.repos.Customers, domain.KindCustomer, id, expected, func(c *domain.Customer) error {
		return c.Update(details, now)
	})
}

func (s *CustomerService) LogContact(ctx context.Context, id uuid.UUID, method domain.ContactMethod, notes string) (*domain.Customer, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.LogContact")
	defer span.End()

	if _, err := domain.ParseContactMethod(string(method)); err != nil {
		return nil, err
	}
	now := s.now()
	return touchWithRetry(ctx, &s.core, s.repos.Customers, domain.KindCustomer, id, func(c *domain.Customer) error {
		c.LogContact(method, notes, now)
		return nil
	})
}

func (s *CustomerService) RecordJob(ctx context.Context, id uuid.UUID, req JobRequest, expected *int) (*domain.Customer, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.RecordJob")
	defer span.End()

	now := s.now()
	date := now
	if req.Date != nil {
		date = req.Date.UTC()
	}
	return mutate(ctx, &s.core, s.repos.Customers, domain.KindCustomer, id, expected, func(c *domain.Customer) error {
		return c.AddJob(req.Value, date, now)
	})
}

func (s *CustomerService) Archive(ctx context.Context, id uuid.UUID, expected *int) (*domain.Customer, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Archive")
	defer span.End()

	now := s.now()
	c, err := mutate(ctx, &s.core, s.repos.Customers, domain.KindCustomer, id, expected, func(c *domain.Customer) error {
		return c.Archive(now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("customer archived", zap.String("customer_id", id.String()))
	return c, nil
}

// Pipeline loads the customer's linked leads, proposals, work orders and
// invoices concurrently. Links to records that no longer exist are skipped.
func (s *CustomerService) Pipeline(ctx context.Context, id uuid.UUID) (*Pipeline, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Pipeline")
	defer span.End()

	c, err := s.repos.Customers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return loadPipeline(ctx, s.repos, c.Links)
}

func loadPipeline(ctx context.Context, repos *port.Repositories, links domain.Links) (*Pipeline, error) {
	var out Pipeline
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Leads, err = repos.Leads.List(gctx, func(l *domain.Lead) bool { return slices.Contains(links.LeadIDs, l.ID) })
		return err
	})
	g.Go(func() (err error) {
		out.Proposals, err = repos.Proposals.List(gctx, func(p *domain.Proposal) bool { return slices.Contains(links.ProposalIDs, p.ID) })
		return err
	})
	g.Go(func() (err error) {
		out.WorkOrders, err = repos.WorkOrders.List(gctx, func(w *domain.WorkOrder) bool { return slices.Contains(links.WorkOrderIDs, w.ID) })
		return err
	})
	g.Go(func() (err error) {
		out.Invoices, err = repos.Invoices.List(gctx, func(inv *domain.Invoice) bool { return slices.Contains(links.InvoiceIDs, inv.ID) })
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}
