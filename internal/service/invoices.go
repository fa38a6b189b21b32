package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/port"
)

var invoiceTracer = otel.Tracer("service/invoices")

// PaymentRequest is money received against an invoice. A nil PaidAt means
// now.
type PaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference,omitempty"`
	PaidAt    *time.Time      `json:"paidAt,omitempty"`
}

// InvoiceFilter narrows List. Status is compared with the effective status,
// so Overdue matches sent invoices past due.
type InvoiceFilter struct {
	Status     *domain.InvoiceStatus
	CustomerID *uuid.UUID
	LeadID     *uuid.UUID
}

// Statement is an invoice as it stands today.
type Statement struct {
	Invoice   *domain.Invoice      `json:"invoice"`
	Status    domain.InvoiceStatus `json:"status"`
	Balance   decimal.Decimal      `json:"balanceDue"`
	LateFee   decimal.Decimal      `json:"lateFee"`
	AmountDue decimal.Decimal      `json:"amountDue"`
	AsOf      time.Time            `json:"asOf"`
}

// InvoiceService bills work orders and collects payments.
type InvoiceService struct {
	core
}

func NewInvoiceService(repos *port.Repositories, metrics *observability.Metrics, logger *zap.Logger) *InvoiceService {
	return &InvoiceService{core: newCore(repos, metrics, logger)}
}

// ============================================================
// Create (POST /v1/work-orders/{id}/invoice)
// ============================================================

// CreateFromWorkOrder bills the work order's proposal lines and moves the
// lead to INVOICE. expected is the work order's If-Match version.
func (s *InvoiceService) CreateFromWorkOrder(ctx context.Context, workOrderID uuid.UUID, allowIncomplete bool, actor string, expected *int) (*domain.Invoice, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.CreateFromWorkOrder")
	defer span.End()
	defer s.observe("InvoiceService.CreateFromWorkOrder", time.Now())
	span.SetAttributes(attribute.String("work_order.id", workOrderID.String()))

	wo, err := s.repos.WorkOrders.Get(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	proposal, err := s.repos.Proposals.Get(ctx, wo.ProposalID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var inv *domain.Invoice
	_, err = mutate(ctx, &s.core, s.repos.WorkOrders, domain.KindWorkOrder, workOrderID, expected, func(w *domain.WorkOrder) error {
		var err error
		inv, err = domain.NewInvoiceFromWorkOrder(w, proposal, allowIncomplete, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := create(ctx, &s.core, s.repos.Invoices, domain.KindInvoice, inv); err != nil {
		s.logger.Error("invoice not stored for work order",
			zap.String("work_order_id", workOrderID.String()),
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	span.SetAttributes(attribute.String("invoice.number", inv.Number))

	s.linkParties(ctx, inv.CustomerID, inv.PropertyID, domain.KindInvoice, inv.ID)
	s.advanceLead(ctx, inv.LeadID, domain.StageInvoice, "invoice "+inv.Number+" issued", actor, func(l *domain.Lead) {
		id := inv.ID
		l.InvoiceID = &id
	})

	s.logger.Info("invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("number", inv.Number),
		zap.String("total", inv.Total().StringFixed(2)),
		zap.Time("due", inv.DueDate),
	)
	return inv, nil
}

func (s *InvoiceService) Get(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.Get")
	defer span.End()

	return s.repos.Invoices.Get(ctx, id)
}

func (s *InvoiceService) List(ctx context.Context, f InvoiceFilter) ([]*domain.Invoice, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.List")
	defer span.End()

	now := s.now()
	return s.repos.Invoices.List(ctx, func(inv *domain.Invoice) bool {
		if f.Status != nil && inv.EffectiveStatus(now) != *f.Status {
			return false
		}
		if f.CustomerID != nil && (inv.CustomerID == nil || *inv.CustomerID != *f.CustomerID) {
			return false
		}
		if f.LeadID != nil && inv.LeadID != *f.LeadID {
			return false
		}
		return true
	})
}

// Statement computes the balance and late fee as of now, using the
// company's monthly late fee rate.
func (s *InvoiceService) Statement(ctx context.Context, id uuid.UUID) (*Statement, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.Statement")
	defer span.End()

	inv, err := s.repos.Invoices.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	fee := inv.LateFee(now, decimal.NewFromFloat(settings.LateFeeMonthlyRate))
	return &Statement{
		Invoice:   inv,
		Status:    inv.EffectiveStatus(now),
		Balance:   inv.BalanceDue(),
		LateFee:   fee,
		AmountDue: inv.BalanceDue().Add(fee),
		AsOf:      now,
	}, nil
}

// ============================================================
// Lifecycle
// ============================================================

// Send issues the invoice. A zero-total invoice is settled right away.
func (s *InvoiceService) Send(ctx context.Context, id uuid.UUID, actor string, expected *int) (*domain.Invoice, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.Send")
	defer span.End()

	now := s.now()
	inv, err := mutate(ctx, &s.core, s.repos.Invoices, domain.KindInvoice, id, expected, func(inv *domain.Invoice) error {
		return inv.MarkSent(now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("invoice sent", zap.String("invoice_id", id.String()), zap.String("number", inv.Number))
	if inv.Status == domain.InvoicePaid {
		s.settle(ctx, inv, now, actor)
	}
	return inv, nil
}

// RecordPayment applies a payment. Paying in full completes the lead and
// books the job on the customer and property.
func (s *InvoiceService) RecordPayment(ctx context.Context, id uuid.UUID, req PaymentRequest, actor string, expected *int) (*domain.Invoice, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.RecordPayment")
	defer span.End()
	defer s.observe("InvoiceService.RecordPayment", time.Now())
	span.SetAttributes(
		attribute.String("invoice.id", id.String()),
		attribute.String("payment.amount", req.Amount.StringFixed(2)),
	)

	if req.Method == "" {
		return nil, &domain.ErrValidation{Field: "method", Message: "is required"}
	}
	now := s.now()
	paidAt := now
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC()
	}

	var paidInFull bool
	inv, err := mutate(ctx, &s.core, s.repos.Invoices, domain.KindInvoice, id, expected, func(inv *domain.Invoice) error {
		var err error
		paidInFull, err = inv.RecordPayment(req.Amount, req.Method, req.Reference, paidAt, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment recorded",
		zap.String("invoice_id", id.String()),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("balance", inv.BalanceDue().StringFixed(2)),
		zap.Bool("paid_in_full", paidInFull),
	)

	if paidInFull {
		s.settle(ctx, inv, paidAt, actor)
	}
	return inv, nil
}

// settle runs the bookkeeping of a fully paid invoice.
func (s *InvoiceService) settle(ctx context.Context, inv *domain.Invoice, paidAt time.Time, actor string) {
	now := s.now()
	revenue := inv.Total().InexactFloat64()

	s.advanceLead(ctx, inv.LeadID, domain.StageCompleted, "invoice "+inv.Number+" paid", actor, nil)

	if inv.CustomerID != nil {
		_, err := touchWithRetry(ctx, &s.core, s.repos.Customers, domain.KindCustomer, *inv.CustomerID, func(c *domain.Customer) error {
			return c.AddJob(revenue, paidAt, now)
		})
		if err != nil {
			s.logger.Warn("customer job not recorded",
				zap.String("customer_id", inv.CustomerID.String()),
				zap.String("invoice_id", inv.ID.String()),
				zap.Error(err),
			)
		}
	}
	if inv.PropertyID != nil {
		_, err := touchWithRetry(ctx, &s.core, s.repos.Properties, domain.KindProperty, *inv.PropertyID, func(p *domain.Property) error {
			return p.AddJob(revenue, paidAt, now)
		})
		if err != nil {
			s.logger.Warn("property job not recorded",
				zap.String("property_id", inv.PropertyID.String()),
				zap.String("invoice_id", inv.ID.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *InvoiceService) Void(ctx context.Context, id uuid.UUID, reason string, expected *int) (*domain.Invoice, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.Void")
	defer span.End()

	now := s.now()
	inv, err := mutate(ctx, &s.core, s.repos.Invoices, domain.KindInvoice, id, expected, func(inv *domain.Invoice) error {
		return inv.Void(reason, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Warn("invoice voided",
		zap.String("invoice_id", id.String()),
		zap.String("number", inv.Number),
		zap.String("reason", reason),
	)

	_, err = touchWithRetry(ctx, &s.core, s.repos.WorkOrders, domain.KindWorkOrder, inv.WorkOrderID, func(w *domain.WorkOrder) error {
		w.ReleaseInvoice(inv.ID, now)
		return nil
	})
	if err != nil {
		s.logger.Error("work order not released from voided invoice",
			zap.String("work_order_id", inv.WorkOrderID.String()),
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
	}
	return inv, nil
}
