package handler

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/service"
)

// ============================================================
// Invoices
// ============================================================

func getInvoiceHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/invoices/{invoiceId}")
		defer span.End()

		id, err := pathID(r, "invoiceId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		inv, err := svc.Get(ctx, id)
		writeResult(w, logger, http.StatusOK, inv, err)
	}
}

func listInvoicesHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/invoices")
		defer span.End()

		customerID, err := queryUUID(r, "customerId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		leadID, err := queryUUID(r, "leadId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		list, err := svc.List(ctx, service.InvoiceFilter{
			Status:     queryEnum[domain.InvoiceStatus](r, "status"),
			CustomerID: customerID,
			LeadID:     leadID,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, paginate(r, list))
	}
}

func invoiceStatementHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/invoices/{invoiceId}/statement")
		defer span.End()

		id, err := pathID(r, "invoiceId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		st, err := svc.Statement(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func sendInvoiceHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/invoices/{invoiceId}/send")
		defer span.End()

		id, expected, err := target(r, "invoiceId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		inv, err := svc.Send(ctx, id, actor(r), expected)
		writeResult(w, logger, http.StatusOK, inv, err)
	}
}

func recordPaymentHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/invoices/{invoiceId}/payments")
		defer span.End()

		id, expected, err := target(r, "invoiceId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req service.PaymentRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(
			attribute.String("invoice.id", id.String()),
			attribute.String("payment.amount", req.Amount.StringFixed(2)),
		)

		inv, err := svc.RecordPayment(ctx, id, req, actor(r), expected)
		writeResult(w, logger, http.StatusOK, inv, err)
	}
}

func voidInvoiceHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/invoices/{invoiceId}/void")
		defer span.End()

		id, expected, err := target(r, "invoiceId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req reasonRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		inv, err := svc.Void(ctx, id, req.Reason, expected)
		writeResult(w, logger, http.StatusOK, inv, err)
	}
}
