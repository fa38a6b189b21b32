package handler

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/service"
)

// ============================================================
// Proposals
// ============================================================

func createProposalHandler(svc *service.ProposalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/proposals")
		defer span.End()

		var req service.ProposalRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("lead.id", req.LeadID.String()))

		p, err := svc.Create(ctx, req, actor(r))
		writeResult(w, logger, http.StatusCreated, p, err)
	}
}

func getProposalHandler(svc *service.ProposalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/proposals/{proposalId}")
		defer span.End()

		id, err := pathID(r, "proposalId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.Get(ctx, id)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

func listProposalsHandler(svc *service.ProposalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/proposals")
		defer span.End()

		leadID, err := queryUUID(r, "leadId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		customerID, err := queryUUID(r, "customerId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		list, err := svc.List(ctx, service.ProposalFilter{
			Status:     queryEnum[domain.ProposalStatus](r, "status"),
			LeadID:     leadID,
			CustomerID: customerID,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, paginate(r, list))
	}
}

func addLineItemHandler(svc *service.ProposalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/proposals/{proposalId}/line-items")
		defer span.End()

		id, expected, err := target(r, "proposalId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req domain.LineItemInput
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.AddLineItem(ctx, id, req, expected)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

func updateLineItemHandler(svc *service.ProposalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/proposals/{proposalId}/line-items/{itemId}")
		defer span.End()

		id, expected, err := target(r, "proposalId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		itemID, err := pathID(r, "itemId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req domain.LineItemInput
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.UpdateLineItem(ctx, id, itemID, req, expected)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

func removeLineItemHandler(svc *service.ProposalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/proposals/{proposalId}/line-items/{itemId}")
		defer span.End()

		id, expected, err := target(r, "proposalId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		itemID, err := pathID(r, "itemId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.RemoveLineItem(ctx, id, itemID, expected)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

type taxRateRequest struct {
	TaxRate float64 `json:"taxRate"`
}

func setTaxRateHandler(svc *service.ProposalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/proposals/{proposalId}/tax-rate")
		defer span.End()

		id, expected, err := target(r, "proposalId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req taxRateRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.SetTaxRate(ctx, id, req.TaxRate, expected)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

func sendProposalHandler(svc *service.ProposalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/proposals/{proposalId}/send")
		defer span.End()

		id, expected, err := target(r, "proposalId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.Send(ctx, id, expected)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

func viewProposalHandler(svc *service.ProposalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/proposals/{proposalId}/view")
		defer span.End()

		id, err := pathID(r, "proposalId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.View(ctx, id)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

type acceptRequest struct {
	Priority domain.Priority `json:"priority,omitempty"`
}

// acceptResponse carries both records the acceptance wrote.
type acceptResponse struct {
	Proposal  *domain.Proposal  `json:"proposal"`
	WorkOrder *domain.WorkOrder `json:"workOrder"`
}

func acceptProposalHandler(svc *service.ProposalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/proposals/{proposalId}/accept")
		defer span.End()

		id, expected, err := target(r, "proposalId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req acceptRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, wo, err := svc.Accept(ctx, id, req.Priority, actor(r), expected)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("work_order.id", wo.ID.String()))
		logger.Info("proposal accepted",
			zap.String("proposal", p.Number),
			zap.String("work_order", wo.Number),
		)
		w.Header().Set("Location", "/v1/work-orders/"+wo.ID.String())
		writeJSON(w, http.StatusCreated, acceptResponse{Proposal: p, WorkOrder: wo})
	}
}

func declineProposalHandler(svc *service.ProposalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/proposals/{proposalId}/decline")
		defer span.End()

		id, expected, err := target(r, "proposalId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req reasonRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.Decline(ctx, id, req.Reason, expected)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

func proposalDepositHandler(svc *service.ProposalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/proposals/{proposalId}/deposit")
		defer span.End()

		id, expected, err := target(r, "proposalId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.RecordDeposit(ctx, id, expected)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

type countResponse struct {
	Count int `json:"count"`
}

func expireProposalsHandler(svc *service.ProposalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/proposals/expire")
		defer span.End()

		n, err := svc.ExpireStale(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: n})
	}
}
