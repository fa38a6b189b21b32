package handler

import (
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/service"
)

// ============================================================
// Work orders
// ============================================================

func getWorkOrderHandler(svc *service.WorkOrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/work-orders/{workOrderId}")
		defer span.End()

		id, err := pathID(r, "workOrderId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("work_order.id", id.String()))

		wo, err := svc.Get(ctx, id)
		writeResult(w, logger, http.StatusOK, wo, err)
	}
}

func listWorkOrdersHandler(svc *service.WorkOrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/work-orders")
		defer span.End()

		leadID, err := queryUUID(r, "leadId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		employeeID, err := queryUUID(r, "employeeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		list, err := svc.List(ctx, service.WorkOrderFilter{
			Status:     queryEnum[domain.WorkOrderStatus](r, "status"),
			LeadID:     leadID,
			EmployeeID: employeeID,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, paginate(r, list))
	}
}

func startWorkOrderHandler(svc *service.WorkOrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/work-orders/{workOrderId}/start")
		defer span.End()

		id, expected, err := target(r, "workOrderId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		wo, err := svc.Start(ctx, id, expected)
		writeResult(w, logger, http.StatusOK, wo, err)
	}
}

func completeWorkOrderHandler(svc *service.WorkOrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/work-orders/{workOrderId}/complete")
		defer span.End()

		id, expected, err := target(r, "workOrderId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		wo, err := svc.Complete(ctx, id, expected)
		writeResult(w, logger, http.StatusOK, wo, err)
	}
}

func holdWorkOrderHandler(svc *service.WorkOrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/work-orders/{workOrderId}/hold")
		defer span.End()

		id, expected, err := target(r, "workOrderId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req reasonRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		wo, err := svc.Hold(ctx, id, req.Reason, expected)
		writeResult(w, logger, http.StatusOK, wo, err)
	}
}

func cancelWorkOrderHandler(svc *service.WorkOrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/work-orders/{workOrderId}/cancel")
		defer span.End()

		id, expected, err := target(r, "workOrderId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req reasonRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		wo, err := svc.Cancel(ctx, id, req.Reason, expected)
		writeResult(w, logger, http.StatusOK, wo, err)
	}
}

func assignWorkOrderCrewHandler(svc *service.WorkOrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/work-orders/{workOrderId}/crew")
		defer span.End()

		id, expected, err := target(r, "workOrderId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req service.CrewAssignment
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("crew.size", len(req.EmployeeIDs)))

		wo, err := svc.AssignCrew(ctx, id, req, expected)
		writeResult(w, logger, http.StatusOK, wo, err)
	}
}

type equipmentAssignment struct {
	EquipmentIDs []uuid.UUID `json:"equipmentIds"`
}

func assignWorkOrderEquipmentHandler(svc *service.WorkOrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/work-orders/{workOrderId}/equipment")
		defer span.End()

		id, expected, err := target(r, "workOrderId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req equipmentAssignment
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		wo, err := svc.AssignEquipment(ctx, id, req.EquipmentIDs, expected)
		writeResult(w, logger, http.StatusOK, wo, err)
	}
}

func workOrderProgressHandler(svc *service.WorkOrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/work-orders/{workOrderId}/line-items/{itemId}")
		defer span.End()

		id, expected, err := target(r, "workOrderId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		itemID, err := pathID(r, "itemId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req domain.LineItemProgress
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		wo, err := svc.UpdateLineItem(ctx, id, itemID, req, expected)
		writeResult(w, logger, http.StatusOK, wo, err)
	}
}

func journalHandler(svc *service.WorkOrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/work-orders/{workOrderId}/journal")
		defer span.End()

		id, err := pathID(r, "workOrderId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req service.JournalRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		entry, err := svc.AddJournalEntry(ctx, id, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

func workOrderTimeEntriesHandler(svc *service.TimeEntryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/work-orders/{workOrderId}/time-entries")
		defer span.End()

		id, err := pathID(r, "workOrderId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		list, err := svc.List(ctx, service.TimeEntryFilter{WorkOrderID: &id, OpenOnly: queryBool(r, "open")})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, paginate(r, list))
	}
}

type invoiceRequest struct {
	AllowIncomplete bool `json:"allowIncomplete"`
}

func createInvoiceHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/work-orders/{workOrderId}/invoice")
		defer span.End()

		id, expected, err := target(r, "workOrderId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req invoiceRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		inv, err := svc.CreateFromWorkOrder(ctx, id, req.AllowIncomplete, actor(r), expected)
		if err == nil {
			span.SetAttributes(attribute.String("invoice.number", inv.Number))
		}
		writeResult(w, logger, http.StatusCreated, inv, err)
	}
}
