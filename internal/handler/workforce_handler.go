package handler

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/pricing"
	"github.com/treeshop/treeshop-ops-go/internal/service"
)

// ============================================================
// Employees
// ============================================================

func createEmployeeHandler(svc *service.EmployeeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/employees")
		defer span.End()

		var req service.EmployeeRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		e, err := svc.Create(ctx, req)
		writeResult(w, logger, http.StatusCreated, e, err)
	}
}

func getEmployeeHandler(svc *service.EmployeeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/employees/{employeeId}")
		defer span.End()

		id, err := pathID(r, "employeeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		e, err := svc.Get(ctx, id)
		writeResult(w, logger, http.StatusOK, e, err)
	}
}

func listEmployeesHandler(svc *service.EmployeeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/employees")
		defer span.End()

		list, err := svc.List(ctx, service.EmployeeFilter{
			Status: queryEnum[domain.EmploymentStatus](r, "status"),
			Track:  queryEnum[domain.CareerTrack](r, "track"),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, paginate(r, list))
	}
}

func patchEmployeeHandler(svc *service.EmployeeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/employees/{employeeId}")
		defer span.End()

		id, expected, err := target(r, "employeeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		current, err := svc.Get(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		details := current.EmployeeDetails
		if err := decodeJSON(r, &details); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		e, err := svc.UpdateDetails(ctx, id, details, expected)
		writeResult(w, logger, http.StatusOK, e, err)
	}
}

func employeeCompensationHandler(svc *service.EmployeeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/employees/{employeeId}/compensation")
		defer span.End()

		id, expected, err := target(r, "employeeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req pricing.WageInput
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		e, err := svc.SetCompensation(ctx, id, req, expected)
		writeResult(w, logger, http.StatusOK, e, err)
	}
}

type terminateRequest struct {
	Date   *time.Time `json:"terminationDate,omitempty"`
	Reason string     `json:"reason"`
}

func terminateEmployeeHandler(svc *service.EmployeeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/employees/{employeeId}/terminate")
		defer span.End()

		id, expected, err := target(r, "employeeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req terminateRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		e, err := svc.Terminate(ctx, id, req.Date, req.Reason, expected)
		writeResult(w, logger, http.StatusOK, e, err)
	}
}

// ============================================================
// Equipment
// ============================================================

func createEquipmentHandler(svc *service.EquipmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/equipment")
		defer span.End()

		var req service.EquipmentRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		e, err := svc.Create(ctx, req)
		writeResult(w, logger, http.StatusCreated, e, err)
	}
}

func getEquipmentHandler(svc *service.EquipmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/equipment/{equipmentId}")
		defer span.End()

		id, err := pathID(r, "equipmentId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		e, err := svc.Get(ctx, id)
		writeResult(w, logger, http.StatusOK, e, err)
	}
}

func listEquipmentHandler(svc *service.EquipmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/equipment")
		defer span.End()

		list, err := svc.List(ctx, service.EquipmentFilter{
			Type:               queryEnum[domain.EquipmentType](r, "type"),
			Status:             queryEnum[domain.EquipmentStatus](r, "status"),
			NeedsReplacement:   queryBool(r, "needs_replacement"),
			AvailableOnly:      queryBool(r, "available"),
			MaintenanceDueOnly: queryBool(r, "maintenance_due"),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, paginate(r, list))
	}
}

func patchEquipmentHandler(svc *service.EquipmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/equipment/{equipmentId}")
		defer span.End()

		id, expected, err := target(r, "equipmentId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		current, err := svc.Get(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		details := current.EquipmentDetails
		if err := decodeJSON(r, &details); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		e, err := svc.UpdateDetails(ctx, id, details, expected)
		writeResult(w, logger, http.StatusOK, e, err)
	}
}

func equipmentCostsHandler(svc *service.EquipmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/equipment/{equipmentId}/costs")
		defer span.End()

		id, expected, err := target(r, "equipmentId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req pricing.EquipmentInputs
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		e, err := svc.SetCostInputs(ctx, id, req, expected)
		writeResult(w, logger, http.StatusOK, e, err)
	}
}

func equipmentUsageHandler(svc *service.EquipmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/equipment/{equipmentId}/usage")
		defer span.End()

		id, expected, err := target(r, "equipmentId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req service.UsageRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Float64("usage.hours", req.Hours))

		e, err := svc.LogUsage(ctx, id, req, expected)
		writeResult(w, logger, http.StatusOK, e, err)
	}
}

func equipmentMaintenanceHandler(svc *service.EquipmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/equipment/{equipmentId}/maintenance")
		defer span.End()

		id, expected, err := target(r, "equipmentId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req service.MaintenanceRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		e, err := svc.AddMaintenance(ctx, id, req, expected)
		writeResult(w, logger, http.StatusOK, e, err)
	}
}

type equipmentStatusRequest struct {
	Status domain.EquipmentStatus `json:"status"`
}

func equipmentStatusHandler(svc *service.EquipmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/equipment/{equipmentId}/status")
		defer span.End()

		id, expected, err := target(r, "equipmentId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req equipmentStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		e, err := svc.SetStatus(ctx, id, req.Status, expected)
		writeResult(w, logger, http.StatusOK, e, err)
	}
}

type fuelPriceRequest struct {
	FuelPrice float64 `json:"fuelPrice"`
}

func repriceFuelHandler(svc *service.EquipmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/equipment/fuel-price")
		defer span.End()

		var req fuelPriceRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		n, err := svc.RepriceFuel(ctx, req.FuelPrice)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: n})
	}
}

func resetYearHandler(svc *service.EquipmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/equipment/reset-year")
		defer span.End()

		n, err := svc.ResetYear(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: n})
	}
}

// ============================================================
// Time entries
// ============================================================

func startTimeEntryHandler(svc *service.TimeEntryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/time-entries")
		defer span.End()

		var req domain.TimeEntryStart
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("task.type", string(req.TaskType)))

		te, err := svc.Start(ctx, req)
		writeResult(w, logger, http.StatusCreated, te, err)
	}
}

func getTimeEntryHandler(svc *service.TimeEntryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/time-entries/{entryId}")
		defer span.End()

		id, err := pathID(r, "entryId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		te, err := svc.Get(ctx, id)
		writeResult(w, logger, http.StatusOK, te, err)
	}
}

func listTimeEntriesHandler(svc *service.TimeEntryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/time-entries")
		defer span.End()

		workOrderID, err := queryUUID(r, "workOrderId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		employeeID, err := queryUUID(r, "employeeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		list, err := svc.List(ctx, service.TimeEntryFilter{
			WorkOrderID: workOrderID,
			EmployeeID:  employeeID,
			OpenOnly:    queryBool(r, "open"),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, paginate(r, list))
	}
}

func pauseTimeEntryHandler(svc *service.TimeEntryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/time-entries/{entryId}/pause")
		defer span.End()

		id, expected, err := target(r, "entryId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		te, err := svc.Pause(ctx, id, expected)
		writeResult(w, logger, http.StatusOK, te, err)
	}
}

func resumeTimeEntryHandler(svc *service.TimeEntryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/time-entries/{entryId}/resume")
		defer span.End()

		id, expected, err := target(r, "entryId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		te, err := svc.Resume(ctx, id, expected)
		writeResult(w, logger, http.StatusOK, te, err)
	}
}

func completeTimeEntryHandler(svc *service.TimeEntryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/time-entries/{entryId}/complete")
		defer span.End()

		id, expected, err := target(r, "entryId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req service.StopRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		te, err := svc.Complete(ctx, id, req, expected)
		writeResult(w, logger, http.StatusOK, te, err)
	}
}
