package handler

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/service"
)

// ============================================================
// Schedule
// ============================================================

func createJobHandler(svc *service.ScheduleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/schedule")
		defer span.End()

		var req domain.ScheduleRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("job.type", string(req.JobType)))

		job, err := svc.Create(ctx, req)
		writeResult(w, logger, http.StatusCreated, job, err)
	}
}

func getJobHandler(svc *service.ScheduleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/schedule/{jobId}")
		defer span.End()

		id, err := pathID(r, "jobId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		job, err := svc.Get(ctx, id)
		writeResult(w, logger, http.StatusOK, job, err)
	}
}

// listJobsHandler serves the calendar view; from/to bound the window.
func listJobsHandler(svc *service.ScheduleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/schedule")
		defer span.End()

		from, err := queryTime(r, "from")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		to, err := queryTime(r, "to")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		employeeID, err := queryUUID(r, "employeeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		list, err := svc.List(ctx, service.JobFilter{
			From:       from,
			To:         to,
			Status:     queryEnum[domain.JobStatus](r, "status"),
			Type:       queryEnum[domain.JobType](r, "type"),
			EmployeeID: employeeID,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, paginate(r, list))
	}
}

func assignJobCrewHandler(svc *service.ScheduleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/schedule/{jobId}/crew")
		defer span.End()

		id, expected, err := target(r, "jobId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req service.CrewAssignment
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		job, err := svc.AssignCrew(ctx, id, req, expected)
		writeResult(w, logger, http.StatusOK, job, err)
	}
}

func assignJobEquipmentHandler(svc *service.ScheduleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/schedule/{jobId}/equipment")
		defer span.End()

		id, expected, err := target(r, "jobId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req equipmentAssignment
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		job, err := svc.AssignEquipment(ctx, id, req.EquipmentIDs, expected)
		writeResult(w, logger, http.StatusOK, job, err)
	}
}

func startJobHandler(svc *service.ScheduleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/schedule/{jobId}/start")
		defer span.End()

		id, expected, err := target(r, "jobId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		job, err := svc.Start(ctx, id, expected)
		writeResult(w, logger, http.StatusOK, job, err)
	}
}

func completeJobHandler(svc *service.ScheduleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/schedule/{jobId}/complete")
		defer span.End()

		id, expected, err := target(r, "jobId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req notesRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		job, err := svc.Complete(ctx, id, req.Notes, expected)
		writeResult(w, logger, http.StatusOK, job, err)
	}
}

func cancelJobHandler(svc *service.ScheduleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/schedule/{jobId}/cancel")
		defer span.End()

		id, expected, err := target(r, "jobId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req reasonRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		job, err := svc.Cancel(ctx, id, req.Reason, expected)
		writeResult(w, logger, http.StatusOK, job, err)
	}
}

type rescheduleRequest struct {
	ScheduledStart time.Time `json:"scheduledStart"`
	ScheduledEnd   time.Time `json:"scheduledEnd"`
}

func rescheduleJobHandler(svc *service.ScheduleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/schedule/{jobId}/reschedule")
		defer span.End()

		id, expected, err := target(r, "jobId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req rescheduleRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		job, err := svc.Reschedule(ctx, id, req.ScheduledStart, req.ScheduledEnd, expected)
		writeResult(w, logger, http.StatusOK, job, err)
	}
}
