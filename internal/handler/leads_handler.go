package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/service"
)

// ============================================================
// Leads
// ============================================================

func createLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads")
		defer span.End()

		var req domain.LeadDetails
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		lead, err := svc.Create(ctx, req, actor(r))
		if err == nil {
			span.SetAttributes(attribute.String("lead.id", lead.ID.String()))
		}
		writeResult(w, logger, http.StatusCreated, lead, err)
	}
}

func getLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads/{leadId}")
		defer span.End()

		id, err := pathID(r, "leadId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("lead.id", id.String()))

		lead, err := svc.Get(ctx, id)
		writeResult(w, logger, http.StatusOK, lead, err)
	}
}

func listLeadsHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads")
		defer span.End()

		f := domain.LeadFilter{
			Stage:          queryEnum[domain.WorkflowStage](r, "stage"),
			Urgency:        queryEnum[domain.Urgency](r, "urgency"),
			ActiveOnly:     queryBool(r, "active"),
			OverdueOnly:    queryBool(r, "overdue"),
			NeedsSiteVisit: queryBool(r, "needs_site_visit"),
			Query:          r.URL.Query().Get("q"),
		}
		leads, err := svc.List(ctx, f)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, paginate(r, leads))
	}
}

func leadStatsHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads/stats")
		defer span.End()

		stats, err := svc.Stats(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func advanceLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/advance")
		defer span.End()

		id, expected, err := target(r, "leadId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req notesRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		lead, err := svc.Advance(ctx, id, req.Notes, actor(r), expected)
		if err == nil {
			span.SetAttributes(attribute.String("lead.stage", string(lead.Stage())))
		}
		writeResult(w, logger, http.StatusOK, lead, err)
	}
}

type setStageRequest struct {
	Stage domain.WorkflowStage `json:"stage"`
	Notes string               `json:"notes"`
}

func setLeadStageHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/leads/{leadId}/stage")
		defer span.End()

		id, expected, err := target(r, "leadId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req setStageRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		logger.Info("manual stage change",
			zap.String("lead_id", id.String()),
			zap.String("target", string(req.Stage)),
			zap.String("actor", actor(r)),
		)
		lead, err := svc.SetStage(ctx, id, req.Stage, req.Notes, actor(r), expected)
		writeResult(w, logger, http.StatusOK, lead, err)
	}
}

func leadContactHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/contacts")
		defer span.End()

		id, expected, err := target(r, "leadId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req service.ContactRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		lead, err := svc.RecordContact(ctx, id, req, expected)
		writeResult(w, logger, http.StatusOK, lead, err)
	}
}

type siteVisitRequest struct {
	ScheduledAt time.Time  `json:"scheduledAt"`
	AssigneeID  *uuid.UUID `json:"assigneeId,omitempty"`
}

func scheduleSiteVisitHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/site-visit")
		defer span.End()

		id, expected, err := target(r, "leadId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req siteVisitRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if req.ScheduledAt.IsZero() {
			handleServiceError(w, &domain.ErrValidation{Field: "scheduledAt", Message: "is required"}, logger)
			return
		}

		lead, err := svc.ScheduleSiteVisit(ctx, id, req.ScheduledAt, req.AssigneeID, expected)
		writeResult(w, logger, http.StatusOK, lead, err)
	}
}

type completeVisitRequest struct {
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Notes       string     `json:"notes"`
}

func completeSiteVisitHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/site-visit/complete")
		defer span.End()

		id, expected, err := target(r, "leadId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req completeVisitRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		lead, err := svc.CompleteSiteVisit(ctx, id, req.CompletedAt, req.Notes, expected)
		writeResult(w, logger, http.StatusOK, lead, err)
	}
}

func archiveLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/archive")
		defer span.End()

		id, expected, err := target(r, "leadId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req reasonRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		lead, err := svc.Archive(ctx, id, req.Reason, expected)
		writeResult(w, logger, http.StatusOK, lead, err)
	}
}
