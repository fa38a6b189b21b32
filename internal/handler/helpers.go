package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeEntity writes a stored record with its version as the ETag.
func writeEntity(w http.ResponseWriter, status int, e domain.Entity) {
	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(e.Base().Version)))
	writeJSON(w, status, e)
}

// writeResult writes e, or the mapped error when err is set.
func writeResult(w http.ResponseWriter, logger *zap.Logger, status int, e domain.Entity, err error) {
	if err != nil {
		handleServiceError(w, err, logger)
		return
	}
	writeEntity(w, status, e)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "invalid request body"}
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &domain.ErrValidation{Field: "body", Message: "invalid request body"}
}

// notesRequest and reasonRequest carry the free text of simple transitions.
type notesRequest struct {
	Notes string `json:"notes"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, &domain.ErrValidation{Field: name, Message: "must be a UUID"}
	}
	return id, nil
}

// ifMatch reads the expected version from If-Match. An absent header means
// the write is unconditional.
func ifMatch(r *http.Request) (*int, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return nil, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "If-Match", Message: "must be a quoted version number"}
	}
	return &v, nil
}

// target reads the path id and the If-Match version of a mutating request.
func target(r *http.Request, name string) (uuid.UUID, *int, error) {
	id, err := pathID(r, name)
	if err != nil {
		return uuid.Nil, nil, err
	}
	expected, err := ifMatch(r)
	return id, expected, err
}

func queryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, &domain.ErrValidation{Field: key, Message: "must be a UUID"}
	}
	return &id, nil
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, &domain.ErrValidation{Field: key, Message: "must be an RFC 3339 timestamp"}
	}
	return &t, nil
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

// queryEnum returns a pointer to the typed query value, or nil when absent.
func queryEnum[T ~string](r *http.Request, key string) *T {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	t := T(v)
	return &t
}

func parsePagination(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = 50
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 && ps <= 200 {
			pageSize = ps
		}
	}
	return
}

// paginate slices a full result set into one page.
func paginate[T any](r *http.Request, items []T) domain.ListResponse[T] {
	page, pageSize := parsePagination(r)
	start := min((page-1)*pageSize, len(items))
	end := min(start+pageSize, len(items))
	data := items[start:end]
	if data == nil {
		data = []T{}
	}
	return domain.ListResponse[T]{
		Data:     data,
		Total:    len(items),
		Page:     page,
		PageSize: pageSize,
		HasMore:  end < len(items),
	}
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var transition *domain.ErrInvalidTransition
	var version *domain.ErrVersionConflict
	var conflict *domain.ErrConflict
	var reference *domain.ErrReferenceMissing
	var unprocessable *domain.ErrUnprocessable
	var unauthorized *domain.ErrUnauthorized
	var forbidden *domain.ErrForbidden
	var circuitOpen *domain.ErrCircuitOpen
	var external *domain.ErrExternalService
	var timeout *domain.ErrTimeout

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: validation.Field})
	case errors.As(err, &transition):
		logger.Debug("invalid transition", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &version):
		logger.Info("version conflict",
			zap.String("resource", version.Resource),
			zap.Int("expected", version.Expected),
			zap.Int("actual", version.Actual),
		)
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &reference):
		logger.Debug("reference missing", zap.String("error", err.Error()))
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Field: reference.Field})
	case errors.As(err, &unprocessable):
		logger.Debug("unprocessable", zap.String("error", err.Error()))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &external):
		logger.Error("external service failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
