package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/geo"
	"github.com/treeshop/treeshop-ops-go/internal/service"
)

// ============================================================
// Customers
// ============================================================

func createCustomerHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/customers")
		defer span.End()

		var req domain.CustomerDetails
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		c, err := svc.Create(ctx, req)
		writeResult(w, logger, http.StatusCreated, c, err)
	}
}

func getCustomerHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/customers/{customerId}")
		defer span.End()

		id, err := pathID(r, "customerId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		c, err := svc.Get(ctx, id)
		writeResult(w, logger, http.StatusOK, c, err)
	}
}

func listCustomersHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/customers")
		defer span.End()

		q := r.URL.Query()
		list, err := svc.List(ctx, service.CustomerFilter{
			Query:           q.Get("q"),
			Tag:             q.Get("tag"),
			VIPOnly:         queryBool(r, "vip"),
			IncludeArchived: queryBool(r, "include_archived"),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, paginate(r, list))
	}
}

// patchCustomerHandler overlays the body on the stored details, so absent
// fields keep their values.
func patchCustomerHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/customers/{customerId}")
		defer span.End()

		id, expected, err := target(r, "customerId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		current, err := svc.Get(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		details := current.CustomerDetails
		if err := decodeJSON(r, &details); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		c, err := svc.Update(ctx, id, details, expected)
		writeResult(w, logger, http.StatusOK, c, err)
	}
}

type customerContactRequest struct {
	Method domain.ContactMethod `json:"method"`
	Notes  string               `json:"notes"`
}

func customerContactHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/customers/{customerId}/contacts")
		defer span.End()

		id, err := pathID(r, "customerId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req customerContactRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		c, err := svc.LogContact(ctx, id, req.Method, req.Notes)
		writeResult(w, logger, http.StatusOK, c, err)
	}
}

func customerJobHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/customers/{customerId}/jobs")
		defer span.End()

		id, expected, err := target(r, "customerId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req service.JobRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		c, err := svc.RecordJob(ctx, id, req, expected)
		writeResult(w, logger, http.StatusOK, c, err)
	}
}

func archiveCustomerHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/customers/{customerId}/archive")
		defer span.End()

		id, expected, err := target(r, "customerId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		c, err := svc.Archive(ctx, id, expected)
		writeResult(w, logger, http.StatusOK, c, err)
	}
}

func customerPipelineHandler(svc *service.CustomerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/customers/{customerId}/pipeline")
		defer span.End()

		id, err := pathID(r, "customerId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.Pipeline(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// ============================================================
// Properties
// ============================================================

func createPropertyHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/properties")
		defer span.End()

		var req domain.PropertyDetails
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.Create(ctx, req)
		writeResult(w, logger, http.StatusCreated, p, err)
	}
}

func getPropertyHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/properties/{propertyId}")
		defer span.End()

		id, err := pathID(r, "propertyId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.Get(ctx, id)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

func listPropertiesHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/properties")
		defer span.End()

		customerID, err := queryUUID(r, "customerId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		list, err := svc.List(ctx, service.PropertyFilter{
			CustomerID:      customerID,
			IncludeArchived: queryBool(r, "include_archived"),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, paginate(r, list))
	}
}

func patchPropertyHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/properties/{propertyId}")
		defer span.End()

		id, expected, err := target(r, "propertyId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		current, err := svc.Get(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		details := current.PropertyDetails
		if err := decodeJSON(r, &details); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.Update(ctx, id, details, expected)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

func propertyAFISSHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/properties/{propertyId}/afiss")
		defer span.End()

		id, expected, err := target(r, "propertyId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req service.AFISSRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.UpdateAFISS(ctx, id, req, expected)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

type boundaryRequest struct {
	Points []geo.Point `json:"points"`
}

func propertyBoundaryHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/properties/{propertyId}/boundary")
		defer span.End()

		id, expected, err := target(r, "propertyId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req boundaryRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.SetParcelBoundary(ctx, id, req.Points, expected)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

func propertyJobHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/properties/{propertyId}/jobs")
		defer span.End()

		id, expected, err := target(r, "propertyId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req service.JobRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.RecordJob(ctx, id, req, expected)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

func archivePropertyHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/properties/{propertyId}/archive")
		defer span.End()

		id, expected, err := target(r, "propertyId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.Archive(ctx, id, expected)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

func propertyTreesHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/properties/{propertyId}/trees")
		defer span.End()

		id, err := pathID(r, "propertyId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		inv, err := svc.Trees(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, inv)
	}
}

func detachTreeHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/properties/{propertyId}/trees/{treeId}")
		defer span.End()

		id, expected, err := target(r, "propertyId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		treeID, err := pathID(r, "treeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.DetachTree(ctx, id, treeID, expected)
		writeResult(w, logger, http.StatusOK, p, err)
	}
}

func propertyPipelineHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/properties/{propertyId}/pipeline")
		defer span.End()

		id, err := pathID(r, "propertyId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.Pipeline(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// ============================================================
// Trees
// ============================================================

func createTreeHandler(svc *service.TreeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/trees")
		defer span.End()

		var req service.TreeRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		t, err := svc.Create(ctx, req)
		writeResult(w, logger, http.StatusCreated, t, err)
	}
}

func getTreeHandler(svc *service.TreeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/trees/{treeId}")
		defer span.End()

		id, err := pathID(r, "treeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		t, err := svc.Get(ctx, id)
		writeResult(w, logger, http.StatusOK, t, err)
	}
}

func listTreesHandler(svc *service.TreeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/trees")
		defer span.End()

		propertyID, err := queryUUID(r, "propertyId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		list, err := svc.List(ctx, propertyID, queryBool(r, "include_removed"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, paginate(r, list))
	}
}

func patchTreeHandler(svc *service.TreeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/trees/{treeId}")
		defer span.End()

		id, expected, err := target(r, "treeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		current, err := svc.Get(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		details := current.TreeDetails
		if err := decodeJSON(r, &details); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		t, err := svc.UpdateDetails(ctx, id, details, expected)
		writeResult(w, logger, http.StatusOK, t, err)
	}
}

func treeMeasurementsHandler(svc *service.TreeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/trees/{treeId}/measurements")
		defer span.End()

		id, expected, err := target(r, "treeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req domain.Measurements
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		t, err := svc.UpdateMeasurements(ctx, id, req, expected)
		writeResult(w, logger, http.StatusOK, t, err)
	}
}

type trimRequest struct {
	PercentToTrim *float64 `json:"percentToTrim"`
}

func treeTrimHandler(svc *service.TreeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/trees/{treeId}/trim")
		defer span.End()

		id, expected, err := target(r, "treeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req trimRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		t, err := svc.SetTrimPercentage(ctx, id, req.PercentToTrim, expected)
		writeResult(w, logger, http.StatusOK, t, err)
	}
}

func treeWorkHandler(svc *service.TreeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/trees/{treeId}/work")
		defer span.End()

		id, expected, err := target(r, "treeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req service.WorkRecordRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		t, err := svc.AddWorkRecord(ctx, id, req, expected)
		writeResult(w, logger, http.StatusOK, t, err)
	}
}

type removalRequest struct {
	RemovalDate *time.Time `json:"removalDate,omitempty"`
}

func removeTreeHandler(svc *service.TreeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/trees/{treeId}/remove")
		defer span.End()

		id, expected, err := target(r, "treeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req removalRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		t, err := svc.MarkRemoved(ctx, id, req.RemovalDate, expected)
		writeResult(w, logger, http.StatusOK, t, err)
	}
}

type treeStatusRequest struct {
	Status domain.TreeStatus `json:"status"`
}

func treeStatusHandler(svc *service.TreeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/trees/{treeId}/status")
		defer span.End()

		id, expected, err := target(r, "treeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req treeStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		t, err := svc.SetStatus(ctx, id, req.Status, expected)
		writeResult(w, logger, http.StatusOK, t, err)
	}
}
