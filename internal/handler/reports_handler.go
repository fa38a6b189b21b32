package handler

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/pricing"
	"github.com/treeshop/treeshop-ops-go/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ============================================================
// Settings
// ============================================================

func getSettingsHandler(svc *service.SettingsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/settings")
		defer span.End()

		s, err := svc.Get(ctx)
		writeResult(w, logger, http.StatusOK, s, err)
	}
}

func updateSettingsHandler(svc *service.SettingsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/settings")
		defer span.End()

		expected, err := ifMatch(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		current, err := svc.Get(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		next := *current
		if err := decodeJSON(r, &next); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		s, err := svc.Update(ctx, next, expected)
		writeResult(w, logger, http.StatusOK, s, err)
	}
}

// ============================================================
// Reports
// ============================================================

func dashboardHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/dashboard")
		defer span.End()

		d, err := svc.Dashboard(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func orphansHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/orphans")
		defer span.End()

		orphans, err := svc.Orphans(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, paginate(r, orphans))
	}
}

// exportHandler buffers the workbook so a failed export still gets a JSON
// error instead of a truncated file.
func exportHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/export.xlsx")
		defer span.End()

		var buf bytes.Buffer
		if err := svc.Export(ctx, &buf); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		name := "treeshop-" + time.Now().UTC().Format("2006-01-02") + ".xlsx"
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil {
			logger.Warn("export write failed", zap.Error(err))
		}
	}
}

// ============================================================
// Calculators
// ============================================================

func treeScoreHandler(svc *service.CalculatorService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/calc/tree-score")
		defer span.End()

		var req service.TreeScoreRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := svc.TreeScore(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func equipmentCostHandler(svc *service.CalculatorService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/calc/equipment-cost")
		defer span.End()

		var req pricing.EquipmentInputs
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := svc.EquipmentCost(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func wageHandler(svc *service.CalculatorService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/calc/wage")
		defer span.End()

		var req pricing.WageInput
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := svc.Wage(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func measureHandler(svc *service.CalculatorService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/measurements")
		defer span.End()

		var req service.MeasureRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		m, err := svc.Measure(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}
