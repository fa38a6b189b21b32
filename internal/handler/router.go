package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/port"
	"github.com/treeshop/treeshop-ops-go/internal/service"
)

var tracer = otel.Tracer("handler")

// Services bundles everything the HTTP layer calls into.
type Services struct {
	Leads       *service.LeadService
	Proposals   *service.ProposalService
	WorkOrders  *service.WorkOrderService
	Invoices    *service.InvoiceService
	Customers   *service.CustomerService
	Properties  *service.PropertyService
	Trees       *service.TreeService
	Employees   *service.EmployeeService
	Equipment   *service.EquipmentService
	TimeEntries *service.TimeEntryService
	Schedule    *service.ScheduleService
	Settings    *service.SettingsService
	Reports     *service.ReportService
	Calculator  *service.CalculatorService
	Identity    *service.IdentityService
}

type RouterConfig struct {
	AuthDisabled bool
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc *Services, store port.DocumentStore, cfg RouterConfig, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(store, logger))
	r.Get("/readyz", readyzHandler(store, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	if svc == nil {
		return r
	}

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/ops", opsMetricsHandler(metrics))

		// Calculators are stateless and open to the field apps.
		r.Post("/calc/tree-score", treeScoreHandler(svc.Calculator, logger))
		r.Post("/calc/equipment-cost", equipmentCostHandler(svc.Calculator, logger))
		r.Post("/calc/wage", wageHandler(svc.Calculator, logger))
		r.Post("/measurements", measureHandler(svc.Calculator, logger))

		r.Group(func(r chi.Router) {
			if !cfg.AuthDisabled {
				r.Use(JWTAuthMiddleware(svc.Identity, logger))
			}
			r.Use(invalidateOnWrite(svc.Reports))

			// --- Leads ---
			r.Post("/leads", createLeadHandler(svc.Leads, logger))
			r.Get("/leads", listLeadsHandler(svc.Leads, logger))
			r.Get("/leads/stats", leadStatsHandler(svc.Leads, logger))
			r.Get("/leads/{leadId}", getLeadHandler(svc.Leads, logger))
			r.Post("/leads/{leadId}/advance", advanceLeadHandler(svc.Leads, logger))
			r.With(RequireRole(logger, service.RoleAdmin, service.RoleOffice)).
				Put("/leads/{leadId}/stage", setLeadStageHandler(svc.Leads, logger))
			r.Post("/leads/{leadId}/contacts", leadContactHandler(svc.Leads, logger))
			r.Post("/leads/{leadId}/site-visit", scheduleSiteVisitHandler(svc.Leads, logger))
			r.Post("/leads/{leadId}/site-visit/complete", completeSiteVisitHandler(svc.Leads, logger))
			r.Post("/leads/{leadId}/archive", archiveLeadHandler(svc.Leads, logger))

			// --- Proposals ---
			r.Post("/proposals", createProposalHandler(svc.Proposals, logger))
			r.Get("/proposals", listProposalsHandler(svc.Proposals, logger))
			r.Post("/proposals/expire", expireProposalsHandler(svc.Proposals, logger))
			r.Get("/proposals/{proposalId}", getProposalHandler(svc.Proposals, logger))
			r.Post("/proposals/{proposalId}/line-items", addLineItemHandler(svc.Proposals, logger))
			r.Put("/proposals/{proposalId}/line-items/{itemId}", updateLineItemHandler(svc.Proposals, logger))
			r.Delete("/proposals/{proposalId}/line-items/{itemId}", removeLineItemHandler(svc.Proposals, logger))
			r.Put("/proposals/{proposalId}/tax-rate", setTaxRateHandler(svc.Proposals, logger))
			r.Post("/proposals/{proposalId}/send", sendProposalHandler(svc.Proposals, logger))
			r.Post("/proposals/{proposalId}/view", viewProposalHandler(svc.Proposals, logger))
			r.Post("/proposals/{proposalId}/accept", acceptProposalHandler(svc.Proposals, logger))
			r.Post("/proposals/{proposalId}/decline", declineProposalHandler(svc.Proposals, logger))
			r.Post("/proposals/{proposalId}/deposit", proposalDepositHandler(svc.Proposals, logger))

			// --- Work orders ---
			r.Get("/work-orders", listWorkOrdersHandler(svc.WorkOrders, logger))
			r.Get("/work-orders/{workOrderId}", getWorkOrderHandler(svc.WorkOrders, logger))
			r.Post("/work-orders/{workOrderId}/start", startWorkOrderHandler(svc.WorkOrders, logger))
			r.Post("/work-orders/{workOrderId}/complete", completeWorkOrderHandler(svc.WorkOrders, logger))
			r.Post("/work-orders/{workOrderId}/hold", holdWorkOrderHandler(svc.WorkOrders, logger))
			r.Post("/work-orders/{workOrderId}/cancel", cancelWorkOrderHandler(svc.WorkOrders, logger))
			r.Put("/work-orders/{workOrderId}/crew", assignWorkOrderCrewHandler(svc.WorkOrders, logger))
			r.Put("/work-orders/{workOrderId}/equipment", assignWorkOrderEquipmentHandler(svc.WorkOrders, logger))
			r.Put("/work-orders/{workOrderId}/line-items/{itemId}", workOrderProgressHandler(svc.WorkOrders, logger))
			r.Post("/work-orders/{workOrderId}/journal", journalHandler(svc.WorkOrders, logger))
			r.Get("/work-orders/{workOrderId}/time-entries", workOrderTimeEntriesHandler(svc.TimeEntries, logger))
			r.Post("/work-orders/{workOrderId}/invoice", createInvoiceHandler(svc.Invoices, logger))

			// --- Invoices ---
			r.Get("/invoices", listInvoicesHandler(svc.Invoices, logger))
			r.Get("/invoices/{invoiceId}", getInvoiceHandler(svc.Invoices, logger))
			r.Get("/invoices/{invoiceId}/statement", invoiceStatementHandler(svc.Invoices, logger))
			r.Post("/invoices/{invoiceId}/send", sendInvoiceHandler(svc.Invoices, logger))
			r.Post("/invoices/{invoiceId}/payments", recordPaymentHandler(svc.Invoices, logger))
			r.Post("/invoices/{invoiceId}/void", voidInvoiceHandler(svc.Invoices, logger))

			// --- Customers ---
			r.Post("/customers", createCustomerHandler(svc.Customers, logger))
			r.Get("/customers", listCustomersHandler(svc.Customers, logger))
			r.Get("/customers/{customerId}", getCustomerHandler(svc.Customers, logger))
			r.Patch("/customers/{customerId}", patchCustomerHandler(svc.Customers, logger))
			r.Post("/customers/{customerId}/contacts", customerContactHandler(svc.Customers, logger))
			r.Post("/customers/{customerId}/jobs", customerJobHandler(svc.Customers, logger))
			r.Post("/customers/{customerId}/archive", archiveCustomerHandler(svc.Customers, logger))
			r.Get("/customers/{customerId}/pipeline", customerPipelineHandler(svc.Customers, logger))

			// --- Properties ---
			r.Post("/properties", createPropertyHandler(svc.Properties, logger))
			r.Get("/properties", listPropertiesHandler(svc.Properties, logger))
			r.Get("/properties/{propertyId}", getPropertyHandler(svc.Properties, logger))
			r.Patch("/properties/{propertyId}", patchPropertyHandler(svc.Properties, logger))
			r.Put("/properties/{propertyId}/afiss", propertyAFISSHandler(svc.Properties, logger))
			r.Put("/properties/{propertyId}/boundary", propertyBoundaryHandler(svc.Properties, logger))
			r.Post("/properties/{propertyId}/jobs", propertyJobHandler(svc.Properties, logger))
			r.Post("/properties/{propertyId}/archive", archivePropertyHandler(svc.Properties, logger))
			r.Get("/properties/{propertyId}/trees", propertyTreesHandler(svc.Properties, logger))
			r.Delete("/properties/{propertyId}/trees/{treeId}", detachTreeHandler(svc.Properties, logger))
			r.Get("/properties/{propertyId}/pipeline", propertyPipelineHandler(svc.Properties, logger))

			// --- Trees ---
			r.Post("/trees", createTreeHandler(svc.Trees, logger))
			r.Get("/trees", listTreesHandler(svc.Trees, logger))
			r.Get("/trees/{treeId}", getTreeHandler(svc.Trees, logger))
			r.Patch("/trees/{treeId}", patchTreeHandler(svc.Trees, logger))
			r.Put("/trees/{treeId}/measurements", treeMeasurementsHandler(svc.Trees, logger))
			r.Put("/trees/{treeId}/trim", treeTrimHandler(svc.Trees, logger))
			r.Post("/trees/{treeId}/work", treeWorkHandler(svc.Trees, logger))
			r.Post("/trees/{treeId}/remove", removeTreeHandler(svc.Trees, logger))
			r.Put("/trees/{treeId}/status", treeStatusHandler(svc.Trees, logger))

			// --- Employees ---
			r.Post("/employees", createEmployeeHandler(svc.Employees, logger))
			r.Get("/employees", listEmployeesHandler(svc.Employees, logger))
			r.Get("/employees/{employeeId}", getEmployeeHandler(svc.Employees, logger))
			r.Patch("/employees/{employeeId}", patchEmployeeHandler(svc.Employees, logger))
			r.Put("/employees/{employeeId}/compensation", employeeCompensationHandler(svc.Employees, logger))
			r.Post("/employees/{employeeId}/terminate", terminateEmployeeHandler(svc.Employees, logger))

			// --- Equipment ---
			r.Post("/equipment", createEquipmentHandler(svc.Equipment, logger))
			r.Get("/equipment", listEquipmentHandler(svc.Equipment, logger))
			r.Post("/equipment/fuel-price", repriceFuelHandler(svc.Equipment, logger))
			r.Post("/equipment/reset-year", resetYearHandler(svc.Equipment, logger))
			r.Get("/equipment/{equipmentId}", getEquipmentHandler(svc.Equipment, logger))
			r.Patch("/equipment/{equipmentId}", patchEquipmentHandler(svc.Equipment, logger))
			r.Put("/equipment/{equipmentId}/costs", equipmentCostsHandler(svc.Equipment, logger))
			r.Post("/equipment/{equipmentId}/usage", equipmentUsageHandler(svc.Equipment, logger))
			r.Post("/equipment/{equipmentId}/maintenance", equipmentMaintenanceHandler(svc.Equipment, logger))
			r.Put("/equipment/{equipmentId}/status", equipmentStatusHandler(svc.Equipment, logger))

			// --- Time entries ---
			r.Post("/time-entries", startTimeEntryHandler(svc.TimeEntries, logger))
			r.Get("/time-entries", listTimeEntriesHandler(svc.TimeEntries, logger))
			r.Get("/time-entries/{entryId}", getTimeEntryHandler(svc.TimeEntries, logger))
			r.Post("/time-entries/{entryId}/pause", pauseTimeEntryHandler(svc.TimeEntries, logger))
			r.Post("/time-entries/{entryId}/resume", resumeTimeEntryHandler(svc.TimeEntries, logger))
			r.Post("/time-entries/{entryId}/complete", completeTimeEntryHandler(svc.TimeEntries, logger))

			// --- Schedule ---
			r.Post("/schedule", createJobHandler(svc.Schedule, logger))
			r.Get("/schedule", listJobsHandler(svc.Schedule, logger))
			r.Get("/schedule/{jobId}", getJobHandler(svc.Schedule, logger))
			r.Put("/schedule/{jobId}/crew", assignJobCrewHandler(svc.Schedule, logger))
			r.Put("/schedule/{jobId}/equipment", assignJobEquipmentHandler(svc.Schedule, logger))
			r.Post("/schedule/{jobId}/start", startJobHandler(svc.Schedule, logger))
			r.Post("/schedule/{jobId}/complete", completeJobHandler(svc.Schedule, logger))
			r.Post("/schedule/{jobId}/cancel", cancelJobHandler(svc.Schedule, logger))
			r.Post("/schedule/{jobId}/reschedule", rescheduleJobHandler(svc.Schedule, logger))

			// --- Settings & reports ---
			r.Get("/settings", getSettingsHandler(svc.Settings, logger))
			r.With(RequireRole(logger, service.RoleAdmin)).
				Put("/settings", updateSettingsHandler(svc.Settings, logger))
			r.Get("/reports/dashboard", dashboardHandler(svc.Reports, logger))
			r.Get("/reports/orphans", orphansHandler(svc.Reports, logger))
			r.Get("/reports/export.xlsx", exportHandler(svc.Reports, logger))
		})
	})

	return r
}

// invalidateOnWrite drops the cached dashboard after any successful
// mutation so the next read reflects it.
func invalidateOnWrite(reports *service.ReportService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if ww.Status() < http.StatusBadRequest {
				reports.InvalidateDashboard()
			}
		})
	}
}

// ============================================================
// Health & metrics
// ============================================================

func healthzHandler(store port.DocumentStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "treeshop-api", Status: "healthy", LatencyMs: 0, UptimePercent: 99.99, LastChecked: now},
		}

		if store != nil {
			start := time.Now()
			err := store.Ping(r.Context())
			status := "healthy"
			if err != nil {
				logger.Warn("store health check failed", zap.Error(err))
				status = "unhealthy"
			}
			services = append(services, domain.ServiceHealth{
				Name: "store", Status: status, LatencyMs: time.Since(start).Milliseconds(),
				UptimePercent: 99.9, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler(store port.DocumentStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				logger.Warn("not ready", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "store unavailable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func opsMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot("dashboard", time.Now()))
	}
}
