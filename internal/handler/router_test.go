package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/handler"
	"github.com/treeshop/treeshop-ops-go/internal/infra/cache"
	"github.com/treeshop/treeshop-ops-go/internal/infra/memstore"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/infra/resilience"
	"github.com/treeshop/treeshop-ops-go/internal/pricing"
	"github.com/treeshop/treeshop-ops-go/internal/service"
	"github.com/treeshop/treeshop-ops-go/internal/store"
)

const testSecret = "test-secret"

func newTestRouter(t *testing.T, authDisabled bool) (http.Handler, *handler.Services) {
	t.Helper()
	db := memstore.New()
	repos := store.NewRepositories(db)
	metrics := observability.NewMetrics()
	logger := zap.NewNop()
	dashboards := cache.New[*domain.Dashboard](time.Minute)
	t.Cleanup(dashboards.Stop)

	svc := &handler.Services{
		Leads:       service.NewLeadService(repos, metrics, logger),
		Proposals:   service.NewProposalService(repos, metrics, logger),
		WorkOrders:  service.NewWorkOrderService(repos, metrics, logger),
		Invoices:    service.NewInvoiceService(repos, metrics, logger),
		Customers:   service.NewCustomerService(repos, metrics, logger),
		Properties:  service.NewPropertyService(repos, metrics, logger),
		Trees:       service.NewTreeService(repos, metrics, logger),
		Employees:   service.NewEmployeeService(repos, pricing.DefaultCompensationTable(), metrics, logger),
		Equipment:   service.NewEquipmentService(repos, metrics, logger),
		TimeEntries: service.NewTimeEntryService(repos, metrics, logger),
		Schedule:    service.NewScheduleService(repos, nil, metrics, logger),
		Settings:    service.NewSettingsService(repos, metrics, logger),
		Reports:     service.NewReportService(repos, dashboards, resilience.NewBulkhead(2), metrics, logger),
		Calculator:  service.NewCalculatorService(pricing.DefaultCompensationTable(), metrics, logger),
		Identity:    service.NewIdentityService(testSecret, "treeshop-test", logger),
	}
	if _, err := svc.Settings.Ensure(context.Background(), 0.07, 3.50); err != nil {
		t.Fatalf("ensure settings: %v", err)
	}
	cfg := handler.RouterConfig{AuthDisabled: authDisabled}
	return handler.NewRouter(svc, db, cfg, metrics, logger), svc
}

func do(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// --- Operational ---

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t, true)

	rec := do(router, http.MethodGet, "/healthz", "", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var health domain.HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "healthy" || len(health.Services) != 2 {
		t.Errorf("expected healthy api and store, got %+v", health)
	}
}

func TestReadyz(t *testing.T) {
	router, _ := newTestRouter(t, true)

	rec := do(router, http.MethodGet, "/readyz", "", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router, _ := newTestRouter(t, true)

	do(router, http.MethodPost, "/v1/calc/wage", `{"baseHourlyRate":20,"tier":9,"equipmentLevel":1,"driverClass":1}`, nil)
	rec := do(router, http.MethodGet, "/metrics", "", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "treeshop_") {
		t.Errorf("expected treeshop metrics in exposition")
	}
}

func TestOperationalRoutesWithoutServices(t *testing.T) {
	router := handler.NewRouter(nil, nil, handler.RouterConfig{}, observability.NewMetrics(), zap.NewNop())

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/ping"} {
		if rec := do(router, http.MethodGet, path, "", nil); rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

// --- Resources ---

func TestLeads_CreateReturnsETagAndChecksIfMatch(t *testing.T) {
	router, _ := newTestRouter(t, true)

	rec := do(router, http.MethodPost, "/v1/leads", `{"customerName":"Dana Whitfield","address":{"street":"12 Oak Ln"}}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if etag := rec.Header().Get("ETag"); etag != `"1"` {
		t.Fatalf(`expected ETag "1", got %q`, etag)
	}
	var lead struct {
		ID    uuid.UUID `json:"id"`
		Stage string    `json:"stage"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&lead); err != nil {
		t.Fatalf("decode: %v", err)
	}

	path := "/v1/leads/" + lead.ID.String() + "/advance"
	stale := do(router, http.MethodPost, path, "", map[string]string{"If-Match": `"7"`})
	if stale.Code != http.StatusConflict {
		t.Fatalf("expected 409 for stale If-Match, got %d", stale.Code)
	}

	ok := do(router, http.MethodPost, path, `{"notes":"called back"}`, map[string]string{"If-Match": `"1"`})
	if ok.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", ok.Code, ok.Body.String())
	}
	if etag := ok.Header().Get("ETag"); etag != `"2"` {
		t.Fatalf(`expected ETag "2", got %q`, etag)
	}
}

func TestLeads_ValidationAndNotFound(t *testing.T) {
	router, _ := newTestRouter(t, true)

	rec := do(router, http.MethodPost, "/v1/leads", `{"customerName":""}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Field string `json:"field"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Field != "customerName" {
		t.Fatalf("expected field customerName, got %q", body.Field)
	}

	if rec := do(router, http.MethodGet, "/v1/leads/"+uuid.NewString(), "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := do(router, http.MethodGet, "/v1/leads/not-a-uuid", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad id, got %d", rec.Code)
	}
}

func TestLeads_ListIsPaginated(t *testing.T) {
	router, _ := newTestRouter(t, true)
	for _, name := range []string{"Ana", "Ben", "Cal"} {
		do(router, http.MethodPost, "/v1/leads", `{"customerName":"`+name+`"}`, nil)
	}

	rec := do(router, http.MethodGet, "/v1/leads?page=1&page_size=2", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page struct {
		Data    []json.RawMessage `json:"data"`
		Total   int               `json:"total"`
		HasMore bool              `json:"has_more"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Data) != 2 || page.Total != 3 || !page.HasMore {
		t.Fatalf("expected 2 of 3 with more, got %d of %d (%v)", len(page.Data), page.Total, page.HasMore)
	}
}

func TestProposals_AcceptCreatesWorkOrder(t *testing.T) {
	router, svc := newTestRouter(t, true)
	lead, err := svc.Leads.Create(context.Background(), domain.LeadDetails{CustomerName: "Dana Whitfield"}, "office")
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}

	body := `{"leadId":"` + lead.ID.String() + `","lineItems":[{"serviceType":"TREE_REMOVAL","description":"Remove oak","quantity":1,"unitPrice":500,"estimatedHours":12}]}`
	rec := do(router, http.MethodPost, "/v1/proposals", body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var p struct {
		ID    uuid.UUID `json:"id"`
		Total float64   `json:"totalAmount"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Total != 535 {
		t.Fatalf("expected total 535, got %v", p.Total)
	}

	dup := do(router, http.MethodPost, "/v1/proposals", body, nil)
	if dup.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a second open proposal, got %d", dup.Code)
	}

	acc := do(router, http.MethodPost, "/v1/proposals/"+p.ID.String()+"/accept", "", nil)
	if acc.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", acc.Code, acc.Body.String())
	}
	if !strings.HasPrefix(acc.Header().Get("Location"), "/v1/work-orders/") {
		t.Fatalf("expected work order location, got %q", acc.Header().Get("Location"))
	}

	again := do(router, http.MethodPost, "/v1/proposals/"+p.ID.String()+"/accept", "", nil)
	if again.Code != http.StatusConflict {
		t.Fatalf("expected 409 accepting twice, got %d", again.Code)
	}
}

func TestInvoices_IncompleteWorkOrderIsConflict(t *testing.T) {
	router, svc := newTestRouter(t, true)
	ctx := context.Background()
	lead, _ := svc.Leads.Create(ctx, domain.LeadDetails{CustomerName: "Dana Whitfield"}, "office")
	p, err := svc.Proposals.Create(ctx, service.ProposalRequest{
		LeadID:    lead.ID,
		LineItems: []domain.LineItemInput{{ServiceType: domain.ServiceTreeRemoval, Description: "Remove oak", Quantity: 1, UnitPrice: 500}},
	}, "office")
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	_, wo, err := svc.Proposals.Accept(ctx, p.ID, "", "office", nil)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	rec := do(router, http.MethodPost, "/v1/work-orders/"+wo.ID.String()+"/invoice", "", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for an unfinished work order, got %d", rec.Code)
	}
}

// --- Auth ---

func TestAuth_MissingTokenRejected(t *testing.T) {
	router, _ := newTestRouter(t, false)

	rec := do(router, http.MethodGet, "/v1/leads", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	// calculators stay public
	calc := do(router, http.MethodPost, "/v1/calc/tree-score", `{"height":50,"dbh":20,"canopyRadius":15}`, nil)
	if calc.Code != http.StatusOK {
		t.Fatalf("expected 200 for calculator, got %d", calc.Code)
	}
}

func TestAuth_RoleChecks(t *testing.T) {
	router, svc := newTestRouter(t, false)
	crew, err := svc.Identity.IssueToken("emp-1", "Luis Reyes", service.RoleCrew, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	admin, _ := svc.Identity.IssueToken("owner", "Jamie Lee", service.RoleAdmin, time.Hour)

	list := do(router, http.MethodGet, "/v1/leads", "", map[string]string{"Authorization": "Bearer " + crew})
	if list.Code != http.StatusOK {
		t.Fatalf("expected 200 for crew read, got %d", list.Code)
	}

	settings := `{"defaultTaxRate":0.065}`
	if rec := do(router, http.MethodPut, "/v1/settings", settings, map[string]string{"Authorization": "Bearer " + crew}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for crew settings change, got %d", rec.Code)
	}
	rec := do(router, http.MethodPut, "/v1/settings", settings, map[string]string{"Authorization": "Bearer " + admin})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", rec.Code, rec.Body.String())
	}

	bad := do(router, http.MethodGet, "/v1/leads", "", map[string]string{"Authorization": "Bearer not.a.token"})
	if bad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", bad.Code)
	}
}

// --- Calculators & reports ---

func TestCalc_TreeScore(t *testing.T) {
	router, _ := newTestRouter(t, true)

	rec := do(router, http.MethodPost, "/v1/calc/tree-score", `{"height":50,"dbh":20,"canopyRadius":15}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res service.TreeScoreResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.TreeScore != 20225 {
		t.Fatalf("expected 20225, got %v", res.TreeScore)
	}

	if rec := do(router, http.MethodPost, "/v1/calc/tree-score", `{"height":`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestCalc_WageWithoutLevels(t *testing.T) {
	router, _ := newTestRouter(t, true)

	body := `{"baseHourlyRate":15,"tier":1,"hasSupervisor":true,"equipmentLevel":3,"hasCraneCert":true}`
	rec := do(router, http.MethodPost, "/v1/calc/wage", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		TotalHourlyWage float64 `json:"totalHourlyWage"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if math.Abs(res.TotalHourlyWage-39) > 1e-9 {
		t.Fatalf("expected 39.00, got %v", res.TotalHourlyWage)
	}

	if rec := do(router, http.MethodPost, "/v1/calc/wage", `{"baseHourlyRate":15,"tier":1,"driverClass":4}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for driver class 4, got %d", rec.Code)
	}
}

func TestMeasurements_TooFewAreaPoints(t *testing.T) {
	router, _ := newTestRouter(t, true)

	body := `{"type":"area","points":[{"lat":28.5,"lon":-82.4},{"lat":28.6,"lon":-82.4}]}`
	rec := do(router, http.MethodPost, "/v1/measurements", body, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestReports_ExportServesWorkbook(t *testing.T) {
	router, _ := newTestRouter(t, true)
	do(router, http.MethodPost, "/v1/leads", `{"customerName":"Dana Whitfield"}`, nil)

	rec := do(router, http.MethodGet, "/v1/reports/export.xlsx", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("expected xlsx content type, got %q", ct)
	}
	// xlsx is a zip archive
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatal("expected a zip payload")
	}
}

func TestReports_DashboardReflectsWrites(t *testing.T) {
	router, _ := newTestRouter(t, true)

	first := do(router, http.MethodGet, "/v1/reports/dashboard", "", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	do(router, http.MethodPost, "/v1/leads", `{"customerName":"Dana Whitfield"}`, nil)

	rec := do(router, http.MethodGet, "/v1/reports/dashboard", "", nil)
	var d struct {
		Leads struct {
			Total int `json:"total"`
		} `json:"leads"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Leads.Total != 1 {
		t.Fatalf("expected the new lead on the dashboard, got %d", d.Leads.Total)
	}
}
