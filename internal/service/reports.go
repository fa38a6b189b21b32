package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/infra/resilience"
	"github.com/treeshop/treeshop-ops-go/internal/port"
)

var reportTracer = otel.Tracer("service/reports")

const dashboardCacheKey = "dashboard"

// ReportService builds read-only views across the whole store.
type ReportService struct {
	core
	cache    port.Cache[*domain.Dashboard]
	bulkhead *resilience.Bulkhead
}

// NewReportService builds the service. Exports share the bulkhead so only a
// few workbooks are rendered at once.
func NewReportService(
	repos *port.Repositories,
	cache port.Cache[*domain.Dashboard],
	bulkhead *resilience.Bulkhead,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		core:     newCore(repos, metrics, logger),
		cache:    cache,
		bulkhead: bulkhead,
	}
}

// snapshot is every record a report reads, loaded concurrently.
type snapshot struct {
	leads      []*domain.Lead
	proposals  []*domain.Proposal
	workOrders []*domain.WorkOrder
	invoices   []*domain.Invoice
	equipment  []*domain.Equipment
	employees  []*domain.Employee
}

func (s *ReportService) load(ctx context.Context) (*snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.leads, err = s.repos.Leads.List(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		snap.proposals, err = s.repos.Proposals.List(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		snap.workOrders, err = s.repos.WorkOrders.List(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		snap.invoices, err = s.repos.Invoices.List(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		snap.equipment, err = s.repos.Equipment.List(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		snap.employees, err = s.repos.Employees.List(gctx, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load report data: %w", err)
	}
	return &snap, nil
}

// Dashboard returns the pipeline overview, served from cache while fresh.
func (s *ReportService) Dashboard(ctx context.Context) (*domain.Dashboard, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.Dashboard")
	defer span.End()

	if cached, ok := s.cache.Get(dashboardCacheKey); ok {
		s.metrics.IncrCacheHit(dashboardCacheKey)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	s.metrics.IncrCacheMiss(dashboardCacheKey)
	defer s.observe("ReportService.Dashboard", time.Now())

	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	d := buildDashboard(snap, s.now())
	s.cache.Set(dashboardCacheKey, d)
	return d, nil
}

// InvalidateDashboard drops the cached dashboard.
func (s *ReportService) InvalidateDashboard() {
	s.cache.Delete(dashboardCacheKey)
}

func buildDashboard(snap *snapshot, now time.Time) *domain.Dashboard {
	d := &domain.Dashboard{
		Leads:                  domain.ComputeLeadStats(snap.leads, now),
		EquipmentNeedingReview: []string{},
		GeneratedAt:            now.Format(time.RFC3339),
	}
	for _, p := range snap.proposals {
		switch {
		case p.Open():
			d.OpenProposalValue += p.Totals().TotalAmount
		case p.Status == domain.ProposalAccepted:
			d.AcceptedProposalValue += p.Totals().TotalAmount
		}
	}
	for _, w := range snap.workOrders {
		switch w.Status {
		case domain.WorkOrderScheduled, domain.WorkOrderInProgress, domain.WorkOrderOnHold:
			d.ActiveWorkOrders++
		}
	}
	outstanding := decimal.Zero
	for _, inv := range snap.invoices {
		switch inv.EffectiveStatus(now) {
		case domain.InvoiceSent, domain.InvoicePartiallyPaid:
			outstanding = outstanding.Add(inv.BalanceDue())
		case domain.InvoiceOverdue:
			outstanding = outstanding.Add(inv.BalanceDue())
			d.OverdueInvoices++
		}
	}
	d.OutstandingInvoiceBalance = outstanding.StringFixed(2)
	for _, e := range snap.equipment {
		if e.Status == domain.EquipmentStatusSold || e.Status == domain.EquipmentStatusRetired {
			continue
		}
		// The age trigger depends on today's date, not the last write.
		e.Reevaluate(now)
		if e.ShouldConsiderReplacement() {
			d.EquipmentNeedingReview = append(d.EquipmentNeedingReview, e.Name)
		}
	}
	return d
}

// ============================================================
// XLSX export
// ============================================================

const (
	sheetLeads     = "Leads"
	sheetEquipment = "Equipment"
	sheetEmployees = "Employees"
	sheetInvoices  = "Invoices"
)

// Export writes a workbook with one sheet per report: leads, equipment
// costs, employee compensation and invoices.
func (s *ReportService) Export(ctx context.Context, w io.Writer) error {
	ctx, span := reportTracer.Start(ctx, "ReportService.Export")
	defer span.End()
	defer s.observe("ReportService.Export", time.Now())

	if err := s.bulkhead.Acquire(ctx); err != nil {
		return &domain.ErrTimeout{Operation: "report export"}
	}
	defer s.bulkhead.Release()

	snap, err := s.load(ctx)
	if err != nil {
		return err
	}
	f, err := renderWorkbook(snap, s.now())
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("report exported",
		zap.Int("leads", len(snap.leads)),
		zap.Int("equipment", len(snap.equipment)),
		zap.Int("employees", len(snap.employees)),
		zap.Int("invoices", len(snap.invoices)),
	)
	return nil
}

func renderWorkbook(snap *snapshot, now time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetLeads); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetEquipment, sheetEmployees, sheetInvoices} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	sheets := []struct {
		name string
		rows [][]any
	}{
		{sheetLeads, leadRows(snap.leads, now)},
		{sheetEquipment, equipmentRows(snap.equipment)},
		{sheetEmployees, employeeRows(snap.employees)},
		{sheetInvoices, invoiceRows(snap.invoices, now)},
	}
	for _, sh := range sheets {
		for i, row := range sh.rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(sh.name, cell, &row); err != nil {
				return nil, fmt.Errorf("sheet %s row %d: %w", sh.name, i+1, err)
			}
		}
		if err := f.SetRowStyle(sh.name, 1, 1, header); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func leadRows(leads []*domain.Lead, now time.Time) [][]any {
	rows := [][]any{{"Customer", "Phone", "Address", "Stage", "Source", "Urgency", "Active", "Overdue", "Created"}}
	for _, l := range leads {
		rows = append(rows, []any{
			l.CustomerName,
			l.CustomerPhone,
			l.FullAddress(),
			string(l.Stage()),
			string(l.Source),
			string(l.Urgency),
			l.IsActive && !l.IsArchived,
			l.Overdue(now),
			l.CreatedAt.Format(time.DateOnly),
		})
	}
	return rows
}

func equipmentRows(units []*domain.Equipment) [][]any {
	rows := [][]any{{"Name", "Type", "Status", "Fuel/hr", "Depreciation/hr", "Maintenance/hr", "Insurance/hr", "Total/hr", "Minimum Rate", "Hours This Year", "Replacement"}}
	for _, e := range units {
		c := e.Costs()
		rows = append(rows, []any{
			e.Name,
			string(e.Type),
			string(e.Status),
			c.Fuel,
			c.Depreciation,
			c.Maintenance,
			c.InsuranceFixed,
			c.Total,
			c.MinimumBillingRate,
			e.Usage.HoursThisYear,
			e.ShouldConsiderReplacement(),
		})
	}
	return rows
}

func employeeRows(employees []*domain.Employee) [][]any {
	rows := [][]any{{"Name", "Code", "Track", "Status", "Hourly Wage", "Burden", "True Cost/hr", "Jobs", "Avg PpH"}}
	for _, e := range employees {
		comp := e.Compensation()
		rows = append(rows, []any{
			e.FullName(),
			e.EmployeeCode(),
			e.PrimaryTrack.DisplayName(),
			string(e.Status),
			comp.HourlyWage,
			comp.BurdenMultiplier,
			comp.TrueBusinessCost,
			e.Performance.JobsCompleted,
			e.Performance.AveragePpH(),
		})
	}
	return rows
}

func invoiceRows(invoices []*domain.Invoice, now time.Time) [][]any {
	rows := [][]any{{"Number", "Customer", "Status", "Issued", "Due", "Total", "Paid", "Balance"}}
	for _, inv := range invoices {
		rows = append(rows, []any{
			inv.Number,
			inv.CustomerName,
			string(inv.EffectiveStatus(now)),
			inv.IssueDate.Format(time.DateOnly),
			inv.DueDate.Format(time.DateOnly),
			inv.Total().InexactFloat64(),
			inv.AmountPaid().InexactFloat64(),
			inv.BalanceDue().InexactFloat64(),
		})
	}
	return rows
}
