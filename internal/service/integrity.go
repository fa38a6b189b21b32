package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
)

// index maps the ids of one kind to a problem for referencing them.
// An id absent from the map is missing; "" means the target is fine.
type index map[uuid.UUID]string

func indexOf[T any](items []*T, id func(*T) uuid.UUID, state func(*T) string) index {
	out := make(index, len(items))
	for _, item := range items {
		out[id(item)] = state(item)
	}
	return out
}

// referenceScan collects broken references while walking every record.
type referenceScan struct {
	byKind map[string]index
	found  []domain.OrphanedReference
}

func (r *referenceScan) check(sourceKind string, sourceID uuid.UUID, field, targetKind string, target *uuid.UUID) {
	if target == nil || *target == uuid.Nil {
		return
	}
	problem, ok := r.byKind[targetKind][*target]
	if !ok {
		problem = domain.ReferenceMissing
	}
	if problem == "" {
		return
	}
	r.found = append(r.found, domain.OrphanedReference{
		SourceKind: sourceKind,
		SourceID:   sourceID.String(),
		Field:      field,
		TargetKind: targetKind,
		TargetID:   target.String(),
		Problem:    problem,
	})
}

func (r *referenceScan) checkAll(sourceKind string, sourceID uuid.UUID, field, targetKind string, targets []uuid.UUID) {
	for i := range targets {
		r.check(sourceKind, sourceID, field, targetKind, &targets[i])
	}
}

func (r *referenceScan) checkLinks(sourceKind string, sourceID uuid.UUID, links domain.Links) {
	r.checkAll(sourceKind, sourceID, "leadIds", domain.KindLead, links.LeadIDs)
	r.checkAll(sourceKind, sourceID, "proposalIds", domain.KindProposal, links.ProposalIDs)
	r.checkAll(sourceKind, sourceID, "workOrderIds", domain.KindWorkOrder, links.WorkOrderIDs)
	r.checkAll(sourceKind, sourceID, "invoiceIds", domain.KindInvoice, links.InvoiceIDs)
}

func healthy[T any](*T) string { return "" }

func ptr(id uuid.UUID) *uuid.UUID { return &id }

// Orphans lists every id held by a record that points to a missing record,
// an archived customer or property, a removed tree, a terminated employee
// or equipment that was sold or retired.
func (s *ReportService) Orphans(ctx context.Context) ([]domain.OrphanedReference, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.Orphans")
	defer span.End()
	defer s.observe("ReportService.Orphans", time.Now())

	var (
		leads      []*domain.Lead
		proposals  []*domain.Proposal
		workOrders []*domain.WorkOrder
		invoices   []*domain.Invoice
		customers  []*domain.Customer
		properties []*domain.Property
		trees      []*domain.Tree
		employees  []*domain.Employee
		equipment  []*domain.Equipment
		entries    []*domain.TimeEntry
		jobs       []*domain.ScheduledJob
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { leads, err = s.repos.Leads.List(gctx, nil); return })
	g.Go(func() (err error) { proposals, err = s.repos.Proposals.List(gctx, nil); return })
	g.Go(func() (err error) { workOrders, err = s.repos.WorkOrders.List(gctx, nil); return })
	g.Go(func() (err error) { invoices, err = s.repos.Invoices.List(gctx, nil); return })
	g.Go(func() (err error) { customers, err = s.repos.Customers.List(gctx, nil); return })
	g.Go(func() (err error) { properties, err = s.repos.Properties.List(gctx, nil); return })
	g.Go(func() (err error) { trees, err = s.repos.Trees.List(gctx, nil); return })
	g.Go(func() (err error) { employees, err = s.repos.Employees.List(gctx, nil); return })
	g.Go(func() (err error) { equipment, err = s.repos.Equipment.List(gctx, nil); return })
	g.Go(func() (err error) { entries, err = s.repos.TimeEntries.List(gctx, nil); return })
	g.Go(func() (err error) { jobs, err = s.repos.Jobs.List(gctx, nil); return })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	r := &referenceScan{byKind: map[string]index{
		domain.KindLead:         indexOf(leads, func(l *domain.Lead) uuid.UUID { return l.ID }, healthy[domain.Lead]),
		domain.KindProposal:     indexOf(proposals, func(p *domain.Proposal) uuid.UUID { return p.ID }, healthy[domain.Proposal]),
		domain.KindWorkOrder:    indexOf(workOrders, func(w *domain.WorkOrder) uuid.UUID { return w.ID }, healthy[domain.WorkOrder]),
		domain.KindInvoice:      indexOf(invoices, func(inv *domain.Invoice) uuid.UUID { return inv.ID }, healthy[domain.Invoice]),
		domain.KindTimeEntry:    indexOf(entries, func(t *domain.TimeEntry) uuid.UUID { return t.ID }, healthy[domain.TimeEntry]),
		domain.KindScheduledJob: indexOf(jobs, func(j *domain.ScheduledJob) uuid.UUID { return j.ID }, healthy[domain.ScheduledJob]),
		domain.KindCustomer: indexOf(customers, func(c *domain.Customer) uuid.UUID { return c.ID }, func(c *domain.Customer) string {
			if c.IsArchived {
				return domain.ReferenceArchived
			}
			return ""
		}),
		domain.KindProperty: indexOf(properties, func(p *domain.Property) uuid.UUID { return p.ID }, func(p *domain.Property) string {
			if !p.IsActive {
				return domain.ReferenceArchived
			}
			return ""
		}),
		domain.KindTree: indexOf(trees, func(t *domain.Tree) uuid.UUID { return t.ID }, func(t *domain.Tree) string {
			if t.IsRemoved() {
				return domain.ReferenceRemoved
			}
			return ""
		}),
		domain.KindEmployee: indexOf(employees, func(e *domain.Employee) uuid.UUID { return e.ID }, func(e *domain.Employee) string {
			if e.Status == domain.EmploymentTerminated {
				return domain.ReferenceArchived
			}
			return ""
		}),
		domain.KindEquipment: indexOf(equipment, func(e *domain.Equipment) uuid.UUID { return e.ID }, func(e *domain.Equipment) string {
			if e.Status == domain.EquipmentStatusSold || e.Status == domain.EquipmentStatusRetired {
				return domain.ReferenceRemoved
			}
			return ""
		}),
	}}

	for _, l := range leads {
		if l.IsArchived {
			continue
		}
		r.check(domain.KindLead, l.ID, "customerId", domain.KindCustomer, l.CustomerID)
		r.check(domain.KindLead, l.ID, "propertyId", domain.KindProperty, l.PropertyID)
		r.check(domain.KindLead, l.ID, "proposalId", domain.KindProposal, l.ProposalID)
		r.check(domain.KindLead, l.ID, "workOrderId", domain.KindWorkOrder, l.WorkOrderID)
		r.check(domain.KindLead, l.ID, "invoiceId", domain.KindInvoice, l.InvoiceID)
		r.check(domain.KindLead, l.ID, "siteVisit.scheduledJobId", domain.KindScheduledJob, l.SiteVisit.ScheduledJobID)
		r.check(domain.KindLead, l.ID, "siteVisit.assignedTo", domain.KindEmployee, l.SiteVisit.AssignedTo)
	}
	for _, p := range proposals {
		r.check(domain.KindProposal, p.ID, "leadId", domain.KindLead, ptr(p.LeadID))
		r.check(domain.KindProposal, p.ID, "customerId", domain.KindCustomer, p.CustomerID)
		r.check(domain.KindProposal, p.ID, "propertyId", domain.KindProperty, p.PropertyID)
		r.check(domain.KindProposal, p.ID, "workOrderId", domain.KindWorkOrder, p.WorkOrderID)
		if p.Open() {
			r.checkAll(domain.KindProposal, p.ID, "estimatedCrewIds", domain.KindEmployee, p.EstimatedCrewIDs)
			r.checkAll(domain.KindProposal, p.ID, "estimatedEquipmentIds", domain.KindEquipment, p.EstimatedEquipmentIDs)
			for _, item := range p.LineItems() {
				r.checkAll(domain.KindProposal, p.ID, "lineItems.treeIds", domain.KindTree, item.TreeIDs)
			}
		}
	}
	for _, w := range workOrders {
		r.check(domain.KindWorkOrder, w.ID, "proposalId", domain.KindProposal, ptr(w.ProposalID))
		r.check(domain.KindWorkOrder, w.ID, "leadId", domain.KindLead, ptr(w.LeadID))
		r.check(domain.KindWorkOrder, w.ID, "customerId", domain.KindCustomer, w.CustomerID)
		r.check(domain.KindWorkOrder, w.ID, "propertyId", domain.KindProperty, w.PropertyID)
		r.check(domain.KindWorkOrder, w.ID, "scheduledJobId", domain.KindScheduledJob, w.ScheduledJobID)
		r.check(domain.KindWorkOrder, w.ID, "invoiceId", domain.KindInvoice, w.InvoiceID)
		r.checkAll(domain.KindWorkOrder, w.ID, "timeEntryIds", domain.KindTimeEntry, w.TimeEntryIDs())
		if w.Status != domain.WorkOrderCompleted && w.Status != domain.WorkOrderCancelled {
			r.checkAll(domain.KindWorkOrder, w.ID, "assignedEmployeeIds", domain.KindEmployee, w.AssignedEmployeeIDs)
			r.checkAll(domain.KindWorkOrder, w.ID, "assignedEquipmentIds", domain.KindEquipment, w.AssignedEquipmentIDs)
			for _, item := range w.LineItems() {
				r.checkAll(domain.KindWorkOrder, w.ID, "lineItems.treeIds", domain.KindTree, item.TreeIDs)
			}
		}
	}
	for _, inv := range invoices {
		r.check(domain.KindInvoice, inv.ID, "workOrderId", domain.KindWorkOrder, ptr(inv.WorkOrderID))
		r.check(domain.KindInvoice, inv.ID, "proposalId", domain.KindProposal, ptr(inv.ProposalID))
		r.check(domain.KindInvoice, inv.ID, "leadId", domain.KindLead, ptr(inv.LeadID))
		r.check(domain.KindInvoice, inv.ID, "customerId", domain.KindCustomer, inv.CustomerID)
		r.check(domain.KindInvoice, inv.ID, "propertyId", domain.KindProperty, inv.PropertyID)
	}
	for _, c := range customers {
		if c.IsArchived {
			continue
		}
		r.checkAll(domain.KindCustomer, c.ID, "propertyIds", domain.KindProperty, c.PropertyIDs)
		r.checkLinks(domain.KindCustomer, c.ID, c.Links)
	}
	for _, p := range properties {
		if !p.IsActive {
			continue
		}
		r.check(domain.KindProperty, p.ID, "customerId", domain.KindCustomer, p.CustomerID)
		r.checkLinks(domain.KindProperty, p.ID, p.Links)
		if p.AFISS != nil {
			r.check(domain.KindProperty, p.ID, "afiss.assessorId", domain.KindEmployee, p.AFISS.AssessorID)
		}
		for i := range p.TreeIDs {
			// Removed trees stay linked; only missing ones count.
			if _, ok := r.byKind[domain.KindTree][p.TreeIDs[i]]; !ok {
				r.check(domain.KindProperty, p.ID, "treeIds", domain.KindTree, &p.TreeIDs[i])
			}
		}
	}
	for _, t := range trees {
		if t.IsRemoved() {
			continue
		}
		r.check(domain.KindTree, t.ID, "propertyId", domain.KindProperty, t.PropertyID)
	}
	for _, t := range entries {
		r.check(domain.KindTimeEntry, t.ID, "workOrderId", domain.KindWorkOrder, t.WorkOrderID)
		r.check(domain.KindTimeEntry, t.ID, "scheduledJobId", domain.KindScheduledJob, t.ScheduledJobID)
		if !t.IsComplete {
			r.checkAll(domain.KindTimeEntry, t.ID, "employeeIds", domain.KindEmployee, t.EmployeeIDs)
			r.checkAll(domain.KindTimeEntry, t.ID, "equipmentIds", domain.KindEquipment, t.EquipmentIDs)
		}
	}
	for _, j := range jobs {
		if j.Status == domain.JobCancelled || j.Status == domain.JobCompleted {
			continue
		}
		r.check(domain.KindScheduledJob, j.ID, "leadId", domain.KindLead, j.LeadID)
		r.check(domain.KindScheduledJob, j.ID, "workOrderId", domain.KindWorkOrder, j.WorkOrderID)
		r.check(domain.KindScheduledJob, j.ID, "proposalId", domain.KindProposal, j.ProposalID)
		r.check(domain.KindScheduledJob, j.ID, "customerId", domain.KindCustomer, j.CustomerID)
		r.check(domain.KindScheduledJob, j.ID, "propertyId", domain.KindProperty, j.PropertyID)
		r.checkAll(domain.KindScheduledJob, j.ID, "assignedEmployeeIds", domain.KindEmployee, j.EmployeeIDs)
		r.checkAll(domain.KindScheduledJob, j.ID, "assignedEquipmentIds", domain.KindEquipment, j.EquipmentIDs)
	}

	if r.found == nil {
		r.found = []domain.OrphanedReference{}
	}
	if len(r.found) > 0 {
		s.logger.Warn("orphaned references found", zap.Int("count", len(r.found)))
	}
	return r.found, nil
}
