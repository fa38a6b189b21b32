package store

import (
	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/port"
)

// NewRepositories wires a repository for every entity kind over docs.
func NewRepositories(docs port.DocumentStore) *port.Repositories {
	return &port.Repositories{
		Leads:       New[domain.Lead](docs, domain.KindLead),
		Proposals:   New[domain.Proposal](docs, domain.KindProposal),
		WorkOrders:  New[domain.WorkOrder](docs, domain.KindWorkOrder),
		Invoices:    New[domain.Invoice](docs, domain.KindInvoice),
		Customers:   New[domain.Customer](docs, domain.KindCustomer),
		Properties:  New[domain.Property](docs, domain.KindProperty),
		Trees:       New[domain.Tree](docs, domain.KindTree),
		Employees:   New[domain.Employee](docs, domain.KindEmployee),
		Equipment:   New[domain.Equipment](docs, domain.KindEquipment),
		TimeEntries: New[domain.TimeEntry](docs, domain.KindTimeEntry),
		Jobs:        New[domain.ScheduledJob](docs, domain.KindScheduledJob),
		Settings:    New[domain.CompanySettings](docs, domain.KindSettings),
	}
}
