package domain

import (
	"encoding/json"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
)

// VIPLifetimeValue is the lifetime value above which a customer counts as VIP.
const VIPLifetimeValue = 10000.0

// JobStats is the append-only job aggregate kept on customers and properties.
type JobStats struct {
	Count        int        `json:"jobsCompleted"`
	Revenue      float64    `json:"totalRevenue"`
	FirstJobDate *time.Time `json:"firstJobDate,omitempty"`
	LastJobDate  *time.Time `json:"lastJobDate,omitempty"`
}

func (s *JobStats) add(value float64, date time.Time) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return &ErrValidation{Field: "value", Message: "must be a finite non-negative number"}
	}
	s.Count++
	s.Revenue += value
	if s.FirstJobDate == nil || date.Before(*s.FirstJobDate) {
		s.FirstJobDate = &date
	}
	if s.LastJobDate == nil || date.After(*s.LastJobDate) {
		s.LastJobDate = &date
	}
	return nil
}

// Average is revenue per job, 0 with no jobs.
func (s JobStats) Average() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Revenue / float64(s.Count)
}

func (s JobStats) MarshalJSON() ([]byte, error) {
	type alias JobStats
	return json.Marshal(struct {
		alias
		Average float64 `json:"averageJobValue"`
	}{alias(s), s.Average()})
}

// Links are the many-to-many references a customer or property keeps.
type Links struct {
	LeadIDs      []uuid.UUID `json:"leadIds"`
	ProposalIDs  []uuid.UUID `json:"proposalIds"`
	WorkOrderIDs []uuid.UUID `json:"workOrderIds"`
	InvoiceIDs   []uuid.UUID `json:"invoiceIds"`
}

// Link records id under kind and reports whether it was new.
func (l *Links) Link(kind string, id uuid.UUID) bool {
	var added bool
	switch kind {
	case KindLead:
		l.LeadIDs, added = appendUnique(l.LeadIDs, id)
	case KindProposal:
		l.ProposalIDs, added = appendUnique(l.ProposalIDs, id)
	case KindWorkOrder:
		l.WorkOrderIDs, added = appendUnique(l.WorkOrderIDs, id)
	case KindInvoice:
		l.InvoiceIDs, added = appendUnique(l.InvoiceIDs, id)
	}
	return added
}

// CustomerDetails are the editable customer attributes.
type CustomerDetails struct {
	Name             string        `json:"name"`
	Type             CustomerType  `json:"customerType"`
	Phone            string        `json:"phone"`
	PhoneAlt         string        `json:"phoneAlt,omitempty"`
	Email            string        `json:"email,omitempty"`
	PreferredContact ContactMethod `json:"preferredContact"`
	MailingAddress   *Address      `json:"mailingAddress,omitempty"`
	ReferredBy       string        `json:"referredBy,omitempty"`
	PaymentTerms     string        `json:"paymentTerms,omitempty"`
	Tags             []string      `json:"tags,omitempty"`
	Notes            string        `json:"notes,omitempty"`
	DoNotContact     bool          `json:"doNotContact"`
}

func (d *CustomerDetails) normalize() error {
	if err := required("name", d.Name); err != nil {
		return err
	}
	if d.Type == "" {
		d.Type = CustomerResidential
	}
	if d.PreferredContact == "" {
		d.PreferredContact = ContactPhone
	}
	return nil
}

// Customer is a billing party. It references properties and pipeline
// records by id and never owns them.
type Customer struct {
	Meta
	CustomerDetails
	PropertyIDs       []uuid.UUID    `json:"propertyIds"`
	Links             Links          `json:"links"`
	Jobs              JobStats       `json:"jobs"`
	CustomerSince     time.Time      `json:"customerSince"`
	LastContactDate   *time.Time     `json:"lastContactDate,omitempty"`
	LastContactMethod *ContactMethod `json:"lastContactMethod,omitempty"`
	LastContactNotes  string         `json:"lastContactNotes,omitempty"`
	IsArchived        bool           `json:"isArchived"`
	ArchivedAt        *time.Time     `json:"archivedAt,omitempty"`
}

func NewCustomer(details CustomerDetails, now time.Time) (*Customer, error) {
	if err := details.normalize(); err != nil {
		return nil, err
	}
	return &Customer{
		Meta:            NewMeta(now),
		CustomerDetails: details,
		PropertyIDs:     []uuid.UUID{},
		CustomerSince:   now,
	}, nil
}

// Update replaces the editable attributes.
func (c *Customer) Update(details CustomerDetails, now time.Time) error {
	if err := details.normalize(); err != nil {
		return err
	}
	c.CustomerDetails = details
	c.touch(now)
	return nil
}

// AddJob folds a completed job into the aggregates.
func (c *Customer) AddJob(value float64, date, now time.Time) error {
	if err := c.Jobs.add(value, date); err != nil {
		return err
	}
	c.touch(now)
	return nil
}

// IsRepeatCustomer is true from the second completed job on.
func (c *Customer) IsRepeatCustomer() bool { return c.Jobs.Count > 1 }

// LifetimeValue is the revenue collected over all jobs.
func (c *Customer) LifetimeValue() float64 { return c.Jobs.Revenue }

func (c *Customer) IsVIP() bool {
	return slices.Contains(c.Tags, "VIP") || c.LifetimeValue() > VIPLifetimeValue
}

// AddProperty links a property once.
func (c *Customer) AddProperty(id uuid.UUID, now time.Time) bool {
	var added bool
	if c.PropertyIDs, added = appendUnique(c.PropertyIDs, id); added {
		c.touch(now)
	}
	return added
}

func (c *Customer) Link(kind string, id uuid.UUID, now time.Time) {
	if c.Links.Link(kind, id) {
		c.touch(now)
	}
}

func (c *Customer) LogContact(method ContactMethod, notes string, now time.Time) {
	c.LastContactDate = &now
	c.LastContactMethod = &method
	c.LastContactNotes = notes
	c.touch(now)
}

func (c *Customer) Archive(now time.Time) error {
	if c.IsArchived {
		return &ErrConflict{Message: "customer already archived"}
	}
	c.IsArchived = true
	c.ArchivedAt = &now
	c.touch(now)
	return nil
}

func (c Customer) MarshalJSON() ([]byte, error) {
	type alias Customer
	return json.Marshal(struct {
		alias
		IsVIP            bool    `json:"isVIP"`
		IsRepeatCustomer bool    `json:"isRepeatCustomer"`
		LifetimeValue    float64 `json:"lifetimeValue"`
	}{alias(c), c.IsVIP(), c.IsRepeatCustomer(), c.LifetimeValue()})
}
