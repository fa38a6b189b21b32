// Package domain holds the field-operations entities, their invariants and
// the lead-to-cash workflow rules. Entities are plain structs linked by
// identifier; the mutating methods are the only sanctioned way to change
// fields that other values are derived from.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entity kinds, used as the storage partition for each record type.
const (
	KindLead         = "lead"
	KindProposal     = "proposal"
	KindWorkOrder    = "work_order"
	KindInvoice      = "invoice"
	KindCustomer     = "customer"
	KindProperty     = "property"
	KindTree         = "tree"
	KindEmployee     = "employee"
	KindEquipment    = "equipment"
	KindTimeEntry    = "time_entry"
	KindScheduledJob = "scheduled_job"
	KindSettings     = "company_settings"
)

// Meta is embedded by every entity.
type Meta struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// Version is the optimistic-concurrency token. The store sets it on
	// create and bumps it on every successful update.
	Version int `json:"version"`
}

// NewMeta stamps a fresh identity.
func NewMeta(now time.Time) Meta {
	return Meta{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Base gives stores access to the embedded metadata.
func (m *Meta) Base() *Meta { return m }

func (m *Meta) touch(now time.Time) { m.UpdatedAt = now }

// Entity is any stored record.
type Entity interface {
	Base() *Meta
}

// documentNumber builds "PREFIX-yyyymmdd-XXXX".
func documentNumber(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), suffix)
}

// Address is a postal address.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// Full renders "street, city, state zip".
func (a Address) Full() string {
	return fmt.Sprintf("%s, %s, %s %s", a.Street, a.City, a.State, a.Zip)
}

func appendUnique(ids []uuid.UUID, id uuid.UUID) ([]uuid.UUID, bool) {
	for _, existing := range ids {
		if existing == id {
			return ids, false
		}
	}
	return append(ids, id), true
}

func removeID(ids []uuid.UUID, id uuid.UUID) ([]uuid.UUID, bool) {
	out := ids[:0]
	removed := false
	for _, existing := range ids {
		if existing == id {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	return out, removed
}

func timePtr(t time.Time) *time.Time { return &t }
