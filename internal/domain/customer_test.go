package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/geo"
)

func TestCustomer_JobAggregates(t *testing.T) {
	c, err := domain.NewCustomer(domain.CustomerDetails{Name: "Harbor HOA", Type: domain.CustomerHOA, Phone: "555-1000"}, t0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.IsRepeatCustomer() || c.IsVIP() || c.Jobs.Average() != 0 {
		t.Fatal("expected a fresh customer to have no history")
	}

	later := t0.AddDate(0, 2, 0)
	if err := c.AddJob(6000, later, later); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.IsRepeatCustomer() {
		t.Error("expected a single job not to make a repeat customer")
	}
	if err := c.AddJob(5000, t0, later); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !c.IsRepeatCustomer() || !c.IsVIP() {
		t.Errorf("expected repeat VIP customer, got repeat=%v vip=%v", c.IsRepeatCustomer(), c.IsVIP())
	}
	if c.LifetimeValue() != 11000 || c.Jobs.Average() != 5500 {
		t.Errorf("expected 11000 lifetime / 5500 average, got %v / %v", c.LifetimeValue(), c.Jobs.Average())
	}
	if !c.Jobs.FirstJobDate.Equal(t0) || !c.Jobs.LastJobDate.Equal(later) {
		t.Errorf("expected first/last job dates ordered by date, got %v / %v", c.Jobs.FirstJobDate, c.Jobs.LastJobDate)
	}
	if err := c.AddJob(-1, t0, t0); err == nil {
		t.Error("expected negative job value to be rejected")
	}
}

func TestCustomer_VIPTag(t *testing.T) {
	c, _ := domain.NewCustomer(domain.CustomerDetails{Name: "Mayor", Tags: []string{"VIP"}}, t0)
	if !c.IsVIP() {
		t.Fatal("expected VIP tag to make a VIP")
	}
	b, _ := json.Marshal(c)
	var raw map[string]any
	_ = json.Unmarshal(b, &raw)
	if raw["isVIP"] != true || raw["lifetimeValue"] != 0.0 {
		t.Errorf("expected derived fields in JSON, got %v / %v", raw["isVIP"], raw["lifetimeValue"])
	}
}

func TestCustomer_LinksAreDeduplicated(t *testing.T) {
	c, _ := domain.NewCustomer(domain.CustomerDetails{Name: "Sam"}, t0)
	prop, lead := uuid.New(), uuid.New()

	if !c.AddProperty(prop, t0) || c.AddProperty(prop, t0) || len(c.PropertyIDs) != 1 {
		t.Errorf("expected property linked once, got %v", c.PropertyIDs)
	}
	c.Link(domain.KindLead, lead, t0)
	c.Link(domain.KindLead, lead, t0)
	if len(c.Links.LeadIDs) != 1 {
		t.Errorf("expected lead linked once, got %v", c.Links.LeadIDs)
	}
	if c.Type != domain.CustomerResidential || c.PreferredContact != domain.ContactPhone {
		t.Errorf("expected residential/phone defaults, got %s/%s", c.Type, c.PreferredContact)
	}

	c.LogContact(domain.ContactEmail, "sent estimate", t0.Add(time.Hour))
	if c.LastContactMethod == nil || *c.LastContactMethod != domain.ContactEmail {
		t.Error("expected last contact method recorded")
	}
	if err := c.Archive(t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := c.Archive(t0); err == nil {
		t.Error("expected archiving twice to fail")
	}
}

func newProperty(t *testing.T) *domain.Property {
	t.Helper()
	p, err := domain.NewProperty(domain.PropertyDetails{
		Address:  domain.Address{Street: "400 Pine St", City: "Ocala", State: "FL", Zip: "34471"},
		Location: geo.Point{Lat: 29.18, Lon: -82.13},
	}, t0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return p
}

func TestProperty_TreesAndJobs(t *testing.T) {
	p := newProperty(t)
	tree := uuid.New()

	if !p.AddTree(tree, t0) || p.AddTree(tree, t0) || p.TreeCount() != 1 {
		t.Fatalf("expected a single linked tree, got %d", p.TreeCount())
	}
	if !p.RemoveTree(tree, t0) || p.TreeCount() != 0 {
		t.Fatal("expected tree removed")
	}
	if p.RemoveTree(tree, t0) {
		t.Error("expected removing an unknown tree to report false")
	}

	visit := t0.AddDate(0, 0, 3)
	if err := p.AddJob(1200, visit, visit); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.Jobs.Count != 1 || p.LastVisitDate == nil || !p.LastVisitDate.Equal(visit) {
		t.Errorf("unexpected job stats %+v", p.Jobs)
	}
	if p.FullAddress() != "400 Pine St, Ocala, FL 34471" {
		t.Errorf("unexpected address %q", p.FullAddress())
	}
}

func TestProperty_AFISS(t *testing.T) {
	p := newProperty(t)
	if p.AFISSMultiplier() != 1 {
		t.Fatalf("expected multiplier 1 before assessment, got %v", p.AFISSMultiplier())
	}
	scores := domain.AFISSScores{Structures: 0.1, Landscape: 0.05, Utilities: 0.2, Access: 0.1, ProjectSpecific: 0.05}
	if err := p.UpdateAFISS(scores, nil, "power lines over the back yard", t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !nearlyEqual(p.AFISSMultiplier(), 1.5) {
		t.Errorf("expected 1.5, got %v", p.AFISSMultiplier())
	}
	if err := p.UpdateAFISS(domain.AFISSScores{Access: -0.1}, nil, "", t0); err == nil {
		t.Error("expected negative score to be rejected")
	}
}

func TestProperty_ParcelBoundary(t *testing.T) {
	p := newProperty(t)
	if _, ok := p.ParcelArea(); ok {
		t.Fatal("expected no area without a boundary")
	}
	if err := p.SetParcelBoundary([]geo.Point{{Lat: 29, Lon: -82}, {Lat: 29.001, Lon: -82}}, t0); err == nil {
		t.Fatal("expected two points to be rejected")
	}
	square := []geo.Point{
		{Lat: 29.000, Lon: -82.000},
		{Lat: 29.001, Lon: -82.000},
		{Lat: 29.001, Lon: -82.001},
		{Lat: 29.000, Lon: -82.001},
	}
	if err := p.SetParcelBoundary(square, t0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	area, ok := p.ParcelArea()
	if !ok || area < 9000 || area > 12000 {
		t.Errorf("expected roughly a 111m x 97m lot, got %v (%v)", area, ok)
	}
}

func TestNewProperty_RejectsBadLocation(t *testing.T) {
	_, err := domain.NewProperty(domain.PropertyDetails{
		Address:  domain.Address{Street: "1 Main"},
		Location: geo.Point{Lat: 95, Lon: 0},
	}, t0)
	if err == nil {
		t.Fatal("expected latitude above 90 to be rejected")
	}
}
