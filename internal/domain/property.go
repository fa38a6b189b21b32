package domain

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/treeshop/treeshop-ops-go/internal/geo"
)

// AFISSScores are the five site-complexity factors. Each is a fractional
// surcharge, so 0.1 adds 10% to the price.
type AFISSScores struct {
	Structures      float64 `json:"structures"`
	Landscape       float64 `json:"landscape"`
	Utilities       float64 `json:"utilities"`
	Access          float64 `json:"access"`
	ProjectSpecific float64 `json:"projectSpecific"`
}

// Multiplier is 1 + the sum of the scores.
func (s AFISSScores) Multiplier() float64 {
	return 1 + s.Structures + s.Landscape + s.Utilities + s.Access + s.ProjectSpecific
}

func (s AFISSScores) validate() error {
	for field, v := range map[string]float64{
		"structures": s.Structures, "landscape": s.Landscape, "utilities": s.Utilities,
		"access": s.Access, "projectSpecific": s.ProjectSpecific,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return &ErrValidation{Field: "afiss." + field, Message: "must be a finite non-negative number"}
		}
	}
	return nil
}

// AFISSAssessment is a dated site-complexity assessment.
type AFISSAssessment struct {
	AFISSScores
	AssessedAt time.Time  `json:"assessedAt"`
	AssessorID *uuid.UUID `json:"assessorId,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// PropertyDetails are the editable property attributes.
type PropertyDetails struct {
	Address             Address      `json:"address"`
	Location            geo.Point    `json:"location"`
	PropertyType        CustomerType `json:"propertyType"`
	Acreage             *float64     `json:"acreage,omitempty"`
	ParcelNumber        string       `json:"parcelNumber,omitempty"`
	CustomerID          *uuid.UUID   `json:"customerId,omitempty"`
	AccessType          string       `json:"accessType,omitempty"`
	UtilitiesPresent    []string     `json:"utilitiesPresent,omitempty"`
	StructuresNearby    []string     `json:"structuresNearby,omitempty"`
	Hazards             []string     `json:"hazardsIdentified,omitempty"`
	SpecialInstructions string       `json:"specialInstructions,omitempty"`
	GateCode            string       `json:"gateCode,omitempty"`
	Notes               string       `json:"notes,omitempty"`
}

func (d *PropertyDetails) normalize() error {
	if err := required("address.street", d.Address.Street); err != nil {
		return err
	}
	if !d.Location.Valid() {
		return &ErrValidation{Field: "location", Message: "latitude/longitude out of range"}
	}
	if d.Acreage != nil && (*d.Acreage < 0 || math.IsNaN(*d.Acreage)) {
		return &ErrValidation{Field: "acreage", Message: "must be non-negative"}
	}
	if d.PropertyType == "" {
		d.PropertyType = CustomerResidential
	}
	return nil
}

// Property is a job site. Trees and pipeline records are linked by id.
type Property struct {
	Meta
	PropertyDetails
	ParcelBoundary []geo.Point      `json:"parcelBoundary,omitempty"`
	TreeIDs        []uuid.UUID      `json:"treeIds"`
	Links          Links            `json:"links"`
	Jobs           JobStats         `json:"jobs"`
	LastVisitDate  *time.Time       `json:"lastVisitDate,omitempty"`
	AFISS          *AFISSAssessment `json:"afiss,omitempty"`
	IsActive       bool             `json:"isActive"`
}

func NewProperty(details PropertyDetails, now time.Time) (*Property, error) {
	if err := details.normalize(); err != nil {
		return nil, err
	}
	return &Property{Meta: NewMeta(now), PropertyDetails: details, TreeIDs: []uuid.UUID{}, IsActive: true}, nil
}

func (p *Property) Update(details PropertyDetails, now time.Time) error {
	if err := details.normalize(); err != nil {
		return err
	}
	p.PropertyDetails = details
	p.touch(now)
	return nil
}

func (p *Property) FullAddress() string { return p.Address.Full() }

// AddTree links a tree once.
func (p *Property) AddTree(id uuid.UUID, now time.Time) bool {
	var added bool
	if p.TreeIDs, added = appendUnique(p.TreeIDs, id); added {
		p.touch(now)
	}
	return added
}

func (p *Property) RemoveTree(id uuid.UUID, now time.Time) bool {
	var removed bool
	if p.TreeIDs, removed = removeID(p.TreeIDs, id); removed {
		p.touch(now)
	}
	return removed
}

func (p *Property) TreeCount() int { return len(p.TreeIDs) }

// AddJob records a completed job, which is also the latest visit.
func (p *Property) AddJob(revenue float64, date, now time.Time) error {
	if err := p.Jobs.add(revenue, date); err != nil {
		return err
	}
	if p.LastVisitDate == nil || date.After(*p.LastVisitDate) {
		p.LastVisitDate = &date
	}
	p.touch(now)
	return nil
}

func (p *Property) Link(kind string, id uuid.UUID, now time.Time) {
	if p.Links.Link(kind, id) {
		p.touch(now)
	}
}

// UpdateAFISS replaces the site-complexity assessment.
func (p *Property) UpdateAFISS(scores AFISSScores, assessor *uuid.UUID, notes string, now time.Time) error {
	if err := scores.validate(); err != nil {
		return err
	}
	p.AFISS = &AFISSAssessment{AFISSScores: scores, AssessedAt: now, AssessorID: assessor, Notes: notes}
	p.touch(now)
	return nil
}

// AFISSMultiplier is 1 until the property has been assessed.
func (p *Property) AFISSMultiplier() float64 {
	if p.AFISS == nil {
		return 1
	}
	return p.AFISS.Multiplier()
}

// SetParcelBoundary stores the lot polygon; it needs at least three valid vertices.
func (p *Property) SetParcelBoundary(points []geo.Point, now time.Time) error {
	if len(points) < geo.MinAreaPoints {
		return &ErrValidation{Field: "parcelBoundary", Message: "needs at least 3 points"}
	}
	for _, pt := range points {
		if !pt.Valid() {
			return &ErrValidation{Field: "parcelBoundary", Message: "latitude/longitude out of range"}
		}
	}
	p.ParcelBoundary = points
	p.touch(now)
	return nil
}

// ParcelArea is the boundary area in square meters.
func (p *Property) ParcelArea() (float64, bool) {
	return geo.Area(p.ParcelBoundary)
}

func (p *Property) Archive(now time.Time) error {
	if !p.IsActive {
		return &ErrConflict{Message: "property already archived"}
	}
	p.IsActive = false
	p.touch(now)
	return nil
}
