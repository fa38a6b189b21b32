package domain

import (
	"encoding/json"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/treeshop/treeshop-ops-go/internal/geo"
	"github.com/treeshop/treeshop-ops-go/internal/pricing"
)

// Measurements are the physical inputs to the tree scores: feet for
// height and canopy radius, inches for DBH.
type Measurements struct {
	Height       float64 `json:"height"`
	DBH          float64 `json:"dbh"`
	CanopyRadius float64 `json:"canopyRadius"`
}

// TreeWorkRecord is one service performed on a tree.
type TreeWorkRecord struct {
	ID          uuid.UUID   `json:"id"`
	ServiceType ServiceType `json:"serviceType"`
	Date        time.Time   `json:"workDate"`
	Revenue     float64     `json:"revenue"`
	Notes       string      `json:"notes,omitempty"`
}

// TreeDetails are the descriptive assessment attributes.
type TreeDetails struct {
	Location            geo.Point     `json:"location"`
	PropertyID          *uuid.UUID    `json:"propertyId,omitempty"`
	Species             string        `json:"species"`
	CommonName          string        `json:"commonName,omitempty"`
	ScientificName      string        `json:"scientificName,omitempty"`
	ConditionRating     int           `json:"conditionRating"`
	HealthStatus        TreeHealth    `json:"healthStatus"`
	StructuralIssues    []string      `json:"structuralIssues,omitempty"`
	RiskLevel           RiskLevel     `json:"riskLevel"`
	HazardNotes         string        `json:"hazardNotes,omitempty"`
	RecommendedServices []ServiceType `json:"recommendedServices,omitempty"`
	Priority            Priority      `json:"priorityLevel"`
	EstimatedCost       *float64      `json:"estimatedCost,omitempty"`
	AssessorID          *uuid.UUID    `json:"assessorId,omitempty"`
	Notes               string        `json:"notes,omitempty"`
}

func (d *TreeDetails) normalize() error {
	if err := required("species", d.Species); err != nil {
		return err
	}
	if !d.Location.Valid() {
		return &ErrValidation{Field: "location", Message: "latitude/longitude out of range"}
	}
	if d.ConditionRating == 0 {
		d.ConditionRating = 3
	}
	if d.ConditionRating < 1 || d.ConditionRating > 5 {
		return &ErrValidation{Field: "conditionRating", Message: "must be between 1 and 5"}
	}
	if d.HealthStatus == "" {
		d.HealthStatus = HealthHealthy
	}
	if d.RiskLevel == "" {
		d.RiskLevel = RiskLow
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
	return nil
}

// Tree is an assessed tree. Scores are computed from the current
// measurements on every read; trees are never deleted, only marked removed.
type Tree struct {
	Meta
	TreeDetails
	AssessmentDate *time.Time       `json:"assessmentDate,omitempty"`
	WorkHistory    []TreeWorkRecord `json:"workHistory"`
	Status         TreeStatus       `json:"status"`
	RemovalDate    *time.Time       `json:"removalDate,omitempty"`

	measurements  Measurements
	percentToTrim *float64
}

// NewTree records a field assessment.
func NewTree(details TreeDetails, m Measurements, now time.Time) (*Tree, error) {
	if err := details.normalize(); err != nil {
		return nil, err
	}
	t := &Tree{
		Meta:           NewMeta(now),
		TreeDetails:    details,
		AssessmentDate: &now,
		WorkHistory:    []TreeWorkRecord{},
		Status:         TreeActive,
	}
	if err := t.UpdateMeasurements(m, now); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateDetails replaces the descriptive attributes. Removal bookkeeping
// and measurements are untouched.
func (t *Tree) UpdateDetails(details TreeDetails, now time.Time) error {
	if err := details.normalize(); err != nil {
		return err
	}
	if t.IsRemoved() {
		details.HealthStatus = HealthRemoved
	}
	t.TreeDetails = details
	t.touch(now)
	return nil
}

func (t *Tree) Measurements() Measurements { return t.measurements }

// UpdateMeasurements validates before writing anything.
func (t *Tree) UpdateMeasurements(m Measurements, now time.Time) error {
	if _, err := pricing.TreeScore(m.Height, m.DBH, m.CanopyRadius); err != nil {
		return invalid(err)
	}
	t.measurements = m
	t.touch(now)
	return nil
}

// PercentToTrim is nil until a trim percentage has been set. An explicit
// zero means nothing is to be trimmed.
func (t *Tree) PercentToTrim() *float64 {
	if t.percentToTrim == nil {
		return nil
	}
	v := *t.percentToTrim
	return &v
}

func (t *Tree) SetTrimPercentage(percent float64, now time.Time) error {
	if err := pricing.ValidateTrimPercent(percent); err != nil {
		return invalid(err)
	}
	t.percentToTrim = &percent
	t.touch(now)
	return nil
}

func (t *Tree) ClearTrimPercentage(now time.Time) {
	t.percentToTrim = nil
	t.touch(now)
}

func (t *Tree) CrownSpread() float64 { return pricing.CrownSpread(t.measurements.CanopyRadius) }

// TreeScore never errors for a stored tree: measurements were validated on write.
func (t *Tree) TreeScore() float64 {
	score, _ := pricing.TreeScore(t.measurements.Height, t.measurements.DBH, t.measurements.CanopyRadius)
	return score
}

// TrimScore is nil until a trim percentage is set.
func (t *Tree) TrimScore() *float64 {
	if t.percentToTrim == nil {
		return nil
	}
	m := t.measurements
	score, err := pricing.TrimScore(m.Height, m.DBH, m.CanopyRadius, *t.percentToTrim)
	if err != nil {
		return nil
	}
	return &score
}

// AddWorkRecord logs a service on the tree.
func (t *Tree) AddWorkRecord(service ServiceType, date time.Time, revenue float64, notes string, now time.Time) (TreeWorkRecord, error) {
	if service.Order() < 0 {
		return TreeWorkRecord{}, &ErrValidation{Field: "serviceType", Message: "unknown service type " + string(service)}
	}
	if math.IsNaN(revenue) || math.IsInf(revenue, 0) || revenue < 0 {
		return TreeWorkRecord{}, &ErrValidation{Field: "revenue", Message: "must be a finite non-negative number"}
	}
	rec := TreeWorkRecord{ID: uuid.New(), ServiceType: service, Date: date, Revenue: revenue, Notes: notes}
	t.WorkHistory = append(t.WorkHistory, rec)
	t.touch(now)
	return rec, nil
}

func (t *Tree) HasBeenWorked() bool { return len(t.WorkHistory) > 0 }

func (t *Tree) LastWorkDate() *time.Time {
	var last *time.Time
	for i := range t.WorkHistory {
		if d := t.WorkHistory[i].Date; last == nil || d.After(*last) {
			last = &d
		}
	}
	return last
}

func (t *Tree) TotalRevenue() float64 {
	total := 0.0
	for _, rec := range t.WorkHistory {
		total += rec.Revenue
	}
	return total
}

func (t *Tree) IsRemoved() bool { return t.Status == TreeRemoved }

// MarkAsRemoved soft-deletes the tree, keeping its work history.
func (t *Tree) MarkAsRemoved(date, now time.Time) error {
	if t.IsRemoved() {
		return &ErrConflict{Message: "tree already removed"}
	}
	t.Status = TreeRemoved
	t.HealthStatus = HealthRemoved
	t.RemovalDate = &date
	t.touch(now)
	return nil
}

// SetStatus changes a live tree's status; removal goes through MarkAsRemoved.
func (t *Tree) SetStatus(status TreeStatus, now time.Time) error {
	if !slices.Contains(TreeStatuses, status) {
		return &ErrValidation{Field: "status", Message: "unknown tree status " + string(status)}
	}
	if status == TreeRemoved || t.IsRemoved() {
		return &ErrInvalidTransition{Entity: "tree", From: string(t.Status), To: string(status)}
	}
	t.Status = status
	t.touch(now)
	return nil
}

type treeWire struct {
	Measurements
	PercentToTrim *float64 `json:"percentToTrim,omitempty"`
}

func (t Tree) MarshalJSON() ([]byte, error) {
	type alias Tree
	return json.Marshal(struct {
		alias
		treeWire
		CrownSpread   float64    `json:"crownSpread"`
		TreeScore     float64    `json:"treeScore"`
		TrimScore     *float64   `json:"trimScore,omitempty"`
		HasBeenWorked bool       `json:"hasBeenWorked"`
		LastWorkDate  *time.Time `json:"lastWorkDate,omitempty"`
		TotalRevenue  float64    `json:"totalRevenue"`
	}{
		alias:         alias(t),
		treeWire:      treeWire{Measurements: t.measurements, PercentToTrim: t.percentToTrim},
		CrownSpread:   t.CrownSpread(),
		TreeScore:     t.TreeScore(),
		TrimScore:     t.TrimScore(),
		HasBeenWorked: t.HasBeenWorked(),
		LastWorkDate:  t.LastWorkDate(),
		TotalRevenue:  t.TotalRevenue(),
	})
}

func (t *Tree) UnmarshalJSON(b []byte) error {
	type alias Tree
	var w struct {
		alias
		treeWire
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*t = Tree(w.alias)
	t.measurements = w.Measurements
	t.percentToTrim = w.PercentToTrim
	return nil
}
