package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/treeshop/treeshop-ops-go/internal/pricing"
)

// CareerTrack is one of the sixteen job categories.
type CareerTrack string

const (
	TrackATC CareerTrack = "ATC"
	TrackTRS CareerTrack = "TRS"
	TrackFOR CareerTrack = "FOR"
	TrackLCL CareerTrack = "LCL"
	TrackMUL CareerTrack = "MUL"
	TrackSTG CareerTrack = "STG"
	TrackESR CareerTrack = "ESR"
	TrackLSC CareerTrack = "LSC"
	TrackEQO CareerTrack = "EQO"
	TrackMNT CareerTrack = "MNT"
	TrackSAL CareerTrack = "SAL"
	TrackPMC CareerTrack = "PMC"
	TrackADM CareerTrack = "ADM"
	TrackFIN CareerTrack = "FIN"
	TrackSAF CareerTrack = "SAF"
	TrackTEC CareerTrack = "TEC"
)

const (
	CategoryFieldOperations      = "Field Operations"
	CategoryEquipmentMaintenance = "Equipment & Maintenance"
	CategoryBusinessOperations   = "Business Operations"
)

type trackInfo struct {
	name     string
	category string
}

var careerTracks = map[CareerTrack]trackInfo{
	TrackATC: {"Arboriculture & Tree Care", CategoryFieldOperations},
	TrackTRS: {"Tree Removal & Rigging", CategoryFieldOperations},
	TrackFOR: {"Forestry & Land Management", CategoryFieldOperations},
	TrackLCL: {"Land Clearing & Excavation", CategoryFieldOperations},
	TrackMUL: {"Mulching & Material Processing", CategoryFieldOperations},
	TrackSTG: {"Stump Grinding & Site Restoration", CategoryFieldOperations},
	TrackESR: {"Emergency & Storm Response", CategoryFieldOperations},
	TrackLSC: {"Landscaping & Grounds", CategoryFieldOperations},
	TrackEQO: {"Equipment Operations", CategoryEquipmentMaintenance},
	TrackMNT: {"Maintenance & Repair", CategoryEquipmentMaintenance},
	TrackSAL: {"Sales & Business Development", CategoryBusinessOperations},
	TrackPMC: {"Project Management & Coordination", CategoryBusinessOperations},
	TrackADM: {"Administrative & Office Operations", CategoryBusinessOperations},
	TrackFIN: {"Financial & Accounting", CategoryBusinessOperations},
	TrackSAF: {"Safety & Compliance", CategoryBusinessOperations},
	TrackTEC: {"Technology & Systems", CategoryBusinessOperations},
}

// CareerTracks lists every track in display order.
var CareerTracks = []CareerTrack{
	TrackATC, TrackTRS, TrackFOR, TrackLCL, TrackMUL, TrackSTG, TrackESR, TrackLSC,
	TrackEQO, TrackMNT,
	TrackSAL, TrackPMC, TrackADM, TrackFIN, TrackSAF, TrackTEC,
}

func ParseCareerTrack(raw string) (CareerTrack, error) {
	return parseEnum("primaryTrack", raw, CareerTracks)
}

func (c *CareerTrack) UnmarshalText(b []byte) error {
	v, err := ParseCareerTrack(string(b))
	*c = v
	return err
}

func (c CareerTrack) DisplayName() string { return careerTracks[c].name }
func (c CareerTrack) Category() string { return careerTracks[c].category }

// CrossTraining is a secondary track at a tier, written "ESR3".
type CrossTraining struct {
	Track CareerTrack
	Tier  int
}

func (x CrossTraining) String() string { return fmt.Sprintf("%s%d", x.Track, x.Tier) }

// ParseCrossTraining reads the "TRK<tier>" form.
func ParseCrossTraining(raw string) (CrossTraining, error) {
	if len(raw) != 4 {
		return CrossTraining{}, &ErrValidation{Field: "crossTraining", Message: fmt.Sprintf("%q is not in TRK<tier> form", raw)}
	}
	track, err := ParseCareerTrack(raw[:3])
	if err != nil {
		return CrossTraining{}, &ErrValidation{Field: "crossTraining", Message: fmt.Sprintf("%q has an unknown track", raw)}
	}
	tier, err := strconv.Atoi(raw[3:])
	if err != nil || tier < pricing.MinTier || tier > pricing.MaxTier {
		return CrossTraining{}, &ErrValidation{Field: "crossTraining", Message: fmt.Sprintf("%q has a tier outside 1..5", raw)}
	}
	return CrossTraining{Track: track, Tier: tier}, nil
}

func (x CrossTraining) MarshalText() ([]byte, error) { return []byte(x.String()), nil }

func (x *CrossTraining) UnmarshalText(b []byte) error {
	v, err := ParseCrossTraining(string(b))
	*x = v
	return err
}

// EmployeeDetails are the non-compensation attributes.
type EmployeeDetails struct {
	FirstName       string           `json:"firstName"`
	LastName        string           `json:"lastName"`
	Email           string           `json:"email,omitempty"`
	Phone           string           `json:"phone"`
	HomeAddress     *Address         `json:"address,omitempty"`
	HireDate        time.Time        `json:"hireDate"`
	PrimaryTrack    CareerTrack      `json:"primaryTrack"`
	IsManager       bool             `json:"isManager"`
	IsDirector      bool             `json:"isDirector"`
	CrossTraining   []CrossTraining  `json:"crossTrainingTracks,omitempty"`
	AvailableHours  float64          `json:"availableHoursPerWeek"`
	RegularSchedule string           `json:"regularSchedule,omitempty"`
	Status          EmploymentStatus `json:"employmentStatus"`
}

func (d *EmployeeDetails) normalize() error {
	if err := required("firstName", d.FirstName); err != nil {
		return err
	}
	if err := required("lastName", d.LastName); err != nil {
		return err
	}
	if _, ok := careerTracks[d.PrimaryTrack]; !ok {
		return &ErrValidation{Field: "primaryTrack", Message: "unknown career track " + string(d.PrimaryTrack)}
	}
	if d.Status == "" {
		d.Status = EmploymentActive
	}
	if d.AvailableHours == 0 {
		d.AvailableHours = 40
	}
	return nil
}

// Performance is the running productivity record.
type Performance struct {
	JobsCompleted    int     `json:"jobsCompleted"`
	TotalHoursWorked float64 `json:"totalHoursWorked"`
	TotalPoints      float64 `json:"totalPoints"`
}

// AveragePpH is points per hour over all recorded jobs.
func (p Performance) AveragePpH() float64 {
	if p.TotalHoursWorked <= 0 {
		return 0
	}
	return p.TotalPoints / p.TotalHoursWorked
}

// Employee is a crew member. The wage inputs and their derived
// compensation are only written together by SetCompensation.
type Employee struct {
	Meta
	EmployeeDetails
	TerminationDate   *time.Time  `json:"terminationDate,omitempty"`
	TerminationReason string      `json:"terminationReason,omitempty"`
	Performance       Performance `json:"performance"`

	wage pricing.WageInput
	comp pricing.Compensation
}

// NewEmployee hires an employee and prices their compensation.
func NewEmployee(details EmployeeDetails, wage pricing.WageInput, table pricing.CompensationTable, now time.Time) (*Employee, error) {
	if err := details.normalize(); err != nil {
		return nil, err
	}
	if details.HireDate.IsZero() {
		details.HireDate = now
	}
	e := &Employee{Meta: NewMeta(now), EmployeeDetails: details}
	if err := e.SetCompensation(wage, table, now); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Employee) UpdateDetails(details EmployeeDetails, now time.Time) error {
	if err := details.normalize(); err != nil {
		return err
	}
	if details.HireDate.IsZero() {
		details.HireDate = e.HireDate
	}
	if e.Status == EmploymentTerminated && details.Status != EmploymentTerminated {
		return &ErrInvalidTransition{Entity: "employee", From: string(e.Status), To: string(details.Status), Reason: "terminated employees are rehired as new records"}
	}
	e.EmployeeDetails = details
	e.touch(now)
	return nil
}

// SetCompensation validates the inputs, computes the derived pay and
// stores both at once. On error nothing changes.
func (e *Employee) SetCompensation(in pricing.WageInput, table pricing.CompensationTable, now time.Time) error {
	comp, err := table.Calculate(in)
	if err != nil {
		return invalid(err)
	}
	e.wage = in.Normalized()
	e.comp = comp
	e.touch(now)
	return nil
}

// Reprice recomputes compensation from the stored inputs, used when the
// company's multiplier tables change.
func (e *Employee) Reprice(table pricing.CompensationTable, now time.Time) error {
	return e.SetCompensation(e.wage, table, now)
}

func (e *Employee) WageInput() pricing.WageInput { return e.wage }
func (e *Employee) Compensation() pricing.Compensation { return e.comp }
func (e *Employee) Tier() int { return e.wage.Tier }

func (e *Employee) FullName() string { return e.FirstName + " " + e.LastName }

// EmployeeCode renders the track, tier, premiums and cross-training, for
// example "TRS3+S+M+E3+D2+CRA+ISA / X-ESR3+X-TRS2".
func (e *Employee) EmployeeCode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%d", e.PrimaryTrack, e.wage.Tier)
	switch {
	case e.wage.Supervisor:
		b.WriteString("+S")
	case e.wage.TeamLeader:
		b.WriteString("+L")
	}
	if e.IsManager {
		b.WriteString("+M")
	}
	if e.IsDirector {
		b.WriteString("+D")
	}
	if e.wage.EquipmentLevel > 1 {
		fmt.Fprintf(&b, "+E%d", e.wage.EquipmentLevel)
	}
	if e.wage.DriverClass > 1 {
		fmt.Fprintf(&b, "+D%d", e.wage.DriverClass)
	}
	for _, cert := range []struct {
		held bool
		code string
	}{
		{e.wage.CraneCert, "+CRA"},
		{e.wage.ISACert, "+ISA"},
		{e.wage.OSHACert, "+OSH"},
		{e.wage.HazmatCert, "+HAZ"},
	} {
		if cert.held {
			b.WriteString(cert.code)
		}
	}
	if len(e.CrossTraining) > 0 {
		parts := make([]string, len(e.CrossTraining))
		for i, x := range e.CrossTraining {
			parts[i] = "X-" + x.String()
		}
		b.WriteString(" / " + strings.Join(parts, "+"))
	}
	return b.String()
}

// RecordJob adds a finished job to the performance record.
func (e *Employee) RecordJob(hours, points float64, now time.Time) error {
	for field, v := range map[string]float64{"hours": hours, "points": points} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return &ErrValidation{Field: field, Message: "must be a finite non-negative number"}
		}
	}
	e.Performance.JobsCompleted++
	e.Performance.TotalHoursWorked += hours
	e.Performance.TotalPoints += points
	e.touch(now)
	return nil
}

func (e *Employee) IsActive() bool { return e.Status == EmploymentActive }

func (e *Employee) Terminate(date time.Time, reason string, now time.Time) error {
	if e.Status == EmploymentTerminated {
		return &ErrInvalidTransition{Entity: "employee", From: string(e.Status), To: string(EmploymentTerminated)}
	}
	if date.Before(e.HireDate) {
		return &ErrValidation{Field: "terminationDate", Message: "precedes the hire date"}
	}
	e.Status = EmploymentTerminated
	e.TerminationDate = &date
	e.TerminationReason = reason
	e.touch(now)
	return nil
}

// HasCrossTraining reports whether the employee is trained on track,
// either as primary track or cross-training.
func (e *Employee) HasCrossTraining(track CareerTrack) bool {
	return e.PrimaryTrack == track || slices.ContainsFunc(e.CrossTraining, func(x CrossTraining) bool { return x.Track == track })
}

type employeeWire struct {
	Wage         pricing.WageInput    `json:"compensationInputs"`
	Compensation pricing.Compensation `json:"compensation"`
}

func (e Employee) MarshalJSON() ([]byte, error) {
	type alias Employee
	return json.Marshal(struct {
		alias
		employeeWire
		EmployeeCode string  `json:"employeeCode"`
		TrackName    string  `json:"careerTrackName"`
		Category     string  `json:"careerCategory"`
		AveragePpH   float64 `json:"averagePpH"`
	}{
		alias:        alias(e),
		employeeWire: employeeWire{Wage: e.wage, Compensation: e.comp},
		EmployeeCode: e.EmployeeCode(),
		TrackName:    e.PrimaryTrack.DisplayName(),
		Category:     e.PrimaryTrack.Category(),
		AveragePpH:   e.Performance.AveragePpH(),
	})
}

func (e *Employee) UnmarshalJSON(b []byte) error {
	type alias Employee
	var w struct {
		alias
		employeeWire
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if err := w.Wage.Validate(); err != nil {
		return invalid(err)
	}
	*e = Employee(w.alias)
	e.wage = w.Wage
	e.comp = w.Compensation
	return nil
}
