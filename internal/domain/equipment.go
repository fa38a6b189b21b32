package domain

import (
	"encoding/json"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/treeshop/treeshop-ops-go/internal/pricing"
)

// MaintenanceRecord is one service performed on a machine.
type MaintenanceRecord struct {
	ID           uuid.UUID `json:"id"`
	Date         time.Time `json:"date"`
	Cost         float64   `json:"cost"`
	Description  string    `json:"description"`
	NextDueHours *float64  `json:"nextDueHours,omitempty"`
}

// EquipmentDetails are the descriptive attributes of a machine.
type EquipmentDetails struct {
	Name         string        `json:"name"`
	Type         EquipmentType `json:"equipmentType"`
	Make         string        `json:"make,omitempty"`
	Model        string        `json:"model,omitempty"`
	Year         int           `json:"year,omitempty"`
	SerialNumber string        `json:"serialNumber,omitempty"`
	PurchaseDate time.Time     `json:"purchaseDate"`
	Notes        string        `json:"notes,omitempty"`
}

func (d *EquipmentDetails) normalize(now time.Time) error {
	if err := required("name", d.Name); err != nil {
		return err
	}
	if !slices.Contains(EquipmentTypes, d.Type) {
		return &ErrValidation{Field: "equipmentType", Message: "unknown equipment type " + string(d.Type)}
	}
	if d.PurchaseDate.IsZero() {
		d.PurchaseDate = now
	}
	return nil
}

// Usage is the running hour and revenue log.
type Usage struct {
	TotalHours    float64    `json:"totalHoursUsed"`
	HoursThisYear float64    `json:"hoursUsedThisYear"`
	LastUsed      *time.Time `json:"lastUsedDate,omitempty"`
	RevenueTotal  float64    `json:"totalRevenueGenerated"`
}

// Equipment is a machine whose hourly cost is driven by the cost model.
// Inputs, costs and replacement reasons change together through the
// mutating methods.
type Equipment struct {
	Meta
	EquipmentDetails
	Status             EquipmentStatus     `json:"status"`
	Usage              Usage               `json:"usage"`
	MaintenanceHistory []MaintenanceRecord `json:"maintenanceHistory"`

	inputs      pricing.EquipmentInputs
	costs       pricing.EquipmentCosts
	replacement []pricing.ReplacementReason
}

// ApplyEquipmentDefaults fills a zero depreciation period and maintenance
// percentage.
func ApplyEquipmentDefaults(in pricing.EquipmentInputs) pricing.EquipmentInputs {
	if in.DepreciationYears == 0 {
		in.DepreciationYears = pricing.DefaultDepreciationYears
	}
	if in.MaintenancePercentage == 0 {
		in.MaintenancePercentage = pricing.DefaultMaintenancePercentage
	}
	return in
}

// NewEquipment registers a machine. Zero depreciation years and
// maintenance percentage take the defaults.
func NewEquipment(details EquipmentDetails, in pricing.EquipmentInputs, now time.Time) (*Equipment, error) {
	if err := details.normalize(now); err != nil {
		return nil, err
	}
	e := &Equipment{
		Meta:               NewMeta(now),
		EquipmentDetails:   details,
		Status:             EquipmentStatusActive,
		MaintenanceHistory: []MaintenanceRecord{},
	}
	if err := e.SetCostInputs(ApplyEquipmentDefaults(in), now); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Equipment) UpdateDetails(details EquipmentDetails, now time.Time) error {
	if err := details.normalize(now); err != nil {
		return err
	}
	e.EquipmentDetails = details
	e.reevaluate(now)
	e.touch(now)
	return nil
}

// SetCostInputs recomputes the hourly costs. Invalid inputs leave the
// previous values in place.
func (e *Equipment) SetCostInputs(in pricing.EquipmentInputs, now time.Time) error {
	costs, err := pricing.CalculateEquipmentCosts(in)
	if err != nil {
		return invalid(err)
	}
	e.inputs = in
	e.costs = costs
	e.reevaluate(now)
	e.touch(now)
	return nil
}

// SetFuelPrice reprices fuel only.
func (e *Equipment) SetFuelPrice(price float64, now time.Time) error {
	in := e.inputs
	in.FuelPrice = price
	return e.SetCostInputs(in, now)
}

func (e *Equipment) CostInputs() pricing.EquipmentInputs { return e.inputs }
func (e *Equipment) Costs() pricing.EquipmentCosts { return e.costs }

// ReplacementReasons are the triggers that fired at the last evaluation.
func (e *Equipment) ReplacementReasons() []pricing.ReplacementReason {
	return slices.Clone(e.replacement)
}

func (e *Equipment) ShouldConsiderReplacement() bool { return len(e.replacement) > 0 }

// Reevaluate reruns the replacement triggers, picking up age changes.
func (e *Equipment) Reevaluate(now time.Time) {
	e.reevaluate(now)
	e.touch(now)
}

func (e *Equipment) reevaluate(now time.Time) {
	e.replacement = pricing.DefaultReplacementPolicy().Evaluate(
		e.costs, e.Usage.HoursThisYear, e.YearsSincePurchase(now), e.inputs.DepreciationYears)
}

// Utilization compares this year's hours with the annual target.
func (e *Equipment) Utilization() pricing.Utilization {
	u, err := pricing.CalculateUtilization(e.Usage.HoursThisYear, e.inputs.AnnualHours)
	if err != nil {
		return pricing.Utilization{HoursThisYear: e.Usage.HoursThisYear, AnnualTarget: e.inputs.AnnualHours}
	}
	return u
}

func (e *Equipment) DailyRevenueRequirement() float64 {
	return e.costs.DailyRevenueRequirement(e.inputs.AnnualHours)
}

func (e *Equipment) AnnualRevenueTarget() float64 {
	return e.costs.AnnualRevenueTarget(e.inputs.AnnualHours)
}

// YearsSincePurchase counts whole calendar years.
func (e *Equipment) YearsSincePurchase(now time.Time) int {
	p := e.PurchaseDate
	if p.IsZero() || now.Before(p) {
		return 0
	}
	years := now.Year() - p.Year()
	if now.Month() < p.Month() || (now.Month() == p.Month() && now.Day() < p.Day()) {
		years--
	}
	return max(years, 0)
}

// IsAvailable is true for active machines.
func (e *Equipment) IsAvailable() bool { return e.Status == EquipmentStatusActive }

// LogUsage records hours worked and revenue billed on a date.
func (e *Equipment) LogUsage(hours float64, date time.Time, revenue float64, now time.Time) error {
	for field, v := range map[string]float64{"hours": hours, "revenue": revenue} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return &ErrValidation{Field: field, Message: "must be a finite non-negative number"}
		}
	}
	if e.Status == EquipmentStatusSold || e.Status == EquipmentStatusRetired {
		return &ErrConflict{Message: "cannot log usage on " + string(e.Status) + " equipment"}
	}
	e.Usage.TotalHours += hours
	e.Usage.HoursThisYear += hours
	e.Usage.RevenueTotal += revenue
	if e.Usage.LastUsed == nil || date.After(*e.Usage.LastUsed) {
		e.Usage.LastUsed = &date
	}
	e.reevaluate(now)
	e.touch(now)
	return nil
}

// ResetYear zeroes the annual hour counter.
func (e *Equipment) ResetYear(now time.Time) {
	e.Usage.HoursThisYear = 0
	e.reevaluate(now)
	e.touch(now)
}

func (e *Equipment) AddMaintenance(date time.Time, cost float64, description string, nextDueHours *float64, now time.Time) (MaintenanceRecord, error) {
	if math.IsNaN(cost) || math.IsInf(cost, 0) || cost < 0 {
		return MaintenanceRecord{}, &ErrValidation{Field: "cost", Message: "must be a finite non-negative number"}
	}
	if nextDueHours != nil && *nextDueHours < e.Usage.TotalHours {
		return MaintenanceRecord{}, &ErrValidation{Field: "nextDueHours", Message: "is behind the current hour meter"}
	}
	rec := MaintenanceRecord{ID: uuid.New(), Date: date, Cost: cost, Description: description, NextDueHours: nextDueHours}
	e.MaintenanceHistory = append(e.MaintenanceHistory, rec)
	e.touch(now)
	return rec, nil
}

// MaintenanceDue reports whether the hour meter passed the last scheduled service.
func (e *Equipment) MaintenanceDue() bool {
	for i := len(e.MaintenanceHistory) - 1; i >= 0; i-- {
		if due := e.MaintenanceHistory[i].NextDueHours; due != nil {
			return e.Usage.TotalHours >= *due
		}
	}
	return false
}

func (e *Equipment) SetStatus(status EquipmentStatus, now time.Time) error {
	if !slices.Contains(EquipmentStatuses, status) {
		return &ErrValidation{Field: "status", Message: "unknown equipment status " + string(status)}
	}
	if e.Status == EquipmentStatusSold || e.Status == EquipmentStatusRetired {
		return &ErrInvalidTransition{Entity: "equipment", From: string(e.Status), To: string(status)}
	}
	e.Status = status
	e.touch(now)
	return nil
}

type equipmentWire struct {
	Inputs             pricing.EquipmentInputs     `json:"costInputs"`
	Costs              pricing.EquipmentCosts      `json:"costs"`
	ReplacementReasons []pricing.ReplacementReason `json:"replacementReasons"`
}

func (e Equipment) MarshalJSON() ([]byte, error) {
	type alias Equipment
	reasons := e.replacement
	if reasons == nil {
		reasons = []pricing.ReplacementReason{}
	}
	return json.Marshal(struct {
		alias
		equipmentWire
		Utilization               pricing.Utilization `json:"utilization"`
		ShouldConsiderReplacement bool                `json:"shouldConsiderReplacement"`
		DailyRevenueRequirement   float64             `json:"dailyRevenueRequirement"`
		AnnualRevenueTarget       float64             `json:"annualRevenueTarget"`
		IsAvailable               bool                `json:"isAvailable"`
		MaintenanceDue            bool                `json:"maintenanceDue"`
	}{
		alias:                     alias(e),
		equipmentWire:             equipmentWire{Inputs: e.inputs, Costs: e.costs, ReplacementReasons: reasons},
		Utilization:               e.Utilization(),
		ShouldConsiderReplacement: len(reasons) > 0,
		DailyRevenueRequirement:   e.DailyRevenueRequirement(),
		AnnualRevenueTarget:       e.AnnualRevenueTarget(),
		IsAvailable:               e.IsAvailable(),
		MaintenanceDue:            e.MaintenanceDue(),
	})
}

func (e *Equipment) UnmarshalJSON(b []byte) error {
	type alias Equipment
	var w struct {
		alias
		equipmentWire
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = Equipment(w.alias)
	e.inputs = w.Inputs
	e.costs = w.Costs
	e.replacement = w.ReplacementReasons
	return nil
}
