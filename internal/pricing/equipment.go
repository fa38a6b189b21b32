package pricing

import "fmt"

// Equipment defaults applied when a machine is registered without them.
const (
	DefaultDepreciationYears      = 5
	DefaultMaintenancePercentage  = 0.15
	WorkDaysPerYear               = 200.0
	UnderutilizationTargetPercent = 0.75
)

// EquipmentInputs are the "6 inputs" of the hourly cost model plus the
// fixed annual costs.
type EquipmentInputs struct {
	PurchasePrice         float64 `json:"purchasePrice"`
	AnnualHours           float64 `json:"annualHours"`
	FuelGPH               float64 `json:"fuelGallonsPerHour"`
	FuelPrice             float64 `json:"fuelPricePerGallon"`
	DepreciationYears     int     `json:"depreciationYears"`
	MaintenancePercentage float64 `json:"maintenancePercentage"` // fraction of purchase price per year
	InsuranceAnnual       float64 `json:"insuranceAnnual"`
	RegistrationAnnual    float64 `json:"registrationAnnual"`
	StorageAnnual         float64 `json:"storageAnnual"`
}

// EquipmentCosts is the per-hour breakdown of what a machine costs to run.
type EquipmentCosts struct {
	Fuel           float64 `json:"fuelCostPerHour"`
	Depreciation   float64 `json:"depreciationCostPerHour"`
	Maintenance    float64 `json:"maintenanceCostPerHour"`
	InsuranceFixed float64 `json:"insuranceFixedCostPerHour"`
	Total          float64 `json:"totalHourlyCost"`
	// MinimumBillingRate is the break-even rate; billing below it loses money.
	MinimumBillingRate float64 `json:"minimumBillingRate"`
}

// Validate rejects inputs that would divide by zero or produce negative costs.
func (in EquipmentInputs) Validate() error {
	if err := requirePositive("annualHours", in.AnnualHours); err != nil {
		return err
	}
	if in.DepreciationYears <= 0 {
		return &InputError{Field: "depreciationYears", Reason: "must be greater than zero"}
	}
	checks := []struct {
		field string
		v     float64
	}{
		{"purchasePrice", in.PurchasePrice},
		{"fuelGallonsPerHour", in.FuelGPH},
		{"fuelPricePerGallon", in.FuelPrice},
		{"maintenancePercentage", in.MaintenancePercentage},
		{"insuranceAnnual", in.InsuranceAnnual},
		{"registrationAnnual", in.RegistrationAnnual},
		{"storageAnnual", in.StorageAnnual},
	}
	for _, c := range checks {
		if err := requireNonNegative(c.field, c.v); err != nil {
			return err
		}
	}
	return nil
}

// CalculateEquipmentCosts runs the hourly cost model.
func CalculateEquipmentCosts(in EquipmentInputs) (EquipmentCosts, error) {
	if err := in.Validate(); err != nil {
		return EquipmentCosts{}, err
	}

	fuel := in.FuelGPH * in.FuelPrice
	depreciation := in.PurchasePrice / (float64(in.DepreciationYears) * in.AnnualHours)
	maintenance := (in.PurchasePrice * in.MaintenancePercentage) / in.AnnualHours
	insuranceFixed := (in.InsuranceAnnual + in.RegistrationAnnual + in.StorageAnnual) / in.AnnualHours
	total := fuel + depreciation + maintenance + insuranceFixed

	return EquipmentCosts{
		Fuel:               fuel,
		Depreciation:       depreciation,
		Maintenance:        maintenance,
		InsuranceFixed:     insuranceFixed,
		Total:              total,
		MinimumBillingRate: total,
	}, nil
}

// DailyRevenueRequirement is what the machine must bill on an average work day.
func (c EquipmentCosts) DailyRevenueRequirement(annualHours float64) float64 {
	return c.MinimumBillingRate * (annualHours / WorkDaysPerYear)
}

// AnnualRevenueTarget is the yearly break-even revenue for the machine.
func (c EquipmentCosts) AnnualRevenueTarget(annualHours float64) float64 {
	return c.MinimumBillingRate * annualHours
}

// Utilization compares hours used this year to the annual target.
type Utilization struct {
	Rate          float64 `json:"utilizationRate"`
	Underutilized bool    `json:"isUnderutilized"`
	HoursThisYear float64 `json:"hoursUsedThisYear"`
	AnnualTarget  float64 `json:"annualUsageHours"`
}

// CalculateUtilization returns hoursThisYear / annualHours and flags usage
// below 75% of the target.
func CalculateUtilization(hoursThisYear, annualHours float64) (Utilization, error) {
	if err := requirePositive("annualHours", annualHours); err != nil {
		return Utilization{}, err
	}
	if err := requireNonNegative("hoursUsedThisYear", hoursThisYear); err != nil {
		return Utilization{}, err
	}
	return Utilization{
		Rate:          hoursThisYear / annualHours,
		Underutilized: hoursThisYear < annualHours*UnderutilizationTargetPercent,
		HoursThisYear: hoursThisYear,
		AnnualTarget:  annualHours,
	}, nil
}

// ReplacementCode identifies one replacement trigger.
type ReplacementCode string

const (
	ReplacementMaintenanceCost ReplacementCode = "MAINTENANCE_COST"
	ReplacementLowUtilization  ReplacementCode = "LOW_UTILIZATION"
	ReplacementAge             ReplacementCode = "AGE"
)

// ReplacementReason is one triggered reason to consider replacing a machine.
type ReplacementReason struct {
	Code    ReplacementCode `json:"code"`
	Message string          `json:"message"`
}

// ReplacementPolicy holds the trigger thresholds.
type ReplacementPolicy struct {
	MaxMaintenancePerHour float64
	MinAnnualHours        float64
}

// DefaultReplacementPolicy flags maintenance above $12/hr and fewer than
// 1,000 logged hours in the year.
func DefaultReplacementPolicy() ReplacementPolicy {
	return ReplacementPolicy{MaxMaintenancePerHour: 12.00, MinAnnualHours: 1000}
}

// Evaluate checks every trigger independently and returns all that fire,
// in a fixed order. An empty result means no replacement is suggested.
func (p ReplacementPolicy) Evaluate(costs EquipmentCosts, hoursThisYear float64, yearsSincePurchase, depreciationYears int) []ReplacementReason {
	var reasons []ReplacementReason

	if costs.Maintenance > p.MaxMaintenancePerHour {
		reasons = append(reasons, ReplacementReason{
			Code:    ReplacementMaintenanceCost,
			Message: fmt.Sprintf("Maintenance cost exceeds $%.2f/hour threshold", p.MaxMaintenancePerHour),
		})
	}
	if hoursThisYear > 0 && hoursThisYear < p.MinAnnualHours {
		reasons = append(reasons, ReplacementReason{
			Code:    ReplacementLowUtilization,
			Message: fmt.Sprintf("Utilization below %.0f hours minimum", p.MinAnnualHours),
		})
	}
	if yearsSincePurchase > depreciationYears {
		reasons = append(reasons, ReplacementReason{
			Code:    ReplacementAge,
			Message: "Equipment age exceeds depreciation period",
		})
	}
	return reasons
}
