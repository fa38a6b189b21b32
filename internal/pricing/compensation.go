package pricing

import (
	"fmt"
	"strconv"
	"strings"
)

// Compensation bounds.
const (
	MinTier           = 1
	MaxTier           = 5
	MaxEquipmentLevel = 4
	MaxDriverClass    = 3
)

// Fallbacks returned by the multiplier lookups for a tier outside [1,5].
// Wage and Calculate reject such tiers before any lookup happens, so the
// fallbacks only surface through the raw lookup methods.
const (
	DefaultTierMultiplier   = 1.6
	DefaultBurdenMultiplier = 1.7
)

// CompensationTable holds every rate the wage calculation reads. The tier
// and burden multipliers are separate tables even though the defaults are
// identical.
type CompensationTable struct {
	TierMultipliers   [MaxTier]float64
	BurdenMultipliers [MaxTier]float64

	TeamLeaderPremium float64
	SupervisorPremium float64

	// Indexed by level-1 / class-1; level 1 and class 1 carry no premium.
	EquipmentPremiums [MaxEquipmentLevel]float64
	DriverPremiums    [MaxDriverClass]float64

	CranePremium  float64
	ISAPremium    float64
	OSHAPremium   float64
	HazmatPremium float64
}

// DefaultCompensationTable returns the standard pay scale.
func DefaultCompensationTable() CompensationTable {
	return CompensationTable{
		TierMultipliers:   [MaxTier]float64{1.6, 1.7, 1.8, 2.0, 2.2},
		BurdenMultipliers: [MaxTier]float64{1.6, 1.7, 1.8, 2.0, 2.2},
		TeamLeaderPremium: 3.00,
		SupervisorPremium: 7.00,
		EquipmentPremiums: [MaxEquipmentLevel]float64{0, 1.50, 4.00, 7.00},
		DriverPremiums:    [MaxDriverClass]float64{0, 2.00, 3.00},
		CranePremium:      4.00,
		ISAPremium:        2.50,
		OSHAPremium:       2.00,
		HazmatPremium:     1.50,
	}
}

// Validate checks that every multiplier is positive and no premium is negative.
func (t CompensationTable) Validate() error {
	for i, m := range t.TierMultipliers {
		if err := requirePositive(fmt.Sprintf("tierMultipliers[%d]", i+1), m); err != nil {
			return err
		}
	}
	for i, m := range t.BurdenMultipliers {
		if err := requirePositive(fmt.Sprintf("burdenMultipliers[%d]", i+1), m); err != nil {
			return err
		}
	}
	premiums := []float64{t.TeamLeaderPremium, t.SupervisorPremium, t.CranePremium, t.ISAPremium, t.OSHAPremium, t.HazmatPremium}
	premiums = append(premiums, t.EquipmentPremiums[:]...)
	premiums = append(premiums, t.DriverPremiums[:]...)
	for _, p := range premiums {
		if err := requireNonNegative("premium", p); err != nil {
			return err
		}
	}
	return nil
}

// TierMultiplier returns the wage multiplier for tier, or
// DefaultTierMultiplier when tier is outside [1,5].
func (t CompensationTable) TierMultiplier(tier int) float64 {
	if tier < MinTier || tier > MaxTier {
		return DefaultTierMultiplier
	}
	return t.TierMultipliers[tier-1]
}

// BurdenMultiplier returns the labor burden for tier, or
// DefaultBurdenMultiplier when tier is outside [1,5].
func (t CompensationTable) BurdenMultiplier(tier int) float64 {
	if tier < MinTier || tier > MaxTier {
		return DefaultBurdenMultiplier
	}
	return t.BurdenMultipliers[tier-1]
}

// WageInput is everything that determines an hourly wage.
type WageInput struct {
	BaseHourlyRate float64 `json:"baseHourlyRate"`
	Tier           int     `json:"tier"`
	TeamLeader     bool    `json:"hasTeamLeader"`
	Supervisor     bool    `json:"hasSupervisor"`
	EquipmentLevel int     `json:"equipmentLevel"`
	DriverClass    int     `json:"driverClass"`
	CraneCert      bool    `json:"hasCraneCert"`
	ISACert        bool    `json:"hasISACert"`
	OSHACert       bool    `json:"hasOSHACert"`
	HazmatCert     bool    `json:"hasHazmatCert"`
}

// Normalized fills an unset equipment level or driver class with 1, the
// base level that carries no premium.
func (in WageInput) Normalized() WageInput {
	if in.EquipmentLevel == 0 {
		in.EquipmentLevel = 1
	}
	if in.DriverClass == 0 {
		in.DriverClass = 1
	}
	return in
}

// Validate checks the ranges of tier, equipment level and driver class.
// Unset levels are valid and mean level 1.
func (in WageInput) Validate() error {
	in = in.Normalized()
	if err := requireNonNegative("baseHourlyRate", in.BaseHourlyRate); err != nil {
		return err
	}
	if err := requireRange("tier", in.Tier, MinTier, MaxTier); err != nil {
		return err
	}
	if err := requireRange("equipmentLevel", in.EquipmentLevel, 1, MaxEquipmentLevel); err != nil {
		return err
	}
	return requireRange("driverClass", in.DriverClass, 1, MaxDriverClass)
}

// Wage computes the hourly wage:
//  1. base * tier multiplier
//  2. one leadership premium, supervisor taking precedence over team leader
//  3. equipment level premium
//  4. driver class premium
//  5. every held certification premium
func (t CompensationTable) Wage(in WageInput) (float64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	in = in.Normalized()

	wage := in.BaseHourlyRate * t.TierMultiplier(in.Tier)

	switch {
	case in.Supervisor:
		wage += t.SupervisorPremium
	case in.TeamLeader:
		wage += t.TeamLeaderPremium
	}

	wage += t.EquipmentPremiums[in.EquipmentLevel-1]
	wage += t.DriverPremiums[in.DriverClass-1]

	if in.CraneCert {
		wage += t.CranePremium
	}
	if in.ISACert {
		wage += t.ISAPremium
	}
	if in.OSHACert {
		wage += t.OSHAPremium
	}
	if in.HazmatCert {
		wage += t.HazmatPremium
	}
	return wage, nil
}

// Compensation is the derived pay for one employee.
type Compensation struct {
	HourlyWage       float64 `json:"totalHourlyWage"`
	BurdenMultiplier float64 `json:"laborBurdenMultiplier"`
	TrueBusinessCost float64 `json:"trueBusinessCost"`
}

// Calculate returns the wage, the burden multiplier and the fully loaded
// cost (wage * burden).
func (t CompensationTable) Calculate(in WageInput) (Compensation, error) {
	wage, err := t.Wage(in)
	if err != nil {
		return Compensation{}, err
	}
	burden := t.BurdenMultiplier(in.Tier)
	return Compensation{
		HourlyWage:       wage,
		BurdenMultiplier: burden,
		TrueBusinessCost: wage * burden,
	}, nil
}

// CalculateWage runs Wage against the default table.
func CalculateWage(in WageInput) (float64, error) {
	return DefaultCompensationTable().Wage(in)
}

// ParseMultipliers reads a comma-separated list of exactly five positive
// multipliers, one per tier.
func ParseMultipliers(s string) ([MaxTier]float64, error) {
	var out [MaxTier]float64
	parts := strings.Split(s, ",")
	if len(parts) != MaxTier {
		return out, fmt.Errorf("expected %d comma-separated multipliers, got %d", MaxTier, len(parts))
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, fmt.Errorf("multiplier for tier %d: %w", i+1, err)
		}
		if err := requirePositive(fmt.Sprintf("tier %d multiplier", i+1), v); err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}
