package domain

import (
	"math"
	"time"

	"github.com/treeshop/treeshop-ops-go/internal/pricing"
)

// CompanySettings is the single record of business-wide defaults.
type CompanySettings struct {
	Meta
	Name                   string                  `json:"companyName"`
	Address                Address                 `json:"address"`
	Phone                  string                  `json:"phone"`
	Email                  string                  `json:"email"`
	Website                string                  `json:"website,omitempty"`
	LicenseNumber          string                  `json:"licenseNumber,omitempty"`
	TaxRate                float64                 `json:"defaultTaxRate"`
	PaymentTerms           string                  `json:"defaultPaymentTerms"`
	LateFeeMonthlyRate     float64                 `json:"latePaymentFeePercentage"`
	DefaultLaborBurden     float64                 `json:"defaultLaborBurden"`
	MinimumWage            float64                 `json:"minimumWage"`
	OvertimeThresholdHours float64                 `json:"overtimeThreshold"`
	OvertimeMultiplier     float64                 `json:"overtimeMultiplier"`
	FuelPrice              float64                 `json:"fuelPricePerGallon"`
	MaterialMarkup         float64                 `json:"materialMarkup"`
	ServiceRadiusMiles     float64                 `json:"serviceRadiusMiles"`
	ProfitMargins          map[ServiceType]float64 `json:"defaultProfitMargins"`
}

// DefaultCompanySettings seeds a fresh install.
func DefaultCompanySettings(now time.Time) *CompanySettings {
	return &CompanySettings{
		Meta:                   NewMeta(now),
		Name:                   "TreeShop",
		PaymentTerms:           DefaultPaymentTerms,
		LateFeeMonthlyRate:     0.015,
		DefaultLaborBurden:     pricing.DefaultBurdenMultiplier,
		MinimumWage:            15,
		OvertimeThresholdHours: 40,
		OvertimeMultiplier:     1.5,
		FuelPrice:              3.50,
		MaterialMarkup:         0.15,
		ServiceRadiusMiles:     50,
		ProfitMargins: map[ServiceType]float64{
			ServiceTreeRemoval:      0.40,
			ServiceTreeTrimming:     0.40,
			ServiceStumpGrinding:    0.40,
			ServiceForestryMulching: 0.40,
			ServiceTreeAssessment:   0.50,
			ServiceEmergency:        0.50,
		},
	}
}

// Validate checks the ranges of the rate fields.
func (c *CompanySettings) Validate() error {
	if err := required("companyName", c.Name); err != nil {
		return err
	}
	if err := validateTaxRate(c.TaxRate); err != nil {
		return err
	}
	if _, err := DueDateFor(c.PaymentTerms, time.Time{}); err != nil {
		return err
	}
	rates := []struct {
		field string
		v     float64
	}{
		{"latePaymentFeePercentage", c.LateFeeMonthlyRate},
		{"minimumWage", c.MinimumWage},
		{"overtimeThreshold", c.OvertimeThresholdHours},
		{"fuelPricePerGallon", c.FuelPrice},
		{"materialMarkup", c.MaterialMarkup},
		{"serviceRadiusMiles", c.ServiceRadiusMiles},
	}
	for _, r := range rates {
		if math.IsNaN(r.v) || math.IsInf(r.v, 0) || r.v < 0 {
			return &ErrValidation{Field: r.field, Message: "must be a finite non-negative number"}
		}
	}
	if c.DefaultLaborBurden < 1 {
		return &ErrValidation{Field: "defaultLaborBurden", Message: "must be at least 1"}
	}
	if c.OvertimeMultiplier < 1 {
		return &ErrValidation{Field: "overtimeMultiplier", Message: "must be at least 1"}
	}
	for svc, margin := range c.ProfitMargins {
		if svc.Order() < 0 {
			return &ErrValidation{Field: "defaultProfitMargins", Message: "unknown service type " + string(svc)}
		}
		if margin < 0 || math.IsNaN(margin) {
			return &ErrValidation{Field: "defaultProfitMargins", Message: "margins must be non-negative"}
		}
	}
	return nil
}

// Replace copies editable fields from in, keeping identity and version.
func (c *CompanySettings) Replace(in CompanySettings, now time.Time) error {
	if err := in.Validate(); err != nil {
		return err
	}
	meta := c.Meta
	*c = in
	c.Meta = meta
	c.touch(now)
	return nil
}

// PriceWithMargin marks cost up by the default margin for the service.
func (c *CompanySettings) PriceWithMargin(svc ServiceType, cost float64) float64 {
	return cost * (1 + c.ProfitMargins[svc])
}
