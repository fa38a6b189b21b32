package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/port"
)

var settingsTracer = otel.Tracer("service/settings")

// SettingsService reads and replaces the company settings record.
type SettingsService struct {
	core
}

func NewSettingsService(repos *port.Repositories, metrics *observability.Metrics, logger *zap.Logger) *SettingsService {
	return &SettingsService{core: newCore(repos, metrics, logger)}
}

// Ensure seeds the record with the configured tax rate and fuel price when
// it does not exist yet. An existing record is returned untouched.
func (s *SettingsService) Ensure(ctx context.Context, taxRate, fuelPrice float64) (*domain.CompanySettings, error) {
	ctx, span := settingsTracer.Start(ctx, "SettingsService.Ensure")
	defer span.End()

	seed := domain.DefaultCompanySettings(s.now())
	seed.TaxRate = taxRate
	seed.FuelPrice = fuelPrice
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return s.ensureSettings(ctx, seed)
}

func (s *SettingsService) Get(ctx context.Context) (*domain.CompanySettings, error) {
	ctx, span := settingsTracer.Start(ctx, "SettingsService.Get")
	defer span.End()

	return s.settings(ctx)
}

// Update replaces every editable field. expected is the If-Match version.
func (s *SettingsService) Update(ctx context.Context, in domain.CompanySettings, expected *int) (*domain.CompanySettings, error) {
	ctx, span := settingsTracer.Start(ctx, "SettingsService.Update")
	defer span.End()
	defer s.observe("SettingsService.Update", time.Now())

	if _, err := s.settings(ctx); err != nil {
		return nil, err
	}
	now := s.now()
	updated, err := mutate(ctx, &s.core, s.repos.Settings, domain.KindSettings, SettingsID, expected, func(cs *domain.CompanySettings) error {
		return cs.Replace(in, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("company settings updated",
		zap.Float64("tax_rate", updated.TaxRate),
		zap.String("payment_terms", updated.PaymentTerms),
		zap.Int("version", updated.Version),
	)
	return updated, nil
}
