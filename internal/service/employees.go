package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/observability"
	"github.com/treeshop/treeshop-ops-go/internal/port"
	"github.com/treeshop/treeshop-ops-go/internal/pricing"
)

var employeeTracer = otel.Tracer("service/employees")

// EmployeeRequest hires an employee.
type EmployeeRequest struct {
	domain.EmployeeDetails
	Wage pricing.WageInput `json:"compensation"`
}

// EmployeeFilter narrows List. Zero value matches everything.
type EmployeeFilter struct {
	Status *domain.EmploymentStatus
	Track  *domain.CareerTrack
}

func (f EmployeeFilter) match(e *domain.Employee) bool {
	if f.Status != nil && e.Status != *f.Status {
		return false
	}
	if f.Track != nil && !e.HasCrossTraining(*f.Track) {
		return false
	}
	return true
}

// EmployeeService manages crew records and prices their compensation with
// the configured multiplier table.
type EmployeeService struct {
	core
	table pricing.CompensationTable
}

func NewEmployeeService(repos *port.Repositories, table pricing.CompensationTable, metrics *observability.Metrics, logger *zap.Logger) *EmployeeService {
	return &EmployeeService{core: newCore(repos, metrics, logger), table: table}
}

func (s *EmployeeService) Create(ctx context.Context, req EmployeeRequest) (*domain.Employee, error) {
	ctx, span := employeeTracer.Start(ctx, "EmployeeService.Create")
	defer span.End()

	e, err := domain.NewEmployee(req.EmployeeDetails, req.Wage, s.table, s.now())
	if err != nil {
		s.countWageError(err)
		return nil, err
	}
	if err := create(ctx, &s.core, s.repos.Employees, domain.KindEmployee, e); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("employee.id", e.ID.String()))
	s.logger.Info("employee hired",
		zap.String("employee_id", e.ID.String()),
		zap.String("code", e.EmployeeCode()),
		zap.Float64("true_business_cost", e.Compensation().TrueBusinessCost),
	)
	return e, nil
}

func (s *EmployeeService) Get(ctx context.Context, id uuid.UUID) (*domain.Employee, error) {
	ctx, span := employeeTracer.Start(ctx, "EmployeeService.Get")
	defer span.End()

	return s.repos.Employees.Get(ctx, id)
}

func (s *EmployeeService) List(ctx context.Context, f EmployeeFilter) ([]*domain.Employee, error) {
	ctx, span := employeeTracer.Start(ctx, "EmployeeService.List")
	defer span.End()

	return s.repos.Employees.List(ctx, f.match)
}

func (s *EmployeeService) UpdateDetails(ctx context.Context, id uuid.UUID, details domain.EmployeeDetails, expected *int) (*domain.Employee, error) {
	ctx, span := employeeTracer.Start(ctx, "EmployeeService.UpdateDetails")
	defer span.End()

	now := s.now()
	return mutate(ctx, &s.core, s.repos.Employees, domain.KindEmployee, id, expected, func(e *domain.Employee) error {
		return e.UpdateDetails(details, now)
	})
}

// SetCompensation reprices the employee from new wage inputs.
func (s *EmployeeService) SetCompensation(ctx context.Context, id uuid.UUID, wage pricing.WageInput, expected *int) (*domain.Employee, error) {
	ctx, span := employeeTracer.Start(ctx, "EmployeeService.SetCompensation")
	defer span.End()
	defer s.observe("EmployeeService.SetCompensation", time.Now())

	now := s.now()
	e, err := mutate(ctx, &s.core, s.repos.Employees, domain.KindEmployee, id, expected, func(e *domain.Employee) error {
		return e.SetCompensation(wage, s.table, now)
	})
	if err != nil {
		s.countWageError(err)
		return nil, err
	}
	s.logger.Info("compensation updated",
		zap.String("employee_id", id.String()),
		zap.String("code", e.EmployeeCode()),
		zap.Float64("hourly_wage", e.Compensation().HourlyWage),
	)
	return e, nil
}

func (s *EmployeeService) Terminate(ctx context.Context, id uuid.UUID, date *time.Time, reason string, expected *int) (*domain.Employee, error) {
	ctx, span := employeeTracer.Start(ctx, "EmployeeService.Terminate")
	defer span.End()

	now := s.now()
	effective := now
	if date != nil {
		effective = date.UTC()
	}
	e, err := mutate(ctx, &s.core, s.repos.Employees, domain.KindEmployee, id, expected, func(e *domain.Employee) error {
		return e.Terminate(effective, reason, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("employee terminated",
		zap.String("employee_id", id.String()),
		zap.Time("date", effective),
	)
	return e, nil
}

// RepriceAll recomputes every employee whose stored compensation differs
// from what the current table gives. It runs at startup so a changed
// TIER_MULTIPLIERS or BURDEN_MULTIPLIERS takes effect.
func (s *EmployeeService) RepriceAll(ctx context.Context) (int, error) {
	ctx, span := employeeTracer.Start(ctx, "EmployeeService.RepriceAll")
	defer span.End()

	employees, err := s.repos.Employees.List(ctx, nil)
	if err != nil {
		return 0, err
	}
	repriced := 0
	for _, e := range employees {
		want, err := s.table.Calculate(e.WageInput())
		if err != nil || want == e.Compensation() {
			continue
		}
		now := s.now()
		_, err = touchWithRetry(ctx, &s.core, s.repos.Employees, domain.KindEmployee, e.ID, func(e *domain.Employee) error {
			return e.Reprice(s.table, now)
		})
		if err != nil {
			s.logger.Warn("employee not repriced", zap.String("employee_id", e.ID.String()), zap.Error(err))
			continue
		}
		repriced++
	}
	span.SetAttributes(attribute.Int("employees.repriced", repriced))
	return repriced, nil
}

func (s *EmployeeService) countWageError(err error) {
	var invalid *domain.ErrValidation
	if errors.As(err, &invalid) {
		s.metrics.IncrCalculationError("wage")
	}
}
