package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/biblioteca/services/loans/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrEmployeeNotFound is returned when an employee is not found
var ErrEmployeeNotFound = errors.New("employee not found")

// EmployeeRepository handles staff records
type EmployeeRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(database *db.DB, logger *zap.Logger) *EmployeeRepository {
	return &EmployeeRepository{
		db:  database,
		log: logger,
	}
}

// CreateEmployee registers an employee together with its account record
func (r *EmployeeRepository) CreateEmployee(ctx context.Context, employee *db.Employee) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&db.Account{}).Where("email = ?", employee.Account.Email).Count(&count).Error; err != nil {
		r.log.Error("Failed to check email uniqueness", zap.String("email", employee.Account.Email), zap.Error(err))
		return err
	}
	if count > 0 {
		return ErrDuplicateEmail
	}

	employee.Active = true
	employee.Account.Active = true
	if err := r.db.WithContext(ctx).Create(employee).Error; err != nil {
		r.log.Error("Failed to create employee", zap.String("email", employee.Account.Email), zap.Error(err))
		return err
	}

	r.log.Info("Employee created", zap.String("employee_id", employee.ID), zap.String("role", employee.Role))
	return nil
}

// GetEmployee retrieves an employee with its account by ID
func (r *EmployeeRepository) GetEmployee(ctx context.Context, id string) (*db.Employee, error) {
	var employee db.Employee
	err := r.db.WithContext(ctx).Preload("Account").Where("id = ?", id).First(&employee).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEmployeeNotFound
		}
		r.log.Error("Failed to get employee", zap.String("employee_id", id), zap.Error(err))
		return nil, err
	}

	return &employee, nil
}

// DeleteEmployee removes an employee. Loans the employee issued stay in
// the ledger with a null issued-by reference, so history is preserved.
func (r *EmployeeRepository) DeleteEmployee(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The set-null is done explicitly because SQLite does not enforce
		// foreign key actions by default.
		if err := tx.Model(&db.Loan{}).Where("issued_by_id = ?", id).Update("issued_by_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach loans from employee: %w", err)
		}

		result := tx.Where("id = ?", id).Delete(&db.Employee{})
		if result.Error != nil {
			r.log.Error("Failed to delete employee", zap.String("employee_id", id), zap.Error(result.Error))
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrEmployeeNotFound
		}

		r.log.Info("Employee deleted", zap.String("employee_id", id))
		return nil
	})
}
