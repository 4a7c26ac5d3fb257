package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/biblioteca/services/loans/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrReaderNotFound is returned when a reader is not found
	ErrReaderNotFound = errors.New("reader not found")

	// ErrReaderTooYoung is returned when a reader is under the minimum age
	ErrReaderTooYoung = errors.New("reader must be at least 10 years old")

	// ErrInvalidBirthDate is returned when a birth date is in the future or
	// implies an implausible age
	ErrInvalidBirthDate = errors.New("invalid birth date")

	// ErrDuplicateEmail is returned when an account email is already taken
	ErrDuplicateEmail = errors.New("email already registered")
)

// ReaderRepository handles library member records
type ReaderRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewReaderRepository creates a new reader repository
func NewReaderRepository(database *db.DB, logger *zap.Logger) *ReaderRepository {
	return &ReaderRepository{
		db:  database,
		log: logger,
	}
}

// CreateReader registers a reader together with its account record.
// Registration requires an age of at least 10 years.
func (r *ReaderRepository) CreateReader(ctx context.Context, reader *db.Reader) error {
	now := time.Now()
	age := ageInYears(reader.BirthDate, now)
	if reader.BirthDate.After(now) || age > maxReaderAgeYears {
		return ErrInvalidBirthDate
	}
	if age < minReaderAgeYears {
		return ErrReaderTooYoung
	}

	if err := r.checkEmailFree(ctx, reader.Account.Email); err != nil {
		return err
	}

	reader.Active = true
	reader.Account.Active = true
	if err := r.db.WithContext(ctx).Create(reader).Error; err != nil {
		r.log.Error("Failed to create reader", zap.String("email", reader.Account.Email), zap.Error(err))
		return err
	}

	r.log.Info("Reader created", zap.String("reader_id", reader.ID))
	return nil
}

// GetReader retrieves a reader with its account by ID
func (r *ReaderRepository) GetReader(ctx context.Context, id string) (*db.Reader, error) {
	var reader db.Reader
	err := r.db.WithContext(ctx).Preload("Account").Where("id = ?", id).First(&reader).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReaderNotFound
		}
		r.log.Error("Failed to get reader", zap.String("reader_id", id), zap.Error(err))
		return nil, err
	}

	return &reader, nil
}

// ListReaders returns readers, optionally only active ones
func (r *ReaderRepository) ListReaders(ctx context.Context, activeOnly bool) ([]*db.Reader, error) {
	query := r.db.WithContext(ctx).Preload("Account").Model(&db.Reader{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var readers []*db.Reader
	if err := query.Order("created_at DESC").Find(&readers).Error; err != nil {
		r.log.Error("Failed to list readers", zap.Error(err))
		return nil, err
	}
	return readers, nil
}

// DeactivateReader soft deletes a reader by clearing the active flag.
// Existing loans are untouched; the ledger refuses new ones.
func (r *ReaderRepository) DeactivateReader(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&db.Reader{}).Where("id = ?", id).Update("active", false)
	if result.Error != nil {
		r.log.Error("Failed to deactivate reader", zap.String("reader_id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReaderNotFound
	}

	r.log.Info("Reader deactivated", zap.String("reader_id", id))
	return nil
}

func (r *ReaderRepository) checkEmailFree(ctx context.Context, email string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&db.Account{}).Where("email = ?", email).Count(&count).Error; err != nil {
		r.log.Error("Failed to check email uniqueness", zap.String("email", email), zap.Error(err))
		return err
	}
	if count > 0 {
		return ErrDuplicateEmail
	}
	return nil
}
