package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/biblioteca/services/loans/internal/catalog"
	"github.com/biblioteca/services/loans/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Coordinator is the single authority over a book's lendable flag and a
// reader's open-loan state. Every method operates on the caller's
// transaction handle so the check and the write that depends on it share
// one atomic unit.
type Coordinator struct {
	log *zap.Logger
}

// NewCoordinator creates a new availability coordinator
func NewCoordinator(logger *zap.Logger) *Coordinator {
	return &Coordinator{log: logger}
}

// TryReserve atomically flips a lendable book to not-lendable. It returns
// ok=false, without error, when the book is already reserved. The
// conditional UPDATE is a compare-and-set: two concurrent callers can
// never both see one affected row.
func (c *Coordinator) TryReserve(tx *gorm.DB, bookID string) (bool, error) {
	result := tx.Model(&db.Book{}).
		Where("id = ? AND lendable = ?", bookID, true).
		Update("lendable", false)
	if result.Error != nil {
		return false, fmt.Errorf("failed to reserve book: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	// Zero rows means either a reserved book or a missing one.
	var count int64
	if err := tx.Model(&db.Book{}).Where("id = ?", bookID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up book: %w", err)
	}
	if count == 0 {
		return false, fmt.Errorf("book %s: %w", bookID, catalog.ErrBookNotFound)
	}
	return false, nil
}

// Release makes a book lendable again. Releasing an already-lendable book
// is a no-op, not an error.
func (c *Coordinator) Release(tx *gorm.DB, bookID string) error {
	result := tx.Model(&db.Book{}).Where("id = ?", bookID).Update("lendable", true)
	if result.Error != nil {
		return fmt.Errorf("failed to release book: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("book %s: %w", bookID, catalog.ErrBookNotFound)
	}
	return nil
}

// LockReader loads a reader and takes its row lock, serializing all
// loan-granting decisions for that reader within the transaction. SQLite
// has no FOR UPDATE but allows only one writer, which gives the same
// guarantee.
func (c *Coordinator) LockReader(tx *gorm.DB, readerID string) (*db.Reader, error) {
	query := tx
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var reader db.Reader
	if err := query.Where("id = ?", readerID).First(&reader).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("reader %s: %w", readerID, catalog.ErrReaderNotFound)
		}
		return nil, fmt.Errorf("failed to lock reader: %w", err)
	}
	return &reader, nil
}

// CountOpenLoans returns the reader's open-loan count and whether any of
// them is overdue as of the given date. Call LockReader first so the
// snapshot cannot race a concurrent insert.
func (c *Coordinator) CountOpenLoans(tx *gorm.DB, readerID string, asOf time.Time) (int, bool, error) {
	var open int64
	err := tx.Model(&db.Loan{}).
		Where("reader_id = ? AND returned_at IS NULL", readerID).
		Count(&open).Error
	if err != nil {
		return 0, false, fmt.Errorf("failed to count open loans: %w", err)
	}

	day := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	var overdue int64
	err = tx.Model(&db.Loan{}).
		Where("reader_id = ? AND returned_at IS NULL AND due_at < ?", readerID, day).
		Count(&overdue).Error
	if err != nil {
		return 0, false, fmt.Errorf("failed to count overdue loans: %w", err)
	}

	return int(open), overdue > 0, nil
}
