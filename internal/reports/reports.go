// Package reports provides read-only aggregations over the loan ledger.
// Nothing here mutates state or enforces invariants.
package reports

import (
	"context"
	"time"

	"github.com/biblioteca/services/loans/internal/db"
	"github.com/biblioteca/services/loans/internal/fine"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reports runs aggregation queries over the ledger
type Reports struct {
	db  *db.DB
	log *zap.Logger
	now func() time.Time
}

// NewReports creates a new reporting view
func NewReports(database *db.DB, logger *zap.Logger) *Reports {
	return &Reports{
		db:  database,
		log: logger,
		now: time.Now,
	}
}

// WithClock overrides the time source, used by tests
func (r *Reports) WithClock(now func() time.Time) *Reports {
	r.now = now
	return r
}

// OverdueLoan is an open loan past its due date with its projected fine
type OverdueLoan struct {
	Loan          db.Loan
	DaysLate      int
	ProjectedFine decimal.Decimal
}

// OverdueLoans lists open loans whose due date has passed, oldest first
func (r *Reports) OverdueLoans(ctx context.Context) ([]OverdueLoan, error) {
	today := civilDate(r.now())

	var loans []db.Loan
	err := r.db.WithContext(ctx).
		Where("returned_at IS NULL AND due_at < ?", today).
		Order("due_at ASC").
		Find(&loans).Error
	if err != nil {
		r.log.Error("Failed to list overdue loans", zap.Error(err))
		return nil, err
	}

	overdue := make([]OverdueLoan, 0, len(loans))
	for _, loan := range loans {
		overdue = append(overdue, OverdueLoan{
			Loan:          loan,
			DaysLate:      fine.DaysLate(loan.DueAt, today),
			ProjectedFine: fine.Projected(loan.DueAt, today),
		})
	}
	return overdue, nil
}

// PopularBook pairs a book with how often it has been lent
type PopularBook struct {
	Book      db.Book
	LoanCount int64
}

// PopularBooks returns the most-lent books, busiest first
func (r *Reports) PopularBooks(ctx context.Context, limit int) ([]PopularBook, error) {
	type bookCount struct {
		BookID    string
		LoanCount int64
	}

	var counts []bookCount
	err := r.db.WithContext(ctx).Model(&db.Loan{}).
		Select("book_id, COUNT(*) AS loan_count").
		Group("book_id").
		Order("loan_count DESC").
		Limit(limit).
		Scan(&counts).Error
	if err != nil {
		r.log.Error("Failed to count loans per book", zap.Error(err))
		return nil, err
	}

	popular := make([]PopularBook, 0, len(counts))
	for _, c := range counts {
		var book db.Book
		if err := r.db.WithContext(ctx).Where("id = ?", c.BookID).First(&book).Error; err != nil {
			r.log.Error("Failed to load book for report", zap.String("book_id", c.BookID), zap.Error(err))
			return nil, err
		}
		popular = append(popular, PopularBook{Book: book, LoanCount: c.LoanCount})
	}
	return popular, nil
}

// Stats holds the dashboard counters
type Stats struct {
	TotalBooks    int64
	ActiveReaders int64
	OpenLoans     int64
	OverdueLoans  int64
}

// DashboardStats computes the headline numbers for the dashboard
func (r *Reports) DashboardStats(ctx context.Context) (*Stats, error) {
	today := civilDate(r.now())
	stats := &Stats{}

	q := r.db.WithContext(ctx)
	if err := q.Model(&db.Book{}).Count(&stats.TotalBooks).Error; err != nil {
		return nil, err
	}
	if err := q.Model(&db.Reader{}).Where("active = ?", true).Count(&stats.ActiveReaders).Error; err != nil {
		return nil, err
	}
	if err := q.Model(&db.Loan{}).Where("returned_at IS NULL").Count(&stats.OpenLoans).Error; err != nil {
		return nil, err
	}
	if err := q.Model(&db.Loan{}).Where("returned_at IS NULL AND due_at < ?", today).Count(&stats.OverdueLoans).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
