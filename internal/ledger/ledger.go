// Package ledger owns loan records and their state transitions. A loan is
// created open, may be renewed while open and not overdue, and ends
// returned. Every operation runs as one transaction: the loan row and the
// book's lendable flag either both change or neither does.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/biblioteca/services/loans/internal/catalog"
	"github.com/biblioteca/services/loans/internal/db"
	"github.com/biblioteca/services/loans/internal/fine"
	"github.com/biblioteca/services/loans/internal/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultLoanDays is the duration callers use when staff does not pick one
	DefaultLoanDays = 14

	// MinLoanDays and MaxLoanDays bound loan and renewal durations
	MinLoanDays = 1
	MaxLoanDays = 30

	// MaxOpenLoans is the number of loans a reader may hold at once
	MaxOpenLoans = 3

	// MaxRenewals is the number of times a single loan may be renewed
	MaxRenewals = 2
)

const defaultLockTimeout = 5 * time.Second

// EventPublisher receives loan lifecycle notifications after a
// transaction commits. Publishing is best effort; failures are logged,
// never rolled back into the ledger.
type EventPublisher interface {
	PublishLoanCreated(ctx context.Context, loan *db.Loan) error
	PublishLoanRenewed(ctx context.Context, loan *db.Loan) error
	PublishLoanReturned(ctx context.Context, loan *db.Loan) error
}

// Ledger coordinates loan state transitions against the database
type Ledger struct {
	db          *db.DB
	coord       *Coordinator
	log         *zap.Logger
	publisher   EventPublisher
	metrics     *metrics.LoanMetrics
	lockTimeout time.Duration
	now         func() time.Time
}

// Option configures a Ledger
type Option func(*Ledger)

// WithPublisher attaches an event publisher for loan lifecycle events
func WithPublisher(p EventPublisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

// WithMetrics attaches operation counters
func WithMetrics(m *metrics.LoanMetrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithLockTimeout bounds how long an operation may wait on storage before
// failing with ErrConcurrencyTimeout
func WithLockTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.lockTimeout = d }
}

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a new loan ledger
func NewLedger(database *db.DB, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		db:          database,
		coord:       NewCoordinator(logger),
		log:         logger,
		lockTimeout: defaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Coordinator exposes the availability coordinator, e.g. for health and
// reporting callers that need a consistent snapshot.
func (l *Ledger) Coordinator() *Coordinator {
	return l.coord
}

// CreateLoanParams carries the input for CreateLoan. EmployeeID
// identifies the already-authorized staff member issuing the loan.
type CreateLoanParams struct {
	BookID       string
	ReaderID     string
	EmployeeID   string
	DurationDays int
}

// CreateLoan lends a book to a reader. All preconditions are checked in
// one transaction: the book must be reservable, the reader active with
// fewer than MaxOpenLoans open loans and none of them overdue. Any
// failure rolls back the reservation along with everything else.
func (l *Ledger) CreateLoan(ctx context.Context, p CreateLoanParams) (*db.Loan, error) {
	loan, err := l.createLoan(ctx, p)
	l.observe("create", err)
	if err != nil {
		return nil, err
	}

	l.log.Info("Loan created",
		zap.String("loan_id", loan.ID),
		zap.String("book_id", loan.BookID),
		zap.String("reader_id", loan.ReaderID),
		zap.Time("due_at", loan.DueAt),
	)
	l.publish(ctx, loan, func(pub EventPublisher) error {
		return pub.PublishLoanCreated(ctx, loan)
	})
	return loan, nil
}

func (l *Ledger) createLoan(ctx context.Context, p CreateLoanParams) (*db.Loan, error) {
	if p.DurationDays < MinLoanDays || p.DurationDays > MaxLoanDays {
		return nil, ErrInvalidDuration
	}

	ctx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()

	now := l.now()
	today := civilDate(now)

	var loan *db.Loan
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reserved, err := l.coord.TryReserve(tx, p.BookID)
		if err != nil {
			return err
		}
		if !reserved {
			return ErrBookUnavailable
		}

		reader, err := l.coord.LockReader(tx, p.ReaderID)
		if err != nil {
			return err
		}
		if !reader.Active {
			return ErrReaderInactive
		}

		open, hasOverdue, err := l.coord.CountOpenLoans(tx, p.ReaderID, today)
		if err != nil {
			return err
		}
		if hasOverdue {
			return ErrReaderHasOverdue
		}
		if open >= MaxOpenLoans {
			return ErrLoanLimitExceeded
		}

		var employee db.Employee
		if err := tx.Where("id = ?", p.EmployeeID).First(&employee).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("employee %s: %w", p.EmployeeID, catalog.ErrEmployeeNotFound)
			}
			return fmt.Errorf("failed to load employee: %w", err)
		}

		loan = &db.Loan{
			BookID:       p.BookID,
			ReaderID:     p.ReaderID,
			IssuedByID:   &employee.ID,
			IssuedAt:     now,
			DueAt:        today.AddDate(0, 0, p.DurationDays),
			FineAmount:   decimal.Zero,
			RenewalCount: 0,
		}
		return tx.Create(loan).Error
	})
	if err != nil {
		return nil, l.translate(err)
	}
	return loan, nil
}

// RenewLoan extends an open, non-overdue loan by extraDays. A loan may be
// renewed at most MaxRenewals times.
func (l *Ledger) RenewLoan(ctx context.Context, loanID string, extraDays int) (*db.Loan, error) {
	loan, err := l.renewLoan(ctx, loanID, extraDays)
	l.observe("renew", err)
	if err != nil {
		return nil, err
	}

	l.log.Info("Loan renewed",
		zap.String("loan_id", loan.ID),
		zap.Time("due_at", loan.DueAt),
		zap.Int("renewal_count", loan.RenewalCount),
	)
	l.publish(ctx, loan, func(pub EventPublisher) error {
		return pub.PublishLoanRenewed(ctx, loan)
	})
	return loan, nil
}

func (l *Ledger) renewLoan(ctx context.Context, loanID string, extraDays int) (*db.Loan, error) {
	if extraDays < MinLoanDays || extraDays > MaxLoanDays {
		return nil, ErrInvalidDuration
	}

	ctx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()

	today := civilDate(l.now())

	var loan *db.Loan
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		loan, err = l.lockLoan(tx, loanID)
		if err != nil {
			return err
		}
		if !loan.Open() {
			return ErrAlreadyReturned
		}
		if loan.OverdueAt(today) {
			return ErrOverdueNotRenewable
		}
		if loan.RenewalCount >= MaxRenewals {
			return ErrRenewalLimitReached
		}

		loan.DueAt = civilDate(loan.DueAt).AddDate(0, 0, extraDays)
		loan.RenewalCount++
		return tx.Model(loan).Updates(map[string]interface{}{
			"due_at":        loan.DueAt,
			"renewal_count": loan.RenewalCount,
		}).Error
	})
	if err != nil {
		return nil, l.translate(err)
	}
	return loan, nil
}

// ReturnLoan closes an open loan on returnDate, computes the final fine
// and makes the book lendable again.
func (l *Ledger) ReturnLoan(ctx context.Context, loanID string, returnDate time.Time) (*db.Loan, error) {
	loan, err := l.returnLoan(ctx, loanID, returnDate)
	l.observe("return", err)
	if err != nil {
		return nil, err
	}

	l.log.Info("Loan returned",
		zap.String("loan_id", loan.ID),
		zap.String("book_id", loan.BookID),
		zap.String("fine_amount", loan.FineAmount.StringFixed(2)),
	)
	l.publish(ctx, loan, func(pub EventPublisher) error {
		return pub.PublishLoanReturned(ctx, loan)
	})
	return loan, nil
}

func (l *Ledger) returnLoan(ctx context.Context, loanID string, returnDate time.Time) (*db.Loan, error) {
	ctx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()

	returned := civilDate(returnDate)

	var loan *db.Loan
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		loan, err = l.lockLoan(tx, loanID)
		if err != nil {
			return err
		}
		if !loan.Open() {
			return ErrAlreadyReturned
		}
		if returned.Before(civilDate(loan.IssuedAt)) {
			return ErrInvalidReturnDate
		}

		loan.ReturnedAt = &returned
		loan.FineAmount = fine.Compute(loan.DueAt, returned)
		if err := tx.Model(loan).Updates(map[string]interface{}{
			"returned_at": loan.ReturnedAt,
			"fine_amount": loan.FineAmount,
		}).Error; err != nil {
			return fmt.Errorf("failed to close loan: %w", err)
		}

		return l.coord.Release(tx, loan.BookID)
	})
	if err != nil {
		return nil, l.translate(err)
	}
	return loan, nil
}

// GetLoan retrieves a loan by ID
func (l *Ledger) GetLoan(ctx context.Context, loanID string) (*db.Loan, error) {
	var loan db.Loan
	err := l.db.WithContext(ctx).Where("id = ?", loanID).First(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return &loan, nil
}

// lockLoan loads a loan and takes its row lock so renewals and returns of
// the same loan are strictly serialized.
func (l *Ledger) lockLoan(tx *gorm.DB, loanID string) (*db.Loan, error) {
	query := tx
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var loan db.Loan
	if err := query.Where("id = ?", loanID).First(&loan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to lock loan: %w", err)
	}
	return &loan, nil
}

// translate maps storage timeouts onto the transient error the caller is
// allowed to retry.
func (l *Ledger) translate(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrConcurrencyTimeout
	}
	return err
}

func (l *Ledger) observe(operation string, err error) {
	if l.metrics == nil {
		return
	}
	l.metrics.ObserveOperation(operation, err)
}

func (l *Ledger) publish(ctx context.Context, loan *db.Loan, fn func(EventPublisher) error) {
	if l.publisher == nil {
		return
	}
	if err := fn(l.publisher); err != nil {
		l.log.Warn("Failed to publish loan event",
			zap.String("loan_id", loan.ID),
			zap.Error(err),
		)
	}
}

func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
