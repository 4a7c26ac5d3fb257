package ledger

import "errors"

// Business precondition violations. These are expected rejections: they
// are surfaced verbatim to the caller and never retried automatically.
var (
	// ErrBookUnavailable is returned when the book is already out on loan
	ErrBookUnavailable = errors.New("book is not available for lending")

	// ErrReaderInactive is returned when the reader's membership is inactive
	ErrReaderInactive = errors.New("reader is inactive")

	// ErrLoanLimitExceeded is returned when the reader already has the
	// maximum number of open loans
	ErrLoanLimitExceeded = errors.New("reader has reached the open loan limit")

	// ErrReaderHasOverdue is returned when the reader holds an overdue loan
	ErrReaderHasOverdue = errors.New("reader has an overdue loan")

	// ErrAlreadyReturned is returned when the loan was already closed
	ErrAlreadyReturned = errors.New("loan has already been returned")

	// ErrOverdueNotRenewable is returned when renewing an overdue loan
	ErrOverdueNotRenewable = errors.New("overdue loan cannot be renewed")

	// ErrRenewalLimitReached is returned when the loan was already renewed
	// the maximum number of times
	ErrRenewalLimitReached = errors.New("loan has reached the renewal limit")

	// ErrInvalidDuration is returned when a loan or renewal duration is
	// outside the allowed range
	ErrInvalidDuration = errors.New("duration must be between 1 and 30 days")

	// ErrInvalidReturnDate is returned when a return date precedes the
	// loan's issue date
	ErrInvalidReturnDate = errors.New("return date precedes issue date")

	// ErrLoanNotFound is returned when a loan is not found
	ErrLoanNotFound = errors.New("loan not found")
)

// ErrConcurrencyTimeout is a transient error: the operation could not
// acquire the storage it needed within the configured timeout. Callers
// may retry with backoff.
var ErrConcurrencyTimeout = errors.New("timed out waiting for storage")
