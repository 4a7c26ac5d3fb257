package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/biblioteca/services/loans/internal/catalog"
	"github.com/biblioteca/services/loans/internal/db"
	"github.com/biblioteca/services/loans/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCoordinator(t *testing.T) (*Coordinator, *db.DB) {
	database := setupTestDB(t)
	return NewCoordinator(logger.NewLogger("test", "error")), database
}

func TestTryReserve(t *testing.T) {
	coord, database := setupCoordinator(t)
	book := seedBook(t, database)

	ok, err := coord.TryReserve(database.DB, book.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second reservation must lose without error
	ok, err = coord.TryReserve(database.DB, book.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTryReserveMissingBook(t *testing.T) {
	coord, database := setupCoordinator(t)

	_, err := coord.TryReserve(database.DB, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, catalog.ErrBookNotFound)
}

func TestReleaseIsIdempotent(t *testing.T) {
	coord, database := setupCoordinator(t)
	book := seedBook(t, database)

	ok, err := coord.TryReserve(database.DB, book.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, coord.Release(database.DB, book.ID))

	// Releasing an already-lendable book is a no-op
	require.NoError(t, coord.Release(database.DB, book.ID))

	var stored db.Book
	require.NoError(t, database.First(&stored, "id = ?", book.ID).Error)
	assert.True(t, stored.Lendable)
}

func TestReleaseMissingBook(t *testing.T) {
	coord, database := setupCoordinator(t)

	err := coord.Release(database.DB, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, catalog.ErrBookNotFound)
}

func TestLockReader(t *testing.T) {
	coord, database := setupCoordinator(t)
	reader := seedReader(t, database, true)

	locked, err := coord.LockReader(database.DB, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, reader.ID, locked.ID)
	assert.True(t, locked.Active)

	_, err = coord.LockReader(database.DB, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, catalog.ErrReaderNotFound)
}

func TestCountOpenLoans(t *testing.T) {
	coord, database := setupCoordinator(t)
	reader := seedReader(t, database, true)
	seedEmployee(t, database)
	today := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	open, hasOverdue, err := coord.CountOpenLoans(database.DB, reader.ID, today)
	require.NoError(t, err)
	assert.Equal(t, 0, open)
	assert.False(t, hasOverdue)

	// One open loan due in the future, one already returned
	okBook := seedBook(t, database)
	require.NoError(t, database.Create(&db.Loan{
		BookID:   okBook.ID,
		ReaderID: reader.ID,
		IssuedAt: today,
		DueAt:    today.AddDate(0, 0, 14),
	}).Error)

	returnedAt := today
	doneBook := seedBook(t, database)
	require.NoError(t, database.Create(&db.Loan{
		BookID:     doneBook.ID,
		ReaderID:   reader.ID,
		IssuedAt:   today.AddDate(0, 0, -20),
		DueAt:      today.AddDate(0, 0, -6),
		ReturnedAt: &returnedAt,
	}).Error)

	open, hasOverdue, err = coord.CountOpenLoans(database.DB, reader.ID, today)
	require.NoError(t, err)
	assert.Equal(t, 1, open)
	assert.False(t, hasOverdue)

	// An overdue open loan flips the flag
	lateBook := seedBook(t, database)
	require.NoError(t, database.Create(&db.Loan{
		BookID:   lateBook.ID,
		ReaderID: reader.ID,
		IssuedAt: today.AddDate(0, 0, -10),
		DueAt:    today.AddDate(0, 0, -1),
	}).Error)

	open, hasOverdue, err = coord.CountOpenLoans(database.DB, reader.ID, today)
	require.NoError(t, err)
	assert.Equal(t, 2, open)
	assert.True(t, hasOverdue)

	// A loan due exactly today is not overdue
	_, hasOverdue, err = coord.CountOpenLoans(database.DB, reader.ID, today.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.False(t, hasOverdue)

	_, hasOverdue, err = coord.CountOpenLoans(database.DB, reader.ID, today.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, hasOverdue)
}

func TestEmployeeDeletionKeepsLoanHistory(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "error")
	employees := catalog.NewEmployeeRepository(database, log)

	employee := seedEmployee(t, database)
	book := seedBook(t, database)
	reader := seedReader(t, database, true)

	clock := &testClock{now: time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)}
	l := NewLedger(database, log, WithClock(clock.Now))

	loan, err := l.CreateLoan(context.Background(), createParams(book, reader, employee))
	require.NoError(t, err)

	require.NoError(t, employees.DeleteEmployee(context.Background(), employee.ID))

	// The loan survives with a null issued-by reference
	stored, err := l.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.IssuedByID)
}
