package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/biblioteca/services/loans/internal/db"
	"github.com/biblioteca/services/loans/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) (*db.DB, *zap.Logger) {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	database := &db.DB{DB: gormDB}
	require.NoError(t, db.RunMigrations(database))

	return database, logger.NewLogger("test", "error")
}

func TestCreateBook(t *testing.T) {
	database, log := setupTestDB(t)
	repo := NewBookRepository(database, log)

	ctx := context.Background()

	book := &db.Book{
		Title:    "Dom Casmurro",
		Author:   "Machado de Assis",
		Year:     1899,
		Category: "fiction",
		ISBN:     "978-85-359-0277-5",
	}

	err := repo.CreateBook(ctx, book)
	require.NoError(t, err)
	assert.True(t, book.Lendable, "new books start lendable")

	retrieved, err := repo.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dom Casmurro", retrieved.Title)
	assert.Equal(t, "9788535902775", retrieved.ISBN, "isbn is stored without separators")
}

func TestCreateBookInvalidISBN(t *testing.T) {
	database, log := setupTestDB(t)
	repo := NewBookRepository(database, log)

	for _, isbn := range []string{"123", "978853590277", "97885359027755", "ABCDEFGHIJ"} {
		err := repo.CreateBook(context.Background(), &db.Book{
			Title:  "Bad ISBN",
			Author: "Anon",
			Year:   2000,
			ISBN:   isbn,
		})
		assert.ErrorIs(t, err, ErrInvalidISBN, "isbn %q", isbn)
	}
}

func TestCreateBookISBN10WithCheckDigitX(t *testing.T) {
	database, log := setupTestDB(t)
	repo := NewBookRepository(database, log)

	err := repo.CreateBook(context.Background(), &db.Book{
		Title:  "ISBN-10",
		Author: "Anon",
		Year:   2000,
		ISBN:   "0-8044-2957-X",
	})
	assert.NoError(t, err)
}

func TestCreateBookDuplicateISBN(t *testing.T) {
	database, log := setupTestDB(t)
	repo := NewBookRepository(database, log)

	ctx := context.Background()
	first := &db.Book{Title: "First", Author: "Anon", Year: 2000, ISBN: "9788535902775"}
	require.NoError(t, repo.CreateBook(ctx, first))

	// Same ISBN with separators still collides
	err := repo.CreateBook(ctx, &db.Book{Title: "Second", Author: "Anon", Year: 2001, ISBN: "978-85-359-0277-5"})
	assert.ErrorIs(t, err, ErrDuplicateISBN)

	// Books without an ISBN never collide
	require.NoError(t, repo.CreateBook(ctx, &db.Book{Title: "Third", Author: "Anon", Year: 2002}))
	require.NoError(t, repo.CreateBook(ctx, &db.Book{Title: "Fourth", Author: "Anon", Year: 2003}))
}

func TestCreateBookInvalidYear(t *testing.T) {
	database, log := setupTestDB(t)
	repo := NewBookRepository(database, log)

	future := time.Now().Year() + 1
	for _, year := range []int{999, 0, -50, future} {
		err := repo.CreateBook(context.Background(), &db.Book{
			Title:  "Bad Year",
			Author: "Anon",
			Year:   year,
		})
		assert.ErrorIs(t, err, ErrInvalidYear, "year %d", year)
	}
}

func TestGetBookNotFound(t *testing.T) {
	database, log := setupTestDB(t)
	repo := NewBookRepository(database, log)

	_, err := repo.GetBook(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestListBooks(t *testing.T) {
	database, log := setupTestDB(t)
	repo := NewBookRepository(database, log)

	ctx := context.Background()
	books := []*db.Book{
		{Title: "A", Author: "Author One", Year: 2001, Category: "fiction"},
		{Title: "B", Author: "Author Two", Year: 2002, Category: "fiction"},
		{Title: "C", Author: "Author One", Year: 2003, Category: "science"},
	}
	for _, book := range books {
		require.NoError(t, repo.CreateBook(ctx, book))
	}

	// Mark one book as out on loan
	require.NoError(t, database.Model(&db.Book{}).Where("id = ?", books[2].ID).Update("lendable", false).Error)

	result, total, err := repo.ListBooks(ctx, 1, 10, "", "", false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, result, 3)

	_, total, err = repo.ListBooks(ctx, 1, 10, "fiction", "", false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, total, err = repo.ListBooks(ctx, 1, 10, "", "Author One", false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, total, err = repo.ListBooks(ctx, 1, 10, "", "", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestUpdateBook(t *testing.T) {
	database, log := setupTestDB(t)
	repo := NewBookRepository(database, log)

	ctx := context.Background()
	book := &db.Book{Title: "Original", Author: "Anon", Year: 2000}
	require.NoError(t, repo.CreateBook(ctx, book))

	book.Title = "Updated"
	book.Year = 2001
	require.NoError(t, repo.UpdateBook(ctx, book))

	updated, err := repo.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Updated", updated.Title)
	assert.Equal(t, 2001, updated.Year)
	assert.True(t, updated.Lendable, "updates never touch the lendable flag")
}

func TestDeleteBook(t *testing.T) {
	database, log := setupTestDB(t)
	repo := NewBookRepository(database, log)

	ctx := context.Background()
	book := &db.Book{Title: "Doomed", Author: "Anon", Year: 2000}
	require.NoError(t, repo.CreateBook(ctx, book))

	require.NoError(t, repo.DeleteBook(ctx, book.ID))

	_, err := repo.GetBook(ctx, book.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)

	err = repo.DeleteBook(ctx, book.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestCreateReader(t *testing.T) {
	database, log := setupTestDB(t)
	repo := NewReaderRepository(database, log)

	reader := &db.Reader{
		Account: db.Account{
			FirstName: "Ana",
			LastName:  "Silva",
			Email:     "ana@example.com",
		},
		BirthDate: time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, repo.CreateReader(context.Background(), reader))
	assert.True(t, reader.Active)

	retrieved, err := repo.GetReader(context.Background(), reader.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", retrieved.Account.FirstName)
	assert.Equal(t, "ana@example.com", retrieved.Account.Email)
}

func TestCreateReaderTooYoung(t *testing.T) {
	database, log := setupTestDB(t)
	repo := NewReaderRepository(database, log)

	reader := &db.Reader{
		Account: db.Account{
			FirstName: "Kid",
			LastName:  "Silva",
			Email:     "kid@example.com",
		},
		BirthDate: time.Now().AddDate(-9, 0, 0),
	}

	err := repo.CreateReader(context.Background(), reader)
	assert.ErrorIs(t, err, ErrReaderTooYoung)
}

func TestCreateReaderInvalidBirthDate(t *testing.T) {
	database, log := setupTestDB(t)
	repo := NewReaderRepository(database, log)

	for _, birth := range []time.Time{
		time.Now().AddDate(1, 0, 0),    // future
		time.Now().AddDate(-130, 0, 0), // implausibly old
	} {
		err := repo.CreateReader(context.Background(), &db.Reader{
			Account: db.Account{
				FirstName: "Odd",
				LastName:  "Birth",
				Email:     "odd@example.com",
			},
			BirthDate: birth,
		})
		assert.ErrorIs(t, err, ErrInvalidBirthDate, "birth date %s", birth)
	}
}

func TestCreateReaderDuplicateEmail(t *testing.T) {
	database, log := setupTestDB(t)
	repo := NewReaderRepository(database, log)

	ctx := context.Background()
	birth := time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC)

	first := &db.Reader{
		Account:   db.Account{FirstName: "Ana", LastName: "Silva", Email: "same@example.com"},
		BirthDate: birth,
	}
	require.NoError(t, repo.CreateReader(ctx, first))

	second := &db.Reader{
		Account:   db.Account{FirstName: "Bia", LastName: "Souza", Email: "same@example.com"},
		BirthDate: birth,
	}
	err := repo.CreateReader(ctx, second)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestDeactivateReader(t *testing.T) {
	database, log := setupTestDB(t)
	repo := NewReaderRepository(database, log)

	ctx := context.Background()
	reader := &db.Reader{
		Account:   db.Account{FirstName: "Ana", LastName: "Silva", Email: "ana2@example.com"},
		BirthDate: time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.CreateReader(ctx, reader))

	require.NoError(t, repo.DeactivateReader(ctx, reader.ID))

	retrieved, err := repo.GetReader(ctx, reader.ID)
	require.NoError(t, err)
	assert.False(t, retrieved.Active)

	active, err := repo.ListReaders(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCreateAndDeleteEmployee(t *testing.T) {
	database, log := setupTestDB(t)
	repo := NewEmployeeRepository(database, log)

	ctx := context.Background()
	employee := &db.Employee{
		Account: db.Account{FirstName: "Carlos", LastName: "Lima", Email: "carlos@example.com"},
		Role:    "librarian",
	}
	require.NoError(t, repo.CreateEmployee(ctx, employee))

	retrieved, err := repo.GetEmployee(ctx, employee.ID)
	require.NoError(t, err)
	assert.Equal(t, "librarian", retrieved.Role)

	require.NoError(t, repo.DeleteEmployee(ctx, employee.ID))

	_, err = repo.GetEmployee(ctx, employee.ID)
	assert.ErrorIs(t, err, ErrEmployeeNotFound)
}
