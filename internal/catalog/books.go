package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/biblioteca/services/loans/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrBookNotFound is returned when a book is not found
	ErrBookNotFound = errors.New("book not found")

	// ErrDuplicateISBN is returned when another book already carries the ISBN
	ErrDuplicateISBN = errors.New("isbn already registered")

	// ErrInvalidISBN is returned when an ISBN is not a valid ISBN-10/ISBN-13
	ErrInvalidISBN = errors.New("invalid isbn")

	// ErrInvalidYear is returned when a book's publication year is implausible
	ErrInvalidYear = errors.New("invalid publication year")
)

// BookRepository handles catalog book records. It never touches the
// lendable flag after creation; only the loan ledger does that.
type BookRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewBookRepository creates a new book repository
func NewBookRepository(database *db.DB, logger *zap.Logger) *BookRepository {
	return &BookRepository{
		db:  database,
		log: logger,
	}
}

// CreateBook validates and stores a new book. New books start lendable.
func (r *BookRepository) CreateBook(ctx context.Context, book *db.Book) error {
	if !validBookYear(book.Year, time.Now()) {
		return ErrInvalidYear
	}
	if !validISBN(book.ISBN) {
		return ErrInvalidISBN
	}
	book.ISBN = normalizeISBN(book.ISBN)

	if book.ISBN != "" {
		var count int64
		if err := r.db.WithContext(ctx).Model(&db.Book{}).Where("isbn = ?", book.ISBN).Count(&count).Error; err != nil {
			r.log.Error("Failed to check isbn uniqueness", zap.String("isbn", book.ISBN), zap.Error(err))
			return err
		}
		if count > 0 {
			return ErrDuplicateISBN
		}
	}

	book.Lendable = true
	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		r.log.Error("Failed to create book", zap.String("title", book.Title), zap.Error(err))
		return err
	}

	r.log.Info("Book created", zap.String("book_id", book.ID), zap.String("title", book.Title))
	return nil
}

// GetBook retrieves a book by ID
func (r *BookRepository) GetBook(ctx context.Context, id string) (*db.Book, error) {
	var book db.Book
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		r.log.Error("Failed to get book", zap.String("book_id", id), zap.Error(err))
		return nil, err
	}

	return &book, nil
}

// ListBooks returns a paginated list of books with optional filters
func (r *BookRepository) ListBooks(ctx context.Context, page, pageSize int, category, author string, lendableOnly bool) ([]*db.Book, int64, error) {
	query := r.db.WithContext(ctx).Model(&db.Book{})

	if category != "" {
		query = query.Where("category = ?", category)
	}
	if author != "" {
		query = query.Where("author LIKE ?", "%"+author+"%")
	}
	if lendableOnly {
		query = query.Where("lendable = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.log.Error("Failed to count books", zap.Error(err))
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	var books []*db.Book
	if err := query.Offset(offset).Limit(pageSize).Order("title ASC").Find(&books).Error; err != nil {
		r.log.Error("Failed to list books", zap.Error(err))
		return nil, 0, err
	}

	return books, total, nil
}

// UpdateBook updates the descriptive fields of a book. The lendable flag
// is deliberately not part of the update set.
func (r *BookRepository) UpdateBook(ctx context.Context, book *db.Book) error {
	if !validBookYear(book.Year, time.Now()) {
		return ErrInvalidYear
	}
	if !validISBN(book.ISBN) {
		return ErrInvalidISBN
	}
	book.ISBN = normalizeISBN(book.ISBN)

	updates := map[string]interface{}{
		"title":    book.Title,
		"author":   book.Author,
		"year":     book.Year,
		"category": book.Category,
		"isbn":     book.ISBN,
	}

	result := r.db.WithContext(ctx).Model(&db.Book{}).Where("id = ?", book.ID).Updates(updates)
	if result.Error != nil {
		r.log.Error("Failed to update book", zap.String("book_id", book.ID), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}

	r.log.Info("Book updated", zap.String("book_id", book.ID))
	return nil
}

// DeleteBook removes a book and, through the cascade, its loan history
func (r *BookRepository) DeleteBook(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// SQLite does not enforce the cascade by default, so clear loans
		// explicitly before deleting the book.
		if err := tx.Where("book_id = ?", id).Delete(&db.Loan{}).Error; err != nil {
			return fmt.Errorf("failed to delete loans for book: %w", err)
		}

		result := tx.Where("id = ?", id).Delete(&db.Book{})
		if result.Error != nil {
			r.log.Error("Failed to delete book", zap.String("book_id", id), zap.Error(result.Error))
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrBookNotFound
		}

		r.log.Info("Book deleted", zap.String("book_id", id))
		return nil
	})
}
