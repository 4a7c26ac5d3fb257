package db

import (
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&Account{}, &Book{}, &Reader{}, &Employee{}, &Loan{}); err != nil {
		return err
	}

	if err := createIndexes(db.DB); err != nil {
		return err
	}

	return nil
}

func createIndexes(db *gorm.DB) error {
	// Partial unique indexes enforce the two catalog invariants at the
	// storage level: one open loan per book, one book per non-empty ISBN.
	// The syntax is shared by PostgreSQL and SQLite.
	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_open_book ON loans(book_id) WHERE returned_at IS NULL`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_books_isbn ON books(isbn) WHERE isbn <> ''`,
	}

	// Full-text search indexes only exist on PostgreSQL
	if db.Dialector.Name() == "postgres" {
		indexes = append(indexes,
			`CREATE INDEX IF NOT EXISTS idx_books_title_search ON books USING gin(to_tsvector('english', title))`,
			`CREATE INDEX IF NOT EXISTS idx_books_author_search ON books USING gin(to_tsvector('english', author))`,
		)
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
