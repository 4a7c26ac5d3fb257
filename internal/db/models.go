package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account holds the identity fields shared by readers and employees.
// Readers and employees reference an account instead of subclassing one.
type Account struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	FirstName string    `gorm:"type:varchar(100);not null" json:"first_name"`
	LastName  string    `gorm:"type:varchar(100);not null" json:"last_name"`
	Email     string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName specifies the table name for Account model
func (Account) TableName() string {
	return "accounts"
}

// BeforeCreate hook to assign an ID
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// Book represents a catalog book. The lendable flag is owned by the loan
// ledger and must never be written by anything else.
type Book struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string    `gorm:"type:varchar(200);not null;index:idx_books_title" json:"title"`
	Author    string    `gorm:"type:varchar(100);not null;index:idx_books_author" json:"author"`
	Year      int       `gorm:"not null" json:"year"`
	Category  string    `gorm:"type:varchar(100);index:idx_books_category" json:"category,omitempty"`
	ISBN      string    `gorm:"type:varchar(13)" json:"isbn,omitempty"`
	Lendable  bool      `gorm:"not null;default:true;index:idx_books_lendable" json:"lendable"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName specifies the table name for Book model
func (Book) TableName() string {
	return "books"
}

// BeforeCreate hook to assign an ID
func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// Reader represents a registered library member
type Reader struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID string    `gorm:"type:uuid;not null;uniqueIndex" json:"account_id"`
	Account   Account   `gorm:"constraint:OnDelete:CASCADE" json:"account"`
	BirthDate time.Time `gorm:"type:date;not null" json:"birth_date"`
	Active    bool      `gorm:"not null;default:true;index:idx_readers_active" json:"active"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName specifies the table name for Reader model
func (Reader) TableName() string {
	return "readers"
}

// BeforeCreate hook to assign an ID
func (r *Reader) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// Employee represents a staff member who can issue loans
type Employee struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID string    `gorm:"type:uuid;not null;uniqueIndex" json:"account_id"`
	Account   Account   `gorm:"constraint:OnDelete:CASCADE" json:"account"`
	Role      string    `gorm:"type:varchar(50);not null" json:"role"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName specifies the table name for Employee model
func (Employee) TableName() string {
	return "employees"
}

// BeforeCreate hook to assign an ID
func (e *Employee) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// Loan represents a single lending of a book to a reader. A loan is open
// while ReturnedAt is nil; once returned it is never modified again.
// IssuedBy survives employee deletion as a null reference so historical
// loans are kept.
type Loan struct {
	ID           string          `gorm:"type:uuid;primaryKey" json:"id"`
	BookID       string          `gorm:"type:uuid;not null;index:idx_loans_book" json:"book_id"`
	Book         Book            `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ReaderID     string          `gorm:"type:uuid;not null;index:idx_loans_reader" json:"reader_id"`
	Reader       Reader          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	IssuedByID   *string         `gorm:"type:uuid;index:idx_loans_issued_by" json:"issued_by_id,omitempty"`
	IssuedBy     *Employee       `gorm:"foreignKey:IssuedByID;constraint:OnDelete:SET NULL" json:"-"`
	IssuedAt     time.Time       `gorm:"not null" json:"issued_at"`
	DueAt        time.Time       `gorm:"type:date;not null;index:idx_loans_due_at" json:"due_at"`
	ReturnedAt   *time.Time      `gorm:"type:date;index:idx_loans_returned_at" json:"returned_at,omitempty"`
	FineAmount   decimal.Decimal `gorm:"type:numeric(6,2);not null;default:0" json:"fine_amount"`
	RenewalCount int             `gorm:"not null;default:0" json:"renewal_count"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName specifies the table name for Loan model
func (Loan) TableName() string {
	return "loans"
}

// BeforeCreate hook to assign an ID and timestamps
func (l *Loan) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	now := time.Now()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = now
	}
	return nil
}

// BeforeUpdate hook to update timestamp
func (l *Loan) BeforeUpdate(tx *gorm.DB) error {
	l.UpdatedAt = time.Now()
	return nil
}

// Open reports whether the loan has not been returned yet
func (l *Loan) Open() bool {
	return l.ReturnedAt == nil
}

// OverdueAt reports whether an open loan's due date is strictly before
// the given date. Returned loans are never overdue.
func (l *Loan) OverdueAt(date time.Time) bool {
	if !l.Open() {
		return false
	}
	due := time.Date(l.DueAt.Year(), l.DueAt.Month(), l.DueAt.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return due.Before(day)
}
