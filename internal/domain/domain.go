// internal/domain/domain.go
package domain

import (
	"github.com/shopspring/decimal"
)

const (
	// MaxActiveLoans is the number of loans a member may already hold when a new one is requested.
	MaxActiveLoans = 5

	// DefaultLoanDays is added to the lend date when a loan is created without a return date.
	DefaultLoanDays = 7
)

// Author writes books.
type Author struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	DateOfBirth *Date  `json:"date_of_birth" db:"date_of_birth"`
}

// Book is a title in the library's catalog. AuthorID must reference an existing Author.
type Book struct {
	ID       int64            `json:"id" db:"id"`
	Title    string           `json:"title" db:"title"`
	Genre    string           `json:"genre" db:"genre"`
	Price    *decimal.Decimal `json:"price" db:"price"`
	AuthorID int64            `json:"author_id" db:"author_id"`
}

// Member represents a library member.
//
// LoanIDs mirrors the loans created for this member. It is maintained by loan
// creation and deletion only and may drift from the loans collection, which
// stays authoritative.
type Member struct {
	ID          int64   `json:"id" db:"id"`
	Username    string  `json:"username" db:"username"`
	Email       string  `json:"email" db:"email"`
	Address     string  `json:"address" db:"address"`
	PhoneNumber string  `json:"phone_number" db:"phone_number"`
	LoanIDs     []int64 `json:"loan_ids" db:"-"`
}

// Loan links a member to a borrowed book.
type Loan struct {
	ID         int64 `json:"id" db:"id"`
	MemberID   int64 `json:"member_id" db:"member_id"`
	BookID     int64 `json:"book_id" db:"book_id"`
	LendDate   *Date `json:"lend_date" db:"lend_date"`
	ReturnDate *Date `json:"return_date" db:"return_date"`
}

// LoanRequest is the caller-supplied part of a loan. On create, missing dates are
// derived; on update every field is taken as given.
type LoanRequest struct {
	MemberID   int64 `json:"member_id"`
	BookID     int64 `json:"book_id"`
	LendDate   *Date `json:"lend_date"`
	ReturnDate *Date `json:"return_date"`
}
