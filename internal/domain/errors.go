package domain

import (
	"errors"
	"fmt"
)

// Kind names an entity collection.
type Kind string

const (
	KindAuthor Kind = "Author"
	KindBook   Kind = "Book"
	KindMember Kind = "Member"
	KindLoan   Kind = "Loan"
)

var (
	// ErrNotFound matches every *NotFoundError via errors.Is.
	ErrNotFound = errors.New("not found")

	// ErrLoanLimitExceeded rejects a loan for a member who already holds MaxActiveLoans loans.
	ErrLoanLimitExceeded = fmt.Errorf("member already has %d loans", MaxActiveLoans)
)

// NotFoundError reports a referenced entity that could not be resolved.
type NotFoundError struct {
	Kind Kind
	ID   int64
}

func NewNotFound(kind Kind, id int64) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found with id %d", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFoundOf reports whether err is a NotFoundError for the given kind.
func IsNotFoundOf(err error, kind Kind) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) && nf.Kind == kind
}
