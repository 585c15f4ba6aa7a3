// internal/circulation/service.go
package circulation

import (
	"context"

	"lendinglibrary/internal/domain"
)

// Service defines the interface for the circulation service. It owns the
// loan lifecycle and keeps each member's loan mirror in step with it.
type Service interface {
	ListLoans(ctx context.Context) ([]domain.Loan, error)
	GetLoan(ctx context.Context, id int64) (*domain.Loan, error)

	// CreateLoan resolves the member, checks the loan ceiling, then resolves
	// the book, in that order. Missing dates are derived from the clock.
	CreateLoan(ctx context.Context, req domain.LoanRequest) (*domain.Loan, error)

	// UpdateLoan re-validates both references and overwrites every field.
	// Member loan mirrors are left as they are.
	UpdateLoan(ctx context.Context, id int64, req domain.LoanRequest) (*domain.Loan, error)

	// DeleteLoan detaches the loan from its member's mirror, then removes it.
	DeleteLoan(ctx context.Context, id int64) error

	// MemberLoans lists the loans that reference the member.
	MemberLoans(ctx context.Context, memberID int64) ([]domain.Loan, error)
}
