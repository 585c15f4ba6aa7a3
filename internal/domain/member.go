package domain

import (
	"slices"

	"github.com/samber/lo"
)

// AttachLoan records loanID in the member's loan mirror.
func (m *Member) AttachLoan(loanID int64) {
	m.LoanIDs = append(m.LoanIDs, loanID)
}

// DetachLoan drops the first occurrence of loanID from the loan mirror.
func (m *Member) DetachLoan(loanID int64) {
	if i := lo.IndexOf(m.LoanIDs, loanID); i >= 0 {
		m.LoanIDs = slices.Delete(m.LoanIDs, i, i+1)
	}
}

// HasLoan reports whether loanID is present in the loan mirror.
func (m *Member) HasLoan(loanID int64) bool {
	return lo.Contains(m.LoanIDs, loanID)
}
