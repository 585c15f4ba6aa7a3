package domain

import "slices"

// The Apply functions overwrite every mutable field of dst with the value from
// src. Fields missing from src overwrite dst with their zero value; IDs are kept.

func ApplyAuthor(dst *Author, src Author) {
	dst.Name = src.Name
	dst.DateOfBirth = src.DateOfBirth
}

func ApplyBook(dst *Book, src Book) {
	dst.Title = src.Title
	dst.Genre = src.Genre
	dst.Price = src.Price
	dst.AuthorID = src.AuthorID
}

func ApplyMember(dst *Member, src Member) {
	dst.Username = src.Username
	dst.Email = src.Email
	dst.Address = src.Address
	dst.PhoneNumber = src.PhoneNumber
	dst.LoanIDs = slices.Clone(src.LoanIDs)
}

// ApplyLoan overwrites the loan's references and dates without defaulting.
func ApplyLoan(dst *Loan, src LoanRequest) {
	dst.MemberID = src.MemberID
	dst.BookID = src.BookID
	dst.LendDate = src.LendDate
	dst.ReturnDate = src.ReturnDate
}
