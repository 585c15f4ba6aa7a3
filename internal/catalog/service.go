// internal/catalog/service.go
package catalog

import (
	"context"

	"lendinglibrary/internal/domain"
)

// Service defines the interface for the catalog service: authors and the
// books they wrote.
type Service interface {
	ListAuthors(ctx context.Context) ([]domain.Author, error)
	GetAuthor(ctx context.Context, id int64) (*domain.Author, error)
	CreateAuthor(ctx context.Context, in domain.Author) (*domain.Author, error)
	UpdateAuthor(ctx context.Context, id int64, in domain.Author) (*domain.Author, error)
	DeleteAuthor(ctx context.Context, id int64) error

	ListBooks(ctx context.Context) ([]domain.Book, error)
	GetBook(ctx context.Context, id int64) (*domain.Book, error)
	// CreateBook fails with NotFound(Author) when in.AuthorID does not resolve.
	CreateBook(ctx context.Context, in domain.Book) (*domain.Book, error)
	// UpdateBook resolves the book first, then the author it is moved to.
	UpdateBook(ctx context.Context, id int64, in domain.Book) (*domain.Book, error)
	DeleteBook(ctx context.Context, id int64) error
}
