// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lendinglibrary/internal/domain"
	"lendinglibrary/internal/retry"
	"lendinglibrary/internal/store"
)

// service implements the Service interface.
type service struct {
	store  store.Store
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures the catalog service.
type Option func(*service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// NewService creates a new catalog service instance.
func NewService(st store.Store, opts ...Option) Service {
	s := &service{
		store:  st,
		logger: slog.Default(),
		tracer: otel.Tracer("lendinglibrary/catalog"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) ListAuthors(ctx context.Context) ([]domain.Author, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list_authors")
	defer span.End()

	authors, err := s.store.Authors().List(ctx)
	if err != nil {
		return nil, fail(span, fmt.Errorf("list authors: %w", err))
	}
	return authors, nil
}

func (s *service) GetAuthor(ctx context.Context, id int64) (*domain.Author, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.get_author", trace.WithAttributes(attribute.Int64("author.id", id)))
	defer span.End()

	author, err := store.Resolve(ctx, s.store.Authors(), domain.KindAuthor, id)
	if err != nil {
		return nil, fail(span, err)
	}
	return &author, nil
}

// CreateAuthor stores a new author. Any id in the payload is ignored.
func (s *service) CreateAuthor(ctx context.Context, in domain.Author) (*domain.Author, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.create_author")
	defer span.End()

	author := domain.Author{}
	domain.ApplyAuthor(&author, in)
	if err := s.store.Authors().Save(ctx, &author); err != nil {
		return nil, fail(span, fmt.Errorf("save author: %w", err))
	}

	s.logger.InfoContext(ctx, "author created", "author_id", author.ID)
	return &author, nil
}

func (s *service) UpdateAuthor(ctx context.Context, id int64, in domain.Author) (*domain.Author, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.update_author", trace.WithAttributes(attribute.Int64("author.id", id)))
	defer span.End()

	var author domain.Author
	err := retry.Tx(ctx, s.store, func(ctx context.Context, tx store.Store) error {
		var err error
		author, err = store.Resolve(ctx, tx.Authors(), domain.KindAuthor, id)
		if err != nil {
			return err
		}
		domain.ApplyAuthor(&author, in)
		return tx.Authors().Save(ctx, &author)
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return &author, nil
}

// DeleteAuthor removes the author. Books that still reference it are left alone.
func (s *service) DeleteAuthor(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "catalog.delete_author", trace.WithAttributes(attribute.Int64("author.id", id)))
	defer span.End()

	err := retry.Tx(ctx, s.store, func(ctx context.Context, tx store.Store) error {
		if _, err := store.Resolve(ctx, tx.Authors(), domain.KindAuthor, id); err != nil {
			return err
		}
		return tx.Authors().Delete(ctx, id)
	})
	if err != nil {
		return fail(span, err)
	}

	s.logger.InfoContext(ctx, "author deleted", "author_id", id)
	return nil
}

func (s *service) ListBooks(ctx context.Context) ([]domain.Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list_books")
	defer span.End()

	books, err := s.store.Books().List(ctx)
	if err != nil {
		return nil, fail(span, fmt.Errorf("list books: %w", err))
	}
	return books, nil
}

func (s *service) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.get_book", trace.WithAttributes(attribute.Int64("book.id", id)))
	defer span.End()

	book, err := store.Resolve(ctx, s.store.Books(), domain.KindBook, id)
	if err != nil {
		return nil, fail(span, err)
	}
	return &book, nil
}

func (s *service) CreateBook(ctx context.Context, in domain.Book) (*domain.Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.create_book", trace.WithAttributes(attribute.Int64("author.id", in.AuthorID)))
	defer span.End()

	var book domain.Book
	err := retry.Tx(ctx, s.store, func(ctx context.Context, tx store.Store) error {
		if _, err := store.Resolve(ctx, tx.Authors(), domain.KindAuthor, in.AuthorID); err != nil {
			return err
		}
		book = domain.Book{}
		domain.ApplyBook(&book, in)
		return tx.Books().Save(ctx, &book)
	})
	if err != nil {
		return nil, fail(span, err)
	}

	s.logger.InfoContext(ctx, "book created", "book_id", book.ID, "author_id", book.AuthorID)
	return &book, nil
}

func (s *service) UpdateBook(ctx context.Context, id int64, in domain.Book) (*domain.Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.update_book", trace.WithAttributes(
		attribute.Int64("book.id", id),
		attribute.Int64("author.id", in.AuthorID),
	))
	defer span.End()

	var book domain.Book
	err := retry.Tx(ctx, s.store, func(ctx context.Context, tx store.Store) error {
		var err error
		book, err = store.Resolve(ctx, tx.Books(), domain.KindBook, id)
		if err != nil {
			return err
		}
		if _, err := store.Resolve(ctx, tx.Authors(), domain.KindAuthor, in.AuthorID); err != nil {
			return err
		}
		domain.ApplyBook(&book, in)
		return tx.Books().Save(ctx, &book)
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return &book, nil
}

// DeleteBook removes the book. Loans that still reference it are left alone.
func (s *service) DeleteBook(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "catalog.delete_book", trace.WithAttributes(attribute.Int64("book.id", id)))
	defer span.End()

	err := retry.Tx(ctx, s.store, func(ctx context.Context, tx store.Store) error {
		if _, err := store.Resolve(ctx, tx.Books(), domain.KindBook, id); err != nil {
			return err
		}
		return tx.Books().Delete(ctx, id)
	})
	if err != nil {
		return fail(span, err)
	}

	s.logger.InfoContext(ctx, "book deleted", "book_id", id)
	return nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
