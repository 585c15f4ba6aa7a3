// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"

	"lendinglibrary/internal/domain"
)

var (
	// ErrNoRecord is returned by Collection.Get when no record has the requested id.
	ErrNoRecord = errors.New("store: no record")

	// ErrConflict reports a transaction that lost a race with a concurrent one and may be retried.
	ErrConflict = errors.New("store: concurrent modification conflict")
)

// Collection is keyed storage for one entity kind.
type Collection[T any] interface {
	// Get returns ErrNoRecord when the id is unknown.
	Get(ctx context.Context, id int64) (T, error)
	// List returns every record ordered by id.
	List(ctx context.Context) ([]T, error)
	// Save inserts the record when its id is zero, assigning a fresh id, and
	// replaces the stored record otherwise. Replacing an unknown id fails with
	// ErrNoRecord.
	Save(ctx context.Context, record *T) error
	// Delete removes the record; unknown ids are ignored.
	Delete(ctx context.Context, id int64) error
}

// LoanCollection adds the by-member lookup the loan limit is checked against.
type LoanCollection interface {
	Collection[domain.Loan]
	FindByMember(ctx context.Context, memberID int64) ([]domain.Loan, error)
}

// Store is the entity store shared by every service.
type Store interface {
	Authors() Collection[domain.Author]
	Books() Collection[domain.Book]
	Members() Collection[domain.Member]
	Loans() LoanCollection

	// WithinTx runs fn against a transactional view of the store. The view is
	// committed when fn returns nil and discarded otherwise. Calling WithinTx on
	// the view runs fn inside the same transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	Ping(ctx context.Context) error
	Close() error
}

// Resolve loads id from c, turning a missing record into a NotFoundError of kind.
func Resolve[T any](ctx context.Context, c Collection[T], kind domain.Kind, id int64) (T, error) {
	record, err := c.Get(ctx, id)
	if err != nil {
		var zero T
		if errors.Is(err, ErrNoRecord) {
			return zero, domain.NewNotFound(kind, id)
		}
		return zero, fmt.Errorf("get %s %d: %w", kind, id, err)
	}
	return record, nil
}
