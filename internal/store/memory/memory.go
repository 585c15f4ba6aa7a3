// Package memory provides an in-memory entity store used by tests and by the
// `memory` driver for throwaway environments.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/samber/lo"

	"lendinglibrary/internal/domain"
	"lendinglibrary/internal/store"
)

var _ store.Store = (*Store)(nil)

type table[T any] struct {
	rows   map[int64]T
	nextID int64
}

func newTable[T any]() table[T] {
	return table[T]{rows: map[int64]T{}}
}

func (t table[T]) clone(cloneRow func(T) T) table[T] {
	out := table[T]{rows: make(map[int64]T, len(t.rows)), nextID: t.nextID}
	for id, row := range t.rows {
		out.rows[id] = cloneRow(row)
	}
	return out
}

type state struct {
	authors table[domain.Author]
	books   table[domain.Book]
	members table[domain.Member]
	loans   table[domain.Loan]
}

func (st *state) clone() state {
	return state{
		authors: st.authors.clone(cloneAuthor),
		books:   st.books.clone(cloneBook),
		members: st.members.clone(cloneMember),
		loans:   st.loans.clone(cloneLoan),
	}
}

// Store keeps every collection behind a single mutex. Transactions hold the
// mutex for their whole duration, so they are serialized with each other and
// with plain calls.
type Store struct {
	mu   *sync.Mutex
	st   *state
	inTx bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		mu: &sync.Mutex{},
		st: &state{
			authors: newTable[domain.Author](),
			books:   newTable[domain.Book](),
			members: newTable[domain.Member](),
			loans:   newTable[domain.Loan](),
		},
	}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Authors() store.Collection[domain.Author] {
	return &collection[domain.Author]{
		s:     s,
		pick:  func(st *state) *table[domain.Author] { return &st.authors },
		idOf:  func(a *domain.Author) *int64 { return &a.ID },
		clone: cloneAuthor,
	}
}

func (s *Store) Books() store.Collection[domain.Book] {
	return &collection[domain.Book]{
		s:     s,
		pick:  func(st *state) *table[domain.Book] { return &st.books },
		idOf:  func(b *domain.Book) *int64 { return &b.ID },
		clone: cloneBook,
	}
}

func (s *Store) Members() store.Collection[domain.Member] {
	return &collection[domain.Member]{
		s:     s,
		pick:  func(st *state) *table[domain.Member] { return &st.members },
		idOf:  func(m *domain.Member) *int64 { return &m.ID },
		clone: cloneMember,
	}
}

func (s *Store) Loans() store.LoanCollection {
	return &loanCollection{collection: collection[domain.Loan]{
		s:     s,
		pick:  func(st *state) *table[domain.Loan] { return &st.loans },
		idOf:  func(l *domain.Loan) *int64 { return &l.ID },
		clone: cloneLoan,
	}}
}

// WithinTx restores the pre-transaction state when fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, &Store{mu: s.mu, st: s.st, inTx: true}); err != nil {
		*s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

type collection[T any] struct {
	s     *Store
	pick  func(*state) *table[T]
	idOf  func(*T) *int64
	clone func(T) T
}

func (c *collection[T]) Get(ctx context.Context, id int64) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	defer c.s.lock()()

	row, ok := c.pick(c.s.st).rows[id]
	if !ok {
		return zero, store.ErrNoRecord
	}
	return c.clone(row), nil
}

func (c *collection[T]) List(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer c.s.lock()()

	t := c.pick(c.s.st)
	out := make([]T, 0, len(t.rows))
	for _, id := range slices.Sorted(maps.Keys(t.rows)) {
		out = append(out, c.clone(t.rows[id]))
	}
	return out, nil
}

func (c *collection[T]) Save(ctx context.Context, record *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer c.s.lock()()

	t := c.pick(c.s.st)
	id := c.idOf(record)
	if *id == 0 {
		t.nextID++
		*id = t.nextID
	} else if _, ok := t.rows[*id]; !ok {
		return fmt.Errorf("save id %d: %w", *id, store.ErrNoRecord)
	}
	t.rows[*id] = c.clone(*record)
	return nil
}

func (c *collection[T]) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer c.s.lock()()

	delete(c.pick(c.s.st).rows, id)
	return nil
}

type loanCollection struct {
	collection[domain.Loan]
}

func (c *loanCollection) FindByMember(ctx context.Context, memberID int64) ([]domain.Loan, error) {
	loans, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(loans, func(l domain.Loan, _ int) bool { return l.MemberID == memberID }), nil
}

func cloneDate(d *domain.Date) *domain.Date {
	if d == nil {
		return nil
	}
	return lo.ToPtr(*d)
}

func cloneAuthor(a domain.Author) domain.Author {
	a.DateOfBirth = cloneDate(a.DateOfBirth)
	return a
}

func cloneBook(b domain.Book) domain.Book {
	if b.Price != nil {
		b.Price = lo.ToPtr(*b.Price)
	}
	return b
}

func cloneMember(m domain.Member) domain.Member {
	m.LoanIDs = slices.Clone(m.LoanIDs)
	return m
}

func cloneLoan(l domain.Loan) domain.Loan {
	l.LendDate = cloneDate(l.LendDate)
	l.ReturnDate = cloneDate(l.ReturnDate)
	return l
}
