package sqlstore

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lendinglibrary/internal/domain"
	"lendinglibrary/internal/store"
)

// table maps one entity type onto one SQL table. Hooks let members keep their
// loan mirror in the member_loans side table.
type table[T any] struct {
	s       *Store
	name    string
	columns []string
	values  func(*T) []any
	idOf    func(*T) *int64

	afterLoad    func(ctx context.Context, s *Store, rows []T) error
	afterSave    func(ctx context.Context, s *Store, row *T) error
	beforeDelete func(ctx context.Context, s *Store, id int64) error
}

func (t *table[T]) selectColumns() []string {
	return append([]string{"id"}, t.columns...)
}

func (t *table[T]) Get(ctx context.Context, id int64) (T, error) {
	ctx, span := t.s.startSpan(ctx, "store."+t.name+".get", attribute.Int64("record.id", id))
	defer span.End()

	var row T
	query, args, err := t.s.sq.Select(t.selectColumns()...).From(t.name).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return row, fmt.Errorf("build %s get query: %w", t.name, err)
	}
	t.s.logSQL(t.name+".get", query, args)

	if err := sqlx.GetContext(ctx, t.s.ext, &row, query, args...); err != nil {
		return row, t.s.fail(span, "get "+t.name, err)
	}
	if t.afterLoad != nil {
		rows := []T{row}
		if err := t.afterLoad(ctx, t.s, rows); err != nil {
			return row, t.s.fail(span, "load "+t.name+" relations", err)
		}
		row = rows[0]
	}
	return row, nil
}

func (t *table[T]) List(ctx context.Context) ([]T, error) {
	ctx, span := t.s.startSpan(ctx, "store."+t.name+".list")
	defer span.End()

	return t.selectWhere(ctx, span, nil)
}

func (t *table[T]) selectWhere(ctx context.Context, span trace.Span, where squirrel.Sqlizer) ([]T, error) {
	q := t.s.sq.Select(t.selectColumns()...).From(t.name).OrderBy("id")
	if where != nil {
		q = q.Where(where)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s list query: %w", t.name, err)
	}
	t.s.logSQL(t.name+".list", query, args)

	rows := []T{}
	if err := sqlx.SelectContext(ctx, t.s.ext, &rows, query, args...); err != nil {
		return nil, t.s.fail(span, "list "+t.name, err)
	}
	if t.afterLoad != nil && len(rows) > 0 {
		if err := t.afterLoad(ctx, t.s, rows); err != nil {
			return nil, t.s.fail(span, "load "+t.name+" relations", err)
		}
	}
	span.SetAttributes(attribute.Int("records.loaded", len(rows)))
	return rows, nil
}

func (t *table[T]) Save(ctx context.Context, row *T) error {
	if t.afterSave != nil && !t.s.inTx {
		// The row and its side table are written together.
		return t.s.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
			return t.on(tx.(*Store)).Save(ctx, row)
		})
	}

	id := t.idOf(row)
	ctx, span := t.s.startSpan(ctx, "store."+t.name+".save", attribute.Int64("record.id", *id))
	defer span.End()

	if *id == 0 {
		query, args, err := t.s.sq.Insert(t.name).
			Columns(t.columns...).
			Values(t.values(row)...).
			Suffix("RETURNING id").
			ToSql()
		if err != nil {
			return fmt.Errorf("build %s insert: %w", t.name, err)
		}
		t.s.logSQL(t.name+".insert", query, args)

		var newID int64
		if err := sqlx.GetContext(ctx, t.s.ext, &newID, query, args...); err != nil {
			return t.s.fail(span, "insert "+t.name, err)
		}
		*id = newID
		span.SetAttributes(attribute.Int64("record.assigned_id", newID))
	} else {
		q := t.s.sq.Update(t.name).Where(squirrel.Eq{"id": *id})
		for i, v := range t.values(row) {
			q = q.Set(t.columns[i], v)
		}
		query, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build %s update: %w", t.name, err)
		}
		t.s.logSQL(t.name+".update", query, args)

		res, err := t.s.ext.ExecContext(ctx, query, args...)
		if err != nil {
			return t.s.fail(span, "update "+t.name, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return t.s.fail(span, "update "+t.name, err)
		}
		if affected == 0 {
			return fmt.Errorf("update %s %d: %w", t.name, *id, store.ErrNoRecord)
		}
	}

	if t.afterSave != nil {
		if err := t.afterSave(ctx, t.s, row); err != nil {
			return t.s.fail(span, "save "+t.name+" relations", err)
		}
	}
	return nil
}

func (t *table[T]) Delete(ctx context.Context, id int64) error {
	if t.beforeDelete != nil && !t.s.inTx {
		return t.s.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
			return t.on(tx.(*Store)).Delete(ctx, id)
		})
	}

	ctx, span := t.s.startSpan(ctx, "store."+t.name+".delete", attribute.Int64("record.id", id))
	defer span.End()

	if t.beforeDelete != nil {
		if err := t.beforeDelete(ctx, t.s, id); err != nil {
			return t.s.fail(span, "delete "+t.name+" relations", err)
		}
	}

	query, args, err := t.s.sq.Delete(t.name).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build %s delete: %w", t.name, err)
	}
	t.s.logSQL(t.name+".delete", query, args)

	if _, err := t.s.ext.ExecContext(ctx, query, args...); err != nil {
		return t.s.fail(span, "delete "+t.name, err)
	}
	return nil
}

// on rebinds the table to another store, used to move into a transaction.
func (t *table[T]) on(s *Store) *table[T] {
	clone := *t
	clone.s = s
	return &clone
}

func (s *Store) authors() *table[domain.Author] {
	return &table[domain.Author]{
		s:       s,
		name:    "authors",
		columns: []string{"name", "date_of_birth"},
		values:  func(a *domain.Author) []any { return []any{a.Name, a.DateOfBirth} },
		idOf:    func(a *domain.Author) *int64 { return &a.ID },
	}
}

func (s *Store) books() *table[domain.Book] {
	return &table[domain.Book]{
		s:       s,
		name:    "books",
		columns: []string{"title", "genre", "price", "author_id"},
		values:  func(b *domain.Book) []any { return []any{b.Title, b.Genre, b.Price, b.AuthorID} },
		idOf:    func(b *domain.Book) *int64 { return &b.ID },
	}
}

func (s *Store) members() *table[domain.Member] {
	return &table[domain.Member]{
		s:            s,
		name:         "members",
		columns:      []string{"username", "email", "address", "phone_number"},
		values:       func(m *domain.Member) []any { return []any{m.Username, m.Email, m.Address, m.PhoneNumber} },
		idOf:         func(m *domain.Member) *int64 { return &m.ID },
		afterLoad:    loadMemberLoans,
		afterSave:    writeMemberLoans,
		beforeDelete: clearMemberLoans,
	}
}

func (s *Store) loans() *table[domain.Loan] {
	return &table[domain.Loan]{
		s:       s,
		name:    "loans",
		columns: []string{"member_id", "book_id", "lend_date", "return_date"},
		values:  func(l *domain.Loan) []any { return []any{l.MemberID, l.BookID, l.LendDate, l.ReturnDate} },
		idOf:    func(l *domain.Loan) *int64 { return &l.ID },
	}
}

type loanTable struct {
	*table[domain.Loan]
}

func (t *loanTable) FindByMember(ctx context.Context, memberID int64) ([]domain.Loan, error) {
	ctx, span := t.s.startSpan(ctx, "store.loans.find_by_member", attribute.Int64("member.id", memberID))
	defer span.End()

	return t.selectWhere(ctx, span, squirrel.Eq{"member_id": memberID})
}

type memberLoanRow struct {
	MemberID int64 `db:"member_id"`
	LoanID   int64 `db:"loan_id"`
}

func loadMemberLoans(ctx context.Context, s *Store, members []domain.Member) error {
	ids := lo.Map(members, func(m domain.Member, _ int) int64 { return m.ID })
	query, args, err := s.sq.Select("member_id", "loan_id").
		From("member_loans").
		Where(squirrel.Eq{"member_id": ids}).
		OrderBy("member_id", "position").
		ToSql()
	if err != nil {
		return err
	}
	s.logSQL("member_loans.load", query, args)

	var rows []memberLoanRow
	if err := sqlx.SelectContext(ctx, s.ext, &rows, query, args...); err != nil {
		return err
	}

	byMember := lo.GroupBy(rows, func(r memberLoanRow) int64 { return r.MemberID })
	for i := range members {
		members[i].LoanIDs = lo.Map(byMember[members[i].ID], func(r memberLoanRow, _ int) int64 { return r.LoanID })
	}
	return nil
}

func clearMemberLoans(ctx context.Context, s *Store, memberID int64) error {
	query, args, err := s.sq.Delete("member_loans").Where(squirrel.Eq{"member_id": memberID}).ToSql()
	if err != nil {
		return err
	}
	s.logSQL("member_loans.clear", query, args)

	_, err = s.ext.ExecContext(ctx, query, args...)
	return err
}

func writeMemberLoans(ctx context.Context, s *Store, m *domain.Member) error {
	if err := clearMemberLoans(ctx, s, m.ID); err != nil {
		return err
	}
	if len(m.LoanIDs) == 0 {
		return nil
	}

	q := s.sq.Insert("member_loans").Columns("member_id", "position", "loan_id")
	for pos, loanID := range m.LoanIDs {
		q = q.Values(m.ID, pos, loanID)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	s.logSQL("member_loans.write", query, args)

	_, err = s.ext.ExecContext(ctx, query, args...)
	return err
}
