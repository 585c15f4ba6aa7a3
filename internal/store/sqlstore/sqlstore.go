package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the "postgres" driver
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lendinglibrary/internal/domain"
	"lendinglibrary/internal/store"
)

var _ store.Store = (*Store)(nil)

type dialect struct {
	system       string
	placeholder  squirrel.PlaceholderFormat
	isolation    sql.IsolationLevel
	maxOpenConns int
	schema       []string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return dialect{
			system:      "postgresql",
			placeholder: squirrel.Dollar,
			isolation:   sql.LevelSerializable,
			schema:      postgresSchema,
		}, nil
	case "sqlite3":
		// One connection: SQLite serializes writers anyway and ":memory:"
		// databases are per connection.
		return dialect{
			system:       "sqlite",
			placeholder:  squirrel.Question,
			isolation:    sql.LevelDefault,
			maxOpenConns: 1,
			schema:       sqliteSchema,
		}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// Store is the SQL entity store. Inside WithinTx the same type wraps the
// transaction instead of the pool.
type Store struct {
	db      *sqlx.DB
	ext     sqlx.ExtContext
	inTx    bool
	sq      squirrel.StatementBuilderType
	dialect dialect
	tracer  trace.Tracer
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger makes the store log executed SQL at debug level and failures at error level.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	s, err := New(db, driver, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return s, nil
}

// New wraps an already opened database handle.
func New(db *sql.DB, driver string, opts ...Option) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if d.maxOpenConns > 0 {
		db.SetMaxOpenConns(d.maxOpenConns)
	}

	dbx := sqlx.NewDb(db, driver)
	s := &Store{
		db:      dbx,
		ext:     dbx,
		sq:      squirrel.StatementBuilder.PlaceholderFormat(d.placeholder),
		dialect: d,
		tracer:  otel.Tracer("lendinglibrary/store"),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Authors() store.Collection[domain.Author] { return s.authors() }

func (s *Store) Books() store.Collection[domain.Book] { return s.books() }

func (s *Store) Members() store.Collection[domain.Member] { return s.members() }

func (s *Store) Loans() store.LoanCollection { return &loanTable{table: s.loans()} }

// WithinTx runs fn in a database transaction, SERIALIZABLE on Postgres.
// Serialization failures surface as store.ErrConflict.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	ctx, span := s.tracer.Start(ctx, "store.tx", trace.WithAttributes(
		attribute.String("db.system", s.dialect.system),
	))
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: s.dialect.isolation})
	if err != nil {
		return s.fail(span, "begin transaction", err)
	}
	defer tx.Rollback()

	txStore := *s
	txStore.ext = tx
	txStore.inTx = true

	if err := fn(ctx, &txStore); err != nil {
		span.SetAttributes(attribute.Bool("tx.committed", false))
		return err
	}

	if err := tx.Commit(); err != nil {
		return s.fail(span, "commit transaction", err)
	}
	span.SetAttributes(attribute.Bool("tx.committed", true))
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.inTx {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.inTx {
		return nil
	}
	return s.db.Close()
}

func (s *Store) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", s.dialect.system), attribute.Bool("db.in_tx", s.inTx))
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// fail maps err onto the store taxonomy and records it on the span.
func (s *Store) fail(span trace.Span, op string, err error) error {
	mapped := mapError(err)
	span.RecordError(mapped)
	span.SetStatus(codes.Error, op)
	if mapped != store.ErrNoRecord {
		s.logger.Error("sql store operation failed", "op", op, "error", err)
	}
	return fmt.Errorf("%s: %w", op, mapped)
}

func (s *Store) logSQL(op, query string, args []any) {
	s.logger.Debug("executed sql for: "+op, "query", query, "args", len(args))
}
