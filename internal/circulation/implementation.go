// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"lendinglibrary/internal/domain"
	"lendinglibrary/internal/retry"
	"lendinglibrary/internal/store"
)

const instrumentationName = "lendinglibrary/circulation"

// service implements the Service interface.
type service struct {
	store     store.Store
	logger    *slog.Logger
	tracer    trace.Tracer
	meter     metric.Meter
	clock     func() time.Time
	retryOpts []retry.Option

	created  metric.Int64Counter
	deleted  metric.Int64Counter
	rejected metric.Int64Counter
}

type Option func(*service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock replaces time.Now as the source of "today" for default lend dates.
func WithClock(clock func() time.Time) Option {
	return func(s *service) {
		s.clock = clock
	}
}

// WithMeter replaces the global meter the loan counters are created on.
func WithMeter(meter metric.Meter) Option {
	return func(s *service) {
		s.meter = meter
	}
}

// WithRetryOptions tunes how loan transactions that lost a conflict are retried.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(s *service) {
		s.retryOpts = append(s.retryOpts, opts...)
	}
}

// NewService creates a new circulation service instance.
func NewService(st store.Store, opts ...Option) (Service, error) {
	s := &service{
		store:  st,
		logger: slog.Default(),
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retryOpts = append(s.retryOpts, retry.WithOnRetry(func(attempt int, err error) {
		s.logger.Debug("retrying loan transaction after conflict", "attempt", attempt, "error", err)
	}))

	var err error
	if s.created, err = s.meter.Int64Counter("library.loans.created",
		metric.WithDescription("Loans created")); err != nil {
		return nil, fmt.Errorf("create loans.created counter: %w", err)
	}
	if s.deleted, err = s.meter.Int64Counter("library.loans.deleted",
		metric.WithDescription("Loans deleted")); err != nil {
		return nil, fmt.Errorf("create loans.deleted counter: %w", err)
	}
	if s.rejected, err = s.meter.Int64Counter("library.loans.rejected",
		metric.WithDescription("Loan requests rejected by a domain rule or a missing reference")); err != nil {
		return nil, fmt.Errorf("create loans.rejected counter: %w", err)
	}
	return s, nil
}

func (s *service) ListLoans(ctx context.Context) ([]domain.Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.list_loans")
	defer span.End()

	loans, err := s.store.Loans().List(ctx)
	if err != nil {
		return nil, fail(span, fmt.Errorf("list loans: %w", err))
	}
	return loans, nil
}

func (s *service) GetLoan(ctx context.Context, id int64) (*domain.Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.get_loan", trace.WithAttributes(attribute.Int64("loan.id", id)))
	defer span.End()

	loan, err := store.Resolve(ctx, s.store.Loans(), domain.KindLoan, id)
	if err != nil {
		return nil, fail(span, err)
	}
	return &loan, nil
}

func (s *service) CreateLoan(ctx context.Context, req domain.LoanRequest) (*domain.Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.create_loan", trace.WithAttributes(
		attribute.Int64("member.id", req.MemberID),
		attribute.Int64("book.id", req.BookID),
	))
	defer span.End()

	today := domain.DateOf(s.clock())

	var loan domain.Loan
	err := retry.Tx(ctx, s.store, func(ctx context.Context, tx store.Store) error {
		member, err := store.Resolve(ctx, tx.Members(), domain.KindMember, req.MemberID)
		if err != nil {
			return err
		}

		// The loans collection is authoritative here, not the member's mirror.
		held, err := tx.Loans().FindByMember(ctx, member.ID)
		if err != nil {
			return fmt.Errorf("find loans of member %d: %w", member.ID, err)
		}
		if len(held) >= domain.MaxActiveLoans {
			return domain.ErrLoanLimitExceeded
		}

		if _, err := store.Resolve(ctx, tx.Books(), domain.KindBook, req.BookID); err != nil {
			return err
		}

		loan = newLoan(req, today)
		if err := tx.Loans().Save(ctx, &loan); err != nil {
			return fmt.Errorf("save loan: %w", err)
		}

		member.AttachLoan(loan.ID)
		if err := tx.Members().Save(ctx, &member); err != nil {
			return fmt.Errorf("save member %d: %w", member.ID, err)
		}
		return nil
	}, s.retryOpts...)
	if err != nil {
		s.reject(ctx, req, err)
		return nil, fail(span, err)
	}

	span.SetAttributes(attribute.Int64("loan.id", loan.ID))
	s.created.Add(ctx, 1)
	s.logger.InfoContext(ctx, "loan created",
		"loan_id", loan.ID,
		"member_id", loan.MemberID,
		"book_id", loan.BookID,
		"return_date", loan.ReturnDate.String(),
	)
	return &loan, nil
}

// newLoan fills in the dates the caller left out: lend date defaults to today
// and return date to DefaultLoanDays after the lend date.
func newLoan(req domain.LoanRequest, today domain.Date) domain.Loan {
	lend := today
	if req.LendDate != nil {
		lend = *req.LendDate
	}
	ret := lend.AddDays(domain.DefaultLoanDays)
	if req.ReturnDate != nil {
		ret = *req.ReturnDate
	}
	return domain.Loan{
		MemberID:   req.MemberID,
		BookID:     req.BookID,
		LendDate:   lo.ToPtr(lend),
		ReturnDate: lo.ToPtr(ret),
	}
}

func (s *service) reject(ctx context.Context, req domain.LoanRequest, err error) {
	var reason string
	switch {
	case errors.Is(err, domain.ErrLoanLimitExceeded):
		reason = "loan_limit"
		s.logger.WarnContext(ctx, "loan rejected: member at loan limit",
			"member_id", req.MemberID, "limit", domain.MaxActiveLoans)
	case domain.IsNotFoundOf(err, domain.KindMember):
		reason = "member_not_found"
	case domain.IsNotFoundOf(err, domain.KindBook):
		reason = "book_not_found"
	default:
		return
	}
	s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (s *service) UpdateLoan(ctx context.Context, id int64, req domain.LoanRequest) (*domain.Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.update_loan", trace.WithAttributes(
		attribute.Int64("loan.id", id),
		attribute.Int64("member.id", req.MemberID),
		attribute.Int64("book.id", req.BookID),
	))
	defer span.End()

	var loan domain.Loan
	err := retry.Tx(ctx, s.store, func(ctx context.Context, tx store.Store) error {
		var err error
		loan, err = store.Resolve(ctx, tx.Loans(), domain.KindLoan, id)
		if err != nil {
			return err
		}
		if _, err := store.Resolve(ctx, tx.Members(), domain.KindMember, req.MemberID); err != nil {
			return err
		}
		if _, err := store.Resolve(ctx, tx.Books(), domain.KindBook, req.BookID); err != nil {
			return err
		}

		if loan.MemberID != req.MemberID {
			s.logger.DebugContext(ctx, "loan moved to another member, mirrors left unchanged",
				"loan_id", id, "from_member_id", loan.MemberID, "to_member_id", req.MemberID)
		}
		domain.ApplyLoan(&loan, req)
		return tx.Loans().Save(ctx, &loan)
	}, s.retryOpts...)
	if err != nil {
		return nil, fail(span, err)
	}
	return &loan, nil
}

func (s *service) DeleteLoan(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "circulation.delete_loan", trace.WithAttributes(attribute.Int64("loan.id", id)))
	defer span.End()

	var memberID int64
	err := retry.Tx(ctx, s.store, func(ctx context.Context, tx store.Store) error {
		loan, err := store.Resolve(ctx, tx.Loans(), domain.KindLoan, id)
		if err != nil {
			return err
		}
		member, err := store.Resolve(ctx, tx.Members(), domain.KindMember, loan.MemberID)
		if err != nil {
			return err
		}
		memberID = member.ID

		member.DetachLoan(loan.ID)
		if err := tx.Members().Save(ctx, &member); err != nil {
			return fmt.Errorf("save member %d: %w", member.ID, err)
		}
		if err := tx.Loans().Delete(ctx, loan.ID); err != nil {
			return fmt.Errorf("delete loan %d: %w", loan.ID, err)
		}
		return nil
	}, s.retryOpts...)
	if err != nil {
		return fail(span, err)
	}

	s.deleted.Add(ctx, 1)
	s.logger.InfoContext(ctx, "loan deleted", "loan_id", id, "member_id", memberID)
	return nil
}

func (s *service) MemberLoans(ctx context.Context, memberID int64) ([]domain.Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.member_loans", trace.WithAttributes(attribute.Int64("member.id", memberID)))
	defer span.End()

	var loans []domain.Loan
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		if _, err := store.Resolve(ctx, tx.Members(), domain.KindMember, memberID); err != nil {
			return err
		}
		var err error
		loans, err = tx.Loans().FindByMember(ctx, memberID)
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return loans, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
