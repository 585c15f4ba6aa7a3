// internal/membership/implementation.go
package membership

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

type Option func(*service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// NewService creates a new membership service instance.
func NewService(st store.Store, opts ...Option) Service {
	s := &service{
		store:  st,
		logger: slog.Default(),
		tracer: otel.Tracer("lendinglibrary/membership"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) ListMembers(ctx context.Context) ([]domain.Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.list_members")
	defer span.End()

	members, err := s.store.Members().List(ctx)
	if err != nil {
		return nil, fail(span, fmt.Errorf("list members: %w", err))
	}
	for i := range members {
		normalize(&members[i])
	}
	return members, nil
}

func (s *service) GetMember(ctx context.Context, id int64) (*domain.Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.get_member", trace.WithAttributes(attribute.Int64("member.id", id)))
	defer span.End()

	member, err := store.Resolve(ctx, s.store.Members(), domain.KindMember, id)
	if err != nil {
		return nil, fail(span, err)
	}
	normalize(&member)
	return &member, nil
}

// CreateMember registers a new member. Any id in the payload is ignored.
func (s *service) CreateMember(ctx context.Context, in domain.Member) (*domain.Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.create_member")
	defer span.End()

	member := domain.Member{}
	domain.ApplyMember(&member, in)
	normalize(&member)
	if err := s.store.Members().Save(ctx, &member); err != nil {
		return nil, fail(span, fmt.Errorf("save member: %w", err))
	}

	s.logger.InfoContext(ctx, "member created", "member_id", member.ID)
	return &member, nil
}

// UpdateMember replaces every field, loan_ids included.
func (s *service) UpdateMember(ctx context.Context, id int64, in domain.Member) (*domain.Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.update_member", trace.WithAttributes(attribute.Int64("member.id", id)))
	defer span.End()

	var member domain.Member
	err := retry.Tx(ctx, s.store, func(ctx context.Context, tx store.Store) error {
		var err error
		member, err = store.Resolve(ctx, tx.Members(), domain.KindMember, id)
		if err != nil {
			return err
		}
		domain.ApplyMember(&member, in)
		normalize(&member)
		return tx.Members().Save(ctx, &member)
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return &member, nil
}

// DeleteMember removes the member. Their loans are left in place.
func (s *service) DeleteMember(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "membership.delete_member", trace.WithAttributes(attribute.Int64("member.id", id)))
	defer span.End()

	err := retry.Tx(ctx, s.store, func(ctx context.Context, tx store.Store) error {
		if _, err := store.Resolve(ctx, tx.Members(), domain.KindMember, id); err != nil {
			return err
		}
		return tx.Members().Delete(ctx, id)
	})
	if err != nil {
		return fail(span, err)
	}

	s.logger.InfoContext(ctx, "member deleted", "member_id", id)
	return nil
}

// normalize makes an empty loan mirror encode as [] rather than null.
func normalize(m *domain.Member) {
	if m.LoanIDs == nil {
		m.LoanIDs = []int64{}
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
