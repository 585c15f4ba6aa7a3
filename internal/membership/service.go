// internal/membership/service.go
package membership

import (
	"context"

	"lendinglibrary/internal/domain"
)

// Service defines the interface for the membership service.
//
// The loan mirror on a member is normally maintained by circulation. Create
// and update still accept loan_ids and store them as given.
type Service interface {
	ListMembers(ctx context.Context) ([]domain.Member, error)
	GetMember(ctx context.Context, id int64) (*domain.Member, error)
	CreateMember(ctx context.Context, in domain.Member) (*domain.Member, error)
	UpdateMember(ctx context.Context, id int64, in domain.Member) (*domain.Member, error)
	DeleteMember(ctx context.Context, id int64) error
}
