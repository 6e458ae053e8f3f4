package users

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/internal/authz"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
)

// Service covers the caller's own account.
type Service interface {
	Me(ctx context.Context, actor authz.Actor) (*UserDTO, error)
	UpdateProfile(ctx context.Context, actor authz.Actor, input ProfileInput) (*UserDTO, error)
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Me(ctx context.Context, actor authz.Actor) (*UserDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	return s.load(ctx, actor.AccountID)
}

// UpdateProfile creates the caller's profile on first use.
func (s *service) UpdateProfile(ctx context.Context, actor authz.Actor, input ProfileInput) (*UserDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if err := s.repo.UpsertProfile(ctx, actor.AccountID, input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: upsert profile")
	}
	return s.load(ctx, actor.AccountID)
}

func (s *service) load(ctx context.Context, userID int64) (*UserDTO, error) {
	user, err := s.repo.FindDetailed(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load user")
	}
	return FromModel(user), nil
}
