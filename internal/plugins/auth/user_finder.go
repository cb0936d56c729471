package auth

import (
	"context"

	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// userFinder adapts the auth service to the session plugin's UserFinder
// interface, keeping the session package free of a dependency on auth.
type userFinder struct {
	service Service
}

// NewUserFinder wraps the auth service for use by the session middleware.
func NewUserFinder(service Service) session.UserFinder {
	return &userFinder{service: service}
}

func (f *userFinder) FindUserByID(ctx context.Context, id string) (*session.Viewer, error) {
	user, err := f.service.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &session.Viewer{
		ID:       user.ID,
		Username: user.Username,
		Name:     user.Name,
		Email:    user.Email,
	}, nil
}
