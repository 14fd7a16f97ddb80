package repositories

import (
	"context"

	"github.com/vidtube/backend/internal/models"
)

// UserRepository defines the data access contract for users, including the
// single-slot refresh token stored on the user row.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	// FindByEmailOrUsername matches on either unique field; the first match wins.
	FindByEmailOrUsername(ctx context.Context, email, username string) (models.User, error)

	SetRefreshToken(ctx context.Context, userID, token string) error
	SwapRefreshToken(ctx context.Context, userID, previous, next string) error
	ClearRefreshToken(ctx context.Context, userID string) error
}
