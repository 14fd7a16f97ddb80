package handlers

import (
	"context"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/models"
)

// UserStore captures the persistence operations required by the account
// lifecycle handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) (models.User, error)
	ClearRefreshToken(ctx context.Context, userID string) error
}

// TokenIssuer mints, rotates, and verifies session token pairs.
type TokenIssuer interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Rotate(ctx context.Context, userID, presented string) (models.SessionTokens, error)
	Verify(token string, kind auth.Kind) (userID string, err error)
}

// VideoStore captures persistence for video publishing and view tracking.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	RecordView(ctx context.Context, userID, videoID string) error
}

// SubscriptionStore toggles a user's subscription to a channel.
type SubscriptionStore interface {
	Toggle(ctx context.Context, subscriberID, channelID string) (bool, error)
}

// ChannelStore serves channel profile and watch-history reads.
type ChannelStore interface {
	Profile(ctx context.Context, username, requesterID string) (models.ChannelProfile, error)
	WatchHistory(ctx context.Context, userID string) ([]models.WatchEntry, error)
}
