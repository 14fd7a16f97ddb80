package repositories

import (
	"context"

	"github.com/vidtube/backend/internal/models"
)

// VideoRepository defines persistence for published videos and view tracking.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	// RecordView bumps the view counter and upserts the viewer's
	// watch-history entry in one transaction.
	RecordView(ctx context.Context, userID, videoID string) error
}

// SubscriptionRepository manages the subscriber/channel relation.
type SubscriptionRepository interface {
	// Toggle subscribes the user to the channel if not subscribed, and
	// unsubscribes otherwise. It reports the resulting state.
	Toggle(ctx context.Context, subscriberID, channelID string) (subscribed bool, err error)
}

// ChannelRepository serves the denormalized read queries for public channel
// profiles and the authenticated user's watch history.
type ChannelRepository interface {
	Profile(ctx context.Context, username, requesterID string) (models.ChannelProfile, error)
	WatchHistory(ctx context.Context, userID string) ([]models.WatchEntry, error)
}
