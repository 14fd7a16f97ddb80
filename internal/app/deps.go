package app

import (
	"time"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/db"
	"github.com/vidtube/backend/internal/handlers"
	"github.com/vidtube/backend/internal/media"
	"github.com/vidtube/backend/internal/middleware"
	"github.com/vidtube/backend/internal/repositories"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(pool db.Pool, cfg config.Config, uploader media.Uploader) handlers.Dependencies {
	users := repositories.NewPostgresUserRepository(pool)

	tokens := auth.NewTokenService(
		cfg.AccessTokenSecret,
		cfg.RefreshTokenSecret,
		cfg.AccessTokenTTL,
		cfg.RefreshTokenTTL,
		users,
	)

	authLimiter := middleware.NewIPRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow, cfg.AuthRateBurst, 10*time.Minute)

	return handlers.Dependencies{
		DB:            pool,
		Users:         users,
		Tokens:        tokens,
		Videos:        repositories.NewPostgresVideoRepository(pool),
		Subscriptions: repositories.NewPostgresSubscriptionRepository(pool),
		Channels:      repositories.NewPostgresChannelRepository(pool),
		Media:         uploader,
		TempDir:       cfg.UploadTempDir,
		AuthLimiter:   authLimiter,
	}
}
