package handlers

import (
	"net/http"
	"time"

	"github.com/vidtube/backend/internal/media"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	DB            Pinger
	Users         UserStore
	Tokens        TokenIssuer
	Videos        VideoStore
	Subscriptions SubscriptionStore
	Channels      ChannelStore
	Media         media.Uploader
	TempDir       string
	AuthLimiter   RateLimiter
	NowFunc       func() time.Time
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{DB: deps.DB}
	users := UserHandler{
		Users:   deps.Users,
		Tokens:  deps.Tokens,
		Media:   deps.Media,
		TempDir: deps.TempDir,
		Limiter: deps.AuthLimiter,
		NowFunc: deps.NowFunc,
	}
	channels := ChannelHandler{Channels: deps.Channels}
	videos := VideoHandler{Videos: deps.Videos, Media: deps.Media, TempDir: deps.TempDir, NowFunc: deps.NowFunc}
	subscriptions := SubscriptionHandler{Subscriptions: deps.Subscriptions, Users: deps.Users}

	guard := RequireAuth(deps.Tokens, deps.Users)

	mux.HandleFunc("/healthz", health.Handle)

	mux.HandleFunc("/api/v1/users/register", users.Register)
	mux.HandleFunc("/api/v1/users/login", users.Login)
	mux.HandleFunc("/api/v1/users/refresh", users.Refresh)
	mux.Handle("/api/v1/users/logout", guard(http.HandlerFunc(users.Logout)))
	mux.Handle("/api/v1/users/history", guard(http.HandlerFunc(channels.History)))
	mux.Handle("/api/v1/users/channel/{username}", guard(http.HandlerFunc(channels.Profile)))

	mux.Handle("/api/v1/videos", guard(http.HandlerFunc(videos.Publish)))
	mux.Handle("/api/v1/videos/{id}/view", guard(http.HandlerFunc(videos.View)))

	mux.Handle("/api/v1/subscriptions/{channelID}", guard(http.HandlerFunc(subscriptions.Toggle)))
}
