package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vidtube/backend/internal/apierror"
	"github.com/vidtube/backend/internal/repositories"
)

// ChannelHandler serves public channel profiles and the authenticated
// user's watch history.
type ChannelHandler struct {
	Channels ChannelStore
}

// Profile handles GET /api/v1/users/channel/{username}. Requires the auth
// guard so the subscribed flag can be computed relative to the requester.
func (h ChannelHandler) Profile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	requester, ok := UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apierror.Unauthorized("authentication required"))
		return
	}

	username := strings.TrimSpace(strings.ToLower(r.PathValue("username")))
	if username == "" {
		respondError(ctx, w, apierror.BadRequest("username is required"))
		return
	}

	profile, err := h.Channels.Profile(ctx, username, requester.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, apierror.NotFound("channel not found"))
			return
		}
		respondError(ctx, w, apierror.Internal("unable to load channel profile", err))
		return
	}

	respondData(ctx, w, http.StatusOK, profile, "channel profile fetched successfully")
}

// History handles GET /api/v1/users/history. Requires the auth guard.
func (h ChannelHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	user, ok := UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apierror.Unauthorized("authentication required"))
		return
	}

	entries, err := h.Channels.WatchHistory(ctx, user.ID)
	if err != nil {
		respondError(ctx, w, apierror.Internal("unable to load watch history", err))
		return
	}

	if len(entries) == 0 {
		respondError(ctx, w, apierror.NotFound("watch history is empty"))
		return
	}

	respondData(ctx, w, http.StatusOK, entries, "watch history fetched successfully")
}
