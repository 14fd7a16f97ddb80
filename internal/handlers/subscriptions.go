package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vidtube/backend/internal/apierror"
	"github.com/vidtube/backend/internal/repositories"
)

// SubscriptionHandler toggles channel subscriptions.
type SubscriptionHandler struct {
	Subscriptions SubscriptionStore
	Users         UserStore
}

type subscriptionResponse struct {
	ChannelID  string `json:"channelId"`
	Subscribed bool   `json:"subscribed"`
}

// Toggle handles POST /api/v1/subscriptions/{channelID}. Requires the auth
// guard. Subscribing twice unsubscribes.
func (h SubscriptionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	user, ok := UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apierror.Unauthorized("authentication required"))
		return
	}

	channelID := strings.TrimSpace(r.PathValue("channelID"))
	if channelID == "" {
		respondError(ctx, w, apierror.BadRequest("channel id is required"))
		return
	}
	if channelID == user.ID {
		respondError(ctx, w, apierror.BadRequest("cannot subscribe to your own channel"))
		return
	}

	if _, err := h.Users.FindByID(ctx, channelID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, apierror.NotFound("channel not found"))
			return
		}
		respondError(ctx, w, apierror.Internal("unable to look up channel", err))
		return
	}

	subscribed, err := h.Subscriptions.Toggle(ctx, user.ID, channelID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, apierror.NotFound("channel not found"))
			return
		}
		respondError(ctx, w, apierror.Internal("unable to update subscription", err))
		return
	}

	message := "subscribed to channel"
	if !subscribed {
		message = "unsubscribed from channel"
	}
	respondData(ctx, w, http.StatusOK, subscriptionResponse{ChannelID: channelID, Subscribed: subscribed}, message)
}
