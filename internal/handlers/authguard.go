package handlers

import (
	"context"
	"net/http"

	"github.com/vidtube/backend/internal/apierror"
	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/models"
)

type ctxKey string

const userContextKey ctxKey = "authenticatedUser"

// ContextWithUser attaches the authenticated user to the context.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the authenticated user placed by the auth guard.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// RequireAuth gates a handler behind access-token verification. The token is
// read from the accessToken cookie or the Authorization header; on success
// the sanitized user is attached to the request context. Verification and
// lookup failures collapse into one unauthorized condition, with detail kept
// to the server logs.
func RequireAuth(tokens TokenIssuer, users UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := auth.TokenFromRequest(r, auth.AccessTokenCookie)
			if token == "" {
				respondError(ctx, w, apierror.Unauthorized("access token is required"))
				return
			}

			userID, err := tokens.Verify(token, auth.KindAccess)
			if err != nil {
				respondError(ctx, w, apierror.Wrap(http.StatusUnauthorized, "invalid access token", err))
				return
			}

			user, err := users.FindByID(ctx, userID)
			if err != nil {
				respondError(ctx, w, apierror.Wrap(http.StatusUnauthorized, "invalid access token", err))
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(ctx, user.Sanitized())))
		})
	}
}
