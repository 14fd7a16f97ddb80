package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidtube/backend/internal/apierror"
	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/media"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
)

const maxUploadMemory = 32 << 20

// UserHandler implements the account lifecycle endpoints: register, login,
// logout, and token refresh.
type UserHandler struct {
	Users   UserStore
	Tokens  TokenIssuer
	Media   media.Uploader
	TempDir string
	Limiter RateLimiter
	NowFunc func() time.Time
}

// Register handles POST /api/v1/users/register (multipart).
func (h UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, span := logging.StartSpan(r.Context(), "users.register")
	defer span.End()

	if !allowRequest(h.Limiter, r, "register") {
		respondError(ctx, w, apierror.New(http.StatusTooManyRequests, "too many requests"))
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondError(ctx, w, apierror.BadRequest("invalid multipart request"))
		return
	}

	fullname := strings.TrimSpace(r.FormValue("fullname"))
	email := strings.TrimSpace(strings.ToLower(r.FormValue("email")))
	username := strings.TrimSpace(strings.ToLower(r.FormValue("username")))
	password := r.FormValue("password")

	if fullname == "" || email == "" || username == "" || strings.TrimSpace(password) == "" {
		respondError(ctx, w, apierror.BadRequest("all fields are required").
			WithErrors("fullname, email, username, and password must not be blank"))
		return
	}

	if _, err := h.Users.FindByEmailOrUsername(ctx, email, username); err == nil {
		respondError(ctx, w, apierror.Conflict("user already exists with this email or username"))
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		respondError(ctx, w, apierror.Internal("unable to verify existing accounts", err))
		return
	}

	avatarURL, err := h.uploadFormFile(r, "avatar", "avatars")
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	// Cover image is optional and its upload failure is tolerated.
	coverURL, err := h.uploadOptionalFormFile(r, "coverImage", "covers")
	if err != nil {
		logging.FromContext(ctx).Warn("cover image upload failed", "error", err)
		coverURL = ""
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		respondError(ctx, w, apierror.Internal("failed to secure password", err))
		return
	}

	now := h.now()
	user := models.User{
		ID:            uuid.NewString(),
		Fullname:      fullname,
		Email:         email,
		Username:      username,
		PasswordHash:  string(hashed),
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondError(ctx, w, apierror.Conflict("user already exists with this email or username"))
			return
		}
		respondError(ctx, w, apierror.Internal("user creation failed", err))
		return
	}

	created, err := h.Users.FindByID(ctx, user.ID)
	if err != nil {
		respondError(ctx, w, apierror.Internal("user creation failed", err))
		return
	}

	respondData(ctx, w, http.StatusCreated, created.Sanitized(), "user registered successfully")
}

type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User   models.User          `json:"user"`
	Tokens models.SessionTokens `json:"tokens"`
}

// Login handles POST /api/v1/users/login.
func (h UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, span := logging.StartSpan(r.Context(), "users.login")
	defer span.End()

	if !allowRequest(h.Limiter, r, "login") {
		respondError(ctx, w, apierror.New(http.StatusTooManyRequests, "too many requests"))
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, apierror.BadRequest("invalid request body"))
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(strings.ToLower(req.Username))

	if (req.Email == "" && req.Username == "") || req.Password == "" {
		respondError(ctx, w, apierror.BadRequest("email or username and password are required"))
		return
	}

	user, err := h.Users.FindByEmailOrUsername(ctx, req.Email, req.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, apierror.NotFound("user not found"))
			return
		}
		respondError(ctx, w, apierror.Internal("unable to look up user", err))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respondError(ctx, w, apierror.Unauthorized("invalid credentials"))
		return
	}

	tokens, err := h.Tokens.Issue(ctx, user.ID)
	if err != nil {
		respondError(ctx, w, apierror.Internal("failed to generate tokens", err))
		return
	}

	setAuthCookies(w, tokens)
	respondData(ctx, w, http.StatusOK, sessionResponse{User: user.Sanitized(), Tokens: tokens}, "user logged in successfully")
}

// Logout handles POST /api/v1/users/logout. Requires the auth guard.
func (h UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
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

	if err := h.Users.ClearRefreshToken(ctx, user.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		respondError(ctx, w, apierror.Internal("failed to log out", err))
		return
	}

	clearAuthCookies(w)
	respondData(ctx, w, http.StatusOK, struct{}{}, "user logged out successfully")
}

// Refresh handles POST /api/v1/users/refresh.
func (h UserHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, span := logging.StartSpan(r.Context(), "users.refresh")
	defer span.End()

	if !allowRequest(h.Limiter, r, "refresh") {
		respondError(ctx, w, apierror.New(http.StatusTooManyRequests, "too many requests"))
		return
	}

	presented := auth.TokenFromRequest(r, auth.RefreshTokenCookie)
	if presented == "" {
		respondError(ctx, w, apierror.Unauthorized("refresh token is required"))
		return
	}

	userID, err := h.Tokens.Verify(presented, auth.KindRefresh)
	if err != nil {
		respondError(ctx, w, apierror.Wrap(http.StatusUnauthorized, "invalid refresh token", err))
		return
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, apierror.NotFound("user not found"))
			return
		}
		respondError(ctx, w, apierror.Internal("unable to look up user", err))
		return
	}

	// A superseded token fails here even though its signature still checks
	// out: only the token stored on the record may be redeemed.
	if user.RefreshToken == "" || presented != user.RefreshToken {
		respondError(ctx, w, apierror.Unauthorized("refresh token is expired or already used"))
		return
	}

	tokens, err := h.Tokens.Rotate(ctx, user.ID, presented)
	if err != nil {
		if errors.Is(err, auth.ErrTokenSuperseded) {
			respondError(ctx, w, apierror.Unauthorized("refresh token is expired or already used"))
			return
		}
		respondError(ctx, w, apierror.Internal("failed to generate tokens", err))
		return
	}

	setAuthCookies(w, tokens)
	respondData(ctx, w, http.StatusOK, tokens, "access token refreshed")
}

// uploadFormFile spools the named multipart part to a temp file and uploads
// it through the media host, returning the public URL.
func (h UserHandler) uploadFormFile(r *http.Request, field, keyPrefix string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", apierror.BadRequest(field + " file is required")
		}
		return "", apierror.BadRequest("invalid " + field + " upload")
	}
	defer file.Close()

	path, err := media.SpoolTempFile(h.TempDir, file, header.Filename)
	if err != nil {
		return "", apierror.Internal(field+" upload failed", err)
	}

	url, err := h.Media.UploadFile(r.Context(), path, keyPrefix)
	if err != nil {
		return "", apierror.Internal(field+" upload failed", err)
	}

	return url, nil
}

// uploadOptionalFormFile behaves like uploadFormFile except that an absent
// part is not an error; it returns "" so the field stays unset.
func (h UserHandler) uploadOptionalFormFile(r *http.Request, field, keyPrefix string) (string, error) {
	if _, _, err := r.FormFile(field); errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	return h.uploadFormFile(r, field, keyPrefix)
}

func setAuthCookies(w http.ResponseWriter, tokens models.SessionTokens) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.AccessTokenCookie,
		Value:    tokens.AccessToken,
		Expires:  tokens.AccessExpiresAt,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     auth.RefreshTokenCookie,
		Value:    tokens.RefreshToken,
		Expires:  tokens.RefreshExpiresAt,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{auth.AccessTokenCookie, auth.RefreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func (h UserHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
