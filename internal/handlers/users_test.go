package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
)

type inMemoryUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{users: make(map[string]models.User)}
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *inMemoryUserStore) FindByEmailOrUsername(_ context.Context, email, username string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if (email != "" && user.Email == email) || (username != "" && user.Username == username) {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) SetRefreshToken(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return repositories.ErrNotFound
	}
	user.RefreshToken = token
	s.users[userID] = user
	return nil
}

func (s *inMemoryUserStore) SwapRefreshToken(_ context.Context, userID, previous, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok || user.RefreshToken == "" || user.RefreshToken != previous {
		return auth.ErrTokenSuperseded
	}
	user.RefreshToken = next
	s.users[userID] = user
	return nil
}

func (s *inMemoryUserStore) ClearRefreshToken(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return repositories.ErrNotFound
	}
	user.RefreshToken = ""
	s.users[userID] = user
	return nil
}

func (s *inMemoryUserStore) stored(userID string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID]
}

type fakeUploader struct {
	mu       sync.Mutex
	failFor  map[string]bool
	uploaded []string
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{failFor: make(map[string]bool)}
}

// UploadFile honors the media-host contract: the temp file is removed
// whether or not the upload succeeds.
func (f *fakeUploader) UploadFile(_ context.Context, localPath, keyPrefix string) (string, error) {
	os.Remove(localPath)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[keyPrefix] {
		return "", errors.New("media host unavailable")
	}
	f.uploaded = append(f.uploaded, keyPrefix)
	return "https://media.test/" + keyPrefix + "/" + filepath.Base(localPath), nil
}

func newTestTokens(store auth.TokenStore) *auth.TokenService {
	return auth.NewTokenService("access-secret", "refresh-secret", time.Minute, time.Hour, store)
}

func newUserHandler(t *testing.T, store *inMemoryUserStore, uploader *fakeUploader) UserHandler {
	t.Helper()
	return UserHandler{
		Users:   store,
		Tokens:  newTestTokens(store),
		Media:   uploader,
		TempDir: t.TempDir(),
	}
}

func multipartRequest(t *testing.T, target string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	for field, filename := range files {
		fw, err := w.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create form file %s: %v", field, err)
		}
		if _, err := fw.Write([]byte("file-bytes")); err != nil {
			t.Fatalf("write form file %s: %v", field, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func registerFields() map[string]string {
	return map[string]string{
		"fullname": "A B",
		"email":    "a@b.com",
		"username": "ab",
		"password": "secret1",
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestUserHandlerRegister(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newUserHandler(t, store, newFakeUploader())

	req := multipartRequest(t, "/api/v1/users/register", registerFields(), map[string]string{"avatar": "avatar.png"})
	rec := httptest.NewRecorder()

	handler.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %v", body["data"])
	}
	if data["username"] != "ab" {
		t.Fatalf("expected username ab, got %v", data["username"])
	}
	if _, present := data["password"]; present {
		t.Fatal("response must not contain a password field")
	}
	if _, present := data["refreshToken"]; present {
		t.Fatal("response must not contain a refreshToken field")
	}
	if data["avatar"] == "" {
		t.Fatal("expected avatar url in response")
	}

	stored, err := store.FindByEmailOrUsername(context.Background(), "a@b.com", "")
	if err != nil {
		t.Fatalf("expected user to be stored: %v", err)
	}
	if stored.PasswordHash == "" || stored.PasswordHash == "secret1" {
		t.Fatalf("stored password must be a hash, got %q", stored.PasswordHash)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret1")) != nil {
		t.Fatal("stored hash does not verify against the plaintext")
	}
}

func TestUserHandlerRegisterUppercaseUsername(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newUserHandler(t, store, newFakeUploader())

	fields := registerFields()
	fields["username"] = "MixedCase"
	req := multipartRequest(t, "/api/v1/users/register", fields, map[string]string{"avatar": "avatar.png"})
	rec := httptest.NewRecorder()

	handler.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	if _, err := store.FindByEmailOrUsername(context.Background(), "", "mixedcase"); err != nil {
		t.Fatalf("expected lowercased username to be stored: %v", err)
	}
}

func TestUserHandlerRegisterValidation(t *testing.T) {
	for _, field := range []string{"fullname", "email", "username", "password"} {
		t.Run(field, func(t *testing.T) {
			store := newInMemoryUserStore()
			handler := newUserHandler(t, store, newFakeUploader())

			fields := registerFields()
			fields[field] = "   "
			req := multipartRequest(t, "/api/v1/users/register", fields, map[string]string{"avatar": "avatar.png"})
			rec := httptest.NewRecorder()

			handler.Register(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400 got %d", rec.Code)
			}
			body := decodeBody(t, rec)
			if body["success"] != false {
				t.Fatalf("expected success false, got %v", body["success"])
			}
			if len(store.users) != 0 {
				t.Fatal("no record should be created on validation failure")
			}
		})
	}
}

func TestUserHandlerRegisterConflict(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newUserHandler(t, store, newFakeUploader())

	store.users["user-1"] = models.User{ID: "user-1", Email: "a@b.com", Username: "taken"}

	req := multipartRequest(t, "/api/v1/users/register", registerFields(), map[string]string{"avatar": "avatar.png"})
	rec := httptest.NewRecorder()

	handler.Register(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rec.Code)
	}
	if len(store.users) != 1 {
		t.Fatal("no new record should be created on conflict")
	}
}

func TestUserHandlerRegisterWithoutCoverImage(t *testing.T) {
	store := newInMemoryUserStore()
	uploader := newFakeUploader()
	handler := newUserHandler(t, store, uploader)

	req := multipartRequest(t, "/api/v1/users/register", registerFields(), map[string]string{"avatar": "avatar.png"})
	rec := httptest.NewRecorder()

	handler.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}

	// No cover part means no upload attempt for the covers prefix.
	if len(uploader.uploaded) != 1 || uploader.uploaded[0] != "avatars" {
		t.Fatalf("expected only an avatar upload, got %v", uploader.uploaded)
	}

	stored, err := store.FindByEmailOrUsername(context.Background(), "a@b.com", "")
	if err != nil {
		t.Fatalf("expected user to be stored: %v", err)
	}
	if stored.CoverImageURL != "" {
		t.Fatalf("expected empty cover image url, got %q", stored.CoverImageURL)
	}
}

func TestUserHandlerRegisterMissingAvatar(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newUserHandler(t, store, newFakeUploader())

	req := multipartRequest(t, "/api/v1/users/register", registerFields(), nil)
	rec := httptest.NewRecorder()

	handler.Register(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
	if len(store.users) != 0 {
		t.Fatal("no record should be created without an avatar")
	}
}

func TestUserHandlerRegisterAvatarUploadFailure(t *testing.T) {
	store := newInMemoryUserStore()
	uploader := newFakeUploader()
	uploader.failFor["avatars"] = true
	handler := newUserHandler(t, store, uploader)

	req := multipartRequest(t, "/api/v1/users/register", registerFields(), map[string]string{"avatar": "avatar.png"})
	rec := httptest.NewRecorder()

	handler.Register(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
	if len(store.users) != 0 {
		t.Fatal("no record should be created when the avatar upload fails")
	}

	entries, err := os.ReadDir(handler.TempDir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatal("temp file must be removed after a failed upload")
	}
}

func TestUserHandlerRegisterCoverUploadFailureTolerated(t *testing.T) {
	store := newInMemoryUserStore()
	uploader := newFakeUploader()
	uploader.failFor["covers"] = true
	handler := newUserHandler(t, store, uploader)

	req := multipartRequest(t, "/api/v1/users/register", registerFields(), map[string]string{
		"avatar":     "avatar.png",
		"coverImage": "cover.png",
	})
	rec := httptest.NewRecorder()

	handler.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}

	stored, err := store.FindByEmailOrUsername(context.Background(), "a@b.com", "")
	if err != nil {
		t.Fatalf("expected user to be stored: %v", err)
	}
	if stored.CoverImageURL != "" {
		t.Fatalf("expected empty cover image, got %q", stored.CoverImageURL)
	}
	if stored.AvatarURL == "" {
		t.Fatal("expected avatar url to be stored")
	}
}

func seedUser(t *testing.T, store *inMemoryUserStore, password string) models.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := models.User{
		ID:           "user-1",
		Fullname:     "Login User",
		Email:        "login@example.com",
		Username:     "loginuser",
		PasswordHash: string(hashed),
		AvatarURL:    "https://media.test/avatars/a.png",
	}
	store.users[user.ID] = user
	return user
}

func loginBody(t *testing.T, req loginRequest) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal login request: %v", err)
	}
	return bytes.NewReader(body)
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestUserHandlerLogin(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newUserHandler(t, store, newFakeUploader())
	user := seedUser(t, store, "password123")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", loginBody(t, loginRequest{Email: "login@example.com", Password: "password123"}))
	rec := httptest.NewRecorder()

	handler.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data sessionResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Tokens.AccessToken == "" || resp.Data.Tokens.RefreshToken == "" {
		t.Fatalf("expected tokens to be issued, got %+v", resp.Data.Tokens)
	}

	if stored := store.stored(user.ID); stored.RefreshToken != resp.Data.Tokens.RefreshToken {
		t.Fatal("stored refresh token must equal the returned refresh token")
	}

	for _, name := range []string{auth.AccessTokenCookie, auth.RefreshTokenCookie} {
		cookie := cookieByName(rec, name)
		if cookie == nil {
			t.Fatalf("expected %s cookie to be set", name)
		}
		if !cookie.HttpOnly || !cookie.Secure {
			t.Fatalf("expected %s cookie to be httpOnly and secure", name)
		}
	}
}

func TestUserHandlerLoginByUsername(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newUserHandler(t, store, newFakeUploader())
	seedUser(t, store, "password123")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", loginBody(t, loginRequest{Username: "loginuser", Password: "password123"}))
	rec := httptest.NewRecorder()

	handler.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
}

func TestUserHandlerLoginWrongPassword(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newUserHandler(t, store, newFakeUploader())
	user := seedUser(t, store, "password123")
	store.users[user.ID] = func() models.User { u := store.users[user.ID]; u.RefreshToken = "existing-token"; return u }()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", loginBody(t, loginRequest{Email: "login@example.com", Password: "wrong"}))
	rec := httptest.NewRecorder()

	handler.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("no cookies should be set on failed login")
	}
	if stored := store.stored(user.ID); stored.RefreshToken != "existing-token" {
		t.Fatal("stored refresh token must be unchanged on failed login")
	}

	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Fatalf("expected error envelope, got %v", body)
	}
}

func TestUserHandlerLoginValidation(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newUserHandler(t, store, newFakeUploader())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", loginBody(t, loginRequest{Password: "secret"}))
	rec := httptest.NewRecorder()

	handler.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestUserHandlerLoginUnknownUser(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newUserHandler(t, store, newFakeUploader())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", loginBody(t, loginRequest{Email: "nobody@example.com", Password: "secret"}))
	rec := httptest.NewRecorder()

	handler.Login(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestUserHandlerLogout(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newUserHandler(t, store, newFakeUploader())
	user := seedUser(t, store, "password123")

	tokens, err := handler.Tokens.Issue(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/logout", nil)
	req = req.WithContext(ContextWithUser(req.Context(), user.Sanitized()))
	rec := httptest.NewRecorder()

	handler.Logout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if stored := store.stored(user.ID); stored.RefreshToken != "" {
		t.Fatal("stored refresh token must be cleared on logout")
	}

	for _, name := range []string{auth.AccessTokenCookie, auth.RefreshTokenCookie} {
		cookie := cookieByName(rec, name)
		if cookie == nil || cookie.MaxAge != -1 {
			t.Fatalf("expected %s cookie to be cleared", name)
		}
	}

	// A refresh with the pre-logout token is rejected.
	refreshReq := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil)
	refreshReq.AddCookie(&http.Cookie{Name: auth.RefreshTokenCookie, Value: tokens.RefreshToken})
	refreshRec := httptest.NewRecorder()

	handler.Refresh(refreshRec, refreshReq)

	if refreshRec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 after logout, got %d", refreshRec.Code)
	}
}

func TestUserHandlerLogoutUnauthenticated(t *testing.T) {
	handler := newUserHandler(t, newInMemoryUserStore(), newFakeUploader())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/logout", nil)
	rec := httptest.NewRecorder()

	handler.Logout(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
}

func TestUserHandlerRefresh(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newUserHandler(t, store, newFakeUploader())
	user := seedUser(t, store, "password123")

	first, err := handler.Tokens.Issue(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil)
	req.AddCookie(&http.Cookie{Name: auth.RefreshTokenCookie, Value: first.RefreshToken})
	rec := httptest.NewRecorder()

	handler.Refresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data models.SessionTokens `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.RefreshToken == "" || resp.Data.RefreshToken == first.RefreshToken {
		t.Fatal("expected a new refresh token to be issued")
	}
	if stored := store.stored(user.ID); stored.RefreshToken != resp.Data.RefreshToken {
		t.Fatal("stored refresh token must be rotated")
	}

	// The superseded token no longer matches the stored value.
	replayReq := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil)
	replayReq.AddCookie(&http.Cookie{Name: auth.RefreshTokenCookie, Value: first.RefreshToken})
	replayRec := httptest.NewRecorder()

	handler.Refresh(replayRec, replayReq)

	if replayRec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for superseded token, got %d", replayRec.Code)
	}
}

func TestUserHandlerRefreshBearerHeader(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newUserHandler(t, store, newFakeUploader())
	user := seedUser(t, store, "password123")

	tokens, err := handler.Tokens.Issue(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.RefreshToken)
	rec := httptest.NewRecorder()

	handler.Refresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
}

func TestUserHandlerRefreshFailures(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newUserHandler(t, store, newFakeUploader())
	user := seedUser(t, store, "password123")

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil)
		rec := httptest.NewRecorder()
		handler.Refresh(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 got %d", rec.Code)
		}
	})

	t.Run("malformed token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil)
		req.AddCookie(&http.Cookie{Name: auth.RefreshTokenCookie, Value: "garbage"})
		rec := httptest.NewRecorder()
		handler.Refresh(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 got %d", rec.Code)
		}
	})

	t.Run("valid signature but not the stored token", func(t *testing.T) {
		first, err := handler.Tokens.Issue(context.Background(), user.ID)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		// A later issue supersedes the first pair.
		if _, err := handler.Tokens.Issue(context.Background(), user.ID); err != nil {
			t.Fatalf("issue again: %v", err)
		}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil)
		req.AddCookie(&http.Cookie{Name: auth.RefreshTokenCookie, Value: first.RefreshToken})
		rec := httptest.NewRecorder()
		handler.Refresh(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 got %d", rec.Code)
		}
	})

	t.Run("user deleted", func(t *testing.T) {
		tokens, err := handler.Tokens.Issue(context.Background(), user.ID)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		store.mu.Lock()
		delete(store.users, user.ID)
		store.mu.Unlock()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh", nil)
		req.AddCookie(&http.Cookie{Name: auth.RefreshTokenCookie, Value: tokens.RefreshToken})
		rec := httptest.NewRecorder()
		handler.Refresh(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 got %d", rec.Code)
		}
	})
}
