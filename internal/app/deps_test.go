package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidtube/backend/internal/config"
)

type fakePool struct{}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (fakePool) Ping(context.Context) error { return nil }

func (fakePool) Close() {}

type fakeUploader struct{}

func (fakeUploader) UploadFile(context.Context, string, string) (string, error) {
	return "", errors.New("not implemented")
}

func TestBuildDependencies(t *testing.T) {
	cfg := config.Config{
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		UploadTempDir:      t.TempDir(),
		AuthRateLimit:      10,
		AuthRateWindow:     time.Minute,
		AuthRateBurst:      5,
	}

	deps := buildDependencies(fakePool{}, cfg, fakeUploader{})

	if deps.DB == nil {
		t.Fatal("expected database probe to be configured")
	}
	if deps.Users == nil {
		t.Fatal("expected user repository to be configured")
	}
	if deps.Tokens == nil {
		t.Fatal("expected token service to be configured")
	}
	if deps.Videos == nil {
		t.Fatal("expected video repository to be configured")
	}
	if deps.Subscriptions == nil {
		t.Fatal("expected subscription repository to be configured")
	}
	if deps.Channels == nil {
		t.Fatal("expected channel repository to be configured")
	}
	if deps.Media == nil {
		t.Fatal("expected media uploader to be configured")
	}
	if deps.AuthLimiter == nil {
		t.Fatal("expected auth rate limiter to be configured")
	}
	if deps.TempDir != cfg.UploadTempDir {
		t.Fatalf("expected temp dir %q got %q", cfg.UploadTempDir, deps.TempDir)
	}
}
