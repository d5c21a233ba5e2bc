// Package testutil holds helpers for environment-gated integration
// tests and test data factories.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/relink/relink/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 731731

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema drops and recreates one migration's schema for tests.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool, migration string) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	downSQL, err := os.ReadFile(filepath.Join(root, "migrations", migration+".down.sql"))
	if err != nil {
		return fmt.Errorf("read down migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(downSQL)); err != nil {
		return fmt.Errorf("apply down migration: %w", err)
	}

	upSQL, err := os.ReadFile(filepath.Join(root, "migrations", migration+".up.sql"))
	if err != nil {
		return fmt.Errorf("read up migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(upSQL)); err != nil {
		return fmt.Errorf("apply up migration: %w", err)
	}

	return nil
}

// ResetLinksSchema drops and recreates the links schema.
func ResetLinksSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return ResetSchema(ctx, pool, "000001_links")
}

// ResetClicksSchema drops and recreates click_events and daily_link_stats.
func ResetClicksSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return ResetSchema(ctx, pool, "000002_clicks")
}

// ResetAPIKeysSchema drops and recreates the api_keys schema.
func ResetAPIKeysSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return ResetSchema(ctx, pool, "000003_api_keys")
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the repository root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", "..")), nil
}

// NewTestLink creates a test link with sensible defaults.
func NewTestLink(t testing.TB, shortCode string) *model.Link {
	t.Helper()
	now := time.Now().UTC()
	return &model.Link{
		ID:          fmt.Sprintf("link-%d", now.UnixNano()),
		ShortCode:   shortCode,
		Destination: "https://example.com/" + shortCode,
		OwnerID:     "test-owner",
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewTestLinkWithExpiry creates a test link with an expiry time.
func NewTestLinkWithExpiry(t testing.TB, shortCode string, expiresAt time.Time) *model.Link {
	t.Helper()
	link := NewTestLink(t, shortCode)
	link.ExpiresAt = &expiresAt
	return link
}

// NewTestClickEvent creates a test click event for a short code.
func NewTestClickEvent(t testing.TB, shortCode string, occurredAt time.Time) *model.ClickEvent {
	t.Helper()
	return &model.ClickEvent{
		ID:          fmt.Sprintf("evt-%d", time.Now().UnixNano()),
		EventID:     fmt.Sprintf("%d-0", occurredAt.UnixMilli()),
		ShortCode:   shortCode,
		DeviceClass: model.DeviceDesktop,
		CountryCode: "US",
		VisitorHash: "a1b2c3d4e5f60718",
		OccurredAt:  occurredAt,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewTestAPIKey creates a test API key record with sensible defaults.
func NewTestAPIKey(t testing.TB, ownerID string, role model.Role) *model.APIKey {
	t.Helper()
	now := time.Now().UTC()
	return &model.APIKey{
		ID:        fmt.Sprintf("key-%d", now.UnixNano()),
		OwnerID:   ownerID,
		KeyHash:   fmt.Sprintf("hash-%d", now.UnixNano()),
		KeyPrefix: "abc123",
		Role:      role,
		Name:      "Test Key",
		CreatedAt: now,
	}
}
