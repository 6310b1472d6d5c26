package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestClient spins up an in-process miniredis and wraps it.
func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewClientFromRedis(rdb), mr
}

func TestBlacklistRefreshToken_RoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	const token = "some.refresh.token"

	revoked, err := c.IsRefreshTokenBlacklisted(ctx, token)
	if err != nil {
		t.Fatalf("IsRefreshTokenBlacklisted() error: %v", err)
	}
	if revoked {
		t.Error("token reported revoked before blacklisting")
	}

	if err := c.BlacklistRefreshToken(ctx, token, time.Hour); err != nil {
		t.Fatalf("BlacklistRefreshToken() error: %v", err)
	}

	revoked, err = c.IsRefreshTokenBlacklisted(ctx, token)
	if err != nil {
		t.Fatalf("IsRefreshTokenBlacklisted() error: %v", err)
	}
	if !revoked {
		t.Error("token not reported revoked after blacklisting")
	}
}

func TestBlacklistRefreshToken_ExpiresWithTTL(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	const token = "short.lived.token"
	if err := c.BlacklistRefreshToken(ctx, token, time.Minute); err != nil {
		t.Fatalf("BlacklistRefreshToken() error: %v", err)
	}

	// miniredis lets us advance the clock instead of sleeping.
	mr.FastForward(2 * time.Minute)

	revoked, err := c.IsRefreshTokenBlacklisted(ctx, token)
	if err != nil {
		t.Fatalf("IsRefreshTokenBlacklisted() error: %v", err)
	}
	if revoked {
		t.Error("token still reported revoked after TTL elapsed")
	}
}

func TestBlacklistRefreshToken_NonPositiveTTLIsNoop(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	if err := c.BlacklistRefreshToken(ctx, "already-expired", 0); err != nil {
		t.Fatalf("BlacklistRefreshToken() error: %v", err)
	}
	if err := c.BlacklistRefreshToken(ctx, "already-expired", -time.Minute); err != nil {
		t.Fatalf("BlacklistRefreshToken() error: %v", err)
	}

	if got := len(mr.Keys()); got != 0 {
		t.Errorf("expected no keys stored for non-positive TTL, got %d", got)
	}
}

func TestBlacklistKey_HashesToken(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	const token = "plaintext.jwt.refresh"
	if err := c.BlacklistRefreshToken(ctx, token, time.Hour); err != nil {
		t.Fatalf("BlacklistRefreshToken() error: %v", err)
	}

	// The raw token must never be stored as a key.
	for _, key := range mr.Keys() {
		if strings.Contains(key, token) {
			t.Errorf("raw token leaked into redis key %q", key)
		}
		if !strings.HasPrefix(key, blacklistKeyPrefix) {
			t.Errorf("key %q missing namespace prefix %q", key, blacklistKeyPrefix)
		}
	}
}

func TestBlacklistRefreshToken_DistinctTokensIndependent(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if err := c.BlacklistRefreshToken(ctx, "token-a", time.Hour); err != nil {
		t.Fatalf("BlacklistRefreshToken() error: %v", err)
	}

	revoked, err := c.IsRefreshTokenBlacklisted(ctx, "token-b")
	if err != nil {
		t.Fatalf("IsRefreshTokenBlacklisted() error: %v", err)
	}
	if revoked {
		t.Error("unrelated token reported revoked")
	}
}
