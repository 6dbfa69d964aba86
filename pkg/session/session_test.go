package session

import (
	"context"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"pearl/pkg/domain"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := GenerateKey()
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTokensIssueAndVerify(t *testing.T) {
	_, client := newRedis(t)
	tokens, err := NewTokens(signingKey(t), Options{TTL: time.Hour, KeyID: "k1", Revoker: NewRedisRevoker(client, "")})
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	acc := domain.Account{ID: "acc-1", Role: domain.RoleAdmin}
	raw, expires, err := tokens.Issue(acc)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expires) < 59*time.Minute {
		t.Fatalf("unexpected expiry %v", expires)
	}
	claims, err := tokens.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "acc-1" || claims.Role != domain.RoleAdmin {
		t.Fatalf("claims = %+v", claims)
	}

	if err := tokens.Revoke(raw); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := tokens.Verify(raw); !errors.Is(err, ErrRevokedToken) {
		t.Fatalf("expected ErrRevokedToken, got %v", err)
	}
}

func TestTokensRejectForeignAudienceAndKey(t *testing.T) {
	key := signingKey(t)
	tokens, err := NewTokens(key, Options{TTL: time.Hour})
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	other, _ := NewTokens(key, Options{TTL: time.Hour, Audience: "someone-else"})
	raw, _, _ := other.Issue(domain.Account{ID: "a"})
	if _, err := tokens.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected audience mismatch to fail, got %v", err)
	}

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "a"})
	hsRaw, _ := hs.SignedString([]byte("secret"))
	if _, err := tokens.Verify(hsRaw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected HS256 to be rejected, got %v", err)
	}
	if _, err := tokens.Verify(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected empty token to be rejected")
	}
}

func TestTokensExpire(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens, _ := NewTokens(signingKey(t), Options{TTL: time.Minute, Leeway: time.Second, Now: func() time.Time { return now }})
	raw, _, _ := tokens.Issue(domain.Account{ID: "a"})
	now = now.Add(2 * time.Minute)
	if _, err := tokens.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestRevokeAccountCutoff(t *testing.T) {
	_, client := newRedis(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens, _ := NewTokens(signingKey(t), Options{TTL: time.Hour, Revoker: NewRedisRevoker(client, ""), Now: func() time.Time { return now }})
	old, _, _ := tokens.Issue(domain.Account{ID: "a"})
	if err := tokens.RevokeAccount("a", now); err != nil {
		t.Fatalf("revoke account: %v", err)
	}
	if _, err := tokens.Verify(old); !errors.Is(err, ErrRevokedToken) {
		t.Fatalf("old token should be revoked, got %v", err)
	}
	now = now.Add(2 * time.Second)
	fresh, _, _ := tokens.Issue(domain.Account{ID: "a"})
	if _, err := tokens.Verify(fresh); err != nil {
		t.Fatalf("token issued after cutoff should pass: %v", err)
	}
}

func TestJWKSIncludesRotatedKeys(t *testing.T) {
	tokens, _ := NewTokens(signingKey(t), Options{
		TTL:       time.Hour,
		KeyID:     "current",
		Verifiers: map[string]*rsa.PublicKey{"previous": &signingKey(t).PublicKey},
	})
	keys := tokens.JWKS()
	if len(keys) != 2 || keys[0].Kid != "current" || keys[1].Kid != "previous" {
		t.Fatalf("jwks = %+v", keys)
	}
	if keys[0].Alg != "RS256" || keys[0].N == "" || keys[0].E == "" {
		t.Fatalf("incomplete jwk %+v", keys[0])
	}
}

func TestRefreshRotationAndReplay(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()
	st := NewRefreshStore(client, "test:refresh", time.Hour)

	first, err := st.Issue(ctx, "acc-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	account, second, err := st.Rotate(ctx, first)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if account != "acc-1" || second == first {
		t.Fatalf("rotate returned %q, %q", account, second)
	}

	if _, _, err := st.Rotate(ctx, first); !errors.Is(err, ErrRefreshTokenReplay) {
		t.Fatalf("expected replay detection, got %v", err)
	}
	if _, _, err := st.Rotate(ctx, second); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("family should be burnt after replay, got %v", err)
	}
	if _, _, err := st.Rotate(ctx, "unknown"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestRefreshRevoke(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	st := NewRefreshStore(client, "test:refresh", time.Hour)

	a, _ := st.Issue(ctx, "acc-1")
	b, _ := st.Issue(ctx, "acc-1")
	c, _ := st.Issue(ctx, "acc-2")

	if err := st.Revoke(ctx, a); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, _, err := st.Rotate(ctx, a); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("revoked token rotated: %v", err)
	}
	if err := st.RevokeAccount(ctx, "acc-1"); err != nil {
		t.Fatalf("revoke account: %v", err)
	}
	if _, _, err := st.Rotate(ctx, b); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("account-revoked token rotated: %v", err)
	}
	if _, _, err := st.Rotate(ctx, c); err != nil {
		t.Fatalf("other account affected: %v", err)
	}

	d, _ := st.Issue(ctx, "acc-3")
	mr.FastForward(2 * time.Hour)
	if _, _, err := st.Rotate(ctx, d); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expired token rotated: %v", err)
	}
}
