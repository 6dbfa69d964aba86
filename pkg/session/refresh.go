package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenReplay  = errors.New("refresh token replay detected")
)

// Refresh tokens are grouped into families. Rotating hands out a new token
// in the same family; presenting an already rotated token burns the family.
//
// Keys:
//
//	<prefix>:token:<hash>         -> family id
//	<prefix>:family:<id>          -> hash{account, current}
//	<prefix>:family_tokens:<id>   -> set of hashes
//	<prefix>:account:<account>    -> set of family ids
type RefreshStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRefreshStore(client *redis.Client, prefix string, ttl time.Duration) *RefreshStore {
	if prefix == "" {
		prefix = "pearl:refresh"
	}
	return &RefreshStore{client: client, prefix: prefix, ttl: ttl}
}

// rotateScript returns {status, account}; status is "ok", "missing" or "replay".
var rotateScript = redis.NewScript(`
local family = redis.call("GET", KEYS[1])
if not family then
  return {"missing", ""}
end
local fkey = ARGV[1] .. ":family:" .. family
local account = redis.call("HGET", fkey, "account")
local current = redis.call("HGET", fkey, "current")
if not account or not current then
  return {"missing", family}
end
if current ~= ARGV[2] then
  return {"replay", family}
end
local ttl = tonumber(ARGV[4])
redis.call("SET", ARGV[1] .. ":token:" .. ARGV[3], family, "PX", ttl)
redis.call("HSET", fkey, "current", ARGV[3])
redis.call("PEXPIRE", fkey, ttl)
redis.call("SADD", ARGV[1] .. ":family_tokens:" .. family, ARGV[3])
redis.call("PEXPIRE", ARGV[1] .. ":family_tokens:" .. family, ttl)
redis.call("PEXPIRE", ARGV[1] .. ":account:" .. account, ttl)
return {"ok", account}
`)

// Issue starts a new family for the account.
func (s *RefreshStore) Issue(ctx context.Context, accountID string) (string, error) {
	token, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	familyID, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	familyID = familyID[:32]
	hash := hashToken(token)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.tokenKey(hash), familyID, s.ttl)
	pipe.HSet(ctx, s.familyKey(familyID), "account", accountID, "current", hash)
	pipe.PExpire(ctx, s.familyKey(familyID), s.ttl)
	pipe.SAdd(ctx, s.familyTokensKey(familyID), hash)
	pipe.PExpire(ctx, s.familyTokensKey(familyID), s.ttl)
	pipe.SAdd(ctx, s.accountKey(accountID), familyID)
	pipe.PExpire(ctx, s.accountKey(accountID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return token, nil
}

// Rotate exchanges token for a fresh one and returns the owning account.
func (s *RefreshStore) Rotate(ctx context.Context, token string) (string, string, error) {
	next, err := newRefreshToken()
	if err != nil {
		return "", "", err
	}
	res, err := rotateScript.Run(ctx, s.client,
		[]string{s.tokenKey(hashToken(token))},
		s.prefix, hashToken(token), hashToken(next), s.ttl.Milliseconds(),
	).StringSlice()
	if err != nil {
		return "", "", err
	}
	if len(res) != 2 {
		return "", "", errors.New("unexpected rotate reply")
	}
	switch res[0] {
	case "ok":
		return res[1], next, nil
	case "replay":
		if err := s.burnFamily(ctx, res[1]); err != nil {
			return "", "", err
		}
		return "", "", ErrRefreshTokenReplay
	default:
		if res[1] != "" {
			_ = s.burnFamily(ctx, res[1])
		}
		return "", "", ErrInvalidRefreshToken
	}
}

// Revoke burns the family containing token. Unknown tokens are ignored.
func (s *RefreshStore) Revoke(ctx context.Context, token string) error {
	familyID, err := s.client.Get(ctx, s.tokenKey(hashToken(token))).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.burnFamily(ctx, familyID)
}

// RevokeAccount burns every family of the account.
func (s *RefreshStore) RevokeAccount(ctx context.Context, accountID string) error {
	families, err := s.client.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, familyID := range families {
		if err := s.burnFamily(ctx, familyID); err != nil {
			return err
		}
	}
	return s.client.Del(ctx, s.accountKey(accountID)).Err()
}

func (s *RefreshStore) burnFamily(ctx context.Context, familyID string) error {
	account, err := s.client.HGet(ctx, s.familyKey(familyID), "account").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	hashes, err := s.client.SMembers(ctx, s.familyTokensKey(familyID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	pipe := s.client.TxPipeline()
	for _, h := range hashes {
		pipe.Del(ctx, s.tokenKey(h))
	}
	pipe.Del(ctx, s.familyTokensKey(familyID), s.familyKey(familyID))
	if account != "" {
		pipe.SRem(ctx, s.accountKey(account), familyID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RefreshStore) tokenKey(hash string) string        { return s.prefix + ":token:" + hash }
func (s *RefreshStore) familyKey(id string) string         { return s.prefix + ":family:" + id }
func (s *RefreshStore) familyTokensKey(id string) string   { return s.prefix + ":family_tokens:" + id }
func (s *RefreshStore) accountKey(accountID string) string { return s.prefix + ":account:" + accountID }

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
