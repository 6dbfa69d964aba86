// Package session issues RS256 access tokens and rotating refresh tokens.
package session

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"sort"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"pearl/pkg/domain"
)

const (
	DefaultIssuer   = "pearl-shop"
	DefaultAudience = "pearl-api"
)

var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrRevokedToken = errors.New("access token revoked")
)

// Claims carried by an access token.
type Claims struct {
	jwt.RegisteredClaims
	Role domain.AccountRole `json:"role"`
}

// Options configures a Tokens issuer.
type Options struct {
	KeyID    string
	TTL      time.Duration
	Issuer   string
	Audience string
	Leeway   time.Duration
	// Verifiers holds additional public keys by kid, e.g. a rotated-out key.
	Verifiers map[string]*rsa.PublicKey
	Revoker   Revoker
	Now       func() time.Time
}

// JWK is a JSON Web Key entry.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// Tokens signs and verifies access tokens.
type Tokens struct {
	signer    *rsa.PrivateKey
	kid       string
	verifiers map[string]*rsa.PublicKey
	ttl       time.Duration
	issuer    string
	audience  string
	leeway    time.Duration
	revoker   Revoker
	now       func() time.Time
}

// NewTokens builds an RS256 issuer. The signer's public key is always a verifier.
func NewTokens(signer *rsa.PrivateKey, opts Options) (*Tokens, error) {
	if signer == nil {
		return nil, errors.New("session signer key is required")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	kid := strings.TrimSpace(opts.KeyID)
	if kid == "" {
		kid = "pearl-active"
	}
	verifiers := map[string]*rsa.PublicKey{kid: &signer.PublicKey}
	for id, pub := range opts.Verifiers {
		id = strings.TrimSpace(id)
		if id == "" || pub == nil || id == kid {
			continue
		}
		verifiers[id] = pub
	}
	t := &Tokens{
		signer:    signer,
		kid:       kid,
		verifiers: verifiers,
		ttl:       opts.TTL,
		issuer:    firstNonEmpty(opts.Issuer, DefaultIssuer),
		audience:  firstNonEmpty(opts.Audience, DefaultAudience),
		leeway:    opts.Leeway,
		revoker:   opts.Revoker,
		now:       opts.Now,
	}
	if t.leeway <= 0 {
		t.leeway = 30 * time.Second
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t, nil
}

// TTL is the lifetime of issued access tokens.
func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token for the account.
func (t *Tokens) Issue(acc domain.Account) (string, time.Time, error) {
	now := t.now().UTC()
	expires := now.Add(t.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID,
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        randomHex(12),
		},
		Role: acc.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = t.kid
	signed, err := token.SignedString(t.signer)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Verify checks signature, registered claims and revocation state.
func (t *Tokens) Verify(raw string) (Claims, error) {
	claims, err := t.parse(raw)
	if err != nil {
		return Claims{}, err
	}
	if t.revoker == nil {
		return claims, nil
	}
	revoked, err := t.revoker.IsRevoked(claims.ID)
	if err != nil {
		return Claims{}, err
	}
	if revoked {
		return Claims{}, ErrRevokedToken
	}
	cutoff, err := t.revoker.RevokedAfter(claims.Subject)
	if err != nil {
		return Claims{}, err
	}
	if !cutoff.IsZero() && !claims.IssuedAt.Time.After(cutoff) {
		return Claims{}, ErrRevokedToken
	}
	return claims, nil
}

// Revoke blacklists a single token until it would expire anyway. Invalid
// tokens are ignored.
func (t *Tokens) Revoke(raw string) error {
	if t.revoker == nil {
		return nil
	}
	claims, err := t.parse(raw)
	if err != nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(t.now())
	return t.revoker.Revoke(claims.ID, ttl)
}

// RevokeAccount invalidates every token of the account issued up to since.
func (t *Tokens) RevokeAccount(accountID string, since time.Time) error {
	if t.revoker == nil {
		return nil
	}
	return t.revoker.RevokeAccount(accountID, since, t.ttl+t.leeway)
}

// JWKS publishes verifier keys sorted by kid.
func (t *Tokens) JWKS() []JWK {
	kids := make([]string, 0, len(t.verifiers))
	for kid := range t.verifiers {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	out := make([]JWK, 0, len(kids))
	for _, kid := range kids {
		pub := t.verifiers[kid]
		out = append(out, JWK{
			Kty: "RSA",
			Use: "sig",
			Kid: kid,
			Alg: jwt.SigningMethodRS256.Alg(),
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return out
}

func (t *Tokens) parse(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(tok *jwt.Token) (any, error) {
		kid, _ := tok.Header["kid"].(string)
		pub, ok := t.verifiers[strings.TrimSpace(kid)]
		if !ok {
			return nil, errors.New("unknown token key")
		}
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(t.leeway),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.ID == "" || claims.Subject == "" || claims.IssuedAt == nil {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func firstNonEmpty(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
