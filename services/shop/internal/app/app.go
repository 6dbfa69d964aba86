package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"pearl/internal/util"
	"pearl/pkg/domain"
	"pearl/pkg/notify"
	"pearl/pkg/session"
	"pearl/pkg/store"
)

// AccessTokens issues and checks short-lived access tokens.
type AccessTokens interface {
	Issue(acc domain.Account) (string, time.Time, error)
	Verify(raw string) (session.Claims, error)
	Revoke(raw string) error
	RevokeAccount(accountID string, since time.Time) error
	JWKS() []session.JWK
}

// RefreshTokens rotates long-lived refresh tokens.
type RefreshTokens interface {
	Issue(ctx context.Context, accountID string) (string, error)
	Rotate(ctx context.Context, token string) (string, string, error)
	Revoke(ctx context.Context, token string) error
	RevokeAccount(ctx context.Context, accountID string) error
}

// Config holds everything the application needs. It is built once at startup.
type Config struct {
	Store    store.Store
	Tokens   AccessTokens
	Refresh  RefreshTokens
	Notifier notify.Notifier
	// NotifyTimeout bounds a single verification code hand-off.
	NotifyTimeout time.Duration
	Logger        *slog.Logger
	Now           func() time.Time
}

// App is the core application service wiring together storage and auth logic.
type App struct {
	store         store.Store
	tokens        AccessTokens
	refresh       RefreshTokens
	notifier      notify.Notifier
	notifyTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// New constructs the application from an explicit configuration.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("access token issuer required")
	}
	if cfg.Refresh == nil {
		return nil, errors.New("refresh token store required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.LogNotifier{Logger: cfg.Logger}
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &App{
		store:         cfg.Store,
		tokens:        cfg.Tokens,
		refresh:       cfg.Refresh,
		notifier:      cfg.Notifier,
		notifyTimeout: cfg.NotifyTimeout,
		logger:        cfg.Logger,
		now:           cfg.Now,
	}, nil
}

// Ping reports whether the database answers.
func (a *App) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

// JWKS exposes the public keys access tokens can be verified with.
func (a *App) JWKS() []session.JWK {
	return a.tokens.JWKS()
}

func (a *App) log(ctx context.Context) *slog.Logger {
	return util.LoggerFromContextOr(ctx, a.logger)
}

func (a *App) clock() time.Time {
	return a.now().UTC()
}

func isAdmin(acc domain.Account) bool {
	return acc.Role == domain.RoleAdmin
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Paging is the common limit/offset pair accepted by listing operations.
// A zero limit means defaultPageSize.
type Paging struct {
	Limit  int
	Offset int
}

func (p Paging) page() store.Page {
	limit, offset := p.Limit, p.Offset
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return store.Page{Limit: limit, Offset: offset}
}
