package app

import (
	"context"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"pearl/pkg/domain"
	"pearl/pkg/notify"
	"pearl/pkg/session"
	"pearl/pkg/store"
	"pearl/pkg/store/storetest"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := session.GenerateKey()
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

func (n *recordingNotifier) last(t *testing.T) notify.Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.msgs) == 0 {
		t.Fatalf("no notification sent")
	}
	return n.msgs[len(n.msgs)-1]
}

type fixture struct {
	app      *App
	store    store.Store
	clock    *fakeClock
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets a test put a wrapper between the app and the store.
func newFixtureWith(t *testing.T, wrap func(store.Store) store.Store) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
	tokens, err := session.NewTokens(signingKey(t), session.Options{
		TTL:     15 * time.Minute,
		Revoker: session.NewRedisRevoker(client, ""),
	})
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	var st store.Store = storetest.New(t)
	backing := st
	if wrap != nil {
		backing = wrap(st)
	}
	notifier := &recordingNotifier{}
	a, err := New(Config{
		Store:    backing,
		Tokens:   tokens,
		Refresh:  session.NewRefreshStore(client, "", time.Hour),
		Notifier: notifier,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return &fixture{app: a, store: st, clock: clock, notifier: notifier}
}

func (f *fixture) register(t *testing.T, phone, email string) domain.Account {
	t.Helper()
	acc, err := f.app.Register(context.Background(), RegisterInput{
		Username:        "user-" + phone,
		Email:           email,
		Phone:           phone,
		Password:        "secret123",
		PasswordConfirm: "secret123",
	})
	if err != nil {
		t.Fatalf("register %s: %v", phone, err)
	}
	return acc
}

func (f *fixture) admin(t *testing.T) domain.Account {
	t.Helper()
	acc := f.register(t, "+10000000000", "admin@example.com")
	acc.Role = domain.RoleAdmin
	if err := f.store.SaveAccount(acc); err != nil {
		t.Fatalf("promote admin: %v", err)
	}
	return acc
}

func (f *fixture) product(t *testing.T, price string) domain.Product {
	t.Helper()
	p := decimal.RequireFromString(price)
	prod, err := f.app.CreateProduct(context.Background(), ProductInput{Name: "Lipstick " + price, Price: &p, StockQuantity: 10})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return prod
}

func fieldOf(t *testing.T, err error) []FieldError {
	t.Helper()
	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	return appErr.Fields
}

func hasField(fields []FieldError, name string) bool {
	for _, f := range fields {
		if f.Field == name {
			return true
		}
	}
	return false
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without store")
	}
}
