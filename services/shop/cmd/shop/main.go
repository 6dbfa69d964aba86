package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"pearl/internal/ratelimit"
	"pearl/internal/util"
	"pearl/pkg/notify"
	"pearl/pkg/queue"
	"pearl/pkg/session"
	"pearl/pkg/store"
	"pearl/services/shop/internal/app"
	"pearl/services/shop/internal/config"
	"pearl/services/shop/internal/server"
)

const (
	defaultSessionTTL = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger(util.LogOptions{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "shop"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("shop exited", "err", err)
		os.Exit(1)
	}
}

func durationOr(name, raw string, fallback time.Duration) time.Duration {
	d, _ := config.ParseDuration(name, raw)
	if d == 0 {
		return fallback
	}
	return d
}

func run(ctx context.Context, cfg config.FileConfig, logger *slog.Logger) error {
	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	tokens, err := newTokens(cfg, rdb)
	if err != nil {
		return err
	}
	refresh := session.NewRefreshStore(rdb, "", durationOr("refreshTTL", cfg.RefreshTTL, defaultRefreshTTL))

	var jobs *queue.RedisJobQueue
	if cfg.Notify.Driver == "queue" {
		jobs, err = queue.NewRedisJobQueue(rdb, queue.Config{
			Stream:     cfg.Notify.QueueStream,
			Group:      "notifications",
			MaxRetries: cfg.Notify.QueueMaxRetries,
			RetryDelay: durationOr("notify.queueRetryDelay", cfg.Notify.QueueRetryDelay, 0),
		})
		if err != nil {
			return fmt.Errorf("init queue: %w", err)
		}
	}
	notifier, closeNotifier, err := newNotifier(cfg, jobs, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	core, err := app.New(app.Config{
		Store:         st,
		Tokens:        tokens,
		Refresh:       refresh,
		Notifier:      notifier,
		NotifyTimeout: durationOr("notify.timeout", cfg.Notify.Timeout, 0),
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	var limiter ratelimit.Limiter
	if cfg.CodeRateLimitPerMinute > 0 {
		limiter, err = ratelimit.NewFixedWindow(rdb, "pearl:ratelimit:code", cfg.CodeRateLimitPerMinute, time.Minute)
		if err != nil {
			return fmt.Errorf("init rate limiter: %w", err)
		}
	}
	proxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}
	httpServer, err := server.New(server.Config{
		App:                core,
		CodeLimiter:        limiter,
		TrustedProxies:     proxies,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var worker *notify.Worker
	if jobs != nil {
		sender, err := newSender(cfg, logger)
		if err != nil {
			return err
		}
		worker = &notify.Worker{Sender: sender, Logger: logger}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("shop server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if worker != nil {
		g.Go(func() error {
			logger.Info("notification worker started", "stream", cfg.Notify.QueueStream, "sender", cfg.Notify.Sender)
			return jobs.Run(gctx, cfg.Notify.QueueConcurrency, worker.Handle)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shop server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newTokens(cfg config.FileConfig, rdb *redis.Client) (*session.Tokens, error) {
	signer, err := session.LoadPrivateKey(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load jwt private key: %w", err)
	}
	paths, err := config.ParseVerifyPublicKeys(cfg.JWTVerifyPublicKeys)
	if err != nil {
		return nil, err
	}
	verifiers := make(map[string]*rsa.PublicKey, len(paths))
	for kid, path := range paths {
		pub, err := session.LoadPublicKey(path)
		if err != nil {
			return nil, fmt.Errorf("load jwt verify key %s: %w", kid, err)
		}
		verifiers[kid] = pub
	}
	leeway, _ := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)
	tokens, err := session.NewTokens(signer, session.Options{
		KeyID:     cfg.JWTKeyID,
		TTL:       durationOr("sessionTTL", cfg.SessionTTL, defaultSessionTTL),
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		Leeway:    leeway,
		Verifiers: verifiers,
		Revoker:   session.NewRedisRevoker(rdb, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("init tokens: %w", err)
	}
	return tokens, nil
}

// newNotifier picks the hand-off used by the app. The returned close
// function is always safe to call.
func newNotifier(cfg config.FileConfig, jobs *queue.RedisJobQueue, logger *slog.Logger) (notify.Notifier, func(), error) {
	switch cfg.Notify.Driver {
	case "queue":
		return notify.QueueNotifier{Queue: jobs}, func() {}, nil
	case "amqp":
		n, err := notify.NewAMQPNotifier(cfg.Notify.AMQPURL, cfg.Notify.AMQPExchange)
		if err != nil {
			return nil, nil, fmt.Errorf("init amqp notifier: %w", err)
		}
		return n, func() { _ = n.Close() }, nil
	default:
		return notify.LogNotifier{Logger: logger}, func() {}, nil
	}
}

func newSender(cfg config.FileConfig, logger *slog.Logger) (notify.Sender, error) {
	if cfg.Notify.Sender != "aliyun" {
		return notify.LogSender{Logger: logger}, nil
	}
	s, err := notify.NewAliyunSMSSender(notify.AliyunConfig{
		AccessKeyID:     cfg.Notify.AliyunAccessKeyID,
		AccessKeySecret: cfg.Notify.AliyunSecret,
		Endpoint:        cfg.Notify.AliyunEndpoint,
		SignName:        cfg.Notify.AliyunSignName,
		TemplateCode:    cfg.Notify.AliyunTemplate,
	})
	if err != nil {
		return nil, fmt.Errorf("init aliyun sender: %w", err)
	}
	return s, nil
}
