package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pearl/internal/util"
	"pearl/pkg/store"
	"pearl/services/shop/internal/config"
	"pearl/services/shop/internal/seed"
)

func main() {
	opts := seed.DefaultOptions()
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "postgres DSN; falls back to the shop config file")
	flag.IntVar(&opts.Users, "users", opts.Users, "accounts to create, admin included")
	flag.IntVar(&opts.Products, "products", opts.Products, "products to create")
	flag.IntVar(&opts.Orders, "orders", opts.Orders, "orders to create")
	flag.Int64Var(&opts.Seed, "seed", 0, "random seed; 0 picks one")
	flag.StringVar(&opts.AdminPhone, "admin-phone", opts.AdminPhone, "admin phone number")
	flag.StringVar(&opts.AdminPassword, "admin-password", opts.AdminPassword, "admin password")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	logger := util.InitLogger(util.LogOptions{Level: *logLevel, Format: "text", Service: "seed"})
	opts.Logger = logger

	if *dsn == "" {
		cfg, err := config.Load(config.Path())
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: no -dsn given and config failed to load: %v\n", err)
			os.Exit(1)
		}
		*dsn = cfg.DatabaseURL
	}

	st, err := store.NewGormStore(*dsn)
	if err != nil {
		logger.Error("failed to open store", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	stats, err := seed.Run(ctx, st, opts)
	if err != nil {
		logger.Error("seed failed", "err", err)
		os.Exit(1)
	}
	fmt.Printf("accounts=%d products=%d orders=%d items=%d reviews=%d\n",
		stats.Accounts, stats.Products, stats.Orders, stats.OrderItems, stats.Reviews)
}
