package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return path
}

const baseConfig = `
databaseURL: postgres://pearl@localhost/pearl
redisAddr: localhost:6379
jwtPrivateKeyPath: /keys/jwt.pem
sessionTTL: 15m
codeRateLimitPerMinute: 5
trustedProxies: ["10.0.0.0/8"]
notify:
  driver: queue
`

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	path := writeConfig(t, baseConfig)
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("PEARL_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.Notify.Sender != "log" || cfg.Notify.QueueConcurrency != 2 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.RedisAddr != "redis:6380" {
		t.Fatalf("env override ignored: %q", cfg.RedisAddr)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("cors origins = %v", cfg.CORSAllowedOrigins)
	}
	if ttl, _ := ParseDuration("sessionTTL", cfg.SessionTTL); ttl != 15*time.Minute {
		t.Fatalf("session ttl = %v", ttl)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	path := writeConfig(t, baseConfig)
	if err := os.WriteFile(".env", []byte("PEARL_NOTIFY_DRIVER=log\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("PEARL_NOTIFY_DRIVER") })
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Notify.Driver != "log" {
		t.Fatalf(".env value ignored: %q", cfg.Notify.Driver)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"databaseURL":       "redisAddr: r:1\njwtPrivateKeyPath: k\n",
		"redisAddr":         "databaseURL: d\njwtPrivateKeyPath: k\n",
		"jwtPrivateKeyPath": "databaseURL: d\nredisAddr: r:1\n",
		"duration":          baseConfig + "refreshTTL: soon\n",
		"driver":            strings.Replace(baseConfig, "driver: queue", "driver: pigeon", 1),
		"amqpURL":           strings.Replace(baseConfig, "driver: queue", "driver: amqp", 1),
		"aliyun":            baseConfig + "  sender: aliyun\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, body)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestParseVerifyPublicKeys(t *testing.T) {
	keys, err := ParseVerifyPublicKeys("old=/keys/old.pem, older=/keys/older.pem")
	if err != nil || len(keys) != 2 || keys["older"] != "/keys/older.pem" {
		t.Fatalf("keys = %v, %v", keys, err)
	}
	if keys, err := ParseVerifyPublicKeys(""); err != nil || keys != nil {
		t.Fatalf("empty input = %v, %v", keys, err)
	}
	if _, err := ParseVerifyPublicKeys("broken"); err == nil {
		t.Fatalf("expected error")
	}
}
