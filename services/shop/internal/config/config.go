package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when PEARL_CONFIG is unset.
const DefaultPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                   string       `yaml:"port"`
	DatabaseURL            string       `yaml:"databaseURL"`
	RedisAddr              string       `yaml:"redisAddr"`
	RedisPassword          string       `yaml:"redisPassword"`
	LogLevel               string       `yaml:"logLevel"`
	LogFormat              string       `yaml:"logFormat"`
	SessionTTL             string       `yaml:"sessionTTL"`
	RefreshTTL             string       `yaml:"refreshTTL"`
	JWTPrivateKeyPath      string       `yaml:"jwtPrivateKeyPath"`
	JWTKeyID               string       `yaml:"jwtKeyId"`
	JWTVerifyPublicKeys    string       `yaml:"jwtVerifyPublicKeys"`
	JWTIssuer              string       `yaml:"jwtIssuer"`
	JWTAudience            string       `yaml:"jwtAudience"`
	JWTLeeway              string       `yaml:"jwtLeeway"`
	CodeRateLimitPerMinute int          `yaml:"codeRateLimitPerMinute"`
	TrustedProxies         []string     `yaml:"trustedProxies"`
	CORSAllowedOrigins     []string     `yaml:"corsAllowedOrigins"`
	Notify                 NotifyConfig `yaml:"notify"`
}

type NotifyConfig struct {
	// Driver is log, queue or amqp.
	Driver       string `yaml:"driver"`
	Timeout      string `yaml:"timeout"`
	AMQPURL      string `yaml:"amqpURL"`
	AMQPExchange string `yaml:"amqpExchange"`

	// Sender is used by the queue worker: log or aliyun.
	Sender            string `yaml:"sender"`
	QueueStream       string `yaml:"queueStream"`
	QueueConcurrency  int    `yaml:"queueConcurrency"`
	QueueMaxRetries   int    `yaml:"queueMaxRetries"`
	QueueRetryDelay   string `yaml:"queueRetryDelay"`
	AliyunAccessKeyID string `yaml:"aliyunAccessKeyId"`
	AliyunSecret      string `yaml:"aliyunAccessKeySecret"`
	AliyunEndpoint    string `yaml:"aliyunEndpoint"`
	AliyunSignName    string `yaml:"aliyunSignName"`
	AliyunTemplate    string `yaml:"aliyunTemplateCode"`
}

// Path returns the config file location.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("PEARL_CONFIG")); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads YAML from path, applies .env and environment overrides, then
// validates the result.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = Path()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("PORT", &cfg.Port)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("JWT_PRIVATE_KEY_PATH", &cfg.JWTPrivateKeyPath)
	str("JWT_KEY_ID", &cfg.JWTKeyID)
	str("JWT_VERIFY_PUBLIC_KEYS", &cfg.JWTVerifyPublicKeys)
	str("JWT_ISSUER", &cfg.JWTIssuer)
	str("JWT_AUDIENCE", &cfg.JWTAudience)
	str("JWT_LEEWAY", &cfg.JWTLeeway)
	str("PEARL_SESSION_TTL", &cfg.SessionTTL)
	str("PEARL_REFRESH_TTL", &cfg.RefreshTTL)
	str("PEARL_NOTIFY_DRIVER", &cfg.Notify.Driver)
	str("PEARL_NOTIFY_SENDER", &cfg.Notify.Sender)
	str("PEARL_AMQP_URL", &cfg.Notify.AMQPURL)
	str("ALIYUN_ACCESS_KEY_ID", &cfg.Notify.AliyunAccessKeyID)
	str("ALIYUN_ACCESS_KEY_SECRET", &cfg.Notify.AliyunSecret)
	if v := os.Getenv("PEARL_CODE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CodeRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("PEARL_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitList(v)
	}
	if v := os.Getenv("PEARL_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Notify.Driver == "" {
		cfg.Notify.Driver = "log"
	}
	if cfg.Notify.Sender == "" {
		cfg.Notify.Sender = "log"
	}
	if cfg.Notify.QueueStream == "" {
		cfg.Notify.QueueStream = "pearl:notifications"
	}
	if cfg.Notify.QueueConcurrency <= 0 {
		cfg.Notify.QueueConcurrency = 2
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for sessions and rate limiting")
	}
	if cfg.JWTPrivateKeyPath == "" {
		return errors.New("config: jwtPrivateKeyPath is required (set JWT_PRIVATE_KEY_PATH)")
	}
	if cfg.CodeRateLimitPerMinute < 0 {
		return errors.New("config: codeRateLimitPerMinute must be >= 0")
	}
	for _, d := range []struct{ name, value string }{
		{"sessionTTL", cfg.SessionTTL},
		{"refreshTTL", cfg.RefreshTTL},
		{"jwtLeeway", cfg.JWTLeeway},
		{"notify.timeout", cfg.Notify.Timeout},
		{"notify.queueRetryDelay", cfg.Notify.QueueRetryDelay},
	} {
		if _, err := ParseDuration(d.name, d.value); err != nil {
			return err
		}
	}
	if _, err := ParseVerifyPublicKeys(cfg.JWTVerifyPublicKeys); err != nil {
		return err
	}
	switch cfg.Notify.Driver {
	case "log", "queue":
	case "amqp":
		if cfg.Notify.AMQPURL == "" {
			return errors.New("config: notify.amqpURL is required for the amqp driver")
		}
	default:
		return fmt.Errorf("config: unknown notify.driver %q", cfg.Notify.Driver)
	}
	switch cfg.Notify.Sender {
	case "log":
	case "aliyun":
		if cfg.Notify.AliyunAccessKeyID == "" || cfg.Notify.AliyunSecret == "" {
			return errors.New("config: aliyun sender requires access key id and secret")
		}
		if cfg.Notify.AliyunSignName == "" || cfg.Notify.AliyunTemplate == "" {
			return errors.New("config: aliyun sender requires sign name and template code")
		}
	default:
		return fmt.Errorf("config: unknown notify.sender %q", cfg.Notify.Sender)
	}
	return nil
}

// ParseDuration parses an optional duration; empty means zero.
func ParseDuration(name, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: %s must not be negative", name)
	}
	return d, nil
}

// ParseVerifyPublicKeys parses "kid=path,kid2=path2" into a map.
func ParseVerifyPublicKeys(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range splitList(raw) {
		kid, path, ok := strings.Cut(pair, "=")
		kid, path = strings.TrimSpace(kid), strings.TrimSpace(path)
		if !ok || kid == "" || path == "" {
			return nil, fmt.Errorf("config: invalid jwtVerifyPublicKeys entry %q", pair)
		}
		out[kid] = path
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
