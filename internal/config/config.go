package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"cryptothreads/internal/uniqueness"
)

// ErrMissingCredential marks a configuration that enables a component
// without the secret it needs.
var ErrMissingCredential = errors.New("missing credential")

type Config struct {
	Port        string
	RedisURL    string
	DatabaseURL string
	SQLitePath  string
	// StoreBackend is redis, sqlite or memory.
	StoreBackend string
	// LedgerBackend is kv or postgres.
	LedgerBackend string

	ThreadInterval     time.Duration
	UniquenessWindow   time.Duration
	UniquenessPolicy   string
	HistoryRetention   time.Duration
	CacheRetention     time.Duration
	CacheSweepInterval time.Duration
	CoinGeckoRateLimit int
	MonthlyPostQuota   int
	PublishCooldown    time.Duration
	PublishMaxAttempts int
	Coins              []string

	// MicroBlogPlatform is x, bluesky or log.
	MicroBlogPlatform  string
	XAccessToken       string
	BlueskyHandle      string
	BlueskyAppPassword string
	BlueskyPDS         string
	TelegramBotToken   string
	TelegramChatID     string

	NewsAPIKey      string
	RSSFeeds        []string
	YouTubeAPIKey   string
	YouTubeChannels []string
	OpenAIAPIKey    string
	OpenAIModel     string

	APIKey                    string
	APIBaseURL                string
	SSHPort                   string
	SSHHostKeyPath            string
	SSHAuthorizedFingerprints []string

	TracingEnabled bool
	OTLPEndpoint   string
	LogFormat      string
	LogLevel       string
}

func Load() *Config {
	cfg := &Config{
		Port:               envString("PORT", "8080"),
		RedisURL:           os.Getenv("REDIS_URL"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         envString("SQLITE_PATH", "cryptothreads.db"),
		StoreBackend:       strings.ToLower(envString("STORE_BACKEND", "redis")),
		LedgerBackend:      strings.ToLower(envString("LEDGER_BACKEND", "kv")),
		UniquenessPolicy:   strings.ToLower(envString("UNIQUENESS_POLICY", "majority")),
		MicroBlogPlatform:  strings.ToLower(envString("MICROBLOG_PLATFORM", "log")),
		XAccessToken:       os.Getenv("X_ACCESS_TOKEN"),
		BlueskyHandle:      os.Getenv("BLUESKY_HANDLE"),
		BlueskyAppPassword: os.Getenv("BLUESKY_APP_PASSWORD"),
		BlueskyPDS:         envString("BLUESKY_PDS", "https://bsky.social"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:     strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")),
		NewsAPIKey:         os.Getenv("NEWSAPI_KEY"),
		RSSFeeds:           envList("RSS_FEEDS"),
		YouTubeAPIKey:      os.Getenv("YOUTUBE_API_KEY"),
		YouTubeChannels:    envList("YOUTUBE_CHANNELS"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        envString("OPENAI_MODEL", "gpt-4o-mini"),
		APIKey:             os.Getenv("API_KEY"),
		SSHPort:            envString("SSH_PORT", "2222"),
		SSHHostKeyPath:     envString("SSH_HOST_KEY_PATH", ".ssh/id_ed25519"),
		OTLPEndpoint:       envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		LogFormat:          strings.ToLower(envString("LOG_FORMAT", "json")),
		LogLevel:           strings.ToLower(envString("LOG_LEVEL", "info")),
	}

	cfg.ThreadInterval = envSeconds("THREAD_INTERVAL_SECS", 4*time.Hour)
	cfg.UniquenessWindow = time.Duration(envInt("UNIQUENESS_WINDOW_HOURS", 48)) * time.Hour
	cfg.HistoryRetention = time.Duration(envInt("HISTORY_RETENTION_DAYS", 30)) * 24 * time.Hour
	cfg.CacheRetention = time.Duration(envInt("CACHE_RETENTION_HOURS", 168)) * time.Hour
	cfg.CacheSweepInterval = envSeconds("CACHE_SWEEP_SECS", time.Hour)
	cfg.CoinGeckoRateLimit = envInt("COINGECKO_RATE_LIMIT", 30)
	cfg.MonthlyPostQuota = envInt("MONTHLY_POST_QUOTA", 500)
	cfg.PublishCooldown = envSeconds("PUBLISH_COOLDOWN_SECS", 15*time.Minute)
	cfg.PublishMaxAttempts = envInt("PUBLISH_MAX_ATTEMPTS", 3)
	cfg.TracingEnabled = !strings.EqualFold(strings.TrimSpace(os.Getenv("TRACING_ENABLED")), "false")

	cfg.Coins = envList("COINS")
	for i, c := range cfg.Coins {
		cfg.Coins[i] = strings.ToLower(c)
	}

	cfg.SSHAuthorizedFingerprints = envList("SSH_AUTHORIZED_FINGERPRINTS")
	cfg.APIBaseURL = strings.TrimRight(envString("API_BASE_URL", "http://localhost:"+cfg.Port), "/")

	if cfg.RedisURL == "" && cfg.StoreBackend == "redis" {
		slog.Warn("REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.TelegramBotToken == "" {
		slog.Warn("TELEGRAM_BOT_TOKEN not set, chat digest and bot commands disabled")
	}
	if cfg.NewsAPIKey == "" {
		slog.Warn("NEWSAPI_KEY not set, headlines come from RSS and Reddit only")
	}
	if cfg.YouTubeAPIKey == "" {
		slog.Warn("YOUTUBE_API_KEY not set, video digest disabled")
	}
	if cfg.OpenAIAPIKey == "" {
		slog.Warn("OPENAI_API_KEY not set, sentiment uses keyword heuristic")
	}
	if cfg.APIKey == "" {
		slog.Warn("API_KEY not set, manual cycle endpoint disabled")
	}

	return cfg
}

// Validate reports settings that would make the service fail later. Missing
// secrets wrap ErrMissingCredential.
func (c *Config) Validate() error {
	var errs []error

	switch c.MicroBlogPlatform {
	case "x":
		if strings.TrimSpace(c.XAccessToken) == "" {
			errs = append(errs, fmt.Errorf("%w: X_ACCESS_TOKEN is required for MICROBLOG_PLATFORM=x", ErrMissingCredential))
		}
	case "bluesky":
		if strings.TrimSpace(c.BlueskyHandle) == "" || strings.TrimSpace(c.BlueskyAppPassword) == "" {
			errs = append(errs, fmt.Errorf("%w: BLUESKY_HANDLE and BLUESKY_APP_PASSWORD are required for MICROBLOG_PLATFORM=bluesky", ErrMissingCredential))
		}
	case "log":
	default:
		errs = append(errs, fmt.Errorf("unsupported MICROBLOG_PLATFORM=%q", c.MicroBlogPlatform))
	}

	if c.TelegramChatID != "" && strings.TrimSpace(c.TelegramBotToken) == "" {
		errs = append(errs, fmt.Errorf("%w: TELEGRAM_BOT_TOKEN is required when TELEGRAM_CHAT_ID is set", ErrMissingCredential))
	}

	switch c.StoreBackend {
	case "redis", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_BACKEND=%q", c.StoreBackend))
	}

	switch c.LedgerBackend {
	case "kv":
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, fmt.Errorf("%w: DATABASE_URL is required for LEDGER_BACKEND=postgres", ErrMissingCredential))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LEDGER_BACKEND=%q", c.LedgerBackend))
	}

	if _, err := uniqueness.ParsePolicy(c.UniquenessPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.ThreadInterval < time.Minute {
		errs = append(errs, fmt.Errorf("THREAD_INTERVAL_SECS must be at least 60, got %s", c.ThreadInterval))
	}

	return errors.Join(errs...)
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envInt falls back to def for missing, malformed or non-positive values.
func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("ignoring invalid integer setting", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envSeconds(key string, def time.Duration) time.Duration {
	return time.Duration(envInt(key, int(def/time.Second))) * time.Second
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
