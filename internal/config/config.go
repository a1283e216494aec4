package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	IrisBaseURL string
	IrisWSURL   string

	BotPrefix  string
	BotVersion string

	XUserID    string
	XUserEmail string
	XSessionID string

	// DatabaseURL empty means the in-memory store.
	DatabaseURL         string
	RedisURL            string
	LeaderboardCacheTTL time.Duration

	AllowedRooms []string
	EgressMode   string
	EgressDryRun bool

	AdminUserIDs     []string
	DevUserIDs       []string
	SelfMatchScoring string

	CommandRate  float64
	CommandBurst int

	MetricsAddr   string
	ChangelogPath string
	MessagesDir   string
}

// Parse reads the environment without enforcing the bot's required settings.
// The CLI uses it directly; the bot goes through Load.
func Parse() (*AppConfig, error) {
	cfg := &AppConfig{
		BotPrefix:           "/",
		BotVersion:          "dev",
		LeaderboardCacheTTL: 30 * time.Second,
		EgressMode:          "http",
		SelfMatchScoring:    "double",
		CommandRate:         1,
		CommandBurst:        5,
		ChangelogPath:       "CHANGELOG.md",
	}

	cfg.IrisBaseURL = env("IRIS_BASE_URL")
	cfg.IrisWSURL = env("IRIS_WS_URL")
	if v := env("BOT_PREFIX"); v != "" {
		cfg.BotPrefix = v
	}
	if v := env("BOT_VERSION"); v != "" {
		cfg.BotVersion = v
	}

	cfg.XUserID = env("X_USER_ID")
	cfg.XUserEmail = env("X_USER_EMAIL")
	cfg.XSessionID = env("X_SESSION_ID")

	cfg.DatabaseURL = env("DATABASE_URL")
	cfg.RedisURL = env("REDIS_URL")
	if v := env("LEADERBOARD_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("LEADERBOARD_CACHE_TTL: invalid duration %q", v)
		}
		cfg.LeaderboardCacheTTL = d
	}

	cfg.AllowedRooms = list("ALLOWED_ROOMS")
	if v := strings.ToLower(env("EGRESS_MODE")); v != "" {
		switch v {
		case "http", "ws", "auto":
			cfg.EgressMode = v
		default:
			return nil, fmt.Errorf("EGRESS_MODE: unknown mode %q", v)
		}
	}
	if v := env("EGRESS_DRYRUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EgressDryRun = b
		}
	}

	cfg.AdminUserIDs = list("ADMIN_USER_IDS")
	cfg.DevUserIDs = list("DEV_USER_IDS")
	if v := strings.ToLower(env("SELF_MATCH_SCORING")); v != "" {
		if v != "double" && v != "single" {
			return nil, fmt.Errorf("SELF_MATCH_SCORING: expected double or single, got %q", v)
		}
		cfg.SelfMatchScoring = v
	}

	if v := env("COMMAND_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.CommandRate = f
		}
	}
	if v := env("COMMAND_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CommandBurst = n
		}
	}

	cfg.MetricsAddr = env("METRICS_ADDR")
	if v := env("CHANGELOG_PATH"); v != "" {
		cfg.ChangelogPath = v
	}
	cfg.MessagesDir = env("MESSAGES_DIR")
	return cfg, nil
}

// Load is Parse plus the settings the bot cannot run without.
func Load() (*AppConfig, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if cfg.IrisBaseURL == "" {
		return nil, errors.New("IRIS_BASE_URL is required")
	}
	if cfg.IrisWSURL == "" {
		return nil, errors.New("IRIS_WS_URL is required")
	}
	return cfg, nil
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

func list(k string) []string {
	var out []string
	for _, p := range strings.Split(env(k), ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
