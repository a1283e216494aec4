package botbuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/rps-season-bot/internal/access"
	"github.com/park285/rps-season-bot/internal/channels"
	"github.com/park285/rps-season-bot/internal/command"
	"github.com/park285/rps-season-bot/internal/config"
	"github.com/park285/rps-season-bot/internal/match"
	"github.com/park285/rps-season-bot/internal/metrics"
	"github.com/park285/rps-season-bot/internal/msgcat"
	"github.com/park285/rps-season-bot/internal/registration"
	"github.com/park285/rps-season-bot/internal/round"
	"github.com/park285/rps-season-bot/internal/season"
	"github.com/park285/rps-season-bot/internal/standings"
	"github.com/park285/rps-season-bot/internal/store"
)

// Deps is everything the bot process holds open.
type Deps struct {
	Store   store.Gateway
	Redis   *redis.Client
	Metrics *metrics.Metrics
	Seasons *season.Manager
	Board   *standings.Board
	Access  *access.Service
	Router  *command.Router
}

// OpenStore returns Postgres with the schema applied, or the in-memory store when no
// DATABASE_URL is configured.
func OpenStore(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (store.Gateway, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("store_in_memory", zap.String("reason", "DATABASE_URL not set; state is lost on restart"))
		return store.NewMemory(), nil
	}
	pg, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, err
	}
	return pg, nil
}

// OpenCache returns a Redis-backed leaderboard cache, or nil when REDIS_URL is empty.
func OpenCache(ctx context.Context, cfg *config.AppConfig) (*redis.Client, standings.Cache, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, standings.NoCache{}, nil
	}
	rdb, err := standings.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("init leaderboard cache: %w", err)
	}
	return rdb, standings.NewRedisCache(rdb, cfg.LeaderboardCacheTTL), nil
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	scoring, err := match.ParseSelfMatchScoring(cfg.SelfMatchScoring)
	if err != nil {
		return nil, err
	}
	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	gw, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rdb, cache, err := OpenCache(ctx, cfg)
	if err != nil {
		_ = gw.Close()
		return nil, err
	}

	d := &Deps{Store: gw, Redis: rdb, Metrics: metrics.New()}
	d.Seasons = season.NewManager(gw, logger.Named("season"))
	d.Board = standings.NewBoard(gw, cache, logger.Named("standings"))
	d.Access = access.NewService(gw, cfg.AdminUserIDs, cfg.DevUserIDs, logger.Named("access"))
	resolver := match.NewResolver(match.WithSelfMatchScoring(scoring), match.WithLogger(logger.Named("match")))

	d.Router = command.NewRouter(command.Deps{
		Seasons:       d.Seasons,
		Ledger:        registration.NewLedger(gw, logger.Named("registration")),
		Rounds:        round.NewEngine(gw, resolver, logger.Named("round")),
		Board:         d.Board,
		Access:        d.Access,
		Channels:      channels.NewService(gw, logger.Named("channels")),
		Catalog:       catalog,
		Metrics:       d.Metrics,
		Limiter:       command.NewUserLimiter(cfg.CommandRate, cfg.CommandBurst),
		Logger:        logger.Named("command"),
		Prefix:        cfg.BotPrefix,
		Version:       cfg.BotVersion,
		ChangelogPath: cfg.ChangelogPath,
	})
	return d, nil
}

func (d *Deps) Close() error {
	var errs []error
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	return errors.Join(errs...)
}
