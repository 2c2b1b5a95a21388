package cmd

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/abhisek/microtutor/internal/config"
	"github.com/abhisek/microtutor/internal/curriculum"
	"github.com/abhisek/microtutor/internal/llm"
	"github.com/abhisek/microtutor/internal/lock"
	"github.com/abhisek/microtutor/internal/metrics"
	"github.com/abhisek/microtutor/internal/notify"
	"github.com/abhisek/microtutor/internal/progress"
	"github.com/abhisek/microtutor/internal/session"
	"github.com/abhisek/microtutor/internal/store"
)

// services is the wired application graph shared by serve and chat.
type services struct {
	store      *store.Store
	provider   llm.Provider
	tracker    *progress.Tracker
	aggregator *metrics.Aggregator
	engine     *session.Engine
	generator  *curriculum.Generator
	notifier   notify.Notifier
	redis      goredis.UniversalClient
}

// Close releases the Redis client. The store is closed by its opener.
func (s *services) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

func metricsConfig(cfg *config.Config) metrics.Config {
	return metrics.Config{
		WeakGoalThreshold: cfg.Metrics.WeakGoalThreshold,
		StarBands:         cfg.Metrics.StarBands,
	}
}

func engineConfig(cfg *config.Config) session.Config {
	c := session.DefaultConfig()
	c.OracleTimeout = cfg.Tutor.OracleTimeout
	c.TranscriptTail = cfg.Tutor.TranscriptTail
	c.MaxPriorQuestions = cfg.Tutor.MaxPriorQuestions
	c.MaxTokens = cfg.Tutor.MaxTokens
	c.Temperature = cfg.Tutor.Temperature
	return c
}

func curriculumConfig(cfg *config.Config) curriculum.Config {
	c := curriculum.DefaultConfig()
	c.CallDelay = cfg.Curriculum.CallDelay
	c.MaxRetries = cfg.Curriculum.MaxRetries
	return c
}

// newRedis connects to the configured Redis, or returns nil when none is
// configured.
func newRedis(ctx context.Context, cfg *config.Config) (goredis.UniversalClient, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	pctx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}

// buildServices wires the tutor over st. With Redis configured,
// conversation locks and nudges go through it so several replicas can
// share one database.
func buildServices(ctx context.Context, cfg *config.Config, st *store.Store, logger *zap.Logger) (*services, error) {
	provider, err := newProvider(ctx, cfg, st, logger)
	if err != nil {
		return nil, err
	}
	rdb, err := newRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var (
		locker   lock.Locker     = lock.NewLocal()
		notifier notify.Notifier = notify.NewLog(logger)
	)
	if rdb != nil {
		locker = lock.NewRedis(rdb, cfg.Redis.LockTTL)
		notifier = notify.Multi{notifier, notify.NewRedis(rdb, cfg.Redis.Channel)}
		logger.Info("using redis for locks and nudges", zap.String("addr", cfg.Redis.Addr))
	}

	tracker := progress.NewTracker(st, logger)
	aggregator := metrics.NewAggregator(st.Repos, metricsConfig(cfg))
	engine := session.NewEngine(session.Deps{
		Store:      st,
		Provider:   provider,
		Tracker:    tracker,
		Aggregator: aggregator,
		Locker:     locker,
		Logger:     logger.Named("session"),
	}, engineConfig(cfg))

	return &services{
		store:      st,
		provider:   provider,
		tracker:    tracker,
		aggregator: aggregator,
		engine:     engine,
		generator:  curriculum.NewGenerator(provider, curriculumConfig(cfg), logger.Named("curriculum")),
		notifier:   notifier,
		redis:      rdb,
	}, nil
}
