package metrics

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/abhisek/microtutor/internal/domain"
	"github.com/abhisek/microtutor/internal/store"
)

// Aggregator loads a topic's stored state and computes its SessionMetrics.
type Aggregator struct {
	repos store.Repos
	cfg   Config
}

// NewAggregator creates an Aggregator reading through repos.
func NewAggregator(repos store.Repos, cfg Config) *Aggregator {
	return &Aggregator{repos: repos, cfg: cfg.withDefaults()}
}

// Config returns the thresholds in use.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// Compute loads goals, progress and turns concurrently and aggregates them.
func (a *Aggregator) Compute(ctx context.Context, learnerID, topicID string) (domain.SessionMetrics, error) {
	var (
		goals    []domain.Goal
		progress []domain.GoalProgress
		turns    []domain.TurnRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		goals, err = a.repos.Curriculum().ListGoals(gctx, topicID)
		return err
	})
	g.Go(func() error {
		var err error
		progress, err = a.repos.Progress().ListForTopic(gctx, learnerID, topicID)
		return err
	})
	g.Go(func() error {
		var err error
		turns, err = a.repos.Turns().List(gctx, learnerID, topicID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.SessionMetrics{}, fmt.Errorf("load session state: %w", err)
	}

	return Compute(learnerID, topicID, goals, progress, turns, a.cfg), nil
}

// ComputeTx aggregates through r one query at a time, for callers that
// hold a transaction and need metrics that include their own writes.
func (a *Aggregator) ComputeTx(ctx context.Context, r store.Repos, learnerID, topicID string) (domain.SessionMetrics, error) {
	goals, err := r.Curriculum().ListGoals(ctx, topicID)
	if err != nil {
		return domain.SessionMetrics{}, err
	}
	progress, err := r.Progress().ListForTopic(ctx, learnerID, topicID)
	if err != nil {
		return domain.SessionMetrics{}, err
	}
	turns, err := r.Turns().List(ctx, learnerID, topicID)
	if err != nil {
		return domain.SessionMetrics{}, err
	}
	return Compute(learnerID, topicID, goals, progress, turns, a.cfg), nil
}
