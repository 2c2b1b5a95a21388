// Package scheduler runs the tutor's background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one unit of background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs registered jobs on their cron specs. Overlapping runs of
// the same job are skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	guards map[string]*RunGuard

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates an idle Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger: logger.Named("cron")}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		guards: make(map[string]*RunGuard),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job under spec, which accepts standard cron syntax and
// descriptors such as "@every 30s". An empty spec disables the job.
func (s *Scheduler) Add(spec string, job Job) error {
	if spec == "" {
		s.logger.Info("job disabled", zap.String("job", job.Name()))
		return nil
	}
	guard := &RunGuard{}
	_, err := s.cron.AddFunc(spec, func() {
		s.run(job, guard)
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", job.Name(), spec, err)
	}
	s.guards[job.Name()] = guard
	return nil
}

func (s *Scheduler) run(job Job, guard *RunGuard) {
	ran := guard.TryRun(func() {
		start := time.Now()
		if err := job.Run(s.ctx); err != nil {
			s.logger.Error("job failed", zap.String("job", job.Name()), zap.Error(err))
			return
		}
		s.logger.Debug("job finished",
			zap.String("job", job.Name()),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
		)
	})
	if !ran {
		s.logger.Debug("job still running, skipped", zap.String("job", job.Name()))
	}
}

// Start runs the scheduler until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.guards)))
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.ctx.Done():
		}
	}()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.cron.Stop().Done()
		s.logger.Info("scheduler stopped")
	})
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
