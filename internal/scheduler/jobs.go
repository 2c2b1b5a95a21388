package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/microtutor/internal/domain"
	"github.com/abhisek/microtutor/internal/notify"
	"github.com/abhisek/microtutor/internal/store"
)

// OutlineGenerator produces a curriculum outline for a subject.
type OutlineGenerator interface {
	Generate(ctx context.Context, learner domain.Learner, subject domain.Subject) (*domain.Outline, error)
}

// GenerationJob builds curricula for pending subjects, one subject at a
// time, until none are left.
type GenerationJob struct {
	store     *store.Store
	generator OutlineGenerator
	logger    *zap.Logger
}

// NewGenerationJob creates a GenerationJob.
func NewGenerationJob(s *store.Store, gen OutlineGenerator, logger *zap.Logger) *GenerationJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationJob{store: s, generator: gen, logger: logger}
}

func (j *GenerationJob) Name() string { return "curriculum-generation" }

// Run drains the pending queue. A subject that fails to generate is marked
// failed and does not stop the run.
func (j *GenerationJob) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		subject, err := j.store.Subjects().ClaimPending(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		j.generate(ctx, subject)
	}
	return ctx.Err()
}

func (j *GenerationJob) generate(ctx context.Context, subject *domain.Subject) {
	log := j.logger.With(zap.String("subject_id", subject.ID), zap.String("learner_id", subject.LearnerID))

	err := j.build(ctx, subject)
	status, errText := domain.SubjectReady, ""
	switch {
	case err != nil && ctx.Err() != nil:
		// Shutting down: hand the subject back to the queue.
		status = domain.SubjectPending
		log.Info("curriculum generation interrupted", zap.Error(err))
	case err != nil:
		status, errText = domain.SubjectFailed, err.Error()
		log.Error("curriculum generation failed", zap.Error(err))
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := j.store.Subjects().SetStatus(sctx, subject.ID, status, errText); err != nil {
		log.Error("set subject status", zap.String("status", string(status)), zap.Error(err))
		return
	}
	log.Info("subject processed", zap.String("status", string(status)))
}

func (j *GenerationJob) build(ctx context.Context, subject *domain.Subject) error {
	learner, err := j.store.Learners().Get(ctx, subject.LearnerID)
	if err != nil {
		return fmt.Errorf("load learner: %w", err)
	}
	outline, err := j.generator.Generate(ctx, *learner, *subject)
	if err != nil {
		return err
	}
	return j.store.WithinTx(ctx, func(ctx context.Context, r store.Repos) error {
		return r.Curriculum().SaveOutline(ctx, subject, outline)
	})
}

// NudgeJob reminds idle learners about the topic they were last working on.
type NudgeJob struct {
	store    *store.Store
	notifier notify.Notifier
	idle     time.Duration
	batch    int
	logger   *zap.Logger
	now      func() time.Time
}

// NewNudgeJob creates a NudgeJob. Learners inactive for longer than idle
// are nudged, at most batch per run.
func NewNudgeJob(s *store.Store, n notify.Notifier, idle time.Duration, batch int, logger *zap.Logger) *NudgeJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batch <= 0 {
		batch = 100
	}
	return &NudgeJob{store: s, notifier: n, idle: idle, batch: batch, logger: logger, now: time.Now}
}

func (j *NudgeJob) Name() string { return "engagement-nudge" }

// Run sends one nudge per idle learner. Delivery failures are logged and
// the nudge is not recorded, so it is retried on the next run.
func (j *NudgeJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	idle, err := j.store.Learners().ListIdleTopics(ctx, now.Add(-j.idle), j.batch)
	if err != nil {
		return err
	}

	sent := 0
	for _, it := range idle {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n := buildNudge(it, now)
		if err := j.notifier.Notify(ctx, n); err != nil {
			j.logger.Warn("nudge not delivered",
				zap.String("learner_id", it.LearnerID),
				zap.String("topic_id", it.TopicID),
				zap.Error(err),
			)
			continue
		}
		if err := j.store.Nudges().Record(ctx, &n); err != nil {
			return err
		}
		sent++
	}
	if sent > 0 {
		j.logger.Info("nudges sent", zap.Int("count", sent))
	}
	return nil
}

func buildNudge(it store.IdleTopic, now time.Time) domain.Nudge {
	title := "Ready to keep going?"
	if it.LearnerName != "" {
		title = fmt.Sprintf("%s, ready to keep going?", it.LearnerName)
	}
	return domain.Nudge{
		LearnerID: it.LearnerID,
		TopicID:   it.TopicID,
		Title:     title,
		Body:      fmt.Sprintf("Pick up %q where you left off. A couple of questions is all it takes.", it.TopicTitle),
		SentAt:    now,
	}
}
