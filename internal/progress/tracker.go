// Package progress tracks per-(learner, goal) answer counters and derives
// topic completion from them.
package progress

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/microtutor/internal/domain"
	"github.com/abhisek/microtutor/internal/store"
)

// TopicCompleteThreshold is the completion percentage at which a topic is
// marked complete.
const TopicCompleteThreshold = 50

// writeAttempts bounds retries of a progress write that hit a locked database.
const writeAttempts = 5

// Tracker owns every write to goal progress.
type Tracker struct {
	store  *store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker over s.
func NewTracker(s *store.Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: s, logger: logger, now: time.Now}
}

// RecordAnswer counts one graded answer for (learner, goal). Each call is a
// new event and increments exactly once; callers must not replay it.
func (t *Tracker) RecordAnswer(ctx context.Context, learnerID, goalID string, isCorrect bool) (domain.GoalProgress, error) {
	var gp domain.GoalProgress
	err := store.RetryBusy(ctx, writeAttempts, func() error {
		var err error
		gp, err = t.store.Progress().RecordAnswer(ctx, learnerID, goalID, isCorrect, t.now().UTC())
		return err
	})
	if err != nil {
		return domain.GoalProgress{}, fmt.Errorf("record answer for goal %s: %w", goalID, err)
	}
	return gp, nil
}

// AfterGradeFunc runs inside the grading transaction once the turn is
// logged and counted.
type AfterGradeFunc func(ctx context.Context, r store.Repos, gp domain.GoalProgress) error

// RecordGradedTurn appends rec to the turn log and counts it against the
// goal in one transaction, so a graded answer is never logged without
// being counted or counted twice. after, if non-nil, joins the same
// transaction. The whole transaction is retried if the database is busy.
func (t *Tracker) RecordGradedTurn(ctx context.Context, rec *domain.TurnRecord, after AfterGradeFunc) (domain.GoalProgress, error) {
	var gp domain.GoalProgress
	err := store.RetryBusy(ctx, writeAttempts, func() error {
		// A retried transaction starts from a fresh record.
		attempt := *rec
		attempt.ID, attempt.Sequence = rec.ID, 0
		return t.store.WithinTx(ctx, func(ctx context.Context, r store.Repos) error {
			if err := r.Turns().Append(ctx, &attempt); err != nil {
				return err
			}
			var err error
			gp, err = r.Progress().RecordAnswer(ctx, attempt.LearnerID, attempt.GoalID, attempt.Feedback.IsCorrect, t.now().UTC())
			if err != nil {
				return err
			}
			if err := syncTopic(ctx, r, attempt.LearnerID, attempt.TopicID, t.now().UTC()); err != nil {
				return err
			}
			if after != nil {
				if err := after(ctx, r, gp); err != nil {
					return err
				}
			}
			*rec = attempt
			return nil
		})
	})
	if err != nil {
		return domain.GoalProgress{}, fmt.Errorf("record graded turn: %w", err)
	}

	t.logger.Debug("graded turn recorded",
		zap.String("learner_id", rec.LearnerID),
		zap.String("goal_id", rec.GoalID),
		zap.Bool("correct", rec.Feedback.IsCorrect),
		zap.Int("score", rec.Feedback.ScorePercent),
		zap.Int("questions_asked", gp.QuestionsAsked),
		zap.Bool("goal_completed", gp.IsCompleted),
	)
	return gp, nil
}

// TopicCompletionPercent returns round(100 * completed / total) over the
// topic's goals, or 0 for a topic without goals.
func (t *Tracker) TopicCompletionPercent(ctx context.Context, learnerID, topicID string) (int, error) {
	return completionPercent(ctx, t.store.Repos, learnerID, topicID)
}

// SyncTopicCompletion marks the topic complete once its completion percent
// reaches TopicCompleteThreshold. It reports whether the topic is complete.
func (t *Tracker) SyncTopicCompletion(ctx context.Context, learnerID, topicID string) (bool, error) {
	pct, err := completionPercent(ctx, t.store.Repos, learnerID, topicID)
	if err != nil {
		return false, err
	}
	if pct < TopicCompleteThreshold {
		return false, nil
	}
	if _, err := t.store.Curriculum().MarkTopicComplete(ctx, topicID, t.now().UTC()); err != nil {
		return false, err
	}
	return true, nil
}

// Snapshot returns the topic's goals with the learner's progress indexed by
// goal ID.
func (t *Tracker) Snapshot(ctx context.Context, learnerID, topicID string) ([]domain.Goal, domain.ProgressIndex, error) {
	goals, err := t.store.Curriculum().ListGoals(ctx, topicID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := t.store.Progress().ListForTopic(ctx, learnerID, topicID)
	if err != nil {
		return nil, nil, err
	}
	return goals, domain.IndexProgress(rows), nil
}

func syncTopic(ctx context.Context, r store.Repos, learnerID, topicID string, now time.Time) error {
	pct, err := completionPercent(ctx, r, learnerID, topicID)
	if err != nil {
		return err
	}
	if pct >= TopicCompleteThreshold {
		if _, err := r.Curriculum().MarkTopicComplete(ctx, topicID, now); err != nil {
			return err
		}
	}
	return nil
}

func completionPercent(ctx context.Context, r store.Repos, learnerID, topicID string) (int, error) {
	goals, err := r.Curriculum().ListGoals(ctx, topicID)
	if err != nil {
		return 0, err
	}
	rows, err := r.Progress().ListForTopic(ctx, learnerID, topicID)
	if err != nil {
		return 0, err
	}
	return CompletionPercent(goals, domain.IndexProgress(rows)), nil
}

// CompletionPercent is the pure form of TopicCompletionPercent.
func CompletionPercent(goals []domain.Goal, idx domain.ProgressIndex) int {
	if len(goals) == 0 {
		return 0
	}
	done := 0
	for _, g := range goals {
		if idx.Completed(g.ID) {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(goals))))
}
