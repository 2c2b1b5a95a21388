package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/microtutor/internal/domain"
)

// ProgressRepo stores the per-(learner, goal) counters.
type ProgressRepo struct {
	db DBTX
}

const progressColumns = `learner_id, goal_id, topic_id, questions_asked, correct_count,
	incorrect_count, is_completed, last_question, updated_at`

// RecordAnswer counts one graded answer in a single UPSERT, so concurrent
// callers can't lose an increment. Completion is recomputed from the new
// questions_asked value only. The row is created on first use with the
// goal's topic; ErrNotFound means the goal doesn't exist.
func (r *ProgressRepo) RecordAnswer(ctx context.Context, learnerID, goalID string, isCorrect bool, at time.Time) (domain.GoalProgress, error) {
	correct, incorrect := 0, 1
	if isCorrect {
		correct, incorrect = 1, 0
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO goal_progress (`+progressColumns+`)
		SELECT ?, g.id, g.topic_id, 1, ?, ?, ?, '', ?
		FROM goals g WHERE g.id = ?
		ON CONFLICT (learner_id, goal_id) DO UPDATE SET
			questions_asked = goal_progress.questions_asked + 1,
			correct_count = goal_progress.correct_count + excluded.correct_count,
			incorrect_count = goal_progress.incorrect_count + excluded.incorrect_count,
			is_completed = (goal_progress.questions_asked + 1) >= ?,
			updated_at = excluded.updated_at
		RETURNING `+progressColumns,
		learnerID, correct, incorrect, boolInt(domain.GoalComplete(1)), toMillis(at), goalID,
		domain.RequiredQuestionsPerGoal,
	)
	gp, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GoalProgress{}, ErrNotFound
	}
	if err != nil {
		return domain.GoalProgress{}, fmt.Errorf("record answer: %w", err)
	}
	return *gp, nil
}

// NoteQuestion remembers the latest question put to the learner for a goal,
// creating the progress row with zero counters if needed.
func (r *ProgressRepo) NoteQuestion(ctx context.Context, learnerID, goalID, question string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO goal_progress (`+progressColumns+`)
		SELECT ?, g.id, g.topic_id, 0, 0, 0, 0, ?, ?
		FROM goals g WHERE g.id = ?
		ON CONFLICT (learner_id, goal_id) DO UPDATE SET
			last_question = excluded.last_question,
			updated_at = excluded.updated_at`,
		learnerID, question, toMillis(at), goalID,
	)
	if err != nil {
		return fmt.Errorf("note question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the progress row for (learner, goal), or ErrNotFound.
func (r *ProgressRepo) Get(ctx context.Context, learnerID, goalID string) (*domain.GoalProgress, error) {
	gp, err := scanProgress(r.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM goal_progress WHERE learner_id = ? AND goal_id = ?`,
		learnerID, goalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return gp, nil
}

// ListForTopic returns the learner's progress rows for a topic, ordered by
// goal sequence.
func (r *ProgressRepo) ListForTopic(ctx context.Context, learnerID, topicID string) ([]domain.GoalProgress, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.learner_id, p.goal_id, p.topic_id, p.questions_asked, p.correct_count,
			p.incorrect_count, p.is_completed, p.last_question, p.updated_at
		FROM goal_progress p
		JOIN goals g ON g.id = p.goal_id
		WHERE p.learner_id = ? AND p.topic_id = ?
		ORDER BY g.seq, g.id`,
		learnerID, topicID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []domain.GoalProgress
	for rows.Next() {
		gp, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, *gp)
	}
	return out, rows.Err()
}

func scanProgress(row rowScanner) (*domain.GoalProgress, error) {
	var (
		gp        domain.GoalProgress
		completed int
		updated   int64
	)
	err := row.Scan(&gp.LearnerID, &gp.GoalID, &gp.TopicID, &gp.QuestionsAsked, &gp.CorrectCount,
		&gp.IncorrectCount, &completed, &gp.LastQuestion, &updated)
	if err != nil {
		return nil, err
	}
	gp.IsCompleted = completed != 0
	gp.UpdatedAt = fromMillis(updated)
	return &gp, nil
}
