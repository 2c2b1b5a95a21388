package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/abhisek/microtutor/internal/domain"
)

// NudgeRepo records engagement nudges that were sent.
type NudgeRepo struct {
	db DBTX
}

// Record stores a sent nudge.
func (r *NudgeRepo) Record(ctx context.Context, n *domain.Nudge) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO nudges (id, learner_id, topic_id, title, body, sent_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.LearnerID, n.TopicID, n.Title, n.Body, toMillis(n.SentAt))
	if err != nil {
		return fmt.Errorf("record nudge: %w", err)
	}
	return nil
}

// CountForLearner returns how many nudges a learner has been sent.
func (r *NudgeRepo) CountForLearner(ctx context.Context, learnerID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nudges WHERE learner_id = ?`, learnerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count nudges: %w", err)
	}
	return n, nil
}
