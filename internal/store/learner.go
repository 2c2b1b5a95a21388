package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/microtutor/internal/domain"
)

// LearnerRepo stores learner profiles.
type LearnerRepo struct {
	db DBTX
}

// Upsert creates the learner or updates its profile fields.
func (r *LearnerRepo) Upsert(ctx context.Context, l *domain.Learner) error {
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.LastActiveAt.IsZero() {
		l.LastActiveAt = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO learners (id, name, grade, board, created_at, last_active_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			grade = excluded.grade,
			board = excluded.board`,
		l.ID, l.Name, l.Grade, l.Board, toMillis(l.CreatedAt), toMillis(l.LastActiveAt),
	)
	if err != nil {
		return fmt.Errorf("upsert learner: %w", err)
	}
	return nil
}

// Get returns the learner with id, or ErrNotFound.
func (r *LearnerRepo) Get(ctx context.Context, id string) (*domain.Learner, error) {
	var (
		l                   domain.Learner
		created, lastActive int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, grade, board, created_at, last_active_at FROM learners WHERE id = ?`, id,
	).Scan(&l.ID, &l.Name, &l.Grade, &l.Board, &created, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get learner: %w", err)
	}
	l.CreatedAt = fromMillis(created)
	l.LastActiveAt = fromMillis(lastActive)
	return &l, nil
}

// Touch records learner activity, creating a bare learner row when needed.
func (r *LearnerRepo) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO learners (id, created_at, last_active_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET last_active_at = excluded.last_active_at`,
		id, toMillis(at), toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("touch learner: %w", err)
	}
	return nil
}

// IdleTopic is an unfinished topic of a learner who has gone quiet.
type IdleTopic struct {
	LearnerID    string
	LearnerName  string
	TopicID      string
	TopicTitle   string
	LastActiveAt time.Time
}

// ListIdleTopics returns unfinished topics with transcript activity whose
// learners have been inactive since idleSince and have not been nudged
// since their last activity. At most one topic per learner is returned,
// the one with the most recent message.
func (r *LearnerRepo) ListIdleTopics(ctx context.Context, idleSince time.Time, limit int) ([]IdleTopic, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.name, t.id, t.title, l.last_active_at
		FROM learners l
		JOIN topics t ON t.learner_id = l.id AND t.completed_at IS NULL
		WHERE l.last_active_at < ?
		  AND t.id = (
			SELECT m.topic_id FROM chat_messages m
			WHERE m.learner_id = l.id
			ORDER BY m.sequence DESC LIMIT 1
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM nudges n
			WHERE n.learner_id = l.id AND n.sent_at >= l.last_active_at
		  )
		ORDER BY l.last_active_at, l.id
		LIMIT ?`,
		toMillis(idleSince), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list idle topics: %w", err)
	}
	defer rows.Close()

	var out []IdleTopic
	for rows.Next() {
		var (
			it   IdleTopic
			last int64
		)
		if err := rows.Scan(&it.LearnerID, &it.LearnerName, &it.TopicID, &it.TopicTitle, &last); err != nil {
			return nil, fmt.Errorf("scan idle topic: %w", err)
		}
		it.LastActiveAt = fromMillis(last)
		out = append(out, it)
	}
	return out, rows.Err()
}
