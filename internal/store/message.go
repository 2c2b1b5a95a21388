package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/microtutor/internal/domain"
)

// MessageRepo stores chat transcripts.
type MessageRepo struct {
	db  DBTX
	seq *sequenceCounter
}

const messageColumns = `id, sequence, learner_id, topic_id, sender, text, type, goal_id, payload, created_at`

// Append stores msgs in order, assigning IDs, sequences and timestamps
// where missing. The slice elements are updated in place.
func (r *MessageRepo) Append(ctx context.Context, msgs ...*domain.ChatMessage) error {
	for _, m := range msgs {
		seqNum, err := r.seq.Next(ctx, r.db)
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		m.Sequence = seqNum
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}

		var payload sql.NullString
		if !m.Payload.Empty() {
			b, err := json.Marshal(m.Payload)
			if err != nil {
				return fmt.Errorf("marshal payload: %w", err)
			}
			payload = sql.NullString{String: string(b), Valid: true}
		}

		_, err = r.db.ExecContext(ctx,
			`INSERT INTO chat_messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.Sequence, m.LearnerID, m.TopicID, string(m.Sender), m.Text, string(m.Type),
			nullString(m.GoalID), payload, toMillis(m.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}
	return nil
}

// Tail returns the last n messages of a transcript in chronological order.
func (r *MessageRepo) Tail(ctx context.Context, learnerID, topicID string, n int) ([]domain.ChatMessage, error) {
	out, err := r.query(ctx,
		`SELECT `+messageColumns+` FROM chat_messages
		WHERE learner_id = ? AND topic_id = ? ORDER BY sequence DESC LIMIT ?`,
		learnerID, topicID, n)
	if err != nil {
		return nil, fmt.Errorf("tail messages: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

// List returns a transcript in chronological order, starting after the
// given sequence. limit <= 0 means no limit.
func (r *MessageRepo) List(ctx context.Context, learnerID, topicID string, after int64, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	out, err := r.query(ctx,
		`SELECT `+messageColumns+` FROM chat_messages
		WHERE learner_id = ? AND topic_id = ? AND sequence > ? ORDER BY sequence LIMIT ?`,
		learnerID, topicID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

// QuestionMessages returns every tutor message that put a question to the
// learner, oldest first.
func (r *MessageRepo) QuestionMessages(ctx context.Context, learnerID, topicID string) ([]domain.ChatMessage, error) {
	out, err := r.query(ctx,
		`SELECT `+messageColumns+` FROM chat_messages
		WHERE learner_id = ? AND topic_id = ? AND sender = ? AND type = ? AND goal_id IS NOT NULL
		ORDER BY sequence`,
		learnerID, topicID, string(domain.SenderTutor), string(domain.MessagePlain))
	if err != nil {
		return nil, fmt.Errorf("list question messages: %w", err)
	}
	return out, nil
}

func (r *MessageRepo) query(ctx context.Context, q string, args ...any) ([]domain.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var (
			m              domain.ChatMessage
			sender, typ    string
			goalID, pl     sql.NullString
			createdAtMilli int64
		)
		if err := rows.Scan(&m.ID, &m.Sequence, &m.LearnerID, &m.TopicID, &sender, &m.Text, &typ,
			&goalID, &pl, &createdAtMilli); err != nil {
			return nil, err
		}
		m.Sender = domain.Sender(sender)
		m.Type = domain.MessageType(typ)
		m.GoalID = goalID.String
		m.CreatedAt = fromMillis(createdAtMilli)
		if pl.Valid && pl.String != "" {
			var p domain.Payload
			if err := json.Unmarshal([]byte(pl.String), &p); err != nil {
				return nil, fmt.Errorf("decode payload of %s: %w", m.ID, err)
			}
			m.Payload = &p
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
