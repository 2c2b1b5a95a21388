package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/abhisek/microtutor/internal/domain"
)

// TurnRepo is the append-only log of graded answers.
type TurnRepo struct {
	db  DBTX
	seq *sequenceCounter
}

const turnColumns = `id, sequence, learner_id, topic_id, goal_id, question, answer, corrected_answer,
	diff_markup, correction_text, is_correct, score_percent, error_type, error_subtype,
	explain_requests, retries, asked_at, answered_at`

// Append stores rec, assigning its ID (when empty) and global sequence.
func (r *TurnRepo) Append(ctx context.Context, rec *domain.TurnRecord) error {
	seqNum, err := r.seq.Next(ctx, r.db)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Sequence = seqNum

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO turn_records (`+turnColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Sequence, rec.LearnerID, rec.TopicID, rec.GoalID, rec.Question, rec.Answer,
		rec.CorrectedAnswer, rec.DiffMarkup, rec.CorrectionText, boolInt(rec.Feedback.IsCorrect),
		rec.Feedback.ScorePercent, rec.Feedback.ErrorType, rec.Feedback.ErrorSubtype,
		rec.ExplainRequests, rec.Retries, toMillis(rec.AskedAt), toMillis(rec.AnsweredAt),
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// IncrementExplainCount adds one to a turn's explain counter. It is the only
// mutation a stored turn accepts.
func (r *TurnRepo) IncrementExplainCount(ctx context.Context, turnID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE turn_records SET explain_requests = explain_requests + 1 WHERE id = ?`, turnID)
	if err != nil {
		return fmt.Errorf("increment explain count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the turn with id, or ErrNotFound.
func (r *TurnRepo) Get(ctx context.Context, id string) (*domain.TurnRecord, error) {
	rec, err := scanTurn(r.db.QueryRowContext(ctx, `SELECT `+turnColumns+` FROM turn_records WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get turn: %w", err)
	}
	return rec, nil
}

// Latest returns the most recent turn for (learner, topic), or ErrNotFound.
func (r *TurnRepo) Latest(ctx context.Context, learnerID, topicID string) (*domain.TurnRecord, error) {
	rec, err := scanTurn(r.db.QueryRowContext(ctx,
		`SELECT `+turnColumns+` FROM turn_records
		WHERE learner_id = ? AND topic_id = ? ORDER BY sequence DESC LIMIT 1`,
		learnerID, topicID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest turn: %w", err)
	}
	return rec, nil
}

// List returns every turn for (learner, topic) in sequence order.
func (r *TurnRepo) List(ctx context.Context, learnerID, topicID string) ([]domain.TurnRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+turnColumns+` FROM turn_records WHERE learner_id = ? AND topic_id = ? ORDER BY sequence`,
		learnerID, topicID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var out []domain.TurnRecord
	for rows.Next() {
		rec, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanTurn(row rowScanner) (*domain.TurnRecord, error) {
	var (
		rec             domain.TurnRecord
		correct         int
		asked, answered int64
	)
	err := row.Scan(&rec.ID, &rec.Sequence, &rec.LearnerID, &rec.TopicID, &rec.GoalID, &rec.Question,
		&rec.Answer, &rec.CorrectedAnswer, &rec.DiffMarkup, &rec.CorrectionText, &correct,
		&rec.Feedback.ScorePercent, &rec.Feedback.ErrorType, &rec.Feedback.ErrorSubtype,
		&rec.ExplainRequests, &rec.Retries, &asked, &answered)
	if err != nil {
		return nil, err
	}
	rec.Feedback.IsCorrect = correct != 0
	rec.AskedAt = fromMillis(asked)
	rec.AnsweredAt = fromMillis(answered)
	return &rec, nil
}
