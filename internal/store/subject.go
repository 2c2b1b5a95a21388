package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/abhisek/microtutor/internal/domain"
)

// SubjectRepo stores subjects and their generation status.
type SubjectRepo struct {
	db DBTX
}

const subjectColumns = `id, learner_id, name, status, error, created_at`

// Create inserts a new subject.
func (r *SubjectRepo) Create(ctx context.Context, s *domain.Subject) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subjects (`+subjectColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.LearnerID, s.Name, string(s.Status), s.Error, toMillis(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// Get returns the subject with id, or ErrNotFound.
func (r *SubjectRepo) Get(ctx context.Context, id string) (*domain.Subject, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = ?`, id)
	s, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	return s, nil
}

// ListByLearner returns a learner's subjects, oldest first.
func (r *SubjectRepo) ListByLearner(ctx context.Context, learnerID string) ([]domain.Subject, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE learner_id = ? ORDER BY created_at, id`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var out []domain.Subject
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// ClaimPending moves the oldest pending subject to generating and returns
// it. It returns ErrNotFound when nothing is pending.
func (r *SubjectRepo) ClaimPending(ctx context.Context) (*domain.Subject, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE subjects SET status = ?
		WHERE id = (
			SELECT id FROM subjects WHERE status = ? ORDER BY created_at, id LIMIT 1
		)
		RETURNING `+subjectColumns,
		string(domain.SubjectGenerating), string(domain.SubjectPending),
	)
	s, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending subject: %w", err)
	}
	return s, nil
}

// RequeueGenerating returns subjects left in generating by a previous
// process to pending and reports how many were moved. Call it before any
// generation job starts.
func (r *SubjectRepo) RequeueGenerating(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE subjects SET status = ? WHERE status = ?`,
		string(domain.SubjectPending), string(domain.SubjectGenerating))
	if err != nil {
		return 0, fmt.Errorf("requeue generating subjects: %w", err)
	}
	return res.RowsAffected()
}

// SetStatus updates a subject's status and error text.
func (r *SubjectRepo) SetStatus(ctx context.Context, id string, status domain.SubjectStatus, errText string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE subjects SET status = ?, error = ? WHERE id = ?`, string(status), errText, id)
	if err != nil {
		return fmt.Errorf("set subject status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubject(row rowScanner) (*domain.Subject, error) {
	var (
		s       domain.Subject
		status  string
		created int64
	)
	if err := row.Scan(&s.ID, &s.LearnerID, &s.Name, &status, &s.Error, &created); err != nil {
		return nil, err
	}
	s.Status = domain.SubjectStatus(status)
	s.CreatedAt = fromMillis(created)
	return &s, nil
}
