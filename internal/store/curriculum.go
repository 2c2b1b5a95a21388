package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/microtutor/internal/domain"
)

// CurriculumRepo stores chapters, topics and goals.
type CurriculumRepo struct {
	db DBTX
}

// SaveOutline writes a generated outline under subject. Sequence numbers
// follow the outline's order, starting at 1. Run it inside WithinTx so a
// failure leaves no partial curriculum behind.
func (r *CurriculumRepo) SaveOutline(ctx context.Context, subject *domain.Subject, outline *domain.Outline) error {
	for ci, ch := range outline.Chapters {
		chapterID := uuid.NewString()
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO chapters (id, subject_id, title, seq) VALUES (?, ?, ?, ?)`,
			chapterID, subject.ID, ch.Title, ci+1,
		); err != nil {
			return fmt.Errorf("insert chapter %q: %w", ch.Title, err)
		}

		for ti, tp := range ch.Topics {
			topicID := uuid.NewString()
			if _, err := r.db.ExecContext(ctx, `
				INSERT INTO topics (id, chapter_id, subject_id, learner_id, title, content, seq)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				topicID, chapterID, subject.ID, subject.LearnerID, tp.Title, tp.Content, ti+1,
			); err != nil {
				return fmt.Errorf("insert topic %q: %w", tp.Title, err)
			}

			for gi, g := range tp.Goals {
				if _, err := r.db.ExecContext(ctx,
					`INSERT INTO goals (id, topic_id, title, description, seq) VALUES (?, ?, ?, ?, ?)`,
					uuid.NewString(), topicID, g.Title, g.Description, gi+1,
				); err != nil {
					return fmt.Errorf("insert goal %q: %w", g.Title, err)
				}
			}
		}
	}
	return nil
}

// ListChapters returns a subject's chapters in order.
func (r *CurriculumRepo) ListChapters(ctx context.Context, subjectID string) ([]domain.Chapter, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, subject_id, title, seq FROM chapters WHERE subject_id = ? ORDER BY seq, id`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	var out []domain.Chapter
	for rows.Next() {
		var c domain.Chapter
		if err := rows.Scan(&c.ID, &c.SubjectID, &c.Title, &c.Seq); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const topicColumns = `id, chapter_id, subject_id, learner_id, title, content, seq, completed_at`

// ListTopics returns a chapter's topics in order.
func (r *CurriculumRepo) ListTopics(ctx context.Context, chapterID string) ([]domain.Topic, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+topicColumns+` FROM topics WHERE chapter_id = ? ORDER BY seq, id`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var out []domain.Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// GetTopic returns the topic with id, or ErrNotFound.
func (r *CurriculumRepo) GetTopic(ctx context.Context, id string) (*domain.Topic, error) {
	t, err := scanTopic(r.db.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	return t, nil
}

// ListGoals returns a topic's goals ordered by sequence.
func (r *CurriculumRepo) ListGoals(ctx context.Context, topicID string) ([]domain.Goal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, topic_id, title, description, seq FROM goals WHERE topic_id = ? ORDER BY seq, id`, topicID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []domain.Goal
	for rows.Next() {
		var g domain.Goal
		if err := rows.Scan(&g.ID, &g.TopicID, &g.Title, &g.Description, &g.Seq); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// MarkTopicComplete stamps completed_at once; later calls keep the first time.
func (r *CurriculumRepo) MarkTopicComplete(ctx context.Context, topicID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE topics SET completed_at = ? WHERE id = ? AND completed_at IS NULL`, toMillis(at), topicID)
	if err != nil {
		return false, fmt.Errorf("mark topic complete: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanTopic(row rowScanner) (*domain.Topic, error) {
	var (
		t         domain.Topic
		completed sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.ChapterID, &t.SubjectID, &t.LearnerID, &t.Title, &t.Content, &t.Seq, &completed); err != nil {
		return nil, err
	}
	t.CompletedAt = fromNullMillis(completed)
	return &t, nil
}
