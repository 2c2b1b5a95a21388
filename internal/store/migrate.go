package store

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS learners (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		grade TEXT NOT NULL DEFAULT '',
		board TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		last_active_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS subjects (
		id TEXT PRIMARY KEY,
		learner_id TEXT NOT NULL REFERENCES learners(id),
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subjects_status ON subjects(status, created_at)`,
	`CREATE TABLE IF NOT EXISTS chapters (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL REFERENCES subjects(id),
		title TEXT NOT NULL,
		seq INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS topics (
		id TEXT PRIMARY KEY,
		chapter_id TEXT NOT NULL REFERENCES chapters(id),
		subject_id TEXT NOT NULL REFERENCES subjects(id),
		learner_id TEXT NOT NULL REFERENCES learners(id),
		title TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		seq INTEGER NOT NULL,
		completed_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_topics_learner ON topics(learner_id)`,
	`CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		topic_id TEXT NOT NULL REFERENCES topics(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		seq INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_goals_topic ON goals(topic_id, seq)`,
	`CREATE TABLE IF NOT EXISTS goal_progress (
		learner_id TEXT NOT NULL,
		goal_id TEXT NOT NULL REFERENCES goals(id),
		topic_id TEXT NOT NULL,
		questions_asked INTEGER NOT NULL DEFAULT 0,
		correct_count INTEGER NOT NULL DEFAULT 0,
		incorrect_count INTEGER NOT NULL DEFAULT 0,
		is_completed INTEGER NOT NULL DEFAULT 0,
		last_question TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (learner_id, goal_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_goal_progress_topic ON goal_progress(learner_id, topic_id)`,
	`CREATE TABLE IF NOT EXISTS turn_records (
		id TEXT PRIMARY KEY,
		sequence INTEGER NOT NULL UNIQUE,
		learner_id TEXT NOT NULL,
		topic_id TEXT NOT NULL,
		goal_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		corrected_answer TEXT NOT NULL DEFAULT '',
		diff_markup TEXT NOT NULL DEFAULT '',
		correction_text TEXT NOT NULL DEFAULT '',
		is_correct INTEGER NOT NULL,
		score_percent INTEGER NOT NULL,
		error_type TEXT NOT NULL DEFAULT '',
		error_subtype TEXT NOT NULL DEFAULT '',
		explain_requests INTEGER NOT NULL DEFAULT 0,
		retries INTEGER NOT NULL DEFAULT 0,
		asked_at INTEGER NOT NULL,
		answered_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_turn_records_topic ON turn_records(learner_id, topic_id, sequence)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		sequence INTEGER NOT NULL UNIQUE,
		learner_id TEXT NOT NULL,
		topic_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		text TEXT NOT NULL,
		type TEXT NOT NULL,
		goal_id TEXT,
		payload TEXT,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_topic ON chat_messages(learner_id, topic_id, sequence)`,
	`CREATE TABLE IF NOT EXISTS llm_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sequence INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		purpose TEXT NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		request_body TEXT NOT NULL DEFAULT '',
		response_body TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS nudges (
		id TEXT PRIMARY KEY,
		learner_id TEXT NOT NULL,
		topic_id TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		sent_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_nudges_learner ON nudges(learner_id, sent_at)`,
}

// migrate creates any missing tables. Statements are idempotent.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %.40q: %w", stmt, err)
		}
	}
	return nil
}
