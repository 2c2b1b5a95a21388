// Package domain holds the records shared by the tutor's storage, engine and
// reporting layers.
package domain

import "time"

// Learner is a student profile. Grade and board are required before a
// curriculum can be generated.
type Learner struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Grade        string    `json:"grade"`
	Board        string    `json:"board"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// ProfileComplete reports whether the learner has the fields curriculum
// generation depends on.
func (l Learner) ProfileComplete() bool {
	return l.Grade != "" && l.Board != ""
}

// SubjectStatus tracks curriculum generation for a subject.
type SubjectStatus string

const (
	SubjectPending    SubjectStatus = "pending"
	SubjectGenerating SubjectStatus = "generating"
	SubjectReady      SubjectStatus = "ready"
	SubjectFailed     SubjectStatus = "failed"
)

// Subject is a learner-requested area of study, e.g. "Fractions".
type Subject struct {
	ID        string        `json:"id"`
	LearnerID string        `json:"learnerId"`
	Name      string        `json:"name"`
	Status    SubjectStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Chapter groups topics within a subject.
type Chapter struct {
	ID        string `json:"id"`
	SubjectID string `json:"subjectId"`
	Title     string `json:"title"`
	Seq       int    `json:"seq"`
}

// Topic is the unit a tutoring session runs over.
type Topic struct {
	ID          string     `json:"id"`
	ChapterID   string     `json:"chapterId"`
	SubjectID   string     `json:"subjectId"`
	LearnerID   string     `json:"learnerId"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Seq         int        `json:"seq"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Goal is a learning objective within a topic. Goals never change after
// the topic is generated.
type Goal struct {
	ID          string `json:"id"`
	TopicID     string `json:"topicId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Seq         int    `json:"seq"`
}

// Outline is a generated curriculum for one subject, before it is stored.
type Outline struct {
	Chapters []OutlineChapter `json:"chapters"`
}

// OutlineChapter is a chapter in an Outline.
type OutlineChapter struct {
	Title  string         `json:"title"`
	Topics []OutlineTopic `json:"topics"`
}

// OutlineTopic is a topic in an Outline.
type OutlineTopic struct {
	Title   string        `json:"title"`
	Content string        `json:"content"`
	Goals   []OutlineGoal `json:"goals"`
}

// OutlineGoal is a goal in an Outline.
type OutlineGoal struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
