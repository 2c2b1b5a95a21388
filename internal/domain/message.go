package domain

import "time"

// Sender identifies who wrote a chat message.
type Sender string

const (
	SenderLearner Sender = "learner"
	SenderTutor   Sender = "tutor"
)

// MessageType tags what a chat message is for.
type MessageType string

const (
	MessagePlain          MessageType = "plain"
	MessageCorrection     MessageType = "graded-correction"
	MessageMovementPrompt MessageType = "movement-prompt"
	MessageSummary        MessageType = "session-summary"
)

// Payload carries structured data attached to a message.
type Payload struct {
	Score    *int            `json:"score,omitempty"`
	Diff     string          `json:"diff,omitempty"`
	Emoji    string          `json:"emoji,omitempty"`
	Options  []string        `json:"options,omitempty"`
	Question string          `json:"question,omitempty"`
	Metrics  *SessionMetrics `json:"metrics,omitempty"`
}

// Empty reports whether no payload field is set.
func (p *Payload) Empty() bool {
	return p == nil || (p.Score == nil && p.Diff == "" && p.Emoji == "" &&
		len(p.Options) == 0 && p.Question == "" && p.Metrics == nil)
}

// ChatMessage is one entry in a (learner, topic) transcript.
//
// GoalID is set on tutor messages that put a question to the learner; the
// question text lives in Payload.Question when it differs from Text.
type ChatMessage struct {
	ID        string      `json:"id"`
	Sequence  int64       `json:"sequence"`
	LearnerID string      `json:"learnerId"`
	TopicID   string      `json:"topicId"`
	Sender    Sender      `json:"sender"`
	Text      string      `json:"text"`
	Type      MessageType `json:"type"`
	GoalID    string      `json:"goalId,omitempty"`
	Payload   *Payload    `json:"payload,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// QuestionText returns the question a tutor message asked, if any.
func (m ChatMessage) QuestionText() string {
	if m.Payload != nil && m.Payload.Question != "" {
		return m.Payload.Question
	}
	return m.Text
}
