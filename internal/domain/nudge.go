package domain

import "time"

// Nudge is an engagement reminder sent to an idle learner.
type Nudge struct {
	ID        string    `json:"id"`
	LearnerID string    `json:"learnerId"`
	TopicID   string    `json:"topicId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sentAt"`
}
