package domain

import "time"

// Feedback is the canonical grading judgment stored with a turn.
type Feedback struct {
	IsCorrect    bool   `json:"isCorrect"`
	ScorePercent int    `json:"scorePercent"`
	ErrorType    string `json:"errorType,omitempty"`
	ErrorSubtype string `json:"errorSubtype,omitempty"`
}

// TurnRecord is the append-only log entry for one graded answer. The only
// field that changes after creation is ExplainRequests.
type TurnRecord struct {
	ID              string    `json:"id"`
	Sequence        int64     `json:"sequence"`
	LearnerID       string    `json:"learnerId"`
	TopicID         string    `json:"topicId"`
	GoalID          string    `json:"goalId"`
	Question        string    `json:"question"`
	Answer          string    `json:"answer"`
	CorrectedAnswer string    `json:"correctedAnswer,omitempty"`
	DiffMarkup      string    `json:"diffMarkup,omitempty"`
	CorrectionText  string    `json:"correctionText"`
	Feedback        Feedback  `json:"feedback"`
	ExplainRequests int       `json:"explainRequests"`
	Retries         int       `json:"retries"`
	AskedAt         time.Time `json:"askedAt"`
	AnsweredAt      time.Time `json:"answeredAt"`
}
