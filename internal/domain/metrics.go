package domain

// GoalMetrics is the per-goal slice of SessionMetrics.
type GoalMetrics struct {
	GoalID          string `json:"goalId"`
	Title           string `json:"title"`
	QuestionsAsked  int    `json:"questionsAsked"`
	CorrectCount    int    `json:"correctCount"`
	IncorrectCount  int    `json:"incorrectCount"`
	IsCompleted     bool   `json:"isCompleted"`
	ScorePercent    int    `json:"scorePercent"`
	GradedTurns     int    `json:"gradedTurns"`
	ExplainRequests int    `json:"explainRequests"`
}

// ErrorTypeCount is one bucket of the error-type histogram.
type ErrorTypeCount struct {
	ErrorType string `json:"errorType"`
	Count     int    `json:"count"`
}

// SessionMetrics summarizes a (learner, topic) session. It is always derived
// from stored turns and progress, never persisted.
type SessionMetrics struct {
	LearnerID             string           `json:"learnerId"`
	TopicID               string           `json:"topicId"`
	TotalQuestions        int              `json:"totalQuestions"`
	CorrectAnswers        int              `json:"correctAnswers"`
	IncorrectAnswers      int              `json:"incorrectAnswers"`
	OverallScorePercent   int              `json:"overallScorePercent"`
	StarRating            int              `json:"starRating"`
	PerGoal               []GoalMetrics    `json:"perGoal"`
	WeakGoals             []GoalMetrics    `json:"weakGoals"`
	ErrorTypes            []ErrorTypeCount `json:"errorTypes"`
	ProjectedScorePercent int              `json:"projectedScorePercent"`
	ProjectedStarRating   int              `json:"projectedStarRating"`
	ExplainRequests       int              `json:"explainRequests"`
}
