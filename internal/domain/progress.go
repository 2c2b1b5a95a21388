package domain

import "time"

// RequiredQuestionsPerGoal is the number of graded answers that complete a goal.
const RequiredQuestionsPerGoal = 2

// GoalProgress holds the per-(learner, goal) counters.
//
// QuestionsAsked always equals CorrectCount + IncorrectCount, and
// IsCompleted is true exactly when QuestionsAsked >= RequiredQuestionsPerGoal.
type GoalProgress struct {
	LearnerID      string    `json:"learnerId"`
	GoalID         string    `json:"goalId"`
	TopicID        string    `json:"topicId"`
	QuestionsAsked int       `json:"questionsAsked"`
	CorrectCount   int       `json:"correctCount"`
	IncorrectCount int       `json:"incorrectCount"`
	IsCompleted    bool      `json:"isCompleted"`
	LastQuestion   string    `json:"lastQuestion,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// GoalComplete is the completion rule applied to a questions-asked count.
func GoalComplete(questionsAsked int) bool {
	return questionsAsked >= RequiredQuestionsPerGoal
}

// ProgressIndex maps goal IDs to their progress rows.
type ProgressIndex map[string]GoalProgress

// IndexProgress builds a ProgressIndex from a slice of rows.
func IndexProgress(rows []GoalProgress) ProgressIndex {
	idx := make(ProgressIndex, len(rows))
	for _, p := range rows {
		idx[p.GoalID] = p
	}
	return idx
}

// Completed reports whether the goal has a completed progress row.
func (idx ProgressIndex) Completed(goalID string) bool {
	p, ok := idx[goalID]
	return ok && p.IsCompleted
}

// CurrentGoal returns the first goal by sequence whose progress is missing
// or incomplete, or nil when every goal is complete. goals must be sorted
// by Seq.
func CurrentGoal(goals []Goal, idx ProgressIndex) *Goal {
	for i := range goals {
		if !idx.Completed(goals[i].ID) {
			return &goals[i]
		}
	}
	return nil
}
