// Package session runs the tutoring conversation for one (learner, topic)
// pair. Each inbound message is handled from scratch: the conversation
// state is re-derived from the transcript tail and goal progress, never
// stored on its own.
package session

import (
	"strings"

	"github.com/abhisek/microtutor/internal/domain"
)

// State is what the engine knows about a conversation before acting on
// the learner's latest message.
type State struct {
	// LastTutorMessage is the most recent plain or movement-prompt tutor
	// message, or nil at the start of a conversation.
	LastTutorMessage *domain.ChatMessage

	// AwaitingAnswer is set when LastTutorMessage is a plain question.
	AwaitingAnswer bool

	// AwaitingMovementConfirmation is set when LastTutorMessage asked
	// whether to move on.
	AwaitingMovementConfirmation bool

	// AllGoalsComplete is set when every goal of the topic is complete.
	AllGoalsComplete bool

	// CurrentGoal is the first incomplete goal by sequence.
	CurrentGoal *domain.Goal

	// PendingGoalID and LastQuestion describe the question awaiting an
	// answer, when AwaitingAnswer is set.
	PendingGoalID string
	LastQuestion  string
}

// DeriveState reconstructs the conversation state. tail must be in
// chronological order and goals sorted by sequence.
func DeriveState(tail []domain.ChatMessage, goals []domain.Goal, idx domain.ProgressIndex) State {
	var st State

	for i := len(tail) - 1; i >= 0; i-- {
		m := tail[i]
		if m.Sender != domain.SenderTutor {
			continue
		}
		if m.Type == domain.MessagePlain || m.Type == domain.MessageMovementPrompt {
			st.LastTutorMessage = &tail[i]
			break
		}
	}

	if last := st.LastTutorMessage; last != nil {
		switch last.Type {
		case domain.MessagePlain:
			st.AwaitingAnswer = strings.Contains(last.Text, "?")
		case domain.MessageMovementPrompt:
			st.AwaitingMovementConfirmation = true
		}
		if st.AwaitingAnswer {
			st.PendingGoalID = last.GoalID
			st.LastQuestion = last.QuestionText()
		}
	}

	st.CurrentGoal = domain.CurrentGoal(goals, idx)
	st.AllGoalsComplete = len(goals) > 0 && st.CurrentGoal == nil
	return st
}

// Action is the protocol step chosen for a learner message.
type Action string

const (
	ActionSummary  Action = "summary"
	ActionAsk      Action = "ask"
	ActionEvaluate Action = "evaluate"
	ActionExplain  Action = "explain"
)

// Decide picks the action for message given the derived state.
//
// A completed topic always answers with its summary. A request for an
// explanation wins over grading, except that "I don't know" in reply to a
// question is graded. A "no" to a movement prompt is read as wanting more
// explanation.
func Decide(st State, message string) Action {
	switch {
	case st.AllGoalsComplete:
		return ActionSummary
	case IsExplanationRequest(message) && !(st.AwaitingAnswer && IsDontKnow(message)):
		return ActionExplain
	case st.AwaitingMovementConfirmation && IsAffirmative(message):
		return ActionAsk
	case st.AwaitingMovementConfirmation && IsNegative(message):
		return ActionExplain
	case st.AwaitingAnswer && strings.TrimSpace(message) != "":
		return ActionEvaluate
	default:
		return ActionAsk
	}
}
