package llm

import "context"

type contextKey int

const (
	purposeKey contextKey = iota
	conversationKey
)

// Conversation identifies the tutoring thread an LLM call serves.
type Conversation struct {
	LearnerID string
	TopicID   string
}

// WithPurpose labels the context with the kind of call being made
// ("tutor-ask", "curriculum-goals", ...) for the request log.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom returns the purpose label, or "unknown".
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// WithConversation ties the calls made under ctx to a learner and topic.
func WithConversation(ctx context.Context, learnerID, topicID string) context.Context {
	return context.WithValue(ctx, conversationKey, Conversation{LearnerID: learnerID, TopicID: topicID})
}

// ConversationFrom returns the conversation attached to ctx, if any.
func ConversationFrom(ctx context.Context) (Conversation, bool) {
	c, ok := ctx.Value(conversationKey).(Conversation)
	return c, ok
}
