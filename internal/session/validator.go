package session

import (
	"fmt"
	"strings"
)

// MaxQuestionLen bounds a generated question.
const MaxQuestionLen = 500

// ValidationError describes why generated output was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// validateQuestion checks a generated question and returns it in
// canonical form: trimmed and ending in a question mark.
func validateQuestion(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", &ValidationError{Field: "question", Message: "empty"}
	}
	if len(q) > MaxQuestionLen {
		return "", &ValidationError{Field: "question", Message: fmt.Sprintf("exceeds %d characters", MaxQuestionLen)}
	}
	if !strings.HasSuffix(q, "?") {
		q = strings.TrimRight(q, ".!: ") + "?"
	}
	return q, nil
}

// cleanPreamble drops a lead-in that would be mistaken for the question.
func cleanPreamble(p string) string {
	p = strings.TrimSpace(p)
	if strings.Contains(p, "?") {
		return ""
	}
	return p
}

// validateExplanation trims the messages, keeps at most three and rejects
// an empty reply.
func validateExplanation(msgs []string) ([]string, error) {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		out = append(out, m)
		if len(out) == 3 {
			break
		}
	}
	if len(out) == 0 {
		return nil, &ValidationError{Field: "messages", Message: "empty"}
	}
	return out, nil
}
