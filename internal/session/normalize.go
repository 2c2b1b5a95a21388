package session

import (
	"math"
	"strconv"
	"strings"
)

const (
	// DontKnowScore is the credit for admitting not knowing. It is never
	// zero so honesty scores above silence.
	DontKnowScore = 10

	// DontKnowErrorType classifies "I don't know" answers.
	DontKnowErrorType = "Knowledge Gap"

	// GeneralErrorType is used for incorrect answers the oracle did not
	// classify.
	GeneralErrorType = "General"

	defaultCorrectScore   = 100
	defaultIncorrectScore = 10
)

// Judgment is the canonical grading of one answer.
type Judgment struct {
	IsCorrect       bool
	ScorePercent    int
	ErrorType       string
	ErrorSubtype    string
	CorrectedAnswer string
	CorrectionText  string
	DiffMarkup      string
	Emoji           string
	// Remarks are optional follow-ups the oracle added after the correction.
	Remarks []string
}

// Normalize coerces a decoded oracle response of any shape into a
// Judgment. It accepts the full response (fields under "correction") or a
// flat object, camelCase or snake_case keys, booleans or strings for
// correctness, and numbers or strings such as "85%" for the score. It
// never fails.
func Normalize(raw map[string]any, learnerAnswer string) Judgment {
	var j Judgment

	fields := raw
	if c, ok := lookup(raw, "correction", "judgment", "result").(map[string]any); ok {
		fields = c
	}

	j.IsCorrect = asBool(lookup(fields, "isCorrect", "is_correct", "correct"))

	score, ok := asScore(lookup(fields, "scorePercent", "score_percent", "score"))
	if !ok {
		score = defaultIncorrectScore
		if j.IsCorrect {
			score = defaultCorrectScore
		}
	}
	j.ScorePercent = score

	j.ErrorType = asText(lookup(fields, "errorType", "error_type"))
	j.ErrorSubtype = asText(lookup(fields, "errorSubtype", "error_subtype"))
	j.CorrectedAnswer = asText(lookup(fields, "correctedAnswer", "corrected_answer", "correct_answer"))
	j.CorrectionText = asText(lookup(fields, "correctionText", "correction_text", "feedback", "explanation"))
	j.DiffMarkup = asText(lookup(fields, "diffMarkup", "diff_markup", "diff"))
	j.Emoji = asText(lookup(fields, "emoji"))

	if msgs, ok := lookup(raw, "messages").([]any); ok {
		for _, m := range msgs {
			if s := asText(m); s != "" {
				j.Remarks = append(j.Remarks, s)
			}
		}
	}

	if IsDontKnow(learnerAnswer) {
		j.IsCorrect = false
		j.ScorePercent = DontKnowScore
		j.ErrorType = DontKnowErrorType
		j.ErrorSubtype = ""
		j.DiffMarkup = ""
	}

	if j.IsCorrect {
		j.ErrorType, j.ErrorSubtype = "", ""
	} else if j.ErrorType == "" {
		j.ErrorType = GeneralErrorType
	}

	if j.CorrectionText == "" {
		j.CorrectionText = defaultCorrectionText(j)
	}
	if j.DiffMarkup == "" && !j.IsCorrect && !IsDontKnow(learnerAnswer) {
		j.DiffMarkup = DiffMarkup(learnerAnswer, j.CorrectedAnswer)
	}
	if j.Emoji == "" {
		j.Emoji = emojiFor(j.ScorePercent)
	}
	return j
}

func lookup(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "correct", "1", "y":
			return true
		}
	}
	return false
}

func asScore(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "%"))
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return int(math.Round(min(max(f, 0), 100))), true
}

func asText(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "null", "none", "n/a":
		return ""
	}
	return s
}

func defaultCorrectionText(j Judgment) string {
	switch {
	case j.IsCorrect:
		return "That's right, well done!"
	case j.CorrectedAnswer != "":
		return "Not quite. The answer is: " + j.CorrectedAnswer
	default:
		return "Not quite. Let's look at this one again later."
	}
}

func emojiFor(score int) string {
	switch {
	case score >= 90:
		return "🎉"
	case score >= 70:
		return "👍"
	case score >= 40:
		return "🤔"
	default:
		return "💡"
	}
}
