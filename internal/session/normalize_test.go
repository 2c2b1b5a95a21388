package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestNormalize_FullShape(t *testing.T) {
	raw := decode(t, `{"messages":["Keep it up."],"correction":{"isCorrect":false,"scorePercent":85,
		"errorType":"Spelling","errorSubtype":"Homophone","correctedAnswer":"They're here",
		"correctionText":"Almost! Use they're.","diffMarkup":null,"emoji":null}}`)
	j := Normalize(raw, "Their here")

	assert.False(t, j.IsCorrect)
	assert.Equal(t, 85, j.ScorePercent)
	assert.Equal(t, "Spelling", j.ErrorType)
	assert.Equal(t, "Homophone", j.ErrorSubtype)
	assert.Equal(t, "Almost! Use they're.", j.CorrectionText)
	assert.Equal(t, "~~Their~~ **They're** here", j.DiffMarkup)
	assert.Equal(t, "👍", j.Emoji)
	assert.Equal(t, []string{"Keep it up."}, j.Remarks)
}

func TestNormalize_Coercion(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		answer    string
		correct   bool
		score     int
		errorType string
	}{
		{"snake case", `{"is_correct":true,"score_percent":90,"correction_text":"Yes"}`, "4", true, 90, ""},
		{"string bool and percent", `{"correct":"true","score":"85%"}`, "4", true, 85, ""},
		{"missing score correct", `{"isCorrect":true}`, "4", true, 100, ""},
		{"missing score incorrect", `{"isCorrect":false}`, "5", false, 10, GeneralErrorType},
		{"score clamped high", `{"isCorrect":true,"scorePercent":140}`, "4", true, 100, ""},
		{"score clamped low", `{"isCorrect":false,"scorePercent":-5,"errorType":"Concept"}`, "5", false, 0, "Concept"},
		{"fractional score rounds", `{"isCorrect":true,"scorePercent":72.6}`, "4", true, 73, ""},
		{"garbage score defaults", `{"isCorrect":false,"scorePercent":"lots"}`, "5", false, 10, GeneralErrorType},
		{"error type cleared when correct", `{"isCorrect":true,"errorType":"Grammar"}`, "4", true, 100, ""},
		{"null string error type", `{"isCorrect":false,"errorType":"null"}`, "5", false, 10, GeneralErrorType},
		{"empty object", `{}`, "5", false, 10, GeneralErrorType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := Normalize(decode(t, tt.raw), tt.answer)
			assert.Equal(t, tt.correct, j.IsCorrect)
			assert.Equal(t, tt.score, j.ScorePercent)
			assert.Equal(t, tt.errorType, j.ErrorType)
			assert.NotEmpty(t, j.CorrectionText)
			assert.NotEmpty(t, j.Emoji)
		})
	}
}

func TestNormalize_DontKnowOverride(t *testing.T) {
	for _, answer := range []string{"I don't know", "idk", "no idea", "not sure", "skip", "pass"} {
		t.Run(answer, func(t *testing.T) {
			// Even an oracle that calls it correct cannot change the outcome.
			raw := decode(t, `{"correction":{"isCorrect":true,"scorePercent":0,"errorType":null,
				"correctedAnswer":"Paris","correctionText":"The capital of France is Paris."}}`)
			j := Normalize(raw, answer)
			assert.False(t, j.IsCorrect)
			assert.Equal(t, DontKnowScore, j.ScorePercent)
			assert.Equal(t, DontKnowErrorType, j.ErrorType)
			assert.Empty(t, j.DiffMarkup)
			assert.Equal(t, "The capital of France is Paris.", j.CorrectionText)
		})
	}
}

func TestNormalize_KeepsVerdictForAnswersNamingGiveUpWords(t *testing.T) {
	for _, answer := range []string{"Light can pass through glass", "skip counting by fives", "I'm not sure but it is Oslo"} {
		t.Run(answer, func(t *testing.T) {
			j := Normalize(map[string]any{"isCorrect": true, "scorePercent": 100}, answer)
			assert.True(t, j.IsCorrect)
			assert.Equal(t, 100, j.ScorePercent)
			assert.Empty(t, j.ErrorType)
		})
	}
}

func TestNormalize_DefaultCorrectionText(t *testing.T) {
	j := Normalize(map[string]any{"isCorrect": false, "correctedAnswer": "Paris"}, "London")
	assert.Equal(t, "Not quite. The answer is: Paris", j.CorrectionText)
	assert.Equal(t, "~~London~~ **Paris**", j.DiffMarkup)

	j = Normalize(map[string]any{"isCorrect": true}, "Paris")
	assert.Equal(t, "That's right, well done!", j.CorrectionText)
	assert.Empty(t, j.DiffMarkup)
	assert.Equal(t, "🎉", j.Emoji)
}

func TestDiffMarkup(t *testing.T) {
	tests := []struct {
		answer, corrected, want string
	}{
		{"I goed to school", "I went to school", "I ~~goed~~ **went** to school"},
		{"the cat", "the black cat", "the **black** cat"},
		{"a big red ball", "a red ball", "a ~~big~~ red ball"},
		{"same  words", "same words", ""},
		{"", "anything", ""},
		{"anything", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DiffMarkup(tt.answer, tt.corrected), "%q -> %q", tt.answer, tt.corrected)
	}
}

func TestNormalizeQuestion(t *testing.T) {
	assert.Equal(t, "what is 2 + 2", NormalizeQuestion("  What is   2 + 2? "))
	assert.Equal(t, NormalizeQuestion("What is 2+2?"), NormalizeQuestion("what is 2+2"))
	assert.NotEqual(t, NormalizeQuestion("What is 2+2?"), NormalizeQuestion("What is 2+3?"))
}

func TestUniqueQuestions(t *testing.T) {
	got := uniqueQuestions([]string{"What is 2+2?", "what is 2+2", "", "Name a prime?"})
	assert.Equal(t, []string{"What is 2+2?", "Name a prime?"}, got)
}

func TestBuildDedup(t *testing.T) {
	assert.Equal(t, "None", buildDedup(nil, 5))
	assert.Equal(t, "1. b\n2. c", buildDedup([]string{"a", "b", "c"}, 2))
}

func TestValidateQuestion(t *testing.T) {
	q, err := validateQuestion("  Name a prime number. ")
	require.NoError(t, err)
	assert.Equal(t, "Name a prime number?", q)

	_, err = validateQuestion("   ")
	assert.Error(t, err)

	long := make([]byte, MaxQuestionLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = validateQuestion(string(long))
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCleanPreamble(t *testing.T) {
	assert.Equal(t, "Nice work so far.", cleanPreamble(" Nice work so far. "))
	assert.Empty(t, cleanPreamble("Ready?"))
}

func TestMovementPrompt(t *testing.T) {
	assert.Equal(t, MovementPrompt(0), MovementPrompt(len(movementPrompts)))
	assert.NotEqual(t, MovementPrompt(1), MovementPrompt(2))
	for i := range 10 {
		assert.Contains(t, MovementPrompt(i), "?")
	}
}
