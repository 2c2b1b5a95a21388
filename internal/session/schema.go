package session

import "github.com/abhisek/microtutor/internal/llm"

// QuestionSchema is the shape of a generated question.
var QuestionSchema = &llm.Schema{
	Name:        "tutor-question",
	Description: "The next practice question for the learner, with an optional short lead-in",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"preamble": map[string]any{
				"type":        []any{"string", "null"},
				"description": "One short sentence before the question, or null. Must not be a question itself.",
			},
			"question": map[string]any{
				"type":        "string",
				"description": "A single question the learner can answer in a sentence or less, ending with a question mark",
			},
		},
		"required":             []any{"preamble", "question"},
		"additionalProperties": false,
	},
}

// JudgmentSchema is the full grading response: short follow-up messages
// plus the correction.
var JudgmentSchema = &llm.Schema{
	Name:        "tutor-judgment",
	Description: "Grading of the learner's answer with a correction",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"messages": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"maxItems":    2,
				"description": "Optional short follow-up remarks after the correction. Empty array if none.",
			},
			"correction": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"isCorrect": map[string]any{
						"type":        "boolean",
						"description": "Whether the answer is correct",
					},
					"scorePercent": map[string]any{
						"type":        "integer",
						"minimum":     0,
						"maximum":     100,
						"description": "Partial credit from 0 to 100. Small slips on a correct idea still earn most of the credit.",
					},
					"errorType": map[string]any{
						"type":        []any{"string", "null"},
						"description": "Broad class of the mistake, e.g. Grammar, Concept, Calculation, Spelling. Null when correct.",
					},
					"errorSubtype": map[string]any{
						"type":        []any{"string", "null"},
						"description": "Narrower class of the mistake, or null",
					},
					"correctedAnswer": map[string]any{
						"type":        "string",
						"description": "The learner's answer rewritten to be correct, changing as little as possible",
					},
					"correctionText": map[string]any{
						"type":        "string",
						"description": "Praise when correct; otherwise a short explanation that answers the exact question asked",
					},
					"diffMarkup": map[string]any{
						"type":        []any{"string", "null"},
						"description": "The learner's answer with removed words as ~~x~~ and added words as **y**, or null",
					},
					"emoji": map[string]any{
						"type":        []any{"string", "null"},
						"description": "A single emoji matching the result, or null",
					},
				},
				"required": []any{"isCorrect", "scorePercent", "errorType", "errorSubtype",
					"correctedAnswer", "correctionText", "diffMarkup", "emoji"},
				"additionalProperties": false,
			},
		},
		"required":             []any{"messages", "correction"},
		"additionalProperties": false,
	},
}

// MinimalJudgmentSchema is the fallback grading shape used when the full
// response could not be parsed.
var MinimalJudgmentSchema = &llm.Schema{
	Name:        "tutor-judgment-minimal",
	Description: "Minimal grading of the learner's answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"isCorrect": map[string]any{
				"type": "boolean",
			},
			"scorePercent": map[string]any{
				"type":    "integer",
				"minimum": 0,
				"maximum": 100,
			},
			"correctionText": map[string]any{
				"type": "string",
			},
		},
		"required":             []any{"isCorrect", "scorePercent", "correctionText"},
		"additionalProperties": false,
	},
}

// ExplanationSchema is the shape of an elaboration reply.
var ExplanationSchema = &llm.Schema{
	Name:        "tutor-explanation",
	Description: "A short explanation split into chat-sized messages",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"messages": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"minItems":    1,
				"maxItems":    3,
				"description": "One to three short messages, each one or two sentences. Do not ask a question.",
			},
		},
		"required":             []any{"messages"},
		"additionalProperties": false,
	},
}
