package curriculum

import "github.com/abhisek/microtutor/internal/llm"

// ChaptersSchema is the shape of a subject's chapter list.
var ChaptersSchema = &llm.Schema{
	Name:        "curriculum-chapters",
	Description: "Ordered chapters covering a school subject",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"chapters": map[string]any{
				"type":     "array",
				"minItems": 1,
				"maxItems": 10,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title": map[string]any{"type": "string", "description": "Chapter title, 2-8 words"},
					},
					"required":             []any{"title"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"chapters"},
		"additionalProperties": false,
	},
}

// TopicsSchema is the shape of a chapter's topic list.
var TopicsSchema = &llm.Schema{
	Name:        "curriculum-topics",
	Description: "Ordered topics within one chapter",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topics": map[string]any{
				"type":     "array",
				"minItems": 1,
				"maxItems": 8,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":   map[string]any{"type": "string", "description": "Topic title, 2-8 words"},
						"content": map[string]any{"type": "string", "description": "Two or three sentences summarizing what the topic teaches"},
					},
					"required":             []any{"title", "content"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"topics"},
		"additionalProperties": false,
	},
}

// GoalsSchema is the shape of a topic's learning goals.
var GoalsSchema = &llm.Schema{
	Name:        "curriculum-goals",
	Description: "Three to five learning goals for one topic",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"goals": map[string]any{
				"type":     "array",
				"minItems": 3,
				"maxItems": 5,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":       map[string]any{"type": "string", "description": "What the learner will be able to do, as a short phrase"},
						"description": map[string]any{"type": "string", "description": "One sentence describing how the goal is practiced"},
					},
					"required":             []any{"title", "description"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"goals"},
		"additionalProperties": false,
	},
}
