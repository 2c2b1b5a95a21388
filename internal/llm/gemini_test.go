package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGeminiModelMapping(t *testing.T) {
	assert.Equal(t, "gemini-2.5-flash", resolveModel("gemini-flash", geminiModels))
	assert.Equal(t, "gemini-2.5-flash-lite", resolveModel("gemini-lite", geminiModels))
	assert.Equal(t, "gemini-2.5-pro", resolveModel("gemini-pro", geminiModels))
	assert.Equal(t, "gemini-2.0-flash", resolveModel("gemini-2.0-flash", geminiModels), "unknown names pass through")
}

func TestBuildGeminiSchema(t *testing.T) {
	def := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"goals": map[string]any{
				"type":        "array",
				"description": "Learning goals for the topic",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":      map[string]any{"type": "string"},
						"difficulty": map[string]any{"type": "string", "enum": []any{"easy", "medium", "hard"}},
						"weight":     map[string]any{"type": "number"},
						"order":      map[string]any{"type": "integer"},
						"optional":   map[string]any{"type": "boolean"},
					},
					"required": []any{"title"},
				},
			},
		},
		"required": []any{"goals"},
	}

	schema := buildGeminiSchema(def)

	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.Equal(t, []string{"goals"}, schema.Required)

	goals := schema.Properties["goals"]
	require.NotNil(t, goals)
	assert.Equal(t, genai.TypeArray, goals.Type)
	assert.Equal(t, "Learning goals for the topic", goals.Description)

	item := goals.Items
	require.NotNil(t, item)
	assert.Equal(t, genai.TypeObject, item.Type)
	assert.Equal(t, genai.TypeString, item.Properties["title"].Type)
	assert.Equal(t, []string{"easy", "medium", "hard"}, item.Properties["difficulty"].Enum)
	assert.Equal(t, genai.TypeNumber, item.Properties["weight"].Type)
	assert.Equal(t, genai.TypeInteger, item.Properties["order"].Type)
	assert.Equal(t, genai.TypeBoolean, item.Properties["optional"].Type)
	assert.Equal(t, []string{"title"}, item.Required)
}

func TestBuildGeminiSchema_NullableUnion(t *testing.T) {
	def := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"hint": map[string]any{"type": []any{"string", "null"}},
		},
	}

	hint := buildGeminiSchema(def).Properties["hint"]
	assert.Equal(t, genai.TypeString, hint.Type)
	require.NotNil(t, hint.Nullable)
	assert.True(t, *hint.Nullable)
}
