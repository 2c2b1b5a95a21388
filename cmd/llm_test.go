package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/microtutor/internal/store"
)

func sampleEvents() []store.LLMEvent {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return []store.LLMEvent{
		{ID: 2, Timestamp: at, LLMRequestEventData: store.LLMRequestEventData{
			Provider: "openai", Model: "gpt-4o-mini", Purpose: "tutor-evaluate",
			InputTokens: 320, OutputTokens: 40, LatencyMs: 850, Success: true,
		}},
		{ID: 1, Timestamp: at, LLMRequestEventData: store.LLMRequestEventData{
			Provider: "openai", Model: "gpt-4o-mini", Purpose: "tutor-ask",
			LatencyMs: 20000, ErrorMessage: "context deadline exceeded",
		}},
	}
}

func TestWriteEventList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeEventList(&buf, sampleEvents()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "tutor-evaluate")
	assert.True(t, strings.HasSuffix(lines[1], "yes"))
	assert.True(t, strings.HasSuffix(lines[2], "no"))
}

func TestWriteEventList_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeEventList(&buf, nil))
	assert.Equal(t, "No oracle calls recorded.\n", buf.String())
}

func TestFailedEvents(t *testing.T) {
	failed := failedEvents(sampleEvents())
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].ID)
}

func TestWriteEvent(t *testing.T) {
	e := sampleEvents()[1]
	e.RequestBody = "[system]\nAsk one question.\n\n"

	var buf bytes.Buffer
	writeEvent(&buf, &e)
	out := buf.String()

	assert.Contains(t, out, "gpt-4o-mini (openai)")
	assert.Contains(t, out, "context deadline exceeded")
	assert.Contains(t, out, "PROMPT\n------\n[system]\nAsk one question.\n")
	assert.Contains(t, out, "RESPONSE\n--------\n(not captured)")
}

func TestWriteUsage(t *testing.T) {
	purposes := []store.LLMPurposeUsage{
		{Purpose: "tutor-ask", Calls: 3, InputTokens: 1000, OutputTokens: 200, AvgLatencyMs: 700},
		{Purpose: "curriculum-goals", Calls: 1, InputTokens: 500, OutputTokens: 300, AvgLatencyMs: 1500},
	}
	models := []store.LLMModelUsage{
		{Model: "gpt-4o-mini-2024-07-18", Calls: 3, InputTokens: 1000, OutputTokens: 200},
		{Model: "mock", Calls: 1, InputTokens: 500, OutputTokens: 300},
	}

	var buf bytes.Buffer
	require.NoError(t, writeUsage(&buf, purposes, models))
	out := buf.String()

	assert.Regexp(t, `total\s+4\s+1500\s+500`, out)
	assert.Regexp(t, `gpt-4o-mini-2024-07-18\s+3\s+\$0\.0003`, out)
	assert.Regexp(t, `mock\s+1\s+\?`, out)
	assert.Contains(t, out, "total (partial)")
	assert.Contains(t, out, "No pricing for: mock")
}

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "$0.0012", formatCost(0.00123))
	assert.Equal(t, "$1.50", formatCost(1.5))
}
