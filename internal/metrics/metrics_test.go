package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/microtutor/internal/domain"
	"github.com/abhisek/microtutor/internal/store"
)

func turn(seq int64, goalID string, correct bool, score int, errType string) domain.TurnRecord {
	return domain.TurnRecord{
		ID:       fmt.Sprintf("t%d", seq),
		Sequence: seq,
		GoalID:   goalID,
		Feedback: domain.Feedback{IsCorrect: correct, ScorePercent: score, ErrorType: errType},
	}
}

func threeGoalFixture() ([]domain.Goal, []domain.GoalProgress, []domain.TurnRecord) {
	goals := []domain.Goal{
		{ID: "g1", Title: "Like denominators", Seq: 1},
		{ID: "g2", Title: "Unlike denominators", Seq: 2},
		{ID: "g3", Title: "Mixed numbers", Seq: 3},
	}
	progress := []domain.GoalProgress{
		{GoalID: "g1", QuestionsAsked: 2, CorrectCount: 2, IsCompleted: true},
		{GoalID: "g2", QuestionsAsked: 2, IncorrectCount: 2, IsCompleted: true},
		{GoalID: "g3", QuestionsAsked: 2, CorrectCount: 2, IsCompleted: true},
	}
	turns := []domain.TurnRecord{
		turn(1, "g1", true, 100, ""),
		turn(2, "g1", true, 100, ""),
		turn(3, "g2", false, 10, "Knowledge Gap"),
		turn(4, "g2", false, 10, "Knowledge Gap"),
		turn(5, "g3", true, 100, ""),
		turn(6, "g3", true, 100, ""),
	}
	return goals, progress, turns
}

func TestCompute_ThreeGoalsAllComplete(t *testing.T) {
	goals, progress, turns := threeGoalFixture()
	m := Compute("l1", "topic", goals, progress, turns, DefaultConfig())

	assert.Equal(t, 6, m.TotalQuestions)
	assert.Equal(t, 4, m.CorrectAnswers)
	assert.Equal(t, 2, m.IncorrectAnswers)
	assert.Equal(t, 70, m.OverallScorePercent)
	assert.Equal(t, 3, m.StarRating)

	require.Len(t, m.PerGoal, 3)
	assert.Equal(t, 100, m.PerGoal[0].ScorePercent)
	assert.Equal(t, 10, m.PerGoal[1].ScorePercent)

	require.Len(t, m.WeakGoals, 1)
	assert.Equal(t, "g2", m.WeakGoals[0].GoalID)

	assert.Equal(t, []domain.ErrorTypeCount{{ErrorType: "Knowledge Gap", Count: 2}}, m.ErrorTypes)

	assert.Equal(t, 100, m.ProjectedScorePercent)
	assert.Equal(t, 5, m.ProjectedStarRating)
}

func TestCompute_UsesMeanNotRatio(t *testing.T) {
	goals := []domain.Goal{{ID: "g1", Seq: 1}}
	turns := []domain.TurnRecord{
		turn(1, "g1", false, 85, "Spelling"),
		turn(2, "g1", true, 100, ""),
	}
	m := Compute("l1", "topic", goals, nil, turns, DefaultConfig())

	// 1/2 correct would be 50%; partial credit lifts it to 93.
	assert.Equal(t, 93, m.OverallScorePercent)
	assert.Equal(t, 5, m.StarRating)
	assert.Empty(t, m.WeakGoals)
}

func TestCompute_Empty(t *testing.T) {
	goals := []domain.Goal{{ID: "g1", Seq: 1}}
	m := Compute("l1", "topic", goals, nil, nil, DefaultConfig())

	assert.Equal(t, 0, m.TotalQuestions)
	assert.Equal(t, 0, m.OverallScorePercent)
	assert.Equal(t, 1, m.StarRating)
	assert.Empty(t, m.WeakGoals, "goals without turns are not weak")
	assert.NotNil(t, m.ErrorTypes)
}

func TestCompute_Idempotent(t *testing.T) {
	goals, progress, turns := threeGoalFixture()
	turns[2].Feedback.ErrorType = "Calculation"
	turns[3].Feedback.ErrorType = "Concept"
	turns[0].ExplainRequests = 2

	first, err := json.Marshal(Compute("l1", "topic", goals, progress, turns, DefaultConfig()))
	require.NoError(t, err)
	for range 20 {
		again, err := json.Marshal(Compute("l1", "topic", goals, progress, turns, DefaultConfig()))
		require.NoError(t, err)
		require.Equal(t, string(first), string(again))
	}
}

func TestCompute_ErrorTypeOrder(t *testing.T) {
	goals := []domain.Goal{{ID: "g1", Seq: 1}}
	turns := []domain.TurnRecord{
		turn(1, "g1", false, 40, "Spelling"),
		turn(2, "g1", false, 40, "Concept"),
		turn(3, "g1", false, 40, "Concept"),
		turn(4, "g1", false, 40, "Arithmetic"),
	}
	m := Compute("l1", "topic", goals, nil, turns, DefaultConfig())

	want := []domain.ErrorTypeCount{
		{ErrorType: "Concept", Count: 2},
		{ErrorType: "Arithmetic", Count: 1},
		{ErrorType: "Spelling", Count: 1},
	}
	assert.Equal(t, want, m.ErrorTypes)
}

func TestCompute_CustomThresholds(t *testing.T) {
	goals, progress, turns := threeGoalFixture()
	cfg := Config{WeakGoalThreshold: 5, StarBands: []int{95, 50}}
	m := Compute("l1", "topic", goals, progress, turns, cfg)

	assert.Empty(t, m.WeakGoals)
	assert.Equal(t, 2, m.StarRating)
	assert.Equal(t, m.OverallScorePercent, m.ProjectedScorePercent)
}

func TestStars(t *testing.T) {
	bands := DefaultConfig().StarBands
	tests := []struct {
		score int
		want  int
	}{
		{100, 5}, {90, 5}, {89, 4}, {75, 4}, {74, 3}, {60, 3}, {59, 2}, {40, 2}, {39, 1}, {0, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.score), func(t *testing.T) {
			assert.Equal(t, tt.want, Stars(tt.score, bands))
		})
	}
}

func TestFormatReport(t *testing.T) {
	goals, progress, turns := threeGoalFixture()
	m := Compute("l1", "topic", goals, progress, turns, DefaultConfig())
	report := FormatReport("Adding fractions", m)

	assert.Contains(t, report, "Session report: Adding fractions")
	assert.Contains(t, report, "★★★☆☆  70%")
	assert.Contains(t, report, "[x] Unlike denominators: 10% (0/2 correct)")
	assert.Contains(t, report, "Knowledge Gap: 2")
	assert.Contains(t, report, "Close the gap")
	assert.Contains(t, report, "100%")
	assert.Equal(t, report, FormatReport("Adding fractions", m))
}

func TestStarString(t *testing.T) {
	assert.Equal(t, "★★★☆☆", StarString(3))
	assert.Equal(t, "☆☆☆☆☆", StarString(-1))
	assert.Equal(t, "★★★★★", StarString(9))
}

func TestAggregator_FromStore(t *testing.T) {
	ctx := context.Background()
	name := strings.NewReplacer("/", "_").Replace(t.Name())
	s, err := store.Open(fmt.Sprintf("file:metrics_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Learners().Upsert(ctx, &domain.Learner{ID: "l1", Grade: "5", Board: "CBSE"}))
	subject := &domain.Subject{ID: "s1", LearnerID: "l1", Name: "Fractions", Status: domain.SubjectReady, CreatedAt: time.Now()}
	require.NoError(t, s.Subjects().Create(ctx, subject))
	outline := &domain.Outline{Chapters: []domain.OutlineChapter{{
		Title: "Basics",
		Topics: []domain.OutlineTopic{{
			Title: "Adding",
			Goals: []domain.OutlineGoal{{Title: "A"}, {Title: "B"}},
		}},
	}}}
	require.NoError(t, s.Curriculum().SaveOutline(ctx, subject, outline))
	chapters, err := s.Curriculum().ListChapters(ctx, "s1")
	require.NoError(t, err)
	topics, err := s.Curriculum().ListTopics(ctx, chapters[0].ID)
	require.NoError(t, err)
	topicID := topics[0].ID
	goals, err := s.Curriculum().ListGoals(ctx, topicID)
	require.NoError(t, err)

	record := func(goalID string, correct bool, score int) {
		now := time.Now()
		rec := &domain.TurnRecord{LearnerID: "l1", TopicID: topicID, GoalID: goalID, Question: "q?", Answer: "a",
			Feedback: domain.Feedback{IsCorrect: correct, ScorePercent: score}, AskedAt: now, AnsweredAt: now}
		require.NoError(t, s.Turns().Append(ctx, rec))
		_, err := s.Progress().RecordAnswer(ctx, "l1", goalID, correct, now)
		require.NoError(t, err)
	}
	record(goals[0].ID, true, 100)
	record(goals[0].ID, false, 40)
	record(goals[1].ID, true, 100)

	agg := NewAggregator(s.Repos, Config{})
	m, err := agg.Compute(ctx, "l1", topicID)
	require.NoError(t, err)
	assert.Equal(t, 3, m.TotalQuestions)
	assert.Equal(t, 80, m.OverallScorePercent)
	require.Len(t, m.PerGoal, 2)
	assert.True(t, m.PerGoal[0].IsCompleted)
	assert.False(t, m.PerGoal[1].IsCompleted)
	assert.Equal(t, 70, m.PerGoal[0].ScorePercent)
	assert.Empty(t, m.WeakGoals)

	var viaTx domain.SessionMetrics
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		viaTx, err = agg.ComputeTx(ctx, r, "l1", topicID)
		return err
	}))
	assert.Equal(t, m, viaTx)
}
