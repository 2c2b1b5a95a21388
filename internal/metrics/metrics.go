// Package metrics derives session statistics for a (learner, topic) pair
// from the turn log and goal progress. Nothing here is persisted; every
// call recomputes from stored facts.
package metrics

import (
	"math"
	"sort"

	"github.com/abhisek/microtutor/internal/domain"
)

// Config holds the empirical grading thresholds.
type Config struct {
	// WeakGoalThreshold is the per-goal score below which a goal is weak.
	WeakGoalThreshold int

	// StarBands are the minimum scores for 5, 4, 3, ... stars, highest first.
	// A score below every band earns one star.
	StarBands []int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		WeakGoalThreshold: 70,
		StarBands:         []int{90, 75, 60, 40},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WeakGoalThreshold <= 0 {
		c.WeakGoalThreshold = d.WeakGoalThreshold
	}
	if len(c.StarBands) == 0 {
		c.StarBands = d.StarBands
	}
	return c
}

// Stars maps a score to a star rating using bands sorted highest first.
func Stars(score int, bands []int) int {
	for i, b := range bands {
		if score >= b {
			return len(bands) + 1 - i
		}
	}
	return 1
}

// Compute aggregates the stored turns and progress rows for one topic.
// goals must be sorted by Seq and turns by Sequence; the result depends on
// nothing else, so identical inputs always give identical output.
func Compute(learnerID, topicID string, goals []domain.Goal, progress []domain.GoalProgress, turns []domain.TurnRecord, cfg Config) domain.SessionMetrics {
	cfg = cfg.withDefaults()
	idx := domain.IndexProgress(progress)

	byGoal := make(map[string][]domain.TurnRecord, len(goals))
	for _, t := range turns {
		byGoal[t.GoalID] = append(byGoal[t.GoalID], t)
	}

	m := domain.SessionMetrics{
		LearnerID:  learnerID,
		TopicID:    topicID,
		PerGoal:    make([]domain.GoalMetrics, 0, len(goals)),
		WeakGoals:  []domain.GoalMetrics{},
		ErrorTypes: []domain.ErrorTypeCount{},
	}

	weak := make(map[string]bool)
	for _, g := range goals {
		gp := idx[g.ID]
		gt := byGoal[g.ID]
		gm := domain.GoalMetrics{
			GoalID:         g.ID,
			Title:          g.Title,
			QuestionsAsked: gp.QuestionsAsked,
			CorrectCount:   gp.CorrectCount,
			IncorrectCount: gp.IncorrectCount,
			IsCompleted:    gp.IsCompleted,
			GradedTurns:    len(gt),
		}
		scores := make([]int, len(gt))
		for i, t := range gt {
			scores[i] = t.Feedback.ScorePercent
			gm.ExplainRequests += t.ExplainRequests
		}
		gm.ScorePercent = meanPercent(scores)

		m.PerGoal = append(m.PerGoal, gm)
		if len(gt) > 0 && gm.ScorePercent < cfg.WeakGoalThreshold {
			weak[g.ID] = true
			m.WeakGoals = append(m.WeakGoals, gm)
		}
	}

	histogram := make(map[string]int)
	scores := make([]int, 0, len(turns))
	projected := make([]int, 0, len(turns))
	for _, t := range turns {
		m.TotalQuestions++
		if t.Feedback.IsCorrect {
			m.CorrectAnswers++
		} else {
			m.IncorrectAnswers++
		}
		if t.Feedback.ErrorType != "" {
			histogram[t.Feedback.ErrorType]++
		}
		m.ExplainRequests += t.ExplainRequests

		scores = append(scores, t.Feedback.ScorePercent)
		if weak[t.GoalID] && !t.Feedback.IsCorrect {
			projected = append(projected, 100)
		} else {
			projected = append(projected, t.Feedback.ScorePercent)
		}
	}

	m.OverallScorePercent = meanPercent(scores)
	m.StarRating = Stars(m.OverallScorePercent, cfg.StarBands)
	m.ProjectedScorePercent = meanPercent(projected)
	m.ProjectedStarRating = Stars(m.ProjectedScorePercent, cfg.StarBands)

	for et, n := range histogram {
		m.ErrorTypes = append(m.ErrorTypes, domain.ErrorTypeCount{ErrorType: et, Count: n})
	}
	sort.Slice(m.ErrorTypes, func(i, j int) bool {
		a, b := m.ErrorTypes[i], m.ErrorTypes[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ErrorType < b.ErrorType
	})

	return m
}

// meanPercent is round(mean(scores)), 0 for no scores.
func meanPercent(scores []int) int {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return int(math.Round(float64(sum) / float64(len(scores))))
}
