package metrics

import (
	"fmt"
	"strings"

	"github.com/abhisek/microtutor/internal/domain"
)

// MaxStars is the top of the star scale.
const MaxStars = 5

// StarString renders a rating as filled and empty stars.
func StarString(rating int) string {
	rating = min(max(rating, 0), MaxStars)
	return strings.Repeat("★", rating) + strings.Repeat("☆", MaxStars-rating)
}

// FormatReport renders m as plain text. The output depends only on its
// arguments.
func FormatReport(topicTitle string, m domain.SessionMetrics) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Session report: %s\n", topicTitle)
	fmt.Fprintf(&b, "%s  %d%%\n", StarString(m.StarRating), m.OverallScorePercent)
	fmt.Fprintf(&b, "Questions: %d  Correct: %d  Incorrect: %d\n",
		m.TotalQuestions, m.CorrectAnswers, m.IncorrectAnswers)
	if m.ExplainRequests > 0 {
		fmt.Fprintf(&b, "Explanations requested: %d\n", m.ExplainRequests)
	}

	if len(m.PerGoal) > 0 {
		b.WriteString("\nGoals\n")
		for _, g := range m.PerGoal {
			mark := " "
			if g.IsCompleted {
				mark = "x"
			}
			fmt.Fprintf(&b, "  [%s] %s: %d%% (%d/%d correct)\n",
				mark, g.Title, g.ScorePercent, g.CorrectCount, g.QuestionsAsked)
		}
	}

	if len(m.ErrorTypes) > 0 {
		b.WriteString("\nMistakes by type\n")
		for _, et := range m.ErrorTypes {
			fmt.Fprintf(&b, "  %s: %d\n", et.ErrorType, et.Count)
		}
	}

	if len(m.WeakGoals) > 0 {
		b.WriteString("\nNeeds practice\n")
		for _, g := range m.WeakGoals {
			fmt.Fprintf(&b, "  - %s (%d%%)\n", g.Title, g.ScorePercent)
		}
		fmt.Fprintf(&b, "\nClose the gap: practice these goals to reach %d%% %s\n",
			m.ProjectedScorePercent, StarString(m.ProjectedStarRating))
	}

	return b.String()
}
