package cmd

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/abhisek/microtutor/internal/domain"
	"github.com/abhisek/microtutor/internal/metrics"
	"github.com/abhisek/microtutor/internal/ui/components"
	"github.com/abhisek/microtutor/internal/ui/theme"
)

var diffToken = regexp.MustCompile(`~~(.+?)~~|\*\*(.+?)\*\*`)

// renderDiff styles diff markup: ~~removed~~ and **added** words.
func renderDiff(markup string) string {
	return diffToken.ReplaceAllStringFunc(markup, func(tok string) string {
		m := diffToken.FindStringSubmatch(tok)
		if m[1] != "" {
			return theme.Deleted.Render(m[1])
		}
		return theme.Inserted.Render(m[2])
	})
}

// renderMessage formats one transcript entry for the terminal. topicTitle
// heads the summary card.
func renderMessage(m domain.ChatMessage, topicTitle string) string {
	if m.Sender == domain.SenderLearner {
		return theme.LearnerLabel.Render("you") + "  " + theme.Body.Render(m.Text)
	}

	label := theme.TutorLabel.Render("tutor") + "  "
	switch m.Type {
	case domain.MessageCorrection:
		var b strings.Builder
		if m.Payload != nil && m.Payload.Score != nil {
			style := theme.Incorrect
			if *m.Payload.Score >= 70 {
				style = theme.Correct
			}
			b.WriteString(style.Render(fmt.Sprintf("%d%%", *m.Payload.Score)))
			if m.Payload.Emoji != "" {
				b.WriteString(" " + m.Payload.Emoji)
			}
			b.WriteString("\n")
		}
		if m.Payload != nil && m.Payload.Diff != "" {
			b.WriteString(renderDiff(m.Payload.Diff) + "\n")
		}
		b.WriteString(m.Text)
		return label + "\n" + theme.Card.Render(b.String())

	case domain.MessageMovementPrompt:
		out := label + theme.Body.Render(m.Text)
		if m.Payload != nil {
			for i, opt := range m.Payload.Options {
				out += "\n      " + theme.Option.Render(fmt.Sprintf("%d) %s", i+1, opt))
			}
		}
		return out

	case domain.MessageSummary:
		if m.Payload != nil && m.Payload.Metrics != nil {
			return label + theme.Body.Render(m.Text) + "\n" +
				theme.Card.Render(renderReport(topicTitle, *m.Payload.Metrics))
		}
	}
	return label + theme.Body.Render(m.Text)
}

// renderReport styles FormatReport output: a title line and colored stars.
func renderReport(topicTitle string, m domain.SessionMetrics) string {
	lines := strings.Split(strings.TrimRight(metrics.FormatReport(topicTitle, m), "\n"), "\n")
	for i, line := range lines {
		switch {
		case i == 0:
			lines[i] = theme.Title.Render(line)
		case strings.ContainsAny(line, "★☆"):
			lines[i] = theme.Stars.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

// renderGoals draws one progress bar per goal.
func renderGoals(goals []domain.Goal, idx domain.ProgressIndex) string {
	var b strings.Builder
	for _, g := range goals {
		b.WriteString(components.GoalBar(g.Title, idx[g.ID].QuestionsAsked, domain.RequiredQuestionsPerGoal, 48))
		b.WriteString("\n")
	}
	return b.String()
}

// resolveOption maps a numeric reply to the matching quick-reply option of
// the last tutor message.
func resolveOption(input string, last *domain.ChatMessage) string {
	if last == nil || last.Payload == nil || len(last.Payload.Options) == 0 {
		return input
	}
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > len(last.Payload.Options) {
		return input
	}
	return last.Payload.Options[n-1]
}
