package session

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/abhisek/microtutor/internal/domain"
)

const askSystemPrompt = `You are a patient, friendly tutor chatting one-on-one with a school student.

Rules:
- Ask exactly one new question that practices the target goal.
- The question must be answerable in a sentence or less and end with a question mark.
- Never repeat or lightly reword a question from the "already asked" list.
- The optional preamble is one short encouraging sentence and must not contain a question.
- Keep the language simple and age-appropriate.`

const judgeSystemPrompt = `You are a patient, friendly tutor grading a school student's answer in a chat.

Rules:
- Judge only whether the answer correctly responds to the question asked.
- Give partial credit: a correct idea with a small slip still scores high, a blank or off-topic reply scores low.
- correctionText praises a correct answer in one sentence; for an incorrect answer it explains the right answer to the exact question in at most three sentences.
- correctedAnswer is the learner's answer fixed with as few changes as possible.
- If the learner says they do not know, treat it as incorrect and teach the answer to the exact question.`

const minimalJudgeSystemPrompt = `You grade a student's answer. Respond with only a JSON object with the keys isCorrect (boolean), scorePercent (integer 0-100) and correctionText (string, at most three sentences answering the exact question).`

const explainSystemPrompt = `You are a patient, friendly tutor chatting one-on-one with a school student who asked for more explanation.

Rules:
- Reply with one to three short chat messages, each one or two sentences.
- Explain the idea behind the most recent question using a simple example.
- Do not ask the student a question; the tutor will ask whether to move on.`

// promptData is everything a prompt template may reference.
type promptData struct {
	TopicTitle     string
	TopicContent   string
	Goals          []goalLine
	TargetGoal     string
	Transcript     []string
	Asked          string
	Avoid          []string
	Question       string
	Answer         string
	LearnerMessage string
	LastCorrection string
}

type goalLine struct {
	Title  string
	Status string
}

var askTemplate = template.Must(template.New("ask").Parse(`Topic: {{.TopicTitle}}
{{if .TopicContent}}Topic notes: {{.TopicContent}}
{{end}}
Goals:
{{range .Goals}}- {{.Title}} ({{.Status}})
{{end}}
Target goal: {{.TargetGoal}}

Recent conversation:
{{range .Transcript}}{{.}}
{{else}}None
{{end}}
Already asked in this topic:
{{.Asked}}
{{if .Avoid}}
Your previous suggestion repeated an earlier question. Do NOT ask any of these again:
{{range .Avoid}}- {{.}}
{{end}}{{end}}`))

var judgeTemplate = template.Must(template.New("judge").Parse(`Topic: {{.TopicTitle}}
{{if .TopicContent}}Topic notes: {{.TopicContent}}
{{end}}
Goals:
{{range .Goals}}- {{.Title}} ({{.Status}})
{{end}}
Goal being practiced: {{.TargetGoal}}

Recent conversation:
{{range .Transcript}}{{.}}
{{else}}None
{{end}}
Already asked in this topic:
{{.Asked}}

Question: {{.Question}}
Learner's answer: {{.Answer}}`))

var minimalJudgeTemplate = template.Must(template.New("judge-minimal").Parse(`Question: {{.Question}}
Student's answer: {{.Answer}}`))

var explainTemplate = template.Must(template.New("explain").Parse(`Topic: {{.TopicTitle}}
{{if .TopicContent}}Topic notes: {{.TopicContent}}
{{end}}
Goal being practiced: {{.TargetGoal}}

Recent conversation:
{{range .Transcript}}{{.}}
{{else}}None
{{end}}{{if .Question}}
Most recent question: {{.Question}}
{{end}}{{if .LastCorrection}}Most recent correction: {{.LastCorrection}}
{{end}}
Student's request: {{.LearnerMessage}}`))

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// goalLines labels each goal with the learner's progress on it.
func goalLines(goals []domain.Goal, idx domain.ProgressIndex) []goalLine {
	lines := make([]goalLine, 0, len(goals))
	for _, g := range goals {
		status := "not started"
		if p, ok := idx[g.ID]; ok {
			switch {
			case p.IsCompleted:
				status = "complete"
			case p.QuestionsAsked > 0:
				status = fmt.Sprintf("%d of %d answered", p.QuestionsAsked, domain.RequiredQuestionsPerGoal)
			}
		}
		lines = append(lines, goalLine{Title: g.Title, Status: status})
	}
	return lines
}

// transcriptLines renders the tail as "Tutor: ..." / "Learner: ..." lines.
// Session summaries are abbreviated.
func transcriptLines(tail []domain.ChatMessage) []string {
	lines := make([]string, 0, len(tail))
	for _, m := range tail {
		who := "Learner"
		if m.Sender == domain.SenderTutor {
			who = "Tutor"
		}
		text := m.Text
		if m.Type == domain.MessageSummary {
			text = "[session summary]"
		}
		text = strings.Join(strings.Fields(text), " ")
		if text == "" {
			continue
		}
		lines = append(lines, who+": "+text)
	}
	return lines
}

func goalTitle(g *domain.Goal) string {
	if g == nil {
		return "review"
	}
	if g.Description != "" {
		return g.Title + ": " + g.Description
	}
	return g.Title
}
