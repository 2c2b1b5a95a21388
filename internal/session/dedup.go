package session

import (
	"fmt"
	"strings"
)

// NormalizeQuestion folds case, collapses whitespace and trims trailing
// punctuation so trivially different phrasings compare equal.
func NormalizeQuestion(q string) string {
	q = strings.ToLower(strings.Join(strings.Fields(q), " "))
	return strings.TrimRight(q, "?.!。 ")
}

// questionSet tracks normalized asked questions.
type questionSet map[string]struct{}

func newQuestionSet(asked []string) questionSet {
	s := make(questionSet, len(asked))
	for _, q := range asked {
		s[NormalizeQuestion(q)] = struct{}{}
	}
	return s
}

func (s questionSet) has(q string) bool {
	_, ok := s[NormalizeQuestion(q)]
	return ok
}

// uniqueQuestions drops repeats from asked, keeping first occurrences.
func uniqueQuestions(asked []string) []string {
	seen := make(questionSet, len(asked))
	out := make([]string, 0, len(asked))
	for _, q := range asked {
		n := NormalizeQuestion(q)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, q)
	}
	return out
}

// buildDedup formats prior questions for the prompt, keeping the most
// recent max. Returns "None" if there are none.
func buildDedup(priorQuestions []string, max int) string {
	if len(priorQuestions) == 0 {
		return "None"
	}
	if max > 0 && len(priorQuestions) > max {
		priorQuestions = priorQuestions[len(priorQuestions)-max:]
	}

	var b strings.Builder
	for i, q := range priorQuestions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return strings.TrimRight(b.String(), "\n")
}
