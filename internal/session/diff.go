package session

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffMarkup renders a word-level diff from the learner's answer to the
// corrected one: removed words as ~~x~~ and added words as **y**. It
// returns "" when either side is empty or they match.
func DiffMarkup(answer, corrected string) string {
	a, b := strings.Fields(answer), strings.Fields(corrected)
	if len(a) == 0 || len(b) == 0 || strings.Join(a, " ") == strings.Join(b, " ") {
		return ""
	}

	// Diff words rather than characters by mapping each word to a line.
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(strings.Join(a, "\n")+"\n", strings.Join(b, "\n")+"\n")
	diffs := dmp.DiffMain(ca, cb, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	parts := make([]string, 0, len(diffs))
	for _, d := range diffs {
		words := strings.Fields(d.Text)
		if len(words) == 0 {
			continue
		}
		text := strings.Join(words, " ")
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			parts = append(parts, "~~"+text+"~~")
		case diffmatchpatch.DiffInsert:
			parts = append(parts, "**"+text+"**")
		default:
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
