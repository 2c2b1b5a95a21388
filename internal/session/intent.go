package session

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	affirmativePattern = regexp.MustCompile(`^(?:yes|yeah|yea|yep|yup|ya|y|sure|ok|okay|k|kk|alright|all right|got it|gotcha|ready|next|go on|go ahead|continue|move on|lets go|let's go|lets move on|let's move on|sounds good|of course|definitely|absolutely|i'm ready|im ready|i am ready)\b`)

	negativePattern = regexp.MustCompile(`^(?:no|nope|nah|n|not yet|wait|hold on|not really|i'm not ready|im not ready)\b`)

	// An explanation request leads the message, optionally after a filler
	// ("ok but why?"). An answer that merely uses "why" or "explain" is
	// still an answer.
	explanationPattern = regexp.MustCompile(`^(?:` + fillers + `\s+)*(?:explain|explanation|why|how come|what does (?:that|this|it) mean|what do you mean|i don't (?:get|understand)|i dont (?:get|understand)|i do not (?:get|understand)|i'm confused|im confused|i am confused|confused|elaborate|tell me more|more detail|(?:can|could|would) you (?:please )?(?:explain|elaborate|tell me more)|please explain)\b`)

	// "I don't know" must be the whole message apart from fillers, so an
	// answer such as "light can pass through glass" is graded as given.
	dontKnowPattern = regexp.MustCompile(`^(?:` + fillers + `\s+)*(?:i don't know|i dont know|i do not know|don't know|dont know|idk|dunno|no idea|no clue|not sure|i'm not sure|im not sure|i am not sure|skip|pass|i give up)(?:\s+(?:` + fillers + `|really|at all|why|this one|the answer|what it is|either))*$`)
)

const fillers = `sorry|honestly|um+|uh+|hmm+|well|oh|ok|okay|but|so|please|wait`

// normalizeIntent lowercases s, unifies apostrophes, drops other
// punctuation and collapses whitespace.
func normalizeIntent(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("’", "'", "‘", "'", "`", "'").Replace(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\'' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// IsAffirmative reports whether s agrees to move on ("yes", "ok!", "Got it.").
func IsAffirmative(s string) bool {
	return affirmativePattern.MatchString(normalizeIntent(s))
}

// IsNegative reports whether s declines to move on.
func IsNegative(s string) bool {
	return negativePattern.MatchString(normalizeIntent(s))
}

// IsExplanationRequest reports whether s opens with a request for
// elaboration.
func IsExplanationRequest(s string) bool {
	return explanationPattern.MatchString(normalizeIntent(s))
}

// IsDontKnow reports whether s admits not knowing the answer.
func IsDontKnow(s string) bool {
	return dontKnowPattern.MatchString(normalizeIntent(s))
}
