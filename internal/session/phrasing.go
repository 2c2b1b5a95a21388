package session

// movementPrompts vary the "shall we continue" message so consecutive
// prompts do not read identically.
var movementPrompts = []string{
	"Should we move on?",
	"Ready for the next one?",
	"Shall we keep going?",
	"Want to try another question?",
	"Good to move on?",
}

// movementOptions are the quick replies offered with a movement prompt.
var movementOptions = []string{"Yes, next question", "Explain more"}

// MovementPrompt picks a prompt deterministically from n, usually the
// goal's questions-asked count.
func MovementPrompt(n int) string {
	if n < 0 {
		n = -n
	}
	return movementPrompts[n%len(movementPrompts)]
}

const (
	askFailedText = "Sorry, I'm having trouble coming up with a question right now. " +
		"Send me any message when you're ready and I'll try again."

	evaluateFailedText = "Sorry, I had trouble checking that answer. " +
		"Could you send it again in plain text? Here's the question: "

	explainFailedText = "Sorry, I couldn't put an explanation together just now. "
)
