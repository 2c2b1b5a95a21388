package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/microtutor/internal/domain"
	"github.com/abhisek/microtutor/internal/llm"
	"github.com/abhisek/microtutor/internal/lock"
	"github.com/abhisek/microtutor/internal/metrics"
	"github.com/abhisek/microtutor/internal/progress"
	"github.com/abhisek/microtutor/internal/store"
)

// ErrNoGoals is returned for a topic without goals; there is nothing to
// tutor.
var ErrNoGoals = errors.New("topic has no goals")

// writeAttempts bounds retries of transcript writes on a locked database.
const writeAttempts = 5

// strictSuffix is added to the system prompt of a repeated attempt.
const strictSuffix = "\n\nRespond with only the JSON object described by the schema, with no other text."

// Config holds engine settings.
type Config struct {
	// OracleTimeout bounds each oracle attempt.
	OracleTimeout time.Duration

	// TranscriptTail is how many recent messages state is derived from.
	TranscriptTail int

	// MaxPriorQuestions caps the asked-questions list sent to the oracle.
	MaxPriorQuestions int

	MaxTokens   int
	Temperature float64

	// Retry bounds oracle attempts per step.
	Retry RetryPolicy
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		OracleTimeout:     20 * time.Second,
		TranscriptTail:    10,
		MaxPriorQuestions: 30,
		MaxTokens:         1024,
		Temperature:       0.4,
		Retry:             RetryPolicy{MaxAttempts: 2},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.OracleTimeout <= 0 {
		c.OracleTimeout = d.OracleTimeout
	}
	if c.TranscriptTail < 2 {
		c.TranscriptTail = d.TranscriptTail
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = d.Retry
	}
	return c
}

// Deps are the engine's collaborators. Store and Provider are required;
// the rest default to in-process implementations over Store.
type Deps struct {
	Store      *store.Store
	Provider   llm.Provider
	Tracker    *progress.Tracker
	Aggregator *metrics.Aggregator
	Locker     lock.Locker
	Logger     *zap.Logger
}

// Engine is the tutoring state machine. It keeps no per-conversation
// state between calls and is safe for concurrent use.
type Engine struct {
	store      *store.Store
	provider   llm.Provider
	tracker    *progress.Tracker
	aggregator *metrics.Aggregator
	locker     lock.Locker
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(deps Deps, cfg Config) *Engine {
	e := &Engine{
		store:      deps.Store,
		provider:   deps.Provider,
		tracker:    deps.Tracker,
		aggregator: deps.Aggregator,
		locker:     deps.Locker,
		cfg:        cfg.withDefaults(),
		logger:     deps.Logger,
		now:        time.Now,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.tracker == nil {
		e.tracker = progress.NewTracker(deps.Store, e.logger)
	}
	if e.aggregator == nil {
		e.aggregator = metrics.NewAggregator(deps.Store.Repos, metrics.DefaultConfig())
	}
	if e.locker == nil {
		e.locker = lock.NewLocal()
	}
	return e
}

// TurnRequest is everything GenerateTurn needs to act on one learner
// message.
type TurnRequest struct {
	LearnerID    string
	TopicID      string
	Message      string
	TopicTitle   string
	TopicContent string

	// Transcript is the recent tail in chronological order. It may end
	// with Message itself.
	Transcript []domain.ChatMessage

	// Goals are the topic's goals by sequence; Progress is the learner's
	// progress on them. The current goal is derived from both.
	Goals    []domain.Goal
	Progress domain.ProgressIndex

	// AskedQuestions are every question already put to the learner in
	// this topic.
	AskedQuestions []string
}

// Correction is the grading attached to an evaluated answer.
type Correction struct {
	DiffMarkup      string          `json:"diffMarkup,omitempty"`
	CorrectionText  string          `json:"correctionText"`
	CorrectedAnswer string          `json:"correctedAnswer,omitempty"`
	Feedback        domain.Feedback `json:"feedback"`
}

// TurnResult is the tutor's reply to one learner message. Messages are
// already stored in the transcript.
type TurnResult struct {
	Action     Action               `json:"action"`
	Messages   []domain.ChatMessage `json:"messages"`
	Correction *Correction          `json:"correction,omitempty"`

	// Degraded is set when the oracle failed and an apology was sent.
	Degraded bool `json:"degraded,omitempty"`
}

// Respond handles one inbound learner message end to end: it serializes
// the conversation, stores the learner's message before anything can
// fail, loads the context and runs GenerateTurn. An empty text starts or
// resumes the conversation without storing a learner message.
func (e *Engine) Respond(ctx context.Context, learnerID, topicID, text string) (*TurnResult, error) {
	topic, err := e.store.Curriculum().GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if topic.LearnerID != learnerID {
		return nil, store.ErrNotFound
	}

	unlock, err := e.locker.Lock(ctx, lock.ConversationKey(learnerID, topicID))
	if err != nil {
		return nil, fmt.Errorf("lock conversation: %w", err)
	}
	defer unlock()
	ctx = llm.WithConversation(ctx, learnerID, topicID)

	text = strings.TrimSpace(text)
	now := e.now().UTC()
	if text != "" {
		msg := &domain.ChatMessage{
			LearnerID: learnerID,
			TopicID:   topicID,
			Sender:    domain.SenderLearner,
			Text:      text,
			Type:      domain.MessagePlain,
			CreatedAt: now,
		}
		err := store.RetryBusy(ctx, writeAttempts, func() error {
			return e.store.Messages().Append(ctx, msg)
		})
		if err != nil {
			return nil, fmt.Errorf("store learner message: %w", err)
		}
	}
	if err := e.store.Learners().Touch(ctx, learnerID, now); err != nil {
		e.logger.Warn("touch learner failed", zap.String("learner_id", learnerID), zap.Error(err))
	}

	req, err := e.loadRequest(ctx, topic, learnerID, text)
	if err != nil {
		return nil, err
	}
	return e.GenerateTurn(ctx, req)
}

func (e *Engine) loadRequest(ctx context.Context, topic *domain.Topic, learnerID, text string) (TurnRequest, error) {
	req := TurnRequest{
		LearnerID:    learnerID,
		TopicID:      topic.ID,
		Message:      text,
		TopicTitle:   topic.Title,
		TopicContent: topic.Content,
	}

	var rows []domain.GoalProgress
	var questions []domain.ChatMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		req.Transcript, err = e.store.Messages().Tail(gctx, learnerID, topic.ID, e.cfg.TranscriptTail)
		return err
	})
	g.Go(func() error {
		var err error
		req.Goals, err = e.store.Curriculum().ListGoals(gctx, topic.ID)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = e.store.Progress().ListForTopic(gctx, learnerID, topic.ID)
		return err
	})
	g.Go(func() error {
		var err error
		questions, err = e.store.Messages().QuestionMessages(gctx, learnerID, topic.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return TurnRequest{}, fmt.Errorf("load conversation: %w", err)
	}

	req.Progress = domain.IndexProgress(rows)
	for _, m := range questions {
		req.AskedQuestions = append(req.AskedQuestions, m.QuestionText())
	}
	return req, nil
}

// GenerateTurn decides what to do with req.Message and does it: it asks,
// grades, explains or summarizes, records the outcome and returns the
// tutor messages it stored. Oracle failures never surface as errors; the
// learner gets an apology instead. Errors are storage failures.
func (e *Engine) GenerateTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if len(req.Goals) == 0 {
		return nil, ErrNoGoals
	}
	if req.Progress == nil {
		req.Progress = domain.ProgressIndex{}
	}

	st := DeriveState(req.Transcript, req.Goals, req.Progress)
	action := Decide(st, req.Message)
	e.logger.Debug("turn",
		zap.String("learner_id", req.LearnerID),
		zap.String("topic_id", req.TopicID),
		zap.String("action", string(action)),
		zap.Bool("awaiting_answer", st.AwaitingAnswer),
		zap.Bool("awaiting_movement", st.AwaitingMovementConfirmation),
	)

	switch action {
	case ActionSummary:
		return e.summarize(ctx, req)
	case ActionEvaluate:
		return e.evaluate(ctx, req, st)
	case ActionExplain:
		return e.explain(ctx, req, st)
	default:
		return e.ask(ctx, req, st)
	}
}

// generatedQuestion is a validated oracle question.
type generatedQuestion struct {
	Preamble string
	Question string
}

func (e *Engine) ask(ctx context.Context, req TurnRequest, st State) (*TurnResult, error) {
	goal := st.CurrentGoal
	asked := uniqueQuestions(req.AskedQuestions)
	seen := newQuestionSet(asked)

	q, err := e.generateQuestion(ctx, req, goal, asked, nil)
	if err == nil && seen.has(q.Question) {
		retry, rerr := e.generateQuestion(ctx, req, goal, asked, []string{q.Question})
		if rerr == nil {
			q = retry
		}
		if seen.has(q.Question) {
			e.logger.Warn("accepting duplicate question",
				zap.String("learner_id", req.LearnerID),
				zap.String("topic_id", req.TopicID),
				zap.String("goal_id", goal.ID),
				zap.String("question", q.Question),
			)
		}
	}
	if err != nil {
		e.logger.Warn("question generation failed, sending apology",
			zap.String("learner_id", req.LearnerID),
			zap.String("topic_id", req.TopicID),
			zap.Error(err),
		)
		return e.emit(ctx, ActionAsk, true, nil, e.tutorMessage(req, domain.MessagePlain, askFailedText))
	}

	var msgs []*domain.ChatMessage
	if q.Preamble != "" {
		msgs = append(msgs, e.tutorMessage(req, domain.MessagePlain, q.Preamble))
	}
	qm := e.tutorMessage(req, domain.MessagePlain, q.Question)
	qm.GoalID = goal.ID
	msgs = append(msgs, qm)

	return e.emit(ctx, ActionAsk, false, func(ctx context.Context, r store.Repos) error {
		return r.Progress().NoteQuestion(ctx, req.LearnerID, goal.ID, q.Question, e.now().UTC())
	}, msgs...)
}

func (e *Engine) generateQuestion(ctx context.Context, req TurnRequest, goal *domain.Goal, asked, avoid []string) (generatedQuestion, error) {
	user, err := render(askTemplate, promptData{
		TopicTitle:   req.TopicTitle,
		TopicContent: req.TopicContent,
		Goals:        goalLines(req.Goals, req.Progress),
		TargetGoal:   goalTitle(goal),
		Transcript:   transcriptLines(req.Transcript),
		Asked:        buildDedup(asked, e.cfg.MaxPriorQuestions),
		Avoid:        avoid,
	})
	if err != nil {
		return generatedQuestion{}, err
	}

	var out generatedQuestion
	attempts := []attempt{
		{schema: QuestionSchema, system: askSystemPrompt, user: user},
		{schema: QuestionSchema, system: askSystemPrompt + strictSuffix, user: user},
	}
	_, err = e.invoke(ctx, "tutor-ask", attempts, e.cfg.Retry, func(raw json.RawMessage) error {
		var o struct {
			Preamble *string `json:"preamble"`
			Question string  `json:"question"`
		}
		if err := json.Unmarshal(raw, &o); err != nil {
			return fmt.Errorf("parse question: %w", err)
		}
		q, err := validateQuestion(o.Question)
		if err != nil {
			return err
		}
		out = generatedQuestion{Question: q}
		if o.Preamble != nil {
			out.Preamble = cleanPreamble(*o.Preamble)
		}
		return nil
	})
	return out, err
}

func (e *Engine) evaluate(ctx context.Context, req TurnRequest, st State) (*TurnResult, error) {
	goal := findGoal(req.Goals, st.PendingGoalID)
	if goal == nil {
		goal = st.CurrentGoal
	}
	question := st.LastQuestion
	answer := strings.TrimSpace(req.Message)

	data := promptData{
		TopicTitle:   req.TopicTitle,
		TopicContent: req.TopicContent,
		Goals:        goalLines(req.Goals, req.Progress),
		TargetGoal:   goalTitle(goal),
		Transcript:   transcriptLines(req.Transcript),
		Asked:        buildDedup(uniqueQuestions(req.AskedQuestions), e.cfg.MaxPriorQuestions),
		Question:     question,
		Answer:       answer,
	}
	full, err := render(judgeTemplate, data)
	if err != nil {
		return nil, err
	}
	minimal, err := render(minimalJudgeTemplate, data)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	attempts := []attempt{
		{schema: JudgmentSchema, system: judgeSystemPrompt, user: full},
		{schema: MinimalJudgmentSchema, system: minimalJudgeSystemPrompt, user: minimal},
	}
	used, err := e.invoke(ctx, "tutor-evaluate", attempts, e.cfg.Retry, func(b json.RawMessage) error {
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("parse judgment: %w", err)
		}
		if lookup(m, "correction", "judgment", "result", "isCorrect", "is_correct", "correct") == nil {
			return &ValidationError{Field: "correction", Message: "missing"}
		}
		raw = m
		return nil
	})
	if err != nil {
		e.logger.Warn("grading failed, asking learner to resend",
			zap.String("learner_id", req.LearnerID),
			zap.String("topic_id", req.TopicID),
			zap.String("goal_id", goal.ID),
			zap.Error(err),
		)
		// Re-ask the same question so the resent answer is graded.
		msg := e.tutorMessage(req, domain.MessagePlain, evaluateFailedText+question)
		msg.GoalID = goal.ID
		msg.Payload = &domain.Payload{Question: question}
		return e.emit(ctx, ActionEvaluate, true, nil, msg)
	}

	j := Normalize(raw, answer)
	if len(j.Remarks) > 0 {
		j.CorrectionText = strings.Join(append([]string{j.CorrectionText}, j.Remarks...), " ")
	}

	now := e.now().UTC()
	askedAt := now
	if st.LastTutorMessage != nil && !st.LastTutorMessage.CreatedAt.IsZero() {
		askedAt = st.LastTutorMessage.CreatedAt
	}
	feedback := domain.Feedback{
		IsCorrect:    j.IsCorrect,
		ScorePercent: j.ScorePercent,
		ErrorType:    j.ErrorType,
		ErrorSubtype: j.ErrorSubtype,
	}
	rec := &domain.TurnRecord{
		LearnerID:       req.LearnerID,
		TopicID:         req.TopicID,
		GoalID:          goal.ID,
		Question:        question,
		Answer:          answer,
		CorrectedAnswer: j.CorrectedAnswer,
		DiffMarkup:      j.DiffMarkup,
		CorrectionText:  j.CorrectionText,
		Feedback:        feedback,
		Retries:         used,
		AskedAt:         askedAt,
		AnsweredAt:      now,
	}

	var out []domain.ChatMessage
	_, err = e.tracker.RecordGradedTurn(ctx, rec, func(ctx context.Context, r store.Repos, gp domain.GoalProgress) error {
		msgs := []*domain.ChatMessage{e.correctionMessage(req, j)}

		rows, err := r.Progress().ListForTopic(ctx, req.LearnerID, req.TopicID)
		if err != nil {
			return err
		}
		if domain.CurrentGoal(req.Goals, domain.IndexProgress(rows)) == nil {
			m, err := e.aggregator.ComputeTx(ctx, r, req.LearnerID, req.TopicID)
			if err != nil {
				return err
			}
			msgs = append(msgs, e.summaryMessage(req, m))
		} else {
			msgs = append(msgs, e.movementMessage(req, "", answeredCount(rows)))
		}

		if err := r.Messages().Append(ctx, msgs...); err != nil {
			return err
		}
		out = derefMessages(msgs)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &TurnResult{
		Action:   ActionEvaluate,
		Messages: out,
		Correction: &Correction{
			DiffMarkup:      j.DiffMarkup,
			CorrectionText:  j.CorrectionText,
			CorrectedAnswer: j.CorrectedAnswer,
			Feedback:        feedback,
		},
	}, nil
}

func (e *Engine) explain(ctx context.Context, req TurnRequest, st State) (*TurnResult, error) {
	latest, err := e.store.Turns().Latest(ctx, req.LearnerID, req.TopicID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	goal := st.CurrentGoal
	question := st.LastQuestion
	var lastCorrection string
	if latest != nil {
		if g := findGoal(req.Goals, latest.GoalID); g != nil && question == "" {
			goal = g
		}
		if question == "" {
			question = latest.Question
		}
		lastCorrection = latest.CorrectionText
	}

	user, err := render(explainTemplate, promptData{
		TopicTitle:     req.TopicTitle,
		TopicContent:   req.TopicContent,
		TargetGoal:     goalTitle(goal),
		Transcript:     transcriptLines(req.Transcript),
		Question:       question,
		LearnerMessage: strings.TrimSpace(req.Message),
		LastCorrection: lastCorrection,
	})
	if err != nil {
		return nil, err
	}

	var parts []string
	attempts := []attempt{
		{schema: ExplanationSchema, system: explainSystemPrompt, user: user},
		{schema: ExplanationSchema, system: explainSystemPrompt + strictSuffix, user: user},
	}
	_, err = e.invoke(ctx, "tutor-explain", attempts, e.cfg.Retry, func(raw json.RawMessage) error {
		var o struct {
			Messages []string `json:"messages"`
		}
		if err := json.Unmarshal(raw, &o); err != nil {
			return fmt.Errorf("parse explanation: %w", err)
		}
		msgs, err := validateExplanation(o.Messages)
		if err != nil {
			return err
		}
		parts = msgs
		return nil
	})

	answered := answeredCount(progressRows(req.Progress))
	if err != nil {
		e.logger.Warn("explanation failed, sending apology",
			zap.String("learner_id", req.LearnerID),
			zap.String("topic_id", req.TopicID),
			zap.Error(err),
		)
		return e.emit(ctx, ActionExplain, true, nil, e.movementMessage(req, explainFailedText, answered))
	}

	msgs := make([]*domain.ChatMessage, 0, len(parts)+1)
	for _, p := range parts {
		msgs = append(msgs, e.tutorMessage(req, domain.MessagePlain, p))
	}
	msgs = append(msgs, e.movementMessage(req, "", answered))

	return e.emit(ctx, ActionExplain, false, func(ctx context.Context, r store.Repos) error {
		if latest == nil {
			return nil
		}
		return r.Turns().IncrementExplainCount(ctx, latest.ID)
	}, msgs...)
}

func (e *Engine) summarize(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	m, err := e.aggregator.Compute(ctx, req.LearnerID, req.TopicID)
	if err != nil {
		return nil, err
	}
	return e.emit(ctx, ActionSummary, false, nil, e.summaryMessage(req, m))
}

// emit stores msgs, and runs also in the same transaction when set.
func (e *Engine) emit(ctx context.Context, action Action, degraded bool, also func(context.Context, store.Repos) error, msgs ...*domain.ChatMessage) (*TurnResult, error) {
	err := store.RetryBusy(ctx, writeAttempts, func() error {
		return e.store.WithinTx(ctx, func(ctx context.Context, r store.Repos) error {
			if err := r.Messages().Append(ctx, msgs...); err != nil {
				return err
			}
			if also != nil {
				return also(ctx, r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store tutor messages: %w", err)
	}
	return &TurnResult{Action: action, Messages: derefMessages(msgs), Degraded: degraded}, nil
}

func (e *Engine) tutorMessage(req TurnRequest, typ domain.MessageType, text string) *domain.ChatMessage {
	return &domain.ChatMessage{
		LearnerID: req.LearnerID,
		TopicID:   req.TopicID,
		Sender:    domain.SenderTutor,
		Text:      text,
		Type:      typ,
		CreatedAt: e.now().UTC(),
	}
}

func (e *Engine) correctionMessage(req TurnRequest, j Judgment) *domain.ChatMessage {
	m := e.tutorMessage(req, domain.MessageCorrection, j.CorrectionText)
	score := j.ScorePercent
	m.Payload = &domain.Payload{Score: &score, Diff: j.DiffMarkup, Emoji: j.Emoji}
	return m
}

func (e *Engine) movementMessage(req TurnRequest, lead string, n int) *domain.ChatMessage {
	m := e.tutorMessage(req, domain.MessageMovementPrompt, lead+MovementPrompt(n))
	m.Payload = &domain.Payload{Options: movementOptions}
	return m
}

func (e *Engine) summaryMessage(req TurnRequest, m domain.SessionMetrics) *domain.ChatMessage {
	msg := e.tutorMessage(req, domain.MessageSummary, metrics.FormatReport(req.TopicTitle, m))
	score := m.OverallScorePercent
	msg.Payload = &domain.Payload{Score: &score, Emoji: emojiFor(score), Metrics: &m}
	return msg
}

func findGoal(goals []domain.Goal, id string) *domain.Goal {
	if id == "" {
		return nil
	}
	for i := range goals {
		if goals[i].ID == id {
			return &goals[i]
		}
	}
	return nil
}

// answeredCount is the number of graded answers across the rows.
func answeredCount(rows []domain.GoalProgress) int {
	n := 0
	for _, p := range rows {
		n += p.QuestionsAsked
	}
	return n
}

func progressRows(idx domain.ProgressIndex) []domain.GoalProgress {
	rows := make([]domain.GoalProgress, 0, len(idx))
	for _, p := range idx {
		rows = append(rows, p)
	}
	return rows
}

func derefMessages(msgs []*domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = *m
	}
	return out
}
