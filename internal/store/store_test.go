package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/microtutor/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedTopic stores a learner, subject and one topic with n goals.
func seedTopic(t *testing.T, s *Store, n int) (*domain.Topic, []domain.Goal) {
	t.Helper()
	ctx := context.Background()

	learner := &domain.Learner{ID: "learner-1", Name: "Asha", Grade: "5", Board: "CBSE"}
	if err := s.Learners().Upsert(ctx, learner); err != nil {
		t.Fatalf("upsert learner: %v", err)
	}
	subject := &domain.Subject{ID: "subject-1", LearnerID: learner.ID, Name: "Fractions",
		Status: domain.SubjectReady, CreatedAt: time.Now()}
	if err := s.Subjects().Create(ctx, subject); err != nil {
		t.Fatalf("create subject: %v", err)
	}

	topic := domain.OutlineTopic{Title: "Adding fractions", Content: "Like denominators."}
	for i := range n {
		topic.Goals = append(topic.Goals, domain.OutlineGoal{Title: fmt.Sprintf("Goal %d", i+1)})
	}
	outline := &domain.Outline{Chapters: []domain.OutlineChapter{{Title: "Basics", Topics: []domain.OutlineTopic{topic}}}}
	if err := s.Curriculum().SaveOutline(ctx, subject, outline); err != nil {
		t.Fatalf("save outline: %v", err)
	}

	chapters, err := s.Curriculum().ListChapters(ctx, subject.ID)
	if err != nil || len(chapters) != 1 {
		t.Fatalf("list chapters: %v (%d)", err, len(chapters))
	}
	topics, err := s.Curriculum().ListTopics(ctx, chapters[0].ID)
	if err != nil || len(topics) != 1 {
		t.Fatalf("list topics: %v (%d)", err, len(topics))
	}
	goals, err := s.Curriculum().ListGoals(ctx, topics[0].ID)
	if err != nil {
		t.Fatalf("list goals: %v", err)
	}
	return &topics[0], goals
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		// WAL mode falls back to "memory" for in-memory databases,
		// so we skip journal_mode here.
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
		{"busy_timeout", "5000"},
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestSequenceCounter_Monotonic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var prev int64
	for i := range 5 {
		got, err := s.seq.Next(ctx, s.db)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got <= prev {
			t.Fatalf("call %d: sequence %d not greater than %d", i, got, prev)
		}
		prev = got
	}
}

func TestSaveOutline_OrdersByPosition(t *testing.T) {
	s := openTestStore(t)
	_, goals := seedTopic(t, s, 3)

	if len(goals) != 3 {
		t.Fatalf("got %d goals, want 3", len(goals))
	}
	for i, g := range goals {
		if g.Seq != i+1 {
			t.Errorf("goal %d seq = %d, want %d", i, g.Seq, i+1)
		}
		if g.Title != fmt.Sprintf("Goal %d", i+1) {
			t.Errorf("goal %d title = %q", i, g.Title)
		}
	}
}

func TestProgress_RecordAnswerInvariants(t *testing.T) {
	s := openTestStore(t)
	topic, goals := seedTopic(t, s, 1)
	ctx := context.Background()
	repo := s.Progress()

	answers := []bool{true, false, false}
	for i, correct := range answers {
		gp, err := repo.RecordAnswer(ctx, "learner-1", goals[0].ID, correct, time.Now())
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if gp.QuestionsAsked != i+1 {
			t.Errorf("after %d answers questionsAsked = %d", i+1, gp.QuestionsAsked)
		}
		if gp.QuestionsAsked != gp.CorrectCount+gp.IncorrectCount {
			t.Errorf("counter conservation broken: %+v", gp)
		}
		if gp.IsCompleted != (gp.QuestionsAsked >= domain.RequiredQuestionsPerGoal) {
			t.Errorf("completion flag wrong at %d asked: %v", gp.QuestionsAsked, gp.IsCompleted)
		}
		if gp.TopicID != topic.ID {
			t.Errorf("topic id = %q, want %q", gp.TopicID, topic.ID)
		}
	}

	gp, err := repo.Get(ctx, "learner-1", goals[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if gp.CorrectCount != 1 || gp.IncorrectCount != 2 {
		t.Errorf("counts = %d/%d, want 1/2", gp.CorrectCount, gp.IncorrectCount)
	}
}

func TestProgress_RecordAnswerUnknownGoal(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Progress().RecordAnswer(context.Background(), "learner-1", "missing", true, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProgress_ConcurrentIncrementsNotLost(t *testing.T) {
	s := openTestStore(t)
	_, goals := seedTopic(t, s, 1)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Progress().RecordAnswer(ctx, "learner-1", goals[0].ID, i%2 == 0, time.Now())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	gp, err := s.Progress().Get(ctx, "learner-1", goals[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if gp.QuestionsAsked != n || gp.CorrectCount+gp.IncorrectCount != n {
		t.Fatalf("lost increments: %+v", gp)
	}
}

func TestProgress_NoteQuestionKeepsCounters(t *testing.T) {
	s := openTestStore(t)
	topic, goals := seedTopic(t, s, 2)
	ctx := context.Background()

	if err := s.Progress().NoteQuestion(ctx, "learner-1", goals[1].ID, "What is 1/2 + 1/2?", time.Now()); err != nil {
		t.Fatalf("note question: %v", err)
	}
	rows, err := s.Progress().ListForTopic(ctx, "learner-1", topic.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].QuestionsAsked != 0 || rows[0].IsCompleted {
		t.Errorf("noting a question changed counters: %+v", rows[0])
	}
	if rows[0].LastQuestion != "What is 1/2 + 1/2?" {
		t.Errorf("last question = %q", rows[0].LastQuestion)
	}
}

func TestTurns_AppendAndExplainCount(t *testing.T) {
	s := openTestStore(t)
	topic, goals := seedTopic(t, s, 1)
	ctx := context.Background()

	rec := &domain.TurnRecord{
		LearnerID: "learner-1", TopicID: topic.ID, GoalID: goals[0].ID,
		Question: "What is 1/4 + 1/4?", Answer: "2/8",
		CorrectedAnswer: "1/2", CorrectionText: "Add numerators only.",
		Feedback: domain.Feedback{IsCorrect: false, ScorePercent: 40, ErrorType: "Conceptual"},
		AskedAt:  time.Now(), AnsweredAt: time.Now(),
	}
	if err := s.Turns().Append(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	if rec.ID == "" || rec.Sequence == 0 {
		t.Fatalf("append did not assign id/sequence: %+v", rec)
	}

	if err := s.Turns().IncrementExplainCount(ctx, rec.ID); err != nil {
		t.Fatalf("increment: %v", err)
	}
	latest, err := s.Turns().Latest(ctx, "learner-1", topic.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ExplainRequests != 1 {
		t.Errorf("explain requests = %d, want 1", latest.ExplainRequests)
	}
	if latest.Feedback != rec.Feedback {
		t.Errorf("feedback = %+v, want %+v", latest.Feedback, rec.Feedback)
	}

	if err := s.Turns().IncrementExplainCount(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMessages_TailIsChronological(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	score := 90
	for i := range 5 {
		m := &domain.ChatMessage{
			LearnerID: "learner-1", TopicID: "topic-1",
			Sender: domain.SenderTutor, Type: domain.MessagePlain,
			Text: fmt.Sprintf("message %d", i),
		}
		if i == 4 {
			m.Type = domain.MessageCorrection
			m.Payload = &domain.Payload{Score: &score, Diff: "~~a~~ **b**"}
		}
		if err := s.Messages().Append(ctx, m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	tail, err := s.Messages().Tail(ctx, "learner-1", "topic-1", 3)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(tail) != 3 {
		t.Fatalf("tail len = %d, want 3", len(tail))
	}
	for i, want := range []string{"message 2", "message 3", "message 4"} {
		if tail[i].Text != want {
			t.Errorf("tail[%d] = %q, want %q", i, tail[i].Text, want)
		}
	}
	if tail[2].Payload == nil || tail[2].Payload.Score == nil || *tail[2].Payload.Score != 90 {
		t.Errorf("payload not preserved: %+v", tail[2].Payload)
	}
	if tail[0].Payload != nil {
		t.Errorf("empty payload should load as nil, got %+v", tail[0].Payload)
	}
}

func TestMessages_QuestionMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msgs := []*domain.ChatMessage{
		{LearnerID: "l", TopicID: "t", Sender: domain.SenderTutor, Type: domain.MessagePlain, Text: "Welcome!"},
		{LearnerID: "l", TopicID: "t", Sender: domain.SenderTutor, Type: domain.MessagePlain, Text: "What is 2+2?", GoalID: "g1"},
		{LearnerID: "l", TopicID: "t", Sender: domain.SenderLearner, Type: domain.MessagePlain, Text: "4", GoalID: "g1"},
		{LearnerID: "l", TopicID: "t", Sender: domain.SenderTutor, Type: domain.MessageMovementPrompt, Text: "Next?"},
	}
	if err := s.Messages().Append(ctx, msgs...); err != nil {
		t.Fatalf("append: %v", err)
	}

	qs, err := s.Messages().QuestionMessages(ctx, "l", "t")
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(qs) != 1 || qs[0].Text != "What is 2+2?" {
		t.Fatalf("unexpected questions: %+v", qs)
	}
}

func TestSubjects_ClaimPending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Learners().Upsert(ctx, &domain.Learner{ID: "l"}); err != nil {
		t.Fatalf("upsert learner: %v", err)
	}
	if _, err := s.Subjects().ClaimPending(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty queue, got %v", err)
	}

	base := time.Now()
	for i, name := range []string{"Fractions", "Decimals"} {
		err := s.Subjects().Create(ctx, &domain.Subject{
			ID: name, LearnerID: "l", Name: name, Status: domain.SubjectPending,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := s.Subjects().ClaimPending(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got.Name != "Fractions" || got.Status != domain.SubjectGenerating {
		t.Fatalf("claimed %+v, want oldest subject in generating state", got)
	}
}

func TestSubjects_RequeueGenerating(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Learners().Upsert(ctx, &domain.Learner{ID: "l"}); err != nil {
		t.Fatalf("upsert learner: %v", err)
	}
	for _, subj := range []domain.Subject{
		{ID: "a", LearnerID: "l", Name: "Fractions", Status: domain.SubjectGenerating},
		{ID: "b", LearnerID: "l", Name: "Decimals", Status: domain.SubjectReady},
	} {
		if err := s.Subjects().Create(ctx, &subj); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	n, err := s.Subjects().RequeueGenerating(ctx)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if n != 1 {
		t.Fatalf("requeued %d subjects, want 1", n)
	}
	a, _ := s.Subjects().Get(ctx, "a")
	b, _ := s.Subjects().Get(ctx, "b")
	if a.Status != domain.SubjectPending || b.Status != domain.SubjectReady {
		t.Fatalf("statuses after requeue: a=%s b=%s", a.Status, b.Status)
	}
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	_, goals := seedTopic(t, s, 1)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, r Repos) error {
		if _, err := r.Progress().RecordAnswer(ctx, "learner-1", goals[0].ID, true, time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := s.Progress().Get(ctx, "learner-1", goals[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("progress survived rollback: %v", err)
	}
}

func TestLLMEvents_AppendAndUsage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo := s.EventRepo()

	for _, purpose := range []string{"tutor-evaluate", "tutor-evaluate", "tutor-ask"} {
		err := repo.AppendLLMRequest(ctx, LLMRequestEventData{
			Provider: "mock", Model: "mock", Purpose: purpose,
			InputTokens: 10, OutputTokens: 5, LatencyMs: 100, Success: true,
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := repo.QueryLLMEvents(ctx, QueryOpts{Purpose: "tutor-evaluate"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	usage, err := repo.LLMUsageByPurpose(ctx)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if len(usage) != 2 || usage[1].Purpose != "tutor-evaluate" || usage[1].Calls != 2 || usage[1].InputTokens != 20 {
		t.Fatalf("unexpected usage: %+v", usage)
	}

	missing, err := repo.GetLLMEvent(ctx, 999)
	if err != nil || missing != nil {
		t.Fatalf("expected nil event, got %+v, %v", missing, err)
	}
}

func TestIsBusy(t *testing.T) {
	if IsBusy(nil) {
		t.Error("nil is not busy")
	}
	if !IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Error("expected busy for locked message")
	}
	if IsBusy(errors.New("constraint failed")) {
		t.Error("constraint failure is not busy")
	}
}

func TestRetryBusy_StopsOnSuccess(t *testing.T) {
	calls := 0
	err := RetryBusy(context.Background(), 3, func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}
