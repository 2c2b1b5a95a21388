package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/abhisek/microtutor/internal/domain"
	"github.com/abhisek/microtutor/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := store.Open(fmt.Sprintf("file:scheduler_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type countingJob struct {
	runs  atomic.Int32
	block chan struct{}
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
		}
	}
	return nil
}

func TestRunGuard_SkipsOverlappingRuns(t *testing.T) {
	var g RunGuard
	release := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.TryRun(func() {
			close(started)
			<-release
		})
	}()
	<-started

	assert.True(t, g.Running())
	assert.False(t, g.TryRun(func() { t.Error("overlapping run executed") }))

	close(release)
	wg.Wait()
	assert.False(t, g.Running())
	assert.True(t, g.TryRun(func() {}))
}

func TestScheduler_RunsJobAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	job := &countingJob{}
	s := New(nil)
	require.NoError(t, s.Add("@every 1s", job))
	s.Start(context.Background())

	require.Eventually(t, func() bool { return job.runs.Load() > 0 }, 5*time.Second, 20*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	job := &countingJob{block: make(chan struct{})}
	s := New(nil)
	require.NoError(t, s.Add("@every 1s", job))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	require.Eventually(t, func() bool { return job.runs.Load() > 0 }, 5*time.Second, 20*time.Millisecond)

	done := make(chan struct{})
	go func() {
		cancel()
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return while a job was running")
	}
}

func TestScheduler_Add(t *testing.T) {
	s := New(nil)
	t.Cleanup(s.Stop)

	assert.Error(t, s.Add("not a spec", &countingJob{}))
	assert.NoError(t, s.Add("", &countingJob{}))
	assert.Empty(t, s.guards, "rejected and disabled jobs leave no guard")

	require.NoError(t, s.Add("@every 1h", &countingJob{}))
	assert.Len(t, s.guards, 1)
	assert.Len(t, s.cron.Entries(), 1)
}

type fakeGenerator struct {
	outline *domain.Outline
	err     error
	calls   int
}

func (g *fakeGenerator) Generate(ctx context.Context, learner domain.Learner, subject domain.Subject) (*domain.Outline, error) {
	g.calls++
	return g.outline, g.err
}

func seedSubject(t *testing.T, s *store.Store, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Learners().Upsert(ctx, &domain.Learner{ID: "learner-1", Name: "Asha", Grade: "5", Board: "CBSE"}))
	require.NoError(t, s.Subjects().Create(ctx, &domain.Subject{
		ID: id, LearnerID: "learner-1", Name: "Fractions", Status: domain.SubjectPending, CreatedAt: time.Now(),
	}))
}

func TestGenerationJob_SavesOutline(t *testing.T) {
	s := openStore(t)
	seedSubject(t, s, "subject-1")
	seedSubject(t, s, "subject-2")

	gen := &fakeGenerator{outline: &domain.Outline{Chapters: []domain.OutlineChapter{{
		Title: "Basics",
		Topics: []domain.OutlineTopic{{
			Title: "Halves",
			Goals: []domain.OutlineGoal{{Title: "Name halves"}, {Title: "Draw halves"}, {Title: "Add halves"}},
		}},
	}}}}
	job := NewGenerationJob(s, gen, nil)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, gen.calls)

	ctx := context.Background()
	for _, id := range []string{"subject-1", "subject-2"} {
		subject, err := s.Subjects().Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.SubjectReady, subject.Status)

		chapters, err := s.Curriculum().ListChapters(ctx, id)
		require.NoError(t, err)
		require.Len(t, chapters, 1)
		topics, err := s.Curriculum().ListTopics(ctx, chapters[0].ID)
		require.NoError(t, err)
		require.Len(t, topics, 1)
		goals, err := s.Curriculum().ListGoals(ctx, topics[0].ID)
		require.NoError(t, err)
		assert.Len(t, goals, 3)
	}
}

func TestGenerationJob_MarksFailure(t *testing.T) {
	s := openStore(t)
	seedSubject(t, s, "subject-1")

	job := NewGenerationJob(s, &fakeGenerator{err: errors.New("oracle down")}, nil)
	require.NoError(t, job.Run(context.Background()))

	subject, err := s.Subjects().Get(context.Background(), "subject-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubjectFailed, subject.Status)
	assert.Equal(t, "oracle down", subject.Error)

	chapters, err := s.Curriculum().ListChapters(context.Background(), "subject-1")
	require.NoError(t, err)
	assert.Empty(t, chapters)
}

type recordingNotifier struct {
	mu     sync.Mutex
	nudges []domain.Nudge
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, nudge domain.Nudge) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.nudges = append(n.nudges, nudge)
	return nil
}

// seedIdleLearner stores a learner last seen two days ago with one message
// in an unfinished topic.
func seedIdleLearner(t *testing.T, s *store.Store) *domain.Topic {
	t.Helper()
	ctx := context.Background()
	lastSeen := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.Learners().Upsert(ctx, &domain.Learner{
		ID: "learner-1", Name: "Asha", Grade: "5", Board: "CBSE", CreatedAt: lastSeen, LastActiveAt: lastSeen,
	}))
	subject := &domain.Subject{ID: "subject-1", LearnerID: "learner-1", Name: "Fractions",
		Status: domain.SubjectReady, CreatedAt: lastSeen}
	require.NoError(t, s.Subjects().Create(ctx, subject))
	outline := &domain.Outline{Chapters: []domain.OutlineChapter{{
		Title:  "Basics",
		Topics: []domain.OutlineTopic{{Title: "Halves", Goals: []domain.OutlineGoal{{Title: "Name halves"}}}},
	}}}
	require.NoError(t, s.Curriculum().SaveOutline(ctx, subject, outline))

	chapters, err := s.Curriculum().ListChapters(ctx, subject.ID)
	require.NoError(t, err)
	topics, err := s.Curriculum().ListTopics(ctx, chapters[0].ID)
	require.NoError(t, err)

	require.NoError(t, s.Messages().Append(ctx, &domain.ChatMessage{
		LearnerID: "learner-1", TopicID: topics[0].ID, Sender: domain.SenderTutor,
		Text: "What is half of 8?", Type: domain.MessagePlain, CreatedAt: lastSeen,
	}))
	return &topics[0]
}

func TestNudgeJob_NudgesIdleLearnerOnce(t *testing.T) {
	s := openStore(t)
	topic := seedIdleLearner(t, s)
	n := &recordingNotifier{}
	job := NewNudgeJob(s, n, 24*time.Hour, 10, nil)

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, n.nudges, 1)
	assert.Equal(t, "learner-1", n.nudges[0].LearnerID)
	assert.Equal(t, topic.ID, n.nudges[0].TopicID)
	assert.Equal(t, "Asha, ready to keep going?", n.nudges[0].Title)
	assert.Contains(t, n.nudges[0].Body, `"Halves"`)

	count, err := s.Nudges().CountForLearner(context.Background(), "learner-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, n.nudges, 1)
}

func TestNudgeJob_SkipsActiveLearner(t *testing.T) {
	s := openStore(t)
	seedIdleLearner(t, s)
	require.NoError(t, s.Learners().Touch(context.Background(), "learner-1", time.Now()))

	n := &recordingNotifier{}
	require.NoError(t, NewNudgeJob(s, n, 24*time.Hour, 10, nil).Run(context.Background()))
	assert.Empty(t, n.nudges)
}

func TestNudgeJob_FailedDeliveryIsRetried(t *testing.T) {
	s := openStore(t)
	seedIdleLearner(t, s)
	n := &recordingNotifier{err: errors.New("redis down")}
	job := NewNudgeJob(s, n, 24*time.Hour, 10, nil)

	require.NoError(t, job.Run(context.Background()))
	count, err := s.Nudges().CountForLearner(context.Background(), "learner-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	n.err = nil
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, n.nudges, 1)
}
