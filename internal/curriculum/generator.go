// Package curriculum generates a subject's chapters, topics and goals for a
// learner through the LLM.
package curriculum

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/microtutor/internal/domain"
	"github.com/abhisek/microtutor/internal/llm"
)

// ErrIncompleteProfile is returned when the learner has no grade or board.
var ErrIncompleteProfile = errors.New("learner profile incomplete: grade and board are required")

const (
	minGoals = 3
	maxGoals = 5
)

// Config holds generation settings.
type Config struct {
	// CallDelay separates successive LLM calls.
	CallDelay time.Duration

	// MaxRetries is how many times a failed call is repeated.
	MaxRetries int

	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CallDelay:   time.Second,
		MaxRetries:  1,
		MaxTokens:   2048,
		Temperature: 0.3,
	}
}

// Generator builds outlines one LLM call at a time.
type Generator struct {
	provider llm.Provider
	cfg      Config
	logger   *zap.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(provider llm.Provider, cfg Config, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Generator{provider: provider, cfg: cfg, logger: logger}
}

type chaptersOutput struct {
	Chapters []struct {
		Title string `json:"title"`
	} `json:"chapters"`
}

type topicsOutput struct {
	Topics []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"topics"`
}

type goalsOutput struct {
	Goals []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"goals"`
}

// Generate produces the full outline for subject: chapters first, then the
// topics of each chapter, then the goals of each topic.
func (g *Generator) Generate(ctx context.Context, learner domain.Learner, subject domain.Subject) (*domain.Outline, error) {
	if !learner.ProfileComplete() {
		return nil, ErrIncompleteProfile
	}

	p := &pacer{delay: g.cfg.CallDelay}
	profile := fmt.Sprintf("Grade: %s\nBoard: %s\nSubject: %s", learner.Grade, learner.Board, subject.Name)

	var chapters chaptersOutput
	err := g.call(ctx, p, "curriculum-chapters", ChaptersSchema, chaptersPrompt, profile, &chapters, func() error {
		if len(chapters.Chapters) == 0 {
			return errors.New("no chapters")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate chapters: %w", err)
	}

	outline := &domain.Outline{}
	for _, ch := range chapters.Chapters {
		chapter := domain.OutlineChapter{Title: strings.TrimSpace(ch.Title)}

		var topics topicsOutput
		user := profile + "\nChapter: " + chapter.Title
		err := g.call(ctx, p, "curriculum-topics", TopicsSchema, topicsPrompt, user, &topics, func() error {
			if len(topics.Topics) == 0 {
				return errors.New("no topics")
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("generate topics for %q: %w", chapter.Title, err)
		}

		for _, tp := range topics.Topics {
			topic := domain.OutlineTopic{Title: strings.TrimSpace(tp.Title), Content: strings.TrimSpace(tp.Content)}

			var goals goalsOutput
			user := profile + "\nChapter: " + chapter.Title + "\nTopic: " + topic.Title + "\nTopic summary: " + topic.Content
			err := g.call(ctx, p, "curriculum-goals", GoalsSchema, goalsPrompt, user, &goals, func() error {
				if len(goals.Goals) < minGoals {
					return fmt.Errorf("got %d goals, need at least %d", len(goals.Goals), minGoals)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("generate goals for %q: %w", topic.Title, err)
			}
			for _, gl := range goals.Goals[:min(len(goals.Goals), maxGoals)] {
				topic.Goals = append(topic.Goals, domain.OutlineGoal{
					Title:       strings.TrimSpace(gl.Title),
					Description: strings.TrimSpace(gl.Description),
				})
			}
			chapter.Topics = append(chapter.Topics, topic)
		}
		outline.Chapters = append(outline.Chapters, chapter)
	}

	g.logger.Info("curriculum generated",
		zap.String("subject_id", subject.ID),
		zap.String("learner_id", learner.ID),
		zap.Int("chapters", len(outline.Chapters)),
		zap.Int("calls", p.calls),
	)
	return outline, nil
}

// call runs one generation step, retrying up to MaxRetries times when the
// provider fails or the output does not decode or validate.
func (g *Generator) call(ctx context.Context, p *pacer, purpose string, schema *llm.Schema, system, user string, out any, check func() error) error {
	ctx = llm.WithPurpose(ctx, purpose)

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if err := p.wait(ctx); err != nil {
			return err
		}
		req := llm.SingleTurn(system, user, schema)
		req.MaxTokens, req.Temperature = g.cfg.MaxTokens, g.cfg.Temperature
		resp, err := g.provider.Generate(ctx, req)
		if err == nil {
			err = resp.Decode(out)
		}
		if err == nil {
			err = check()
		}
		if err == nil {
			return nil
		}
		lastErr = err
		g.logger.Warn("curriculum call failed",
			zap.String("purpose", purpose),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return lastErr
}

// pacer spaces out calls by delay; the first call is not delayed.
type pacer struct {
	delay time.Duration
	calls int
}

func (p *pacer) wait(ctx context.Context) error {
	defer func() { p.calls++ }()
	if p.calls == 0 || p.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const chaptersPrompt = `You design school curricula. List the chapters a student should study for the subject, in teaching order, appropriate for the given grade and education board.`

const topicsPrompt = `You design school curricula. List the topics of the given chapter in teaching order, each with a short summary of what it teaches, appropriate for the given grade and education board.`

const goalsPrompt = `You design school curricula. Write three to five concrete learning goals for the given topic. Each goal must be something a tutor can check with short questions.`
