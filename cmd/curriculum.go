package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abhisek/microtutor/internal/domain"
	"github.com/abhisek/microtutor/internal/logging"
	"github.com/abhisek/microtutor/internal/store"
	"github.com/abhisek/microtutor/internal/ui/theme"
)

var curriculumCmd = &cobra.Command{
	Use:   "curriculum",
	Short: "List a learner's subjects, topics and goals",
	RunE: func(cmd *cobra.Command, args []string) error {
		learnerID, _ := cmd.Flags().GetString("learner")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := openStore(cmd, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := context.Background()
		subjects, err := s.Subjects().ListByLearner(ctx, learnerID)
		if err != nil {
			return fmt.Errorf("list subjects: %w", err)
		}
		if len(subjects) == 0 {
			fmt.Println("No subjects yet. Create one with: microtutor generate --learner", learnerID, "--subject <name>")
			return nil
		}
		for _, subj := range subjects {
			if err := printSubject(ctx, s, subj); err != nil {
				return err
			}
		}
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a subject's curriculum now instead of through the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		learnerID, _ := cmd.Flags().GetString("learner")
		subjectName, _ := cmd.Flags().GetString("subject")
		ctx := cmd.Context()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := logging.NewCLI()
		s, err := openStore(cmd, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		learner, err := upsertLearnerFromFlags(cmd, s, learnerID)
		if err != nil {
			return err
		}

		svc, err := buildServices(ctx, cfg, s, logger)
		if err != nil {
			return err
		}
		defer svc.Close()

		subject := &domain.Subject{
			ID:        uuid.NewString(),
			LearnerID: learner.ID,
			Name:      subjectName,
			Status:    domain.SubjectGenerating,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.Subjects().Create(ctx, subject); err != nil {
			return err
		}

		fmt.Printf("Generating %q for grade %s (%s)...\n", subjectName, learner.Grade, learner.Board)
		outline, err := svc.generator.Generate(ctx, *learner, *subject)
		if err != nil {
			_ = s.Subjects().SetStatus(context.WithoutCancel(ctx), subject.ID, domain.SubjectFailed, err.Error())
			return fmt.Errorf("generate curriculum: %w", err)
		}
		err = s.WithinTx(ctx, func(ctx context.Context, r store.Repos) error {
			if err := r.Curriculum().SaveOutline(ctx, subject, outline); err != nil {
				return err
			}
			return r.Subjects().SetStatus(ctx, subject.ID, domain.SubjectReady, "")
		})
		if err != nil {
			return fmt.Errorf("save curriculum: %w", err)
		}
		subject.Status = domain.SubjectReady
		return printSubject(ctx, s, *subject)
	},
}

func init() {
	curriculumCmd.Flags().String("learner", "", "Learner ID (required)")
	_ = curriculumCmd.MarkFlagRequired("learner")

	generateCmd.Flags().String("learner", "", "Learner ID (required)")
	generateCmd.Flags().String("subject", "", "Subject name, e.g. Fractions (required)")
	generateCmd.Flags().String("name", "", "Learner name (updates the profile)")
	generateCmd.Flags().String("grade", "", "Learner grade (updates the profile)")
	generateCmd.Flags().String("board", "", "Education board, e.g. CBSE (updates the profile)")
	_ = generateCmd.MarkFlagRequired("learner")
	_ = generateCmd.MarkFlagRequired("subject")
}

// upsertLearnerFromFlags applies --name/--grade/--board to the stored
// profile and returns it.
func upsertLearnerFromFlags(cmd *cobra.Command, s *store.Store, learnerID string) (*domain.Learner, error) {
	ctx := cmd.Context()
	learner, err := s.Learners().Get(ctx, learnerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if learner == nil {
		learner = &domain.Learner{ID: learnerID}
	}
	changed := false
	for flag, field := range map[string]*string{"name": &learner.Name, "grade": &learner.Grade, "board": &learner.Board} {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			*field = v
			changed = true
		}
	}
	if changed {
		if err := s.Learners().Upsert(ctx, learner); err != nil {
			return nil, err
		}
	}
	return learner, nil
}

func printSubject(ctx context.Context, s *store.Store, subj domain.Subject) error {
	status := string(subj.Status)
	if subj.Error != "" {
		status += ": " + subj.Error
	}
	fmt.Println(theme.Title.Render(subj.Name) + "  " + theme.Hint.Render(status))

	chapters, err := s.Curriculum().ListChapters(ctx, subj.ID)
	if err != nil {
		return err
	}
	for _, ch := range chapters {
		fmt.Printf("  %d. %s\n", ch.Seq, ch.Title)
		topics, err := s.Curriculum().ListTopics(ctx, ch.ID)
		if err != nil {
			return err
		}
		for _, t := range topics {
			mark := " "
			if t.CompletedAt != nil {
				mark = theme.Correct.Render("✓")
			}
			fmt.Printf("     %s %s  %s\n", mark, t.Title, theme.Hint.Render(t.ID))
			goals, err := s.Curriculum().ListGoals(ctx, t.ID)
			if err != nil {
				return err
			}
			for _, g := range goals {
				fmt.Println("         - " + g.Title)
			}
		}
	}
	fmt.Println(strings.Repeat("─", 60))
	return nil
}
