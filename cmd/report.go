package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/microtutor/internal/metrics"
	"github.com/abhisek/microtutor/internal/progress"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the session report for a learner's topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		learnerID, _ := cmd.Flags().GetString("learner")
		topicID, _ := cmd.Flags().GetString("topic")

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
		topic, err := s.Curriculum().GetTopic(ctx, topicID)
		if err != nil {
			return fmt.Errorf("load topic %s: %w", topicID, err)
		}

		m, err := metrics.NewAggregator(s.Repos, metricsConfig(cfg)).Compute(ctx, learnerID, topicID)
		if err != nil {
			return fmt.Errorf("compute metrics: %w", err)
		}
		goals, idx, err := progress.NewTracker(s, nil).Snapshot(ctx, learnerID, topicID)
		if err != nil {
			return fmt.Errorf("load progress: %w", err)
		}

		fmt.Println(renderReport(topic.Title, m))
		fmt.Println()
		fmt.Print(renderGoals(goals, idx))
		return nil
	},
}

func init() {
	reportCmd.Flags().String("learner", "", "Learner ID (required)")
	reportCmd.Flags().String("topic", "", "Topic ID (required)")
	_ = reportCmd.MarkFlagRequired("learner")
	_ = reportCmd.MarkFlagRequired("topic")
}
