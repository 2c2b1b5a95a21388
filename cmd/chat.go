package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/microtutor/internal/domain"
	"github.com/abhisek/microtutor/internal/logging"
	"github.com/abhisek/microtutor/internal/ui/theme"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the tutor about one topic in the terminal",
	Long: `Start or resume a tutoring conversation.

Commands: /progress shows goal progress, /report shows the session report,
/quit exits. Reply with a number to pick a suggested option.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().String("learner", "", "Learner ID (required)")
	chatCmd.Flags().String("topic", "", "Topic ID (required)")
	_ = chatCmd.MarkFlagRequired("learner")
	_ = chatCmd.MarkFlagRequired("topic")
}

func runChat(cmd *cobra.Command, args []string) error {
	learnerID, _ := cmd.Flags().GetString("learner")
	topicID, _ := cmd.Flags().GetString("topic")
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.NewCLI()

	st, err := openStore(cmd, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	svc, err := buildServices(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	topic, err := st.Curriculum().GetTopic(ctx, topicID)
	if err != nil {
		return fmt.Errorf("load topic %s: %w", topicID, err)
	}
	fmt.Println(theme.Title.Render(topic.Title))
	if topic.Content != "" {
		fmt.Println(theme.Subtitle.Render(topic.Content))
	}
	fmt.Println(theme.Hint.Render("/progress  /report  /quit"))
	fmt.Println()

	var last *domain.ChatMessage
	send := func(text string) error {
		res, err := svc.engine.Respond(ctx, learnerID, topicID, text)
		if err != nil {
			return err
		}
		for i := range res.Messages {
			fmt.Println(renderMessage(res.Messages[i], topic.Title))
		}
		if n := len(res.Messages); n > 0 {
			last = &res.Messages[n-1]
		}
		fmt.Println()
		return nil
	}

	if err := send(""); err != nil {
		return err
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(theme.LearnerLabel.Render("> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/progress":
			goals, idx, err := svc.tracker.Snapshot(ctx, learnerID, topicID)
			if err != nil {
				return err
			}
			fmt.Println(renderGoals(goals, idx))
			continue
		case "/report":
			m, err := svc.aggregator.Compute(ctx, learnerID, topicID)
			if err != nil {
				return err
			}
			fmt.Println(renderReport(topic.Title, m))
			fmt.Println()
			continue
		}

		if err := send(resolveOption(input, last)); err != nil {
			return err
		}
	}
}
