package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/domtech/lifeline/config"
	"github.com/domtech/lifeline/infra/postgres"
	"github.com/domtech/lifeline/infra/webpush"
)

var (
	pushUser    string
	pushMessage string
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Send a test push notification to a user's subscriptions",
	RunE:  runPush,
}

func init() {
	pushCmd.Flags().StringVar(&pushUser, "user", "", "user id (required)")
	pushCmd.Flags().StringVar(&pushMessage, "message", "test notification", "payload message")
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	if pushUser == "" {
		return fmt.Errorf("--user is required")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required to look up subscriptions")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	st, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer st.Close()

	sender, err := webpush.NewSender(cfg.Push)
	if err != nil {
		return err
	}
	subs, err := st.SubscriptionsForUser(ctx, pushUser)
	if err != nil {
		return fmt.Errorf("subscriptions for %s: %w", pushUser, err)
	}
	if len(subs) == 0 {
		return fmt.Errorf("no subscriptions for %s", pushUser)
	}
	payload, err := json.Marshal(map[string]string{
		"title":   "Lifeline",
		"message": pushMessage,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	for _, sub := range subs {
		if err := sender.Send(ctx, sub, payload); err != nil {
			cmd.Printf("endpoint %s: %v\n", sub.Endpoint, err)
			continue
		}
		cmd.Printf("endpoint %s: delivered\n", sub.Endpoint)
	}
	return nil
}
