package cmd

import (
	"fmt"

	webpushgo "github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"
)

var vapidCmd = &cobra.Command{
	Use:   "vapid",
	Short: "Generate a VAPID key pair for web push",
	RunE:  runVapid,
}

func init() {
	rootCmd.AddCommand(vapidCmd)
}

func runVapid(cmd *cobra.Command, args []string) error {
	private, public, err := webpushgo.GenerateVAPIDKeys()
	if err != nil {
		return fmt.Errorf("generate keys: %w", err)
	}
	cmd.Printf("vapid_public_key: %s\n", public)
	cmd.Printf("vapid_private_key: %s\n", private)
	return nil
}
