package command

import (
	"fmt"
	"os"
	"os/signal"

	"dockhub/cmd/cli/command/client"

	"github.com/spf13/cobra"
)

// watchCmd streams every relayed event until Ctrl+C
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print every event relayed to connected clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		c, err := client.Dial(ctx, relayURL, token)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", relayURL)

		done := make(chan error, 1)
		go func() {
			for {
				data, err := c.Next()
				if err != nil {
					done <- err
					return
				}
				client.PrintEnvelope(out, data)
			}
		}()

		select {
		case <-ctx.Done():
			c.Close()
			return nil
		case err := <-done:
			c.Close()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("relay connection lost: %w", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
