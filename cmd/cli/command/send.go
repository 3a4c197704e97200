package command

import (
	"fmt"
	"time"

	"dockhub/cmd/cli/command/client"
	relay "dockhub/internal/microservices/websocket"

	"github.com/spf13/cobra"
)

// sendCmd sends one envelope and waits to see it relayed back
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one event to the relay",
	Long: `Send one event envelope to the relay and wait until the relay echoes it back.
Unknown event types are still relayed; dockctl only warns about them.

Example:
  dockctl send --type shipment_hold --message LOAD123`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eventType, _ := cmd.Flags().GetString("type")
		message, _ := cmd.Flags().GetString("message")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		if eventType == "" {
			return fmt.Errorf("--type is required")
		}
		out := cmd.OutOrStdout()
		env := relay.Envelope{Type: eventType, Data: relay.EnvelopeData{Message: message}}
		if env.Kind() == relay.EventUnrecognized {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %q is not a known event type\n", eventType)
		}

		c, err := client.Dial(cmd.Context(), relayURL, token)
		if err != nil {
			return err
		}
		defer c.Close()

		payload, err := c.Send(env)
		if err != nil {
			return err
		}
		if err := c.WaitForEcho(payload, timeout, nil); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ relayed %s\n", payload)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("type", "", "event type, e.g. shipment_hold (required)")
	sendCmd.Flags().StringP("message", "m", "", "event message")
	sendCmd.Flags().Duration("timeout", 5*time.Second, "how long to wait for the echo")
	sendCmd.MarkFlagRequired("type")
}
