package command

// root.go defines the root command for dockctl and its global flags.

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	relayURL string // Global flag for relay URL
	token    string // optional JWT for gated relays
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dockctl",
	Short: "dockctl - dock event relay client",
	Long: `dockctl talks to the dock event relay. Use it to:
- Watch every event relayed to dashboards
- Send a single event by hand

Use "dockctl command -h" to see all available commands.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err) // Print error to standard error
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&relayURL, "url", envOr("DOCKHUB_RELAY_URL", "ws://localhost:9001/"), "relay websocket URL")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", os.Getenv("DOCKHUB_TOKEN"), "JWT for relays started with WS_REQUIRE_TOKEN")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
