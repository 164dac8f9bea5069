package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "blip",
		Short: "BLIP protocol engine tools",
		Long: `blip runs and exercises BLIP endpoints.

BLIP multiplexes request/response messages over a single WebSocket
connection, with property headers, streamed bodies, optional per-message
compression, and ACK-driven flow control.

  • serve  — run a BLIP WebSocket server with an Echo profile
  • send   — send one request to a BLIP endpoint and print the response`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		sendCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
