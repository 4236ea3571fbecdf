package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// client talks to the acspmond JSON API, initialized in PersistentPreRun.
	client *apiClient

	// outputFormat controls the output format for all commands.
	outputFormat string

	// serverAddr is the daemon address (host:port) for the API connection.
	serverAddr string
)

// rootCmd is the top-level cobra command for acspmonctl.
var rootCmd = &cobra.Command{
	Use:   "acspmonctl",
	Short: "CLI client for the acspmon daemon",
	Long:  "acspmonctl communicates with acspmond over its JSON API to inspect the fleet, forward CLI commands to APs, and adjust runtime tunables.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		client = newAPIClient("http://" + serverAddr)
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8080",
		"acspmond daemon address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json, yaml")

	rootCmd.AddCommand(apsCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(cliCmd())
	rootCmd.AddCommand(positionCmd())
	rootCmd.AddCommand(tuneCmd())
	rootCmd.AddCommand(quitCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
