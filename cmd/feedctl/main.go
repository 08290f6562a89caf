/*
feedctl is a command-line companion for the feed refresh agent.

It talks to a locally running agent over HTTP: listing feeds, queueing
refreshes (single, selected, errored-only, or all), watching tracked jobs
until they settle, and previewing candidate feed URLs.
*/
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor  bool
	agentURL string
)

var rootCmd = &cobra.Command{
	Use:           "feedctl",
	Short:         "Control the Glean feed refresh agent",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&agentURL, "agent-url", "", "agent base URL (default $FEEDCTL_AGENT_URL or http://127.0.0.1:8080)")

	rootCmd.AddCommand(feedsCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(previewCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
