package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "callscreen",
		Short: "Incoming call triage and screening",
		Long:  "callscreen classifies incoming callers, screens unknown numbers and records what they say.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Include sub-second precision in all log timestamps
			log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
		},
		SilenceUsage: true,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newPromptsCmd())
	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newContactsCmd())
	cmd.AddCommand(newArtifactsCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "callscreen %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
