// Command conch is the interactive shell client. With no arguments it
// opens a REPL against the configured server; `exec` runs a single
// command and exits with its status; `check` dumps a parsed filter or
// rule for debugging.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName    = "conch"
	appVersion = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Interactive command shell",
	Long: `Conch is a MySQL-style interactive shell for command servers:
  - request/response REPL with history, aliases, and output formats
  - streaming mode with client-side message filters
  - one-shot execution for scripts and pipelines`,
	Version: appVersion,
	RunE:    runShell,
}

func init() {
	rootCmd.PersistentFlags().StringP("server", "s", "", "Server URL (unix socket path, http://, or ws://)")
	rootCmd.PersistentFlags().String("profile", "", "Profile file (default: $XDG_CONFIG_HOME/conch/profile.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.Flags().StringP("format", "f", "", "Default output format (table, json, csv, vertical)")
	rootCmd.Flags().String("prompt", "", "Prompt string")
	rootCmd.Flags().Bool("stream", false, "Streaming mode: print server messages while you type")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(checkCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the diagnostic logger. User-facing shell output goes
// to stdout; diagnostics stay on stderr.
func newLogger(cmd *cobra.Command) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
