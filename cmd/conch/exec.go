package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/conch/shell"
)

var execCmd = &cobra.Command{
	Use:   "exec <command>",
	Short: "Run one command and exit",
	Long: `Run a single command against the server and exit with its status.
The command is one argument; quote it in your shell:

  conch exec "SELECT * FROM users"
  conch exec --format=json "status"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringP("format", "f", "", "Output format (table, json, csv, vertical)")
}

func runExec(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	opts, profile, err := loadOptions(cmd, logger)
	if err != nil {
		return err
	}
	// One-shot runs leave no history or session state behind.
	opts.HistoryFile = ""
	opts.SessionFile = ""
	opts.Input = strings.NewReader("")

	tr := newTransport(serverURL(cmd, profile), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := tr.Connect(ctx); err != nil {
		return fmt.Errorf("connect to %s: %w", tr.Endpoint(), err)
	}

	sh := shell.New(tr, opts)
	applyFormat(cmd, profile, sh)
	defer sh.Shutdown()

	sh.Execute(ctx, strings.Join(args, " "))
	if code := sh.ExitCode(); code != 0 {
		os.Exit(code)
	}
	return nil
}
