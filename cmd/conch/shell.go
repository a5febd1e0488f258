package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/standardbeagle/conch/format"
	"github.com/standardbeagle/conch/server"
	"github.com/standardbeagle/conch/shell"
	"github.com/standardbeagle/conch/transport"
)

// loadOptions resolves the shell configuration: profile values first,
// then flags on top, then state-file defaults for anything still unset.
func loadOptions(cmd *cobra.Command, logger *logrus.Logger) (shell.Options, *shell.Profile, error) {
	profilePath, _ := cmd.Flags().GetString("profile")
	profile, err := shell.LoadProfile(profilePath)
	if err != nil {
		return shell.Options{}, nil, err
	}

	opts := profile.Options()
	opts.Logger = logger

	if prompt, _ := cmd.Flags().GetString("prompt"); prompt != "" {
		opts.Prompt = prompt
	}
	if opts.HistoryFile == "" {
		opts.HistoryFile = shell.DefaultStatePath("history")
	}
	if opts.SessionFile == "" {
		opts.SessionFile = shell.DefaultStatePath("session.json")
	}
	return opts, profile, nil
}

// newTransport picks a transport from the server URL scheme: ws:// and
// wss:// speak WebSocket, http:// and https:// speak the request
// endpoint, anything else is a unix socket path.
func newTransport(url string, logger *logrus.Logger) transport.Transport {
	switch {
	case strings.HasPrefix(url, "ws://"), strings.HasPrefix(url, "wss://"):
		return transport.NewWS(url)
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return transport.NewHTTP(url)
	default:
		return transport.NewUnix(strings.TrimPrefix(url, "unix://"),
			transport.WithUnixLogger(logger))
	}
}

// serverURL resolves the connection target: flag, then profile, then
// the default unix socket.
func serverURL(cmd *cobra.Command, profile *shell.Profile) string {
	if url, _ := cmd.Flags().GetString("server"); url != "" {
		return url
	}
	if profile != nil && profile.ServerURL != "" {
		return profile.ServerURL
	}
	return server.DefaultSocketPath()
}

func runShell(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	opts, profile, err := loadOptions(cmd, logger)
	if err != nil {
		return err
	}

	tr := newTransport(serverURL(cmd, profile), logger)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	if err := tr.Connect(ctx); err != nil {
		// The shell still runs; builtins work and sends report
		// "Not connected".
		logger.WithError(err).Warn("could not connect")
		fmt.Fprintf(os.Stderr, "Warning: could not connect to %s: %v\n", tr.Endpoint(), err)
	}

	streaming, _ := cmd.Flags().GetBool("stream")
	st, canStream := tr.(transport.StreamingTransport)
	if streaming && !canStream {
		return fmt.Errorf("transport %s does not support streaming", tr.Endpoint())
	}

	var sh *shell.Shell
	var run func(context.Context) error
	if streaming {
		ss := shell.NewStreaming(st, opts)
		sh, run = ss.Shell, ss.Run
	} else {
		sh = shell.New(tr, opts)
		run = sh.Run
	}
	applyFormat(cmd, profile, sh)

	if stdinIsTerminal() {
		fmt.Printf("%s v%s\nConnected to %s\nType 'help' for help, 'exit' to quit.\n\n",
			appName, appVersion, tr.Endpoint())
	}

	if err := run(ctx); err != nil {
		return err
	}
	if code := sh.ExitCode(); code != 0 && !stdinIsTerminal() {
		os.Exit(code)
	}
	return nil
}

// applyFormat sets the session's default format from the flag or
// profile when valid.
func applyFormat(cmd *cobra.Command, profile *shell.Profile, sh *shell.Shell) {
	name, _ := cmd.Flags().GetString("format")
	if name == "" && profile != nil {
		name = profile.DefaultFormat
	}
	if format.Valid(name) {
		sh.Session().Set("default_format", name)
	}
}
