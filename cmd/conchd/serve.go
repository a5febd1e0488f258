package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/conch/internal/demo"
	"github.com/standardbeagle/conch/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the server in the foreground",
	Long: `Run the server until interrupted. Config comes from the KDL config
file; flags override it. The demo backends give a fresh install
something to query (--demo-db) and something to stream (--demo-sensors).`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("socket", "", "Unix socket path")
	serveCmd.Flags().String("http", "", "HTTP listen address (also serves /ws)")
	serveCmd.Flags().String("demo-db", "", `SQLite database for the table browser (":memory:" for sample data)`)
	serveCmd.Flags().Bool("demo-sensors", false, "Publish synthetic sensor readings")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if socket, _ := cmd.Flags().GetString("socket"); socket != "" {
		cfg.SocketPath = socket
	}
	if addr, _ := cmd.Flags().GetString("http"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if db, _ := cmd.Flags().GetString("demo-db"); db != "" {
		cfg.Demo.Database = db
	}
	if sensors, _ := cmd.Flags().GetBool("demo-sensors"); sensors {
		cfg.Demo.Sensors = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	srv := server.New(cfg, server.WithLogger(logger))

	if cfg.Demo.Database != "" {
		browser, err := demo.OpenBrowser(cfg.Demo.Database, logger)
		if err != nil {
			return fmt.Errorf("demo database: %w", err)
		}
		defer browser.Close()
		browser.Register(srv.Registry())
		logger.WithField("database", cfg.Demo.Database).Info("table browser enabled")
	}

	if err := srv.Start(); err != nil {
		if errors.Is(err, server.ErrServerRunning) {
			return fmt.Errorf("another server is already listening on %s", cfg.SocketPath)
		}
		return err
	}

	var sensors *demo.SensorPublisher
	if cfg.Demo.Sensors {
		sensors = demo.NewSensorPublisher(cfg.Demo.SensorInterval, srv.Publish, logger)
		sensors.Start(ctx)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if sensors != nil {
		sensors.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}
