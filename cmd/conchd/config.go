package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/conch/server"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the server configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = server.DefaultConfigPath()
	}
	return path
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := server.WriteDefaultConfig(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("socket:          %s\n", cfg.SocketPath)
	fmt.Printf("http-addr:       %s\n", orNone(cfg.HTTPAddr))
	fmt.Printf("max-clients:     %d\n", cfg.MaxClients)
	fmt.Printf("read-timeout:    %s\n", cfg.ReadTimeout)
	fmt.Printf("write-timeout:   %s\n", cfg.WriteTimeout)
	fmt.Printf("ring-size:       %d\n", cfg.RingSize)
	fmt.Printf("demo database:   %s\n", orNone(cfg.Demo.Database))
	fmt.Printf("demo sensors:    %t\n", cfg.Demo.Sensors)
	fmt.Printf("sensor interval: %s\n", cfg.Demo.SensorInterval)
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(disabled)"
	}
	return s
}
