// Command pastewire runs the paste-target daemon and talks to it.
//
// Usage:
//
//	pastewire serve -c pastewire.yaml          # daemon: browser, menu, HTTP, MCP
//	pastewire menu                             # show the menu of a running daemon
//	pastewire click <item-id> --text "hello"   # click a menu item
//	pastewire presets                          # list paste targets
//	pastewire add --name X --url U --selector S
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel string
	addr     string
)

var rootCmd = &cobra.Command{
	Use:           "pastewire",
	Short:         "Paste selected text into saved form fields of other pages",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "http://127.0.0.1:8791", "daemon base URL for client commands")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(menuCmd, clickCmd, rebuildCmd)
	rootCmd.AddCommand(presetsCmd, addCmd, updateCmd, deleteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pastewire:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
