// Package cmd provides the CLI commands for httpengine.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configFile string
	verbose    bool
}

// logger writes text logs to w. --verbose forces debug level.
func (o *rootOptions) logger(w io.Writer, level slog.Level) *slog.Logger {
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var o rootOptions

	root := &cobra.Command{
		Use:   "httpengine",
		Short: "httpengine - asynchronous HTTP client engine",
		Long: `httpengine drives the embeddable HTTP client engine from the command line.

Every request goes through the same path a host application uses: a runtime,
a client context built from configuration, and a request whose headers, data
and completion arrive as callbacks.

Configuration:
  Client settings are loaded from httpengine.yaml in the current directory or
  $HOME/.httpengine/, or from the file named by --config.

  Environment variables override config values with the HTTPENGINE_ prefix.
  Example: HTTPENGINE_CLIENT_CONNECT_TIMEOUT=3s

Commands:
  fetch       Dispatch one request and print the response
  serve       Run a diagnostic HTTP peer
  version     Print version information`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&o.configFile, "config", "", "config file (default: ./httpengine.yaml)")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newFetchCmd(&o), newServeCmd(&o), newVersionCmd())

	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
