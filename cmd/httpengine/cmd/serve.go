package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/httpengine/internal/echoserver"
)

type serveOptions struct {
	addr            string
	unixSocket      string
	h2c             bool
	tlsCert         string
	tlsKey          string
	shutdownTimeout time.Duration
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var o serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a diagnostic HTTP peer",
		Long: `Run an HTTP server with routes for exercising the engine:

  /echo              mirrors request headers (as X-Echo-*) and body
  /bytes/{n}         streams n bytes
  /trailers          body followed by an X-Checksum trailer
  /status/{code}     answers with the given status
  /drip              ?chunks=N&delay=D streams N chunks D apart
  /reset             aborts the response after a few bytes

The server stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := root.logger(cmd.ErrOrStderr(), slog.LevelInfo)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := []echoserver.Option{
				echoserver.WithHost(o.addr),
				echoserver.WithLogger(log),
				echoserver.WithShutdownTimeout(o.shutdownTimeout),
			}
			if o.unixSocket != "" {
				opts = append(opts, echoserver.WithUnixSocket(o.unixSocket))
			}
			if o.h2c {
				opts = append(opts, echoserver.WithH2C())
			}
			if o.tlsCert != "" {
				opts = append(opts, echoserver.WithTLS(o.tlsCert, o.tlsKey))
			}

			return echoserver.New(echoserver.NewHandler(log), opts...).Serve(ctx)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", "127.0.0.1:8080", "TCP address to listen on")
	f.StringVar(&o.unixSocket, "unix-socket", "", "listen on this unix socket instead of TCP")
	f.BoolVar(&o.h2c, "h2c", false, "accept cleartext HTTP/2 with prior knowledge")
	f.StringVar(&o.tlsCert, "tls-cert", "", "PEM certificate file; enables TLS")
	f.StringVar(&o.tlsKey, "tls-key", "", "PEM key file for --tls-cert")
	f.DurationVar(&o.shutdownTimeout, "shutdown-timeout", 20*time.Second, "how long to drain in-flight requests")
	cmd.MarkFlagsRequiredTogether("tls-cert", "tls-key")

	return cmd
}
