package cmd

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/adamwoolhether/httpengine/client"
	"github.com/adamwoolhether/httpengine/executor"
	"github.com/adamwoolhether/httpengine/internal/config"
	"github.com/adamwoolhether/httpengine/internal/sink"
)

type fetchOptions struct {
	method     string
	headers    []string
	data       string
	dataFile   string
	http2Only  bool
	unixSocket string
	insecure   bool
	caCerts    []string
	out        string
	sha256     string
	progress   time.Duration
	output     string
	include    bool
	timeout    time.Duration
}

// field is one header line in the yaml dump.
type field struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// fetchResult is the yaml form of a finished request.
type fetchResult struct {
	Status   int     `yaml:"status"`
	Version  string  `yaml:"version"`
	Headers  []field `yaml:"headers,omitempty"`
	Trailers []field `yaml:"trailers,omitempty"`
	Reason   string  `yaml:"reason"`
	Code     uint32  `yaml:"protocol_error_code,omitempty"`
	Error    string  `yaml:"error,omitempty"`
	Body     string  `yaml:"body,omitempty"`
	Saved    string  `yaml:"saved,omitempty"`
}

func fields(hs []client.HeaderField) []field {
	out := make([]field, len(hs))
	for i, h := range hs {
		out[i] = field{Name: h.Name, Value: h.Value}
	}
	return out
}

func newFetchCmd(root *rootOptions) *cobra.Command {
	var o fetchOptions

	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Dispatch one request and print the response",
		Long: `Dispatch one request through the engine.

The response body is streamed to stdout, or to --out. With --out the body is
written to a temporary file beside the destination and renamed into place
only when the request completes successfully and passes the length and
--sha256 checks.`,
		Example: `  httpengine fetch https://example.com
  httpengine fetch -X PUT -H 'Content-Type: text/plain' -d hello http://127.0.0.1:8080/echo
  httpengine fetch --http2-only --output yaml http://127.0.0.1:8080/trailers
  httpengine fetch --unix-socket /run/app.sock http://localhost/status/204`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, root, &o, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.method, "request", "X", "", "request method (default GET, or POST with a body)")
	f.StringArrayVarP(&o.headers, "header", "H", nil, "request header 'Name: value', repeatable")
	f.StringVarP(&o.data, "data", "d", "", "request body")
	f.StringVar(&o.dataFile, "data-file", "", "read the request body from a file")
	f.BoolVar(&o.http2Only, "http2-only", false, "use HTTP/2 only, with prior knowledge on cleartext")
	f.StringVar(&o.unixSocket, "unix-socket", "", "connect through this unix socket")
	f.BoolVarP(&o.insecure, "insecure", "k", false, "skip server certificate verification")
	f.StringArrayVar(&o.caCerts, "cacert", nil, "PEM file of additional root certificates, repeatable")
	f.StringVarP(&o.out, "out", "o", "", "write the body to this file")
	f.StringVar(&o.sha256, "sha256", "", "expected hex SHA-256 of the body (requires --out)")
	f.DurationVar(&o.progress, "progress", 0, "log download progress at this interval (requires --out)")
	f.StringVar(&o.output, "output", "text", "output format: text or yaml")
	f.BoolVarP(&o.include, "include", "i", false, "print the status line and headers before the body")
	f.DurationVar(&o.timeout, "timeout", 0, "abort the request after this long")
	cmd.MarkFlagsMutuallyExclusive("data", "data-file")

	return cmd
}

func runFetch(cmd *cobra.Command, root *rootOptions, o *fetchOptions, uri string) error {
	if o.output != "text" && o.output != "yaml" {
		return fmt.Errorf("unknown output format %q", o.output)
	}
	if o.out == "" && (o.sha256 != "" || o.progress > 0) {
		return errors.New("--sha256 and --progress require --out")
	}

	cfg, err := config.Load(root.configFile)
	if err != nil {
		return err
	}
	log := root.logger(cmd.ErrOrStderr(), cfg.Level())

	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	opts = append(opts, client.WithLogger(log))
	if o.http2Only {
		opts = append(opts, client.WithHTTP2Only())
	}
	if o.unixSocket != "" {
		opts = append(opts, client.WithUnixDomainSocket(o.unixSocket))
	}
	if o.insecure {
		opts = append(opts, client.WithSkipCertificateVerification())
	}
	for _, path := range o.caCerts {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading --cacert: %w", err)
		}
		opts = append(opts, client.WithRootCertificates(data))
	}

	var body io.Reader
	switch {
	case o.data != "":
		body = strings.NewReader(o.data)
	case o.dataFile != "":
		f, err := os.Open(o.dataFile)
		if err != nil {
			return fmt.Errorf("opening --data-file: %w", err)
		}
		defer f.Close()
		body = f
	}

	method := o.method
	if method == "" {
		method = http.MethodGet
		if body != nil {
			method = http.MethodPost
		}
	}

	var file *sink.File
	if o.out != "" {
		var sinkOpts []sink.Option
		if o.sha256 != "" {
			sinkOpts = append(sinkOpts, sink.WithChecksum(sha256.New(), o.sha256))
		}
		if o.progress > 0 {
			sinkOpts = append(sinkOpts, sink.WithProgress(o.progress))
		}
		if file, err = sink.Create(o.out, log, sinkOpts...); err != nil {
			return err
		}
		defer file.Discard()
	}

	rt := executor.New(executor.WithLogger(log))
	defer rt.Dispose()

	out := cmd.OutOrStdout()
	var (
		r        *client.Request
		bodyBuf  bytes.Buffer
		writeErr error
		reason   client.CompletionReason
		code     uint32
	)

	cb := client.Callbacks{
		OnHeaders: func(_ int32, _ any, status int, v client.Version) {
			headers := r.Headers()
			if file != nil {
				for _, h := range headers {
					if strings.EqualFold(h.Name, "Content-Length") {
						if n, err := strconv.ParseInt(h.Value, 10, 64); err == nil {
							file.SetExpectedLength(n)
						}
					}
				}
			}
			if o.include && o.output == "text" {
				fmt.Fprintf(out, "%s %d %s\n", v, status, http.StatusText(status))
				for _, h := range headers {
					fmt.Fprintf(out, "%s: %s\n", h.Name, h.Value)
				}
				fmt.Fprintln(out)
			}
		},
		OnData: func(_ int32, _ any, buf []byte) {
			if writeErr != nil {
				return
			}
			var err error
			switch {
			case file != nil:
				_, err = file.Write(buf)
			case o.output == "yaml":
				bodyBuf.Write(buf)
			default:
				_, err = out.Write(buf)
			}
			if err != nil {
				writeErr = err
				r.Abort()
			}
		},
		OnComplete: func(_ int32, _ any, rs client.CompletionReason, c uint32) {
			reason, code = rs, c
		},
	}

	c, err := client.New(rt, cb, opts...)
	if err != nil {
		return err
	}
	defer c.Dispose()
	if err := c.Build(); err != nil {
		return err
	}

	r = c.NewRequest(1)
	defer r.Destroy()

	if err := r.SetMethod(method); err != nil {
		return err
	}
	if err := r.SetURI(uri); err != nil {
		return err
	}
	for _, h := range o.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("header %q is not in 'Name: value' form", h)
		}
		if err := r.SetHeader(strings.TrimSpace(name), strings.TrimSpace(value)); err != nil {
			return err
		}
	}
	r.SetHasBody(body != nil)

	if err := r.Begin(nil); err != nil {
		return err
	}

	ctx := cmd.Context()
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		if body == nil {
			return
		}
		if err := r.SendBody(ctx, body); err != nil {
			log.Warn("sending request body", "error", err)
		}
	}()

	var timeout <-chan time.Time
	if o.timeout > 0 {
		t := time.NewTimer(o.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-r.Done():
	case <-ctx.Done():
		r.Abort()
		<-r.Done()
	case <-timeout:
		log.Info("timeout reached, aborting", "timeout", o.timeout)
		r.Abort()
		<-r.Done()
	}
	<-sent

	reqErr := r.Err()
	if writeErr != nil {
		reqErr = fmt.Errorf("writing body: %w", writeErr)
	}

	var saved string
	if file != nil && reqErr == nil {
		if err := file.Commit(); err != nil {
			reqErr = err
		} else {
			saved = o.out
		}
	}

	switch o.output {
	case "yaml":
		res := fetchResult{
			Status:   r.StatusCode(),
			Version:  r.Version().String(),
			Headers:  fields(r.Headers()),
			Trailers: fields(r.Trailers()),
			Reason:   reason.String(),
			Code:     code,
			Body:     bodyBuf.String(),
			Saved:    saved,
		}
		if reqErr != nil {
			res.Error = reqErr.Error()
		}

		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}

	default:
		if o.include && r.TrailersReceived() {
			fmt.Fprintln(out)
			for _, h := range r.Trailers() {
				fmt.Fprintf(out, "%s: %s\n", h.Name, h.Value)
			}
		}
	}

	if reqErr != nil && reason != client.Success {
		return fmt.Errorf("request %s: %w", reason, reqErr)
	}

	return reqErr
}
