package throttle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRoundTripper_Validation(t *testing.T) {
	testCases := []struct {
		name   string
		cfg    Config
		expErr error
	}{
		{
			name:   "Invalid RPS (zero)",
			cfg:    Config{RPS: 0, Burst: 10},
			expErr: ErrMustNotBeZero,
		},
		{
			name:   "Invalid RPS (negative)",
			cfg:    Config{RPS: -5, Burst: 10},
			expErr: ErrMustNotBeZero,
		},
		{
			name:   "Invalid Burst (zero)",
			cfg:    Config{RPS: 10, Burst: 0},
			expErr: ErrMustNotBeZero,
		},
		{
			name: "Valid input",
			cfg:  Config{RPS: 10, Burst: 20},
		},
		{
			name: "Valid per host",
			cfg:  Config{RPS: 10, Burst: 20, PerHost: true},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rt, err := NewRoundTripper(tc.cfg, nil, http.DefaultTransport)

			if tc.expErr != nil {
				if !errors.Is(err, tc.expErr) {
					t.Errorf("exp err %v; got: %v", tc.expErr, err)
				}
				return
			}

			if err != nil {
				t.Errorf("exp nil err, got: %v", err)
			}
			if rt == nil {
				t.Error("exp non-nil RoundTripper")
			}
		})
	}
}

func TestThrottleRoundTripper_Behavior(t *testing.T) {
	testCases := []struct {
		name          string
		cfg           Config
		numRequests   int
		reqTimeout    time.Duration
		preCancel     bool
		expectReqErrs int
		expErr        error
		minDuration   time.Duration
		maxDuration   time.Duration
	}{
		{
			name:        "High Limits - Concurrent Load",
			cfg:         Config{RPS: 10000, Burst: 100},
			numRequests: 50,
			maxDuration: 500 * time.Millisecond,
		},
		{
			name:          "Low Limit - Exceed Burst & Timeout Waiting",
			cfg:           Config{RPS: 5, Burst: 2},
			numRequests:   5,
			reqTimeout:    50 * time.Millisecond,
			expectReqErrs: 3,
			expErr:        ErrWaitingFailed,
		},
		{
			name:        "Low Limit - Exceed Burst - Succeed Waiting",
			cfg:         Config{RPS: 10, Burst: 5},
			numRequests: 8,
			reqTimeout:  time.Second,
			minDuration: 300 * time.Millisecond,
		},
		{
			name:          "Pre-Cancelled Context Fails Early",
			cfg:           Config{RPS: 20, Burst: 10},
			numRequests:   1,
			preCancel:     true,
			expectReqErrs: 1,
			expErr:        ErrContextEnded,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var callCount atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				callCount.Add(1)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			rt, err := NewRoundTripper(tc.cfg, nil, http.DefaultTransport)
			if err != nil {
				t.Fatal(err)
			}
			client := &http.Client{Transport: rt}

			var wg sync.WaitGroup
			errs := make([]error, tc.numRequests)
			start := time.Now()

			for i := range tc.numRequests {
				wg.Add(1)
				go func(idx int) {
					defer wg.Done()

					timeout := tc.reqTimeout
					if timeout == 0 {
						timeout = 5 * time.Second
					}
					ctx, cancel := context.WithTimeout(t.Context(), timeout)
					defer cancel()
					if tc.preCancel {
						cancel()
					}

					req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
					if err != nil {
						errs[idx] = err
						return
					}

					resp, err := client.Do(req)
					if err != nil {
						errs[idx] = err
						return
					}
					resp.Body.Close()
				}(i)
			}

			wg.Wait()
			duration := time.Since(start)

			failed := 0
			for _, err := range errs {
				if err == nil {
					continue
				}
				failed++
				if tc.expErr != nil && !errors.Is(err, tc.expErr) {
					t.Errorf("exp err %v; got: %v", tc.expErr, err)
				}
			}

			if failed != tc.expectReqErrs {
				t.Errorf("expected %d failed requests; got %d", tc.expectReqErrs, failed)
			}
			if got := int(callCount.Load()); got != tc.numRequests-failed {
				t.Errorf("unexpected number of calls reached the server; exp %d, got %d", tc.numRequests-failed, got)
			}
			if tc.minDuration > 0 && duration < tc.minDuration {
				t.Errorf("execution should be slowed down by throttle (>= %v), but took %v", tc.minDuration, duration)
			}
			if tc.maxDuration > 0 && duration > tc.maxDuration {
				t.Errorf("should be fast (< %v); but took %v", tc.maxDuration, duration)
			}
		})
	}
}

func TestThrottleRoundTripper_PerHostBuckets(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	first := httptest.NewServer(handler)
	defer first.Close()
	second := httptest.NewServer(handler)
	defer second.Close()

	rt, err := NewRoundTripper(Config{RPS: 1, Burst: 1, PerHost: true}, nil, http.DefaultTransport)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Transport: rt}

	start := time.Now()
	for _, u := range []string{first.URL, second.URL} {
		ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			cancel()
			t.Fatal(err)
		}

		resp, err := client.Do(req)
		cancel()
		if err != nil {
			t.Fatalf("request to %s: %v", u, err)
		}
		resp.Body.Close()
	}

	if d := time.Since(start); d > 200*time.Millisecond {
		t.Errorf("distinct hosts should not share a bucket, took %v", d)
	}

	if got := len(rt.(*throttle).perHost); got != 2 {
		t.Errorf("expected 2 buckets, got %d", got)
	}
}

func TestThrottleRoundTripper_LoggingKeepsBurst(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	rt, err := NewRoundTripper(Config{RPS: 2, Burst: 2}, logger, http.DefaultTransport)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Transport: rt}

	get := func() {
		t.Helper()

		ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}

	start := time.Now()
	get()
	get()
	if d := time.Since(start); d > 200*time.Millisecond {
		t.Errorf("requests within burst should not wait, took %v", d)
	}
	if strings.Contains(buf.String(), "throttle tokens exhausted") {
		t.Errorf("unexpected exhaustion log within burst:\n%s", buf.String())
	}

	start = time.Now()
	get()
	if d := time.Since(start); d < 300*time.Millisecond {
		t.Errorf("request past burst should wait for a token, took %v", d)
	}
	if !strings.Contains(buf.String(), "throttle tokens exhausted") {
		t.Errorf("expected an exhaustion log past burst:\n%s", buf.String())
	}
}
