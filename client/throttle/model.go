package throttle

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("throttle context ended")
)

// Config defines the throttler's requests per second and burst capacity.
// With PerHost set, every request authority gets its own bucket.
type Config struct {
	RPS     int  `yaml:"rps" mapstructure:"rps" validate:"gt=0"`
	Burst   int  `yaml:"burst" mapstructure:"burst" validate:"gt=0"`
	PerHost bool `yaml:"per_host" mapstructure:"per_host"`
}

// throttle is an http.RoundTripper, using the time/rate token
// bucket limiter to restrict outbound dispatches.
type throttle struct {
	cfg    Config
	next   http.RoundTripper
	logger *slog.Logger

	mu      sync.Mutex
	shared  *rate.Limiter
	perHost map[string]*rate.Limiter
}
