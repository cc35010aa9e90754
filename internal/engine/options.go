package engine

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultDepth        = 15
	DefaultStartTimeout = 5 * time.Second
)

type options struct {
	log          zerolog.Logger
	depth        uint
	lookback     Lookback
	startTimeout time.Duration
	args         []string
}

func defaultOptions() options {
	return options{
		log:          zerolog.Nop(),
		depth:        DefaultDepth,
		lookback:     LookbackPrevious,
		startTimeout: DefaultStartTimeout,
	}
}

// Option configures a Session at construction.
type Option func(*options)

// WithLogger sets the logger. Commands and raw lines are logged at trace level.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithDepth sets the depth used by Go. Zero keeps the default.
func WithDepth(depth uint) Option {
	return func(o *options) {
		if depth > 0 {
			o.depth = depth
		}
	}
}

// WithLookback selects how the score line is chosen.
func WithLookback(mode Lookback) Option {
	return func(o *options) { o.lookback = mode }
}

// WithStartTimeout bounds the wait for the engine's first line. Zero or
// negative waits forever.
func WithStartTimeout(d time.Duration) Option {
	return func(o *options) { o.startTimeout = d }
}

// WithArgs passes extra command line arguments to the engine binary.
func WithArgs(args ...string) Option {
	return func(o *options) { o.args = append([]string(nil), args...) }
}
