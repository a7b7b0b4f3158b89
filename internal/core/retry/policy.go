package retry

import (
	"errors"
	"fmt"
	"math"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// BackoffType selects how the wait between attempts grows.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// Policy defines retry behavior for one collaborator call.
type Policy struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	Backoff       BackoffType   `yaml:"backoff"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	Multiplier    float64       `yaml:"multiplier"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	// JitterPercent is nil when unset; an explicit 0 disables jitter.
	JitterPercent *uint64       `yaml:"jitter_percent"`

	// Classify decides whether a failure is worth another attempt.
	// DefaultClassifier is used when nil.
	Classify Classifier `yaml:"-"`
}

// DefaultPolicy mirrors the customer lookup defaults: moderate attempts,
// exponential growth, jittered.
var DefaultPolicy = Policy{
	MaxAttempts:   4,
	Backoff:       BackoffExponential,
	InitialDelay:  500 * time.Millisecond,
	Multiplier:    2.0,
	MaxDelay:      3 * time.Second,
	JitterPercent: Jitter(20),
}

// Jitter returns a JitterPercent value.
func Jitter(percent uint64) *uint64 {
	return &percent
}

var errInvalidPolicy = errors.New("invalid retry policy")

// WithDefaults returns a copy of p with zero fields taken from def.
func (p Policy) WithDefaults(def Policy) Policy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Backoff == "" {
		p.Backoff = def.Backoff
	}
	if p.InitialDelay == 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.Multiplier == 0 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.JitterPercent == nil {
		p.JitterPercent = def.JitterPercent
	}
	if p.Classify == nil {
		p.Classify = def.Classify
	}
	return p
}

func (p Policy) jitter() uint64 {
	if p.JitterPercent == nil {
		return 0
	}
	return *p.JitterPercent
}

// WithClassifier returns a copy of p using c to classify failures.
func (p Policy) WithClassifier(c Classifier) Policy {
	p.Classify = c
	return p
}

// Validate reports configuration that cannot produce a sane schedule.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be at least 1, got %d", errInvalidPolicy, p.MaxAttempts)
	}
	if p.InitialDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("%w: delays must not be negative", errInvalidPolicy)
	}
	if j := p.jitter(); j > 100 {
		return fmt.Errorf("%w: jitter_percent must be within 0-100, got %d", errInvalidPolicy, j)
	}
	switch p.Backoff {
	case BackoffFixed:
	case BackoffExponential:
		if p.Multiplier < 1 {
			return fmt.Errorf("%w: multiplier must be at least 1, got %v", errInvalidPolicy, p.Multiplier)
		}
	default:
		return fmt.Errorf("%w: unknown backoff %q", errInvalidPolicy, p.Backoff)
	}
	return nil
}

// Delay returns the un-jittered wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.Backoff == BackoffFixed {
		return p.InitialDelay
	}

	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// schedule builds the go-retry backoff that allows MaxAttempts-1 retries.
func (p Policy) schedule() goretry.Backoff {
	var attempt int
	var b goretry.Backoff = goretry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return p.Delay(attempt), false
	})

	if j := p.jitter(); j > 0 && p.InitialDelay > 0 {
		b = goretry.WithJitterPercent(j, b)
		// jitter may push a capped delay past MaxDelay
		if p.MaxDelay > 0 {
			b = goretry.WithCappedDuration(p.MaxDelay, b)
		}
	}

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return goretry.WithMaxRetries(uint64(retries), b)
}
