// Package retry holds the backoff policy applied between build attempts.
package retry

import (
	"fmt"
	"time"
)

// Mode selects how the delay grows between retries.
type Mode string

const (
	Fixed       Mode = "fixed"
	Linear      Mode = "linear"
	Exponential Mode = "exponential"
)

// Policy is immutable after construction.
type Policy struct {
	Mode       Mode
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int // retries after the first failed attempt
}

// DefaultPolicy is linear, 1s initial, 30s cap, 2 retries.
func DefaultPolicy() Policy {
	return Policy{Mode: Linear, Initial: time.Second, Max: 30 * time.Second, MaxRetries: 2}
}

// NewPolicy builds a policy from raw config values. Zero or unknown values
// fall back to the defaults.
func NewPolicy(mode string, initial, maxDelay time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	switch Mode(mode) {
	case Fixed, Linear, Exponential:
		p.Mode = Mode(mode)
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay returns the wait before the given retry (1-based).
func (p Policy) Delay(retry int) time.Duration {
	if retry <= 0 {
		return 0
	}
	switch p.Mode {
	case Fixed:
		return p.Initial
	case Exponential:
		if retry > 32 {
			return p.Max
		}
		d := p.Initial * (1 << (retry - 1))
		if d > p.Max || d <= 0 {
			return p.Max
		}
		return d
	default:
		d := time.Duration(retry) * p.Initial
		if d > p.Max {
			return p.Max
		}
		return d
	}
}

// Allow reports whether another attempt may follow the given number of
// retries already made.
func (p Policy) Allow(retries int) bool {
	return retries < p.MaxRetries
}

// Validate rejects settings NewPolicy would otherwise replace with defaults.
// An empty Mode means the default.
func (p Policy) Validate() error {
	switch p.Mode {
	case "", Fixed, Linear, Exponential:
	default:
		return fmt.Errorf("unknown backoff mode %q", p.Mode)
	}
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}
