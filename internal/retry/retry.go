// Package retry implements the bounded exponential-backoff loop used for
// upstream fetches: base*2^attempt plus additive uniform jitter.
package retry

import (
	"context"
	"math/rand"
	"time"
)

type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	JitterMax   time.Duration
}

// Defaults returns the provider fetch policy: 1 initial attempt + 3 retries.
func Defaults() Config {
	return Config{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		JitterMax:   500 * time.Millisecond,
	}
}

// Delay computes the sleep before retry number attempt (0-based).
func (c Config) Delay(attempt int) time.Duration {
	d := c.BaseDelay << uint(attempt)
	if c.JitterMax > 0 {
		d += time.Duration(rand.Int63n(int64(c.JitterMax)))
	}
	return d
}

// Do runs op up to cfg.MaxAttempts times, sleeping between attempts. It
// returns the last error when all attempts fail, or ctx.Err() when the
// context is cancelled during a backoff sleep.
func Do(ctx context.Context, cfg Config, op func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	var err error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		t := time.NewTimer(cfg.Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}
