// Package netutil provides helpers for establishing network connections.
package netutil

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"
)

var log = logging.MustGetLogger("netutil")

// ErrThresholdReached is returned when retrying took longer than the threshold.
var ErrThresholdReached = errors.New("threshold timeout has been reached")

// RetryFunc is a function used as argument of (*Retrier).Do(), which will retry on error unless it is whitelisted
type RetryFunc func() error

// Retrier holds a configuration for how retries should be performed
type Retrier struct {
	exponentialBackoff time.Duration // multiplied on every retry by a exponentialFactor
	exponentialFactor  uint32        // multiplier for the backoff duration that is applied on every retry
	threshold          time.Duration // max cumulative duration of retrying
	errWhitelist       map[error]struct{}
}

// NewRetrier returns a retrier that is ready to call Do() method
func NewRetrier(exponentialBackoff, threshold time.Duration, factor uint32) *Retrier {
	if factor == 0 {
		factor = 1
	}
	return &Retrier{
		exponentialBackoff: exponentialBackoff,
		threshold:          threshold,
		exponentialFactor:  factor,
		errWhitelist:       make(map[error]struct{}),
	}
}

// WithErrWhitelist sets a list of errors into the retrier, if the RetryFunc provided to Do() fails with one of them it will return inmediatelly with such error. Calling
// this function is not thread-safe, and is advised to only use it when initializing the Retrier
func (r *Retrier) WithErrWhitelist(errors ...error) *Retrier {
	m := make(map[error]struct{})
	for _, err := range errors {
		m[err] = struct{}{}
	}

	r.errWhitelist = m
	return r
}

// Do calls f until it succeeds, returns a whitelisted error, the threshold
// elapses or ctx is done. Attempts are spaced by an exponentially growing backoff.
func (r *Retrier) Do(ctx context.Context, f RetryFunc) error {
	threshold := time.NewTimer(r.threshold)
	defer threshold.Stop()

	currentBackoff := r.exponentialBackoff

	for {
		err := f()
		if err == nil {
			return nil
		}
		if r.isWhitelisted(err) {
			return err
		}
		log.WithError(err).Warnf("Retrying in %s", currentBackoff)

		backoff := time.NewTimer(currentBackoff)
		select {
		case <-ctx.Done():
			backoff.Stop()
			return ctx.Err()
		case <-threshold.C:
			backoff.Stop()
			return errors.Wrapf(ErrThresholdReached, "last error: %v", err)
		case <-backoff.C:
		}

		currentBackoff = currentBackoff * time.Duration(r.exponentialFactor)
	}
}

func (r *Retrier) isWhitelisted(err error) bool {
	_, ok := r.errWhitelist[errors.Cause(err)]
	return ok
}
