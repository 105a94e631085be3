// Package testhelpers provides helpers for testing.
package testhelpers

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const timeout = 10 * time.Second

// ErrTimeout is returned by WithinTimeout when nothing arrives in time.
var ErrTimeout = errors.New("timed out waiting for result")

// WithinTimeout tries to read an error from error channel within timeout and returns it.
// If timeout exceeds, ErrTimeout is returned.
func WithinTimeout(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(timeout):
		return ErrTimeout
	}
}

// NoErrorN performs require.NoError on multiple errors
func NoErrorN(t *testing.T, errs ...error) {
	for _, err := range errs {
		require.NoError(t, err)
	}
}
