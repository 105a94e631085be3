package sender

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/skycoin/rdt/pkg/timer"
)

const (
	// DefaultWindowSize is the number of datagrams allowed in flight.
	DefaultWindowSize = 10

	// MaxWindowSize bounds the configurable window.
	MaxWindowSize = 1024
)

// ErrInvalidConfig is returned for a Config that fails validation.
var ErrInvalidConfig = errors.New("invalid sender config")

// Config defines the sender's protocol parameters.
type Config struct {
	WindowSize        int      `json:"window_size"`
	RetransmitTimeout Duration `json:"retransmit_timeout"` // time value, examples: 500ms, 1s

	// MaxRetransmits is the number of consecutive timeouts without window
	// progress tolerated before giving up. Zero retries forever.
	MaxRetransmits int `json:"max_retransmits"`

	// TrackSentinel keeps the end-of-transfer datagram in the window so it
	// is retransmitted until acknowledged.
	TrackSentinel bool `json:"track_sentinel"`
}

// DefaultConfig returns the parameters of the reference sender.
func DefaultConfig() Config {
	return Config{
		WindowSize:        DefaultWindowSize,
		RetransmitTimeout: Duration(timer.DefaultDuration),
	}
}

// Validate checks the Config for values the sender cannot run with.
func (c Config) Validate() error {
	if c.WindowSize < 1 || c.WindowSize > MaxWindowSize {
		return errors.Wrapf(ErrInvalidConfig, "window size %d not in [1, %d]", c.WindowSize, MaxWindowSize)
	}
	if c.RetransmitTimeout <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "retransmit timeout %s must be positive", time.Duration(c.RetransmitTimeout))
	}
	if c.MaxRetransmits < 0 {
		return errors.Wrapf(ErrInvalidConfig, "max retransmits %d must not be negative", c.MaxRetransmits)
	}
	return nil
}

// Duration wraps around time.Duration to allow parsing from and to JSON
type Duration time.Duration

// MarshalJSON implements json marshaling
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements unmarshal from json
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return errors.New("invalid duration")
	}
}
