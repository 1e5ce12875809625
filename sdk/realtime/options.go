package realtime

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// TokenSource returns a token for the next handshake. Reconnects call it so
// an expired token can be replaced without tearing the session down.
type TokenSource func(ctx context.Context) (string, error)

// Options configures a Session
type Options struct {
	URL    string
	Dialer Dialer
	Tokens TokenSource // nil reuses the token given to Connect
	Clock  clockwork.Clock

	AuthTimeout       time.Duration
	AckTimeout        time.Duration
	HeartbeatInterval time.Duration

	// Reconnect backoff
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	BackoffJitter     float64
}

// DefaultOptions returns the options used when a field is left zero
func DefaultOptions() Options {
	return Options{
		AuthTimeout:       10 * time.Second,
		AckTimeout:        15 * time.Second,
		HeartbeatInterval: 25 * time.Second,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2,
		BackoffJitter:     0.2,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Dialer == nil {
		o.Dialer = &WebSocketDialer{}
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = def.AuthTimeout
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = def.AckTimeout
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = def.HeartbeatInterval
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = def.InitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = def.MaxBackoff
	}
	if o.BackoffMultiplier < 1 {
		o.BackoffMultiplier = def.BackoffMultiplier
	}
	if o.BackoffJitter < 0 || o.BackoffJitter >= 1 {
		o.BackoffJitter = def.BackoffJitter
	}
}
