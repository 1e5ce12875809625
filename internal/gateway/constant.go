package gateway

import "time"

// Timeout constants
const (
	// WriteWait is time allowed to write a message to the peer
	WriteWait = 10 * time.Second

	// PongWait is time allowed to read the next pong message from the peer
	PongWait = 60 * time.Second

	// PingPeriod is period between pings. Must be less than PongWait
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize is maximum message size allowed from peer
	MaxMessageSize = 51200

	// writeChannelSize is the default per-connection outbound queue length
	writeChannelSize = 256
)

// metric label for events outside the catalog
const unknownEvent = "unknown"
