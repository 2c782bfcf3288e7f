// Package constants defines magic numbers and default values used throughout go-rawhttp
package constants

import "time"

// Connection timeouts and limits
const (
	DefaultIdleTimeout     = 90 * time.Second
	DefaultConnTimeout     = 10 * time.Second
	DefaultReadTimeout     = 30 * time.Second
	DefaultPingInterval    = 15 * time.Second
	MaxConnectionIdleTime  = 5 * time.Minute
	HealthCheckInterval    = 30 * time.Second
	CleanupInterval        = 30 * time.Second
)

// HTTP/2 limits
const (
	MaxTotalStreams       = 10000
	SettingsAckTimeout    = 10 * time.Second
	DefaultHpackTableSize = 4096

	// DefaultMaxFrameSize and MinMaxFrameSize/MaxMaxFrameSize bound
	// SETTINGS_MAX_FRAME_SIZE per §4.5.
	DefaultMaxFrameSize = 16384
	MinMaxFrameSize     = 1 << 14
	MaxMaxFrameSize     = 1<<24 - 1

	// DefaultInitialWindowSize is SETTINGS_INITIAL_WINDOW_SIZE's default
	// per §6's settings-defaults table.
	DefaultInitialWindowSize = 65535
	MaxWindowSize            = 1<<31 - 1

	// MaxStreamID is the largest legal HTTP/2 stream id (31 bits); beyond
	// this, §8's boundary behavior requires refusing to open new streams.
	MaxStreamID = 1<<31 - 1

	// ClientPreface is the fixed 24-byte marker a client sends at the
	// start of any HTTP/2 connection (§4.6).
	ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"
)

// HTTP limits
const (
	MaxContentLength = 1024 * 1024 * 1024 * 1024 // 1TB
	MaxHeaderBytes   = 64 * 1024                 // 64KB cap on a header block while reading
)

// Buffer limits
const (
	DefaultBodyMemLimit = 4 * 1024 * 1024   // 4MB
	MaxRawBufferSize    = 100 * 1024 * 1024 // 100MB cap for raw buffer
)

// WebSocket limits (§4.7)
const (
	WebSocketGUID          = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	MaxControlFramePayload = 125
	DefaultCloseStatus     = 1000
)
