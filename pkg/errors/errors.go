// Package errors provides structured error types for the rawhttp library.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorType represents the category of error that occurred.
type ErrorType string

const (
	// ErrorTypeDNS represents DNS resolution errors
	ErrorTypeDNS ErrorType = "dns"
	// ErrorTypeConnection represents TCP connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeTLS represents TLS handshake errors
	ErrorTypeTLS ErrorType = "tls"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeProtocol represents HTTP protocol errors
	ErrorTypeProtocol ErrorType = "protocol"
	// ErrorTypeIO represents I/O errors
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeProxy represents proxy tunneling errors (CONNECT/SOCKS4/SOCKS5).
	ErrorTypeProxy ErrorType = "proxy"
	// ErrorTypeHTTP1 represents HTTP/1 request/response parse errors.
	ErrorTypeHTTP1 ErrorType = "http1"
	// ErrorTypeHTTP2 represents HTTP/2 framing and stream-engine errors.
	ErrorTypeHTTP2 ErrorType = "http2"
	// ErrorTypeCompression represents HPACK codec errors.
	ErrorTypeCompression ErrorType = "compression"
	// ErrorTypeWebSocket represents WebSocket frame codec and handshake errors.
	ErrorTypeWebSocket ErrorType = "websocket"
)

// HTTP2Code is the RFC 7540 §7 error code space, plus one code this
// engine's HTTP/2 error surface (§6) adds on top: NeedWindowUpdate signals
// that a send suspended waiting for flow-control credit rather than that
// anything went wrong. HPACK failures use the RFC's own
// CodeCompressionError.
type HTTP2Code uint32

const (
	CodeNoError            HTTP2Code = 0x0
	CodeProtocolError      HTTP2Code = 0x1
	CodeInternalError      HTTP2Code = 0x2
	CodeFlowControlError   HTTP2Code = 0x3
	CodeSettingsTimeout    HTTP2Code = 0x4
	CodeStreamClosed       HTTP2Code = 0x5
	CodeFrameSizeError     HTTP2Code = 0x6
	CodeRefusedStream      HTTP2Code = 0x7
	CodeCancel             HTTP2Code = 0x8
	CodeCompressionError   HTTP2Code = 0x9
	CodeConnectError       HTTP2Code = 0xa
	CodeEnhanceYourCalm    HTTP2Code = 0xb
	CodeInadequateSecurity HTTP2Code = 0xc
	CodeHTTP11Required     HTTP2Code = 0xd
	// CodeNeedWindowUpdate is not an RFC 7540 code; it marks a send that
	// suspended for flow control rather than failed (§6's error surface).
	CodeNeedWindowUpdate HTTP2Code = 0xffffff01
)

func (c HTTP2Code) String() string {
	switch c {
	case CodeNoError:
		return "NO_ERROR"
	case CodeProtocolError:
		return "PROTOCOL_ERROR"
	case CodeInternalError:
		return "INTERNAL_ERROR"
	case CodeFlowControlError:
		return "FLOW_CONTROL_ERROR"
	case CodeSettingsTimeout:
		return "SETTINGS_TIMEOUT"
	case CodeStreamClosed:
		return "STREAM_CLOSED"
	case CodeFrameSizeError:
		return "FRAME_SIZE_ERROR"
	case CodeRefusedStream:
		return "REFUSED_STREAM"
	case CodeCancel:
		return "CANCEL"
	case CodeCompressionError:
		return "COMPRESSION_ERROR"
	case CodeConnectError:
		return "CONNECT_ERROR"
	case CodeEnhanceYourCalm:
		return "ENHANCE_YOUR_CALM"
	case CodeInadequateSecurity:
		return "INADEQUATE_SECURITY"
	case CodeHTTP11Required:
		return "HTTP_1_1_REQUIRED"
	case CodeNeedWindowUpdate:
		return "NEED_WINDOW_UPDATE"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Severity distinguishes local/recoverable errors from errors that abort
// one stream (RST_STREAM, connection survives) from errors that are
// connection-fatal (GOAWAY then close), per §7.
type Severity string

const (
	SeverityLocal            Severity = "local"
	SeverityStreamScoped     Severity = "stream-scoped"
	SeverityConnectionFatal  Severity = "connection-fatal"
)

// Error represents a structured error with context information.
// This provides detailed transport-layer error classification for debugging and error handling.
type Error struct {
	Type      ErrorType `json:"type"`      // Error category (dns, connection, tls, etc.)
	Op        string    `json:"op"`        // Operation that failed (dial, handshake, read, write, etc.)
	Message   string    `json:"message"`   // Human-readable error message
	Cause     error     `json:"cause,omitempty"` // Underlying error
	Host      string    `json:"host,omitempty"`  // Target host
	Port      int       `json:"port,omitempty"`  // Target port
	Addr      string    `json:"addr,omitempty"`  // Full address (host:port)
	Timestamp time.Time `json:"timestamp"` // When the error occurred

	// HTTP2Code carries an RFC 7540 error code when Type is ErrorTypeHTTP2;
	// zero otherwise.
	HTTP2Code HTTP2Code `json:"http2_code,omitempty"`
	// Severity classifies local/stream-scoped/connection-fatal per §7.
	// Empty for error types where the distinction does not apply.
	Severity Severity `json:"severity,omitempty"`
}

// TransportError is an alias for Error, provided for API compatibility
// with transport error naming conventions.
type TransportError = Error

// Error implements the error interface.
// Format: [type] op addr: message: cause
func (e *Error) Error() string {
	var parts []string

	// Add type
	parts = append(parts, fmt.Sprintf("[%s]", e.Type))

	// Add operation if present
	if e.Op != "" {
		parts = append(parts, e.Op)
	}

	// Add address if present
	if e.Addr != "" {
		parts = append(parts, e.Addr)
	} else if e.Host != "" {
		if e.Port > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", e.Host, e.Port))
		} else {
			parts = append(parts, e.Host)
		}
	}

	// Build error string
	errStr := strings.Join(parts, " ")
	if e.Message != "" {
		errStr += ": " + e.Message
	}
	if e.Cause != nil {
		errStr += ": " + e.Cause.Error()
	}

	return errStr
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target type.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Type == t.Type
	}
	return false
}

// NewDNSError creates a DNS resolution error.
func NewDNSError(host string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeDNS,
		Op:        "lookup",
		Message:   fmt.Sprintf("DNS lookup failed for host %s", host),
		Cause:     cause,
		Host:      host,
		Addr:      host,
		Timestamp: time.Now(),
	}
}

// NewConnectionError creates a connection error.
func NewConnectionError(host string, port int, cause error) *Error {
	addr := fmt.Sprintf("%s:%d", host, port)
	return &Error{
		Type:      ErrorTypeConnection,
		Op:        "dial",
		Message:   fmt.Sprintf("failed to connect to %s", addr),
		Cause:     cause,
		Host:      host,
		Port:      port,
		Addr:      addr,
		Timestamp: time.Now(),
	}
}

// NewTLSError creates a TLS handshake error.
func NewTLSError(host string, port int, cause error) *Error {
	addr := fmt.Sprintf("%s:%d", host, port)
	return &Error{
		Type:      ErrorTypeTLS,
		Op:        "handshake",
		Message:   fmt.Sprintf("TLS handshake failed for %s", addr),
		Cause:     cause,
		Host:      host,
		Port:      port,
		Addr:      addr,
		Timestamp: time.Now(),
	}
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(operation string, timeout time.Duration) *Error {
	return &Error{
		Type:      ErrorTypeTimeout,
		Op:        operation,
		Message:   fmt.Sprintf("operation timed out after %v", timeout),
		Timestamp: time.Now(),
	}
}

// NewProtocolError creates a protocol error.
func NewProtocolError(message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeProtocol,
		Op:        "parse",
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewIOError creates an I/O error.
func NewIOError(operation string, cause error) *Error {
	// Extract operation type (read/write) from message
	op := operation
	if strings.Contains(strings.ToLower(operation), "read") {
		op = "read"
	} else if strings.Contains(strings.ToLower(operation), "writ") {
		op = "write"
	}

	return &Error{
		Type:      ErrorTypeIO,
		Op:        op,
		Message:   fmt.Sprintf("I/O error during %s", operation),
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *Error {
	return &Error{
		Type:      ErrorTypeValidation,
		Op:        "validate",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// ProxyError is the proxy-tunneling error type. Earlier drafts of this
// library referenced it from the top-level facade without ever defining
// it; it is defined here now that proxy handshakes (CONNECT/SOCKS4/SOCKS5)
// have their own failure modes distinct from a plain connection error.
type ProxyError = Error

// NewProxyError creates a proxy tunneling error (CONNECT/SOCKS4/SOCKS5
// handshake failure against the proxy itself, not the origin).
func NewProxyError(op, proxyAddr string, cause error) *ProxyError {
	return &Error{
		Type:      ErrorTypeProxy,
		Op:        op,
		Message:   fmt.Sprintf("proxy %s failed", op),
		Cause:     cause,
		Addr:      proxyAddr,
		Timestamp: time.Now(),
	}
}

// HTTP/1 error taxonomy (§4.3): invalid-request-format, read-body,
// invalid-header, invalid-phase, invalid-status.

// NewHTTP1Error creates an HTTP/1 codec error tagged with one of the
// taxonomy operations above.
func NewHTTP1Error(op, message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeHTTP1,
		Op:        op,
		Message:   message,
		Cause:     cause,
		Severity:  SeverityLocal,
		Timestamp: time.Now(),
	}
}

// NewHTTP2Error creates a connection-fatal or stream-scoped HTTP/2 error
// carrying the RFC 7540 code that should accompany the RST_STREAM/GOAWAY.
func NewHTTP2Error(op string, code HTTP2Code, severity Severity, message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeHTTP2,
		Op:        op,
		Message:   message,
		Cause:     cause,
		HTTP2Code: code,
		Severity:  severity,
		Timestamp: time.Now(),
	}
}

// NewCompressionError creates an HPACK failure, which always elevates to
// COMPRESSION_ERROR at the HTTP/2 caller level per §4.4.
func NewCompressionError(op, message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeCompression,
		Op:        op,
		Message:   message,
		Cause:     cause,
		HTTP2Code: CodeCompressionError,
		Severity:  SeverityConnectionFatal,
		Timestamp: time.Now(),
	}
}

// NewWebSocketError creates a WebSocket frame codec or handshake error.
func NewWebSocketError(op, message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeWebSocket,
		Op:        op,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// IsNeedWindowUpdate reports whether err represents a send suspended for
// flow control rather than a genuine failure (§6, §5 resumption cursor).
func IsNeedWindowUpdate(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrorTypeHTTP2 && e.HTTP2Code == CodeNeedWindowUpdate
	}
	return false
}

// IsTimeoutError checks if an error is a timeout error.
func IsTimeoutError(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == ErrorTypeTimeout
	}
	// Also check for net timeout errors
	if netErr, ok := err.(net.Error); ok {
		return netErr.Timeout()
	}
	// Check for context deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// IsTemporaryError checks if an error is temporary.
func IsTemporaryError(err error) bool {
	if netErr, ok := err.(net.Error); ok {
		return netErr.Temporary()
	}
	return false
}

// GetErrorType returns the error type if it's a structured error.
func GetErrorType(err error) ErrorType {
	if e, ok := err.(*Error); ok {
		return e.Type
	}
	return ""
}

// IsContextCanceled checks if an error is due to context cancellation.
func IsContextCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsContextTimeout checks if an error is due to context deadline exceeded.
func IsContextTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
