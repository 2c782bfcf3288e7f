// Package negotiate resolves which protocol version a connection will
// speak: ALPN over TLS, and the h2c cleartext upgrade path (§4.8).
// Adapted from the teacher's pkg/http2/transport.go connectTLS/connectH2C/
// buildH2CUpgradeRequest/containsUpgradeSuccess, generalized into a
// standalone resolver the client and server facades both call instead of
// duplicating the ALPN list and upgrade request/response text inline.
package negotiate

import (
	"crypto/tls"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/textproto"
	"strings"

	rawerrors "github.com/rawproto/httpstack/pkg/errors"
	"github.com/rawproto/httpstack/pkg/http2frame"
)

// Version is the negotiated application protocol.
type Version int

const (
	VersionUnknown Version = iota
	VersionHTTP10
	VersionHTTP11
	VersionHTTP2
	VersionWebSocket
)

func (v Version) String() string {
	switch v {
	case VersionHTTP10:
		return "HTTP/1.0"
	case VersionHTTP11:
		return "HTTP/1.1"
	case VersionHTTP2:
		return "h2"
	case VersionWebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

// DefaultALPNProtocols is offered by the client when no explicit NextProtos
// were configured.
var DefaultALPNProtocols = []string{"h2", "http/1.1"}

// NextProtosFor merges a caller-supplied NextProtos list with the h2
// requirement: if the caller configured protocols without h2, h2 is
// prepended so ALPN can still succeed, mirroring the teacher's
// "prepend h2 to the list for backward compatibility" behavior.
func NextProtosFor(configured []string) []string {
	if len(configured) == 0 {
		out := make([]string, len(DefaultALPNProtocols))
		copy(out, DefaultALPNProtocols)
		return out
	}
	for _, p := range configured {
		if p == "h2" {
			return configured
		}
	}
	return append([]string{"h2"}, configured...)
}

// ResolveALPN maps a completed TLS handshake's negotiated protocol to a
// Version.
func ResolveALPN(state tls.ConnectionState) (Version, error) {
	switch state.NegotiatedProtocol {
	case "h2":
		return VersionHTTP2, nil
	case "http/1.1", "":
		return VersionHTTP11, nil
	default:
		return VersionUnknown, rawerrors.NewHTTP2Error("alpn", rawerrors.CodeProtocolError, rawerrors.SeverityConnectionFatal,
			fmt.Sprintf("unsupported negotiated protocol %q", state.NegotiatedProtocol), nil)
	}
}

// EncodeSettingsHeader serializes settings into the base64url value carried
// in the HTTP2-Settings upgrade header (RFC 7540 §3.2.1): the same 6-bytes-
// per-setting wire format used inside a SETTINGS frame payload, just
// base64url-encoded without padding.
func EncodeSettingsHeader(settings []http2frame.Setting) string {
	buf := make([]byte, 0, len(settings)*6)
	for _, s := range settings {
		b := make([]byte, 6)
		binary.BigEndian.PutUint16(b[0:2], uint16(s.ID))
		binary.BigEndian.PutUint32(b[2:6], s.Value)
		buf = append(buf, b...)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// DecodeSettingsHeader is the server-side inverse of EncodeSettingsHeader.
func DecodeSettingsHeader(value string) ([]http2frame.Setting, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, rawerrors.NewHTTP2Error("h2c", rawerrors.CodeProtocolError, rawerrors.SeverityConnectionFatal, "invalid HTTP2-Settings header", err)
	}
	if len(raw)%6 != 0 {
		return nil, rawerrors.NewHTTP2Error("h2c", rawerrors.CodeProtocolError, rawerrors.SeverityConnectionFatal, "HTTP2-Settings payload not a multiple of 6 bytes", nil)
	}
	var out []http2frame.Setting
	for i := 0; i < len(raw); i += 6 {
		out = append(out, http2frame.Setting{
			ID:    http2frame.SettingID(binary.BigEndian.Uint16(raw[i : i+2])),
			Value: binary.BigEndian.Uint32(raw[i+2 : i+6]),
		})
	}
	return out, nil
}

// BuildH2CUpgradeRequest builds the client's HTTP/1.1 request line and
// headers requesting an upgrade to h2c on host, carrying settings in the
// HTTP2-Settings header.
func BuildH2CUpgradeRequest(host string, settings []http2frame.Setting) []byte {
	req := fmt.Sprintf(
		"GET / HTTP/1.1\r\n"+
			"Host: %s\r\n"+
			"Connection: Upgrade, HTTP2-Settings\r\n"+
			"Upgrade: h2c\r\n"+
			"HTTP2-Settings: %s\r\n"+
			"\r\n",
		host, EncodeSettingsHeader(settings))
	return []byte(req)
}

// IsH2CUpgradeResponse reports whether a server's raw response indicates a
// successful switch to h2c (101 Switching Protocols with Upgrade: h2c).
func IsH2CUpgradeResponse(response []byte) bool {
	s := strings.ToLower(string(response))
	return strings.Contains(s, "101") && strings.Contains(s, "switching protocols") && strings.Contains(s, "h2c")
}

// IsH2CUpgradeRequest reports whether a server-side request's headers carry
// a valid h2c upgrade offer (RFC 7540 §3.2).
func IsH2CUpgradeRequest(headers textproto.MIMEHeader) bool {
	return containsToken(headers.Get("Connection"), "upgrade") &&
		strings.EqualFold(strings.TrimSpace(headers.Get("Upgrade")), "h2c") &&
		headers.Get("HTTP2-Settings") != ""
}

// BuildH2CUpgradeResponse is the server's 101 Switching Protocols reply
// accepting an h2c upgrade offer.
func BuildH2CUpgradeResponse() []byte {
	return []byte("HTTP/1.1 101 Switching Protocols\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: h2c\r\n\r\n")
}

func containsToken(csv, token string) bool {
	for _, part := range strings.Split(csv, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
