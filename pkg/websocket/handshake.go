package websocket

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"net/textproto"
	"strings"

	rawerrors "github.com/rawproto/httpstack/pkg/errors"
)

// GUID is the fixed accept-key salt defined in RFC 6455 §1.3.
const GUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// NewClientKey generates a random 16-byte Sec-WebSocket-Key, base64-encoded
// per RFC 6455 §4.1.
func NewClientKey() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", rawerrors.NewWebSocketError("handshake", "failed generating client key", err)
	}
	return base64.StdEncoding.EncodeToString(raw[:]), nil
}

// AcceptKey computes the Sec-WebSocket-Accept value for a given client key
// (RFC 6455 §4.2.2 item 5).
func AcceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(GUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// ValidateServerAccept checks a server's Sec-WebSocket-Accept header against
// the key the client originally sent.
func ValidateServerAccept(clientKey, serverAccept string) bool {
	return AcceptKey(clientKey) == serverAccept
}

// IsUpgradeRequest reports whether headers carry the Connection/Upgrade
// tokens a WebSocket handshake requires (case-insensitive, comma-separated
// per RFC 7230 §6.7).
func IsUpgradeRequest(headers textproto.MIMEHeader) bool {
	return containsToken(headers.Get("Connection"), "upgrade") &&
		strings.EqualFold(strings.TrimSpace(headers.Get("Upgrade")), "websocket")
}

func containsToken(csv, token string) bool {
	for _, part := range strings.Split(csv, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
