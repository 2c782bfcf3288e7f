package websocket

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"

	"github.com/rawproto/httpstack/pkg/constants"
	rawerrors "github.com/rawproto/httpstack/pkg/errors"
)

// Conn wraps a raw byte stream (already upgraded) with message-level
// framing: fragmentation reassembly, automatic pong replies to inbound
// pings, and a close handshake that defaults to status 1000 when the peer
// sends no payload (§4.7 "absent a status code in the close frame, 1000
// is assumed").
type Conn struct {
	rw         io.ReadWriter
	isClient   bool // clients mask outbound frames, servers never do
	MaxMessage int64

	mu         sync.Mutex
	closeSent  bool
	closeRecvd bool
}

// NewConn wraps rw. isClient controls outbound masking per RFC 6455 §5.1.
func NewConn(rw io.ReadWriter, isClient bool) *Conn {
	return &Conn{rw: rw, isClient: isClient, MaxMessage: 16 * 1024 * 1024}
}

// ReadMessage returns the next complete application message (Text or
// Binary), reassembling continuation fragments and transparently handling
// control frames: Ping triggers an automatic Pong reply, Pong is
// discarded, and Close completes the closing handshake and returns io.EOF.
func (c *Conn) ReadMessage() (Opcode, []byte, error) {
	var op Opcode
	var payload []byte
	first := true

	for {
		f, err := ReadFrame(c.rw, c.MaxMessage)
		if err != nil {
			return 0, nil, err
		}

		if f.Opcode.IsControl() {
			switch f.Opcode {
			case OpPing:
				if err := c.writeControl(OpPong, f.Payload); err != nil {
					return 0, nil, err
				}
				continue
			case OpPong:
				continue
			case OpClose:
				if err := c.handleIncomingClose(f.Payload); err != nil {
					return 0, nil, err
				}
				return 0, nil, io.EOF
			default:
				return 0, nil, rawerrors.NewWebSocketError("read", "unknown control opcode", nil)
			}
		}

		if first {
			if f.Opcode == OpContinuation {
				return 0, nil, rawerrors.NewWebSocketError("read", "continuation frame with no preceding message", nil)
			}
			op = f.Opcode
			first = false
		} else if f.Opcode != OpContinuation {
			return 0, nil, rawerrors.NewWebSocketError("read", "expected continuation frame", nil)
		}

		payload = append(payload, f.Payload...)
		if c.MaxMessage > 0 && int64(len(payload)) > c.MaxMessage {
			return 0, nil, rawerrors.NewWebSocketError("read", "message exceeds maximum size", nil)
		}
		if f.Fin {
			return op, payload, nil
		}
	}
}

// WriteMessage sends a complete message as a single unfragmented frame.
func (c *Conn) WriteMessage(op Opcode, payload []byte) error {
	f := &Frame{Fin: true, Opcode: op, Payload: payload}
	c.setMask(f)
	return WriteFrame(c.rw, f)
}

func (c *Conn) writeControl(op Opcode, payload []byte) error {
	f := &Frame{Fin: true, Opcode: op, Payload: payload}
	c.setMask(f)
	return WriteFrame(c.rw, f)
}

func (c *Conn) setMask(f *Frame) {
	if !c.isClient {
		return
	}
	f.Masked = true
	var key [4]byte
	randomMaskKey(key[:])
	f.MaskKey = key
}

// Close initiates the close handshake, sending a Close frame with the
// given status and reason. It returns once the frame is written and does
// not wait for the peer's Close echo; a later ReadMessage consumes that
// echo and returns io.EOF.
func (c *Conn) Close(status uint16, reason string) error {
	c.mu.Lock()
	if c.closeSent {
		c.mu.Unlock()
		return nil
	}
	c.closeSent = true
	c.mu.Unlock()

	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload[0:2], status)
	copy(payload[2:], reason)
	return c.writeControl(OpClose, payload)
}

func (c *Conn) handleIncomingClose(payload []byte) error {
	c.mu.Lock()
	already := c.closeRecvd
	c.closeRecvd = true
	c.mu.Unlock()
	if already {
		return nil
	}

	status := uint16(constants.DefaultCloseStatus)
	if len(payload) >= 2 {
		status = binary.BigEndian.Uint16(payload[0:2])
	}
	// Echo the close frame back (RFC 6455 §5.5.1: "the endpoint... must
	// send a Close frame in response").
	c.mu.Lock()
	sent := c.closeSent
	c.mu.Unlock()
	if !sent {
		return c.Close(status, "")
	}
	return nil
}

func randomMaskKey(b []byte) {
	// Masking keys need not be cryptographically unpredictable, only
	// unique per frame (RFC 6455 §10.3); crypto/rand is used anyway since
	// it is already linked in for Sec-WebSocket-Key generation.
	if _, err := rand.Read(b); err != nil {
		// Fall back to a fixed key rather than sending an unmasked frame;
		// a broken RNG is exceptionally rare and this keeps Write total.
		for i := range b {
			b[i] = 0
		}
	}
}
