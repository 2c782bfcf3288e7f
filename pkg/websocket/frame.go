// Package websocket implements the RFC 6455 frame codec and handshake
// (§4.7): masking, fragmentation, control frames with automatic pong, and
// the close handshake with its default status 1000. The teacher carries no
// WebSocket code; the frame-header bitmask layout and handshake shape are
// grounded on the surveyed reference servers (betamos/Go-Websocket,
// jason-cq/nats-server) plus original_source/src/v2/websocket.h for the
// auto-pong and default-close-status semantics.
package websocket

import (
	"encoding/binary"
	"io"
	"math"

	rawerrors "github.com/rawproto/httpstack/pkg/errors"
)

// Opcode identifies a frame's payload interpretation.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

func (op Opcode) IsControl() bool { return op&0x8 != 0 }

const (
	finBit  = 0x80
	rsvBits = 0x70
	opMask  = 0x0F
	maskBit = 0x80
	lenMask = 0x7F
)

// MaxControlFramePayload is the RFC 6455 §5.5 control-frame payload cap.
const MaxControlFramePayload = 125

// Frame is one decoded WebSocket frame.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// ReadFrame reads and unmasks one frame from r.
func ReadFrame(r io.Reader, maxPayload int64) (*Frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	f := &Frame{
		Fin:    hdr[0]&finBit != 0,
		Opcode: Opcode(hdr[0] & opMask),
		Masked: hdr[1]&maskBit != 0,
	}
	if hdr[0]&rsvBits != 0 {
		return nil, protoErr("reserved bits set without an extension negotiated")
	}

	length := uint64(hdr[1] & lenMask)
	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		length = binary.BigEndian.Uint64(ext[:])
		if length > math.MaxInt64 {
			return nil, protoErr("payload length overflow")
		}
	}
	if f.Opcode.IsControl() {
		if length > MaxControlFramePayload {
			return nil, protoErr("control frame payload exceeds 125 bytes")
		}
		if !f.Fin {
			return nil, protoErr("control frame must not be fragmented")
		}
	}
	if maxPayload > 0 && int64(length) > maxPayload {
		return nil, protoErr("payload exceeds configured maximum")
	}

	if f.Masked {
		if _, err := io.ReadFull(r, f.MaskKey[:]); err != nil {
			return nil, err
		}
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	if f.Masked {
		applyMask(payload, f.MaskKey)
	}
	f.Payload = payload
	return f, nil
}

// WriteFrame serializes and writes f. A client MUST mask; a server MUST
// NOT (RFC 6455 §5.1) — callers set Masked/MaskKey accordingly.
func WriteFrame(w io.Writer, f *Frame) error {
	var first byte
	if f.Fin {
		first |= finBit
	}
	first |= byte(f.Opcode) & opMask

	var second byte
	if f.Masked {
		second |= maskBit
	}

	var buf []byte
	n := len(f.Payload)
	switch {
	case n <= 125:
		buf = append(buf, first, second|byte(n))
	case n <= math.MaxUint16:
		buf = append(buf, first, second|126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(n))
		buf = append(buf, ext[:]...)
	default:
		buf = append(buf, first, second|127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		buf = append(buf, ext[:]...)
	}
	if f.Masked {
		buf = append(buf, f.MaskKey[:]...)
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	payload := f.Payload
	if f.Masked {
		masked := make([]byte, len(payload))
		copy(masked, payload)
		applyMask(masked, f.MaskKey)
		payload = masked
	}
	_, err := w.Write(payload)
	return err
}

// applyMask XORs data with the 4-byte masking key, repeating it cyclically
// (RFC 6455 §5.3).
func applyMask(data []byte, key [4]byte) {
	for i := range data {
		data[i] ^= key[i%4]
	}
}

func protoErr(msg string) error {
	return rawerrors.NewWebSocketError("frame", msg, nil)
}
