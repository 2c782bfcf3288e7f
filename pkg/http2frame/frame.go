// Package http2frame implements HTTP/2 frame parsing and serialization
// (§4.5): the 9-byte frame header, all ten frame types, CONTINUATION
// coalescing, padding, and priority — written from scratch rather than
// delegating to golang.org/x/net/http2, which is named core scope (see
// DESIGN.md). The interface shape (a Frame sum type, a Framer with
// ReadFrame/WriteFrame) is grounded on the teacher's own
// RawFrameBuilder/ParseFrame byte-level code in pkg/http2/frames.go.
package http2frame

import (
	"encoding/binary"
	"fmt"
	"io"

	rawerrors "github.com/rawproto/httpstack/pkg/errors"
)

// Type is the 8-bit frame type field.
type Type uint8

const (
	TypeData         Type = 0x0
	TypeHeaders      Type = 0x1
	TypePriority     Type = 0x2
	TypeRSTStream    Type = 0x3
	TypeSettings     Type = 0x4
	TypePushPromise  Type = 0x5
	TypePing         Type = 0x6
	TypeGoAway       Type = 0x7
	TypeWindowUpdate Type = 0x8
	TypeContinuation Type = 0x9
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeHeaders:
		return "HEADERS"
	case TypePriority:
		return "PRIORITY"
	case TypeRSTStream:
		return "RST_STREAM"
	case TypeSettings:
		return "SETTINGS"
	case TypePushPromise:
		return "PUSH_PROMISE"
	case TypePing:
		return "PING"
	case TypeGoAway:
		return "GOAWAY"
	case TypeWindowUpdate:
		return "WINDOW_UPDATE"
	case TypeContinuation:
		return "CONTINUATION"
	default:
		return fmt.Sprintf("UNKNOWN(%#x)", uint8(t))
	}
}

// Flags is the 8-bit per-frame flags field; meaning depends on Type.
type Flags uint8

const (
	FlagEndStream  Flags = 0x1 // DATA, HEADERS
	FlagAck        Flags = 0x1 // SETTINGS, PING (same bit, different type)
	FlagEndHeaders Flags = 0x4 // HEADERS, PUSH_PROMISE, CONTINUATION
	FlagPadded     Flags = 0x8 // DATA, HEADERS, PUSH_PROMISE
	FlagPriority   Flags = 0x20
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Header is the fixed 9-byte frame header.
type Header struct {
	Length   uint32 // 24 bits
	Type     Type
	Flags    Flags
	StreamID uint32 // 31 bits, reserved bit cleared
}

const HeaderLen = 9

// SettingID is a SETTINGS parameter identifier.
type SettingID uint16

const (
	SettingHeaderTableSize      SettingID = 0x1
	SettingEnablePush           SettingID = 0x2
	SettingMaxConcurrentStreams SettingID = 0x3
	SettingInitialWindowSize    SettingID = 0x4
	SettingMaxFrameSize         SettingID = 0x5
	SettingMaxHeaderListSize    SettingID = 0x6
)

// Setting is one (id, value) pair within a SETTINGS frame.
type Setting struct {
	ID    SettingID
	Value uint32
}

// PriorityParam is the 5-byte HEADERS/PRIORITY priority field.
type PriorityParam struct {
	StreamDependency uint32
	Exclusive        bool
	Weight           uint8 // wire value + 1 = actual weight 1..256
}

// Frame is the tagged-sum-type interface every concrete frame
// implements, per the design note preferring this over virtual
// inheritance.
type Frame interface {
	Header() Header
}

type DataFrame struct {
	StreamID  uint32
	EndStream bool
	Data      []byte
	PadLength uint8
}

func (f *DataFrame) Header() Header {
	flags := Flags(0)
	if f.EndStream {
		flags |= FlagEndStream
	}
	if f.PadLength > 0 {
		flags |= FlagPadded
	}
	return Header{Type: TypeData, Flags: flags, StreamID: f.StreamID}
}

type HeadersFrame struct {
	StreamID    uint32
	EndStream   bool
	EndHeaders  bool
	HeaderBlock []byte // possibly coalesced from CONTINUATIONs
	Priority    *PriorityParam
	PadLength   uint8
}

func (f *HeadersFrame) Header() Header {
	flags := Flags(0)
	if f.EndStream {
		flags |= FlagEndStream
	}
	if f.EndHeaders {
		flags |= FlagEndHeaders
	}
	if f.Priority != nil {
		flags |= FlagPriority
	}
	if f.PadLength > 0 {
		flags |= FlagPadded
	}
	return Header{Type: TypeHeaders, Flags: flags, StreamID: f.StreamID}
}

type PriorityFrame struct {
	StreamID uint32
	Priority PriorityParam
}

func (f *PriorityFrame) Header() Header {
	return Header{Type: TypePriority, StreamID: f.StreamID}
}

type RSTStreamFrame struct {
	StreamID  uint32
	ErrorCode uint32
}

func (f *RSTStreamFrame) Header() Header {
	return Header{Type: TypeRSTStream, StreamID: f.StreamID}
}

type SettingsFrame struct {
	Ack      bool
	Settings []Setting
}

func (f *SettingsFrame) Header() Header {
	flags := Flags(0)
	if f.Ack {
		flags |= FlagAck
	}
	return Header{Type: TypeSettings, Flags: flags, StreamID: 0}
}

type PushPromiseFrame struct {
	StreamID    uint32
	PromisedID  uint32
	EndHeaders  bool
	HeaderBlock []byte
	PadLength   uint8
}

func (f *PushPromiseFrame) Header() Header {
	flags := Flags(0)
	if f.EndHeaders {
		flags |= FlagEndHeaders
	}
	if f.PadLength > 0 {
		flags |= FlagPadded
	}
	return Header{Type: TypePushPromise, Flags: flags, StreamID: f.StreamID}
}

type PingFrame struct {
	Ack  bool
	Data [8]byte
}

func (f *PingFrame) Header() Header {
	flags := Flags(0)
	if f.Ack {
		flags |= FlagAck
	}
	return Header{Type: TypePing, Flags: flags, StreamID: 0}
}

type GoAwayFrame struct {
	LastStreamID uint32
	ErrorCode    uint32
	DebugData    []byte
}

func (f *GoAwayFrame) Header() Header {
	return Header{Type: TypeGoAway, StreamID: 0}
}

type WindowUpdateFrame struct {
	StreamID  uint32
	Increment uint32
}

func (f *WindowUpdateFrame) Header() Header {
	return Header{Type: TypeWindowUpdate, StreamID: f.StreamID}
}

type ContinuationFrame struct {
	StreamID    uint32
	EndHeaders  bool
	HeaderBlock []byte
}

func (f *ContinuationFrame) Header() Header {
	flags := Flags(0)
	if f.EndHeaders {
		flags |= FlagEndHeaders
	}
	return Header{Type: TypeContinuation, Flags: flags, StreamID: f.StreamID}
}

// UnknownFrame preserves frames of a type this engine does not model, so a
// caller can still observe and ignore them as RFC 7540 requires for
// extension frames at the wire level (outside stream 0, where §7's policy
// treats an unknown critical frame at stream 0 as connection-fatal — that
// check lives in the stream engine, not here).
type UnknownFrame struct {
	Hdr     Header
	Payload []byte
}

func (f *UnknownFrame) Header() Header { return f.Hdr }

func protoErr(op, msg string) error {
	return rawerrors.NewHTTP2Error(op, rawerrors.CodeProtocolError, rawerrors.SeverityConnectionFatal, msg, nil)
}

func frameSizeErr(op, msg string) error {
	return rawerrors.NewHTTP2Error(op, rawerrors.CodeFrameSizeError, rawerrors.SeverityConnectionFatal, msg, nil)
}

// writeHeader appends a 9-byte frame header for a payload of the given
// length.
func writeHeader(w io.Writer, length uint32, typ Type, flags Flags, streamID uint32) error {
	var hdr [HeaderLen]byte
	hdr[0] = byte(length >> 16)
	hdr[1] = byte(length >> 8)
	hdr[2] = byte(length)
	hdr[3] = byte(typ)
	hdr[4] = byte(flags)
	binary.BigEndian.PutUint32(hdr[5:9], streamID&0x7fffffff)
	_, err := w.Write(hdr[:])
	return err
}

// readHeader reads and parses a 9-byte frame header.
func readHeader(r io.Reader) (Header, error) {
	var b [HeaderLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return Header{}, err
	}
	return Header{
		Length:   uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]),
		Type:     Type(b[3]),
		Flags:    Flags(b[4]),
		StreamID: binary.BigEndian.Uint32(b[5:9]) & 0x7fffffff,
	}, nil
}

// stripPadding reads and removes [pad-len][...][padding] framing from a
// payload already known to be PADDED (§4.5 padding rules).
func stripPadding(payload []byte) (data []byte, padLen uint8, err error) {
	if len(payload) == 0 {
		return nil, 0, frameSizeErr("padding", "PADDED flag set on empty payload")
	}
	p := payload[0]
	if int(p) >= len(payload) {
		return nil, 0, protoErr("padding", "pad length >= payload length")
	}
	return payload[1 : len(payload)-int(p)], p, nil
}
