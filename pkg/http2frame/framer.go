package http2frame

import (
	"encoding/binary"
	"io"

	rawerrors "github.com/rawproto/httpstack/pkg/errors"
)

// Framer reads and writes frames on a single connection's byte stream.
// Mirrors the teacher's FrameHandler(rw io.ReadWriter) constructor shape.
type Framer struct {
	r io.Reader
	w io.Writer

	// MaxReadFrameSize bounds an incoming frame's length field; frames
	// that announce more are a frame-size connection error (§4.5).
	MaxReadFrameSize uint32

	// headerContinuing is non-nil while a HEADERS/PUSH_PROMISE block is
	// awaiting its CONTINUATIONs (invariant 4: at most one in flight).
	headerContinuing *pendingHeaderBlock
}

type pendingHeaderBlock struct {
	streamID  uint32
	data      []byte
	isPush    bool
	promised  uint32
	endStream bool
}

// NewFramer creates a Framer over rw, defaulting MaxReadFrameSize to the
// §6 settings default.
func NewFramer(r io.Reader, w io.Writer) *Framer {
	return &Framer{r: r, w: w, MaxReadFrameSize: 16384}
}

// ReadFrame reads one frame, transparently coalescing CONTINUATIONs into
// the HEADERS/PUSH_PROMISE frame they extend (§4.5: "the reader
// concatenates payloads until END_HEADERS is observed").
func (fr *Framer) ReadFrame() (Frame, error) {
	for {
		hdr, err := readHeader(fr.r)
		if err != nil {
			return nil, err
		}
		if hdr.Length > fr.MaxReadFrameSize {
			return nil, frameSizeErr("read", "frame length exceeds MAX_FRAME_SIZE")
		}
		payload := make([]byte, hdr.Length)
		if _, err := io.ReadFull(fr.r, payload); err != nil {
			return nil, err
		}

		if fr.headerContinuing != nil {
			if hdr.Type != TypeContinuation || hdr.StreamID != fr.headerContinuing.streamID {
				return nil, protoErr("continuation", "frame interleaved during header block")
			}
			fr.headerContinuing.data = append(fr.headerContinuing.data, payload...)
			if !Flags(hdr.Flags).Has(FlagEndHeaders) {
				continue
			}
			pend := fr.headerContinuing
			fr.headerContinuing = nil
			if pend.isPush {
				return &PushPromiseFrame{StreamID: pend.streamID, PromisedID: pend.promised, EndHeaders: true, HeaderBlock: pend.data}, nil
			}
			return &HeadersFrame{StreamID: pend.streamID, EndStream: pend.endStream, EndHeaders: true, HeaderBlock: pend.data}, nil
		}

		f, err := parseFrame(hdr, payload)
		if err != nil {
			return nil, err
		}

		switch ff := f.(type) {
		case *HeadersFrame:
			if !ff.EndHeaders {
				fr.headerContinuing = &pendingHeaderBlock{streamID: ff.StreamID, data: ff.HeaderBlock, endStream: ff.EndStream}
				continue
			}
			return ff, nil
		case *PushPromiseFrame:
			if !ff.EndHeaders {
				fr.headerContinuing = &pendingHeaderBlock{streamID: ff.StreamID, data: ff.HeaderBlock, isPush: true, promised: ff.PromisedID}
				continue
			}
			return ff, nil
		case *ContinuationFrame:
			return nil, protoErr("continuation", "CONTINUATION without a preceding HEADERS/PUSH_PROMISE")
		default:
			return f, nil
		}
	}
}

func parseFrame(hdr Header, payload []byte) (Frame, error) {
	switch hdr.Type {
	case TypeData:
		return parseDataFrame(hdr, payload)
	case TypeHeaders:
		return parseHeadersFrame(hdr, payload)
	case TypePriority:
		return parsePriorityFrame(hdr, payload)
	case TypeRSTStream:
		return parseRSTStreamFrame(hdr, payload)
	case TypeSettings:
		return parseSettingsFrame(hdr, payload)
	case TypePushPromise:
		return parsePushPromiseFrame(hdr, payload)
	case TypePing:
		return parsePingFrame(hdr, payload)
	case TypeGoAway:
		return parseGoAwayFrame(hdr, payload)
	case TypeWindowUpdate:
		return parseWindowUpdateFrame(hdr, payload)
	case TypeContinuation:
		return &ContinuationFrame{StreamID: hdr.StreamID, EndHeaders: Flags(hdr.Flags).Has(FlagEndHeaders), HeaderBlock: payload}, nil
	default:
		return &UnknownFrame{Hdr: hdr, Payload: payload}, nil
	}
}

func parseDataFrame(hdr Header, payload []byte) (Frame, error) {
	if hdr.StreamID == 0 {
		return nil, protoErr("data", "DATA on stream 0")
	}
	f := &DataFrame{StreamID: hdr.StreamID, EndStream: Flags(hdr.Flags).Has(FlagEndStream)}
	if Flags(hdr.Flags).Has(FlagPadded) {
		data, pad, err := stripPadding(payload)
		if err != nil {
			return nil, err
		}
		f.Data, f.PadLength = data, pad
	} else {
		f.Data = payload
	}
	return f, nil
}

func parseHeadersFrame(hdr Header, payload []byte) (Frame, error) {
	if hdr.StreamID == 0 {
		return nil, protoErr("headers", "HEADERS on stream 0")
	}
	flags := Flags(hdr.Flags)
	body := payload
	var padLen uint8
	if flags.Has(FlagPadded) {
		d, p, err := stripPadding(body)
		if err != nil {
			return nil, err
		}
		body, padLen = d, p
	}
	var prio *PriorityParam
	if flags.Has(FlagPriority) {
		if len(body) < 5 {
			return nil, frameSizeErr("headers", "priority fields truncated")
		}
		raw := binary.BigEndian.Uint32(body[0:4])
		p := &PriorityParam{StreamDependency: raw & 0x7fffffff, Exclusive: raw&0x80000000 != 0, Weight: body[4]}
		if p.StreamDependency == hdr.StreamID {
			return nil, protoErr("headers", "stream depends on itself")
		}
		prio = p
		body = body[5:]
	}
	return &HeadersFrame{
		StreamID:    hdr.StreamID,
		EndStream:   flags.Has(FlagEndStream),
		EndHeaders:  flags.Has(FlagEndHeaders),
		HeaderBlock: body,
		Priority:    prio,
		PadLength:   padLen,
	}, nil
}

func parsePriorityFrame(hdr Header, payload []byte) (Frame, error) {
	if hdr.StreamID == 0 {
		return nil, protoErr("priority", "PRIORITY on stream 0")
	}
	if len(payload) != 5 {
		return nil, frameSizeErr("priority", "PRIORITY payload must be 5 bytes")
	}
	raw := binary.BigEndian.Uint32(payload[0:4])
	p := PriorityParam{StreamDependency: raw & 0x7fffffff, Exclusive: raw&0x80000000 != 0, Weight: payload[4]}
	if p.StreamDependency == hdr.StreamID {
		return nil, protoErr("priority", "stream depends on itself")
	}
	return &PriorityFrame{StreamID: hdr.StreamID, Priority: p}, nil
}

func parseRSTStreamFrame(hdr Header, payload []byte) (Frame, error) {
	if hdr.StreamID == 0 {
		return nil, protoErr("rst_stream", "RST_STREAM on stream 0")
	}
	if len(payload) != 4 {
		return nil, frameSizeErr("rst_stream", "RST_STREAM payload must be 4 bytes")
	}
	return &RSTStreamFrame{StreamID: hdr.StreamID, ErrorCode: binary.BigEndian.Uint32(payload)}, nil
}

func parseSettingsFrame(hdr Header, payload []byte) (Frame, error) {
	if hdr.StreamID != 0 {
		return nil, protoErr("settings", "SETTINGS on stream != 0")
	}
	ack := Flags(hdr.Flags).Has(FlagAck)
	if ack {
		if len(payload) != 0 {
			return nil, frameSizeErr("settings", "SETTINGS ACK must be empty")
		}
		return &SettingsFrame{Ack: true}, nil
	}
	if len(payload)%6 != 0 {
		return nil, frameSizeErr("settings", "SETTINGS payload must be a multiple of 6 bytes")
	}
	var settings []Setting
	for i := 0; i < len(payload); i += 6 {
		settings = append(settings, Setting{
			ID:    SettingID(binary.BigEndian.Uint16(payload[i : i+2])),
			Value: binary.BigEndian.Uint32(payload[i+2 : i+6]),
		})
	}
	return &SettingsFrame{Settings: settings}, nil
}

func parsePushPromiseFrame(hdr Header, payload []byte) (Frame, error) {
	if hdr.StreamID == 0 {
		return nil, protoErr("push_promise", "PUSH_PROMISE on stream 0")
	}
	flags := Flags(hdr.Flags)
	body := payload
	var padLen uint8
	if flags.Has(FlagPadded) {
		d, p, err := stripPadding(body)
		if err != nil {
			return nil, err
		}
		body, padLen = d, p
	}
	if len(body) < 4 {
		return nil, frameSizeErr("push_promise", "promised stream id truncated")
	}
	promised := binary.BigEndian.Uint32(body[0:4]) & 0x7fffffff
	return &PushPromiseFrame{
		StreamID:    hdr.StreamID,
		PromisedID:  promised,
		EndHeaders:  flags.Has(FlagEndHeaders),
		HeaderBlock: body[4:],
		PadLength:   padLen,
	}, nil
}

func parsePingFrame(hdr Header, payload []byte) (Frame, error) {
	if hdr.StreamID != 0 {
		return nil, protoErr("ping", "PING on stream != 0")
	}
	if len(payload) != 8 {
		return nil, frameSizeErr("ping", "PING payload must be 8 bytes")
	}
	var data [8]byte
	copy(data[:], payload)
	return &PingFrame{Ack: Flags(hdr.Flags).Has(FlagAck), Data: data}, nil
}

func parseGoAwayFrame(hdr Header, payload []byte) (Frame, error) {
	if hdr.StreamID != 0 {
		return nil, protoErr("goaway", "GOAWAY on stream != 0")
	}
	if len(payload) < 8 {
		return nil, frameSizeErr("goaway", "GOAWAY payload truncated")
	}
	return &GoAwayFrame{
		LastStreamID: binary.BigEndian.Uint32(payload[0:4]) & 0x7fffffff,
		ErrorCode:    binary.BigEndian.Uint32(payload[4:8]),
		DebugData:    payload[8:],
	}, nil
}

func parseWindowUpdateFrame(hdr Header, payload []byte) (Frame, error) {
	if len(payload) != 4 {
		return nil, frameSizeErr("window_update", "WINDOW_UPDATE payload must be 4 bytes")
	}
	inc := binary.BigEndian.Uint32(payload) & 0x7fffffff
	if inc == 0 {
		return nil, protoErr("window_update", "increment must be positive")
	}
	return &WindowUpdateFrame{StreamID: hdr.StreamID, Increment: inc}, nil
}

// WriteFrame serializes and writes f. HEADERS/PUSH_PROMISE whose
// HeaderBlock exceeds maxFrameSize are split into CONTINUATIONs per §4.5,
// END_HEADERS set only on the last one.
func (fr *Framer) WriteFrame(f Frame, maxFrameSize uint32) error {
	switch v := f.(type) {
	case *DataFrame:
		return fr.writeDataFrame(v, maxFrameSize)
	case *HeadersFrame:
		return fr.writeHeaderBlock(v.StreamID, v.EndStream, v.EndHeaders, v.Priority, v.HeaderBlock, maxFrameSize)
	case *PriorityFrame:
		return fr.writePriorityFrame(v)
	case *RSTStreamFrame:
		return fr.writeSimple(TypeRSTStream, 0, v.StreamID, be32(v.ErrorCode))
	case *SettingsFrame:
		return fr.writeSettingsFrame(v)
	case *PushPromiseFrame:
		return fr.writePushPromise(v, maxFrameSize)
	case *PingFrame:
		flags := Flags(0)
		if v.Ack {
			flags = FlagAck
		}
		return fr.writeSimple(TypePing, flags, 0, v.Data[:])
	case *GoAwayFrame:
		payload := append(append(be32(v.LastStreamID&0x7fffffff), be32(v.ErrorCode)...), v.DebugData...)
		return fr.writeSimple(TypeGoAway, 0, 0, payload)
	case *WindowUpdateFrame:
		return fr.writeSimple(TypeWindowUpdate, 0, v.StreamID, be32(v.Increment&0x7fffffff))
	default:
		return rawerrors.NewHTTP2Error("write", rawerrors.CodeInternalError, rawerrors.SeverityConnectionFatal, "unsupported frame type for write", nil)
	}
}

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func (fr *Framer) writeSimple(typ Type, flags Flags, streamID uint32, payload []byte) error {
	if err := writeHeader(fr.w, uint32(len(payload)), typ, flags, streamID); err != nil {
		return err
	}
	_, err := fr.w.Write(payload)
	return err
}

func (fr *Framer) writeDataFrame(f *DataFrame, maxFrameSize uint32) error {
	flags := Flags(0)
	if f.EndStream {
		flags |= FlagEndStream
	}
	payload := f.Data
	if f.PadLength > 0 {
		flags |= FlagPadded
		payload = buildPadded(f.PadLength, f.Data)
	}
	if uint32(len(payload)) > maxFrameSize {
		return frameSizeErr("write", "DATA payload exceeds MAX_FRAME_SIZE; caller must chunk before calling WriteFrame")
	}
	return fr.writeSimple(TypeData, flags, f.StreamID, payload)
}

func buildPadded(padLen uint8, data []byte) []byte {
	out := make([]byte, 0, 1+len(data)+int(padLen))
	out = append(out, padLen)
	out = append(out, data...)
	out = append(out, make([]byte, padLen)...)
	return out
}

func (fr *Framer) writePriorityFrame(f *PriorityFrame) error {
	raw := f.Priority.StreamDependency & 0x7fffffff
	if f.Priority.Exclusive {
		raw |= 0x80000000
	}
	payload := append(be32(raw), f.Priority.Weight)
	return fr.writeSimple(TypePriority, 0, f.StreamID, payload)
}

func (fr *Framer) writeSettingsFrame(f *SettingsFrame) error {
	if f.Ack {
		return fr.writeSimple(TypeSettings, FlagAck, 0, nil)
	}
	payload := make([]byte, 0, len(f.Settings)*6)
	for _, s := range f.Settings {
		b := make([]byte, 6)
		binary.BigEndian.PutUint16(b[0:2], uint16(s.ID))
		binary.BigEndian.PutUint32(b[2:6], s.Value)
		payload = append(payload, b...)
	}
	return fr.writeSimple(TypeSettings, 0, 0, payload)
}

func (fr *Framer) writePushPromise(f *PushPromiseFrame, maxFrameSize uint32) error {
	header := be32(f.PromisedID & 0x7fffffff)
	return fr.writeHeaderBlockWithPrefix(f.StreamID, false, f.EndHeaders, header, f.HeaderBlock, maxFrameSize, TypePushPromise)
}

// writeHeaderBlock writes a HEADERS frame, splitting into CONTINUATIONs
// when the block is larger than maxFrameSize.
func (fr *Framer) writeHeaderBlock(streamID uint32, endStream, endHeaders bool, prio *PriorityParam, block []byte, maxFrameSize uint32) error {
	var prefix []byte
	flags := Flags(0)
	if endStream {
		flags |= FlagEndStream
	}
	if prio != nil {
		flags |= FlagPriority
		raw := prio.StreamDependency & 0x7fffffff
		if prio.Exclusive {
			raw |= 0x80000000
		}
		prefix = append(be32(raw), prio.Weight)
	}
	return fr.writeHeaderFrames(streamID, flags, endHeaders, prefix, block, maxFrameSize, TypeHeaders)
}

func (fr *Framer) writeHeaderBlockWithPrefix(streamID uint32, endStream, endHeaders bool, prefix []byte, block []byte, maxFrameSize uint32, typ Type) error {
	flags := Flags(0)
	if endStream {
		flags |= FlagEndStream
	}
	return fr.writeHeaderFrames(streamID, flags, endHeaders, prefix, block, maxFrameSize, typ)
}

func (fr *Framer) writeHeaderFrames(streamID uint32, flags Flags, endHeaders bool, prefix, block []byte, maxFrameSize uint32, typ Type) error {
	first := prefix
	remaining := block
	budget := int(maxFrameSize) - len(prefix)
	if budget < 0 {
		budget = 0
	}
	chunk := remaining
	more := false
	if len(chunk) > budget {
		chunk = remaining[:budget]
		remaining = remaining[budget:]
		more = true
	} else {
		remaining = nil
	}
	firstFlags := flags
	if endHeaders && !more {
		firstFlags |= FlagEndHeaders
	}
	payload := append(append([]byte{}, first...), chunk...)
	if err := writeHeader(fr.w, uint32(len(payload)), typ, firstFlags, streamID); err != nil {
		return err
	}
	if _, err := fr.w.Write(payload); err != nil {
		return err
	}
	for len(remaining) > 0 {
		n := len(remaining)
		last := true
		if n > int(maxFrameSize) {
			n = int(maxFrameSize)
			last = false
		}
		cFlags := Flags(0)
		if endHeaders && last {
			cFlags |= FlagEndHeaders
		}
		if err := fr.writeSimple(TypeContinuation, cFlags, streamID, remaining[:n]); err != nil {
			return err
		}
		remaining = remaining[n:]
	}
	return nil
}
