package http2frame

import (
	"bytes"
	"testing"
)

func TestWriteHeaderReadHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := writeHeader(&buf, 13, TypeData, FlagEndStream, 5); err != nil {
		t.Fatalf("writeHeader() error = %v", err)
	}
	hdr, err := readHeader(&buf)
	if err != nil {
		t.Fatalf("readHeader() error = %v", err)
	}
	if hdr.Length != 13 || hdr.Type != TypeData || hdr.Flags != FlagEndStream || hdr.StreamID != 5 {
		t.Errorf("unexpected header: %+v", hdr)
	}
}

func TestFramerRoundTripDataFrame(t *testing.T) {
	var conn bytes.Buffer
	fr := NewFramer(&conn, &conn)

	in := &DataFrame{StreamID: 1, EndStream: true, Data: []byte("hello")}
	if err := fr.WriteFrame(in, 16384); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	out, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	got, ok := out.(*DataFrame)
	if !ok {
		t.Fatalf("expected *DataFrame, got %T", out)
	}
	if got.StreamID != 1 || !got.EndStream || !bytes.Equal(got.Data, in.Data) {
		t.Errorf("unexpected frame: %+v", got)
	}
}

func TestFramerRoundTripPaddedData(t *testing.T) {
	var conn bytes.Buffer
	fr := NewFramer(&conn, &conn)

	in := &DataFrame{StreamID: 3, Data: []byte("padded payload"), PadLength: 10}
	if err := fr.WriteFrame(in, 16384); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	out, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	got := out.(*DataFrame)
	if got.PadLength != 10 || !bytes.Equal(got.Data, in.Data) {
		t.Errorf("unexpected frame: %+v", got)
	}
}

func TestFramerRoundTripSettings(t *testing.T) {
	var conn bytes.Buffer
	fr := NewFramer(&conn, &conn)

	in := &SettingsFrame{Settings: []Setting{
		{ID: SettingMaxConcurrentStreams, Value: 100},
		{ID: SettingInitialWindowSize, Value: 65535},
	}}
	if err := fr.WriteFrame(in, 16384); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	out, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	got := out.(*SettingsFrame)
	if got.Ack || len(got.Settings) != 2 {
		t.Fatalf("unexpected settings frame: %+v", got)
	}
	if got.Settings[0] != in.Settings[0] || got.Settings[1] != in.Settings[1] {
		t.Errorf("settings mismatch: %+v", got.Settings)
	}
}

func TestFramerRoundTripSettingsAck(t *testing.T) {
	var conn bytes.Buffer
	fr := NewFramer(&conn, &conn)
	if err := fr.WriteFrame(&SettingsFrame{Ack: true}, 16384); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	out, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if !out.(*SettingsFrame).Ack {
		t.Error("expected Ack settings frame")
	}
}

func TestFramerRoundTripPing(t *testing.T) {
	var conn bytes.Buffer
	fr := NewFramer(&conn, &conn)
	in := &PingFrame{Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}
	if err := fr.WriteFrame(in, 16384); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	out, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	got := out.(*PingFrame)
	if got.Ack || got.Data != in.Data {
		t.Errorf("unexpected ping frame: %+v", got)
	}
}

func TestFramerRoundTripGoAway(t *testing.T) {
	var conn bytes.Buffer
	fr := NewFramer(&conn, &conn)
	in := &GoAwayFrame{LastStreamID: 7, ErrorCode: 1, DebugData: []byte("bye")}
	if err := fr.WriteFrame(in, 16384); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	out, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	got := out.(*GoAwayFrame)
	if got.LastStreamID != 7 || got.ErrorCode != 1 || !bytes.Equal(got.DebugData, in.DebugData) {
		t.Errorf("unexpected goaway frame: %+v", got)
	}
}

func TestFramerRoundTripWindowUpdate(t *testing.T) {
	var conn bytes.Buffer
	fr := NewFramer(&conn, &conn)
	in := &WindowUpdateFrame{StreamID: 3, Increment: 1024}
	if err := fr.WriteFrame(in, 16384); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	out, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	got := out.(*WindowUpdateFrame)
	if got.StreamID != 3 || got.Increment != 1024 {
		t.Errorf("unexpected window update frame: %+v", got)
	}
}

func TestFramerRoundTripPriority(t *testing.T) {
	var conn bytes.Buffer
	fr := NewFramer(&conn, &conn)
	in := &PriorityFrame{StreamID: 5, Priority: PriorityParam{StreamDependency: 1, Exclusive: true, Weight: 15}}
	if err := fr.WriteFrame(in, 16384); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	out, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	got := out.(*PriorityFrame)
	if got.StreamID != 5 || got.Priority != in.Priority {
		t.Errorf("unexpected priority frame: %+v", got)
	}
}

func TestFramerRoundTripRSTStream(t *testing.T) {
	var conn bytes.Buffer
	fr := NewFramer(&conn, &conn)
	in := &RSTStreamFrame{StreamID: 9, ErrorCode: 8}
	if err := fr.WriteFrame(in, 16384); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	out, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	got := out.(*RSTStreamFrame)
	if got.StreamID != 9 || got.ErrorCode != 8 {
		t.Errorf("unexpected rst_stream frame: %+v", got)
	}
}

func TestFramerHeadersWithContinuation(t *testing.T) {
	var conn bytes.Buffer
	fr := NewFramer(&conn, &conn)

	block := bytes.Repeat([]byte{0x41}, 100)
	in := &HeadersFrame{StreamID: 1, EndStream: true, EndHeaders: true, HeaderBlock: block}
	if err := fr.WriteFrame(in, 30); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	out, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	got, ok := out.(*HeadersFrame)
	if !ok {
		t.Fatalf("expected *HeadersFrame, got %T", out)
	}
	if !got.EndHeaders || !got.EndStream {
		t.Error("expected coalesced frame to report END_HEADERS and END_STREAM")
	}
	if !bytes.Equal(got.HeaderBlock, block) {
		t.Errorf("header block mismatch after coalescing: got %d bytes, want %d", len(got.HeaderBlock), len(block))
	}
}

func TestFramerHeadersWithPriority(t *testing.T) {
	var conn bytes.Buffer
	fr := NewFramer(&conn, &conn)

	in := &HeadersFrame{
		StreamID:    3,
		EndHeaders:  true,
		HeaderBlock: []byte{0x82, 0x84},
		Priority:    &PriorityParam{StreamDependency: 0, Weight: 20},
	}
	if err := fr.WriteFrame(in, 16384); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	out, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	got := out.(*HeadersFrame)
	if got.Priority == nil || *got.Priority != *in.Priority {
		t.Errorf("priority mismatch: %+v", got.Priority)
	}
	if !bytes.Equal(got.HeaderBlock, in.HeaderBlock) {
		t.Errorf("header block mismatch: %v", got.HeaderBlock)
	}
}

func TestFramerRejectsInterleavedFrameDuringHeaderBlock(t *testing.T) {
	var conn bytes.Buffer
	// HEADERS without END_HEADERS, followed by a PING instead of CONTINUATION.
	if err := writeHeader(&conn, 2, TypeHeaders, 0, 1); err != nil {
		t.Fatal(err)
	}
	conn.Write([]byte{0x82, 0x84})
	if err := writeHeader(&conn, 8, TypePing, 0, 0); err != nil {
		t.Fatal(err)
	}
	conn.Write(make([]byte, 8))

	// ReadFrame coalesces internally until END_HEADERS or an error, so the
	// interleaved PING surfaces on this single call.
	fr := NewFramer(&conn, &conn)
	if _, err := fr.ReadFrame(); err == nil {
		t.Error("expected protocol error for frame interleaved during header block")
	}
}

func TestStripPaddingRejectsPadLenExceedingPayload(t *testing.T) {
	_, _, err := stripPadding([]byte{5, 1, 2})
	if err == nil {
		t.Error("expected error when pad length exceeds remaining payload")
	}
}

func TestStripPaddingExactBoundary(t *testing.T) {
	// pad length equal to remaining payload length leaves zero data bytes,
	// which is legal.
	payload := []byte{2, 0xAA, 0xBB}
	data, padLen, err := stripPadding(payload)
	if err != nil {
		t.Fatalf("stripPadding() error = %v", err)
	}
	if padLen != 2 || len(data) != 0 {
		t.Errorf("expected zero data bytes with padLen 2, got data=%v padLen=%d", data, padLen)
	}
}
