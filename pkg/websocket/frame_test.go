package websocket

import (
	"bytes"
	"encoding/binary"
	"net/textproto"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := &Frame{Fin: true, Opcode: OpText, Payload: []byte("hello")}
	if err := WriteFrame(&buf, in); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	out, err := ReadFrame(&buf, 0)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if out.Opcode != OpText || string(out.Payload) != "hello" || !out.Fin {
		t.Errorf("unexpected frame: %+v", out)
	}
}

func TestWriteReadFrameMasked(t *testing.T) {
	var buf bytes.Buffer
	in := &Frame{Fin: true, Opcode: OpBinary, Masked: true, MaskKey: [4]byte{1, 2, 3, 4}, Payload: []byte("binary payload")}
	if err := WriteFrame(&buf, in); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	out, err := ReadFrame(&buf, 0)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Errorf("expected unmasked payload %q, got %q", in.Payload, out.Payload)
	}
}

func TestWriteReadFrameLargePayload(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte{0x42}, 70000)
	in := &Frame{Fin: true, Opcode: OpBinary, Payload: payload}
	if err := WriteFrame(&buf, in); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	out, err := ReadFrame(&buf, 0)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Errorf("payload mismatch for 64-bit extended length")
	}
}

func TestReadFrameRejectsOversizedControlFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(finBit | byte(OpPing))
	buf.WriteByte(126)
	var ext [2]byte
	binary.BigEndian.PutUint16(ext[:], 200)
	buf.Write(ext[:])
	buf.Write(make([]byte, 200))
	if _, err := ReadFrame(&buf, 0); err == nil {
		t.Error("expected error for control frame payload > 125 bytes")
	}
}

func TestReadFrameRejectsFragmentedControlFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(OpPing)) // FIN not set
	buf.WriteByte(0)
	if _, err := ReadFrame(&buf, 0); err == nil {
		t.Error("expected error for fragmented control frame")
	}
}

func TestAcceptKeyMatchesRFCExample(t *testing.T) {
	// RFC 6455 §1.3 worked example.
	got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Errorf("AcceptKey() = %q, want %q", got, want)
	}
}

func TestValidateServerAccept(t *testing.T) {
	key := "dGhlIHNhbXBsZSBub25jZQ=="
	if !ValidateServerAccept(key, AcceptKey(key)) {
		t.Error("expected matching accept key to validate")
	}
	if ValidateServerAccept(key, "wrong") {
		t.Error("expected mismatched accept key to fail validation")
	}
}

func TestIsUpgradeRequest(t *testing.T) {
	h := textproto.MIMEHeader{}
	h.Set("Connection", "keep-alive, Upgrade")
	h.Set("Upgrade", "websocket")
	if !IsUpgradeRequest(h) {
		t.Error("expected upgrade request to be recognized")
	}

	h2 := textproto.MIMEHeader{}
	h2.Set("Connection", "keep-alive")
	if IsUpgradeRequest(h2) {
		t.Error("expected non-upgrade request to be rejected")
	}
}
