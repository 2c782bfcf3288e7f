package websocket

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

// pipeConn is a minimal io.ReadWriter over two independent buffers, letting
// a test script write bytes the Conn under test will read, and inspect
// bytes the Conn under test wrote.
type pipeConn struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (p *pipeConn) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *pipeConn) Write(b []byte) (int, error) { return p.out.Write(b) }

func TestReadMessageReassemblesFragments(t *testing.T) {
	in := &bytes.Buffer{}
	WriteFrame(in, &Frame{Fin: false, Opcode: OpText, Payload: []byte("hel")})
	WriteFrame(in, &Frame{Fin: false, Opcode: OpContinuation, Payload: []byte("lo ")})
	WriteFrame(in, &Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("world")})

	c := NewConn(&pipeConn{in: in, out: &bytes.Buffer{}}, false)
	op, payload, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if op != OpText || string(payload) != "hello world" {
		t.Errorf("expected reassembled %q, got op=%v payload=%q", "hello world", op, payload)
	}
}

func TestReadMessageAutoPongsPing(t *testing.T) {
	in := &bytes.Buffer{}
	WriteFrame(in, &Frame{Fin: true, Opcode: OpPing, Payload: []byte("ping-data")})
	WriteFrame(in, &Frame{Fin: true, Opcode: OpText, Payload: []byte("after ping")})

	out := &bytes.Buffer{}
	c := NewConn(&pipeConn{in: in, out: out}, false)
	op, payload, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if op != OpText || string(payload) != "after ping" {
		t.Fatalf("expected text message after auto-pong, got op=%v payload=%q", op, payload)
	}

	pong, err := ReadFrame(out, 0)
	if err != nil {
		t.Fatalf("ReadFrame(pong) error = %v", err)
	}
	if pong.Opcode != OpPong || string(pong.Payload) != "ping-data" {
		t.Errorf("expected automatic pong echoing ping payload, got %+v", pong)
	}
}

func TestHandleIncomingCloseDefaultsStatusTo1000(t *testing.T) {
	in := &bytes.Buffer{}
	WriteFrame(in, &Frame{Fin: true, Opcode: OpClose, Payload: nil})

	out := &bytes.Buffer{}
	c := NewConn(&pipeConn{in: in, out: out}, false)
	_, _, err := c.ReadMessage()
	if err != io.EOF {
		t.Fatalf("expected io.EOF after close, got %v", err)
	}

	echoed, err := ReadFrame(out, 0)
	if err != nil {
		t.Fatalf("ReadFrame(close echo) error = %v", err)
	}
	if echoed.Opcode != OpClose {
		t.Fatalf("expected Close echo, got opcode %v", echoed.Opcode)
	}
	status := binary.BigEndian.Uint16(echoed.Payload[0:2])
	if status != 1000 {
		t.Errorf("expected default close status 1000, got %d", status)
	}
}

func TestClosePreservesProvidedStatus(t *testing.T) {
	out := &bytes.Buffer{}
	c := NewConn(&pipeConn{in: &bytes.Buffer{}, out: out}, true)
	if err := c.Close(1001, "going away"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	f, err := ReadFrame(out, 0)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if f.Opcode != OpClose || !f.Masked {
		t.Fatalf("expected masked Close frame from client, got %+v", f)
	}
	// ReadFrame already unmasks the payload before returning it.
	status := binary.BigEndian.Uint16(f.Payload[0:2])
	if status != 1001 {
		t.Errorf("expected status 1001, got %d", status)
	}
}
