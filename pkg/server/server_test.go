package server

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/rawproto/httpstack/pkg/constants"
	"github.com/rawproto/httpstack/pkg/hpack"
	"github.com/rawproto/httpstack/pkg/http2frame"
	"github.com/rawproto/httpstack/pkg/websocket"
)

func pipe() (net.Conn, net.Conn) {
	return net.Pipe()
}

func TestServeHTTP1SimpleRequest(t *testing.T) {
	client, serverSide := pipe()
	s := &Server{Handler: HandlerFunc(func(w ResponseWriter, r *Request) {
		if r.Method != "GET" || r.Target != "/hello" {
			t.Errorf("unexpected request: %s %s", r.Method, r.Target)
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(200)
		io.WriteString(w, "hi")
	})}
	go s.handleConn(serverSide)

	client.Write([]byte("GET /hello HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n"))
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	br := bufio.NewReader(client)
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("reading status line: %v", err)
	}
	if !strings.HasPrefix(line, "HTTP/1.1 200") {
		t.Fatalf("unexpected status line: %q", line)
	}
	body, _ := io.ReadAll(br)
	if !strings.Contains(string(body), "hi") {
		t.Fatalf("expected body to contain 'hi', got %q", body)
	}
}

func TestServeHTTP1KeepAliveServesTwoRequests(t *testing.T) {
	client, serverSide := pipe()
	count := 0
	s := &Server{Handler: HandlerFunc(func(w ResponseWriter, r *Request) {
		count++
		w.WriteHeader(200)
		io.WriteString(w, "ok")
	})}
	go s.handleConn(serverSide)

	client.SetDeadline(time.Now().Add(2 * time.Second))
	client.Write([]byte("GET /one HTTP/1.1\r\nHost: x\r\nContent-Length: 0\r\n\r\n"))
	client.Write([]byte("GET /two HTTP/1.1\r\nHost: x\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"))

	br := bufio.NewReader(client)
	for i := 0; i < 2; i++ {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("request %d: reading status line: %v", i, err)
		}
		if !strings.HasPrefix(line, "HTTP/1.1 200") {
			t.Fatalf("request %d: unexpected status line %q", i, line)
		}
		for {
			h, err := br.ReadString('\n')
			if err != nil || h == "\r\n" {
				break
			}
		}
		body := make([]byte, 2)
		io.ReadFull(br, body)
		if string(body) != "ok" {
			t.Fatalf("request %d: unexpected body %q", i, body)
		}
	}
	if count != 2 {
		t.Fatalf("expected handler called twice, got %d", count)
	}
}

func TestWebSocketUpgradeHijack(t *testing.T) {
	client, serverSide := pipe()
	done := make(chan struct{})
	s := &Server{Handler: HandlerFunc(func(w ResponseWriter, r *Request) {
		if !r.IsWebSocketUpgrade() {
			t.Errorf("expected websocket upgrade request")
			return
		}
		conn, err := r.Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("reading message: %v", err)
			return
		}
		conn.WriteMessage(websocket.OpText, msg)
		close(done)
	})}
	go s.handleConn(serverSide)

	client.SetDeadline(time.Now().Add(2 * time.Second))
	client.Write([]byte("GET /ws HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\n\r\n"))

	br := bufio.NewReader(client)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("reading upgrade response: %v", err)
	}
	if !strings.Contains(statusLine, "101") {
		t.Fatalf("expected 101 response, got %q", statusLine)
	}
	for {
		h, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("reading upgrade headers: %v", err)
		}
		if h == "\r\n" {
			break
		}
	}

	wsClient := websocket.NewConn(&pipeReadWriter{r: br, w: client}, true)
	if err := wsClient.WriteMessage(websocket.OpText, []byte("ping")); err != nil {
		t.Fatalf("writing message: %v", err)
	}
	_, reply, err := wsClient.ReadMessage()
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if string(reply) != "ping" {
		t.Fatalf("expected echoed 'ping', got %q", reply)
	}
	<-done
}

type pipeReadWriter struct {
	r io.Reader
	w io.Writer
}

func (p *pipeReadWriter) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeReadWriter) Write(b []byte) (int, error) { return p.w.Write(b) }

func TestServeHTTP2SingleStream(t *testing.T) {
	client, serverSide := pipe()
	s := &Server{Handler: HandlerFunc(func(w ResponseWriter, r *Request) {
		if r.Proto != "HTTP/2" || r.Method != "GET" || r.Target != "/" {
			t.Errorf("unexpected request: %+v", r)
		}
		w.Header().Set("X-Test", "1")
		w.WriteHeader(200)
		io.WriteString(w, "ok")
	})}
	go s.handleConn(serverSide)

	client.SetDeadline(time.Now().Add(2 * time.Second))
	client.Write([]byte(constants.ClientPreface))
	framer := http2frame.NewFramer(client, client)

	// drain the server's opening SETTINGS frame before writing anything back;
	// net.Pipe has no buffering so the server's write would otherwise block
	// forever waiting for a reader.
	if _, err := framer.ReadFrame(); err != nil {
		t.Fatalf("reading opening settings frame: %v", err)
	}

	enc := hpack.NewEncoder(constants.DefaultHpackTableSize)
	var buf bytes.Buffer
	enc.WriteField(&buf, hpack.HeaderField{Name: ":method", Value: "GET"})
	enc.WriteField(&buf, hpack.HeaderField{Name: ":path", Value: "/"})
	enc.WriteField(&buf, hpack.HeaderField{Name: ":scheme", Value: "http"})
	enc.WriteField(&buf, hpack.HeaderField{Name: ":authority", Value: "example.com"})

	if err := framer.WriteFrame(&http2frame.HeadersFrame{
		StreamID: 1, EndStream: true, EndHeaders: true, HeaderBlock: buf.Bytes(),
	}, constants.DefaultMaxFrameSize); err != nil {
		t.Fatalf("writing headers frame: %v", err)
	}

	dec := hpack.NewDecoder(constants.DefaultHpackTableSize)
	var status string
	var body []byte
	for {
		f, err := framer.ReadFrame()
		if err != nil {
			t.Fatalf("reading frame: %v", err)
		}
		switch fr := f.(type) {
		case *http2frame.SettingsFrame:
			// server's opening SETTINGS frame, nothing to ack for this test
		case *http2frame.HeadersFrame:
			fields, err := dec.DecodeFull(fr.HeaderBlock)
			if err != nil {
				t.Fatalf("decoding headers: %v", err)
			}
			for _, field := range fields {
				if field.Name == ":status" {
					status = field.Value
				}
			}
			if fr.EndStream {
				goto done
			}
		case *http2frame.DataFrame:
			body = append(body, fr.Data...)
			if fr.EndStream {
				goto done
			}
		}
	}
done:
	if status != "200" {
		t.Fatalf("expected :status 200, got %q", status)
	}
	if string(body) != "ok" {
		t.Fatalf("expected body 'ok', got %q", body)
	}
}

func TestShouldClose(t *testing.T) {
	cases := []struct {
		version string
		req     textproto.MIMEHeader
		resp    textproto.MIMEHeader
		want    bool
	}{
		{"HTTP/1.1", textproto.MIMEHeader{}, textproto.MIMEHeader{}, false},
		{"HTTP/1.0", textproto.MIMEHeader{}, textproto.MIMEHeader{}, true},
		{"HTTP/1.1", textproto.MIMEHeader{"Connection": {"close"}}, textproto.MIMEHeader{}, true},
		{"HTTP/1.1", textproto.MIMEHeader{}, textproto.MIMEHeader{"Connection": {"close"}}, true},
	}
	for _, c := range cases {
		if got := shouldClose(c.version, c.req, c.resp); got != c.want {
			t.Errorf("shouldClose(%q, %v, %v) = %v, want %v", c.version, c.req, c.resp, got, c.want)
		}
	}
}
