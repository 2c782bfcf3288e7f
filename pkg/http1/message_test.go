package http1

import (
	"bufio"
	"bytes"
	"io"
	"net/textproto"
	"strings"
	"testing"
)

func TestReadRequestLine(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		method  string
		target  string
		version string
	}{
		{"HTTP/1.1 GET", "GET /index.html HTTP/1.1\r\n", "GET", "/index.html", "HTTP/1.1"},
		{"HTTP/1.0 POST", "POST /submit HTTP/1.0\r\n", "POST", "/submit", "HTTP/1.0"},
		{"HTTP/0.9 simple GET", "GET /\r\n", "GET", "/", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(c.line))
			rl, err := ReadRequestLine(r)
			if err != nil {
				t.Fatalf("ReadRequestLine() error = %v", err)
			}
			if rl.Method != c.method || rl.Target != c.target || rl.Version != c.version {
				t.Errorf("got %+v, want method=%s target=%s version=%s", rl, c.method, c.target, c.version)
			}
		})
	}
}

func TestReadStatusLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("HTTP/1.1 404 Not Found\r\n"))
	sl, err := ReadStatusLine(r)
	if err != nil {
		t.Fatalf("ReadStatusLine() error = %v", err)
	}
	if sl.Version != "HTTP/1.1" || sl.StatusCode != 404 || sl.Reason != "Not Found" {
		t.Errorf("unexpected status line: %+v", sl)
	}
}

func TestReadHeadersFoldsContinuations(t *testing.T) {
	raw := "X-Multi: first\r\n continued\r\nHost: example.com\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	var captured bytes.Buffer
	h, err := ReadHeaders(r, 0, &captured)
	if err != nil {
		t.Fatalf("ReadHeaders() error = %v", err)
	}
	if got := h.Get("X-Multi"); got != "first continued" {
		t.Errorf("expected folded value %q, got %q", "first continued", got)
	}
	if h.Get("Host") != "example.com" {
		t.Errorf("unexpected Host header: %q", h.Get("Host"))
	}
	if captured.String() != raw {
		t.Errorf("raw capture mismatch: got %q", captured.String())
	}
}

func TestReadHeadersRejectsOversizedBlock(t *testing.T) {
	raw := "X-Big: " + strings.Repeat("a", 100) + "\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	if _, err := ReadHeaders(r, 10, nil); err == nil {
		t.Error("expected error for header block exceeding maxBytes")
	}
}

func TestDetermineBodyModeChunkedWinsOverContentLength(t *testing.T) {
	h := textproto.MIMEHeader{}
	h.Set("Transfer-Encoding", "chunked")
	h.Set("Content-Length", "10")
	mode, _, err := DetermineBodyMode(h, true, 200, "GET")
	if err != nil {
		t.Fatalf("DetermineBodyMode() error = %v", err)
	}
	if mode != BodyChunked {
		t.Errorf("expected chunked mode, got %v", mode)
	}
}

func TestDetermineBodyModeNoBodyForHeadAnd204(t *testing.T) {
	h := textproto.MIMEHeader{}
	h.Set("Content-Length", "500")
	mode, _, err := DetermineBodyMode(h, true, 200, "HEAD")
	if err != nil {
		t.Fatalf("DetermineBodyMode() error = %v", err)
	}
	if mode != BodyNone {
		t.Errorf("expected no body for HEAD response, got %v", mode)
	}

	mode, _, err = DetermineBodyMode(textproto.MIMEHeader{}, true, 204, "GET")
	if err != nil {
		t.Fatalf("DetermineBodyMode() error = %v", err)
	}
	if mode != BodyNone {
		t.Errorf("expected no body for 204, got %v", mode)
	}
}

func TestDetermineBodyModeUntilCloseForResponseWithoutFraming(t *testing.T) {
	mode, _, err := DetermineBodyMode(textproto.MIMEHeader{}, true, 200, "GET")
	if err != nil {
		t.Fatalf("DetermineBodyMode() error = %v", err)
	}
	if mode != BodyUntilClose {
		t.Errorf("expected until-close mode, got %v", mode)
	}
}

func TestChunkedReaderDecodesBodyAndTrailers(t *testing.T) {
	raw := "5\r\nhello\r\n6\r\n world\r\n0\r\nX-Trailer: done\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	trailers := textproto.MIMEHeader{}
	cr := NewBodyReader(r, BodyChunked, 0, trailers, nil)

	body, err := io.ReadAll(cr)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(body) != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", string(body))
	}
	if trailers.Get("X-Trailer") != "done" {
		t.Errorf("expected trailer X-Trailer=done, got %q", trailers.Get("X-Trailer"))
	}
}

func TestContentLengthBodyReader(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("hello world extra-data-not-part-of-body"))
	br := NewBodyReader(r, BodyContentLength, 11, nil, nil)
	body, err := io.ReadAll(br)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(body) != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", string(body))
	}
}

func TestWriteRequestLineAndStatusLine(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRequestLine(&buf, "GET", "/", "HTTP/1.1"); err != nil {
		t.Fatalf("WriteRequestLine() error = %v", err)
	}
	if buf.String() != "GET / HTTP/1.1\r\n" {
		t.Errorf("unexpected request line: %q", buf.String())
	}

	buf.Reset()
	if err := WriteStatusLine(&buf, "HTTP/1.1", 200, "OK"); err != nil {
		t.Fatalf("WriteStatusLine() error = %v", err)
	}
	if buf.String() != "HTTP/1.1 200 OK\r\n" {
		t.Errorf("unexpected status line: %q", buf.String())
	}
}
