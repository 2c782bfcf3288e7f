// Package http1 implements the HTTP/1.0 and HTTP/1.1 request/response line
// parser, header folding, and body framing (§4.3): chunked encoding,
// Content-Length, and EOF-delimited bodies, including the HTTP/0.9
// promotion edge case. Generalized from the teacher's client-only
// pkg/client/client.go reading code into a bidirectional codec usable by
// both client and server.
package http1

import (
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/rawproto/httpstack/pkg/constants"
	rawerrors "github.com/rawproto/httpstack/pkg/errors"
)

// RequestLine is the parsed first line of an HTTP request.
type RequestLine struct {
	Method  string
	Target  string
	Version string // empty for HTTP/0.9
}

// StatusLine is the parsed first line of an HTTP response.
type StatusLine struct {
	Version    string
	StatusCode int
	Reason     string
}

// WriteRequestLine writes "METHOD target VERSION\r\n" to w.
func WriteRequestLine(w io.Writer, method, target, version string) error {
	_, err := fmt.Fprintf(w, "%s %s %s\r\n", method, target, version)
	return err
}

// WriteStatusLine writes "VERSION code reason\r\n" to w.
func WriteStatusLine(w io.Writer, version string, code int, reason string) error {
	_, err := fmt.Fprintf(w, "%s %d %s\r\n", version, code, reason)
	return err
}

// ReadLine reads one CRLF- or LF-terminated line, trimming the terminator.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) >= 2 && line[len(line)-2:] == "\r\n" {
		return line[:len(line)-2], nil
	}
	return strings.TrimRight(line, "\n"), nil
}

// ReadRequestLine parses a request line. A line with only two
// space-separated tokens (no version) is HTTP/0.9: Version is left empty
// and the caller must not expect a header block or body framing to follow.
func ReadRequestLine(r *bufio.Reader) (RequestLine, error) {
	line, err := ReadLine(r)
	if err != nil {
		return RequestLine{}, rawerrors.NewHTTP1Error("read_request_line", "failed reading request line", err)
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return RequestLine{}, rawerrors.NewHTTP1Error("read_request_line", "malformed request line", nil)
	}
	rl := RequestLine{Method: parts[0], Target: parts[1]}
	if len(parts) == 3 {
		rl.Version = parts[2]
	}
	return rl, nil
}

// ReadStatusLine parses a response status line.
func ReadStatusLine(r *bufio.Reader) (StatusLine, error) {
	line, err := ReadLine(r)
	if err != nil {
		return StatusLine{}, rawerrors.NewHTTP1Error("read_status_line", "failed reading status line", err)
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return StatusLine{}, rawerrors.NewHTTP1Error("read_status_line", "malformed status line", nil)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return StatusLine{}, rawerrors.NewHTTP1Error("read_status_line", "invalid status code", err)
	}
	sl := StatusLine{Version: parts[0], StatusCode: code}
	if len(parts) == 3 {
		sl.Reason = parts[2]
	}
	return sl, nil
}

// ReadHeaders reads a CRLF-terminated header block up to maxBytes, folding
// obsolete line-folded continuations (RFC 7230 §3.2.4) onto the previous
// header's value. raw, if non-nil, receives every byte consumed including
// the terminating blank line.
func ReadHeaders(r *bufio.Reader, maxBytes int, raw io.Writer) (textproto.MIMEHeader, error) {
	headers := make(textproto.MIMEHeader)
	total := 0
	var lastKey string

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, rawerrors.NewHTTP1Error("read_headers", "failed reading headers", err)
		}
		total += len(line)
		if maxBytes > 0 && total > maxBytes {
			return nil, rawerrors.NewHTTP1Error("read_headers", "header block exceeds maximum size", nil)
		}
		if raw != nil {
			raw.Write([]byte(line))
		}
		if line == "\r\n" || line == "\n" {
			break
		}
		trimmed := strings.TrimRight(line, "\r\n")

		if strings.HasPrefix(trimmed, " ") || strings.HasPrefix(trimmed, "\t") {
			if lastKey == "" {
				continue
			}
			vals := headers[lastKey]
			if len(vals) > 0 {
				vals[len(vals)-1] = vals[len(vals)-1] + " " + strings.TrimSpace(trimmed)
			}
			continue
		}

		parts := strings.SplitN(trimmed, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		headers.Add(key, value)
		lastKey = key
	}
	return headers, nil
}

// BodyMode selects which body-framing rule applies (§4.3).
type BodyMode int

const (
	BodyNone BodyMode = iota
	BodyChunked
	BodyContentLength
	BodyUntilClose
)

// DetermineBodyMode applies RFC 9110 §6.4.1 and RFC 7230 §3.3.3 precedence:
// Transfer-Encoding: chunked wins over Content-Length; a response with no
// framing header on a connection that will close is read until EOF.
func DetermineBodyMode(headers textproto.MIMEHeader, isResponse bool, statusCode int, requestMethod string) (mode BodyMode, length int64, err error) {
	if isResponse {
		if requestMethod == "HEAD" ||
			(statusCode >= 100 && statusCode < 200) ||
			statusCode == 204 || statusCode == 304 {
			return BodyNone, 0, nil
		}
	}
	te := headers.Get("Transfer-Encoding")
	if strings.Contains(strings.ToLower(te), "chunked") {
		return BodyChunked, 0, nil
	}
	if cl := headers.Get("Content-Length"); cl != "" {
		n, perr := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if perr != nil || n < 0 {
			return BodyNone, 0, rawerrors.NewHTTP1Error("body_mode", "invalid content-length", perr)
		}
		if n > constants.MaxContentLength {
			return BodyNone, 0, rawerrors.NewHTTP1Error("body_mode", "content-length too large", nil)
		}
		return BodyContentLength, n, nil
	}
	if isResponse {
		return BodyUntilClose, 0, nil
	}
	return BodyNone, 0, nil
}

// NewBodyReader wraps r per mode, presenting a uniform io.Reader regardless
// of framing. trailers, if non-nil, is populated with any chunk trailer
// headers once the chunked body is fully drained.
func NewBodyReader(r *bufio.Reader, mode BodyMode, length int64, trailers textproto.MIMEHeader, raw io.Writer) io.Reader {
	switch mode {
	case BodyChunked:
		return &chunkedReader{tp: textproto.NewReader(r), trailers: trailers, raw: raw}
	case BodyContentLength:
		return io.LimitReader(&rawTeeReader{r: r, w: raw}, length)
	case BodyUntilClose:
		return &rawTeeReader{r: r, w: raw}
	default:
		return io.LimitReader(r, 0)
	}
}

// rawTeeReader behaves like io.TeeReader but tolerates a nil sink.
type rawTeeReader struct {
	r io.Reader
	w io.Writer
}

func (t *rawTeeReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 && t.w != nil {
		t.w.Write(p[:n])
	}
	return n, err
}

// chunkedReader decodes RFC 7230 §4.1 chunked transfer coding.
type chunkedReader struct {
	tp       *textproto.Reader
	trailers textproto.MIMEHeader
	raw      io.Writer
	cur      int64 // bytes left in the current chunk
	done     bool
	err      error
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.done {
		return 0, io.EOF
	}
	if c.cur == 0 {
		if err := c.nextChunkSize(); err != nil {
			c.err = err
			return 0, err
		}
		if c.done {
			if err := c.readTrailers(); err != nil {
				c.err = err
				return 0, err
			}
			return 0, io.EOF
		}
	}
	if int64(len(p)) > c.cur {
		p = p[:c.cur]
	}
	n, err := c.tp.R.Read(p)
	if n > 0 && c.raw != nil {
		c.raw.Write(p[:n])
	}
	c.cur -= int64(n)
	if c.cur == 0 {
		if err := c.consumeTrailingCRLF(); err != nil {
			c.err = err
			return n, err
		}
	}
	if err != nil && err != io.EOF {
		c.err = err
	}
	return n, nil
}

func (c *chunkedReader) nextChunkSize() error {
	line, err := c.tp.ReadLine()
	if err != nil {
		return rawerrors.NewHTTP1Error("chunked", "failed reading chunk size", err)
	}
	if c.raw != nil {
		c.raw.Write([]byte(line + "\r\n"))
	}
	sizeStr := strings.TrimSpace(strings.SplitN(line, ";", 2)[0])
	size, err := strconv.ParseInt(sizeStr, 16, 64)
	if err != nil {
		return rawerrors.NewHTTP1Error("chunked", "invalid chunk size", err)
	}
	if size == 0 {
		c.done = true
		return nil
	}
	c.cur = size
	return nil
}

func (c *chunkedReader) consumeTrailingCRLF() error {
	crlf := make([]byte, 2)
	if _, err := io.ReadFull(c.tp.R, crlf); err != nil {
		return rawerrors.NewHTTP1Error("chunked", "failed reading chunk terminator", err)
	}
	if c.raw != nil {
		c.raw.Write(crlf)
	}
	return nil
}

func (c *chunkedReader) readTrailers() error {
	for {
		line, err := c.tp.ReadLine()
		if err != nil {
			return rawerrors.NewHTTP1Error("chunked", "failed reading trailer", err)
		}
		if c.raw != nil {
			c.raw.Write([]byte(line + "\r\n"))
		}
		if line == "" {
			return nil
		}
		if c.trailers == nil {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(parts[0]))
		c.trailers.Add(key, strings.TrimSpace(parts[1]))
	}
}
