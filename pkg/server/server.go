// Package server implements the accept/serve side of the transport: an
// HTTP/1.1 request loop, h2c/HTTP-2-prior-knowledge detection, WebSocket
// upgrade, and a sequential HTTP/2 stream loop, all built on
// pkg/http1/pkg/http2frame/pkg/http2stream/pkg/hpack/pkg/websocket instead
// of a routing framework (explicitly out of scope). Grounded on the accept
// loop shape of baranov1ch-http2/server.go's serverConn.serve, generalized
// since the teacher module has no server surface at all.
package server

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"sync"
	"time"

	"github.com/rawproto/httpstack/pkg/cancel"
	"github.com/rawproto/httpstack/pkg/constants"
	rawerrors "github.com/rawproto/httpstack/pkg/errors"
	"github.com/rawproto/httpstack/pkg/hpack"
	"github.com/rawproto/httpstack/pkg/http1"
	"github.com/rawproto/httpstack/pkg/http2frame"
	"github.com/rawproto/httpstack/pkg/http2stream"
	"github.com/rawproto/httpstack/pkg/negotiate"
	"github.com/rawproto/httpstack/pkg/transport"
	"github.com/rawproto/httpstack/pkg/websocket"
)

// Request is a parsed inbound request, HTTP/1 or HTTP/2 alike.
type Request struct {
	Method     string
	Target     string
	Proto      string // "HTTP/1.0", "HTTP/1.1", "HTTP/2"
	Header     textproto.MIMEHeader
	Body       io.Reader
	RemoteAddr string

	// isWebSocketUpgrade is set when the request carried a valid upgrade offer;
	// the handler that observes it should call Hijack to take over the
	// connection instead of writing a normal response.
	isWebSocketUpgrade bool
	conn               net.Conn
	bufrw              *bufio.ReadWriter
}

// IsWebSocketUpgrade reports whether this request asked to upgrade to
// WebSocket (RFC 6455 §4.2.1).
func (r *Request) IsWebSocketUpgrade() bool { return r.isWebSocketUpgrade }

// Hijack completes a WebSocket handshake and returns a frame-level Conn
// over the underlying connection. Valid only when IsWebSocketUpgrade
// reports true, and only on the HTTP/1 path (RFC 6455 does not define a
// WebSocket-over-h2 mapping here). The server closes the connection once
// the handler returns.
func (r *Request) Hijack() (*websocket.Conn, error) {
	if !r.isWebSocketUpgrade || r.conn == nil {
		return nil, rawerrors.NewWebSocketError("hijack", "request did not request a websocket upgrade", nil)
	}
	clientKey := r.Header.Get("Sec-WebSocket-Key")
	accept := websocket.AcceptKey(clientKey)
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := r.bufrw.WriteString(resp); err != nil {
		return nil, rawerrors.NewIOError("writing upgrade response", err)
	}
	if err := r.bufrw.Flush(); err != nil {
		return nil, rawerrors.NewIOError("flushing upgrade response", err)
	}
	return websocket.NewConn(r.conn, false), nil
}

// ResponseWriter is the server-side half of an exchange.
type ResponseWriter interface {
	Header() textproto.MIMEHeader
	WriteHeader(statusCode int)
	Write(p []byte) (int, error)
}

// Handler serves one request.
type Handler interface {
	ServeHTTP(w ResponseWriter, r *Request)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ResponseWriter, *Request)

func (f HandlerFunc) ServeHTTP(w ResponseWriter, r *Request) { f(w, r) }

// Server accepts connections and dispatches requests to a Handler.
type Server struct {
	Handler        Handler
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxHeaderBytes int

	shutdownOnce sync.Once
	shutdown     *cancel.Interrupt
}

func (s *Server) shutdownHandle() *cancel.Interrupt {
	s.shutdownOnce.Do(func() {
		s.shutdown = cancel.NewInterrupt(context.Background())
	})
	return s.shutdown
}

// Serve accepts connections from l until Shutdown is called or Accept
// returns an error. Each accepted connection is handled on its own
// goroutine. The accept loop runs against the server's lifetime
// cancellation handle, so a blocked Accept unblocks the moment Shutdown
// fires (§4.2's accept op); connection goroutines do not receive it.
func (s *Server) Serve(l net.Listener) error {
	ctx := s.shutdownHandle().Context()
	for {
		conn, err := transport.Accept(ctx, l)
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Shutdown stops Serve's accept loop. Connections already handed to a
// Handler are not interrupted; the caller is responsible for its own
// per-request cancellation if a faster drain is needed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownHandle().Trigger()
	return cancel.Poll(ctx)
}

func (s *Server) maxHeaderBytes() int {
	if s.MaxHeaderBytes > 0 {
		return s.MaxHeaderBytes
	}
	return int(constants.MaxHeaderBytes)
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	preface := []byte(constants.ClientPreface)
	peek, err := br.Peek(len(preface))
	if err == nil && string(peek) == string(preface) {
		br.Discard(len(preface))
		s.serveHTTP2(conn, br)
		return
	}

	s.serveHTTP1(conn, br)
}

// serveHTTP1 runs the keep-alive request loop for a connection that is not
// (yet) speaking HTTP/2, handling h2c upgrade and WebSocket upgrade inline.
func (s *Server) serveHTTP1(conn net.Conn, br *bufio.Reader) {
	bw := bufio.NewWriter(conn)
	rw := bufio.NewReadWriter(br, bw)

	for {
		if s.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		}
		reqLine, err := http1.ReadRequestLine(br)
		if err != nil {
			return // client closed the connection or sent garbage; nothing to respond to
		}

		if reqLine.Version == "" {
			// HTTP/0.9: simple-request, no header block, single response then close.
			s.dispatchHTTP09(conn, reqLine)
			return
		}

		headers, err := http1.ReadHeaders(br, s.maxHeaderBytes(), nil)
		if err != nil {
			return
		}

		if negotiate.IsH2CUpgradeRequest(headers) {
			settings, err := negotiate.DecodeSettingsHeader(headers.Get("HTTP2-Settings"))
			if err == nil {
				rw.Write(negotiate.BuildH2CUpgradeResponse())
				rw.Flush()
				s.serveHTTP2WithSettings(conn, br, settings)
				return
			}
		}

		mode, length, err := http1.DetermineBodyMode(headers, false, 0, reqLine.Method)
		if err != nil {
			return
		}
		body := http1.NewBodyReader(br, mode, length, nil, nil)

		req := &Request{
			Method:             reqLine.Method,
			Target:             reqLine.Target,
			Proto:              reqLine.Version,
			Header:             headers,
			Body:               body,
			RemoteAddr:         conn.RemoteAddr().String(),
			isWebSocketUpgrade: websocket.IsUpgradeRequest(headers),
			conn:               conn,
			bufrw:              rw,
		}

		w := &responseWriter1{rw: rw, proto: reqLine.Version}
		if s.WriteTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
		}
		s.Handler.ServeHTTP(w, req)
		if req.isWebSocketUpgrade {
			return // the handler ran any hijacked session; handleConn closes the connection
		}
		w.finish()
		rw.Flush()

		io.Copy(io.Discard, body) // drain any unread body before the next request on this connection

		if shouldClose(reqLine.Version, headers, w.header) {
			return
		}
	}
}

func shouldClose(version string, reqHeaders, respHeaders textproto.MIMEHeader) bool {
	conn := reqHeaders.Get("Connection")
	if conn != "" {
		return http1EqualFold(conn, "close")
	}
	if respHeaders.Get("Connection") != "" {
		return http1EqualFold(respHeaders.Get("Connection"), "close")
	}
	return version == "HTTP/1.0"
}

func http1EqualFold(s, t string) bool {
	if len(s) != len(t) {
		return false
	}
	for i := range s {
		a, b := s[i], t[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

func (s *Server) dispatchHTTP09(conn net.Conn, reqLine http1.RequestLine) {
	req := &Request{Method: reqLine.Method, Target: reqLine.Target, Proto: "", Header: textproto.MIMEHeader{}, Body: http1.NewBodyReader(nil, http1.BodyNone, 0, nil, nil)}
	w := &responseWriter1{rw: bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)), proto: "", isHTTP09: true}
	s.Handler.ServeHTTP(w, req)
	w.finish()
	w.rw.Flush()
}

// responseWriter1 implements ResponseWriter over an HTTP/1 connection.
type responseWriter1 struct {
	rw         *bufio.ReadWriter
	proto      string
	header     textproto.MIMEHeader
	wroteHead  bool
	statusCode int
	isHTTP09   bool
}

func (w *responseWriter1) Header() textproto.MIMEHeader {
	if w.header == nil {
		w.header = textproto.MIMEHeader{}
	}
	return w.header
}

func (w *responseWriter1) WriteHeader(statusCode int) {
	if w.wroteHead {
		return
	}
	w.wroteHead = true
	w.statusCode = statusCode
	if w.isHTTP09 {
		return // HTTP/0.9 has no status line or headers, only a body
	}
	proto := w.proto
	if proto == "" {
		proto = "HTTP/1.1"
	}
	http1.WriteStatusLine(w.rw, proto, statusCode, statusText(statusCode))
	for k, vals := range w.header {
		for _, v := range vals {
			w.rw.WriteString(k + ": " + v + "\r\n")
		}
	}
	w.rw.WriteString("\r\n")
}

func (w *responseWriter1) Write(p []byte) (int, error) {
	if !w.wroteHead {
		w.WriteHeader(200)
	}
	return w.rw.Write(p)
}

func (w *responseWriter1) finish() {
	if !w.wroteHead {
		w.WriteHeader(200)
	}
}

// statusText is intentionally minimal: the reason-phrase table is out of
// scope (a caller-supplied lookup belongs at the application layer); this
// covers only what the server itself emits without a handler-set message.
func statusText(code int) string {
	switch code {
	case 101:
		return "Switching Protocols"
	case 200:
		return "OK"
	case 204:
		return "No Content"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	default:
		return ""
	}
}

// serveHTTP2 runs the HTTP/2 connection preface handshake (the client
// preface itself was already consumed by handleConn) then hands off to the
// shared frame loop.
func (s *Server) serveHTTP2(conn net.Conn, br *bufio.Reader) {
	s.serveHTTP2WithSettings(conn, br, nil)
}

func (s *Server) serveHTTP2WithSettings(conn net.Conn, br *bufio.Reader, h2cSettings []http2frame.Setting) {
	framer := http2frame.NewFramer(br, conn)
	streams := http2stream.NewManager(false)
	dec := hpack.NewDecoder(constants.DefaultHpackTableSize)
	enc := hpack.NewEncoder(constants.DefaultHpackTableSize)

	initial := []http2frame.Setting{{ID: http2frame.SettingInitialWindowSize, Value: constants.DefaultInitialWindowSize}}
	if err := framer.WriteFrame(&http2frame.SettingsFrame{Settings: initial}, constants.DefaultMaxFrameSize); err != nil {
		return
	}
	for _, st := range h2cSettings {
		applySetting(streams, st)
	}

	type pendingStream struct {
		headers []hpack.HeaderField
		body    []byte
	}
	pending := map[uint32]*pendingStream{}
	var mu sync.Mutex

	for {
		f, err := framer.ReadFrame()
		if err != nil {
			return
		}
		switch fr := f.(type) {
		case *http2frame.SettingsFrame:
			if fr.Ack {
				continue
			}
			for _, st := range fr.Settings {
				applySetting(streams, st)
			}
			framer.WriteFrame(&http2frame.SettingsFrame{Ack: true}, constants.DefaultMaxFrameSize)
		case *http2frame.PingFrame:
			if !fr.Ack {
				framer.WriteFrame(&http2frame.PingFrame{Ack: true, Data: fr.Data}, constants.DefaultMaxFrameSize)
			}
		case *http2frame.WindowUpdateFrame:
			streams.ApplyWindowUpdate(fr.StreamID, fr.Increment)
		case *http2frame.HeadersFrame:
			if _, err := streams.AcceptRemoteStream(fr.StreamID); err != nil {
				continue
			}
			fields, err := dec.DecodeFull(fr.HeaderBlock)
			if err != nil {
				return
			}
			mu.Lock()
			pending[fr.StreamID] = &pendingStream{headers: fields}
			mu.Unlock()
			if fr.EndStream {
				streams.MarkEndStream(fr.StreamID, false)
				s.dispatchHTTP2(streams, framer, enc, fr.StreamID, fields, nil)
				mu.Lock()
				delete(pending, fr.StreamID)
				mu.Unlock()
			}
		case *http2frame.DataFrame:
			mu.Lock()
			ps := pending[fr.StreamID]
			if ps != nil {
				ps.body = append(ps.body, fr.Data...)
			}
			mu.Unlock()
			if fr.EndStream && ps != nil {
				streams.MarkEndStream(fr.StreamID, false)
				s.dispatchHTTP2(streams, framer, enc, fr.StreamID, ps.headers, ps.body)
				mu.Lock()
				delete(pending, fr.StreamID)
				mu.Unlock()
			}
		case *http2frame.RSTStreamFrame:
			streams.ResetStream(fr.StreamID)
			mu.Lock()
			delete(pending, fr.StreamID)
			mu.Unlock()
		case *http2frame.GoAwayFrame:
			return
		}
	}
}

func applySetting(streams *http2stream.Manager, st http2frame.Setting) {
	switch st.ID {
	case http2frame.SettingInitialWindowSize:
		streams.SetInitialSendWindow(int32(st.Value))
	case http2frame.SettingMaxConcurrentStreams:
		streams.SetMaxConcurrentStreams(st.Value)
	}
}

func (s *Server) dispatchHTTP2(streams *http2stream.Manager, framer *http2frame.Framer, enc *hpack.Encoder, streamID uint32, fields []hpack.HeaderField, body []byte) {
	req := &Request{Proto: "HTTP/2", Header: textproto.MIMEHeader{}}
	for _, f := range fields {
		switch f.Name {
		case ":method":
			req.Method = f.Value
		case ":path":
			req.Target = f.Value
		case ":authority", ":scheme":
			// carried for completeness; the request line mirrors :method/:path only
		default:
			req.Header.Add(textproto.CanonicalMIMEHeaderKey(f.Name), f.Value)
		}
	}
	req.Body = newByteReader(body)

	w := &responseWriter2{streams: streams, framer: framer, enc: enc, streamID: streamID, header: textproto.MIMEHeader{}}
	s.Handler.ServeHTTP(w, req)
	w.finish()
}

type responseWriter2 struct {
	streams    *http2stream.Manager
	framer     *http2frame.Framer
	enc        *hpack.Encoder
	streamID   uint32
	header     textproto.MIMEHeader
	wroteHead  bool
	statusCode int
}

func (w *responseWriter2) Header() textproto.MIMEHeader {
	if w.header == nil {
		w.header = textproto.MIMEHeader{}
	}
	return w.header
}

func (w *responseWriter2) WriteHeader(statusCode int) {
	if w.wroteHead {
		return
	}
	w.wroteHead = true
	w.statusCode = statusCode
	var buf bytes.Buffer
	w.enc.WriteField(&buf, hpack.HeaderField{Name: ":status", Value: strconv.Itoa(statusCode)})
	for k, vals := range w.header {
		for _, v := range vals {
			w.enc.WriteField(&buf, hpack.HeaderField{Name: k, Value: v})
		}
	}
	w.framer.WriteFrame(&http2frame.HeadersFrame{StreamID: w.streamID, EndHeaders: true, HeaderBlock: buf.Bytes()}, constants.DefaultMaxFrameSize)
}

func (w *responseWriter2) Write(p []byte) (int, error) {
	if !w.wroteHead {
		w.WriteHeader(200)
	}
	if err := w.framer.WriteFrame(&http2frame.DataFrame{StreamID: w.streamID, Data: p}, constants.DefaultMaxFrameSize); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *responseWriter2) finish() {
	if !w.wroteHead {
		w.WriteHeader(200)
	}
	w.framer.WriteFrame(&http2frame.DataFrame{StreamID: w.streamID, EndStream: true}, constants.DefaultMaxFrameSize)
	w.streams.MarkEndStream(w.streamID, true)
}

func newByteReader(b []byte) io.Reader {
	if b == nil {
		b = []byte{}
	}
	return &sliceReader{b: b}
}

type sliceReader struct{ b []byte }

func (r *sliceReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}
