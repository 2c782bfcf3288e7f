package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/rawproto/httpstack/pkg/cancel"
	"github.com/rawproto/httpstack/pkg/constants"
	"github.com/rawproto/httpstack/pkg/errors"
	"github.com/rawproto/httpstack/pkg/hpack"
	"github.com/rawproto/httpstack/pkg/http1"
	"github.com/rawproto/httpstack/pkg/http2frame"
	"github.com/rawproto/httpstack/pkg/http2stream"
	"github.com/rawproto/httpstack/pkg/timing"
	"github.com/rawproto/httpstack/pkg/transport"
)

// doHTTP2 runs a single request/response exchange over an HTTP/2 connection
// that has already been negotiated (ALPN "h2" or h2c prior knowledge; the
// client does not perform the HTTP/1.1 "Upgrade: h2c" exchange). It is adapted from the teacher's pkg/http2/client.go single-
// stream request flow, rebuilt on the module's own pkg/http2frame/
// pkg/http2stream/pkg/hpack stack instead of golang.org/x/net/http2.
func (c *Client) doHTTP2(ctx context.Context, conn net.Conn, req []byte, opts Options, response *Response, timer *timing.Timer) error {
	reqLine, headers, body, err := parseRawRequest(req)
	if err != nil {
		return err
	}

	if _, err := transport.Write(ctx, conn, []byte(constants.ClientPreface)); err != nil {
		return errors.NewIOError("writing http/2 preface", err)
	}

	framer := http2frame.NewFramer(&cancelReader{ctx: ctx, conn: conn}, conn)
	if err := framer.WriteFrame(&http2frame.SettingsFrame{Settings: []http2frame.Setting{
		{ID: http2frame.SettingInitialWindowSize, Value: constants.DefaultInitialWindowSize},
	}}, constants.DefaultMaxFrameSize); err != nil {
		return errors.NewIOError("writing initial settings", err)
	}

	streams := http2stream.NewManager(true)
	stream, err := streams.OpenStream()
	if err != nil {
		return err
	}

	enc := hpack.NewEncoder(constants.DefaultHpackTableSize)
	var block bytes.Buffer
	authority := opts.Host
	if opts.Port != 0 && opts.Port != defaultPortFor(opts.Scheme) {
		authority = fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	}
	scheme := opts.Scheme
	if scheme == "" {
		scheme = "https"
	}
	enc.WriteField(&block, hpack.HeaderField{Name: ":method", Value: reqLine.Method})
	enc.WriteField(&block, hpack.HeaderField{Name: ":path", Value: reqLine.Target})
	enc.WriteField(&block, hpack.HeaderField{Name: ":scheme", Value: scheme})
	enc.WriteField(&block, hpack.HeaderField{Name: ":authority", Value: authority})
	for name, values := range headers {
		lower := strings.ToLower(name)
		if lower == "host" || lower == "connection" {
			continue // forbidden as regular header fields under h2 (§4.8 uses pseudo-headers instead)
		}
		for _, v := range values {
			enc.WriteField(&block, hpack.HeaderField{Name: lower, Value: v})
		}
	}

	endStream := len(body) == 0
	if err := framer.WriteFrame(&http2frame.HeadersFrame{
		StreamID:    stream.ID,
		EndStream:   endStream,
		EndHeaders:  true,
		HeaderBlock: block.Bytes(),
	}, constants.DefaultMaxFrameSize); err != nil {
		return errors.NewIOError("writing headers frame", err)
	}
	if err := streams.Transition(stream.ID, http2stream.StateOpen); err != nil {
		return err
	}

	if len(body) > 0 {
		if err := framer.WriteFrame(&http2frame.DataFrame{
			StreamID:  stream.ID,
			EndStream: true,
			Data:      body,
		}, constants.DefaultMaxFrameSize); err != nil {
			return errors.NewIOError("writing data frame", err)
		}
	}
	if err := streams.MarkEndStream(stream.ID, true); err != nil {
		return err
	}

	if opts.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout)); err != nil {
			return errors.NewIOError("setting read deadline", err)
		}
	}

	dec := hpack.NewDecoder(constants.DefaultHpackTableSize)
	var respFields []hpack.HeaderField
	var respBody bytes.Buffer
	timer.StartTTFB()
	ttfbDone := false

	for {
		if err := cancel.Poll(ctx); err != nil {
			return err
		}
		f, err := framer.ReadFrame()
		if err != nil {
			return errors.NewProtocolError("reading http/2 frame", err)
		}
		if !ttfbDone {
			timer.EndTTFB()
			ttfbDone = true
		}

		switch fr := f.(type) {
		case *http2frame.HeadersFrame:
			if fr.StreamID != stream.ID {
				continue
			}
			fields, err := dec.DecodeFull(fr.HeaderBlock)
			if err != nil {
				return errors.NewProtocolError("decoding response headers", err)
			}
			respFields = append(respFields, fields...)
			if fr.EndStream {
				return c.finishHTTP2Response(response, respFields, respBody.Bytes())
			}
		case *http2frame.DataFrame:
			if fr.StreamID != stream.ID {
				continue
			}
			respBody.Write(fr.Data)
			if fr.EndStream {
				return c.finishHTTP2Response(response, respFields, respBody.Bytes())
			}
		case *http2frame.SettingsFrame:
			if !fr.Ack {
				if err := framer.WriteFrame(&http2frame.SettingsFrame{Ack: true}, constants.DefaultMaxFrameSize); err != nil {
					return errors.NewIOError("acking settings", err)
				}
			}
		case *http2frame.WindowUpdateFrame, *http2frame.PingFrame:
			// flow control and keepalive accounting are out of scope for a
			// single-exchange request; the peer's window is never exhausted
			// by one HEADERS+DATA pair within constants.DefaultInitialWindowSize.
		case *http2frame.GoAwayFrame:
			return errors.NewProtocolError(fmt.Sprintf("server sent GOAWAY (error %d)", fr.ErrorCode), nil)
		case *http2frame.RSTStreamFrame:
			if fr.StreamID == stream.ID {
				return errors.NewProtocolError(fmt.Sprintf("stream reset (error %d)", fr.ErrorCode), nil)
			}
		}
	}
}

func (c *Client) finishHTTP2Response(response *Response, fields []hpack.HeaderField, body []byte) error {
	response.HTTPVersion = "HTTP/2"
	response.Headers = make(map[string][]string)
	for _, f := range fields {
		if f.Name == ":status" {
			code, err := strconv.Atoi(f.Value)
			if err != nil {
				return errors.NewProtocolError("invalid :status pseudo-header", err)
			}
			response.StatusCode = code
			response.StatusLine = fmt.Sprintf("HTTP/2 %d", code)
			continue
		}
		if strings.HasPrefix(f.Name, ":") {
			continue
		}
		key := textproto.CanonicalMIMEHeaderKey(f.Name)
		response.Headers[key] = append(response.Headers[key], f.Value)
	}
	if _, err := response.Body.Write(body); err != nil {
		return err
	}
	if _, err := response.Raw.Write(body); err != nil {
		return err
	}
	return nil
}

// parseRawRequest splits a caller-supplied raw HTTP/1-style request (the
// same wire text Do accepts for the HTTP/1 path) into its request line,
// headers, and body, so the HTTP/2 path can re-encode it as HPACK pseudo-
// headers instead of replaying the bytes verbatim.
func parseRawRequest(req []byte) (http1.RequestLine, textproto.MIMEHeader, []byte, error) {
	r := bufio.NewReader(bytes.NewReader(req))
	reqLine, err := http1.ReadRequestLine(r)
	if err != nil {
		return http1.RequestLine{}, nil, nil, errors.NewProtocolError("parsing request line", err)
	}
	headers, err := http1.ReadHeaders(r, int(constants.MaxHeaderBytes), nil)
	if err != nil {
		return http1.RequestLine{}, nil, nil, errors.NewProtocolError("parsing request headers", err)
	}
	mode, length, err := http1.DetermineBodyMode(headers, false, 0, reqLine.Method)
	if err != nil {
		return http1.RequestLine{}, nil, nil, err
	}
	var body []byte
	if mode != http1.BodyNone {
		rest := http1.NewBodyReader(r, mode, length, nil, nil)
		body, err = io.ReadAll(rest)
		if err != nil && err != io.ErrUnexpectedEOF {
			return http1.RequestLine{}, nil, nil, errors.NewIOError("reading request body", err)
		}
	}
	return reqLine, headers, body, nil
}

func defaultPortFor(scheme string) int {
	if strings.EqualFold(scheme, "http") {
		return 80
	}
	return 443
}
