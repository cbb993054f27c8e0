// Package sse implements an incremental reader for the backend's
// Server-Sent Events chat protocol: `data: {json}` lines separated by
// blank lines, with keepalive payloads injected by infrastructure.
package sse

import (
	"bytes"
	"io"
)

const (
	dataPrefix       = "data:"
	keepalivePayload = "ping"
)

// Reader splits a chunked SSE body into raw frame payloads. Chunks are
// concatenated into a rolling buffer and split on line boundaries; an
// incomplete trailing line is retained until the next chunk arrives.
type Reader struct {
	r     io.Reader
	buf   []byte
	read  []byte
	eof   bool
	lines [][]byte
}

// NewReader creates a Reader over a raw SSE body
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:    r,
		read: make([]byte, 4096),
	}
}

// Next returns the payload of the next data line. Keepalive payloads
// and lines without the data prefix never surface. Returns io.EOF when
// the underlying transport ends.
func (r *Reader) Next() ([]byte, error) {
	for {
		if payload, ok := r.nextPayload(); ok {
			return payload, nil
		}

		if r.eof {
			return nil, io.EOF
		}

		if err := r.fill(); err != nil {
			return nil, err
		}
	}
}

// fill reads one chunk from the transport and splits completed lines
// off the rolling buffer
func (r *Reader) fill() error {
	n, err := r.r.Read(r.read)
	if n > 0 {
		r.buf = append(r.buf, r.read[:n]...)
	}

	for {
		idx := bytes.IndexByte(r.buf, '\n')
		if idx < 0 {
			break
		}
		line := r.buf[:idx]
		r.buf = r.buf[idx+1:]
		r.lines = append(r.lines, trimCR(line))
	}

	if err == io.EOF {
		r.eof = true
		// the transport ended mid-line; treat the remainder as final
		if len(r.buf) > 0 {
			r.lines = append(r.lines, trimCR(r.buf))
			r.buf = nil
		}
		return nil
	}

	return err
}

// nextPayload pops buffered lines until a candidate frame payload is found
func (r *Reader) nextPayload() ([]byte, bool) {
	for len(r.lines) > 0 {
		line := r.lines[0]
		r.lines = r.lines[1:]

		if !bytes.HasPrefix(line, []byte(dataPrefix)) {
			continue
		}

		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if len(payload) == 0 || string(payload) == keepalivePayload {
			continue
		}

		return payload, true
	}
	return nil, false
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}
