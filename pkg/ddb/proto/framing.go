package proto

import (
	"bufio"
	"io"
)

// FrameReader extracts newline-delimited frames from a stream, retaining
// partial frames across reads. It wraps bufio.Scanner with a large enough
// buffer for query payloads.
type FrameReader struct {
	scanner *bufio.Scanner
}

// NewFrameReader wraps r for newline-delimited frame extraction.
func NewFrameReader(r io.Reader) *FrameReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &FrameReader{scanner: scanner}
}

// Next blocks until a full frame is available, the stream closes, or an
// error occurs. The returned slice is only valid until the next call to
// Next.
func (f *FrameReader) Next() ([]byte, error) {
	if !f.scanner.Scan() {
		if err := f.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return f.scanner.Bytes(), nil
}

// WriteFrame serializes m and writes it to w terminated by a single
// newline byte.
func WriteFrame(w io.Writer, m Message) error {
	raw, err := Encode(m)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	_, err = w.Write(raw)
	return err
}
