package protocol

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// FrameWriter writes newline-delimited frames and flushes each one.
type FrameWriter struct {
	w     io.Writer
	flush func()
}

// NewFrameWriter returns a writer over w. When w also implements
// interface{ Flush() } every frame is flushed as soon as it is written.
func NewFrameWriter(w io.Writer) *FrameWriter {
	fw := &FrameWriter{w: w}
	if f, ok := w.(interface{ Flush() }); ok {
		fw.flush = f.Flush
	}
	return fw
}

// WriteFrame writes one frame. A frame must be a single line of JSON.
func (fw *FrameWriter) WriteFrame(frame []byte) error {
	if bytes.IndexByte(frame, '\n') >= 0 {
		return ErrInvalidFrame
	}
	buf := make([]byte, 0, len(frame)+1)
	buf = append(append(buf, frame...), '\n')
	if _, err := fw.w.Write(buf); err != nil {
		return err
	}
	if fw.flush != nil {
		fw.flush()
	}
	return nil
}

// FrameReader splits a byte stream into newline-delimited frames,
// independent of how the bytes arrive over the network.
type FrameReader struct {
	r       *bufio.Reader
	maxSize int
}

// NewFrameReader returns a reader over r. maxSize bounds one frame; 0
// means unlimited.
func NewFrameReader(r io.Reader, maxSize int) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r), maxSize: maxSize}
}

// ReadFrame returns the next non-blank frame without its trailing
// newline. A final frame without a newline is returned before io.EOF.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	for {
		line, err := fr.readLine()
		if len(bytes.TrimSpace(line)) > 0 {
			return bytes.TrimRight(line, "\r\n"), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (fr *FrameReader) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := fr.r.ReadSlice('\n')
		line = append(line, chunk...)
		if fr.maxSize > 0 && len(line) > fr.maxSize+1 {
			fr.discardLine(err)
			return nil, fmt.Errorf("%w: frame exceeds %d bytes", ErrMessageTooLarge, fr.maxSize)
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return line, err
	}
}

// discardLine skips the rest of an oversized frame so the stream stays
// aligned on frame boundaries.
func (fr *FrameReader) discardLine(err error) {
	for err == bufio.ErrBufferFull {
		_, err = fr.r.ReadSlice('\n')
	}
}
