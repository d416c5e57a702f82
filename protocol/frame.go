package protocol

import (
	"encoding/binary"
	"fmt"
)

// FrameReader reassembles frames from transport chunks split at arbitrary
// byte boundaries. It is not safe for concurrent use.
type FrameReader struct {
	buf []byte

	// maxFrame bounds a frame's declared length. Zero means
	// DefaultMaxFrameSize.
	maxFrame uint32
}

func NewFrameReader() *FrameReader {
	return &FrameReader{}
}

// SetMaxFrameSize changes the largest declared length Next will accept.
func (r *FrameReader) SetMaxFrameSize(n uint32) {
	r.maxFrame = n
}

// Write appends a chunk to the accumulation buffer. It never fails.
func (r *FrameReader) Write(chunk []byte) (int, error) {
	r.buf = append(r.buf, chunk...)
	return len(chunk), nil
}

// Buffered returns the number of bytes waiting to be framed.
func (r *FrameReader) Buffered() int {
	return len(r.buf)
}

// Next returns the next complete frame, or nil when more bytes are needed.
//
// A declared length below HeaderSize or above the frame size limit is an
// error. Nothing is consumed in that case, so every later call fails the
// same way until Reset.
func (r *FrameReader) Next() ([]byte, error) {
	if len(r.buf) < 4 {
		return nil, nil
	}

	size := binary.LittleEndian.Uint32(r.buf[0:4])
	if size < HeaderSize {
		return nil, fmt.Errorf("declared length %d: %w", size, ErrInvalidFrameLength)
	}

	limit := r.maxFrame
	if limit == 0 {
		limit = DefaultMaxFrameSize
	}

	if size > limit {
		return nil, fmt.Errorf("declared length %d, limit %d: %w", size, limit, ErrFrameTooLarge)
	}

	if uint64(len(r.buf)) < uint64(size) {
		return nil, nil
	}

	frame := make([]byte, size)
	copy(frame, r.buf[:size])

	// Keep the remainder at the front of the backing array.
	n := copy(r.buf, r.buf[size:])
	r.buf = r.buf[:n]

	return frame, nil
}

// Feed appends chunk and drains every complete frame now available, in
// arrival order. Frames completed before an error are still returned.
func (r *FrameReader) Feed(chunk []byte) ([][]byte, error) {
	r.Write(chunk)

	var frames [][]byte
	for {
		frame, err := r.Next()
		if err != nil {
			return frames, err
		}

		if frame == nil {
			return frames, nil
		}

		frames = append(frames, frame)
	}
}

// Reset drops any partially accumulated frame.
func (r *FrameReader) Reset() {
	r.buf = nil
}
