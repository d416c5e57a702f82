package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrFrameTooShort      = errors.New("frame is malformed, it is shorter than its header or its declared size")
	ErrInvalidFrameLength = errors.New("frame declares a length smaller than the minimum header size")
	ErrFrameTooLarge      = errors.New("frame declares a length larger than the negotiated message size")
	ErrTruncatedField     = errors.New("field runs past the end of the frame")
	ErrStringTooLong      = errors.New("string is longer than 65535 bytes")
	ErrArrayTooLong       = errors.New("array has more than 65535 elements")
	ErrEncodingOverflow   = errors.New("message is larger than the negotiated message size")
	ErrUnknownType        = errors.New("unknown message type")
	ErrRawTypeConflict    = errors.New("raw message carries a type code that has a structured body")
	ErrSessionClosed      = errors.New("session is closed")
)

// DecodeError is returned when a complete frame could not be parsed. The
// stream it came from should be considered unusable.
type DecodeError struct {
	Type MessageType
	Tag  Tag
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s (tag %d): %v", e.Type, e.Tag, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
