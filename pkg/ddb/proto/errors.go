package proto

import "errors"

var (
	// ErrChecksumMismatch is returned by Decode when a frame's recomputed
	// checksum does not match the transmitted one. The frame must be
	// dropped, not treated as a fatal transport error.
	ErrChecksumMismatch = errors.New("proto: checksum mismatch")

	// ErrMalformed is returned by Decode when a frame is not valid JSON.
	ErrMalformed = errors.New("proto: malformed frame")
)
