package proto

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// checksum computes the lowercase-hex MD5 digest of m's canonical JSON form
// with the checksum field removed. The digest is computed by marshaling m,
// decoding the result into a generic map, deleting the "checksum" key
// from it (the json tag has no omitempty on Checksum, so clearing the
// struct field alone would still emit the key), and canonicalizing what
// remains.
func checksum(m Message) (string, error) {
	m.Checksum = ""
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("proto: marshal for checksum: %w", err)
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("proto: unmarshal for checksum: %w", err)
	}
	delete(generic, "checksum")
	canonical, err := canonicalJSON(generic)
	if err != nil {
		return "", fmt.Errorf("proto: canonicalize for checksum: %w", err)
	}
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Encode computes m's checksum, stamps it into the message, and returns the
// JSON-serialized single-line frame (without the trailing newline — callers
// writing to a stream append it, see WriteFrame).
func Encode(m Message) ([]byte, error) {
	sum, err := checksum(m)
	if err != nil {
		return nil, err
	}
	m.Checksum = sum
	return json.Marshal(m)
}

// Decode parses a single JSON frame into a Message and verifies its
// checksum. ErrChecksumMismatch is returned when the digest doesn't match;
// callers must drop the frame without disconnecting the peer.
func Decode(frame []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	received := m.Checksum
	expected, err := checksum(m)
	if err != nil {
		return Message{}, err
	}
	if received != expected {
		return Message{}, ErrChecksumMismatch
	}
	return m, nil
}
