// Package net is the thin wiring layer described in spec.md §4.8: a QUIC
// overlay authenticated at the application level by hybrid identities,
// five fixed pub/sub topics, and a small XOR-distance peer table for
// bootstrap discovery.
package net

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// maxMessageSize bounds a single framed message (topic envelope
	// included) to keep a malicious peer from forcing an unbounded read.
	maxMessageSize = 16 << 20

	lengthPrefixSize = 4
)

// writeMessage writes a length-prefixed message: [4B big-endian length || payload].
func writeMessage(w io.Writer, data []byte) error {
	if len(data) > maxMessageSize {
		return fmt.Errorf("message too large: %d > %d", len(data), maxMessageSize)
	}
	var lenBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// readMessage reads a length-prefixed message written by writeMessage.
func readMessage(r io.Reader) ([]byte, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > maxMessageSize {
		return nil, fmt.Errorf("message too large: %d > %d", length, maxMessageSize)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}

// envelope is what actually crosses a unidirectional stream: the topic it
// was published on plus the opaque payload. On a bidirectional request
// stream the request is also sent as an envelope; the handshake hello and
// the response travel as bare payloads.
type envelope struct {
	Topic   string
	Payload []byte
}

// encodeEnvelope serializes an envelope as
// [4B topic len || topic || payload], the payload running to the end of the
// outer length-prefixed message so it needs no length of its own.
func encodeEnvelope(e envelope) []byte {
	out := make([]byte, 0, 4+len(e.Topic)+len(e.Payload))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.Topic)))
	out = append(out, lenBuf[:]...)
	out = append(out, e.Topic...)
	out = append(out, e.Payload...)
	return out
}

func decodeEnvelope(b []byte) (envelope, error) {
	if len(b) < 4 {
		return envelope{}, fmt.Errorf("envelope: truncated topic length")
	}
	topicLen := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint64(topicLen) > uint64(len(b)) {
		return envelope{}, fmt.Errorf("envelope: truncated topic")
	}
	topic := string(b[:topicLen])
	payload := b[topicLen:]
	return envelope{Topic: topic, Payload: payload}, nil
}
