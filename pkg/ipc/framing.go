package ipc

import (
	"encoding/binary"

	"github.com/TFMV/kite/pkg/errors"
)

// continuationMarker opens every message prefix in the encapsulated stream
// format since metadata V5.
const continuationMarker = 0xFFFFFFFF

// RawMessage pairs one message's flatbuffer header with its body bytes. Both
// alias the buffer handed to SplitStream.
type RawMessage struct {
	Header []byte
	Body   []byte
}

// SplitStream walks an encapsulated Arrow IPC byte stream (continuation
// marker, little-endian header length, padded header, body) and returns the
// raw messages in order. The Flight path never needs this (FlightData
// arrives with header and body already split); it serves byte-stream
// payloads such as the dataset schema attached to a prepared statement.
func SplitStream(buf []byte) (msgs []RawMessage, err error) {
	defer recoverMalformed(&err, "stream message header")

	rest := buf
	for len(rest) > 0 {
		if len(rest) < 4 {
			return nil, errors.Newf(errors.CodeMalformedHeader,
				"stream truncated inside a message prefix, %d trailing bytes", len(rest))
		}
		word := binary.LittleEndian.Uint32(rest)
		rest = rest[4:]

		headerLen := word
		if word == continuationMarker {
			if len(rest) < 4 {
				return nil, errors.New(errors.CodeMalformedHeader,
					"stream truncated after a continuation marker")
			}
			headerLen = binary.LittleEndian.Uint32(rest)
			rest = rest[4:]
		}
		if headerLen == 0 {
			// End-of-stream sentinel.
			break
		}
		if uint64(headerLen) > uint64(len(rest)) {
			return nil, errors.Newf(errors.CodeMalformedHeader,
				"stream declares a %d-byte header but only %d bytes remain", headerLen, len(rest))
		}
		header := rest[:headerLen]
		rest = rest[headerLen:]

		msg, merr := rootMessage(header)
		if merr != nil {
			return nil, merr
		}
		bodyLen := msg.BodyLength()
		if bodyLen < 0 || bodyLen > int64(len(rest)) {
			return nil, errors.Newf(errors.CodeMalformedHeader,
				"stream declares a %d-byte body but only %d bytes remain", bodyLen, len(rest))
		}
		msgs = append(msgs, RawMessage{Header: header, Body: rest[:bodyLen]})
		rest = rest[bodyLen:]
	}
	return msgs, nil
}
