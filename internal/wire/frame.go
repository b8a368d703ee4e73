// Package wire implements the WebSocket wire format (spec §6), the
// outbound/inbound ring record framing (spec §3), and client message
// reassembly.
//
// Grounded on protocol/frame_codec.go from the teacher, trimmed to the
// two directions this core actually needs: validating masked-client
// decode on read, and unmasked server-frame encode on write (RingSocket
// never masks server->client frames, per RFC 6455 §5.1).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/ringsocket/api"
)

// Opcode values per RFC 6455 §5.2.
const (
	OpcodeContinuation byte = 0x0
	OpcodeText         byte = 0x1
	OpcodeBinary       byte = 0x2
	OpcodeClose        byte = 0x8
	OpcodePing         byte = 0x9
	OpcodePong         byte = 0xA
)

// Header describes a decoded frame's leading metadata. It carries no
// payload bytes; the payload follows the header in the caller's buffer.
type Header struct {
	Fin        bool
	Opcode     byte
	Masked     bool
	PayloadLen uint64
	MaskKey    [4]byte
}

// DecodeHeader parses a client-to-server frame header from raw. Returns
// (header, headerBytesConsumed, nil) once raw holds the complete header
// and its whole payload; (zero, 0, nil) if the header is incomplete;
// (header, 0, nil) if the header is complete but the payload is not. A
// malformed header (non-zero RSV bits, unmasked client frame, oversize
// declared length) is reported via err, to be translated into
// CLOSE_PEER by the caller per spec §7.
func DecodeHeader(raw []byte, maxPayload uint64) (Header, int, error) {
	if len(raw) < 2 {
		return Header{}, 0, nil
	}
	b0, b1 := raw[0], raw[1]
	if b0&0x70 != 0 {
		return Header{}, 0, fmt.Errorf("%w: reserved bits set", api.ErrInvalidFrame)
	}
	h := Header{
		Fin:    b0&0x80 != 0,
		Opcode: b0 & 0x0F,
		Masked: b1&0x80 != 0,
	}
	length := uint64(b1 & 0x7F)
	off := 2
	switch length {
	case 126:
		if len(raw) < off+2 {
			return Header{}, 0, nil
		}
		length = uint64(binary.BigEndian.Uint16(raw[off:]))
		off += 2
	case 127:
		if len(raw) < off+8 {
			return Header{}, 0, nil
		}
		length = binary.BigEndian.Uint64(raw[off:])
		off += 8
	}
	if length > maxPayload {
		return Header{}, 0, fmt.Errorf("%w: payload %d exceeds max %d", api.ErrMessageTooLarge, length, maxPayload)
	}
	if !h.Masked {
		return Header{}, 0, fmt.Errorf("%w: client frame must be masked", api.ErrInvalidFrame)
	}
	if len(raw) < off+4 {
		return Header{}, 0, nil
	}
	copy(h.MaskKey[:], raw[off:off+4])
	off += 4
	h.PayloadLen = length
	if uint64(len(raw)-off) < length {
		return h, 0, nil // header complete but payload still incomplete
	}
	return h, off, nil
}

// Unmask applies h.MaskKey to payload in place.
func Unmask(h Header, payload []byte) {
	for i := range payload {
		payload[i] ^= h.MaskKey[i%4]
	}
}

// EncodeServerFrame appends a complete, unmasked server-to-client frame
// (FIN=1, the given opcode) to dst and returns the extended slice, per
// spec §6's length encoding table: <=125 -> 1 byte; <=65535 -> 0x7E + 2
// BE bytes; else -> 0x7F + 8 BE bytes.
func EncodeServerFrame(dst []byte, opcode byte, payload []byte) []byte {
	n := len(payload)
	dst = append(dst, 0x80|opcode)
	switch {
	case n <= 125:
		dst = append(dst, byte(n))
	case n <= 0xFFFF:
		dst = append(dst, 0x7E)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(n))
		dst = append(dst, b[:]...)
	default:
		dst = append(dst, 0x7F)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(n))
		dst = append(dst, b[:]...)
	}
	return append(dst, payload...)
}

// HeaderLen returns the byte length EncodeServerFrame will use for a
// payload of length n, without allocating — useful for sizing a single
// Ring.Reserve call up front.
func HeaderLen(n int) int {
	switch {
	case n <= 125:
		return 2
	case n <= 0xFFFF:
		return 4
	default:
		return 10
	}
}
