package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/ringsocket/api"
)

// OutboundKind selects how a worker expands an app-originated message
// into concrete per-peer writes (spec §3 "Outbound Message", §4.4
// "Worker Fan-out").
type OutboundKind byte

const (
	KindSingle              OutboundKind = 0
	KindArray               OutboundKind = 1
	KindEvery               OutboundKind = 2
	KindEveryExceptSingle   OutboundKind = 3
	KindEveryExceptArray    OutboundKind = 4
)

// maxStackRecipients is the fixed-size fast-path cap for decoding a
// recipient list without a heap allocation (spec §9 open question: bound
// the variable-length stack buffer driven by a runtime recipient count,
// and spill to the heap above a small constant cap).
const maxStackRecipients = 64

// EncodeOutbound appends one self-delimited outbound record to dst:
// kind tag, optional recipient count + indices, then a complete
// WebSocket server frame. recipients is ignored for KindEvery.
func EncodeOutbound(dst []byte, kind OutboundKind, recipients []uint32, opcode byte, payload []byte) ([]byte, error) {
	dst = append(dst, byte(kind))
	switch kind {
	case KindSingle, KindEveryExceptSingle:
		if len(recipients) != 1 {
			return nil, fmt.Errorf("%w: kind %v requires exactly one recipient, got %d", api.ErrInvalidArgument, kind, len(recipients))
		}
		dst = appendU32(dst, recipients[0])
	case KindArray, KindEveryExceptArray:
		dst = appendU32(dst, uint32(len(recipients)))
		for _, r := range recipients {
			dst = appendU32(dst, r)
		}
	case KindEvery:
		// no recipient payload
	default:
		return nil, fmt.Errorf("%w: unknown outbound kind %d", api.ErrInvalidArgument, kind)
	}
	return EncodeServerFrame(dst, opcode, payload), nil
}

// DecodedOutbound is one parsed outbound record, as the worker sees it
// after draining its outbound ring.
type DecodedOutbound struct {
	Kind       OutboundKind
	Recipients []uint32 // local peer slot indices; meaning depends on Kind
	Header     Header
	Payload    []byte // view into the source buffer, valid until released
}

// DecodeOutbound parses one record starting at raw[0]. Returns
// (decoded, totalBytesConsumed, nil) on success, (zero, 0, nil) if raw
// does not yet contain a complete record.
func DecodeOutbound(raw []byte, maxPayload uint64) (DecodedOutbound, int, error) {
	if len(raw) < 1 {
		return DecodedOutbound{}, 0, nil
	}
	kind := OutboundKind(raw[0])
	off := 1
	var recipients []uint32

	switch kind {
	case KindSingle, KindEveryExceptSingle:
		if len(raw) < off+4 {
			return DecodedOutbound{}, 0, nil
		}
		recipients = []uint32{binary.BigEndian.Uint32(raw[off:])}
		off += 4
	case KindArray, KindEveryExceptArray:
		if len(raw) < off+4 {
			return DecodedOutbound{}, 0, nil
		}
		n := binary.BigEndian.Uint32(raw[off:])
		off += 4
		if len(raw) < off+int(n)*4 {
			return DecodedOutbound{}, 0, nil
		}
		if n <= maxStackRecipients {
			var stack [maxStackRecipients]uint32
			for i := uint32(0); i < n; i++ {
				stack[i] = binary.BigEndian.Uint32(raw[off:])
				off += 4
			}
			recipients = append([]uint32(nil), stack[:n]...)
		} else {
			recipients = make([]uint32, n)
			for i := range recipients {
				recipients[i] = binary.BigEndian.Uint32(raw[off:])
				off += 4
			}
		}
	case KindEvery:
		// nothing to parse
	default:
		return DecodedOutbound{}, 0, fmt.Errorf("%w: unknown outbound kind %d", api.ErrInvalidFrame, kind)
	}

	// Outbound frames are written by the app itself using
	// EncodeServerFrame (unmasked): parse the length prefix directly
	// rather than through DecodeHeader, which enforces the client-mask
	// requirement that does not apply to this internal transport.
	fin, opcode, plen, hdrLen, ok := peekServerFrame(raw[off:])
	if !ok {
		return DecodedOutbound{}, 0, nil
	}
	if plen > maxPayload {
		return DecodedOutbound{}, 0, fmt.Errorf("%w: payload %d exceeds max %d", api.ErrMessageTooLarge, plen, maxPayload)
	}
	if uint64(len(raw[off:])-hdrLen) < plen {
		return DecodedOutbound{}, 0, nil
	}
	payload := raw[off+hdrLen : off+hdrLen+int(plen)]
	off += hdrLen + int(plen)

	return DecodedOutbound{
		Kind:       kind,
		Recipients: recipients,
		Header:     Header{Fin: fin, Opcode: opcode, PayloadLen: plen},
		Payload:    payload,
	}, off, nil
}

// peekServerFrame parses an unmasked server-style frame header (as
// produced by EncodeServerFrame) without requiring a mask key.
func peekServerFrame(raw []byte) (fin bool, opcode byte, payloadLen uint64, headerLen int, ok bool) {
	if len(raw) < 2 {
		return false, 0, 0, 0, false
	}
	fin = raw[0]&0x80 != 0
	opcode = raw[0] & 0x0F
	length := uint64(raw[1] & 0x7F)
	off := 2
	switch length {
	case 126:
		if len(raw) < off+2 {
			return false, 0, 0, 0, false
		}
		length = uint64(binary.BigEndian.Uint16(raw[off:]))
		off += 2
	case 127:
		if len(raw) < off+8 {
			return false, 0, 0, 0, false
		}
		length = binary.BigEndian.Uint64(raw[off:])
		off += 8
	}
	return fin, opcode, length, off, true
}

func appendU32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}
