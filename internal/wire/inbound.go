package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/ringsocket/api"
)

// InboundKind selects what an inbound ring record represents (spec §3
// "Inbound Message").
type InboundKind byte

const (
	KindOpen  InboundKind = 0
	KindRead  InboundKind = 1
	KindClose InboundKind = 2
)

// Inbound records are self-delimited with a 4-byte big-endian length
// prefix covering everything after the prefix itself, so the app can
// peek a worker's inbound ring and know whether a complete record has
// arrived without any out-of-band bookkeeping (unlike outbound records,
// an inbound READ payload carries no WebSocket framing of its own to
// delimit it).

// EncodeInboundOpen appends a length-prefixed OPEN record: kind, peer
// slot index.
func EncodeInboundOpen(dst []byte, peerSlot uint32) []byte {
	body := appendU32(append([]byte{byte(KindOpen)}), peerSlot)
	return appendRecord(dst, body)
}

// EncodeInboundRead appends a length-prefixed READ record: kind, peer
// slot index, a 1-byte binary flag, and the message payload.
func EncodeInboundRead(dst []byte, peerSlot uint32, isBinary bool, payload []byte) []byte {
	body := appendU32([]byte{byte(KindRead)}, peerSlot)
	if isBinary {
		body = append(body, 1)
	} else {
		body = append(body, 0)
	}
	body = append(body, payload...)
	return appendRecord(dst, body)
}

// EncodeInboundClose appends a length-prefixed CLOSE record: kind, peer
// slot index, and the WebSocket close code observed (or chosen) for
// this peer.
func EncodeInboundClose(dst []byte, peerSlot uint32, code api.CloseCode) []byte {
	body := appendU32([]byte{byte(KindClose)}, peerSlot)
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(code))
	body = append(body, b[:]...)
	return appendRecord(dst, body)
}

func appendRecord(dst, body []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, body...)
}

// DecodedInbound is one parsed inbound record, as the app sees it after
// draining a worker's inbound ring. Payload only applies to KindRead.
type DecodedInbound struct {
	Kind      InboundKind
	PeerSlot  uint32
	IsBinary  bool
	Payload   []byte
	CloseCode api.CloseCode
}

// DecodeInbound parses one length-prefixed record starting at raw[0].
// Returns (decoded, totalBytesConsumed, nil) on success, (zero, 0, nil)
// if raw does not yet contain a complete record.
func DecodeInbound(raw []byte) (DecodedInbound, int, error) {
	if len(raw) < 4 {
		return DecodedInbound{}, 0, nil
	}
	bodyLen := int(binary.BigEndian.Uint32(raw))
	total := 4 + bodyLen
	if len(raw) < total {
		return DecodedInbound{}, 0, nil
	}
	body := raw[4:total]
	if len(body) < 5 {
		return DecodedInbound{}, 0, fmt.Errorf("%w: truncated inbound record", api.ErrInvalidFrame)
	}
	kind := InboundKind(body[0])
	peer := binary.BigEndian.Uint32(body[1:5])
	switch kind {
	case KindOpen:
		return DecodedInbound{Kind: kind, PeerSlot: peer}, total, nil
	case KindRead:
		if len(body) < 6 {
			return DecodedInbound{}, 0, fmt.Errorf("%w: truncated read record", api.ErrInvalidFrame)
		}
		return DecodedInbound{
			Kind:     kind,
			PeerSlot: peer,
			IsBinary: body[5] == 1,
			Payload:  body[6:],
		}, total, nil
	case KindClose:
		if len(body) < 7 {
			return DecodedInbound{}, 0, fmt.Errorf("%w: truncated close record", api.ErrInvalidFrame)
		}
		return DecodedInbound{
			Kind:      kind,
			PeerSlot:  peer,
			CloseCode: api.CloseCode(binary.BigEndian.Uint16(body[5:7])),
		}, total, nil
	default:
		return DecodedInbound{}, 0, fmt.Errorf("%w: unknown inbound kind %d", api.ErrInvalidFrame, kind)
	}
}
