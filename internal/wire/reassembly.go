package wire

import (
	"fmt"

	"github.com/momentics/ringsocket/api"
)

// Reassembler accumulates fragmented client-to-server WebSocket frames
// into a complete message, up to a configured maximum size (spec §6
// "fragmented frames reassembled up to a configured maximum message
// size"). One Reassembler is owned by exactly one peer.
type Reassembler struct {
	maxSize int
	buf     []byte
	opcode  byte
	active  bool
}

// NewReassembler creates a Reassembler bounded at maxSize bytes.
func NewReassembler(maxSize int) *Reassembler {
	return &Reassembler{maxSize: maxSize}
}

// Feed consumes one decoded data frame (opcode Text/Binary/Continuation
// only — control frames are handled by the caller before reaching here,
// per RFC 6455 §5.4's "control frames may be injected in the middle of a
// fragmented message"). It returns (payload, opcode, true) once a final
// fragment completes a message, or (nil, 0, false) while more fragments
// are still expected.
func (r *Reassembler) Feed(h Header, payload []byte) ([]byte, byte, bool, error) {
	if h.Opcode == OpcodeContinuation {
		if !r.active {
			return nil, 0, false, fmt.Errorf("%w: continuation without initial fragment", api.ErrInvalidFrame)
		}
	} else {
		if r.active {
			return nil, 0, false, fmt.Errorf("%w: new message started mid-fragment", api.ErrInvalidFrame)
		}
		r.opcode = h.Opcode
		r.active = true
		r.buf = r.buf[:0]
	}

	if len(r.buf)+len(payload) > r.maxSize {
		r.reset()
		return nil, 0, false, fmt.Errorf("%w: reassembled message exceeds max size %d", api.ErrMessageTooLarge, r.maxSize)
	}
	r.buf = append(r.buf, payload...)

	if !h.Fin {
		return nil, 0, false, nil
	}
	out := append([]byte(nil), r.buf...)
	opcode := r.opcode
	r.reset()
	return out, opcode, true, nil
}

func (r *Reassembler) reset() {
	r.active = false
	r.buf = r.buf[:0]
}

// InProgress reports whether a fragmented message is currently being
// accumulated (used to reject a new non-continuation frame mid-message).
func (r *Reassembler) InProgress() bool {
	return r.active
}
