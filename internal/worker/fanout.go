// Package worker implements the Worker Event Loop: the epoll-driven
// dispatcher over listening sockets, per-peer sockets, and the
// outbound-ring wake eventfds (spec §2.6), and the fan-out engine that turns an
// app-originated outbound record into concrete per-peer writes (spec
// §4.4).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package worker

import (
	"github.com/momentics/ringsocket/internal/peer"
	"github.com/momentics/ringsocket/internal/wire"
)

// Recipients expands one decoded outbound record into the local peer
// slot indices it targets, against this worker's own peer table (spec
// §4.4: "fan-out entirely local to the worker's peer table"). Indices
// are appended to dst[:0] and returned; only slots currently at
// LayerWS and MortalityLive are eligible for EVERY/EVERY_EXCEPT_*.
func Recipients(dst []uint32, d wire.DecodedOutbound, table *peer.Table) []uint32 {
	dst = dst[:0]
	switch d.Kind {
	case wire.KindSingle:
		if len(d.Recipients) == 1 {
			dst = append(dst, d.Recipients[0])
		}
	case wire.KindArray:
		dst = append(dst, d.Recipients...)
	case wire.KindEvery:
		table.Range(func(idx uint32, s *peer.Slot) {
			if eligible(s) {
				dst = append(dst, idx)
			}
		})
	case wire.KindEveryExceptSingle:
		var except uint32
		if len(d.Recipients) == 1 {
			except = d.Recipients[0]
		}
		table.Range(func(idx uint32, s *peer.Slot) {
			if idx != except && eligible(s) {
				dst = append(dst, idx)
			}
		})
	case wire.KindEveryExceptArray:
		excluded := make(map[uint32]struct{}, len(d.Recipients))
		for _, r := range d.Recipients {
			excluded[r] = struct{}{}
		}
		table.Range(func(idx uint32, s *peer.Slot) {
			if _, skip := excluded[idx]; skip {
				return
			}
			if eligible(s) {
				dst = append(dst, idx)
			}
		})
	}
	return dst
}

func eligible(s *peer.Slot) bool {
	return s.Layer == peer.LayerWS && s.Mortality == peer.MortalityLive
}
