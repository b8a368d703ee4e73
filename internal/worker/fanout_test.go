package worker

import (
	"reflect"
	"sort"
	"testing"

	"github.com/momentics/ringsocket/internal/peer"
	"github.com/momentics/ringsocket/internal/wire"
)

func newLiveWSTable(n int) *peer.Table {
	tbl := peer.NewTable(n)
	for i := 0; i < n; i++ {
		idx, s, err := tbl.Alloc(i+100, false, 0)
		if err != nil {
			panic(err)
		}
		_ = idx
		s.Layer = peer.LayerWS
		s.Mortality = peer.MortalityLive
	}
	return tbl
}

func sortedU32(s []uint32) []uint32 {
	out := append([]uint32(nil), s...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestRecipientsSingle(t *testing.T) {
	tbl := newLiveWSTable(3)
	d := wire.DecodedOutbound{Kind: wire.KindSingle, Recipients: []uint32{1}}
	got := Recipients(nil, d, tbl)
	if !reflect.DeepEqual(got, []uint32{1}) {
		t.Fatalf("got %v, want [1]", got)
	}
}

func TestRecipientsArray(t *testing.T) {
	tbl := newLiveWSTable(3)
	d := wire.DecodedOutbound{Kind: wire.KindArray, Recipients: []uint32{0, 2}}
	got := Recipients(nil, d, tbl)
	if !reflect.DeepEqual(sortedU32(got), []uint32{0, 2}) {
		t.Fatalf("got %v, want [0 2]", got)
	}
}

func TestRecipientsEvery(t *testing.T) {
	tbl := newLiveWSTable(3)
	d := wire.DecodedOutbound{Kind: wire.KindEvery}
	got := Recipients(nil, d, tbl)
	if !reflect.DeepEqual(sortedU32(got), []uint32{0, 1, 2}) {
		t.Fatalf("got %v, want [0 1 2]", got)
	}
}

func TestRecipientsEveryExceptSingle(t *testing.T) {
	tbl := newLiveWSTable(3)
	d := wire.DecodedOutbound{Kind: wire.KindEveryExceptSingle, Recipients: []uint32{1}}
	got := Recipients(nil, d, tbl)
	if !reflect.DeepEqual(sortedU32(got), []uint32{0, 2}) {
		t.Fatalf("got %v, want [0 2]", got)
	}
}

func TestRecipientsEveryExceptArray(t *testing.T) {
	tbl := newLiveWSTable(4)
	d := wire.DecodedOutbound{Kind: wire.KindEveryExceptArray, Recipients: []uint32{1, 3}}
	got := Recipients(nil, d, tbl)
	if !reflect.DeepEqual(sortedU32(got), []uint32{0, 2}) {
		t.Fatalf("got %v, want [0 2]", got)
	}
}

func TestRecipientsEveryExcludesNonWSPeers(t *testing.T) {
	tbl := peer.NewTable(3)
	idx0, s0, _ := tbl.Alloc(100, false, 0)
	s0.Layer = peer.LayerWS
	s0.Mortality = peer.MortalityLive
	_, s1, _ := tbl.Alloc(101, false, 0)
	s1.Layer = peer.LayerHTTP // still upgrading, not eligible
	s1.Mortality = peer.MortalityLive

	d := wire.DecodedOutbound{Kind: wire.KindEvery}
	got := Recipients(nil, d, tbl)
	if !reflect.DeepEqual(got, []uint32{idx0}) {
		t.Fatalf("got %v, want [%d]", got, idx0)
	}
}
