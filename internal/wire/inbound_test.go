package wire

import (
	"testing"

	"github.com/momentics/ringsocket/api"
)

func TestInboundOpenRoundTrip(t *testing.T) {
	raw := EncodeInboundOpen(nil, 7)
	d, n, err := DecodeInbound(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("consumed %d, want %d", n, len(raw))
	}
	if d.Kind != KindOpen || d.PeerSlot != 7 {
		t.Fatalf("unexpected: %+v", d)
	}
}

func TestInboundReadRoundTrip(t *testing.T) {
	raw := EncodeInboundRead(nil, 3, true, []byte("payload"))
	d, n, err := DecodeInbound(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("consumed %d, want %d", n, len(raw))
	}
	if d.Kind != KindRead || d.PeerSlot != 3 || !d.IsBinary || string(d.Payload) != "payload" {
		t.Fatalf("unexpected: %+v", d)
	}
}

func TestInboundCloseRoundTrip(t *testing.T) {
	raw := EncodeInboundClose(nil, 9, api.CloseNormal)
	d, n, err := DecodeInbound(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("consumed %d, want %d", n, len(raw))
	}
	if d.Kind != KindClose || d.PeerSlot != 9 || d.CloseCode != api.CloseNormal {
		t.Fatalf("unexpected: %+v", d)
	}
}

func TestInboundMultipleRecordsConcatenated(t *testing.T) {
	var buf []byte
	buf = EncodeInboundOpen(buf, 1)
	buf = EncodeInboundRead(buf, 1, false, []byte("hi"))
	buf = EncodeInboundClose(buf, 1, api.CloseGoingAway)

	d1, n1, err := DecodeInbound(buf)
	if err != nil || n1 == 0 {
		t.Fatalf("first record: n=%d err=%v", n1, err)
	}
	if d1.Kind != KindOpen {
		t.Fatalf("first record kind = %v", d1.Kind)
	}
	rest := buf[n1:]

	d2, n2, err := DecodeInbound(rest)
	if err != nil || n2 == 0 {
		t.Fatalf("second record: n=%d err=%v", n2, err)
	}
	if d2.Kind != KindRead || string(d2.Payload) != "hi" {
		t.Fatalf("second record: %+v", d2)
	}
	rest = rest[n2:]

	d3, n3, err := DecodeInbound(rest)
	if err != nil || n3 != len(rest) {
		t.Fatalf("third record: n=%d err=%v", n3, err)
	}
	if d3.Kind != KindClose || d3.CloseCode != api.CloseGoingAway {
		t.Fatalf("third record: %+v", d3)
	}
}

func TestInboundIncompleteReturnsZero(t *testing.T) {
	raw := EncodeInboundRead(nil, 1, false, []byte("hello world"))
	_, n, err := DecodeInbound(raw[:len(raw)-3])
	if err != nil {
		t.Fatalf("unexpected error on partial record: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected incomplete (n=0), got %d", n)
	}
}

func TestInboundShortLengthPrefixReturnsZero(t *testing.T) {
	_, n, err := DecodeInbound([]byte{0, 0})
	if err != nil || n != 0 {
		t.Fatalf("expected incomplete-no-error, got n=%d err=%v", n, err)
	}
}

func TestInboundUnknownKindErrors(t *testing.T) {
	raw := EncodeInboundOpen(nil, 1)
	raw[4] = 0xFF // corrupt the kind byte following the length prefix
	_, _, err := DecodeInbound(raw)
	if err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
