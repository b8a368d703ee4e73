package wire

import (
	"errors"
	"testing"

	"github.com/momentics/ringsocket/api"
)

func TestReassemblerSingleUnfragmented(t *testing.T) {
	r := NewReassembler(1 << 20)
	out, opcode, done, err := r.Feed(Header{Fin: true, Opcode: OpcodeText}, []byte("hello"))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if !done || opcode != OpcodeText || string(out) != "hello" {
		t.Fatalf("unexpected result: done=%v opcode=%v out=%q", done, opcode, out)
	}
	if r.InProgress() {
		t.Fatalf("should not be in progress after a final fragment")
	}
}

func TestReassemblerThreeFragments(t *testing.T) {
	r := NewReassembler(1 << 20)

	_, _, done, err := r.Feed(Header{Fin: false, Opcode: OpcodeText}, []byte("hel"))
	if err != nil || done {
		t.Fatalf("first fragment: done=%v err=%v", done, err)
	}
	if !r.InProgress() {
		t.Fatalf("expected in-progress after first fragment")
	}

	_, _, done, err = r.Feed(Header{Fin: false, Opcode: OpcodeContinuation}, []byte("lo "))
	if err != nil || done {
		t.Fatalf("second fragment: done=%v err=%v", done, err)
	}

	out, opcode, done, err := r.Feed(Header{Fin: true, Opcode: OpcodeContinuation}, []byte("world"))
	if err != nil {
		t.Fatalf("final fragment: %v", err)
	}
	if !done || opcode != OpcodeText || string(out) != "hello world" {
		t.Fatalf("unexpected result: done=%v opcode=%v out=%q", done, opcode, out)
	}
}

func TestReassemblerRejectsContinuationWithoutStart(t *testing.T) {
	r := NewReassembler(1 << 20)
	_, _, _, err := r.Feed(Header{Fin: true, Opcode: OpcodeContinuation}, []byte("x"))
	if !errors.Is(err, api.ErrInvalidFrame) {
		t.Fatalf("expected ErrInvalidFrame, got %v", err)
	}
}

func TestReassemblerRejectsInterleavedStart(t *testing.T) {
	r := NewReassembler(1 << 20)
	_, _, _, err := r.Feed(Header{Fin: false, Opcode: OpcodeText}, []byte("hel"))
	if err != nil {
		t.Fatalf("first fragment: %v", err)
	}
	_, _, _, err = r.Feed(Header{Fin: false, Opcode: OpcodeBinary}, []byte("oops"))
	if !errors.Is(err, api.ErrInvalidFrame) {
		t.Fatalf("expected ErrInvalidFrame for interleaved start, got %v", err)
	}
}

func TestReassemblerEnforcesMaxSize(t *testing.T) {
	r := NewReassembler(8)
	_, _, _, err := r.Feed(Header{Fin: false, Opcode: OpcodeText}, []byte("01234567"))
	if err != nil {
		t.Fatalf("first fragment within bound: %v", err)
	}
	_, _, _, err = r.Feed(Header{Fin: true, Opcode: OpcodeContinuation}, []byte("x"))
	if !errors.Is(err, api.ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	if r.InProgress() {
		t.Fatalf("overflow should reset reassembly state")
	}
}
