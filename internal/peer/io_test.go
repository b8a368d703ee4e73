//go:build linux

package peer

import (
	"testing"

	"github.com/momentics/ringsocket/api"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestReadReturnsAgainWhenEmpty(t *testing.T) {
	a, _ := socketPair(t)
	s := &Slot{FD: a}
	buf := make([]byte, 64)
	n, res := Read(s, buf)
	if res != api.Again || n != 0 {
		t.Fatalf("n=%d res=%v, want Again", n, res)
	}
	if s.IsWriting {
		t.Fatalf("IsWriting should be cleared on AGAIN")
	}
}

func TestReadReturnsDataThenClosePeerOnPeerClose(t *testing.T) {
	a, b := socketPair(t)
	if _, err := unix.Write(b, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := &Slot{FD: a}
	buf := make([]byte, 64)
	n, res := Read(s, buf)
	if res != api.OK || string(buf[:n]) != "hello" {
		t.Fatalf("n=%d res=%v buf=%q", n, res, buf[:n])
	}
	unix.Close(b)
	// Drain until EOF is observed.
	for {
		n, res = Read(s, buf)
		if res == api.ClosePeer {
			break
		}
		if res == api.Again {
			t.Fatalf("unexpected AGAIN before peer close observed")
		}
	}
}

func TestWriteCompletesInOneShotForSmallMessage(t *testing.T) {
	a, b := socketPair(t)
	s := &Slot{FD: a}
	msg := []byte("small message")
	res := Write(s, msg)
	if res != api.OK || s.OldWsize != 0 {
		t.Fatalf("res=%v OldWsize=%d, want OK/0", res, s.OldWsize)
	}
	got := make([]byte, len(msg))
	if _, err := unix.Read(b, got); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != string(msg) {
		t.Fatalf("got %q, want %q", got, msg)
	}
}

func TestWriteCompletesWhenOldWsizeCoversMessage(t *testing.T) {
	a, _ := socketPair(t)
	s := &Slot{FD: a}
	msg := []byte("the quick brown fox")

	s.OldWsize = len(msg)
	res := Write(s, msg)
	if res != api.OK || s.OldWsize != 0 {
		t.Fatalf("degenerate zero-remaining write: res=%v OldWsize=%d", res, s.OldWsize)
	}
}

func TestShutdownWriteTransitionsMortality(t *testing.T) {
	a, _ := socketPair(t)
	s := &Slot{FD: a, Layer: LayerWS, Mortality: MortalityShutdownWrite}
	if res := ShutdownWrite(s); res != api.OK {
		t.Fatalf("ShutdownWrite: %v", res)
	}
	if s.Layer != LayerTCP || s.Mortality != MortalityShutdownRead {
		t.Fatalf("layer=%v mortality=%v, want TCP/SHUTDOWN_READ", s.Layer, s.Mortality)
	}
}

func TestDrainShutdownReadReachesDead(t *testing.T) {
	a, b := socketPair(t)
	unix.Write(b, []byte("ignored garbage"))
	unix.Close(b)
	s := &Slot{FD: a, Mortality: MortalityShutdownRead}
	scratch := make([]byte, 32)
	res := DrainShutdownRead(s, scratch)
	if res != api.ClosePeer || s.Mortality != MortalityDead {
		t.Fatalf("res=%v mortality=%v, want ClosePeer/DEAD", res, s.Mortality)
	}
}

func TestHandleMortalityFullSequence(t *testing.T) {
	a, b := socketPair(t)
	s := &Slot{FD: a, Layer: LayerWS, Mortality: MortalityShutdownWrite}
	scratch := make([]byte, 32)

	unix.Close(b)
	dead, res := HandleMortality(s, scratch)
	if res != api.OK {
		t.Fatalf("res=%v, want OK", res)
	}
	if !dead {
		t.Fatalf("expected peer to reach DEAD in one turn once peer fd is closed")
	}
	if err := Close(s); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
