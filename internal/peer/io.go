package peer

import (
	"errors"
	"fmt"

	"github.com/momentics/ringsocket/api"
	"golang.org/x/sys/unix"
)

// Read performs one non-blocking read on s's socket into buf, grounded
// on rs_tcp.c's read_tcp: positive n -> caller parses at the current
// layer; n==0 -> peer closed its write half; EAGAIN -> clear the
// writing shadow and wait for the next readiness event; any other
// error closes the peer.
func Read(s *Slot, buf []byte) (n int, res api.Result) {
	n, err := unix.Read(s.FD, buf)
	if err == nil && n > 0 {
		return n, api.OK
	}
	if err == nil && n == 0 {
		return 0, api.ClosePeer
	}
	if errors.Is(err, unix.EAGAIN) {
		s.IsWriting = false
		return 0, api.Again
	}
	return 0, api.ClosePeer
}

// Write resumes a (possibly partial) non-blocking write of msg,
// grounded on rs_tcp.c's write_tcp. msg must be the same slice across
// retries of the same logical message — Write reads from s.OldWsize
// forward and never mutates its caller's view of msg. Completion
// (api.OK) is the only success outcome; there is no "partial OK".
//
// Note: the original C source's write_tcp has a well-known bug,
// `if (errno = EAGAIN)` (assignment, not comparison), which always
// treats a real write error as EAGAIN and retries forever. That bug is
// not reproduced here; genuine write errors fall through to ClosePeer.
func Write(s *Slot, msg []byte) api.Result {
	remaining := msg[s.OldWsize:]
	if len(remaining) == 0 {
		s.OldWsize = 0
		return api.OK
	}
	n, err := unix.Write(s.FD, remaining)
	if err == nil {
		if n == len(remaining) {
			s.OldWsize = 0
			return api.OK
		}
		s.OldWsize += n
		s.IsWriting = true
		return api.Again
	}
	if errors.Is(err, unix.EAGAIN) {
		s.IsWriting = true
		return api.Again
	}
	return api.ClosePeer
}

// ShutdownWrite issues a TCP half-close of the write side and advances
// the peer to SHUTDOWN_READ, dropping its layer back to TCP (spec
// §4.3 "Graceful shutdown"). Must be called exactly once per peer.
func ShutdownWrite(s *Slot) api.Result {
	if err := unix.Shutdown(s.FD, unix.SHUT_WR); err != nil {
		return api.Fatal
	}
	s.Layer = LayerTCP
	s.Mortality = MortalityShutdownRead
	return api.OK
}

// DrainShutdownRead reads and discards until the peer also closes
// (read returns 0), at which point the peer transitions to DEAD.
// Any bytes observed are intentionally ignored: discarding them
// prevents the kernel from sending an RST instead of completing the
// four-way close.
func DrainShutdownRead(s *Slot, scratch []byte) api.Result {
	for {
		n, err := unix.Read(s.FD, scratch)
		if err == nil && n > 0 {
			continue
		}
		if err == nil && n == 0 {
			s.Mortality = MortalityDead
			return api.ClosePeer
		}
		if errors.Is(err, unix.EAGAIN) {
			s.IsWriting = false
			return api.Again
		}
		s.Mortality = MortalityDead
		return api.ClosePeer
	}
}

// HandleMortality advances a peer through its shutdown progression for
// one worker-loop turn, following handle_tcp_io's case fallthrough:
// SHUTDOWN_WRITE issues the FIN then immediately attempts the
// SHUTDOWN_READ drain in the same turn; a freshly-LIVE peer is left
// alone (its layer is assigned by the caller on first dispatch). When
// this returns true the peer is DEAD and ready for Close.
func HandleMortality(s *Slot, scratch []byte) (dead bool, res api.Result) {
	switch s.Mortality {
	case MortalityShutdownWrite:
		if r := ShutdownWrite(s); r != api.OK {
			return false, r
		}
		fallthrough
	case MortalityShutdownRead:
		switch r := DrainShutdownRead(s, scratch); r {
		case api.Again:
			return false, api.OK
		case api.Fatal:
			return false, api.Fatal
		default:
			// ClosePeer: drain completed, mortality is now DEAD.
		}
	case MortalityDead:
	default:
		return false, api.OK
	}
	return s.Mortality == MortalityDead, api.OK
}

// Close releases the socket descriptor. Explicit epoll de-registration
// is unnecessary: once the only descriptor referencing a file
// description closes, the kernel drops all of its epoll registrations
// (man 7 epoll, Q6).
func Close(s *Slot) error {
	if err := unix.Close(s.FD); err != nil {
		return fmt.Errorf("close fd %d: %w", s.FD, err)
	}
	return nil
}
