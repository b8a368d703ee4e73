package peer

import (
	"crypto/tls"
	"io"
	"net"
	"sync"
	"time"
)

// immediatePast is a deadline already in the past, used to make a pipe
// Read non-blocking: it returns immediately with a timeout error if no
// data is already buffered.
var immediatePast = time.Unix(0, 1)

// TLSSession bridges this core's non-blocking, epoll-driven fd model
// to Go's crypto/tls, which only speaks to a blocking net.Conn. Each
// session runs tls.Server against one half of an in-process net.Pipe
// on its own goroutine; the worker feeds raw ciphertext read off the
// socket into the pipe and drains ciphertext the TLS library wants
// sent back out, decoupling kernel-fd readiness polling (owned
// exclusively by the worker's epoll reactor) from the library's
// blocking Read/Write contract. This is the one layer of the core that
// cannot honor a pure want-read/want-write resumption loop without
// either vendoring a userspace TLS state machine or accepting this
// goroutine-per-session bridge; spec §4.3 sanctions exactly this
// black-box treatment ("identical outcome classes derived from the TLS
// library's want-read/want-write/fatal signals").
type TLSSession struct {
	netConn  net.Conn // worker's half: Write() ciphertext in, Read() ciphertext out
	tlsConn  *tls.Conn

	mu           sync.Mutex
	handshakeErr error
	handshakeCh  chan struct{}
}

// NewTLSSession starts the handshake goroutine and returns immediately;
// call HandshakeDone to poll completion.
func NewTLSSession(config *tls.Config) *TLSSession {
	workerSide, tlsSide := net.Pipe()
	s := &TLSSession{
		netConn:     workerSide,
		tlsConn:     tls.Server(tlsSide, config),
		handshakeCh: make(chan struct{}),
	}
	go func() {
		err := s.tlsConn.Handshake()
		s.mu.Lock()
		s.handshakeErr = err
		s.mu.Unlock()
		close(s.handshakeCh)
	}()
	return s
}

// HandshakeDone reports whether the handshake goroutine has finished,
// and its result if so.
func (s *TLSSession) HandshakeDone() (done bool, err error) {
	select {
	case <-s.handshakeCh:
		s.mu.Lock()
		defer s.mu.Unlock()
		return true, s.handshakeErr
	default:
		return false, nil
	}
}

// FeedCiphertext delivers raw bytes read off the socket to the TLS
// library's side of the pipe. Returns the number of bytes consumed.
func (s *TLSSession) FeedCiphertext(b []byte) (int, error) {
	return s.netConn.Write(b)
}

// DrainCiphertext reads bytes the TLS library wants written back to
// the socket, non-blocking: returns (0, nil) rather than blocking if
// nothing is pending.
func (s *TLSSession) DrainCiphertext(buf []byte) (int, error) {
	s.netConn.SetReadDeadline(immediatePast)
	n, err := s.netConn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil
		}
		if err == io.EOF {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// ReadPlaintext and WritePlaintext pass through to the tls.Conn for
// application-layer (HTTP/WS) bytes once the handshake has completed.
func (s *TLSSession) ReadPlaintext(buf []byte) (int, error)  { return s.tlsConn.Read(buf) }
func (s *TLSSession) WritePlaintext(buf []byte) (int, error) { return s.tlsConn.Write(buf) }

// Close tears down both the pipe and the tls.Conn.
func (s *TLSSession) Close() error {
	err1 := s.tlsConn.Close()
	err2 := s.netConn.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
