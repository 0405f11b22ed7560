package rndc

import (
	"errors"
	"fmt"

	"github.com/isccctl/gornd/internal/iscc"
)

// State is a Session's position in the four-packet client exchange.
type State uint8

const (
	// StateStart is the initial state, before Start has been called.
	StateStart State = iota

	// StateWantWrite indicates a packet is ready and the caller must
	// transmit it, then call Next.
	StateWantWrite

	// StateWantRead indicates the caller must read bytes and call
	// NextRead(data).
	StateWantRead

	// StateWantFinish is terminal success.
	StateWantFinish

	// StateWantError is terminal failure.
	StateWantError
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateWantWrite:
		return "want_write"
	case StateWantRead:
		return "want_read"
	case StateWantFinish:
		return "want_finish"
	case StateWantError:
		return "want_error"
	default:
		return "unknown"
	}
}

// Sentinel errors for session misuse and protocol failure. Programmer
// errors (calling a method out of turn) are distinct from protocol
// failures (a malformed or unverifiable reply).
var (
	// ErrAlreadyStarted indicates Start was called more than once.
	ErrAlreadyStarted = errors.New("rndc: session already started")

	// ErrNotWantWrite indicates Next() was called outside want_write.
	ErrNotWantWrite = errors.New("rndc: next() called outside want_write")

	// ErrNotWantRead indicates NextRead(data) was called outside want_read.
	ErrNotWantRead = errors.New("rndc: next(data) called outside want_read")

	// ErrTerminated indicates a call was made against a Session that has
	// already reached want_finish or want_error.
	ErrTerminated = errors.New("rndc: session already terminated")
)

// Callbacks are the caller-supplied I/O hooks that drive a Session.
// Control returns to the caller at each callback, which is the Session's
// sole suspension point; the Session itself never blocks or performs I/O.
type Callbacks struct {
	// WantWrite is invoked with the bytes of a packet ready for
	// transmission. pkt is a diagnostic handle only. The caller must
	// send all bytes, then call Session.Next().
	WantWrite func(pkt *Packet, data []byte)

	// WantRead is invoked when the caller must read a reply and call
	// Session.NextRead(data) with the bytes received.
	WantRead func()

	// WantFinish is invoked exactly once, on success, with the server's
	// response text.
	WantFinish func(responseText string)

	// WantError is invoked exactly once, on failure, with a description
	// of what went wrong.
	WantError func(err error)
}

// Session drives one client-initiated four-packet RNDC exchange: open,
// nonce-reply, command, result. It is single-threaded and cooperative —
// it never blocks, never spawns goroutines, and never touches a socket
// directly.
type Session struct {
	key       *iscc.Key
	command   string
	callbacks Callbacks

	state     State
	nonceSeen bool
}

// NewSession constructs a client Session for command, authenticated with
// key. The session does not begin until Start is called.
func NewSession(key *iscc.Key, command string, callbacks Callbacks) *Session {
	return &Session{
		key:       key,
		command:   command,
		callbacks: callbacks,
		state:     StateStart,
	}
}

// State returns the session's current position in the exchange.
func (s *Session) State() State { return s.state }

// Start builds and emits the opener packet (no data, no nonce) and
// invokes WantWrite. Calling Start more than once is a programmer error.
func (s *Session) Start() {
	if s.state != StateStart {
		panic(ErrAlreadyStarted)
	}

	pkt := NewPacket(s.key, iscc.Table{{Key: fieldType, Value: iscc.Null()}}, nil)
	s.transmit(pkt)
}

// Next is called from WantWrite once the packet has been fully
// transmitted; it moves the session into want_read.
func (s *Session) Next() {
	if s.state != StateWantWrite {
		if s.state == StateWantFinish || s.state == StateWantError {
			panic(ErrTerminated)
		}
		panic(ErrNotWantWrite)
	}
	s.state = StateWantRead
	if s.callbacks.WantRead != nil {
		s.callbacks.WantRead()
	}
}

// NextRead is called from WantRead with the bytes received from the
// peer. It parses and validates the reply and either emits the next
// outbound packet (WantWrite) or terminates (WantFinish/WantError).
func (s *Session) NextRead(data []byte) {
	if s.state != StateWantRead {
		if s.state == StateWantFinish || s.state == StateWantError {
			panic(ErrTerminated)
		}
		panic(ErrNotWantRead)
	}
	pkt, err := ParsePacket(s.key, data)
	if err != nil {
		var serverErr *ServerError
		if errors.As(err, &serverErr) {
			s.fail(serverErr)
			return
		}
		s.fail(fmt.Errorf("rndc: parse reply: %w", err))
		return
	}

	if !s.nonceSeen {
		s.nonceSeen = true
		nonce, ok := pkt.Nonce()
		if !ok {
			s.fail(fmt.Errorf("rndc: nonce reply missing _ctrl._nonce"))
			return
		}

		cmdPkt := NewPacket(s.key, iscc.Table{{Key: fieldType, Value: CommandValue(s.command)}}, &nonce)
		s.transmit(cmdPkt)
		return
	}

	text := pkt.Text()
	if text == "" {
		text = "command success"
	}
	s.state = StateWantFinish
	if s.callbacks.WantFinish != nil {
		s.callbacks.WantFinish(text)
	}
}

func (s *Session) transmit(pkt *Packet) {
	bytes, err := pkt.ToBytes()
	if err != nil {
		s.fail(fmt.Errorf("rndc: serialize packet: %w", err))
		return
	}
	s.state = StateWantWrite
	if s.callbacks.WantWrite != nil {
		s.callbacks.WantWrite(pkt, bytes)
	}
}

func (s *Session) fail(err error) {
	s.state = StateWantError
	if s.callbacks.WantError != nil {
		s.callbacks.WantError(err)
	}
}
