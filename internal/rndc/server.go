package rndc

import (
	"errors"
	"fmt"

	"github.com/isccctl/gornd/internal/iscc"
)

// DispatchFunc executes a parsed command and returns the text to report
// back to the client, or an error to report as _data.err.
type DispatchFunc func(command string) (text string, err error)

// ServerCallbacks are the caller-supplied I/O hooks driving a
// ServerSession, mirroring Callbacks but inverted for the server role.
type ServerCallbacks struct {
	// WantRead is invoked when the caller must read bytes from the
	// accepted connection and call ServerSession.NextRead(data).
	WantRead func()

	// WantWrite is invoked with the bytes of a reply ready for
	// transmission. The caller must send all bytes, then call
	// ServerSession.Next().
	WantWrite func(pkt *Packet, data []byte)

	// WantFinish is invoked once the result packet has been written
	// successfully.
	WantFinish func()

	// WantError is invoked once the (best-effort) error packet has been
	// written, or immediately if no reply could be serialized at all.
	WantError func(err error)
}

// afterWrite names what a pending WantWrite callback should transition
// to once the caller confirms the bytes were sent via Next().
type afterWrite uint8

const (
	afterWriteRead afterWrite = iota
	afterWriteFinish
	afterWriteError
)

// ServerSession implements the server half of one RNDC exchange: accept
// the client's opener, issue a nonce, validate the signed command
// packet, dispatch it, and write the result.
type ServerSession struct {
	key       *iscc.Key
	dispatch  DispatchFunc
	callbacks ServerCallbacks

	state       State
	nonce       uint32
	nonceIssued bool
	pending     afterWrite
	terminalErr error
}

// NewServerSession constructs a ServerSession authenticated with key,
// invoking dispatch once a validated command arrives.
func NewServerSession(key *iscc.Key, dispatch DispatchFunc, callbacks ServerCallbacks) *ServerSession {
	return &ServerSession{
		key:       key,
		dispatch:  dispatch,
		callbacks: callbacks,
		state:     StateWantRead,
	}
}

// State returns the session's current position.
func (s *ServerSession) State() State { return s.state }

// Start invokes WantRead to await the client's opener packet.
func (s *ServerSession) Start() {
	if s.state != StateWantRead {
		panic(ErrAlreadyStarted)
	}
	if s.callbacks.WantRead != nil {
		s.callbacks.WantRead()
	}
}

// Next is called from WantWrite once a reply has been fully transmitted.
// It transitions to whichever state the write was queued for: another
// want_read, want_finish on a successful result, or want_error once the
// fabricated error packet has gone out.
func (s *ServerSession) Next() {
	if s.state != StateWantWrite {
		if s.state == StateWantFinish || s.state == StateWantError {
			panic(ErrTerminated)
		}
		panic(ErrNotWantWrite)
	}

	switch s.pending {
	case afterWriteRead:
		s.state = StateWantRead
		if s.callbacks.WantRead != nil {
			s.callbacks.WantRead()
		}
	case afterWriteFinish:
		s.state = StateWantFinish
		if s.callbacks.WantFinish != nil {
			s.callbacks.WantFinish()
		}
	case afterWriteError:
		s.state = StateWantError
		if s.callbacks.WantError != nil {
			s.callbacks.WantError(s.terminalErr)
		}
	}
}

// NextRead is called with bytes read from the connection. A packet that
// does not carry the nonce this session issued (the client's opener
// carries none) is answered with a freshly minted nonce. A packet that
// carries it is the signed command: on success dispatch runs and the
// result is written. On a dispatch, parse or verification failure the
// session fabricates an error packet and forces one more want_write
// before surrendering.
func (s *ServerSession) NextRead(data []byte) {
	if s.state != StateWantRead {
		panic(ErrNotWantRead)
	}

	pkt, err := ParsePacket(s.key, data)
	if err != nil {
		s.fail(fmt.Errorf("rndc: parse request: %w", err))
		return
	}

	if nonce, ok := pkt.Nonce(); !ok || !s.nonceIssued || nonce != s.nonce {
		s.acceptOpener()
		return
	}

	s.handleCommand(pkt)
}

func (s *ServerSession) acceptOpener() {
	s.nonce = nextSerial()
	s.nonceIssued = true

	reply := NewPacket(s.key, iscc.Table{{Key: fieldType, Value: iscc.Null()}}, &s.nonce)
	s.send(reply, afterWriteRead, nil)
}

func (s *ServerSession) handleCommand(pkt *Packet) {
	command := pkt.Type()

	if s.dispatch == nil {
		s.fail(errors.New("rndc: server session has no dispatch function"))
		return
	}

	text, err := s.dispatch(command)
	if err != nil {
		s.fail(err)
		return
	}

	result := NewPacket(s.key, iscc.Table{
		{Key: fieldType, Value: iscc.Null()},
		{Key: fieldText, Value: iscc.String(text)},
	}, &s.nonce)
	s.send(result, afterWriteFinish, nil)
}

// send serializes pkt and invokes WantWrite, recording what Next() should
// do once the caller confirms transmission. On serialization failure
// nothing is written: the session moves straight to want_error, reporting
// onFail in place of the serialization error when onFail is non-nil.
func (s *ServerSession) send(pkt *Packet, next afterWrite, onFail error) {
	bytes, err := pkt.ToBytes()
	if err != nil {
		if onFail != nil {
			err = onFail
		}
		s.terminalErr = fmt.Errorf("rndc: serialize reply: %w", err)
		s.state = StateWantError
		if s.callbacks.WantError != nil {
			s.callbacks.WantError(s.terminalErr)
		}
		return
	}

	s.pending = next
	s.state = StateWantWrite
	if s.callbacks.WantWrite != nil {
		s.callbacks.WantWrite(pkt, bytes)
	}
}

// fail fabricates an error packet (_data.err set) and forces one more
// want_write before transitioning to want_error.
func (s *ServerSession) fail(err error) {
	errPkt := NewPacket(s.key, iscc.Table{
		{Key: fieldType, Value: iscc.Null()},
		{Key: fieldErr, Value: iscc.String(err.Error())},
	}, &s.nonce)

	s.terminalErr = err
	s.send(errPkt, afterWriteError, err)
}
