// Package rndc implements the client (and optional server) half of the
// BIND Remote Name Daemon Control version 1 protocol: the framed, signed
// Packet message and the four-packet Session state machine built on top
// of the internal/iscc wire codec.
package rndc

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/isccctl/gornd/internal/iscc"
)

// -------------------------------------------------------------------------
// Process-wide serial counter
// -------------------------------------------------------------------------

// serialCounter is seeded from a cryptographically random value at package
// load and incremented (relaxed atomicity is sufficient: the protocol
// tolerates duplicate serials, only per-session uniqueness matters).
var serialCounter uint32

func init() {
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err == nil {
		serialCounter = binary.BigEndian.Uint32(seed[:])
	}
}

func nextSerial() uint32 {
	return atomic.AddUint32(&serialCounter, 1)
}

// -------------------------------------------------------------------------
// Packet
// -------------------------------------------------------------------------

// Ctrl/data table field names.
const (
	ctrlKey    = "_ctrl"
	dataKey    = "_data"
	fieldSer   = "_ser"
	fieldTim   = "_tim"
	fieldExp   = "_exp"
	fieldNonce = "_nonce"
	fieldType  = "type"
	fieldText  = "text"
	fieldErr   = "err"
)

// expirySeconds is the lifetime written into _ctrl._exp (_tim + 60).
const expirySeconds = 60

// ServerError wraps a non-empty _data.err surfaced by a parsed Packet.
type ServerError struct {
	Text string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("rndc: server error: %s", e.Text)
}

// Packet is one framed RNDC message: a key, a control sub-table, and a
// data sub-table, serialized and parsed via the iscc codec.
type Packet struct {
	key    *iscc.Key
	serial uint32
	nonce  *uint32
	data   iscc.Table
}

// NewPacket builds a Packet ready for serialization. data defaults to
// {type: null} when nil. nonce is nil unless the packet must echo a
// server-issued challenge (the client's second outbound packet, or any
// server reply).
func NewPacket(key *iscc.Key, data iscc.Table, nonce *uint32) *Packet {
	if data == nil {
		data = iscc.Table{{Key: fieldType, Value: iscc.Null()}}
	}
	return &Packet{
		key:    key,
		serial: nextSerial(),
		nonce:  nonce,
		data:   data,
	}
}

// CommandValue builds the _data.type Value for a command string: the
// literal "null" Binary when command is empty, the command text
// otherwise.
func CommandValue(command string) iscc.Value {
	if command == "" {
		return iscc.Null()
	}
	return iscc.String(command)
}

// ToBytes serializes the packet as a full signed envelope. _ctrl._tim and
// _ctrl._exp are stamped with the current time at the moment of the call.
func (p *Packet) ToBytes() ([]byte, error) {
	now := time.Now().Unix()

	ctrl := iscc.Table{
		{Key: fieldSer, Value: iscc.Number(uint64(p.serial))},
		{Key: fieldTim, Value: iscc.Number(uint64(now))},
		{Key: fieldExp, Value: iscc.Number(uint64(now) + expirySeconds)},
	}
	if p.nonce != nil {
		ctrl = ctrl.Set(fieldNonce, iscc.Number(uint64(*p.nonce)))
	}

	payload := iscc.Table{
		{Key: ctrlKey, Value: iscc.TableValue(ctrl)},
		{Key: dataKey, Value: iscc.TableValue(p.data)},
	}

	frame, err := iscc.WrapEnvelope(p.key, payload)
	if err != nil {
		return nil, fmt.Errorf("rndc: serialize packet: %w", err)
	}
	return frame, nil
}

// ParsePacket decodes and signature-verifies a wire frame, returning the
// populated Packet. If the decoded _data.err field is present and
// non-empty, ParsePacket returns both the packet and a *ServerError — the
// packet's fields (e.g. Serial) remain inspectable even on this path.
func ParsePacket(key *iscc.Key, frame []byte) (*Packet, error) {
	payload, err := iscc.ParseEnvelope(key, frame)
	if err != nil {
		return nil, fmt.Errorf("rndc: parse packet: %w", err)
	}

	p := &Packet{key: key}

	if ctrlV, ok := payload.Get(ctrlKey); ok && ctrlV.Kind == iscc.TypeTable {
		if serV, ok := ctrlV.Table.Get(fieldSer); ok {
			if n, convErr := strconv.ParseUint(serV.Text(), 10, 32); convErr == nil {
				p.serial = uint32(n)
			}
		}
		if nonceV, ok := ctrlV.Table.Get(fieldNonce); ok {
			if n, convErr := strconv.ParseUint(nonceV.Text(), 10, 32); convErr == nil {
				nn := uint32(n)
				p.nonce = &nn
			}
		}
	}

	if dataV, ok := payload.Get(dataKey); ok && dataV.Kind == iscc.TypeTable {
		p.data = dataV.Table
	}

	if errV, ok := p.data.Get(fieldErr); ok && errV.Text() != "" {
		return p, &ServerError{Text: errV.Text()}
	}

	return p, nil
}

// Serial returns the packet's _ctrl._ser value.
func (p *Packet) Serial() uint32 { return p.serial }

// Nonce returns the packet's _ctrl._nonce value, if present.
func (p *Packet) Nonce() (uint32, bool) {
	if p.nonce == nil {
		return 0, false
	}
	return *p.nonce, true
}

// Type returns the packet's _data.type value.
func (p *Packet) Type() string {
	v, _ := p.data.Get(fieldType)
	return v.Text()
}

// Text returns the packet's _data.text value, if any.
func (p *Packet) Text() string {
	v, _ := p.data.Get(fieldText)
	return v.Text()
}

// Err returns the packet's _data.err value, if any.
func (p *Packet) Err() string {
	v, _ := p.data.Get(fieldErr)
	return v.Text()
}
