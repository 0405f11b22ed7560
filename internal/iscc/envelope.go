package iscc

import (
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // RNDC v1 mandates HMAC-MD5; not a free choice.
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// Version is the only RNDC envelope version this codec speaks.
const Version uint32 = 1

// envelopeHeaderSize is the 4-byte length field plus the 4-byte version
// field: the fixed prefix before the auth table on the wire.
const envelopeHeaderSize = 8

// authKey/hmd5Key are the fixed table keys of the auth sub-table.
const (
	authKey = "_auth"
	hmd5Key = "hmd5"
)

// Sentinel errors for envelope framing and signature verification.
var (
	// ErrBadVersion indicates the envelope's version field was not 1.
	ErrBadVersion = errors.New("iscc: unsupported envelope version")

	// ErrSignatureMismatch indicates the computed HMAC-MD5 did not match
	// the auth table's hmd5 field.
	ErrSignatureMismatch = errors.New("iscc: couldn't validate response with provided key")

	// ErrMissingSignature indicates the auth table had no hmd5 entry.
	ErrMissingSignature = errors.New("iscc: auth table missing hmd5 entry")

	// ErrAuthEntryName indicates the auth table's single entry was not
	// named "_auth".
	ErrAuthEntryName = errors.New("iscc: auth table entry is not _auth")
)

// Sign computes the Base64 HMAC-MD5 signature of payload (the exact bytes
// that follow the auth table on the wire) under key.
func Sign(key *Key, payload []byte) (string, error) {
	secret, err := key.Bytes()
	if err != nil {
		return "", err
	}

	mac := hmac.New(md5.New, secret)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether sig is the correct Base64 HMAC-MD5 of payload
// under key, in constant time.
func Verify(key *Key, payload []byte, sig string) error {
	want, err := Sign(key, payload)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(sig)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}

// WrapEnvelope serializes payload (the caller's _ctrl/_data top-level
// entries) in canonical order, signs it with key, and returns the full
// wire frame:
//
//	[4B length][4B version][auth table, header-less][payload table, header-less]
func WrapEnvelope(key *Key, payload Table) ([]byte, error) {
	payloadBytes := MarshalTableNoHeader(payload)

	sig, err := Sign(key, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("iscc: sign envelope: %w", err)
	}

	authTable := Table{
		{Key: authKey, Value: TableValue(Table{
			{Key: hmd5Key, Value: String(sig)},
		})},
	}
	authBytes := MarshalTableNoHeader(authTable)

	remainder := len(authBytes) + len(payloadBytes)
	frame := make([]byte, 0, envelopeHeaderSize+remainder)

	var lenBuf, verBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(4+remainder))
	binary.BigEndian.PutUint32(verBuf[:], Version)

	frame = append(frame, lenBuf[:]...)
	frame = append(frame, verBuf[:]...)
	frame = append(frame, authBytes...)
	frame = append(frame, payloadBytes...)

	return frame, nil
}

// ParseEnvelope decodes a full wire frame (as produced by WrapEnvelope),
// verifies its signature against key, and returns the payload table
// (the caller's _ctrl/_data entries).
//
// The auth table's extent is found explicitly by decoding its single
// entry rather than assuming a fixed 51-byte offset, since the HMAC
// field's own length can vary.
func ParseEnvelope(key *Key, frame []byte) (Table, error) {
	if len(frame) < envelopeHeaderSize {
		return nil, fmt.Errorf("iscc: envelope header: %w", ErrTruncated)
	}

	totalLen := binary.BigEndian.Uint32(frame[0:4])
	version := binary.BigEndian.Uint32(frame[4:8])
	if version != Version {
		return nil, fmt.Errorf("iscc: envelope version %d: %w", version, ErrBadVersion)
	}
	if uint64(len(frame)-4) < uint64(totalLen) {
		return nil, fmt.Errorf("iscc: envelope declares %d bytes, have %d: %w",
			totalLen, len(frame)-4, ErrTruncated)
	}

	rest := frame[envelopeHeaderSize:]

	authEntry, authConsumed, err := UnmarshalOneEntry(rest)
	if err != nil {
		return nil, fmt.Errorf("iscc: auth table: %w", err)
	}
	if authEntry.Key != authKey {
		return nil, fmt.Errorf("iscc: auth table entry %q: %w", authEntry.Key, ErrAuthEntryName)
	}
	if authEntry.Value.Kind != TypeTable {
		return nil, fmt.Errorf("iscc: auth table entry value: %w", ErrNotTable)
	}

	hmd5, ok := authEntry.Value.Table.Get(hmd5Key)
	if !ok {
		return nil, ErrMissingSignature
	}

	payloadBytes := rest[authConsumed:]

	if err := Verify(key, payloadBytes, hmd5.Text()); err != nil {
		return nil, err
	}

	payload, err := UnmarshalTableNoHeader(payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("iscc: payload table: %w", err)
	}

	return payload, nil
}
