package rndc_test

import (
	"strings"
	"testing"

	"github.com/isccctl/gornd/internal/iscc"
	"github.com/isccctl/gornd/internal/rndc"
)

// fakeServer is a minimal scripted peer driving the opposite side of a
// client Session: it echoes a nonce on the first packet and a fixed
// response on the second.
type fakeServer struct {
	key *iscc.Key
	// clientKey, when set, verifies inbound frames in place of key, so the
	// server can sign its replies with a key the client does not share.
	clientKey    *iscc.Key
	nonce        uint32
	responseText string
}

func (f *fakeServer) reply(clientFrame []byte) ([]byte, error) {
	verifyKey := f.key
	if f.clientKey != nil {
		verifyKey = f.clientKey
	}
	pkt, err := rndc.ParsePacket(verifyKey, clientFrame)
	if err != nil {
		return nil, err
	}

	if _, ok := pkt.Nonce(); !ok {
		// Opener: issue the nonce.
		reply := rndc.NewPacket(f.key, iscc.Table{{Key: "type", Value: iscc.Null()}}, &f.nonce)
		return reply.ToBytes()
	}

	// Command packet: return the fixed response.
	reply := rndc.NewPacket(f.key, iscc.Table{
		{Key: "type", Value: iscc.Null()},
		{Key: "text", Value: iscc.String(f.responseText)},
	}, &f.nonce)
	return reply.ToBytes()
}

func driveSession(t *testing.T, key *iscc.Key, command string, server *fakeServer) (string, error) {
	t.Helper()

	var (
		finished  bool
		finalText string
		finalErr  error
		lastWrite []byte
	)

	var sess *rndc.Session
	sess = rndc.NewSession(key, command, rndc.Callbacks{
		WantWrite: func(pkt *rndc.Packet, data []byte) {
			lastWrite = data
			sess.Next()
		},
		WantRead: func() {
			reply, err := server.reply(lastWrite)
			if err != nil {
				finalErr = err
				finished = true
				return
			}
			sess.NextRead(reply)
		},
		WantFinish: func(text string) {
			finalText = text
			finished = true
		},
		WantError: func(err error) {
			finalErr = err
			finished = true
		},
	})

	sess.Start()

	if !finished {
		t.Fatal("session did not reach a terminal state")
	}
	return finalText, finalErr
}

func TestSessionSuccessfulExchange(t *testing.T) {
	key := iscc.NewKey("YWJjZA==")
	server := &fakeServer{key: key, nonce: 7, responseText: "server is up and running"}

	text, err := driveSession(t, key, "status", server)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "server is up and running" {
		t.Fatalf("text = %q", text)
	}
}

func TestSessionDefaultsResponseTextWhenEmpty(t *testing.T) {
	key := iscc.NewKey("YWJjZA==")
	server := &fakeServer{key: key, nonce: 9, responseText: ""}

	text, err := driveSession(t, key, "reload", server)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "command success" {
		t.Fatalf("text = %q, want default \"command success\"", text)
	}
}

func TestSessionWrongKeyFails(t *testing.T) {
	clientKey := iscc.NewKey("YWJjZA==") // "abcd"
	serverKey := iscc.NewKey("bWVo")     // "meh"
	server := &fakeServer{key: serverKey, clientKey: clientKey, nonce: 3, responseText: "ok"}

	_, err := driveSession(t, clientKey, "status", server)
	if err == nil {
		t.Fatal("expected signature mismatch error")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "couldn't validate") {
		t.Fatalf("error = %v, want signature-mismatch wording", err)
	}
}

func TestSessionStartTwiceIsProgrammerError(t *testing.T) {
	key := iscc.NewKey("YWJjZA==")
	sess := rndc.NewSession(key, "status", rndc.Callbacks{
		WantWrite: func(pkt *rndc.Packet, data []byte) {},
	})
	sess.Start()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on second Start()")
		}
	}()
	sess.Start()
}

func TestSessionStateTransitionsToWantWriteOnStart(t *testing.T) {
	key := iscc.NewKey("YWJjZA==")
	sess := rndc.NewSession(key, "status", rndc.Callbacks{
		WantWrite: func(pkt *rndc.Packet, data []byte) {},
	})
	sess.Start()
	if sess.State() != rndc.StateWantWrite {
		t.Fatalf("state = %v, want want_write", sess.State())
	}
}
