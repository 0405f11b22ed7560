package rndc_test

import (
	"errors"
	"testing"

	"github.com/isccctl/gornd/internal/iscc"
	"github.com/isccctl/gornd/internal/rndc"
)

// serverDriver wraps a ServerSession whose callbacks record the last
// frame it wrote and whether (and how) it reached a terminal state.
type serverDriver struct {
	sess       *rndc.ServerSession
	lastWrite  []byte
	finished   bool
	finishedOK bool
	finalErr   error
}

func newServerDriver(key *iscc.Key, dispatch rndc.DispatchFunc) *serverDriver {
	d := &serverDriver{}
	d.sess = rndc.NewServerSession(key, dispatch, rndc.ServerCallbacks{
		WantRead: func() {},
		WantWrite: func(pkt *rndc.Packet, data []byte) {
			d.lastWrite = data
		},
		WantFinish: func() {
			d.finished = true
			d.finishedOK = true
		},
		WantError: func(err error) {
			d.finished = true
			d.finalErr = err
		},
	})
	return d
}

func TestServerSessionFullExchange(t *testing.T) {
	key := iscc.NewKey("YWJjZA==")
	d := newServerDriver(key, func(command string) (string, error) {
		if command != "status" {
			return "", errors.New("unsupported command")
		}
		return "server is up and running", nil
	})

	d.sess.Start()

	opener := rndc.NewPacket(key, iscc.Table{{Key: "type", Value: iscc.Null()}}, nil)
	openerBytes, err := opener.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}

	d.sess.NextRead(openerBytes)
	if d.lastWrite == nil {
		t.Fatal("expected nonce reply to be written")
	}

	nonceReply, err := rndc.ParsePacket(key, d.lastWrite)
	if err != nil {
		t.Fatalf("ParsePacket(nonce reply): %v", err)
	}
	nonce, ok := nonceReply.Nonce()
	if !ok {
		t.Fatal("nonce reply missing _ctrl._nonce")
	}
	d.sess.Next() // confirm the nonce reply was sent

	cmd := rndc.NewPacket(key, iscc.Table{{Key: "type", Value: rndc.CommandValue("status")}}, &nonce)
	cmdBytes, err := cmd.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}

	d.sess.NextRead(cmdBytes)
	d.sess.Next() // confirm the result was sent

	if !d.finished || !d.finishedOK {
		t.Fatalf("session did not finish successfully: finished=%v ok=%v err=%v", d.finished, d.finishedOK, d.finalErr)
	}

	result, err := rndc.ParsePacket(key, d.lastWrite)
	if err != nil {
		t.Fatalf("ParsePacket(result): %v", err)
	}
	if result.Text() != "server is up and running" {
		t.Fatalf("Text() = %q", result.Text())
	}
}

func TestServerSessionDispatchFailureFabricatesErrorPacket(t *testing.T) {
	key := iscc.NewKey("YWJjZA==")
	d := newServerDriver(key, func(command string) (string, error) {
		return "", errors.New("unknown command")
	})

	d.sess.Start()

	opener := rndc.NewPacket(key, iscc.Table{{Key: "type", Value: iscc.Null()}}, nil)
	openerBytes, _ := opener.ToBytes()
	d.sess.NextRead(openerBytes)
	d.sess.Next()

	nonceReply, _ := rndc.ParsePacket(key, d.lastWrite)
	nonce, _ := nonceReply.Nonce()

	cmd := rndc.NewPacket(key, iscc.Table{{Key: "type", Value: rndc.CommandValue("bogus")}}, &nonce)
	cmdBytes, _ := cmd.ToBytes()

	d.sess.NextRead(cmdBytes)
	if d.lastWrite == nil {
		t.Fatal("expected a fabricated error packet to be written")
	}

	errPkt, err := rndc.ParsePacket(key, d.lastWrite)
	if err == nil {
		t.Fatal("expected the fabricated packet to carry _data.err")
	}
	var serverErr *rndc.ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("err = %T, want *rndc.ServerError", err)
	}
	if errPkt.Err() != "unknown command" {
		t.Fatalf("Err() = %q", errPkt.Err())
	}

	d.sess.Next() // confirm the error packet was sent; session surrenders to want_error
	if !d.finished || d.finishedOK {
		t.Fatalf("expected terminal failure: finished=%v ok=%v", d.finished, d.finishedOK)
	}
	if d.finalErr == nil {
		t.Fatal("expected WantError to receive the dispatch error")
	}
}

func TestServerSessionRejectsStaleNonceAsNewOpener(t *testing.T) {
	key := iscc.NewKey("YWJjZA==")
	d := newServerDriver(key, func(command string) (string, error) {
		return "ok", nil
	})
	d.sess.Start()

	bogusNonce := uint32(999)
	cmd := rndc.NewPacket(key, iscc.Table{{Key: "type", Value: rndc.CommandValue("status")}}, &bogusNonce)
	cmdBytes, _ := cmd.ToBytes()

	// A command-shaped packet carrying a nonce the server never issued is
	// treated as a fresh opener (the server only tracks one nonce at a
	// time), so it receives a new nonce rather than a dispatch result.
	d.sess.NextRead(cmdBytes)
	if d.finished {
		t.Fatal("server should not have finished on an unrecognized nonce")
	}
	reply, err := rndc.ParsePacket(key, d.lastWrite)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if reply.Text() != "" {
		t.Fatalf("expected a nonce-issuing reply, got text %q", reply.Text())
	}
}
