package handshake

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

// TestSmallSubgroupGuardRejectsZeroPoint simulates a peer that forces
// scalarmult to return the all-zero (or low-order, rejected outright by
// the X25519 implementation) output by sending a zero ephemeral public
// key as the ServerChallenge. The HMAC still authenticates the message
// (it is computed over whatever bytes were sent), so VerifyServerChallenge
// accepts it; ProduceClientAuth must then reject it as InvalidKey.
func TestSmallSubgroupGuardRejectsZeroPoint(t *testing.T) {
	appKey := make([]byte, AppKeySize)
	rand.Read(appKey)
	client := genPeer(t)
	server := genPeer(t)
	aPub, aSec := genEphemeral(t)

	cs, err := NewClientSession(appKey, client.pub, client.sec, aPub, aSec, server.pub)
	if err != nil {
		t.Fatalf("NewClientSession: %v", err)
	}
	if _, err := cs.ProduceClientChallenge(); err != nil {
		t.Fatalf("ProduceClientChallenge: %v", err)
	}

	var zeroEphPub [32]byte // the known all-zero Curve25519 point
	var forged [ServerChallengeSize]byte
	copy(forged[:32], hmacK(appKey, zeroEphPub[:]))
	copy(forged[32:], zeroEphPub[:])

	if err := cs.VerifyServerChallenge(forged); err != nil {
		t.Fatalf("VerifyServerChallenge unexpectedly rejected the forged message: %v", err)
	}

	_, err = cs.ProduceClientAuth()
	if err == nil {
		t.Fatal("expected ProduceClientAuth to reject the zero-point ephemeral key")
	}
	assertKind(t, err, InvalidKey)
}

// TestOperationsRejectOutOfOrderCalls exercises §4.4's state machine:
// ProduceClientAuth before the challenges, VerifyClientAuth before a
// ClientChallenge, and Outcome before completion must each fail with
// Misuse rather than silently succeed.
func TestOperationsRejectOutOfOrderCalls(t *testing.T) {
	appKey := make([]byte, AppKeySize)
	rand.Read(appKey)
	client := genPeer(t)
	server := genPeer(t)
	aPub, aSec := genEphemeral(t)
	bPub, bSec := genEphemeral(t)

	cs, err := NewClientSession(appKey, client.pub, client.sec, aPub, aSec, server.pub)
	if err != nil {
		t.Fatalf("NewClientSession: %v", err)
	}
	ss, err := NewServerSession(appKey, server.pub, server.sec, bPub, bSec)
	if err != nil {
		t.Fatalf("NewServerSession: %v", err)
	}

	// Calling ProduceClientAuth before the challenge exchange must fail.
	if _, err := cs.ProduceClientAuth(); err == nil {
		t.Fatal("expected Misuse calling ProduceClientAuth before challenges")
	} else {
		assertKind(t, err, Misuse)
	}

	// Server can't verify ClientAuth before it has seen a ClientChallenge.
	var dummyAuth [ClientAuthSize]byte
	if err := ss.VerifyClientAuth(dummyAuth); err == nil {
		t.Fatal("expected Misuse calling VerifyClientAuth before VerifyClientChallenge")
	} else {
		assertKind(t, err, Misuse)
	}

	// Outcome before the handshake completes must fail.
	if _, err := cs.Outcome(); err == nil {
		t.Fatal("expected Misuse calling Outcome before handshake completes")
	} else {
		assertKind(t, err, Misuse)
	}
}

// TestDeterministicWireMessages checks §8's "concrete end-to-end scenario"
// property: with fixed application key and fixed long-term/ephemeral
// keypairs, every wire message and outcome is reproduced byte-for-byte
// across independent runs, since none of the primitives the handshake
// calls consume fresh randomness once the keys are fixed (Ed25519
// signatures and HMAC/SHA-256 are deterministic, scalarmults are
// deterministic, and the box nonce is the fixed all-zero value).
func TestDeterministicWireMessages(t *testing.T) {
	appKey := bytes.Repeat([]byte{0}, AppKeySize)

	clientPub, clientSec, err := ed25519.GenerateKey(bytes.NewReader(bytes.Repeat([]byte{1}, 64)))
	if err != nil {
		t.Fatalf("client key: %v", err)
	}
	serverPub, serverSec, err := ed25519.GenerateKey(bytes.NewReader(bytes.Repeat([]byte{2}, 64)))
	if err != nil {
		t.Fatalf("server key: %v", err)
	}

	aSec := bytes.Repeat([]byte{3}, 32)
	bSec := bytes.Repeat([]byte{4}, 32)
	aPub, err := scalarmultBase(aSec)
	if err != nil {
		t.Fatalf("aPub: %v", err)
	}
	bPub, err := scalarmultBase(bSec)
	if err != nil {
		t.Fatalf("bPub: %v", err)
	}

	run := func() ([ClientChallengeSize]byte, [ServerChallengeSize]byte, [ClientAuthSize]byte, [ServerAcceptSize]byte, Outcome, Outcome) {
		cs, err := NewClientSession(appKey, clientPub, clientSec, aPub, append([]byte(nil), aSec...), serverPub)
		if err != nil {
			t.Fatalf("NewClientSession: %v", err)
		}
		ss, err := NewServerSession(appKey, serverPub, serverSec, bPub, append([]byte(nil), bSec...))
		if err != nil {
			t.Fatalf("NewServerSession: %v", err)
		}

		m1, err := cs.ProduceClientChallenge()
		if err != nil {
			t.Fatalf("ProduceClientChallenge: %v", err)
		}
		if err := ss.VerifyClientChallenge(m1); err != nil {
			t.Fatalf("VerifyClientChallenge: %v", err)
		}
		m2, err := ss.ProduceServerChallenge()
		if err != nil {
			t.Fatalf("ProduceServerChallenge: %v", err)
		}
		if err := cs.VerifyServerChallenge(m2); err != nil {
			t.Fatalf("VerifyServerChallenge: %v", err)
		}
		m3, err := cs.ProduceClientAuth()
		if err != nil {
			t.Fatalf("ProduceClientAuth: %v", err)
		}
		if err := ss.VerifyClientAuth(m3); err != nil {
			t.Fatalf("VerifyClientAuth: %v", err)
		}
		m4, err := ss.ProduceServerAccept()
		if err != nil {
			t.Fatalf("ProduceServerAccept: %v", err)
		}
		if err := cs.VerifyServerAccept(m4); err != nil {
			t.Fatalf("VerifyServerAccept: %v", err)
		}
		co, err := cs.Outcome()
		if err != nil {
			t.Fatalf("client Outcome: %v", err)
		}
		so, err := ss.Outcome()
		if err != nil {
			t.Fatalf("server Outcome: %v", err)
		}
		return m1, m2, m3, m4, co, so
	}

	m1a, m2a, m3a, m4a, coA, soA := run()
	m1b, m2b, m3b, m4b, coB, soB := run()

	if m1a != m1b {
		t.Error("ClientChallenge not deterministic")
	}
	if m2a != m2b {
		t.Error("ServerChallenge not deterministic")
	}
	if m3a != m3b {
		t.Error("ClientAuth not deterministic")
	}
	if m4a != m4b {
		t.Error("ServerAccept not deterministic")
	}
	if coA != coB || soA != soB {
		t.Error("Outcome not deterministic")
	}
}

// TestProduceClientAuthIdempotentWithServerRecovery checks that the hello
// the client stores equals byte-for-byte what the server recovers from
// the same ClientAuth envelope, and that the server recovers the client's
// long-term public key.
func TestProduceClientAuthIdempotentWithServerRecovery(t *testing.T) {
	appKey := make([]byte, AppKeySize)
	rand.Read(appKey)
	client := genPeer(t)
	server := genPeer(t)

	cs, ss := twoSidesThroughChallenge(t, appKey, client, server)

	auth, err := cs.ProduceClientAuth()
	if err != nil {
		t.Fatalf("ProduceClientAuth: %v", err)
	}
	if err := ss.VerifyClientAuth(auth); err != nil {
		t.Fatalf("VerifyClientAuth: %v", err)
	}

	if !bytes.Equal(cs.hello, ss.clientHello) {
		t.Error("server-recovered H does not match client-stored H")
	}
	if !bytes.Equal(client.pub, ss.clientPub) {
		t.Error("server-recovered client public key does not match")
	}
}
