package handshake

import (
	"crypto/ed25519"
	"fmt"
)

// serverStep enumerates the server's fixed operation order (§4.4),
// mirroring clientStep.
type serverStep int

const (
	serverInit serverStep = iota
	serverGotClientChallenge
	serverSentChallenge
	serverGotClientAuth
	serverDone
	serverFailed
)

// ServerSession is the server side of an SHS1 handshake, mirroring
// ClientSession. Call its methods in order: NewServerSession →
// VerifyClientChallenge → ProduceServerChallenge → VerifyClientAuth →
// ProduceServerAccept → Outcome, then discard it.
type ServerSession struct {
	appKey    []byte
	serverPub ed25519.PublicKey
	serverSec ed25519.PrivateKey
	ephPub    []byte
	ephSec    []byte

	step serverStep

	clientEphPub []byte
	clientHello  []byte // H, recovered from ClientAuth
	clientPub    ed25519.PublicKey
	sharedHash   []byte // sha256(dh1)
	boxSec       []byte // sha256(K||dh1||dh2||dh3)
}

// NewServerSession constructs a server session from the application key,
// the server's long-term Ed25519 keypair, and the server's ephemeral
// Curve25519 keypair. All inputs are borrowed, not copied.
func NewServerSession(appKey []byte, serverPub ed25519.PublicKey, serverSec ed25519.PrivateKey, ephPub, ephSec []byte) (*ServerSession, error) {
	if len(appKey) != AppKeySize {
		return nil, newErr(Misuse, "new_server_session", fmt.Errorf("app key must be %d bytes", AppKeySize))
	}
	if len(serverPub) != PublicKeySize {
		return nil, newErr(Misuse, "new_server_session", fmt.Errorf("public key must be %d bytes", PublicKeySize))
	}
	if len(serverSec) != SecretKeySize {
		return nil, newErr(Misuse, "new_server_session", fmt.Errorf("secret key must be %d bytes", SecretKeySize))
	}
	if len(ephPub) != EphemeralPublicKeySize || len(ephSec) != EphemeralSecretKeySize {
		return nil, newErr(Misuse, "new_server_session", fmt.Errorf("ephemeral keys must be %d bytes", EphemeralPublicKeySize))
	}
	return &ServerSession{
		appKey:    appKey,
		serverPub: serverPub,
		serverSec: serverSec,
		ephPub:    ephPub,
		ephSec:    ephSec,
	}, nil
}

// Close wipes the secret-derived buffers the session keeps between steps
// (recovered hello, shared hash and box_sec, along with the client's
// public keys). Temporaries local to a single step are not wiped: the
// ClientAuth box key, dh1 and dh2 when VerifyClientAuth fails, the
// ServerAccept signature, its signed input and its copy of the box key,
// and the outer hash computed by Outcome.
func (s *ServerSession) Close() {
	wipe(s.clientEphPub, s.clientHello, s.clientPub, s.sharedHash, s.boxSec)
	s.step = serverFailed
}

// VerifyClientChallenge verifies message 1 and stores the client's
// ephemeral public key on success.
func (s *ServerSession) VerifyClientChallenge(in [ClientChallengeSize]byte) error {
	if s.step != serverInit {
		return newErr(Misuse, "verify_client_challenge", fmt.Errorf("out of order"))
	}
	tag, ephPub := in[:32], in[32:]
	if !hmacVerify(tag, s.appKey, ephPub) {
		s.step = serverFailed
		return newErr(InvalidMessage, "verify_client_challenge", fmt.Errorf("hmac mismatch"))
	}
	s.clientEphPub = append([]byte(nil), ephPub...)
	s.step = serverGotClientChallenge
	return nil
}

// ProduceServerChallenge writes message 2: hmac_K(b_p) || b_p.
func (s *ServerSession) ProduceServerChallenge() ([ServerChallengeSize]byte, error) {
	var out [ServerChallengeSize]byte
	if s.step != serverGotClientChallenge {
		return out, newErr(Misuse, "produce_server_challenge", fmt.Errorf("out of order"))
	}
	tag := hmacK(s.appKey, s.ephPub)
	copy(out[:32], tag)
	copy(out[32:], s.ephPub)
	s.step = serverSentChallenge
	return out, nil
}

// VerifyClientAuth performs step 3 of §4.3: opens the ClientAuth
// envelope, recovers the client's hello and long-term public key, and
// verifies the client's signature.
func (s *ServerSession) VerifyClientAuth(in [ClientAuthSize]byte) error {
	if s.step != serverSentChallenge {
		return newErr(Misuse, "verify_client_auth", fmt.Errorf("out of order"))
	}

	dh1, err := scalarmult(s.ephSec, s.clientEphPub)
	if err != nil {
		s.step = serverFailed
		return wrapOp(err, "verify_client_auth: b_s*a_p")
	}

	curveServerSec := edPrivateKeyToCurve25519(s.serverSec)
	dh2, err := scalarmult(curveServerSec, s.clientEphPub)
	wipe(curveServerSec)
	if err != nil {
		s.step = serverFailed
		return wrapOp(err, "verify_client_auth: B_s*a_p")
	}

	boxKey := sha256ToArray(s.appKey, dh1, dh2)
	hello, err := secretboxOpen("verify_client_auth", &boxKey, in[:])
	if err != nil {
		s.step = serverFailed
		return err
	}
	if len(hello) != HelloSize {
		s.step = serverFailed
		return newErr(InvalidMessage, "verify_client_auth", fmt.Errorf("unexpected hello length %d", len(hello)))
	}

	sig := hello[:64]
	clientPub := ed25519.PublicKey(append([]byte(nil), hello[64:]...))

	curveClientPub, err := edPublicKeyToCurve25519(clientPub)
	if err != nil {
		s.step = serverFailed
		return wrapOp(err, "verify_client_auth: convert A_p")
	}

	dh3, err := scalarmult(s.ephSec, curveClientPub)
	if err != nil {
		s.step = serverFailed
		return wrapOp(err, "verify_client_auth: b_s*A_p")
	}

	sharedHash := sha256Sum(dh1)
	expected := concat(s.appKey, s.serverPub, sharedHash)
	if !verifyDetached(clientPub, expected, sig) {
		s.step = serverFailed
		return newErr(InvalidMessage, "verify_client_auth", fmt.Errorf("signature verification failed"))
	}

	s.boxSec = sha256Sum(s.appKey, dh1, dh2, dh3)
	wipe(dh1, dh2, dh3)
	s.clientHello = hello
	s.clientPub = clientPub
	s.sharedHash = sharedHash
	s.step = serverGotClientAuth
	return nil
}

// ProduceServerAccept performs step 4 of §4.3: signs and seals the
// ServerAccept envelope.
func (s *ServerSession) ProduceServerAccept() ([ServerAcceptSize]byte, error) {
	var out [ServerAcceptSize]byte
	if s.step != serverGotClientAuth {
		return out, newErr(Misuse, "produce_server_accept", fmt.Errorf("out of order"))
	}

	toSign := concat(s.appKey, s.clientHello, s.sharedHash)
	sig := signDetached(s.serverSec, toSign)

	var boxSec [32]byte
	copy(boxSec[:], s.boxSec)
	sealed := secretboxSeal(&boxSec, sig)
	copy(out[:], sealed)

	s.step = serverDone
	return out, nil
}

// Outcome derives the final symmetric key/nonce material (§3).
func (s *ServerSession) Outcome() (Outcome, error) {
	var out Outcome
	if s.step != serverDone {
		return out, newErr(Misuse, "outcome", fmt.Errorf("handshake not complete"))
	}
	return deriveOutcome(s.boxSec, s.appKey, s.clientPub, s.serverPub, s.clientEphPub, s.ephPub), nil
}
