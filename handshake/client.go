package handshake

import (
	"crypto/ed25519"
	"fmt"
)

// clientStep enumerates the client's fixed operation order (§4.4). A
// session only accepts the next step in sequence; anything else is Misuse.
type clientStep int

const (
	clientInit clientStep = iota
	clientSentChallenge
	clientGotServerChallenge
	clientSentAuth
	clientDone
	clientFailed
)

// ClientSession is the client side of an SHS1 handshake. It borrows its
// six inputs for the session's lifetime — callers must not mutate them
// until the session is dropped — and accumulates the intermediate secrets
// of §3 as the four steps run. A ClientSession is single-use: call its
// methods in the order NewClientSession → ProduceClientChallenge →
// VerifyServerChallenge → ProduceClientAuth → VerifyServerAccept →
// Outcome, then discard it.
type ClientSession struct {
	appKey    []byte
	clientPub ed25519.PublicKey
	clientSec ed25519.PrivateKey
	ephPub    []byte
	ephSec    []byte
	serverPub ed25519.PublicKey

	step clientStep

	serverEphPub       []byte
	sharedSecret       []byte // a_s·b_p
	serverLongShared   []byte // a_s·curve(B_p)
	sharedHash         []byte // sha256(sharedSecret)
	hello              []byte // H = sig || A_p
	boxSec             []byte // box_key_2, retained for Outcome
}

// NewClientSession constructs a client session from the application key,
// the client's long-term Ed25519 keypair, the client's ephemeral
// Curve25519 keypair, and the server's long-term Ed25519 public key. All
// inputs are borrowed, not copied.
func NewClientSession(appKey []byte, clientPub ed25519.PublicKey, clientSec ed25519.PrivateKey, ephPub, ephSec []byte, serverPub ed25519.PublicKey) (*ClientSession, error) {
	if len(appKey) != AppKeySize {
		return nil, newErr(Misuse, "new_client_session", fmt.Errorf("app key must be %d bytes", AppKeySize))
	}
	if len(clientPub) != PublicKeySize || len(serverPub) != PublicKeySize {
		return nil, newErr(Misuse, "new_client_session", fmt.Errorf("public keys must be %d bytes", PublicKeySize))
	}
	if len(clientSec) != SecretKeySize {
		return nil, newErr(Misuse, "new_client_session", fmt.Errorf("secret key must be %d bytes", SecretKeySize))
	}
	if len(ephPub) != EphemeralPublicKeySize || len(ephSec) != EphemeralSecretKeySize {
		return nil, newErr(Misuse, "new_client_session", fmt.Errorf("ephemeral keys must be %d bytes", EphemeralPublicKeySize))
	}
	return &ClientSession{
		appKey:    appKey,
		clientPub: clientPub,
		clientSec: clientSec,
		ephPub:    ephPub,
		ephSec:    ephSec,
		serverPub: serverPub,
	}, nil
}

// Close wipes the secret-derived buffers the session keeps between steps
// (shared secrets, shared hash, hello and the retained box key). Call it
// when the session is dropped, win or lose. Temporaries local to a single
// step are not wiped: the ClientAuth box key, signature and signed input,
// the opened ServerAccept signature, the ServerAccept box key when that
// step fails, and the outer hash computed by Outcome. Long-term and
// ephemeral keys the session borrowed are not owned by it and are not
// wiped here.
func (c *ClientSession) Close() {
	wipe(c.serverEphPub, c.sharedSecret, c.serverLongShared, c.sharedHash, c.hello, c.boxSec)
	c.step = clientFailed
}

func wipe(bufs ...[]byte) {
	for _, b := range bufs {
		for i := range b {
			b[i] = 0
		}
	}
}

// ProduceClientChallenge writes message 1: hmac_K(a_p) || a_p (§4.1).
func (c *ClientSession) ProduceClientChallenge() ([ClientChallengeSize]byte, error) {
	var out [ClientChallengeSize]byte
	if c.step != clientInit {
		return out, newErr(Misuse, "produce_client_challenge", fmt.Errorf("out of order"))
	}
	tag := hmacK(c.appKey, c.ephPub)
	copy(out[:32], tag)
	copy(out[32:], c.ephPub)
	c.step = clientSentChallenge
	return out, nil
}

// VerifyServerChallenge verifies message 2 and stores the server's
// ephemeral public key on success (§4.2).
func (c *ClientSession) VerifyServerChallenge(in [ServerChallengeSize]byte) error {
	if c.step != clientSentChallenge {
		return newErr(Misuse, "verify_server_challenge", fmt.Errorf("out of order"))
	}
	tag, ephPub := in[:32], in[32:]
	if !hmacVerify(tag, c.appKey, ephPub) {
		c.step = clientFailed
		return newErr(InvalidMessage, "verify_server_challenge", fmt.Errorf("hmac mismatch"))
	}
	c.serverEphPub = append([]byte(nil), ephPub...)
	c.step = clientGotServerChallenge
	return nil
}

// ProduceClientAuth performs step 3 of §4.2: derives the shared secrets,
// signs the client's hello, and seals it into the 112-byte ClientAuth
// envelope.
func (c *ClientSession) ProduceClientAuth() ([ClientAuthSize]byte, error) {
	var out [ClientAuthSize]byte
	if c.step != clientGotServerChallenge {
		return out, newErr(Misuse, "produce_client_auth", fmt.Errorf("out of order"))
	}

	sharedSecret, err := scalarmult(c.ephSec, c.serverEphPub)
	if err != nil {
		c.step = clientFailed
		return out, wrapOp(err, "produce_client_auth: a_s*b_p")
	}

	curveServerPub, err := edPublicKeyToCurve25519(c.serverPub)
	if err != nil {
		c.step = clientFailed
		return out, wrapOp(err, "produce_client_auth: convert B_p")
	}

	serverLongShared, err := scalarmult(c.ephSec, curveServerPub)
	if err != nil {
		c.step = clientFailed
		return out, wrapOp(err, "produce_client_auth: a_s*B_p")
	}

	sharedHash := sha256Sum(sharedSecret)

	toSign := concat(c.appKey, c.serverPub, sharedHash)
	sig := signDetached(c.clientSec, toSign)
	hello := concat(sig, c.clientPub)

	boxKey := sha256ToArray(c.appKey, sharedSecret, serverLongShared)
	sealed := secretboxSeal(&boxKey, hello)
	copy(out[:], sealed)

	c.sharedSecret = sharedSecret
	c.serverLongShared = serverLongShared
	c.sharedHash = sharedHash
	c.hello = hello
	c.step = clientSentAuth
	return out, nil
}

// VerifyServerAccept performs step 4 of §4.2, verifying the server's
// signed acceptance and retaining the box key the Outcome is derived
// from.
func (c *ClientSession) VerifyServerAccept(in [ServerAcceptSize]byte) error {
	if c.step != clientSentAuth {
		return newErr(Misuse, "verify_server_accept", fmt.Errorf("out of order"))
	}

	curveClientSec := edPrivateKeyToCurve25519(c.clientSec)
	clientLongShared, err := scalarmult(curveClientSec, c.serverEphPub)
	wipe(curveClientSec)
	if err != nil {
		c.step = clientFailed
		return wrapOp(err, "verify_server_accept: A_s*b_p")
	}

	boxKey2 := sha256ToArray(c.appKey, c.sharedSecret, c.serverLongShared, clientLongShared)
	sig, err := secretboxOpen("verify_server_accept", &boxKey2, in[:])
	wipe(clientLongShared)
	if err != nil {
		c.step = clientFailed
		return err
	}

	expected := concat(c.appKey, c.hello, c.sharedHash)
	if !verifyDetached(c.serverPub, expected, sig) {
		c.step = clientFailed
		return newErr(InvalidMessage, "verify_server_accept", fmt.Errorf("signature verification failed"))
	}

	c.boxSec = boxKey2[:]
	c.step = clientDone
	return nil
}

// Outcome derives the final symmetric key/nonce material (§3) once the
// handshake has completed successfully.
func (c *ClientSession) Outcome() (Outcome, error) {
	var out Outcome
	if c.step != clientDone {
		return out, newErr(Misuse, "outcome", fmt.Errorf("handshake not complete"))
	}
	return deriveOutcome(c.boxSec, c.appKey, c.serverPub, c.clientPub, c.serverEphPub, c.ephPub), nil
}

func wrapOp(err error, op string) error {
	if e, ok := err.(*Error); ok {
		e.Op = op
		return e
	}
	return err
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func sha256ToArray(parts ...[]byte) [32]byte {
	var out [32]byte
	copy(out[:], sha256Sum(parts...))
	return out
}
