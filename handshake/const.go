// Package handshake implements the Secret-Handshake v1 (SHS1) mutual
// key-agreement protocol: a four-message handshake between a client and a
// server who share a 32-byte application key and each hold a long-term
// Ed25519 signing identity. A successful handshake yields an Outcome — the
// symmetric (key, nonce) pairs an outer box-stream transport uses to
// encrypt and decrypt traffic.
//
// Message framing, sockets, and the outer cipher itself are out of scope:
// this package only produces and consumes the fixed-length byte strings of
// §4.1 and derives the final Outcome.
package handshake

const (
	// AppKeySize is the length of the pre-shared application key K.
	AppKeySize = 32
	// PublicKeySize is the length of an Ed25519 long-term public key.
	PublicKeySize = 32
	// SecretKeySize is the length of an Ed25519 long-term secret key (seed || public).
	SecretKeySize = 64
	// EphemeralPublicKeySize is the length of a Curve25519 ephemeral public key.
	EphemeralPublicKeySize = 32
	// EphemeralSecretKeySize is the length of a Curve25519 ephemeral secret key.
	EphemeralSecretKeySize = 32

	// HelloSize is the length of H = sign_A(K||B_p||sha256(shared)) || A_p.
	HelloSize = 64 + PublicKeySize

	// ClientChallengeSize is the wire length of message 1.
	ClientChallengeSize = 64
	// ServerChallengeSize is the wire length of message 2.
	ServerChallengeSize = 64
	// ClientAuthSize is the wire length of message 3 (96-byte hello + 16-byte tag).
	ClientAuthSize = HelloSize + secretboxOverhead
	// ServerAcceptSize is the wire length of message 4 (64-byte signature + 16-byte tag).
	ServerAcceptSize = 64 + secretboxOverhead

	// outcomeKeySize is the length of each derived Outcome key.
	outcomeKeySize = 32
	// outcomeNonceSize is the length of each derived Outcome nonce (a full HMAC output).
	outcomeNonceSize = 32
)

// Kind classifies why a handshake step failed, per §7. Callers branch on
// Kind alone; the accompanying Error's Op and cause name the failing step
// (and, for some steps, the branch inside it) for logging only. None of it
// is signalled to the remote peer.
type Kind int

const (
	// InvalidMessage means an inbound message failed authentication: an
	// HMAC mismatch on a challenge, a secretbox MAC failure on an
	// envelope, or an Ed25519 signature that didn't verify.
	InvalidMessage Kind = iota
	// InvalidKey means an Ed25519↔Curve25519 conversion refused its
	// input, or a scalar multiplication produced the all-zero output.
	InvalidKey
	// Misuse means a step was invoked out of its fixed protocol order.
	Misuse
)

func (k Kind) String() string {
	switch k {
	case InvalidMessage:
		return "invalid message"
	case InvalidKey:
		return "invalid key"
	case Misuse:
		return "misuse"
	default:
		return "unknown"
	}
}

// Error is the single error type every session operation returns on
// failure. Op names the step that failed, for logging only — it is never
// part of equality or control flow, callers branch on Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "shs1: " + e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
	}
	return "shs1: " + e.Op + ": " + e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
