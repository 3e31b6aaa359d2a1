package handshake

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/secretbox"
)

// secretboxOverhead is the Poly1305 tag length nacl/secretbox appends.
const secretboxOverhead = secretbox.Overhead

// zeroNonce is the fixed 24-byte nonce used for both secretbox operations
// in the handshake. Safe only because each box key is derived fresh from
// per-session ephemeral DH output and used exactly once — see §6.1/§9.
var zeroNonce [24]byte

// scalarmult performs X25519 scalar multiplication and rejects the
// contributory-behaviour all-zero output (§3 invariants, §6.2).
func scalarmult(scalar, point []byte) ([]byte, error) {
	out, err := curve25519.X25519(scalar, point)
	if err != nil {
		return nil, newErr(InvalidKey, "scalarmult", err)
	}
	if isZeroOutput(out) {
		return nil, newErr(InvalidKey, "scalarmult", fmt.Errorf("all-zero output"))
	}
	return out, nil
}

// scalarmultBase computes the Curve25519 public key for a secret scalar.
// The package's tests use it to derive ephemeral public keys; the
// handshake steps themselves never call it (ephemeral key generation is
// out of scope per §1).
func scalarmultBase(scalar []byte) ([]byte, error) {
	out, err := curve25519.X25519(scalar, curve25519.Basepoint)
	if err != nil {
		return nil, newErr(InvalidKey, "scalarmult_base", err)
	}
	return out, nil
}

func isZeroOutput(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}

// hmacK computes hmac_K(msg) using HMAC-SHA-512-256 per §6.2.
func hmacK(key, msg []byte) []byte {
	h := hmac.New(sha512.New512_256, key)
	h.Write(msg)
	return h.Sum(nil)
}

// hmacVerify is the constant-time check behind §6.2's hmac_verify.
func hmacVerify(tag, key, msg []byte) bool {
	return hmac.Equal(hmacK(key, msg), tag)
}

// sha256Sum is the sha256 primitive of §6.2, concatenating its inputs
// before hashing.
func sha256Sum(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// signDetached wraps ed25519.Sign for §6.2's sign_detached.
func signDetached(sk ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(sk, msg)
}

// verifyDetached wraps ed25519.Verify for §6.2's verify_detached.
func verifyDetached(pk ed25519.PublicKey, msg, sig []byte) bool {
	return ed25519.Verify(pk, msg, sig)
}

// secretboxSeal encrypts plaintext under key with the fixed zero nonce,
// appending the Poly1305 tag (§6.1).
func secretboxSeal(key *[32]byte, plaintext []byte) []byte {
	return secretbox.Seal(nil, plaintext, &zeroNonce, key)
}

// secretboxOpen authenticates and decrypts ciphertext under key with the
// fixed zero nonce. Returns InvalidMessage on MAC failure.
func secretboxOpen(op string, key *[32]byte, ciphertext []byte) ([]byte, error) {
	out, ok := secretbox.Open(nil, ciphertext, &zeroNonce, key)
	if !ok {
		return nil, newErr(InvalidMessage, op, fmt.Errorf("secretbox: MAC verification failed"))
	}
	return out, nil
}

// edPublicKeyToCurve25519 converts an Ed25519 public key to its
// birationally-equivalent Curve25519 (Montgomery) public key, via the
// edwards25519 point the same way onion/blind.go uses the library for
// Ed25519 point algebra.
func edPublicKeyToCurve25519(pk ed25519.PublicKey) ([]byte, error) {
	p, err := new(edwards25519.Point).SetBytes(pk)
	if err != nil {
		return nil, newErr(InvalidKey, "ed25519_pk_to_curve25519", err)
	}
	return p.BytesMontgomery(), nil
}

// edPrivateKeyToCurve25519 converts an Ed25519 secret key to its
// Curve25519 scalar: SHA-512 the seed, clamp the low 32 bytes, exactly
// the scalar Ed25519 itself signs with (the standard
// crypto_sign_ed25519_sk_to_curve25519 construction).
func edPrivateKeyToCurve25519(sk ed25519.PrivateKey) []byte {
	digest := sha512.Sum512(sk.Seed())
	out := digest[:32]
	clampScalar(out)
	return out
}

func clampScalar(s []byte) {
	s[0] &= 248
	s[31] &= 127
	s[31] |= 64
}
