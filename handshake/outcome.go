package handshake

// Outcome holds the four key/nonce values an outer box-stream transport
// needs, derived once a handshake completes (§3). Both roles call this
// after their sessions reach the done state; under a successful handshake
// client.EncryptionKey == server.DecryptionKey and so on, as §8's
// round-trip property requires.
type Outcome struct {
	EncryptionKey   [outcomeKeySize]byte
	EncryptionNonce [outcomeNonceSize]byte
	DecryptionKey   [outcomeKeySize]byte
	DecryptionNonce [outcomeNonceSize]byte
}

// deriveOutcome implements §3's four formulas:
//
//	encryption_key    = sha256(sha256(boxSec) || remoteLongTermPub)
//	decryption_key    = sha256(sha256(boxSec) || ownLongTermPub)
//	encryption_nonce  = hmac_K(remoteEphemeralPub)
//	decryption_nonce  = hmac_K(ownEphemeralPub)
func deriveOutcome(boxSec, appKey, remoteLongTermPub, ownLongTermPub, remoteEphemeralPub, ownEphemeralPub []byte) Outcome {
	outerHash := sha256Sum(boxSec)

	var o Outcome
	copy(o.EncryptionKey[:], sha256Sum(outerHash, remoteLongTermPub))
	copy(o.DecryptionKey[:], sha256Sum(outerHash, ownLongTermPub))
	copy(o.EncryptionNonce[:], hmacK(appKey, remoteEphemeralPub))
	copy(o.DecryptionNonce[:], hmacK(appKey, ownEphemeralPub))
	return o
}
