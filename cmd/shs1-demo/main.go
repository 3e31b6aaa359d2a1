// Command shs1-demo drives a client and server SHS1 handshake against each
// other over an in-process net.Pipe, logging each step the way
// link.Handshake logs a Tor link handshake in the teacher repo this module
// grew out of. It exists to give the otherwise I/O-free handshake core
// something end-to-end to exercise; real applications wire ClientSession /
// ServerSession to their own transport instead.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"golang.org/x/crypto/curve25519"

	"github.com/cvsouth/shs1-go/handshake"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	appKey := make([]byte, handshake.AppKeySize)
	if _, err := rand.Read(appKey); err != nil {
		fatal(logger, "generate app key", err)
	}

	clientPub, clientSec, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fatal(logger, "generate client identity", err)
	}
	serverPub, serverSec, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fatal(logger, "generate server identity", err)
	}

	clientEphPub, clientEphSec, err := generateEphemeral()
	if err != nil {
		fatal(logger, "generate client ephemeral key", err)
	}
	serverEphPub, serverEphSec, err := generateEphemeral()
	if err != nil {
		fatal(logger, "generate server ephemeral key", err)
	}

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientDone := make(chan error, 1)
	go func() {
		clientDone <- runClient(logger, clientConn, appKey, clientPub, clientSec, clientEphPub, clientEphSec, serverPub)
	}()

	if err := runServer(logger, serverConn, appKey, serverPub, serverSec, serverEphPub, serverEphSec); err != nil {
		fatal(logger, "server handshake", err)
	}
	if err := <-clientDone; err != nil {
		fatal(logger, "client handshake", err)
	}

	logger.Info("handshake complete on both sides")
}

// generateEphemeral stands in for the external ephemeral-key-generation
// collaborator the handshake core itself never performs (§1's Out of scope).
func generateEphemeral() (pub, sec []byte, err error) {
	sec = make([]byte, handshake.EphemeralSecretKeySize)
	if _, err := rand.Read(sec); err != nil {
		return nil, nil, err
	}
	pub, err = curve25519.X25519(sec, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return pub, sec, nil
}

func runClient(logger *slog.Logger, conn io.ReadWriter, appKey []byte, pub ed25519.PublicKey, sec ed25519.PrivateKey, ephPub, ephSec []byte, serverPub ed25519.PublicKey) error {
	cs, err := handshake.NewClientSession(appKey, pub, sec, ephPub, ephSec, serverPub)
	if err != nil {
		return fmt.Errorf("new client session: %w", err)
	}
	defer cs.Close()

	m1, err := cs.ProduceClientChallenge()
	if err != nil {
		return fmt.Errorf("produce client challenge: %w", err)
	}
	if _, err := conn.Write(m1[:]); err != nil {
		return fmt.Errorf("write client challenge: %w", err)
	}
	logger.Info("client: sent ClientChallenge")

	var m2 [handshake.ServerChallengeSize]byte
	if _, err := io.ReadFull(conn, m2[:]); err != nil {
		return fmt.Errorf("read server challenge: %w", err)
	}
	if err := cs.VerifyServerChallenge(m2); err != nil {
		return fmt.Errorf("verify server challenge: %w", err)
	}
	logger.Info("client: verified ServerChallenge")

	m3, err := cs.ProduceClientAuth()
	if err != nil {
		return fmt.Errorf("produce client auth: %w", err)
	}
	if _, err := conn.Write(m3[:]); err != nil {
		return fmt.Errorf("write client auth: %w", err)
	}
	logger.Info("client: sent ClientAuth")

	var m4 [handshake.ServerAcceptSize]byte
	if _, err := io.ReadFull(conn, m4[:]); err != nil {
		return fmt.Errorf("read server accept: %w", err)
	}
	if err := cs.VerifyServerAccept(m4); err != nil {
		return fmt.Errorf("verify server accept: %w", err)
	}
	logger.Info("client: verified ServerAccept")

	outcome, err := cs.Outcome()
	if err != nil {
		return fmt.Errorf("client outcome: %w", err)
	}
	logger.Info("client: derived outcome", "encryption_key_prefix", fmt.Sprintf("%x", outcome.EncryptionKey[:4]))
	return nil
}

func runServer(logger *slog.Logger, conn io.ReadWriter, appKey []byte, pub ed25519.PublicKey, sec ed25519.PrivateKey, ephPub, ephSec []byte) error {
	ss, err := handshake.NewServerSession(appKey, pub, sec, ephPub, ephSec)
	if err != nil {
		return fmt.Errorf("new server session: %w", err)
	}
	defer ss.Close()

	var m1 [handshake.ClientChallengeSize]byte
	if _, err := io.ReadFull(conn, m1[:]); err != nil {
		return fmt.Errorf("read client challenge: %w", err)
	}
	if err := ss.VerifyClientChallenge(m1); err != nil {
		return fmt.Errorf("verify client challenge: %w", err)
	}
	logger.Info("server: verified ClientChallenge")

	m2, err := ss.ProduceServerChallenge()
	if err != nil {
		return fmt.Errorf("produce server challenge: %w", err)
	}
	if _, err := conn.Write(m2[:]); err != nil {
		return fmt.Errorf("write server challenge: %w", err)
	}
	logger.Info("server: sent ServerChallenge")

	var m3 [handshake.ClientAuthSize]byte
	if _, err := io.ReadFull(conn, m3[:]); err != nil {
		return fmt.Errorf("read client auth: %w", err)
	}
	if err := ss.VerifyClientAuth(m3); err != nil {
		return fmt.Errorf("verify client auth: %w", err)
	}
	logger.Info("server: verified ClientAuth")

	m4, err := ss.ProduceServerAccept()
	if err != nil {
		return fmt.Errorf("produce server accept: %w", err)
	}
	if _, err := conn.Write(m4[:]); err != nil {
		return fmt.Errorf("write server accept: %w", err)
	}
	logger.Info("server: sent ServerAccept")

	outcome, err := ss.Outcome()
	if err != nil {
		return fmt.Errorf("server outcome: %w", err)
	}
	logger.Info("server: derived outcome", "encryption_key_prefix", fmt.Sprintf("%x", outcome.EncryptionKey[:4]))
	return nil
}

func fatal(logger *slog.Logger, op string, err error) {
	logger.Error(op, "error", err)
	os.Exit(1)
}
