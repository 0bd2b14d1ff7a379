// Package crypto wraps the Ed25519 primitives behind the hex-encoded key
// and signature representation used on the wire.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// KeyPair holds hex-encoded Ed25519 key material.
type KeyPair struct {
	Public  string // Public is the 32-byte public key, lowercase hex
	Private string // Private is the 64-byte private key, lowercase hex
}

// GenerateKeyPair creates a new Ed25519 keypair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate keypair: %w", err)
	}

	return KeyPair{
		Public:  hex.EncodeToString(pub),
		Private: hex.EncodeToString(priv),
	}, nil
}

// Sign produces a hex-encoded detached Ed25519 signature over message.
func Sign(message []byte, privateKeyHex string) (string, error) {
	priv, err := decodePrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(ed25519.Sign(priv, message)), nil
}

// Verify reports whether signatureHex is a valid detached signature over
// message under publicKeyHex. Malformed keys or signatures verify as false.
func Verify(message []byte, signatureHex, publicKeyHex string) bool {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
}

// PublicKeyOf derives the hex public key from a hex private key.
func PublicKeyOf(privateKeyHex string) (string, error) {
	priv, err := decodePrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(priv.Public().(ed25519.PublicKey)), nil
}

// LoadOrGenerateKeyPair loads the hex private key from path or generates a
// new keypair. An empty path generates an ephemeral keypair; a missing file
// is created with the new key.
func LoadOrGenerateKeyPair(path string) (KeyPair, error) {
	if path == "" {
		return GenerateKeyPair()
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return generateAndSaveKeyPair(path)
	}

	if err != nil {
		return KeyPair{}, fmt.Errorf("read key file: %w", err)
	}

	privHex := string(data)
	if len(privHex) > 0 && privHex[len(privHex)-1] == '\n' {
		privHex = privHex[:len(privHex)-1]
	}

	pubHex, err := PublicKeyOf(privHex)
	if err != nil {
		return KeyPair{}, fmt.Errorf("key file %s: %w", path, err)
	}

	return KeyPair{Public: pubHex, Private: privHex}, nil
}

// generateAndSaveKeyPair creates a new keypair and writes the private half
// to the given path.
func generateAndSaveKeyPair(path string) (KeyPair, error) {
	kp, err := GenerateKeyPair()
	if err != nil {
		return KeyPair{}, err
	}

	if err := os.WriteFile(path, []byte(kp.Private), 0600); err != nil {
		return KeyPair{}, fmt.Errorf("save key to %s: %w", path, err)
	}

	return kp, nil
}

// decodePrivateKey parses a hex private key into the ed25519 representation.
func decodePrivateKey(privateKeyHex string) (ed25519.PrivateKey, error) {
	priv, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}

	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: got %d, want %d", len(priv), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(priv), nil
}
