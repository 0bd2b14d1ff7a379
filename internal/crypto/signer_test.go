package crypto

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSignVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	message := []byte("e-1|sum|3")

	sig, err := Sign(message, kp.Private)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if !Verify(message, sig, kp.Public) {
		t.Error("valid signature did not verify")
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	sig, err := Sign([]byte("original"), kp.Private)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if Verify([]byte("tampered"), sig, kp.Public) {
		t.Error("tampered message verified")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	other, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	message := []byte("e-1|p-1|42")

	sig, err := Sign(message, other.Private)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if Verify(message, sig, kp.Public) {
		t.Error("signature under wrong key verified")
	}
}

func TestVerifyMalformedInputs(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	message := []byte("payload")

	if Verify(message, "not hex", kp.Public) {
		t.Error("non-hex signature verified")
	}

	if Verify(message, "abcd", kp.Public) {
		t.Error("short signature verified")
	}

	sig, _ := Sign(message, kp.Private)
	if Verify(message, sig, "not a key") {
		t.Error("malformed public key verified")
	}
}

func TestPublicKeyOf(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	pub, err := PublicKeyOf(kp.Private)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	if pub != kp.Public {
		t.Errorf("derived key %s, want %s", pub, kp.Public)
	}
}

func TestLoadOrGenerateKeyPair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")

	first, err := LoadOrGenerateKeyPair(path)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}

	second, err := LoadOrGenerateKeyPair(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}

	if first.Private != second.Private {
		t.Error("key not stable across loads")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	if info.Mode().Perm() != 0600 {
		t.Errorf("key file mode %v, want 0600", info.Mode().Perm())
	}
}

func TestLoadOrGenerateKeyPairEphemeral(t *testing.T) {
	a, err := LoadOrGenerateKeyPair("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	b, err := LoadOrGenerateKeyPair("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if a.Private == b.Private {
		t.Error("ephemeral keys should differ")
	}
}

func TestLoadKeyPairTrailingNewline(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	path := filepath.Join(t.TempDir(), "node.key")
	if err := os.WriteFile(path, []byte(kp.Private+"\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, err := LoadOrGenerateKeyPair(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Public != kp.Public {
		t.Error("newline-terminated key did not load")
	}
}

func TestSelfSignedCertificate(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	cert, err := SelfSignedCertificate(kp.Private, []string{"localhost"})
	if err != nil {
		t.Fatalf("certificate: %v", err)
	}

	if len(cert.Certificate) == 0 {
		t.Error("empty certificate chain")
	}
}
