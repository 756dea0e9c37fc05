package config

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

// signFixture produces a Minisign public key file and a detached legacy
// (non-prehashed) signature for body.
func signFixture(t *testing.T, body []byte) (pubKey string, signature string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keyID := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	pkBin := append([]byte("Ed"), keyID...)
	pkBin = append(pkBin, pub...)
	pubKey = "untrusted comment: minisign public key 0807060504030201\n" +
		base64.StdEncoding.EncodeToString(pkBin) + "\n"

	sig := ed25519.Sign(priv, body)
	sigBin := append([]byte("Ed"), keyID...)
	sigBin = append(sigBin, sig...)

	trusted := "timestamp:1700000000\tfile:config"
	global := ed25519.Sign(priv, append(append([]byte{}, sig...), []byte(trusted)...))

	signature = "untrusted comment: signature from minisign secret key\n" +
		base64.StdEncoding.EncodeToString(sigBin) + "\n" +
		"trusted comment: " + trusted + "\n" +
		base64.StdEncoding.EncodeToString(global) + "\n"
	return pubKey, signature
}

func TestVerifierAcceptsSignedConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config")
	body := []byte(sampleJSON)
	if err := os.WriteFile(cfgPath, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	pubKey, sig := signFixture(t, body)
	if err := os.WriteFile(cfgPath+SignatureSuffix, []byte(sig), 0o600); err != nil {
		t.Fatalf("write signature: %v", err)
	}

	v, err := NewVerifier(pubKey)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if err := v.VerifyFile(context.Background(), cfgPath, ""); err != nil {
		t.Fatalf("VerifyFile returned error: %v", err)
	}
}

func TestVerifierRejectsTamperedConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config")
	pubKey, sig := signFixture(t, []byte(sampleJSON))
	if err := os.WriteFile(cfgPath, []byte(`{"operator":"someone else"}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	sigPath := filepath.Join(dir, "detached.sig")
	if err := os.WriteFile(sigPath, []byte(sig), 0o600); err != nil {
		t.Fatalf("write signature: %v", err)
	}

	v, err := NewVerifier(pubKey)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if err := v.VerifyFile(context.Background(), cfgPath, sigPath); err == nil {
		t.Fatalf("expected verification failure for tampered config")
	}
}

func TestVerifierRequiresKey(t *testing.T) {
	if _, err := NewVerifier("  "); err == nil {
		t.Fatalf("expected error for empty key")
	}
	var v *Verifier
	if err := v.VerifyFile(context.Background(), "x", "y"); err == nil {
		t.Fatalf("expected error for nil verifier")
	}
}
