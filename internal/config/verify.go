package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	minisign "github.com/jedisct1/go-minisign"
)

// SignatureSuffix is appended to the config path to locate its detached signature.
const SignatureSuffix = ".minisig"

// Verifier checks detached Minisign signatures of configuration files handed
// over by the node scheduler.
type Verifier struct {
	publicKey minisign.PublicKey
}

// NewVerifier parses a Minisign public key file body (comment line included).
func NewVerifier(pubKey string) (*Verifier, error) {
	pubKey = strings.TrimSpace(pubKey)
	if pubKey == "" {
		return nil, errors.New("minisign public key is required")
	}
	publicKey, err := minisign.DecodePublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("parse minisign public key: %w", err)
	}
	return &Verifier{publicKey: publicKey}, nil
}

// NewVerifierFromFile reads the public key from disk.
func NewVerifierFromFile(path string) (*Verifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key %q: %w", path, err)
	}
	return NewVerifier(string(data))
}

// VerifyFile validates configPath against signaturePath. An empty
// signaturePath defaults to configPath+SignatureSuffix.
func (v *Verifier) VerifyFile(ctx context.Context, configPath, signaturePath string) error {
	if v == nil {
		return errors.New("signature verifier not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(configPath) == "" {
		return errors.New("config path is required")
	}
	if strings.TrimSpace(signaturePath) == "" {
		signaturePath = configPath + SignatureSuffix
	}

	signatureBytes, err := os.ReadFile(signaturePath)
	if err != nil {
		return fmt.Errorf("read signature %q: %w", signaturePath, err)
	}
	signature, err := minisign.DecodeSignature(string(signatureBytes))
	if err != nil {
		return fmt.Errorf("decode signature %q: %w", signaturePath, err)
	}
	configBytes, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config %q: %w", configPath, err)
	}
	ok, err := v.publicKey.Verify(configBytes, signature)
	if err != nil {
		return fmt.Errorf("verify %q: %w", configPath, err)
	}
	if !ok {
		return fmt.Errorf("verify %q: signature mismatch", configPath)
	}
	return nil
}
