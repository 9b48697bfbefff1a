package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// KeySource yields the signing key for a keyed wallet.
type KeySource interface {
	PrivateKey(ctx context.Context) (*ecdsa.PrivateKey, error)
}

// HexKey is a private key given inline as hex, with or without 0x prefix.
type HexKey string

func (k HexKey) PrivateKey(_ context.Context) (*ecdsa.PrivateKey, error) {
	return ParsePrivateKey(string(k))
}

// FileKey is a file holding a hex-encoded private key.
type FileKey string

func (k FileKey) PrivateKey(_ context.Context) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(string(k))
	if err != nil {
		return nil, fmt.Errorf("could not read key file: %w", err)
	}
	return ParsePrivateKey(string(data))
}

// ParsePrivateKey parses a hex-encoded secp256k1 private key.
func ParsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, errors.New("empty private key")
	}
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}
