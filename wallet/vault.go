package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/vault/api"
)

// VaultKeySource reads the signing key from a Vault KV v2 secret.
type VaultKeySource struct {
	client    *api.Client
	mountPath string
	dataPath  string
	field     string
	log       *slog.Logger
}

// NewVaultKeySource creates a key source for the secret at mountPath/dataPath.
// The token is taken from VAULT_TOKEN unless set explicitly.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - token: Vault token, empty to use the environment
//   - mountPath: KV v2 mount (e.g. "secret")
//   - dataPath: secret path within the mount (e.g. "insurance/issuer")
//   - field: key within the secret data holding the hex private key
func NewVaultKeySource(address, token, mountPath, dataPath, field string, log *slog.Logger) (*VaultKeySource, error) {
	config := api.DefaultConfig()
	if address != "" {
		config.Address = address
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	if field == "" {
		field = "private_key"
	}

	return &VaultKeySource{
		client:    client,
		mountPath: strings.Trim(mountPath, "/"),
		dataPath:  strings.Trim(dataPath, "/"),
		field:     field,
		log:       log,
	}, nil
}

func (v *VaultKeySource) PrivateKey(ctx context.Context) (*ecdsa.PrivateKey, error) {
	secret, err := v.client.KVv2(v.mountPath).Get(ctx, v.dataPath)
	if err != nil {
		v.log.Error("Failed to read signing key from Vault",
			slog.String("mount", v.mountPath),
			slog.String("path", v.dataPath),
			"err", err)
		return nil, fmt.Errorf("failed to read signing key from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret at %s/%s", v.mountPath, v.dataPath)
	}

	raw, ok := secret.Data[v.field].(string)
	if !ok {
		return nil, fmt.Errorf("secret %s/%s has no string field %q", v.mountPath, v.dataPath, v.field)
	}

	return ParsePrivateKey(raw)
}
