package flags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ruteri/parametric-insurance-coordinator/chainbinding"
	"github.com/ruteri/parametric-insurance-coordinator/contracts"
	"github.com/ruteri/parametric-insurance-coordinator/coordinator"
	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
	"github.com/ruteri/parametric-insurance-coordinator/storage"
	"github.com/ruteri/parametric-insurance-coordinator/wallet"
	"github.com/urfave/cli/v2"
)

// KeySource picks the wallet key source from flags: --wallet-key, then
// --wallet-key-file, then Vault.
func KeySource(cCtx *cli.Context, log *slog.Logger) (wallet.KeySource, error) {
	switch {
	case cCtx.String(WalletKeyFlag.Name) != "":
		return wallet.HexKey(cCtx.String(WalletKeyFlag.Name)), nil
	case cCtx.String(WalletKeyFileFlag.Name) != "":
		return wallet.FileKey(cCtx.String(WalletKeyFileFlag.Name)), nil
	case cCtx.String(VaultPathFlag.Name) != "":
		vault, err := wallet.NewVaultKeySource(
			cCtx.String(VaultAddrFlag.Name),
			cCtx.String(VaultTokenFlag.Name),
			cCtx.String(VaultMountFlag.Name),
			cCtx.String(VaultPathFlag.Name),
			cCtx.String(VaultFieldFlag.Name),
			log)
		if err != nil {
			return nil, err
		}
		return vault, nil
	default:
		return nil, errors.New("no wallet key configured: set --wallet-key, --wallet-key-file or --vault-path")
	}
}

// LoadArtifact loads the policy contract artifact from --policy-artifact or
// from --artifact-store by --policy-artifact-id. Returns nil if neither is set.
func LoadArtifact(ctx context.Context, cCtx *cli.Context, log *slog.Logger) (*contracts.Artifact, error) {
	if path := cCtx.String(PolicyArtifactFlag.Name); path != "" {
		data, err := os.ReadFile(strings.TrimPrefix(path, "file://"))
		if err != nil {
			return nil, fmt.Errorf("could not read policy artifact: %w", err)
		}
		return contracts.ParseArtifact(data)
	}

	rawID := cCtx.String(PolicyArtifactIDFlag.Name)
	if rawID == "" {
		return nil, nil
	}
	id, err := interfaces.NewContentIDFromHex(rawID)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", PolicyArtifactIDFlag.Name, err)
	}

	locations := storage.SplitLocations(cCtx.String(ArtifactStoreFlag.Name))
	if len(locations) == 0 {
		return nil, fmt.Errorf("--%s requires --%s", PolicyArtifactIDFlag.Name, ArtifactStoreFlag.Name)
	}
	backend, err := storage.NewStorageBackendFactory(log).CreateMultiBackend(locations)
	if err != nil {
		return nil, err
	}

	data, err := storage.FetchVerified(ctx, backend, id, interfaces.ArtifactType)
	if err != nil {
		return nil, fmt.Errorf("could not fetch policy artifact %s: %w", id, err)
	}
	log.Info("Loaded policy artifact from storage", slog.String("contentID", id.String()), slog.String("backend", backend.Name()))
	return contracts.ParseArtifact(data)
}

// BuildCoordinator dials the RPC endpoint and assembles a coordinator from flags.
func BuildCoordinator(cCtx *cli.Context, log *slog.Logger) (*coordinator.Coordinator, error) {
	ctx := cCtx.Context

	table := chainbinding.DefaultTable
	if path := cCtx.String(ChainBindingsFileFlag.Name); path != "" {
		loaded, err := chainbinding.LoadTable(path, table)
		if err != nil {
			return nil, err
		}
		table = loaded
	}

	keys, err := KeySource(cCtx, log)
	if err != nil {
		return nil, err
	}

	artifact, err := LoadArtifact(ctx, cCtx, log)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		log.Warn("No policy artifact configured, policy deployment is disabled")
	}

	rpcAddr := cCtx.String(RpcAddrFlag.Name)
	log.Info("Connecting to Ethereum RPC", "address", rpcAddr)
	client, err := wallet.Dial(ctx, rpcAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC: %w", err)
	}

	cfg := coordinator.Config{
		Resolver: chainbinding.NewResolver(table),
		Session:  wallet.NewSession(wallet.NewKeyedProvider(client, keys, log), cCtx.Duration(ConnectTimeoutFlag.Name), log),
		NewFactory: func(conn *interfaces.WalletConnection) interfaces.ContractFactory {
			return contracts.NewFactory(conn, artifact)
		},
		ReceiptTimeout: cCtx.Duration(ReceiptTimeoutFlag.Name),
		Log:            log,
	}

	if locations := storage.SplitLocations(cCtx.String(TermsStoreFlag.Name)); len(locations) > 0 {
		archive, err := storage.NewStorageBackendFactory(log).CreateMultiBackend(locations)
		if err != nil {
			return nil, err
		}
		cfg.Archive = archive
	}

	return coordinator.New(cfg), nil
}
