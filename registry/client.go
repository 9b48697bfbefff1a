package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/parametric-insurance-coordinator/contracts"
	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
	"github.com/ruteri/parametric-insurance-coordinator/wallet"
)

// Client implements the read-before-write identity protocol against one
// registry contract, sending writes from the connected wallet.
type Client struct {
	registry interfaces.IdentityRegistry
	factory  interfaces.ContractFactory
	sender   interfaces.TxSender
	executor *wallet.Executor
	log      *slog.Logger
}

// NewClient creates a registry client. factory creates identity-record handles
// and sender confirms the transactions they submit.
func NewClient(registryAddress common.Address, factory interfaces.ContractFactory, sender interfaces.TxSender, executor *wallet.Executor, log *slog.Logger) (*Client, error) {
	reg, err := factory.Registry(registryAddress)
	if err != nil {
		return nil, fmt.Errorf("could not bind registry %s: %w", registryAddress.Hex(), err)
	}

	return &Client{
		registry: reg,
		factory:  factory,
		sender:   sender,
		executor: executor,
		log:      log.With(slog.String("registry", registryAddress.Hex())),
	}, nil
}

// GetIdentityAddress returns the wallet's identity-record address, or nil if
// the registry holds no record for it.
func (c *Client) GetIdentityAddress(ctx context.Context, walletAddress common.Address) (*common.Address, error) {
	addr, err := c.registry.GetIndividualWalletInfoAddress(ctx, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("could not read identity of %s: %w", walletAddress.Hex(), err)
	}
	if interfaces.IsZeroAddress(addr) {
		return nil, nil
	}
	return &addr, nil
}

// EnsureIdentity returns the wallet's identity record, creating it first if
// absent. The creation transaction is sent by the connected wallet, which must
// be walletAddress.
func (c *Client) EnsureIdentity(ctx context.Context, walletAddress common.Address) (common.Address, error) {
	existing, err := c.GetIdentityAddress(ctx, walletAddress)
	if err != nil {
		return common.Address{}, err
	}
	if existing != nil {
		c.log.Debug("Identity already exists", slog.String("wallet", walletAddress.Hex()), slog.String("identity", existing.Hex()))
		return *existing, nil
	}

	_, err = c.executor.Run(ctx, c.sender, "registerAndCreateIndividualWalletInfo", c.registry.RegisterAndCreateIndividualWalletInfo)
	if err != nil {
		// Another client may have created the record between our read and write.
		if _, duplicate := contracts.WalletInfoAlreadyExists(err); !duplicate {
			return common.Address{}, err
		}
		c.log.Info("Registry reports identity already exists, re-reading", slog.String("wallet", walletAddress.Hex()))
	}

	created, err := c.GetIdentityAddress(ctx, walletAddress)
	if err != nil {
		return common.Address{}, err
	}
	if created == nil {
		return common.Address{}, fmt.Errorf("%w: registry returned no record for %s", interfaces.ErrIdentityCreationFailed, walletAddress.Hex())
	}

	c.log.Info("Identity created", slog.String("wallet", walletAddress.Hex()), slog.String("identity", created.Hex()))
	return *created, nil
}

// GetRole reads the role stored in an identity record.
func (c *Client) GetRole(ctx context.Context, identity common.Address) (interfaces.Role, error) {
	record, err := c.factory.IdentityRecord(identity)
	if err != nil {
		return interfaces.RoleNone, err
	}
	return record.GetWalletType(ctx)
}

// SetRole sets the role of an identity record. Setting the role it already has
// issues no transaction; a different concrete role already set fails with
// *interfaces.RoleConflictError.
func (c *Client) SetRole(ctx context.Context, identity common.Address, role interfaces.Role) error {
	if !role.IsConcrete() {
		return interfaces.NewValidationError("role", "must be user or company, got %s", role)
	}

	record, err := c.factory.IdentityRecord(identity)
	if err != nil {
		return err
	}

	current, err := record.GetWalletType(ctx)
	if err != nil {
		return fmt.Errorf("could not read role of %s: %w", identity.Hex(), err)
	}
	switch {
	case current == role:
		c.log.Debug("Role already set", slog.String("identity", identity.Hex()), slog.String("role", role.String()))
		return nil
	case current != interfaces.RoleNone:
		return &interfaces.RoleConflictError{Actual: current, Requested: role}
	}

	_, err = c.executor.Run(ctx, c.sender, "setWalletType", func(ctx context.Context) (common.Hash, error) {
		return record.SetWalletType(ctx, role)
	})
	if err == nil {
		return nil
	}

	if _, duplicate := contracts.WalletTypeAlreadySet(err); !duplicate {
		return err
	}

	// The contract is the arbiter: report what it actually holds.
	actual, readErr := record.GetWalletType(ctx)
	if readErr != nil {
		return errors.Join(err, readErr)
	}
	if actual == role {
		return nil
	}
	return &interfaces.RoleConflictError{Actual: actual, Requested: role}
}

// AddPolicy binds a policy to an identity record.
func (c *Client) AddPolicy(ctx context.Context, identity, policy common.Address) error {
	record, err := c.factory.IdentityRecord(identity)
	if err != nil {
		return err
	}
	_, err = c.executor.Run(ctx, c.sender, "addSmartInsuranceContract", func(ctx context.Context) (common.Hash, error) {
		return record.AddSmartInsuranceContract(ctx, policy)
	})
	return err
}

// Policies lists the policy addresses bound to an identity record.
func (c *Client) Policies(ctx context.Context, identity common.Address) ([]common.Address, error) {
	record, err := c.factory.IdentityRecord(identity)
	if err != nil {
		return nil, err
	}
	return record.GetSmartInsuranceContracts(ctx)
}

// HasPolicy reports whether policy is already bound to identity.
func (c *Client) HasPolicy(ctx context.Context, identity, policy common.Address) (bool, error) {
	policies, err := c.Policies(ctx, identity)
	if err != nil {
		return false, err
	}
	return slices.Contains(policies, policy), nil
}

// Identity resolves a wallet's identity record and role in one go.
func (c *Client) Identity(ctx context.Context, walletAddress common.Address) (*interfaces.WalletIdentity, error) {
	identity := &interfaces.WalletIdentity{WalletAddress: walletAddress, Role: interfaces.RoleNone}

	addr, err := c.GetIdentityAddress(ctx, walletAddress)
	if err != nil || addr == nil {
		return identity, err
	}
	identity.IdentityAddress = addr

	role, err := c.GetRole(ctx, *addr)
	if err != nil {
		return nil, err
	}
	identity.Role = role
	return identity, nil
}
