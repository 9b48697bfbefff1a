// Package policyquery lists and reads policies bound to a wallet and submits
// the batch expiry transition.
package policyquery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
	"github.com/ruteri/parametric-insurance-coordinator/wallet"
)

// PolicyLister is the subset of the registry client used for listing.
type PolicyLister interface {
	GetIdentityAddress(ctx context.Context, wallet common.Address) (*common.Address, error)
	Policies(ctx context.Context, identity common.Address) ([]common.Address, error)
}

// Partition groups a wallet's policies by status for display.
type Partition struct {
	Expired         []*interfaces.PolicyDetail `json:"expired"`
	ActiveOrPending []*interfaces.PolicyDetail `json:"active_or_pending"`
	Other           []*interfaces.PolicyDetail `json:"other"`
}

// Addresses returns the addresses of details in order.
func Addresses(details []*interfaces.PolicyDetail) []common.Address {
	out := make([]common.Address, 0, len(details))
	for _, d := range details {
		out = append(out, d.Address)
	}
	return out
}

// UpdateResult reports what UpdateExpired submitted.
type UpdateResult struct {
	Candidates []common.Address `json:"candidates"`
	TxHash     *common.Hash     `json:"tx_hash,omitempty"`
}

// Service reads policies through the connected wallet's contract factory.
type Service struct {
	factory  interfaces.ContractFactory
	lister   PolicyLister
	gateway  common.Address
	sender   interfaces.TxSender
	executor *wallet.Executor
	log      *slog.Logger
}

func NewService(factory interfaces.ContractFactory, lister PolicyLister, gateway common.Address, sender interfaces.TxSender, executor *wallet.Executor, log *slog.Logger) *Service {
	return &Service{
		factory:  factory,
		lister:   lister,
		gateway:  gateway,
		sender:   sender,
		executor: executor,
		log:      log,
	}
}

// ListPolicies returns the policies bound to wallet that pass filter. The
// registry has no server-side filter, so non-"all" filters fetch each policy's
// detail and check its status.
func (s *Service) ListPolicies(ctx context.Context, walletAddress common.Address, filter interfaces.PolicyFilter) ([]common.Address, error) {
	addresses, err := s.boundPolicies(ctx, walletAddress)
	if err != nil || filter == interfaces.FilterAll {
		return addresses, err
	}

	details, err := s.details(ctx, addresses)
	if err != nil {
		return nil, err
	}

	out := make([]common.Address, 0, len(details))
	for _, d := range details {
		if filter.Matches(d.Status) {
			out = append(out, d.Address)
		}
	}
	return out, nil
}

// GetPolicyDetail reads every field of a policy in one call. It returns nil
// when no contract is deployed at address.
func (s *Service) GetPolicyDetail(ctx context.Context, address common.Address) (*interfaces.PolicyDetail, error) {
	policy, err := s.factory.Policy(address)
	if err != nil {
		return nil, err
	}

	deployed, err := policy.Deployed(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not check code at %s: %w", address.Hex(), err)
	}
	if !deployed {
		return nil, nil
	}

	detail, err := policy.Detail(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read policy %s: %w", address.Hex(), err)
	}
	return detail, nil
}

// BatchMarkExpired submits the gateway's expiry transition for addresses and
// waits for it. An empty list submits nothing and returns a nil hash.
func (s *Service) BatchMarkExpired(ctx context.Context, addresses []common.Address) (*common.Hash, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	gateway, err := s.factory.Gateway(s.gateway)
	if err != nil {
		return nil, err
	}

	receipt, err := s.executor.Run(ctx, s.sender, "markExpiredPolicies", func(ctx context.Context) (common.Hash, error) {
		return gateway.MarkExpiredPolicies(ctx, addresses)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Expiry transition submitted", slog.Int("policies", len(addresses)))
	hash := receipt.TxHash
	return &hash, nil
}

// Partition reads every policy of wallet and groups them by status. Only
// status Expired goes into the expired bucket.
func (s *Service) Partition(ctx context.Context, walletAddress common.Address) (*Partition, error) {
	addresses, err := s.boundPolicies(ctx, walletAddress)
	if err != nil {
		return nil, err
	}

	details, err := s.details(ctx, addresses)
	if err != nil {
		return nil, err
	}

	p := &Partition{}
	for _, d := range details {
		switch {
		case d.Status == interfaces.StatusExpired:
			p.Expired = append(p.Expired, d)
		case d.Status.IsOpen():
			p.ActiveOrPending = append(p.ActiveOrPending, d)
		default:
			p.Other = append(p.Other, d)
		}
	}
	return p, nil
}

// UpdateExpired hands every active or pending policy of wallet to the gateway,
// which expires those past their expiration. Nothing is submitted when there
// are no candidates.
func (s *Service) UpdateExpired(ctx context.Context, walletAddress common.Address) (*UpdateResult, error) {
	p, err := s.Partition(ctx, walletAddress)
	if err != nil {
		return nil, err
	}

	res := &UpdateResult{Candidates: Addresses(p.ActiveOrPending)}
	if len(res.Candidates) == 0 {
		s.log.Debug("No active or pending policies to expire", slog.String("wallet", walletAddress.Hex()))
		return res, nil
	}

	res.TxHash, err = s.BatchMarkExpired(ctx, res.Candidates)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) boundPolicies(ctx context.Context, walletAddress common.Address) ([]common.Address, error) {
	identity, err := s.lister.GetIdentityAddress(ctx, walletAddress)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return []common.Address{}, nil
	}
	return s.lister.Policies(ctx, *identity)
}

// details fetches details sequentially. Addresses without code are skipped.
func (s *Service) details(ctx context.Context, addresses []common.Address) ([]*interfaces.PolicyDetail, error) {
	out := make([]*interfaces.PolicyDetail, 0, len(addresses))
	for _, addr := range addresses {
		detail, err := s.GetPolicyDetail(ctx, addr)
		if err != nil {
			return nil, err
		}
		if detail == nil {
			s.log.Warn("Bound policy has no code, skipping", slog.String("policy", addr.Hex()))
			continue
		}
		out = append(out, detail)
	}
	return out, nil
}
