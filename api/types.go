package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

const (
	PathSessionConnect    = "/api/session/connect"
	PathSessionDisconnect = "/api/session/disconnect"
	PathSession           = "/api/session"
	PathIdentity          = "/api/identity"
	PathRegistration      = "/api/registration"
	PathPolicies          = "/api/policies"
	PathPolicyPartition   = "/api/policies/partition"
	PathPoliciesExpire    = "/api/policies/expire"
	PathPolicy            = "/api/policies/{address}"
	PathPolicyBind        = "/api/policies/{address}/bind"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`

	// Field is set for validation errors.
	Field string `json:"field,omitempty"`

	// ActualRole is set for role conflicts.
	ActualRole *interfaces.Role `json:"actual_role,omitempty"`

	// Outcome is set when a policy was deployed but not fully bound.
	Outcome *interfaces.DeploymentOutcome `json:"outcome,omitempty"`
}

type RegisterRequest struct {
	Role interfaces.Role `json:"role"`
}

type ListPoliciesResponse struct {
	Filter   interfaces.PolicyFilter `json:"filter"`
	Policies []common.Address        `json:"policies"`
}

// ExpireRequest selects policies for batchMarkExpired. With no addresses the
// server partitions the wallet's policies and submits every open one.
type ExpireRequest struct {
	Addresses []common.Address `json:"addresses,omitempty"`
}

type ExpireResponse struct {
	Candidates []common.Address `json:"candidates"`
	TxHash     *common.Hash     `json:"tx_hash,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
