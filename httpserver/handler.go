package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/parametric-insurance-coordinator/api"
	"github.com/ruteri/parametric-insurance-coordinator/coordinator"
	"github.com/ruteri/parametric-insurance-coordinator/deployment"
	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
	"github.com/ruteri/parametric-insurance-coordinator/policyquery"
	"github.com/ruteri/parametric-insurance-coordinator/registration"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// Coordinator is the session owner the handler drives. *coordinator.Coordinator implements it.
type Coordinator interface {
	Connect(ctx context.Context) (*coordinator.SessionInfo, error)
	Disconnect(ctx context.Context) error
	State() *coordinator.SessionInfo
	Identity(ctx context.Context) (*interfaces.WalletIdentity, error)
	Register(ctx context.Context, role interfaces.Role) (*registration.Result, error)
	RegistrationStatus() (registration.Snapshot, bool)
	AbandonRegistration() error
	DeployPolicy(ctx context.Context, req *interfaces.PolicyRequest) (*deployment.Result, error)
	RetryBinding(ctx context.Context, policy common.Address) (*deployment.Result, error)
	ListPolicies(ctx context.Context, filter interfaces.PolicyFilter) ([]common.Address, error)
	GetPolicyDetail(ctx context.Context, address common.Address) (*interfaces.PolicyDetail, error)
	Partition(ctx context.Context) (*policyquery.Partition, error)
	UpdateExpired(ctx context.Context) (*policyquery.UpdateResult, error)
	BatchMarkExpired(ctx context.Context, addresses []common.Address) (*common.Hash, error)
	Ready() bool
}

var _ Coordinator = (*coordinator.Coordinator)(nil)

// Handler translates HTTP requests into coordinator operations and
// coordinator errors into api.ErrorResponse bodies.
type Handler struct {
	coordinator Coordinator
	opTimeout   time.Duration
	log         *slog.Logger
}

// NewHandler creates a handler. A zero opTimeout leaves operations bounded
// only by the request context.
func NewHandler(c Coordinator, opTimeout time.Duration, log *slog.Logger) *Handler {
	return &Handler{
		coordinator: c,
		opTimeout:   opTimeout,
		log:         log,
	}
}

// StatusCode maps an error kind to the HTTP status returned for it.
func StatusCode(err error) int {
	switch interfaces.ErrorKind(err) {
	case "validation_error":
		return http.StatusBadRequest
	case "not_connected", "unsupported_network", "incomplete_binding":
		return http.StatusPreconditionFailed
	case "connection_rejected", "issuer_not_registered":
		return http.StatusForbidden
	case "connection_timeout":
		return http.StatusGatewayTimeout
	case "role_conflict", "registration_in_progress":
		return http.StatusConflict
	case "partial_registration_failure", "insured_identity_not_found":
		return http.StatusFailedDependency
	case "identity_creation_failed", "deployment_failed", "transaction_failure":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) opContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.opTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.opTimeout)
}

// HandleConnect connects the wallet and resolves the chain binding.
//
// URL format: POST /api/session/connect
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.opContext(r)
	defer cancel()

	info, err := h.coordinator.Connect(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// HandleDisconnect always clears the session.
func (h *Handler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.Disconnect(r.Context()); err != nil {
		h.log.Warn("Wallet provider reported an error on disconnect", "err", err)
	}
	h.writeJSON(w, http.StatusOK, h.coordinator.State())
}

func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.coordinator.State())
}

func (h *Handler) HandleIdentity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.opContext(r)
	defer cancel()

	identity, err := h.coordinator.Identity(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, identity)
}

// HandleRegister runs a registration for the connected wallet.
//
// URL format: POST /api/registration
// Request body: {"role": "user" | "company"}
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	res, err := h.coordinator.Register(ctx, req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// HandleRegistrationStatus returns the in-flight registration or 404.
func (h *Handler) HandleRegistrationStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.coordinator.RegistrationStatus()
	if !ok {
		h.writeJSON(w, http.StatusNotFound, api.ErrorResponse{Kind: "not_found", Message: "No registration is in progress."})
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) HandleAbandonRegistration(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.AbandonRegistration(); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeployPolicy validates, deploys and binds a policy. A partially bound
// deployment answers 424 with the outcome so only the binding is retried.
//
// URL format: POST /api/policies
// Request body: interfaces.PolicyRequest
func (h *Handler) HandleDeployPolicy(w http.ResponseWriter, r *http.Request) {
	var req interfaces.PolicyRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	res, err := h.coordinator.DeployPolicy(ctx, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, res)
}

// HandleRetryBinding re-runs the missing binding step(s) of a deployed policy.
//
// URL format: POST /api/policies/{address}/bind
func (h *Handler) HandleRetryBinding(w http.ResponseWriter, r *http.Request) {
	policy, ok := h.pathAddress(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	res, err := h.coordinator.RetryBinding(ctx, policy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// HandleListPolicies lists the connected wallet's policies.
//
// URL format: GET /api/policies?filter=all|active|closed
func (h *Handler) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	filter, err := interfaces.ParsePolicyFilter(r.URL.Query().Get("filter"))
	if err != nil {
		h.writeError(w, r, interfaces.NewValidationError("filter", "%v", err))
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	policies, err := h.coordinator.ListPolicies(ctx, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if policies == nil {
		policies = []common.Address{}
	}
	h.writeJSON(w, http.StatusOK, api.ListPoliciesResponse{Filter: filter, Policies: policies})
}

func (h *Handler) HandlePartition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.opContext(r)
	defer cancel()

	partition, err := h.coordinator.Partition(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, partition)
}

// HandlePolicyDetail reads one policy. Addresses without contract code answer 404.
//
// URL format: GET /api/policies/{address}
func (h *Handler) HandlePolicyDetail(w http.ResponseWriter, r *http.Request) {
	address, ok := h.pathAddress(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	detail, err := h.coordinator.GetPolicyDetail(ctx, address)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if detail == nil {
		h.writeJSON(w, http.StatusNotFound, api.ErrorResponse{
			Kind:    "not_found",
			Message: fmt.Sprintf("No policy contract is deployed at %s.", address.Hex()),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

// HandleExpire marks policies expired through the insurance gateway. An empty
// address list expires every open policy of the connected wallet.
//
// URL format: POST /api/policies/expire
func (h *Handler) HandleExpire(w http.ResponseWriter, r *http.Request) {
	var req api.ExpireRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	if len(req.Addresses) == 0 {
		res, err := h.coordinator.UpdateExpired(ctx)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, api.ExpireResponse{Candidates: res.Candidates, TxHash: res.TxHash})
		return
	}

	txHash, err := h.coordinator.BatchMarkExpired(ctx, req.Addresses)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.ExpireResponse{Candidates: req.Addresses, TxHash: txHash})
}

func (h *Handler) pathAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	address, err := interfaces.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		h.writeError(w, r, interfaces.NewValidationError("address", "%v", err))
		return common.Address{}, false
	}
	return address, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.writeError(w, r, interfaces.NewValidationError("body", "%v", err))
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := api.ErrorResponse{
		Kind:    interfaces.ErrorKind(err),
		Message: interfaces.UserMessage(err),
		Detail:  err.Error(),
	}

	var verr *interfaces.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	var rerr *interfaces.RoleConflictError
	if errors.As(err, &rerr) {
		actual := rerr.Actual
		resp.ActualRole = &actual
	}
	var perr *interfaces.PartialRegistrationError
	if errors.As(err, &perr) {
		outcome := perr.Outcome
		resp.Outcome = &outcome
	}

	status := StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", slog.String("path", r.URL.Path), slog.String("kind", resp.Kind), "err", err)
	} else {
		h.log.Debug("Request rejected", slog.String("path", r.URL.Path), slog.String("kind", resp.Kind), "err", err)
	}

	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
