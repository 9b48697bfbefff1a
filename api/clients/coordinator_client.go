package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/parametric-insurance-coordinator/api"
	"github.com/ruteri/parametric-insurance-coordinator/coordinator"
	"github.com/ruteri/parametric-insurance-coordinator/deployment"
	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
	"github.com/ruteri/parametric-insurance-coordinator/policyquery"
	"github.com/ruteri/parametric-insurance-coordinator/registration"
)

// APIError is a non-2xx response from the coordinator.
type APIError struct {
	StatusCode int
	Response   api.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Response.Detail != "" {
		return fmt.Sprintf("coordinator returned %d (%s): %s", e.StatusCode, e.Response.Kind, e.Response.Detail)
	}
	return fmt.Sprintf("coordinator returned %d (%s): %s", e.StatusCode, e.Response.Kind, e.Response.Message)
}

// Kind returns the error kind of err if it is an *APIError.
func Kind(err error) string {
	var aerr *APIError
	if errors.As(err, &aerr) {
		return aerr.Response.Kind
	}
	return ""
}

// CoordinatorClient talks to a coordinator HTTP server.
type CoordinatorClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoordinatorClient creates a client. Chain writes wait for receipts, so
// timeout should cover the server's receipt timeout.
func NewCoordinatorClient(baseURL string, timeout time.Duration) *CoordinatorClient {
	return &CoordinatorClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *CoordinatorClient) Connect(ctx context.Context) (*coordinator.SessionInfo, error) {
	var info coordinator.SessionInfo
	if err := c.do(ctx, http.MethodPost, api.PathSessionConnect, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *CoordinatorClient) Disconnect(ctx context.Context) (*coordinator.SessionInfo, error) {
	var info coordinator.SessionInfo
	if err := c.do(ctx, http.MethodPost, api.PathSessionDisconnect, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *CoordinatorClient) Session(ctx context.Context) (*coordinator.SessionInfo, error) {
	var info coordinator.SessionInfo
	if err := c.do(ctx, http.MethodGet, api.PathSession, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *CoordinatorClient) Identity(ctx context.Context) (*interfaces.WalletIdentity, error) {
	var identity interfaces.WalletIdentity
	if err := c.do(ctx, http.MethodGet, api.PathIdentity, nil, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (c *CoordinatorClient) Register(ctx context.Context, role interfaces.Role) (*registration.Result, error) {
	var res registration.Result
	if err := c.do(ctx, http.MethodPost, api.PathRegistration, api.RegisterRequest{Role: role}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RegistrationStatus returns nil without error when nothing is in flight.
func (c *CoordinatorClient) RegistrationStatus(ctx context.Context) (*registration.Snapshot, error) {
	var snap registration.Snapshot
	err := c.do(ctx, http.MethodGet, api.PathRegistration, nil, &snap)
	var aerr *APIError
	if errors.As(err, &aerr) && aerr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *CoordinatorClient) AbandonRegistration(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, api.PathRegistration, nil, nil)
}

// DeployPolicy deploys and binds a policy. On a partial failure the returned
// *APIError carries the deployment outcome.
func (c *CoordinatorClient) DeployPolicy(ctx context.Context, req *interfaces.PolicyRequest) (*deployment.Result, error) {
	var res deployment.Result
	if err := c.do(ctx, http.MethodPost, api.PathPolicies, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *CoordinatorClient) RetryBinding(ctx context.Context, policy common.Address) (*deployment.Result, error) {
	var res deployment.Result
	if err := c.do(ctx, http.MethodPost, policyPath(api.PathPolicyBind, policy), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *CoordinatorClient) ListPolicies(ctx context.Context, filter interfaces.PolicyFilter) ([]common.Address, error) {
	var res api.ListPoliciesResponse
	path := api.PathPolicies + "?filter=" + url.QueryEscape(string(filter))
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Policies, nil
}

func (c *CoordinatorClient) Partition(ctx context.Context) (*policyquery.Partition, error) {
	var res policyquery.Partition
	if err := c.do(ctx, http.MethodGet, api.PathPolicyPartition, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *CoordinatorClient) GetPolicyDetail(ctx context.Context, policy common.Address) (*interfaces.PolicyDetail, error) {
	var detail interfaces.PolicyDetail
	if err := c.do(ctx, http.MethodGet, policyPath(api.PathPolicy, policy), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Expire marks addresses expired, or every open policy of the wallet when addresses is empty.
func (c *CoordinatorClient) Expire(ctx context.Context, addresses []common.Address) (*api.ExpireResponse, error) {
	var body any
	if len(addresses) > 0 {
		body = api.ExpireRequest{Addresses: addresses}
	}
	var res api.ExpireResponse
	if err := c.do(ctx, http.MethodPost, api.PathPoliciesExpire, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func policyPath(pattern string, policy common.Address) string {
	return strings.Replace(pattern, "{address}", policy.Hex(), 1)
}

func (c *CoordinatorClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		aerr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, &aerr.Response); err != nil {
			aerr.Response.Detail = strings.TrimSpace(string(data))
		}
		return aerr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse %s response: %w", path, err)
	}
	return nil
}
