package interfaces

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroAddress is the all-zero placeholder address. Contracts return it for
// "no record" and the chain binding table uses it for "not deployed".
var ZeroAddress = common.Address{}

// IsZeroAddress reports whether addr is the zero/placeholder address.
func IsZeroAddress(addr common.Address) bool {
	return addr == ZeroAddress
}

// ParseAddress parses a 0x-prefixed or bare 40-char hex address and rejects
// the zero address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("malformed address %q", s)
	}
	addr := common.HexToAddress(s)
	if IsZeroAddress(addr) {
		return common.Address{}, fmt.Errorf("zero address not allowed")
	}
	return addr, nil
}

// Role is a wallet's on-chain classification as stored by its identity record.
// Values match the identity-record contract's getWalletType() encoding.
type Role uint8

const (
	RoleNone    Role = 0
	RoleUser    Role = 1
	RoleCompany Role = 2
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleUser:
		return "user"
	case RoleCompany:
		return "company"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

// Valid reports whether r is one of the known encodings.
func (r Role) Valid() bool {
	return r <= RoleCompany
}

// IsConcrete reports whether r is a settable role (User or Company).
func (r Role) IsConcrete() bool {
	return r == RoleUser || r == RoleCompany
}

// ParseRole parses "user" or "company" (case-insensitive).
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, nil
	case "company":
		return RoleCompany, nil
	default:
		return RoleNone, fmt.Errorf("unknown role %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	if strings.EqualFold(string(text), "none") {
		*r = RoleNone
		return nil
	}
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// PolicyStatus is the integer status code exposed by a policy contract's currentStatus().
type PolicyStatus uint8

const (
	StatusPending   PolicyStatus = 0
	StatusActive    PolicyStatus = 1
	StatusClaimed   PolicyStatus = 2
	StatusCancelled PolicyStatus = 3
	StatusExpired   PolicyStatus = 4
)

func (s PolicyStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusClaimed:
		return "claimed"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s PolicyStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PolicyStatus) UnmarshalText(text []byte) error {
	for _, candidate := range []PolicyStatus{StatusPending, StatusActive, StatusClaimed, StatusCancelled, StatusExpired} {
		if strings.EqualFold(string(text), candidate.String()) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown policy status %q", text)
}

// IsOpen reports whether the policy is still pending or active.
func (s PolicyStatus) IsOpen() bool {
	return s == StatusPending || s == StatusActive
}

// PolicyFilter selects which policies listPolicies returns.
type PolicyFilter string

const (
	FilterAll    PolicyFilter = "all"
	FilterActive PolicyFilter = "active"
	FilterClosed PolicyFilter = "closed"
)

// ParsePolicyFilter parses a filter name, defaulting the empty string to FilterAll.
func ParsePolicyFilter(s string) (PolicyFilter, error) {
	switch PolicyFilter(strings.ToLower(s)) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterActive:
		return FilterActive, nil
	case FilterClosed:
		return FilterClosed, nil
	default:
		return "", fmt.Errorf("unknown policy filter %q", s)
	}
}

// Matches reports whether a policy in the given status passes the filter.
func (f PolicyFilter) Matches(status PolicyStatus) bool {
	switch f {
	case FilterActive:
		return status.IsOpen()
	case FilterClosed:
		return !status.IsOpen()
	default:
		return true
	}
}

// ComparisonOperator is how a sensor reading is compared to its threshold.
type ComparisonOperator uint8

const (
	AtMost  ComparisonOperator = 0
	AtLeast ComparisonOperator = 1
)

func (op ComparisonOperator) String() string {
	switch op {
	case AtMost:
		return "at_most"
	case AtLeast:
		return "at_least"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(op))
	}
}

// ParseComparisonOperator accepts "at_most"/"atmost"/"<=" and "at_least"/"atleast"/">=".
func ParseComparisonOperator(s string) (ComparisonOperator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "at_most", "atmost", "<=":
		return AtMost, nil
	case "at_least", "atleast", ">=":
		return AtLeast, nil
	default:
		return 0, fmt.Errorf("unknown comparison operator %q", s)
	}
}

// ChainBinding is the contract address set deployed on one network.
type ChainBinding struct {
	ChainID                 uint64
	RegistryAddress         common.Address
	TokenAddress            common.Address
	InsuranceGatewayAddress common.Address
}

// WalletSession is a snapshot of the wallet connection state.
// Connected implies Address and ChainID are set.
type WalletSession struct {
	Connected bool            `json:"connected"`
	Address   *common.Address `json:"address,omitempty"`
	ChainID   *uint64         `json:"chain_id,omitempty"`
}

// WalletIdentity is a wallet's identity-record address and on-chain role.
type WalletIdentity struct {
	WalletAddress   common.Address  `json:"wallet_address"`
	IdentityAddress *common.Address `json:"identity_address,omitempty"`
	Role            Role            `json:"role"`
}

// Geofence is the circular area a policy covers.
type Geofence struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

// SensorCondition is one sensor-triggered payout condition of a policy.
// Threshold is the scaled integer value as stored on-chain.
type SensorCondition struct {
	Topic     string             `json:"topic"`
	Operator  ComparisonOperator `json:"operator"`
	Threshold *big.Int           `json:"threshold"`
	GeoQuery  GeoQuery           `json:"geo_query"`
}

// PolicyDetail is every readable field of a deployed policy contract.
type PolicyDetail struct {
	Address          common.Address    `json:"address"`
	IssuerWallet     common.Address    `json:"issuer_wallet"`
	InsuredWallet    common.Address    `json:"insured_wallet"`
	PremiumAmount    *big.Int          `json:"premium_amount"`
	PayoutAmount     *big.Int          `json:"payout_amount"`
	TokenAddress     common.Address    `json:"token_address"`
	SensorConditions []SensorCondition `json:"sensor_conditions"`
	Geofence         Geofence          `json:"geofence"`
	Expiration       time.Time         `json:"expiration"`
	Status           PolicyStatus      `json:"status"`
}

// SensorConditionRequest is the unvalidated caller form of a sensor condition.
type SensorConditionRequest struct {
	Topic     string `json:"topic"`
	Operator  string `json:"operator"`
	Threshold string `json:"threshold"`
}

// PolicyRequest is the unvalidated caller input for deploying a policy.
// Amounts and thresholds are decimal strings; ExpirationTimestamp is unix seconds.
type PolicyRequest struct {
	InsuredWallet       string                   `json:"insured_wallet"`
	PremiumAmount       string                   `json:"premium_amount"`
	PayoutAmount        string                   `json:"payout_amount"`
	TokenAddress        string                   `json:"token_address"`
	ExpirationTimestamp int64                    `json:"expiration_timestamp"`
	SensorConditions    []SensorConditionRequest `json:"sensor_conditions"`
	Latitude            float64                  `json:"latitude"`
	Longitude           float64                  `json:"longitude"`
	RadiusMeters        float64                  `json:"radius_meters"`
}

// PolicyParams are validated, chain-ready constructor arguments for a policy contract.
type PolicyParams struct {
	InsuredWallet    common.Address
	IssuerWallet     common.Address
	PremiumScaled    *big.Int
	PayoutScaled     *big.Int
	TokenAddress     common.Address
	SensorConditions []SensorCondition
	Geofence         Geofence
	Expiration       time.Time
}

// DeploymentOutcome reports how far the deploy-and-bind protocol got.
type DeploymentOutcome struct {
	PolicyAddress common.Address `json:"policy_address"`
	IssuerBound   bool           `json:"issuer_bound"`
	InsuredBound  bool           `json:"insured_bound"`
}

// Complete reports whether both sides are bound.
func (o DeploymentOutcome) Complete() bool {
	return o.IssuerBound && o.InsuredBound
}
