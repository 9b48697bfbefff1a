package deployment

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

const (
	// ThresholdDecimals is the fixed-point precision of sensor thresholds on-chain.
	ThresholdDecimals = 6

	MinSensorConditions = 1
	MaxSensorConditions = 2

	// MaxTokenDecimals is the largest decimals() value whose unit, 10^decimals, fits a uint256.
	MaxTokenDecimals = 77

	// MaxRadiusMeters is half the Earth's circumference.
	MaxRadiusMeters = 20_037_508
)

var (
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	maxInt256  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	minInt256  = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))

	legacyUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(sdkmath.LegacyPrecision), nil)
)

// Validated is a request that passed every check that needs no network access.
// Amounts are still unscaled: scaling needs the token's decimals.
type Validated struct {
	InsuredWallet    common.Address
	TokenAddress     common.Address
	Premium          sdkmath.LegacyDec
	Payout           sdkmath.LegacyDec
	SensorConditions []interfaces.SensorCondition
	Geofence         interfaces.Geofence
	Expiration       time.Time
}

// Validate checks req without touching the network. The first violation is
// returned as *interfaces.ValidationError naming the field.
func Validate(req *interfaces.PolicyRequest, now time.Time) (*Validated, error) {
	if req == nil {
		return nil, interfaces.NewValidationError("request", "missing")
	}

	insured, err := interfaces.ParseAddress(req.InsuredWallet)
	if err != nil {
		return nil, interfaces.NewValidationError("insuredWallet", "%v", err)
	}

	premium, err := parsePositiveAmount(req.PremiumAmount)
	if err != nil {
		return nil, interfaces.NewValidationError("premiumAmount", "%v", err)
	}

	payout, err := parsePositiveAmount(req.PayoutAmount)
	if err != nil {
		return nil, interfaces.NewValidationError("payoutAmount", "%v", err)
	}

	token, err := interfaces.ParseAddress(req.TokenAddress)
	if err != nil {
		return nil, interfaces.NewValidationError("tokenAddress", "%v", err)
	}

	expiration := time.Unix(req.ExpirationTimestamp, 0).UTC()
	if !expiration.After(now) {
		return nil, interfaces.NewValidationError("expirationTimestamp", "must be in the future")
	}

	fence, err := validateGeofence(req.Latitude, req.Longitude, req.RadiusMeters)
	if err != nil {
		return nil, err
	}

	conditions, err := validateSensorConditions(req.SensorConditions, fence)
	if err != nil {
		return nil, err
	}

	return &Validated{
		InsuredWallet:    insured,
		TokenAddress:     token,
		Premium:          premium,
		Payout:           payout,
		SensorConditions: conditions,
		Geofence:         fence,
		Expiration:       expiration,
	}, nil
}

func parsePositiveAmount(s string) (sdkmath.LegacyDec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return sdkmath.LegacyDec{}, fmt.Errorf("required")
	}
	amount, err := sdkmath.LegacyNewDecFromStr(s)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("not a decimal number")
	}
	if !amount.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("must be positive")
	}
	return amount, nil
}

func validateGeofence(lat, lon, radius float64) (interfaces.Geofence, error) {
	switch {
	case math.IsNaN(lat) || lat < -90 || lat > 90:
		return interfaces.Geofence{}, interfaces.NewValidationError("latitude", "must be within [-90, 90]")
	case math.IsNaN(lon) || lon < -180 || lon > 180:
		return interfaces.Geofence{}, interfaces.NewValidationError("longitude", "must be within [-180, 180]")
	case math.IsNaN(radius) || math.IsInf(radius, 0) || radius <= 0:
		return interfaces.Geofence{}, interfaces.NewValidationError("radiusMeters", "must be positive")
	case radius < 1 || radius > MaxRadiusMeters:
		return interfaces.Geofence{}, interfaces.NewValidationError("radiusMeters", "must be within [1, %d]", MaxRadiusMeters)
	}
	return interfaces.Geofence{Latitude: lat, Longitude: lon, RadiusMeters: radius}, nil
}

func validateSensorConditions(reqs []interfaces.SensorConditionRequest, fence interfaces.Geofence) ([]interfaces.SensorCondition, error) {
	if len(reqs) < MinSensorConditions || len(reqs) > MaxSensorConditions {
		return nil, interfaces.NewValidationError("sensorConditions", "need %d to %d conditions, got %d", MinSensorConditions, MaxSensorConditions, len(reqs))
	}

	seen := make(map[string]bool, len(reqs))
	conditions := make([]interfaces.SensorCondition, 0, len(reqs))
	for i, req := range reqs {
		field := fmt.Sprintf("sensorConditions[%d]", i)

		topic := strings.TrimSpace(req.Topic)
		if topic == "" {
			return nil, interfaces.NewValidationError(field+".topic", "required")
		}
		if seen[topic] {
			return nil, interfaces.NewValidationError("sensorConditions", "duplicate topic %q", topic)
		}
		seen[topic] = true

		op, err := interfaces.ParseComparisonOperator(req.Operator)
		if err != nil {
			return nil, interfaces.NewValidationError(field+".operator", "%v", err)
		}

		threshold, err := ScaleThreshold(req.Threshold)
		if err != nil {
			return nil, interfaces.NewValidationError(field+".threshold", "%v", err)
		}

		conditions = append(conditions, interfaces.SensorCondition{
			Topic:     topic,
			Operator:  op,
			Threshold: threshold,
			GeoQuery:  interfaces.NewGeoQuery(topic, fence),
		})
	}
	return conditions, nil
}

// ScaleThreshold converts a decimal threshold to its fixed-point on-chain value.
// The result must fit an int256.
func ScaleThreshold(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("required")
	}
	value, err := sdkmath.LegacyNewDecFromStr(s)
	if err != nil {
		return nil, fmt.Errorf("not a decimal number")
	}
	scaled, exact := scaleDec(value, ThresholdDecimals)
	if !exact {
		return nil, fmt.Errorf("more than %d decimal places", ThresholdDecimals)
	}
	if scaled.Cmp(maxInt256) > 0 || scaled.Cmp(minInt256) < 0 {
		return nil, fmt.Errorf("out of range")
	}
	return scaled, nil
}

// ScaleAmount converts a token amount to base units. Amounts with more
// fractional digits than the token supports, or that do not fit a uint256
// once scaled, are rejected.
func ScaleAmount(field string, amount sdkmath.LegacyDec, decimals uint8) (*big.Int, error) {
	if decimals > MaxTokenDecimals {
		return nil, interfaces.NewValidationError("tokenAddress", "token reports %d decimals, at most %d supported", decimals, MaxTokenDecimals)
	}
	scaled, exact := scaleDec(amount, int(decimals))
	if !exact {
		return nil, interfaces.NewValidationError(field, "more than %d decimal places for this token", decimals)
	}
	if scaled.Sign() < 0 || scaled.Cmp(maxUint256) > 0 {
		return nil, interfaces.NewValidationError(field, "out of range for this token")
	}
	return scaled, nil
}

// scaleDec returns d * 10^decimals and whether the product is integral.
// It works on the raw fixed-point integer so arbitrarily large inputs never overflow.
func scaleDec(d sdkmath.LegacyDec, decimals int) (*big.Int, bool) {
	raw := d.BigInt()
	raw.Mul(raw, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	quo, rem := new(big.Int).QuoRem(raw, legacyUnit, new(big.Int))
	return quo, rem.Sign() == 0
}

// Params builds chain-ready constructor arguments from a validated request.
func (v *Validated) Params(issuer common.Address, decimals uint8) (*interfaces.PolicyParams, error) {
	premium, err := ScaleAmount("premiumAmount", v.Premium, decimals)
	if err != nil {
		return nil, err
	}
	payout, err := ScaleAmount("payoutAmount", v.Payout, decimals)
	if err != nil {
		return nil, err
	}

	return &interfaces.PolicyParams{
		InsuredWallet:    v.InsuredWallet,
		IssuerWallet:     issuer,
		PremiumScaled:    premium,
		PayoutScaled:     payout,
		TokenAddress:     v.TokenAddress,
		SensorConditions: v.SensorConditions,
		Geofence:         v.Geofence,
		Expiration:       v.Expiration,
	}, nil
}
