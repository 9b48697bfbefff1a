package contracts

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// CoordinateScale is the fixed-point factor for latitude/longitude on-chain (micro-degrees).
const CoordinateScale = 1_000_000

// GeofenceToTuple converts a geofence to its on-chain fixed-point form.
func GeofenceToTuple(fence interfaces.Geofence) GeofenceTuple {
	return GeofenceTuple{
		Latitude:     big.NewInt(int64(math.Round(fence.Latitude * CoordinateScale))),
		Longitude:    big.NewInt(int64(math.Round(fence.Longitude * CoordinateScale))),
		RadiusMeters: new(big.Int).SetUint64(uint64(math.Round(fence.RadiusMeters))),
	}
}

// GeofenceFromTuple converts an on-chain geofence back to degrees and meters.
func GeofenceFromTuple(t GeofenceTuple) interfaces.Geofence {
	return interfaces.Geofence{
		Latitude:     scaledToFloat(t.Latitude),
		Longitude:    scaledToFloat(t.Longitude),
		RadiusMeters: bigToFloat(t.RadiusMeters),
	}
}

// SensorConditionsToTuples encodes each condition's geo query to its JSON wire form.
func SensorConditionsToTuples(conditions []interfaces.SensorCondition) ([]SensorConditionTuple, error) {
	tuples := make([]SensorConditionTuple, 0, len(conditions))
	for i, c := range conditions {
		geoQuery, err := c.GeoQuery.Encode()
		if err != nil {
			return nil, fmt.Errorf("sensor condition %d: %w", i, err)
		}
		threshold := c.Threshold
		if threshold == nil {
			threshold = new(big.Int)
		}
		tuples = append(tuples, SensorConditionTuple{
			Topic:     c.Topic,
			Operator:  uint8(c.Operator),
			Threshold: threshold,
			GeoQuery:  geoQuery,
		})
	}
	return tuples, nil
}

// SensorConditionsFromTuples decodes conditions read from a policy contract.
func SensorConditionsFromTuples(tuples []SensorConditionTuple) ([]interfaces.SensorCondition, error) {
	conditions := make([]interfaces.SensorCondition, 0, len(tuples))
	for i, t := range tuples {
		geoQuery, err := interfaces.DecodeGeoQuery(t.GeoQuery)
		if err != nil {
			return nil, fmt.Errorf("sensor condition %d: %w", i, err)
		}
		conditions = append(conditions, interfaces.SensorCondition{
			Topic:     t.Topic,
			Operator:  interfaces.ComparisonOperator(t.Operator),
			Threshold: t.Threshold,
			GeoQuery:  geoQuery,
		})
	}
	return conditions, nil
}

// ToDetail converts the raw getPolicyDetails() result.
func (t *PolicyDetailsTuple) ToDetail(address common.Address) (*interfaces.PolicyDetail, error) {
	conditions, err := SensorConditionsFromTuples(t.SensorConditions)
	if err != nil {
		return nil, err
	}

	var expiration time.Time
	if t.ExpirationTimestamp != nil && t.ExpirationTimestamp.IsInt64() {
		expiration = time.Unix(t.ExpirationTimestamp.Int64(), 0).UTC()
	}

	return &interfaces.PolicyDetail{
		Address:          address,
		IssuerWallet:     t.IssuerWallet,
		InsuredWallet:    t.InsuredWallet,
		PremiumAmount:    t.PremiumAmount,
		PayoutAmount:     t.PayoutAmount,
		TokenAddress:     t.Token,
		SensorConditions: conditions,
		Geofence:         GeofenceFromTuple(t.Geofence),
		Expiration:       expiration,
		Status:           interfaces.PolicyStatus(t.CurrentStatus),
	}, nil
}

func scaledToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Rat).SetFrac(v, big.NewInt(CoordinateScale)).Float64()
	return f
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
