// Package contracts provides bound clients for the registry, identity-record,
// policy, gateway and token contracts.
package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// IdentityRegistryMetaData describes the shared registry contract.
var IdentityRegistryMetaData = &bind.MetaData{
	ABI: `[
	{"type":"function","name":"getIndividualWalletInfoAddress","stateMutability":"view",
	 "inputs":[{"name":"wallet","type":"address"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"registerAndCreateIndividualWalletInfo","stateMutability":"nonpayable",
	 "inputs":[],"outputs":[]},
	{"type":"error","name":"WalletInfoAlreadyExists","inputs":[{"name":"existing","type":"address"}]}
]`,
}

// IdentityRecordMetaData describes a per-wallet identity record contract.
var IdentityRecordMetaData = &bind.MetaData{
	ABI: `[
	{"type":"function","name":"getWalletType","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"setWalletType","stateMutability":"nonpayable",
	 "inputs":[{"name":"walletType","type":"uint8"}],"outputs":[]},
	{"type":"function","name":"addSmartInsuranceContract","stateMutability":"nonpayable",
	 "inputs":[{"name":"contractAddress","type":"address"}],"outputs":[]},
	{"type":"function","name":"getSmartInsuranceContracts","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"error","name":"WalletTypeAlreadySet","inputs":[{"name":"current","type":"uint8"}]}
]`,
}

const sensorConditionComponents = `[
	{"name":"topic","type":"string"},
	{"name":"operator","type":"uint8"},
	{"name":"threshold","type":"int256"},
	{"name":"geoQuery","type":"string"}
]`

const geofenceComponents = `[
	{"name":"latitude","type":"int256"},
	{"name":"longitude","type":"int256"},
	{"name":"radiusMeters","type":"uint256"}
]`

// PolicyMetaData describes the parametric insurance policy contract. Artifacts
// loaded at runtime must expose the same constructor and read surface.
var PolicyMetaData = &bind.MetaData{
	ABI: `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[
		{"name":"insuredWallet","type":"address"},
		{"name":"issuerWallet","type":"address"},
		{"name":"premiumAmount","type":"uint256"},
		{"name":"payoutAmount","type":"uint256"},
		{"name":"token","type":"address"},
		{"name":"sensorConditions","type":"tuple[]","components":` + sensorConditionComponents + `},
		{"name":"geofence","type":"tuple","components":` + geofenceComponents + `},
		{"name":"expirationTimestamp","type":"uint256"}
	]},
	{"type":"function","name":"getPolicyDetails","stateMutability":"view","inputs":[],"outputs":[
		{"name":"details","type":"tuple","components":[
			{"name":"insuredWallet","type":"address"},
			{"name":"issuerWallet","type":"address"},
			{"name":"premiumAmount","type":"uint256"},
			{"name":"payoutAmount","type":"uint256"},
			{"name":"token","type":"address"},
			{"name":"sensorConditions","type":"tuple[]","components":` + sensorConditionComponents + `},
			{"name":"geofence","type":"tuple","components":` + geofenceComponents + `},
			{"name":"expirationTimestamp","type":"uint256"},
			{"name":"currentStatus","type":"uint8"}
		]}
	]},
	{"type":"function","name":"currentStatus","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`,
}

// InsuranceGatewayMetaData describes the gateway that batch-transitions expired policies.
var InsuranceGatewayMetaData = &bind.MetaData{
	ABI: `[
	{"type":"function","name":"markExpiredPolicies","stateMutability":"nonpayable",
	 "inputs":[{"name":"policies","type":"address[]"}],"outputs":[]}
]`,
}

// ERC20MetaData is the subset of ERC-20 the coordinator reads.
var ERC20MetaData = &bind.MetaData{
	ABI: `[
	{"type":"function","name":"decimals","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`,
}

// SensorConditionTuple mirrors the sensor condition struct in the policy contract.
type SensorConditionTuple struct {
	Topic     string
	Operator  uint8
	Threshold *big.Int
	GeoQuery  string
}

// GeofenceTuple mirrors the geofence struct. Coordinates are degrees scaled by CoordinateScale.
type GeofenceTuple struct {
	Latitude     *big.Int
	Longitude    *big.Int
	RadiusMeters *big.Int
}

// PolicyDetailsTuple mirrors the getPolicyDetails() return struct.
type PolicyDetailsTuple struct {
	InsuredWallet       common.Address
	IssuerWallet        common.Address
	PremiumAmount       *big.Int
	PayoutAmount        *big.Int
	Token               common.Address
	SensorConditions    []SensorConditionTuple
	Geofence            GeofenceTuple
	ExpirationTimestamp *big.Int
	CurrentStatus       uint8
}
