package contracts

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

type dataError struct {
	data interface{}
}

func (e *dataError) Error() string          { return "execution reverted" }
func (e *dataError) ErrorData() interface{} { return e.data }

func customErrorData(t *testing.T, meta string, name string, args ...interface{}) string {
	t.Helper()
	var parsed *abi.ABI
	var err error
	switch meta {
	case "registry":
		parsed, err = IdentityRegistryMetaData.GetAbi()
	default:
		parsed, err = IdentityRecordMetaData.GetAbi()
	}
	require.NoError(t, err)

	abiErr, ok := parsed.Errors[name]
	require.True(t, ok)
	packed, err := abiErr.Inputs.Pack(args...)
	require.NoError(t, err)
	return hexutil.Encode(append(abiErr.ID[:4], packed...))
}

func stringRevertData(t *testing.T, reason string) string {
	t.Helper()
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	return hexutil.Encode(append(common.FromHex("0x08c379a0"), packed...))
}

func TestMetaDataParses(t *testing.T) {
	for name, meta := range map[string]interface{ GetAbi() (*abi.ABI, error) }{
		"registry": IdentityRegistryMetaData,
		"identity": IdentityRecordMetaData,
		"policy":   PolicyMetaData,
		"gateway":  InsuranceGatewayMetaData,
		"erc20":    ERC20MetaData,
	} {
		t.Run(name, func(t *testing.T) {
			parsed, err := meta.GetAbi()
			require.NoError(t, err)
			require.NotNil(t, parsed)
		})
	}
}

func TestDecodeRevert(t *testing.T) {
	t.Run("custom wallet type error", func(t *testing.T) {
		err := fmt.Errorf("setWalletType: %w", &dataError{data: customErrorData(t, "identity", "WalletTypeAlreadySet", uint8(2))})
		role, ok := WalletTypeAlreadySet(err)
		assert.True(t, ok)
		assert.Equal(t, interfaces.RoleCompany, role)

		_, ok = WalletInfoAlreadyExists(err)
		assert.False(t, ok)
	})

	t.Run("custom wallet info error", func(t *testing.T) {
		existing := common.HexToAddress("0x00000000000000000000000000000000000000aa")
		err := &dataError{data: customErrorData(t, "registry", "WalletInfoAlreadyExists", existing)}
		addr, ok := WalletInfoAlreadyExists(err)
		assert.True(t, ok)
		assert.Equal(t, existing, addr)
	})

	t.Run("require string", func(t *testing.T) {
		err := &dataError{data: stringRevertData(t, "Wallet type already set")}
		revert, ok := DecodeRevert(err)
		require.True(t, ok)
		assert.Equal(t, "Error", revert.Name)
		assert.Equal(t, "Wallet type already set", revert.Reason)

		role, ok := WalletTypeAlreadySet(err)
		assert.True(t, ok)
		assert.Equal(t, interfaces.RoleNone, role)
	})

	t.Run("unrelated revert", func(t *testing.T) {
		err := &dataError{data: stringRevertData(t, "Only owner")}
		_, ok := WalletTypeAlreadySet(err)
		assert.False(t, ok)
	})

	t.Run("no revert data", func(t *testing.T) {
		_, ok := DecodeRevert(errors.New("connection refused"))
		assert.False(t, ok)
		_, ok = DecodeRevert(&dataError{data: "not hex"})
		assert.False(t, ok)
	})
}

func TestParseArtifact(t *testing.T) {
	valid := fmt.Sprintf(`{"abi": %s, "bytecode": "0x6080604052"}`, PolicyMetaData.ABI)

	artifact, err := ParseArtifact([]byte(valid))
	require.NoError(t, err)
	assert.Equal(t, common.FromHex("0x6080604052"), artifact.Bytecode)
	_, ok := artifact.ABI.Methods["getPolicyDetails"]
	assert.True(t, ok)

	for name, doc := range map[string]string{
		"not json":       `{`,
		"missing abi":    `{"bytecode": "0x6080"}`,
		"bad abi":        `{"abi": {"x": 1}, "bytecode": "0x6080"}`,
		"empty bytecode": fmt.Sprintf(`{"abi": %s, "bytecode": "0x"}`, ERC20MetaData.ABI),
		"bad bytecode":   fmt.Sprintf(`{"abi": %s, "bytecode": "zz"}`, ERC20MetaData.ABI),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseArtifact([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func testPolicyParams() *interfaces.PolicyParams {
	fence := interfaces.Geofence{Latitude: 52.52, Longitude: 13.405, RadiusMeters: 1500}
	return &interfaces.PolicyParams{
		InsuredWallet: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		IssuerWallet:  common.HexToAddress("0x2222222222222222222222222222222222222222"),
		PremiumScaled: big.NewInt(100_000_000),
		PayoutScaled:  big.NewInt(5_000_000_000),
		TokenAddress:  common.HexToAddress("0x3333333333333333333333333333333333333333"),
		SensorConditions: []interfaces.SensorCondition{{
			Topic:     "rainfall",
			Operator:  interfaces.AtLeast,
			Threshold: big.NewInt(12_500),
			GeoQuery:  interfaces.NewGeoQuery("rainfall", fence),
		}},
		Geofence:   fence,
		Expiration: time.Unix(1_900_000_000, 0),
	}
}

func TestPackConstructor(t *testing.T) {
	parsed, err := PolicyMetaData.GetAbi()
	require.NoError(t, err)

	bytecode := common.FromHex("0x6080604052")
	deployer := NewPolicyDeployer(&Artifact{ABI: *parsed, Bytecode: bytecode}, nil, common.Address{}, 1337)

	params := testPolicyParams()
	data, err := deployer.PackConstructor(params)
	require.NoError(t, err)
	require.Equal(t, bytecode, data[:len(bytecode)])

	args, err := parsed.Constructor.Inputs.Unpack(data[len(bytecode):])
	require.NoError(t, err)
	require.Len(t, args, 8)
	assert.Equal(t, params.InsuredWallet, args[0])
	assert.Equal(t, params.IssuerWallet, args[1])
	assert.Equal(t, 0, params.PremiumScaled.Cmp(args[2].(*big.Int)))
	assert.Equal(t, big.NewInt(1_900_000_000), args[7])

	fence := *abi.ConvertType(args[6], new(GeofenceTuple)).(*GeofenceTuple)
	assert.Equal(t, big.NewInt(52_520_000), fence.Latitude)
	assert.Equal(t, big.NewInt(13_405_000), fence.Longitude)
	assert.Equal(t, big.NewInt(1500), fence.RadiusMeters)

	_, err = deployer.DeployPolicy(t.Context(), params)
	assert.ErrorIs(t, err, interfaces.ErrNoSigner)
}

func TestPolicyDetailsConversion(t *testing.T) {
	params := testPolicyParams()
	conditions, err := SensorConditionsToTuples(params.SensorConditions)
	require.NoError(t, err)

	tuple := &PolicyDetailsTuple{
		InsuredWallet:       params.InsuredWallet,
		IssuerWallet:        params.IssuerWallet,
		PremiumAmount:       params.PremiumScaled,
		PayoutAmount:        params.PayoutScaled,
		Token:               params.TokenAddress,
		SensorConditions:    conditions,
		Geofence:            GeofenceToTuple(params.Geofence),
		ExpirationTimestamp: big.NewInt(params.Expiration.Unix()),
		CurrentStatus:       uint8(interfaces.StatusActive),
	}

	policy := common.HexToAddress("0x4444444444444444444444444444444444444444")
	detail, err := tuple.ToDetail(policy)
	require.NoError(t, err)

	assert.Equal(t, policy, detail.Address)
	assert.Equal(t, interfaces.StatusActive, detail.Status)
	assert.Equal(t, params.Expiration.Unix(), detail.Expiration.Unix())
	assert.InDelta(t, params.Geofence.Latitude, detail.Geofence.Latitude, 1e-9)
	assert.InDelta(t, params.Geofence.Longitude, detail.Geofence.Longitude, 1e-9)
	require.Len(t, detail.SensorConditions, 1)
	assert.Equal(t, "rainfall", detail.SensorConditions[0].GeoQuery.Topic)
	assert.Equal(t, interfaces.AtLeast, detail.SensorConditions[0].Operator)

	tuple.SensorConditions[0].GeoQuery = `{"version":2}`
	_, err = tuple.ToDetail(policy)
	assert.Error(t, err)
}
