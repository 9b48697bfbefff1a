package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/parametric-insurance-coordinator/api"
	"github.com/ruteri/parametric-insurance-coordinator/common"
	"github.com/ruteri/parametric-insurance-coordinator/wallet"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJsonFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
	})

	if cCtx.Bool(LogUidFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *api.HTTPServerConfig {
	opTimeout := cCtx.Duration(OperationTimeoutFlag.Name)

	return &api.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		// Writes wait for receipts, so responses may take as long as an operation.
		WriteTimeout:     opTimeout + 10*time.Second,
		OperationTimeout: opTimeout,
	}
}

var RpcAddrFlag = &cli.StringFlag{
	Name:    "rpc-addr",
	Value:   "http://127.0.0.1:8545",
	Usage:   "address to connect to RPC",
	EnvVars: []string{"RPC_ADDR"},
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	Usage:   "address to listen on for API",
	EnvVars: []string{"LISTEN_ADDR"},
}

var ServerAddrFlag = &cli.StringFlag{
	Name:    "server",
	Value:   "http://127.0.0.1:8080",
	Usage:   "coordinator API base URL",
	EnvVars: []string{"COORDINATOR_URL"},
}

var ChainBindingsFileFlag = &cli.StringFlag{
	Name:    "chain-bindings",
	Usage:   "YAML file with contract addresses per chain id, merged over the built-in table",
	EnvVars: []string{"CHAIN_BINDINGS_FILE"},
}

var WalletKeyFlag = &cli.StringFlag{
	Name:    "wallet-key",
	Usage:   "hex-encoded secp256k1 private key of the wallet",
	EnvVars: []string{"WALLET_KEY"},
}

var WalletKeyFileFlag = &cli.StringFlag{
	Name:    "wallet-key-file",
	Usage:   "file holding the hex-encoded private key of the wallet",
	EnvVars: []string{"WALLET_KEY_FILE"},
}

var VaultAddrFlag = &cli.StringFlag{
	Name:    "vault-addr",
	Usage:   "Vault address to read the wallet key from (KV v2)",
	EnvVars: []string{"VAULT_ADDR"},
}

var VaultTokenFlag = &cli.StringFlag{
	Name:    "vault-token",
	Usage:   "Vault token; defaults to VAULT_TOKEN",
	EnvVars: []string{"VAULT_TOKEN"},
}

var VaultMountFlag = &cli.StringFlag{
	Name:  "vault-mount",
	Value: "secret",
	Usage: "Vault KV v2 mount path",
}

var VaultPathFlag = &cli.StringFlag{
	Name:  "vault-path",
	Usage: "secret path within the mount holding the wallet key",
}

var VaultFieldFlag = &cli.StringFlag{
	Name:  "vault-field",
	Value: "private_key",
	Usage: "field of the Vault secret holding the hex private key",
}

var PolicyArtifactFlag = &cli.StringFlag{
	Name:    "policy-artifact",
	Usage:   "policy contract artifact ({\"abi\",\"bytecode\"} JSON) as a path or file:// URL",
	EnvVars: []string{"POLICY_ARTIFACT"},
}

var PolicyArtifactIDFlag = &cli.StringFlag{
	Name:    "policy-artifact-id",
	Usage:   "content id of the policy artifact in --artifact-store",
	EnvVars: []string{"POLICY_ARTIFACT_ID"},
}

var ArtifactStoreFlag = &cli.StringFlag{
	Name:    "artifact-store",
	Usage:   "comma separated storage locations (file://, s3://, ipfs://) holding artifacts",
	EnvVars: []string{"ARTIFACT_STORE"},
}

var TermsStoreFlag = &cli.StringFlag{
	Name:    "terms-store",
	Usage:   "comma separated storage locations to archive policy terms in",
	EnvVars: []string{"TERMS_STORE"},
}

var ConnectTimeoutFlag = &cli.DurationFlag{
	Name:  "connect-timeout",
	Value: wallet.DefaultConnectTimeout,
	Usage: "how long a wallet connection may take",
}

var ReceiptTimeoutFlag = &cli.DurationFlag{
	Name:  "receipt-timeout",
	Value: wallet.DefaultReceiptTimeout,
	Usage: "how long to wait for a transaction receipt",
}

var OperationTimeoutFlag = &cli.DurationFlag{
	Name:  "operation-timeout",
	Value: 15 * time.Minute,
	Usage: "upper bound for one API operation, including every receipt wait",
}

var AutoConnectFlag = &cli.BoolFlag{
	Name:  "connect",
	Value: true,
	Usage: "connect the wallet on startup",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "insurance-coordinator",
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var CommonFlags = append([]cli.Flag{
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}, LogFlags...)

var WalletFlags = []cli.Flag{
	RpcAddrFlag,
	ChainBindingsFileFlag,
	WalletKeyFlag,
	WalletKeyFileFlag,
	VaultAddrFlag,
	VaultTokenFlag,
	VaultMountFlag,
	VaultPathFlag,
	VaultFieldFlag,
	PolicyArtifactFlag,
	PolicyArtifactIDFlag,
	ArtifactStoreFlag,
	TermsStoreFlag,
	ConnectTimeoutFlag,
	ReceiptTimeoutFlag,
}
