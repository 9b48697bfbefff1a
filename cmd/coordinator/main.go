// Package main (cmd/coordinator) serves the insurance coordinator HTTP API for
// one keyed wallet.
//
// The daemon dials the RPC endpoint, loads the wallet key (flag, file or
// Vault), optionally loads the policy contract artifact and connects the
// wallet on startup. Operations that need a connection answer 412 until a
// POST /api/session/connect succeeds.
//
// Example:
//
//	coordinator --rpc-addr http://127.0.0.1:8545 \
//	    --wallet-key-file ./issuer.key \
//	    --policy-artifact ./artifacts/ParametricPolicy.json \
//	    --terms-store file:///var/lib/coordinator
package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/ruteri/parametric-insurance-coordinator/cmd/flags"
	"github.com/ruteri/parametric-insurance-coordinator/httpserver"
	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal(err)
	}

	app := &cli.App{
		Name:  "coordinator",
		Usage: "Serve the parametric insurance coordinator API",
		Flags: append(append([]cli.Flag{
			flags.ListenAddrFlag,
			flags.OperationTimeoutFlag,
			flags.AutoConnectFlag,
		}, flags.CommonFlags...), flags.WalletFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			coord, err := flags.BuildCoordinator(cCtx, logger)
			if err != nil {
				logger.Error("Failed to set up coordinator", "err", err)
				return err
			}

			if cCtx.Bool(flags.AutoConnectFlag.Name) {
				info, err := coord.Connect(cCtx.Context)
				if err != nil {
					// Not fatal: the wallet may be on an unsupported chain until the operator switches.
					logger.Warn("Initial wallet connection failed",
						"kind", interfaces.ErrorKind(err),
						"err", err)
				} else {
					logger.Info("Wallet connected",
						"address", info.Address.Hex(),
						"chainId", *info.ChainID)
				}
			}

			cfg := flags.ConfigureServer(cCtx, logger)
			server, err := httpserver.New(cfg, httpserver.NewHandler(coord, cfg.OperationTimeout, logger))
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			_ = coord.Disconnect(context.Background())
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

