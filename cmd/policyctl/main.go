// Package main (cmd/policyctl) is the operator CLI for a running coordinator.
//
// Every subcommand except "artifact" talks to the coordinator API; the wallet
// and its key stay with the daemon. "artifact put" uploads a compiled policy
// contract to storage and prints the content id to pass as
// --policy-artifact-id.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/ruteri/parametric-insurance-coordinator/api/clients"
	"github.com/ruteri/parametric-insurance-coordinator/cmd/flags"
	"github.com/ruteri/parametric-insurance-coordinator/contracts"
	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
	"github.com/ruteri/parametric-insurance-coordinator/storage"
	"github.com/urfave/cli/v2"
)

var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Value: 20 * time.Minute,
	Usage: "HTTP timeout; must cover receipt waits on the server",
}

var flagRole = &cli.StringFlag{
	Name:     "role",
	Required: true,
	Usage:    "role to register: user or company",
}

var flagRequest = &cli.StringFlag{
	Name:     "request",
	Required: true,
	Usage:    "JSON file with the policy request, - for stdin",
}

var flagFilter = &cli.StringFlag{
	Name:  "filter",
	Value: string(interfaces.FilterAll),
	Usage: "all, active or closed",
}

var flagStore = &cli.StringFlag{
	Name:     "store",
	Required: true,
	Usage:    "comma separated storage locations",
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal(err)
	}

	app := &cli.App{
		Name:  "policyctl",
		Usage: "Drive a parametric insurance coordinator",
		Flags: append([]cli.Flag{flags.ServerAddrFlag, flagTimeout}, flags.LogFlags...),
		Commands: []*cli.Command{
			{
				Name:  "connect",
				Usage: "connect the coordinator wallet and resolve the chain binding",
				Action: func(cCtx *cli.Context) error {
					return printResult(client(cCtx).Connect(cCtx.Context))
				},
			},
			{
				Name:  "disconnect",
				Usage: "drop the wallet session",
				Action: func(cCtx *cli.Context) error {
					return printResult(client(cCtx).Disconnect(cCtx.Context))
				},
			},
			{
				Name:  "session",
				Usage: "show the wallet session",
				Action: func(cCtx *cli.Context) error {
					return printResult(client(cCtx).Session(cCtx.Context))
				},
			},
			{
				Name:  "identity",
				Usage: "show the identity record and role of the wallet",
				Action: func(cCtx *cli.Context) error {
					return printResult(client(cCtx).Identity(cCtx.Context))
				},
			},
			{
				Name:  "register",
				Usage: "register the wallet as user or company",
				Flags: []cli.Flag{flagRole},
				Action: func(cCtx *cli.Context) error {
					role, err := interfaces.ParseRole(cCtx.String(flagRole.Name))
					if err != nil {
						return err
					}
					return printResult(client(cCtx).Register(cCtx.Context, role))
				},
			},
			{
				Name:  "status",
				Usage: "show the in-flight registration",
				Action: func(cCtx *cli.Context) error {
					snap, err := client(cCtx).RegistrationStatus(cCtx.Context)
					if err != nil {
						return explain(err)
					}
					if snap == nil {
						fmt.Println("No registration in progress.")
						return nil
					}
					return printJSON(snap)
				},
			},
			{
				Name:  "abandon",
				Usage: "stop tracking the in-flight registration",
				Action: func(cCtx *cli.Context) error {
					return explain(client(cCtx).AbandonRegistration(cCtx.Context))
				},
			},
			{
				Name:  "deploy",
				Usage: "deploy a policy and bind it to issuer and insured",
				Flags: []cli.Flag{flagRequest},
				Action: func(cCtx *cli.Context) error {
					req, err := readRequest(cCtx.String(flagRequest.Name))
					if err != nil {
						return err
					}
					return printResult(client(cCtx).DeployPolicy(cCtx.Context, req))
				},
			},
			{
				Name:      "bind",
				Usage:     "retry the missing binding of a deployed policy",
				ArgsUsage: "<policy-address>",
				Action: func(cCtx *cli.Context) error {
					policy, err := addressArg(cCtx)
					if err != nil {
						return err
					}
					return printResult(client(cCtx).RetryBinding(cCtx.Context, policy))
				},
			},
			{
				Name:  "list",
				Usage: "list the wallet's policies",
				Flags: []cli.Flag{flagFilter},
				Action: func(cCtx *cli.Context) error {
					filter, err := interfaces.ParsePolicyFilter(cCtx.String(flagFilter.Name))
					if err != nil {
						return err
					}
					return printResult(client(cCtx).ListPolicies(cCtx.Context, filter))
				},
			},
			{
				Name:  "partition",
				Usage: "show the wallet's policies grouped by status",
				Action: func(cCtx *cli.Context) error {
					return printResult(client(cCtx).Partition(cCtx.Context))
				},
			},
			{
				Name:      "show",
				Usage:     "show every field of a policy",
				ArgsUsage: "<policy-address>",
				Action: func(cCtx *cli.Context) error {
					policy, err := addressArg(cCtx)
					if err != nil {
						return err
					}
					return printResult(client(cCtx).GetPolicyDetail(cCtx.Context, policy))
				},
			},
			{
				Name:      "expire",
				Usage:     "mark policies expired; without addresses every open policy is submitted",
				ArgsUsage: "[policy-address...]",
				Action: func(cCtx *cli.Context) error {
					var addresses []common.Address
					for _, arg := range cCtx.Args().Slice() {
						addr, err := interfaces.ParseAddress(arg)
						if err != nil {
							return err
						}
						addresses = append(addresses, addr)
					}
					return printResult(client(cCtx).Expire(cCtx.Context, addresses))
				},
			},
			{
				Name:  "artifact",
				Usage: "manage policy contract artifacts in storage",
				Subcommands: []*cli.Command{
					{
						Name:      "put",
						Usage:     "validate and upload an artifact, printing its content id",
						ArgsUsage: "<artifact.json>",
						Flags:     []cli.Flag{flagStore},
						Action:    putArtifact,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func client(cCtx *cli.Context) *clients.CoordinatorClient {
	return clients.NewCoordinatorClient(cCtx.String(flags.ServerAddrFlag.Name), cCtx.Duration(flagTimeout.Name))
}

func putArtifact(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return errors.New("expected one artifact file")
	}
	data, err := os.ReadFile(cCtx.Args().First())
	if err != nil {
		return err
	}
	if _, err := contracts.ParseArtifact(data); err != nil {
		return err
	}

	logger := flags.SetupLogger(cCtx)
	backend, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(storage.SplitLocations(cCtx.String(flagStore.Name)))
	if err != nil {
		return err
	}
	id, err := backend.Store(cCtx.Context, data, interfaces.ArtifactType)
	if err != nil {
		return err
	}
	fmt.Println(id.String())
	return nil
}

func readRequest(path string) (*interfaces.PolicyRequest, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var req interfaces.PolicyRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("invalid policy request: %w", err)
	}
	return &req, nil
}

func addressArg(cCtx *cli.Context) (common.Address, error) {
	if cCtx.NArg() != 1 {
		return common.Address{}, errors.New("expected one policy address")
	}
	return interfaces.ParseAddress(cCtx.Args().First())
}

func printResult[T any](v T, err error) error {
	if err != nil {
		return explain(err)
	}
	return printJSON(v)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// explain prints the user-facing message before returning the error.
func explain(err error) error {
	var aerr *clients.APIError
	if errors.As(err, &aerr) {
		if aerr.Response.Message != "" {
			fmt.Fprintln(os.Stderr, aerr.Response.Message)
		}
		if aerr.Response.Outcome != nil {
			_ = json.NewEncoder(os.Stderr).Encode(aerr.Response.Outcome)
		}
	}
	return err
}
