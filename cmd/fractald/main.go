// Copyright 2018 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

// fractald runs the Fractal client: it binds a wallet session to the
// project registry, FCAT token and revenue-share contracts and serves the
// creator and investor views over JSON-RPC.
//
// Usage:
//
//	fractald [--config <file>] [--rpc <endpoint>] [--keystore <dir> --password <file> | --signer <endpoint>] [command]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/fractalfi/fractal/fractal"
	"github.com/fractalfi/fractal/wallet"
	"github.com/urfave/cli/v2"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	rpcFlag = &cli.StringFlag{
		Name:  "rpc",
		Usage: "Public Ethereum JSON-RPC endpoint (default: " + defaultRPC + ")",
	}
	chainIDFlag = &cli.Uint64Flag{
		Name:  "chainid",
		Usage: "Network the wallet must be attached to, 0 accepts any",
	}
	registryFlag = &cli.StringFlag{
		Name:  "registry",
		Usage: "Project registry contract address",
	}
	factoryFlag = &cli.StringFlag{
		Name:  "factory",
		Usage: "Project factory contract address (launchProject target)",
	}
	tokenFlag = &cli.StringFlag{
		Name:  "token",
		Usage: "FCAT token address of the project",
	}
	revenueFlag = &cli.StringFlag{
		Name:  "revenue",
		Usage: "Revenue-share contract address of the project",
	}
	keystoreFlag = &cli.StringFlag{
		Name:  "keystore",
		Usage: "Directory of the local keystore to sign with",
	}
	accountFlag = &cli.StringFlag{
		Name:  "account",
		Usage: "Account to sign with (default: first available)",
	}
	passwordFlag = &cli.StringFlag{
		Name:  "password",
		Usage: "File holding the keystore passphrase",
	}
	signerFlag = &cli.StringFlag{
		Name:  "signer",
		Usage: "External signer endpoint (clef ipc path or http url)",
	}
	listenFlag = &cli.StringFlag{
		Name:  "listen",
		Usage: "HTTP listen address for the JSON-RPC API (default: " + defaultListen + ")",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	confirmTimeoutFlag = &cli.DurationFlag{
		Name:  "confirm-timeout",
		Usage: "Give up waiting for a transaction confirmation after this long (0 = wait indefinitely)",
	}

	unitsFlag = &cli.Uint64Flag{
		Name:  "units",
		Usage: "Number of FCAT units to buy",
		Value: 1,
	}
	amountFlag = &cli.StringFlag{
		Name:     "amount",
		Usage:    "Amount in ETH",
		Required: true,
	}
	nameFlag     = &cli.StringFlag{Name: "name", Usage: "Project name", Required: true}
	symbolFlag   = &cli.StringFlag{Name: "symbol", Usage: "Token symbol", Required: true}
	assetURIFlag = &cli.StringFlag{Name: "uri", Usage: "Asset URI", Required: true}
	supplyFlag   = &cli.StringFlag{Name: "supply", Usage: "Initial FCAT supply", Value: "60000"}
	priceFlag    = &cli.StringFlag{Name: "price", Usage: "Price per FCAT in ETH", Value: "0.0003"}
)

var app = &cli.App{
	Name:    "fractald",
	Usage:   "Fractal creator and investor client",
	Version: "0.1.0",
	Flags: []cli.Flag{
		configFlag,
		rpcFlag,
		chainIDFlag,
		registryFlag,
		factoryFlag,
		tokenFlag,
		revenueFlag,
		keystoreFlag,
		accountFlag,
		passwordFlag,
		signerFlag,
		listenFlag,
		verbosityFlag,
		confirmTimeoutFlag,
	},
	Before: func(ctx *cli.Context) error {
		handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)), true)
		log.SetDefault(log.NewLogger(handler))
		return nil
	},
	Action: serve,
	Commands: []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Serve the JSON-RPC API (default)",
			Action: serve,
		},
		{
			Name:   "dumpconfig",
			Usage:  "Print the effective configuration as TOML",
			Action: dumpConfig,
		},
		{
			Name:   "projects",
			Usage:  "List all registered projects",
			Action: listProjects,
		},
		{
			Name:   "creator",
			Usage:  "Show the connected creator's projects and revenue",
			Action: creatorDashboard,
		},
		{
			Name:   "portfolio",
			Usage:  "Show the connected investor's position in a project",
			Action: portfolio,
		},
		{
			Name:   "launch",
			Usage:  "Launch a new project",
			Flags:  []cli.Flag{nameFlag, symbolFlag, assetURIFlag, supplyFlag, priceFlag},
			Action: launch,
		},
		{
			Name:   "buy",
			Usage:  "Buy FCAT units of a project",
			Flags:  []cli.Flag{unitsFlag},
			Action: buy,
		},
		{
			Name:   "deposit",
			Usage:  "Deposit external revenue into a project",
			Flags:  []cli.Flag{amountFlag},
			Action: deposit,
		},
		{
			Name:   "claim",
			Usage:  "Claim the connected investor's revenue share",
			Action: claim,
		},
		{
			Name:   "withdraw",
			Usage:  "Withdraw the connected creator's earnings",
			Action: withdraw,
		},
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// makeService builds the session and service from the configuration. When
// connect is set, the first configured connector is used to connect.
func makeService(ctx *cli.Context, connect bool) (*fractal.Service, []wallet.Connector, error) {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	connectors, err := cfg.connectors()
	if err != nil {
		return nil, nil, err
	}
	service := fractal.NewService(wallet.NewSession(cfg.sessionConfig()), cfg.serviceConfig())
	if !connect {
		return service, connectors, nil
	}
	if len(connectors) == 0 {
		return nil, nil, errors.New(fractal.StatusMessage(wallet.ErrNoProvider))
	}
	if res, err := service.Connect(ctx.Context, connectors[0]); err != nil {
		return nil, nil, errors.New(res.Status)
	}
	return service, connectors, nil
}

func serve(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	service, connectors, err := makeService(ctx, false)
	if err != nil {
		return err
	}
	session := service.Session()

	events := make(chan wallet.Event, 16)
	sub := session.Subscribe(events)
	defer sub.Unsubscribe()
	go func() {
		for ev := range events {
			log.Info("Wallet session changed", "state", ev.State, "address", ev.Address, "chainid", ev.ChainID)
		}
	}()

	// A failed connect leaves the service in read-only mode.
	if len(connectors) > 0 {
		if res, _ := service.Connect(ctx.Context, connectors[0]); !res.OK {
			log.Warn("Starting without a wallet", "status", res.Status)
		}
	}

	server := rpc.NewServer()
	if err := server.RegisterName("fractal", fractal.NewAPI(service, connectors...)); err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigctx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- httpServer.ListenAndServe() }()
	log.Info("Fractal client ready", "listen", cfg.Server.Listen, "registry", cfg.Contracts.Registry, "rpc", cfg.Chain.RPC)

	select {
	case err := <-errc:
		return err
	case <-sigctx.Done():
	}
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = httpServer.Shutdown(shutdownCtx)
	server.Stop()
	session.Disconnect()
	return err
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func listProjects(ctx *cli.Context) error {
	service, _, err := makeService(ctx, false)
	if err != nil {
		return err
	}
	return printJSON(service.Marketplace(ctx.Context))
}

func creatorDashboard(ctx *cli.Context) error {
	service, _, err := makeService(ctx, true)
	if err != nil {
		return err
	}
	return printJSON(service.CreatorProjects(ctx.Context))
}

func portfolio(ctx *cli.Context) error {
	service, connectors, err := makeService(ctx, false)
	if err != nil {
		return err
	}
	// Positions are only shown for a connected wallet; reads work without.
	if len(connectors) > 0 {
		if res, _ := service.Connect(ctx.Context, connectors[0]); !res.OK {
			log.Warn("Showing project without position", "status", res.Status)
		}
	}
	token, revenue := projectFlags(ctx)
	return printJSON(service.Portfolio(ctx.Context, token, revenue))
}

func launch(ctx *cli.Context) error {
	return act(ctx, func(c context.Context, service *fractal.Service) (*fractal.ActionResult, error) {
		return service.LaunchProject(c, &fractal.LaunchRequest{
			Name:          ctx.String(nameFlag.Name),
			Symbol:        ctx.String(symbolFlag.Name),
			AssetURI:      ctx.String(assetURIFlag.Name),
			InitialSupply: ctx.String(supplyFlag.Name),
			PriceEther:    ctx.String(priceFlag.Name),
		})
	})
}

func buy(ctx *cli.Context) error {
	token, revenue := projectFlags(ctx)
	return act(ctx, func(c context.Context, service *fractal.Service) (*fractal.ActionResult, error) {
		return service.Buy(c, token, revenue, ctx.Uint64(unitsFlag.Name))
	})
}

func deposit(ctx *cli.Context) error {
	_, revenue := projectFlags(ctx)
	return act(ctx, func(c context.Context, service *fractal.Service) (*fractal.ActionResult, error) {
		return service.Deposit(c, revenue, ctx.String(amountFlag.Name))
	})
}

func claim(ctx *cli.Context) error {
	token, revenue := projectFlags(ctx)
	return act(ctx, func(c context.Context, service *fractal.Service) (*fractal.ActionResult, error) {
		return service.ClaimRevenue(c, token, revenue)
	})
}

func withdraw(ctx *cli.Context) error {
	_, revenue := projectFlags(ctx)
	return act(ctx, func(c context.Context, service *fractal.Service) (*fractal.ActionResult, error) {
		return service.CreatorWithdraw(c, revenue)
	})
}

// act connects, runs one write action and prints its result. The action is
// bounded by --confirm-timeout when set.
func act(ctx *cli.Context, fn func(context.Context, *fractal.Service) (*fractal.ActionResult, error)) error {
	service, _, err := makeService(ctx, true)
	if err != nil {
		return err
	}
	defer service.Session().Disconnect()

	c := ctx.Context
	if timeout := ctx.Duration(confirmTimeoutFlag.Name); timeout > 0 {
		var cancel context.CancelFunc
		c, cancel = context.WithTimeout(c, timeout)
		defer cancel()
	}
	res, err := fn(c, service)
	if perr := printJSON(res); perr != nil {
		return perr
	}
	if err != nil {
		return errors.New(res.Status)
	}
	return nil
}

// projectFlags returns the --token and --revenue addresses; unset flags
// yield zero addresses, which select the configured home project.
func projectFlags(ctx *cli.Context) (token, revenue common.Address) {
	if ctx.IsSet(tokenFlag.Name) {
		token = common.HexToAddress(ctx.String(tokenFlag.Name))
	}
	if ctx.IsSet(revenueFlag.Name) {
		revenue = common.HexToAddress(ctx.String(revenueFlag.Name))
	}
	return token, revenue
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
