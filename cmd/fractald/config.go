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

package main

import (
	"bufio"
	"errors"
	"fmt"
	"math/big"
	"os"
	"reflect"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractalfi/fractal/fractal"
	"github.com/fractalfi/fractal/wallet"
	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"
)

// Sepolia deployment the client talks to by default.
const (
	defaultRPC     = "https://rpc.sepolia.org"
	defaultChainID = 11155111
	defaultListen  = "127.0.0.1:8550"
)

var (
	defaultRegistry    = common.HexToAddress("0x1f10fB380ecB3465193B0d2B52af2C7cE20fdCCe")
	defaultFactory     = common.HexToAddress("0x4B6Cb0129962A423106DCE0ddf5e1c19051a67e7")
	defaultHomeToken   = common.HexToAddress("0x77308C24544364130039dCBEfe16528E9D708315")
	defaultHomeRevenue = common.HexToAddress("0x76a34937656481738955f24578476eaa3c48a38f")
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		if unicode.IsUpper(rune(rt.Name()[0])) {
			return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
		}
		return fmt.Errorf("unknown config field '%s'", field)
	},
}

type ChainConfig struct {
	RPC     string
	ChainID uint64
}

type ContractsConfig struct {
	Registry    common.Address
	Factory     common.Address
	HomeToken   common.Address
	HomeRevenue common.Address
}

type WalletConfig struct {
	Keystore     string         `toml:",omitempty"`
	Account      common.Address `toml:",omitempty"`
	PasswordFile string         `toml:",omitempty"`
	Signer       string         `toml:",omitempty"`
}

type ServerConfig struct {
	Listen string
}

type fractaldConfig struct {
	Chain     ChainConfig
	Contracts ContractsConfig
	Wallet    WalletConfig
	Server    ServerConfig
}

func defaultConfig() fractaldConfig {
	return fractaldConfig{
		Chain: ChainConfig{RPC: defaultRPC, ChainID: defaultChainID},
		Contracts: ContractsConfig{
			Registry:    defaultRegistry,
			Factory:     defaultFactory,
			HomeToken:   defaultHomeToken,
			HomeRevenue: defaultHomeRevenue,
		},
		Server: ServerConfig{Listen: defaultListen},
	}
}

func loadConfig(file string, cfg *fractaldConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeConfig layers defaults, the config file and command line flags.
func makeConfig(ctx *cli.Context) (fractaldConfig, error) {
	cfg := defaultConfig()
	if file := ctx.String(configFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, fmt.Errorf("invalid config: %v", err)
		}
	}
	if ctx.IsSet(rpcFlag.Name) {
		cfg.Chain.RPC = ctx.String(rpcFlag.Name)
	}
	if ctx.IsSet(chainIDFlag.Name) {
		cfg.Chain.ChainID = ctx.Uint64(chainIDFlag.Name)
	}
	for _, f := range []struct {
		flag *cli.StringFlag
		dst  *common.Address
	}{
		{registryFlag, &cfg.Contracts.Registry},
		{factoryFlag, &cfg.Contracts.Factory},
		{tokenFlag, &cfg.Contracts.HomeToken},
		{revenueFlag, &cfg.Contracts.HomeRevenue},
		{accountFlag, &cfg.Wallet.Account},
	} {
		if !ctx.IsSet(f.flag.Name) {
			continue
		}
		addr, err := parseAddress(ctx.String(f.flag.Name))
		if err != nil {
			return cfg, fmt.Errorf("--%s: %v", f.flag.Name, err)
		}
		*f.dst = addr
	}
	if ctx.IsSet(keystoreFlag.Name) {
		cfg.Wallet.Keystore = ctx.String(keystoreFlag.Name)
	}
	if ctx.IsSet(passwordFlag.Name) {
		cfg.Wallet.PasswordFile = ctx.String(passwordFlag.Name)
	}
	if ctx.IsSet(signerFlag.Name) {
		cfg.Wallet.Signer = ctx.String(signerFlag.Name)
	}
	if ctx.IsSet(listenFlag.Name) {
		cfg.Server.Listen = ctx.String(listenFlag.Name)
	}
	return cfg, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func (cfg *fractaldConfig) sessionConfig() wallet.Config {
	c := wallet.Config{RPC: cfg.Chain.RPC}
	if cfg.Chain.ChainID != 0 {
		c.ChainID = new(big.Int).SetUint64(cfg.Chain.ChainID)
	}
	return c
}

func (cfg *fractaldConfig) serviceConfig() fractal.Config {
	return fractal.Config{
		Registry:    cfg.Contracts.Registry,
		Factory:     cfg.Contracts.Factory,
		HomeToken:   cfg.Contracts.HomeToken,
		HomeRevenue: cfg.Contracts.HomeRevenue,
	}
}

// connectors returns the connection methods the configuration enables. The
// external signer takes precedence when both are configured.
func (cfg *fractaldConfig) connectors() ([]wallet.Connector, error) {
	var list []wallet.Connector
	if cfg.Wallet.Signer != "" {
		list = append(list, &wallet.ExternalConnector{
			Endpoint: cfg.Wallet.Signer,
			Account:  cfg.Wallet.Account,
			RPC:      cfg.Chain.RPC,
		})
	}
	if cfg.Wallet.Keystore != "" {
		passphrase, err := readPassword(cfg.Wallet.PasswordFile)
		if err != nil {
			return nil, err
		}
		list = append(list, &wallet.KeystoreConnector{
			Dir:        cfg.Wallet.Keystore,
			Account:    cfg.Wallet.Account,
			Passphrase: passphrase,
			RPC:        cfg.Chain.RPC,
		})
	}
	return list, nil
}

// readPassword returns the first line of file, or "" when no file is set.
func readPassword(file string) (string, error) {
	if file == "" {
		return "", nil
	}
	text, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read password file: %v", err)
	}
	line, _, _ := strings.Cut(string(text), "\n")
	return strings.TrimRight(line, "\r"), nil
}
