// Copyright 2018 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package fractal provides Go bindings for the Fractal project registry,
// the per-project FCAT token and the per-project revenue-share contract.
//
// The gateways are pure pass-throughs: reads return raw on-chain values and
// writes take amounts already converted to the contract's integer unit.
// A gateway is immutable once built; rebuild it when the backend changes.
package fractal

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fractalfi/fractal/contracts/fractal/contract"
)

// Registry is a gateway to the on-chain project registry.
type Registry struct {
	*boundContract
}

// NewRegistry binds an already-deployed registry (or project factory).
func NewRegistry(address common.Address, backend Backend) (*Registry, error) {
	bound, err := bindContract(address, contract.RegistryABI, backend)
	if err != nil {
		return nil, err
	}
	return &Registry{bound}, nil
}

// Address returns the registry address.
func (r *Registry) Address() common.Address { return r.address }

// ──────────────────────────────────────────────
//  Write methods
// ──────────────────────────────────────────────

// LaunchProject deploys a new FCAT + revenue-share pair and registers it.
// pricePerTokenWei must already be expressed in wei.
func (r *Registry) LaunchProject(opts *bind.TransactOpts, name, symbol, assetURI string, initialSupply, pricePerTokenWei *big.Int) (*PendingTx, error) {
	return r.transact(opts, nil, "launchProject", name, symbol, assetURI, initialSupply, pricePerTokenWei)
}

// ──────────────────────────────────────────────
//  Read methods
// ──────────────────────────────────────────────

// Project holds the on-chain record of a single project.
type Project struct {
	Creator  common.Address
	Token    common.Address
	Revenue  common.Address
	AssetURI string
}

// ProjectCount returns the number of registered projects.
func (r *Registry) ProjectCount(ctx context.Context) (*big.Int, error) {
	out, err := r.call(ctx, "projectCount")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// GetProject reads the project stored at index id.
func (r *Registry) GetProject(ctx context.Context, id *big.Int) (*Project, error) {
	out, err := r.call(ctx, "getProject", id)
	if err != nil {
		return nil, err
	}
	return &Project{
		Creator:  out[0].(common.Address),
		Token:    out[1].(common.Address),
		Revenue:  out[2].(common.Address),
		AssetURI: out[3].(string),
	}, nil
}
