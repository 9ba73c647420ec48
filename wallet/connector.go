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

package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

//go:generate mockgen -source=connector.go -destination=connector_mock.go -package=wallet

// Client is a chain handle capable of view calls, signed transactions and
// receipt lookups. *ethclient.Client satisfies it.
type Client interface {
	bind.ContractBackend
	bind.DeployBackend

	// ChainID returns the id of the network the client is attached to.
	ChainID(ctx context.Context) (*big.Int, error)
}

// Dialer opens a Client for an RPC endpoint.
type Dialer func(ctx context.Context, rawurl string) (Client, error)

// DialRPC is the default Dialer, backed by ethclient.
func DialRPC(ctx context.Context, rawurl string) (Client, error) {
	client, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Identity is a signing identity produced by a Connector.
type Identity struct {
	// Address is the account the signer reports as selected.
	Address common.Address

	// Client is the chain handle transactions are submitted through.
	Client Client

	// SignTx signs tx for the given chain. It may suspend on an external
	// approval prompt.
	SignTx func(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)

	// Close releases signer resources. Optional.
	Close func()
}

// Connector negotiates a signing identity with one kind of signer.
type Connector interface {
	// Method names the connection method, e.g. "keystore" or "external".
	Method() string

	// Connect establishes the identity. Failures must be reported as
	// ErrNoProvider, ErrUserRejected or ErrRelayUnavailable.
	Connect(ctx context.Context, dial Dialer) (*Identity, error)
}
