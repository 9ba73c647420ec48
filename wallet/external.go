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
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/external"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ExternalConnector pairs with a remote signer speaking the clef external
// API over JSON-RPC. Every signature request is approved on the signer's
// side, so SignTx may suspend until its operator responds.
type ExternalConnector struct {
	Endpoint string         // signer endpoint, e.g. ipc path or http url
	Account  common.Address // account to use; zero selects the first shared
	RPC      string         // endpoint transactions are submitted through
}

func (e *ExternalConnector) Method() string { return "external" }

// Connect reaches the signer and asks for its accounts. An unreachable
// signer is ErrRelayUnavailable; a signer sharing no accounts (the operator
// denied the listing) is ErrUserRejected.
func (e *ExternalConnector) Connect(ctx context.Context, dial Dialer) (*Identity, error) {
	if e.Endpoint == "" {
		return nil, fmt.Errorf("%w: no external signer configured", ErrNoProvider)
	}
	signer, err := external.NewExternalSigner(e.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}
	account, err := e.pick(signer.Accounts())
	if err != nil {
		signer.Close()
		return nil, err
	}
	client, err := dial(ctx, e.RPC)
	if err != nil {
		signer.Close()
		return nil, fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}
	return &Identity{
		Address: account.Address,
		Client:  client,
		SignTx: func(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
			return signer.SignTx(account, tx, chainID)
		},
		Close: func() { signer.Close() },
	}, nil
}

func (e *ExternalConnector) pick(shared []accounts.Account) (accounts.Account, error) {
	if len(shared) == 0 {
		return accounts.Account{}, fmt.Errorf("%w: signer shared no accounts", ErrUserRejected)
	}
	if e.Account == (common.Address{}) {
		return shared[0], nil
	}
	for _, account := range shared {
		if account.Address == e.Account {
			return account, nil
		}
	}
	return accounts.Account{}, fmt.Errorf("%w: account %s not shared by signer", ErrUserRejected, e.Account)
}
