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
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// KeystoreConnector signs with a key from a local encrypted keystore
// directory. It is the local counterpart of an injected browser wallet.
type KeystoreConnector struct {
	Dir        string         // keystore directory
	Account    common.Address // account to unlock; zero selects the first
	Passphrase string
	RPC        string // endpoint transactions are submitted through

	mu sync.Mutex
	ks *keystore.KeyStore // opened on first use, shared by later connects
}

func (k *KeystoreConnector) Method() string { return "keystore" }

// Connect unlocks the configured account. A missing directory or account is
// ErrNoProvider; a wrong passphrase is ErrUserRejected.
func (k *KeystoreConnector) Connect(ctx context.Context, dial Dialer) (*Identity, error) {
	if k.Dir == "" {
		return nil, fmt.Errorf("%w: no keystore configured", ErrNoProvider)
	}
	if _, err := os.Stat(k.Dir); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoProvider, err)
	}
	ks := k.keystore()

	account, err := k.pick(ks)
	if err != nil {
		return nil, err
	}
	if err := ks.Unlock(account, k.Passphrase); err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return nil, fmt.Errorf("%w: %v", ErrUserRejected, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrNoProvider, err)
	}
	client, err := dial(ctx, k.RPC)
	if err != nil {
		ks.Lock(account.Address)
		return nil, fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}
	return &Identity{
		Address: account.Address,
		Client:  client,
		SignTx: func(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
			return ks.SignTx(account, tx, chainID)
		},
		Close: func() { ks.Lock(account.Address) },
	}, nil
}

// keystore returns the connector's keystore, opening it once. Every open
// keystore runs its own directory watcher, so reconnects reuse it.
func (k *KeystoreConnector) keystore() *keystore.KeyStore {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ks == nil {
		k.ks = keystore.NewKeyStore(k.Dir, keystore.StandardScryptN, keystore.StandardScryptP)
	}
	return k.ks
}

func (k *KeystoreConnector) pick(ks *keystore.KeyStore) (accounts.Account, error) {
	all := ks.Accounts()
	if len(all) == 0 {
		return accounts.Account{}, fmt.Errorf("%w: keystore %s holds no accounts", ErrNoProvider, k.Dir)
	}
	if k.Account == (common.Address{}) {
		return all[0], nil
	}
	account, err := ks.Find(accounts.Account{Address: k.Account})
	if err != nil {
		return accounts.Account{}, fmt.Errorf("%w: %v", ErrNoProvider, err)
	}
	return account, nil
}
