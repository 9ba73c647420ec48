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
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testPassphrase = "correct horse"

// newTestKeystore creates a keystore directory holding one account.
func newTestKeystore(t *testing.T) (string, common.Address) {
	t.Helper()
	dir := t.TempDir()
	ks := keystore.NewKeyStore(dir, keystore.LightScryptN, keystore.LightScryptP)
	account, err := ks.NewAccount(testPassphrase)
	require.NoError(t, err)
	return dir, account.Address
}

func dialTo(client Client) Dialer {
	return func(ctx context.Context, rawurl string) (Client, error) {
		return client, nil
	}
}

func TestKeystoreConnector_MissingKeystoreIsNoProvider(t *testing.T) {
	dial := dialTo(nil)
	for name, dir := range map[string]string{
		"unset":   "",
		"missing": filepath.Join(t.TempDir(), "nope"),
		"empty":   t.TempDir(),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := (&KeystoreConnector{Dir: dir}).Connect(context.Background(), dial)
			require.ErrorIs(t, err, ErrNoProvider)
		})
	}
}

func TestKeystoreConnector_UnknownAccountIsNoProvider(t *testing.T) {
	dir, _ := newTestKeystore(t)
	c := &KeystoreConnector{Dir: dir, Account: common.Address{0x1}, Passphrase: testPassphrase}
	_, err := c.Connect(context.Background(), dialTo(nil))
	require.ErrorIs(t, err, ErrNoProvider)
}

func TestKeystoreConnector_WrongPassphraseIsRejected(t *testing.T) {
	dir, _ := newTestKeystore(t)
	c := &KeystoreConnector{Dir: dir, Passphrase: "wrong"}
	_, err := c.Connect(context.Background(), dialTo(nil))
	require.ErrorIs(t, err, ErrUserRejected)
}

func TestKeystoreConnector_UnreachableEndpointIsRelayUnavailable(t *testing.T) {
	dir, _ := newTestKeystore(t)
	c := &KeystoreConnector{Dir: dir, Passphrase: testPassphrase, RPC: "http://127.0.0.1:1"}
	_, err := c.Connect(context.Background(), func(ctx context.Context, rawurl string) (Client, error) {
		require.Equal(t, "http://127.0.0.1:1", rawurl)
		return nil, errors.New("connection refused")
	})
	require.ErrorIs(t, err, ErrRelayUnavailable)
}

func TestKeystoreConnector_UnlocksAndSigns(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	dir, address := newTestKeystore(t)

	c := &KeystoreConnector{Dir: dir, Account: address, Passphrase: testPassphrase}
	require.Equal("keystore", c.Method())
	id, err := c.Connect(context.Background(), dialTo(client))
	require.NoError(err)
	require.Equal(address, id.Address)
	require.Equal(Client(client), id.Client)

	chainID := big.NewInt(1337)
	tx := types.NewTransaction(0, common.Address{0x2}, big.NewInt(1), 21000, big.NewInt(1), nil)
	signed, err := id.SignTx(tx, chainID)
	require.NoError(err)
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(err)
	require.Equal(address, sender)

	// Closing locks the key again.
	id.Close()
	_, err = id.SignTx(tx, chainID)
	require.Error(err)
}

func TestKeystoreConnector_ReusesKeystore(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	dir, address := newTestKeystore(t)
	c := &KeystoreConnector{Dir: dir, Passphrase: testPassphrase}

	first, err := c.Connect(context.Background(), dialTo(client))
	require.NoError(err)
	opened := c.ks
	require.NotNil(opened)
	first.Close()

	second, err := c.Connect(context.Background(), dialTo(client))
	require.NoError(err)
	require.Same(opened, c.ks)
	require.Equal(address, second.Address)
	second.Close()
}

func TestExternalConnector_UnsetEndpointIsNoProvider(t *testing.T) {
	_, err := (&ExternalConnector{}).Connect(context.Background(), dialTo(nil))
	require.ErrorIs(t, err, ErrNoProvider)
}

func TestExternalConnector_UnreachableSignerIsRelayUnavailable(t *testing.T) {
	c := &ExternalConnector{Endpoint: "http://127.0.0.1:1"}
	require.Equal(t, "external", c.Method())
	_, err := c.Connect(context.Background(), dialTo(nil))
	require.ErrorIs(t, err, ErrRelayUnavailable)
}

func TestExternalConnector_PickHonoursSharedAccounts(t *testing.T) {
	require := require.New(t)
	shared := []accounts.Account{
		{Address: common.Address{0x1}},
		{Address: common.Address{0x2}},
	}

	_, err := (&ExternalConnector{}).pick(nil)
	require.ErrorIs(err, ErrUserRejected)

	account, err := (&ExternalConnector{}).pick(shared)
	require.NoError(err)
	require.Equal(common.Address{0x1}, account.Address)

	account, err = (&ExternalConnector{Account: common.Address{0x2}}).pick(shared)
	require.NoError(err)
	require.Equal(common.Address{0x2}, account.Address)

	_, err = (&ExternalConnector{Account: common.Address{0x3}}).pick(shared)
	require.ErrorIs(err, ErrUserRejected)
}
