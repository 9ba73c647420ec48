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

package fractal

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	gateway "github.com/fractalfi/fractal/contracts/fractal"
	"github.com/fractalfi/fractal/wallet"
	"github.com/stretchr/testify/require"
)

func TestStatusMessage_CoversErrorTaxonomy(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{wallet.ErrNoProvider, "No wallet provider found. Configure a keystore or an external signer."},
		{fmt.Errorf("%w: locked", wallet.ErrUserRejected), "The wallet connection was rejected."},
		{wallet.ErrRelayUnavailable, "The signer or RPC endpoint is unreachable."},
		{wallet.ErrWrongChain, "The wallet is attached to the wrong network."},
		{wallet.ErrConnecting, "A wallet connection is already in progress."},
		{wallet.ErrCancelled, "The wallet connection was cancelled."},
		{gateway.ErrNotConnected, "Connect a wallet first."},
		{&gateway.TxError{Kind: gateway.ErrRejected}, "The transaction was rejected in the wallet."},
		{&gateway.TxError{Kind: gateway.ErrTimeout}, "Confirmation was not observed in time. The transaction may still be mined."},
		{&gateway.TxError{Kind: gateway.ErrReverted, Reason: "sold out"}, "Transaction reverted: sold out"},
		{&gateway.TxError{Kind: gateway.ErrReverted}, "Transaction reverted."},
		{ErrBusy, "This action is still pending. Wait for it to settle."},
		{fmt.Errorf("%w: deposit must be positive", ErrInvalidInput), "fractal: invalid input: deposit must be positive"},
		{errors.New("nonce too low"), "nonce too low"},
	}
	for _, test := range tests {
		require.Equal(t, test.want, StatusMessage(test.err))
	}
}

func TestAPI_ConnectByMethod(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	api := NewAPI(env.service, env.connector(t))

	res := api.Connect(context.Background(), "external")
	require.False(res.OK)
	require.Equal(StatusMessage(wallet.ErrNoProvider), res.Status)
	require.False(api.Session().Connected)

	res = api.Connect(context.Background(), "keystore")
	require.True(res.OK)
	info := api.Session()
	require.True(info.Connected)
	require.Equal(env.account, info.Address)
	require.Equal("keystore", info.Method)

	info = api.Disconnect()
	require.Equal(wallet.Disconnected, info.State)
	require.False(api.Session().Connected)
}

func TestAPI_WriteFailuresAreResults(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	api := NewAPI(env.service, env.connector(t))

	res := api.Deposit(context.Background(), common.Address{0x1}, "0")
	require.Equal(ActionDeposit, res.Action)
	require.False(res.OK)
	require.NotEmpty(res.Status)

	res = api.Buy(context.Background(), common.Address{0x1}, common.Address{0x2}, 1)
	require.False(res.OK)
	require.Equal("Connect a wallet first.", res.Status)
}

func TestAPI_ServesOverJSONRPC(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	p := env.chain.AddProject(env.account, "ipfs://a", big.NewInt(60000), ether(t, "0.0003"))

	server := rpc.NewServer()
	defer server.Stop()
	require.NoError(server.RegisterName("fractal", NewAPI(env.service, env.connector(t))))
	client := rpc.DialInProc(server)
	defer client.Close()

	var market MarketplaceView
	require.NoError(client.Call(&market, "fractal_marketplace"))
	require.True(market.Available)
	require.Len(market.Projects, 1)
	require.Equal(p.Revenue, market.Projects[0].Revenue)

	var res ActionResult
	require.NoError(client.Call(&res, "fractal_connect", "keystore"))
	require.True(res.OK)

	var session map[string]interface{}
	require.NoError(client.Call(&session, "fractal_session"))
	require.Equal("connected", session["state"])
	require.Equal(true, session["connected"])

	require.NoError(client.Call(&res, "fractal_deposit", p.Revenue, "0.25"))
	require.True(res.OK, res.Status)
	require.NotNil(res.Creator)
	require.Equal("0.25", res.Creator.Projects[0].Revenue.TotalRevenue)

	var portfolio PortfolioView
	require.NoError(client.Call(&portfolio, "fractal_portfolio", p.Token, p.Revenue))
	require.True(portfolio.Available)
	require.Equal("0.25", portfolio.Revenue.TotalRevenue)
}
