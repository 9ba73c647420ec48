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
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	testChainID = big.NewInt(1337)
	testAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func newTestClient(ctrl *gomock.Controller, chainID *big.Int) *MockClient {
	client := NewMockClient(ctrl)
	client.EXPECT().ChainID(gomock.Any()).Return(chainID, nil).AnyTimes()
	return client
}

func newTestConnector(ctrl *gomock.Controller, id *Identity, err error) *MockConnector {
	c := NewMockConnector(ctrl)
	c.EXPECT().Method().Return("keystore").AnyTimes()
	c.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(id, err)
	return c
}

func newTestIdentity(client Client, closed *int) *Identity {
	return &Identity{
		Address: testAccount,
		Client:  client,
		SignTx: func(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
			return tx, nil
		},
		Close: func() { *closed++ },
	}
}

func drain(ch chan Event) []State {
	var states []State
	for {
		select {
		case ev := <-ch:
			states = append(states, ev.State)
		default:
			return states
		}
	}
}

func TestSession_ConnectWithoutProviderStaysDisconnected(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	session := NewSession(Config{})

	err := session.Connect(context.Background(), newTestConnector(ctrl, nil, ErrNoProvider))
	require.ErrorIs(err, ErrNoProvider)
	require.False(session.Connected())
	require.Equal(Info{State: Disconnected}, session.Info())

	client, opts := session.Transactor(context.Background())
	require.Nil(client)
	require.Nil(opts)
	require.Nil(session.TransactOpts(context.Background()))
}

func TestSession_ConnectAdoptsReportedAccount(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	client := newTestClient(ctrl, testChainID)
	closed := 0
	session := NewSession(Config{ChainID: testChainID})

	events := make(chan Event, 8)
	sub := session.Subscribe(events)
	defer sub.Unsubscribe()

	err := session.Connect(context.Background(), newTestConnector(ctrl, newTestIdentity(client, &closed), nil))
	require.NoError(err)
	require.True(session.Connected())
	require.Equal(testAccount, session.Address())

	info := session.Info()
	require.Equal(Connected, info.State)
	require.Equal("keystore", info.Method)
	require.Equal(testAccount, info.Address)
	require.Equal(testChainID, info.ChainID)
	require.True(info.Connected)

	require.Equal([]State{Connecting, Connected}, drain(events))
}

func TestSession_IdentityWithoutAccountIsNoProvider(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	closed := 0
	id := newTestIdentity(NewMockClient(ctrl), &closed)
	id.Address = common.Address{}
	session := NewSession(Config{})

	err := session.Connect(context.Background(), newTestConnector(ctrl, id, nil))
	require.ErrorIs(err, ErrNoProvider)
	require.False(session.Connected())
	require.Equal(1, closed)
}

func TestSession_ConnectRejectsWrongChain(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	client := newTestClient(ctrl, big.NewInt(1))
	closed := 0
	session := NewSession(Config{ChainID: testChainID})

	err := session.Connect(context.Background(), newTestConnector(ctrl, newTestIdentity(client, &closed), nil))
	require.ErrorIs(err, ErrWrongChain)
	require.False(session.Connected())
	require.Equal(1, closed)
}

func TestSession_UnreachableClientIsRelayUnavailable(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	client.EXPECT().ChainID(gomock.Any()).Return(nil, errors.New("connection refused"))
	closed := 0
	session := NewSession(Config{})

	err := session.Connect(context.Background(), newTestConnector(ctrl, newTestIdentity(client, &closed), nil))
	require.ErrorIs(err, ErrRelayUnavailable)
	require.Equal(Disconnected, session.Info().State)
}

func TestSession_DisconnectIsIdempotent(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	closed := 0
	session := NewSession(Config{})

	events := make(chan Event, 8)
	sub := session.Subscribe(events)
	defer sub.Unsubscribe()

	// Disconnecting a fresh session does nothing.
	session.Disconnect()
	require.Empty(drain(events))

	id := newTestIdentity(newTestClient(ctrl, testChainID), &closed)
	require.NoError(session.Connect(context.Background(), newTestConnector(ctrl, id, nil)))
	drain(events)

	session.Disconnect()
	session.Disconnect()
	require.Equal([]State{Disconnected}, drain(events))
	require.Equal(1, closed)
	require.Equal(Info{State: Disconnected}, session.Info())
	require.Equal(common.Address{}, session.Address())
}

func TestSession_ReconnectClosesPreviousIdentity(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	client := newTestClient(ctrl, testChainID)
	first, second := 0, 0
	session := NewSession(Config{})

	require.NoError(session.Connect(context.Background(), newTestConnector(ctrl, newTestIdentity(client, &first), nil)))
	require.NoError(session.Connect(context.Background(), newTestConnector(ctrl, newTestIdentity(client, &second), nil)))
	require.Equal(1, first)
	require.Equal(0, second)
	require.True(session.Connected())
}

func TestSession_ConcurrentConnectIsRefused(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	client := newTestClient(ctrl, testChainID)
	closed := 0

	entered, release := make(chan struct{}), make(chan struct{})
	slow := NewMockConnector(ctrl)
	slow.EXPECT().Method().Return("external").AnyTimes()
	slow.EXPECT().Connect(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, dial Dialer) (*Identity, error) {
		close(entered)
		<-release
		return newTestIdentity(client, &closed), nil
	})
	session := NewSession(Config{})

	done := make(chan error, 1)
	go func() { done <- session.Connect(context.Background(), slow) }()
	<-entered

	require.Equal(Connecting, session.Info().State)
	other := NewMockConnector(ctrl)
	other.EXPECT().Method().Return("keystore").AnyTimes()
	require.ErrorIs(session.Connect(context.Background(), other), ErrConnecting)

	close(release)
	require.NoError(<-done)
	require.Equal("external", session.Info().Method)
}

// blockingConnector returns a connector whose Connect waits for release and
// then hands out id. entered is closed once Connect is running.
func blockingConnector(ctrl *gomock.Controller, id *Identity) (c *MockConnector, entered, release chan struct{}) {
	entered, release = make(chan struct{}), make(chan struct{})
	c = NewMockConnector(ctrl)
	c.EXPECT().Method().Return("external").AnyTimes()
	c.EXPECT().Connect(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, dial Dialer) (*Identity, error) {
		close(entered)
		<-release
		return id, nil
	})
	return c, entered, release
}

func TestSession_DisconnectWhileConnectingSticks(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	closed := 0
	slow, entered, release := blockingConnector(ctrl, newTestIdentity(newTestClient(ctrl, testChainID), &closed))
	session := NewSession(Config{})

	events := make(chan Event, 8)
	sub := session.Subscribe(events)
	defer sub.Unsubscribe()

	done := make(chan error, 1)
	go func() { done <- session.Connect(context.Background(), slow) }()
	<-entered

	session.Disconnect()
	require.Equal(Disconnected, session.Info().State)

	close(release)
	require.ErrorIs(<-done, ErrCancelled)
	require.False(session.Connected())
	require.Equal(Info{State: Disconnected}, session.Info())
	require.Equal(1, closed)
	require.Equal([]State{Connecting, Disconnected}, drain(events))

	client, opts := session.Transactor(context.Background())
	require.Nil(client)
	require.Nil(opts)
}

func TestSession_SupersededConnectDoesNotLeak(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	client := newTestClient(ctrl, testChainID)
	first, second := 0, 0

	stale := newTestIdentity(client, &first)
	stale.Address = common.Address{0x1}
	slow, entered, release := blockingConnector(ctrl, stale)
	session := NewSession(Config{})

	done := make(chan error, 1)
	go func() { done <- session.Connect(context.Background(), slow) }()
	<-entered

	session.Disconnect()
	require.NoError(session.Connect(context.Background(), newTestConnector(ctrl, newTestIdentity(client, &second), nil)))

	close(release)
	require.ErrorIs(<-done, ErrCancelled)
	require.Equal(1, first)
	require.Equal(0, second)

	info := session.Info()
	require.Equal(Connected, info.State)
	require.Equal("keystore", info.Method)
	require.Equal(testAccount, info.Address)
}

func TestSession_AccountChangeDisconnects(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	client := newTestClient(ctrl, testChainID)
	closed := 0
	session := NewSession(Config{})
	require.NoError(session.Connect(context.Background(), newTestConnector(ctrl, newTestIdentity(client, &closed), nil)))

	session.NotifyAccountsChanged([]common.Address{testAccount, {0x1}})
	require.True(session.Connected())

	session.NotifyAccountsChanged([]common.Address{{0x1}})
	require.False(session.Connected())
	require.Equal(1, closed)
}

func TestSession_ChainChangeDisconnects(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	client := newTestClient(ctrl, testChainID)
	closed := 0
	session := NewSession(Config{})
	require.NoError(session.Connect(context.Background(), newTestConnector(ctrl, newTestIdentity(client, &closed), nil)))

	session.NotifyChainChanged(big.NewInt(1337))
	require.True(session.Connected())

	session.NotifyChainChanged(big.NewInt(1))
	require.False(session.Connected())

	// Notifications on a disconnected session are ignored.
	session.NotifyChainChanged(nil)
	session.NotifyAccountsChanged(nil)
	require.Equal(1, closed)
}

func TestSession_TransactorSignsOnlyForSessionAccount(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	client := newTestClient(ctrl, testChainID)
	closed := 0

	var signedFor *big.Int
	id := newTestIdentity(client, &closed)
	id.SignTx = func(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
		signedFor = chainID
		return tx, nil
	}
	session := NewSession(Config{})
	require.NoError(session.Connect(context.Background(), newTestConnector(ctrl, id, nil)))

	ctx := context.Background()
	got, opts := session.Transactor(ctx)
	require.Equal(Client(client), got)
	require.Equal(testAccount, opts.From)
	require.Equal(ctx, opts.Context)

	tx := types.NewTransaction(0, common.Address{0x2}, big.NewInt(1), 21000, big.NewInt(1), nil)
	_, err := opts.Signer(common.Address{0x1}, tx)
	require.ErrorIs(err, bind.ErrNotAuthorized)
	require.Nil(signedFor)

	signed, err := opts.Signer(testAccount, tx)
	require.NoError(err)
	require.Equal(tx, signed)
	require.Equal(testChainID, signedFor)
}

func TestSession_ReadClientUsesPublicEndpoint(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	public := newTestClient(ctrl, testChainID)

	dials := 0
	session := NewSession(Config{
		RPC: "http://public.example",
		Dial: func(ctx context.Context, rawurl string) (Client, error) {
			dials++
			require.Equal("http://public.example", rawurl)
			return public, nil
		},
	})

	for i := 0; i < 2; i++ {
		client, ok := session.ReadClient(context.Background())
		require.True(ok)
		require.Equal(Client(public), client)
	}
	require.Equal(1, dials)

	// A connected wallet serves reads itself.
	closed := 0
	signer := newTestClient(ctrl, testChainID)
	require.NoError(session.Connect(context.Background(), newTestConnector(ctrl, newTestIdentity(signer, &closed), nil)))
	client, ok := session.ReadClient(context.Background())
	require.True(ok)
	require.Equal(Client(signer), client)
}

func TestSession_ReadClientDegradesWithoutEndpoint(t *testing.T) {
	require := require.New(t)

	session := NewSession(Config{})
	client, ok := session.ReadClient(context.Background())
	require.False(ok)
	require.Nil(client)

	session = NewSession(Config{
		RPC: "http://down.example",
		Dial: func(ctx context.Context, rawurl string) (Client, error) {
			return nil, errors.New("connection refused")
		},
	})
	client, ok = session.ReadClient(context.Background())
	require.False(ok)
	require.Nil(client)
}

func TestState_MarshalsByName(t *testing.T) {
	for state, want := range map[State]string{
		Disconnected: "disconnected",
		Connecting:   "connecting",
		Connected:    "connected",
		State(9):     "unknown",
	} {
		text, err := state.MarshalText()
		require.NoError(t, err)
		require.Equal(t, want, string(text))
	}
}
