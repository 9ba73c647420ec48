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

// Package wallet manages the binding between the running client and one
// signing identity, plus a read-only fallback chain handle.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
)

// Errors returned by session operations.
var (
	ErrNoProvider       = errors.New("wallet: no signer provider available")
	ErrUserRejected     = errors.New("wallet: connection rejected")
	ErrRelayUnavailable = errors.New("wallet: signer or rpc endpoint unreachable")
	ErrWrongChain       = errors.New("wallet: signer is attached to the wrong network")
	ErrConnecting       = errors.New("wallet: connection already in progress")
	ErrCancelled        = errors.New("wallet: connection cancelled")
)

// State is the connection state of a Session.
type State uint8

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Event is published on every session state transition.
type Event struct {
	State   State
	Address common.Address
	ChainID *big.Int
}

// Info is a point-in-time view of a Session.
type Info struct {
	State     State          `json:"state"`
	Method    string         `json:"method,omitempty"`
	Address   common.Address `json:"address"`
	ChainID   *big.Int       `json:"chainId,omitempty"`
	Connected bool           `json:"connected"`
}

// Config parameterises a Session.
type Config struct {
	// RPC is the public endpoint used for reads while no wallet is connected.
	RPC string

	// ChainID is the network the session must be attached to. Nil accepts
	// any network.
	ChainID *big.Int

	// Dial opens chain clients. Defaults to DialRPC.
	Dial Dialer
}

// Session tracks exactly one active signing identity. Connected implies a
// non-zero address and a non-nil client; a session that is not connected
// hands out no transactors.
type Session struct {
	config Config
	feed   event.Feed

	mu       sync.Mutex
	state    State
	method   string
	identity *Identity
	chainID  *big.Int
	attempt  uint64 // bumped on every reset; a connect only lands on its own attempt
	reader   Client // lazily dialled public endpoint
}

// NewSession creates a disconnected session.
func NewSession(config Config) *Session {
	if config.Dial == nil {
		config.Dial = DialRPC
	}
	return &Session{config: config}
}

// Subscribe registers ch for session state transitions.
func (s *Session) Subscribe(ch chan<- Event) event.Subscription {
	return s.feed.Subscribe(ch)
}

// Connect negotiates an identity through c. It may suspend for as long as
// the signer's approval prompt stays open; cancel ctx to abort. A failed
// attempt leaves the session disconnected and is never retried.
func (s *Session) Connect(ctx context.Context, c Connector) error {
	s.mu.Lock()
	if s.state == Connecting {
		s.mu.Unlock()
		return ErrConnecting
	}
	prev := s.resetLocked()
	attempt := s.attempt
	s.state = Connecting
	s.method = c.Method()
	s.mu.Unlock()

	closeIdentity(prev)
	s.feed.Send(Event{State: Connecting})

	id, chainID, err := s.negotiate(ctx, c)

	s.mu.Lock()
	if s.attempt != attempt {
		// Disconnected (or superseded) while the signer was negotiating.
		s.mu.Unlock()
		closeIdentity(id)
		log.Info("Wallet connection abandoned", "method", c.Method())
		if err != nil {
			return err
		}
		return ErrCancelled
	}
	if err != nil {
		s.state, s.method = Disconnected, ""
		s.mu.Unlock()
		s.feed.Send(Event{State: Disconnected})
		log.Warn("Wallet connection failed", "method", c.Method(), "err", err)
		return err
	}
	s.state = Connected
	s.identity = id
	s.chainID = chainID
	s.mu.Unlock()

	log.Info("Wallet connected", "method", c.Method(), "address", id.Address, "chainid", chainID)
	s.feed.Send(Event{State: Connected, Address: id.Address, ChainID: new(big.Int).Set(chainID)})
	return nil
}

func (s *Session) negotiate(ctx context.Context, c Connector) (*Identity, *big.Int, error) {
	id, err := c.Connect(ctx, s.config.Dial)
	if err != nil {
		return nil, nil, err
	}
	if id == nil || id.Client == nil || id.SignTx == nil || id.Address == (common.Address{}) {
		closeIdentity(id)
		return nil, nil, fmt.Errorf("%w: signer returned no usable account", ErrNoProvider)
	}
	chainID, err := id.Client.ChainID(ctx)
	if err != nil {
		closeIdentity(id)
		return nil, nil, fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}
	if want := s.config.ChainID; want != nil && want.Cmp(chainID) != 0 {
		closeIdentity(id)
		return nil, nil, fmt.Errorf("%w: have %v, want %v", ErrWrongChain, chainID, want)
	}
	return id, chainID, nil
}

// Disconnect resets the session to its initial state. A connect still in
// progress is abandoned and reports ErrCancelled. Calling it on a
// disconnected session is a no-op.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return
	}
	prev := s.resetLocked()
	s.mu.Unlock()

	closeIdentity(prev)
	log.Info("Wallet disconnected")
	s.feed.Send(Event{State: Disconnected})
}

// resetLocked clears the identity and returns the previous one so the
// caller can close it outside the lock.
func (s *Session) resetLocked() *Identity {
	prev := s.identity
	s.attempt++
	s.state = Disconnected
	s.method = ""
	s.identity = nil
	s.chainID = nil
	return prev
}

func closeIdentity(id *Identity) {
	if id != nil && id.Close != nil {
		id.Close()
	}
}

// NotifyAccountsChanged reports the signer's current account list, first
// entry selected. Switching away from the connected account disconnects.
func (s *Session) NotifyAccountsChanged(accounts []common.Address) {
	s.mu.Lock()
	stale := s.state == Connected && (len(accounts) == 0 || accounts[0] != s.identity.Address)
	s.mu.Unlock()
	if stale {
		log.Info("Wallet account changed, dropping session", "accounts", len(accounts))
		s.Disconnect()
	}
}

// NotifyChainChanged reports the signer's current network. Switching away
// from the connected network disconnects.
func (s *Session) NotifyChainChanged(chainID *big.Int) {
	s.mu.Lock()
	stale := s.state == Connected && (chainID == nil || chainID.Cmp(s.chainID) != 0)
	s.mu.Unlock()
	if stale {
		log.Info("Wallet network changed, dropping session", "chainid", chainID)
		s.Disconnect()
	}
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{State: s.state, Method: s.method, Connected: s.state == Connected}
	if s.state == Connected {
		info.Address = s.identity.Address
		info.ChainID = new(big.Int).Set(s.chainID)
	}
	return info
}

// Connected reports whether a signing identity is active.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Connected
}

// Address returns the connected account, or the zero address.
func (s *Session) Address() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connected {
		return common.Address{}
	}
	return s.identity.Address
}

// Transactor returns the signer-capable client together with fresh
// transaction options bound to ctx. Both are nil unless connected.
func (s *Session) Transactor(ctx context.Context) (Client, *bind.TransactOpts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connected {
		return nil, nil
	}
	id, chainID := s.identity, new(big.Int).Set(s.chainID)
	opts := &bind.TransactOpts{
		From:    id.Address,
		Context: ctx,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if addr != id.Address {
				return nil, bind.ErrNotAuthorized
			}
			return id.SignTx(tx, chainID)
		},
	}
	return id.Client, opts
}

// TransactOpts is Transactor without the client.
func (s *Session) TransactOpts(ctx context.Context) *bind.TransactOpts {
	_, opts := s.Transactor(ctx)
	return opts
}

// ReadClient returns a client for view calls: the wallet's own client when
// connected, otherwise the public endpoint. It never fails; ok is false
// when no endpoint is reachable and callers should render a degraded state.
func (s *Session) ReadClient(ctx context.Context) (client Client, ok bool) {
	s.mu.Lock()
	if s.state == Connected {
		client = s.identity.Client
		s.mu.Unlock()
		return client, true
	}
	if s.reader != nil {
		client = s.reader
		s.mu.Unlock()
		return client, true
	}
	s.mu.Unlock()

	if s.config.RPC == "" {
		log.Warn("No public RPC endpoint configured")
		return nil, false
	}
	client, err := s.config.Dial(ctx, s.config.RPC)
	if err == nil {
		_, err = client.ChainID(ctx)
	}
	if err != nil {
		log.Warn("Public RPC endpoint unavailable", "rpc", s.config.RPC, "err", err)
		return nil, false
	}

	s.mu.Lock()
	if s.reader == nil {
		s.reader = client
	}
	client = s.reader
	s.mu.Unlock()
	return client, true
}
