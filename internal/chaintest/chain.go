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

// Package chaintest provides an in-memory chain hosting mock Fractal
// registry, token and revenue contracts. Calls are decoded against the real
// ABIs so the gateways run unmodified on top of it.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fractalfi/fractal/contracts/fractal/contract"
)

// RegistryAddress is where the mock registry lives.
var RegistryAddress = common.HexToAddress("0x1f10fB380ecB3465193B0d2B52af2C7cE20fdCCe")

var errUnreachable = errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")

// Project is a registry entry.
type Project struct {
	Creator  common.Address
	Token    common.Address
	Revenue  common.Address
	AssetURI string
}

// Token is the state of a mock FCAT token.
type Token struct {
	Name     string
	Symbol   string
	Decimals uint8
	Supply   *big.Int
	Balances map[common.Address]*big.Int
}

// Revenue is the state of a mock revenue-share contract. Sales accrue to
// the creator; deposits are split across token holders by balance.
type Revenue struct {
	Creator   common.Address
	Token     common.Address
	Price     *big.Int
	Total     *big.Int
	Gross     *big.Int
	Claimed   *big.Int
	Claimable map[common.Address]*big.Int
}

// Chain is a single-node in-memory chain. Every transaction is mined into
// its own block on submission.
type Chain struct {
	mu      sync.Mutex
	chainID *big.Int

	registryABI abi.ABI
	tokenABI    abi.ABI
	revenueABI  abi.ABI

	projects []*Project
	tokens   map[common.Address]*Token
	revenues map[common.Address]*Revenue
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	sent     []*types.Transaction
	block    uint64
	requests int

	unreachable  bool
	holdReceipts bool
}

// New creates an empty chain with the given chain id.
func New(chainID *big.Int) *Chain {
	c := &Chain{
		chainID:  new(big.Int).Set(chainID),
		tokens:   make(map[common.Address]*Token),
		revenues: make(map[common.Address]*Revenue),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
	}
	c.registryABI = mustParse(contract.RegistryABI)
	c.tokenABI = mustParse(contract.TokenABI)
	c.revenueABI = mustParse(contract.RevenueABI)
	return c
}

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// AddProject registers a project directly, bypassing transactions. The
// whole supply is held by the revenue contract for sale.
func (c *Chain) AddProject(creator common.Address, assetURI string, supply, price *big.Int) *Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addProject(creator, "Fractal", "FCAT", assetURI, supply, price)
}

func (c *Chain) addProject(creator common.Address, name, symbol, assetURI string, supply, price *big.Int) *Project {
	n := uint64(len(c.projects))
	p := &Project{
		Creator:  creator,
		Token:    crypto.CreateAddress(RegistryAddress, 2*n),
		Revenue:  crypto.CreateAddress(RegistryAddress, 2*n+1),
		AssetURI: assetURI,
	}
	c.tokens[p.Token] = &Token{
		Name:     name,
		Symbol:   symbol,
		Decimals: 18,
		Supply:   new(big.Int).Set(supply),
		Balances: map[common.Address]*big.Int{p.Revenue: new(big.Int).Set(supply)},
	}
	c.revenues[p.Revenue] = &Revenue{
		Creator:   creator,
		Token:     p.Token,
		Price:     new(big.Int).Set(price),
		Total:     new(big.Int),
		Gross:     new(big.Int),
		Claimed:   new(big.Int),
		Claimable: make(map[common.Address]*big.Int),
	}
	c.projects = append(c.projects, p)
	return p
}

// Revenue returns the mutable state of the revenue contract at addr.
func (c *Chain) Revenue(addr common.Address) *Revenue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revenues[addr]
}

// Token returns the mutable state of the token at addr.
func (c *Chain) Token(addr common.Address) *Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[addr]
}

// SetUnreachable makes every subsequent request fail like a dead endpoint.
func (c *Chain) SetUnreachable(down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unreachable = down
}

// HoldReceipts keeps submitted transactions pending forever.
func (c *Chain) HoldReceipts(hold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdReceipts = hold
}

// Requests returns how many backend requests have been served.
func (c *Chain) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// Sent returns all submitted transactions in order.
func (c *Chain) Sent() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Transaction(nil), c.sent...)
}

func (c *Chain) hit() error {
	c.requests++
	if c.unreachable {
		return errUnreachable
	}
	return nil
}

func (c *Chain) isContract(addr common.Address) bool {
	return addr == RegistryAddress || c.tokens[addr] != nil || c.revenues[addr] != nil
}

// ──────────────────────────────────────────────
//  Backend methods
// ──────────────────────────────────────────────

func (c *Chain) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.hit(); err != nil {
		return nil, err
	}
	return new(big.Int).Set(c.chainID), nil
}

func (c *Chain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return c.PendingCodeAt(ctx, account)
}

func (c *Chain) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.hit(); err != nil {
		return nil, err
	}
	if c.isContract(account) {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (c *Chain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.hit(); err != nil {
		return nil, err
	}
	if call.To == nil {
		return nil, errors.New("chaintest: contract creation not supported")
	}
	return c.execute(call.From, *call.To, call.Value, call.Data, false)
}

func (c *Chain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.hit(); err != nil {
		return 0, err
	}
	if call.To == nil {
		return 0, errors.New("chaintest: contract creation not supported")
	}
	if _, err := c.execute(call.From, *call.To, call.Value, call.Data, false); err != nil {
		return 0, err
	}
	return 100000, nil
}

func (c *Chain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.hit(); err != nil {
		return nil, err
	}
	return &types.Header{Number: new(big.Int).SetUint64(c.block)}, nil
}

func (c *Chain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.hit(); err != nil {
		return 0, err
	}
	return c.nonces[account], nil
}

func (c *Chain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *Chain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *Chain) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (c *Chain) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("chaintest: subscriptions not supported")
}

// SendTransaction mines tx immediately. A transaction whose execution fails
// is still included, with a failed receipt.
func (c *Chain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.hit(); err != nil {
		return err
	}
	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return err
	}
	if tx.To() == nil {
		return errors.New("chaintest: contract creation not supported")
	}
	if want := c.nonces[from]; tx.Nonce() != want {
		return fmt.Errorf("nonce mismatch: have %d, want %d", tx.Nonce(), want)
	}
	c.nonces[from]++
	c.block++

	status := types.ReceiptStatusSuccessful
	if _, err := c.execute(from, *tx.To(), tx.Value(), tx.Data(), true); err != nil {
		status = types.ReceiptStatusFailed
	}
	c.sent = append(c.sent, tx)
	c.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(c.block),
		GasUsed:     tx.Gas(),
	}
	return nil
}

func (c *Chain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.hit(); err != nil {
		return nil, err
	}
	receipt, ok := c.receipts[txHash]
	if !ok || c.holdReceipts {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// ──────────────────────────────────────────────
//  Contract execution
// ──────────────────────────────────────────────

func revert(reason string) error {
	return fmt.Errorf("execution reverted: %s", reason)
}

func unpack(parsed *abi.ABI, data []byte) (*abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, revert("missing selector")
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, nil, revert("unknown selector")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, revert("malformed arguments")
	}
	return method, args, nil
}

func (c *Chain) execute(from, to common.Address, value *big.Int, data []byte, commit bool) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	switch {
	case to == RegistryAddress:
		return c.registryCall(from, data, commit)
	case c.tokens[to] != nil:
		return c.tokenCall(c.tokens[to], data)
	case c.revenues[to] != nil:
		return c.revenueCall(to, c.revenues[to], from, value, data, commit)
	}
	return nil, nil
}

func (c *Chain) registryCall(from common.Address, data []byte, commit bool) ([]byte, error) {
	method, args, err := unpack(&c.registryABI, data)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "projectCount":
		return method.Outputs.Pack(big.NewInt(int64(len(c.projects))))
	case "getProject":
		id := args[0].(*big.Int)
		if !id.IsUint64() || id.Uint64() >= uint64(len(c.projects)) {
			return nil, revert("invalid project id")
		}
		p := c.projects[id.Uint64()]
		return method.Outputs.Pack(p.Creator, p.Token, p.Revenue, p.AssetURI)
	case "launchProject":
		name, symbol, uri := args[0].(string), args[1].(string), args[2].(string)
		supply, price := args[3].(*big.Int), args[4].(*big.Int)
		if name == "" || symbol == "" {
			return nil, revert("name and symbol required")
		}
		id := big.NewInt(int64(len(c.projects)))
		if commit {
			c.addProject(from, name, symbol, uri, supply, price)
		}
		return method.Outputs.Pack(id)
	}
	return nil, revert("unsupported method")
}

func (c *Chain) tokenCall(t *Token, data []byte) ([]byte, error) {
	method, args, err := unpack(&c.tokenABI, data)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "balanceOf":
		return method.Outputs.Pack(balance(t.Balances, args[0].(common.Address)))
	case "totalSupply":
		return method.Outputs.Pack(t.Supply)
	case "name":
		return method.Outputs.Pack(t.Name)
	case "symbol":
		return method.Outputs.Pack(t.Symbol)
	case "decimals":
		return method.Outputs.Pack(t.Decimals)
	}
	return nil, revert("unsupported method")
}

func (c *Chain) revenueCall(self common.Address, r *Revenue, from common.Address, value *big.Int, data []byte, commit bool) ([]byte, error) {
	if len(data) == 0 {
		if value.Sign() <= 0 {
			return nil, revert("no value")
		}
		if commit {
			c.deposit(self, r, value)
		}
		return nil, nil
	}
	method, args, err := unpack(&c.revenueABI, data)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "totalRevenue":
		return method.Outputs.Pack(r.Total)
	case "pricePerTokenWei":
		return method.Outputs.Pack(r.Price)
	case "claimable":
		return method.Outputs.Pack(balance(r.Claimable, args[0].(common.Address)))
	case "creatorShareInfo":
		return method.Outputs.Pack(r.Gross, r.Claimed, new(big.Int).Sub(r.Gross, r.Claimed))

	case "buy":
		amount := args[0].(*big.Int)
		if amount.Sign() <= 0 {
			return nil, revert("zero amount")
		}
		if cost := new(big.Int).Mul(amount, r.Price); cost.Cmp(value) != 0 {
			return nil, revert("incorrect payment")
		}
		token := c.tokens[r.Token]
		if balance(token.Balances, self).Cmp(amount) < 0 {
			return nil, revert("sold out")
		}
		if commit {
			token.Balances[self] = new(big.Int).Sub(token.Balances[self], amount)
			token.Balances[from] = new(big.Int).Add(balance(token.Balances, from), amount)
			r.Total = new(big.Int).Add(r.Total, value)
			r.Gross = new(big.Int).Add(r.Gross, value)
		}
		return nil, nil

	case "claimRevenue":
		if balance(r.Claimable, from).Sign() == 0 {
			return nil, revert("nothing to claim")
		}
		if commit {
			delete(r.Claimable, from)
		}
		return nil, nil

	case "creatorWithdraw":
		if from != r.Creator {
			return nil, revert("not creator")
		}
		if r.Gross.Cmp(r.Claimed) <= 0 {
			return nil, revert("nothing to withdraw")
		}
		if commit {
			r.Claimed = new(big.Int).Set(r.Gross)
		}
		return nil, nil
	}
	return nil, revert("unsupported method")
}

// deposit books value as external revenue and splits it across holders
// outside the revenue contract itself.
func (c *Chain) deposit(self common.Address, r *Revenue, value *big.Int) {
	r.Total = new(big.Int).Add(r.Total, value)
	token := c.tokens[r.Token]
	if token.Supply.Sign() == 0 {
		return
	}
	for holder, bal := range token.Balances {
		if holder == self || bal.Sign() == 0 {
			continue
		}
		share := new(big.Int).Mul(value, bal)
		share.Div(share, token.Supply)
		r.Claimable[holder] = new(big.Int).Add(balance(r.Claimable, holder), share)
	}
}

func balance(m map[common.Address]*big.Int, addr common.Address) *big.Int {
	if v, ok := m[addr]; ok {
		return v
	}
	return new(big.Int)
}
