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
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the chain access the gateways need: contract calls and
// transactions plus receipt lookups for confirmation.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// PendingTx is a submitted, not yet confirmed transaction.
type PendingTx struct {
	tx      *types.Transaction
	from    common.Address
	backend Backend
}

// Hash returns the transaction hash.
func (p *PendingTx) Hash() common.Hash { return p.tx.Hash() }

// Transaction returns the signed transaction as submitted.
func (p *PendingTx) Transaction() *types.Transaction { return p.tx }

// Wait blocks until the transaction is included in a block. There is no
// internal deadline: a context deadline surfaces as ErrTimeout. A receipt
// with failed status is reported as ErrReverted, with the revert reason
// replayed from the inclusion block when the node provides one.
func (p *PendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, p.backend, p.tx)
	if err != nil {
		return nil, classify(err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, &TxError{Kind: ErrReverted, Reason: p.replay(ctx, receipt)}
	}
	return receipt, nil
}

func (p *PendingTx) replay(ctx context.Context, receipt *types.Receipt) string {
	msg := ethereum.CallMsg{
		From:  p.from,
		To:    p.tx.To(),
		Gas:   p.tx.Gas(),
		Value: p.tx.Value(),
		Data:  p.tx.Data(),
	}
	if _, err := p.backend.CallContract(ctx, msg, receipt.BlockNumber); err != nil {
		reason, _ := revertReason(err)
		return reason
	}
	return ""
}

// boundContract is the shared plumbing of the three gateways.
type boundContract struct {
	address  common.Address
	contract *bind.BoundContract
	backend  Backend
}

func bindContract(address common.Address, abiJSON string, backend Backend) (*boundContract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, err
	}
	return &boundContract{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		backend:  backend,
	}, nil
}

func (b *boundContract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := b.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// transact submits a method call, or a plain value transfer when method
// is empty. opts is copied, never mutated; value is attached when non-nil.
func (b *boundContract) transact(opts *bind.TransactOpts, value *big.Int, method string, args ...interface{}) (*PendingTx, error) {
	o, err := signerOpts(opts)
	if err != nil {
		return nil, err
	}
	if value != nil {
		o.Value = new(big.Int).Set(value)
	}
	var tx *types.Transaction
	if method == "" {
		tx, err = b.contract.Transfer(o)
	} else {
		tx, err = b.contract.Transact(o, method, args...)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &PendingTx{tx: tx, from: o.From, backend: b.backend}, nil
}

func signerOpts(opts *bind.TransactOpts) (*bind.TransactOpts, error) {
	if opts == nil || opts.Signer == nil {
		return nil, ErrNotConnected
	}
	o := *opts
	return &o, nil
}
