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

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fractalfi/fractal/contracts/fractal/contract"
)

// Revenue is a gateway to a project's revenue-share contract.
type Revenue struct {
	*boundContract
}

// NewRevenue binds an already-deployed revenue-share contract.
func NewRevenue(address common.Address, backend Backend) (*Revenue, error) {
	bound, err := bindContract(address, contract.RevenueABI, backend)
	if err != nil {
		return nil, err
	}
	return &Revenue{bound}, nil
}

// Address returns the revenue contract address.
func (r *Revenue) Address() common.Address { return r.address }

// ──────────────────────────────────────────────
//  Write methods
// ──────────────────────────────────────────────

// Buy purchases amount FCAT units. value is the payment in wei and must
// equal amount × pricePerTokenWei; the contract rejects anything else.
func (r *Revenue) Buy(opts *bind.TransactOpts, amount, value *big.Int) (*PendingTx, error) {
	return r.transact(opts, value, "buy", amount)
}

// ClaimRevenue pays out the caller's claimable revenue share.
func (r *Revenue) ClaimRevenue(opts *bind.TransactOpts) (*PendingTx, error) {
	return r.transact(opts, nil, "claimRevenue")
}

// CreatorWithdraw pays out the creator's remaining share (creator-only).
func (r *Revenue) CreatorWithdraw(opts *bind.TransactOpts) (*PendingTx, error) {
	return r.transact(opts, nil, "creatorWithdraw")
}

// Deposit sends value wei to the contract as a plain transfer, which the
// contract books as external revenue.
func (r *Revenue) Deposit(opts *bind.TransactOpts, value *big.Int) (*PendingTx, error) {
	return r.transact(opts, value, "")
}

// ──────────────────────────────────────────────
//  Read methods
// ──────────────────────────────────────────────

// CreatorShare is the creator's revenue position, all in wei.
type CreatorShare struct {
	Gross     *big.Int
	Claimed   *big.Int
	Remaining *big.Int
}

// TotalRevenue returns all revenue ever received by the contract, in wei.
func (r *Revenue) TotalRevenue(ctx context.Context) (*big.Int, error) {
	out, err := r.call(ctx, "totalRevenue")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// PricePerTokenWei returns the price of one FCAT unit in wei.
func (r *Revenue) PricePerTokenWei(ctx context.Context) (*big.Int, error) {
	out, err := r.call(ctx, "pricePerTokenWei")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Claimable returns the revenue share account can currently claim, in wei.
func (r *Revenue) Claimable(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := r.call(ctx, "claimable", account)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// CreatorShareInfo returns the creator's gross, claimed and remaining share.
func (r *Revenue) CreatorShareInfo(ctx context.Context) (*CreatorShare, error) {
	out, err := r.call(ctx, "creatorShareInfo")
	if err != nil {
		return nil, err
	}
	return &CreatorShare{
		Gross:     out[0].(*big.Int),
		Claimed:   out[1].(*big.Int),
		Remaining: out[2].(*big.Int),
	}, nil
}
