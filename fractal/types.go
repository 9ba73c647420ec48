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

// Package fractal implements the Fractal client views: the marketplace,
// the creator dashboard, the investor portfolio and the write actions that
// go with them. Every view is a fresh read of chain state; nothing here is
// cached beyond a single call.
package fractal

import (
	"github.com/ethereum/go-ethereum/common"
)

// ProjectRecord is a registry entry as read from the chain.
type ProjectRecord struct {
	ID       uint64         `json:"id"`
	Creator  common.Address `json:"creator"`
	Token    common.Address `json:"token"`
	Revenue  common.Address `json:"revenue"`
	AssetURI string         `json:"assetURI"`
}

// RevenueSnapshot is a point-in-time read of a revenue contract. Amounts
// are in ether. Fields a view does not read stay empty.
type RevenueSnapshot struct {
	TotalRevenue     string `json:"totalRevenue"`
	CreatorGross     string `json:"creatorGross,omitempty"`
	CreatorClaimed   string `json:"creatorClaimed,omitempty"`
	CreatorRemaining string `json:"creatorRemaining,omitempty"`
	PricePerUnit     string `json:"pricePerUnit,omitempty"`
	Claimable        string `json:"claimable,omitempty"`
}

// MarketplaceView lists every registered project.
type MarketplaceView struct {
	Available bool            `json:"available"`
	Projects  []ProjectRecord `json:"projects"`
}

// CreatorProject is a project owned by the connected account.
type CreatorProject struct {
	ProjectRecord
	Revenue RevenueSnapshot `json:"revenueInfo"`
}

// CreatorView is the creator dashboard for the connected account.
type CreatorView struct {
	Available bool             `json:"available"`
	Connected bool             `json:"connected"`
	Account   common.Address   `json:"account"`
	Projects  []CreatorProject `json:"projects"`
}

// PortfolioView is an investor's position in one project. Balance and
// TotalSupply are whole FCAT unit counts. Balance and Claimable are only
// filled when a wallet is connected.
type PortfolioView struct {
	Available   bool            `json:"available"`
	Account     common.Address  `json:"account"`
	Token       common.Address  `json:"token"`
	Symbol      string          `json:"symbol,omitempty"`
	Balance     string          `json:"balance,omitempty"`
	TotalSupply string          `json:"totalSupply"`
	Revenue     RevenueSnapshot `json:"revenueInfo"`
}

// LaunchRequest is the creator's input for a new project.
type LaunchRequest struct {
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	AssetURI      string `json:"assetURI"`
	InitialSupply string `json:"initialSupply"` // integer FCAT units
	PriceEther    string `json:"priceEther"`    // price per unit in ether
}

// ActionResult reports the outcome of one write action. Status is always a
// human-readable message, for failures as well as successes.
type ActionResult struct {
	Action string      `json:"action"`
	OK     bool        `json:"ok"`
	Status string      `json:"status"`
	TxHash common.Hash `json:"txHash,omitempty"`

	// ProjectID is the latest project id read after a launch.
	ProjectID *uint64 `json:"projectId,omitempty"`

	// Refreshed views, re-read after a confirmed write.
	Marketplace *MarketplaceView `json:"marketplace,omitempty"`
	Creator     *CreatorView     `json:"creator,omitempty"`
	Portfolio   *PortfolioView   `json:"portfolio,omitempty"`
}
