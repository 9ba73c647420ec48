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

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractalfi/fractal/wallet"
)

// API exposes the service over JSON-RPC. Method namespace: "fractal".
//
// Write methods never return an RPC error: failures come back as an
// ActionResult with OK unset and a status message, so a client only has to
// render the status.
type API struct {
	service    *Service
	connectors map[string]wallet.Connector
}

// NewAPI creates a JSON-RPC API backed by service. connectors are the
// connection methods offered to fractal_connect, keyed by Method().
func NewAPI(service *Service, connectors ...wallet.Connector) *API {
	api := &API{service: service, connectors: make(map[string]wallet.Connector)}
	for _, c := range connectors {
		api.connectors[c.Method()] = c
	}
	return api
}

// Marketplace handles "fractal_marketplace" RPC calls.
func (api *API) Marketplace(ctx context.Context) *MarketplaceView {
	return api.service.Marketplace(ctx)
}

// CreatorProjects handles "fractal_creatorProjects" RPC calls.
func (api *API) CreatorProjects(ctx context.Context) *CreatorView {
	return api.service.CreatorProjects(ctx)
}

// Portfolio handles "fractal_portfolio" RPC calls. Omitted addresses
// select the home project.
func (api *API) Portfolio(ctx context.Context, token, revenue *common.Address) *PortfolioView {
	return api.service.Portfolio(ctx, deref(token), deref(revenue))
}

// LaunchProject handles "fractal_launchProject" RPC calls.
func (api *API) LaunchProject(ctx context.Context, req LaunchRequest) *ActionResult {
	res, _ := api.service.LaunchProject(ctx, &req)
	return res
}

// Buy handles "fractal_buy" RPC calls.
func (api *API) Buy(ctx context.Context, token, revenue common.Address, units uint64) *ActionResult {
	res, _ := api.service.Buy(ctx, token, revenue, units)
	return res
}

// Deposit handles "fractal_deposit" RPC calls. amount is in ether.
func (api *API) Deposit(ctx context.Context, revenue common.Address, amount string) *ActionResult {
	res, _ := api.service.Deposit(ctx, revenue, amount)
	return res
}

// ClaimRevenue handles "fractal_claimRevenue" RPC calls.
func (api *API) ClaimRevenue(ctx context.Context, token, revenue common.Address) *ActionResult {
	res, _ := api.service.ClaimRevenue(ctx, token, revenue)
	return res
}

// CreatorWithdraw handles "fractal_creatorWithdraw" RPC calls.
func (api *API) CreatorWithdraw(ctx context.Context, revenue common.Address) *ActionResult {
	res, _ := api.service.CreatorWithdraw(ctx, revenue)
	return res
}

// Session handles "fractal_session" RPC calls.
func (api *API) Session() wallet.Info {
	return api.service.Session().Info()
}

// Connect handles "fractal_connect" RPC calls.
func (api *API) Connect(ctx context.Context, method string) *ActionResult {
	c, ok := api.connectors[method]
	if !ok {
		res, _ := failed(ActionConnect, wallet.ErrNoProvider)
		return res
	}
	res, _ := api.service.Connect(ctx, c)
	return res
}

// Disconnect handles "fractal_disconnect" RPC calls.
func (api *API) Disconnect() wallet.Info {
	api.service.Session().Disconnect()
	return api.service.Session().Info()
}

func deref(addr *common.Address) common.Address {
	if addr == nil {
		return common.Address{}
	}
	return *addr
}
