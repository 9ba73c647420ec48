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
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	gateway "github.com/fractalfi/fractal/contracts/fractal"
	"github.com/fractalfi/fractal/wallet"
	"golang.org/x/sync/errgroup"
)

// Config holds the fixed contract addresses the service talks to.
type Config struct {
	Registry common.Address // project registry, scanned by every listing
	Factory  common.Address // launchProject target; zero means Registry

	// Home project shown by the portfolio when none is given.
	HomeToken   common.Address
	HomeRevenue common.Address
}

// Service composes the wallet session and the contract gateways into the
// client views:
//  1. obtain a client from the session
//  2. read the relevant contract state
//  3. on a user action, submit exactly one write and wait for it
//  4. re-read the affected state
//
// Gateways are rebuilt from the session's current client on every call, so
// a reconnect never leaves a stale handle behind.
type Service struct {
	session *wallet.Session
	config  Config

	mu       sync.Mutex
	inflight map[string]struct{} // action guards, see acquire
}

// NewService creates a service over session.
func NewService(session *wallet.Session, config Config) *Service {
	if config.Factory == (common.Address{}) {
		config.Factory = config.Registry
	}
	return &Service{
		session:  session,
		config:   config,
		inflight: make(map[string]struct{}),
	}
}

// Session returns the wallet session the service acts through.
func (s *Service) Session() *wallet.Session { return s.session }

// ──────────────────────────────────────────────
//  Views
// ──────────────────────────────────────────────

// Marketplace lists all registered projects. When the chain cannot be read
// the view is returned empty with Available unset.
func (s *Service) Marketplace(ctx context.Context) *MarketplaceView {
	view := &MarketplaceView{Projects: []ProjectRecord{}}
	client, ok := s.session.ReadClient(ctx)
	if !ok {
		return view
	}
	projects, err := s.scan(ctx, client)
	if err != nil {
		log.Warn("Registry scan failed", "registry", s.config.Registry, "err", err)
		return view
	}
	view.Available, view.Projects = true, projects
	return view
}

// scan reads projectCount() entries from the registry in order.
func (s *Service) scan(ctx context.Context, client wallet.Client) ([]ProjectRecord, error) {
	registry, err := gateway.NewRegistry(s.config.Registry, client)
	if err != nil {
		return nil, err
	}
	count, err := registry.ProjectCount(ctx)
	if err != nil {
		return nil, err
	}
	if !count.IsUint64() {
		return nil, fmt.Errorf("project count %v out of range", count)
	}
	n := count.Uint64()
	projects := make([]ProjectRecord, 0, n)
	for id := uint64(0); id < n; id++ {
		p, err := registry.GetProject(ctx, new(big.Int).SetUint64(id))
		if err != nil {
			return nil, fmt.Errorf("project %d: %w", id, err)
		}
		projects = append(projects, ProjectRecord{
			ID:       id,
			Creator:  p.Creator,
			Token:    p.Token,
			Revenue:  p.Revenue,
			AssetURI: p.AssetURI,
		})
	}
	return projects, nil
}

// CreatorProjects lists the projects created by the connected account,
// each with its revenue position. Without a connected wallet the view is
// empty with Connected unset.
func (s *Service) CreatorProjects(ctx context.Context) *CreatorView {
	view := &CreatorView{Projects: []CreatorProject{}}
	account := s.session.Address()
	if account == (common.Address{}) {
		return view
	}
	view.Connected, view.Account = true, account

	client, ok := s.session.ReadClient(ctx)
	if !ok {
		return view
	}
	projects, err := s.creatorProjects(ctx, client, account)
	if err != nil {
		log.Warn("Creator dashboard read failed", "account", account, "err", err)
		return view
	}
	view.Available, view.Projects = true, projects
	return view
}

func (s *Service) creatorProjects(ctx context.Context, client wallet.Client, account common.Address) ([]CreatorProject, error) {
	all, err := s.scan(ctx, client)
	if err != nil {
		return nil, err
	}
	var owned []CreatorProject
	for _, p := range all {
		if p.Creator != account {
			continue
		}
		revenue, err := gateway.NewRevenue(p.Revenue, client)
		if err != nil {
			return nil, err
		}
		total, err := revenue.TotalRevenue(ctx)
		if err != nil {
			return nil, fmt.Errorf("project %d: %w", p.ID, err)
		}
		share, err := revenue.CreatorShareInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("project %d: %w", p.ID, err)
		}
		owned = append(owned, CreatorProject{
			ProjectRecord: p,
			Revenue: RevenueSnapshot{
				TotalRevenue:     FormatEther(total),
				CreatorGross:     FormatEther(share.Gross),
				CreatorClaimed:   FormatEther(share.Claimed),
				CreatorRemaining: FormatEther(share.Remaining),
			},
		})
	}
	if owned == nil {
		owned = []CreatorProject{}
	}
	return owned, nil
}

// Portfolio reads an investor's position in one project. Zero addresses
// select the configured home project. The reads are independent and run
// concurrently.
func (s *Service) Portfolio(ctx context.Context, token, revenue common.Address) *PortfolioView {
	token, revenue = s.home(token, revenue)
	view := &PortfolioView{Account: s.session.Address(), Token: token}

	client, ok := s.session.ReadClient(ctx)
	if !ok {
		return view
	}
	if err := s.portfolio(ctx, client, view, revenue); err != nil {
		log.Warn("Portfolio read failed", "token", token, "revenue", revenue, "err", err)
		return &PortfolioView{Account: view.Account, Token: token}
	}
	view.Available = true
	return view
}

func (s *Service) portfolio(ctx context.Context, client wallet.Client, view *PortfolioView, revenueAddr common.Address) error {
	token, err := gateway.NewToken(view.Token, client)
	if err != nil {
		return err
	}
	revenue, err := gateway.NewRevenue(revenueAddr, client)
	if err != nil {
		return err
	}
	var (
		balance, supply         *big.Int
		claimable, total, price *big.Int
	)
	account := view.Account
	connected := account != (common.Address{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { view.Symbol, err = token.Symbol(gctx); return })
	g.Go(func() (err error) { supply, err = token.TotalSupply(gctx); return })
	g.Go(func() (err error) { total, err = revenue.TotalRevenue(gctx); return })
	g.Go(func() (err error) { price, err = revenue.PricePerTokenWei(gctx); return })
	if connected {
		g.Go(func() (err error) { balance, err = token.BalanceOf(gctx, account); return })
		g.Go(func() (err error) { claimable, err = revenue.Claimable(gctx, account); return })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	view.TotalSupply = supply.String()
	view.Revenue = RevenueSnapshot{
		TotalRevenue: FormatEther(total),
		PricePerUnit: FormatEther(price),
	}
	if connected {
		view.Balance = balance.String()
		view.Revenue.Claimable = FormatEther(claimable)
	}
	return nil
}

// home substitutes the configured home project for zero addresses.
func (s *Service) home(token, revenue common.Address) (common.Address, common.Address) {
	if token == (common.Address{}) {
		token = s.config.HomeToken
	}
	if revenue == (common.Address{}) {
		revenue = s.config.HomeRevenue
	}
	return token, revenue
}

// target resolves the revenue contract a write goes to. Zero selects the
// home project; with no home project configured the action is refused.
func (s *Service) target(action string, token, revenue common.Address) (common.Address, common.Address, error) {
	token, revenue = s.home(token, revenue)
	if revenue == (common.Address{}) {
		return token, revenue, fmt.Errorf("%w: %s needs a revenue contract address", ErrInvalidInput, action)
	}
	return token, revenue, nil
}

// ──────────────────────────────────────────────
//  Actions
// ──────────────────────────────────────────────

// LaunchProject creates a new project. The price is converted from ether
// to wei here, once.
func (s *Service) LaunchProject(ctx context.Context, req *LaunchRequest) (*ActionResult, error) {
	if req == nil {
		return failed(ActionLaunch, fmt.Errorf("%w: missing launch request", ErrInvalidInput))
	}
	name, symbol := strings.TrimSpace(req.Name), strings.TrimSpace(req.Symbol)
	assetURI := strings.TrimSpace(req.AssetURI)
	if name == "" || symbol == "" || assetURI == "" {
		return failed(ActionLaunch, fmt.Errorf("%w: name, symbol and asset URI are required", ErrInvalidInput))
	}
	supply, ok := new(big.Int).SetString(strings.TrimSpace(req.InitialSupply), 10)
	if !ok || supply.Sign() < 0 {
		return failed(ActionLaunch, fmt.Errorf("%w: initial supply %q is not a whole number", ErrInvalidInput, req.InitialSupply))
	}
	price, err := ParseEther(req.PriceEther)
	if err != nil {
		return failed(ActionLaunch, err)
	}
	if price.Sign() < 0 {
		return failed(ActionLaunch, fmt.Errorf("%w: negative price", ErrInvalidInput))
	}
	res, err := s.submit(ctx, ActionLaunch, s.config.Factory, func(client wallet.Client, opts *bind.TransactOpts) (*gateway.PendingTx, error) {
		factory, err := gateway.NewRegistry(s.config.Factory, client)
		if err != nil {
			return nil, err
		}
		return factory.LaunchProject(opts, name, symbol, assetURI, supply, price)
	})
	if err != nil || ctx.Err() != nil {
		return res, err
	}
	res.Marketplace = s.Marketplace(ctx)
	if n := len(res.Marketplace.Projects); n > 0 {
		id := res.Marketplace.Projects[n-1].ID
		res.ProjectID = &id
	}
	return res, nil
}

// Buy purchases units FCAT from a project's revenue contract, attaching
// exactly units × pricePerTokenWei. Zero addresses select the home project.
func (s *Service) Buy(ctx context.Context, token, revenueAddr common.Address, units uint64) (*ActionResult, error) {
	if units == 0 {
		return failed(ActionBuy, fmt.Errorf("%w: unit count must be positive", ErrInvalidInput))
	}
	token, revenueAddr, err := s.target(ActionBuy, token, revenueAddr)
	if err != nil {
		return failed(ActionBuy, err)
	}
	res, err := s.submit(ctx, ActionBuy, revenueAddr, func(client wallet.Client, opts *bind.TransactOpts) (*gateway.PendingTx, error) {
		revenue, err := gateway.NewRevenue(revenueAddr, client)
		if err != nil {
			return nil, err
		}
		price, err := revenue.PricePerTokenWei(ctx)
		if err != nil {
			return nil, err
		}
		return revenue.Buy(opts, new(big.Int).SetUint64(units), QuoteBuy(units, price))
	})
	if err != nil || ctx.Err() != nil {
		return res, err
	}
	res.Portfolio = s.Portfolio(ctx, token, revenueAddr)
	return res, nil
}

// Deposit sends amountEther to a revenue contract as external revenue.
// Non-positive amounts are refused before anything touches the network.
func (s *Service) Deposit(ctx context.Context, revenueAddr common.Address, amountEther string) (*ActionResult, error) {
	value, err := ParseEther(amountEther)
	if err != nil {
		return failed(ActionDeposit, err)
	}
	if value.Sign() <= 0 {
		return failed(ActionDeposit, fmt.Errorf("%w: deposit must be positive", ErrInvalidInput))
	}
	if _, revenueAddr, err = s.target(ActionDeposit, common.Address{}, revenueAddr); err != nil {
		return failed(ActionDeposit, err)
	}
	res, err := s.submit(ctx, ActionDeposit, revenueAddr, func(client wallet.Client, opts *bind.TransactOpts) (*gateway.PendingTx, error) {
		revenue, err := gateway.NewRevenue(revenueAddr, client)
		if err != nil {
			return nil, err
		}
		return revenue.Deposit(opts, value)
	})
	if err != nil || ctx.Err() != nil {
		return res, err
	}
	res.Creator = s.CreatorProjects(ctx)
	return res, nil
}

// ClaimRevenue pays out the connected account's claimable share.
func (s *Service) ClaimRevenue(ctx context.Context, token, revenueAddr common.Address) (*ActionResult, error) {
	token, revenueAddr, err := s.target(ActionClaim, token, revenueAddr)
	if err != nil {
		return failed(ActionClaim, err)
	}
	res, err := s.submit(ctx, ActionClaim, revenueAddr, func(client wallet.Client, opts *bind.TransactOpts) (*gateway.PendingTx, error) {
		revenue, err := gateway.NewRevenue(revenueAddr, client)
		if err != nil {
			return nil, err
		}
		return revenue.ClaimRevenue(opts)
	})
	if err != nil || ctx.Err() != nil {
		return res, err
	}
	res.Portfolio = s.Portfolio(ctx, token, revenueAddr)
	return res, nil
}

// CreatorWithdraw pays out the creator's remaining share of a project.
func (s *Service) CreatorWithdraw(ctx context.Context, revenueAddr common.Address) (*ActionResult, error) {
	_, revenueAddr, err := s.target(ActionWithdraw, common.Address{}, revenueAddr)
	if err != nil {
		return failed(ActionWithdraw, err)
	}
	res, err := s.submit(ctx, ActionWithdraw, revenueAddr, func(client wallet.Client, opts *bind.TransactOpts) (*gateway.PendingTx, error) {
		revenue, err := gateway.NewRevenue(revenueAddr, client)
		if err != nil {
			return nil, err
		}
		return revenue.CreatorWithdraw(opts)
	})
	if err != nil || ctx.Err() != nil {
		return res, err
	}
	res.Creator = s.CreatorProjects(ctx)
	return res, nil
}

type sendFunc func(client wallet.Client, opts *bind.TransactOpts) (*gateway.PendingTx, error)

// submit runs one write action: guard, send, confirm. The returned result
// always carries a status message; err is the classified failure.
func (s *Service) submit(ctx context.Context, action string, target common.Address, send sendFunc) (*ActionResult, error) {
	release, err := s.acquire(action, target)
	if err != nil {
		return failed(action, err)
	}
	defer release()

	client, opts := s.session.Transactor(ctx)
	if client == nil || opts == nil {
		return failed(action, gateway.ErrNotConnected)
	}
	tx, err := send(client, opts)
	if err != nil {
		log.Warn("Transaction submission failed", "action", action, "target", target, "err", err)
		return failed(action, err)
	}
	log.Info("Transaction submitted", "action", action, "target", target, "tx", tx.Hash())

	res := &ActionResult{Action: action, TxHash: tx.Hash()}
	if _, err := tx.Wait(ctx); err != nil {
		log.Warn("Transaction failed", "action", action, "tx", tx.Hash(), "err", err)
		res.Status = StatusMessage(err)
		return res, err
	}
	log.Info("Transaction confirmed", "action", action, "tx", tx.Hash())
	res.OK = true
	res.Status = fmt.Sprintf("%s (tx %s)", doneMessages[action], tx.Hash().Hex()[:10])
	return res, nil
}

// acquire marks action on target as in flight. A second trigger while the
// first is pending is refused rather than queued.
func (s *Service) acquire(action string, target common.Address) (func(), error) {
	key := action + "/" + target.Hex()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return nil, ErrBusy
	}
	s.inflight[key] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}, nil
}

// Connect connects the session through c and reports the outcome as an
// action result.
func (s *Service) Connect(ctx context.Context, c wallet.Connector) (*ActionResult, error) {
	if err := s.session.Connect(ctx, c); err != nil {
		return failed(ActionConnect, err)
	}
	return &ActionResult{Action: ActionConnect, OK: true, Status: doneMessages[ActionConnect]}, nil
}

func failed(action string, err error) (*ActionResult, error) {
	return &ActionResult{Action: action, Status: StatusMessage(err)}, err
}
