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
	"errors"

	gateway "github.com/fractalfi/fractal/contracts/fractal"
	"github.com/fractalfi/fractal/wallet"
)

// Errors returned by the service before anything is submitted.
var (
	ErrInvalidInput = errors.New("fractal: invalid input")
	ErrBusy         = errors.New("fractal: action already pending")
)

// Actions, also used as in-flight guard keys.
const (
	ActionLaunch   = "launch"
	ActionBuy      = "buy"
	ActionDeposit  = "deposit"
	ActionClaim    = "claim"
	ActionWithdraw = "withdraw"
	ActionConnect  = "connect"
)

var doneMessages = map[string]string{
	ActionLaunch:   "Project created",
	ActionBuy:      "FCAT purchased successfully",
	ActionDeposit:  "External revenue deposited",
	ActionClaim:    "Revenue claimed",
	ActionWithdraw: "Creator earnings withdrawn",
	ActionConnect:  "Wallet connected",
}

// StatusMessage converts an error from any layer into a message fit for
// display. A nil error yields the empty string.
func StatusMessage(err error) string {
	if err == nil {
		return ""
	}
	var txErr *gateway.TxError
	switch {
	case errors.Is(err, wallet.ErrNoProvider):
		return "No wallet provider found. Configure a keystore or an external signer."
	case errors.Is(err, wallet.ErrUserRejected):
		return "The wallet connection was rejected."
	case errors.Is(err, wallet.ErrRelayUnavailable):
		return "The signer or RPC endpoint is unreachable."
	case errors.Is(err, wallet.ErrWrongChain):
		return "The wallet is attached to the wrong network."
	case errors.Is(err, wallet.ErrConnecting):
		return "A wallet connection is already in progress."
	case errors.Is(err, wallet.ErrCancelled):
		return "The wallet connection was cancelled."
	case errors.Is(err, gateway.ErrNotConnected):
		return "Connect a wallet first."
	case errors.Is(err, gateway.ErrRejected):
		return "The transaction was rejected in the wallet."
	case errors.Is(err, gateway.ErrTimeout):
		return "Confirmation was not observed in time. The transaction may still be mined."
	case errors.Is(err, gateway.ErrReverted):
		if errors.As(err, &txErr) && txErr.Reason != "" {
			return "Transaction reverted: " + txErr.Reason
		}
		return "Transaction reverted."
	case errors.Is(err, ErrBusy):
		return "This action is still pending. Wait for it to settle."
	}
	return err.Error()
}
