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
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Errors returned by the contract gateways.
var (
	ErrNotConnected = errors.New("fractal: wallet not connected")
	ErrReverted     = errors.New("fractal: transaction reverted")
	ErrTimeout      = errors.New("fractal: confirmation not observed in time")
	ErrRejected     = errors.New("fractal: transaction rejected by signer")
)

// TxError is a classified transaction failure. It matches its Kind with
// errors.Is and unwraps to the underlying cause.
type TxError struct {
	Kind   error  // one of ErrReverted, ErrTimeout or ErrRejected
	Reason string // revert reason reported by the chain, if any
	Err    error
}

func (e *TxError) Error() string {
	msg := e.Kind.Error()
	switch {
	case e.Reason != "":
		msg += ": " + e.Reason
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TxError) Is(target error) bool { return target == e.Kind }

func (e *TxError) Unwrap() error { return e.Err }

// classify maps a raw backend or signer error onto the gateway taxonomy.
// Errors that fit no category are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var txErr *TxError
	if errors.As(err, &txErr) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &TxError{Kind: ErrTimeout, Err: err}
	case isRejection(err):
		return &TxError{Kind: ErrRejected, Err: err}
	}
	if reason, ok := revertReason(err); ok {
		return &TxError{Kind: ErrReverted, Reason: reason, Err: err}
	}
	return err
}

func isRejection(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "denied") ||
		strings.Contains(msg, "rejected") ||
		strings.Contains(msg, "user canceled")
}

// revertReason extracts the revert reason from an execution error, first
// from the structured error data, then from the message text.
func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if data, derr := hexutil.Decode(hexData); derr == nil {
				if reason, uerr := abi.UnpackRevert(data); uerr == nil {
					return reason, true
				}
			}
		}
	}
	msg := err.Error()
	i := strings.Index(msg, "execution reverted")
	if i < 0 {
		return "", false
	}
	reason := strings.TrimPrefix(msg[i+len("execution reverted"):], ":")
	return strings.TrimSpace(reason), true
}
