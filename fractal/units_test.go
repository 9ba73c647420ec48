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
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEther_IsExact(t *testing.T) {
	tests := map[string]string{
		"0.0003":               "300000000000000",
		"1":                    "1000000000000000000",
		"1.5":                  "1500000000000000000",
		".5":                   "500000000000000000",
		"2.":                   "2000000000000000000",
		" 0.25 ":               "250000000000000000",
		"+3":                   "3000000000000000000",
		"-0.1":                 "-100000000000000000",
		"0":                    "0",
		"0.000000000000000001": "1",
		"123456789.123456789":  "123456789123456789000000000",
	}
	for in, want := range tests {
		got, err := ParseEther(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got.String(), in)
	}
}

func TestParseUnits_RejectsMalformedInput(t *testing.T) {
	for _, in := range []string{"", " ", ".", "-", "abc", "1e18", "1,5", "0x10", "1.2.3", "--1", "-+5", "+-5", "++5"} {
		_, err := ParseEther(in)
		require.ErrorIs(t, err, ErrInvalidInput, in)
	}
	_, err := ParseUnits("1.001", 2)
	require.ErrorIs(t, err, ErrInvalidInput)

	v, err := ParseUnits("1.01", 2)
	require.NoError(t, err)
	require.Equal(t, int64(101), v.Int64())
}

func TestFormatUnits_KeepsOneFractionalDigit(t *testing.T) {
	tests := []struct {
		wei  string
		want string
	}{
		{"0", "0.0"},
		{"2000000000000000000", "2.0"},
		{"500000000000000000", "0.5"},
		{"1500000000000000000", "1.5"},
		{"300000000000000", "0.0003"},
		{"1", "0.000000000000000001"},
		{"-250000000000000000", "-0.25"},
	}
	for _, test := range tests {
		v, ok := new(big.Int).SetString(test.wei, 10)
		require.True(t, ok)
		require.Equal(t, test.want, FormatEther(v))
	}
	require.Equal(t, "0.0", FormatEther(nil))
	require.Equal(t, "42.0", FormatUnits(big.NewInt(42), 0))
	require.Equal(t, "0.42", FormatUnits(big.NewInt(42), 2))
}

func TestQuoteBuy_MultipliesExactly(t *testing.T) {
	price, err := ParseEther("0.0003")
	require.NoError(t, err)
	require.Equal(t, "300000000000000", QuoteBuy(1, price).String())
	require.Equal(t, "18000000000000000000", QuoteBuy(60000, price).String())
	require.Zero(t, QuoteBuy(0, price).Sign())
}
