// Package chain verifies ledger transactions and reports the native-coin value
// they moved.
package chain

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=verifier.go -destination=mocks/mock_verifier.go -package=mocks

// Verifier fetches the verified native-coin amount moved by a transaction.
// The amount is the sum of absolute balance changes in the native coin and
// is never negative; zero means the transaction moved no native coin.
type Verifier interface {
	FetchVerifiedAmount(ctx context.Context, txReference string) (decimal.Decimal, error)
}

// SameCoinType compares Move coin types, treating short and zero-padded
// package addresses (0x2 and 0x000...02) as equal.
func SameCoinType(a, b string) bool {
	return normalizeCoinType(a) == normalizeCoinType(b)
}

func normalizeCoinType(t string) string {
	t = strings.TrimSpace(t)
	addr, rest, ok := strings.Cut(t, "::")
	if !ok {
		return strings.ToLower(t)
	}
	addr = strings.TrimPrefix(strings.ToLower(addr), "0x")
	addr = strings.TrimLeft(addr, "0")
	if addr == "" {
		addr = "0"
	}
	return "0x" + addr + "::" + rest
}
