// Package quote provides current share prices. The ledger treats any
// failure from a Source as an unknown symbol.
package quote

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when the provider does not know the symbol.
var ErrNotFound = errors.New("quote: symbol not found")

// Quote is a provider's current view of one symbol.
type Quote struct {
	Symbol string
	Name   string
	Price  decimal.Decimal
}

// Source looks up the current price of a symbol.
type Source interface {
	Lookup(ctx context.Context, symbol string) (Quote, error)
}
