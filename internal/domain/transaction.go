package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind distinguishes purchases from sales in the transaction log.
type TransactionKind string

const (
	TransactionKindBuy  TransactionKind = "BUY"
	TransactionKindSell TransactionKind = "SELL"
)

// Valid reports whether k is one of the known kinds.
func (k TransactionKind) Valid() bool {
	return k == TransactionKindBuy || k == TransactionKindSell
}

// TransactionRecord is an immutable audit entry for one executed trade.
// ID is assigned by the store and strictly increases in creation order.
type TransactionRecord struct {
	ID        int64
	UserID    string
	Symbol    string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Kind      TransactionKind
	Timestamp time.Time
}

// Total returns price × quantity.
func (r *TransactionRecord) Total() decimal.Decimal {
	return r.Price.Mul(r.Quantity)
}

// SignedQuantity returns the quantity as it affects the position:
// positive for buys, negative for sells.
func (r *TransactionRecord) SignedQuantity() decimal.Decimal {
	if r.Kind == TransactionKindSell {
		return r.Quantity.Neg()
	}
	return r.Quantity
}
