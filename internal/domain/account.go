package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds a user's cash balance. There is exactly one per user.
type Account struct {
	UserID      string
	CashBalance decimal.Decimal
	CreatedAt   time.Time
}

// Position is a user's non-zero holding of a single symbol. A position
// whose quantity reaches zero is removed, never stored as zero.
type Position struct {
	UserID   string
	Symbol   string
	Quantity decimal.Decimal
}
