package domain

import "github.com/shopspring/decimal"

// Mutation describes one atomic change to an account: a cash delta, an
// optional position delta for Symbol, and an optional transaction record.
// Deposits carry only CashDelta.
type Mutation struct {
	UserID        string
	CashDelta     decimal.Decimal
	Symbol        string
	QuantityDelta decimal.Decimal
	Record        *TransactionRecord
}

// Validate checks that the mutation is internally consistent. It does not
// look at stored state; funds and shares are checked by the store.
func (m Mutation) Validate() error {
	if m.UserID == "" {
		return &ValidationError{Message: "user_id is required"}
	}
	if m.Symbol == "" {
		if !m.QuantityDelta.IsZero() {
			return &ValidationError{Message: "quantity delta requires a symbol"}
		}
		if m.Record != nil {
			return &ValidationError{Message: "transaction record requires a symbol"}
		}
		return nil
	}
	if m.QuantityDelta.IsZero() {
		return &ValidationError{Message: "quantity delta must be non-zero for " + m.Symbol}
	}
	if m.Record == nil {
		return nil
	}
	r := m.Record
	switch {
	case r.UserID != m.UserID:
		return &ValidationError{Message: "transaction user does not match mutation user"}
	case r.Symbol != m.Symbol:
		return &ValidationError{Message: "transaction symbol does not match mutation symbol"}
	case !r.Kind.Valid():
		return &ValidationError{Message: "transaction kind must be BUY or SELL"}
	case !r.Quantity.IsPositive():
		return &ValidationError{Message: "transaction quantity must be > 0"}
	case !r.Price.IsPositive():
		return &ValidationError{Message: "transaction price must be > 0"}
	case !r.SignedQuantity().Equal(m.QuantityDelta):
		return &ValidationError{Message: "transaction quantity does not match quantity delta"}
	}
	return nil
}
