package service

import (
	"context"
	"log/slog"

	"github.com/efreitasn/stockledger/internal/domain"
	"github.com/efreitasn/stockledger/internal/quote"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Holding is one position valued at the current market price. Priced is
// false when no quote could be obtained; such holdings carry no Value and
// are left out of the totals.
type Holding struct {
	Symbol   string
	Name     string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Value    decimal.Decimal
	Priced   bool
}

// Portfolio is an account valued at current prices.
type Portfolio struct {
	UserID        string
	Cash          decimal.Decimal
	Holdings      []Holding
	HoldingsValue decimal.Decimal
	Total         decimal.Decimal
}

// Portfolio values every position of the user at a freshly fetched price.
// Cash and positions come from a single consistent snapshot.
func (s *LedgerService) Portfolio(ctx context.Context, userID string) (*Portfolio, error) {
	acct, positions, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	holdings := make([]Holding, len(positions))
	var g errgroup.Group
	g.SetLimit(s.valuation)
	for i, p := range positions {
		i, p := i, p
		holdings[i] = Holding{Symbol: p.Symbol, Quantity: p.Quantity}
		g.Go(func() error {
			q, err := s.lookup(ctx, p.Symbol)
			if err != nil {
				s.logger.Debug("holding left unpriced",
					slog.String("user_id", userID),
					slog.String("symbol", p.Symbol),
				)
				return nil
			}
			h := &holdings[i]
			h.Name = q.Name
			h.Price = q.Price
			h.Value = q.Price.Mul(p.Quantity)
			h.Priced = true
			return nil
		})
	}
	_ = g.Wait() // lookups never return an error

	total := decimal.Zero
	for _, h := range holdings {
		if h.Priced {
			total = total.Add(h.Value)
		}
	}

	return &Portfolio{
		UserID:        acct.UserID,
		Cash:          acct.CashBalance,
		Holdings:      holdings,
		HoldingsValue: total,
		Total:         total.Add(acct.CashBalance),
	}, nil
}

// Quote returns the current quote for symbol, as shown to a user before
// trading.
func (s *LedgerService) Quote(ctx context.Context, symbol string) (quote.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return quote.Quote{}, &domain.ValidationError{Message: "symbol is required"}
	}
	return s.lookup(ctx, symbol)
}
