package service

import (
	"context"
	"log/slog"

	"github.com/efreitasn/stockledger/internal/domain"
	"github.com/shopspring/decimal"
)

// OpenAccount registers a cash account for userID. A nil initialCash
// opens the account with the configured default balance.
func (s *LedgerService) OpenAccount(ctx context.Context, userID string, initialCash *decimal.Decimal) (*domain.Account, error) {
	if !userIDRegex.MatchString(userID) {
		return nil, &domain.ValidationError{
			Message: "user_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}

	cash := s.initialCash
	if initialCash != nil {
		cash = *initialCash
	}
	if cash.IsNegative() {
		return nil, &domain.ValidationError{Message: "initial_cash must be >= 0"}
	}
	cash, err := domain.Bound("initial_cash", cash)
	if err != nil {
		return nil, err
	}

	acct, err := s.store.CreateAccount(ctx, userID, cash)
	if err != nil {
		return nil, err
	}
	s.logger.Info("account opened",
		slog.String("user_id", acct.UserID),
		slog.String("cash", acct.CashBalance.String()),
	)
	return acct, nil
}

// Cash returns the user's current cash balance.
func (s *LedgerService) Cash(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.store.GetCash(ctx, userID)
}

// Positions returns the user's holdings ordered by symbol.
func (s *LedgerService) Positions(ctx context.Context, userID string) ([]domain.Position, error) {
	return s.store.ListPositions(ctx, userID)
}

// Transactions returns the user's trade history in chronological order.
func (s *LedgerService) Transactions(ctx context.Context, userID string) ([]domain.TransactionRecord, error) {
	return s.store.ListTransactions(ctx, userID)
}
