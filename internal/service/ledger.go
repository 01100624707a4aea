package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/efreitasn/stockledger/internal/domain"
	"github.com/efreitasn/stockledger/internal/quote"
	"github.com/shopspring/decimal"
)

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// DefaultInitialCash is the starting balance of a newly opened account.
var DefaultInitialCash = decimal.NewFromInt(10000)

// AccountStore is the durable state the ledger reads and mutates.
// ApplyMutation must be atomic per account.
type AccountStore interface {
	CreateAccount(ctx context.Context, userID string, initialCash decimal.Decimal) (*domain.Account, error)
	GetCash(ctx context.Context, userID string) (decimal.Decimal, error)
	GetPosition(ctx context.Context, userID, symbol string) (decimal.Decimal, bool, error)
	ListPositions(ctx context.Context, userID string) ([]domain.Position, error)
	ListTransactions(ctx context.Context, userID string) ([]domain.TransactionRecord, error)
	Snapshot(ctx context.Context, userID string) (*domain.Account, []domain.Position, error)
	ApplyMutation(ctx context.Context, m domain.Mutation) (*domain.TransactionRecord, error)
}

// LedgerService executes buys, sells and deposits against an AccountStore,
// pricing trades with a quote.Source. It keeps no balances of its own;
// every call re-reads the store, so it is safe for concurrent use.
type LedgerService struct {
	store       AccountStore
	quotes      quote.Source
	logger      *slog.Logger
	now         func() time.Time
	initialCash decimal.Decimal
	valuation   int
}

// Option configures a LedgerService.
type Option func(*LedgerService)

// WithClock sets the time source used for transaction timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) {
		s.now = now
	}
}

// WithInitialCash sets the balance given to accounts opened without one.
func WithInitialCash(d decimal.Decimal) Option {
	return func(s *LedgerService) {
		s.initialCash = d
	}
}

// WithValuationConcurrency bounds parallel quote lookups in Portfolio.
func WithValuationConcurrency(n int) Option {
	return func(s *LedgerService) {
		if n > 0 {
			s.valuation = n
		}
	}
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(store AccountStore, quotes quote.Source, logger *slog.Logger, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:       store,
		quotes:      quotes,
		logger:      logger,
		now:         time.Now,
		initialCash: DefaultInitialCash,
		valuation:   4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// validateTrade checks the inputs shared by Buy and Sell and returns the
// normalized symbol.
func validateTrade(userID, symbol string, quantity decimal.Decimal) (string, error) {
	if userID == "" {
		return "", &domain.ValidationError{Message: "user_id is required"}
	}
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return "", &domain.ValidationError{Message: "symbol is required"}
	}
	if !quantity.IsPositive() {
		return "", &domain.ValidationError{Message: "shares must be > 0"}
	}
	if _, err := domain.Bound("shares", quantity); err != nil {
		return "", err
	}
	return symbol, nil
}

// lookup fetches a fresh quote. Any provider failure, and any quote
// without a positive price, is reported as domain.ErrUnknownSymbol.
func (s *LedgerService) lookup(ctx context.Context, symbol string) (quote.Quote, error) {
	q, err := s.quotes.Lookup(ctx, symbol)
	if err != nil {
		if !errors.Is(err, quote.ErrNotFound) {
			s.logger.Warn("quote lookup failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
		return quote.Quote{}, fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, symbol)
	}
	price, err := domain.Bound("price", q.Price)
	if err != nil {
		s.logger.Warn("quote price out of range",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return quote.Quote{}, fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, symbol)
	}
	q.Price = price
	if !q.Price.IsPositive() {
		s.logger.Warn("quote has non-positive price",
			slog.String("symbol", symbol),
			slog.String("price", q.Price.String()),
		)
		return quote.Quote{}, fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, symbol)
	}
	return q, nil
}

// Buy purchases quantity shares of symbol at the current quoted price.
// On success exactly one BUY record exists for the trade and the position
// has grown by quantity.
func (s *LedgerService) Buy(ctx context.Context, userID, symbol string, quantity decimal.Decimal) (*domain.TransactionRecord, error) {
	symbol, err := validateTrade(userID, symbol, quantity)
	if err != nil {
		return nil, err
	}

	q, err := s.lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	cost := q.Price.Mul(quantity)
	rec, err := s.store.ApplyMutation(ctx, domain.Mutation{
		UserID:        userID,
		CashDelta:     cost.Neg(),
		Symbol:        symbol,
		QuantityDelta: quantity,
		Record: &domain.TransactionRecord{
			UserID:    userID,
			Symbol:    symbol,
			Quantity:  quantity,
			Price:     q.Price,
			Kind:      domain.TransactionKindBuy,
			Timestamp: s.now().UTC(),
		},
	})
	if err != nil {
		s.logRejected("buy", userID, symbol, err)
		return nil, err
	}

	s.logCommitted(rec)
	return rec, nil
}

// Sell sells quantity shares of symbol at the current quoted price. A
// missing or short position is rejected before the quote source is asked;
// the store re-checks the holding atomically when applying the trade.
func (s *LedgerService) Sell(ctx context.Context, userID, symbol string, quantity decimal.Decimal) (*domain.TransactionRecord, error) {
	symbol, err := validateTrade(userID, symbol, quantity)
	if err != nil {
		return nil, err
	}

	held, ok, err := s.store.GetPosition(ctx, userID, symbol)
	if err != nil {
		return nil, err
	}
	if !ok || quantity.GreaterThan(held) {
		s.logRejected("sell", userID, symbol, domain.ErrInsufficientShares)
		return nil, domain.ErrInsufficientShares
	}

	q, err := s.lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	proceeds := q.Price.Mul(quantity)
	rec, err := s.store.ApplyMutation(ctx, domain.Mutation{
		UserID:        userID,
		CashDelta:     proceeds,
		Symbol:        symbol,
		QuantityDelta: quantity.Neg(),
		Record: &domain.TransactionRecord{
			UserID:    userID,
			Symbol:    symbol,
			Quantity:  quantity,
			Price:     q.Price,
			Kind:      domain.TransactionKindSell,
			Timestamp: s.now().UTC(),
		},
	})
	if err != nil {
		s.logRejected("sell", userID, symbol, err)
		return nil, err
	}

	s.logCommitted(rec)
	return rec, nil
}

// Deposit adds amount to the user's cash. Deposits are not written to the
// transaction log.
func (s *LedgerService) Deposit(ctx context.Context, userID string, amount decimal.Decimal) error {
	if userID == "" {
		return &domain.ValidationError{Message: "user_id is required"}
	}
	if !amount.IsPositive() {
		return &domain.ValidationError{Message: "amount must be > 0"}
	}
	if _, err := domain.Bound("amount", amount); err != nil {
		return err
	}

	if _, err := s.store.ApplyMutation(ctx, domain.Mutation{UserID: userID, CashDelta: amount}); err != nil {
		s.logRejected("deposit", userID, "", err)
		return err
	}

	s.logger.Info("deposit committed",
		slog.String("user_id", userID),
		slog.String("amount", amount.String()),
	)
	return nil
}

func (s *LedgerService) logCommitted(rec *domain.TransactionRecord) {
	s.logger.Info("trade committed",
		slog.Int64("transaction_id", rec.ID),
		slog.String("user_id", rec.UserID),
		slog.String("kind", string(rec.Kind)),
		slog.String("symbol", rec.Symbol),
		slog.String("quantity", rec.Quantity.String()),
		slog.String("price", rec.Price.String()),
	)
}

func (s *LedgerService) logRejected(op, userID, symbol string, err error) {
	level := slog.LevelDebug
	if errors.Is(err, domain.ErrStorageUnavailable) {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, op+" rejected",
		slog.String("user_id", userID),
		slog.String("symbol", symbol),
		slog.String("error", err.Error()),
	)
}
