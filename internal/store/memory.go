package store

import (
	"context"
	"sync"
	"time"

	"github.com/efreitasn/stockledger/internal/domain"
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

const positionDegree = 32

// positionItem is a btree entry ordered by symbol.
type positionItem struct {
	symbol   string
	quantity decimal.Decimal
}

func positionLess(a, b positionItem) bool {
	return a.symbol < b.symbol
}

// memAccount is the mutable state of one account. mu serializes every
// read-validate-write sequence against it.
type memAccount struct {
	mu        sync.Mutex
	userID    string
	cash      decimal.Decimal
	createdAt time.Time
	positions *btree.BTreeG[positionItem]
}

// MemoryStore is a thread-safe in-memory account store. Accounts are
// serialized individually; the transaction log has its own lock and a
// monotonic id counter.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*memAccount

	txMu   sync.RWMutex
	txs    []domain.TransactionRecord
	byUser map[string][]int // user_id → indexes into txs (chronological)
	lastID int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*memAccount),
		byUser:   make(map[string][]int),
	}
}

// CreateAccount adds an account with the given starting cash. It returns
// domain.ErrAccountAlreadyExists if the user already has one.
func (s *MemoryStore) CreateAccount(_ context.Context, userID string, initialCash decimal.Decimal) (*domain.Account, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Message: "user_id is required"}
	}
	if initialCash.IsNegative() {
		return nil, &domain.ValidationError{Message: "initial_cash must be >= 0"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[userID]; exists {
		return nil, domain.ErrAccountAlreadyExists
	}
	a := &memAccount{
		userID:    userID,
		cash:      initialCash,
		createdAt: time.Now().UTC(),
		positions: btree.NewG[positionItem](positionDegree, positionLess),
	}
	s.accounts[userID] = a
	return &domain.Account{UserID: userID, CashBalance: a.cash, CreatedAt: a.createdAt}, nil
}

func (s *MemoryStore) account(userID string) (*memAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

// GetAccount returns a snapshot of the account row.
func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*domain.Account, error) {
	a, err := s.account(userID)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return &domain.Account{UserID: a.userID, CashBalance: a.cash, CreatedAt: a.createdAt}, nil
}

// GetCash returns the account's cash balance.
func (s *MemoryStore) GetCash(ctx context.Context, userID string) (decimal.Decimal, error) {
	acct, err := s.GetAccount(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.CashBalance, nil
}

// GetPosition returns the held quantity for (userID, symbol) and whether
// a position exists. An unknown user simply has no position.
func (s *MemoryStore) GetPosition(_ context.Context, userID, symbol string) (decimal.Decimal, bool, error) {
	a, err := s.account(userID)
	if err != nil {
		if err == domain.ErrAccountNotFound {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	item, ok := a.positions.Get(positionItem{symbol: symbol})
	if !ok {
		return decimal.Zero, false, nil
	}
	return item.quantity, true, nil
}

// ListPositions returns the user's positions ordered by symbol.
func (s *MemoryStore) ListPositions(ctx context.Context, userID string) ([]domain.Position, error) {
	_, positions, err := s.Snapshot(ctx, userID)
	return positions, err
}

// Snapshot returns the account row and its positions as of one instant.
func (s *MemoryStore) Snapshot(_ context.Context, userID string) (*domain.Account, []domain.Position, error) {
	a, err := s.account(userID)
	if err != nil {
		return nil, nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make([]domain.Position, 0, a.positions.Len())
	a.positions.Ascend(func(item positionItem) bool {
		positions = append(positions, domain.Position{UserID: userID, Symbol: item.symbol, Quantity: item.quantity})
		return true
	})
	return &domain.Account{UserID: a.userID, CashBalance: a.cash, CreatedAt: a.createdAt}, positions, nil
}

// ListTransactions returns the user's transaction records in
// chronological order (ascending id).
func (s *MemoryStore) ListTransactions(_ context.Context, userID string) ([]domain.TransactionRecord, error) {
	if _, err := s.account(userID); err != nil {
		return nil, err
	}

	s.txMu.RLock()
	defer s.txMu.RUnlock()

	idx := s.byUser[userID]
	out := make([]domain.TransactionRecord, len(idx))
	for i, j := range idx {
		out[i] = s.txs[j]
	}
	return out, nil
}

// AppendTransaction stores a copy of rec and returns its assigned id.
func (s *MemoryStore) AppendTransaction(_ context.Context, rec domain.TransactionRecord) (int64, error) {
	return s.appendRecord(rec), nil
}

func (s *MemoryStore) appendRecord(rec domain.TransactionRecord) int64 {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.lastID++
	rec.ID = s.lastID
	s.byUser[rec.UserID] = append(s.byUser[rec.UserID], len(s.txs))
	s.txs = append(s.txs, rec)
	return rec.ID
}

// ApplyMutation changes cash, position and transaction log of one account
// as a single unit. Nothing is written unless every check passes.
func (s *MemoryStore) ApplyMutation(_ context.Context, m domain.Mutation) (*domain.TransactionRecord, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	a, err := s.account(m.UserID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	newCash := a.cash.Add(m.CashDelta)
	if newCash.IsNegative() {
		return nil, domain.ErrInsufficientFunds
	}

	var newQty decimal.Decimal
	if m.Symbol != "" {
		held := decimal.Zero
		if item, ok := a.positions.Get(positionItem{symbol: m.Symbol}); ok {
			held = item.quantity
		}
		newQty = held.Add(m.QuantityDelta)
		if newQty.IsNegative() {
			return nil, domain.ErrInsufficientShares
		}
	}

	var rec *domain.TransactionRecord
	if m.Record != nil {
		r := *m.Record
		r.ID = s.appendRecord(r)
		rec = &r
	}

	a.cash = newCash
	if m.Symbol != "" {
		if newQty.IsZero() {
			a.positions.Delete(positionItem{symbol: m.Symbol})
		} else {
			a.positions.ReplaceOrInsert(positionItem{symbol: m.Symbol, quantity: newQty})
		}
	}
	return rec, nil
}
