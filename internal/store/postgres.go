package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/efreitasn/stockledger/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// PostgresStore keeps accounts, positions and the transaction log in
// PostgreSQL. Every mutation runs in one database transaction that first
// locks the account row, so operations on the same user are serialized.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresStore wraps pool. Each store call is bounded by timeout;
// zero means no extra bound beyond the caller's context.
func NewPostgresStore(pool *pgxpool.Pool, timeout time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, timeout: timeout}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return unavailable("migrate", err)
	}
	return nil
}

func (s *PostgresStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// unavailable tags an infrastructure failure so callers can match it
// with errors.Is(err, domain.ErrStorageUnavailable).
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorageUnavailable, op, err)
}

// CreateAccount inserts an account row. It returns
// domain.ErrAccountAlreadyExists on a duplicate user id.
func (s *PostgresStore) CreateAccount(ctx context.Context, userID string, initialCash decimal.Decimal) (*domain.Account, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Message: "user_id is required"}
	}
	if initialCash.IsNegative() {
		return nil, &domain.ValidationError{Message: "initial_cash must be >= 0"}
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	acct := &domain.Account{UserID: userID, CashBalance: initialCash}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (user_id, cash_balance) VALUES ($1, $2) RETURNING created_at`,
		userID, initialCash,
	).Scan(&acct.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrAccountAlreadyExists
		}
		return nil, unavailable("insert account", err)
	}
	return acct, nil
}

// GetAccount returns the account row.
func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	acct := &domain.Account{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT cash_balance, created_at FROM accounts WHERE user_id = $1`, userID,
	).Scan(&acct.CashBalance, &acct.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, unavailable("select account", err)
	}
	return acct, nil
}

// GetCash returns the account's cash balance.
func (s *PostgresStore) GetCash(ctx context.Context, userID string) (decimal.Decimal, error) {
	acct, err := s.GetAccount(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.CashBalance, nil
}

// GetPosition returns the held quantity for (userID, symbol) and whether
// a position row exists.
func (s *PostgresStore) GetPosition(ctx context.Context, userID, symbol string) (decimal.Decimal, bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var qty decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT quantity FROM positions WHERE user_id = $1 AND symbol = $2`, userID, symbol,
	).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, unavailable("select position", err)
	}
	return qty, true, nil
}

// ListPositions returns the user's positions ordered by symbol.
func (s *PostgresStore) ListPositions(ctx context.Context, userID string) ([]domain.Position, error) {
	_, positions, err := s.Snapshot(ctx, userID)
	return positions, err
}

// Snapshot reads the account row and its positions in one repeatable-read
// transaction, so cash and holdings reflect the same committed state.
func (s *PostgresStore) Snapshot(ctx context.Context, userID string) (*domain.Account, []domain.Position, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, unavailable("begin", err)
	}
	defer tx.Rollback(ctx)

	acct := &domain.Account{UserID: userID}
	err = tx.QueryRow(ctx,
		`SELECT cash_balance, created_at FROM accounts WHERE user_id = $1`, userID,
	).Scan(&acct.CashBalance, &acct.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, nil, unavailable("select account", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT symbol, quantity FROM positions WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, nil, unavailable("select positions", err)
	}
	defer rows.Close()

	positions := make([]domain.Position, 0)
	for rows.Next() {
		p := domain.Position{UserID: userID}
		if err := rows.Scan(&p.Symbol, &p.Quantity); err != nil {
			return nil, nil, unavailable("scan position", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, unavailable("select positions", err)
	}
	return acct, positions, nil
}

// ListTransactions returns the user's records in chronological order.
func (s *PostgresStore) ListTransactions(ctx context.Context, userID string) ([]domain.TransactionRecord, error) {
	if _, err := s.GetAccount(ctx, userID); err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, symbol, quantity, price, kind, created_at
		   FROM transactions WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, unavailable("select transactions", err)
	}
	defer rows.Close()

	out := make([]domain.TransactionRecord, 0)
	for rows.Next() {
		r := domain.TransactionRecord{UserID: userID}
		var kind string
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Quantity, &r.Price, &kind, &r.Timestamp); err != nil {
			return nil, unavailable("scan transaction", err)
		}
		r.Kind = domain.TransactionKind(kind)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("select transactions", err)
	}
	return out, nil
}

// AppendTransaction inserts one immutable record and returns its id.
func (s *PostgresStore) AppendTransaction(ctx context.Context, rec domain.TransactionRecord) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	id, err := insertTransaction(ctx, s.pool, rec)
	if err != nil {
		return 0, unavailable("insert transaction", err)
	}
	return id, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertTransaction(ctx context.Context, q querier, rec domain.TransactionRecord) (int64, error) {
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO transactions (user_id, symbol, quantity, price, kind, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		rec.UserID, rec.Symbol, rec.Quantity, rec.Price, string(rec.Kind), rec.Timestamp.UTC(),
	).Scan(&id)
	return id, err
}

// ApplyMutation changes cash, position and transaction log of one account
// inside a single database transaction.
func (s *PostgresStore) ApplyMutation(ctx context.Context, m domain.Mutation) (*domain.TransactionRecord, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, unavailable("begin", err)
	}
	defer tx.Rollback(ctx)

	var cash decimal.Decimal
	err = tx.QueryRow(ctx,
		`SELECT cash_balance FROM accounts WHERE user_id = $1 FOR UPDATE`, m.UserID,
	).Scan(&cash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, unavailable("lock account", err)
	}

	newCash := cash.Add(m.CashDelta)
	if newCash.IsNegative() {
		return nil, domain.ErrInsufficientFunds
	}

	if m.Symbol != "" {
		if err := applyPositionDelta(ctx, tx, m.UserID, m.Symbol, m.QuantityDelta); err != nil {
			return nil, err
		}
	}

	if !m.CashDelta.IsZero() {
		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET cash_balance = $2 WHERE user_id = $1`, m.UserID, newCash,
		); err != nil {
			return nil, unavailable("update cash", err)
		}
	}

	var rec *domain.TransactionRecord
	if m.Record != nil {
		r := *m.Record
		r.ID, err = insertTransaction(ctx, tx, r)
		if err != nil {
			return nil, unavailable("insert transaction", err)
		}
		rec = &r
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable("commit", err)
	}
	return rec, nil
}

// applyPositionDelta adds delta to the (userID, symbol) row, deleting it
// when the result is exactly zero. Must run under the account row lock.
func applyPositionDelta(ctx context.Context, tx pgx.Tx, userID, symbol string, delta decimal.Decimal) error {
	held := decimal.Zero
	err := tx.QueryRow(ctx,
		`SELECT quantity FROM positions WHERE user_id = $1 AND symbol = $2 FOR UPDATE`, userID, symbol,
	).Scan(&held)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return unavailable("lock position", err)
	}

	newQty := held.Add(delta)
	switch {
	case newQty.IsNegative():
		return domain.ErrInsufficientShares
	case newQty.IsZero():
		_, err = tx.Exec(ctx, `DELETE FROM positions WHERE user_id = $1 AND symbol = $2`, userID, symbol)
	default:
		_, err = tx.Exec(ctx,
			`INSERT INTO positions (user_id, symbol, quantity) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, symbol) DO UPDATE SET quantity = EXCLUDED.quantity`,
			userID, symbol, newQty)
	}
	if err != nil {
		return unavailable("write position", err)
	}
	return nil
}
