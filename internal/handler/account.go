package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/efreitasn/stockledger/internal/domain"
	"github.com/efreitasn/stockledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AccountHandler handles HTTP requests for account endpoints.
type AccountHandler struct {
	ledger *service.LedgerService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(ledger *service.LedgerService) *AccountHandler {
	return &AccountHandler{ledger: ledger}
}

// openAccountRequest is the JSON request body for POST /accounts.
type openAccountRequest struct {
	UserID      string  `json:"user_id"`
	InitialCash *string `json:"initial_cash"`
}

// tradeRequest is the JSON request body for buy and sell.
type tradeRequest struct {
	Symbol string `json:"symbol"`
	Shares string `json:"shares"`
}

// depositRequest is the JSON request body for POST /accounts/{user_id}/deposit.
type depositRequest struct {
	Amount string `json:"amount"`
}

// accountResponse is the JSON response for account creation and lookups.
// Decimal amounts are encoded as JSON strings.
type accountResponse struct {
	UserID      string          `json:"user_id"`
	Cash        decimal.Decimal `json:"cash"`
	CashDisplay string          `json:"cash_display"`
	CreatedAt   string          `json:"created_at,omitempty"`
}

type positionResponse struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
}

type positionListResponse struct {
	UserID    string             `json:"user_id"`
	Positions []positionResponse `json:"positions"`
}

type transactionResponse struct {
	ID           int64           `json:"id"`
	Kind         string          `json:"kind"`
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	PriceDisplay string          `json:"price_display"`
	Total        decimal.Decimal `json:"total"`
	Timestamp    string          `json:"timestamp"`
}

type transactionListResponse struct {
	UserID       string                `json:"user_id"`
	Transactions []transactionResponse `json:"transactions"`
}

type holdingResponse struct {
	Symbol       string           `json:"symbol"`
	Name         string           `json:"name,omitempty"`
	Quantity     decimal.Decimal  `json:"quantity"`
	Price        *decimal.Decimal `json:"price"`
	Value        *decimal.Decimal `json:"value"`
	ValueDisplay string           `json:"value_display,omitempty"`
	Priced       bool             `json:"priced"`
}

type portfolioResponse struct {
	UserID               string            `json:"user_id"`
	Cash                 decimal.Decimal   `json:"cash"`
	CashDisplay          string            `json:"cash_display"`
	Holdings             []holdingResponse `json:"holdings"`
	HoldingsValue        decimal.Decimal   `json:"holdings_value"`
	HoldingsValueDisplay string            `json:"holdings_value_display"`
	Total                decimal.Decimal   `json:"total"`
	TotalDisplay         string            `json:"total_display"`
}

// Open handles POST /accounts.
func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := ParseJSON(w, r, &req); err != nil {
		mapLedgerError(w, err)
		return
	}

	var initialCash *decimal.Decimal
	if req.InitialCash != nil {
		d, err := domain.ParseCash("initial_cash", *req.InitialCash)
		if err != nil {
			mapLedgerError(w, err)
			return
		}
		initialCash = &d
	}

	acct, err := h.ledger.OpenAccount(r.Context(), req.UserID, initialCash)
	if err != nil {
		mapLedgerError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, accountResponse{
		UserID:      acct.UserID,
		Cash:        acct.CashBalance,
		CashDisplay: domain.FormatUSD(acct.CashBalance),
		CreatedAt:   acct.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// Get handles GET /accounts/{user_id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	cash, err := h.ledger.Cash(r.Context(), userID)
	if err != nil {
		mapLedgerError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, accountResponse{
		UserID:      userID,
		Cash:        cash,
		CashDisplay: domain.FormatUSD(cash),
	})
}

// Positions handles GET /accounts/{user_id}/positions.
func (h *AccountHandler) Positions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	positions, err := h.ledger.Positions(r.Context(), userID)
	if err != nil {
		mapLedgerError(w, err)
		return
	}

	resp := positionListResponse{UserID: userID, Positions: make([]positionResponse, len(positions))}
	for i, p := range positions {
		resp.Positions[i] = positionResponse{Symbol: p.Symbol, Quantity: p.Quantity}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Portfolio handles GET /accounts/{user_id}/portfolio.
func (h *AccountHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	p, err := h.ledger.Portfolio(r.Context(), userID)
	if err != nil {
		mapLedgerError(w, err)
		return
	}

	holdings := make([]holdingResponse, len(p.Holdings))
	for i, hd := range p.Holdings {
		holdings[i] = holdingResponse{
			Symbol:   hd.Symbol,
			Name:     hd.Name,
			Quantity: hd.Quantity,
			Priced:   hd.Priced,
		}
		// Unpriced holdings report null price and value.
		if hd.Priced {
			price, value := hd.Price, hd.Value
			holdings[i].Price = &price
			holdings[i].Value = &value
			holdings[i].ValueDisplay = domain.FormatUSD(value)
		}
	}

	WriteJSON(w, http.StatusOK, portfolioResponse{
		UserID:               p.UserID,
		Cash:                 p.Cash,
		CashDisplay:          domain.FormatUSD(p.Cash),
		Holdings:             holdings,
		HoldingsValue:        p.HoldingsValue,
		HoldingsValueDisplay: domain.FormatUSD(p.HoldingsValue),
		Total:                p.Total,
		TotalDisplay:         domain.FormatUSD(p.Total),
	})
}

// Transactions handles GET /accounts/{user_id}/transactions.
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	txs, err := h.ledger.Transactions(r.Context(), userID)
	if err != nil {
		mapLedgerError(w, err)
		return
	}

	resp := transactionListResponse{UserID: userID, Transactions: make([]transactionResponse, len(txs))}
	for i := range txs {
		resp.Transactions[i] = toTransactionResponse(&txs[i])
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Buy handles POST /accounts/{user_id}/buy.
func (h *AccountHandler) Buy(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.ledger.Buy)
}

// Sell handles POST /accounts/{user_id}/sell.
func (h *AccountHandler) Sell(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.ledger.Sell)
}

type tradeFunc func(ctx context.Context, userID, symbol string, quantity decimal.Decimal) (*domain.TransactionRecord, error)

func (h *AccountHandler) trade(w http.ResponseWriter, r *http.Request, exec tradeFunc) {
	userID := chi.URLParam(r, "user_id")

	var req tradeRequest
	if err := ParseJSON(w, r, &req); err != nil {
		mapLedgerError(w, err)
		return
	}
	qty, err := domain.ParseQuantity(req.Shares)
	if err != nil {
		mapLedgerError(w, err)
		return
	}

	rec, err := exec(r.Context(), userID, req.Symbol, qty)
	if err != nil {
		mapLedgerError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, toTransactionResponse(rec))
}

// Deposit handles POST /accounts/{user_id}/deposit.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	var req depositRequest
	if err := ParseJSON(w, r, &req); err != nil {
		mapLedgerError(w, err)
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		mapLedgerError(w, err)
		return
	}

	if err := h.ledger.Deposit(r.Context(), userID, amount); err != nil {
		mapLedgerError(w, err)
		return
	}

	cash, err := h.ledger.Cash(r.Context(), userID)
	if err != nil {
		mapLedgerError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, accountResponse{
		UserID:      userID,
		Cash:        cash,
		CashDisplay: domain.FormatUSD(cash),
	})
}

func toTransactionResponse(rec *domain.TransactionRecord) transactionResponse {
	return transactionResponse{
		ID:           rec.ID,
		Kind:         string(rec.Kind),
		Symbol:       rec.Symbol,
		Quantity:     rec.Quantity,
		Price:        rec.Price,
		PriceDisplay: domain.FormatUSD(rec.Price),
		Total:        rec.Total(),
		Timestamp:    rec.Timestamp.UTC().Format(time.RFC3339),
	}
}
