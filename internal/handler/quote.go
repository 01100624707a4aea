package handler

import (
	"net/http"

	"github.com/efreitasn/stockledger/internal/domain"
	"github.com/efreitasn/stockledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// QuoteHandler handles HTTP requests for quote endpoints.
type QuoteHandler struct {
	ledger *service.LedgerService
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(ledger *service.LedgerService) *QuoteHandler {
	return &QuoteHandler{ledger: ledger}
}

// quoteResponse is the JSON response for GET /quotes/{symbol}.
type quoteResponse struct {
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	PriceDisplay string          `json:"price_display"`
}

// Get handles GET /quotes/{symbol}.
func (h *QuoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	q, err := h.ledger.Quote(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		mapLedgerError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, quoteResponse{
		Symbol:       q.Symbol,
		Name:         q.Name,
		Price:        q.Price,
		PriceDisplay: domain.FormatUSD(q.Price),
	})
}
