package service

import (
	"context"
	"errors"
	"testing"

	"github.com/efreitasn/stockledger/internal/domain"
	"github.com/efreitasn/stockledger/internal/quote"
)

func TestPortfolio_ValuesHoldings(t *testing.T) {
	svc, _, src := newTestLedger(
		quote.Quote{Symbol: "AAPL", Name: "Apple Inc.", Price: dec("100")},
		quote.Quote{Symbol: "MSFT", Name: "Microsoft Corporation", Price: dec("50")},
	)
	ctx := context.Background()
	openWithCash(t, svc, "u1", "1000")
	if _, err := svc.Buy(ctx, "u1", "MSFT", dec("4")); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := svc.Buy(ctx, "u1", "AAPL", dec("2")); err != nil {
		t.Fatalf("buy: %v", err)
	}
	src.Set(quote.Quote{Symbol: "AAPL", Name: "Apple Inc.", Price: dec("110")})

	p, err := svc.Portfolio(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Cash.Equal(dec("600")) {
		t.Fatalf("expected cash 600, got %s", p.Cash)
	}
	if len(p.Holdings) != 2 {
		t.Fatalf("expected 2 holdings, got %d", len(p.Holdings))
	}
	if p.Holdings[0].Symbol != "AAPL" || p.Holdings[1].Symbol != "MSFT" {
		t.Fatalf("expected holdings ordered by symbol, got %s, %s", p.Holdings[0].Symbol, p.Holdings[1].Symbol)
	}
	aapl := p.Holdings[0]
	if !aapl.Priced || aapl.Name != "Apple Inc." || !aapl.Value.Equal(dec("220")) {
		t.Fatalf("unexpected AAPL holding: %+v", aapl)
	}
	if !p.HoldingsValue.Equal(dec("420")) {
		t.Fatalf("expected holdings value 420, got %s", p.HoldingsValue)
	}
	if !p.Total.Equal(dec("1020")) {
		t.Fatalf("expected total 1020, got %s", p.Total)
	}
}

func TestPortfolio_UnpricedHoldingExcluded(t *testing.T) {
	svc, _, src := newTestLedger(
		quote.Quote{Symbol: "AAPL", Price: dec("100")},
		quote.Quote{Symbol: "GONE", Price: dec("10")},
	)
	ctx := context.Background()
	openWithCash(t, svc, "u1", "1000")
	if _, err := svc.Buy(ctx, "u1", "AAPL", dec("1")); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := svc.Buy(ctx, "u1", "GONE", dec("5")); err != nil {
		t.Fatalf("buy: %v", err)
	}
	src.Remove("GONE")

	p, err := svc.Portfolio(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gone := p.Holdings[0]
	if gone.Symbol != "GONE" || gone.Priced || !gone.Quantity.Equal(dec("5")) {
		t.Fatalf("unexpected GONE holding: %+v", gone)
	}
	if !p.HoldingsValue.Equal(dec("100")) {
		t.Fatalf("expected holdings value 100, got %s", p.HoldingsValue)
	}
	if !p.Total.Equal(dec("950")) {
		t.Fatalf("expected total 950, got %s", p.Total)
	}
}

func TestPortfolio_EmptyAccount(t *testing.T) {
	svc, _, _ := newTestLedger()
	openWithCash(t, svc, "u1", "42.50")

	p, err := svc.Portfolio(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Holdings) != 0 || !p.HoldingsValue.IsZero() || !p.Total.Equal(dec("42.50")) {
		t.Fatalf("unexpected portfolio: %+v", p)
	}
}

func TestPortfolio_UnknownAccount(t *testing.T) {
	svc, _, _ := newTestLedger()
	_, err := svc.Portfolio(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestQuote(t *testing.T) {
	svc, _, _ := newTestLedger(quote.Quote{Symbol: "AAPL", Name: "Apple Inc.", Price: dec("187.5")})
	ctx := context.Background()

	q, err := svc.Quote(ctx, " aapl ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Symbol != "AAPL" || !q.Price.Equal(dec("187.5")) {
		t.Fatalf("unexpected quote: %+v", q)
	}

	if _, err := svc.Quote(ctx, ""); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.Quote(ctx, "NOPE"); !errors.Is(err, domain.ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
}
