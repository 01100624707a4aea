package quote

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/efreitasn/stockledger/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// StaticSource serves quotes from a fixed table. It backs offline mode
// (QUOTE_FILE) and doubles as a controllable source in tests.
type StaticSource struct {
	mu      sync.RWMutex
	quotes  map[string]Quote
	lookups atomic.Int64
}

// NewStaticSource creates a source seeded with quotes, keyed by their
// normalized symbol.
func NewStaticSource(quotes ...Quote) *StaticSource {
	s := &StaticSource{quotes: make(map[string]Quote, len(quotes))}
	for _, q := range quotes {
		s.Set(q)
	}
	return s
}

// Set adds or replaces the quote for q.Symbol. Safe for concurrent use.
func (s *StaticSource) Set(q Quote) {
	q.Symbol = domain.NormalizeSymbol(q.Symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Symbol] = q
}

// Remove deletes the quote for symbol.
func (s *StaticSource) Remove(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quotes, domain.NormalizeSymbol(symbol))
}

// Lookup returns the stored quote or ErrNotFound.
func (s *StaticSource) Lookup(_ context.Context, symbol string) (Quote, error) {
	s.lookups.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[domain.NormalizeSymbol(symbol)]
	if !ok {
		return Quote{}, ErrNotFound
	}
	return q, nil
}

// Lookups returns how many times Lookup has been called.
func (s *StaticSource) Lookups() int64 {
	return s.lookups.Load()
}

// staticFile is the YAML layout of a quote file:
//
//	quotes:
//	  AAPL:
//	    name: Apple Inc.
//	    price: 100.00
type staticFile struct {
	Quotes map[string]struct {
		Name  string `yaml:"name"`
		Price string `yaml:"price"`
	} `yaml:"quotes"`
}

// LoadStaticFile reads a YAML quote file, expanding ${VAR} references.
func LoadStaticFile(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quote file: %w", err)
	}
	return ParseStatic(data)
}

// ParseStatic parses YAML quote data.
func ParseStatic(data []byte) (*StaticSource, error) {
	expanded := os.ExpandEnv(string(data))

	var f staticFile
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, fmt.Errorf("parse quote yaml: %w", err)
	}

	s := NewStaticSource()
	for symbol, entry := range f.Quotes {
		price, err := decimal.NewFromString(entry.Price)
		if err != nil {
			return nil, fmt.Errorf("quote %s: invalid price %q", symbol, entry.Price)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("quote %s: price must be > 0", symbol)
		}
		s.Set(Quote{Symbol: symbol, Name: entry.Name, Price: price})
	}
	return s, nil
}
