package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/simexchange/internal/domain"
	"github.com/alanyoungcy/simexchange/internal/metrics"
	"github.com/alanyoungcy/simexchange/internal/watch"
)

// OrderBookService serves contract order books through a short-lived cache
// and tracks the book of the selected contract.
type OrderBookService struct {
	market   domain.MarketData
	cache    domain.OrderbookCache
	logger   *slog.Logger
	selector *watch.Selector[domain.OrderBook]
}

// NewOrderBookService creates an OrderBookService. cache may be nil.
func NewOrderBookService(market domain.MarketData, cache domain.OrderbookCache, m *metrics.Metrics, logger *slog.Logger) *OrderBookService {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NopMetrics()
	}
	s := &OrderBookService{
		market: market,
		cache:  cache,
		logger: logger.With(slog.String("component", "orderbook_service")),
	}
	s.selector = watch.NewSelector[domain.OrderBook]("orderbook", s.OrderBook,
		watch.WithLogger[domain.OrderBook](logger),
		watch.WithMetrics[domain.OrderBook](m),
	)
	return s
}

// OrderBook returns the book for address, from cache when fresh.
func (s *OrderBookService) OrderBook(ctx context.Context, address string) (domain.OrderBook, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.OrderBook{}, domain.ErrNoContractSelected
	}

	if s.cache != nil {
		book, err := s.cache.Get(ctx, address)
		switch {
		case err == nil:
			return book, nil
		case !errors.Is(err, domain.ErrNotFound):
			s.logger.DebugContext(ctx, "orderbook cache read failed", slog.String("error", err.Error()))
		}
	}

	book, err := s.market.OrderBook(ctx, address)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("orderbook_service: %w", err)
	}
	if book.Contract.Address == "" {
		book.Contract.Address = address
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, book); err != nil {
			s.logger.DebugContext(ctx, "orderbook cache write failed", slog.String("error", err.Error()))
		}
	}
	return book, nil
}

// Select makes address the tracked contract.
func (s *OrderBookService) Select(address string) error {
	return s.selector.Select(strings.TrimSpace(address))
}

// Selected returns the tracked contract and its latest book, if fetched.
func (s *OrderBookService) Selected() (watch.Result[domain.OrderBook], bool) {
	return s.selector.Current()
}

// Close stops tracking.
func (s *OrderBookService) Close() {
	s.selector.Close()
}
