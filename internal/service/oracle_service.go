package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

// OracleService looks up oracle query suggestions for the data source step.
// Lookups are best effort: any failure yields no suggestions.
type OracleService struct {
	market domain.MarketData
	cache  domain.SuggestionCache
	logger *slog.Logger
}

// NewOracleService creates an OracleService. cache may be nil.
func NewOracleService(market domain.MarketData, cache domain.SuggestionCache, logger *slog.Logger) *OracleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OracleService{
		market: market,
		cache:  cache,
		logger: logger.With(slog.String("component", "oracle_service")),
	}
}

// Suggest returns suggestions for query. It never fails; the result is
// empty, not nil, when nothing is found.
func (s *OracleService) Suggest(ctx context.Context, query string) []domain.OracleSuggestion {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.OracleSuggestion{}
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, query)
		switch {
		case err == nil:
			return cached
		case !errors.Is(err, domain.ErrNotFound):
			s.logger.DebugContext(ctx, "suggestion cache read failed", slog.String("error", err.Error()))
		}
	}

	got, err := s.market.OracleSuggestions(ctx, query)
	if err != nil {
		s.logger.DebugContext(ctx, "oracle suggestion lookup failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return []domain.OracleSuggestion{}
	}
	if got == nil {
		got = []domain.OracleSuggestion{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, query, got); err != nil {
			s.logger.DebugContext(ctx, "suggestion cache write failed", slog.String("error", err.Error()))
		}
	}
	return got
}
