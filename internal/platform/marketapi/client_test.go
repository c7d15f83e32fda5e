package marketapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/simexchange/internal/crypto"
	"github.com/alanyoungcy/simexchange/internal/domain"
)

const ordersResponse = `{
  "bids": [{"orderHash": "0x01", "maker": "0xaa", "price": "105700", "orderQty": 3, "remainingQty": "2", "expirationTimestamp": "1900000000"}],
  "asks": [],
  "contract": {
    "key": "0x6467854f25ff1f1ff8c11a717faf03e409b53635",
    "CONTRACT_NAME": "ETHXBT",
    "COLLATERAL_TOKEN": "FakeDollars",
    "COLLATERAL_TOKEN_ADDRESS": "0x6467854f25ff1f1ff8c11a717faf03e409b53635",
    "COLLATERAL_TOKEN_SYMBOL": "FUSD",
    "MARKET_COLLATERAL_POOL_ADDRESS": "0x3e69935694cdb936bf0b281e62b4087cfcb063bb",
    "PRICE_FLOOR": "60465",
    "PRICE_CAP": 20155,
    "PRICE_DECIMAL_PLACES": "2",
    "QTY_MULTIPLIER": "10",
    "ORACLE_QUERY": "json(https://api.kraken.com/0/public/Ticker?pair=ETHUSD).result.XETHZUSD.c.0",
    "EXPIRATION": "",
    "lastPrice": "105700",
    "isSettled": "true"
  }
}`

func TestOrderBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders/0x6467854f25ff1f1ff8c11a717faf03e409b53635", r.URL.Path)
		assert.Empty(t, r.Header.Get(crypto.HeaderSignature))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(ordersResponse))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	book, err := c.OrderBook(context.Background(), "0x6467854f25ff1f1ff8c11a717faf03e409b53635")
	require.NoError(t, err)

	require.Len(t, book.Bids, 1)
	assert.True(t, decimal.NewFromInt(105700).Equal(book.Bids[0].Price), book.Bids[0].Price.String())
	assert.True(t, decimal.NewFromInt(3).Equal(book.Bids[0].Qty), book.Bids[0].Qty.String())
	assert.Equal(t, "2", book.Bids[0].RemainingQty.String())
	assert.Equal(t, int64(1900000000), book.Bids[0].Expiration)
	assert.Empty(t, book.Asks)
	assert.Equal(t, "ETHXBT", book.Contract.Name)
	assert.Equal(t, "20155", book.Contract.PriceCap)
	assert.Equal(t, "0x3e69935694cdb936bf0b281e62b4087cfcb063bb", book.Contract.CollateralPoolAddress)
	assert.True(t, book.Contract.IsSettled)
	assert.False(t, book.FetchedAt.IsZero())
}

func TestSignedRequests(t *testing.T) {
	auth := &crypto.HMACAuth{Key: "k", Secret: "c2VjcmV0", Passphrase: "p"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts := r.Header.Get(crypto.HeaderTimestamp)
		msg := ts + r.Method + r.URL.RequestURI()
		if !auth.Verify(msg, r.Header.Get(crypto.HeaderSignature)) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"label":"ETH/USD Kraken","query":"json(https://api.kraken.com).c.0"},{"label":"x","source":"WolframAlpha","query":"q"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, WithAuth(auth))
	got, err := c.OracleSuggestions(context.Background(), "eth usd")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.DefaultOracleDataSource, got[0].DataSource)
	assert.Equal(t, "WolframAlpha", got[1].DataSource)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
	}
	for _, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := NewClient(srv.URL, time.Second).Contracts(context.Background())
		srv.Close()
		assert.ErrorIs(t, err, tc.want)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()
	_, err := NewClient(srv.URL, time.Second).Contracts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502: upstream down")
}
