package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/optiontrack/internal/models"
)

const infoFixture = `{
  "data": {
    "symbol": "AAPL",
    "marketStatus": "Open",
    "primaryData": {"lastSalePrice": "$212.49", "netChange": "+1.99"}
  },
  "status": {"rCode": 200}
}`

const chainFixture = `{
  "data": {
    "table": {
      "rows": [
        {"expirygroup": "July 19, 2024", "strike": null},
        {"expirygroup": "", "strike": "210.00", "c_Last": "5.10", "c_Bid": "5.00", "c_Ask": "5.20", "c_Volume": "1,204", "c_Openinterest": "10,500",
         "p_Last": "2.80", "p_Bid": "2.75", "p_Ask": "2.85", "p_Volume": "980", "p_Openinterest": "8,100", "drillDownURL": "/market-activity/stocks/aapl/option-chain/call-put-options/aapl--240719c00210000"},
        {"expirygroup": "", "strike": "215.00", "c_Last": "2.40", "c_Bid": "--", "c_Ask": "--", "c_Volume": "--", "c_Openinterest": "--",
         "p_Last": "--", "p_Bid": "--", "p_Ask": "--", "p_Volume": "--", "p_Openinterest": "--"},
        {"expirygroup": "August 16, 2024", "strike": null},
        {"expirygroup": "", "strike": "210.00", "c_Last": "8.00", "c_Bid": "7.90", "c_Ask": "8.10", "c_Volume": "10", "c_Openinterest": "100",
         "p_Last": "5.50", "p_Bid": "5.40", "p_Ask": "5.60", "p_Volume": "12", "p_Openinterest": "90"}
      ]
    }
  },
  "status": {"rCode": 200}
}`

type nasdaqStub struct {
	info  string
	chain string
	code  int
	query string
}

func (s *nasdaqStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.code != 0 {
			w.WriteHeader(s.code)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/info"):
			w.Write([]byte(s.info))
		case strings.HasSuffix(r.URL.Path, "/option-chain"):
			s.query = r.URL.RawQuery
			w.Write([]byte(s.chain))
		case strings.Contains(r.URL.Path, "/market-activity/"):
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("\x89PNG"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

var fixedNow = time.Date(2024, 7, 1, 10, 30, 0, 0, models.MarketLocation())

func newTestNasdaq(srv *httptest.Server) *NasdaqClient {
	return NewNasdaqClient(srv.Client(), NasdaqOptions{
		BaseURL: srv.URL,
		Now:     func() time.Time { return fixedNow },
	})
}

func TestNasdaq_FetchChain(t *testing.T) {
	stub := &nasdaqStub{info: infoFixture, chain: chainFixture}
	c := newTestNasdaq(stub.server(t))

	snap, err := c.FetchChain(context.Background(), "AAPL", models.KindNear)
	require.NoError(t, err)

	assert.Equal(t, "nasdaq", snap.Source)
	assert.InDelta(t, 212.49, snap.Spot, 1e-9)
	assert.InDelta(t, 210.50, snap.PreviousClose, 1e-9)
	assert.Equal(t, models.MarketOpen, snap.MarketStatus)
	assert.Equal(t, []string{"2024-07-19", "2024-08-16"}, snap.ExpiryKeys())

	july := snap.Expiries["2024-07-19"]
	require.Len(t, july, 3, "215 put is unquoted and dropped")
	assert.Equal(t, "210", july[0].Strike.String())
	assert.Equal(t, models.Call, july[0].Right)
	assert.Equal(t, int64(10500), july[0].OpenInterest)
	assert.Equal(t, int64(1204), july[0].Volume)
	assert.InDelta(t, 5.10, july[0].ObservedPrice(), 1e-9)
	assert.Equal(t, models.Put, july[1].Right)
	assert.True(t, strings.HasPrefix(july[0].DrillDownURL, "http"))
	assert.Equal(t, "215", july[2].Strike.String())
	assert.InDelta(t, 2.40, july[2].ObservedPrice(), 1e-9)

	assert.Contains(t, stub.query, "fromdate=2024-07-01")
	assert.Contains(t, stub.query, "todate=2025-06-30")
}

func TestNasdaq_LeapWindow(t *testing.T) {
	stub := &nasdaqStub{info: infoFixture, chain: chainFixture}
	c := newTestNasdaq(stub.server(t))

	_, err := c.FetchChain(context.Background(), "AAPL", models.KindLeap)
	require.NoError(t, err)
	assert.Contains(t, stub.query, "fromdate=2025-07-01")
	assert.Contains(t, stub.query, "todate=2027-07-01")
}

func TestNasdaq_HTTPError(t *testing.T) {
	stub := &nasdaqStub{code: http.StatusForbidden}
	c := newTestNasdaq(stub.server(t))

	_, err := c.FetchChain(context.Background(), "AAPL", models.KindNear)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestNasdaq_MalformedPayload(t *testing.T) {
	stub := &nasdaqStub{info: infoFixture, chain: `{"data": {"table": {"rows": [`}
	c := newTestNasdaq(stub.server(t))

	_, err := c.FetchChain(context.Background(), "AAPL", models.KindNear)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

func TestNasdaq_EmptyChain(t *testing.T) {
	stub := &nasdaqStub{info: infoFixture, chain: `{"data": {"table": {"rows": []}}, "status": {"rCode": 200}}`}
	c := newTestNasdaq(stub.server(t))

	_, err := c.FetchChain(context.Background(), "AAPL", models.KindNear)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestNasdaq_NullData(t *testing.T) {
	stub := &nasdaqStub{info: infoFixture, chain: `{"data": null, "status": {"rCode": 400}}`}
	c := newTestNasdaq(stub.server(t))

	_, err := c.FetchChain(context.Background(), "ZZZZ", models.KindNear)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestNasdaq_BadSpot(t *testing.T) {
	stub := &nasdaqStub{info: `{"data": {"primaryData": {"lastSalePrice": "N/A"}}}`, chain: chainFixture}
	c := newTestNasdaq(stub.server(t))

	_, err := c.FetchChain(context.Background(), "AAPL", models.KindNear)
	assert.ErrorIs(t, err, ErrParse)
}

func TestNasdaq_FetchDrillDown(t *testing.T) {
	stub := &nasdaqStub{info: infoFixture, chain: chainFixture}
	c := newTestNasdaq(stub.server(t))

	img, err := c.FetchDrillDown(context.Background(), "/market-activity/stocks/aapl/chart")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), img)

	_, err = c.FetchDrillDown(context.Background(), "")
	assert.Error(t, err)
}

func TestParseNumber(t *testing.T) {
	cases := map[string]float64{"$1,234.50": 1234.5, "+1.99": 1.99, "-0.5": -0.5, "7": 7}
	for in, want := range cases {
		got, ok := parseNumber(in)
		require.True(t, ok, in)
		assert.InDelta(t, want, got, 1e-12, in)
	}
	for _, in := range []string{"--", "", "N/A", "abc"} {
		_, ok := parseNumber(in)
		assert.False(t, ok, in)
	}
}
