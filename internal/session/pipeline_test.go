package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/optiontrack/internal/db"
	"github.com/kjannette/optiontrack/internal/external"
	"github.com/kjannette/optiontrack/internal/models"
	"github.com/kjannette/optiontrack/internal/repository"
	"github.com/kjannette/optiontrack/internal/session"
	"github.com/kjannette/optiontrack/internal/testutil"
)

const pipelineInfo = `{"data": {"symbol": "AAPL", "marketStatus": "Open",
  "primaryData": {"lastSalePrice": "$97.00", "netChange": "-1.00"}}, "status": {"rCode": 200}}`

const pipelineChain = `{"data": {"table": {"rows": [
  {"expirygroup": "July 31, 2024", "strike": null},
  {"expirygroup": "", "strike": "95.00", "c_Last": "4.10", "c_Bid": "4.00", "c_Ask": "4.20", "c_Volume": "10", "c_Openinterest": "100",
   "p_Last": "1.90", "p_Bid": "1.85", "p_Ask": "1.95", "p_Volume": "12", "p_Openinterest": "80"},
  {"expirygroup": "", "strike": "100.00", "c_Last": "1.70", "c_Bid": "1.65", "c_Ask": "1.75", "c_Volume": "20", "c_Openinterest": "300",
   "p_Last": "4.55", "p_Bid": "4.50", "p_Ask": "4.60", "p_Volume": "5", "p_Openinterest": "50"}
]}}, "status": {"rCode": 200}}`

func nasdaqServer(t *testing.T, down *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/info") {
			w.Write([]byte(pipelineInfo))
			return
		}
		w.Write([]byte(pipelineChain))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPipeline_FetchAnnotateStore(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2024, 7, 1, 14, 30, 0, 0, time.UTC))

	var down atomic.Bool
	srv := nasdaqServer(t, &down)
	nasdaq := external.NewNasdaqClient(srv.Client(), external.NasdaqOptions{BaseURL: srv.URL, Now: clock.Now})
	gateway := external.NewGateway(nasdaq, nil, nil)

	store := repository.Open(testutil.SetupDB(t), db.SQLite, repository.Options{Symbol: "AAPL", Now: clock.Now})
	sess := session.New(gateway, store, nil, session.Config{Symbol: "AAPL", RiskFreeRate: 0.045, Now: clock.Now})

	require.True(t, sess.Trigger(ctx, models.KindNear))

	view, ok := sess.Latest(models.KindNear)
	require.True(t, ok)
	require.Len(t, view.Metrics, 1)
	m := view.Metrics[0]
	assert.Equal(t, "95", m.ATMStrike.String())
	require.NotNil(t, m.AverageIV)
	assert.Greater(t, *m.AverageIV, 0.0)
	assert.Equal(t, int64(1), sess.Stats().Stored)

	// second cycle inside the write interval is retained but not stored
	clock.Advance(5 * time.Minute)
	require.True(t, sess.Trigger(ctx, models.KindNear))
	assert.Equal(t, int64(1), sess.Stats().Stored)

	// an outage keeps the last view and leaves the store untouched
	down.Store(true)
	clock.Advance(20 * time.Minute)
	require.True(t, sess.Trigger(ctx, models.KindNear))
	view, ok = sess.Latest(models.KindNear)
	require.True(t, ok)
	require.NotNil(t, view.LastFailure)
	assert.ErrorIs(t, view.LastFailure.Err, external.ErrNetwork)

	table, err := store.Table(ctx, "nasdaq", models.KindNear)
	require.NoError(t, err)
	stored, err := table.QueryLatest(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 4, stored.ContractCount())
	for _, c := range stored.Expiries["2024-07-31"] {
		assert.NotNil(t, c.IV, "stored rows carry the solved IV")
	}

	series, err := table.QueryMetrics(ctx, time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC), clock.Now(), clock.Now())
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.InDelta(t, *m.AverageIV, *series[0].AverageIV, 1e-12)
}
