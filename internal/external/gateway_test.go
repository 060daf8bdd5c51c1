package external

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/optiontrack/internal/models"
)

type fakeProvider struct {
	name  string
	snap  *models.ChainSnapshot
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) FetchChain(ctx context.Context, symbol string, kind models.ChainKind) (*models.ChainSnapshot, error) {
	f.calls++
	return f.snap, f.err
}

func sampleSnapshot(source string) *models.ChainSnapshot {
	expiry := time.Date(2024, 7, 19, 0, 0, 0, 0, time.UTC)
	return models.NewChainSnapshot("AAPL", source, models.KindNear, 210, 208, time.Now(), models.MarketOpen, []models.OptionContract{
		{Strike: decimal.NewFromInt(210), Expiry: expiry, Right: models.Call, Last: 5},
		{Strike: decimal.NewFromInt(210), Expiry: expiry, Right: models.Put, Last: 4},
	})
}

func TestGateway_PrimarySuccess(t *testing.T) {
	primary := &fakeProvider{name: "nasdaq", snap: sampleSnapshot("nasdaq")}
	secondary := &fakeProvider{name: "polygon", snap: sampleSnapshot("polygon")}

	snap, err := NewGateway(primary, secondary, nil).FetchChain(context.Background(), "AAPL", models.KindNear)
	require.NoError(t, err)
	assert.Equal(t, "nasdaq", snap.Source)
	assert.Equal(t, 0, secondary.calls)
}

func TestGateway_FallbackOnNetworkError(t *testing.T) {
	primary := &fakeProvider{name: "nasdaq", err: fetchErr("nasdaq", ErrNetwork, "connection refused")}
	secondary := &fakeProvider{name: "polygon", snap: sampleSnapshot("polygon")}

	snap, err := NewGateway(primary, secondary, nil).FetchChain(context.Background(), "AAPL", models.KindNear)
	require.NoError(t, err)
	assert.Equal(t, "polygon", snap.Source)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestGateway_FallbackOnEmptyChain(t *testing.T) {
	empty := models.NewChainSnapshot("AAPL", "nasdaq", models.KindNear, 210, 208, time.Now(), models.MarketOpen, nil)
	primary := &fakeProvider{name: "nasdaq", snap: empty}
	secondary := &fakeProvider{name: "polygon", snap: sampleSnapshot("polygon")}

	snap, err := NewGateway(primary, secondary, nil).FetchChain(context.Background(), "AAPL", models.KindNear)
	require.NoError(t, err)
	assert.Equal(t, "polygon", snap.Source)
}

func TestGateway_BothFail(t *testing.T) {
	primary := &fakeProvider{name: "nasdaq", err: fetchErr("nasdaq", ErrParse, "bad json")}
	secondary := &fakeProvider{name: "polygon", err: errors.New("boom")}

	_, err := NewGateway(primary, secondary, nil).FetchChain(context.Background(), "AAPL", models.KindLeap)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, err.Error(), "polygon")
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls, "no retries beyond the handoff")
}

func TestGateway_NoSecondary(t *testing.T) {
	primary := &fakeProvider{name: "nasdaq", err: fetchErr("nasdaq", ErrNetwork, "timeout")}

	_, err := NewGateway(primary, nil, nil).FetchChain(context.Background(), "AAPL", models.KindNear)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
}
