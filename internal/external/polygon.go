package external

import (
	"context"
	"fmt"
	"net/http"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	pmodels "github.com/polygon-io/client-go/rest/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/optiontrack/internal/models"
)

const (
	polygonSource    = "polygon"
	polygonPageLimit = 250
)

// polygonAPI is the slice of the Polygon REST surface the adapter needs.
type polygonAPI interface {
	ListChain(ctx context.Context, symbol string, from, to time.Time) ([]pmodels.OptionContractSnapshot, error)
	MarketStatus(ctx context.Context) (string, error)
	PreviousClose(ctx context.Context, symbol string) (float64, error)
}

type polygonREST struct {
	client *polygon.Client
}

func (p *polygonREST) ListChain(ctx context.Context, symbol string, from, to time.Time) ([]pmodels.OptionContractSnapshot, error) {
	gte := pmodels.Date(from)
	lte := pmodels.Date(to)
	limit := polygonPageLimit
	params := &pmodels.ListOptionsChainParams{
		UnderlyingAsset:   symbol,
		ExpirationDateGTE: &gte,
		ExpirationDateLTE: &lte,
		Limit:             &limit,
	}

	var out []pmodels.OptionContractSnapshot
	it := p.client.ListOptionsChainSnapshot(ctx, params)
	for it.Next() {
		out = append(out, it.Item())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *polygonREST) MarketStatus(ctx context.Context) (string, error) {
	res, err := p.client.GetMarketStatus(ctx)
	if err != nil {
		return "", err
	}
	return res.Market, nil
}

func (p *polygonREST) PreviousClose(ctx context.Context, symbol string) (float64, error) {
	res, err := p.client.GetPreviousCloseAgg(ctx, &pmodels.GetPreviousCloseAggParams{Ticker: symbol})
	if err != nil {
		return 0, err
	}
	if len(res.Results) == 0 {
		return 0, fmt.Errorf("no previous close for %s", symbol)
	}
	return res.Results[0].Close, nil
}

// PolygonClient adapts Polygon's options chain snapshot to the common chain model.
type PolygonClient struct {
	api polygonAPI
	now func() time.Time
	log *logrus.Entry
}

func NewPolygonClient(apiKey string, httpClient *http.Client, now func() time.Time) *PolygonClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return newPolygonClient(&polygonREST{client: polygon.NewWithClient(apiKey, httpClient)}, now)
}

func newPolygonClient(api polygonAPI, now func() time.Time) *PolygonClient {
	if now == nil {
		now = time.Now
	}
	return &PolygonClient{api: api, now: now, log: logrus.WithField("component", "polygon")}
}

func (c *PolygonClient) Name() string { return polygonSource }

func (c *PolygonClient) FetchChain(ctx context.Context, symbol string, kind models.ChainKind) (*models.ChainSnapshot, error) {
	now := c.now()
	from, to := chainWindow(now, kind)

	items, err := c.api.ListChain(ctx, symbol, from, to)
	if err != nil {
		return nil, fetchErr(polygonSource, ErrNetwork, "options chain snapshot: %v", err)
	}
	if len(items) == 0 {
		return nil, fetchErr(polygonSource, ErrNoData, "no contracts for %s", symbol)
	}

	contracts, spot, err := normalizePolygon(items)
	if err != nil {
		return nil, err
	}

	status := models.MarketUnknown
	if s, err := c.api.MarketStatus(ctx); err != nil {
		c.log.WithError(err).Warn("market status unavailable")
	} else {
		status = models.ParseMarketStatus(s)
	}

	prev, err := c.api.PreviousClose(ctx, symbol)
	if err != nil {
		c.log.WithError(err).Debug("previous close unavailable")
		prev = 0
	}

	return models.NewChainSnapshot(symbol, polygonSource, kind, spot, prev, now, status, contracts), nil
}

// normalizePolygon maps Polygon's nested snapshot fields onto the common contract
// shape and pulls the underlying price from the first item that reports it.
func normalizePolygon(items []pmodels.OptionContractSnapshot) ([]models.OptionContract, float64, error) {
	out := make([]models.OptionContract, 0, len(items))
	spot := 0.0

	for _, it := range items {
		if spot == 0 && it.UnderlyingAsset.Price > 0 {
			spot = it.UnderlyingAsset.Price
		}
		right, err := models.ParseRight(it.Details.ContractType)
		if err != nil {
			continue
		}
		if it.Details.StrikePrice <= 0 {
			continue
		}
		expiry := time.Time(it.Details.ExpirationDate)
		if expiry.IsZero() {
			continue
		}
		out = append(out, models.OptionContract{
			Strike:       decimal.NewFromFloat(it.Details.StrikePrice),
			Expiry:       models.Date(expiry),
			Right:        right,
			Last:         it.Day.Close,
			Bid:          it.LastQuote.Bid,
			Ask:          it.LastQuote.Ask,
			OpenInterest: int64(it.OpenInterest),
			Volume:       int64(it.Day.Volume),
		})
	}

	if spot <= 0 {
		return nil, 0, fetchErr(polygonSource, ErrParse, "underlying_asset.price missing")
	}
	if len(out) == 0 {
		return nil, 0, fetchErr(polygonSource, ErrParse, "no usable contracts (contract_type/strike_price/expiration_date)")
	}
	return out, spot, nil
}
