package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kjannette/optiontrack/internal/httputil"
	"github.com/kjannette/optiontrack/internal/models"
)

const (
	nasdaqSource      = "nasdaq"
	nasdaqGroupLayout = "January 2, 2006"
	nasdaqRowLimit    = 10000
	maxDrillDownBytes = 10 << 20
)

type NasdaqOptions struct {
	BaseURL   string
	UserAgent string
	Now       func() time.Time
}

// NasdaqClient reads the public Nasdaq quote API. Each call is a single attempt.
type NasdaqClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	retry      httputil.RetryConfig
	now        func() time.Time
}

func NewNasdaqClient(httpClient *http.Client, opts NasdaqOptions) *NasdaqClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.nasdaq.com"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &NasdaqClient{
		baseURL:    base,
		userAgent:  opts.UserAgent,
		httpClient: httpClient,
		retry:      httputil.SingleShot,
		now:        now,
	}
}

func (c *NasdaqClient) Name() string { return nasdaqSource }

type nasdaqStatus struct {
	RCode int `json:"rCode"`
}

type nasdaqInfoResponse struct {
	Data *struct {
		Symbol       string `json:"symbol"`
		MarketStatus string `json:"marketStatus"`
		PrimaryData  struct {
			LastSalePrice string `json:"lastSalePrice"`
			NetChange     string `json:"netChange"`
		} `json:"primaryData"`
	} `json:"data"`
	Status nasdaqStatus `json:"status"`
}

type nasdaqChainRow struct {
	ExpiryGroup  string `json:"expirygroup"`
	Strike       string `json:"strike"`
	CallLast     string `json:"c_Last"`
	CallBid      string `json:"c_Bid"`
	CallAsk      string `json:"c_Ask"`
	CallVolume   string `json:"c_Volume"`
	CallOpenInt  string `json:"c_Openinterest"`
	PutLast      string `json:"p_Last"`
	PutBid       string `json:"p_Bid"`
	PutAsk       string `json:"p_Ask"`
	PutVolume    string `json:"p_Volume"`
	PutOpenInt   string `json:"p_Openinterest"`
	DrillDownURL string `json:"drillDownURL"`
}

type nasdaqChainResponse struct {
	Data *struct {
		Table *struct {
			Rows []nasdaqChainRow `json:"rows"`
		} `json:"table"`
	} `json:"data"`
	Status nasdaqStatus `json:"status"`
}

func (c *NasdaqClient) FetchChain(ctx context.Context, symbol string, kind models.ChainKind) (*models.ChainSnapshot, error) {
	now := c.now()
	spot, prevClose, status, err := c.fetchQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	from, to := chainWindow(now, kind)
	q := url.Values{}
	q.Set("assetclass", "stocks")
	q.Set("limit", strconv.Itoa(nasdaqRowLimit))
	q.Set("fromdate", from.Format(models.DateLayout))
	q.Set("todate", to.Format(models.DateLayout))
	q.Set("excode", "oprac")
	q.Set("callput", "callput")
	q.Set("money", "all")
	q.Set("type", "all")

	var resp nasdaqChainResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/api/quote/%s/option-chain", url.PathEscape(symbol)), q, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.Table == nil {
		if resp.Status.RCode != 0 && resp.Status.RCode != http.StatusOK {
			return nil, fetchErr(nasdaqSource, ErrNoData, "option-chain rCode %d", resp.Status.RCode)
		}
		return nil, fetchErr(nasdaqSource, ErrParse, "option-chain payload has no table")
	}

	contracts, err := c.normalizeRows(resp.Data.Table.Rows)
	if err != nil {
		return nil, err
	}
	if len(contracts) == 0 {
		return nil, fetchErr(nasdaqSource, ErrNoData, "no contracts for %s", symbol)
	}

	return models.NewChainSnapshot(symbol, nasdaqSource, kind, spot, prevClose, now, status, contracts), nil
}

func (c *NasdaqClient) fetchQuote(ctx context.Context, symbol string) (spot, prevClose float64, status models.MarketStatus, err error) {
	q := url.Values{}
	q.Set("assetclass", "stocks")

	var resp nasdaqInfoResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/api/quote/%s/info", url.PathEscape(symbol)), q, &resp); err != nil {
		return 0, 0, models.MarketUnknown, err
	}
	if resp.Data == nil {
		return 0, 0, models.MarketUnknown, fetchErr(nasdaqSource, ErrParse, "info payload has no data (rCode %d)", resp.Status.RCode)
	}

	last, ok := parseNumber(resp.Data.PrimaryData.LastSalePrice)
	if !ok || last <= 0 {
		return 0, 0, models.MarketUnknown, fetchErr(nasdaqSource, ErrParse, "lastSalePrice %q", resp.Data.PrimaryData.LastSalePrice)
	}
	prev := 0.0
	if change, ok := parseNumber(resp.Data.PrimaryData.NetChange); ok {
		prev = last - change
	}
	return last, prev, models.ParseMarketStatus(resp.Data.MarketStatus), nil
}

// normalizeRows expands flat c_/p_ rows into tagged contracts. Header rows carry
// the expiry group; contract rows that follow inherit it.
func (c *NasdaqClient) normalizeRows(rows []nasdaqChainRow) ([]models.OptionContract, error) {
	var out []models.OptionContract
	var expiry time.Time
	haveGroup := false

	for _, r := range rows {
		if g := strings.TrimSpace(r.ExpiryGroup); g != "" {
			t, err := time.Parse(nasdaqGroupLayout, g)
			if err != nil {
				return nil, fetchErr(nasdaqSource, ErrParse, "expirygroup %q", g)
			}
			expiry = models.Date(t)
			haveGroup = true
			continue
		}
		if !haveGroup || strings.TrimSpace(r.Strike) == "" {
			continue
		}
		strike, err := decimal.NewFromString(cleanNumber(r.Strike))
		if err != nil {
			return nil, fetchErr(nasdaqSource, ErrParse, "strike %q", r.Strike)
		}

		drill := c.resolveURL(r.DrillDownURL)
		call := models.OptionContract{
			Strike: strike, Expiry: expiry, Right: models.Call,
			Last: num(r.CallLast), Bid: num(r.CallBid), Ask: num(r.CallAsk),
			Volume: int64(num(r.CallVolume)), OpenInterest: int64(num(r.CallOpenInt)),
			DrillDownURL: drill,
		}
		put := models.OptionContract{
			Strike: strike, Expiry: expiry, Right: models.Put,
			Last: num(r.PutLast), Bid: num(r.PutBid), Ask: num(r.PutAsk),
			Volume: int64(num(r.PutVolume)), OpenInterest: int64(num(r.PutOpenInt)),
			DrillDownURL: drill,
		}
		if quoted(r.CallLast, r.CallBid, r.CallAsk) {
			out = append(out, call)
		}
		if quoted(r.PutLast, r.PutBid, r.PutAsk) {
			out = append(out, put)
		}
	}
	return out, nil
}

// FetchDrillDown downloads the history chart linked from a contract row.
func (c *NasdaqClient) FetchDrillDown(ctx context.Context, link string) ([]byte, error) {
	if link == "" {
		return nil, fmt.Errorf("empty drill-down link")
	}
	target := c.resolveURL(link)
	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)
		return req, nil
	})
	if err != nil {
		return nil, fetchErr(nasdaqSource, ErrNetwork, "drill-down: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fetchErr(nasdaqSource, ErrNetwork, "drill-down returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDrillDownBytes))
}

func (c *NasdaqClient) getJSON(ctx context.Context, path string, q url.Values, dst any) error {
	target := c.baseURL + path + "?" + q.Encode()
	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)
		return req, nil
	})
	if err != nil {
		return fetchErr(nasdaqSource, ErrNetwork, "%s: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fetchErr(nasdaqSource, ErrNetwork, "%s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fetchErr(nasdaqSource, ErrParse, "decode %s: %v", path, err)
	}
	return nil
}

func (c *NasdaqClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

func (c *NasdaqClient) resolveURL(link string) string {
	link = strings.TrimSpace(link)
	if link == "" || strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return c.baseURL + "/" + strings.TrimLeft(link, "/")
}

// chainWindow bounds the expiries requested for a chain kind. LEAPs start a year out.
func chainWindow(now time.Time, kind models.ChainKind) (from, to time.Time) {
	today := models.MarketDate(now)
	leapStart := today.AddDate(1, 0, 0)
	if kind == models.KindLeap {
		return leapStart, today.AddDate(3, 0, 0)
	}
	return today, leapStart.AddDate(0, 0, -1)
}

func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	return s
}

// parseNumber handles "$1,234.50", "+1.2", and the "--" placeholder.
func parseNumber(s string) (float64, bool) {
	s = cleanNumber(s)
	if s == "" || s == "--" || strings.EqualFold(s, "n/a") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func num(s string) float64 {
	f, _ := parseNumber(s)
	return f
}

func quoted(fields ...string) bool {
	for _, f := range fields {
		if _, ok := parseNumber(f); ok {
			return true
		}
	}
	return false
}
