// Package coingecko is a thin client for the public CoinGecko v3 API: coin
// search, spot prices in USD and EUR, and market chart history.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/lib/errs"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const apiKeyHeader = "x-cg-demo-api-key"

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With(slog.String("client", "coingecko")),
	}
}

type searchResponse struct {
	Coins []models.Coin `json:"coins"`
}

func (c *Client) Search(ctx context.Context, query string) ([]models.Coin, error) {
	const op = "coingecko.Search"

	params := url.Values{}
	params.Set("query", query)

	var resp searchResponse
	if err := c.get(ctx, "/search", params, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if resp.Coins == nil {
		return []models.Coin{}, nil
	}
	return resp.Coins, nil
}

func (c *Client) Price(ctx context.Context, coinID string) (models.Price, error) {
	const op = "coingecko.Price"

	params := url.Values{}
	params.Set("ids", coinID)
	params.Set("vs_currencies", "usd,eur")

	// null quotes decode to nil
	var resp map[string]map[string]*decimal.Decimal
	if err := c.get(ctx, "/simple/price", params, &resp); err != nil {
		return models.Price{}, fmt.Errorf("%s: %w", op, err)
	}

	quotes, ok := resp[coinID]
	if !ok {
		return models.Price{}, fmt.Errorf("%s: %w: no quote for %q", op, errs.ErrPriceUnavailable, coinID)
	}

	usd, eur := quotes["usd"], quotes["eur"]
	if !validQuote(usd) || !validQuote(eur) {
		return models.Price{}, fmt.Errorf("%s: %w: incomplete quote for %q", op, errs.ErrPriceUnavailable, coinID)
	}

	return models.Price{USD: *usd, EUR: *eur}, nil
}

func validQuote(q *decimal.Decimal) bool {
	return q != nil && !q.IsNegative()
}

type marketChartResponse struct {
	Prices []models.PricePoint `json:"prices"`
}

// History fetches the USD and EUR market charts concurrently.
func (c *Client) History(ctx context.Context, coinID string, days int) (models.PriceSeries, error) {
	const op = "coingecko.History"

	var series models.PriceSeries
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		points, err := c.marketChart(gctx, coinID, "usd", days)
		series.USD = points
		return err
	})
	g.Go(func() error {
		points, err := c.marketChart(gctx, coinID, "eur", days)
		series.EUR = points
		return err
	})

	if err := g.Wait(); err != nil {
		return models.PriceSeries{}, fmt.Errorf("%s: %w", op, err)
	}

	return series, nil
}

func (c *Client) marketChart(ctx context.Context, coinID, currency string, days int) ([]models.PricePoint, error) {
	params := url.Values{}
	params.Set("vs_currency", currency)
	params.Set("days", strconv.Itoa(days))

	var resp marketChartResponse
	if err := c.get(ctx, "/coins/"+url.PathEscape(coinID)+"/market_chart", params, &resp); err != nil {
		return nil, err
	}

	if resp.Prices == nil {
		return nil, fmt.Errorf("no %s history available for %q", currency, coinID)
	}
	return resp.Prices, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	c.log.Debug("requesting market data", "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("market data api returned non-200 status", "path", path, "status", resp.Status)
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}
