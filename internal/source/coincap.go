package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultCoinCapURL is the CoinCap v2 REST base.
const DefaultCoinCapURL = "https://api.coincap.io/v2"

// CoinCapConfig configures the CoinCap poller.
type CoinCapConfig struct {
	BaseURL        string
	SampleInterval float64           // seconds between samples
	Symbols        map[string]string // fleet symbol -> coincap asset id
	Ratios         []Ratio
	Timeout        time.Duration
}

// CoinCap polls the CoinCap assets API.
type CoinCap struct {
	cfg        CoinCapConfig
	producer   Producer
	httpClient *http.Client
	logger     *slog.Logger

	query         string            // prebuilt live assets query
	reverseLookup map[string]string // coincap asset id -> fleet symbol

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoinCap creates a CoinCap source feeding the given producer.
func NewCoinCap(cfg CoinCapConfig, p Producer, logger *slog.Logger) *CoinCap {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCoinCapURL
	}

	ids := make([]string, 0, len(cfg.Symbols))
	reverse := make(map[string]string, len(cfg.Symbols))
	for symbol, id := range cfg.Symbols {
		ids = append(ids, id)
		reverse[id] = symbol
	}
	sort.Strings(ids)

	return &CoinCap{
		cfg:           cfg,
		producer:      p,
		httpClient:    newHTTPClient(cfg.Timeout),
		logger:        logger,
		query:         cfg.BaseURL + "/assets?ids=" + url.QueryEscape(strings.Join(ids, ",")),
		reverseLookup: reverse,
	}
}

// Start backfills an hour of per-minute history, clears the syncing flag,
// and begins live sampling.
func (c *CoinCap) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.backfill(c.ctx); err != nil {
		return fmt.Errorf("coincap backfill: %w", err)
	}
	c.producer.SetSyncing(false)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		runSampler(c.ctx, time.Duration(c.cfg.SampleInterval*float64(time.Second)), c.sample)
	}()

	c.logger.Info("coincap source started", "symbols", len(c.cfg.Symbols))
	return nil
}

// Stop ends sampling.
func (c *CoinCap) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

type coincapAssetsResp struct {
	Data []struct {
		ID       string `json:"id"`
		PriceUSD string `json:"priceUsd"`
	} `json:"data"`
}

type coincapHistoryResp struct {
	Data []struct {
		PriceUSD string `json:"priceUsd"`
		Time     int64  `json:"time"` // ms since epoch
	} `json:"data"`
}

// backfill seeds one hour of history per symbol from per-minute candles,
// fanning each minute out across the sample interval so the buffer fills at
// its native density.
func (c *CoinCap) backfill(ctx context.Context) error {
	end := time.Now()
	start := end.Add(-BackfillWindow)

	perMinute := int(60 / c.cfg.SampleInterval)
	if perMinute < 1 {
		perMinute = 1
	}

	cache := make(map[string][]float64)
	for symbol, id := range c.cfg.Symbols {
		histURL := fmt.Sprintf("%s/assets/%s/history?interval=m1&start=%d&end=%d",
			c.cfg.BaseURL, url.PathEscape(id), start.UnixMilli(), end.UnixMilli())

		var hist coincapHistoryResp
		if err := c.getJSON(ctx, histURL, &hist); err != nil {
			return err
		}

		for _, point := range hist.Data {
			for i := 0; i < perMinute; i++ {
				v := c.producer.UpdateString(symbol, point.PriceUSD)
				if !math.IsNaN(v) {
					cache[symbol] = append(cache[symbol], v)
				}
			}
		}
	}

	backfillRatios(c.producer, c.cfg.Ratios, cache)
	return nil
}

// sample fetches the live price of every tracked asset.
func (c *CoinCap) sample(ctx context.Context) {
	var resp coincapAssetsResp
	if err := c.getJSON(ctx, c.query, &resp); err != nil {
		c.logger.Warn("coincap sample failed", "err", err)
		return
	}

	cache := make(map[string]float64, len(resp.Data))
	for _, asset := range resp.Data {
		symbol, ok := c.reverseLookup[asset.ID]
		if !ok {
			continue
		}
		v := c.producer.UpdateString(symbol, asset.PriceUSD)
		if !math.IsNaN(v) {
			cache[symbol] = v
		}
	}

	applyRatios(c.producer, c.cfg.Ratios, cache)
}

func (c *CoinCap) getJSON(ctx context.Context, rawURL string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("coincap status %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
