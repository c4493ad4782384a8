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

// DefaultKrakenURL is the Kraken public REST base.
const DefaultKrakenURL = "https://api.kraken.com/0/public"

// KrakenConfig configures the Kraken poller.
type KrakenConfig struct {
	BaseURL        string
	SampleInterval float64           // seconds between samples
	Pairs          map[string]string // fleet symbol -> kraken pair name
	Ratios         []Ratio
	Timeout        time.Duration
}

// Kraken polls the Kraken public ticker API.
type Kraken struct {
	cfg        KrakenConfig
	producer   Producer
	httpClient *http.Client
	logger     *slog.Logger

	query         string            // prebuilt Ticker query for all pairs
	reverseLookup map[string]string // kraken pair -> fleet symbol

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKraken creates a Kraken source feeding the given producer.
func NewKraken(cfg KrakenConfig, p Producer, logger *slog.Logger) *Kraken {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultKrakenURL
	}

	pairs := make([]string, 0, len(cfg.Pairs))
	reverse := make(map[string]string, len(cfg.Pairs))
	for symbol, pair := range cfg.Pairs {
		pairs = append(pairs, pair)
		reverse[pair] = symbol
	}
	sort.Strings(pairs)

	return &Kraken{
		cfg:           cfg,
		producer:      p,
		httpClient:    newHTTPClient(cfg.Timeout),
		logger:        logger,
		query:         cfg.BaseURL + "/Ticker?pair=" + url.QueryEscape(strings.Join(pairs, ",")),
		reverseLookup: reverse,
	}
}

// Start backfills an hour of per-minute OHLC closes, clears the syncing
// flag, and begins live sampling.
func (k *Kraken) Start(ctx context.Context) error {
	k.ctx, k.cancel = context.WithCancel(ctx)

	if err := k.backfill(k.ctx); err != nil {
		return fmt.Errorf("kraken backfill: %w", err)
	}
	k.producer.SetSyncing(false)

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		runSampler(k.ctx, time.Duration(k.cfg.SampleInterval*float64(time.Second)), k.sample)
	}()

	k.logger.Info("kraken source started", "pairs", len(k.cfg.Pairs))
	return nil
}

// Stop ends sampling.
func (k *Kraken) Stop() {
	if k.cancel != nil {
		k.cancel()
	}
	k.wg.Wait()
}

// krakenResp is the common Kraken envelope: errors plus a result object
// keyed by pair name.
type krakenResp struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

// krakenTicker is the slice of Ticker fields we use. "c" is the last trade
// closed array: [price, lot volume].
type krakenTicker struct {
	Close []string `json:"c"`
}

// backfill seeds one hour of history per pair from minute OHLC candles,
// fanning each close out across the sample interval.
func (k *Kraken) backfill(ctx context.Context) error {
	since := time.Now().Add(-BackfillWindow).Unix()

	perMinute := int(60 / k.cfg.SampleInterval)
	if perMinute < 1 {
		perMinute = 1
	}

	cache := make(map[string][]float64)
	for symbol, pair := range k.cfg.Pairs {
		ohlcURL := fmt.Sprintf("%s/OHLC?pair=%s&interval=1&since=%d",
			k.cfg.BaseURL, url.QueryEscape(pair), since)

		var resp krakenResp
		if err := k.getJSON(ctx, ohlcURL, &resp); err != nil {
			return err
		}

		raw, ok := resp.Result[pair]
		if !ok {
			// Kraken sometimes answers under its canonical pair alias;
			// take the single non-"last" entry.
			for key, v := range resp.Result {
				if key != "last" {
					raw = v
					break
				}
			}
		}
		if raw == nil {
			return fmt.Errorf("kraken ohlc: no data for %s", pair)
		}

		// Each row is [time, open, high, low, close, vwap, volume, count].
		var rows [][]json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil {
			return fmt.Errorf("kraken ohlc rows: %w", err)
		}

		for _, row := range rows {
			if len(row) < 5 {
				continue
			}
			var closePrice string
			if err := json.Unmarshal(row[4], &closePrice); err != nil {
				continue
			}
			for i := 0; i < perMinute; i++ {
				v := k.producer.UpdateString(symbol, closePrice)
				if !math.IsNaN(v) {
					cache[symbol] = append(cache[symbol], v)
				}
			}
		}
	}

	backfillRatios(k.producer, k.cfg.Ratios, cache)
	return nil
}

// sample fetches the last trade price of every tracked pair.
func (k *Kraken) sample(ctx context.Context) {
	var resp krakenResp
	if err := k.getJSON(ctx, k.query, &resp); err != nil {
		k.logger.Warn("kraken sample failed", "err", err)
		return
	}

	cache := make(map[string]float64, len(resp.Result))
	for pair, raw := range resp.Result {
		symbol, ok := k.reverseLookup[pair]
		if !ok {
			continue
		}
		var ticker krakenTicker
		if err := json.Unmarshal(raw, &ticker); err != nil || len(ticker.Close) == 0 {
			continue
		}
		v := k.producer.UpdateString(symbol, ticker.Close[0])
		if !math.IsNaN(v) {
			cache[symbol] = v
		}
	}

	applyRatios(k.producer, k.cfg.Ratios, cache)
}

func (k *Kraken) getJSON(ctx context.Context, rawURL string, result *krakenResp) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("kraken status %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if len(result.Error) > 0 {
		return fmt.Errorf("kraken error: %s", strings.Join(result.Error, "; "))
	}
	return nil
}
