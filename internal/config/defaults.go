package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRedisAddr      = "localhost:6379"
	DefaultLedgerRestURL  = "http://localhost:1320"
	DefaultLedgerWSURL    = "ws://localhost:1320/events"
	DefaultDenom          = "dai"
	DefaultBlockTime      = 5 * time.Second
	DefaultLedgerTimeout  = 30 * time.Second
	DefaultSampleInterval = 10.0

	DefaultStaticMarkup     = 1.0
	DefaultPremiumThreshold = 0.5
	DefaultStaleFraction    = 0.25

	DefaultDBPort        = 5432
	DefaultDBSSLMode     = "prefer"
	DefaultMaxConns      = 10
	DefaultMinConns      = 2
	DefaultBatchSize     = 1000
	DefaultFlushInterval = 1 * time.Second
)

// defaultDurations is the standard bucket set when none is configured.
var defaultDurations = []Duration{
	{Seconds: 300, Label: "5minute"},
	{Seconds: 900, Label: "15minute"},
	{Seconds: 3600, Label: "1hour"},
	{Seconds: 14400, Label: "4hour"},
	{Seconds: 43200, Label: "12hour"},
}

func (c *Config) applyDefaults() {
	if c.Bus.RedisAddr == "" {
		c.Bus.RedisAddr = DefaultRedisAddr
	}

	if c.Feed.SampleInterval == 0 {
		c.Feed.SampleInterval = DefaultSampleInterval
	}

	if c.Ledger.RestURL == "" {
		c.Ledger.RestURL = DefaultLedgerRestURL
	}
	if c.Ledger.WSURL == "" {
		c.Ledger.WSURL = DefaultLedgerWSURL
	}
	if c.Ledger.Denom == "" {
		c.Ledger.Denom = DefaultDenom
	}
	if c.Ledger.BlockTime == 0 {
		c.Ledger.BlockTime = DefaultBlockTime
	}
	if c.Ledger.Timeout == 0 {
		c.Ledger.Timeout = DefaultLedgerTimeout
	}

	if c.Maker.StaticMarkup == 0 {
		c.Maker.StaticMarkup = DefaultStaticMarkup
	}
	if c.Maker.PremiumThreshold == 0 {
		c.Maker.PremiumThreshold = DefaultPremiumThreshold
	}
	if c.Maker.StaleFraction == 0 {
		c.Maker.StaleFraction = DefaultStaleFraction
	}
	if len(c.Maker.Durations) == 0 {
		c.Maker.Durations = defaultDurations
	}

	if c.Archive.Enabled {
		applyDBDefaults(&c.Archive.DB)
		if c.Archive.BatchSize == 0 {
			c.Archive.BatchSize = DefaultBatchSize
		}
		if c.Archive.FlushInterval == 0 {
			c.Archive.FlushInterval = DefaultFlushInterval
		}
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
