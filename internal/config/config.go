package config

import (
	"time"

	"github.com/microquote/fleet/internal/logging"
)

// Config is the root configuration for a fleet node.
type Config struct {
	Node    NodeConfig     `yaml:"node"`
	Bus     BusConfig      `yaml:"bus"`
	Feed    FeedConfig     `yaml:"feed"`
	Ledger  LedgerConfig   `yaml:"ledger"`
	Maker   MakerConfig    `yaml:"maker"`
	Archive ArchiveConfig  `yaml:"archive"`
	Logging logging.Config `yaml:"logging"`
}

// NodeConfig identifies this node on the discovery channel.
type NodeConfig struct {
	Name string `yaml:"name"`
}

// BusConfig holds the shared transport settings.
type BusConfig struct {
	RedisAddr string `yaml:"redis_addr"`
}

// FeedConfig holds producer/consumer feed settings.
type FeedConfig struct {
	SampleInterval float64  `yaml:"sample_interval"` // seconds between samples
	Markets        []string `yaml:"markets"`         // symbols of interest

	// SourceURL overrides the spot source's API base (feed binaries only).
	SourceURL string `yaml:"source_url"`

	// Symbols maps fleet symbols to the spot source's native identifiers
	// (CoinCap asset ids or Kraken pair names).
	Symbols map[string]string `yaml:"symbols"`

	// Ratios defines synthetic cross-rate symbols.
	Ratios []RatioConfig `yaml:"ratios"`
}

// RatioConfig defines a cross-rate symbol as numerator/denominator.
type RatioConfig struct {
	Symbol      string `yaml:"symbol"`
	Numerator   string `yaml:"numerator"`
	Denominator string `yaml:"denominator"`
}

// LedgerConfig holds remote ledger connection settings.
type LedgerConfig struct {
	RestURL   string        `yaml:"rest_url"`
	WSURL     string        `yaml:"ws_url"`
	Account   string        `yaml:"account"`
	Denom     string        `yaml:"denom"`     // base asset unit for backing amounts
	BlockTime time.Duration `yaml:"blocktime"` // expected block cadence
	Timeout   time.Duration `yaml:"timeout"`

	// EncryptedKey is the base64 keystore envelope holding the account's
	// signing key, decrypted with a prompted password at startup.
	EncryptedKey string `yaml:"encrypted_key"`
}

// Duration maps a bucket length to the ledger's duration label.
type Duration struct {
	Seconds int64  `yaml:"seconds"`
	Label   string `yaml:"label"`
}

// MakerConfig holds the quote reconciliation policy knobs.
type MakerConfig struct {
	MinBalance       Decimal `yaml:"min_balance"`
	MinBacking       Decimal `yaml:"min_backing"`
	MaxBacking       Decimal `yaml:"max_backing"`
	StaticMarkup     float64 `yaml:"static_markup"`
	DynamicMarkup    float64 `yaml:"dynamic_markup"` // coefficient
	PremiumThreshold float64 `yaml:"premium_threshold"`
	StaleFraction    float64 `yaml:"stale_fraction"`

	// TargetBacking is the desired total collateral per duration bucket,
	// keyed by bucket seconds.
	TargetBacking map[int64]Decimal `yaml:"target_backing"`

	// Durations maps bucket seconds to ledger duration labels.
	Durations []Duration `yaml:"durations"`

	// CancelOutOfBounds gates the policy that cancels quotes whose backing
	// falls outside [min_backing, max_backing] or whose bucket exceeds its
	// target.
	CancelOutOfBounds bool `yaml:"cancel_out_of_bounds"`
}

// Label resolves a bucket length to its ledger duration label.
func (m MakerConfig) Label(seconds int64) (string, bool) {
	for _, d := range m.Durations {
		if d.Seconds == seconds {
			return d.Label, true
		}
	}
	return "", false
}

// Seconds resolves a ledger duration label to its bucket length.
func (m MakerConfig) Seconds(label string) (int64, bool) {
	for _, d := range m.Durations {
		if d.Label == label {
			return d.Seconds, true
		}
	}
	return 0, false
}

// ArchiveConfig holds the optional Postgres tick archive.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	DB            DBConfig      `yaml:"db"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
