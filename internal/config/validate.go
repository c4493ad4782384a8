package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Node.Name == "" {
		return errors.New("node.name is required")
	}

	if c.Feed.SampleInterval <= 0 {
		return errors.New("feed.sample_interval must be > 0")
	}

	if c.Maker.StaleFraction <= 0 || c.Maker.StaleFraction > 1 {
		return fmt.Errorf("maker.stale_fraction must be in (0, 1], got %v", c.Maker.StaleFraction)
	}
	if c.Maker.PremiumThreshold < 0 {
		return errors.New("maker.premium_threshold must be >= 0")
	}
	if c.Maker.MinBacking.IsNegative() {
		return errors.New("maker.min_backing must be >= 0")
	}
	if c.Maker.MaxBacking.IsPositive() && c.Maker.MaxBacking.LessThan(c.Maker.MinBacking.Decimal) {
		return fmt.Errorf("maker.max_backing (%s) cannot be below min_backing (%s)",
			c.Maker.MaxBacking, c.Maker.MinBacking)
	}

	seen := make(map[int64]bool)
	for _, d := range c.Maker.Durations {
		if d.Seconds <= 0 {
			return fmt.Errorf("maker.durations: bucket seconds must be > 0, got %d", d.Seconds)
		}
		if d.Label == "" {
			return fmt.Errorf("maker.durations: bucket %d needs a label", d.Seconds)
		}
		if seen[d.Seconds] {
			return fmt.Errorf("maker.durations: duplicate bucket %d", d.Seconds)
		}
		seen[d.Seconds] = true
	}

	for bucket := range c.Maker.TargetBacking {
		if !seen[bucket] {
			return fmt.Errorf("maker.target_backing: unknown duration bucket %d", bucket)
		}
	}

	if c.Archive.Enabled {
		if err := c.Archive.DB.validate("archive.db"); err != nil {
			return err
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
