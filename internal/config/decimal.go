package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Decimal wraps decimal.Decimal for YAML config fields. yaml.v3 does not
// consult encoding.TextUnmarshaler, so the wrapper decodes the scalar itself.
// Money amounts in config are quoted strings to keep them exact.
type Decimal struct {
	decimal.Decimal
}

// Dec wraps a decimal.Decimal.
func Dec(d decimal.Decimal) Decimal { return Decimal{d} }

// DecInt wraps an integer amount.
func DecInt(n int64) Decimal { return Decimal{decimal.NewFromInt(n)} }

// UnmarshalYAML decodes a scalar node into a decimal.
func (d *Decimal) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: cannot decode %s into a decimal amount", value.Line, value.Tag)
	}
	v, err := decimal.NewFromString(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: bad decimal amount %q", value.Line, value.Value)
	}
	d.Decimal = v
	return nil
}

// MarshalYAML encodes the decimal as a string scalar.
func (d Decimal) MarshalYAML() (any, error) {
	return d.String(), nil
}
