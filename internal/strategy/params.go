package strategy

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"kairos/internal/errs"
)

// Params is the raw, JSON-decoded parameter map of a run request. The typed
// accessors below apply defaults for absent keys and return *errs.ConfigError
// for values of the wrong type, so factories can validate ranges only.
type Params map[string]any

// Int returns the integer parameter under key, or def when absent.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, errs.NewConfigError(key, "expected integer, got %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, errs.NewConfigError(key, "expected integer, got %q", n.String())
		}
		return int(i), nil
	default:
		return 0, errs.NewConfigError(key, "expected integer, got %T", v)
	}
}

// Decimal returns the decimal parameter under key, or def when absent.
func (p Params) Decimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero, errs.NewConfigError(key, "expected number, got %q", n)
		}
		return d, nil
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, errs.NewConfigError(key, "expected number, got %q", n.String())
		}
		return d, nil
	default:
		return decimal.Zero, errs.NewConfigError(key, "expected number, got %T", v)
	}
}

// Bool returns the boolean parameter under key, or def when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, errs.NewConfigError(key, "expected boolean, got %T", v)
	}
	return b, nil
}

// String returns the string parameter under key, or def when absent.
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errs.NewConfigError(key, "expected string, got %T", v)
	}
	return s, nil
}

// StringSlice returns the string-list parameter under key, or def when
// absent.
func (p Params) StringSlice(key string, def []string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, errs.NewConfigError(key, "expected string list, got %T element", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errs.NewConfigError(key, "expected string list, got %T", v)
	}
}

// ObjectSlice returns the object-list parameter under key, or nil when
// absent. Staged-entry level ladders arrive this way.
func (p Params) ObjectSlice(key string) ([]Params, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, errs.NewConfigError(key, "expected object list, got %T", v)
	}
	out := make([]Params, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, errs.NewConfigError(key, "expected object list, got %T element", item)
		}
		out = append(out, Params(m))
	}
	return out, nil
}

// Has reports whether key is present, regardless of its value.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}
