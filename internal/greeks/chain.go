package greeks

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// ParseChain decodes `[{strike, expiry, call_oi, put_oi, call_iv, put_iv}]`.
// expiry may be RFC3339 or unix milliseconds. Rows without a positive strike are skipped.
func ParseChain(underlying string, raw []byte) (Chain, error) {
	if !gjson.ValidBytes(raw) {
		return Chain{}, fmt.Errorf("parse chain: invalid json")
	}
	root := gjson.ParseBytes(raw)
	if root.IsObject() && root.Get("strikes").IsArray() {
		root = root.Get("strikes")
	}
	if !root.IsArray() {
		return Chain{}, fmt.Errorf("parse chain: expected array")
	}
	chain := Chain{Underlying: underlying}
	root.ForEach(func(_, row gjson.Result) bool {
		strike := number(row.Get("strike"))
		if strike <= 0 {
			return true
		}
		chain.Strikes = append(chain.Strikes, Strike{
			Strike: strike,
			Expiry: expiry(row.Get("expiry")),
			CallOI: number(row.Get("call_oi")),
			PutOI:  number(row.Get("put_oi")),
			CallIV: number(row.Get("call_iv")),
			PutIV:  number(row.Get("put_iv")),
		})
		return true
	})
	if len(chain.Strikes) == 0 {
		return Chain{}, ErrEmptyChain
	}
	return chain, nil
}

// LoadChain reads a chain file from disk.
func LoadChain(underlying, path string) (Chain, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Chain{}, fmt.Errorf("read chain: %w", err)
	}
	return ParseChain(underlying, raw)
}

// number accepts JSON numbers and numeric strings.
func number(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Number:
		return v.Float()
	case gjson.String:
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func expiry(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.Number:
		return time.UnixMilli(v.Int()).UTC()
	case gjson.String:
		t, err := time.Parse(time.RFC3339, v.String())
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}
