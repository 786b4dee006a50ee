// Package token parses the mini-DSL references embedded in condition
// strings, e.g. "Close_5min", "EMA9_1h", "previous_DevBand72_1h_Lower_6".
package token

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"mtf-signal-engine/internal/market"
)

// Category tags the kind of value a token refers to.
type Category int

const (
	CategoryPrice Category = iota
	CategoryVolume
	CategoryEMA
	CategoryDevBand
)

func (c Category) String() string {
	switch c {
	case CategoryPrice:
		return "price"
	case CategoryVolume:
		return "volume"
	case CategoryEMA:
		return "ema"
	case CategoryDevBand:
		return "devband"
	default:
		return "unknown"
	}
}

// Price fields and band sides, lower-cased.
const (
	FieldOpen  = "open"
	FieldHigh  = "high"
	FieldLow   = "low"
	FieldClose = "close"

	BandUpper = "upper"
	BandLower = "lower"
)

// Token is a parsed, stateless reference to a value at a resolution.
// Previous selects the prior bar in the token's own resolution.
type Token struct {
	Raw        string
	Category   Category
	Field      string // price field for CategoryPrice
	Band       string // upper/lower for CategoryDevBand
	Period     int
	Multiplier float64
	Resolution market.Resolution
	Previous   bool
}

// Key identifies the value the token resolves to, ignoring Raw spelling, so
// "EMA9_60min" and "ema9_1h" share one resolved value.
func (t Token) Key() string {
	return fmt.Sprintf("%d|%s|%s|%d|%g|%s|%v",
		t.Category, t.Field, t.Band, t.Period, t.Multiplier, t.Resolution, t.Previous)
}

// UnknownTokenError reports an unparseable token with up to three
// best-effort suggestions.
type UnknownTokenError struct {
	Token       string
	Suggestions []string
}

func (e *UnknownTokenError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown token %q", e.Token)
	}
	return fmt.Sprintf("unknown token %q (did you mean %s?)", e.Token, strings.Join(e.Suggestions, ", "))
}

var (
	priceVolumeRe = regexp.MustCompile(`(?i)^(previous_)?(open|high|low|close|volume)_([0-9a-z]+)$`)
	emaRe         = regexp.MustCompile(`(?i)^(previous_)?ema(\d+)_([0-9a-z]+)$`)
	devBandRe     = regexp.MustCompile(`(?i)^(previous_)?devband(\d+)_([0-9a-z]+)_(upper|lower)_(\d+(?:\.\d+)?)$`)
)

type parseResult struct {
	tok Token
	err error
}

// Tokens are stateless grammar, independent of any data, so parse results
// are cached process-wide.
var parseCache sync.Map // string -> parseResult

// Parse parses a token string. Identifiers are case-insensitive and the
// resolution suffix is canonicalized through market.NormalizeResolution,
// so "EMA9_60min" and "ema9_1H" parse identically.
func Parse(raw string) (Token, error) {
	if cached, ok := parseCache.Load(raw); ok {
		r := cached.(parseResult)
		return r.tok, r.err
	}

	var result parseResult
	if tok, ok := match(raw); ok {
		result.tok = tok
	} else {
		result.err = unknown(raw)
	}
	parseCache.Store(raw, result)
	return result.tok, result.err
}

// match attempts to parse raw without producing suggestions.
func match(raw string) (Token, bool) {
	if m := devBandRe.FindStringSubmatch(raw); m != nil {
		res, err := market.NormalizeResolution(m[3])
		if err != nil {
			return Token{}, false
		}
		period, _ := strconv.Atoi(m[2])
		if period < 1 {
			return Token{}, false
		}
		mult, _ := strconv.ParseFloat(m[5], 64)
		return Token{
			Raw:        raw,
			Category:   CategoryDevBand,
			Band:       strings.ToLower(m[4]),
			Period:     period,
			Multiplier: mult,
			Resolution: res,
			Previous:   m[1] != "",
		}, true
	}

	if m := emaRe.FindStringSubmatch(raw); m != nil {
		res, err := market.NormalizeResolution(m[3])
		if err != nil {
			return Token{}, false
		}
		period, _ := strconv.Atoi(m[2])
		if period < 1 {
			return Token{}, false
		}
		return Token{
			Raw:        raw,
			Category:   CategoryEMA,
			Period:     period,
			Resolution: res,
			Previous:   m[1] != "",
		}, true
	}

	if m := priceVolumeRe.FindStringSubmatch(raw); m != nil {
		res, err := market.NormalizeResolution(m[3])
		if err != nil {
			return Token{}, false
		}
		field := strings.ToLower(m[2])
		tok := Token{
			Raw:        raw,
			Resolution: res,
			Previous:   m[1] != "",
		}
		if field == "volume" {
			tok.Category = CategoryVolume
		} else {
			tok.Category = CategoryPrice
			tok.Field = field
		}
		return tok, true
	}

	return Token{}, false
}

// unknown builds an UnknownTokenError. When the failure is a non-canonical
// resolution suffix the same token with the suffix normalized is suggested
// first; common token shapes pad the list to three.
func unknown(raw string) *UnknownTokenError {
	var suggestions []string

	if i := strings.LastIndex(raw, "_"); i > 0 && i < len(raw)-1 {
		if res, err := market.NormalizeResolution(raw[i+1:]); err == nil {
			candidate := raw[:i+1] + string(res)
			if candidate != raw {
				if _, ok := match(candidate); ok {
					suggestions = append(suggestions, candidate)
				}
			}
		}
	}

	for _, common := range []string{"Close_5min", "EMA9_1h", "DevBand72_1h_Lower_6"} {
		if len(suggestions) >= 3 {
			break
		}
		suggestions = append(suggestions, common)
	}

	return &UnknownTokenError{Token: raw, Suggestions: suggestions}
}
