// Package source adapts upstream feeds (CSV exports, scraped price tables)
// into normalized observations. All feeder-specific field naming stays in
// here; the core pipeline only ever sees market.PriceObservation.
package source

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ThurX360/WIZFUT/internal/market"
)

// Source produces one batch of normalized observations per poll cycle. An
// empty batch with a nil error means "nothing new" and is not a failure.
type Source interface {
	Fetch(ctx context.Context) ([]market.PriceObservation, error)
}

// Canonical field names accepted by the column mapping.
const (
	FieldEntityID  = "entity_id"
	FieldName      = "name"
	FieldRating    = "rating"
	FieldLeague    = "league"
	FieldPosition  = "position"
	FieldPrice     = "price"
	FieldAvg24h    = "avg_24h"
	FieldStd24h    = "std_24h"
	FieldUpdatedAt = "updated_at"
)

// DefaultColumns maps canonical fields to the Futbin export headers.
func DefaultColumns() map[string]string {
	return map[string]string{
		FieldEntityID:  "player_id",
		FieldName:      "name",
		FieldRating:    "rating",
		FieldLeague:    "league",
		FieldPosition:  "position",
		FieldPrice:     "price",
		FieldAvg24h:    "avg_price_24h",
		FieldStd24h:    "std_24h",
		FieldUpdatedAt: "updated_at",
	}
}

var coinMultipliers = map[byte]int64{
	'k': 1_000,
	'm': 1_000_000,
	'b': 1_000_000_000,
}

// ParseCoins parses a coin amount as rendered by the price sites: plain
// integers, thousands separators, or shorthand like "1.2m" and "389.5k".
// Returns 0, false for blank or placeholder text.
func ParseCoins(text string) (int64, bool) {
	text = strings.TrimSpace(text)
	if text == "" || text == "-" || text == "?" {
		return 0, false
	}
	text = strings.ToLower(strings.ReplaceAll(text, " ", ""))

	multiplier := int64(1)
	if m, ok := coinMultipliers[text[len(text)-1]]; ok {
		multiplier = m
		text = text[:len(text)-1]
		if text == "" {
			return 0, false
		}
	}

	text = normalizeSeparators(text)

	value, err := decimal.NewFromString(text)
	if err != nil {
		return 0, false
	}
	coins := value.Mul(decimal.NewFromInt(multiplier)).Round(0)
	if !coins.IsPositive() {
		return 0, false
	}
	return coins.IntPart(), true
}

// normalizeSeparators strips thousands separators and settles on '.' as the
// decimal point. With both separators present the rightmost one is decimal;
// a lone separator is decimal only when it leaves one or two fraction
// digits, matching how the sites render shorthand values.
func normalizeSeparators(text string) string {
	dot := strings.LastIndexByte(text, '.')
	comma := strings.LastIndexByte(text, ',')

	switch {
	case dot >= 0 && comma >= 0:
		if dot > comma {
			return strings.ReplaceAll(text, ",", "")
		}
		return strings.ReplaceAll(strings.ReplaceAll(text, ".", ""), ",", ".")
	case comma >= 0:
		if strings.Count(text, ",") == 1 && isFractionLen(len(text)-comma-1) {
			return strings.Replace(text, ",", ".", 1)
		}
		return strings.ReplaceAll(text, ",", "")
	case dot >= 0:
		if strings.Count(text, ".") == 1 && isFractionLen(len(text)-dot-1) {
			return text
		}
		return strings.ReplaceAll(text, ".", "")
	default:
		return text
	}
}

func isFractionLen(n int) bool {
	return n == 1 || n == 2
}

// parseTimestamp accepts ISO-8601 / RFC3339 variants; zero time when the
// text is unparseable so callers can default to the fetch time.
func parseTimestamp(text string) time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if ts, err := time.Parse(layout, text); err == nil {
			if ts.Location() == time.UTC {
				return ts
			}
			return ts.UTC()
		}
	}
	return time.Time{}
}
