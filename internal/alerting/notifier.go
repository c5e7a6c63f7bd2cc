package alerting

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ThurX360/WIZFUT/internal/market"
)

// Notifier delivers one alert to an external sink. Implementations own
// their wire format and retry policy; delivery failure never propagates
// back into the detection pipeline.
type Notifier interface {
	Notify(ctx context.Context, alert market.Alert) error
}

// Fanout delivers to every configured channel.
type Fanout struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

// NewFanout wraps the given notifiers. An empty list is valid and delivers
// nowhere.
func NewFanout(logger zerolog.Logger, notifiers ...Notifier) *Fanout {
	return &Fanout{
		notifiers: notifiers,
		logger:    logger.With().Str("component", "alert_fanout").Logger(),
	}
}

// Notify dispatches the alert to every channel. Failures are independent:
// one dead sink does not stop the others. The last error is returned so
// callers can count failed deliveries.
func (f *Fanout) Notify(ctx context.Context, alert market.Alert) error {
	var lastErr error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			f.logger.Error().Err(err).
				Str("entity", alert.EntityID).
				Str("kind", string(alert.Kind)).
				Msg("alert delivery failed")
			lastErr = err
		}
	}
	return lastErr
}

// Len reports the number of wrapped channels.
func (f *Fanout) Len() int {
	return len(f.notifiers)
}

// RenderMessage formats an alert for a chat sink.
func RenderMessage(alert market.Alert) string {
	price := FormatCoins(alert.Price)
	expected := FormatCoins(int64(alert.Avg24h + 0.5))
	pct := int(alert.DeviationPct * 100)

	var b strings.Builder
	switch alert.Kind {
	case market.AlertUnderpriced:
		fmt.Fprintf(&b, "🟢 **UNDERPRICED** — %s (%d)\n", alert.Name, alert.Rating)
		fmt.Fprintf(&b, "Price: **%s** | Expected: %s (discount ~%d%%", price, expected, pct)
		if alert.ZScore != nil {
			fmt.Fprintf(&b, ", z≈%.2f", *alert.ZScore)
		}
		b.WriteString(")")
	case market.AlertFakeBIN:
		fmt.Fprintf(&b, "🟠 **FAKE BIN?** — %s (%d)\n", alert.Name, alert.Rating)
		fmt.Fprintf(&b, "Price: **%s** | Average: %s (drop ~%d%%)", price, expected, pct)
	case market.AlertSpike:
		fmt.Fprintf(&b, "🔵 **SPIKE** — %s (%d)\n", alert.Name, alert.Rating)
		fmt.Fprintf(&b, "Price: **%s** | Average: %s (rise ~%d%%)", price, expected, pct)
	default:
		fmt.Fprintf(&b, "🔔 %s — %s (%d) @ %s", alert.Kind, alert.Name, alert.Rating, price)
	}

	if alert.LowConfidence {
		fmt.Fprintf(&b, "\n⚠️ low confidence (%d samples)", alert.SampleCount)
	}
	return b.String()
}

// FormatCoins renders a coin amount with dot thousands separators, the way
// the community sites display prices.
func FormatCoins(n int64) string {
	digits := strconv.FormatInt(n, 10)
	negative := strings.HasPrefix(digits, "-")
	if negative {
		digits = digits[1:]
	}

	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}
