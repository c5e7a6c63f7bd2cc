package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/ThurX360/WIZFUT/internal/market"
)

// DiscordNotifier pushes alerts to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	maxRetries uint64
	logger     zerolog.Logger
}

// NewDiscordNotifier constructs the webhook sink. maxRetries bounds the
// re-delivery attempts after the first try; 0 means no retries.
func NewDiscordNotifier(webhookURL string, timeout time.Duration, maxRetries int, logger zerolog.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		maxRetries: uint64(maxRetries),
		logger:     logger.With().Str("component", "alert_discord").Logger(),
	}
}

// Notify posts the rendered alert, retrying transient failures with
// exponential backoff up to the configured bound. Client errors other than
// rate limiting are not retried; the payload will not get better.
func (n *DiscordNotifier) Notify(ctx context.Context, alert market.Alert) error {
	payload, err := json.Marshal(map[string]string{"content": RenderMessage(alert)})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	operation := func() error {
		return n.post(ctx, payload)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), n.maxRetries),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("discord delivery: %w", err)
	}

	n.logger.Info().
		Str("entity", alert.EntityID).
		Str("kind", string(alert.Kind)).
		Msg("alert sent to discord")
	return nil
}

func (n *DiscordNotifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	httpErr := fmt.Errorf("discord webhook status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return httpErr
	}
	return backoff.Permanent(httpErr)
}

var _ Notifier = (*DiscordNotifier)(nil)
