package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"placement_notifier/internal/domain"
)

const webPushName = "webpush"

// WebPushConfig holds VAPID configuration for browser push.
type WebPushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string // contact mailto: for the push service
	TTL             int
	Timeout         time.Duration
}

// SubscriptionRemover drops a push endpoint the push service declared dead.
type SubscriptionRemover interface {
	RemovePushSubscription(ctx context.Context, subscriberID int64, endpoint string) error
}

// WebPush broadcasts over Web Push. A subscriber with no registered endpoints
// is not an error; there is simply nothing to push. Gone endpoints (404/410)
// are pruned from the subscriber record, never surfaced as delivery failures
// for the whole subscriber.
type WebPush struct {
	options webpush.Options
	remover SubscriptionRemover
	logger  *slog.Logger
}

// NewWebPush creates the web push channel.
func NewWebPush(cfg WebPushConfig, remover SubscriptionRemover, logger *slog.Logger) *WebPush {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 86400
	}
	return &WebPush{
		options: webpush.Options{
			Subscriber:      cfg.Subscriber,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			TTL:             ttl,
			HTTPClient:      &http.Client{Timeout: cfg.Timeout},
		},
		remover: remover,
		logger:  logger.With("channel", webPushName),
	}
}

// Name implements service.Channel.
func (w *WebPush) Name() string {
	return webPushName
}

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send pushes the message to every endpoint the subscriber registered.
// Success on any endpoint counts as delivered.
func (w *WebPush) Send(ctx context.Context, sub domain.Subscriber, message string) error {
	if len(sub.Push) == 0 {
		return nil
	}

	payload, err := json.Marshal(pushPayload{
		Title: pushTitle(message),
		Body:  stripMarkup(message),
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	success := 0
	var firstErr error
	for _, endpoint := range sub.Push {
		err := w.pushOne(ctx, endpoint, payload)
		switch {
		case err == nil:
			success++
		case errors.Is(err, errEndpointGone):
			w.logger.Info("push endpoint gone, removing",
				"subscriber_id", sub.ID,
				"endpoint", endpoint.Endpoint,
			)
			if rerr := w.remover.RemovePushSubscription(ctx, sub.ID, endpoint.Endpoint); rerr != nil {
				w.logger.Error("remove push subscription failed", "subscriber_id", sub.ID, "error", rerr)
			}
		default:
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if success > 0 || firstErr == nil {
		return nil
	}
	return firstErr
}

var errEndpointGone = errors.New("push endpoint gone")

func (w *WebPush) pushOne(ctx context.Context, endpoint domain.PushSubscription, payload []byte) error {
	sub := &webpush.Subscription{
		Endpoint: endpoint.Endpoint,
		Keys: webpush.Keys{
			P256dh: endpoint.P256dh,
			Auth:   endpoint.Auth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &w.options)
	if err != nil {
		return fmt.Errorf("%w: webpush: %v", domain.ErrTransientDelivery, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return errEndpointGone
	default:
		return fmt.Errorf("%w: webpush status %d", domain.ErrTransientDelivery, resp.StatusCode)
	}
}

// pushTitle takes the first line of the message, with markup stripped, as the
// notification title.
func pushTitle(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	return stripMarkup(line)
}

func stripMarkup(message string) string {
	message = strings.ReplaceAll(message, "**", "")
	return strings.ReplaceAll(message, "*", "")
}
