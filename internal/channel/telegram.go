package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"placement_notifier/internal/domain"
)

const (
	telegramName = "telegram"

	// Hard API limit is 4096; chunking at 4000 leaves headroom for the
	// continuation marker.
	telegramMaxMessage = 4000
)

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
}

// Telegram broadcasts over the Telegram Bot API. Sends are paced by a global
// rate limiter so a large subscriber list does not trip the API's flood
// control.
type Telegram struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewTelegram creates the Telegram channel.
func NewTelegram(cfg TelegramConfig, logger *slog.Logger) *Telegram {
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 25
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &Telegram{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
		logger:  logger.With("channel", telegramName),
	}
}

// Name implements service.Channel.
func (t *Telegram) Name() string {
	return telegramName
}

// Send delivers one message to one chat, splitting it into chunks when it
// exceeds the API limit. A mid-message chunk failure aborts the rest; a
// partial send reports the error and the whole message is retried later.
func (t *Telegram) Send(ctx context.Context, sub domain.Subscriber, message string) error {
	for _, chunk := range splitMessage(toTelegramMarkdown(message), telegramMaxMessage) {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := t.sendChunk(ctx, sub.ID, chunk); err != nil {
			return err
		}
	}
	return nil
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func (t *Telegram) sendChunk(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransientDelivery, err)
	}
	defer resp.Body.Close()

	var body apiResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)

	return classifyTelegramStatus(resp.StatusCode, body.Description)
}

// classifyTelegramStatus maps an API status to the delivery error taxonomy.
// 403 means the user blocked the bot or the chat is gone, which no retry can
// fix.
func classifyTelegramStatus(status int, description string) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusForbidden:
		return fmt.Errorf("%w: telegram: %s", domain.ErrPermanentDelivery, description)
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(description), "chat not found"):
		return fmt.Errorf("%w: telegram: %s", domain.ErrPermanentDelivery, description)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: telegram status %d: %s", domain.ErrTransientDelivery, status, description)
	default:
		return fmt.Errorf("%w: telegram status %d: %s", domain.ErrTransientDelivery, status, description)
	}
}

// toTelegramMarkdown converts the neutral **bold** markup to Telegram's
// single-asterisk dialect.
func toTelegramMarkdown(message string) string {
	return strings.ReplaceAll(message, "**", "*")
}

// splitMessage splits text into chunks of at most limit bytes, breaking at
// line boundaries where possible so formatting survives the split.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	for _, line := range strings.Split(text, "\n") {
		// A single oversized line is split hard, backing the cut off to a
		// rune boundary so no chunk carries invalid UTF-8.
		for len(line) > limit {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}

		if current.Len() > 0 && current.Len()+len(line)+1 > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
