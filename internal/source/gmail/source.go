package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"placement_notifier/internal/domain"
)

const SourceID = "gmail"

// Config holds Gmail source configuration. Auth uses a long-lived OAuth
// refresh token; access tokens are minted on demand.
type Config struct {
	BaseURL        string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	RefreshToken   string
	Query          string
	MaxResults     int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source reads the watched mailbox over the Gmail REST API. It implements
// service.MessageSource; marking read is the caller's consume step, never
// done implicitly.
type Source struct {
	httpClient     *http.Client
	baseURL        string
	tokenURL       string
	clientID       string
	clientSecret   string
	refreshToken   string
	query          string
	maxResults     int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New creates a Gmail source.
func New(cfg Config, logger *slog.Logger) *Source {
	query := cfg.Query
	if query == "" {
		query = "is:unread"
	}
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		tokenURL:       cfg.TokenURL,
		clientID:       cfg.ClientID,
		clientSecret:   cfg.ClientSecret,
		refreshToken:   cfg.RefreshToken,
		query:          query,
		maxResults:     cfg.MaxResults,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceID),
	}
}

// ListUnreadIDs returns the ids of unread messages, following result pages.
func (s *Source) ListUnreadIDs(ctx context.Context) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("q", s.query)
		if s.maxResults > 0 {
			params.Set("maxResults", strconv.Itoa(s.maxResults))
		}
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var resp listResponse
		endpoint := fmt.Sprintf("%s/users/me/messages?%s", s.baseURL, params.Encode())
		if err := s.getWithRetry(ctx, endpoint, &resp); err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}

		for _, ref := range resp.Messages {
			ids = append(ids, ref.ID)
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	s.logger.Debug("listed unread messages", "count", len(ids))
	return ids, nil
}

// Fetch retrieves one message in full and flattens it to a RawMessage.
func (s *Source) Fetch(ctx context.Context, id string) (*domain.RawMessage, error) {
	var msg message
	endpoint := fmt.Sprintf("%s/users/me/messages/%s?format=full", s.baseURL, url.PathEscape(id))
	if err := s.getWithRetry(ctx, endpoint, &msg); err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", id, err)
	}
	return s.transform(&msg)
}

// MarkRead removes the UNREAD label from a message.
func (s *Source) MarkRead(ctx context.Context, id string) error {
	body := modifyRequest{RemoveLabelIDs: []string{"UNREAD"}}
	endpoint := fmt.Sprintf("%s/users/me/messages/%s/modify", s.baseURL, url.PathEscape(id))
	if err := s.postWithRetry(ctx, endpoint, body, nil); err != nil {
		return fmt.Errorf("mark message %s read: %w", id, err)
	}
	return nil
}

func (s *Source) getWithRetry(ctx context.Context, endpoint string, out any) error {
	return s.withRetry(ctx, func() error {
		return s.doRequest(ctx, http.MethodGet, endpoint, nil, out)
	})
}

func (s *Source) postWithRetry(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return s.withRetry(ctx, func() error {
		return s.doRequest(ctx, http.MethodPost, endpoint, payload, out)
	})
}

func (s *Source) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
}

func (s *Source) doRequest(ctx context.Context, method, endpoint string, body []byte, out any) error {
	token, err := s.token(ctx)
	if err != nil {
		return err
	}

	var reader *strings.Reader
	if body != nil {
		reader = strings.NewReader(string(body))
	} else {
		reader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Token revoked or expired early; mint a fresh one on the next try.
		s.mu.Lock()
		s.accessToken = ""
		s.mu.Unlock()
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// token returns a valid access token, refreshing it when stale.
func (s *Source) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && time.Now().Before(s.tokenExpiry) {
		return s.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)
	form.Set("refresh_token", s.refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("refresh access token: unexpected status %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	s.accessToken = tok.AccessToken
	// Refresh a minute early to avoid racing the server-side expiry.
	s.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return s.accessToken, nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

func (s *Source) transform(msg *message) (*domain.RawMessage, error) {
	raw := &domain.RawMessage{ID: msg.ID}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "subject":
				raw.Subject = h.Value
			case "from":
				raw.Sender = h.Value
			}
		}
		raw.Body = extractBody(msg.Payload)
	}

	if millis, err := strconv.ParseInt(msg.InternalDate, 10, 64); err == nil {
		raw.ReceivedAt = time.UnixMilli(millis).UTC()
	} else {
		s.logger.Warn("failed to parse internal date",
			"message_id", msg.ID,
			"internal_date", msg.InternalDate,
		)
		raw.ReceivedAt = time.Now().UTC()
	}

	return raw, nil
}

// extractBody walks the MIME tree and returns the first text/plain part,
// falling back to text/html and finally the top-level body.
func extractBody(payload *messagePart) string {
	if plain := findPart(payload, "text/plain"); plain != "" {
		return plain
	}
	if html := findPart(payload, "text/html"); html != "" {
		return html
	}
	return decodeBase64URL(payload.Body.Data)
}

func findPart(part *messagePart, mimeType string) string {
	if strings.HasPrefix(part.MimeType, mimeType) && part.Body.Data != "" {
		return decodeBase64URL(part.Body.Data)
	}
	for i := range part.Parts {
		if body := findPart(&part.Parts[i], mimeType); body != "" {
			return body
		}
	}
	return ""
}

// decodeBase64URL decodes Gmail body data, which is base64url with the
// padding sometimes present and sometimes not.
func decodeBase64URL(data string) string {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}
