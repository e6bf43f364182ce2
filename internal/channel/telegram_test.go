package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/suite"

	"placement_notifier/internal/domain"
)

type TelegramTestSuite struct {
	suite.Suite
	logger *slog.Logger
}

func (s *TelegramTestSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTelegramTestSuite(t *testing.T) {
	suite.Run(t, new(TelegramTestSuite))
}

func (s *TelegramTestSuite) newChannel(server *httptest.Server) *Telegram {
	return NewTelegram(TelegramConfig{
		BaseURL:    server.URL,
		Token:      "test-token",
		Timeout:    5 * time.Second,
		RatePerSec: 1000,
		Burst:      100,
	}, s.logger)
}

func (s *TelegramTestSuite) TestSend_Success() {
	var received sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Contains(r.URL.Path, "/bottest-token/sendMessage")
		s.NoError(json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tg := s.newChannel(server)
	err := tg.Send(context.Background(), domain.Subscriber{ID: 42}, "**Placement Update**\nhello")

	s.NoError(err)
	s.Equal(int64(42), received.ChatID)
	s.Equal("*Placement Update*\nhello", received.Text)
	s.Equal("Markdown", received.ParseMode)
}

func (s *TelegramTestSuite) TestSend_ForbiddenIsPermanent() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	}))
	defer server.Close()

	tg := s.newChannel(server)
	err := tg.Send(context.Background(), domain.Subscriber{ID: 42}, "hello")

	s.ErrorIs(err, domain.ErrPermanentDelivery)
}

func (s *TelegramTestSuite) TestSend_ChatNotFoundIsPermanent() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()

	tg := s.newChannel(server)
	err := tg.Send(context.Background(), domain.Subscriber{ID: 42}, "hello")

	s.ErrorIs(err, domain.ErrPermanentDelivery)
}

func (s *TelegramTestSuite) TestSend_TooManyRequestsIsTransient() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests"}`))
	}))
	defer server.Close()

	tg := s.newChannel(server)
	err := tg.Send(context.Background(), domain.Subscriber{ID: 42}, "hello")

	s.ErrorIs(err, domain.ErrTransientDelivery)
}

func (s *TelegramTestSuite) TestSend_ServerErrorIsTransient() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	tg := s.newChannel(server)
	err := tg.Send(context.Background(), domain.Subscriber{ID: 42}, "hello")

	s.ErrorIs(err, domain.ErrTransientDelivery)
}

func (s *TelegramTestSuite) TestSend_LongMessageChunked() {
	var texts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		s.NoError(json.NewDecoder(r.Body).Decode(&req))
		texts = append(texts, req.Text)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	lines := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		lines = append(lines, strings.Repeat("x", 50))
	}
	message := strings.Join(lines, "\n")

	tg := s.newChannel(server)
	err := tg.Send(context.Background(), domain.Subscriber{ID: 42}, message)

	s.NoError(err)
	s.Greater(len(texts), 1)
	for _, text := range texts {
		s.LessOrEqual(len(text), telegramMaxMessage)
	}
	s.Equal(message, strings.Join(texts, "\n"))
}

func (s *TelegramTestSuite) TestSplitMessage_ShortPassthrough() {
	chunks := splitMessage("hello\nworld", 100)

	s.Equal([]string{"hello\nworld"}, chunks)
}

func (s *TelegramTestSuite) TestSplitMessage_BreaksAtLineBoundaries() {
	chunks := splitMessage("aaaa\nbbbb\ncccc", 9)

	s.Equal([]string{"aaaa\nbbbb", "cccc"}, chunks)
}

func (s *TelegramTestSuite) TestSplitMessage_HardSplitsOversizedLine() {
	chunks := splitMessage(strings.Repeat("x", 25), 10)

	s.Equal([]string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, chunks)
}

func (s *TelegramTestSuite) TestSplitMessage_HardSplitKeepsRunesIntact() {
	// Three-byte runes at a limit that is not a multiple of three force the
	// cut to land mid-rune unless it backs off.
	text := strings.Repeat("日", 20)

	chunks := splitMessage(text, 10)

	var rejoined strings.Builder
	for _, chunk := range chunks {
		s.True(utf8.ValidString(chunk), "chunk %q carries a split rune", chunk)
		s.LessOrEqual(len(chunk), 10)
		rejoined.WriteString(chunk)
	}
	s.Equal(text, rejoined.String())
}
