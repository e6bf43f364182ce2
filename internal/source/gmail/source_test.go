package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type GmailSourceTestSuite struct {
	suite.Suite
	logger *slog.Logger
}

func (s *GmailSourceTestSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGmailSourceTestSuite(t *testing.T) {
	suite.Run(t, new(GmailSourceTestSuite))
}

// newSource wires a Source against one test server handling both the token
// endpoint and the API.
func (s *GmailSourceTestSuite) newSource(server *httptest.Server) *Source {
	return New(Config{
		BaseURL:        server.URL,
		TokenURL:       server.URL + "/token",
		ClientID:       "client",
		ClientSecret:   "secret",
		RefreshToken:   "refresh",
		MaxResults:     50,
		Timeout:        5 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, s.logger)
}

func tokenHandler(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(tokenResponse{
		AccessToken: "access-token",
		ExpiresIn:   3600,
		TokenType:   "Bearer",
	})
}

func encodeBody(text string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(text))
}

func (s *GmailSourceTestSuite) TestListUnreadIDs_Paginates() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/token":
			tokenHandler(w)
		case r.URL.Path == "/users/me/messages":
			s.Equal("Bearer access-token", r.Header.Get("Authorization"))
			s.Equal("is:unread", r.URL.Query().Get("q"))
			if r.URL.Query().Get("pageToken") == "" {
				json.NewEncoder(w).Encode(listResponse{
					Messages:      []messageRef{{ID: "m1"}, {ID: "m2"}},
					NextPageToken: "page2",
				})
			} else {
				json.NewEncoder(w).Encode(listResponse{
					Messages: []messageRef{{ID: "m3"}},
				})
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	ids, err := s.newSource(server).ListUnreadIDs(context.Background())

	s.NoError(err)
	s.Equal([]string{"m1", "m2", "m3"}, ids)
}

func (s *GmailSourceTestSuite) TestListUnreadIDs_EmptyMailbox() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			tokenHandler(w)
			return
		}
		json.NewEncoder(w).Encode(listResponse{})
	}))
	defer server.Close()

	ids, err := s.newSource(server).ListUnreadIDs(context.Background())

	s.NoError(err)
	s.Empty(ids)
}

func (s *GmailSourceTestSuite) TestFetch_MultipartPrefersPlainText() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			tokenHandler(w)
			return
		}
		s.Equal("/users/me/messages/m1", r.URL.Path)
		s.Equal("full", r.URL.Query().Get("format"))
		json.NewEncoder(w).Encode(message{
			ID:           "m1",
			InternalDate: "1765700000000",
			Payload: &messagePart{
				MimeType: "multipart/alternative",
				Headers: []header{
					{Name: "Subject", Value: "Placement Announcement"},
					{Name: "From", Value: "tpc@college.example"},
				},
				Parts: []messagePart{
					{MimeType: "text/html", Body: partBody{Data: encodeBody("<p>html body</p>")}},
					{MimeType: "text/plain", Body: partBody{Data: encodeBody("plain body")}},
				},
			},
		})
	}))
	defer server.Close()

	msg, err := s.newSource(server).Fetch(context.Background(), "m1")

	s.NoError(err)
	s.Equal("m1", msg.ID)
	s.Equal("Placement Announcement", msg.Subject)
	s.Equal("tpc@college.example", msg.Sender)
	s.Equal("plain body", msg.Body)
	s.Equal(time.UnixMilli(1765700000000).UTC(), msg.ReceivedAt)
}

func (s *GmailSourceTestSuite) TestFetch_FallsBackToHTML() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			tokenHandler(w)
			return
		}
		json.NewEncoder(w).Encode(message{
			ID:           "m1",
			InternalDate: "1765700000000",
			Payload: &messagePart{
				MimeType: "text/html",
				Body:     partBody{Data: encodeBody("<p>only html</p>")},
			},
		})
	}))
	defer server.Close()

	msg, err := s.newSource(server).Fetch(context.Background(), "m1")

	s.NoError(err)
	s.Equal("<p>only html</p>", msg.Body)
}

func (s *GmailSourceTestSuite) TestMarkRead_RemovesUnreadLabel() {
	var received modifyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			tokenHandler(w)
			return
		}
		s.Equal("/users/me/messages/m1/modify", r.URL.Path)
		s.Equal(http.MethodPost, r.Method)
		s.NoError(json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	err := s.newSource(server).MarkRead(context.Background(), "m1")

	s.NoError(err)
	s.Equal([]string{"UNREAD"}, received.RemoveLabelIDs)
}

func (s *GmailSourceTestSuite) TestRetry_RecoversFromServerError() {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			tokenHandler(w)
			return
		}
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(listResponse{Messages: []messageRef{{ID: "m1"}}})
	}))
	defer server.Close()

	ids, err := s.newSource(server).ListUnreadIDs(context.Background())

	s.NoError(err)
	s.Equal([]string{"m1"}, ids)
	s.Equal(3, calls)
}

func (s *GmailSourceTestSuite) TestToken_CachedAcrossCalls() {
	tokenCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			tokenCalls++
			tokenHandler(w)
			return
		}
		json.NewEncoder(w).Encode(listResponse{})
	}))
	defer server.Close()

	src := s.newSource(server)
	_, err := src.ListUnreadIDs(context.Background())
	s.NoError(err)
	_, err = src.ListUnreadIDs(context.Background())
	s.NoError(err)

	s.Equal(1, tokenCalls)
}

func (s *GmailSourceTestSuite) TestDecodeBase64URL_HandlesPadding() {
	padded := base64.URLEncoding.EncodeToString([]byte("ab"))

	s.Equal("ab", decodeBase64URL(padded))
	s.Equal("ab", decodeBase64URL(encodeBody("ab")))
}
