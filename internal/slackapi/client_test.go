package slackapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPClientHistoryForwardsCursorAndToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations.history" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Errorf("expected bearer token, got %q", got)
		}
		if got := r.URL.Query().Get("channel"); got != "C1" {
			t.Errorf("expected channel C1, got %q", got)
		}
		if got := r.URL.Query().Get("cursor"); got != "cur_2" {
			t.Errorf("expected cursor cur_2, got %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("expected limit 50, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"messages":[{"type":"message","user":"U1","text":"hi","ts":"1700000000.000100"}],"has_more":true,"response_metadata":{"next_cursor":"cur_3"}}`))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientOptions{BaseURL: server.URL, Token: "xoxb-test", HTTPClient: server.Client(), PageSize: 50})
	page, err := client.History(context.Background(), "C1", "cur_2")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].TS != "1700000000.000100" {
		t.Fatalf("unexpected messages: %+v", page.Messages)
	}
	if !page.HasMore || page.ResponseMetadata.NextCursor != "cur_3" {
		t.Fatalf("expected has_more with cursor cur_3, got %+v", page)
	}
}

func TestHTTPClientPostMessageSendsJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat.postMessage" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json; charset=utf-8" {
			t.Errorf("expected JSON content type, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Errorf("expected bearer token, got %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["channel"] != "C1" || body["text"] != "deploy done" {
			t.Errorf("unexpected body %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1700000000.000300"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientOptions{BaseURL: server.URL, Token: "xoxb-test", HTTPClient: server.Client()})
	posted, err := client.PostMessage(context.Background(), "C1", "deploy done")
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if posted.Channel != "C1" || posted.TS != "1700000000.000300" {
		t.Fatalf("unexpected result %+v", posted)
	}
}

func TestHTTPClientReturnsRateLimitedErrorWithoutRetrying(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientOptions{BaseURL: server.URL, Token: "t", HTTPClient: server.Client()})
	_, err := client.Replies(context.Background(), "C1", "1.0", "")
	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if limited.RetryAfter != 7*time.Second {
		t.Fatalf("expected 7s retry-after, got %s", limited.RetryAfter)
	}
	if limited.Method != "conversations.replies" {
		t.Fatalf("expected method conversations.replies, got %q", limited.Method)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one call, got %d", atomic.LoadInt32(&calls))
	}
}

func TestHTTPClientMapsAPIErrors(t *testing.T) {
	codes := map[string]error{
		"not_in_channel":    ErrNotInChannel,
		"invalid_auth":      ErrAuthFailed,
		"channel_not_found": ErrChannelNotFound,
	}
	for code, want := range codes {
		code, want := code, want
		t.Run(code, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"ok":false,"error":"` + code + `"}`))
			}))
			defer server.Close()

			client := NewHTTPClient(HTTPClientOptions{BaseURL: server.URL, Token: "t", HTTPClient: server.Client()})
			_, err := client.History(context.Background(), "C1", "")
			if !errors.Is(err, want) {
				t.Fatalf("expected %v, got %v", want, err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.Code != code {
				t.Fatalf("expected APIError with code %s, got %v", code, err)
			}
		})
	}
}

func TestHTTPClientTreatsRatelimitedBodyAsThrottle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		_, _ = w.Write([]byte(`{"ok":false,"error":"ratelimited"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientOptions{BaseURL: server.URL, Token: "t", HTTPClient: server.Client()})
	_, err := client.ListUsers(context.Background(), "")
	var limited *RateLimitedError
	if !errors.As(err, &limited) || limited.RetryAfter != 2*time.Second {
		t.Fatalf("expected 2s RateLimitedError, got %v", err)
	}
}

func TestHTTPClientListChannelsHasMoreFollowsCursor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("types") != "public_channel,private_channel" {
			t.Errorf("expected public and private channel types, got %q", r.URL.Query().Get("types"))
		}
		_, _ = w.Write([]byte(`{"ok":true,"channels":[{"id":"C1","name":"general","is_member":true}],"response_metadata":{"next_cursor":""}}`))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientOptions{BaseURL: server.URL, Token: "t", HTTPClient: server.Client()})
	page, err := client.ListChannels(context.Background(), "")
	if err != nil {
		t.Fatalf("list channels failed: %v", err)
	}
	if page.HasMore() {
		t.Fatalf("expected no further pages")
	}
	if len(page.Channels) != 1 || page.Channels[0].Name != "general" {
		t.Fatalf("unexpected channels: %+v", page.Channels)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("3"); got != 3*time.Second {
		t.Fatalf("expected 3s, got %s", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Fatalf("expected 0 for empty header, got %s", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Fatalf("expected 0 for invalid header, got %s", got)
	}
}

func TestUserDisplayNameFallsBack(t *testing.T) {
	if got := (User{ID: "U1", Name: "alice", Profile: UserProfile{RealName: "Alice Smith"}}).DisplayName(); got != "Alice Smith" {
		t.Fatalf("expected profile real name, got %q", got)
	}
	if got := (User{ID: "U2", Name: "bob"}).DisplayName(); got != "bob" {
		t.Fatalf("expected handle fallback, got %q", got)
	}
	if got := (User{ID: "U3"}).DisplayName(); got != "U3" {
		t.Fatalf("expected id fallback, got %q", got)
	}
}
