package slackapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL  = "https://slack.com/api"
	DefaultPageSize = 200
	maxPageSize     = 1000
)

// Client is the remote surface the archiver consumes. Every method performs a
// single request; pagination and throttling retries belong to the caller.
type Client interface {
	AuthTest(ctx context.Context) (AuthIdentity, error)
	ListChannels(ctx context.Context, cursor string) (ChannelPage, error)
	ListUsers(ctx context.Context, cursor string) (UserPage, error)
	History(ctx context.Context, channelID, cursor string) (MessagePage, error)
	Replies(ctx context.Context, channelID, threadTS, cursor string) (MessagePage, error)
	PostMessage(ctx context.Context, channelID, text string) (PostResult, error)
}

type HTTPClientOptions struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	PageSize   int
	UserAgent  string
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	pageSize   int
	userAgent  string
}

func NewHTTPClient(opts HTTPClientOptions) *HTTPClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return &HTTPClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(opts.Token),
		httpClient: httpClient,
		pageSize:   pageSize,
		userAgent:  strings.TrimSpace(opts.UserAgent),
	}
}

func (c *HTTPClient) AuthTest(ctx context.Context) (AuthIdentity, error) {
	var out AuthIdentity
	err := c.get(ctx, "auth.test", url.Values{}, &out)
	return out, err
}

func (c *HTTPClient) ListChannels(ctx context.Context, cursor string) (ChannelPage, error) {
	q := c.pageQuery(cursor)
	q.Set("types", "public_channel,private_channel")
	q.Set("exclude_archived", "false")
	var out ChannelPage
	err := c.get(ctx, "conversations.list", q, &out)
	return out, err
}

func (c *HTTPClient) ListUsers(ctx context.Context, cursor string) (UserPage, error) {
	var out UserPage
	err := c.get(ctx, "users.list", c.pageQuery(cursor), &out)
	return out, err
}

func (c *HTTPClient) History(ctx context.Context, channelID, cursor string) (MessagePage, error) {
	q := c.pageQuery(cursor)
	q.Set("channel", channelID)
	var out MessagePage
	err := c.get(ctx, "conversations.history", q, &out)
	return out, err
}

func (c *HTTPClient) Replies(ctx context.Context, channelID, threadTS, cursor string) (MessagePage, error) {
	q := c.pageQuery(cursor)
	q.Set("channel", channelID)
	q.Set("ts", threadTS)
	var out MessagePage
	err := c.get(ctx, "conversations.replies", q, &out)
	return out, err
}

func (c *HTTPClient) PostMessage(ctx context.Context, channelID, text string) (PostResult, error) {
	body := map[string]any{
		"channel": channelID,
		"text":    text,
	}
	var out PostResult
	err := c.doJSON(ctx, http.MethodPost, "chat.postMessage", nil, body, &out)
	return out, err
}

func (c *HTTPClient) pageQuery(cursor string) url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageSize))
	if cursor = strings.TrimSpace(cursor); cursor != "" {
		q.Set("cursor", cursor)
	}
	return q
}

func (c *HTTPClient) get(ctx context.Context, method string, q url.Values, out any) error {
	return c.doJSON(ctx, http.MethodGet, method, q, nil, out)
}

type envelope struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Warning string `json:"warning"`
}

func (c *HTTPClient) doJSON(
	ctx context.Context,
	httpMethod, apiMethod string,
	q url.Values,
	body any,
	out any,
) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}
	requestURL := c.baseURL + "/" + apiMethod
	if len(q) > 0 {
		requestURL += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, requestURL, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", apiMethod, err)
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("%s: %w", apiMethod, readErr)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitedError{Method: apiMethod, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &APIError{Method: apiMethod, StatusCode: resp.StatusCode, Code: strings.TrimSpace(string(payload))}
		}
		return fmt.Errorf("%s: decode response: %w", apiMethod, err)
	}
	if !env.OK {
		if env.Error == "ratelimited" {
			return &RateLimitedError{Method: apiMethod, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
		}
		code := env.Error
		if code == "" {
			code = "unknown_error"
		}
		return &APIError{Method: apiMethod, StatusCode: resp.StatusCode, Code: code}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", apiMethod, err)
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		delta := time.Until(ts)
		if delta > 0 {
			return delta.Round(time.Second)
		}
	}
	return 0
}
