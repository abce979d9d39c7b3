// Package client talks to a pagesmith server over its JSON API and live
// websocket. A Client satisfies editor.Store and editor.Feed.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pagesmith/internal/editor"
	"github.com/rs/zerolog"
)

var ErrBadResponse = errors.New("unexpected server response")

// APIError is a non-2xx answer the client could not map to an editor error.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type errorBody struct {
	Error           string `json:"error"`
	Code            string `json:"code"`
	ExpectedVersion int64  `json:"expectedVersion"`
	CurrentVersion  int64  `json:"currentVersion"`
}

type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
	log    zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Its Jar carries the session
// cookie into websocket handshakes, so keep one set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https: %q", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base: u,
		http: &http.Client{Jar: jar, Timeout: 30 * time.Second},
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: 10 * time.Second,
		},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login opens a cookie session for the given account.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	return c.do(ctx, http.MethodPost, "/api/auth/login", body, nil)
}

// Get returns nil, nil when the site exists but the page does not.
func (c *Client) Get(ctx context.Context, siteSlug, key string) (*editor.Record, error) {
	var out struct {
		Page *editor.Record `json:"page"`
	}
	err := c.do(ctx, http.MethodGet, pagePath(siteSlug, key), nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "page_not_found" {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out.Page, nil
}

func (c *Client) Upsert(ctx context.Context, req editor.SaveRequest) (*editor.SaveResult, error) {
	var out editor.SaveResult
	if err := c.do(ctx, http.MethodPut, pagePath(req.SiteSlug, req.Key), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPages returns every page of a site ordered by key.
func (c *Client) ListPages(ctx context.Context, siteSlug string) ([]editor.Record, error) {
	var out struct {
		Pages []editor.Record `json:"pages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sites/"+url.PathEscape(siteSlug)+"/pages", nil, &out); err != nil {
		return nil, err
	}
	return out.Pages, nil
}

// Watch subscribes to a page. The first value is the current record, nil if
// the page does not exist yet. The channel closes when the connection drops
// or ctx ends.
func (c *Client) Watch(ctx context.Context, siteSlug, key string) (<-chan *editor.Record, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + pagePath(siteSlug, key) + "/live"
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	header := http.Header{}
	if c.http.Jar != nil {
		for _, ck := range c.http.Jar.Cookies(c.base) {
			header.Add("Cookie", ck.String())
		}
	}

	conn, res, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if res != nil {
			defer res.Body.Close()
			return nil, decodeError(res)
		}
		return nil, fmt.Errorf("dial live feed: %w", err)
	}

	out := make(chan *editor.Record, 1)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					c.log.Debug().Err(err).Str("site", siteSlug).Str("key", key).Msg("live feed closed")
				}
				return
			}
			var rec *editor.Record
			if err := json.Unmarshal(data, &rec); err != nil {
				c.log.Warn().Err(err).Msg("decode live record")
				continue
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func pagePath(siteSlug, key string) string {
	return "/api/sites/" + url.PathEscape(siteSlug) + "/pages/" + url.PathEscape(key)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return decodeError(res)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

func decodeError(res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	switch {
	case res.StatusCode == http.StatusConflict && body.Code == "conflict":
		return &editor.ConflictError{Expected: body.ExpectedVersion, Current: body.CurrentVersion}
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", editor.ErrUnauthorized, body.Error)
	case res.StatusCode == http.StatusNotFound && body.Code != "page_not_found":
		return fmt.Errorf("%w: %s", editor.ErrNotFound, body.Error)
	}

	msg := body.Error
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	return &APIError{Status: res.StatusCode, Code: body.Code, Message: msg}
}
