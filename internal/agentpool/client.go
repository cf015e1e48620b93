// Package agentpool implements the instance/API federation layer of spec
// §4.C: one HTTP client per remote agent, with health probing, bounded
// re-initialization, and the per-instance critical-section mutex that
// serializes `initialize` and listener-mutating calls while letting
// read-only calls run concurrently. It generalizes the teacher's mcp.Client
// (connect/handshake under a mutex, a connected flag, RLock for read-only
// accessors) from the MCP JSON-RPC protocol to the agents' HTTP+JSON
// envelope protocol.
package agentpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zj591227045/wxauto-mgt/internal/backoff"
	"github.com/zj591227045/wxauto-mgt/internal/errs"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

const defaultCallTimeout = 30 * time.Second

// Client is the agent client for one instance (spec §4.C's "one HTTP
// client per agent"). initialized and consecutiveErrors are accessed from
// both the serialized init/listener path and the concurrent read-only
// path, so they are atomics rather than fields under mu.
type Client struct {
	instanceID string
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu sync.Mutex // serializes initialize/add_listener/remove_listener

	initialized       atomic.Bool
	consecutiveErrors atomic.Int64

	// maxRetry and autoReconnect mirror the instance's own config (§3's
	// max_retry, auto_reconnect) and can change at runtime via Configure.
	maxRetry      atomic.Int32
	autoReconnect atomic.Bool
}

// New builds a Client for one instance with the documented config defaults.
// baseURL and apiKey come from the Instance record (§3); apiKey is the
// already-decrypted value. Call Configure to apply the instance's own
// max_retry/auto_reconnect settings.
func New(instanceID, baseURL, apiKey string) *Client {
	c := &Client{
		instanceID: instanceID,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultCallTimeout},
	}
	defaults := store.DefaultInstanceConfig()
	c.maxRetry.Store(int32(defaults.MaxRetry))
	c.autoReconnect.Store(defaults.AutoReconnect)
	return c
}

// Configure applies an instance's max_retry and auto_reconnect settings,
// called at construction and again whenever the instance is updated.
func (c *Client) Configure(cfg store.InstanceConfig) {
	retry := cfg.MaxRetry
	if retry <= 0 {
		retry = store.DefaultInstanceConfig().MaxRetry
	}
	c.maxRetry.Store(int32(retry))
	c.autoReconnect.Store(cfg.AutoReconnect)
}

// Initialized reports whether Initialize has succeeded and no subsequent
// call has invalidated it.
func (c *Client) Initialized() bool {
	return c.initialized.Load()
}

// Initialize performs POST /api/wechat/initialize. Serialized against
// listener-mutating calls per §4.C's concurrency discipline.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.call(ctx, http.MethodPost, "/api/wechat/initialize", nil, false)
	if err != nil {
		c.initialized.Store(false)
		return err
	}
	c.initialized.Store(true)
	c.consecutiveErrors.Store(0)
	return nil
}

// HealthCheck performs GET /api/health. It does not require the
// initialize/listener mutex since it is read-only.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.call(ctx, http.MethodGet, "/api/health", nil, true)
	return err
}

// EnsureHealthy implements the health model of §4.C: healthy iff
// initialized and (health check succeeds or a re-initialize would
// succeed). It re-initializes at most once per call, backing off by
// backoff.Default keyed on the client's consecutive-error count. If the
// instance's auto_reconnect is false, an unhealthy client is left alone
// instead of being re-initialized.
func (c *Client) EnsureHealthy(ctx context.Context) error {
	if c.Initialized() {
		if err := c.HealthCheck(ctx); err == nil {
			return nil
		}
	}
	if !c.autoReconnect.Load() {
		return errs.Classify(errs.KindUnavailable, c.instanceID, errs.ErrUnhealthy)
	}
	attempt := int(c.consecutiveErrors.Load())
	if attempt > 0 {
		select {
		case <-time.After(backoff.Default.Delay(attempt)):
		case <-ctx.Done():
			return errs.Classify(errs.KindCancelled, c.instanceID, ctx.Err())
		}
	}
	return c.Initialize(ctx)
}

// GetUnreadMainWindowMessages performs GET /api/message/get-next-new,
// returning the per-chat batches Loop L1 ingests.
func (c *Client) GetUnreadMainWindowMessages(ctx context.Context) ([]ChatBatch, error) {
	data, err := c.call(ctx, http.MethodGet, "/api/message/get-next-new", nil, true)
	if err != nil {
		return nil, err
	}
	var batches []ChatBatch
	if len(data) > 0 {
		if err := json.Unmarshal(data, &batches); err != nil {
			return nil, errs.Classify(errs.KindAgentFailure, c.instanceID, err)
		}
	}
	return batches, nil
}

// AddListener performs POST /api/message/listen/add. Serialized: it
// mutates the agent's listener set.
func (c *Client) AddListener(ctx context.Context, chat string, opts AddListenerOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	body := map[string]any{"who": chat, "manual": opts.Manual, "fixed": opts.Fixed}
	_, err := c.call(ctx, http.MethodPost, "/api/message/listen/add", body, false)
	return err
}

// RemoveListener performs POST /api/message/listen/remove. Serialized.
func (c *Client) RemoveListener(ctx context.Context, chat string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	body := map[string]any{"who": chat}
	_, err := c.call(ctx, http.MethodPost, "/api/message/listen/remove", body, false)
	return err
}

// GetListenerMessages performs GET /api/message/listen/get?who=... for
// Loop L2.
func (c *Client) GetListenerMessages(ctx context.Context, chat string) ([]RawMessage, error) {
	q := url.Values{"who": {chat}}
	data, err := c.call(ctx, http.MethodGet, "/api/message/listen/get?"+q.Encode(), nil, true)
	if err != nil {
		return nil, err
	}
	var msgs []RawMessage
	if len(data) > 0 {
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, errs.Classify(errs.KindAgentFailure, c.instanceID, err)
		}
	}
	return msgs, nil
}

// SendText performs POST /api/message/send.
func (c *Client) SendText(ctx context.Context, chat, text string, opts SendOptions) error {
	body := map[string]any{"who": chat, "message": text, "at_list": opts.AtList}
	_, err := c.call(ctx, http.MethodPost, "/api/message/send", body, false)
	return err
}

// SendTypingText performs POST /api/message/send-typing.
func (c *Client) SendTypingText(ctx context.Context, chat, text string) error {
	body := map[string]any{"who": chat, "message": text}
	_, err := c.call(ctx, http.MethodPost, "/api/message/send-typing", body, false)
	return err
}

// SendFile performs POST /api/message/send-file.
func (c *Client) SendFile(ctx context.Context, chat string, paths []string) error {
	body := map[string]any{"who": chat, "paths": paths}
	_, err := c.call(ctx, http.MethodPost, "/api/message/send-file", body, false)
	return err
}

// AtAll performs POST /api/chat-window/message/send with an @all payload.
func (c *Client) AtAll(ctx context.Context, chat, text string) error {
	body := map[string]any{"who": chat, "message": text, "at_all": true}
	_, err := c.call(ctx, http.MethodPost, "/api/chat-window/message/send", body, false)
	return err
}

// GetChatInfo performs GET /api/chat-window/info?who=....
func (c *Client) GetChatInfo(ctx context.Context, chat string) (ChatInfo, error) {
	q := url.Values{"who": {chat}}
	data, err := c.call(ctx, http.MethodGet, "/api/chat-window/info?"+q.Encode(), nil, true)
	if err != nil {
		return ChatInfo{}, err
	}
	var info ChatInfo
	if len(data) > 0 {
		if err := json.Unmarshal(data, &info); err != nil {
			return ChatInfo{}, errs.Classify(errs.KindAgentFailure, c.instanceID, err)
		}
	}
	return info, nil
}

// call issues one HTTP request against this instance's agent and unwraps
// the {code, message, data} envelope. idempotent GETs are retried with
// backoff.Default (2x, cap 30s, up to the instance's configured max_retry)
// per §4.C; mutating calls are attempted once.
func (c *Client) call(ctx context.Context, method, path string, body any, idempotent bool) (json.RawMessage, error) {
	maxAttempts := 1
	if idempotent {
		maxAttempts = int(c.maxRetry.Load())
		if maxAttempts < 1 {
			maxAttempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		data, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			c.consecutiveErrors.Store(0)
			return data, nil
		}
		lastErr = err
		if !errs.KindOf(err).Retryable() || attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(backoff.Default.Delay(attempt)):
		case <-ctx.Done():
			return nil, errs.Classify(errs.KindCancelled, c.instanceID, ctx.Err())
		}
	}
	c.consecutiveErrors.Add(1)
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, errs.Classify(errs.KindInvalidRequest, c.instanceID, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errs.Classify(errs.KindInvalidRequest, c.instanceID, err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Classify(errs.KindCancelled, c.instanceID, ctx.Err())
		}
		return nil, errs.Classify(errs.KindUnavailable, c.instanceID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Classify(errs.KindUnavailable, c.instanceID, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, errs.Classify(errs.KindAgentFailure, c.instanceID, fmt.Errorf("http %d: %s", resp.StatusCode, raw))
	case resp.StatusCode >= 400:
		return nil, errs.Classify(errs.KindInvalidRequest, c.instanceID, fmt.Errorf("http %d: %s", resp.StatusCode, raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.Classify(errs.KindAgentFailure, c.instanceID, fmt.Errorf("decode envelope: %w", err))
	}
	if env.ok() {
		return env.Data, nil
	}

	switch {
	case env.Code >= 2000 && env.Code < 3000:
		return nil, errs.Classify(errs.KindNotInitialized, c.instanceID, fmt.Errorf("%s", env.Message))
	default:
		return nil, errs.Classify(errs.KindAgentFailure, c.instanceID, fmt.Errorf("code %d: %s", env.Code, env.Message))
	}
}
