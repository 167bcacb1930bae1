package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/hyperengineering/canvass"
	"github.com/rohanthewiz/logger"
)

// HTTPStore talks to a canvass document server (see Server).
type HTTPStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	debug      *canvass.DebugLogger

	// reconnect backoff bounds for subscriptions
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewHTTPStore creates a client for the server at baseURL.
func NewHTTPStore(baseURL, apiKey string) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// WithHTTPClient sets a custom http.Client (for testing or custom timeouts).
func (c *HTTPStore) WithHTTPClient(client *http.Client) *HTTPStore {
	c.httpClient = client
	return c
}

// WithDebug traces requests and responses.
func (c *HTTPStore) WithDebug(d *canvass.DebugLogger) *HTTPStore {
	c.debug = d
	return c
}

// WithBackoff sets subscription reconnect bounds.
func (c *HTTPStore) WithBackoff(min, max time.Duration) *HTTPStore {
	c.minBackoff, c.maxBackoff = min, max
	return c
}

func (c *HTTPStore) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", "canvass-client/1.0")
}

func (c *HTTPStore) url(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.baseURL + "/v1/" + strings.Join(segments, "/")
}

// do sends a request and returns the response body for 2xx statuses.
// Everything else is classified here, at the call site.
func (c *HTTPStore) do(ctx context.Context, op, method, path string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, 0, canvass.E(canvass.KindValidation, op, err)
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.debug.LogRequest(method, path, body)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.debug.LogError(op, err)
		return nil, 0, canvass.E(canvass.KindNetwork, op, &canvass.SyncError{Operation: op, Err: err})
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, canvass.E(canvass.KindNetwork, op, &canvass.SyncError{Operation: op, StatusCode: resp.StatusCode, Err: err})
	}
	c.debug.LogResponse(resp.StatusCode, resp.Status, respBody)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, resp.StatusCode, nil
	}
	return nil, resp.StatusCode, classifyStatus(op, resp.StatusCode, respBody)
}

func classifyStatus(op string, status int, body []byte) error {
	if status == http.StatusNotFound {
		return canvass.ErrNotFound
	}
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	se := &canvass.SyncError{Operation: op, StatusCode: status, Err: fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(msg))}

	switch {
	case status == http.StatusUnauthorized:
		return canvass.E(canvass.KindAuthentication, op, se)
	case status == http.StatusForbidden:
		return canvass.E(canvass.KindPermission, op, se)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return canvass.E(canvass.KindValidation, op, se)
	default:
		return canvass.E(canvass.KindNetwork, op, se)
	}
}

// Set implements DocumentStore.
func (c *HTTPStore) Set(ctx context.Context, path string, doc Document) error {
	if _, _, _, err := ParseDocumentPath(path); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return canvass.E(canvass.KindData, "set", err)
	}
	_, _, err = c.do(ctx, "set", http.MethodPut, path, body)
	return err
}

// Get implements DocumentStore.
func (c *HTTPStore) Get(ctx context.Context, path string) (Document, error) {
	if _, _, _, err := ParseDocumentPath(path); err != nil {
		return nil, err
	}
	body, _, err := c.do(ctx, "get", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, canvass.E(canvass.KindData, "get", err)
	}
	return doc, nil
}

// Delete implements DocumentStore.
func (c *HTTPStore) Delete(ctx context.Context, path string) error {
	if _, _, _, err := ParseDocumentPath(path); err != nil {
		return err
	}
	_, _, err := c.do(ctx, "delete", http.MethodDelete, path, nil)
	if errors.Is(err, canvass.ErrNotFound) {
		return nil
	}
	return err
}

type listResponse struct {
	Documents map[string]Document `json:"documents"`
}

// List implements DocumentStore.
func (c *HTTPStore) List(ctx context.Context, collectionPath string) (map[string]Document, error) {
	if _, _, err := ParseCollectionPath(collectionPath); err != nil {
		return nil, err
	}
	body, _, err := c.do(ctx, "list", http.MethodGet, collectionPath, nil)
	if err != nil {
		return nil, err
	}
	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, canvass.E(canvass.KindData, "list", err)
	}
	if resp.Documents == nil {
		resp.Documents = map[string]Document{}
	}
	return resp.Documents, nil
}

type userSummary struct {
	Collections map[string]int `json:"collections"`
}

// HasUserData implements DocumentStore.
func (c *HTTPStore) HasUserData(ctx context.Context, uid string) (bool, error) {
	body, _, err := c.do(ctx, "has_user_data", http.MethodGet, UserPath(uid), nil)
	if errors.Is(err, canvass.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var summary userSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return false, canvass.E(canvass.KindData, "has_user_data", err)
	}
	for _, n := range summary.Collections {
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// DeleteUserData implements DocumentStore.
func (c *HTTPStore) DeleteUserData(ctx context.Context, uid string) error {
	_, _, err := c.do(ctx, "delete_user_data", http.MethodDelete, UserPath(uid), nil)
	if errors.Is(err, canvass.ErrNotFound) {
		return nil
	}
	return err
}

// Subscribe implements DocumentStore. The first connection is made before
// returning so authentication problems surface to the caller; later drops
// reconnect with exponential backoff until Unsubscribe.
func (c *HTTPStore) Subscribe(ctx context.Context, collectionPath string, fn SnapshotFunc) (Subscription, error) {
	if _, _, err := ParseCollectionPath(collectionPath); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	conn, err := c.dial(ctx, collectionPath)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &httpSubscription{cancel: cancel}
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		c.readLoop(subCtx, collectionPath, conn, fn)
	}()
	return sub, nil
}

func (c *HTTPStore) wsURL(collectionPath string) string {
	u := c.url(collectionPath) + "/_subscribe"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (c *HTTPStore) dial(ctx context.Context, collectionPath string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)
	header.Set("User-Agent", "canvass-client/1.0")

	c.debug.LogRequest("SUBSCRIBE", collectionPath, nil)
	conn, resp, err := websocket.Dial(ctx, c.wsURL(collectionPath), &websocket.DialOptions{
		HTTPClient: c.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, classifyStatus("subscribe", resp.StatusCode, nil)
		}
		return nil, canvass.E(canvass.KindNetwork, "subscribe", err)
	}
	conn.SetReadLimit(32 << 20)
	return conn, nil
}

func (c *HTTPStore) readLoop(ctx context.Context, collectionPath string, conn *websocket.Conn, fn SnapshotFunc) {
	backoff := c.minBackoff
	for {
		if conn != nil {
			err := c.consume(ctx, conn, fn)
			_ = conn.CloseNow()
			conn = nil
			if ctx.Err() != nil {
				return
			}
			logger.LogErr(err, "remote subscription dropped", "collection", collectionPath)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		next, err := c.dial(ctx, collectionPath)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Debug("remote subscription reconnect failed", "collection", collectionPath, "error", err.Error())
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}
		backoff = c.minBackoff
		conn = next
	}
}

func (c *HTTPStore) consume(ctx context.Context, conn *websocket.Conn, fn SnapshotFunc) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageBinary {
			continue
		}
		snap, err := decodeSnapshot(data)
		if err != nil {
			logger.LogErr(err, "remote snapshot decode failed")
			continue
		}
		c.debug.LogSync("snapshot", fmt.Sprintf("%s: %d documents", snap.Collection, len(snap.Documents)))
		fn(snap)
	}
}

type httpSubscription struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (s *httpSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}
