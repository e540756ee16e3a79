package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"cropwise/internal/external"
	"cropwise/internal/types"
)

// RTDB is a client for an RTDB-style HTTP store: each tree path is addressed
// as <base>/<path>.json, GET returns the subtree as JSON, PUT fully
// overwrites it, and a text/event-stream GET delivers put/patch events.
//
// All requests go through the resilient external.Client (retries + circuit
// breaker) except the subscription stream, which is long-lived and governed
// by the push trigger's failure accounting instead.
type RTDB struct {
	baseURL   string
	authToken types.SecretString
	client    *external.Client
	// streamClient has no overall timeout; SSE connections are held open
	// indefinitely.
	streamClient *http.Client
}

// NewRTDB creates an RTDB store client. baseURL must not have a trailing
// slash; authToken may be empty for stores without auth.
func NewRTDB(baseURL string, authToken types.SecretString, client *external.Client) *RTDB {
	return &RTDB{
		baseURL:      strings.TrimRight(baseURL, "/"),
		authToken:    authToken,
		client:       client,
		streamClient: &http.Client{},
	}
}

// pathURL builds the REST URL for a tree path, attaching the auth token as
// the query parameter the RTDB contract expects.
func (r *RTDB) pathURL(path string) string {
	u := r.baseURL + "/" + strings.Trim(path, "/") + ".json"
	if token := r.authToken.Unmask(); token != "" {
		u += "?auth=" + url.QueryEscape(token)
	}
	return u
}

// Get reads the subtree at path. RTDB returns the JSON literal null for a
// missing path, which is normalized to nil data.
func (r *RTDB) Get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.pathURL(path), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "building store GET request", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeStoreUnavailable,
			fmt.Sprintf("store GET %s returned %d", path, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeStoreUnavailable, "reading store response", err)
	}
	if isJSONNull(body) {
		return nil, nil
	}
	return json.RawMessage(body), nil
}

// Set fully overwrites the value at path.
func (r *RTDB) Set(ctx context.Context, path string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "encoding store value", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.pathURL(path), bytes.NewReader(payload))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "building store PUT request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeStoreWriteFailed,
			fmt.Sprintf("store PUT %s failed", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.NewAppError(types.ErrCodeStoreWriteFailed,
			fmt.Sprintf("store PUT %s returned %d", path, resp.StatusCode), nil)
	}
	return nil
}

// Subscribe opens the store's event stream for path and delivers put/patch
// events to fn until ctx is cancelled or the stream breaks. RTDB event
// frames carry {"path": ..., "data": ...}; the path is relative to the
// subscribed subtree.
func (r *RTDB) Subscribe(ctx context.Context, path string, fn func(Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.pathURL(path), nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "building store stream request", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := r.streamClient.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeStoreUnavailable, "opening store event stream", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.NewAppError(types.ErrCodeStoreUnavailable,
			fmt.Sprintf("store stream returned %d", resp.StatusCode), nil)
	}

	return r.readStream(ctx, resp.Body, fn)
}

// streamFrame is the data payload of an RTDB stream event.
type streamFrame struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

// readStream parses the text/event-stream framing: "event:" and "data:"
// lines separated by blank lines.
func (r *RTDB) readStream(ctx context.Context, body io.Reader, fn func(Event)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	var data strings.Builder

	flush := func() {
		defer func() {
			eventType = ""
			data.Reset()
		}()
		if eventType == "" {
			return
		}
		ev := Event{Type: EventType(eventType)}
		if data.Len() > 0 {
			var frame streamFrame
			if err := json.Unmarshal([]byte(data.String()), &frame); err == nil {
				ev.Path = frame.Path
				ev.Data = frame.Data
			}
		}
		fn(ev)
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := scanner.Err(); err != nil {
		return types.NewAppError(types.ErrCodeStoreUnavailable, "store event stream broken", err)
	}
	// Remote closed the stream cleanly; the caller decides on resubscribe.
	return types.NewAppError(types.ErrCodeStoreUnavailable, "store event stream closed", nil)
}

// Ping checks reachability with a shallow read of the tree root.
func (r *RTDB) Ping(ctx context.Context) error {
	u := r.baseURL + "/.json?shallow=true"
	if token := r.authToken.Unmask(); token != "" {
		u += "&auth=" + url.QueryEscape(token)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "building store ping request", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.NewAppError(types.ErrCodeStoreUnavailable,
			fmt.Sprintf("store ping returned %d", resp.StatusCode), nil)
	}
	return nil
}

// isJSONNull reports whether body is the JSON literal null.
func isJSONNull(body []byte) bool {
	return string(bytes.TrimSpace(body)) == "null"
}

var _ KV = (*RTDB)(nil)
