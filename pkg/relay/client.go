package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"

	"github.com/bytedance/sonic"

	"github.com/astromechza/tasksync/pkg/task"
	"github.com/astromechza/tasksync/pkg/taskdoc"
)

// maxSyncRounds bounds the request round trips of one Client.Sync call.
const maxSyncRounds = 32

var ErrStoreNotFound = errors.New("store not found")

// Client talks to a relay.
type Client struct {
	BaseURL *url.URL
	HTTP    *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL.JoinPath(path).String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return raw, nil
	case http.StatusNotFound:
		return nil, ErrStoreNotFound
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
}

// Latest fetches the relay's full state of store.
func (c *Client) Latest(ctx context.Context, store string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "stores/"+url.PathEscape(store)+"/latest", "", nil)
}

// Tasks fetches the relay's task list of store.
func (c *Client) Tasks(ctx context.Context, store string) ([]task.Task, error) {
	raw, err := c.do(ctx, http.MethodGet, "stores/"+url.PathEscape(store)+"/tasks", "", nil)
	if err != nil {
		return nil, err
	}
	return taskdoc.ParseTranscript(raw)
}

// Push sends a full state to the relay and returns the relay's merged state.
func (c *Client) Push(ctx context.Context, store string, state []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "stores/"+url.PathEscape(store)+"/updates", "application/octet-stream", state)
}

// Sync runs the cookie sync protocol until doc and the relay's store have the same heads. cookie is the
// relay's session state from a previous call, or nil. The returned cookie resumes the next call. doc must
// not be used concurrently while Sync runs.
func (c *Client) Sync(ctx context.Context, store string, doc *taskdoc.Document, cookie []byte) ([]byte, error) {
	peer := doc.NewPeer()
	path := "stores/" + url.PathEscape(store) + "/sync"
	for round := 0; round < maxSyncRounds; round++ {
		outgoing := make([][]byte, 0)
		if cookie != nil {
			for {
				msg, valid := peer.Generate()
				if !valid {
					break
				}
				outgoing = append(outgoing, msg)
			}
		}

		body, err := sonic.Marshal(syncRequest{Cookie: cookie, Messages: outgoing})
		if err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}
		raw, err := c.do(ctx, http.MethodPost, path, "application/json", body)
		if err != nil {
			return nil, err
		}
		var out syncResponse
		if err := sonic.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("failed to read sync body: %w", err)
		}
		if out.Cookie != nil {
			cookie = out.Cookie
		}
		for _, message := range out.Messages {
			if err := peer.Receive(message); err != nil {
				return nil, fmt.Errorf("failed to load sync message: %w", err)
			}
		}
		if len(outgoing) == 0 && sameHeads(doc.Heads(), out.Heads) && round > 0 {
			return cookie, nil
		}
	}
	return cookie, fmt.Errorf("no convergence after %d rounds", maxSyncRounds)
}

func sameHeads(a, b []string) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
