package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/edgard/pollbot/internal/selector"
)

// ErrAPI is returned when the Bot API answers with ok=false.
var ErrAPI = errors.New("telegram api error")

// GetUpdates long-polls getUpdates and returns the decoded response tree.
// Numbers are decoded as json.Number so update ids keep full precision.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration, allowed []string) (any, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("timeout", strconv.FormatInt(int64(timeout/time.Second), 10))
	if len(allowed) > 0 {
		raw, err := json.Marshal(allowed)
		if err != nil {
			return nil, fmt.Errorf("failed to encode allowed_updates: %w", err)
		}
		q.Set("allowed_updates", string(raw))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout+c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?%s", c.serverURL, c.token, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build getUpdates request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates request failed: %w", redactToken(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read getUpdates response: %w", err)
	}
	if c.traceBodies {
		c.logger.DebugContext(ctx, "getUpdates response", "status", resp.StatusCode, "body", string(body))
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to decode getUpdates response (status %d): %w", resp.StatusCode, err)
	}

	if ok, _ := selector.Select(tree, ".ok:b"); ok != true {
		desc, _ := selector.String(tree, ".description")
		return nil, fmt.Errorf("%w: getUpdates status %d: %s", ErrAPI, resp.StatusCode, desc)
	}
	return tree, nil
}

// redactToken drops the request URL, which embeds the bot token.
func redactToken(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &url.Error{Op: urlErr.Op, URL: "[redacted]", Err: urlErr.Err}
	}
	return err
}
