package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bfussell/libamvp/internal/errors"
	"github.com/bfussell/libamvp/internal/retry"
)

// DoJSON performs one authenticated JSON round-trip.  A nil in sends
// no body; a nil out discards the response body.  Requests the server
// answers with 429/503 are retried, honoring Retry-After.
func (c *Client) DoJSON(ctx context.Context, op, method, url string, in, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
	}

	var respBody []byte
	err := c.Backoff.Do(ctx, func(attempt int) error {
		if attempt > 1 {
			c.Stats.Retry()
			c.Logger.Verbose("%s %s: attempt %d", op, url, attempt)
		}
		var err error
		respBody, err = c.roundTrip(ctx, op, method, url, body)
		return err
	})
	if err != nil {
		return err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

// GetRaw fetches url and returns the raw response body.
func (c *Client) GetRaw(ctx context.Context, op, url string) ([]byte, error) {
	var respBody []byte
	err := c.Backoff.Do(ctx, func(attempt int) error {
		if attempt > 1 {
			c.Stats.Retry()
		}
		var err error
		respBody, err = c.roundTrip(ctx, op, http.MethodGet, url, nil)
		return err
	})
	return respBody, err
}

// roundTrip is one attempt.  It classifies the outcome for the retry
// loop: retryable answers are wrapped with the server-directed wait,
// everything else is permanent.
func (c *Client) roundTrip(ctx context.Context, op, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, retry.Permanent(errors.Wrap(op, url, 0, err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		werr := errors.Wrap(op, url, 0, err)
		if werr.Retryable {
			return nil, werr
		}
		return nil, retry.Permanent(werr)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Permanent(errors.Wrap(op, url, resp.StatusCode, err))
	}
	c.Stats.BytesUploaded(int64(len(body)))
	c.Stats.BytesDownloaded(int64(len(respBody)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	werr := errors.Wrap(op, url, resp.StatusCode,
		fmt.Errorf("server answered %s", resp.Status))
	c.Stats.RecordError(werr.Error())
	if !werr.Retryable {
		return nil, retry.Permanent(werr)
	}
	if wait := retryAfter(resp); wait > 0 {
		return nil, retry.After(wait, werr)
	}
	return nil, werr
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
