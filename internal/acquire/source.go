// Package acquire fetches raw post records from platform APIs.
package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/you/social-pulse/internal/core"
)

const defaultHTTPTimeout = 15 * time.Second

// Source fetches the current batch of raw records of one platform.
type Source interface {
	Platform() core.Platform
	Fetch(ctx context.Context) ([]any, error)
}

// NewLimiter paces outgoing API calls at rps requests per second. A
// non-positive rps disables pacing.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

type apiClient struct {
	http    *http.Client
	limiter *rate.Limiter
	tag     string
}

func newAPIClient(tag string, limiter *rate.Limiter) apiClient {
	if limiter == nil {
		limiter = NewLimiter(0)
	}
	return apiClient{
		http:    &http.Client{Timeout: defaultHTTPTimeout},
		limiter: limiter,
		tag:     tag,
	}
}

// getJSON waits for the limiter, performs req and decodes the JSON body into
// out using json.Number for numbers.
func (c apiClient) getJSON(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "social-pulse/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("%s: status %s: %s", c.tag, resp.Status, strings.TrimSpace(string(body)))
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, 8<<20))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.tag, err)
	}
	return nil
}
