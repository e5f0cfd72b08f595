package probe

import (
	"context"
	"fmt"
	"io"
	"time"
)

const (
	latencyRequests = 8
	latencyBudget   = time.Second
)

// Latency times full trace requests on the shared client and returns the
// fastest. It stops early once two samples exist and a second has passed.
func (c *Client) Latency(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	target := c.Endpoint(tracePath, nil)
	var best time.Duration
	samples := 0
	for i := 0; i < latencyRequests; i++ {
		if samples >= 2 && time.Since(start) > latencyBudget {
			break
		}
		began := time.Now()
		resp, err := c.get(ctx, target)
		if err != nil {
			return 0, fmt.Errorf("latency: %w", err)
		}
		_, err = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if err != nil {
			return 0, fmt.Errorf("latency: %w", err)
		}
		elapsed := time.Since(began)
		if samples == 0 || elapsed < best {
			best = elapsed
		}
		samples++
	}
	return best, nil
}
