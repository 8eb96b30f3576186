// Package connectivity answers "can we reach the collector?" and reports
// changes in the answer.
package connectivity

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Probe reports whether the network is currently reachable.
type Probe func(ctx context.Context) bool

// Always is a Probe that reports a fixed state.
func Always(online bool) Probe {
	return func(context.Context) bool { return online }
}

// HTTPProbe reports online when a HEAD request to url gets any HTTP response.
// Server errors still mean the network is up.
func HTTPProbe(url string, timeout time.Duration) Probe {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return true
	}
}

// Watch polls probe every interval and sends the new state on the returned
// channel each time it changes from initial. The channel is closed when ctx
// is cancelled.
func Watch(ctx context.Context, probe Probe, interval time.Duration, initial bool) <-chan bool {
	ch := make(chan bool, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		state := initial
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := probe(ctx)
				if now == state {
					continue
				}
				state = now
				select {
				case ch <- now:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}
