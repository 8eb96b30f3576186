package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Multi delivers every payload to all of its targets at once and succeeds
// only when each target does. A slow target delays the result but not the
// other targets.
type Multi struct {
	targets []Transport
}

// NewMulti creates a Multi over targets. Nil targets are ignored.
func NewMulti(targets ...Transport) *Multi {
	m := &Multi{}
	for _, t := range targets {
		if t != nil {
			m.targets = append(m.targets, t)
		}
	}
	return m
}

// Send hands p to every target concurrently. The returned error joins each
// failing target's error, labelled with its position, so errors.Is still
// matches ErrUnavailable or ErrTransport underneath.
func (m *Multi) Send(ctx context.Context, p Payload) error {
	if len(m.targets) == 1 {
		return SafeSend(ctx, m.targets[0], p)
	}
	errs := make([]error, len(m.targets))
	var wg sync.WaitGroup
	for i, t := range m.targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := SafeSend(ctx, t, p); err != nil {
				errs[i] = fmt.Errorf("target %d: %w", i, err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Close closes every target, even after one fails.
func (m *Multi) Close() error {
	errs := make([]error, 0, len(m.targets))
	for _, t := range m.targets {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}
