package transport

import (
	"context"
	"errors"
	"log/slog"
)

// Fallback prefers a non-blocking primary transport and falls back to a
// blocking secondary when the primary reports ErrUnavailable.
type Fallback struct {
	Primary   Transport
	Secondary Transport
	Logger    *slog.Logger // nil means slog.Default()
}

// NewFallback creates a Fallback transport.
func NewFallback(primary, secondary Transport) *Fallback {
	return &Fallback{Primary: primary, Secondary: secondary}
}

// Send tries the primary, then the secondary if the primary is unavailable.
func (f *Fallback) Send(ctx context.Context, p Payload) error {
	if f.Primary != nil {
		err := SafeSend(ctx, f.Primary, p)
		if err == nil || !errors.Is(err, ErrUnavailable) {
			return err
		}
		f.logger().Debug("primary transport unavailable, using fallback", "error", err)
	}
	return SafeSend(ctx, f.Secondary, p)
}

func (f *Fallback) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Close closes both transports.
func (f *Fallback) Close() error {
	var errs []error
	if f.Primary != nil {
		errs = append(errs, f.Primary.Close())
	}
	errs = append(errs, f.Secondary.Close())
	return errors.Join(errs...)
}
