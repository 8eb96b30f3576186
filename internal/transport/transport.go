// Package transport delivers encoded event payloads to a collection endpoint.
package transport

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/crimson-sun/ember/internal/model"
)

// Transport sends payloads. Send never panics; a nil error means the payload
// was delivered (or, for fire-and-forget transports, accepted for delivery).
type Transport interface {
	Send(ctx context.Context, p Payload) error
	Close() error
}

// Payload is what goes on the wire: a single record, or a batch encoded as
// {"reports": [...]}.
type Payload struct {
	Reports []model.EventRecord
	Batch   bool
}

// Single wraps one record.
func Single(r model.EventRecord) Payload {
	return Payload{Reports: []model.EventRecord{r}}
}

// Batched wraps several records sent together.
func Batched(rs []model.EventRecord) Payload {
	return Payload{Reports: rs, Batch: true}
}

// Len returns the number of records carried.
func (p Payload) Len() int {
	return len(p.Reports)
}

// Encode renders the payload's wire form.
func Encode(p Payload) ([]byte, error) {
	if !p.Batch && len(p.Reports) == 1 {
		return json.Marshal(p.Reports[0])
	}
	reports := p.Reports
	if reports == nil {
		reports = []model.EventRecord{}
	}
	return json.Marshal(model.Batch{Reports: reports})
}

// Decode parses either wire form back into a payload.
func Decode(data []byte) (Payload, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Payload{}, fmt.Errorf("transport: decode: %w", err)
	}
	if _, ok := probe["reports"]; ok {
		var b model.Batch
		if err := json.Unmarshal(data, &b); err != nil {
			return Payload{}, fmt.Errorf("transport: decode batch: %w", err)
		}
		return Batched(b.Reports), nil
	}
	var r model.EventRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return Payload{}, fmt.Errorf("transport: decode record: %w", err)
	}
	return Single(r), nil
}

// SafeSend calls t.Send, converting a panic into an ErrTransport error.
func SafeSend(ctx context.Context, t Transport, p Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", model.ErrTransport, r)
		}
	}()
	return t.Send(ctx, p)
}
