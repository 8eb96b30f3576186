package model

import (
	"maps"
	"time"
)

// Level is the severity attached to an EventRecord.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// ParseLevel maps a string to a Level. Unknown strings default to LevelError.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelDebug, LevelInfo, LevelWarning, LevelError, LevelFatal:
		return Level(s)
	case "warn":
		return LevelWarning
	default:
		return LevelError
	}
}

// Context describes the environment the event was observed in.
type Context struct {
	UserAgent string            `json:"userAgent"`
	URL       string            `json:"url"`
	Viewport  string            `json:"viewport"`
	UserID    string            `json:"userId,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// EventRecord is the fully assembled telemetry event ready for transmission.
// It is built once by the capture orchestrator; after it leaves the
// orchestrator no stage modifies it.
type EventRecord struct {
	AppID       string         `json:"appId"`
	Timestamp   time.Time      `json:"timestamp"`
	SessionID   string         `json:"sessionId"`
	EventID     string         `json:"eventId"`
	Type        string         `json:"type"`
	Level       Level          `json:"level"`
	Message     string         `json:"message"`
	Stack       string         `json:"stack,omitempty"`
	Context     Context        `json:"context"`
	Breadcrumbs []Breadcrumb   `json:"breadcrumbs"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Clone returns a deep copy of the record so hooks can't reach back into
// state owned by an earlier stage.
func (r EventRecord) Clone() EventRecord {
	r.Context.Tags = maps.Clone(r.Context.Tags)
	r.Extra = maps.Clone(r.Extra)
	if r.Breadcrumbs != nil {
		crumbs := make([]Breadcrumb, len(r.Breadcrumbs))
		for i, b := range r.Breadcrumbs {
			crumbs[i] = b.Clone()
		}
		r.Breadcrumbs = crumbs
	}
	return r
}

// Merge copies every non-zero field of patch onto r. Maps are merged key by
// key, breadcrumbs are replaced only when patch carries some.
func (r *EventRecord) Merge(patch EventRecord) {
	if patch.AppID != "" {
		r.AppID = patch.AppID
	}
	if !patch.Timestamp.IsZero() {
		r.Timestamp = patch.Timestamp
	}
	if patch.SessionID != "" {
		r.SessionID = patch.SessionID
	}
	if patch.EventID != "" {
		r.EventID = patch.EventID
	}
	if patch.Type != "" {
		r.Type = patch.Type
	}
	if patch.Level != "" {
		r.Level = patch.Level
	}
	if patch.Message != "" {
		r.Message = patch.Message
	}
	if patch.Stack != "" {
		r.Stack = patch.Stack
	}
	if patch.Context.UserAgent != "" {
		r.Context.UserAgent = patch.Context.UserAgent
	}
	if patch.Context.URL != "" {
		r.Context.URL = patch.Context.URL
	}
	if patch.Context.Viewport != "" {
		r.Context.Viewport = patch.Context.Viewport
	}
	if patch.Context.UserID != "" {
		r.Context.UserID = patch.Context.UserID
	}
	if len(patch.Context.Tags) > 0 {
		if r.Context.Tags == nil {
			r.Context.Tags = make(map[string]string, len(patch.Context.Tags))
		}
		maps.Copy(r.Context.Tags, patch.Context.Tags)
	}
	if len(patch.Breadcrumbs) > 0 {
		r.Breadcrumbs = patch.Breadcrumbs
	}
	if len(patch.Extra) > 0 {
		if r.Extra == nil {
			r.Extra = make(map[string]any, len(patch.Extra))
		}
		maps.Copy(r.Extra, patch.Extra)
	}
}

// Batch is the wire form of several records sent together.
type Batch struct {
	Reports []EventRecord `json:"reports"`
}
