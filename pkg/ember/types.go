package ember

import (
	"github.com/crimson-sun/ember/internal/capture"
	"github.com/crimson-sun/ember/internal/metrics"
	"github.com/crimson-sun/ember/internal/model"
	"github.com/crimson-sun/ember/internal/transport"
)

// Event is a raw observation: a type, a message, and optionally a stack and
// context.
type Event = model.RawEvent

// Context describes where an event was observed.
type Context = model.Context

// Record is the assembled event that goes on the wire.
type Record = model.EventRecord

// Breadcrumb is a note of recent activity attached to later records.
type Breadcrumb = model.Breadcrumb

// Level is the severity of a record.
type Level = model.Level

const (
	LevelDebug   = model.LevelDebug
	LevelInfo    = model.LevelInfo
	LevelWarning = model.LevelWarning
	LevelError   = model.LevelError
	LevelFatal   = model.LevelFatal
)

// CaptureOptions are per-call settings for Capture.
type CaptureOptions = capture.Options

// Outcome reports what a capture call did with the event.
type Outcome = capture.Outcome

const (
	Reported = capture.Reported
	Disabled = capture.Disabled
	Filtered = capture.Filtered
	Sampled  = capture.Sampled
	Vetoed   = capture.Vetoed
	Failed   = capture.Failed
)

// Plugin is a set of optional hooks run around every capture.
type Plugin = capture.Plugin

// Handle is what a plugin's Setup receives.
type Handle = capture.Handle

// Health is a point-in-time snapshot of delivery counters.
type Health = metrics.Snapshot

// Transport delivers payloads to a collector.
type Transport = transport.Transport

// Payload is one or more records headed for the wire.
type Payload = transport.Payload
