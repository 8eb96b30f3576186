package model

// RawEvent is the intermediate type produced by collaborators (error
// listeners, manual calls) and consumed by the capture orchestrator.
type RawEvent struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Stack   string   `json:"stack,omitempty"`
	Context *Context `json:"context,omitempty"`
}

// TypeCustom marks events whose input didn't match any known shape.
const TypeCustom = "custom"
