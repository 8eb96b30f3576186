package model

import (
	"maps"
	"time"
)

// Breadcrumb is a timestamped note of recent application activity.
type Breadcrumb struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Clone copies the breadcrumb, including its data map (one level deep).
func (b Breadcrumb) Clone() Breadcrumb {
	b.Data = maps.Clone(b.Data)
	return b
}
