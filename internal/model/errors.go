package model

import "errors"

var (
	// ErrFiltered marks an event dropped by an ignore pattern. Intentional.
	ErrFiltered = errors.New("event filtered")
	// ErrSampledOut marks an event dropped by sampling. Intentional.
	ErrSampledOut = errors.New("event sampled out")
	// ErrTransport is a retryable delivery failure.
	ErrTransport = errors.New("transport failure")
	// ErrPersistence means durable storage could not be read or written.
	ErrPersistence = errors.New("persistence failure")
	// ErrMaxRetriesExceeded marks a cached record permanently dropped.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)
