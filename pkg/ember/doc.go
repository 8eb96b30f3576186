// Package ember reports errors and telemetry events from an application to
// a collector without blocking or crashing the host.
//
// Quick start:
//
//	c, err := ember.New("my-app", ember.WithEndpoint("https://collect.example.com/v1/events"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	c.AddBreadcrumb("navigation", "/checkout", nil)
//	c.CaptureError(err)
//
// Events are batched, sent through a non-blocking transport, and cached on
// disk while the collector is unreachable. A Client is safe for concurrent
// use. Create one per application id, or share them through a Registry.
package ember
