// Package safego launches background goroutines that cannot take the process
// down. Jobs and other fire-and-forget work in OpsDeck run for the lifetime of
// the server; an unrecovered panic in one of them would otherwise either crash
// the binary or (behind a bare recover) kill the goroutine silently.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn in a new goroutine, recovering and logging any panic together
// with its stack trace. Use it for everything not tied to a request; panics in
// request handlers are already handled by gin.Recovery.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background goroutine panicked",
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
