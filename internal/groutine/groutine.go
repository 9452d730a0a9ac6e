// Package groutine starts named goroutines. The name shows up as a pprof
// label, which makes goroutine dumps of a stuck driver readable.
package groutine

import (
	"context"
	"runtime/pprof"
)

// Go runs fn on a new goroutine labeled with name.
//
// Example usage:
//
//	groutine.Go("receiver", a.receive)
func Go(name string, fn func()) {
	labels := pprof.Labels("goroutine_name", name)
	go pprof.Do(context.Background(), labels, func(context.Context) {
		fn()
	})
}
