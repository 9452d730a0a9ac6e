package groutine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoRunsFunction(t *testing.T) {
	done := make(chan struct{})
	Go("test-worker", func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		assert.Fail(t, "goroutine did not run")
	}
}
