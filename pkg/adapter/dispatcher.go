package adapter

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/bgapi/internal/groutine"
)

// NotificationCallback receives the value of a characteristic notification.
// Callbacks run on their own goroutine, one per notification, so a slow
// consumer never stalls the receiver loop.
type NotificationCallback func(handle uint16, value []byte)

// dispatcher routes attribute-value events that arrive outside of a read
// to the callback registered for the attribute handle.
type dispatcher struct {
	mu        sync.Mutex
	callbacks map[uint16]NotificationCallback
	logger    *logrus.Logger
}

func newDispatcher(logger *logrus.Logger) *dispatcher {
	return &dispatcher{
		callbacks: make(map[uint16]NotificationCallback),
		logger:    logger,
	}
}

func (d *dispatcher) register(handle uint16, cb NotificationCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks[handle] = cb
}

// has reports whether a callback is registered for handle.
func (d *dispatcher) has(handle uint16) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.callbacks[handle]
	return ok
}

func (d *dispatcher) unregister(handle uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.callbacks, handle)
}

// dispatch fires the callback for handle, if any. The callback reference is
// snapshotted under the lock and invoked outside it on a fresh goroutine.
func (d *dispatcher) dispatch(handle uint16, value []byte) {
	d.mu.Lock()
	cb := d.callbacks[handle]
	d.mu.Unlock()
	if cb == nil {
		d.logger.WithField("atthandle", handle).Debug("Notification with no subscriber")
		return
	}
	v := make([]byte, len(value))
	copy(v, value)
	groutine.Go("notify", func() { cb(handle, v) })
}
