package adapter

import (
	"github.com/srg/bgapi/internal/bgproto"
)

// rxQueueDepth bounds the receive queue. Scans can flood the queue while
// the caller sleeps between waits; the depth covers the densest burst a
// scan window produces before the next drain.
const rxQueueDepth = 1024

// receive is the reader goroutine. It pulls bytes off the serial port,
// reassembles frames, decodes them, and either hands attribute-value
// notifications straight to the dispatcher or queues the packet for the
// caller's next wait.
//
// A read error is fatal: the queue is closed so every current and future
// wait fails with ErrTransportClosed. A clean stop leaves the queue open
// and simply returns.
func (a *Adapter) receive() {
	defer close(a.done)

	reader := bgproto.NewFrameReader()
	buf := make([]byte, 256)

	for {
		select {
		case <-a.stop:
			return
		default:
		}

		n, err := a.port.Read(buf)
		if err != nil {
			select {
			case <-a.stop:
				return
			default:
			}
			a.logger.WithError(err).Error("Serial read failed, shutting down receiver")
			close(a.rx)
			return
		}
		if n == 0 {
			// Read timeout; loop around so stop is observed promptly.
			continue
		}

		for _, frame := range reader.Feed(buf[:n]) {
			pkt, err := bgproto.Decode(frame)
			if err != nil {
				a.logger.WithError(err).Warn("Dropping undecodable frame")
				continue
			}
			a.logger.WithField("packet", pkt).Trace("Received packet")

			// Attribute values route on subscription membership: a
			// registered handle's values always go to its callback and
			// are never seen by a synchronous wait; everything else is
			// queued, subscribed later or not.
			if pkt.Kind == bgproto.EvtAttclientAttributeValue {
				handle := pkt.Uint16("atthandle")
				if a.dispatcher.has(handle) {
					a.dispatcher.dispatch(handle, pkt.Bytes("value"))
					continue
				}
			}

			select {
			case a.rx <- pkt:
			case <-a.stop:
				return
			}
		}
	}
}
