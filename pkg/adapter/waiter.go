package adapter

import (
	"time"

	"github.com/srg/bgapi/internal/bgproto"
)

// waitFor blocks until a packet whose kind is in accepted arrives on the
// receive queue, the deadline passes, or the transport dies. A timeout of
// zero or less blocks indefinitely. Every packet popped on the way runs
// through the state machine, accepted or not, so state mutations are never
// skipped; packets already queued behind the accepted one stay queued for
// the next wait.
//
// timeoutErr names the error returned on deadline expiry so callers can
// surface an operation-specific failure instead of a generic timeout.
func (a *Adapter) waitFor(accepted []bgproto.Kind, timeout time.Duration, timeoutErr error) (*bgproto.Packet, error) {
	if timeoutErr == nil {
		timeoutErr = ErrTimeout
	}
	// A nil channel never fires, giving the unbounded mode.
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case pkt, ok := <-a.rx:
			if !ok {
				return nil, ErrTransportClosed
			}
			a.handlePacket(pkt)
			for _, k := range accepted {
				if pkt.Kind == k {
					return pkt, nil
				}
			}
		case <-deadline:
			return nil, timeoutErr
		}
	}
}

// checkConnection fails an in-flight operation when a disconnect event was
// processed while it waited.
func (a *Adapter) checkConnection(op string) error {
	if !a.st.connected() {
		return &ConnectionError{State: NotConnected, Msg: op + " interrupted by disconnect"}
	}
	return nil
}

// sendCommand writes one framed command to the serial port.
func (a *Adapter) sendCommand(frame []byte) error {
	a.logger.WithField("bytes", len(frame)).Trace("Sending command")
	if _, err := a.port.Write(frame); err != nil {
		return err
	}
	return nil
}

// roundTrip sends a command and waits for its paired response kind.
func (a *Adapter) roundTrip(frame []byte, rsp bgproto.Kind, timeout time.Duration) (*bgproto.Packet, error) {
	if err := a.sendCommand(frame); err != nil {
		return nil, err
	}
	return a.waitFor([]bgproto.Kind{rsp}, timeout, nil)
}
