package adapter

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bgapi/internal/bgproto"
	"github.com/srg/bgapi/internal/gatt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDongle is a scripted serial port. Each command written pops the next
// group of frames registered for its class/method and feeds them back to
// the reader.
type fakeDongle struct {
	mu     sync.Mutex
	writes [][]byte
	script map[[2]byte][][][]byte

	rd        chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeDongle() *fakeDongle {
	return &fakeDongle{
		script: make(map[[2]byte][][][]byte),
		rd:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

// on registers one group of frames to send back for the next write of the
// given command. Repeated calls queue successive groups.
func (d *fakeDongle) on(class, method byte, frames ...[]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := [2]byte{class, method}
	d.script[key] = append(d.script[key], frames)
}

// push feeds a frame to the reader without waiting for a command, the way
// an unsolicited event arrives.
func (d *fakeDongle) push(frame []byte) {
	d.rd <- frame
}

func (d *fakeDongle) Read(p []byte) (int, error) {
	select {
	case b := <-d.rd:
		return copy(p, b), nil
	case <-d.closed:
		return 0, io.EOF
	case <-time.After(time.Millisecond):
		return 0, nil
	}
}

func (d *fakeDongle) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = append(d.writes, append([]byte(nil), p...))
	key := [2]byte{p[2], p[3]}
	if groups := d.script[key]; len(groups) > 0 {
		d.script[key] = groups[1:]
		for _, f := range groups[0] {
			d.rd <- f
		}
	}
	return len(p), nil
}

func (d *fakeDongle) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	return nil
}

// commands returns the class/method pairs written so far, in order.
func (d *fakeDongle) commands() [][2]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var cmds [][2]byte
	for _, w := range d.writes {
		cmds = append(cmds, [2]byte{w[2], w[3]})
	}
	return cmds
}

func rspFrame(class, method byte, payload ...byte) []byte {
	return append([]byte{byte(len(payload)>>8) & 0x07, byte(len(payload)), class, method}, payload...)
}

func evtFrame(class, method byte, payload ...byte) []byte {
	f := rspFrame(class, method, payload...)
	f[0] |= 0x80
	return f
}

func decodeFrame(t *testing.T, frame []byte) *bgproto.Packet {
	t.Helper()
	pkt, err := bgproto.Decode(frame)
	require.NoError(t, err)
	return pkt
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestAdapter(t *testing.T, dongle *fakeDongle) *Adapter {
	t.Helper()
	a := NewAdapter(dongle, quietLogger())
	go a.receive()
	t.Cleanup(func() { a.Stop() })
	return a
}

// Frames shared across tests.
var (
	connStatusFrame = evtFrame(bgproto.ClassConnection, 0x00,
		0x01,       // connection
		0x05,       // flags: connected|completed
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66, // address, wire order
		0x00,       // address_type
		0x06, 0x00, // conn_interval
		0x14, 0x00, // timeout
		0x00, 0x00, // latency
		0xff, // bonding
	)
)

func procCompletedFrame(result uint16) []byte {
	return evtFrame(bgproto.ClassAttclient, 0x01,
		0x01, byte(result), byte(result>>8), 0x34, 0x12)
}

func markConnected(a *Adapter) {
	a.st.phase = phaseConnected
	a.st.connection = 1
}

func gattCharacteristicWithCCCD(charHandle, cccdHandle uint16) *gatt.Service {
	return &gatt.Service{
		Handle: 0x20,
		UUID:   "180d",
		Characteristics: []*gatt.Characteristic{{
			Handle: charHandle,
			UUID:   "2a37",
			Descriptors: []*gatt.Descriptor{{
				Handle: cccdHandle,
				UUID:   "2902",
				Type:   gatt.DescriptorClientConfiguration,
			}},
		}},
	}
}

func TestStartHygieneSequence(t *testing.T) {
	dongle := newFakeDongle()
	// Nothing to disconnect: the dongle refuses with a nonzero result.
	dongle.on(bgproto.ClassConnection, 0x00, rspFrame(bgproto.ClassConnection, 0x00, 0x00, 0x86, 0x01))
	dongle.on(bgproto.ClassGap, 0x01, rspFrame(bgproto.ClassGap, 0x01, 0x00, 0x00))
	dongle.on(bgproto.ClassGap, 0x04, rspFrame(bgproto.ClassGap, 0x04, 0x81, 0x01))
	dongle.on(bgproto.ClassSM, 0x01, rspFrame(bgproto.ClassSM, 0x01))

	a := NewAdapter(dongle, quietLogger())
	t.Cleanup(func() { a.Stop() })

	require.NoError(t, a.Start())
	assert.Equal(t, [][2]byte{
		{bgproto.ClassConnection, 0x00},
		{bgproto.ClassGap, 0x01},
		{bgproto.ClassGap, 0x04},
		{bgproto.ClassSM, 0x01},
	}, dongle.commands())
}

func TestConnect(t *testing.T) {
	dongle := newFakeDongle()
	dongle.on(bgproto.ClassGap, 0x03,
		rspFrame(bgproto.ClassGap, 0x03, 0x00, 0x00, 0x01),
		connStatusFrame,
	)
	a := newTestAdapter(t, dongle)

	require.NoError(t, a.Connect("66:55:44:33:22:11", ConnectOptions{Timeout: time.Second}))
	assert.True(t, a.Connected())
	assert.Equal(t, uint8(1), a.st.connection)

	err := a.Connect("66:55:44:33:22:11", ConnectOptions{Timeout: time.Second})
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestConnectTimeoutCancelsAttempt(t *testing.T) {
	dongle := newFakeDongle()
	// Response arrives but no connection status ever does.
	dongle.on(bgproto.ClassGap, 0x03, rspFrame(bgproto.ClassGap, 0x03, 0x00, 0x00, 0x01))
	dongle.on(bgproto.ClassGap, 0x04, rspFrame(bgproto.ClassGap, 0x04, 0x00, 0x00))
	a := newTestAdapter(t, dongle)

	err := a.Connect("66:55:44:33:22:11", ConnectOptions{Timeout: 50 * time.Millisecond})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, a.Connected())
	assert.Contains(t, dongle.commands(), [2]byte{bgproto.ClassGap, 0x04})
}

func TestConnectRejectsBadAddress(t *testing.T) {
	a := newTestAdapter(t, newFakeDongle())
	err := a.Connect("not-an-address", ConnectOptions{Timeout: time.Second})
	assert.Error(t, err)
}

func TestDisconnectFailQuietly(t *testing.T) {
	dongle := newFakeDongle()
	dongle.on(bgproto.ClassConnection, 0x00, rspFrame(bgproto.ClassConnection, 0x00, 0x00, 0x86, 0x01))
	a := newTestAdapter(t, dongle)

	assert.NoError(t, a.Disconnect(true))
}

func TestAttributeRead(t *testing.T) {
	dongle := newFakeDongle()
	dongle.on(bgproto.ClassAttclient, 0x04,
		rspFrame(bgproto.ClassAttclient, 0x04, 0x01, 0x00, 0x00),
		evtFrame(bgproto.ClassAttclient, 0x05,
			0x01,       // connection
			0x21, 0x00, // atthandle
			0x00,             // type: read response
			0x03, 0xaa, 0xbb, 0xcc, // value
		),
	)
	a := newTestAdapter(t, dongle)
	markConnected(a)

	value, err := a.AttributeRead(0x21, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc}, value)
}

func TestAttributeReadFailure(t *testing.T) {
	dongle := newFakeDongle()
	dongle.on(bgproto.ClassAttclient, 0x04,
		rspFrame(bgproto.ClassAttclient, 0x04, 0x01, 0x00, 0x00),
		procCompletedFrame(0x0401), // invalid attribute handle
	)
	a := newTestAdapter(t, dongle)
	markConnected(a)

	_, err := a.AttributeRead(0x21, time.Second)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, uint16(0x0401), perr.Code)
}

func TestAttributeReadRequiresConnection(t *testing.T) {
	a := newTestAdapter(t, newFakeDongle())
	_, err := a.AttributeRead(0x21, time.Second)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestAttributeWrite(t *testing.T) {
	dongle := newFakeDongle()
	dongle.on(bgproto.ClassAttclient, 0x05,
		rspFrame(bgproto.ClassAttclient, 0x05, 0x01, 0x00, 0x00),
		procCompletedFrame(0),
	)
	a := newTestAdapter(t, dongle)
	markConnected(a)

	require.NoError(t, a.AttributeWrite(0x21, []byte{0x01}, time.Second))
}

// disconnectedFrame reports the peer dropping connection 1 with reason
// 0x0213, remote user terminated connection.
var disconnectedFrame = evtFrame(bgproto.ClassConnection, 0x04, 0x01, 0x13, 0x02)

func TestAttributeWriteInterruptedByDisconnect(t *testing.T) {
	dongle := newFakeDongle()
	dongle.on(bgproto.ClassAttclient, 0x05,
		rspFrame(bgproto.ClassAttclient, 0x05, 0x01, 0x00, 0x00),
		disconnectedFrame,
	)
	a := newTestAdapter(t, dongle)
	markConnected(a)

	start := time.Now()
	err := a.AttributeWrite(0x21, []byte{0x01}, 2*time.Second)
	assert.ErrorIs(t, err, ErrNotConnected)
	// The disconnect fails the write right away, not at the timeout.
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, a.Connected())
}

func TestAttributeReadInterruptedByDisconnect(t *testing.T) {
	dongle := newFakeDongle()
	dongle.on(bgproto.ClassAttclient, 0x04,
		rspFrame(bgproto.ClassAttclient, 0x04, 0x01, 0x00, 0x00),
		disconnectedFrame,
	)
	a := newTestAdapter(t, dongle)
	markConnected(a)

	_, err := a.AttributeRead(0x21, 2*time.Second)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDiscoverInterruptedByDisconnect(t *testing.T) {
	dongle := newFakeDongle()
	dongle.on(bgproto.ClassAttclient, 0x03,
		rspFrame(bgproto.ClassAttclient, 0x03, 0x01, 0x00, 0x00),
		disconnectedFrame,
	)
	a := newTestAdapter(t, dongle)
	markConnected(a)

	_, err := a.DiscoverAttributes(2 * time.Second)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestEncryptDisablesBondingFirst(t *testing.T) {
	dongle := newFakeDongle()
	dongle.on(bgproto.ClassSM, 0x01, rspFrame(bgproto.ClassSM, 0x01))
	dongle.on(bgproto.ClassSM, 0x00,
		rspFrame(bgproto.ClassSM, 0x00, 0x01, 0x00, 0x00),
		evtFrame(bgproto.ClassConnection, 0x00,
			0x01,       // connection
			0x03,       // flags: connected|encrypted
			0x11, 0x22, 0x33, 0x44, 0x55, 0x66,
			0x00,       // address_type
			0x06, 0x00, // conn_interval
			0x14, 0x00, // timeout
			0x00, 0x00, // latency
			0xff, // bonding
		),
	)
	a := newTestAdapter(t, dongle)
	markConnected(a)

	require.NoError(t, a.Encrypt(time.Second))
	assert.True(t, a.Encrypted())
	// Bonding is switched off before encryption starts.
	assert.Equal(t, [][2]byte{
		{bgproto.ClassSM, 0x01},
		{bgproto.ClassSM, 0x00},
	}, dongle.commands())
}

func TestRSSIRetriesSentinel(t *testing.T) {
	dongle := newFakeDongle()
	// The dongle reports the not-ready sentinel twice before a reading.
	dongle.on(bgproto.ClassConnection, 0x01, rspFrame(bgproto.ClassConnection, 0x01, 0x01, 25))
	dongle.on(bgproto.ClassConnection, 0x01, rspFrame(bgproto.ClassConnection, 0x01, 0x01, 25))
	dongle.on(bgproto.ClassConnection, 0x01, rspFrame(bgproto.ClassConnection, 0x01, 0x01, 0xc4)) // -60 dBm
	a := newTestAdapter(t, dongle)
	markConnected(a)

	rssi, err := a.RSSI()
	require.NoError(t, err)
	assert.Equal(t, int8(-60), rssi)
	assert.Len(t, dongle.commands(), 3)
}

func TestRSSIGivesUpAfterRetries(t *testing.T) {
	dongle := newFakeDongle()
	for i := 0; i < rssiAttempts; i++ {
		dongle.on(bgproto.ClassConnection, 0x01, rspFrame(bgproto.ClassConnection, 0x01, 0x01, 25))
	}
	a := newTestAdapter(t, dongle)
	markConnected(a)

	_, err := a.RSSI()
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "get_rssi", perr.Op)
}

func TestSubscribeAndNotify(t *testing.T) {
	dongle := newFakeDongle()
	dongle.on(bgproto.ClassAttclient, 0x05,
		rspFrame(bgproto.ClassAttclient, 0x05, 0x01, 0x00, 0x00),
		procCompletedFrame(0),
	)
	a := newTestAdapter(t, dongle)
	markConnected(a)

	svc := gattCharacteristicWithCCCD(0x21, 0x22)
	ch := svc.Characteristics[0]

	got := make(chan []byte, 1)
	require.NoError(t, a.Subscribe(ch, func(handle uint16, value []byte) {
		got <- value
	}, false))

	// CCCD write enables notifications.
	writes := dongle.writes
	require.NotEmpty(t, writes)
	assert.Equal(t, []byte{0x02, 0x01, 0x00}, writes[len(writes)-1][7:]) // len-prefixed {0x01,0x00}

	dongle.push(evtFrame(bgproto.ClassAttclient, 0x05,
		0x01,       // connection
		0x21, 0x00, // atthandle
		0x01,       // type: notify
		0x02, 0xde, 0xad, // value
	))

	select {
	case v := <-got:
		assert.Equal(t, []byte{0xde, 0xad}, v)
	case <-time.After(time.Second):
		t.Fatal("notification not dispatched")
	}
	// The notification went to the dispatcher, not the rendezvous queue.
	assert.Empty(t, a.rx)
}

func TestUnsubscribedNotificationIsQueued(t *testing.T) {
	dongle := newFakeDongle()
	a := newTestAdapter(t, dongle)

	// No callback registered for the handle: the value must land in the
	// rendezvous queue instead of being dropped.
	dongle.push(evtFrame(bgproto.ClassAttclient, 0x05,
		0x01,       // connection
		0x21, 0x00, // atthandle
		0x01,       // type: notify
		0x02, 0xde, 0xad, // value
	))

	pkt, err := a.waitFor([]bgproto.Kind{bgproto.EvtAttclientAttributeValue}, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x21), pkt.Uint16("atthandle"))
}

func TestSubscribedHandleValueAlwaysDispatched(t *testing.T) {
	dongle := newFakeDongle()
	a := newTestAdapter(t, dongle)

	got := make(chan []byte, 1)
	a.dispatcher.register(0x21, func(handle uint16, value []byte) {
		got <- value
	})

	// Even a read-response-typed value for a subscribed handle goes to the
	// callback, never to a synchronous waiter.
	dongle.push(evtFrame(bgproto.ClassAttclient, 0x05,
		0x01,       // connection
		0x21, 0x00, // atthandle
		0x00,       // type: read response
		0x02, 0x01, 0x02, // value
	))

	select {
	case v := <-got:
		assert.Equal(t, []byte{0x01, 0x02}, v)
	case <-time.After(time.Second):
		t.Fatal("value not dispatched")
	}
	assert.Empty(t, a.rx)
}

func TestSubscribeIndicationsUnsupported(t *testing.T) {
	a := newTestAdapter(t, newFakeDongle())
	markConnected(a)

	svc := gattCharacteristicWithCCCD(0x21, 0x22)
	err := a.Subscribe(svc.Characteristics[0], func(uint16, []byte) {}, true)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSubscribeRequiresCCCD(t *testing.T) {
	a := newTestAdapter(t, newFakeDongle())
	markConnected(a)

	svc := gattCharacteristicWithCCCD(0x21, 0x22)
	svc.Characteristics[0].Descriptors = nil
	err := a.Subscribe(svc.Characteristics[0], func(uint16, []byte) {}, false)
	var nfe *NotFoundError
	assert.ErrorAs(t, err, &nfe)
}

func TestWaitForRunsHandlersWithoutDraining(t *testing.T) {
	a := NewAdapter(newFakeDongle(), quietLogger())

	// A bond status precedes the accepted kind; another packet trails it.
	a.rx <- decodeFrame(t, evtFrame(bgproto.ClassSM, 0x04, 0x02, 0x10, 0x00, 0x00))
	a.rx <- decodeFrame(t, procCompletedFrame(0))
	a.rx <- decodeFrame(t, evtFrame(bgproto.ClassSM, 0x04, 0x03, 0x10, 0x00, 0x00))

	pkt, err := a.waitFor([]bgproto.Kind{bgproto.EvtAttclientProcedureCompleted}, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, bgproto.EvtAttclientProcedureCompleted, pkt.Kind)

	// The preceding bond status was processed; the trailing one stays
	// queued for the next wait.
	assert.Equal(t, []uint8{0x02}, a.st.storedBonds)
	assert.Len(t, a.rx, 1)
}

func TestWaitForTransportClosed(t *testing.T) {
	dongle := newFakeDongle()
	a := NewAdapter(dongle, quietLogger())
	go a.receive()

	// A transport failure, not a clean stop: the receiver must fail the
	// queue so the waiter is not stranded.
	dongle.Close()

	_, err := a.waitFor([]bgproto.Kind{bgproto.EvtConnectionStatus}, time.Second, ErrTimeout)
	assert.ErrorIs(t, err, ErrTransportClosed)
	<-a.done
}

func TestWaitForZeroTimeoutBlocksUntilPacket(t *testing.T) {
	a := NewAdapter(newFakeDongle(), quietLogger())
	pkt := decodeFrame(t, procCompletedFrame(0))
	go func() {
		time.Sleep(50 * time.Millisecond)
		a.rx <- pkt
	}()

	start := time.Now()
	got, err := a.waitFor([]bgproto.Kind{bgproto.EvtAttclientProcedureCompleted}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, bgproto.EvtAttclientProcedureCompleted, got.Kind)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitForCustomTimeoutError(t *testing.T) {
	a := NewAdapter(newFakeDongle(), quietLogger())
	want := &ConnectionError{State: NotConnected, Msg: "timed out"}
	_, err := a.waitFor([]bgproto.Kind{bgproto.EvtConnectionStatus}, 10*time.Millisecond, want)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestListBonds(t *testing.T) {
	dongle := newFakeDongle()
	dongle.on(bgproto.ClassSM, 0x05,
		rspFrame(bgproto.ClassSM, 0x05, 0x02),
		evtFrame(bgproto.ClassSM, 0x04, 0x00, 0x10, 0x00, 0x00),
		evtFrame(bgproto.ClassSM, 0x04, 0x01, 0x10, 0x00, 0x00),
	)
	a := newTestAdapter(t, dongle)

	bonds, err := a.ListBonds()
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 1}, bonds)
}

func TestClearAllBonds(t *testing.T) {
	dongle := newFakeDongle()
	dongle.on(bgproto.ClassSM, 0x05,
		rspFrame(bgproto.ClassSM, 0x05, 0x01),
		evtFrame(bgproto.ClassSM, 0x04, 0x03, 0x10, 0x00, 0x00),
	)
	dongle.on(bgproto.ClassSM, 0x02, rspFrame(bgproto.ClassSM, 0x02, 0x00, 0x00))
	a := newTestAdapter(t, dongle)

	require.NoError(t, a.ClearAllBonds())
	assert.Contains(t, dongle.commands(), [2]byte{bgproto.ClassSM, 0x02})
}
