// Package adapter implements a blocking driver for BLE dongles speaking
// the BGAPI binary protocol over a serial port. One goroutine owns the
// serial read side and feeds a rendezvous queue; callers issue one
// operation at a time and block until the matching response or event
// arrives.
package adapter

import (
	"time"

	"github.com/cornelk/hashmap"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bgapi/internal/bgproto"
	"github.com/srg/bgapi/internal/gatt"
	"github.com/srg/bgapi/internal/groutine"
	"github.com/srg/bgapi/internal/serial"
)

const (
	// responseTimeout bounds the wait for a command's immediate response.
	responseTimeout = 1 * time.Second

	// Connection parameters passed to connect_direct, in protocol units
	// (1.25 ms for intervals, 10 ms for the supervision timeout).
	connIntervalMin = 6
	connIntervalMax = 30
	connTimeout     = 20
	connLatency     = 0

	// Full handle range swept by attribute discovery.
	discoverFirstHandle = 0x0001
	discoverLastHandle  = 0xffff
)

// Adapter drives one BGAPI dongle. All operations block the calling
// goroutine; the adapter supports a single outstanding operation at a
// time.
type Adapter struct {
	port   serial.Port
	logger *logrus.Logger

	rx   chan *bgproto.Packet
	stop chan struct{}
	done chan struct{}

	st         driverState
	dispatcher *dispatcher
	devices    *hashmap.Map[string, *Device]
}

// NewAdapter wraps an open serial port. The caller keeps ownership of the
// port until Start; Stop closes it.
func NewAdapter(port serial.Port, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Adapter{
		port:       port,
		logger:     logger,
		rx:         make(chan *bgproto.Packet, rxQueueDepth),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		dispatcher: newDispatcher(logger),
		devices:    hashmap.New[string, *Device](),
	}
}

// Start launches the receiver loop and puts the dongle into a known
// state: any stale connection is dropped, advertising and any running GAP
// procedure are stopped, and bondable mode is switched off. Failures of
// the cleanup commands are logged, not fatal; the dongle may simply have
// nothing to clean up.
func (a *Adapter) Start() error {
	groutine.Go("receiver", a.receive)

	if err := a.Disconnect(true); err != nil {
		return err
	}

	if pkt, err := a.roundTrip(bgproto.GapSetMode(0, 0), bgproto.RspGapSetMode, responseTimeout); err != nil {
		return err
	} else if result := pkt.Uint16("result"); result != 0 {
		a.logger.WithField("result", gatt.ResultMessage(result)).Warn("Could not stop advertising")
	}

	if pkt, err := a.roundTrip(bgproto.GapEndProcedure(), bgproto.RspGapEndProcedure, responseTimeout); err != nil {
		return err
	} else if result := pkt.Uint16("result"); result != 0 {
		a.logger.WithField("result", gatt.ResultMessage(result)).Warn("Could not stop GAP procedure")
	}

	if _, err := a.roundTrip(bgproto.SmSetBondableMode(false), bgproto.RspSmSetBondableMode, responseTimeout); err != nil {
		return err
	}

	a.logger.Debug("Adapter started")
	return nil
}

// Stop shuts the receiver loop down and closes the serial port. Safe to
// call once, whether or not Start succeeded past launching the receiver.
func (a *Adapter) Stop() error {
	close(a.stop)
	<-a.done
	err := a.port.Close()
	a.logger.Debug("Adapter stopped")
	return err
}

// ConnectOptions tunes Connect. AddressType 0 is a public address, 1 a
// random one.
type ConnectOptions struct {
	AddressType uint8
	Timeout     time.Duration `default:"5s"`
}

// Connect establishes a connection to the device at address, blocking
// until the link is up or the timeout passes. A timeout cancels the
// pending connection attempt before returning.
func (a *Adapter) Connect(address string, opts ConnectOptions) error {
	defaults.SetDefaults(&opts)
	if a.st.connected() {
		return &ConnectionError{State: AlreadyConnected, Msg: "disconnect before connecting again"}
	}

	addr, err := parseAddress(address)
	if err != nil {
		return err
	}

	a.logger.WithField("address", address).Info("Connecting")
	a.st.phase = phaseConnecting

	cmd := bgproto.GapConnectDirect(addr, opts.AddressType,
		connIntervalMin, connIntervalMax, connTimeout, connLatency)
	pkt, err := a.roundTrip(cmd, bgproto.RspGapConnectDirect, responseTimeout)
	if err != nil {
		return err
	}
	if result := pkt.Uint16("result"); result != 0 {
		a.st.phase = phaseIdle
		return protocolErr("connect_direct", result)
	}

	_, err = a.waitFor([]bgproto.Kind{bgproto.EvtConnectionStatus}, opts.Timeout,
		&ConnectionError{State: NotConnected, Msg: "timed out connecting to " + address})
	if err != nil {
		a.st.phase = phaseIdle
		// Cancel the pending attempt so the dongle does not connect
		// behind our back later.
		if _, epErr := a.roundTrip(bgproto.GapEndProcedure(), bgproto.RspGapEndProcedure, responseTimeout); epErr != nil {
			a.logger.WithError(epErr).Warn("Could not cancel pending connection")
		}
		return err
	}

	a.logger.WithField("address", address).Info("Connected")
	return nil
}

// Disconnect drops the current connection. With failQuietly set, a
// missing connection or a command failure is logged and swallowed; this
// is what startup cleanup and defensive teardown paths want.
func (a *Adapter) Disconnect(failQuietly bool) error {
	pkt, err := a.roundTrip(bgproto.ConnectionDisconnect(a.st.connection), bgproto.RspConnectionDisconnect, responseTimeout)
	if err != nil {
		if failQuietly {
			a.logger.WithError(err).Debug("Quiet disconnect failed")
			return nil
		}
		return err
	}
	if result := pkt.Uint16("result"); result != 0 {
		if failQuietly {
			a.logger.WithField("result", gatt.ResultMessage(result)).Debug("Quiet disconnect refused")
			return nil
		}
		return protocolErr("disconnect", result)
	}

	_, err = a.waitFor([]bgproto.Kind{bgproto.EvtConnectionDisconnected}, responseTimeout, nil)
	if err != nil {
		if failQuietly {
			return nil
		}
		return err
	}
	a.st.phase = phaseIdle
	a.logger.Info("Disconnected")
	return nil
}

// Bond pairs with the connected device and enables encryption, blocking
// until bonding completes, fails, or the timeout passes.
func (a *Adapter) Bond(timeout time.Duration) error {
	if !a.st.connected() {
		return ErrNotConnected
	}

	a.st.bondExpected = true
	a.st.bondingFailed = false

	if _, err := a.roundTrip(bgproto.SmSetBondableMode(true), bgproto.RspSmSetBondableMode, responseTimeout); err != nil {
		return err
	}
	pkt, err := a.roundTrip(bgproto.SmEncryptStart(a.st.connection, true), bgproto.RspSmEncryptStart, responseTimeout)
	if err != nil {
		return err
	}
	if result := pkt.Uint16("result"); result != 0 {
		return protocolErr("encrypt_start", result)
	}

	deadline := time.Now().Add(timeout)
	accepted := []bgproto.Kind{
		bgproto.EvtSmBondStatus,
		bgproto.EvtSmBondingFail,
		bgproto.EvtConnectionStatus,
		bgproto.EvtConnectionDisconnected,
	}
	for !a.st.bondingFailed && a.st.connected() && !a.st.bonded && !a.st.encrypted {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}
		if _, err := a.waitFor(accepted, remaining, nil); err != nil {
			return err
		}
	}
	if a.st.bondingFailed {
		return protocolErr("bond", a.st.lastEvent)
	}
	if !a.st.connected() {
		return &ConnectionError{State: NotConnected, Msg: "device disconnected while bonding"}
	}
	a.logger.Info("Bonded")
	return nil
}

// Encrypt starts encryption on the current connection using an existing
// bond, without creating a new one.
func (a *Adapter) Encrypt(timeout time.Duration) error {
	if !a.st.connected() {
		return ErrNotConnected
	}

	// Encrypting against an existing bond must not create a new one.
	if _, err := a.roundTrip(bgproto.SmSetBondableMode(false), bgproto.RspSmSetBondableMode, responseTimeout); err != nil {
		return err
	}
	pkt, err := a.roundTrip(bgproto.SmEncryptStart(a.st.connection, false), bgproto.RspSmEncryptStart, responseTimeout)
	if err != nil {
		return err
	}
	if result := pkt.Uint16("result"); result != 0 {
		return protocolErr("encrypt_start", result)
	}

	deadline := time.Now().Add(timeout)
	accepted := []bgproto.Kind{
		bgproto.EvtConnectionStatus,
		bgproto.EvtConnectionDisconnected,
	}
	for a.st.connected() && !a.st.encrypted {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}
		if _, err := a.waitFor(accepted, remaining, nil); err != nil {
			return err
		}
	}
	if !a.st.connected() {
		return &ConnectionError{State: NotConnected, Msg: "device disconnected while encrypting"}
	}
	return nil
}

// AttributeRead reads the value of the attribute at handle. A procedure
// completed event arriving before any value means the read failed and
// carries the reason.
func (a *Adapter) AttributeRead(handle uint16, timeout time.Duration) ([]byte, error) {
	if !a.st.connected() {
		return nil, ErrNotConnected
	}

	a.st.valueReceived = false
	a.st.procedureCompleted = false

	pkt, err := a.roundTrip(bgproto.AttclientReadByHandle(a.st.connection, handle), bgproto.RspAttclientReadByHandle, responseTimeout)
	if err != nil {
		return nil, err
	}
	if result := pkt.Uint16("result"); result != 0 {
		return nil, protocolErr("read_by_handle", result)
	}
	if err := a.checkConnection("read"); err != nil {
		return nil, err
	}

	_, err = a.waitFor([]bgproto.Kind{
		bgproto.EvtAttclientAttributeValue,
		bgproto.EvtAttclientProcedureCompleted,
		bgproto.EvtConnectionDisconnected,
	}, timeout, nil)
	if err != nil {
		return nil, err
	}
	if err := a.checkConnection("read"); err != nil {
		return nil, err
	}
	if !a.st.valueReceived {
		return nil, protocolErr("read", a.st.lastEvent)
	}
	return a.st.value, nil
}

// AttributeWrite writes value to the attribute at handle and blocks until
// the remote acknowledges the write.
func (a *Adapter) AttributeWrite(handle uint16, value []byte, timeout time.Duration) error {
	if !a.st.connected() {
		return ErrNotConnected
	}

	a.st.procedureCompleted = false

	pkt, err := a.roundTrip(bgproto.AttclientAttributeWrite(a.st.connection, handle, value), bgproto.RspAttclientAttributeWrite, responseTimeout)
	if err != nil {
		return err
	}
	if result := pkt.Uint16("result"); result != 0 {
		return protocolErr("attribute_write", result)
	}
	if err := a.checkConnection("write"); err != nil {
		return err
	}

	_, err = a.waitFor([]bgproto.Kind{
		bgproto.EvtAttclientProcedureCompleted,
		bgproto.EvtConnectionDisconnected,
	}, timeout, nil)
	if err != nil {
		return err
	}
	if err := a.checkConnection("write"); err != nil {
		return err
	}
	if a.st.lastEvent != 0 {
		return protocolErr("write", a.st.lastEvent)
	}
	return nil
}

// DiscoverAttributes sweeps the whole handle range with find_information
// and returns the service tree assembled from the resulting stream of
// found-attribute events.
func (a *Adapter) DiscoverAttributes(timeout time.Duration) ([]*gatt.Service, error) {
	if !a.st.connected() {
		return nil, ErrNotConnected
	}

	a.st.services = nil
	a.st.procedureCompleted = false

	cmd := bgproto.AttclientFindInformation(a.st.connection, discoverFirstHandle, discoverLastHandle)
	pkt, err := a.roundTrip(cmd, bgproto.RspAttclientFindInformation, responseTimeout)
	if err != nil {
		return nil, err
	}
	if result := pkt.Uint16("result"); result != 0 {
		return nil, protocolErr("find_information", result)
	}
	if err := a.checkConnection("discover"); err != nil {
		return nil, err
	}

	_, err = a.waitFor([]bgproto.Kind{
		bgproto.EvtAttclientProcedureCompleted,
		bgproto.EvtConnectionDisconnected,
	}, timeout, nil)
	if err != nil {
		return nil, err
	}
	if err := a.checkConnection("discover"); err != nil {
		return nil, err
	}
	if a.st.lastEvent != 0 {
		return nil, protocolErr("discover", a.st.lastEvent)
	}
	a.logger.WithField("services", len(a.st.services)).Debug("Discovery complete")
	return a.st.services, nil
}

const (
	// rssiNotReady is returned by the dongle right after connecting,
	// before the first reading is available.
	rssiNotReady = 25

	rssiAttempts   = 3
	rssiRetryDelay = 100 * time.Millisecond
)

// RSSI returns the received signal strength of the current connection in
// dBm. The dongle reports a sentinel value until the first reading lands,
// so the query is retried a few times before giving up.
func (a *Adapter) RSSI() (int8, error) {
	if !a.st.connected() {
		return 0, ErrNotConnected
	}

	for attempt := 0; attempt < rssiAttempts; attempt++ {
		if _, err := a.roundTrip(bgproto.ConnectionGetRSSI(a.st.connection), bgproto.RspConnectionGetRSSI, responseTimeout); err != nil {
			return 0, err
		}
		if err := a.checkConnection("get_rssi"); err != nil {
			return 0, err
		}
		rssi := int8(uint8(a.st.lastResponse))
		if rssi != rssiNotReady {
			return rssi, nil
		}
		time.Sleep(rssiRetryDelay)
	}
	return 0, &ProtocolError{Op: "get_rssi", Msg: "no RSSI reading available"}
}

// ScanOptions tunes Scan. Interval and Window are in protocol units of
// 625 us; Mode 1 is a generic discovery scan.
type ScanOptions struct {
	Interval uint16        `default:"75"`
	Window   uint16        `default:"50"`
	Active   bool          `default:"true"`
	Mode     uint8         `default:"1"`
	Duration time.Duration `default:"10s"`
}

// Scan observes advertisements for the configured duration and returns
// the devices seen, merged across their packets. The previously
// discovered device set is cleared first.
func (a *Adapter) Scan(opts ScanOptions) ([]*Device, error) {
	defaults.SetDefaults(&opts)
	a.clearDiscoveredDevices()

	pkt, err := a.roundTrip(bgproto.GapSetScanParameters(opts.Interval, opts.Window, opts.Active), bgproto.RspGapSetScanParameters, responseTimeout)
	if err != nil {
		return nil, err
	}
	if result := pkt.Uint16("result"); result != 0 {
		return nil, protocolErr("set_scan_parameters", result)
	}

	pkt, err = a.roundTrip(bgproto.GapDiscover(opts.Mode), bgproto.RspGapDiscover, responseTimeout)
	if err != nil {
		return nil, err
	}
	if result := pkt.Uint16("result"); result != 0 {
		return nil, protocolErr("discover", result)
	}

	a.logger.WithField("duration", opts.Duration).Info("Scanning")
	deadline := time.Now().Add(opts.Duration)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		// Each accepted scan response has already been folded into the
		// device set by its handler; the packet itself is not needed.
		if _, err := a.waitFor([]bgproto.Kind{bgproto.EvtGapScanResponse}, remaining, nil); err != nil {
			if err == ErrTimeout {
				break
			}
			return nil, err
		}
	}

	// Stopping the procedure also drains any responses still queued;
	// their handlers run while waiting for the end_procedure response.
	if _, err := a.roundTrip(bgproto.GapEndProcedure(), bgproto.RspGapEndProcedure, responseTimeout); err != nil {
		return nil, err
	}
	return a.DiscoveredDevices(), nil
}

// ListBonds returns the bond handles stored on the dongle.
func (a *Adapter) ListBonds() ([]uint8, error) {
	a.st.storedBonds = nil

	if _, err := a.roundTrip(bgproto.SmGetBonds(), bgproto.RspSmGetBonds, responseTimeout); err != nil {
		return nil, err
	}
	// One bond status event follows per stored bond.
	for uint8(len(a.st.storedBonds)) < a.st.numBonds {
		if _, err := a.waitFor([]bgproto.Kind{bgproto.EvtSmBondStatus}, responseTimeout, nil); err != nil {
			return nil, err
		}
	}
	return a.st.storedBonds, nil
}

// ClearBond deletes one stored bond.
func (a *Adapter) ClearBond(bond uint8) error {
	pkt, err := a.roundTrip(bgproto.SmDeleteBonding(bond), bgproto.RspSmDeleteBonding, responseTimeout)
	if err != nil {
		return err
	}
	if result := pkt.Uint16("result"); result != 0 {
		return protocolErr("delete_bonding", result)
	}
	return nil
}

// ClearAllBonds deletes every bond stored on the dongle.
func (a *Adapter) ClearAllBonds() error {
	bonds, err := a.ListBonds()
	if err != nil {
		return err
	}
	for _, b := range bonds {
		if err := a.ClearBond(b); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe enables notifications on char and registers cb to receive
// them. Indications are not implemented and return ErrUnsupported. The
// characteristic must carry a client characteristic configuration
// descriptor, which discovery populates.
func (a *Adapter) Subscribe(char *gatt.Characteristic, cb NotificationCallback, indications bool) error {
	if indications {
		return ErrUnsupported
	}
	if !a.st.connected() {
		return ErrNotConnected
	}

	cccd := char.ClientConfiguration()
	if cccd == nil {
		return &NotFoundError{Resource: "client characteristic configuration descriptor", UUID: char.UUID}
	}

	if err := a.AttributeWrite(cccd.Handle, []byte{0x01, 0x00}, responseTimeout); err != nil {
		return err
	}
	a.dispatcher.register(char.Handle, cb)
	a.logger.WithFields(logrus.Fields{
		"uuid":   char.UUID,
		"handle": char.Handle,
	}).Debug("Subscribed")
	return nil
}

// Unsubscribe disables notifications on char and drops its callback.
func (a *Adapter) Unsubscribe(char *gatt.Characteristic) error {
	if !a.st.connected() {
		return ErrNotConnected
	}
	cccd := char.ClientConfiguration()
	if cccd == nil {
		return &NotFoundError{Resource: "client characteristic configuration descriptor", UUID: char.UUID}
	}
	if err := a.AttributeWrite(cccd.Handle, []byte{0x00, 0x00}, responseTimeout); err != nil {
		return err
	}
	a.dispatcher.unregister(char.Handle)
	return nil
}

// Connected reports whether a connection is currently up.
func (a *Adapter) Connected() bool {
	return a.st.connected()
}

// Encrypted reports whether the current connection is encrypted.
func (a *Adapter) Encrypted() bool {
	return a.st.encrypted
}
