package adapter

import (
	"encoding/hex"

	"github.com/sirupsen/logrus"
	"github.com/srg/bgapi/internal/bgproto"
	"github.com/srg/bgapi/internal/gatt"
)

// Connection status event flag bits.
const (
	statusFlagConnected        = 0x01
	statusFlagEncrypted        = 0x02
	statusFlagCompleted        = 0x04
	statusFlagParametersChange = 0x08
)

// connPhase is the explicit connection life-cycle state, mutated only by
// packet handlers running inside waitFor.
type connPhase int

const (
	phaseIdle connPhase = iota
	phaseConnecting
	phaseConnected
	phaseDisconnected
)

func (p connPhase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseConnecting:
		return "connecting"
	case phaseConnected:
		return "connected"
	case phaseDisconnected:
		return "disconnected"
	default:
		return "invalid"
	}
}

// driverState is everything the packet handlers mutate. All access happens
// from the caller context (handlers run synchronously inside waitFor), so
// no locking is needed under the single-outstanding-operation contract.
type driverState struct {
	phase            connPhase
	connection       uint8 // connection handle, meaningful only while connected
	encrypted        bool
	bonded           bool
	disconnectReason uint16

	// Last result registers. Overwritten by the corresponding handler,
	// read by the facade operation immediately after each wait.
	lastResponse uint16
	lastEvent    uint16

	bondExpected       bool
	bondingFailed      bool
	procedureCompleted bool
	valueReceived      bool
	value              []byte

	services []*gatt.Service

	numBonds    uint8
	storedBonds []uint8
}

func (s *driverState) connected() bool {
	return s.phase == phaseConnected
}

// handlePacket routes one decoded packet through the protocol state
// machine. The switch is exhaustive over the closed packet kind set; kinds
// with no state to mutate fall through to a log-only default.
func (a *Adapter) handlePacket(pkt *bgproto.Packet) {
	st := &a.st
	switch pkt.Kind {
	case bgproto.EvtConnectionStatus:
		a.onConnectionStatus(pkt)

	case bgproto.EvtConnectionDisconnected:
		reason := pkt.Uint16("reason")
		st.phase = phaseDisconnected
		st.encrypted = false
		st.bonded = false
		st.disconnectReason = reason
		st.lastEvent = reason
		a.logger.WithFields(logrus.Fields{
			"connection": pkt.Uint8("connection"),
			"reason":     disconnectMessage(reason),
		}).Debug("Connection disconnected")

	case bgproto.EvtAttclientAttributeValue:
		st.valueReceived = true
		st.value = pkt.Bytes("value")
		a.logger.WithFields(logrus.Fields{
			"atthandle": pkt.Uint16("atthandle"),
			"value":     hex.EncodeToString(st.value),
		}).Debug("Attribute value received")

	case bgproto.EvtAttclientFindInformationFound:
		a.onInformationFound(pkt)

	case bgproto.EvtAttclientProcedureCompleted:
		st.procedureCompleted = true
		st.lastEvent = pkt.Uint16("result")
		a.logger.WithFields(logrus.Fields{
			"chrhandle": pkt.Uint16("chrhandle"),
			"result":    gatt.ResultMessage(st.lastEvent),
		}).Debug("Procedure completed")

	case bgproto.EvtGapScanResponse:
		a.onScanResponse(pkt)

	case bgproto.EvtSmBondStatus:
		// During an explicit bonding flow the event confirms the new
		// bond; outside one it enumerates a stored bond.
		if st.bondExpected {
			st.bondExpected = false
			st.bonded = true
		} else {
			st.storedBonds = append(st.storedBonds, pkt.Uint8("bond"))
		}
		a.logger.WithFields(logrus.Fields{
			"bond":    pkt.Uint8("bond"),
			"keysize": pkt.Uint8("keysize"),
		}).Debug("Bond status")

	case bgproto.EvtSmBondingFail:
		st.bondingFailed = true
		st.lastEvent = pkt.Uint16("result")
		a.logger.WithField("result", gatt.ResultMessage(st.lastEvent)).Debug("Bonding failed")

	case bgproto.RspConnectionGetRSSI:
		// The RSSI response carries no result code; the reading itself
		// lands in the response register.
		st.lastResponse = uint16(uint8(pkt.Int8("rssi")))

	case bgproto.RspSmGetBonds:
		st.numBonds = pkt.Uint8("bonds")

	case bgproto.RspSmSetBondableMode:
		// Empty payload, nothing to record.

	case bgproto.RspConnectionDisconnect,
		bgproto.RspAttclientFindInformation,
		bgproto.RspAttclientReadByHandle,
		bgproto.RspAttclientAttributeWrite,
		bgproto.RspSmEncryptStart,
		bgproto.RspSmDeleteBonding,
		bgproto.RspGapSetMode,
		bgproto.RspGapDiscover,
		bgproto.RspGapConnectDirect,
		bgproto.RspGapEndProcedure,
		bgproto.RspGapSetScanParameters:
		st.lastResponse = pkt.Uint16("result")

	default:
		a.logger.WithField("kind", pkt.Kind).Warn("Unhandled packet kind")
	}
}

func (a *Adapter) onConnectionStatus(pkt *bgproto.Packet) {
	st := &a.st
	flags := pkt.Uint8("flags")
	st.connection = pkt.Uint8("connection")
	if flags&statusFlagConnected == statusFlagConnected {
		st.phase = phaseConnected
	}
	if flags&statusFlagEncrypted == statusFlagEncrypted {
		st.encrypted = true
	}
	a.logger.WithFields(logrus.Fields{
		"connection":        st.connection,
		"connected":         flags&statusFlagConnected != 0,
		"encrypted":         flags&statusFlagEncrypted != 0,
		"completed":         flags&statusFlagCompleted != 0,
		"parameters_change": flags&statusFlagParametersChange != 0,
		"address":           formatWireAddress(pkt.Bytes("address")),
		"interval_ms":       float64(pkt.Uint16("conn_interval")) * 1.25,
		"bonding":           pkt.Uint8("bonding"),
	}).Debug("Connection status")
}

// onInformationFound classifies a discovered attribute and grows the
// service/characteristic/descriptor accumulator.
//
// Events arrive in declaration order: service declaration, then each
// characteristic declaration followed by its value attribute and
// descriptors. An unrecognized 128-bit UUID is taken to be the custom
// value attribute of the characteristic appended last and overwrites its
// UUID and handle. That rule is order-dependent and best effort; it is
// kept as-is rather than second-guessed.
func (a *Adapter) onInformationFound(pkt *bgproto.Packet) {
	st := &a.st
	handle := pkt.Uint16("chrhandle")
	uuid := gatt.UUIDFromWire(pkt.Bytes("uuid"))
	log := a.logger.WithFields(logrus.Fields{"chrhandle": handle, "uuid": uuid})

	lastService := func() *gatt.Service {
		if len(st.services) == 0 {
			return nil
		}
		return st.services[len(st.services)-1]
	}
	lastCharacteristic := func() *gatt.Characteristic {
		svc := lastService()
		if svc == nil || len(svc.Characteristics) == 0 {
			return nil
		}
		return svc.Characteristics[len(svc.Characteristics)-1]
	}

	if uuid.Is128Bit() {
		ch := lastCharacteristic()
		if ch == nil {
			log.Warn("Custom UUID with no characteristic to attach to")
			return
		}
		ch.Custom = true
		ch.UUID = uuid
		ch.Handle = handle
		log.Debug("Custom 128-bit characteristic UUID")
		return
	}

	if attType := gatt.LookupAttributeType(uuid); attType != gatt.AttributeUnknown {
		switch attType {
		case gatt.AttributePrimaryService:
			st.services = append(st.services, &gatt.Service{Handle: handle, UUID: uuid})
			log.Debug("Primary service")
		case gatt.AttributeSecondaryService:
			st.services = append(st.services, &gatt.Service{Handle: handle, UUID: uuid, Secondary: true})
			log.Debug("Secondary service")
		case gatt.AttributeCharacteristic:
			svc := lastService()
			if svc == nil {
				log.Warn("Characteristic declaration with no service to attach to")
				return
			}
			svc.Characteristics = append(svc.Characteristics, &gatt.Characteristic{Handle: handle, UUID: uuid})
			log.Debug("Characteristic declaration")
		default:
			log.WithField("type", attType).Warn("Ignoring unhandled attribute type")
		}
		return
	}

	if known := gatt.LookupCharacteristicType(uuid); known != "" {
		ch := lastCharacteristic()
		if ch == nil {
			log.Warn("Characteristic value with no characteristic to attach to")
			return
		}
		ch.KnownType = known
		log.WithField("type", known).Debug("Characteristic value")
		return
	}

	if descType := gatt.LookupDescriptorType(uuid); descType != gatt.DescriptorUnknown {
		ch := lastCharacteristic()
		if ch == nil {
			log.Warn("Descriptor with no characteristic to attach to")
			return
		}
		ch.Descriptors = append(ch.Descriptors, &gatt.Descriptor{Handle: handle, UUID: uuid, Type: descType})
		log.WithField("type", descType).Debug("Descriptor")
		return
	}

	log.Warn("Ignoring unrecognized UUID")
}

// disconnectMessage maps a disconnect reason to text; reason 0 means the
// link was closed by the local host.
func disconnectMessage(reason uint16) string {
	if reason == 0 {
		return "disconnected by local user"
	}
	return gatt.ResultMessage(reason)
}
