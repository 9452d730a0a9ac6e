// Package bgproto implements the BGAPI binary framing used by Bluegiga
// BLED112-class radio modules: command encoding, incremental frame
// extraction from a byte stream, and decoding of frames into typed packets.
//
// A frame is a 4-byte header followed by a payload. The header carries the
// message-type bit (command/response vs event) and the high bits of the
// payload length in byte 0, the low length byte in byte 1, the command
// class in byte 2 and the method id in byte 3. Payload integers are
// little-endian; addresses and UUIDs travel in reversed byte order.
package bgproto

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// HeaderSize is the fixed BGAPI frame header length.
const HeaderSize = 4

// Message type bit in header byte 0.
const (
	msgTypeCommand = 0x00 // commands and their responses
	msgTypeEvent   = 0x80
)

// Command classes.
const (
	ClassSystem     = 0x00
	ClassFlash      = 0x01
	ClassAttributes = 0x02
	ClassConnection = 0x03
	ClassAttclient  = 0x04
	ClassSM         = 0x05
	ClassGap        = 0x06
	ClassHardware   = 0x07
)

// Kind identifies a decoded packet. The set is closed: the state machine
// switches exhaustively over it.
type Kind int

const (
	KindUnknown Kind = iota

	// Command responses.
	RspConnectionDisconnect
	RspConnectionGetRSSI
	RspAttclientFindInformation
	RspAttclientReadByHandle
	RspAttclientAttributeWrite
	RspSmEncryptStart
	RspSmSetBondableMode
	RspSmDeleteBonding
	RspSmGetBonds
	RspGapSetMode
	RspGapDiscover
	RspGapConnectDirect
	RspGapEndProcedure
	RspGapSetScanParameters

	// Asynchronous events.
	EvtConnectionStatus
	EvtConnectionDisconnected
	EvtAttclientProcedureCompleted
	EvtAttclientFindInformationFound
	EvtAttclientAttributeValue
	EvtGapScanResponse
	EvtSmBondStatus
	EvtSmBondingFail
)

var kindNames = map[Kind]string{
	KindUnknown:                      "unknown",
	RspConnectionDisconnect:          "rsp_connection_disconnect",
	RspConnectionGetRSSI:             "rsp_connection_get_rssi",
	RspAttclientFindInformation:      "rsp_attclient_find_information",
	RspAttclientReadByHandle:         "rsp_attclient_read_by_handle",
	RspAttclientAttributeWrite:       "rsp_attclient_attribute_write",
	RspSmEncryptStart:                "rsp_sm_encrypt_start",
	RspSmSetBondableMode:             "rsp_sm_set_bondable_mode",
	RspSmDeleteBonding:               "rsp_sm_delete_bonding",
	RspSmGetBonds:                    "rsp_sm_get_bonds",
	RspGapSetMode:                    "rsp_gap_set_mode",
	RspGapDiscover:                   "rsp_gap_discover",
	RspGapConnectDirect:              "rsp_gap_connect_direct",
	RspGapEndProcedure:               "rsp_gap_end_procedure",
	RspGapSetScanParameters:          "rsp_gap_set_scan_parameters",
	EvtConnectionStatus:              "evt_connection_status",
	EvtConnectionDisconnected:        "evt_connection_disconnected",
	EvtAttclientProcedureCompleted:   "evt_attclient_procedure_completed",
	EvtAttclientFindInformationFound: "evt_attclient_find_information_found",
	EvtAttclientAttributeValue:       "evt_attclient_attribute_value",
	EvtGapScanResponse:               "evt_gap_scan_response",
	EvtSmBondStatus:                  "evt_sm_bond_status",
	EvtSmBondingFail:                 "evt_sm_bonding_fail",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Packet is one decoded protocol message. Fields preserve the wire order of
// the payload layout. A Packet is immutable once decoded.
type Packet struct {
	Kind   Kind
	Fields *orderedmap.OrderedMap[string, any]
}

func newPacket(kind Kind) *Packet {
	return &Packet{Kind: kind, Fields: orderedmap.New[string, any]()}
}

func (p *Packet) set(name string, v any) {
	p.Fields.Set(name, v)
}

// Uint8 returns the named uint8 field, 0 if absent.
func (p *Packet) Uint8(name string) uint8 {
	if v, ok := p.Fields.Get(name); ok {
		if n, ok := v.(uint8); ok {
			return n
		}
	}
	return 0
}

// Uint16 returns the named uint16 field, 0 if absent.
func (p *Packet) Uint16(name string) uint16 {
	if v, ok := p.Fields.Get(name); ok {
		if n, ok := v.(uint16); ok {
			return n
		}
	}
	return 0
}

// Int8 returns the named int8 field, 0 if absent.
func (p *Packet) Int8(name string) int8 {
	if v, ok := p.Fields.Get(name); ok {
		if n, ok := v.(int8); ok {
			return n
		}
	}
	return 0
}

// Bytes returns the named byte-slice field, nil if absent.
func (p *Packet) Bytes(name string) []byte {
	if v, ok := p.Fields.Get(name); ok {
		if b, ok := v.([]byte); ok {
			return b
		}
	}
	return nil
}

func (p *Packet) String() string {
	return p.Kind.String()
}
