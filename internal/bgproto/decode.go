package bgproto

import (
	"fmt"
)

// field types used by the payload layout tables.
type fieldType int

const (
	ftUint8 fieldType = iota
	ftInt8
	ftUint16
	ftAddr   // 6 raw bytes, wire (reversed) order
	ftUint8a // uint8 length prefix followed by that many bytes
)

type fieldSpec struct {
	name string
	typ  fieldType
}

type layout struct {
	kind   Kind
	fields []fieldSpec
}

type msgKey struct {
	event  bool
	class  uint8
	method uint8
}

// Closed catalog of the messages the driver understands. Kinds absent here
// decode to KindUnknown.
var layouts = map[msgKey]layout{
	{false, ClassConnection, 0x00}: {RspConnectionDisconnect, []fieldSpec{
		{"connection", ftUint8}, {"result", ftUint16},
	}},
	{false, ClassConnection, 0x01}: {RspConnectionGetRSSI, []fieldSpec{
		{"connection", ftUint8}, {"rssi", ftInt8},
	}},
	{false, ClassAttclient, 0x03}: {RspAttclientFindInformation, []fieldSpec{
		{"connection", ftUint8}, {"result", ftUint16},
	}},
	{false, ClassAttclient, 0x04}: {RspAttclientReadByHandle, []fieldSpec{
		{"connection", ftUint8}, {"result", ftUint16},
	}},
	{false, ClassAttclient, 0x05}: {RspAttclientAttributeWrite, []fieldSpec{
		{"connection", ftUint8}, {"result", ftUint16},
	}},
	{false, ClassSM, 0x00}: {RspSmEncryptStart, []fieldSpec{
		{"handle", ftUint8}, {"result", ftUint16},
	}},
	{false, ClassSM, 0x01}: {RspSmSetBondableMode, nil},
	{false, ClassSM, 0x02}: {RspSmDeleteBonding, []fieldSpec{
		{"result", ftUint16},
	}},
	{false, ClassSM, 0x05}: {RspSmGetBonds, []fieldSpec{
		{"bonds", ftUint8},
	}},
	{false, ClassGap, 0x01}: {RspGapSetMode, []fieldSpec{
		{"result", ftUint16},
	}},
	{false, ClassGap, 0x02}: {RspGapDiscover, []fieldSpec{
		{"result", ftUint16},
	}},
	{false, ClassGap, 0x03}: {RspGapConnectDirect, []fieldSpec{
		{"result", ftUint16}, {"connection_handle", ftUint8},
	}},
	{false, ClassGap, 0x04}: {RspGapEndProcedure, []fieldSpec{
		{"result", ftUint16},
	}},
	{false, ClassGap, 0x07}: {RspGapSetScanParameters, []fieldSpec{
		{"result", ftUint16},
	}},

	{true, ClassConnection, 0x00}: {EvtConnectionStatus, []fieldSpec{
		{"connection", ftUint8}, {"flags", ftUint8}, {"address", ftAddr},
		{"address_type", ftUint8}, {"conn_interval", ftUint16},
		{"timeout", ftUint16}, {"latency", ftUint16}, {"bonding", ftUint8},
	}},
	{true, ClassConnection, 0x04}: {EvtConnectionDisconnected, []fieldSpec{
		{"connection", ftUint8}, {"reason", ftUint16},
	}},
	{true, ClassAttclient, 0x01}: {EvtAttclientProcedureCompleted, []fieldSpec{
		{"connection", ftUint8}, {"result", ftUint16}, {"chrhandle", ftUint16},
	}},
	{true, ClassAttclient, 0x04}: {EvtAttclientFindInformationFound, []fieldSpec{
		{"connection", ftUint8}, {"chrhandle", ftUint16}, {"uuid", ftUint8a},
	}},
	{true, ClassAttclient, 0x05}: {EvtAttclientAttributeValue, []fieldSpec{
		{"connection", ftUint8}, {"atthandle", ftUint16}, {"type", ftUint8},
		{"value", ftUint8a},
	}},
	{true, ClassGap, 0x00}: {EvtGapScanResponse, []fieldSpec{
		{"rssi", ftInt8}, {"packet_type", ftUint8}, {"sender", ftAddr},
		{"address_type", ftUint8}, {"bond", ftUint8}, {"data", ftUint8a},
	}},
	{true, ClassSM, 0x04}: {EvtSmBondStatus, []fieldSpec{
		{"bond", ftUint8}, {"keysize", ftUint8}, {"mitm", ftUint8},
		{"keys", ftUint8},
	}},
	{true, ClassSM, 0x01}: {EvtSmBondingFail, []fieldSpec{
		{"handle", ftUint8}, {"result", ftUint16},
	}},
}

// Decode classifies a complete frame and parses its payload into named
// fields per the message's layout. Frames outside the catalog decode to a
// KindUnknown packet together with an error describing the header.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	declared := int(data[0]&0x07)<<8 | int(data[1])
	if len(data)-HeaderSize != declared {
		return nil, fmt.Errorf("frame length mismatch: header declares %d payload bytes, got %d",
			declared, len(data)-HeaderSize)
	}

	key := msgKey{
		event:  data[0]&msgTypeEvent != 0,
		class:  data[2],
		method: data[3],
	}
	l, ok := layouts[key]
	if !ok {
		return newPacket(KindUnknown), fmt.Errorf(
			"unknown message: event=%v class=0x%02x method=0x%02x", key.event, key.class, key.method)
	}

	pkt := newPacket(l.kind)
	payload := data[HeaderSize:]
	off := 0
	for _, f := range l.fields {
		switch f.typ {
		case ftUint8:
			if off+1 > len(payload) {
				return nil, truncated(l.kind, f.name)
			}
			pkt.set(f.name, payload[off])
			off++
		case ftInt8:
			if off+1 > len(payload) {
				return nil, truncated(l.kind, f.name)
			}
			pkt.set(f.name, int8(payload[off]))
			off++
		case ftUint16:
			if off+2 > len(payload) {
				return nil, truncated(l.kind, f.name)
			}
			pkt.set(f.name, uint16(payload[off])|uint16(payload[off+1])<<8)
			off += 2
		case ftAddr:
			if off+6 > len(payload) {
				return nil, truncated(l.kind, f.name)
			}
			addr := make([]byte, 6)
			copy(addr, payload[off:off+6])
			pkt.set(f.name, addr)
			off += 6
		case ftUint8a:
			if off+1 > len(payload) {
				return nil, truncated(l.kind, f.name)
			}
			n := int(payload[off])
			off++
			if off+n > len(payload) {
				return nil, truncated(l.kind, f.name)
			}
			b := make([]byte, n)
			copy(b, payload[off:off+n])
			pkt.set(f.name, b)
			off += n
		}
	}
	return pkt, nil
}

func truncated(kind Kind, field string) error {
	return fmt.Errorf("%s: payload truncated at field %q", kind, field)
}
