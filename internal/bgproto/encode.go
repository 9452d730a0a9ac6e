package bgproto

// Command encoders. Each returns a complete frame ready to be written to
// the transport. Encoding never fails for well-typed input; payloads that
// would not fit the 11-bit length field are a caller programming error.

// frame prepends the 4-byte header to a command payload.
func frame(class, method byte, payload []byte) []byte {
	out := make([]byte, 0, HeaderSize+len(payload))
	out = append(out,
		msgTypeCommand|byte(len(payload)>>8)&0x07,
		byte(len(payload)),
		class,
		method,
	)
	return append(out, payload...)
}

func appendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

// reverse returns a reversed copy, used for fields the wire format carries
// in reversed byte order (addresses, UUIDs).
func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// ConnectionDisconnect closes the given connection.
func ConnectionDisconnect(connection uint8) []byte {
	return frame(ClassConnection, 0x00, []byte{connection})
}

// ConnectionGetRSSI requests the RSSI of the given connection.
func ConnectionGetRSSI(connection uint8) []byte {
	return frame(ClassConnection, 0x01, []byte{connection})
}

// AttclientFindInformation starts attribute discovery over a handle range.
func AttclientFindInformation(connection uint8, start, end uint16) []byte {
	p := []byte{connection}
	p = appendUint16(p, start)
	p = appendUint16(p, end)
	return frame(ClassAttclient, 0x03, p)
}

// AttclientReadByHandle reads the attribute with the given handle.
func AttclientReadByHandle(connection uint8, handle uint16) []byte {
	p := []byte{connection}
	p = appendUint16(p, handle)
	return frame(ClassAttclient, 0x04, p)
}

// AttclientAttributeWrite writes a value to the attribute with the given
// handle. The value is length-prefixed on the wire.
func AttclientAttributeWrite(connection uint8, handle uint16, value []byte) []byte {
	p := []byte{connection}
	p = appendUint16(p, handle)
	p = append(p, byte(len(value)))
	p = append(p, value...)
	return frame(ClassAttclient, 0x05, p)
}

// SmEncryptStart begins encryption on a connection, optionally creating a
// bond.
func SmEncryptStart(handle uint8, createBond bool) []byte {
	bonding := byte(0)
	if createBond {
		bonding = 1
	}
	return frame(ClassSM, 0x00, []byte{handle, bonding})
}

// SmSetBondableMode switches the module's bondable mode.
func SmSetBondableMode(bondable bool) []byte {
	b := byte(0)
	if bondable {
		b = 1
	}
	return frame(ClassSM, 0x01, []byte{b})
}

// SmDeleteBonding deletes one stored bond.
func SmDeleteBonding(bond uint8) []byte {
	return frame(ClassSM, 0x02, []byte{bond})
}

// SmGetBonds requests the number of stored bonds; the module follows up
// with one bond_status event per bond.
func SmGetBonds() []byte {
	return frame(ClassSM, 0x05, nil)
}

// GapSetMode sets the discoverable and connectable GAP modes.
func GapSetMode(discover, connect uint8) []byte {
	return frame(ClassGap, 0x01, []byte{discover, connect})
}

// GapDiscover starts a GAP discovery procedure.
func GapDiscover(mode uint8) []byte {
	return frame(ClassGap, 0x02, []byte{mode})
}

// GapConnectDirect initiates a direct connection. The address is given in
// display order and reversed for the wire.
func GapConnectDirect(address [6]byte, addrType uint8, intervalMin, intervalMax, timeout, latency uint16) []byte {
	p := reverse(address[:])
	p = append(p, addrType)
	p = appendUint16(p, intervalMin)
	p = appendUint16(p, intervalMax)
	p = appendUint16(p, timeout)
	p = appendUint16(p, latency)
	return frame(ClassGap, 0x03, p)
}

// GapEndProcedure terminates an ongoing GAP procedure.
func GapEndProcedure() []byte {
	return frame(ClassGap, 0x04, nil)
}

// GapSetScanParameters sets scan interval, window and active flag.
func GapSetScanParameters(interval, window uint16, active bool) []byte {
	var p []byte
	p = appendUint16(p, interval)
	p = appendUint16(p, window)
	a := byte(0)
	if active {
		a = 1
	}
	p = append(p, a)
	return frame(ClassGap, 0x07, p)
}
