package adapter

import (
	"encoding/hex"
	"fmt"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/bgapi/internal/bgproto"
)

// Advertisement packet type names, keyed by the packet_type field of a
// scan response event.
var packetTypeNames = map[uint8]string{
	0: "connectable_advertisement_packet",
	2: "non_connectable_advertisement_packet",
	4: "scan_response_packet",
	6: "discoverable_advertisement_packet",
}

// AD structure type names per the Bluetooth assigned numbers. Unlisted
// types are rendered as a hex label.
var adTypeNames = map[uint8]string{
	0x01: "flags",
	0x02: "incomplete_list_16-bit_service_class_uuids",
	0x03: "complete_list_16-bit_service_class_uuids",
	0x04: "incomplete_list_32-bit_service_class_uuids",
	0x05: "complete_list_32-bit_service_class_uuids",
	0x06: "incomplete_list_128-bit_service_class_uuids",
	0x07: "complete_list_128-bit_service_class_uuids",
	0x08: "shortened_local_name",
	0x09: "complete_local_name",
	0x0a: "tx_power_level",
	0x0d: "class_of_device",
	0x10: "device_id",
	0x12: "slave_connection_interval_range",
	0x14: "list_16-bit_service_solicitation_uuids",
	0x15: "list_128-bit_service_solicitation_uuids",
	0x16: "service_data",
	0x17: "public_target_address",
	0x18: "random_target_address",
	0x19: "appearance",
	0x1a: "advertising_interval",
	0xff: "manufacturer_specific_data",
}

// Device is one remote device seen during scanning, accumulated across
// the advertisement and scan-response packets it broadcast.
type Device struct {
	Name    string
	Address string
	RSSI    int8

	// PacketData maps packet type name to the parsed AD structures of the
	// best packet of that type seen so far.
	PacketData map[string]map[string]any
}

// onScanResponse folds one gap scan response event into the discovered
// device set. The name sticks once a packet carries one; per-type packet
// data is stored on first sighting and then only replaced by a packet
// that parsed strictly more fields than the one held.
func (a *Adapter) onScanResponse(pkt *bgproto.Packet) {
	addr := formatWireAddress(pkt.Bytes("sender"))
	rssi := pkt.Int8("rssi")
	packetType := packetTypeName(pkt.Uint8("packet_type"))
	fields := parseAdvertisement(pkt.Bytes("data"), a.logger)

	// The first reading of the RSSI sticks for the device.
	dev, _ := a.devices.GetOrInsert(addr, &Device{
		Address:    addr,
		RSSI:       rssi,
		PacketData: make(map[string]map[string]any),
	})
	if dev.Name == "" {
		if name, ok := fields["complete_local_name"].(string); ok && name != "" {
			dev.Name = name
		} else if name, ok := fields["shortened_local_name"].(string); ok && name != "" {
			dev.Name = name
		}
	}
	if existing, ok := dev.PacketData[packetType]; !ok || len(fields) > len(existing) {
		dev.PacketData[packetType] = fields
	}

	a.logger.WithFields(logrus.Fields{
		"address": addr,
		"name":    dev.Name,
		"rssi":    rssi,
		"type":    packetType,
	}).Debug("Scan response")
}

// DiscoveredDevices returns a snapshot of every device seen since the
// device set was last cleared.
func (a *Adapter) DiscoveredDevices() []*Device {
	var devs []*Device
	a.devices.Range(func(_ string, d *Device) bool {
		devs = append(devs, d)
		return true
	})
	return devs
}

func (a *Adapter) clearDiscoveredDevices() {
	a.devices = hashmap.New[string, *Device]()
}

func packetTypeName(t uint8) string {
	if name, ok := packetTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown_packet_type_0x%02x", t)
}

// parseAdvertisement splits raw advertisement data into its AD structures:
// repeated [length, type, payload] groups. Malformed trailing bytes are
// logged and skipped rather than failing the whole packet.
func parseAdvertisement(data []byte, logger *logrus.Logger) map[string]any {
	fields := make(map[string]any)
	for len(data) > 0 {
		length := int(data[0])
		if length == 0 {
			break
		}
		if length >= len(data) {
			logger.WithFields(logrus.Fields{
				"declared":  length,
				"remaining": len(data) - 1,
			}).Debug("Truncated AD structure, skipping remainder")
			break
		}
		adType := data[1]
		payload := data[2 : 1+length]
		data = data[1+length:]

		name, ok := adTypeNames[adType]
		if !ok {
			name = fmt.Sprintf("unknown_ad_type_0x%02x", adType)
		}
		switch adType {
		case 0x08, 0x09:
			fields[name] = string(payload)
		case 0x01, 0x0a:
			if len(payload) > 0 {
				fields[name] = payload[0]
			}
		default:
			fields[name] = hex.EncodeToString(payload)
		}
	}
	return fields
}

// formatWireAddress renders a wire-order (little-endian) Bluetooth address
// in the usual colon-separated big-endian form.
func formatWireAddress(addr []byte) string {
	buf := make([]byte, 0, len(addr)*3)
	for i := len(addr) - 1; i >= 0; i-- {
		if len(buf) > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, fmt.Sprintf("%02x", addr[i])...)
	}
	return string(buf)
}

// parseAddress converts a colon-separated address string to the wire-order
// byte form commands expect.
func parseAddress(address string) ([6]byte, error) {
	var b [6]byte
	n, err := fmt.Sscanf(address, "%02x:%02x:%02x:%02x:%02x:%02x",
		&b[0], &b[1], &b[2], &b[3], &b[4], &b[5])
	if err != nil || n != 6 {
		return b, fmt.Errorf("invalid bluetooth address %q", address)
	}
	// Commands take the address big-endian; the codec reverses it onto
	// the wire.
	return b, nil
}
