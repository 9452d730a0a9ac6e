package adapter

import (
	"testing"

	"github.com/srg/bgapi/internal/bgproto"
	"github.com/srg/bgapi/internal/gatt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// foundFrame builds a find_information_found event for a UUID given in
// display order.
func foundFrame(t *testing.T, handle uint16, uuid gatt.UUID) []byte {
	t.Helper()
	wire, err := uuid.Wire()
	require.NoError(t, err)
	payload := []byte{0x01, byte(handle), byte(handle >> 8), byte(len(wire))}
	payload = append(payload, wire...)
	return evtFrame(bgproto.ClassAttclient, 0x04, payload...)
}

func TestDiscoveryAccumulator(t *testing.T) {
	a := NewAdapter(newFakeDongle(), quietLogger())

	frames := [][]byte{
		foundFrame(t, 0x0001, "2800"), // generic access service
		foundFrame(t, 0x0002, "2803"),
		foundFrame(t, 0x0003, "2a00"), // device name value
		foundFrame(t, 0x0010, "2800"), // heart rate service
		foundFrame(t, 0x0011, "2803"),
		foundFrame(t, 0x0012, "2a37"), // heart rate measurement value
		foundFrame(t, 0x0013, "2902"), // its CCCD
		foundFrame(t, 0x0014, "2803"),
		foundFrame(t, 0x0015, "0a1b2c3d4e5f60718293a4b5c6d7e8f9"), // custom value
	}
	for _, f := range frames {
		a.handlePacket(decodeFrame(t, f))
	}

	require.Len(t, a.st.services, 2)

	generic := a.st.services[0]
	assert.Equal(t, gatt.UUID("2800"), generic.UUID)
	require.Len(t, generic.Characteristics, 1)
	assert.Equal(t, "device_name", generic.Characteristics[0].KnownType)

	hr := a.st.services[1]
	require.Len(t, hr.Characteristics, 2)

	measurement := hr.Characteristics[0]
	assert.Equal(t, "heart_rate_measurement", measurement.KnownType)
	require.NotNil(t, measurement.ClientConfiguration())
	assert.Equal(t, uint16(0x0013), measurement.ClientConfiguration().Handle)

	// The unrecognized 128-bit UUID replaced the last declaration's
	// identity with the custom value attribute.
	custom := hr.Characteristics[1]
	assert.True(t, custom.Custom)
	assert.Equal(t, gatt.UUID("0a1b2c3d4e5f60718293a4b5c6d7e8f9"), custom.UUID)
	assert.Equal(t, uint16(0x0015), custom.Handle)
}

func TestDiscoveryIgnoresOrphans(t *testing.T) {
	a := NewAdapter(newFakeDongle(), quietLogger())

	// Characteristic, descriptor and custom UUID with nothing to attach
	// to must not panic and must leave the tree empty.
	a.handlePacket(decodeFrame(t, foundFrame(t, 0x0002, "2803")))
	a.handlePacket(decodeFrame(t, foundFrame(t, 0x0003, "2902")))
	a.handlePacket(decodeFrame(t, foundFrame(t, 0x0004, "0a1b2c3d4e5f60718293a4b5c6d7e8f9")))

	assert.Empty(t, a.st.services)
}

func TestConnectionStatusSetsState(t *testing.T) {
	a := NewAdapter(newFakeDongle(), quietLogger())
	a.st.phase = phaseConnecting

	a.handlePacket(decodeFrame(t, connStatusFrame))
	assert.True(t, a.st.connected())
	assert.Equal(t, uint8(1), a.st.connection)
	assert.False(t, a.st.encrypted)
}

func TestDisconnectedEventResetsState(t *testing.T) {
	a := NewAdapter(newFakeDongle(), quietLogger())
	markConnected(a)
	a.st.encrypted = true
	a.st.bonded = true

	a.handlePacket(decodeFrame(t, evtFrame(bgproto.ClassConnection, 0x04,
		0x01, 0x13, 0x02))) // reason 0x0213: remote user terminated

	assert.False(t, a.st.connected())
	assert.False(t, a.st.encrypted)
	assert.False(t, a.st.bonded)
	assert.Equal(t, uint16(0x0213), a.st.disconnectReason)
}

func TestBondStatusDuringAndOutsideBonding(t *testing.T) {
	a := NewAdapter(newFakeDongle(), quietLogger())

	bondStatus := decodeFrame(t, evtFrame(bgproto.ClassSM, 0x04, 0x00, 0x10, 0x00, 0x00))

	a.st.bondExpected = true
	a.handlePacket(bondStatus)
	assert.True(t, a.st.bonded)
	assert.Empty(t, a.st.storedBonds)

	a.handlePacket(bondStatus)
	assert.Equal(t, []uint8{0x00}, a.st.storedBonds)
}

func TestRSSIResponseStoresReading(t *testing.T) {
	a := NewAdapter(newFakeDongle(), quietLogger())

	a.handlePacket(decodeFrame(t, rspFrame(bgproto.ClassConnection, 0x01, 0x01, 0xb8))) // -72 dBm
	assert.Equal(t, int8(-72), int8(uint8(a.st.lastResponse)))
}
