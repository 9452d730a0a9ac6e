// Package gatt holds the GATT entity model used by the BGAPI driver:
// services, characteristics and descriptors discovered on a remote device,
// the UUID classification tables that drive attribute discovery, and the
// BGAPI result-code message catalog.
package gatt

// AttributeType classifies a declaration UUID found during discovery.
type AttributeType int

const (
	AttributeUnknown AttributeType = iota
	AttributePrimaryService
	AttributeSecondaryService
	AttributeInclude
	AttributeCharacteristic
)

func (t AttributeType) String() string {
	switch t {
	case AttributePrimaryService:
		return "primary_service"
	case AttributeSecondaryService:
		return "secondary_service"
	case AttributeInclude:
		return "include"
	case AttributeCharacteristic:
		return "characteristic"
	default:
		return "unknown"
	}
}

// DescriptorType classifies a descriptor UUID.
type DescriptorType int

const (
	DescriptorUnknown DescriptorType = iota
	DescriptorExtendedProperties
	DescriptorUserDescription
	DescriptorClientConfiguration
	DescriptorServerConfiguration
	DescriptorPresentationFormat
	DescriptorAggregateFormat
	DescriptorValidRange
	DescriptorExternalReportReference
	DescriptorReportReference
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorExtendedProperties:
		return "extended_properties"
	case DescriptorUserDescription:
		return "user_description"
	case DescriptorClientConfiguration:
		return "client_characteristic_configuration"
	case DescriptorServerConfiguration:
		return "server_characteristic_configuration"
	case DescriptorPresentationFormat:
		return "presentation_format"
	case DescriptorAggregateFormat:
		return "aggregate_format"
	case DescriptorValidRange:
		return "valid_range"
	case DescriptorExternalReportReference:
		return "external_report_reference"
	case DescriptorReportReference:
		return "report_reference"
	default:
		return "unknown"
	}
}

// Declaration UUID -> attribute type. Covers the GATT declaration
// attributes a find_information sweep can return.
var attributeTypes = map[UUID]AttributeType{
	"2800": AttributePrimaryService,
	"2801": AttributeSecondaryService,
	"2802": AttributeInclude,
	"2803": AttributeCharacteristic,
}

// Descriptor UUID -> descriptor type.
var descriptorTypes = map[UUID]DescriptorType{
	"2900": DescriptorExtendedProperties,
	"2901": DescriptorUserDescription,
	"2902": DescriptorClientConfiguration,
	"2903": DescriptorServerConfiguration,
	"2904": DescriptorPresentationFormat,
	"2905": DescriptorAggregateFormat,
	"2906": DescriptorValidRange,
	"2907": DescriptorExternalReportReference,
	"2908": DescriptorReportReference,
}

// Well-known 16-bit characteristic value UUIDs. Used during discovery to
// tell a standard characteristic value attribute apart from declarations
// and descriptors. Not exhaustive; unknown 16-bit value UUIDs simply stay
// unclassified.
var characteristicTypes = map[UUID]string{
	"2a00": "device_name",
	"2a01": "appearance",
	"2a02": "peripheral_privacy_flag",
	"2a03": "reconnection_address",
	"2a04": "peripheral_preferred_connection_parameters",
	"2a05": "service_changed",
	"2a19": "battery_level",
	"2a23": "system_id",
	"2a24": "model_number",
	"2a25": "serial_number",
	"2a26": "firmware_revision",
	"2a27": "hardware_revision",
	"2a28": "software_revision",
	"2a29": "manufacturer_name",
	"2a37": "heart_rate_measurement",
	"2a38": "body_sensor_location",
}

// LookupAttributeType classifies a declaration UUID, returning
// AttributeUnknown when the UUID is not a declaration.
func LookupAttributeType(u UUID) AttributeType {
	return attributeTypes[u]
}

// LookupDescriptorType classifies a descriptor UUID, returning
// DescriptorUnknown when the UUID is not a known descriptor.
func LookupDescriptorType(u UUID) DescriptorType {
	return descriptorTypes[u]
}

// LookupCharacteristicType returns the well-known name of a standard
// characteristic value UUID, or "" when the UUID is not in the catalog.
func LookupCharacteristicType(u UUID) string {
	return characteristicTypes[u]
}

// Descriptor is a discovered GATT descriptor.
type Descriptor struct {
	Handle uint16
	UUID   UUID
	Type   DescriptorType
}

// Characteristic is a discovered GATT characteristic with its descriptors.
type Characteristic struct {
	Handle      uint16
	UUID        UUID
	KnownType   string // well-known value-UUID name, "" if none
	Custom      bool   // true when the UUID is a vendor 128-bit identifier
	Descriptors []*Descriptor
}

// ClientConfiguration returns the characteristic's CCCD, or nil when the
// descriptor was not discovered.
func (c *Characteristic) ClientConfiguration() *Descriptor {
	for _, d := range c.Descriptors {
		if d.Type == DescriptorClientConfiguration {
			return d
		}
	}
	return nil
}

// Service is a discovered GATT service owning its characteristics.
type Service struct {
	Handle          uint16
	UUID            UUID
	Secondary       bool
	Characteristics []*Characteristic
}
