package gatt

import "fmt"

// BGAPI result codes as documented in the Bluegiga Bluetooth Smart Software
// API reference. 0x01xx are API errors, 0x02xx Bluetooth controller errors,
// 0x03xx security manager errors, 0x04xx attribute protocol errors.
var resultMessages = map[uint16]string{
	0x0000: "success",

	0x0180: "invalid parameter",
	0x0181: "device in wrong state",
	0x0182: "out of memory",
	0x0183: "feature not implemented",
	0x0184: "command not recognized",
	0x0185: "timeout",
	0x0186: "not connected",
	0x0187: "flow violation",
	0x0188: "user attribute",
	0x0189: "invalid license key",
	0x018a: "command too long",
	0x018b: "out of bonds",

	0x0205: "authentication failure",
	0x0206: "pin or key missing",
	0x0207: "memory capacity exceeded",
	0x0208: "connection timeout",
	0x0209: "connection limit exceeded",
	0x020c: "command disallowed",
	0x0212: "invalid command parameters",
	0x0213: "remote user terminated connection",
	0x0214: "remote device terminated connection due to low resources",
	0x0215: "remote device terminated connection due to power off",
	0x0216: "connection terminated by local host",
	0x0222: "link layer response timeout",
	0x0228: "link layer instant passed",
	0x023a: "controller busy",
	0x023b: "unacceptable connection interval",
	0x023c: "directed advertising timeout",
	0x023d: "connection terminated due to MIC failure",
	0x023e: "connection failed to be established",

	0x0301: "passkey entry failed",
	0x0302: "OOB data is not available",
	0x0303: "authentication requirements not met",
	0x0304: "confirm value failed",
	0x0305: "pairing not supported by remote device",
	0x0306: "encryption key size insufficient",
	0x0307: "command not supported",
	0x0308: "unspecified reason",
	0x0309: "repeated attempts",
	0x030a: "invalid parameters",

	0x0401: "invalid attribute handle",
	0x0402: "read not permitted",
	0x0403: "write not permitted",
	0x0404: "invalid PDU",
	0x0405: "insufficient authentication",
	0x0406: "request not supported",
	0x0407: "invalid offset",
	0x0408: "insufficient authorization",
	0x0409: "prepare queue full",
	0x040a: "attribute not found",
	0x040b: "attribute cannot be read or written using read/write blob requests",
	0x040c: "insufficient encryption key size",
	0x040d: "invalid attribute value length",
	0x040e: "unlikely error",
	0x040f: "insufficient encryption",
	0x0410: "unsupported group type",
	0x0411: "insufficient resources",
}

// ResultMessage returns the human-readable message for a BGAPI result code.
// Unknown codes produce a hex-formatted placeholder instead of failing.
func ResultMessage(code uint16) string {
	if msg, ok := resultMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("unknown result code 0x%04x", code)
}
