package main

import (
	"errors"
	"fmt"

	"github.com/srg/bgapi/pkg/adapter"
)

// FormatUserError turns driver errors into messages fit for the terminal,
// without stack noise or wrapped-error chains.
func FormatUserError(err error) string {
	var perr *adapter.ProtocolError
	if errors.As(err, &perr) {
		return perr.Error()
	}
	var nfe *adapter.NotFoundError
	if errors.As(err, &nfe) {
		return nfe.Error()
	}
	switch {
	case errors.Is(err, adapter.ErrNotConnected):
		return "device is not connected (check the address and that the device is advertising)"
	case errors.Is(err, adapter.ErrAlreadyConnected):
		return "a connection is already established"
	case errors.Is(err, adapter.ErrTransportClosed):
		return "lost contact with the dongle (was it unplugged?)"
	case errors.Is(err, adapter.ErrTimeout):
		return "operation timed out"
	default:
		return fmt.Sprintf("%v", err)
	}
}
