package adapter

import (
	"errors"
	"fmt"

	"github.com/srg/bgapi/internal/gatt"
)

// ConnectionState represents the specific kind of connection state failure.
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
)

// ConnectionError represents any connection-related precondition failure.
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State.
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states.
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
)

// Operation errors.
var (
	// ErrTimeout is returned when a bounded wait expires before an
	// accepted packet kind arrives.
	ErrTimeout = errors.New("timeout")

	// ErrUnsupported is returned for requested options the driver does
	// not implement (indications).
	ErrUnsupported = errors.New("unsupported")

	// ErrTransportClosed is returned to any waiter blocked on the
	// rendezvous queue when the receiver loop dies on a transport read
	// failure.
	ErrTransportClosed = errors.New("transport closed")
)

// ProtocolError reports a nonzero BGAPI result code from a command
// response or event, together with its looked-up message.
type ProtocolError struct {
	Op   string // the BGAPI command or procedure that failed
	Code uint16 // numeric result code, 0 when the failure has no code
	Msg  string // overrides the catalog message when set
}

func (e *ProtocolError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = gatt.ResultMessage(e.Code)
	}
	if e.Code == 0 {
		return fmt.Sprintf("%s failed: %s", e.Op, msg)
	}
	return fmt.Sprintf("%s failed: %s (0x%04x)", e.Op, msg, e.Code)
}

// protocolErr builds a ProtocolError for a failed command.
func protocolErr(op string, code uint16) error {
	return &ProtocolError{Op: op, Code: code}
}

// NotFoundError reports a missing GATT resource, e.g. the client
// characteristic configuration descriptor required by Subscribe.
type NotFoundError struct {
	Resource string
	UUID     gatt.UUID
}

func (e *NotFoundError) Error() string {
	if e.UUID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s not found for %q", e.Resource, e.UUID)
}
