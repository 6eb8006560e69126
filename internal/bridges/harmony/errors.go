package harmony

import "errors"

// Sentinel errors for bridge and hub-client failure modes.
// Wrap with fmt.Errorf("%w: detail", Err...) to preserve errors.Is matching.
var (
	// ErrNotConnected indicates the hub connection is not established.
	ErrNotConnected = errors.New("harmony: not connected to hub")

	// ErrConnectionFailed indicates the hub connection could not be established.
	ErrConnectionFailed = errors.New("harmony: hub connection failed")

	// ErrRequestFailed indicates the hub rejected or failed a device-API request.
	ErrRequestFailed = errors.New("harmony: hub request failed")

	// ErrRequestTimeout indicates a device-API request got no response in time.
	ErrRequestTimeout = errors.New("harmony: hub request timed out")

	// ErrProvisionFailed indicates the remote id could not be obtained from the hub.
	ErrProvisionFailed = errors.New("harmony: hub provisioning failed")

	// ErrUnknownActivity indicates an activity id or label that the current
	// snapshot does not contain.
	ErrUnknownActivity = errors.New("harmony: unknown activity")

	// ErrUnknownDevice indicates a device identifier that the current
	// snapshot does not contain.
	ErrUnknownDevice = errors.New("harmony: unknown device")

	// ErrUnknownCommand indicates a command identifier that resolves to
	// nothing on the addressed device or activity.
	ErrUnknownCommand = errors.New("harmony: unknown command")

	// ErrInvalidConfig indicates the bridge was constructed with invalid options.
	ErrInvalidConfig = errors.New("harmony: invalid configuration")

	// ErrAlreadyStarted indicates Start was called on a running bridge.
	ErrAlreadyStarted = errors.New("harmony: bridge already started")

	// ErrClosed indicates an operation on a closed hub client.
	ErrClosed = errors.New("harmony: hub client closed")
)
