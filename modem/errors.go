package modem

import "errors"

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has no transport.
	//
	// This can occur if the Dialer returned a nil Transport or if the Modem
	// was not created via New.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed, and by every command issued after Close.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrTimeout is returned when no matching response line arrived before
	// the command timeout elapsed.
	ErrTimeout = errors.New("response timeout")

	// ErrCommandFailed is returned when a command expecting OK was answered
	// with ERROR. The wait is cut short instead of running into the timeout.
	ErrCommandFailed = errors.New("command failed")

	// ErrSendNotAcknowledged is returned when the modem did not confirm a
	// TCP payload with SEND OK.
	ErrSendNotAcknowledged = errors.New("payload not acknowledged")

	// ErrNoAddress is returned when the modem reports no station IP address.
	ErrNoAddress = errors.New("no station address")

	// ErrLineTooLong is returned when a modem response line exceeds the
	// maximum allowed length.
	//
	// This typically indicates malformed input, unexpected binary data,
	// or a protocol framing error.
	ErrLineTooLong = errors.New("response line too long")
)
