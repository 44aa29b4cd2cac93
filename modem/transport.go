package modem

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Transport represents an established, bidirectional byte stream to an
// ESP8266 module.
//
// Reads must not block for long: when no data is pending, Read returns
// (0, nil) after at most a short poll interval. The serial implementation
// gets this from the port read timeout; in-memory fakes return immediately.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to the module.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port or a test double) and is intended to be used during modem
// construction only. Once a Transport is obtained, the Dialer is no longer
// needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// Clock is the monotonic time source every response wait is measured against.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// DialerFunc adapts an ordinary function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}

// SystemClock reads the wall clock, which carries a monotonic reading.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// DefaultPollInterval is the serial read timeout, and so the longest a single
// poll of the receive side can block.
const DefaultPollInterval = 5 * time.Millisecond

// SerialDialer opens the module over a serial port using go.bug.st/serial.
type SerialDialer struct {
	PortName string
	BaudRate int
	// Mode overrides BaudRate and the 8N1 framing when set.
	Mode         *serial.Mode
	PollInterval time.Duration
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, errors.New("esp8266: serial port name is required")
	}
	if ctx == nil {
		return nil, errors.New("esp8266: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = 115200
		}
		mode = &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("esp8266: open %s: %w", d.PortName, err)
	}

	poll := d.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if err := port.SetReadTimeout(poll); err != nil {
		port.Close()
		return nil, fmt.Errorf("esp8266: set read timeout on %s: %w", d.PortName, err)
	}

	return port, nil
}
