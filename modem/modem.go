package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"i4.energy/across/espgw/at"
)

// Modem represents an ESP8266 WiFi module that communicates via AT commands.
//
// All I/O happens on the caller's goroutine: each command flushes stale
// input, writes the command line and polls the transport until a matching
// response line arrives or the timeout elapses. A Modem is not safe for
// concurrent use; callers sharing one must serialize access.
type Modem struct {
	// transport provides the physical connection to the module
	transport Transport
	// config contains the modem configuration settings
	config Config
	clock  Clock
	logger *slog.Logger
	// rx holds received bytes that no wait has consumed yet
	rx      lineBuffer
	readBuf []byte
	// state tracks the restore/echo-off sequence run by Init
	state sessionState
	// closed indicates if the modem has been shut down
	closed bool
}

// lineFunc inspects one received line. done stops the wait and err becomes
// its result.
type lineFunc func(line string) (done bool, err error)

// New creates a new Modem instance with the given configuration and opens
// its transport. The module itself is not touched; call Init to restore and
// configure it.
//
// Returns an error if the configuration is invalid or the transport cannot
// be opened.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	return &Modem{
		transport: transport,
		config:    config,
		clock:     config.Clock,
		logger:    config.Logger,
		readBuf:   make([]byte, 256),
	}, nil
}

// Close releases the transport. After calling Close(), the modem cannot be
// reused.
func (m *Modem) Close() error {
	if m.closed {
		return ErrAlreadyClosed
	}
	m.closed = true
	m.state = stateUninitialized

	if m.transport != nil {
		return m.transport.Close()
	}
	return nil
}

// Clock returns the time source the modem measures its waits against.
func (m *Modem) Clock() Clock {
	return m.clock
}

// Send writes cmd without waiting for any response.
func (m *Modem) Send(ctx context.Context, cmd string) error {
	return m.SendCommand(ctx, cmd, "", 0)
}

// SendCommand pauses for the inter-command delay, discards unread input,
// writes cmd terminated by CRLF and, unless expect is empty, waits up to
// timeout for a response line containing expect.
//
// Every line received before the match is consumed. When expect is "OK" a
// line containing "ERROR" ends the wait early with ErrCommandFailed. A wait
// that runs out returns ErrTimeout.
func (m *Modem) SendCommand(ctx context.Context, cmd, expect string, timeout time.Duration) error {
	if m.closed {
		return ErrAlreadyClosed
	}
	if m.transport == nil {
		return ErrNotInitialized
	}

	m.clock.Sleep(m.config.CommandDelay)
	m.flush()

	wire := cmd + at.CRLF
	if _, err := m.transport.Write([]byte(wire)); err != nil {
		return fmt.Errorf("write command %q: %w", redact(cmd), err)
	}
	m.logger.Debug("tx", "command", redact(cmd))

	if expect == "" {
		return nil
	}

	_, err := m.await(ctx, timeout, func(line string) (bool, error) {
		if strings.Contains(line, expect) {
			return true, nil
		}
		if expect == at.OK && strings.Contains(line, at.ERROR) {
			return true, ErrCommandFailed
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", redact(cmd), err)
	}
	return nil
}

// GetResponse waits up to timeout for a line containing substr and returns
// it. Lines before it are discarded. When the wait runs out, an unterminated
// tail containing substr is returned instead, so responses that never end
// with CRLF are not lost. An empty substr matches any line.
//
// The empty string means nothing matched.
func (m *Modem) GetResponse(ctx context.Context, substr string, timeout time.Duration) string {
	line, err := m.await(ctx, timeout, func(line string) (bool, error) {
		return strings.Contains(line, substr), nil
	})
	if err == nil {
		return line
	}
	if tail, ok := m.takePartial(err, substr); ok {
		return tail
	}
	return ""
}

// NextLine returns the next received line, waiting up to timeout. Unlike
// GetResponse with an empty substring it tells an empty line apart from
// silence: ok is false only when nothing arrived.
func (m *Modem) NextLine(ctx context.Context, timeout time.Duration) (line string, ok bool) {
	line, err := m.await(ctx, timeout, func(string) (bool, error) {
		return true, nil
	})
	if err == nil {
		return line, true
	}
	return m.takePartial(err, "")
}

// takePartial consumes the unterminated tail after a timed out wait, but only
// when it contains substr. A tail that does not match stays buffered for the
// next wait.
func (m *Modem) takePartial(err error, substr string) (string, bool) {
	if !errors.Is(err, ErrTimeout) || m.rx.len() == 0 {
		return "", false
	}
	tail := m.rx.partial()
	if !strings.Contains(tail, substr) {
		return "", false
	}
	m.rx.reset()
	m.logger.Debug("rx partial", "line", tail)
	return tail, true
}

// await feeds complete lines to fn until it reports done, polling the
// transport for more input in between. The timeout is measured from entry.
func (m *Modem) await(ctx context.Context, timeout time.Duration, fn lineFunc) (string, error) {
	if m.closed {
		return "", ErrAlreadyClosed
	}
	if m.transport == nil {
		return "", ErrNotInitialized
	}

	start := m.clock.Now()
	for {
		for {
			line, ok := m.rx.next()
			if !ok {
				break
			}
			m.logger.Debug("rx", "line", line, "type", at.Classify(line))
			if done, err := fn(line); done {
				return line, err
			}
		}
		if m.rx.len() > m.config.MaxBuffered {
			m.rx.reset()
			return "", ErrLineTooLong
		}

		if m.clock.Now().Sub(start) > timeout {
			return "", ErrTimeout
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := m.transport.Read(m.readBuf)
		if n > 0 {
			m.rx.write(m.readBuf[:n])
		}
		if err != nil {
			return "", fmt.Errorf("read error: %w", err)
		}
	}
}

// flush drops whatever the module sent that nobody waited for.
func (m *Modem) flush() {
	dropped := m.rx.len()
	for range maxFlushReads {
		n, err := m.transport.Read(m.readBuf)
		dropped += n
		if n == 0 || err != nil {
			break
		}
	}
	if dropped > 0 {
		m.logger.Debug("discarding unread input", "bytes", dropped)
	}
	m.rx.reset()
}

const maxFlushReads = 64

var secretPattern = regexp.MustCompile(`(AT\+CWJAP="[^"]*",)"[^"]*"|(token=)[^&\s]*`)

// redact hides the WiFi password and API tokens from logs and errors.
func redact(cmd string) string {
	return secretPattern.ReplaceAllString(cmd, `${1}${2}***`)
}
