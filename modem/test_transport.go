package modem

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// TestTransport is a test helper that plays the module side of the AT
// conversation. Every written line is matched against the registered
// replies and the matching reply becomes readable. Reads never block: with
// nothing pending they return (0, nil) like a serial port whose read timeout
// expired.
type TestTransport struct {
	mu      sync.Mutex
	replies []*reply
	pending []byte
	chunk   int
	written []string
	closed  bool
}

type reply struct {
	prefix string
	data   string
	once   bool
	used   bool
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{}
}

// On registers data to be sent every time a written line starts with prefix.
func (t *TestTransport) On(prefix string, data ...string) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies = append(t.replies, &reply{prefix: prefix, data: strings.Join(data, "")})
	return t
}

// Once registers data to be sent for the next matching write only. Pending
// Once replies take precedence over On replies.
func (t *TestTransport) Once(prefix string, data ...string) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies = append(t.replies, &reply{prefix: prefix, data: strings.Join(data, ""), once: true})
	return t
}

// ChunkSize limits how many bytes a single Read returns. Zero means no limit.
func (t *TestTransport) ChunkSize(n int) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chunk = n
	return t
}

// Written returns the written lines without their CRLF terminator.
func (t *TestTransport) Written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.written...)
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	line := strings.TrimSuffix(string(p), "\r\n")
	t.written = append(t.written, line)
	if r := t.match(line); r != nil {
		t.pending = append(t.pending, r.data...)
	}
	return len(p), nil
}

func (t *TestTransport) match(line string) *reply {
	for _, r := range t.replies {
		if r.once && !r.used && strings.HasPrefix(line, r.prefix) {
			r.used = true
			return r
		}
	}
	for _, r := range t.replies {
		if !r.once && strings.HasPrefix(line, r.prefix) {
			return r
		}
	}
	return nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.EOF
	}
	data := t.pending
	if t.chunk > 0 && len(data) > t.chunk {
		data = data[:t.chunk]
	}
	n = copy(p, data)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// SendData queues data to be read by the transport.
// This simulates the module emitting data without being asked.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.pending = append(t.pending, data...)
	}
}

// ManualClock is a Clock for tests. Sleep advances it by the requested
// duration and every Now call advances it by a fixed step, so busy-poll
// loops time out after a predictable number of iterations.
type ManualClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func NewManualClock(step time.Duration) *ManualClock {
	return &ManualClock{
		now:  time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		step: step,
	}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

func (c *ManualClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NewTestModem returns a Modem wired to transport and clock.
func NewTestModem(transport Transport, clock Clock) *Modem {
	config, err := NewConfigBuilder().
		WithDialer(DialerFunc(func(context.Context) (Transport, error) {
			return transport, nil
		})).
		WithClock(clock).
		Build()
	if err != nil {
		panic(err)
	}
	m, err := New(context.Background(), config)
	if err != nil {
		panic(err)
	}
	return m
}
