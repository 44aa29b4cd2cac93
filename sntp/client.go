package sntp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"i4.energy/across/espgw/at"
	"i4.energy/across/espgw/modem"
)

const (
	DefaultServer = "pool.ntp.org"

	// DefaultTimeout bounds a whole Update, retries included.
	DefaultTimeout = 20 * time.Second

	MinTimezone = -12
	MaxTimezone = 14

	configTimeout   = 500 * time.Millisecond
	responseTimeout = 2 * time.Second
	retryPause      = 100 * time.Millisecond

	// The module reports the epoch until its first successful sync.
	unsyncedYear = 1970
)

// Session is the part of the modem the SNTP client needs.
type Session interface {
	IsWifiConnected(ctx context.Context) bool
	SendCommand(ctx context.Context, cmd, expect string, timeout time.Duration) error
	Send(ctx context.Context, cmd string) error
	GetResponse(ctx context.Context, substr string, timeout time.Duration) string
	Clock() modem.Clock
}

var _ Session = (*modem.Modem)(nil)

type Option func(*Client)

// WithServer sets the NTP host the module synchronises against.
func WithServer(host string) Option {
	return func(c *Client) {
		if host != "" {
			c.server = host
		}
	}
}

// WithClock overrides the clock the Update deadline is measured with. By
// default the session's clock is used.
func WithClock(clock modem.Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client keeps the module's SNTP service configured and holds the last time
// it reported. It is not safe for concurrent use.
type Client struct {
	session     Session
	clock       modem.Clock
	logger      *slog.Logger
	server      string
	timeout     time.Duration
	timezone    int
	record      TimeRecord
	initialized bool
	updated     bool
}

func New(session Session, opts ...Option) *Client {
	c := &Client{
		session: session,
		clock:   session.Clock(),
		logger:  slog.New(slog.DiscardHandler),
		server:  DefaultServer,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "sntp")
	return c
}

// Init enables SNTP on the module with the given timezone offset in hours.
func (c *Client) Init(ctx context.Context, timezone int) error {
	c.initialized = false
	c.updated = false

	if timezone < MinTimezone || timezone > MaxTimezone {
		return fmt.Errorf("%w: %d", ErrInvalidTimezone, timezone)
	}

	if !c.session.IsWifiConnected(ctx) {
		return ErrWifiNotConnected
	}

	if err := c.session.SendCommand(ctx, at.SntpConfig(timezone, c.server), at.OK, configTimeout); err != nil {
		return fmt.Errorf("configure sntp: %w", err)
	}

	c.timezone = timezone
	c.initialized = true
	c.logger.Info("sntp configured", "server", c.server, "timezone", timezone)
	return nil
}

// Update asks the module for the current time. The module answers with the
// epoch until it has synchronised, so the query is repeated until a real
// date arrives or the timeout passes. The stored record only changes when
// the whole exchange succeeds.
func (c *Client) Update(ctx context.Context) error {
	c.updated = false

	if !c.session.IsWifiConnected(ctx) {
		return ErrWifiNotConnected
	}
	if !c.initialized {
		return ErrNotInitialized
	}

	var record TimeRecord
	start := c.clock.Now()
	for {
		if c.clock.Now().Sub(start) > c.timeout {
			return ErrNotSynchronized
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.session.Send(ctx, at.CmdSntpTime); err != nil {
			return fmt.Errorf("query sntp time: %w", err)
		}
		line := c.session.GetResponse(ctx, at.SntpTimePrefix, responseTimeout)
		if line == "" {
			return ErrNoResponse
		}

		r, err := ParseTime(line)
		if err != nil {
			return err
		}
		if r.Year != unsyncedYear {
			record = r
			break
		}

		c.logger.Debug("waiting for sntp sync")
		c.clock.Sleep(retryPause)
	}

	// Wait until OK is received.
	if c.session.GetResponse(ctx, at.OK, modem.DefaultTimeout) == "" {
		return ErrNoResponse
	}

	c.record = record
	c.updated = true
	c.logger.Debug("time updated", "time", record.String())
	return nil
}

// Time returns the last successfully fetched time.
func (c *Client) Time() TimeRecord {
	return c.record
}

// Timezone returns the offset passed to the last successful Init.
func (c *Client) Timezone() int {
	return c.timezone
}

func (c *Client) Initialized() bool {
	return c.initialized
}

// Updated reports whether the last Update succeeded.
func (c *Client) Updated() bool {
	return c.updated
}
