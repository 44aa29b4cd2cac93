package modem

import (
	"log/slog"
	"time"
)

// DefaultTimeout is the response timeout used for quick commands such as ATE0
// and for draining the trailing OK of a query.
const DefaultTimeout = 100 * time.Millisecond

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

type Config struct {
	Dialer Dialer
	Clock  Clock
	Logger *slog.Logger

	// CommandDelay is the pause before every command so the response to the
	// previous one can settle.
	CommandDelay   time.Duration
	RestoreTimeout time.Duration
	JoinTimeout    time.Duration
	StatusTimeout  time.Duration
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	CloseTimeout   time.Duration

	// MaxBuffered bounds the unterminated bytes held in the receive buffer.
	MaxBuffered int
}

func (c *Config) setDefaults() {
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.CommandDelay == 0 {
		c.CommandDelay = 10 * time.Millisecond
	}
	if c.RestoreTimeout == 0 {
		c.RestoreTimeout = 5 * time.Second
	}
	if c.JoinTimeout == 0 {
		c.JoinTimeout = 20 * time.Second
	}
	if c.StatusTimeout == 0 {
		c.StatusTimeout = time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = 5 * time.Second
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = time.Second
	}
	if c.MaxBuffered == 0 {
		c.MaxBuffered = 8 * 1024
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithClock(c Clock) *ConfigBuilder {
	b.config.Clock = c
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) WithCommandDelay(d time.Duration) *ConfigBuilder {
	b.config.CommandDelay = d
	return b
}

func (b *ConfigBuilder) WithRestoreTimeout(d time.Duration) *ConfigBuilder {
	b.config.RestoreTimeout = d
	return b
}

func (b *ConfigBuilder) WithJoinTimeout(d time.Duration) *ConfigBuilder {
	b.config.JoinTimeout = d
	return b
}

func (b *ConfigBuilder) WithMaxBuffered(n int) *ConfigBuilder {
	b.config.MaxBuffered = n
	return b
}

// Build validates the collected settings and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
