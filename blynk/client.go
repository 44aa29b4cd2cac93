package blynk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"i4.energy/across/espgw/at"
	"i4.energy/across/espgw/modem"
)

const (
	DefaultPort          = 80
	DefaultStatusTimeout = 5 * time.Second
	DefaultDrainTimeout  = 200 * time.Millisecond
)

// Session is the part of the modem the client talks HTTP through.
// *modem.Modem satisfies it.
type Session interface {
	IsWifiConnected(ctx context.Context) bool
	OpenTCP(ctx context.Context, host string, port int) error
	SendPayload(ctx context.Context, payload string) error
	GetResponse(ctx context.Context, substr string, timeout time.Duration) string
	NextLine(ctx context.Context, timeout time.Duration) (string, bool)
	CloseTCP(ctx context.Context) error
}

var _ Session = (*modem.Modem)(nil)

type Option func(*Client) error

// WithServers replaces the default server list.
func WithServers(hosts ...string) Option {
	return func(c *Client) error {
		list, err := NewServerList(hosts...)
		if err != nil {
			return err
		}
		c.servers = list
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

func WithPort(port int) Option {
	return func(c *Client) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port %d", port)
		}
		c.port = port
		return nil
	}
}

// WithTimeouts sets how long to wait for the HTTP status line and for each
// following line of the response.
func WithTimeouts(status, drain time.Duration) Option {
	return func(c *Client) error {
		if status > 0 {
			c.statusTimeout = status
		}
		if drain > 0 {
			c.drainTimeout = drain
		}
		return nil
	}
}

// Client reads and writes Blynk datastream values through the HTTP API,
// failing over across a list of servers. It is not safe for concurrent use.
type Client struct {
	session       Session
	servers       *ServerList
	logger        *slog.Logger
	port          int
	statusTimeout time.Duration
	drainTimeout  time.Duration
	updated       bool
}

func New(session Session, opts ...Option) (*Client, error) {
	servers, err := NewServerList(DefaultServers...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		session:       session,
		servers:       servers,
		logger:        slog.New(slog.DiscardHandler),
		port:          DefaultPort,
		statusTimeout: DefaultStatusTimeout,
		drainTimeout:  DefaultDrainTimeout,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "blynk")
	return c, nil
}

// Updated reports whether the last Read or Write completed on some server.
func (c *Client) Updated() bool {
	return c.updated
}

// Servers returns the server list in its current order.
func (c *Client) Servers() []string {
	return c.servers.Hosts()
}

// Read returns the value of pin. The value is the last non-empty line of
// the response body.
func (c *Client) Read(ctx context.Context, token, pin string) (string, error) {
	if err := c.checkFields(token, pin); err != nil {
		return "", err
	}
	request := "GET /external/api/get?token=" + token + "&" + pin + " HTTP/1.1\r\n"
	return c.do(ctx, request)
}

// Write sets pin to value. The value is percent-encoded.
func (c *Client) Write(ctx context.Context, token, pin, value string) error {
	if err := c.checkFields(token, pin); err != nil {
		return err
	}
	request := "GET /external/api/update?token=" + token + "&" + pin + "=" + modem.EncodeQueryValue(value) + " HTTP/1.1\r\n"
	_, err := c.do(ctx, request)
	return err
}

// checkFields rejects a token or pin that would break the request line.
// Both are copied into it verbatim.
func (c *Client) checkFields(token, pin string) error {
	c.updated = false
	for _, f := range []struct{ name, value string }{{"token", token}, {"pin", pin}} {
		if f.value == "" {
			return fmt.Errorf("%w: empty %s", ErrInvalidField, f.name)
		}
		if i := strings.IndexFunc(f.value, func(r rune) bool { return r <= ' ' || r == 0x7f }); i >= 0 {
			return fmt.Errorf("%w: %s contains %q", ErrInvalidField, f.name, f.value[i])
		}
	}
	return nil
}

// do tries request against every server in order until one answers 200 OK.
// The TCP link is closed after every attempt.
func (c *Client) do(ctx context.Context, request string) (string, error) {
	c.updated = false

	if !c.session.IsWifiConnected(ctx) {
		return "", ErrWifiNotConnected
	}

	var lastErr error
	for i, host := range c.servers.Hosts() {
		value, err := c.exchange(ctx, host, request)

		if cerr := c.session.CloseTCP(ctx); cerr != nil {
			c.logger.Debug("close connection", "host", host, "error", cerr)
		}

		if err == nil {
			c.servers.promote(i)
			c.updated = true
			c.logger.Debug("request served", "host", host)
			return value, nil
		}

		c.logger.Warn("blynk server failed", "host", host, "error", err)
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
	}

	return "", fmt.Errorf("%w: %w", ErrAllServersFailed, lastErr)
}

func (c *Client) exchange(ctx context.Context, host, request string) (string, error) {
	if err := c.session.OpenTCP(ctx, host, c.port); err != nil {
		return "", err
	}

	if err := c.session.SendPayload(ctx, request); err != nil {
		return "", err
	}

	status := c.session.GetResponse(ctx, at.HTTPVersion, c.statusTimeout)
	if status == "" {
		return "", ErrNoStatusLine
	}
	if !strings.Contains(status, at.HTTPStatusOK) {
		return "", fmt.Errorf("%w: %s", ErrBadStatus, at.StripIPD(status))
	}

	// Headers, the blank separator and the body arrive as separate lines,
	// framed by +IPD and interleaved with link notifications.
	var (
		frames frameReader
		value  string
	)
	frames.feed(status)
	for {
		line, ok := c.session.NextLine(ctx, c.drainTimeout)
		if !ok {
			break
		}
		for _, text := range frames.feed(line) {
			if text != "" {
				value = text
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return value, nil
}
