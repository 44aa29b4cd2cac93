package sntp_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"i4.energy/across/espgw/modem"
	"i4.energy/across/espgw/sntp"
)

const (
	statusConnected    = "STATUS:2\r\n\r\nOK\r\n"
	statusDisconnected = "STATUS:5\r\n\r\nOK\r\n"
	timeReply          = "+CIPSNTPTIME:Tue Mar 05 14:30:02 2024\r\nOK\r\n"
	epochReply         = "+CIPSNTPTIME:Thu Jan 01 00:00:00 1970\r\nOK\r\n"
)

var march5 = sntp.TimeRecord{Year: 2024, Month: 3, Day: 5, Weekday: 2, Hour: 14, Minute: 30, Second: 2}

func newClient(transport *modem.TestTransport, opts ...sntp.Option) *sntp.Client {
	m := modem.NewTestModem(transport, modem.NewManualClock(time.Millisecond))
	return sntp.New(m, opts...)
}

// initialized returns a client that has completed Init with timezone 0.
func initialized(t *testing.T, transport *modem.TestTransport, opts ...sntp.Option) *sntp.Client {
	t.Helper()
	transport.On("AT+CIPSTATUS", statusConnected).On("AT+CIPSNTPCFG=", "OK\r\n")
	c := newClient(transport, opts...)
	if err := c.Init(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error from Init(): %v", err)
	}
	return c
}

func TestInit(t *testing.T) {
	ctx := context.Background()

	t.Run("Configures the module", func(t *testing.T) {
		transport := modem.NewTestTransport().
			On("AT+CIPSTATUS", statusConnected).
			On("AT+CIPSNTPCFG=", "OK\r\n")
		c := newClient(transport)

		if err := c.Init(ctx, 8); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !c.Initialized() {
			t.Error("expected Initialized() to be true")
		}
		if c.Timezone() != 8 {
			t.Errorf("expected timezone 8, got %d", c.Timezone())
		}
		want := []string{"AT+CIPSTATUS", `AT+CIPSNTPCFG=1,8,"pool.ntp.org"`}
		if got := transport.Written(); !slices.Equal(got, want) {
			t.Errorf("written %q, want %q", got, want)
		}
	})

	t.Run("Custom server", func(t *testing.T) {
		transport := modem.NewTestTransport().
			On("AT+CIPSTATUS", statusConnected).
			On("AT+CIPSNTPCFG=", "OK\r\n")
		c := newClient(transport, sntp.WithServer("time.example"))

		if err := c.Init(ctx, -5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := transport.Written()[1]; got != `AT+CIPSNTPCFG=1,-5,"time.example"` {
			t.Errorf("unexpected config command %q", got)
		}
	})

	t.Run("Timezone out of range", func(t *testing.T) {
		transport := modem.NewTestTransport()
		c := newClient(transport)

		for _, tz := range []int{-13, 15} {
			if err := c.Init(ctx, tz); !errors.Is(err, sntp.ErrInvalidTimezone) {
				t.Errorf("Init(%d): expected ErrInvalidTimezone, got: %v", tz, err)
			}
		}
		if len(transport.Written()) != 0 {
			t.Error("expected nothing to be sent to the module")
		}
	})

	t.Run("WiFi down", func(t *testing.T) {
		transport := modem.NewTestTransport().On("AT+CIPSTATUS", statusDisconnected)
		c := newClient(transport)

		if err := c.Init(ctx, 0); !errors.Is(err, sntp.ErrWifiNotConnected) {
			t.Errorf("expected ErrWifiNotConnected, got: %v", err)
		}
		if c.Initialized() {
			t.Error("expected Initialized() to be false")
		}
	})

	t.Run("Rejected configuration clears the flag", func(t *testing.T) {
		transport := modem.NewTestTransport().
			On("AT+CIPSTATUS", statusConnected).
			Once("AT+CIPSNTPCFG=", "OK\r\n").
			On("AT+CIPSNTPCFG=", "ERROR\r\n")
		c := newClient(transport)

		if err := c.Init(ctx, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := c.Init(ctx, 0); !errors.Is(err, modem.ErrCommandFailed) {
			t.Errorf("expected ErrCommandFailed, got: %v", err)
		}
		if c.Initialized() {
			t.Error("expected Initialized() to be false")
		}
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("Stores the reported time", func(t *testing.T) {
		transport := modem.NewTestTransport().On("AT+CIPSNTPTIME?", timeReply)
		c := initialized(t, transport)

		if err := c.Update(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !c.Updated() {
			t.Error("expected Updated() to be true")
		}
		if got := c.Time(); got != march5 {
			t.Errorf("Time() = %+v, want %+v", got, march5)
		}
	})

	t.Run("Retries until synchronised", func(t *testing.T) {
		transport := modem.NewTestTransport().
			Once("AT+CIPSNTPTIME?", epochReply).
			Once("AT+CIPSNTPTIME?", epochReply).
			On("AT+CIPSNTPTIME?", timeReply)
		c := initialized(t, transport)

		if err := c.Update(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := c.Time(); got != march5 {
			t.Errorf("Time() = %+v, want %+v", got, march5)
		}

		var queries int
		for _, line := range transport.Written() {
			if line == "AT+CIPSNTPTIME?" {
				queries++
			}
		}
		if queries != 3 {
			t.Errorf("expected 3 time queries, got %d", queries)
		}
	})

	t.Run("Epoch until the deadline keeps the old time", func(t *testing.T) {
		transport := modem.NewTestTransport().
			Once("AT+CIPSNTPTIME?", timeReply).
			On("AT+CIPSNTPTIME?", epochReply)
		c := initialized(t, transport, sntp.WithTimeout(2*time.Second))

		if err := c.Update(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := c.Update(ctx); !errors.Is(err, sntp.ErrNotSynchronized) {
			t.Errorf("expected ErrNotSynchronized, got: %v", err)
		}
		if c.Updated() {
			t.Error("expected Updated() to be false")
		}
		if got := c.Time(); got != march5 {
			t.Errorf("expected the previous time to be kept, got %+v", got)
		}
	})

	t.Run("Not initialized", func(t *testing.T) {
		transport := modem.NewTestTransport().
			On("AT+CIPSTATUS", statusConnected).
			Once("AT+CIPSNTPCFG=", "OK\r\n").
			On("AT+CIPSNTPCFG=", "ERROR\r\n").
			On("AT+CIPSNTPTIME?", timeReply)
		c := newClient(transport)
		if err := c.Init(ctx, 0); err != nil {
			t.Fatalf("unexpected error from Init(): %v", err)
		}
		if err := c.Update(ctx); err != nil {
			t.Fatalf("unexpected error from Update(): %v", err)
		}

		if err := c.Init(ctx, 3); !errors.Is(err, modem.ErrCommandFailed) {
			t.Fatalf("expected ErrCommandFailed from Init(), got: %v", err)
		}
		if c.Initialized() {
			t.Fatal("expected a failed Init to leave the client uninitialized")
		}
		before := len(transport.Written())

		if err := c.Update(ctx); !errors.Is(err, sntp.ErrNotInitialized) {
			t.Errorf("expected ErrNotInitialized, got: %v", err)
		}
		if slices.Contains(transport.Written()[before:], "AT+CIPSNTPTIME?") {
			t.Error("expected no time query")
		}
		if c.Updated() {
			t.Error("expected Updated() to be false")
		}
		if c.Time() != march5 {
			t.Errorf("expected the previous record to survive, got %+v", c.Time())
		}
		if c.Timezone() != 0 {
			t.Errorf("expected timezone 0 from the last successful Init, got %d", c.Timezone())
		}
	})

	t.Run("WiFi lost after Init", func(t *testing.T) {
		transport := modem.NewTestTransport().
			Once("AT+CIPSTATUS", statusConnected).
			Once("AT+CIPSTATUS", statusConnected).
			On("AT+CIPSTATUS", statusDisconnected).
			On("AT+CIPSNTPCFG=", "OK\r\n").
			On("AT+CIPSNTPTIME?", timeReply)
		c := newClient(transport)
		if err := c.Init(ctx, 0); err != nil {
			t.Fatalf("unexpected error from Init(): %v", err)
		}
		if err := c.Update(ctx); err != nil {
			t.Fatalf("unexpected error from Update(): %v", err)
		}

		if err := c.Update(ctx); !errors.Is(err, sntp.ErrWifiNotConnected) {
			t.Errorf("expected ErrWifiNotConnected, got: %v", err)
		}
		if c.Updated() {
			t.Error("expected Updated() to be false")
		}
		if !c.Initialized() {
			t.Error("expected the client to stay initialized")
		}
		if c.Time() != march5 {
			t.Errorf("expected the previous record to survive, got %+v", c.Time())
		}
	})

	t.Run("Silence", func(t *testing.T) {
		transport := modem.NewTestTransport()
		c := initialized(t, transport)

		if err := c.Update(ctx); !errors.Is(err, sntp.ErrNoResponse) {
			t.Errorf("expected ErrNoResponse, got: %v", err)
		}
		if !c.Time().IsZero() {
			t.Errorf("expected the zero time, got %+v", c.Time())
		}
	})

	t.Run("Missing OK", func(t *testing.T) {
		transport := modem.NewTestTransport().
			On("AT+CIPSNTPTIME?", "+CIPSNTPTIME:Tue Mar 05 14:30:02 2024\r\n")
		c := initialized(t, transport)

		if err := c.Update(ctx); !errors.Is(err, sntp.ErrNoResponse) {
			t.Errorf("expected ErrNoResponse, got: %v", err)
		}
		if !c.Time().IsZero() {
			t.Errorf("expected the time to stay unset, got %+v", c.Time())
		}
	})

	t.Run("Unknown name", func(t *testing.T) {
		transport := modem.NewTestTransport().
			On("AT+CIPSNTPTIME?", "+CIPSNTPTIME:Tue Foo 05 14:30:02 2024\r\nOK\r\n")
		c := initialized(t, transport)

		if err := c.Update(ctx); !errors.Is(err, sntp.ErrUnknownName) {
			t.Errorf("expected ErrUnknownName, got: %v", err)
		}
		if c.Updated() {
			t.Error("expected Updated() to be false")
		}
	})
}
