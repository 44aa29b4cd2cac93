package blynk_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"i4.energy/across/espgw/blynk"
	"i4.energy/across/espgw/modem"
)

const (
	statusConnected = "STATUS:2\r\n\r\nOK\r\n"
	closeReply      = "CLOSED\r\n\r\nOK\r\n"
	promptReply     = "\r\nOK\r\n> "
)

const sendAck = "\r\nRecv 64 bytes\r\n\r\nSEND OK\r\n\r\n"

// ipd frames payload the way the module prints received TCP data.
func ipd(payload string) string {
	return fmt.Sprintf("+IPD,%d:%s", len(payload), payload)
}

// responseHead is the status line and headers up to the blank separator.
func responseHead(status string) string {
	return "HTTP/1.1 " + status + "\r\n" +
		"Server: nginx\r\n" +
		"Content-Type: text/plain;charset=utf-8\r\n" +
		"\r\n"
}

// httpReply builds what the module prints after a request has been written:
// the send acknowledgement followed by the server response in one frame.
func httpReply(status, body string) string {
	return sendAck + ipd(responseHead(status)+body)
}

func startFor(host string) string {
	return `AT+CIPSTART="TCP","` + host + `"`
}

func newClient(t *testing.T, transport *modem.TestTransport, opts ...blynk.Option) *blynk.Client {
	t.Helper()
	m := modem.NewTestModem(transport, modem.NewManualClock(time.Millisecond))
	client, err := blynk.New(m, opts...)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	return client
}

func TestRead(t *testing.T) {
	ctx := context.Background()

	t.Run("Value is the last body line", func(t *testing.T) {
		transport := modem.NewTestTransport().
			On("AT+CIPSTATUS", statusConnected).
			On(startFor("blynk.cloud"), "CONNECT\r\n\r\nOK\r\n").
			On("AT+CIPSEND=", promptReply).
			On("GET ", httpReply("200 OK", "17")).
			On("AT+CIPCLOSE", closeReply)
		client := newClient(t, transport)

		value, err := client.Read(ctx, "tok", "V1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != "17" {
			t.Errorf("expected value 17, got %q", value)
		}
		if !client.Updated() {
			t.Error("expected Updated() to be true")
		}

		want := []string{
			"AT+CIPSTATUS",
			`AT+CIPSTART="TCP","blynk.cloud",80`,
			fmt.Sprintf("AT+CIPSEND=%d", len("GET /external/api/get?token=tok&V1 HTTP/1.1\r\n")+2),
			"GET /external/api/get?token=tok&V1 HTTP/1.1\r\n",
			"AT+CIPCLOSE",
		}
		if got := transport.Written(); !slices.Equal(got, want) {
			t.Errorf("written %q, want %q", got, want)
		}
	})

	t.Run("Long response keeps the final line", func(t *testing.T) {
		var body strings.Builder
		for i := range 199 {
			fmt.Fprintf(&body, "X-Filler-%03d: %d\r\n", i, i)
		}
		body.WriteString("\r\n17")

		transport := modem.NewTestTransport().
			On("AT+CIPSTATUS", statusConnected).
			On("AT+CIPSTART", "CONNECT\r\n\r\nOK\r\n").
			On("AT+CIPSEND=", promptReply).
			On("GET ", httpReply("200 OK", body.String())).
			On("AT+CIPCLOSE", closeReply).
			ChunkSize(97)
		client := newClient(t, transport)

		value, err := client.Read(ctx, "tok", "V1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != "17" {
			t.Errorf("expected value 17, got %q", value)
		}
	})

	t.Run("Link notifications are not values", func(t *testing.T) {
		transport := modem.NewTestTransport().
			On("AT+CIPSTATUS", statusConnected).
			On("AT+CIPSTART", "CONNECT\r\n\r\nOK\r\n").
			On("AT+CIPSEND=", promptReply).
			On("GET ", httpReply("200 OK", "42")+"\r\nCLOSED\r\n").
			On("AT+CIPCLOSE", "ERROR\r\n")
		client := newClient(t, transport)

		value, err := client.Read(ctx, "tok", "V1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != "42" {
			t.Errorf("expected value 42, got %q", value)
		}
	})

	t.Run("Body in its own IPD frame", func(t *testing.T) {
		transport := modem.NewTestTransport().
			On("AT+CIPSTATUS", statusConnected).
			On("AT+CIPSTART", "CONNECT\r\n\r\nOK\r\n").
			On("AT+CIPSEND=", promptReply).
			On("GET ", sendAck+ipd(responseHead("200 OK"))+"\r\n"+ipd("on")+"\r\nCLOSED\r\n").
			On("AT+CIPCLOSE", closeReply)
		client := newClient(t, transport)

		value, err := client.Read(ctx, "tok", "V1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != "on" {
			t.Errorf("expected value on, got %q", value)
		}
	})

	t.Run("Close notification glued to the body", func(t *testing.T) {
		transport := modem.NewTestTransport().
			On("AT+CIPSTATUS", statusConnected).
			On("AT+CIPSTART", "CONNECT\r\n\r\nOK\r\n").
			On("AT+CIPSEND=", promptReply).
			On("GET ", httpReply("200 OK", "42")+"0,CLOSED\r\n").
			On("AT+CIPCLOSE", "ERROR\r\n")
		client := newClient(t, transport)

		value, err := client.Read(ctx, "tok", "V1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != "42" {
			t.Errorf("expected value 42, got %q", value)
		}
	})

	t.Run("Body that looks like a notification", func(t *testing.T) {
		for _, body := range []string{"ready", "CONNECT", "CLOSED", "WIFI CONNECTED", "busy p...", "+IPD,1:x"} {
			t.Run(body, func(t *testing.T) {
				transport := modem.NewTestTransport().
					On("AT+CIPSTATUS", statusConnected).
					On("AT+CIPSTART", "CONNECT\r\n\r\nOK\r\n").
					On("AT+CIPSEND=", promptReply).
					On("GET ", httpReply("200 OK", body)+"\r\nCLOSED\r\n").
					On("AT+CIPCLOSE", "ERROR\r\n")
				client := newClient(t, transport)

				value, err := client.Read(ctx, "tok", "V1")
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if value != body {
					t.Errorf("expected value %q, got %q", body, value)
				}
			})
		}
	})

	t.Run("Control characters in the pin", func(t *testing.T) {
		transport := modem.NewTestTransport().On("AT+CIPSTATUS", statusConnected)
		client := newClient(t, transport)

		for _, pin := range []string{"V1\r\nHost: evil", "V1 HTTP/1.0", "V1\x00", ""} {
			_, err := client.Read(ctx, "tok", pin)
			if !errors.Is(err, blynk.ErrInvalidField) {
				t.Errorf("Read(%q): expected ErrInvalidField, got: %v", pin, err)
			}
		}
		if err := client.Write(ctx, "tok\nX", "V1", "1"); !errors.Is(err, blynk.ErrInvalidField) {
			t.Errorf("expected ErrInvalidField for the token, got: %v", err)
		}
		if client.Updated() {
			t.Error("expected Updated() to be false")
		}
		if got := transport.Written(); len(got) != 0 {
			t.Errorf("expected nothing sent to the module, got %q", got)
		}
	})
}

func TestFailover(t *testing.T) {
	ctx := context.Background()

	t.Run("Next server is tried and promoted", func(t *testing.T) {
		transport := modem.NewTestTransport().
			On("AT+CIPSTATUS", statusConnected).
			On(startFor("blynk.cloud"), "DNS Fail\r\n\r\nERROR\r\n").
			On(startFor("fra1.blynk.cloud"), "CONNECT\r\n\r\nOK\r\n").
			On("AT+CIPSEND=", promptReply).
			On("GET ", httpReply("200 OK", "17")).
			On("AT+CIPCLOSE", closeReply)
		client := newClient(t, transport)

		if _, err := client.Read(ctx, "tok", "V1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{
			"fra1.blynk.cloud",
			"blynk.cloud",
			"lon1.blynk.cloud",
			"ny3.blynk.cloud",
			"sgp1.blynk.cloud",
			"blr1.blynk.cloud",
		}
		if got := client.Servers(); !slices.Equal(got, want) {
			t.Errorf("Servers() = %q, want %q", got, want)
		}

		written := transport.Written()
		if written[1] != `AT+CIPSTART="TCP","blynk.cloud",80` || written[2] != "AT+CIPCLOSE" {
			t.Errorf("expected the failed candidate to be closed before failover, got %q", written)
		}
	})

	t.Run("Promoted server is tried first next time", func(t *testing.T) {
		transport := modem.NewTestTransport().
			On("AT+CIPSTATUS", statusConnected).
			On(startFor("blynk.cloud"), "ERROR\r\n").
			On(startFor("fra1.blynk.cloud"), "ERROR\r\n").
			On(startFor("lon1.blynk.cloud"), "CONNECT\r\n\r\nOK\r\n").
			On("AT+CIPSEND=", promptReply).
			On("GET ", httpReply("200 OK", "1")).
			On("AT+CIPCLOSE", closeReply)
		client := newClient(t, transport)

		if err := client.Write(ctx, "tok", "V1", "1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		before := len(transport.Written())

		if err := client.Write(ctx, "tok", "V1", "0"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second := transport.Written()[before:]
		if second[1] != `AT+CIPSTART="TCP","lon1.blynk.cloud",80` {
			t.Errorf("expected lon1 to be tried first, got %q", second[1])
		}
	})

	t.Run("Every server rejects the request", func(t *testing.T) {
		transport := modem.NewTestTransport().
			On("AT+CIPSTATUS", statusConnected).
			On("AT+CIPSTART", "CONNECT\r\n\r\nOK\r\n").
			On("AT+CIPSEND=", promptReply).
			On("GET ", httpReply("400 Bad Request", "Invalid token.")).
			On("AT+CIPCLOSE", closeReply)
		client := newClient(t, transport, blynk.WithServers("a.example", "b.example"))

		_, err := client.Read(ctx, "bad", "V1")
		if !errors.Is(err, blynk.ErrAllServersFailed) {
			t.Errorf("expected ErrAllServersFailed, got: %v", err)
		}
		if !errors.Is(err, blynk.ErrBadStatus) {
			t.Errorf("expected the last stage error to be wrapped, got: %v", err)
		}
		if client.Updated() {
			t.Error("expected Updated() to be false")
		}
		if got, want := client.Servers(), []string{"a.example", "b.example"}; !slices.Equal(got, want) {
			t.Errorf("Servers() = %q, want %q", got, want)
		}
	})

	t.Run("Missing SEND OK moves on", func(t *testing.T) {
		transport := modem.NewTestTransport().
			On("AT+CIPSTATUS", statusConnected).
			On("AT+CIPSTART", "CONNECT\r\n\r\nOK\r\n").
			On("AT+CIPSEND=", promptReply).
			On("GET ", "\r\nRecv 64 bytes\r\n\r\nSEND FAIL\r\n").
			On("AT+CIPCLOSE", closeReply)
		client := newClient(t, transport, blynk.WithServers("a.example"))

		_, err := client.Read(ctx, "tok", "V1")
		if !errors.Is(err, modem.ErrSendNotAcknowledged) {
			t.Errorf("expected ErrSendNotAcknowledged, got: %v", err)
		}
	})
}

func TestWifiDown(t *testing.T) {
	transport := modem.NewTestTransport().
		On("AT+CIPSTATUS", "STATUS:5\r\n\r\nOK\r\n")
	client := newClient(t, transport)

	_, err := client.Read(context.Background(), "tok", "V1")
	if !errors.Is(err, blynk.ErrWifiNotConnected) {
		t.Errorf("expected ErrWifiNotConnected, got: %v", err)
	}
	if got := transport.Written(); !slices.Equal(got, []string{"AT+CIPSTATUS"}) {
		t.Errorf("expected only the status query, got %q", got)
	}
	if got := client.Servers(); !slices.Equal(got, blynk.DefaultServers) {
		t.Errorf("expected the server list untouched, got %q", got)
	}
}

func TestWrite(t *testing.T) {
	transport := modem.NewTestTransport().
		On("AT+CIPSTATUS", statusConnected).
		On("AT+CIPSTART", "CONNECT\r\n\r\nOK\r\n").
		On("AT+CIPSEND=", promptReply).
		On("GET ", httpReply("200 OK", "")).
		On("AT+CIPCLOSE", closeReply)
	client := newClient(t, transport, blynk.WithPort(8080))

	if err := client.Write(context.Background(), "tok", "V2", "hello world & 100%"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !client.Updated() {
		t.Error("expected Updated() to be true")
	}

	written := transport.Written()
	if written[1] != `AT+CIPSTART="TCP","blynk.cloud",8080` {
		t.Errorf("unexpected connect command %q", written[1])
	}
	want := "GET /external/api/update?token=tok&V2=hello%20world%20%26%20100%25 HTTP/1.1\r\n"
	if written[3] != want {
		t.Errorf("request %q, want %q", written[3], want)
	}
}

func TestNewOptions(t *testing.T) {
	transport := modem.NewTestTransport()
	m := modem.NewTestModem(transport, modem.NewManualClock(time.Millisecond))

	if _, err := blynk.New(m, blynk.WithServers()); !errors.Is(err, blynk.ErrNoServers) {
		t.Errorf("expected ErrNoServers, got: %v", err)
	}
	if _, err := blynk.New(m, blynk.WithPort(0)); err == nil {
		t.Error("expected an error for port 0")
	}
}
