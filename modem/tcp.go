package modem

import (
	"context"
	"fmt"

	"i4.energy/across/espgw/at"
)

// OpenTCP opens the module's single TCP link to host:port.
func (m *Modem) OpenTCP(ctx context.Context, host string, port int) error {
	if err := m.SendCommand(ctx, at.StartTCP(host, port), at.OK, m.config.ConnectTimeout); err != nil {
		return fmt.Errorf("open tcp %s:%d: %w", host, port, err)
	}
	return nil
}

// SendPayload transmits payload over the open TCP link.
//
// The length announced with AT+CIPSEND covers the payload plus the CRLF every
// written line ends with. The payload is written once the module has
// acknowledged the announcement, and SendPayload blocks until the module
// reports SEND OK. Data the peer sends back stays buffered for GetResponse
// and NextLine.
func (m *Modem) SendPayload(ctx context.Context, payload string) error {
	n := len(payload) + len(at.CRLF)
	if err := m.SendCommand(ctx, at.SendLength(n), at.OK, DefaultTimeout); err != nil {
		return fmt.Errorf("announce %d byte payload: %w", n, err)
	}

	if err := m.Send(ctx, payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	if m.GetResponse(ctx, at.SendOK, m.config.SendTimeout) == "" {
		return ErrSendNotAcknowledged
	}
	return nil
}

// CloseTCP closes the TCP link.
func (m *Modem) CloseTCP(ctx context.Context) error {
	return m.SendCommand(ctx, at.CmdClose, at.OK, m.config.CloseTimeout)
}
