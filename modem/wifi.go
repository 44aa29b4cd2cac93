package modem

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"i4.energy/across/espgw/at"
)

type sessionState int

const (
	stateUninitialized sessionState = iota
	stateInitializing
	stateReady
)

// ConnectionStatus is the station state derived from one AT+CIPSTATUS query.
type ConnectionStatus int

const (
	StatusUnknown ConnectionStatus = iota
	StatusConnected
	StatusDisconnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Init restores the module to factory settings and turns command echo off.
// On any failure the modem is left uninitialized.
func (m *Modem) Init(ctx context.Context) error {
	m.state = stateInitializing

	if err := m.SendCommand(ctx, at.CmdRestore, at.Ready, m.config.RestoreTimeout); err != nil {
		m.state = stateUninitialized
		return fmt.Errorf("restore factory settings: %w", err)
	}

	if err := m.SendCommand(ctx, at.CmdEchoOff, at.OK, DefaultTimeout); err != nil {
		m.state = stateUninitialized
		return fmt.Errorf("could not disable echo: %w", err)
	}

	m.state = stateReady
	m.logger.Info("esp8266 initialized")
	return nil
}

// IsInitialized reports whether the last Init completed.
func (m *Modem) IsInitialized() bool {
	return m.state == stateReady
}

// ConnectWiFi switches the module to station mode and joins the access
// point. Association and DHCP are slow and their outcome is only logged:
// poll IsWifiConnected to learn whether the join worked. The returned error
// covers transport failures only.
func (m *Modem) ConnectWiFi(ctx context.Context, ssid, password string) error {
	if err := m.SendCommand(ctx, at.CmdStationMode, at.OK, DefaultTimeout); err != nil {
		if !isResponseErr(err) {
			return err
		}
		m.logger.Warn("set station mode", "error", err)
	}

	if err := m.SendCommand(ctx, at.JoinAP(ssid, password), at.OK, m.config.JoinTimeout); err != nil {
		if !isResponseErr(err) {
			return err
		}
		m.logger.Warn("join access point", "ssid", ssid, "error", err)
		return nil
	}

	m.logger.Info("joined access point", "ssid", ssid)
	return nil
}

// WifiStatus queries the station status. A missing status line yields
// StatusUnknown, code 5 StatusDisconnected and every other code, including
// ones this package does not know, StatusConnected.
func (m *Modem) WifiStatus(ctx context.Context) ConnectionStatus {
	if err := m.Send(ctx, at.CmdStatus); err != nil {
		m.logger.Warn("query status", "error", err)
		return StatusUnknown
	}
	line := m.GetResponse(ctx, at.StatusPrefix, m.config.StatusTimeout)

	// Wait until OK is received.
	m.GetResponse(ctx, at.OK, DefaultTimeout)

	return parseStatus(line)
}

// IsWifiConnected reports whether the station is associated.
func (m *Modem) IsWifiConnected(ctx context.Context) bool {
	return m.WifiStatus(ctx) == StatusConnected
}

func parseStatus(line string) ConnectionStatus {
	i := strings.Index(line, at.StatusPrefix)
	if i < 0 {
		return StatusUnknown
	}
	code := strings.TrimSpace(line[i+len(at.StatusPrefix):])
	if n, err := strconv.Atoi(code); err == nil && n == at.StatusNoAP {
		return StatusDisconnected
	}
	return StatusConnected
}

// LocalIP returns the station IP address reported by AT+CIFSR.
func (m *Modem) LocalIP(ctx context.Context) (string, error) {
	if err := m.Send(ctx, at.CmdLocalIP); err != nil {
		return "", err
	}
	line := m.GetResponse(ctx, at.StationIP, m.config.StatusTimeout)

	// Wait until OK is received.
	m.GetResponse(ctx, at.OK, DefaultTimeout)

	// +CIFSR:STAIP,"192.168.1.20"
	fields := strings.Split(line, `"`)
	if len(fields) < 3 || fields[1] == "" {
		return "", ErrNoAddress
	}
	return fields[1], nil
}

// isResponseErr reports whether err came from the module's answer rather
// than from the transport.
func isResponseErr(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrCommandFailed)
}
