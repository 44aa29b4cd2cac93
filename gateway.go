package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/espgw/blynk"
	"i4.energy/across/espgw/modem"
	"i4.energy/across/espgw/sntp"
)

// OffsetVerifier measures how far t is from a reference clock.
type OffsetVerifier interface {
	Offset(ctx context.Context, t time.Time) (time.Duration, error)
}

// ClockSetter sets the host clock.
type ClockSetter func(t time.Time) error

// Gateway serialises access to the module. The modem and the clients on top
// of it are single-threaded, so every device operation holds mu.
type Gateway struct {
	mu       sync.Mutex
	modem    *modem.Modem
	blynk    *blynk.Client
	sntp     *sntp.Client
	timezone int
	verifier OffsetVerifier
	setClock ClockSetter
	logger   *slog.Logger
}

// WifiInfo is the station state as reported by the module.
type WifiInfo struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	IP        string `json:"ip,omitempty"`
}

// TimeInfo is a time fetched from the module.
type TimeInfo struct {
	Record  sntp.TimeRecord `json:"record"`
	Time    time.Time       `json:"time"`
	Offset  *time.Duration  `json:"offset_ns,omitempty"`
	Updated bool            `json:"updated"`
}

type GatewayOption func(*Gateway)

func WithVerifier(v OffsetVerifier) GatewayOption {
	return func(g *Gateway) { g.verifier = v }
}

func WithClockSetter(set ClockSetter) GatewayOption {
	return func(g *Gateway) { g.setClock = set }
}

func NewGateway(m *modem.Modem, b *blynk.Client, s *sntp.Client, timezone int, logger *slog.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		modem:    m,
		blynk:    b,
		sntp:     s,
		timezone: timezone,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start brings the module up: factory reset, join the access point, wait
// for the association and configure SNTP. Only a failed Init is fatal.
func (g *Gateway) Start(ctx context.Context, ssid, password string, joinPolls int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.modem.Init(ctx); err != nil {
		return fmt.Errorf("init module: %w", err)
	}

	if ssid == "" {
		g.logger.Warn("no wifi ssid configured, skipping join")
		return nil
	}

	if err := g.modem.ConnectWiFi(ctx, ssid, password); err != nil {
		return fmt.Errorf("connect wifi: %w", err)
	}

	connected := false
	for range joinPolls {
		if connected = g.modem.IsWifiConnected(ctx); connected {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		g.modem.Clock().Sleep(time.Second)
	}
	if !connected {
		g.logger.Warn("wifi not connected yet", "ssid", ssid)
		return nil
	}
	g.logger.Info("wifi connected", "ssid", ssid)

	if err := g.sntp.Init(ctx, g.timezone); err != nil {
		g.logger.Warn("sntp init failed", "error", err)
	}
	return nil
}

func (g *Gateway) Wifi(ctx context.Context) WifiInfo {
	g.mu.Lock()
	defer g.mu.Unlock()

	status := g.modem.WifiStatus(ctx)
	info := WifiInfo{
		Status:    status.String(),
		Connected: status == modem.StatusConnected,
	}
	if info.Connected {
		ip, err := g.modem.LocalIP(ctx)
		if err != nil {
			g.logger.Debug("local ip unavailable", "error", err)
		}
		info.IP = ip
	}
	return info
}

func (g *Gateway) ReadPin(ctx context.Context, token, pin string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blynk.Read(ctx, token, pin)
}

func (g *Gateway) WritePin(ctx context.Context, token, pin, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blynk.Write(ctx, token, pin, value)
}

func (g *Gateway) Servers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blynk.Servers()
}

// Time fetches the current time from the module, configuring SNTP first if
// that has not happened yet. With verify set the result is compared against
// a direct NTP query.
func (g *Gateway) Time(ctx context.Context, verify bool) (TimeInfo, error) {
	info, err := g.updateTime(ctx)
	if err != nil {
		return info, err
	}

	if verify {
		if g.verifier == nil {
			return info, fmt.Errorf("no ntp verifier configured")
		}
		offset, err := g.verifier.Offset(ctx, info.Time)
		if err != nil {
			return info, fmt.Errorf("verify time: %w", err)
		}
		info.Offset = &offset
	}
	return info, nil
}

func (g *Gateway) updateTime(ctx context.Context) (TimeInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.sntp.Initialized() {
		if err := g.sntp.Init(ctx, g.timezone); err != nil {
			return TimeInfo{}, fmt.Errorf("init sntp: %w", err)
		}
	}

	if err := g.sntp.Update(ctx); err != nil {
		return TimeInfo{}, err
	}

	record := g.sntp.Time()
	info := TimeInfo{
		Record:  record,
		Time:    record.Time(g.timezone),
		Updated: g.sntp.Updated(),
	}

	if g.setClock != nil {
		if err := g.setClock(info.Time); err != nil {
			g.logger.Error("Failed to set system clock", "error", err)
		} else {
			g.logger.Info("system clock set", "time", info.Time)
		}
	}
	return info, nil
}
