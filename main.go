package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i4.energy/across/espgw/blynk"
	"i4.energy/across/espgw/modem"
	"i4.energy/across/espgw/sntp"
)

func main() {
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port the ESP8266 is attached to")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("wifi-ssid", "", "Access point to join")
	flag.String("wifi-password", "", "Access point password")
	flag.String("blynk-servers", "", "Comma separated Blynk servers, in preference order")
	flag.Int("timezone", 0, "Timezone offset from UTC in hours")
	flag.String("ntp-server", sntp.DefaultServer, "NTP server the module synchronises against")
	flag.String("http-token", "", "Bearer token required by the HTTP API")
	flag.Bool("shell", false, "Run the interactive console instead of the HTTP server")
	flag.Bool("set-system-clock", false, "Set the host clock from the module time")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	modemConfig, err := modem.NewConfigBuilder().
		WithLogger(logger.With("component", "modem")).
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		logger.Error("Failed to open modem", "error", err)
		os.Exit(1)
	}

	blynkClient, err := blynk.New(m,
		blynk.WithServers(config.BlynkServers...),
		blynk.WithLogger(logger),
	)
	if err != nil {
		logger.Error("Failed to create blynk client", "error", err)
		os.Exit(1)
	}

	sntpClient := sntp.New(m,
		sntp.WithServer(config.NTPServer),
		sntp.WithLogger(logger),
	)

	opts := []GatewayOption{
		WithVerifier(NTPVerifier{Server: config.NTPServer, Timeout: 5 * time.Second}),
	}
	if config.SetSystemClock {
		opts = append(opts, WithClockSetter(setSystemClock))
	}
	gw := NewGateway(m, blynkClient, sntpClient, config.Timezone, logger.With("component", "gateway"), opts...)

	logger.Info("Starting ESP8266 gateway", "serial_port", config.SerialPort, "ssid", config.WifiSSID)
	if err := gw.Start(ctx, config.WifiSSID, config.WifiPassword, 20); err != nil {
		logger.Error("Failed to start gateway", "error", err)
		m.Close()
		os.Exit(1)
	}

	if config.Shell {
		shell := &Shell{Gateway: gw, Logger: logger, In: os.Stdin, Out: os.Stdout}
		if err := shell.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("Console failed", "error", err)
		}
		if err := m.Close(); err != nil {
			logger.Error("Failed to close modem", "error", err)
		}
		return
	}

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:  logger.With("component", "server"),
			Gateway: gw,
			Token:   config.HTTPToken,
		},
	}

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
	}

	logger.Info("Closing modem connection")
	if err := m.Close(); err != nil {
		logger.Error("Failed to close modem", "error", err)
		os.Exit(1)
	}
}
