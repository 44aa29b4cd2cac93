package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"i4.energy/across/espgw/blynk"
	"i4.energy/across/espgw/sntp"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string
	// SerialPort is the path to the ESP8266's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string
	// BaudRate is the baud rate for serial communication with the module (e.g. 115200)
	BaudRate int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// WifiSSID and WifiPassword are the access point credentials
	WifiSSID     string
	WifiPassword string
	// BlynkServers overrides the Blynk server list, in preference order
	BlynkServers []string
	// Timezone is the offset from UTC in hours the module reports time in
	Timezone int
	// NTPServer is the host the module synchronises against
	NTPServer string
	// HTTPToken, when set, is required as a bearer token on API requests
	HTTPToken string
	// Shell runs the interactive console on stdin instead of the HTTP server
	Shell bool
	// SetSystemClock sets the host clock from the module time after each update
	SetSystemClock bool
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	if config.Timezone < sntp.MinTimezone || config.Timezone > sntp.MaxTimezone {
		return nil, fmt.Errorf("timezone %d out of range [%d, %d]", config.Timezone, sntp.MinTimezone, sntp.MaxTimezone)
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.BlynkServers = append([]string(nil), blynk.DefaultServers...)
		c.NTPServer = sntp.DefaultServer
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if ssid := os.Getenv("WIFI_SSID"); ssid != "" {
			c.WifiSSID = ssid
		}

		if password := os.Getenv("WIFI_PASSWORD"); password != "" {
			c.WifiPassword = password
		}

		if servers := os.Getenv("BLYNK_SERVERS"); servers != "" {
			c.BlynkServers = splitList(servers)
		}

		if tz := os.Getenv("TIMEZONE"); tz != "" {
			t, err := strconv.Atoi(tz)
			if err != nil {
				return fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
			}
			c.Timezone = t
		}

		if ntpServer := os.Getenv("NTP_SERVER"); ntpServer != "" {
			c.NTPServer = ntpServer
		}

		if token := os.Getenv("HTTP_TOKEN"); token != "" {
			c.HTTPToken = token
		}

		if shell := os.Getenv("SHELL_MODE"); shell != "" {
			if b, err := strconv.ParseBool(shell); err == nil {
				c.Shell = b
			}
		}

		if set := os.Getenv("SET_SYSTEM_CLOCK"); set != "" {
			if b, err := strconv.ParseBool(set); err == nil {
				c.SetSystemClock = b
			}
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "wifi-ssid":
				c.WifiSSID = f.Value.String()
			case "wifi-password":
				c.WifiPassword = f.Value.String()
			case "blynk-servers":
				c.BlynkServers = splitList(f.Value.String())
			case "timezone":
				t, convErr := strconv.Atoi(f.Value.String())
				if convErr != nil {
					err = fmt.Errorf("invalid -timezone %q: %w", f.Value.String(), convErr)
					return
				}
				c.Timezone = t
			case "ntp-server":
				c.NTPServer = f.Value.String()
			case "http-token":
				c.HTTPToken = f.Value.String()
			case "shell":
				c.Shell = f.Value.String() == "true"
			case "set-system-clock":
				c.SetSystemClock = f.Value.String() == "true"
			}
		})
		return err
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
