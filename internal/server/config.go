package server

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/launcher-bridge/internal/logger"
)

// Config holds all daemon configuration. The defaults reproduce the
// original wire contract; a config file is optional.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Bluetooth BluetoothConfig `yaml:"bluetooth"`
	Logging   logger.Config   `yaml:"logging"`

	// StartupSet names a command set replayed once after the LED is switched on.
	StartupSet string `yaml:"startup_set"`

	path string // file path for save/load
}

type DeviceConfig struct {
	Type      string `yaml:"type"`       // "usb" or "demo"
	TimeoutMs int    `yaml:"timeout_ms"` // per control transfer
}

type BluetoothConfig struct {
	// Transport selects the listening endpoint:
	// "profile" (BlueZ D-Bus profile, advertised), "socket" (raw RFCOMM),
	// "serial" (RFCOMM tty) or "websocket".
	Transport   string `yaml:"transport"`
	ServiceName string `yaml:"service_name"`
	ServiceUUID string `yaml:"service_uuid"`
	Channel     int    `yaml:"channel"` // 0 = chosen by the stack
	PortPath    string `yaml:"port_path"`
	BaudRate    int    `yaml:"baud_rate"`
	ListenAddr  string `yaml:"listen_addr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Type:      "usb",
			TimeoutMs: 1000,
		},
		Bluetooth: BluetoothConfig{
			Transport:   "profile",
			ServiceName: "PhoneDemoServer",
			ServiceUUID: "94f39d29-7d6d-437d-973b-fba39e49d4ee",
			Channel:     0,
			PortPath:    "/dev/rfcomm0",
			BaudRate:    9600,
			ListenAddr:  ":8080",
		},
		Logging: logger.Config{
			Enabled: false,
			Path:    "/var/log/launcherd",
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		// Real env takes precedence
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: DEVICE_TYPE, DEVICE_TIMEOUT_MS, BT_TRANSPORT, BT_SERVICE_NAME,
// BT_SERVICE_UUID, BT_CHANNEL, BT_PORT, BT_BAUD, LISTEN_ADDR, LOG_ENABLED,
// LOG_PATH, STARTUP_SET
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DEVICE_TYPE"); v != "" {
		c.Device.Type = v
	}
	if v := os.Getenv("DEVICE_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Device.TimeoutMs = n
		}
	}
	if v := os.Getenv("BT_TRANSPORT"); v != "" {
		c.Bluetooth.Transport = v
	}
	if v := os.Getenv("BT_SERVICE_NAME"); v != "" {
		c.Bluetooth.ServiceName = v
	}
	if v := os.Getenv("BT_SERVICE_UUID"); v != "" {
		c.Bluetooth.ServiceUUID = v
	}
	if v := os.Getenv("BT_CHANNEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Bluetooth.Channel = n
		}
	}
	if v := os.Getenv("BT_PORT"); v != "" {
		c.Bluetooth.PortPath = v
	}
	if v := os.Getenv("BT_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Bluetooth.BaudRate = n
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Bluetooth.ListenAddr = v
	}
	if v := os.Getenv("LOG_ENABLED"); v != "" {
		c.Logging.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
	if v := os.Getenv("STARTUP_SET"); v != "" {
		c.StartupSet = v
	}
}

// Validate checks values that would otherwise only fail once a client connects.
func (c *Config) Validate() error {
	switch c.Device.Type {
	case "usb", "demo":
	default:
		return fmt.Errorf("config: unknown device type %q", c.Device.Type)
	}

	switch c.Bluetooth.Transport {
	case "profile", "socket", "serial", "websocket":
	default:
		return fmt.Errorf("config: unknown transport %q", c.Bluetooth.Transport)
	}

	id, err := uuid.Parse(c.Bluetooth.ServiceUUID)
	if err != nil {
		return fmt.Errorf("config: service uuid: %w", err)
	}
	// BlueZ expects the canonical lower-case form.
	c.Bluetooth.ServiceUUID = id.String()

	if c.Bluetooth.Channel < 0 || c.Bluetooth.Channel > 30 {
		return fmt.Errorf("config: rfcomm channel %d out of range 0-30", c.Bluetooth.Channel)
	}
	return nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string { return c.path }

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	if c.path == "" {
		c.path = "/etc/launcherd/config.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}
