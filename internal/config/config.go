package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Bulb            BulbConfig     `yaml:"bulb"`
	Core            CoreConfig     `yaml:"core"`
	Inputs          InputsConfig   `yaml:"inputs"`
	LED             LEDConfig      `yaml:"led"`
	GPIO            GPIOConfig     `yaml:"gpio"`
	Webhook         WebhookConfig  `yaml:"webhook"`
	MQTT            MQTTConfig     `yaml:"mqtt"`
	InfluxDB        InfluxDBConfig `yaml:"influxdb"`
	Database        DatabaseConfig `yaml:"database"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	Log             LogConfig      `yaml:"log"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// BulbConfig contains Tasmota bulb settings
type BulbConfig struct {
	Address        string   `yaml:"address"`         // host or host:port of the bulb
	Timeout        Duration `yaml:"timeout"`         // HTTP timeout per command
	SettleDelay    Duration `yaml:"settle_delay"`    // Pause after each command
	FailureBackoff Duration `yaml:"failure_backoff"` // Pause after a command could not be sent at all
	QueueSize      int      `yaml:"queue_size"`      // Outbound command queue capacity
}

// CoreConfig contains state core settings
type CoreConfig struct {
	CommandBuffer int `yaml:"command_buffer"`
}

// InputsConfig groups the input sources
type InputsConfig struct {
	RFID         RFIDConfig         `yaml:"rfid"`
	Button       ButtonConfig       `yaml:"button"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Sync         SyncConfig         `yaml:"sync"`
}

// RFIDConfig contains RFID poller settings
type RFIDConfig struct {
	Interval    Duration `yaml:"interval"`     // Poll period
	PresenceTTL Duration `yaml:"presence_ttl"` // How long a pushed tag stays in the field
}

// ButtonConfig contains button poller settings
type ButtonConfig struct {
	Interval      Duration `yaml:"interval"`
	LongPress     Duration `yaml:"long_press"`      // Hold time that clears the marker
	ToggleOnPress bool     `yaml:"toggle_on_press"` // Toggle on the press edge, no long press gesture
}

// GetLongPress returns the long press threshold, zero when toggling on press
func (c *ButtonConfig) GetLongPress() time.Duration {
	if c.ToggleOnPress {
		return 0
	}
	return c.LongPress.Duration()
}

// ConnectivityConfig contains link monitor settings
type ConnectivityConfig struct {
	Address  string   `yaml:"address"` // Probe target, defaults to the bulb address
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
}

// SyncConfig contains periodic resync settings
type SyncConfig struct {
	Interval Duration `yaml:"interval"`
}

// LEDConfig contains LED pattern timing
type LEDConfig struct {
	Refresh      Duration `yaml:"refresh"`
	FlashOn      Duration `yaml:"flash_on"`
	FlashOff     Duration `yaml:"flash_off"`
	FlashCycle   Duration `yaml:"flash_cycle"`
	SlowBlinkOn  Duration `yaml:"slow_blink_on"`
	SlowBlinkOff Duration `yaml:"slow_blink_off"`
	ButtonFlash  Duration `yaml:"button_flash"`
}

// GPIOConfig contains BCM pin assignments
type GPIOConfig struct {
	Enabled         bool `yaml:"enabled"` // If false, use a virtual button and a log-only LED
	ButtonPin       int  `yaml:"button_pin"`
	ButtonActiveLow bool `yaml:"button_active_low"`
	LEDPin          int  `yaml:"led_pin"`
	LEDActiveLow    bool `yaml:"led_active_low"`
}

// WebhookConfig contains HTTP control server settings
type WebhookConfig struct {
	Enabled bool    `yaml:"enabled"`
	Host    string  `yaml:"host"`
	Port    int     `yaml:"port"`
	TagRate float64 `yaml:"tag_rate"` // Max POST /api/tags per second
}

// MQTTConfig contains broker settings
type MQTTConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Broker         string   `yaml:"broker"`
	ClientID       string   `yaml:"client_id"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	QoS            int      `yaml:"qos"`
	TopicPrefix    string   `yaml:"topic_prefix"`
	ReconnectDelay Duration `yaml:"reconnect_delay"`
	MaxReconnect   Duration `yaml:"max_reconnect"`
}

// InfluxDBConfig contains telemetry settings
type InfluxDBConfig struct {
	Enabled       bool     `yaml:"enabled"`
	URL           string   `yaml:"url"`
	Token         string   `yaml:"token"`
	Org           string   `yaml:"org"`
	Bucket        string   `yaml:"bucket"`
	BatchSize     int      `yaml:"batch_size"`
	FlushInterval Duration `yaml:"flush_interval"`
	Device        string   `yaml:"device"` // Tag value identifying this device
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains audit ledger settings
type LedgerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// GetRetention returns the retention window
func (c *LedgerConfig) GetRetention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 2)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 64)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 2
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 64
	}
	return c.QueueSize
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	Format string `yaml:"format"` // console or json
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and applies defaults
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./markerd.sqlite"
	}

	// Bulb defaults
	if cfg.Bulb.Address == "" {
		cfg.Bulb.Address = "192.168.2.2"
	}
	if cfg.Bulb.Timeout == 0 {
		cfg.Bulb.Timeout = Duration(5 * time.Second)
	}
	if cfg.Bulb.SettleDelay == 0 {
		cfg.Bulb.SettleDelay = Duration(500 * time.Millisecond)
	}
	if cfg.Bulb.FailureBackoff == 0 {
		cfg.Bulb.FailureBackoff = Duration(2 * time.Second)
	}
	if cfg.Bulb.QueueSize <= 0 {
		cfg.Bulb.QueueSize = 8
	}

	if cfg.Core.CommandBuffer <= 0 {
		cfg.Core.CommandBuffer = 16
	}

	// Input defaults
	if cfg.Inputs.RFID.Interval == 0 {
		cfg.Inputs.RFID.Interval = Duration(10 * time.Millisecond)
	}
	if cfg.Inputs.RFID.PresenceTTL == 0 {
		cfg.Inputs.RFID.PresenceTTL = Duration(250 * time.Millisecond)
	}
	if cfg.Inputs.Button.Interval == 0 {
		cfg.Inputs.Button.Interval = Duration(100 * time.Millisecond)
	}
	if cfg.Inputs.Button.LongPress == 0 {
		cfg.Inputs.Button.LongPress = Duration(2 * time.Second)
	}
	if cfg.Inputs.Connectivity.Address == "" {
		cfg.Inputs.Connectivity.Address = cfg.Bulb.Address
	}
	if cfg.Inputs.Connectivity.Interval == 0 {
		cfg.Inputs.Connectivity.Interval = Duration(5 * time.Second)
	}
	if cfg.Inputs.Connectivity.Timeout == 0 {
		cfg.Inputs.Connectivity.Timeout = Duration(time.Second)
	}
	if cfg.Inputs.Sync.Interval == 0 {
		cfg.Inputs.Sync.Interval = Duration(10 * time.Second)
	}

	// LED defaults
	if cfg.LED.Refresh == 0 {
		cfg.LED.Refresh = Duration(10 * time.Millisecond)
	}
	if cfg.LED.FlashOn == 0 {
		cfg.LED.FlashOn = Duration(100 * time.Millisecond)
	}
	if cfg.LED.FlashOff == 0 {
		cfg.LED.FlashOff = Duration(100 * time.Millisecond)
	}
	if cfg.LED.FlashCycle == 0 {
		cfg.LED.FlashCycle = Duration(300 * time.Millisecond)
	}
	if cfg.LED.SlowBlinkOn == 0 {
		cfg.LED.SlowBlinkOn = Duration(500 * time.Millisecond)
	}
	if cfg.LED.SlowBlinkOff == 0 {
		cfg.LED.SlowBlinkOff = Duration(1500 * time.Millisecond)
	}
	if cfg.LED.ButtonFlash == 0 {
		cfg.LED.ButtonFlash = Duration(150 * time.Millisecond)
	}

	// GPIO defaults (BCM numbering)
	if cfg.GPIO.ButtonPin == 0 {
		cfg.GPIO.ButtonPin = 17
	}
	if cfg.GPIO.LEDPin == 0 {
		cfg.GPIO.LEDPin = 27
	}

	// Webhook defaults
	if cfg.Webhook.Host == "" {
		cfg.Webhook.Host = "0.0.0.0"
	}
	if cfg.Webhook.Port == 0 {
		cfg.Webhook.Port = 8080
	}
	if cfg.Webhook.TagRate == 0 {
		cfg.Webhook.TagRate = 5
	}

	// MQTT defaults
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "markerd"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "markerd"
	}
	if cfg.MQTT.ReconnectDelay == 0 {
		cfg.MQTT.ReconnectDelay = Duration(2 * time.Second)
	}
	if cfg.MQTT.MaxReconnect == 0 {
		cfg.MQTT.MaxReconnect = Duration(time.Minute)
	}

	// InfluxDB defaults
	if cfg.InfluxDB.BatchSize <= 0 {
		cfg.InfluxDB.BatchSize = 100
	}
	if cfg.InfluxDB.FlushInterval == 0 {
		cfg.InfluxDB.FlushInterval = Duration(10 * time.Second)
	}
	if cfg.InfluxDB.Device == "" {
		cfg.InfluxDB.Device = "markerd"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate reports every invalid setting
func (cfg *Config) Validate() error {
	var errs []error

	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS))
	}
	if cfg.LED.FlashCycle < cfg.LED.FlashOn+cfg.LED.FlashOff {
		errs = append(errs, errors.New("led.flash_cycle must cover flash_on + flash_off"))
	}
	if cfg.Inputs.Button.LongPress < 0 {
		errs = append(errs, errors.New("inputs.button.long_press must not be negative"))
	}
	if cfg.InfluxDB.Enabled && (cfg.InfluxDB.URL == "" || cfg.InfluxDB.Bucket == "") {
		errs = append(errs, errors.New("influxdb.url and influxdb.bucket are required when enabled"))
	}
	if cfg.Ledger.RetentionDays < 0 {
		errs = append(errs, errors.New("ledger.retention_days must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
