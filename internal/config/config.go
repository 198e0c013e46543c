package config

import (
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Protocol variants spoken by the panel
const (
	ProtocolEnvelope = "envelope" // {set_temp} + {refresh}, typed data/defaults replies
	ProtocolFlat     = "flat"     // {setTemp}, flat replies
)

// Config holds application configuration
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Panel  PanelConfig  `yaml:"panel"`
	Device DeviceConfig `yaml:"device"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// PanelConfig contains settings for the terminal panel
type PanelConfig struct {
	// Host of the device; the socket URL is ws://<host>/ws
	Host           string   `yaml:"host"`
	ReconnectDelay Duration `yaml:"reconnect_delay"`
	Protocol       string   `yaml:"protocol"`
	Render         bool     `yaml:"render"`
}

// DeviceConfig contains settings for the tub controller daemon
type DeviceConfig struct {
	Port      int    `yaml:"port"`
	DataDir   string `yaml:"data_dir"`
	StaticDir string `yaml:"static_dir"`

	MinTemp     int `yaml:"min_temp"`
	MaxTemp     int `yaml:"max_temp"`
	DefaultTemp int `yaml:"default_temp"`

	TempInterval        Duration `yaml:"temp_interval"`
	DriftDegrees        float64  `yaml:"drift_degrees"`
	DriftTime           Duration `yaml:"drift_time"`
	Cooldown            Duration `yaml:"cooldown"`
	CirculationInterval Duration `yaml:"circulation_interval"`
	CirculationRun      Duration `yaml:"circulation_run"`

	// Heating model
	AmbientTemp float64 `yaml:"ambient_temp"`
	StartTemp   float64 `yaml:"start_temp"`
	HeatRate    float64 `yaml:"heat_rate"` // °F per minute while heating
	LossRate    float64 `yaml:"loss_rate"` // fraction of (temp - ambient) lost per minute

	ClientRateLimit float64  `yaml:"client_rate_limit"` // inbound messages per second per client
	ClientBurst     int      `yaml:"client_burst"`
	LogRetention    Duration `yaml:"log_retention"`
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

// MarshalYAML implements yaml.Marshaler for Duration
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".tubpanel")

	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Panel: PanelConfig{
			Host:           "localhost",
			ReconnectDelay: Duration(2 * time.Second),
			Protocol:       ProtocolEnvelope,
			Render:         true,
		},
		Device: DeviceConfig{
			Port:                80,
			DataDir:             dataDir,
			StaticDir:           "./web/dist",
			MinTemp:             40,
			MaxTemp:             106,
			DefaultTemp:         100,
			TempInterval:        Duration(5 * time.Second),
			DriftDegrees:        1,
			DriftTime:           Duration(5 * time.Minute),
			Cooldown:            Duration(10 * time.Minute),
			CirculationInterval: Duration(4 * time.Hour),
			CirculationRun:      Duration(30 * time.Minute),
			AmbientTemp:         60,
			StartTemp:           98,
			HeatRate:            0.5,
			LossRate:            0.002,
			ClientRateLimit:     10,
			ClientBurst:         20,
			LogRetention:        Duration(30 * 24 * time.Hour),
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults repairs zero or invalid values left by a partial file
func (c *Config) applyDefaults() {
	def := DefaultConfig()

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Panel.Host == "" {
		c.Panel.Host = def.Panel.Host
	}
	if c.Panel.ReconnectDelay <= 0 {
		c.Panel.ReconnectDelay = def.Panel.ReconnectDelay
	}
	if c.Panel.Protocol != ProtocolFlat {
		c.Panel.Protocol = ProtocolEnvelope
	}
	if c.Device.Port == 0 {
		c.Device.Port = def.Device.Port
	}
	if c.Device.DataDir == "" {
		c.Device.DataDir = def.Device.DataDir
	}
	if c.Device.MinTemp == 0 && c.Device.MaxTemp == 0 {
		c.Device.MinTemp, c.Device.MaxTemp = def.Device.MinTemp, def.Device.MaxTemp
	}
	if c.Device.DefaultTemp < c.Device.MinTemp || c.Device.DefaultTemp > c.Device.MaxTemp {
		c.Device.DefaultTemp = clamp(def.Device.DefaultTemp, c.Device.MinTemp, c.Device.MaxTemp)
	}
	if c.Device.TempInterval <= 0 {
		c.Device.TempInterval = def.Device.TempInterval
	}
	if c.Device.ClientRateLimit <= 0 {
		c.Device.ClientRateLimit = def.Device.ClientRateLimit
	}
	if c.Device.ClientBurst <= 0 {
		c.Device.ClientBurst = def.Device.ClientBurst
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Save writes configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// EnsureDataDir creates the device data directory if it doesn't exist
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.Device.DataDir, 0755)
}

// DatabasePath returns the path to the SQLite database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Device.DataDir, "tubd.db")
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
