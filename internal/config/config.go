package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const defaultConfigPath = "config/config.yaml"

type Config struct {
	Env     string        `yaml:"env" env:"ENV" env-default:"prod"`
	Sensor  SensorConfig  `yaml:"sensor"`
	Monitor MonitorConfig `yaml:"monitor"`
	Store   StoreConfig   `yaml:"store"`
	Health  HealthConfig  `yaml:"health"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Log     LogConfig     `yaml:"log"`
}

type SensorConfig struct {
	// Adapter selects the bus implementation: periph, i2cget or fake.
	Adapter  string        `yaml:"adapter" env:"SENSOR_ADAPTER" env-default:"periph"`
	Bus      string        `yaml:"bus" env:"SENSOR_BUS" env-default:"1"`
	Address  string        `yaml:"address" env:"SENSOR_ADDRESS" env-default:"0x44"`
	Register string        `yaml:"register" env:"SENSOR_REGISTER" env-default:"0x00"`
	Timeout  time.Duration `yaml:"timeout" env:"SENSOR_TIMEOUT" env-default:"5s"`
}

type MonitorConfig struct {
	Interval     time.Duration `yaml:"interval" env:"MONITOR_INTERVAL" env-default:"60s"`
	ShortBackoff time.Duration `yaml:"short_backoff" env:"MONITOR_SHORT_BACKOFF" env-default:"300s"`
	LongBackoff  time.Duration `yaml:"long_backoff" env:"MONITOR_LONG_BACKOFF" env-default:"1800s"`
}

type StoreConfig struct {
	Path string `yaml:"path" env:"STORE_PATH" env-default:"/persistent/free-sleep-data/free-sleep.db"`
	// MaxAge of 0 keeps readings forever.
	MaxAge time.Duration `yaml:"max_age" env:"STORE_MAX_AGE" env-default:"0s"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled" env:"HEALTH_ENABLED"`
	Address string `yaml:"address" env:"HEALTH_ADDRESS" env-default:":8080"`
}

type MQTTConfig struct {
	Enabled        bool   `yaml:"enabled" env:"MQTT_ENABLED" env-default:"false"`
	Server         string `yaml:"server" env:"MQTT_SERVER" env-default:"tcp://localhost:1883"`
	Username       string `yaml:"username" env:"MQTT_USERNAME"`
	Password       string `yaml:"password" env:"MQTT_PASSWORD"`
	ClientID       string `yaml:"client_id" env:"MQTT_CLIENT_ID"`
	StateTopic     string `yaml:"state_topic" env:"MQTT_STATE_TOPIC" env-default:"ambilight/lux"`
	DiscoveryTopic string `yaml:"discovery_topic" env:"MQTT_DISCOVERY_TOPIC"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// MustLoad reads the YAML file at configPath with env overrides. An empty
// path falls back to CONFIG_PATH and then config/config.yaml; when that
// default file does not exist the config comes from the environment alone.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func Load(configPath string) (*Config, error) {
	explicit := configPath != ""
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
		explicit = configPath != ""
	}
	if configPath == "" {
		configPath = defaultConfigPath
	}

	var cfg Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if explicit {
			return nil, errors.New("config file not found: " + configPath)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from env: %w", err)
		}
	} else if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.Sensor.AddressValue(); err != nil {
		return err
	}
	if _, err := c.Sensor.RegisterValue(); err != nil {
		return err
	}
	if c.Monitor.Interval <= 0 {
		return errors.New("monitor.interval must be > 0")
	}
	if c.Monitor.ShortBackoff < c.Monitor.Interval || c.Monitor.LongBackoff < c.Monitor.ShortBackoff {
		return errors.New("monitor backoff must satisfy interval <= short_backoff <= long_backoff")
	}
	if c.Store.MaxAge < 0 {
		return errors.New("store.max_age must be >= 0")
	}
	return nil
}

// AddressValue parses the 7-bit device address, decimal or 0x-prefixed hex.
func (s SensorConfig) AddressValue() (uint16, error) {
	v, err := strconv.ParseUint(s.Address, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid sensor.address %q: %w", s.Address, err)
	}
	if v > 0x7F {
		return 0, fmt.Errorf("invalid sensor.address %q: out of 7-bit range", s.Address)
	}
	return uint16(v), nil
}

func (s SensorConfig) RegisterValue() (byte, error) {
	v, err := strconv.ParseUint(s.Register, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid sensor.register %q: %w", s.Register, err)
	}
	return byte(v), nil
}
