package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sparks1372/octopus-consumption-exporter/internal/models"
)

// Config holds all configuration for the exporter. It is built once at startup
// and never mutated afterwards.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Meters   MetersConfig   `mapstructure:"meters"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
}

type APIConfig struct {
	Key       string        `mapstructure:"key"`
	BaseURL   string        `mapstructure:"base_url"`
	PageSize  int           `mapstructure:"page_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	RateBurst int           `mapstructure:"rate_burst"`
}

type MetersConfig struct {
	Electricity MeterConfig    `mapstructure:"electricity"`
	Export      MeterConfig    `mapstructure:"export"`
	Gas         GasMeterConfig `mapstructure:"gas"`
}

// MeterConfig identifies an electricity meter by its MPAN and serial number.
type MeterConfig struct {
	MPAN   string `mapstructure:"mpan"`
	Serial string `mapstructure:"serial"`
}

// GasMeterConfig identifies a gas meter. VolumeCorrectionFactor converts the
// meter's volume readings into corrected consumption.
type GasMeterConfig struct {
	MPRN                   string  `mapstructure:"mprn"`
	Serial                 string  `mapstructure:"serial"`
	VolumeCorrectionFactor float64 `mapstructure:"volume_correction_factor"`
}

type SyncConfig struct {
	StartDate string `mapstructure:"start_date"`
	Schedule  string `mapstructure:"schedule"`
}

type DatabaseConfig struct {
	Driver            string `mapstructure:"driver"`
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	Name              string `mapstructure:"name"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	SSLMode           string `mapstructure:"ssl_mode"`
	ConnectionTimeout int    `mapstructure:"connection_timeout"`
	Path              string `mapstructure:"path"`
	Hypertable        bool   `mapstructure:"hypertable"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

type HealthConfig struct {
	Listen string `mapstructure:"listen"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// envBindings maps config keys to the environment variables the exporter has
// always been configured with.
var envBindings = map[string]string{
	"api.key":                             "OCTOPUS_API_KEY",
	"meters.electricity.mpan":             "ELECTRICITY_MPAN",
	"meters.electricity.serial":           "ELECTRICITY_SERIAL_NO",
	"meters.export.mpan":                  "ELECTRICITY_EXPORT_MPAN",
	"meters.export.serial":                "ELECTRICITY_EXPORT_SERIAL_NO",
	"meters.gas.mprn":                     "GAS_MPAN",
	"meters.gas.serial":                   "GAS_SERIAL_NO",
	"meters.gas.volume_correction_factor": "VOLUME_CORRECTION_FACTOR",
	"sync.start_date":                     "SERIES_START_DATE",
	"database.host":                       "DB_HOST",
	"database.port":                       "DB_PORT",
	"database.user":                       "DB_USER",
	"database.password":                   "DB_PASSWORD",
	"database.name":                       "DB_NAME",
}

// Load reads configuration from an optional YAML file and the environment.
// Environment variables referenced as $VAR inside the file are expanded, and
// the bound variables in envBindings override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// First unmarshal into a map to normalise the document
		var rawConfig map[string]interface{}
		if err := yaml.Unmarshal(data, &rawConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal raw config: %w", err)
		}

		data, err = yaml.Marshal(rawConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal raw config: %w", err)
		}

		expandedData := os.ExpandEnv(string(data))

		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(expandedData)); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://api.octopus.energy/v1")
	v.SetDefault("api.page_size", 0)
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.rate_limit", 5.0)
	v.SetDefault("api.rate_burst", 10)

	v.SetDefault("sync.schedule", "0 2 * * *")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "energy")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.connection_timeout", 5)
	v.SetDefault("database.path", "energy.db")
	v.SetDefault("database.hypertable", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.listen", ":2112")
	v.SetDefault("health.listen", "")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.client_id", "octopus-consumption-exporter")
	v.SetDefault("mqtt.topic_prefix", "octopus")
}

// Validate checks the settings every cycle depends on. Per-meter settings are
// checked by the meter types when their series is synced.
func (c *Config) Validate() error {
	if c.API.Key == "" {
		return fmt.Errorf("%w: no Octopus API key set", models.ErrConfiguration)
	}
	if _, err := url.Parse(c.API.BaseURL); err != nil || c.API.BaseURL == "" {
		return fmt.Errorf("%w: invalid api base url %q", models.ErrConfiguration, c.API.BaseURL)
	}
	if c.API.RateLimit <= 0 || c.API.RateBurst <= 0 {
		return fmt.Errorf("%w: api rate limit and burst must be positive", models.ErrConfiguration)
	}
	if c.Meters.Gas.VolumeCorrectionFactor < 0 {
		return fmt.Errorf("%w: volume correction factor must not be negative", models.ErrConfiguration)
	}
	if _, _, err := c.Sync.StartTime(); err != nil {
		return err
	}
	if c.Sync.Schedule == "" {
		return fmt.Errorf("%w: no sync schedule set", models.ErrConfiguration)
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("%w: database host and name are required", models.ErrConfiguration)
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database path is required for sqlite", models.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown database driver %q (available: postgres, sqlite)", models.ErrConfiguration, c.Database.Driver)
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("%w: mqtt broker address is required when enabled", models.ErrConfiguration)
	}

	return nil
}

// DSN returns the data source name for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}

	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	if d.ConnectionTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(d.ConnectionTimeout))
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: q.Encode(),
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

var startDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// StartTime parses the configured series start date. The boolean is false when
// no start date is configured.
func (s SyncConfig) StartTime() (time.Time, bool, error) {
	if s.StartDate == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.RFC3339, s.StartDate); err == nil {
		return t, true, nil
	}
	for _, layout := range startDateLayouts {
		if t, err := time.ParseInLocation(layout, s.StartDate, time.Local); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%w: cannot parse series start date %q", models.ErrConfiguration, s.StartDate)
}

// Configured reports whether any identifier has been set for the meter.
func (m MeterConfig) Configured() bool {
	return m.MPAN != "" || m.Serial != ""
}

// Validate checks both identifiers are present. name is used in the message,
// e.g. "electricity".
func (m MeterConfig) Validate(name string) error {
	if m.MPAN == "" {
		return fmt.Errorf("%w: no mpan set for %s meter", models.ErrConfiguration, name)
	}
	if m.Serial == "" {
		return fmt.Errorf("%w: no serial number set for %s meter", models.ErrConfiguration, name)
	}
	return nil
}

func (g GasMeterConfig) Validate() error {
	if g.VolumeCorrectionFactor == 0 {
		return fmt.Errorf("%w: no volume correction factor set", models.ErrConfiguration)
	}
	if g.MPRN == "" {
		return fmt.Errorf("%w: no mpan set for gas meter", models.ErrConfiguration)
	}
	if g.Serial == "" {
		return fmt.Errorf("%w: no serial number set for gas meter", models.ErrConfiguration)
	}
	return nil
}
