package config

import (
	"fmt"
	"time"

	"github.com/backplot/backplot/internal/backplot"
	"github.com/backplot/backplot/internal/units"
	"github.com/backplot/backplot/pkg/canon"
	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "backplot.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds sqlite backend settings
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// PostgresConfig holds postgres connection settings
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// StorageConfig selects and configures the plot archive backend
type StorageConfig struct {
	Type     string         `json:"type" mapstructure:"type"`
	Memory   MemoryConfig   `json:"memory" mapstructure:"memory"`
	SQLite   SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// InfluxConfig holds tool position time series settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL returns the server address.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// OTelConfig holds OpenTelemetry exporter settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// MonitorConfig holds the status poll loop settings
type MonitorConfig struct {
	PollInterval time.Duration `json:"pollInterval" mapstructure:"pollInterval"`
	// OffsetEvery polls offsets on every Nth tick.
	OffsetEvery int `json:"offsetEvery" mapstructure:"offsetEvery"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("logFormat", "text")

	viper.SetDefault("machine.units", "")
	viper.SetDefault("machine.interpreterUnits", "inch")
	viper.SetDefault("machine.parameterFile", "")
	viper.SetDefault("machine.startupCode", "")
	viper.SetDefault("machine.arcResolution", 0.1)
	viper.SetDefault("machine.toolTable", "")

	viper.SetDefault("monitor.pollInterval", "100ms")
	viper.SetDefault("monitor.offsetEvery", 10)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./plots")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./plots/backplot.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "backplot")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "backplot")
	viper.SetDefault("influx.bucket", "toolpath")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "backplot")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat returns a float config value.
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// GetSettings builds the session settings. A missing or unknown display unit
// yields metric together with units.ErrUnitConfigurationMissing, which callers
// log and otherwise ignore.
func GetSettings() (backplot.Settings, error) {
	s := backplot.Settings{
		ParameterFile: viper.GetString("machine.parameterFile"),
		StartupCode:   viper.GetString("machine.startupCode"),
		Palette:       GetPalette(),
	}

	native, err := units.ParseMode(viper.GetString("machine.interpreterUnits"))
	if err != nil {
		native = units.Imperial
	}
	s.InterpreterUnits = native

	display, err := units.ParseMode(viper.GetString("machine.units"))
	s.Units = display
	return s, err
}

// GetPalette returns the default palette with any "palette.<kind>" [r,g,b,a]
// entries applied.
func GetPalette() canon.Palette {
	p := canon.DefaultPalette()
	for _, k := range canon.MotionKinds {
		v := viper.GetIntSlice("palette." + k.String())
		if len(v) != 4 {
			continue
		}
		p[k] = canon.Color{R: uint8(v[0]), G: uint8(v[1]), B: uint8(v[2]), A: uint8(v[3])}
	}
	return p
}

// GetStorageConfig returns the storage section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
		},
	}
}

// GetInfluxConfig returns the influx section.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetOTelConfig returns the otel section.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetMonitorConfig returns the monitor section.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval: viper.GetDuration("monitor.pollInterval"),
		OffsetEvery:  viper.GetInt("monitor.offsetEvery"),
	}
}
