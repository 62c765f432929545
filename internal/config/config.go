package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stereoloc/locator/internal/geo"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "locator.cfg.json"

// KeyEnv holds the shared key when it is not set in the config file.
const KeyEnv = "HM_KEY"

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address        string   `json:"address" mapstructure:"address"`
	Key            string   `json:"key" mapstructure:"key"`
	StaticDir      string   `json:"staticDir" mapstructure:"staticDir"`
	AllowedOrigins []string `json:"allowedOrigins" mapstructure:"allowedOrigins"`
}

// LocationConfig holds rendezvous and triangulation settings
type LocationConfig struct {
	Baseline             float64
	AttemptTimeout       time.Duration
	VerticalToleranceRad float64
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
	Keep           int    `json:"keep" mapstructure:"keep"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration
	DumpPath     string
}

// WebSocketConfig holds upstream websocket storage backend settings
type WebSocketConfig struct {
	URL    string
	Secret string
}

// StorageConfig holds storage backend configuration
type StorageConfig struct {
	Type      string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	WebSocket WebSocketConfig
}

// DBConfig holds PostgreSQL connection settings
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// URL returns the InfluxDB server URL.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// GraylogConfig holds GELF sink settings
type GraylogConfig struct {
	Enabled bool
	Address string
}

// APIConfig holds the upload target
type APIConfig struct {
	ServerURL string
	APIKey    string
}

// SiteConfig anchors the local frame on the earth
type SiteConfig struct {
	Enabled    bool
	Name       string
	Longitude  float64
	Latitude   float64
	Elevation  float64
	HeadingDeg float64
}

// SetDefaults registers every default value.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./locatorlogs")

	viper.SetDefault("server.address", ":3000")
	viper.SetDefault("server.key", "")
	viper.SetDefault("server.staticDir", "")
	viper.SetDefault("server.allowedOrigins", []string{})

	viper.SetDefault("location.baseline", 1.0)
	viper.SetDefault("location.attemptTimeout", "0s")
	viper.SetDefault("location.verticalToleranceDeg", 5.0)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./fixes")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.memory.keep", 1000)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./fixes/locator.db")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/v1/stream")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "locator")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "locator")
	viper.SetDefault("influx.bucket", "fixes")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "locator")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("site.enabled", false)
	viper.SetDefault("site.name", "default")
	viper.SetDefault("site.longitude", 0.0)
	viper.SetDefault("site.latitude", 0.0)
	viper.SetDefault("site.elevation", 0.0)
	viper.SetDefault("site.headingDeg", 90.0)
}

// Load sets default values, binds the environment and reads the JSON config
// file from configDir. Defaults and environment stay in effect when the file
// is missing; check with IsNotFound.
func Load(configDir string) error {
	SetDefaults()

	viper.SetEnvPrefix("LOCATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.BindEnv("server.key", KeyEnv); err != nil {
		return fmt.Errorf("error binding %s: %w", KeyEnv, err)
	}

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// IsNotFound reports whether err comes from a missing config file.
func IsNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf)
}

// GetServerConfig returns the HTTP server configuration.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Address:        viper.GetString("server.address"),
		Key:            viper.GetString("server.key"),
		StaticDir:      viper.GetString("server.staticDir"),
		AllowedOrigins: viper.GetStringSlice("server.allowedOrigins"),
	}
}

// Validate reports a location setting the engine cannot work with.
func (c LocationConfig) Validate() error {
	if err := geo.ValidateBaseline(c.Baseline); err != nil {
		return fmt.Errorf("location.baseline: %w", err)
	}
	if c.AttemptTimeout < 0 {
		return fmt.Errorf("location.attemptTimeout: must not be negative, got %s", c.AttemptTimeout)
	}
	return nil
}

// GetLocationConfig returns the rendezvous configuration.
func GetLocationConfig() LocationConfig {
	return LocationConfig{
		Baseline:             viper.GetFloat64("location.baseline"),
		AttemptTimeout:       viper.GetDuration("location.attemptTimeout"),
		VerticalToleranceRad: viper.GetFloat64("location.verticalToleranceDeg") * math.Pi / 180,
	}
}

// GetStorageConfig returns the storage backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
			Keep:           viper.GetInt("storage.memory.keep"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetDBConfig returns the PostgreSQL configuration.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetGraylogConfig returns the GELF sink configuration.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetAPIConfig returns the upload target configuration.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
	}
}

// GetSiteConfig returns the georeferencing configuration.
func GetSiteConfig() SiteConfig {
	return SiteConfig{
		Enabled:    viper.GetBool("site.enabled"),
		Name:       viper.GetString("site.name"),
		Longitude:  viper.GetFloat64("site.longitude"),
		Latitude:   viper.GetFloat64("site.latitude"),
		Elevation:  viper.GetFloat64("site.elevation"),
		HeadingDeg: viper.GetFloat64("site.headingDeg"),
	}
}
