package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/userservice/userservice/internal/database"
)

// this is a pointer so that if someone attempts to use it before loading it will
// panic and force them to load it first.
// it is also private so that it cannot be modified after loading.
var _loaded *Config

// Config is the main configuration structure
type Config struct {
	Common Common `yaml:"common"`
}

// Load loads the configuration following proper precedence: defaults → config file → .env → environment variables
func Load() {
	LoadWithFile("")
}

// LoadWithFile is Load with an explicit config file path. An empty path falls
// back to USERS_CONFIG_FILE and then to users.yaml.
func LoadWithFile(configFile string) {
	// Start with defaults
	config := defaultConfig
	_loaded = &config

	if configFile == "" {
		configFile = os.Getenv("USERS_CONFIG_FILE")
	}
	if configFile == "" {
		configFile = "users.yaml"
	}

	log.Printf("Attempting to load config file: %s", configFile)

	if err := LoadFromFile(configFile); err != nil {
		log.Printf("Failed to load config file: %v, using defaults", err)
	} else {
		log.Printf("Successfully loaded config from file: %s", configFile)
	}

	// .env values never override variables already present in the environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to load .env file: %v", err)
	}

	// Apply environment variable overrides (highest priority)
	ApplyEnvOverrides()

	log.Printf("Final config - DB Host: %s, DB Database: %s, Cache backend: %s, Store: %s",
		_loaded.Common.Postgres.Host,
		_loaded.Common.Postgres.Database,
		_loaded.Common.Cache.Backend,
		_loaded.Common.Store.Type)
}

func LoadDefault() {
	config := defaultConfig
	_loaded = &config
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults
	cfg := defaultConfig

	// Merge YAML values over defaults
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	_loaded = &cfg
	return nil
}

// set sane defaults for all of the config options. when loading the config from
// the file, any options that are not set will be set to these defaults.
var defaultConfig = Config{
	Common: Common{
		Log: logConfig{
			Level:  "info",
			Format: "json",
		},
		Http: httpConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			MaxRequestSize: 1048576,
		},
		Store: storeConfig{
			Type: StoreTypePostgres,
		},
		Postgres: postgresConfig{
			postgresConfigCommon: postgresConfigCommon{
				User:               "postgres",
				Password:           "password",
				Host:               "localhost",
				Port:               5432,
				Database:           "user_db",
				Driver:             database.DriverPgdriver,
				ReadTimeout:        30,
				WriteTimeout:       30,
				MaxOpenConnections: 10,
			},
		},
		Redis: redisConfig{
			Host:     "localhost",
			Port:     6379,
			Password: "",
			Database: 0,
		},
		Cache: cacheConfig{
			Backend:                  CacheBackendRedis,
			Prefix:                   "users_cache",
			TTLSeconds:               60,
			InvalidateTimeoutSeconds: 2,
		},
	},
}

// Store backends
const (
	StoreTypePostgres = "postgres"
	StoreTypeMemory   = "memory"
)

// Cache backends
const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
	CacheBackendNone   = "none"
)

type Common struct {
	Log      logConfig      `yaml:"log"`
	Http     httpConfig     `yaml:"http"`
	Store    storeConfig    `yaml:"store"`
	Postgres postgresConfig `yaml:"postgres"`
	Redis    redisConfig    `yaml:"redis"`
	Cache    cacheConfig    `yaml:"cache"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type httpConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxRequestSize int64  `yaml:"max_request_size"`
}

type storeConfig struct {
	Type string `yaml:"type"` // "postgres" or "memory"
}

type postgresConfigCommon struct {
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Database           string `yaml:"database"`
	Driver             string `yaml:"driver"` // "pgdriver" or "pgx"
	ReadTimeout        int    `yaml:"read_timeout"`
	WriteTimeout       int    `yaml:"write_timeout"`
	MaxOpenConnections int    `yaml:"max_open_connections"`
}

func (c postgresConfigCommon) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		url.QueryEscape(c.Database),
	)
}

type postgresConfig struct {
	postgresConfigCommon `yaml:",inline"`
}

type redisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
}

func (c redisConfig) DSN() string {
	if c.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d", url.QueryEscape(c.Password), c.Host, c.Port, c.Database)
	}
	return fmt.Sprintf("redis://%s:%d/%d", c.Host, c.Port, c.Database)
}

type cacheConfig struct {
	Backend                  string `yaml:"backend"` // "redis", "memory" or "none"
	Prefix                   string `yaml:"prefix"`
	TTLSeconds               int    `yaml:"ttl_seconds"`
	InvalidateTimeoutSeconds int    `yaml:"invalidate_timeout_seconds"`
}

// TTL is the expiry applied to every cached read.
func (c cacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// InvalidateTimeout bounds how long a write waits on cache invalidation.
func (c cacheConfig) InvalidateTimeout() time.Duration {
	if c.InvalidateTimeoutSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.InvalidateTimeoutSeconds) * time.Second
}

// there should be a getter for each top level field in the config struct.
// these getters will panic if the config has not been loaded.

func Logger() logConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Log
}

func Http() httpConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Http
}

func Store() storeConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Store
}

func Postgres() postgresConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Postgres
}

func Redis() redisConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Redis
}

func Cache() cacheConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Cache
}

func Get() *Config {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded
}

func ApplyEnvOverrides() {
	if _loaded == nil {
		return
	}

	if logLevel := os.Getenv("USERS_LOG_LEVEL"); logLevel != "" {
		_loaded.Common.Log.Level = logLevel
	}
	if logFormat := os.Getenv("USERS_LOG_FORMAT"); logFormat != "" {
		_loaded.Common.Log.Format = logFormat
	}

	if storeType := os.Getenv("USERS_STORE_TYPE"); storeType != "" {
		_loaded.Common.Store.Type = storeType
	}

	if dbHost := os.Getenv("USERS_DB_HOST"); dbHost != "" {
		_loaded.Common.Postgres.Host = dbHost
	}
	if dbPort := os.Getenv("USERS_DB_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			_loaded.Common.Postgres.Port = port
		}
	}
	if dbUser := os.Getenv("USERS_DB_USER"); dbUser != "" {
		_loaded.Common.Postgres.User = dbUser
	}
	if dbPassword := os.Getenv("USERS_DB_PASSWORD"); dbPassword != "" {
		_loaded.Common.Postgres.Password = dbPassword
	}
	if dbName := os.Getenv("USERS_DB_NAME"); dbName != "" {
		_loaded.Common.Postgres.Database = dbName
	}
	if dbDriver := os.Getenv("USERS_DB_DRIVER"); dbDriver != "" {
		_loaded.Common.Postgres.Driver = dbDriver
	}

	if redisHost := os.Getenv("USERS_REDIS_HOST"); redisHost != "" {
		_loaded.Common.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("USERS_REDIS_PORT"); redisPort != "" {
		if port, err := strconv.Atoi(redisPort); err == nil {
			_loaded.Common.Redis.Port = port
		}
	}
	if redisPassword := os.Getenv("USERS_REDIS_PASSWORD"); redisPassword != "" {
		_loaded.Common.Redis.Password = redisPassword
	}

	if ttl := os.Getenv("USERS_CACHE_TTL_SECONDS"); ttl != "" {
		if seconds, err := strconv.Atoi(ttl); err == nil {
			_loaded.Common.Cache.TTLSeconds = seconds
		}
	}
	if prefix := os.Getenv("USERS_CACHE_PREFIX"); prefix != "" {
		_loaded.Common.Cache.Prefix = prefix
	}
	if backend := os.Getenv("USERS_CACHE_BACKEND"); backend != "" {
		_loaded.Common.Cache.Backend = backend
	}
	if timeout := os.Getenv("USERS_CACHE_INVALIDATE_TIMEOUT_SECONDS"); timeout != "" {
		if seconds, err := strconv.Atoi(timeout); err == nil {
			_loaded.Common.Cache.InvalidateTimeoutSeconds = seconds
		}
	}

	if httpHost := os.Getenv("USERS_HTTP_HOST"); httpHost != "" {
		_loaded.Common.Http.Host = httpHost
	}
	if httpPort := os.Getenv("USERS_HTTP_PORT"); httpPort != "" {
		if port, err := strconv.Atoi(httpPort); err == nil {
			_loaded.Common.Http.Port = port
		}
	}
	if maxSize := os.Getenv("USERS_HTTP_MAX_REQUEST_SIZE"); maxSize != "" {
		if size, err := strconv.ParseInt(maxSize, 10, 64); err == nil {
			_loaded.Common.Http.MaxRequestSize = size
		}
	}
}
