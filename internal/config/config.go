package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/valuation-api/internal/env"
)

type Config struct {
	Environment string          `yaml:"environment" default:"development"`
	Port        int             `yaml:"port" default:"8000" validate:"gt=0,lte=65535"`
	Log         LogConfig       `yaml:"log"`
	HTTP        HTTPConfig      `yaml:"http"`
	Maps        MapsConfig      `yaml:"maps"`
	Places      PlacesConfig    `yaml:"places"`
	Valuation   ValuationConfig `yaml:"valuation"`
	Cache       CacheConfig     `yaml:"cache"`
	Redis       RedisConfig     `yaml:"redis"`
	Postgres    PostgresConfig  `yaml:"postgres"`
	Metrics     MetricsConfig   `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
}

type HTTPConfig struct {
	RateLimit       int           `yaml:"rate_limit" default:"100" validate:"gte=0"`
	RateWindow      time.Duration `yaml:"rate_window" default:"1m"`
	CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
}

type MapsConfig struct {
	// APIKeyEnv names the variable holding the key; the key itself is read per call.
	APIKeyEnv         string        `yaml:"api_key_env" default:"GOOGLE_MAPS_API_KEY" validate:"required"`
	GeocodeURL        string        `yaml:"geocode_url" default:"https://maps.googleapis.com/maps/api/geocode/json" validate:"url"`
	PlacesURL         string        `yaml:"places_url" default:"https://places.googleapis.com/v1/places:searchNearby" validate:"url"`
	Timeout           time.Duration `yaml:"timeout" default:"6s"`
	RetryMax          int           `yaml:"retry_max" default:"2" validate:"gte=0,lte=10"`
	RequestsPerSecond float64       `yaml:"requests_per_second" default:"10" validate:"gte=0"`
}

type PlacesConfig struct {
	Provider        string        `yaml:"provider" default:"google" validate:"oneof=google overpass"`
	OverpassURL     string        `yaml:"overpass_url" default:"https://overpass-api.de/api/interpreter" validate:"url"`
	OverpassTimeout time.Duration `yaml:"overpass_timeout" default:"25s"`
	DefaultRadius   float64       `yaml:"default_radius" default:"3000" validate:"gt=0"`
}

type ValuationConfig struct {
	Model       string `yaml:"model" default:"linear" validate:"oneof=linear gbt"`
	DatasetPath string `yaml:"dataset_path" validate:"required_if=Model gbt"`
}

type CacheConfig struct {
	TTL            time.Duration `yaml:"ttl" default:"24h"`
	StaleAfter     time.Duration `yaml:"stale_after" default:"6h"`
	NegativeTTL    time.Duration `yaml:"negative_ttl" default:"10m"`
	RefreshWorkers int           `yaml:"refresh_workers" default:"2" validate:"gte=1"`
	RefreshQueue   int           `yaml:"refresh_queue" default:"256" validate:"gte=1"`
	MaxEntries     int           `yaml:"max_entries" default:"10000" validate:"gte=1"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

var validate = validator.New()

// Load applies defaults, then the optional YAML file, then .env and the
// process environment, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c := &Config{}
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if path == "" {
		path = env.Get("CONFIG_FILE", "")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	c.Environment = env.Get("ENVIRONMENT", c.Environment)
	c.Port = env.GetInt("PORT", c.Port)
	c.Log.Level = env.Get("LOG_LEVEL", c.Log.Level)
	c.Log.Format = env.Get("LOG_FORMAT", c.Log.Format)

	c.HTTP.RateLimit = env.GetInt("RATE_LIMIT_PER_MINUTE", c.HTTP.RateLimit)
	c.HTTP.CORSOrigins = env.List("CORS_ORIGINS", c.HTTP.CORSOrigins)

	c.Maps.APIKeyEnv = env.Get("MAPS_API_KEY_ENV", c.Maps.APIKeyEnv)
	c.Maps.GeocodeURL = env.Get("GEOCODE_URL", c.Maps.GeocodeURL)
	c.Maps.PlacesURL = env.Get("PLACES_URL", c.Maps.PlacesURL)
	c.Maps.Timeout = env.GetDuration("MAPS_TIMEOUT", c.Maps.Timeout)
	c.Maps.RetryMax = env.GetInt("MAPS_RETRY_MAX", c.Maps.RetryMax)
	c.Maps.RequestsPerSecond = env.GetFloat("MAPS_RPS", c.Maps.RequestsPerSecond)

	c.Places.Provider = env.Get("PLACES_PROVIDER", c.Places.Provider)
	c.Places.OverpassURL = env.Get("OVERPASS_URL", c.Places.OverpassURL)

	c.Valuation.Model = env.Get("VALUATION_MODEL", c.Valuation.Model)
	c.Valuation.DatasetPath = env.Get("VALUATION_DATASET", c.Valuation.DatasetPath)

	c.Cache.TTL = env.GetDuration("CACHE_TTL", c.Cache.TTL)
	c.Cache.StaleAfter = env.GetDuration("CACHE_STALE_AFTER", c.Cache.StaleAfter)
	c.Cache.NegativeTTL = env.GetDuration("CACHE_NEGATIVE_TTL", c.Cache.NegativeTTL)

	c.Redis.Addr = env.Get("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = env.Get("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = env.GetInt("REDIS_DB", c.Redis.DB)
	c.Postgres.DSN = env.Get("PG_DSN", c.Postgres.DSN)

	c.Metrics.Enabled = env.GetBool("METRICS_ENABLED", c.Metrics.Enabled)
}

func (c *Config) Validate() error {
	return validate.Struct(c)
}

func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }
