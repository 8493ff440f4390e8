package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Version     string             `yaml:"version" json:"version" validate:"required"`
	Server      *ServerConfig      `yaml:"server" json:"server"`
	Logger      *LoggerConfig      `yaml:"logger" json:"logger"`
	Schema      *SchemaConfig      `yaml:"schema" json:"schema"`
	Store       *StoreConfig       `yaml:"store" json:"store"`
	Cache       *CacheConfig       `yaml:"cache" json:"cache"`
	Events      *EventsConfig      `yaml:"events" json:"events"`
	Webhooks    *WebhooksConfig    `yaml:"webhooks" json:"webhooks"`
	Cron        *CronConfig        `yaml:"cron" json:"cron"`
	Metrics     *MetricsConfig     `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig      `yaml:"health" json:"health"`
	Middlewares *MiddlewaresConfig `yaml:"middlewares" json:"middlewares"`
}

type ServerConfig struct {
	HTTP     *HTTPConfig     `yaml:"http" json:"http"`
	Upstream *UpstreamConfig `yaml:"upstream" json:"upstream"`
}

type HTTPConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     int    `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// UpstreamConfig points at the GraphQL execution service this cache
// fronts. Misses are forwarded there.
type UpstreamConfig struct {
	URL     string `yaml:"url" json:"url" validate:"required,url"`
	Timeout int    `yaml:"timeout" json:"timeout"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

type SchemaConfig struct {
	Path string `yaml:"path" json:"path" validate:"required"`
}

type StoreConfig struct {
	Enabled     bool        `yaml:"enabled" json:"enabled"`
	Type        string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	KeyPrefix   string      `yaml:"key_prefix" json:"key_prefix"`
	Compression bool        `yaml:"compression" json:"compression"`
	Config      interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	Enabled   bool `yaml:"enabled" json:"enabled"`
	TrackURLs bool `yaml:"track_urls" json:"track_urls"`
}

type EventsConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{} `yaml:"config" json:"config"`
}

type WebhooksConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	DBPath  string `yaml:"db_path" json:"db_path"`
}

type CronConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Timezone      string `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
	SweepSchedule string `yaml:"sweep_schedule" json:"sweep_schedule"`
}

type MetricsConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{} `yaml:"config" json:"config"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

type MiddlewaresConfig struct {
	Enabled  bool                  `yaml:"enabled" json:"enabled"`
	Recovery *MiddlewareItemConfig `yaml:"recovery" json:"recovery"`
	Logging  *MiddlewareItemConfig `yaml:"logging" json:"logging"`
	Cache    *MiddlewareItemConfig `yaml:"cache" json:"cache"`
}

type MiddlewareItemConfig struct {
	Enabled bool                   `yaml:"enabled" json:"enabled"`
	Weight  int                    `yaml:"weight" json:"weight" validate:"min=0"`
	Params  map[string]interface{} `yaml:"params" json:"params"`
}

type VersionInfo struct {
	Version   string `json:"version"`
	BuildInfo string `json:"build_info"`
}

const DefaultCheckTimeout = 5 * time.Second
