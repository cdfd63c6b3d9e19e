package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Grid      GridConfig      `mapstructure:"grid"`
	Timeline  TimelineConfig  `mapstructure:"timeline"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	AllowOrigins string `mapstructure:"allow_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	// ConsumerIdle is how long the server keeps a view consumer whose
	// instance went away without unsubscribing.
	ConsumerIdle time.Duration `mapstructure:"consumer_idle"`
}

type ValkeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Prefix  string `mapstructure:"prefix"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type GridConfig struct {
	ID            string  `mapstructure:"id"`
	InitialLat    float64 `mapstructure:"initial_lat"`
	InitialLng    float64 `mapstructure:"initial_lng"`
	InitialZoom   int     `mapstructure:"initial_zoom"`
	BaseLayerURL  string  `mapstructure:"base_layer_url"`
	BaseLayerAttr string  `mapstructure:"base_layer_attribution"`
	// StyleTimeout installs the wildcard style when layer discovery has not
	// happened in time. Zero waits forever.
	StyleTimeout  time.Duration       `mapstructure:"style_timeout"`
	FetchTimeout  time.Duration       `mapstructure:"fetch_timeout"`
	TileCacheTTL  int                 `mapstructure:"tile_cache_ttl"`
	PrewarmRadius float64             `mapstructure:"prewarm_radius_m"`
	Sources       []domain.TileSource `mapstructure:"sources"`
}

// InitialView returns the configured starting view state.
func (g GridConfig) InitialView() domain.ViewState {
	return domain.ViewState{
		Center: domain.GeoPoint{Lat: g.InitialLat, Lng: g.InitialLng},
		Zoom:   g.InitialZoom,
	}
}

type TimelineConfig struct {
	FirstYear int           `mapstructure:"first_year"`
	LastYear  int           `mapstructure:"last_year"`
	Interval  time.Duration `mapstructure:"interval"`
}

const sourceHost = "https://nvdi-index-mtiles.onrender.com/data/"

// DefaultSources are the yearly NDVI tile sets shown by the grid.
func DefaultSources() []domain.TileSource {
	years := []int{2024, 2017, 2018, 2019, 2020, 2021, 2022, 2023}
	sources := make([]domain.TileSource, 0, len(years))
	for _, y := range years {
		id := fmt.Sprintf("%d", y)
		sources = append(sources, domain.TileSource{
			ID:          id,
			Title:       id + " NDVI",
			Year:        y,
			URLTemplate: sourceHost + id + "/{z}/{x}/{y}.pbf",
		})
	}
	return sources
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: NDVIGRID_DATABASE_HOST → database.host
	v.SetEnvPrefix("NDVIGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.allow_origins", "http://localhost:3000, http://localhost:5173")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "ndvigrid")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "ndvigrid")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.consumer_idle", "5m")
	v.SetDefault("valkey.enabled", true)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.prefix", "ndvigrid:")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "ndvi-prewarm")
	v.SetDefault("grid.id", "ndvi")
	v.SetDefault("grid.initial_lat", 9.145)
	v.SetDefault("grid.initial_lng", 40.489673)
	v.SetDefault("grid.initial_zoom", 5)
	v.SetDefault("grid.base_layer_url", "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("grid.base_layer_attribution", "&copy; OpenStreetMap contributors")
	v.SetDefault("grid.style_timeout", "0s")
	v.SetDefault("grid.fetch_timeout", "10s")
	v.SetDefault("grid.tile_cache_ttl", 3600)
	v.SetDefault("grid.prewarm_radius_m", 50000)
	v.SetDefault("grid.sources", sourceMaps(DefaultSources()))
	v.SetDefault("timeline.first_year", 2017)
	v.SetDefault("timeline.last_year", 2025)
	v.SetDefault("timeline.interval", "2s")
}

func sourceMaps(sources []domain.TileSource) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(sources))
	for _, s := range sources {
		out = append(out, map[string]interface{}{
			"id":    s.ID,
			"title": s.Title,
			"year":  s.Year,
			"url":   s.URLTemplate,
		})
	}
	return out
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.NATS.Enabled && c.NATS.ConsumerIdle <= 0 {
		errs = append(errs, "nats.consumer_idle must be positive")
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Temporal.Enabled && (c.Temporal.HostPort == "" || c.Temporal.TaskQueue == "") {
		errs = append(errs, "temporal.host_port and temporal.task_queue are required")
	}

	errs = append(errs, c.Grid.validate()...)

	if c.Timeline.FirstYear > c.Timeline.LastYear {
		errs = append(errs, fmt.Sprintf("timeline.first_year %d is after last_year %d", c.Timeline.FirstYear, c.Timeline.LastYear))
	}
	if c.Timeline.Interval <= 0 {
		errs = append(errs, "timeline.interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (g GridConfig) validate() []string {
	var errs []string
	if g.ID == "" {
		errs = append(errs, "grid.id is required")
	}
	if strings.ContainsAny(g.ID, ".*> ") {
		errs = append(errs, fmt.Sprintf("grid.id %q must not contain '.', '*', '>' or spaces", g.ID))
	}
	if g.InitialLat < -90 || g.InitialLat > 90 || g.InitialLng < -180 || g.InitialLng > 180 {
		errs = append(errs, fmt.Sprintf("grid initial center (%v, %v) is out of range", g.InitialLat, g.InitialLng))
	}
	if g.InitialZoom < 0 || g.InitialZoom > 22 {
		errs = append(errs, fmt.Sprintf("grid.initial_zoom must be 0-22, got %d", g.InitialZoom))
	}
	if g.StyleTimeout < 0 {
		errs = append(errs, "grid.style_timeout must not be negative")
	}
	if g.TileCacheTTL < 0 {
		errs = append(errs, "grid.tile_cache_ttl must not be negative")
	}

	seen := make(map[string]bool)
	for i, s := range g.Sources {
		if s.ID == "" {
			errs = append(errs, fmt.Sprintf("grid.sources[%d].id is required", i))
		} else if seen[s.ID] {
			errs = append(errs, fmt.Sprintf("grid.sources[%d].id %q is duplicated", i, s.ID))
		}
		seen[s.ID] = true
		if u, err := url.Parse(s.URLTemplate); err != nil || u.Host == "" {
			errs = append(errs, fmt.Sprintf("grid.sources[%d].url %q is not an absolute URL", i, s.URLTemplate))
		}
	}
	return errs
}
