// Package config loads the pipeline configuration from YAML, applies
// environment overrides for connection settings and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is shared; validator caches struct metadata.
var validate = validator.New()

// Config is the whole pipeline configuration.
type Config struct {
	Location string        `yaml:"location" validate:"required"`
	Hazard   HazardConfig  `yaml:"hazard"`
	Query    QueryConfig   `yaml:"query"`
	Spline   SplineConfig  `yaml:"spline"`
	Figures  FiguresConfig `yaml:"figures"`
	Graph    GraphConfig   `yaml:"graph"`
	Volume   VolumeConfig  `yaml:"volume"`
	Engine   EngineConfig  `yaml:"engine"`
	NATS     NATSConfig    `yaml:"nats"`
	Qdrant   QdrantConfig  `yaml:"qdrant"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// HazardConfig locates the per-model curve tables.
type HazardConfig struct {
	BaseDir    string   `yaml:"base_dir" validate:"required"`
	Models     []string `yaml:"models" validate:"required,min=1,dive,required"`
	AuxColumns int      `yaml:"aux_columns" validate:"gte=0"`
}

// QueryConfig is the grid each curve is sampled on.
type QueryConfig struct {
	Lo float64 `yaml:"lo" validate:"gte=0"`
	Hi float64 `yaml:"hi" validate:"gtfield=Lo"`
	N  int     `yaml:"n" validate:"gte=2"`
}

// SplineConfig tunes curve fitting.
type SplineConfig struct {
	Degree      int `yaml:"degree" validate:"oneof=1 2 3 4 5"`
	Granularity int `yaml:"granularity" validate:"gte=2"`
}

// FiguresConfig picks where diagnostic plots go. Sink "none" disables them.
type FiguresConfig struct {
	Sink     string `yaml:"sink" validate:"oneof=none dir s3"`
	Dir      string `yaml:"dir" validate:"required_if=Sink dir"`
	Bucket   string `yaml:"bucket" validate:"required_if=Sink s3"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
}

// GraphConfig selects the building graph source.
type GraphConfig struct {
	Source    string `yaml:"source" validate:"oneof=file neo4j"`
	File      string `yaml:"file" validate:"required_if=Source file"`
	Neo4jURL  string `yaml:"neo4j_url" validate:"required_if=Source neo4j"`
	Neo4jUser string `yaml:"neo4j_user"`
	Neo4jPass string `yaml:"neo4j_pass"`
	Database  string `yaml:"database"`
}

// VolumeConfig points at the wide-flange area table. Empty disables volume
// estimation.
type VolumeConfig struct {
	ShapeTable string `yaml:"shape_table"`
}

// EngineConfig describes the structural engine and its call policy.
type EngineConfig struct {
	Transport        string        `yaml:"transport" validate:"oneof=exec nats"`
	Command          []string      `yaml:"command" validate:"required_if=Transport exec"`
	Dir              string        `yaml:"dir"`
	Timeout          time.Duration `yaml:"timeout" validate:"gte=0"`
	Subject          string        `yaml:"subject"`
	ModelPath        string        `yaml:"model_path"`
	Units            int           `yaml:"units" validate:"gte=1"`
	Inches           bool          `yaml:"inches"`
	ElevationScale   float64       `yaml:"elevation_scale" validate:"gt=0"`
	SoilClass        string        `yaml:"soil_class" validate:"oneof=A B C D E"`
	FrameType        string        `yaml:"frame_type" validate:"required"`
	Gravity          float64       `yaml:"gravity" validate:"gt=0"`
	Intervals        int           `yaml:"intervals" validate:"gte=1"`
	Retries          int           `yaml:"retries" validate:"gte=1"`
	BreakerThreshold int           `yaml:"breaker_threshold" validate:"gte=1"`
}

// NATSConfig is optional; an empty URL disables NATS.
type NATSConfig struct {
	URL         string `yaml:"url"`
	PublishRuns bool   `yaml:"publish_runs"`
	Queue       string `yaml:"queue"`
}

// QdrantConfig is optional; an empty Addr disables the curve index.
type QdrantConfig struct {
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
	TopK       int    `yaml:"top_k" validate:"gte=0"`
}

// MetricsConfig sets the Prometheus listener. Port 0 disables it.
type MetricsConfig struct {
	Port int `yaml:"port" validate:"gte=0,lte=65535"`
}

// Default returns the built-in configuration. Loaded files override it.
func Default() Config {
	return Config{
		Location: "Chicago IL",
		Hazard:   HazardConfig{BaseDir: "data/hazard", Models: []string{"PGA", "SA0P2", "SA1P0"}, AuxColumns: 2},
		Query:    QueryConfig{Lo: 0, Hi: 5, N: 50},
		Spline:   SplineConfig{Degree: 3, Granularity: 500},
		Figures:  FiguresConfig{Sink: "none", Dir: "figures"},
		Graph:    GraphConfig{Source: "file", File: "data/building.ttl", Neo4jURL: "neo4j://localhost:7687", Neo4jUser: "neo4j", Database: "neo4j"},
		Engine: EngineConfig{
			Transport:        "exec",
			Timeout:          10 * time.Minute,
			Units:            3,
			ElevationScale:   1,
			SoilClass:        "B",
			FrameType:        "Moment",
			Gravity:          386,
			Intervals:        8,
			Retries:          3,
			BreakerThreshold: 5,
		},
		Qdrant:  QdrantConfig{Collection: "hazard_curves", TopK: 5},
		Metrics: MetricsConfig{Port: 0},
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML over the defaults without reading the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Location = envOr("RESILIENCE_LOCATION", c.Location)
	c.Hazard.BaseDir = envOr("RESILIENCE_HAZARD_DIR", c.Hazard.BaseDir)
	c.Graph.Neo4jURL = envOr("NEO4J_URL", c.Graph.Neo4jURL)
	c.Graph.Neo4jUser = envOr("NEO4J_USER", c.Graph.Neo4jUser)
	c.Graph.Neo4jPass = envOr("NEO4J_PASS", c.Graph.Neo4jPass)
	c.NATS.URL = envOr("NATS_URL", c.NATS.URL)
	c.Qdrant.Addr = envOr("QDRANT_URL", c.Qdrant.Addr)
	c.Qdrant.Collection = envOr("QDRANT_COLLECTION", c.Qdrant.Collection)
	if v := os.Getenv("METRICS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Metrics.Port = p
		}
	}
}

// Validate checks every field constraint and reports all failures.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, describe(e))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

func describe(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Config.")
	switch e.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, e.Param(), e.Value())
	case "gte", "gt", "lte":
		return fmt.Sprintf("%s must be %s %s", field, e.Tag(), e.Param())
	case "gtfield":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, e.Tag())
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
