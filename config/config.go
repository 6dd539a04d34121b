// Package config loads engine settings from an optional YAML file with
// environment-variable overrides. Everything has a working default: an
// empty Config solves problems with haversine fallback and no cache.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML strings like "24h" or "1.5s" into time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Matrix configures the distance-matrix provider.
type Matrix struct {
	OSRMURL     string   `yaml:"osrmUrl"`
	Profile     string   `yaml:"profile"`
	RedisURL    string   `yaml:"redisUrl"`
	BatchSize   int      `yaml:"batchSize"`
	MaxInFlight int      `yaml:"maxInFlight"`
	CacheTTL    Duration `yaml:"cacheTtl"`
	RateLimit   float64  `yaml:"rateLimit"` // requests per second, 0 = unlimited
}

// Genetic tunes the metaheuristic.
type Genetic struct {
	PopulationSize       int     `yaml:"populationSize"`
	Generations          int     `yaml:"generations"`
	EarlyStopGenerations int     `yaml:"earlyStopGenerations"`
	CrossoverRate        float64 `yaml:"crossoverRate"`
	MutationRate         float64 `yaml:"mutationRate"`
	EliteSize            int     `yaml:"eliteSize"`
	Seed                 int64   `yaml:"seed"`
}

// Greedy tunes the constructive solver's 2-opt pass.
type Greedy struct {
	MinImprovement    float64 `yaml:"minImprovement"`
	Max2OptIterations int     `yaml:"max2OptIterations"`
}

// Factory tunes the fallback chain.
type Factory struct {
	QualityThreshold float64  `yaml:"qualityThreshold"`
	ChainBudget      Duration `yaml:"chainBudget"`
	PreferSpeed      bool     `yaml:"preferSpeed"`
	PreferQuality    bool     `yaml:"preferQuality"`
}

// VRPService points at an external HTTP solver, when one is deployed.
type VRPService struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"apiKey"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// Config is the engine's full configuration tree.
type Config struct {
	Matrix     Matrix     `yaml:"matrix"`
	Genetic    Genetic    `yaml:"genetic"`
	Greedy     Greedy     `yaml:"greedy"`
	Factory    Factory    `yaml:"factory"`
	VRPService VRPService `yaml:"vrpService"`
	Log        Log        `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Matrix: Matrix{
			Profile:     "driving",
			BatchSize:   100,
			MaxInFlight: 4,
			CacheTTL:    Duration(7 * 24 * time.Hour),
		},
		Factory: Factory{QualityThreshold: 0.9},
		Log:     Log{Level: "info", Format: "json"},
	}
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist) on top of the defaults, then applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env overrides
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OSRM_URL"); v != "" {
		c.Matrix.OSRMURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Matrix.RedisURL = v
	}
	if v := os.Getenv("VRP_SERVICE_URL"); v != "" {
		c.VRPService.URL = v
	}
	if v := os.Getenv("VRP_SERVICE_API_KEY"); v != "" {
		c.VRPService.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}
