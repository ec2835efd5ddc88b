package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"VT_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"VT_DB_MAX_CONNS" default:"8"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`

	GeocoderBaseURL   string `envconfig:"GEOCODER_BASE_URL" default:"https://nominatim.openstreetmap.org"`
	GeocoderUserAgent string `envconfig:"GEOCODER_USER_AGENT" default:"violations-tracker/1.0"`

	// Duplicate detection tuning. The defaults are the calibrated values;
	// overriding them is for experiments, not deployments.
	SimilarityThreshold  float64 `envconfig:"VT_SIMILARITY_THRESHOLD" default:"0.85"`
	CreationThreshold    float64 `envconfig:"VT_CREATION_THRESHOLD" default:"0.75"`
	LocationRadiusMeters float64 `envconfig:"VT_LOCATION_RADIUS_METERS" default:"5000"`
	CreationRadiusMeters float64 `envconfig:"VT_CREATION_RADIUS_METERS" default:"100"`
	TimeWindowHours      int     `envconfig:"VT_TIME_WINDOW_HOURS" default:"24"`
	MergeOnCreation      bool    `envconfig:"VT_MERGE_ON_CREATION" default:"true"`

	ConsolidationMinCorpus    int `envconfig:"VT_CONSOLIDATION_MIN_CORPUS" default:"10"`
	ConsolidationMaxDeletions int `envconfig:"VT_CONSOLIDATION_MAX_DELETIONS" default:"50"`

	// Criterion weights of the composite similarity score. They must sum
	// to 1.
	WeightType        float64 `envconfig:"VT_WEIGHT_TYPE" default:"0.30"`
	WeightTime        float64 `envconfig:"VT_WEIGHT_TIME" default:"0.20"`
	WeightLocation    float64 `envconfig:"VT_WEIGHT_LOCATION" default:"0.20"`
	WeightPerpetrator float64 `envconfig:"VT_WEIGHT_PERPETRATOR" default:"0.10"`
	WeightCasualties  float64 `envconfig:"VT_WEIGHT_CASUALTIES" default:"0.10"`
	WeightDescription float64 `envconfig:"VT_WEIGHT_DESCRIPTION" default:"0.10"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("VT_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("VT_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("VT_DB_MIN_CONNS (%d) cannot exceed VT_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("VT_SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if c.CreationThreshold <= 0 || c.CreationThreshold > 1 {
		return fmt.Errorf("VT_CREATION_THRESHOLD must be in (0, 1]")
	}
	if c.CreationThreshold > c.SimilarityThreshold {
		return fmt.Errorf("VT_CREATION_THRESHOLD (%g) cannot exceed VT_SIMILARITY_THRESHOLD (%g)", c.CreationThreshold, c.SimilarityThreshold)
	}
	if c.LocationRadiusMeters <= 0 {
		return fmt.Errorf("VT_LOCATION_RADIUS_METERS must be > 0")
	}
	if c.CreationRadiusMeters <= 0 {
		return fmt.Errorf("VT_CREATION_RADIUS_METERS must be > 0")
	}
	if c.TimeWindowHours < 1 {
		return fmt.Errorf("VT_TIME_WINDOW_HOURS must be >= 1")
	}
	if c.ConsolidationMinCorpus < 1 {
		return fmt.Errorf("VT_CONSOLIDATION_MIN_CORPUS must be >= 1")
	}
	if c.ConsolidationMaxDeletions < 1 {
		return fmt.Errorf("VT_CONSOLIDATION_MAX_DELETIONS must be >= 1")
	}
	weights := map[string]float64{
		"VT_WEIGHT_TYPE":        c.WeightType,
		"VT_WEIGHT_TIME":        c.WeightTime,
		"VT_WEIGHT_LOCATION":    c.WeightLocation,
		"VT_WEIGHT_PERPETRATOR": c.WeightPerpetrator,
		"VT_WEIGHT_CASUALTIES":  c.WeightCasualties,
		"VT_WEIGHT_DESCRIPTION": c.WeightDescription,
	}
	sum := 0.0
	for name, weight := range weights {
		if weight < 0 || weight > 1 {
			return fmt.Errorf("%s must be in [0, 1]", name)
		}
		sum += weight
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("similarity weights must sum to 1, got %g", sum)
	}
	return nil
}

// weightSumTolerance absorbs float decimal representation error in the
// sum-to-1 check.
const weightSumTolerance = 1e-6

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
