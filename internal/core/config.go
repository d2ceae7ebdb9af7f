package core

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"herbtrace/pkg/domain"
)

// SeasonWindow is a permitted harvesting window expressed as an inclusive
// month range. A window may wrap the year end (October through March).
type SeasonWindow struct {
	StartMonth time.Month `json:"start_month"`
	EndMonth   time.Month `json:"end_month"`
}

// Contains reports whether the timestamp's month falls inside the window.
func (w SeasonWindow) Contains(t time.Time) bool {
	m := t.UTC().Month()
	if w.StartMonth <= w.EndMonth {
		return m >= w.StartMonth && m <= w.EndMonth
	}
	return m >= w.StartMonth || m <= w.EndMonth
}

// QualityThresholds are the fixed gate limits a lot must satisfy to proceed
// past quality attestation.
type QualityThresholds struct {
	MaxMoisture    float64 `json:"max_moisture"`
	MaxPesticides  float64 `json:"max_pesticides"`
	MaxHeavyMetals float64 `json:"max_heavy_metals"`
	MicrobialPass  string  `json:"microbial_pass"`
}

// Evaluate applies the thresholds; the microbial comparison is
// case-sensitive equality against the passing category.
func (q QualityThresholds) Evaluate(moisture, pesticides, heavyMetals float64, microbial string) bool {
	return moisture < q.MaxMoisture &&
		pesticides < q.MaxPesticides &&
		heavyMetals < q.MaxHeavyMetals &&
		microbial == q.MicrobialPass
}

// Config carries the injected validator configuration: approved zones seeded
// into the store at startup, per-species seasonal windows, the
// per-collection weight ceiling, and the quality gate thresholds.
type Config struct {
	Zones               []domain.ApprovedZone   `json:"zones"`
	Seasons             map[string]SeasonWindow `json:"seasons"`
	MaxCollectionWeight float64                 `json:"max_collection_weight"`
	Quality             QualityThresholds       `json:"quality"`
}

// DefaultConfig returns the reference zone table and validator limits.
func DefaultConfig() Config {
	return Config{
		Zones: []domain.ApprovedZone{
			{Name: "Rajasthan Zone 1", MinLat: 26.9124, MinLong: 75.7873, MaxLat: 27.2124, MaxLong: 76.0873, MaxYield: 500},
			{Name: "Gujarat Zone 1", MinLat: 23.0225, MinLong: 72.5714, MaxLat: 23.3225, MaxLong: 72.8714, MaxYield: 400},
			{Name: "Maharashtra Zone 1", MinLat: 19.0760, MinLong: 72.8777, MaxLat: 19.3760, MaxLong: 73.1777, MaxYield: 600},
			{Name: "Karnataka Zone 1", MinLat: 12.9716, MinLong: 77.5946, MaxLat: 13.2716, MaxLong: 77.8946, MaxYield: 450},
			{Name: "Tamil Nadu Zone 1", MinLat: 13.0827, MinLong: 80.2707, MaxLat: 13.3827, MaxLong: 80.5707, MaxYield: 350},
		},
		Seasons: map[string]SeasonWindow{
			"Ashwagandha": {StartMonth: time.October, EndMonth: time.March},
		},
		MaxCollectionWeight: 500,
		Quality: QualityThresholds{
			MaxMoisture:    12.0,
			MaxPesticides:  0.01,
			MaxHeavyMetals: 10.0,
			MicrobialPass:  "Negative",
		},
	}
}

// LoadConfig reads configuration from the file named by HERBTRACE_CONFIG.
// Absent the variable, defaults apply. Fields omitted from the file fall
// back to their defaults individually.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := os.Getenv("HERBTRACE_CONFIG")
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var file Config
	if err := json.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(file.Zones) > 0 {
		cfg.Zones = file.Zones
	}
	if len(file.Seasons) > 0 {
		cfg.Seasons = file.Seasons
	}
	if file.MaxCollectionWeight > 0 {
		cfg.MaxCollectionWeight = file.MaxCollectionWeight
	}
	if file.Quality != (QualityThresholds{}) {
		cfg.Quality = file.Quality
	}
	return cfg, nil
}
