package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

// ErrInvalidWeights is returned when a weight set fails validation
var ErrInvalidWeights = errors.New("invalid weights")

// WeightsConfig represents the per-category weight sets
type WeightsConfig struct {
	Categories map[string]map[string]float64 `yaml:"categories"`
	Validation WeightValidation               `yaml:"validation"`
}

// WeightValidation bounds individual weights. A zero MaxWeight disables the
// upper bound.
type WeightValidation struct {
	MinWeight float64 `yaml:"min_weight"`
	MaxWeight float64 `yaml:"max_weight"`
}

// WeightsLoader handles loading and validation of category weights
type WeightsLoader struct {
	config *WeightsConfig
}

// NewWeightsLoader creates a new weights loader
func NewWeightsLoader() *WeightsLoader {
	return &WeightsLoader{}
}

// LoadFromFile loads category weights from a YAML configuration file
func (wl *WeightsLoader) LoadFromFile(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	return wl.Load(data)
}

// Load parses and validates weights from raw YAML
func (wl *WeightsLoader) Load(data []byte) error {
	var config WeightsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := wl.validateConfig(&config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	wl.config = &config
	return nil
}

// GetWeights returns a copy of the weight set for a category
func (wl *WeightsLoader) GetWeights(category string) (map[string]float64, error) {
	if wl.config == nil {
		return nil, fmt.Errorf("weights not loaded")
	}

	weights, exists := wl.config.Categories[category]
	if !exists {
		return nil, fmt.Errorf("no weights for category %q", category)
	}

	out := make(map[string]float64, len(weights))
	for k, v := range weights {
		out[k] = v
	}
	return out, nil
}

// Categories returns the categories that carry a weight set, sorted
func (wl *WeightsLoader) Categories() []string {
	if wl.config == nil {
		return nil
	}
	names := make([]string, 0, len(wl.config.Categories))
	for name := range wl.config.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckKeys returns the weight keys of category that are not in known.
// Unknown keys are ignored by the ranking, so callers usually just warn.
func (wl *WeightsLoader) CheckKeys(category string, known []string) []string {
	if wl.config == nil {
		return nil
	}
	allowed := make(map[string]struct{}, len(known))
	for _, k := range known {
		allowed[k] = struct{}{}
	}

	var unknown []string
	for key := range wl.config.Categories[category] {
		if _, ok := allowed[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// GetWeightsSummary returns a human-readable summary of a category's weights
func (wl *WeightsLoader) GetWeightsSummary(category string) (string, error) {
	weights, err := wl.GetWeights(category)
	if err != nil {
		return "", err
	}

	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, weights[k])
	}
	return fmt.Sprintf("%s: %s", category, strings.Join(parts, ", ")), nil
}

func (wl *WeightsLoader) validateConfig(config *WeightsConfig) error {
	if len(config.Categories) == 0 {
		return fmt.Errorf("%w: no categories defined", ErrInvalidWeights)
	}

	v := config.Validation
	if v.MaxWeight != 0 && v.MaxWeight < v.MinWeight {
		return fmt.Errorf("%w: max_weight %g below min_weight %g", ErrInvalidWeights, v.MaxWeight, v.MinWeight)
	}

	for category, weights := range config.Categories {
		if err := validateCategoryWeights(category, weights, v); err != nil {
			return err
		}
	}

	return nil
}

func validateCategoryWeights(category string, weights map[string]float64, v WeightValidation) error {
	if len(weights) == 0 {
		return fmt.Errorf("%w: category %s has no weights", ErrInvalidWeights, category)
	}
	for key, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: category %s weight %s is not finite", ErrInvalidWeights, category, key)
		}
		if w < v.MinWeight {
			return fmt.Errorf("%w: category %s weight %s=%g below minimum %g", ErrInvalidWeights, category, key, w, v.MinWeight)
		}
		if v.MaxWeight != 0 && w > v.MaxWeight {
			return fmt.Errorf("%w: category %s weight %s=%g above maximum %g", ErrInvalidWeights, category, key, w, v.MaxWeight)
		}
	}
	return nil
}

// GetDefaultWeightsPath returns the default weights configuration path
func GetDefaultWeightsPath() string {
	return filepath.Join("config", "weights.yaml")
}
