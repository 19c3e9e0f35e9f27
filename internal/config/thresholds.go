package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Thresholds centralises every numeric cut-off the governance core uses.
// Defaults live in DefaultThresholds; a YAML file may override any subset.
type Thresholds struct {
	// MinConfidence demotes a run to limitations when the data-confidence score is below it.
	MinConfidence float64 `yaml:"min_confidence" validate:"gte=0,lte=1,gtefield=FailSafeConfidence"`
	// FailSafeConfidence forces safe-mode when the score is strictly below it.
	FailSafeConfidence float64 `yaml:"fail_safe_confidence" validate:"gte=0,lte=1"`

	HighConfidenceBand   float64 `yaml:"high_confidence_band"   validate:"gte=0,lte=1,gtefield=MediumConfidenceBand"`
	MediumConfidenceBand float64 `yaml:"medium_confidence_band" validate:"gte=0,lte=1"`

	// MinDataQuality is a percentage in [0,100].
	MinDataQuality float64 `yaml:"min_data_quality" validate:"gte=0,lte=100"`

	// MECETolerance is in percentage points around 100.
	MECETolerance float64 `yaml:"mece_tolerance" validate:"gte=0,lte=10"`

	FactorMin float64 `yaml:"factor_min" validate:"gt=0"`
	FactorMax float64 `yaml:"factor_max" validate:"gtefield=FactorMin"`

	SafeModeSections []string `yaml:"safe_mode_sections" validate:"required,min=1,dive,required"`
}

// DefaultThresholds returns the thresholds used when no override file is configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinConfidence:        0.5,
		FailSafeConfidence:   0.10,
		HighConfidenceBand:   0.8,
		MediumConfidenceBand: 0.5,
		MinDataQuality:       70,
		MECETolerance:        0.5,
		FactorMin:            0.5,
		FactorMax:            1.5,
		SafeModeSections:     []string{"data_overview", "quality"},
	}
}

var thresholdsValidate = validator.New()

// Validate checks field ranges and cross-field ordering.
func (t Thresholds) Validate() error {
	return thresholdsValidate.Struct(t)
}

// LoadThresholdsFile reads a YAML override on top of DefaultThresholds.
func LoadThresholdsFile(path string) (Thresholds, error) {
	th := DefaultThresholds()

	data, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, fmt.Errorf("read thresholds file: %w", err)
	}
	if err := yaml.Unmarshal(data, &th); err != nil {
		return Thresholds{}, fmt.Errorf("parse thresholds file %s: %w", path, err)
	}
	if err := th.Validate(); err != nil {
		return Thresholds{}, fmt.Errorf("invalid thresholds in %s: %w", path, err)
	}
	return th, nil
}
