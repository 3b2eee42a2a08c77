package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"go.ngs.io/forecast-prep/internal/domain"
)

//go:embed norm_constants.yaml
var defaultNormConstants []byte

// LoadNormConstants reads the normalization constants file at path, or the
// embedded defaults when path is empty. Every linearly rescaled field must have
// a non-zero divisor.
func LoadNormConstants(path string) (map[string]domain.NormConstants, error) {
	data := defaultNormConstants
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read normalization constants: %w", err)
		}
	}
	var constants map[string]domain.NormConstants
	if err := yaml.Unmarshal(data, &constants); err != nil {
		return nil, fmt.Errorf("parse normalization constants: %w", err)
	}
	for _, f := range domain.Fields {
		if err := checkConstants(f, constants); err != nil {
			return nil, err
		}
	}
	return constants, nil
}

func checkConstants(f domain.FieldDescriptor, constants map[string]domain.NormConstants) error {
	var divisor float64
	c, ok := constants[f.Name]
	switch f.Policy {
	case domain.NormLog, domain.NormIdentity:
		return nil
	case domain.NormMeanCentered:
		divisor = c.Std
	case domain.NormMaxScaled:
		divisor = c.Max
	case domain.NormSymmetric:
		divisor = max(c.Max, -c.Min)
	}
	if !ok {
		return fmt.Errorf("normalization constants: %w", &domain.UnknownFieldError{Name: f.Name})
	}
	if divisor <= 0 {
		return fmt.Errorf("normalization constants for %s: %s divisor must be positive", f.Name, f.Policy)
	}
	return nil
}
