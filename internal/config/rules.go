package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules toggles the individual business rules applied by the transformer.
//
// A rules file looks like:
//
//	remove_duplicates: true
//	standardize_names: true
//	adjust_small_amounts: false
//	derive_paid_updated_at: true
//	check_date_consistency: true
type Rules struct {
	RemoveDuplicates     bool `yaml:"remove_duplicates" json:"remove_duplicates"`
	StandardizeNames     bool `yaml:"standardize_names" json:"standardize_names"`
	AdjustSmallAmounts   bool `yaml:"adjust_small_amounts" json:"adjust_small_amounts"`
	DerivePaidUpdatedAt  bool `yaml:"derive_paid_updated_at" json:"derive_paid_updated_at"`
	CheckDateConsistency bool `yaml:"check_date_consistency" json:"check_date_consistency"`
}

// DefaultRules enables every rule.
func DefaultRules() Rules {
	return Rules{
		RemoveDuplicates:     true,
		StandardizeNames:     true,
		AdjustSmallAmounts:   true,
		DerivePaidUpdatedAt:  true,
		CheckDateConsistency: true,
	}
}

// LoadRules reads rule toggles from a YAML file.
// An empty path returns DefaultRules. Keys absent from the file keep their
// default value; unknown keys are an error.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read rules file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return DefaultRules(), fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return rules, nil
}
