package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"crm_worker/core/domain"

	"gopkg.in/yaml.v3"
)

// Seed is the content of the rules seed file.
type Seed struct {
	CategoryMappings []*domain.CategoryMapping `yaml:"category_mappings"`
	Rules            []SeedRule                `yaml:"rules"`
}

// SeedRule is a rule as written in the seed file. Enabled defaults to true.
type SeedRule struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Priority    int                `yaml:"priority"`
	Enabled     *bool              `yaml:"enabled"`
	Conditions  []domain.Condition `yaml:"conditions"`
	Actions     []domain.Action    `yaml:"actions"`
}

// ToRule converts the seed entry.
func (r SeedRule) ToRule() *domain.Rule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &domain.Rule{
		Name:        r.Name,
		Description: r.Description,
		Priority:    r.Priority,
		Enabled:     enabled,
		Conditions:  r.Conditions,
		Actions:     r.Actions,
	}
}

// DomainRules converts every seed rule.
func (s *Seed) DomainRules() []*domain.Rule {
	rules := make([]*domain.Rule, 0, len(s.Rules))
	for _, r := range s.Rules {
		rules = append(rules, r.ToRule())
	}
	return rules
}

// ParseSeed decodes seed YAML. Unknown keys are rejected.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return &seed, nil
		}
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for i, m := range seed.CategoryMappings {
		if m == nil || m.CategoryName == "" {
			return nil, fmt.Errorf("parse seed: category_mappings[%d] has no category_name", i)
		}
	}
	for i, r := range seed.Rules {
		if r.Name == "" {
			return nil, fmt.Errorf("parse seed: rules[%d] has no name", i)
		}
	}
	return &seed, nil
}

// LoadSeed reads the seed file at path. An empty path yields an empty seed.
func LoadSeed(path string) (*Seed, error) {
	if path == "" {
		return &Seed{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	return ParseSeed(data)
}
