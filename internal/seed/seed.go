// Package seed bulk-loads instances, platforms, and rules from a YAML
// document at first boot, following the teacher's dsl.Parser shape
// (os.ReadFile, then yaml.Unmarshal) but pointed at federation entities
// instead of agent-team DSL documents (spec §C.8).
package seed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zj591227045/wxauto-mgt/internal/store"
)

// Document is the top-level shape of a seed file.
type Document struct {
	Instances []InstanceSeed `yaml:"instances"`
	Platforms []PlatformSeed `yaml:"platforms"`
	Rules     []RuleSeed     `yaml:"rules"`
}

type InstanceSeed struct {
	InstanceID string                `yaml:"instance_id"`
	Name       string                `yaml:"name"`
	BaseURL    string                `yaml:"base_url"`
	APIKey     string                `yaml:"api_key"`
	Enabled    bool                  `yaml:"enabled"`
	Config     *store.InstanceConfig `yaml:"config"`
}

type PlatformSeed struct {
	PlatformID string             `yaml:"platform_id"`
	Name       string             `yaml:"name"`
	Kind       store.PlatformKind `yaml:"kind"`
	Config     map[string]any     `yaml:"config"`
	Enabled    bool               `yaml:"enabled"`
}

type RuleSeed struct {
	RuleID         string `yaml:"rule_id"`
	Name           string `yaml:"name"`
	InstanceID     string `yaml:"instance_id"`
	ChatPattern    string `yaml:"chat_pattern"`
	PlatformID     string `yaml:"platform_id"`
	Priority       int    `yaml:"priority"`
	Enabled        bool   `yaml:"enabled"`
	OnlyAtMessages bool   `yaml:"only_at_messages"`
}

// ParseFile reads and parses a seed YAML file.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse seed yaml: %w", err)
	}
	return &doc, nil
}

// Apply upserts every entity in doc into st. Upserts are keyed on the
// seed's IDs, so re-running Apply against the same file is idempotent: an
// existing row with a matching ID is simply overwritten with the seed's
// values rather than duplicated.
func Apply(st store.Store, doc *Document) error {
	for _, i := range doc.Instances {
		cfg := store.DefaultInstanceConfig()
		if i.Config != nil {
			cfg = *i.Config
		}
		inst := store.Instance{
			InstanceID: i.InstanceID,
			Name:       i.Name,
			BaseURL:    i.BaseURL,
			APIKey:     i.APIKey,
			Enabled:    i.Enabled,
			Status:     store.StatusInitializing,
			Config:     cfg,
		}
		if err := st.UpsertInstance(inst); err != nil {
			return fmt.Errorf("seed instance %s: %w", i.InstanceID, err)
		}
	}

	for _, p := range doc.Platforms {
		plat := store.Platform{
			PlatformID: p.PlatformID,
			Name:       p.Name,
			Kind:       p.Kind,
			Config:     p.Config,
			Enabled:    p.Enabled,
		}
		if err := st.UpsertPlatform(plat); err != nil {
			return fmt.Errorf("seed platform %s: %w", p.PlatformID, err)
		}
	}

	for _, r := range doc.Rules {
		instanceID := r.InstanceID
		if instanceID == "" {
			instanceID = "*"
		}
		rule := store.Rule{
			RuleID:         r.RuleID,
			Name:           r.Name,
			InstanceID:     instanceID,
			ChatPattern:    r.ChatPattern,
			PlatformID:     r.PlatformID,
			Priority:       r.Priority,
			Enabled:        r.Enabled,
			OnlyAtMessages: r.OnlyAtMessages,
		}
		if err := st.UpsertRule(rule); err != nil {
			return fmt.Errorf("seed rule %s: %w", r.RuleID, err)
		}
	}

	return nil
}
