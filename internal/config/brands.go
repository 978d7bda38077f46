package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ent0n29/callkit/internal/reconcile"
)

// FieldSpec declares one identity field a brand collects before a call.
type FieldSpec struct {
	Name     string `yaml:"name" json:"name"`
	Kind     string `yaml:"kind" json:"kind"`
	Required bool   `yaml:"required" json:"required"`
}

// Brand is a calling profile: which agent answers, with which credentials,
// and which fields get verified afterwards.
type Brand struct {
	ID               string      `yaml:"id" json:"id"`
	Name             string      `yaml:"name" json:"name"`
	AgentID          string      `yaml:"agent_id" json:"agent_id"`
	APIKeyEnv        string      `yaml:"api_key_env" json:"-"`
	FromNumber       string      `yaml:"from_number" json:"from_number,omitempty"`
	MaxFieldAttempts int         `yaml:"max_field_attempts" json:"max_field_attempts"`
	Fields           []FieldSpec `yaml:"fields" json:"fields"`

	// APIKey is resolved from APIKeyEnv, falling back to the global key.
	APIKey string `yaml:"-" json:"-"`
}

// Schema maps each declared field to its normalization kind.
func (b Brand) Schema() map[string]reconcile.Kind {
	out := make(map[string]reconcile.Kind, len(b.Fields))
	for _, f := range b.Fields {
		kind, err := reconcile.ParseKind(f.Kind)
		if err != nil {
			kind = reconcile.KindText
		}
		out[f.Name] = kind
	}
	return out
}

func (b Brand) Reconciler() reconcile.Reconciler {
	return reconcile.Reconciler{Schema: b.Schema(), MaxAttempts: b.MaxFieldAttempts}
}

type brandsFile struct {
	Brands []Brand `yaml:"brands"`
}

// LoadBrands reads brand profiles from a YAML file.
func LoadBrands(path, globalAPIKey string) ([]Brand, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read brands file: %w", err)
	}
	return ParseBrands(data, globalAPIKey, os.Getenv)
}

// ParseBrands decodes and validates brand profiles. lookupEnv resolves
// per-brand api_key_env references.
func ParseBrands(data []byte, globalAPIKey string, lookupEnv func(string) string) ([]Brand, error) {
	var file brandsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse brands file: %w", err)
	}
	if len(file.Brands) == 0 {
		return nil, errors.New("brands file declares no brands")
	}

	seen := make(map[string]struct{}, len(file.Brands))
	for i := range file.Brands {
		b := &file.Brands[i]
		b.ID = trimSpace(b.ID)
		if b.ID == "" {
			return nil, fmt.Errorf("brand #%d: id is required", i+1)
		}
		if _, dup := seen[b.ID]; dup {
			return nil, fmt.Errorf("brand %s: duplicate id", b.ID)
		}
		seen[b.ID] = struct{}{}
		if trimSpace(b.AgentID) == "" {
			return nil, fmt.Errorf("brand %s: agent_id is required", b.ID)
		}
		if b.Name == "" {
			b.Name = b.ID
		}
		if b.MaxFieldAttempts < 0 {
			return nil, fmt.Errorf("brand %s: max_field_attempts must be >= 0", b.ID)
		}
		if err := validateFields(b); err != nil {
			return nil, err
		}

		b.APIKey = globalAPIKey
		if b.APIKeyEnv != "" {
			if v := trimSpace(lookupEnv(b.APIKeyEnv)); v != "" {
				b.APIKey = v
			}
		}
		if b.APIKey == "" {
			return nil, fmt.Errorf("brand %s: no api key (set %s or PLATFORM_API_KEY)", b.ID, apiKeySource(b))
		}
	}
	return file.Brands, nil
}

func validateFields(b *Brand) error {
	names := make(map[string]struct{}, len(b.Fields))
	for i := range b.Fields {
		f := &b.Fields[i]
		f.Name = trimSpace(f.Name)
		if f.Name == "" {
			return fmt.Errorf("brand %s: field #%d has no name", b.ID, i+1)
		}
		if _, dup := names[f.Name]; dup {
			return fmt.Errorf("brand %s: duplicate field %s", b.ID, f.Name)
		}
		names[f.Name] = struct{}{}
		kind, err := reconcile.ParseKind(f.Kind)
		if err != nil {
			return fmt.Errorf("brand %s: field %s: %w", b.ID, f.Name, err)
		}
		f.Kind = string(kind)
	}
	return nil
}

func apiKeySource(b *Brand) string {
	if b.APIKeyEnv != "" {
		return b.APIKeyEnv
	}
	return "api_key_env"
}
