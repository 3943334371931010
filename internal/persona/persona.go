// Package persona holds the static mentor configurations and rewrites answers
// in a mentor's voice.
package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFallback is returned when a persona defines no fallback of its own.
const DefaultFallback = "죄송합니다. 응답을 생성하지 못했습니다."

// ErrUnknownPersona is returned for ids that match no persona or alias.
var ErrUnknownPersona = errors.New("unknown persona")

//go:embed personas.yaml
var embeddedPersonas []byte

// Persona is one mentor configuration. It is immutable after load.
type Persona struct {
	ID                string   `yaml:"id" json:"id"`
	DisplayName       string   `yaml:"display_name" json:"label"`
	Aliases           []string `yaml:"aliases" json:"aliases,omitempty"`
	Intro             string   `yaml:"intro" json:"intro"`
	VoiceRules        []string `yaml:"voice_rules" json:"voice_rules"`
	PreferredSectors  []string `yaml:"preferred_sectors" json:"preferred_sectors"`
	PreferredMetrics  []string `yaml:"preferred_metrics" json:"preferred_metrics"`
	InvestmentHorizon string   `yaml:"investment_horizon" json:"investment_horizon"`
	Theme             string   `yaml:"theme" json:"theme"`
	FallbackText      string   `yaml:"fallback_text" json:"-"`
}

// Fallback returns the fixed reply used when generation fails.
func (p *Persona) Fallback() string {
	if p == nil || p.FallbackText == "" {
		return DefaultFallback
	}
	return p.FallbackText
}

// Registry resolves persona ids and aliases.
type Registry struct {
	order   []*Persona
	byID    map[string]*Persona
	aliases map[string]string
}

// Load parses personas from YAML. An empty path uses the embedded set.
func Load(path string) (*Registry, error) {
	raw := embeddedPersonas
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read personas: %w", err)
		}
		raw = b
	}
	return Parse(raw)
}

// MustDefault loads the embedded personas and panics on error.
func MustDefault() *Registry {
	r, err := Load("")
	if err != nil {
		panic(err)
	}
	return r
}

// Parse builds a registry from YAML bytes.
func Parse(raw []byte) (*Registry, error) {
	var file struct {
		Personas []*Persona `yaml:"personas"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse personas: %w", err)
	}
	if len(file.Personas) == 0 {
		return nil, errors.New("parse personas: no personas defined")
	}

	r := &Registry{byID: make(map[string]*Persona), aliases: make(map[string]string)}
	for _, p := range file.Personas {
		if p.ID == "" {
			return nil, errors.New("parse personas: persona without id")
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("parse personas: duplicate id %q", p.ID)
		}
		r.byID[p.ID] = p
		r.order = append(r.order, p)
		for _, a := range p.Aliases {
			r.aliases[normalizeKey(a)] = p.ID
		}
	}
	return r, nil
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}

// Normalize maps an id or alias to its canonical persona id.
func (r *Registry) Normalize(id string) (string, bool) {
	key := normalizeKey(id)
	if _, ok := r.byID[key]; ok {
		return key, true
	}
	if canonical, ok := r.aliases[key]; ok {
		return canonical, true
	}
	return "", false
}

// Get returns the persona for an id or alias.
func (r *Registry) Get(id string) (*Persona, error) {
	canonical, ok := r.Normalize(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPersona, id)
	}
	return r.byID[canonical], nil
}

// List returns personas in file order.
func (r *Registry) List() []*Persona {
	out := make([]*Persona, len(r.order))
	copy(out, r.order)
	return out
}
