package guardrail

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Redaction replaces every case-insensitive match of Pattern.
type Redaction struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// Config holds the tunable lists and thresholds of a Guard.
type Config struct {
	InjectionPatterns []string            `yaml:"injection_patterns"`
	BlockReason       string              `yaml:"block_reason"`
	Redactions        []Redaction         `yaml:"redactions"`
	NegativeKeywords  []string            `yaml:"negative_keywords"`
	KeywordThreshold  int                 `yaml:"keyword_threshold"`
	MessageThreshold  int                 `yaml:"message_threshold"`
	RolePermissions   map[string][]string `yaml:"role_permissions"`
}

// DefaultConfig returns the built-in policy.
func DefaultConfig() Config {
	return Config{
		InjectionPatterns: []string{
			`ignore previous instructions`,
			`disregard all rules`,
			`you are now a`,
			`system override`,
			`<script>`,
			`DROP TABLE`,
			`DELETE FROM`,
		},
		BlockReason: "Suspicious activity detected in input.",
		Redactions: []Redaction{
			{Pattern: `database_error: .*`, Replacement: "An internal error occurred."},
			{Pattern: `SQL STATE: \d+`, Replacement: "[REDACTED]"},
			{Pattern: `SQLSTATE \w{5}`, Replacement: "[REDACTED]"},
		},
		NegativeKeywords: []string{
			"angry", "scam", "sue", "lawyer", "terrible", "worst",
			"disappointed", "frustrated", "manager", "stolen",
		},
		KeywordThreshold: 2,
		MessageThreshold: 10,
		RolePermissions: map[string][]string{
			"admin":    {"view_analytics", "refund_order", "list_tickets", "takeover"},
			"agent":    {"list_tickets", "takeover"},
			"customer": {"chat", "list_orders", "check_status"},
		},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BlockReason == "" {
		c.BlockReason = def.BlockReason
	}
	if c.KeywordThreshold <= 0 {
		c.KeywordThreshold = def.KeywordThreshold
	}
	if c.MessageThreshold <= 0 {
		c.MessageThreshold = def.MessageThreshold
	}
	return c
}

// merge overlays the non-empty fields of o onto c.
func (c Config) merge(o Config) Config {
	if o.InjectionPatterns != nil {
		c.InjectionPatterns = o.InjectionPatterns
	}
	if o.BlockReason != "" {
		c.BlockReason = o.BlockReason
	}
	if o.Redactions != nil {
		c.Redactions = o.Redactions
	}
	if o.NegativeKeywords != nil {
		c.NegativeKeywords = o.NegativeKeywords
	}
	if o.KeywordThreshold > 0 {
		c.KeywordThreshold = o.KeywordThreshold
	}
	if o.MessageThreshold > 0 {
		c.MessageThreshold = o.MessageThreshold
	}
	if o.RolePermissions != nil {
		c.RolePermissions = o.RolePermissions
	}
	return c
}

// PolicyFile is the on-disk layout: a defaults block plus per-store overrides.
type PolicyFile struct {
	Defaults Config            `yaml:"defaults"`
	Stores   map[string]Config `yaml:"stores"`
}

// Set resolves the Guard for a store, falling back to the default guard.
type Set struct {
	base   *Guard
	stores map[string]*Guard
}

// NewSet builds a Set from the default policy and per-store overlays.
func NewSet(defaults Config, stores map[string]Config) (*Set, error) {
	base, err := New(defaults)
	if err != nil {
		return nil, err
	}
	set := &Set{base: base, stores: make(map[string]*Guard, len(stores))}
	for id, override := range stores {
		g, err := New(base.cfg.merge(override))
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", id, err)
		}
		set.stores[id] = g
	}
	return set, nil
}

// DefaultSet uses DefaultConfig for every store.
func DefaultSet() *Set {
	return &Set{base: MustNew(DefaultConfig()), stores: map[string]*Guard{}}
}

// LoadPolicyFile reads a YAML policy. An empty path yields DefaultSet.
func LoadPolicyFile(path string) (*Set, error) {
	if path == "" {
		return DefaultSet(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guardrail policy: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy decodes YAML policy bytes.
func ParsePolicy(raw []byte) (*Set, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse guardrail policy: %w", err)
	}
	return NewSet(DefaultConfig().merge(file.Defaults), file.Stores)
}

// ForStore returns the guard configured for storeID.
func (s *Set) ForStore(storeID string) *Guard {
	if g, ok := s.stores[storeID]; ok {
		return g
	}
	return s.base
}

// Default returns the guard used for stores without overrides.
func (s *Set) Default() *Guard {
	return s.base
}
