// Package guardrail classifies customer input, model output and conversation
// signals against configurable pattern lists.
//
// The checks are pattern based and easy to evade by rephrasing. They are a
// coarse filter in front of the model, not an authorization boundary; identity
// enforcement lives in the tool executor.
package guardrail

import (
	"fmt"
	"regexp"
	"strings"
)

// ActionBlock is reported for rejected input.
const ActionBlock = "block"

// InputResult is the verdict of CheckInput.
type InputResult struct {
	Safe   bool
	Reason string
	Action string
}

type redaction struct {
	re          *regexp.Regexp
	replacement string
}

// Guard evaluates a compiled Config. Safe for concurrent use.
type Guard struct {
	cfg         Config
	injection   []*regexp.Regexp
	redactions  []redaction
	keywords    []*regexp.Regexp
	permissions map[string]map[string]struct{}
}

// New compiles cfg. A redaction whose replacement would match any redaction
// pattern is rejected so that CheckOutput stays idempotent.
func New(cfg Config) (*Guard, error) {
	cfg = cfg.withDefaults()
	g := &Guard{cfg: cfg, permissions: make(map[string]map[string]struct{}, len(cfg.RolePermissions))}

	for _, pattern := range cfg.InjectionPatterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("injection pattern %q: %w", pattern, err)
		}
		g.injection = append(g.injection, re)
	}

	for _, r := range cfg.Redactions {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", r.Pattern, err)
		}
		g.redactions = append(g.redactions, redaction{re: re, replacement: r.Replacement})
	}
	for _, r := range g.redactions {
		for _, other := range g.redactions {
			if other.re.MatchString(r.replacement) {
				return nil, fmt.Errorf("redaction replacement %q matches pattern %q", r.replacement, other.re.String())
			}
		}
	}

	for _, kw := range cfg.NegativeKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		// anchored at a word start so "sue" does not fire inside "issue"
		g.keywords = append(g.keywords, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)))
	}

	for role, actions := range cfg.RolePermissions {
		set := make(map[string]struct{}, len(actions))
		for _, a := range actions {
			set[a] = struct{}{}
		}
		g.permissions[role] = set
	}
	return g, nil
}

// MustNew is New for static configuration known to be valid.
func MustNew(cfg Config) *Guard {
	g, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return g
}

// Config returns the effective configuration.
func (g *Guard) Config() Config {
	return g.cfg
}

// CheckInput reports the first matching adversarial pattern.
func (g *Guard) CheckInput(text string) InputResult {
	for _, re := range g.injection {
		if re.MatchString(text) {
			return InputResult{Safe: false, Reason: g.cfg.BlockReason, Action: ActionBlock}
		}
	}
	return InputResult{Safe: true}
}

// CheckOutput redacts leaked internals from model output.
func (g *Guard) CheckOutput(text string) string {
	if text == "" {
		return text
	}
	for _, r := range g.redactions {
		text = r.re.ReplaceAllLiteralString(text, r.replacement)
	}
	return text
}

// NegativeSignals counts distinct negative keywords present in text.
func (g *Guard) NegativeSignals(text string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, re := range g.keywords {
		if re.MatchString(lower) {
			count++
		}
	}
	return count
}

// ShouldEscalate is true on enough negative signals or a long-running conversation.
func (g *Guard) ShouldEscalate(text string, priorMessageCount int) bool {
	return g.NegativeSignals(text) >= g.cfg.KeywordThreshold || priorMessageCount > g.cfg.MessageThreshold
}

// VerifyAccess looks up action in the role table. Unknown roles are denied.
func (g *Guard) VerifyAccess(role, action string) bool {
	actions, ok := g.permissions[role]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// WithMessageThreshold returns a copy using a store-specific message threshold.
func (g *Guard) WithMessageThreshold(n int) *Guard {
	if n <= 0 || n == g.cfg.MessageThreshold {
		return g
	}
	clone := *g
	clone.cfg.MessageThreshold = n
	return &clone
}
