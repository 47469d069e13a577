package engine

import (
	"fmt"

	"github.com/roach88/cepsnap/internal/ir"
)

// RuleBase is a compiled, immutable rule set.
//
// A RuleBase is shared read-only by every session created from it. Rules keep
// their declaration order, which is the order facts are propagated in.
type RuleBase struct {
	def         ir.RuleBase
	fingerprint string
	rules       []*compiledRule
	byKey       map[string]*compiledRule
	types       map[string]ir.TypeDecl
	byType      map[string][]*compiledRule // rules with a positive pattern on the type
}

// compiledRule is a rule with its bindings resolved to tuple positions.
type compiledRule struct {
	def       ir.Rule
	key       string
	positives []ir.Pattern
	ofPos     []int // per positive: tuple position of After.Of, or -1
	negative  *ir.Pattern
	negOfPos  int
}

// NewRuleBase validates and compiles a rule-base definition.
// Structural problems are reported as SCHEMA errors.
func NewRuleBase(def ir.RuleBase) (*RuleBase, error) {
	fp, err := ir.Fingerprint(def)
	if err != nil {
		return nil, WrapError(ErrCodeSchema, "compile", err, "rule base cannot be fingerprinted")
	}

	rb := &RuleBase{
		def:         def,
		fingerprint: fp,
		byKey:       make(map[string]*compiledRule, len(def.Rules)),
		types:       make(map[string]ir.TypeDecl, len(def.Types)),
		byType:      make(map[string][]*compiledRule),
	}

	for _, t := range def.Types {
		if _, dup := rb.types[t.Name]; dup {
			return nil, Errorf(ErrCodeSchema, "compile", "duplicate type declaration %q", t.Name)
		}
		if t.Role != ir.RoleEvent && t.Role != ir.RoleFact {
			return nil, Errorf(ErrCodeSchema, "compile", "type %q: invalid role %q", t.Name, t.Role)
		}
		rb.types[t.Name] = t
	}

	for _, r := range def.Rules {
		cr, err := rb.compileRule(r)
		if err != nil {
			return nil, err
		}
		if _, dup := rb.byKey[cr.key]; dup {
			return nil, Errorf(ErrCodeSchema, "compile", "duplicate rule %q", cr.key)
		}
		rb.rules = append(rb.rules, cr)
		rb.byKey[cr.key] = cr

		seen := make(map[string]bool)
		for _, p := range cr.positives {
			if !seen[p.Type] {
				seen[p.Type] = true
				rb.byType[p.Type] = append(rb.byType[p.Type], cr)
			}
		}
	}

	return rb, nil
}

func (rb *RuleBase) compileRule(r ir.Rule) (*compiledRule, error) {
	cr := &compiledRule{def: r, key: r.Key(), negOfPos: -1}
	fail := func(format string, args ...any) error {
		return Errorf(ErrCodeSchema, "compile", "rule %q: %s", cr.key, fmt.Sprintf(format, args...))
	}

	if len(r.When) == 0 {
		return nil, fail("when clause is empty")
	}

	binds := make(map[string]int)
	for i, p := range r.When {
		decl, ok := rb.types[p.Type]
		if !ok {
			return nil, fail("pattern %d references undeclared type %q", i, p.Type)
		}
		if p.After != nil {
			if decl.Role != ir.RoleEvent {
				return nil, fail("pattern %d: temporal operator on non-event type %q", i, p.Type)
			}
			if p.After.MinMS > p.After.MaxMS {
				return nil, fail("pattern %d: after window min %d > max %d", i, p.After.MinMS, p.After.MaxMS)
			}
		}

		if p.Not {
			if i != len(r.When)-1 {
				return nil, fail("not pattern must be the last pattern")
			}
			if p.After == nil {
				return nil, fail("not pattern requires an after window")
			}
			pos, ok := binds[p.After.Of]
			if !ok {
				return nil, fail("not pattern references unknown binding %q", p.After.Of)
			}
			neg := p
			cr.negative = &neg
			cr.negOfPos = pos
			continue
		}

		if p.Bind == "" {
			return nil, fail("pattern %d: bind is required", i)
		}
		if _, dup := binds[p.Bind]; dup {
			return nil, fail("duplicate binding %q", p.Bind)
		}
		of := -1
		if p.After != nil {
			pos, ok := binds[p.After.Of]
			if !ok {
				return nil, fail("pattern %d references unknown binding %q", i, p.After.Of)
			}
			if rb.types[cr.positives[pos].Type].Role != ir.RoleEvent {
				return nil, fail("pattern %d: after window anchored on non-event binding %q", i, p.After.Of)
			}
			of = pos
		}
		binds[p.Bind] = len(cr.positives)
		cr.positives = append(cr.positives, p)
		cr.ofPos = append(cr.ofPos, of)
	}

	if len(cr.positives) == 0 {
		return nil, fail("at least one positive pattern is required")
	}
	if cr.negative != nil && rb.types[cr.positives[cr.negOfPos].Type].Role != ir.RoleEvent {
		return nil, fail("not window anchored on non-event binding %q", cr.negative.After.Of)
	}
	return cr, nil
}

// Name returns the rule-base name (the kbase name it was built from).
func (rb *RuleBase) Name() string {
	return rb.def.Name
}

// Fingerprint returns the content hash of the definition.
func (rb *RuleBase) Fingerprint() string {
	return rb.fingerprint
}

// Definition returns the definition the rule base was compiled from.
func (rb *RuleBase) Definition() ir.RuleBase {
	return rb.def
}

// RuleKeys returns the package-qualified rule names in declaration order.
func (rb *RuleBase) RuleKeys() []string {
	keys := make([]string, len(rb.rules))
	for i, r := range rb.rules {
		keys[i] = r.key
	}
	return keys
}

// HasRule reports whether the rule base contains the given rule key.
func (rb *RuleBase) HasRule(key string) bool {
	_, ok := rb.byKey[key]
	return ok
}

// DeclaredType returns the declaration for a fact type name.
func (rb *RuleBase) DeclaredType(name string) (ir.TypeDecl, bool) {
	t, ok := rb.types[name]
	return t, ok
}

// DefaultSessionConfig returns the configuration for a fresh session.
func (rb *RuleBase) DefaultSessionConfig() ir.SessionConfig {
	return ir.DefaultSessionConfig(rb.def.Session)
}
