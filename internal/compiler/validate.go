package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/cepsnap/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrRuleBaseName     = "E100" // rule base name is required
	ErrPackageEmpty     = "E101" // rule package is required
	ErrWhenEmpty        = "E102" // rule has no patterns
	ErrInvalidRole      = "E103" // type role is not event or fact
	ErrUndeclaredType   = "E104" // pattern references an undeclared type
	ErrDuplicateName    = "E105" // duplicate type or rule name
	ErrInvalidWindow    = "E106" // temporal window on a non-event or min > max
	ErrInvalidNegation  = "E107" // not pattern misplaced or without window
	ErrUndefinedBinding = "E108" // after.of references no earlier binding
	ErrMissingBinding   = "E109" // positive pattern without bind, or no positive pattern
	ErrInvalidClock     = "E110" // session clock other than pseudo
	ErrInvalidEventMode = "E111" // session event mode other than stream/cloud
)

// ValidationError represents a semantic validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a linked rule-base definition.
// Returns all errors found (does not fail-fast).
func Validate(rb ir.RuleBase) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if strings.TrimSpace(rb.Name) == "" {
		add("name", ErrRuleBaseName, "rule base name is required")
	}
	if rb.Session.Clock != ir.ClockPseudo {
		add("session.clock", ErrInvalidClock, "clock %q is not supported; sessions run on the pseudo clock", rb.Session.Clock)
	}
	if rb.Session.EventMode != ir.EventModeStream && rb.Session.EventMode != ir.EventModeCloud {
		add("session.event_mode", ErrInvalidEventMode, "invalid event mode %q", rb.Session.EventMode)
	}

	types := make(map[string]ir.TypeDecl)
	for i, t := range rb.Types {
		field := fmt.Sprintf("types[%d]", i)
		if _, dup := types[t.Name]; dup {
			add(field, ErrDuplicateName, "duplicate type %q", t.Name)
		}
		if t.Role != ir.RoleEvent && t.Role != ir.RoleFact {
			add(field+".role", ErrInvalidRole, "type %q: role must be %q or %q, got %q", t.Name, ir.RoleEvent, ir.RoleFact, t.Role)
		}
		types[t.Name] = t
	}

	keys := make(map[string]bool)
	for i, r := range rb.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if strings.TrimSpace(r.Package) == "" {
			add(field+".package", ErrPackageEmpty, "rule %q: package is required", r.Name)
		}
		if keys[r.Key()] {
			add(field, ErrDuplicateName, "duplicate rule %q", r.Key())
		}
		keys[r.Key()] = true
		errs = append(errs, validateWhen(field, r, types)...)
	}
	return errs
}

func validateWhen(field string, r ir.Rule, types map[string]ir.TypeDecl) []ValidationError {
	var errs []ValidationError
	add := func(f, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: f, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if len(r.When) == 0 {
		add(field+".when", ErrWhenEmpty, "rule %q: when must have at least one pattern", r.Name)
		return errs
	}

	binds := make(map[string]string) // bind -> type
	positives := 0
	for j, p := range r.When {
		pf := fmt.Sprintf("%s.when[%d]", field, j)
		decl, declared := types[p.Type]
		if !declared {
			add(pf+".type", ErrUndeclaredType, "type %q is not declared", p.Type)
		}

		if p.After != nil {
			if declared && decl.Role != ir.RoleEvent {
				add(pf+".after", ErrInvalidWindow, "after on %q which is not an event", p.Type)
			}
			if p.After.MinMS > p.After.MaxMS {
				add(pf+".after", ErrInvalidWindow, "min %dms > max %dms", p.After.MinMS, p.After.MaxMS)
			}
			if anchor, ok := binds[p.After.Of]; !ok {
				add(pf+".after.of", ErrUndefinedBinding, "%q is not bound by an earlier pattern", p.After.Of)
			} else if t, ok := types[anchor]; ok && t.Role != ir.RoleEvent {
				add(pf+".after.of", ErrInvalidWindow, "%q is bound to %q which is not an event", p.After.Of, anchor)
			}
		}

		if p.Not {
			if j != len(r.When)-1 {
				add(pf, ErrInvalidNegation, "not pattern must be the last pattern")
			}
			if p.After == nil {
				add(pf, ErrInvalidNegation, "not pattern requires an after window")
			}
			continue
		}

		positives++
		if p.Bind == "" {
			add(pf+".bind", ErrMissingBinding, "positive pattern requires bind")
			continue
		}
		if _, dup := binds[p.Bind]; dup {
			add(pf+".bind", ErrDuplicateName, "duplicate binding %q", p.Bind)
		}
		binds[p.Bind] = p.Type
	}
	if positives == 0 {
		add(field+".when", ErrMissingBinding, "rule %q: at least one positive pattern is required", r.Name)
	}
	return errs
}
