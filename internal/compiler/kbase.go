package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/cepsnap/internal/ir"
)

// KBase is a named knowledge base: a list of resources plus the session
// template sessions built from it start with.
type KBase struct {
	Name      string
	Default   bool
	Resources []string
	Session   ir.SessionSpec
}

// CompileKBase parses a CUE value such as `kbase: rules: {...}` into a KBase.
// The session name defaults to "ksession-<kbase>".
func CompileKBase(v cue.Value) (*KBase, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	kb := &KBase{Name: lastLabel(v)}

	if dv := v.LookupPath(cue.ParsePath("default")); dv.Exists() {
		b, err := dv.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		kb.Default = b
	}

	resVal := v.LookupPath(cue.ParsePath("resources"))
	if !resVal.Exists() {
		return nil, &CompileError{Field: "resources", Message: fmt.Sprintf("kbase %q: resources is required", kb.Name), Pos: v.Pos()}
	}
	list, err := resVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for list.Next() {
		name, err := list.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		kb.Resources = append(kb.Resources, name)
	}

	kb.Session = ir.SessionSpec{Name: "ksession-" + kb.Name, Clock: ir.ClockPseudo, EventMode: ir.EventModeStream}
	for field, dst := range map[string]*string{
		"session.name":       &kb.Session.Name,
		"session.clock":      &kb.Session.Clock,
		"session.event_mode": &kb.Session.EventMode,
	} {
		fv := v.LookupPath(cue.ParsePath(field))
		if !fv.Exists() {
			continue
		}
		if *dst, err = fv.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	return kb, nil
}

// Link assembles a kbase's resources into one rule-base definition.
//
// Resources contribute in the order the kbase lists them. A type declared by
// several resources must be declared identically.
func Link(kb *KBase, resources map[string]*Resource) (ir.RuleBase, error) {
	rb := ir.RuleBase{Name: kb.Name, Session: kb.Session}
	declared := make(map[string]ir.TypeDecl)

	for _, name := range kb.Resources {
		res, ok := resources[name]
		if !ok {
			return rb, &CompileError{Field: "resources", Message: fmt.Sprintf("kbase %q: unknown resource %q", kb.Name, name)}
		}
		for _, t := range res.Types {
			if prev, dup := declared[t.Name]; dup {
				if prev != t {
					return rb, &CompileError{Field: "declare", Message: fmt.Sprintf("kbase %q: type %q declared differently by resource %q", kb.Name, t.Name, name)}
				}
				continue
			}
			declared[t.Name] = t
			rb.Types = append(rb.Types, t)
		}
		rb.Rules = append(rb.Rules, res.Rules...)
	}
	return rb, nil
}
