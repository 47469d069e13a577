package compiler

import (
	"fmt"
	"strings"
	"time"

	"cuelang.org/go/cue"

	"github.com/roach88/cepsnap/internal/ir"
)

// Resource is one rule resource: a package with type declarations and
// rules, e.g. the body of `resource: sample: {...}`.
type Resource struct {
	Name    string
	Package string
	Types   []ir.TypeDecl
	Rules   []ir.Rule
}

// CompileResource parses a CUE value into a Resource.
//
// The CUE value should be the resource struct itself:
//
//	res, err := CompileResource(v.LookupPath(cue.ParsePath("resource.sample")))
func CompileResource(v cue.Value) (*Resource, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	res := &Resource{Name: lastLabel(v)}

	pkgVal := v.LookupPath(cue.ParsePath("package"))
	if !pkgVal.Exists() {
		return nil, &CompileError{Field: "package", Message: "package is required", Pos: v.Pos()}
	}
	pkg, err := pkgVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	res.Package = pkg

	res.Types, err = parseDeclarations(v)
	if err != nil {
		return nil, err
	}

	res.Rules, err = parseRules(v, pkg)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// parseDeclarations extracts `declare: "<type>": {role, expires}`.
func parseDeclarations(v cue.Value) ([]ir.TypeDecl, error) {
	declVal := v.LookupPath(cue.ParsePath("declare"))
	if !declVal.Exists() {
		return nil, nil
	}

	iter, err := declVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []ir.TypeDecl
	for iter.Next() {
		d := ir.TypeDecl{Name: iter.Label()}
		dv := iter.Value()

		roleVal := dv.LookupPath(cue.ParsePath("role"))
		if !roleVal.Exists() {
			return nil, &CompileError{Field: "declare.role", Message: fmt.Sprintf("type %q: role is required", d.Name), Pos: dv.Pos()}
		}
		if d.Role, err = roleVal.String(); err != nil {
			return nil, formatCUEError(err)
		}

		if expVal := dv.LookupPath(cue.ParsePath("expires")); expVal.Exists() {
			if d.ExpiresMS, err = parseDuration(expVal, "declare.expires"); err != nil {
				return nil, err
			}
		}
		decls = append(decls, d)
	}
	return decls, nil
}

// parseRules extracts `rule: "<name>": {salience, when, then}` in
// declaration order.
func parseRules(v cue.Value, pkg string) ([]ir.Rule, error) {
	ruleVal := v.LookupPath(cue.ParsePath("rule"))
	if !ruleVal.Exists() {
		return nil, nil
	}

	iter, err := ruleVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rules []ir.Rule
	for iter.Next() {
		r, err := parseRule(iter.Value(), pkg, iter.Label())
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func parseRule(v cue.Value, pkg, name string) (ir.Rule, error) {
	r := ir.Rule{Package: pkg, Name: name}

	if sv := v.LookupPath(cue.ParsePath("salience")); sv.Exists() {
		s, err := sv.Int64()
		if err != nil {
			return r, formatCUEError(err)
		}
		r.Salience = s
	}

	whenVal := v.LookupPath(cue.ParsePath("when"))
	if !whenVal.Exists() {
		return r, &CompileError{Field: "when", Message: fmt.Sprintf("rule %q: when is required", name), Pos: v.Pos()}
	}
	list, err := whenVal.List()
	if err != nil {
		return r, formatCUEError(err)
	}
	for list.Next() {
		p, err := parsePattern(list.Value())
		if err != nil {
			return r, err
		}
		r.When = append(r.When, p)
	}

	if lv := v.LookupPath(cue.ParsePath("then.log")); lv.Exists() {
		if r.Then.Log, err = lv.String(); err != nil {
			return r, formatCUEError(err)
		}
	}
	return r, nil
}

func parsePattern(v cue.Value) (ir.Pattern, error) {
	var p ir.Pattern
	var err error

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return p, &CompileError{Field: "when.type", Message: "pattern type is required", Pos: v.Pos()}
	}
	if p.Type, err = typeVal.String(); err != nil {
		return p, formatCUEError(err)
	}

	if bv := v.LookupPath(cue.ParsePath("bind")); bv.Exists() {
		if p.Bind, err = bv.String(); err != nil {
			return p, formatCUEError(err)
		}
	}
	if nv := v.LookupPath(cue.ParsePath("not")); nv.Exists() {
		if p.Not, err = nv.Bool(); err != nil {
			return p, formatCUEError(err)
		}
	}

	av := v.LookupPath(cue.ParsePath("after"))
	if !av.Exists() {
		return p, nil
	}
	t := &ir.Temporal{}
	ofVal := av.LookupPath(cue.ParsePath("of"))
	if !ofVal.Exists() {
		return p, &CompileError{Field: "when.after.of", Message: "after requires of", Pos: av.Pos()}
	}
	if t.Of, err = ofVal.String(); err != nil {
		return p, formatCUEError(err)
	}
	if mv := av.LookupPath(cue.ParsePath("min")); mv.Exists() {
		if t.MinMS, err = parseDuration(mv, "when.after.min"); err != nil {
			return p, err
		}
	}
	maxVal := av.LookupPath(cue.ParsePath("max"))
	if !maxVal.Exists() {
		return p, &CompileError{Field: "when.after.max", Message: "after requires max", Pos: av.Pos()}
	}
	if t.MaxMS, err = parseDuration(maxVal, "when.after.max"); err != nil {
		return p, err
	}
	p.After = t
	return p, nil
}

// parseDuration reads an int (milliseconds) or a Go duration string such as
// "10s" and returns whole milliseconds.
func parseDuration(v cue.Value, field string) (int64, error) {
	switch v.IncompleteKind() {
	case cue.IntKind:
		ms, err := v.Int64()
		if err != nil {
			return 0, formatCUEError(err)
		}
		if ms < 0 {
			return 0, &CompileError{Field: field, Message: "duration must not be negative", Pos: v.Pos()}
		}
		return ms, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return 0, formatCUEError(err)
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		if d < 0 || d%time.Millisecond != 0 {
			return 0, &CompileError{Field: field, Message: fmt.Sprintf("duration %q must be a non-negative whole number of milliseconds", s), Pos: v.Pos()}
		}
		return d.Milliseconds(), nil
	default:
		return 0, &CompileError{Field: field, Message: fmt.Sprintf("duration must be an int (ms) or a string like \"10s\", got %v", v.IncompleteKind()), Pos: v.Pos()}
	}
}

// lastLabel returns the unquoted final selector of v's path.
func lastLabel(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return strings.Trim(sels[len(sels)-1].String(), `"`)
}
