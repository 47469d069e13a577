package marshal

import (
	"path"
	"strings"
)

// Acceptor decides whether a strategy handles a fact type.
type Acceptor interface {
	Accept(typeName string) bool
}

// ClassFilterAcceptor accepts fact types whose dotted name matches one of its
// patterns.
//
// Patterns are matched segment by segment with path.Match syntax. A trailing
// "*" segment matches one or more remaining segments, so "*.*" accepts every
// qualified name and "org.example.*" accepts everything below org.example.
type ClassFilterAcceptor struct {
	patterns []string
}

// DefaultPattern accepts every qualified type name.
const DefaultPattern = "*.*"

// NewClassFilterAcceptor creates an acceptor. With no patterns it uses
// DefaultPattern.
func NewClassFilterAcceptor(patterns ...string) *ClassFilterAcceptor {
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}
	return &ClassFilterAcceptor{patterns: patterns}
}

// Patterns returns the configured patterns.
func (a *ClassFilterAcceptor) Patterns() []string {
	return append([]string(nil), a.patterns...)
}

// Accept implements Acceptor.
func (a *ClassFilterAcceptor) Accept(typeName string) bool {
	for _, p := range a.patterns {
		if matchDotted(p, typeName) {
			return true
		}
	}
	return false
}

func matchDotted(pattern, name string) bool {
	ps := strings.Split(pattern, ".")
	ns := strings.Split(name, ".")

	for i, p := range ps {
		if i >= len(ns) {
			return false
		}
		if p == "*" && i == len(ps)-1 {
			return true
		}
		ok, err := path.Match(p, ns[i])
		if err != nil || !ok {
			return false
		}
	}
	return len(ps) == len(ns)
}
