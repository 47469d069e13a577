// Package container loads rule artifacts from a directory and builds rule
// bases and sessions from them.
package container

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/cepsnap/internal/compiler"
	"github.com/roach88/cepsnap/internal/engine"
)

// Container holds the compiled rule bases of one rules directory.
// It is immutable after Load and safe to share between goroutines; the
// sessions it creates are not.
type Container struct {
	dir         string
	bases       map[string]*engine.RuleBase
	defaultName string
}

// Load compiles every kbase in dir. Compile and validation problems are
// returned together.
func Load(dir string) (*Container, error) {
	result, errs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return nil, fmt.Errorf("load %s: %w", dir, errors.Join(errs...))
	}

	c := &Container{dir: dir, bases: make(map[string]*engine.RuleBase)}
	var defaults []string
	for _, kb := range result.KBases {
		def, err := compiler.Link(kb, result.Resources)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", dir, err)
		}
		if verrs := compiler.Validate(def); len(verrs) > 0 {
			joined := make([]error, len(verrs))
			for i, v := range verrs {
				joined[i] = v
			}
			return nil, fmt.Errorf("load %s: kbase %q: %w", dir, kb.Name, errors.Join(joined...))
		}
		rb, err := engine.NewRuleBase(def)
		if err != nil {
			return nil, fmt.Errorf("load %s: kbase %q: %w", dir, kb.Name, err)
		}
		c.bases[kb.Name] = rb
		if kb.Default {
			defaults = append(defaults, kb.Name)
		}
	}

	switch {
	case len(defaults) == 1:
		c.defaultName = defaults[0]
	case len(defaults) > 1:
		return nil, fmt.Errorf("load %s: several default kbases: %v", dir, defaults)
	case len(c.bases) == 1:
		for name := range c.bases {
			c.defaultName = name
		}
	}
	return c, nil
}

// Dir returns the directory the container was loaded from.
func (c *Container) Dir() string {
	return c.dir
}

// Names returns the kbase names, sorted.
func (c *Container) Names() []string {
	names := make([]string, 0, len(c.bases))
	for n := range c.bases {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RuleBase returns the rule base built from kbase name.
func (c *Container) RuleBase(name string) (*engine.RuleBase, error) {
	rb, ok := c.bases[name]
	if !ok {
		return nil, engine.Errorf(engine.ErrCodeContract, "rule base", "unknown kbase %q (have %v)", name, c.Names())
	}
	return rb, nil
}

// DefaultRuleBase returns the kbase marked default, or the only kbase.
func (c *Container) DefaultRuleBase() (*engine.RuleBase, error) {
	if c.defaultName == "" {
		return nil, engine.Errorf(engine.ErrCodeContract, "rule base", "no default kbase among %v", c.Names())
	}
	return c.bases[c.defaultName], nil
}

// NewSession creates a session on the default kbase.
func (c *Container) NewSession(opts ...engine.SessionOption) (*engine.Session, error) {
	rb, err := c.DefaultRuleBase()
	if err != nil {
		return nil, err
	}
	return engine.NewSession(rb, rb.DefaultSessionConfig(), opts...)
}

// NewSessionFor creates a session on the named kbase.
func (c *Container) NewSessionFor(name string, opts ...engine.SessionOption) (*engine.Session, error) {
	rb, err := c.RuleBase(name)
	if err != nil {
		return nil, err
	}
	return engine.NewSession(rb, rb.DefaultSessionConfig(), opts...)
}

// LogSummary writes one debug line per kbase.
func (c *Container) LogSummary(logger *slog.Logger) {
	for _, name := range c.Names() {
		rb := c.bases[name]
		logger.Debug("kbase loaded",
			"kbase", name,
			"default", name == c.defaultName,
			"rules", len(rb.RuleKeys()),
			"fingerprint", rb.Fingerprint(),
		)
	}
}
