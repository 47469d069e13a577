// Package snapshot freezes a session to bytes and rehydrates it.
//
// A snapshot is three canonical JSON values written back to back:
//
//  1. the rule base (definition plus fingerprint)
//  2. the session configuration, including the pseudo clock position
//  3. the working memory, written by internal/marshal
//
// Sections are read in the same order by one streaming decoder; the working
// memory reader receives the decoder's buffered remainder followed by the rest
// of the input. The rule-base section may be discarded in favour of a
// substitute supplied by the caller.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/cepsnap/internal/engine"
	"github.com/roach88/cepsnap/internal/ir"
	"github.com/roach88/cepsnap/internal/marshal"
)

// Section kinds in stream order.
const (
	SectionRuleBase      = "rule_base"
	SectionSessionConfig = "session_config"
)

type ruleBaseSection struct {
	Kind        string      `json:"kind"`
	Version     string      `json:"version"`
	Fingerprint string      `json:"fingerprint"`
	RuleBase    ir.RuleBase `json:"rule_base"`
}

type configSection struct {
	Kind      string `json:"kind"`
	Version   string `json:"version"`
	Name      string `json:"name"`
	ClockType string `json:"clock_type"`
	EventMode string `json:"event_mode"`
	ClockTime int64  `json:"clock_time"`
}

type options struct {
	strategies []marshal.Strategy
	session    []engine.SessionOption
	logger     *slog.Logger
}

// Option configures Save and Load.
type Option func(*options)

// WithStrategies sets the marshalling strategies. Default: one serialize
// strategy accepting "*.*".
func WithStrategies(s ...marshal.Strategy) Option {
	return func(o *options) { o.strategies = s }
}

// WithSessionOptions passes options to the restored session.
func WithSessionOptions(opts ...engine.SessionOption) Option {
	return func(o *options) { o.session = append(o.session, opts...) }
}

// WithLogger sets the logger for snapshot tracing.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Save writes a snapshot of s to w.
func Save(w io.Writer, s *engine.Session, opts ...Option) error {
	o := buildOptions(opts)
	if s == nil {
		return engine.Errorf(engine.ErrCodeContract, "save", "session is nil")
	}
	if s.Disposed() {
		return engine.WrapError(engine.ErrCodeContract, "save", engine.ErrDisposed, "operation on disposed session")
	}

	rb := s.RuleBase()
	if err := writeSection(w, ruleBaseSection{
		Kind:        SectionRuleBase,
		Version:     ir.SnapshotVersion,
		Fingerprint: rb.Fingerprint(),
		RuleBase:    rb.Definition(),
	}); err != nil {
		return err
	}

	cfg := s.Configuration()
	if err := writeSection(w, configSection{
		Kind:      SectionSessionConfig,
		Version:   ir.SnapshotVersion,
		Name:      cfg.Name,
		ClockType: cfg.ClockType,
		EventMode: cfg.EventMode,
		ClockTime: cfg.ClockTime,
	}); err != nil {
		return err
	}

	if err := marshal.NewMarshaller(rb, o.strategies...).Marshal(w, s); err != nil {
		return err
	}

	o.logger.Debug("session saved",
		"session", s.ID(),
		"rule_base", rb.Name(),
		"clock", cfg.ClockTime,
	)
	return nil
}

func writeSection(w io.Writer, v any) error {
	data, err := ir.Canonicalize(v)
	if err != nil {
		return engine.WrapError(engine.ErrCodeEncoding, "save", err, "section")
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot from r and restores a session.
//
// When rb is nil the rule base embedded in the snapshot is rebuilt and used;
// otherwise the embedded rule base is read, checked and discarded, and rb is
// used instead.
func Load(r io.Reader, rb *engine.RuleBase, opts ...Option) (*engine.Session, error) {
	o := buildOptions(opts)
	dec := json.NewDecoder(r)
	dec.UseNumber()

	rbRaw, err := readSection(dec, SectionRuleBase)
	if err != nil {
		return nil, err
	}
	embedded, err := decodeRuleBase(rbRaw)
	if err != nil {
		return nil, err
	}
	if rb == nil {
		rb, err = engine.NewRuleBase(embedded.RuleBase)
		if err != nil {
			return nil, err
		}
	}

	cfgRaw, err := readSection(dec, SectionSessionConfig)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeConfig(cfgRaw)
	if err != nil {
		return nil, err
	}

	rest := io.MultiReader(dec.Buffered(), r)
	s, err := marshal.NewMarshaller(rb, o.strategies...).Unmarshal(rest, cfg, o.session...)
	if err != nil {
		return nil, err
	}

	o.logger.Debug("session restored",
		"session", s.ID(),
		"rule_base", rb.Name(),
		"substituted", embedded.Fingerprint != rb.Fingerprint(),
		"clock", cfg.ClockTime,
	)
	return s, nil
}

// RoundTrip saves s to memory and loads it back against rb (nil keeps the
// embedded rule base). s is left untouched.
func RoundTrip(s *engine.Session, rb *engine.RuleBase, opts ...Option) (*engine.Session, error) {
	var buf bytes.Buffer
	if err := Save(&buf, s, opts...); err != nil {
		return nil, err
	}
	return Load(&buf, rb, opts...)
}

// readSection decodes the next JSON value and checks its kind and version.
func readSection(dec *json.Decoder, kind string) (map[string]any, error) {
	var raw any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, engine.Errorf(engine.ErrCodeEncoding, "load", "%s section missing", kind)
		}
		return nil, engine.WrapError(engine.ErrCodeEncoding, "load", err, kind+" section")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, engine.Errorf(engine.ErrCodeEncoding, "load", "%s section is not an object", kind)
	}
	if got, _ := obj["kind"].(string); got != kind {
		return nil, engine.Errorf(engine.ErrCodeEncoding, "load", "expected %s section, got %q", kind, got)
	}
	if v, _ := obj["version"].(string); v != ir.SnapshotVersion {
		return nil, engine.Errorf(engine.ErrCodeEncoding, "load", "%s section: unsupported version %q", kind, v)
	}
	return obj, nil
}

func decodeRuleBase(obj map[string]any) (ruleBaseSection, error) {
	var sec ruleBaseSection
	data, err := json.Marshal(obj)
	if err != nil {
		return sec, engine.WrapError(engine.ErrCodeEncoding, "load", err, "rule base section")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sec); err != nil {
		return sec, engine.WrapError(engine.ErrCodeEncoding, "load", err, "rule base section")
	}

	fp, err := ir.Fingerprint(sec.RuleBase)
	if err != nil {
		return sec, engine.WrapError(engine.ErrCodeEncoding, "load", err, "rule base section")
	}
	if fp != sec.Fingerprint {
		return sec, engine.Errorf(engine.ErrCodeEncoding, "load", "rule base fingerprint mismatch: recorded %s, computed %s", sec.Fingerprint, fp)
	}
	return sec, nil
}

// decodeConfig validates the configuration section field by field so that
// clock problems surface as CONFIG errors rather than decoding failures.
func decodeConfig(obj map[string]any) (ir.SessionConfig, error) {
	var cfg ir.SessionConfig

	for k := range obj {
		switch k {
		case "kind", "version", "name", "clock_type", "event_mode", "clock_time":
		default:
			return cfg, engine.Errorf(engine.ErrCodeEncoding, "load", "session config: unknown field %q", k)
		}
	}

	var ok bool
	if cfg.Name, ok = obj["name"].(string); !ok {
		return cfg, engine.Errorf(engine.ErrCodeConfig, "load", "session config: name missing or not a string")
	}
	if cfg.EventMode, ok = obj["event_mode"].(string); !ok {
		return cfg, engine.Errorf(engine.ErrCodeConfig, "load", "session config: event_mode missing or not a string")
	}
	if cfg.ClockType, ok = obj["clock_type"].(string); !ok {
		return cfg, engine.Errorf(engine.ErrCodeConfig, "load", "session config: clock_type missing or not a string")
	}
	if cfg.ClockType != ir.ClockPseudo {
		return cfg, engine.Errorf(engine.ErrCodeConfig, "load", "session config: unsupported clock type %q", cfg.ClockType)
	}

	n, ok := obj["clock_time"].(json.Number)
	if !ok {
		return cfg, engine.Errorf(engine.ErrCodeConfig, "load", "session config: clock_time missing or not a number")
	}
	ms, err := n.Int64()
	if err != nil {
		return cfg, engine.Errorf(engine.ErrCodeConfig, "load", "session config: clock_time %s is not an integer", n)
	}
	if ms < 0 {
		return cfg, engine.Errorf(engine.ErrCodeConfig, "load", "session config: negative clock_time %d", ms)
	}
	cfg.ClockTime = ms
	return cfg, nil
}
