package marshal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/cepsnap/internal/engine"
)

// Strategy persists facts of the types its acceptor accepts.
type Strategy interface {
	// Name identifies the strategy in the snapshot.
	Name() string
	Accept(typeName string) bool
	Write(f engine.Fact) (json.RawMessage, error)
	Read(typeName string, payload json.RawMessage) (engine.Fact, error)
}

// SerializeStrategyName is recorded for facts written by SerializeStrategy.
const SerializeStrategyName = "serialize"

// SerializeStrategy writes facts as JSON and reads them back through the type
// registry.
type SerializeStrategy struct {
	acceptor Acceptor
}

// NewSerializeStrategy creates a serialize strategy. A nil acceptor accepts
// every qualified type name.
func NewSerializeStrategy(acceptor Acceptor) *SerializeStrategy {
	if acceptor == nil {
		acceptor = NewClassFilterAcceptor()
	}
	return &SerializeStrategy{acceptor: acceptor}
}

// Name implements Strategy.
func (s *SerializeStrategy) Name() string { return SerializeStrategyName }

// Accept implements Strategy.
func (s *SerializeStrategy) Accept(typeName string) bool {
	return s.acceptor.Accept(typeName)
}

// Write implements Strategy.
func (s *SerializeStrategy) Write(f engine.Fact) (json.RawMessage, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", f.FactType(), err)
	}
	return data, nil
}

// Read implements Strategy. Unknown payload fields are rejected.
func (s *SerializeStrategy) Read(typeName string, payload json.RawMessage) (engine.Fact, error) {
	factory, ok := lookupType(typeName)
	if !ok {
		return nil, engine.Errorf(engine.ErrCodeSchema, "unmarshal", "type %q is not registered", typeName)
	}
	f := factory()
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(f); err != nil {
		return nil, engine.WrapError(engine.ErrCodeEncoding, "unmarshal", err, fmt.Sprintf("payload of %s", typeName))
	}
	return f, nil
}
