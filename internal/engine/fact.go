package engine

import (
	"strconv"
	"strings"
	"time"
)

// Fact is anything that can be inserted into working memory.
// FactType returns the fully-qualified type name declared in the rule base,
// e.g. "model.SimpleEvent".
type Fact interface {
	FactType() string
}

// Event is a fact with its own timestamp. Facts of a type declared with
// role "event" must implement Event; temporal operators read Timestamp.
type Event interface {
	Fact
	Timestamp() time.Time
}

// FactHandle is the session's reference to an inserted fact.
type FactHandle struct {
	id        int64
	factType  string
	timestamp int64 // ms since epoch
	fact      Fact
}

// ID returns the handle identifier, unique within a session.
func (h *FactHandle) ID() int64 { return h.id }

// Type returns the fact type name.
func (h *FactHandle) Type() string { return h.factType }

// Timestamp returns the fact's timestamp in ms since epoch. For plain facts
// this is the clock position at insertion.
func (h *FactHandle) Timestamp() int64 { return h.timestamp }

// Fact returns the inserted value.
func (h *FactHandle) Fact() Fact { return h.fact }

// tupleKey identifies a (rule, facts) combination, e.g. "pkg-Rule|1,4".
func tupleKey(ruleKey string, tuple []*FactHandle) string {
	var b strings.Builder
	b.WriteString(ruleKey)
	b.WriteByte('|')
	for i, h := range tuple {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(h.id, 10))
	}
	return b.String()
}

func handleIDs(tuple []*FactHandle) []int64 {
	ids := make([]int64, len(tuple))
	for i, h := range tuple {
		ids[i] = h.id
	}
	return ids
}
