package engine

import (
	"container/heap"
	"slices"
)

// activation is a rule tuple waiting to fire.
type activation struct {
	rule      *compiledRule
	tuple     []*FactHandle
	seq       int64
	cancelled bool
}

func (a *activation) key() string {
	return tupleKey(a.rule.key, a.tuple)
}

func (a *activation) references(h *FactHandle) bool {
	return slices.Contains(a.tuple, h)
}

// activationLess orders by salience (descending) then creation (ascending).
func activationLess(a, b *activation) bool {
	if a.rule.def.Salience != b.rule.def.Salience {
		return a.rule.def.Salience > b.rule.def.Salience
	}
	return a.seq < b.seq
}

// agenda is a priority queue of activations with lazy cancellation.
type agenda struct {
	items activationQueue
}

func (ag *agenda) push(a *activation) {
	heap.Push(&ag.items, a)
}

// pop returns the next live activation, or nil when the agenda is empty.
func (ag *agenda) pop() *activation {
	for ag.items.Len() > 0 {
		a := heap.Pop(&ag.items).(*activation)
		if !a.cancelled {
			return a
		}
	}
	return nil
}

// pending returns live activations in firing order.
func (ag *agenda) pending() []*activation {
	out := make([]*activation, 0, len(ag.items))
	for _, a := range ag.items {
		if !a.cancelled {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b *activation) int {
		switch {
		case activationLess(a, b):
			return -1
		case activationLess(b, a):
			return 1
		}
		return 0
	})
	return out
}

func (ag *agenda) size() int {
	n := 0
	for _, a := range ag.items {
		if !a.cancelled {
			n++
		}
	}
	return n
}

type activationQueue []*activation

func (q activationQueue) Len() int           { return len(q) }
func (q activationQueue) Less(i, j int) bool { return activationLess(q[i], q[j]) }
func (q activationQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *activationQueue) Push(x any) {
	*q = append(*q, x.(*activation))
}

func (q *activationQueue) Pop() any {
	old := *q
	n := len(old)
	a := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return a
}
