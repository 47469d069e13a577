package engine

import "slices"

type timerKind int

const (
	// timerNegation re-checks a temporal "not" once its window has closed.
	timerNegation timerKind = iota
	// timerExpire retracts an event whose expiration offset has passed.
	timerExpire
)

// timer is a job on the PseudoClock queue.
type timer struct {
	kind      timerKind
	deadline  int64
	seq       int64
	rule      *compiledRule // nil for timerExpire
	tuple     []*FactHandle
	cancelled bool
}

func (t *timer) key() string {
	return tupleKey(t.rule.key, t.tuple)
}

func (t *timer) references(h *FactHandle) bool {
	return slices.Contains(t.tuple, h)
}

func timerLess(a, b *timer) bool {
	if a.deadline != b.deadline {
		return a.deadline < b.deadline
	}
	return a.seq < b.seq
}

func sortTimers(ts []*timer) {
	slices.SortFunc(ts, func(a, b *timer) int {
		switch {
		case timerLess(a, b):
			return -1
		case timerLess(b, a):
			return 1
		}
		return 0
	})
}

// timerQueue implements heap.Interface ordered by (deadline, seq).
type timerQueue []*timer

func (q timerQueue) Len() int           { return len(q) }
func (q timerQueue) Less(i, j int) bool { return timerLess(q[i], q[j]) }
func (q timerQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *timerQueue) Push(x any) {
	*q = append(*q, x.(*timer))
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}
