package engine

// propagate evaluates rule r for every tuple that contains h.
func (s *Session) propagate(r *compiledRule, h *FactHandle) {
	seen := make(map[string]bool)
	for pos, p := range r.positives {
		if p.Type != h.factType {
			continue
		}
		tuple := make([]*FactHandle, len(r.positives))
		tuple[pos] = h
		s.enumerate(r, tuple, 0, pos, func(t []*FactHandle) {
			key := tupleKey(r.key, t)
			if seen[key] {
				return
			}
			seen[key] = true
			s.consider(r, t)
		})
	}
}

// propagateAll evaluates r over every tuple in working memory. Used when a
// rule first meets facts that were inserted before it existed.
func (s *Session) propagateAll(r *compiledRule) {
	tuple := make([]*FactHandle, len(r.positives))
	s.enumerate(r, tuple, 0, -1, func(t []*FactHandle) {
		s.consider(r, t)
	})
}

// enumerate fills tuple positions from i onward, skipping the fixed
// position, and calls emit for each complete tuple satisfying the temporal
// constraints. The callback receives a copy.
func (s *Session) enumerate(r *compiledRule, tuple []*FactHandle, i, fixed int, emit func([]*FactHandle)) {
	if i == len(tuple) {
		for j := range tuple {
			if !r.satisfies(tuple, j) {
				return
			}
		}
		out := make([]*FactHandle, len(tuple))
		copy(out, tuple)
		emit(out)
		return
	}
	if i == fixed {
		s.enumerate(r, tuple, i+1, fixed, emit)
		return
	}
	for _, cand := range s.byType[r.positives[i].Type] {
		if inTuple(tuple, cand) {
			continue
		}
		tuple[i] = cand
		s.enumerate(r, tuple, i+1, fixed, emit)
	}
	tuple[i] = nil
}

func inTuple(tuple []*FactHandle, h *FactHandle) bool {
	for _, t := range tuple {
		if t == h {
			return true
		}
	}
	return false
}

// satisfies checks the temporal constraint of positive pattern j.
func (r *compiledRule) satisfies(tuple []*FactHandle, j int) bool {
	of := r.ofPos[j]
	if of < 0 {
		return true
	}
	w := r.positives[j].After
	d := tuple[j].timestamp - tuple[of].timestamp
	return d >= w.MinMS && d <= w.MaxMS
}

// consider turns a matching tuple into an activation, or into a negation
// timer when the rule ends in a temporal "not".
func (s *Session) consider(r *compiledRule, tuple []*FactHandle) {
	key := tupleKey(r.key, tuple)
	if s.pending[key] || s.fired[key] != nil {
		return
	}
	seq := s.nextSequence()
	s.pending[key] = true

	if r.negative == nil {
		s.agenda.push(&activation{rule: r, tuple: tuple, seq: seq})
		return
	}
	s.clock.schedule(&timer{
		kind:     timerNegation,
		deadline: tuple[r.negOfPos].timestamp + r.negative.After.MaxMS,
		seq:      seq,
		rule:     r,
		tuple:    tuple,
	})
}

// activate puts a tuple whose negation window closed unblocked on the agenda.
func (s *Session) activate(r *compiledRule, tuple []*FactHandle, seq int64) {
	s.pending[tupleKey(r.key, tuple)] = true
	s.agenda.push(&activation{rule: r, tuple: tuple, seq: seq})
}

// blocked reports whether a fact matching r's negative pattern exists for
// the tuple. The blocking fact is always distinct from the tuple's facts.
func (s *Session) blocked(r *compiledRule, tuple []*FactHandle) bool {
	anchor := tuple[r.negOfPos]
	w := r.negative.After
	for _, g := range s.byType[r.negative.Type] {
		if inTuple(tuple, g) {
			continue
		}
		d := g.timestamp - anchor.timestamp
		if d >= w.MinMS && d <= w.MaxMS {
			return true
		}
	}
	return false
}
