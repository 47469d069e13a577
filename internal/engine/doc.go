// Package engine implements the cepsnap rule session.
//
// The engine is deliberately small: it holds a working memory of facts,
// matches them against the rules of a RuleBase, and keeps an agenda of
// activations that FireAllRules drains. Temporal negation ("no event within
// [min,max] after $e") is evaluated by timers scheduled on the session's
// PseudoClock.
//
// ARCHITECTURE:
//
// Single-Threaded Session:
// Every operation on a Session (Insert, clock advance, FireAllRules, State,
// Dispose) runs on the caller's goroutine. A Session must not be shared
// between goroutines. A RuleBase is immutable and may be shared freely.
//
// Event Processing Flow:
//  1. Insert stores the fact and propagates it to every rule whose positive
//     patterns accept its type
//  2. Complete tuples either go straight onto the agenda, or - for rules with
//     a temporal "not" - schedule a timer at of.ts + max
//  3. Advancing the clock runs due timers; a timer whose window stayed empty
//     creates an activation
//  4. FireAllRules runs due timers, then fires activations until the agenda
//     is empty
//
// Deterministic Scheduling:
// Activations fire by salience (descending) then creation sequence
// (ascending). Candidate facts are visited in insertion order. Timers with
// the same deadline run in creation order. No randomness, no wall clock.
//
// Session State:
// State exports facts, pending activations, fired tuples and pending timers
// so a marshaller can persist them; RestoreSession rebuilds a live session
// from that state against the same or an extended rule base.
package engine
