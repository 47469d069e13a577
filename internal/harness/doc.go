// Package harness runs snapshot scenarios against rule sessions.
//
// A scenario names a rules directory and two batches of events. Run builds
// a session on the scenario's kbase, feeds the first batch, snapshots the
// session, restores it (optionally against a substitute kbase), feeds the
// second batch and then evaluates the scenario's assertions against the
// combined firing record.
//
// Every event goes through InsertAndAdvance followed by FireAllRules:
//
//	h, err := harness.InsertAndAdvance(s, ev)
//	...
//	n, err := s.FireAllRules()
//
// The pseudo clock only moves forward. An event older than the clock is
// inserted without rewinding it.
//
// # Determinism
//
// Session identifiers come from testutil.SessionIDs ("<scenario>-1",
// "<scenario>-2"), the clock is driven purely by event timestamps, and the
// firing journal is a fresh in-memory SQLite database per run. The same
// scenario therefore produces a byte-identical trace, which RunWithGolden
// compares against testdata/golden/<name>.golden.
package harness
