// Package marshal writes and reads the working-memory section of a session
// snapshot.
//
// Facts are persisted through marshalling strategies. Each strategy owns an
// acceptor that decides, by fact type name, whether the strategy handles a
// fact; the first accepting strategy wins and its name is recorded with the
// fact so the reader can pick the same one.
//
// The serialize strategy encodes facts with encoding/json and rebuilds them
// through a type registry populated with RegisterType, in the same spirit as
// gob.Register.
package marshal
