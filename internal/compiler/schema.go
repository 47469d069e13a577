package compiler

import (
	_ "embed"

	"cuelang.org/go/cue"
)

//go:embed schema.cue
var schemaCUE string

// applySchema unifies v with the rule artifact schema. Unknown fields,
// misspelled roles and malformed durations surface as CUE errors with
// positions in the user's files.
func applySchema(v cue.Value) cue.Value {
	schema := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue"))
	return schema.Unify(v)
}
