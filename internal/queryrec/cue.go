package queryrec

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/qerr"
)

// recordSchema closes the document and statement shells. Filters, stages
// and values are checked by the decoder, as for JSON and YAML input.
const recordSchema = `
#Record: {
	version?: "1"
	statements: [...#Statement]
	bindings?: [...{
		variable:       string
		consumer_path?: string
	}]
}

#Statement: {
	kind:   "find" | "aggregate" | "insertOne" | "insertMany" | "updateOne" | "updateMany" | "deleteOne" | "deleteMany" | "createSchema"
	target: string
	name?:  string
	limit?: int & >=0
	skip?:  int & >=0
	...
}
`

// decodeCUE evaluates a CUE record against the record schema and reads the
// resulting concrete value. Constraints and references inside the file are
// resolved by CUE before decoding.
func decodeCUE(data []byte) (ir.IRValue, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(recordSchema, cue.Filename("record_schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, err
	}

	value := ctx.CompileBytes(data, cue.Filename("record.cue"))
	if err := value.Err(); err != nil {
		return nil, &qerr.LiteralSyntaxError{Reason: "compiling CUE: " + err.Error()}
	}
	value = schema.LookupPath(cue.ParsePath("#Record")).Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, &qerr.InvariantViolationError{Node: "record document", Reason: err.Error()}
	}

	out, err := value.MarshalJSON()
	if err != nil {
		return nil, &qerr.InvariantViolationError{Node: "record document", Reason: err.Error()}
	}
	return decodeJSON(out)
}
