// Package queryrec reads and writes the record dialect: QIR statements as
// nested records.
//
// A record document has the shape
//
//	version: "1"
//	statements:
//	  - kind: find
//	    target: users
//	    filter: {type: comparison, field: age, op: gt, value: 25}
//	bindings:
//	  - variable: users_1
//	    consumer_path: user_id
//
// Filters and pipeline stages are tagged unions keyed by "type" and
// "stage". Literal values use Extended JSON wrappers for dates, object ids
// and regexes. Records are read from JSON, YAML or CUE and written as
// indented JSON or YAML; written statements carry a fingerprint of their
// canonical form.
package queryrec
