package qir

import "fmt"

// Dialect names one surface syntax.
type Dialect string

const (
	// Document is the collection-scoped method-call syntax (db.users.find(...)).
	Document Dialect = "document"

	// Relational is SQL text.
	Relational Dialect = "relational"

	// Record is the neutral nested-record interchange form.
	Record Dialect = "record"
)

// Dialects lists every supported dialect in a stable order.
var Dialects = []Dialect{Document, Relational, Record}

// ParseDialect accepts a dialect name or one of its common aliases.
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "document", "doc", "mongo", "mongodb":
		return Document, nil
	case "relational", "sql":
		return Relational, nil
	case "record", "json", "qir":
		return Record, nil
	}
	return "", fmt.Errorf("unknown dialect %q (valid: document, relational, record)", s)
}

// Kind tags a Statement.
type Kind string

const (
	KindFind         Kind = "find"
	KindAggregate    Kind = "aggregate"
	KindInsertOne    Kind = "insertOne"
	KindInsertMany   Kind = "insertMany"
	KindUpdateOne    Kind = "updateOne"
	KindUpdateMany   Kind = "updateMany"
	KindDeleteOne    Kind = "deleteOne"
	KindDeleteMany   Kind = "deleteMany"
	KindCreateSchema Kind = "createSchema"
)

// Kinds lists every statement kind.
var Kinds = []Kind{
	KindFind, KindAggregate, KindInsertOne, KindInsertMany,
	KindUpdateOne, KindUpdateMany, KindDeleteOne, KindDeleteMany, KindCreateSchema,
}

// IsUpdate reports whether k is one of the update kinds.
func (k Kind) IsUpdate() bool { return k == KindUpdateOne || k == KindUpdateMany }

// IsDelete reports whether k is one of the delete kinds.
func (k Kind) IsDelete() bool { return k == KindDeleteOne || k == KindDeleteMany }

// IsInsert reports whether k is one of the insert kinds.
func (k Kind) IsInsert() bool { return k == KindInsertOne || k == KindInsertMany }

// HasFilter reports whether statements of kind k may carry a Filter.
func (k Kind) HasFilter() bool {
	return k == KindFind || k.IsUpdate() || k.IsDelete()
}
