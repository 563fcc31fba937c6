// Package optable holds the declarative maps between canonical operators
// and each dialect's lexemes.
//
// Parsers and emitters both consult these tables, so a mapping added here
// is available in both directions. Relational lexemes are matched case
// insensitively. A table may carry parse-only aliases (e.g. "!=" for "<>");
// aliases are never produced by ToDialect, so re-emission stays stable.
package optable

import (
	"slices"
	"strings"

	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
)

// Category groups operators by role.
type Category string

const (
	Comparison  Category = "comparison"
	Membership  Category = "membership"
	Pattern     Category = "pattern"
	Logical     Category = "logical"
	Existence   Category = "existence"
	Update      Category = "update"
	Accumulator Category = "accumulator"
	Stage       Category = "stage"
)

// Categories lists every category.
var Categories = []Category{Comparison, Membership, Pattern, Logical, Existence, Update, Accumulator, Stage}

// table is one dialect's view of one category.
type table struct {
	lexemes map[string]string // canonical → lexeme
	aliases map[string]string // parse-only lexeme → canonical
}

var tables = map[qir.Dialect]map[Category]table{
	qir.Document: {
		Comparison: {lexemes: map[string]string{
			"eq": "$eq", "ne": "$ne", "gt": "$gt", "gte": "$gte", "lt": "$lt", "lte": "$lte",
		}},
		Membership: {lexemes: map[string]string{"in": "$in", "notIn": "$nin"}},
		Pattern:    {lexemes: map[string]string{"regex": "$regex"}},
		Logical:    {lexemes: map[string]string{"and": "$and", "or": "$or", "not": "$nor"}},
		Existence:  {lexemes: map[string]string{"exists": "$exists"}},
		Update: {lexemes: map[string]string{
			"set": "$set", "unset": "$unset", "inc": "$inc", "mul": "$mul", "rename": "$rename",
			"min": "$min", "max": "$max", "currentDate": "$currentDate",
			"push": "$push", "pull": "$pull", "addToSet": "$addToSet",
		}},
		Accumulator: {lexemes: map[string]string{
			"sum": "$sum", "avg": "$avg", "min": "$min", "max": "$max", "count": "$count",
			"first": "$first", "last": "$last", "push": "$push", "addToSet": "$addToSet",
		}},
		Stage: {lexemes: map[string]string{
			"match": "$match", "group": "$group", "project": "$project", "sort": "$sort",
			"limit": "$limit", "skip": "$skip", "lookup": "$lookup", "unwind": "$unwind",
		}},
	},
	qir.Relational: {
		Comparison: {
			lexemes: map[string]string{"eq": "=", "ne": "<>", "gt": ">", "gte": ">=", "lt": "<", "lte": "<="},
			aliases: map[string]string{"!=": "ne", "==": "eq"},
		},
		Membership: {lexemes: map[string]string{"in": "IN", "notIn": "NOT IN"}},
		Pattern: {
			lexemes: map[string]string{"like": "LIKE", "ilike": "ILIKE", "regex": "REGEXP"},
			aliases: map[string]string{"RLIKE": "regex"},
		},
		Logical:   {lexemes: map[string]string{"and": "AND", "or": "OR", "not": "NOT"}},
		Existence: {lexemes: map[string]string{"exists": "IS NOT NULL", "notExists": "IS NULL"}},
		Update: {
			lexemes: map[string]string{"set": "=", "inc": "+", "mul": "*", "unset": "NULL", "currentDate": "CURRENT_TIMESTAMP"},
			aliases: map[string]string{"NOW": "currentDate", "NOW()": "currentDate"},
		},
		Accumulator: {lexemes: map[string]string{
			"sum": "SUM", "avg": "AVG", "min": "MIN", "max": "MAX", "count": "COUNT", "push": "ARRAY_AGG",
		}},
		Stage: {
			lexemes: map[string]string{
				"match": "WHERE", "group": "GROUP BY", "project": "SELECT", "sort": "ORDER BY",
				"limit": "LIMIT", "skip": "OFFSET", "lookup": "JOIN",
			},
			aliases: map[string]string{"HAVING": "match"},
		},
	},
}

// normalize folds relational lexemes to upper case.
func normalize(d qir.Dialect, lexeme string) string {
	if d == qir.Relational {
		return strings.ToUpper(strings.Join(strings.Fields(lexeme), " "))
	}
	return lexeme
}

// ToCanonical maps a dialect lexeme to its canonical operator.
func ToCanonical(d qir.Dialect, c Category, lexeme string) (string, error) {
	t, ok := tables[d][c]
	if !ok {
		return "", &qerr.UnsupportedOperatorError{Dialect: string(d), Category: string(c), Operator: lexeme}
	}
	want := normalize(d, lexeme)
	for op, lex := range t.lexemes {
		if lex == want {
			return op, nil
		}
	}
	if op, ok := t.aliases[want]; ok {
		return op, nil
	}
	return "", &qerr.UnsupportedOperatorError{Dialect: string(d), Category: string(c), Operator: lexeme}
}

// ToDialect maps a canonical operator to the dialect's lexeme.
func ToDialect(d qir.Dialect, c Category, op string) (string, error) {
	lex, ok := tables[d][c].lexemes[op]
	if !ok {
		return "", &qerr.UnsupportedOperatorError{Dialect: string(d), Category: string(c), Operator: op}
	}
	return lex, nil
}

// Supports reports whether the dialect has a lexeme for op.
func Supports(d qir.Dialect, c Category, op string) bool {
	_, ok := tables[d][c].lexemes[op]
	return ok
}

// Operators returns the canonical operators a dialect supports in a
// category, sorted.
func Operators(d qir.Dialect, c Category) []string {
	t := tables[d][c]
	ops := make([]string, 0, len(t.lexemes))
	for op := range t.lexemes {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// Lexemes returns every lexeme a dialect's parser recognises in a category,
// aliases included, sorted by descending length so longer forms match first.
func Lexemes(d qir.Dialect, c Category) []string {
	t := tables[d][c]
	out := make([]string, 0, len(t.lexemes)+len(t.aliases))
	for _, lex := range t.lexemes {
		out = append(out, lex)
	}
	for lex := range t.aliases {
		out = append(out, lex)
	}
	slices.SortFunc(out, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	return out
}
