package querysql

// reserved lists words that are never read as bare column names and are
// always quoted when emitted as identifiers.
var reserved = map[string]bool{
	"ALL": true, "AND": true, "AS": true, "ASC": true, "BETWEEN": true, "BY": true,
	"CASE": true, "CHECK": true, "CONSTRAINT": true, "CREATE": true, "CROSS": true,
	"DEFAULT": true, "DELETE": true, "DESC": true, "DISTINCT": true, "ELSE": true,
	"END": true, "EXCEPT": true, "EXISTS": true, "FALSE": true, "FOREIGN": true,
	"FROM": true, "FULL": true, "GROUP": true, "HAVING": true, "ILIKE": true, "IN": true,
	"INDEX": true, "INNER": true, "INSERT": true, "INTERSECT": true, "INTO": true,
	"IS": true, "JOIN": true, "KEY": true, "LEFT": true, "LIKE": true, "LIMIT": true,
	"NOT": true, "NULL": true, "NULLS": true, "OFFSET": true, "ON": true, "OR": true,
	"ORDER": true, "OUTER": true, "OVER": true, "PRIMARY": true, "REFERENCES": true,
	"REGEXP": true, "RIGHT": true, "RLIKE": true, "SELECT": true, "SET": true,
	"TABLE": true, "THEN": true, "TRUE": true, "UNION": true, "UNIQUE": true,
	"UPDATE": true, "USING": true, "VALUES": true, "WHEN": true, "WHERE": true,
	"WINDOW": true, "WITH": true,
}

// isReserved reports whether t is an unquoted reserved word.
func isReserved(t token) bool {
	return t.kind == tokIdent && !t.quoted && reserved[t.upper]
}

// Clause names, also used as RelationalSyntaxError.Clause.
const (
	clauseSelect  = "SELECT"
	clauseFrom    = "FROM"
	clauseJoin    = "JOIN"
	clauseWhere   = "WHERE"
	clauseGroupBy = "GROUP BY"
	clauseHaving  = "HAVING"
	clauseOrderBy = "ORDER BY"
	clauseLimit   = "LIMIT"
	clauseOffset  = "OFFSET"
)

// clauseRank fixes the order clauses must appear in. LIMIT and OFFSET
// share a rank and may appear in either order.
var clauseRank = map[string]int{
	clauseSelect:  0,
	clauseFrom:    1,
	clauseJoin:    2,
	clauseWhere:   3,
	clauseGroupBy: 4,
	clauseHaving:  5,
	clauseOrderBy: 6,
	clauseLimit:   7,
	clauseOffset:  7,
}
