package translate

import (
	"errors"
	"regexp"
	"strings"

	"github.com/roach88/querybridge/internal/qir"
)

// ErrUnknownDialect is returned by Detect when no dialect scores.
var ErrUnknownDialect = errors.New("cannot detect query dialect")

// Markers that only one dialect produces. Each match scores definite.
var (
	recordMarkers = []*regexp.Regexp{
		regexp.MustCompile(`^\s*\{\s*"(version|statements)"\s*:`),
		regexp.MustCompile(`(?m)^(version|statements)\s*:`),
	}
	documentMarkers = []*regexp.Regexp{
		regexp.MustCompile(`\bdb\.(\w+|getCollection\([^)]*\))\.\w+\(`),
		regexp.MustCompile(`\bdb\.createCollection\(`),
		regexp.MustCompile(`\{\s*\$[a-zA-Z]+\s*:`),
		regexp.MustCompile(`\b(ObjectId|ISODate)\(`),
		regexp.MustCompile(`\baggregate\s*\(\s*\[`),
		regexp.MustCompile(`\$(group|match|project|lookup|unwind)\b`),
	}
	// Vendor extensions of relational text.
	relationalMarkers = []*regexp.Regexp{
		regexp.MustCompile(`::\w+`),
		regexp.MustCompile(`(?i)\b(JSONB|UUID|INET|CIDR|TSVECTOR|HSTORE)\b`),
		regexp.MustCompile(`(?i)\b(RETURNING|ON CONFLICT|WITH RECURSIVE|LATERAL|SERIAL|BIGSERIAL)\b`),
		regexp.MustCompile(`(?i)\bPRAGMA\s+\w+`),
		regexp.MustCompile(`(?i)\b(AUTOINCREMENT|WITHOUT ROWID)\b`),
	}

	sqlKeywords = regexp.MustCompile(`\b(SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP|FROM|WHERE|GROUP BY|ORDER BY|HAVING|JOIN|UNION|INDEX|VIEW)\b`)
	sqlFeatures = regexp.MustCompile(`(?i)\b(JOIN|UNION|CONSTRAINT|FOREIGN KEY|PRIMARY KEY|CHECK|DISTINCT|EXISTS|LIMIT|OFFSET)\b`)
	sqlJoins    = regexp.MustCompile(`(?i)\b(LEFT JOIN|RIGHT JOIN|FULL OUTER JOIN|INNER JOIN|CROSS JOIN|NATURAL JOIN)\b`)
	sqlShapes   = []*regexp.Regexp{
		regexp.MustCompile(`(?is)\b(SELECT|INSERT|UPDATE|DELETE)\b.*\b(FROM|INTO|SET|VALUES)\b`),
		regexp.MustCompile(`(?is)\b(CREATE|ALTER|DROP)\b.*\b(TABLE|VIEW|INDEX)\b`),
	}
)

const definite = 100

// Detect guesses the dialect of input. Definite markers win; without any,
// relational keywords are scored. Ties go to the earlier dialect in
// qir.Dialects.
func Detect(input string) (qir.Dialect, error) {
	scores := map[qir.Dialect]int{
		qir.Record:     definite * matches(recordMarkers, input),
		qir.Document:   definite * matches(documentMarkers, input),
		qir.Relational: definite * matches(relationalMarkers, input),
	}
	if scores[qir.Record]+scores[qir.Document]+scores[qir.Relational] == 0 {
		upper := strings.ToUpper(input)
		score := 2*len(sqlKeywords.FindAllStringIndex(upper, -1)) +
			3*len(sqlFeatures.FindAllStringIndex(input, -1)) +
			5*len(sqlJoins.FindAllStringIndex(input, -1))
		if matches(sqlShapes, input) > 0 {
			score += 5
		}
		scores[qir.Relational] = score
	}

	best, bestScore := qir.Dialect(""), 0
	for _, d := range qir.Dialects {
		if scores[d] > bestScore {
			best, bestScore = d, scores[d]
		}
	}
	if bestScore == 0 {
		return "", ErrUnknownDialect
	}
	return best, nil
}

func matches(patterns []*regexp.Regexp, input string) int {
	n := 0
	for _, re := range patterns {
		if re.MatchString(input) {
			n++
		}
	}
	return n
}
