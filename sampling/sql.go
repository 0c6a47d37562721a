package sampling

import (
	"regexp"
	"strconv"
	"strings"
)

// stripComments removes -- line comments and /* */ block comments that lie
// outside quoted text. Block comments nest, as in PostgreSQL. A removed block
// comment leaves a single space so adjacent tokens stay apart.
func stripComments(sql string) string {
	var sb strings.Builder
	sb.Grow(len(sql))

	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '\'' || c == '"':
			end := closingQuote(sql, i)
			sb.WriteString(sql[i:end])
			i = end

		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			depth := 0
			for i < len(sql) {
				if sql[i] == '/' && i+1 < len(sql) && sql[i+1] == '*' {
					depth++
					i += 2
					continue
				}
				if sql[i] == '*' && i+1 < len(sql) && sql[i+1] == '/' {
					depth--
					i += 2
					if depth == 0 {
						break
					}
					continue
				}
				i++
			}
			sb.WriteByte(' ')

		default:
			sb.WriteByte(c)
			i++
		}
	}

	return sb.String()
}

// closingQuote returns the index just past the quoted run starting at start.
// A doubled quote character is an escaped quote. An unterminated run extends
// to the end of the input.
func closingQuote(sql string, start int) int {
	q := sql[start]
	for i := start + 1; i < len(sql); i++ {
		if sql[i] != q {
			continue
		}
		if i+1 < len(sql) && sql[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(sql)
}

// maskQuoted replaces the contents of quoted text with spaces. The result has
// the same length as sql, so offsets found in it index sql.
func maskQuoted(sql string) string {
	b := []byte(sql)
	for i := 0; i < len(b); {
		if b[i] != '\'' && b[i] != '"' {
			i++
			continue
		}
		end := closingQuote(sql, i)
		for j := i + 1; j < end-1; j++ {
			b[j] = ' '
		}
		i = end
	}
	return string(b)
}

// cleanQuery strips comments, surrounding space and trailing semicolons.
func cleanQuery(sql string) string {
	sql = strings.TrimSpace(stripComments(sql))
	for strings.HasSuffix(sql, ";") {
		sql = strings.TrimSpace(strings.TrimSuffix(sql, ";"))
	}
	return sql
}

// wrapTriggers are the constructs after which a LIMIT may not simply be
// appended: existing pagination, aggregation and DISTINCT.
var wrapTriggers = regexp.MustCompile(`(?i)\b(?:LIMIT|OFFSET|FETCH|DISTINCT)\b|\bGROUP\s+BY\b|\b(?:SUM|COUNT|AVG|MAX|MIN)\s*\(`)

// needsWrap reports whether sql must be paginated from the outside.
func needsWrap(sql string) bool {
	return wrapTriggers.MatchString(maskQuoted(sql))
}

// paginate applies limit and offset to a comment-free query.
func paginate(sql string, limit, offset int) string {
	if offset == 0 && !needsWrap(sql) {
		return sql + "\nLIMIT " + strconv.Itoa(limit)
	}
	return "SELECT * FROM (\n" + sql + "\n) AS result LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)
}

// withClause is a query split into its leading CTE list and main statement.
type withClause struct {
	Recursive bool
	CTEs      []cte
	Body      string
}

type cte struct {
	Name string
	Text string

	// Quoted is set for a double-quoted name, which keeps its case.
	Quoted bool
}

var (
	withPrefix = regexp.MustCompile(`(?i)^WITH(\s+RECURSIVE)?\s+`)
	cteName    = regexp.MustCompile(`^(?:"[^"]*"|[A-Za-z_][A-Za-z0-9_]*)`)
	asKeyword  = regexp.MustCompile(`(?i)^AS\b`)
)

// splitWith splits a comment-free query that may start with WITH.
// A query without a WITH clause is returned whole as Body.
func splitWith(sql string) (*withClause, error) {
	masked := maskQuoted(sql)
	m := withPrefix.FindStringSubmatchIndex(masked)
	if m == nil {
		return &withClause{Body: sql}, nil
	}

	w := &withClause{Recursive: m[2] >= 0}
	i := m[1]
	for {
		name := cteName.FindString(masked[i:])
		if name == "" {
			return nil, configError(ErrMalformedQuery, "expected CTE name at offset %d", i)
		}
		start := i

		end, next, err := cteEnd(masked, i+len(name))
		if err != nil {
			return nil, err
		}
		w.CTEs = append(w.CTEs, cte{
			Name:   unquoteName(sql[start : start+len(name)]),
			Text:   sql[start:end],
			Quoted: strings.HasPrefix(name, `"`),
		})

		if next < len(masked) && masked[next] == ',' {
			i = skipSpace(masked, next+1)
			continue
		}
		w.Body = strings.TrimSpace(sql[next:])
		if w.Body == "" {
			return nil, configError(ErrMalformedQuery, "WITH clause has no main statement")
		}
		return w, nil
	}
}

// cteEnd scans one CTE definition starting after its name. It returns the
// offset just past the closing parenthesis of the definition and the offset
// of the next non-space character.
func cteEnd(masked string, i int) (end, next int, err error) {
	depth := 0
	for ; i < len(masked); i++ {
		switch masked[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return 0, 0, configError(ErrMalformedQuery, "unbalanced parenthesis at offset %d", i)
			}
			if depth > 0 {
				continue
			}
			k := skipSpace(masked, i+1)
			// a column list is followed by AS
			if asKeyword.MatchString(masked[k:]) {
				continue
			}
			return i + 1, k, nil
		}
	}
	return 0, 0, configError(ErrMalformedQuery, "unterminated CTE definition")
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r' || s[i] == '\f') {
		i++
	}
	return i
}

func unquoteName(name string) string {
	if strings.HasPrefix(name, `"`) {
		return strings.Trim(name, `"`)
	}
	return name
}
