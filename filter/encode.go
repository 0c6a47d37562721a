package filter

import "strings"

// escapeString escapes single quotes in a string value for SQL.
func escapeString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// quoteLiteral returns a SQL string literal with proper escaping.
// Only used for JSON keys drawn from validated column names.
func quoteLiteral(s string) string {
	return "'" + escapeString(s) + "'"
}

// QuoteIdentifier returns a double-quoted identifier if needed.
func QuoteIdentifier(name string) string {
	if needsQuoting(name) {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
	return name
}

// JSONExtract returns the SQL expression reading column from a JSON document
// column as text. With a non-empty nestedKey the payload may sit either at
// the top level or under nestedKey:
//
//	COALESCE(data->'data'->>'age', data->>'age')
//
// With an empty nestedKey the plain form (data->>'age') is returned.
func JSONExtract(dataColumn, nestedKey, column string) string {
	key := quoteLiteral(column)
	if nestedKey == "" {
		return "(" + dataColumn + "->>" + key + ")"
	}
	return "COALESCE(" + dataColumn + "->" + quoteLiteral(nestedKey) + "->>" + key + ", " + dataColumn + "->>" + key + ")"
}

// needsQuoting returns true if the identifier needs quoting.
func needsQuoting(name string) bool {
	if len(name) == 0 {
		return true
	}

	// Check first character (must be letter or underscore)
	c := name[0]
	if !isLetter(c) && c != '_' {
		return true
	}

	// Check remaining characters (letters, digits, or underscore)
	for i := 1; i < len(name); i++ {
		c = name[i]
		if !isLetter(c) && !isDigit(c) && c != '_' {
			return true
		}
	}

	// Upper case letters fold in Postgres unless quoted
	if strings.ToLower(name) != name {
		return true
	}

	switch strings.ToUpper(name) {
	case "SELECT", "FROM", "WHERE", "AND", "OR", "NOT", "NULL", "TRUE", "FALSE",
		"INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER", "TABLE", "INDEX",
		"JOIN", "LEFT", "RIGHT", "INNER", "OUTER", "ON", "AS", "IN", "IS", "LIKE", "ILIKE",
		"BETWEEN", "EXISTS", "CASE", "WHEN", "THEN", "ELSE", "END", "ORDER", "BY",
		"GROUP", "HAVING", "LIMIT", "OFFSET", "UNION", "EXCEPT", "INTERSECT",
		"ALL", "DISTINCT", "VALUES", "SET", "INTO", "PRIMARY", "KEY", "FOREIGN",
		"REFERENCES", "CONSTRAINT", "DEFAULT", "CHECK", "UNIQUE", "ASC", "DESC",
		"NULLS", "FIRST", "LAST", "CAST", "INTERVAL", "DATE", "TIME", "TIMESTAMP",
		"USER", "WITH", "FETCH", "ROWS", "ONLY":
		return true
	}

	return false
}

// isLetter returns true if c is an ASCII letter.
func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// isDigit returns true if c is an ASCII digit.
func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
