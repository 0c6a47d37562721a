package sampling

import (
	"math"
	"regexp"
	"strings"
)

// Source binds a query alias to one table of a dataset commit.
type Source struct {
	// Alias is the CTE name the query reads the table under.
	Alias string `json:"alias"`

	// DatasetID identifies the dataset. It is used for cache invalidation and
	// is not part of the generated SQL.
	DatasetID string `json:"dataset_id"`

	// CommitID selects the commit whose rows are read.
	CommitID string `json:"commit_id"`

	// TableKey selects rows whose logical id starts with "<TableKey>:".
	// Empty selects every row of the commit.
	TableKey string `json:"table_key,omitempty"`

	// Columns are projected from the JSON document as named columns.
	Columns []string `json:"columns,omitempty"`

	// ColumnTypes gives cast types for projected and filtered columns.
	ColumnTypes map[string]string `json:"column_types,omitempty"`

	// Filter is an optional filter expression applied to the source rows.
	Filter string `json:"filter,omitempty"`
}

// validColumns returns the columns a source filter may reference.
func (s *Source) validColumns() []string {
	cols := make([]string, 0, len(s.Columns)+len(s.ColumnTypes))
	cols = append(cols, s.Columns...)
	for col := range s.ColumnTypes {
		cols = append(cols, col)
	}
	return cols
}

// Request is one preview query.
type Request struct {
	SQL     string   `json:"sql"`
	Sources []Source `json:"sources"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset,omitempty"`

	// QuickPreview selects the sampled plan.
	QuickPreview bool `json:"quick_preview,omitempty"`

	// SamplePercent is the share of candidate rows kept by the sampled plan.
	// Nil selects the planner default.
	SamplePercent *float64 `json:"sample_percent,omitempty"`

	// Seed makes the sampled plan deterministic: the same seed keeps the
	// same rows across calls.
	Seed string `json:"seed,omitempty"`
}

var (
	aliasPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// reservedWords cannot be used unquoted as CTE names.
var reservedWords = map[string]struct{}{
	"ALL": {}, "AND": {}, "ANY": {}, "AS": {}, "ASC": {}, "BETWEEN": {}, "BY": {},
	"CASE": {}, "CAST": {}, "CHECK": {}, "COLUMN": {}, "CONSTRAINT": {}, "CREATE": {},
	"CROSS": {}, "DEFAULT": {}, "DESC": {}, "DISTINCT": {}, "DO": {}, "ELSE": {},
	"END": {}, "EXCEPT": {}, "FALSE": {}, "FETCH": {}, "FOR": {}, "FOREIGN": {},
	"FROM": {}, "FULL": {}, "GRANT": {}, "GROUP": {}, "HAVING": {}, "IN": {},
	"INNER": {}, "INTERSECT": {}, "INTO": {}, "IS": {}, "JOIN": {}, "LATERAL": {},
	"LEFT": {}, "LIKE": {}, "LIMIT": {}, "NATURAL": {}, "NOT": {}, "NULL": {},
	"OFFSET": {}, "ON": {}, "ONLY": {}, "OR": {}, "ORDER": {}, "OUTER": {},
	"PRIMARY": {}, "RECURSIVE": {}, "REFERENCES": {}, "RIGHT": {}, "SELECT": {},
	"SOME": {}, "TABLE": {}, "THEN": {}, "TO": {}, "TRUE": {}, "UNION": {},
	"UNIQUE": {}, "USING": {}, "WHEN": {}, "WHERE": {}, "WINDOW": {}, "WITH": {},
}

// ValidateAlias checks that alias can be interpolated as an unquoted identifier.
func ValidateAlias(alias string) error {
	if !aliasPattern.MatchString(alias) {
		return configError(ErrInvalidAlias, "%q must match %s", alias, aliasPattern)
	}
	if _, ok := reservedWords[strings.ToUpper(alias)]; ok {
		return configError(ErrInvalidAlias, "%q is a reserved word", alias)
	}
	return nil
}

// ValidateTable checks a row store table name.
func ValidateTable(name string) error {
	if !tablePattern.MatchString(name) {
		return configError(ErrInvalidTable, "%q", name)
	}
	return nil
}

// ValidatePercent checks that percent lies in (0, 100].
func ValidatePercent(percent float64) error {
	if math.IsNaN(percent) || percent <= 0 || percent > 100 {
		return configError(ErrSamplePercent, "%g not in (0, 100]", percent)
	}
	return nil
}

// escapeLike escapes LIKE wildcards with a backslash.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
