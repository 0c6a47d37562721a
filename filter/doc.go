// Package filter compiles row filter expressions into parameterized SQL.
//
// A filter expression is restricted SQL-like text such as
//
//	age > 25 AND (status = 'active' OR tier IN ('gold', 'silver'))
//
// The package:
//   - Tokenizes the text (Tokenize) with a length bound
//   - Parses tokens into an AST (Parse) with a nesting depth bound
//   - Compiles the AST into a SQL fragment plus positional parameters (Compiler)
//
// # Basic Usage
//
//	frag, err := filter.Compile(ctx, "age > 25 AND status = 'active'", filter.Limits{},
//	    &filter.CompilerOptions{
//	        ValidColumns: []string{"age", "status"},
//	        ColumnTypes:  map[string]string{"age": "integer"},
//	    })
//	if err != nil {
//	    return err // *LexError, *ParseError or *ValidationError
//	}
//	rows, err := db.QueryContext(ctx, "SELECT * FROM t WHERE "+frag.SQL, frag.Params...)
//
// # Row Encoding
//
// Rows are JSON documents held in a single column (DataColumn, "data" by
// default). The payload may itself be wrapped under a nested key, so every
// column reference compiles to
//
//	COALESCE(data->'data'->>'age', data->>'age')
//
// which reads both flat and wrapped encodings. Set DisableNesting for the
// plain data->>'age' form.
//
// # Safety
//
// Literal values never appear in the SQL text; they always travel in
// Fragment.Params and bind as $1, $2, ... Column names are accepted only if
// they belong to CompilerOptions.ValidColumns and operators only if they are
// on the allow-list. Both checks run before any SQL is assembled for the
// condition.
//
// # Parameter Numbering
//
// CompilerOptions.ParamStart shifts placeholder numbering so several
// fragments can share one parameter space inside a larger statement:
// a fragment compiled with ParamStart 3 starts at $3.
//
// # Grammar
//
//	or_expr   = and_expr { "OR" and_expr } ;
//	and_expr  = primary { "AND" primary } ;
//	primary   = "(" or_expr ")" | condition ;
//	condition = identifier operator ( value | "(" value {"," value} ")" ) ;
//	operator  = "=" | "!=" | "<>" | ">" | ">=" | "<" | "<="
//	          | "IN" | "NOT IN" | "LIKE" | "ILIKE" | "NOT LIKE" | "NOT ILIKE"
//	          | "IS NULL" | "IS NOT NULL" ;
//
// There is no general unary NOT; NOT (...) is a parse error.
package filter
