// Package sampling composes preview queries over a content-addressed row store.
//
// Rows live in two tables. The commit index maps a commit and a logical row
// id ("<table key>:<id>") to a row hash; the content table maps the hash to
// a JSON document:
//
//	commit_rows(commit_id, logical_row_id, row_hash)
//	row_contents(row_hash, data)
//
// A Request names its tables as Sources. The Planner renders every source as
// a CTE under its alias, so the user SQL reads plain relations with the
// columns _logical_row_id, data and any projected Columns.
//
// # Exact Plans
//
// Exact joins the commit index to row contents and paginates the user query
// (see OptimizePreviewQuery).
//
// # Sampled Plans
//
// Approximate samples candidate keys of the commit index before the join, so
// only the sampled rows reach the content table:
//
//	users_filtered AS (
//	    SELECT cr.logical_row_id, cr.row_hash
//	    FROM commit_rows cr
//	    WHERE cr.commit_id = $1 AND random() < 0.1
//	),
//	users AS (
//	    SELECT ... FROM users_filtered f JOIN row_contents r ON r.row_hash = f.row_hash
//	)
//
// Results of such plans are approximate and flagged so in Plan.Approximate.
// With Request.Seed set, the random predicate is replaced by a hash of the
// row id and the seed, which keeps the same rows on every call.
//
// # Identifiers
//
// Aliases and table names cannot be bound as parameters. They are checked
// against a strict identifier pattern before interpolation; commit ids, table
// keys, seeds and filter values are always bound.
package sampling
