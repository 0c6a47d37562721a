package sampling

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hugr-lab/preview-go/filter"
)

const (
	// DefaultCommitRowsTable maps (commit_id, logical_row_id) to row_hash.
	DefaultCommitRowsTable = "commit_rows"

	// DefaultRowsTable maps row_hash to the JSON row document.
	DefaultRowsTable = "row_contents"

	// DefaultSamplePercent is used when a sampled request leaves SamplePercent unset.
	DefaultSamplePercent = 10.0
)

// Options configures a Planner.
type Options struct {
	// CommitRowsTable is the commit index table.
	// OPTIONAL: defaults to DefaultCommitRowsTable. May be schema-qualified.
	CommitRowsTable string

	// RowsTable is the row content table.
	// OPTIONAL: defaults to DefaultRowsTable. May be schema-qualified.
	RowsTable string

	// DefaultSamplePercent applies to sampled requests without SamplePercent.
	// OPTIONAL: defaults to DefaultSamplePercent.
	DefaultSamplePercent float64

	// FilterLimits bounds source filter expressions.
	// OPTIONAL: zero values select the filter package defaults.
	FilterLimits filter.Limits

	// NestedKey and DisableNesting are passed to the filter compiler and the
	// column projections.
	NestedKey      string
	DisableNesting bool
}

// Plan is composed SQL ready for execution.
type Plan struct {
	SQL    string
	Params []any

	// Approximate is set for plans that sample rows.
	Approximate bool

	// SamplePercent is the percentage of candidate rows kept, 100 for exact plans.
	SamplePercent float64
}

// Planner builds exact and sampled preview queries.
// A Planner is immutable and safe for concurrent use.
type Planner struct {
	commitRows     string
	rows           string
	defaultPercent float64
	limits         filter.Limits
	nestedKey      string
	disableNesting bool
}

// NewPlanner creates a planner. It fails if a table name or the default
// sample percent is invalid.
func NewPlanner(opts Options) (*Planner, error) {
	p := &Planner{
		commitRows:     opts.CommitRowsTable,
		rows:           opts.RowsTable,
		defaultPercent: opts.DefaultSamplePercent,
		limits:         opts.FilterLimits,
		nestedKey:      opts.NestedKey,
		disableNesting: opts.DisableNesting,
	}
	if p.commitRows == "" {
		p.commitRows = DefaultCommitRowsTable
	}
	if p.rows == "" {
		p.rows = DefaultRowsTable
	}
	if p.defaultPercent == 0 {
		p.defaultPercent = DefaultSamplePercent
	}

	if err := ValidateTable(p.commitRows); err != nil {
		return nil, err
	}
	if err := ValidateTable(p.rows); err != nil {
		return nil, err
	}
	if err := ValidatePercent(p.defaultPercent); err != nil {
		return nil, err
	}
	return p, nil
}

// SamplePercent resolves the percentage a sampled plan for req would use.
func (p *Planner) SamplePercent(req *Request) (float64, error) {
	if req.SamplePercent == nil {
		return p.defaultPercent, nil
	}
	if err := ValidatePercent(*req.SamplePercent); err != nil {
		return 0, err
	}
	return *req.SamplePercent, nil
}

// Plan builds the sampled plan when req.QuickPreview is set and the exact
// plan otherwise.
func (p *Planner) Plan(ctx context.Context, req *Request) (*Plan, error) {
	if req.QuickPreview {
		return p.Approximate(ctx, req)
	}
	return p.Exact(ctx, req)
}

// Exact builds a plan that reads every matching row of each source and
// paginates the query result.
func (p *Planner) Exact(ctx context.Context, req *Request) (*Plan, error) {
	return p.build(ctx, req, 100, false, true)
}

// Approximate builds a plan that samples candidate row keys of each source
// before joining them to the row content table. Results are approximate.
func (p *Planner) Approximate(ctx context.Context, req *Request) (*Plan, error) {
	percent, err := p.SamplePercent(req)
	if err != nil {
		return nil, err
	}
	plan, err := p.build(ctx, req, percent, true, true)
	if err != nil {
		return nil, err
	}
	plan.Approximate = true
	return plan, nil
}

// Unpaged builds the exact plan without pagination. It serves total row counts.
func (p *Planner) Unpaged(ctx context.Context, req *Request) (*Plan, error) {
	return p.build(ctx, req, 100, false, false)
}

// OptimizePreviewQuery paginates a query. The query is wrapped as
//
//	SELECT * FROM (<query>) AS result LIMIT <limit> OFFSET <offset>
//
// when it already paginates, aggregates or uses DISTINCT, or when offset is
// not zero. Otherwise LIMIT is appended so an ORDER BY stays visible to the
// database planner.
func OptimizePreviewQuery(sql string, limit, offset int) (string, error) {
	if err := checkPagination(limit, offset); err != nil {
		return "", err
	}
	sql = cleanQuery(sql)
	if sql == "" {
		return "", &ConfigError{Reason: ErrEmptyQuery}
	}
	return paginate(sql, limit, offset), nil
}

func checkPagination(limit, offset int) error {
	if limit < 0 || offset < 0 {
		return configError(ErrInvalidPagination, "limit %d offset %d", limit, offset)
	}
	return nil
}

// build composes the per-source CTEs with the user query.
func (p *Planner) build(ctx context.Context, req *Request, percent float64, sampled, paged bool) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if paged {
		if err := checkPagination(req.Limit, req.Offset); err != nil {
			return nil, err
		}
	}

	query := cleanQuery(req.SQL)
	if query == "" {
		return nil, &ConfigError{Reason: ErrEmptyQuery}
	}
	with, err := splitWith(query)
	if err != nil {
		return nil, err
	}
	if err := checkNames(req.Sources, with.CTEs, sampled); err != nil {
		return nil, err
	}

	b := &builder{planner: p}
	ctes := make([]string, 0, 2*len(req.Sources)+len(with.CTEs))
	for i := range req.Sources {
		src := &req.Sources[i]
		var defs []string
		if sampled {
			defs, err = b.sampledSource(src, percent, req.Seed)
		} else {
			defs, err = b.exactSource(src)
		}
		if err != nil {
			return nil, err
		}
		ctes = append(ctes, defs...)
	}
	for _, c := range with.CTEs {
		ctes = append(ctes, c.Text)
	}

	body := with.Body
	if paged {
		body = paginate(body, req.Limit, req.Offset)
	}

	var sb strings.Builder
	if len(ctes) > 0 {
		sb.WriteString("WITH ")
		if with.Recursive {
			sb.WriteString("RECURSIVE ")
		}
		sb.WriteString(strings.Join(ctes, ",\n"))
		sb.WriteString("\n")
	}
	sb.WriteString(body)

	return &Plan{SQL: sb.String(), Params: b.params, SamplePercent: percent}, nil
}

// checkNames validates aliases and rejects CTE name collisions. Unquoted
// names fold to lower case; quoted names compare as written.
func checkNames(sources []Source, userCTEs []cte, sampled bool) error {
	seen := make(map[string]string, 2*len(sources)+len(userCTEs))
	claim := func(name string, quoted bool, owner string) error {
		key := name
		if !quoted {
			key = strings.ToLower(name)
		}
		if prev, ok := seen[key]; ok {
			return configError(ErrDuplicateAlias, "%q used by %s and %s", name, prev, owner)
		}
		seen[key] = owner
		return nil
	}

	for i := range sources {
		alias := sources[i].Alias
		if err := ValidateAlias(alias); err != nil {
			return err
		}
		owner := fmt.Sprintf("source %d", i)
		if err := claim(alias, false, owner); err != nil {
			return err
		}
		if sampled {
			if err := claim(alias+"_filtered", false, owner); err != nil {
				return err
			}
		}
	}
	for _, c := range userCTEs {
		if err := claim(c.Name, c.Quoted, "the query WITH clause"); err != nil {
			return err
		}
	}
	return nil
}

// builder accumulates the shared parameter list of one plan.
type builder struct {
	planner *Planner
	params  []any
}

func (b *builder) bind(v any) string {
	b.params = append(b.params, v)
	return "$" + strconv.Itoa(len(b.params))
}

// keyPredicate selects the commit and table rows of the commit index.
func (b *builder) keyPredicate(src *Source) string {
	pred := "cr.commit_id = " + b.bind(src.CommitID)
	if src.TableKey != "" {
		pred += " AND cr.logical_row_id LIKE " + b.bind(escapeLike(src.TableKey)+":%") + ` ESCAPE '\'`
	}
	return pred
}

// selectList renders the data CTE columns read from r.data.
func (b *builder) selectList(src *Source, rowID string) (string, error) {
	parts := []string{rowID + " AS _logical_row_id", "r.data AS data"}
	nested := b.planner.nestedKey
	if nested == "" {
		nested = "data"
	}
	if b.planner.disableNesting {
		nested = ""
	}
	for _, col := range src.Columns {
		if col == "" || col == "_logical_row_id" || col == "data" {
			return "", configError(ErrInvalidColumn, "%q in source %q", col, src.Alias)
		}
		expr := filter.JSONExtract("r.data", nested, col)
		if cast := filter.CastFor(src.ColumnTypes[col]); cast != "" {
			expr += "::" + cast
		}
		parts = append(parts, expr+" AS "+filter.QuoteIdentifier(col))
	}
	return strings.Join(parts, ", "), nil
}

// sourceFilter compiles the source filter against r.data, continuing the
// plan parameter numbering.
func (b *builder) sourceFilter(src *Source) (string, error) {
	if strings.TrimSpace(src.Filter) == "" {
		return "", nil
	}
	expr, err := filter.Parse(src.Filter, b.planner.limits)
	if err != nil {
		return "", err
	}
	frag, err := filter.NewCompiler(&filter.CompilerOptions{
		ValidColumns:   src.validColumns(),
		ColumnTypes:    src.ColumnTypes,
		ParamStart:     len(b.params) + 1,
		DataColumn:     "r.data",
		NestedKey:      b.planner.nestedKey,
		DisableNesting: b.planner.disableNesting,
	}).ToSQL(expr)
	if err != nil {
		return "", err
	}
	b.params = append(b.params, frag.Params...)
	return frag.SQL, nil
}

// exactSource renders one CTE joining the commit index to row contents.
func (b *builder) exactSource(src *Source) ([]string, error) {
	selectList, err := b.selectList(src, "cr.logical_row_id")
	if err != nil {
		return nil, err
	}
	where := b.keyPredicate(src)
	cond, err := b.sourceFilter(src)
	if err != nil {
		return nil, err
	}
	if cond != "" {
		where += "\n      AND " + cond
	}

	return []string{fmt.Sprintf(`%s AS (
    SELECT %s
    FROM %s cr
    JOIN %s r ON r.row_hash = cr.row_hash
    WHERE %s
)`, src.Alias, selectList, b.planner.commitRows, b.planner.rows, where)}, nil
}

// sampledSource renders the key sampling CTE and the data CTE joining only
// the sampled keys to row contents.
func (b *builder) sampledSource(src *Source, percent float64, seed string) ([]string, error) {
	where := b.keyPredicate(src)
	if sample := b.samplePredicate(percent, seed); sample != "" {
		where += "\n      AND " + sample
	}
	keys := fmt.Sprintf(`%s_filtered AS (
    SELECT cr.logical_row_id, cr.row_hash
    FROM %s cr
    WHERE %s
)`, src.Alias, b.planner.commitRows, where)

	selectList, err := b.selectList(src, "f.logical_row_id")
	if err != nil {
		return nil, err
	}
	data := fmt.Sprintf(`%s AS (
    SELECT %s
    FROM %s_filtered f
    JOIN %s r ON r.row_hash = f.row_hash`, src.Alias, selectList, src.Alias, b.planner.rows)
	cond, err := b.sourceFilter(src)
	if err != nil {
		return nil, err
	}
	if cond != "" {
		data += "\n    WHERE " + cond
	}
	data += "\n)"

	return []string{keys, data}, nil
}

// samplePredicate keeps a row with probability percent/100. With a seed the
// decision is a function of the row id and the seed. At 100 percent there is
// no predicate.
func (b *builder) samplePredicate(percent float64, seed string) string {
	if percent >= 100 {
		return ""
	}
	ratio := percent / 100
	if seed == "" {
		return "random() < " + strconv.FormatFloat(ratio, 'f', -1, 64)
	}
	threshold := uint64(ratio * (1 << 32))
	return fmt.Sprintf("substr(md5(cr.logical_row_id || '#' || CAST(%s AS VARCHAR)), 1, 8) < '%08x'", b.bind(seed), threshold)
}
