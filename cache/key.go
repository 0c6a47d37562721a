package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hugr-lab/preview-go/internal/msgpack"
	"github.com/hugr-lab/preview-go/sampling"
)

// ErrMalformedKey is returned for queries that cannot form a cache key.
var ErrMalformedKey = errors.New("malformed cache key")

// Query identifies a preview result.
// Two queries whose sources differ only in order share a key.
type Query struct {
	SQL     string
	Sources []sampling.Source
	Limit   int
	Offset  int

	// QuickPreview, SamplePercent and Seed keep sampled and exact answers
	// for the same SQL apart.
	QuickPreview  bool
	SamplePercent float64
	Seed          string
}

type keySource struct {
	Alias       string            `msgpack:"alias"`
	DatasetID   string            `msgpack:"dataset_id"`
	CommitID    string            `msgpack:"commit_id"`
	TableKey    string            `msgpack:"table_key"`
	Columns     []string          `msgpack:"columns,omitempty"`
	ColumnTypes map[string]string `msgpack:"column_types,omitempty"`
	Filter      string            `msgpack:"filter,omitempty"`
}

type keyDoc struct {
	SQL           string      `msgpack:"sql"`
	Sources       []keySource `msgpack:"sources"`
	Limit         int         `msgpack:"limit"`
	Offset        int         `msgpack:"offset"`
	QuickPreview  bool        `msgpack:"quick_preview"`
	SamplePercent float64     `msgpack:"sample_percent"`
	Seed          string      `msgpack:"seed,omitempty"`
}

func (q *Query) validate() error {
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrMalformedKey, q.Limit)
	}
	if q.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrMalformedKey, q.Offset)
	}
	for i, src := range q.Sources {
		if src.Alias == "" {
			return fmt.Errorf("%w: source %d has no alias", ErrMalformedKey, i)
		}
	}
	return nil
}

// Key returns the cache key of q: the hex SHA-256 of its MessagePack
// encoding with sources sorted by alias.
func (q *Query) Key() (string, error) {
	if err := q.validate(); err != nil {
		return "", err
	}

	doc := keyDoc{
		SQL:           q.SQL,
		Sources:       make([]keySource, len(q.Sources)),
		Limit:         q.Limit,
		Offset:        q.Offset,
		QuickPreview:  q.QuickPreview,
		SamplePercent: q.SamplePercent,
		Seed:          q.Seed,
	}
	for i, src := range q.Sources {
		doc.Sources[i] = keySource{
			Alias:       src.Alias,
			DatasetID:   src.DatasetID,
			CommitID:    src.CommitID,
			TableKey:    src.TableKey,
			Columns:     src.Columns,
			ColumnTypes: src.ColumnTypes,
			Filter:      src.Filter,
		}
	}
	slices.SortStableFunc(doc.Sources, func(a, b keySource) int {
		return strings.Compare(a.Alias, b.Alias)
	})

	data, err := msgpack.Encode(doc)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// datasets returns the distinct dataset ids referenced by q.
func (q *Query) datasets() []string {
	var ids []string
	for _, src := range q.Sources {
		if src.DatasetID != "" && !slices.Contains(ids, src.DatasetID) {
			ids = append(ids, src.DatasetID)
		}
	}
	return ids
}
