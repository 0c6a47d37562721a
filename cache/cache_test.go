package cache

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/hugr-lab/preview-go/sampling"
	"github.com/hugr-lab/preview-go/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, opts Options) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	if opts.Clock == nil {
		opts.Clock = clock.Now
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, clock
}

func query(sql string) *Query {
	return &Query{
		SQL:     sql,
		Sources: []sampling.Source{{Alias: "users", DatasetID: "ds1", CommitID: "c1", TableKey: "users"}},
		Limit:   100,
	}
}

func entry(n int) *Entry {
	total := int64(n)
	return &Entry{
		Rows:          []map[string]any{{"id": int64(n), "name": fmt.Sprintf("row%d", n)}},
		Columns:       []store.Column{{Name: "id", DatabaseType: "BIGINT"}, {Name: "name", DatabaseType: "VARCHAR"}},
		TotalRowCount: &total,
		ExecutionTime: 15 * time.Millisecond,
	}
}

func TestPutGet(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(fmt.Sprintf("compress=%v", compress), func(t *testing.T) {
			c, clock := newTestCache(t, Options{Compress: compress})
			q := query("SELECT * FROM users")

			if err := c.Put(q, entry(1)); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			got, err := c.Get(q)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got == nil {
				t.Fatal("expected a hit")
			}

			want := entry(1)
			if !reflect.DeepEqual(got.Rows, want.Rows) {
				t.Errorf("expected rows %v, got %v", want.Rows, got.Rows)
			}
			if !reflect.DeepEqual(got.Columns, want.Columns) {
				t.Errorf("expected columns %v, got %v", want.Columns, got.Columns)
			}
			if got.TotalRowCount == nil || *got.TotalRowCount != 1 {
				t.Errorf("expected total 1, got %v", got.TotalRowCount)
			}
			if got.ExecutionTime != want.ExecutionTime {
				t.Errorf("expected %v, got %v", want.ExecutionTime, got.ExecutionTime)
			}
			if !got.CachedAt.Equal(clock.Now()) {
				t.Errorf("expected cached_at %v, got %v", clock.Now(), got.CachedAt)
			}
			key, _ := q.Key()
			if got.Key != key {
				t.Errorf("expected key '%s', got '%s'", key, got.Key)
			}
		})
	}
}

func TestGetMiss(t *testing.T) {
	c, _ := newTestCache(t, Options{})

	got, err := c.Get(query("SELECT 1"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on miss, got %+v", got)
	}
	if s := c.Stats(); s.Misses != 1 || s.Hits != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestApproximateFlagsSurvive(t *testing.T) {
	c, _ := newTestCache(t, Options{})
	q := query("SELECT * FROM users")
	q.QuickPreview = true
	q.SamplePercent = 10

	e := entry(1)
	e.Approximate = true
	e.SamplePercent = 10
	e.Fallback = true
	e.FallbackReason = "sampled query failed"
	e.Truncated = true
	if err := c.Put(q, e); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := c.Get(q)
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if !got.Approximate || got.SamplePercent != 10 || !got.Fallback || got.FallbackReason != e.FallbackReason || !got.Truncated {
		t.Errorf("flags lost: %+v", got.Entry)
	}

	exact := query("SELECT * FROM users")
	if got, _ := c.Get(exact); got != nil {
		t.Error("exact query must not hit the sampled entry")
	}
}

func TestTTL(t *testing.T) {
	c, clock := newTestCache(t, Options{TTL: time.Minute})
	q := query("SELECT 1")
	if err := c.Put(q, entry(1)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	clock.Advance(time.Minute)
	if got, _ := c.Get(q); got == nil {
		t.Fatal("expected hit at exactly the TTL")
	}

	clock.Advance(time.Second)
	got, err := c.Get(q)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Error("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be removed, %d left", c.Len())
	}
	if s := c.Stats(); s.Expirations != 1 {
		t.Errorf("expected 1 expiration, got %d", s.Expirations)
	}
}

func TestPutRefreshesAge(t *testing.T) {
	c, clock := newTestCache(t, Options{TTL: time.Minute})
	q := query("SELECT 1")

	c.Put(q, entry(1))
	clock.Advance(50 * time.Second)
	c.Put(q, entry(2))
	clock.Advance(50 * time.Second)

	got, _ := c.Get(q)
	if got == nil {
		t.Fatal("expected hit after refresh")
	}
	if got.Rows[0]["id"] != int64(2) {
		t.Errorf("expected replaced entry, got %v", got.Rows)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}

func TestLRUEviction(t *testing.T) {
	c, _ := newTestCache(t, Options{Capacity: 2})
	a, b, d := query("SELECT 'a'"), query("SELECT 'b'"), query("SELECT 'd'")

	c.Put(a, entry(1))
	c.Put(b, entry(2))

	// touch a so b becomes least recently used
	if got, _ := c.Get(a); got == nil {
		t.Fatal("expected hit for a")
	}
	c.Put(d, entry(3))

	if got, _ := c.Get(b); got != nil {
		t.Error("expected b to be evicted")
	}
	if got, _ := c.Get(a); got == nil {
		t.Error("expected a to survive")
	}
	if got, _ := c.Get(d); got == nil {
		t.Error("expected d to be present")
	}
	if s := c.Stats(); s.Evictions != 1 || s.Entries != 2 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestPutExistingKeyDoesNotEvict(t *testing.T) {
	c, _ := newTestCache(t, Options{Capacity: 2})
	a, b := query("SELECT 'a'"), query("SELECT 'b'")

	c.Put(a, entry(1))
	c.Put(b, entry(2))
	c.Put(a, entry(3))

	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}
	if got, _ := c.Get(b); got == nil {
		t.Error("expected b to survive an update of a")
	}
}

func TestInvalidateDataset(t *testing.T) {
	c, _ := newTestCache(t, Options{})

	q1 := query("SELECT 1")
	q2 := query("SELECT 2")
	q2.Sources = append(q2.Sources, sampling.Source{Alias: "orders", DatasetID: "ds2", CommitID: "c9", TableKey: "orders"})
	q3 := query("SELECT 3")
	q3.Sources = []sampling.Source{{Alias: "orders", DatasetID: "ds2", CommitID: "c9", TableKey: "orders"}}

	for i, q := range []*Query{q1, q2, q3} {
		if err := c.Put(q, entry(i)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	if n := c.InvalidateDataset("ds1"); n != 2 {
		t.Errorf("expected 2 entries removed, got %d", n)
	}
	if got, _ := c.Get(q1); got != nil {
		t.Error("expected q1 to be invalidated")
	}
	if got, _ := c.Get(q2); got != nil {
		t.Error("expected q2 to be invalidated")
	}
	if got, _ := c.Get(q3); got == nil {
		t.Error("expected q3 to survive")
	}
	if n := c.InvalidateDataset("unknown"); n != 0 {
		t.Errorf("expected 0 entries removed, got %d", n)
	}
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(t, Options{})
	c.Put(query("SELECT 1"), entry(1))
	c.Put(query("SELECT 2"), entry(2))

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
	if got, _ := c.Get(query("SELECT 1")); got != nil {
		t.Error("expected miss after Clear")
	}
}

func TestMalformedQuery(t *testing.T) {
	c, _ := newTestCache(t, Options{})

	tests := []struct {
		name string
		q    *Query
	}{
		{"negative limit", &Query{SQL: "SELECT 1", Limit: -1}},
		{"negative offset", &Query{SQL: "SELECT 1", Offset: -5}},
		{"empty alias", &Query{SQL: "SELECT 1", Sources: []sampling.Source{{CommitID: "c1"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Get(tt.q); !errors.Is(err, ErrMalformedKey) {
				t.Errorf("Get: expected ErrMalformedKey, got %v", err)
			}
			if err := c.Put(tt.q, entry(1)); !errors.Is(err, ErrMalformedKey) {
				t.Errorf("Put: expected ErrMalformedKey, got %v", err)
			}
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	c, _ := newTestCache(t, Options{Capacity: 16, Compress: true})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				q := query(fmt.Sprintf("SELECT %d", i%32))
				if i%3 == 0 {
					if err := c.Put(q, entry(i)); err != nil {
						t.Errorf("Put() error = %v", err)
						return
					}
					continue
				}
				if _, err := c.Get(q); err != nil {
					t.Errorf("Get() error = %v", err)
					return
				}
				if i%50 == 0 {
					c.InvalidateDataset("ds1")
				}
			}
		}(w)
	}
	wg.Wait()

	if c.Len() > 16 {
		t.Errorf("capacity exceeded: %d entries", c.Len())
	}
}

func TestPutVisibleToGet(t *testing.T) {
	c, _ := newTestCache(t, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := query(fmt.Sprintf("SELECT %d", i))
			if err := c.Put(q, entry(i)); err != nil {
				t.Errorf("Put() error = %v", err)
				return
			}
			got, err := c.Get(q)
			if err != nil || got == nil {
				t.Errorf("expected hit right after Put, got %v, %v", got, err)
				return
			}
			if got.Rows[0]["id"] != int64(i) {
				t.Errorf("expected id %d, got %v", i, got.Rows[0]["id"])
			}
		}(i)
	}
	wg.Wait()
}
