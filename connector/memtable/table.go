package memtable

import (
	"sort"
	"sync"
	"time"

	"github.com/google/btree"
)

// Row is one entry of a Table
type Row struct {
	Key      string
	Value    []byte
	Inserted time.Time
	Consumed bool
}

func rowLess(a, b *Row) bool { return a.Key < b.Key }

// Table is an ordered, concurrency-safe key/value table
type Table struct {
	name string
	mu   sync.RWMutex
	rows *btree.BTreeG[*Row]
}

// NewTable creates an empty table
func NewTable(name string) *Table {
	return &Table{
		name: name,
		rows: btree.NewG[*Row](2, rowLess),
	}
}

// Name returns the table name
func (t *Table) Name() string { return t.name }

// Insert adds or replaces the row at key. A replaced row becomes unconsumed.
func (t *Table) Insert(key string, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows.ReplaceOrInsert(&Row{Key: key, Value: value, Inserted: time.Now()})
}

// Get returns a copy of the row at key
func (t *Table) Get(key string) (Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows.Get(&Row{Key: key})
	if !ok {
		return Row{}, false
	}
	return *r, true
}

// Delete removes the row at key
func (t *Table) Delete(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.rows.Delete(&Row{Key: key})
	return ok
}

// MarkConsumed flags the row at key as consumed
func (t *Table) MarkConsumed(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rows.Get(&Row{Key: key})
	if !ok {
		return false
	}
	r.Consumed = true
	return true
}

// Unconsumed returns up to limit unconsumed rows in key order. A limit of
// zero or less returns all of them.
func (t *Table) Unconsumed(limit int) []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Row
	t.rows.Ascend(func(r *Row) bool {
		if r.Consumed {
			return true
		}
		out = append(out, *r)
		return limit <= 0 || len(out) < limit
	})
	return out
}

// Len returns the number of rows, consumed or not
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows.Len()
}

// Catalog holds named tables
type Catalog struct {
	mu     sync.Mutex
	tables map[string]*Table
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{tables: make(map[string]*Table)}
}

// Table returns the named table, creating it on first use
func (c *Catalog) Table(name string) *Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[name]
	if !ok {
		t = NewTable(name)
		c.tables[name] = t
	}
	return t
}

// Names returns the table names, sorted
func (c *Catalog) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
