// Package memtable provides an ordered in-memory table and a polling
// strategy over it.
//
// Rows are kept sorted by key in a B-tree. Each poll returns the rows that
// have not been consumed yet, in key order, up to the fetch limit. Once the
// processor has handled a row the consumer applies the configured on-consume
// action: mark the row consumed, delete it, or leave it alone.
//
//	catalog := memtable.NewCatalog()
//	catalog.Table("orders").Insert("0001", []byte(`{"id":1}`))
//
//	registry := poll.NewRegistry()
//	memtable.Register(registry, catalog)
package memtable
