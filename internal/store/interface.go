package store

import "github.com/fitmentiq/fitment-server/internal/domain"

// CatalogIndexer receives catalog name documents after sync so the search
// index stays in step with the store. The SQLite store calls it outside its
// own transactions; implementations must be safe for concurrent use.
type CatalogIndexer interface {
	IndexMake(m *domain.Make) error
	IndexModel(m *domain.Model, vehicleType string) error
	RemoveCatalogDoc(id string) error
}

// NoopCatalogIndexer ignores all indexing calls. Used until the search
// index is wired, and by tests that don't care about search.
type NoopCatalogIndexer struct{}

// NewNoopCatalogIndexer returns an indexer that does nothing.
func NewNoopCatalogIndexer() *NoopCatalogIndexer { return &NoopCatalogIndexer{} }

func (*NoopCatalogIndexer) IndexMake(*domain.Make) error                  { return nil }
func (*NoopCatalogIndexer) IndexModel(*domain.Model, string) error        { return nil }
func (*NoopCatalogIndexer) RemoveCatalogDoc(string) error                 { return nil }
