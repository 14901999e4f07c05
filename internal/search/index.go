package search

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/fitmentiq/fitment-server/internal/domain"
)

// CatalogIndex wraps a Bleve index over catalog names.
//
// All public methods are safe for concurrent use; the sync engine writes
// while workers query.
type CatalogIndex struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// Options configures the catalog index.
type Options struct {
	DataPath string
	Logger   *slog.Logger
}

// mappingVersion is incremented whenever the index mapping changes, which
// triggers a rebuild on startup. The index is a cache over the store, so a
// rebuild loses nothing.
const mappingVersion = "1"

// NewCatalogIndex creates or opens the catalog name index. A corrupt or
// version-mismatched index is removed and recreated.
func NewCatalogIndex(opts Options) (*CatalogIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	indexPath := filepath.Join(opts.DataPath, "catalog.bleve")
	versionPath := filepath.Join(opts.DataPath, "catalog.version")

	var index bleve.Index
	var err error
	needsRebuild := false

	indexExists := false
	if _, statErr := os.Stat(indexPath); statErr == nil {
		indexExists = true
	}

	if indexExists {
		existingVersion, readErr := os.ReadFile(versionPath)
		if readErr != nil || string(existingVersion) != mappingVersion {
			logger.Info("catalog index mapping changed, rebuilding",
				"new_version", mappingVersion)
			needsRebuild = true
		}
	}

	if !needsRebuild && indexExists {
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Warn("failed to open catalog index, recreating",
				"path", indexPath, "error", err)
			needsRebuild = true
		}
	}

	if needsRebuild {
		if removeErr := os.RemoveAll(indexPath); removeErr != nil {
			return nil, fmt.Errorf("remove old catalog index: %w", removeErr)
		}
		index = nil
	}

	if index == nil {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create catalog index: %w", err)
		}
		if writeErr := os.WriteFile(versionPath, []byte(mappingVersion), 0644); writeErr != nil {
			logger.Warn("failed to write catalog index version file", "error", writeErr)
		}
		logger.Info("created catalog index", "path", indexPath)
	}

	return &CatalogIndex{
		index:  index,
		path:   indexPath,
		logger: logger,
	}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = simple.Name

	docMapping := bleve.NewDocumentMapping()

	// Name is the primary search target. Simple analyzer, no stemming:
	// "Tacoma" must not fold into other tokens.
	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = simple.Name
	nameFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)

	vehicleTypeFieldMapping := bleve.NewTextFieldMapping()
	vehicleTypeFieldMapping.Analyzer = simple.Name
	vehicleTypeFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("vehicle_type", vehicleTypeFieldMapping)

	// Exact-match fields.
	typeFieldMapping := bleve.NewTextFieldMapping()
	typeFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("type", typeFieldMapping)

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	remoteIDFieldMapping := bleve.NewNumericFieldMapping()
	remoteIDFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("remote_id", remoteIDFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}

// Close closes the index and releases resources.
func (c *CatalogIndex) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Close()
}

// IndexMake indexes or reindexes one make document.
func (c *CatalogIndex) IndexMake(m *domain.Make) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc := MakeToDocument(m)
	return c.index.Index(doc.ID, doc.ToMap())
}

// IndexModel indexes or reindexes one model document.
func (c *CatalogIndex) IndexModel(m *domain.Model, vehicleType string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc := ModelToDocument(m, vehicleType)
	return c.index.Index(doc.ID, doc.ToMap())
}

// RemoveCatalogDoc deletes one document by id.
func (c *CatalogIndex) RemoveCatalogDoc(id string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Delete(id)
}

// DocCount returns the number of indexed documents.
func (c *CatalogIndex) DocCount() (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.DocCount()
}
