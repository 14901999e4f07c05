package search

import (
	"context"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// NameHit is one catalog name matched against a free-text row.
type NameHit struct {
	Type     DocType `json:"type"`
	RemoteID int     `json:"remote_id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// MatchNames finds catalog names matching the free-text row. Matches are
// fuzzy (edit distance 1) so "Tacomma" still hits "Tacoma". The results seed
// the normalizer's candidate filters.
func (c *CatalogIndex) MatchNames(ctx context.Context, text string, docType DocType, limit int) ([]NameHit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	match := bleve.NewMatchQuery(text)
	match.SetField("name")
	match.SetFuzziness(1)

	var q query.Query = match
	if docType != "" {
		typeQuery := bleve.NewTermQuery(string(docType))
		typeQuery.SetField("type")
		q = bleve.NewConjunctionQuery(match, typeQuery)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"type", "remote_id", "name"}

	res, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	hits := make([]NameHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		h := NameHit{Score: hit.Score}
		if v, ok := hit.Fields["type"].(string); ok {
			h.Type = DocType(v)
		}
		if v, ok := hit.Fields["remote_id"].(float64); ok {
			h.RemoteID = int(v)
		}
		if v, ok := hit.Fields["name"].(string); ok {
			h.Name = v
		}
		hits = append(hits, h)
	}
	return hits, nil
}
