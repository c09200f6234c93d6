package ledger

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
)

// searchDocument is the indexed projection of a Transaction.
type searchDocument struct {
	Description string `json:"descricao"`
	Category    string `json:"categoria"`
	Source      string `json:"fonte"`
	Direction   string `json:"tipo"`
	Date        string `json:"data"`
}

// SearchHit is a matching transaction id with its relevance score.
type SearchHit struct {
	ID    int64
	Score float64
}

// SearchIndex is an in-memory bleve index over ledger transactions. It is
// rebuilt from the ledger on demand rather than kept in sync incrementally.
type SearchIndex struct {
	index bleve.Index
	mu    sync.RWMutex
}

func NewSearchIndex() (*SearchIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return &SearchIndex{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = simple.Name

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("descricao", textFieldMapping)
	docMapping.AddFieldMappingsAt("categoria", textFieldMapping)
	docMapping.AddFieldMappingsAt("fonte", textFieldMapping)
	docMapping.AddFieldMappingsAt("tipo", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("data", keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = simple.Name
	return indexMapping
}

// Rebuild replaces the index contents with txs.
func (si *SearchIndex) Rebuild(txs []Transaction) error {
	si.mu.Lock()
	defer si.mu.Unlock()

	fresh, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	batch := fresh.NewBatch()
	for _, t := range txs {
		doc := searchDocument{
			Description: t.Description,
			Category:    t.Category,
			Source:      t.Source,
			Direction:   string(t.Direction),
			Date:        t.Date,
		}
		if err := batch.Index(strconv.FormatInt(t.ID, 10), doc); err != nil {
			return fmt.Errorf("failed to index transaction %d: %w", t.ID, err)
		}
	}
	if err := fresh.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch index: %w", err)
	}

	old := si.index
	si.index = fresh
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Search runs a bleve query string ("+uber -pix", "categoria:transporte")
// with a fuzzy match fallback for plain words.
func (si *SearchIndex) Search(queryString string, limit int) ([]SearchHit, error) {
	si.mu.RLock()
	defer si.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	request := bleve.NewSearchRequest(bleve.NewQueryStringQuery(queryString))
	request.Size = limit
	results, err := si.index.Search(request)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	if results.Total == 0 {
		match := bleve.NewMatchQuery(queryString)
		match.SetFuzziness(1)
		request = bleve.NewSearchRequest(match)
		request.Size = limit
		if results, err = si.index.Search(request); err != nil {
			return nil, fmt.Errorf("fuzzy search failed: %w", err)
		}
	}

	hits := make([]SearchHit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		hits = append(hits, SearchHit{ID: id, Score: hit.Score})
	}
	return hits, nil
}

// DocumentCount returns the number of indexed transactions.
func (si *SearchIndex) DocumentCount() (uint64, error) {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return si.index.DocCount()
}

func (si *SearchIndex) Close() error {
	si.mu.Lock()
	defer si.mu.Unlock()
	return si.index.Close()
}
