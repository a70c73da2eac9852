package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for category documents.
//
// Catalog names are mostly Russian, so the name field uses the standard
// analyzer (Unicode tokenizer plus lower-casing) rather than English stemming.
// Platform and IDs are keywords so they can be used as exact filters.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = standard.Name

	docMapping := bleve.NewDocumentMapping()

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = standard.Name
	nameFieldMapping.Store = true
	nameFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)

	platformFieldMapping := bleve.NewTextFieldMapping()
	platformFieldMapping.Analyzer = keyword.Name
	platformFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("platform", platformFieldMapping)

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	idFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("category_id", idFieldMapping)

	parentFieldMapping := bleve.NewTextFieldMapping()
	parentFieldMapping.Analyzer = keyword.Name
	parentFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("parent_id", parentFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
