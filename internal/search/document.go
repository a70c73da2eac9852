// Package search provides full-text lookup of categories using Bleve.
// Each mapping session owns an in-memory index over its baseline catalogs,
// which the manual-linking UI queries by name with typo tolerance.
package search

import (
	"golang.org/x/text/unicode/norm"

	"github.com/shopzz/catmap/internal/domain"
)

// Document is the indexed form of one category.
type Document struct {
	ID         string // platform:category_id
	Platform   domain.Platform
	CategoryID domain.CategoryID
	Name       string
	ParentID   domain.CategoryID
}

// DocumentID returns the index key of a category. Category IDs are only
// unique inside one hierarchy, so the platform is part of the key.
func DocumentID(platform domain.Platform, id domain.CategoryID) string {
	return string(platform) + ":" + string(id)
}

// NewDocument converts a category of platform into a Document.
// Names are NFC-normalized so composed and decomposed input index alike.
func NewDocument(platform domain.Platform, c domain.Category) *Document {
	return &Document{
		ID:         DocumentID(platform, c.ID),
		Platform:   platform,
		CategoryID: c.ID,
		Name:       norm.NFC.String(c.Name),
		ParentID:   c.ParentID,
	}
}

// DocumentsFromBaseline builds documents for every category of a baseline.
func DocumentsFromBaseline(b domain.Baseline) []*Document {
	docs := make([]*Document, 0, len(b.Canonical)+len(b.SourceA)+len(b.SourceB))
	for _, p := range domain.Platforms {
		for _, c := range b.Pool(p) {
			docs = append(docs, NewDocument(p, c))
		}
	}
	return docs
}

// ToMap converts the document to a map with the field names of the index mapping.
func (d *Document) ToMap() map[string]any {
	m := map[string]any{
		"platform":    string(d.Platform),
		"category_id": string(d.CategoryID),
		"name":        d.Name,
	}
	if !d.ParentID.IsZero() {
		m["parent_id"] = string(d.ParentID)
	}
	return m
}
