package domain

import "time"

// SnapshotVersion is the current export format version.
const SnapshotVersion = "2.0"

// Snapshot is the serialized state of a mapping session.
type Snapshot struct {
	Version            string              `json:"version"`
	CanonicalAvailable []Category          `json:"canonical_available"`
	SourceAAvailable   []Category          `json:"sourceA_available"`
	SourceBAvailable   []Category          `json:"sourceB_available"`
	Mappings           []*CanonicalMapping `json:"mappings"`
	ExportedAt         time.Time           `json:"exported_at"`
}

// LegacyRecord is one entry of the pre-2.0 flat mapping list, where a record
// paired a canonical category with at most one category of each marketplace.
type LegacyRecord struct {
	ShopzID       CategoryID `json:"shopz_id"`
	ShopzParentID CategoryID `json:"shopz_parent_id"`
	OzonID        CategoryID `json:"ozon_id"`
	OzonName      string     `json:"ozon_name"`
	WbID          CategoryID `json:"wb_id"`
	WbName        string     `json:"wb_name"`
	NotSold       bool       `json:"not_sold"`
	Timestamp     string     `json:"timestamp"`
}

// Baseline holds the category lists captured when a session was loaded.
type Baseline struct {
	Canonical []Category `json:"canonical"`
	SourceA   []Category `json:"source_a"`
	SourceB   []Category `json:"source_b"`
}

// Clone returns an independent copy of the baseline.
func (b Baseline) Clone() Baseline {
	return Baseline{
		Canonical: CloneCategories(b.Canonical),
		SourceA:   CloneCategories(b.SourceA),
		SourceB:   CloneCategories(b.SourceB),
	}
}

// Pool returns the baseline list for platform.
func (b Baseline) Pool(p Platform) []Category {
	switch p {
	case PlatformCanonical:
		return b.Canonical
	case PlatformSourceA:
		return b.SourceA
	case PlatformSourceB:
		return b.SourceB
	default:
		return nil
	}
}

// SessionRecord is the persisted form of a session: its immutable baseline
// plus the latest exported state.
type SessionRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Baseline  Baseline  `json:"baseline"`
	State     *Snapshot `json:"state"`
}

// SessionSummary describes a session for listings.
type SessionSummary struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	CanonicalTotal   int       `json:"canonical_total"`
	ResolvedCount    int       `json:"resolved_count"`
	SourceARemaining int       `json:"source_a_remaining"`
	SourceBRemaining int       `json:"source_b_remaining"`
}
