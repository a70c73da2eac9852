package domain

import "time"

// CategoryLink attaches one external category to a canonical category.
type CategoryLink struct {
	Platform     Platform   `json:"platform"`
	ExternalID   CategoryID `json:"external_id"`
	ExternalName string     `json:"external_name"`
	LinkedAt     time.Time  `json:"linked_at"`
}

// CanonicalMapping holds the resolution state of one canonical category.
// Links contain at most one entry per (platform, external_id) pair.
type CanonicalMapping struct {
	CanonicalID       CategoryID     `json:"canonical_id"`
	CanonicalName     string         `json:"canonical_name"`
	CanonicalParentID CategoryID     `json:"canonical_parent_id"`
	Links             []CategoryLink `json:"links"`
	NotSold           bool           `json:"not_sold"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// NewCanonicalMapping creates an unresolved mapping for c.
func NewCanonicalMapping(c Category, now time.Time) *CanonicalMapping {
	return &CanonicalMapping{
		CanonicalID:       c.ID,
		CanonicalName:     c.Name,
		CanonicalParentID: c.ParentID,
		Links:             []CategoryLink{},
		UpdatedAt:         now,
	}
}

// IsResolved reports whether the canonical category is considered handled.
func (m *CanonicalMapping) IsResolved() bool {
	return len(m.Links) > 0 || m.NotSold
}

// FindLink returns the index of the link for (platform, externalID), or -1.
func (m *CanonicalMapping) FindLink(platform Platform, externalID CategoryID) int {
	for i, l := range m.Links {
		if l.Platform == platform && l.ExternalID == externalID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the mapping.
func (m *CanonicalMapping) Clone() *CanonicalMapping {
	c := *m
	c.Links = make([]CategoryLink, len(m.Links))
	copy(c.Links, m.Links)
	return &c
}
