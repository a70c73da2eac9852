// Package domain contains the shared types of the category mapping server.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// CategoryID identifies a category inside one hierarchy.
// Catalogs use both integer and string identifiers, so the ID is kept as text
// and decoded from either JSON form. The empty ID stands for "no category"
// and encodes as null (root categories have a null parent_id).
type CategoryID string

// IsZero reports whether the ID is empty.
func (id CategoryID) IsZero() bool {
	return id == ""
}

// String implements fmt.Stringer.
func (id CategoryID) String() string {
	return string(id)
}

// MarshalJSON encodes integer-looking IDs as JSON numbers so exported
// snapshots keep the catalog's original shape.
func (id CategoryID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(string(id)), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a JSON string, number, or null.
func (id *CategoryID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = CategoryID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("category id must be a string or number: %w", err)
	}
	*id = CategoryID(n.String())
	return nil
}

// Category is a node of one of the three hierarchies.
type Category struct {
	ID       CategoryID `json:"id" validate:"required"`
	Name     string     `json:"name"`
	ParentID CategoryID `json:"parent_id"`
}

// IsRoot returns true if the category has no parent.
func (c Category) IsRoot() bool {
	return c.ParentID.IsZero()
}

// CloneCategories returns an independent copy of the list.
// Categories hold only value fields, so copying the slice is a deep copy.
func CloneCategories(in []Category) []Category {
	if in == nil {
		return []Category{}
	}
	out := make([]Category, len(in))
	copy(out, in)
	return out
}

// Platform names the hierarchy a category belongs to.
type Platform string

const (
	// PlatformCanonical is the authoritative catalog (ShopZZ).
	PlatformCanonical Platform = "canonical"
	// PlatformSourceA is the first marketplace catalog (Ozon).
	PlatformSourceA Platform = "source_a"
	// PlatformSourceB is the second marketplace catalog (Wildberries).
	PlatformSourceB Platform = "source_b"
)

// Platforms lists every hierarchy in load order.
var Platforms = []Platform{PlatformCanonical, PlatformSourceA, PlatformSourceB}

// IsValid reports whether p is one of the known hierarchies.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformCanonical, PlatformSourceA, PlatformSourceB:
		return true
	default:
		return false
	}
}

// IsExternal reports whether categories of p can be linked to canonical ones.
func (p Platform) IsExternal() bool {
	return p == PlatformSourceA || p == PlatformSourceB
}
