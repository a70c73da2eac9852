package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  CategoryID
	}{
		{"integer", `17`, "17"},
		{"string", `"cat-17"`, "cat-17"},
		{"numeric string", `"17"`, "17"},
		{"null", `null`, ""},
		{"large integer", `9007199254740993`, "9007199254740993"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id CategoryID
			require.NoError(t, json.Unmarshal([]byte(tt.input), &id))
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestCategoryID_UnmarshalJSON_RejectsObjects(t *testing.T) {
	var id CategoryID
	assert.Error(t, json.Unmarshal([]byte(`{"id":1}`), &id))
}

func TestCategory_JSONShape(t *testing.T) {
	root := Category{ID: "1", Name: "Shoes"}
	child := Category{ID: "slug-2", Name: "Boots", ParentID: "1"}

	data, err := json.Marshal([]Category{root, child})
	require.NoError(t, err)

	assert.JSONEq(t, `[
		{"id":1,"name":"Shoes","parent_id":null},
		{"id":"slug-2","name":"Boots","parent_id":1}
	]`, string(data))
	assert.True(t, root.IsRoot())
	assert.False(t, child.IsRoot())
}

func TestCloneCategories_Independent(t *testing.T) {
	orig := []Category{{ID: "1", Name: "Shoes"}}
	clone := CloneCategories(orig)
	clone[0].Name = "Changed"

	assert.Equal(t, "Shoes", orig[0].Name)
	assert.NotNil(t, CloneCategories(nil))
}

func TestPlatform(t *testing.T) {
	assert.True(t, PlatformSourceA.IsExternal())
	assert.True(t, PlatformSourceB.IsExternal())
	assert.False(t, PlatformCanonical.IsExternal())
	assert.True(t, PlatformCanonical.IsValid())
	assert.False(t, Platform("ebay").IsValid())
}

func TestCanonicalMapping_Helpers(t *testing.T) {
	now := time.Now()
	m := NewCanonicalMapping(Category{ID: "1", Name: "Shoes"}, now)
	assert.False(t, m.IsResolved())

	m.Links = append(m.Links,
		CategoryLink{Platform: PlatformSourceA, ExternalID: "10"},
		CategoryLink{Platform: PlatformSourceB, ExternalID: "20"},
		CategoryLink{Platform: PlatformSourceA, ExternalID: "11"},
	)

	assert.True(t, m.IsResolved())
	assert.Equal(t, 2, m.FindLink(PlatformSourceA, "11"))
	assert.Equal(t, -1, m.FindLink(PlatformSourceB, "10"))
	assert.Equal(t, 0, m.FindLink(PlatformSourceA, "10"))

	clone := m.Clone()
	clone.Links[0].ExternalName = "mutated"
	assert.Empty(t, m.Links[0].ExternalName)
}
