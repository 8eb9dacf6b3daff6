package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestEffectiveCategories_MostSpecificWins(t *testing.T) {
	testCases := []struct {
		name      string
		sel       FilterSelection
		want      []string
		wantLevel CategoryLevel
		wantOK    bool
	}{
		{
			name:   "nothing selected",
			sel:    FilterSelection{},
			wantOK: false,
		},
		{
			name:      "top only",
			sel:       FilterSelection{Categories: []string{"Laptops"}},
			want:      []string{"Laptops"},
			wantLevel: LevelTop,
			wantOK:    true,
		},
		{
			name:      "sub beats top",
			sel:       FilterSelection{Categories: []string{"Laptops"}, SubCategories: []string{"Gaming"}},
			want:      []string{"Gaming"},
			wantLevel: LevelSub,
			wantOK:    true,
		},
		{
			name: "end beats everything",
			sel: FilterSelection{
				Categories:    []string{"Laptops"},
				SubCategories: []string{"Gaming"},
				EndCategories: []string{"17 inch"},
			},
			want:      []string{"17 inch"},
			wantLevel: LevelEnd,
			wantOK:    true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, level, ok := tc.sel.EffectiveCategories()
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.want, got)
				assert.Equal(t, tc.wantLevel, level)
			}
		})
	}
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 1, TotalPages(0, 30))
	assert.Equal(t, 1, TotalPages(30, 30))
	assert.Equal(t, 2, TotalPages(31, 30))
	assert.Equal(t, 3, TotalPages(61, 30))
	assert.Equal(t, 1, TotalPages(10, 0))
}

func TestPageState_Offset(t *testing.T) {
	p := NewPageState(30)
	assert.Equal(t, 0, p.Offset())

	p.CurrentPage = 3
	assert.Equal(t, 60, p.Offset())
}

func TestToggle_DoesNotAliasInput(t *testing.T) {
	in := make([]string, 1, 4)
	in[0] = "a"

	added := Toggle(in, "b")
	assert.Equal(t, []string{"a", "b"}, added)
	assert.Equal(t, []string{"a"}, in)

	removed := Toggle(added, "a")
	assert.Equal(t, []string{"b"}, removed)
	assert.Equal(t, []string{"a", "b"}, added)
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []string{"Gaming", "Ultrabook"}, SortedUnique([]string{"Ultrabook", "Gaming", "Ultrabook"}))
	assert.Empty(t, SortedUnique(nil))
}

func TestClone_IsDeep(t *testing.T) {
	orig := FilterSelection{Categories: []string{"Laptops"}}
	orig.MinPrice = ptr(100)

	c := orig.Clone()
	c.Categories[0] = "Phones"
	*c.MinPrice = 5

	assert.Equal(t, "Laptops", orig.Categories[0])
	assert.Equal(t, 100.0, *orig.MinPrice)
}

func TestParseCategoryLevel(t *testing.T) {
	level, err := ParseCategoryLevel("Sub")
	require.NoError(t, err)
	assert.Equal(t, LevelSub, level)

	level, err = ParseCategoryLevel("end_category")
	require.NoError(t, err)
	assert.Equal(t, LevelEnd, level)

	_, err = ParseCategoryLevel("store")
	assert.Error(t, err)
}

func TestBounds_Validate(t *testing.T) {
	assert.NoError(t, Bounds{MinPrice: ptr(10), MaxPrice: ptr(10)}.Validate())
	assert.Error(t, Bounds{MinPrice: ptr(10), MaxPrice: ptr(5)}.Validate())
	assert.Error(t, Bounds{MinDiscount: ptr(50), MaxDiscount: ptr(20)}.Validate())
}
