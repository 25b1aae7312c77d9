package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nutriempower/nutriempower/pkg/models"
)

type staticSource []models.FoodRecord

func (s staticSource) Records() []models.FoodRecord { return s }

func strPtr(s string) *string { return &s }

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"is", "greek", "yogurt", "high", "in", "protein"},
		Tokenize("Is Greek-yogurt high in protein?!", 8))
	assert.Equal(t, []string{"a", "b", "c"}, Tokenize("a b c d e", 3))
	assert.Empty(t, Tokenize("  ?!... ", 8))
	assert.Equal(t, []string{"vitamin", "b12"}, Tokenize("vitamin_B12", 8))
	assert.Equal(t, []string{"crème", "brûlée"}, Tokenize("Crème Brûlée", 8))
}

func TestSearchMatches(t *testing.T) {
	s := New(staticSource{
		{Description: "apple pie"},
		{Description: "banana bread"},
	}, 8)

	assert.Equal(t, []models.FoodRecord{{Description: "apple pie"}}, s.Search("apple", 3))
	assert.Equal(t, []models.FoodRecord{}, s.Search("xyz", 3))
}

func TestSearchRanksByOverlap(t *testing.T) {
	s := New(staticSource{
		{Description: "Milk, whole", Category: strPtr("Dairy")},
		{Description: "Chocolate milk", Category: strPtr("Dairy")},
		{Description: "Dark chocolate", Category: strPtr("Sweets")},
		{Description: "Spinach"},
	}, 8)

	got := s.Search("chocolate milk", 3)
	assert.Len(t, got, 3)
	assert.Equal(t, "Chocolate milk", got[0].Description)
	for _, r := range got {
		assert.NotEqual(t, "Spinach", r.Description, "unscored records never fill the result")
	}
}

func TestSearchUsesCategory(t *testing.T) {
	s := New(staticSource{
		{Description: "Cheddar", Category: strPtr("Dairy and Egg Products")},
		{Description: "Carrot", Category: strPtr("Vegetables")},
	}, 8)

	got := s.Search("dairy", 3)
	assert.Equal(t, []models.FoodRecord{{Description: "Cheddar", Category: strPtr("Dairy and Egg Products")}}, got)
}

func TestSearchSubstringContainment(t *testing.T) {
	s := New(staticSource{{Description: "Pineapple juice"}}, 8)
	assert.Len(t, s.Search("apple", 3), 1)
}

func TestSearchLimit(t *testing.T) {
	s := New(staticSource{
		{Description: "rice white"},
		{Description: "rice brown"},
		{Description: "rice wild"},
		{Description: "rice cake"},
	}, 8)
	assert.Len(t, s.Search("rice", 3), 3)
	assert.Empty(t, s.Search("rice", 0))
}

func TestSearchEmptyInputs(t *testing.T) {
	assert.Empty(t, New(staticSource{}, 8).Search("apple", 3))
	assert.Empty(t, New(staticSource{{Description: "apple"}}, 8).Search("   ", 3))
}

func TestSearchTokenCap(t *testing.T) {
	s := New(staticSource{{Description: "kiwi"}}, 2)
	// "kiwi" is the third token and falls outside the cap.
	assert.Empty(t, s.Search("banana mango kiwi", 3))
}
