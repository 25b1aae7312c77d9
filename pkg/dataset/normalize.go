// Package dataset turns the USDA nutrition CSV into the compact in-memory
// record set used for retrieval, and persists it as a JSON snapshot.
package dataset

import (
	"encoding/json"
	"strings"

	"github.com/nutriempower/nutriempower/pkg/models"
)

// Candidate source columns per target field, tried in order.
var (
	idColumns          = []string{"fdc_id", "FDC_ID", "id", "NDB_number", "NDB_No"}
	descriptionColumns = []string{"description", "Description", "food_description", "Long_Desc", "Shrt_Desc", "name", "food_name"}
	categoryColumns    = []string{"food_category", "category", "Category", "FdGrp_Desc", "food_category_id", "data_type"}
	nutrientColumns    = []string{"nutrients", "Nutrients", "nutrient_data"}
)

// Normalize maps one raw CSV row onto a FoodRecord. Missing fields stay nil
// (or empty for Description); no validation beyond presence is done.
func Normalize(row map[string]string) models.FoodRecord {
	var rec models.FoodRecord
	if v, ok := firstValue(row, idColumns); ok {
		rec.ID = &v
	}
	if v, ok := firstValue(row, descriptionColumns); ok {
		rec.Description = v
	}
	if v, ok := firstValue(row, categoryColumns); ok {
		rec.Category = &v
	}
	if v, ok := firstValue(row, nutrientColumns); ok {
		rec.Nutrients = decodeNutrients(v)
	}
	return rec
}

func firstValue(row map[string]string, candidates []string) (string, bool) {
	for _, col := range candidates {
		if v := strings.TrimSpace(row[col]); v != "" {
			return v, true
		}
	}
	return "", false
}

// decodeNutrients keeps embedded JSON objects and arrays structured and
// everything else as the raw string.
func decodeNutrients(v string) any {
	if v[0] != '{' && v[0] != '[' {
		return v
	}
	var decoded any
	if err := json.Unmarshal([]byte(v), &decoded); err != nil {
		return v
	}
	return decoded
}
