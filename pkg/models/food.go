package models

// FoodRecord is one row of compact nutrition reference data.
type FoodRecord struct {
	ID          *string `json:"id"`
	Description string  `json:"description"`
	Category    *string `json:"category"`
	// Nutrients is passed through untouched from the source row.
	Nutrients any `json:"nutrients"`
}

// DatasetSource names where the in-memory record set came from.
type DatasetSource string

const (
	SourceNone     DatasetSource = "none"
	SourceSnapshot DatasetSource = "snapshot"
	SourceCSV      DatasetSource = "csv"
)

// DatasetInfo describes the loaded record set.
type DatasetInfo struct {
	Source  DatasetSource `json:"source"`
	Records int           `json:"records"`
	Ready   bool          `json:"ready"`
}
