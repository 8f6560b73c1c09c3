package model

import "time"

// ResultsExport is the top-level JSON structure written by the export command.
type ResultsExport struct {
	ExportedAt time.Time    `json:"exported_at"`
	Store      string       `json:"store"`
	NumResults int          `json:"num_results"`
	Results    []ExamResult `json:"results"`
}
