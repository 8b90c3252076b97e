package storage

import (
	"encoding/json"
	"io"
)

type ExportData struct {
	Run    RunMetadata          `json:"run"`
	Scores map[string][]float64 `json:"scores"`
}

// ExportJSON writes a run's metadata and fit score series to w.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	rows, err := s.LoadScores(runID)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{Run: *meta, Scores: ScoreSeries(rows)})
}
