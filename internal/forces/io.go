package forces

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/san-kum/msibi/internal/analysis"
	"github.com/san-kum/msibi/internal/ibi"
)

// SavePotential writes the current table as CSV with columns x, U, F.
func (f *Force) SavePotential(path string) error {
	if f.format != FormatTable {
		return ibi.Usagef("%s: only table potentials can be saved (format %s)", f, f.format)
	}
	return f.writeColumns(path, ",", []string{"x", "U", "F"})
}

// WriteTable writes the current table in the engine's whitespace separated
// "x U F" format.
func (f *Force) WriteTable(path string) error {
	if f.format != FormatTable {
		return ibi.Usagef("%s: only table potentials can be written as engine tables (format %s)", f, f.format)
	}
	return f.writeColumns(path, " ", nil)
}

func (f *Force) writeColumns(path, sep string, header []string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := analysis.WriteColumns(file, sep, header, f.x, f.potential, f.force); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

// SavePotentialHistory writes every recorded potential as a JSON array of
// shape (iterations, nbins+1, 2) holding (x, U) pairs.
func (f *Force) SavePotentialHistory(path string) error {
	if f.format != FormatTable {
		return ibi.Usagef("%s: potential history is only kept for table interactions", f)
	}

	out := make([][][2]float64, len(f.history))
	for i, u := range f.history {
		out[i] = make([][2]float64, len(u))
		for j := range u {
			out[i][j] = [2]float64{f.x[j], u[j]}
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode potential history: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadPotentialHistory reads a file written by SavePotentialHistory.
func LoadPotentialHistory(path string) ([][][2]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out [][][2]float64
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode potential history %s: %w", path, err)
	}
	return out, nil
}
