// Package storage keeps a record of every optimization run: its metadata
// and the fit scores of each iteration.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/msibi/internal/optimizer"
)

const (
	runsDir      = "runs"
	metadataFile = "metadata.json"
	scoresFile   = "fit_scores.csv"
)

var scoresHeader = []string{"iteration", "interaction", "state", "score"}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(filepath.Join(s.baseDir, runsDir), 0755)
}

func (s *Store) runDir(id string) string {
	return filepath.Join(s.baseDir, runsDir, id)
}

// NotFoundError is returned for unknown run ids.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("run not found: %s", e.RunID)
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

var ErrNotFound = &NotFoundError{}

type StateRecord struct {
	ID    string  `json:"id"`
	KT    float64 `json:"kT"`
	Alpha float64 `json:"alpha"`
}

type RunMetadata struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Started      time.Time     `json:"started"`
	Finished     time.Time     `json:"finished,omitempty"`
	Root         string        `json:"root"`
	NSteps       int           `json:"n_steps"`
	Iterations   int           `json:"iterations"`
	MeanFitScore float64       `json:"mean_fit_score"`
	BestFitScore float64       `json:"best_fit_score"`
	Converged    bool          `json:"converged"`
	Error        string        `json:"error,omitempty"`
	States       []StateRecord `json:"states"`
	Interactions []string      `json:"interactions"`
}

// ScoreRow is one line of a run's fit score table.
type ScoreRow struct {
	Iteration   int
	Interaction string
	State       string
	Score       float64
}

// Run is an open run record. It implements optimizer.Observer so every
// committed iteration is appended as it happens.
type Run struct {
	mu    sync.Mutex
	store *Store
	meta  RunMetadata
}

var _ optimizer.Observer = (*Run)(nil)

// Create starts a new run record with a fresh id.
func (s *Store) Create(meta RunMetadata) (*Run, error) {
	meta.ID = uuid.NewString()
	if meta.Started.IsZero() {
		meta.Started = time.Now()
	}

	dir := s.runDir(meta.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, scoresFile))
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(scoresHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write score header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	r := &Run{store: s, meta: meta}
	if err := r.save(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Run) ID() string { return r.meta.ID }

func (r *Run) Dir() string { return r.store.runDir(r.meta.ID) }

func (r *Run) Metadata() RunMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta
}

func (r *Run) OnIteration(rep optimizer.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := appendScores(filepath.Join(r.Dir(), scoresFile), rep); err != nil {
		return
	}
	r.meta.Iterations = rep.Iteration + 1
	r.meta.MeanFitScore = rep.Mean
	r.meta.BestFitScore = rep.Best
	r.meta.Converged = rep.Converged
	r.save()
}

// Finish stamps the end time and the outcome of the run.
func (r *Run) Finish(runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.meta.Finished = time.Now()
	if runErr != nil {
		r.meta.Error = runErr.Error()
	}
	return r.save()
}

func (r *Run) save() error {
	data, err := json.MarshalIndent(r.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run metadata: %w", err)
	}

	path := filepath.Join(r.Dir(), metadataFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func appendScores(path string, rep optimizer.Report) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, row := range reportRows(rep) {
		w.Write([]string{
			strconv.Itoa(row.Iteration),
			row.Interaction,
			row.State,
			strconv.FormatFloat(row.Score, 'f', 6, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func reportRows(rep optimizer.Report) []ScoreRow {
	var rows []ScoreRow
	for name, byState := range rep.Scores {
		for id, score := range byState {
			rows = append(rows, ScoreRow{Iteration: rep.Iteration, Interaction: name, State: id, Score: score})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Interaction != rows[j].Interaction {
			return rows[i].Interaction < rows[j].Interaction
		}
		return rows[i].State < rows[j].State
	})
	return rows
}

// List returns the metadata of every stored run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, runsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Started.Before(runs[j].Started) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.runDir(runID), metadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{RunID: runID}
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode run metadata: %w", err)
	}
	return &meta, nil
}

func (s *Store) LoadScores(runID string) ([]ScoreRow, error) {
	file, err := os.Open(filepath.Join(s.runDir(runID), scoresFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{RunID: runID}
		}
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read fit scores: %w", err)
	}

	rows := make([]ScoreRow, 0, len(records))
	for i, record := range records {
		if i == 0 || len(record) != len(scoresHeader) {
			continue
		}
		iter, err := strconv.Atoi(record[0])
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			continue
		}
		rows = append(rows, ScoreRow{Iteration: iter, Interaction: record[1], State: record[2], Score: score})
	}
	return rows, nil
}

// ScoreSeries groups fit scores by "<interaction> @ <state>" in
// iteration order.
func ScoreSeries(rows []ScoreRow) map[string][]float64 {
	out := make(map[string][]float64)
	for _, r := range rows {
		key := r.Interaction + " @ " + r.State
		out[key] = append(out[key], r.Score)
	}
	return out
}
