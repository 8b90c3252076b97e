package forces

import (
	"fmt"

	"github.com/san-kum/msibi/internal/ibi"
)

// AddState associates calibration data for a state with the interaction and
// snapshots the parameters as they stand now.
func (f *Force) AddState(info StateInfo) error {
	if info.ID == "" {
		return ibi.Configf("%s: state id must not be empty", f)
	}
	if _, ok := f.states[info.ID]; ok {
		return ibi.Configf("%s: state %s already attached", f, info.ID)
	}

	f.states[info.ID] = &stateData{info: info, params: f.static}
	f.stateOrder = append(f.stateOrder, info.ID)
	return nil
}

// RemoveState detaches a state and drops its data. Unknown ids are ignored.
func (f *Force) RemoveState(id string) {
	if _, ok := f.states[id]; !ok {
		return
	}
	delete(f.states, id)
	for i, s := range f.stateOrder {
		if s == id {
			f.stateOrder = append(f.stateOrder[:i], f.stateOrder[i+1:]...)
			break
		}
	}
}

func (f *Force) HasState(id string) bool {
	_, ok := f.states[id]
	return ok
}

// StateIDs returns attached state ids in attach order.
func (f *Force) StateIDs() []string {
	return append([]string(nil), f.stateOrder...)
}

func (f *Force) state(id string) (*stateData, error) {
	sd, ok := f.states[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no state %s", ibi.ErrUnattached, f, id)
	}
	return sd, nil
}

// StaticParamsFor returns the analytic parameters snapshotted when the state
// was attached.
func (f *Force) StaticParamsFor(id string) (StaticParams, error) {
	if f.format != FormatStatic {
		return StaticParams{}, ibi.Usagef("%s is not static", f)
	}
	sd, err := f.state(id)
	if err != nil {
		return StaticParams{}, err
	}
	return sd.params, nil
}

func (f *Force) SetTargetDistribution(id string, p []float64) error {
	if f.format != FormatTable {
		return ibi.Usagef("%s: target distributions require a table interaction", f)
	}
	sd, err := f.state(id)
	if err != nil {
		return err
	}
	if len(p) != f.nbins+1 {
		return fmt.Errorf("%w: %s target for %s has %d samples, want %d",
			ibi.ErrDimensionMismatch, f, id, len(p), f.nbins+1)
	}
	sd.target = clone(p)
	return nil
}

func (f *Force) TargetDistribution(id string) ([]float64, error) {
	sd, err := f.state(id)
	if err != nil {
		return nil, err
	}
	return clone(sd.target), nil
}

// FitScores returns the per-iteration fit scores recorded for a state.
func (f *Force) FitScores(id string) ([]float64, error) {
	if f.format != FormatTable {
		return nil, ibi.Usagef("%s: fit scores are only kept for table interactions", f)
	}
	sd, err := f.state(id)
	if err != nil {
		return nil, err
	}
	return clone(sd.fitScores), nil
}

// CanCommit reports whether Commit would accept the update without
// modifying anything.
func (f *Force) CanCommit(potential []float64, scores map[string]float64) error {
	if !f.IsOptimized() {
		return ibi.Usagef("%s is not an optimized table interaction", f)
	}
	if len(potential) != f.nbins+1 {
		return fmt.Errorf("%w: %s update has %d samples, want %d",
			ibi.ErrDimensionMismatch, f, len(potential), f.nbins+1)
	}
	if len(scores) != len(f.stateOrder) {
		return ibi.Usagef("%s: got scores for %d states, %d attached", f, len(scores), len(f.stateOrder))
	}
	for id := range scores {
		if _, err := f.state(id); err != nil {
			return err
		}
	}
	return nil
}

// Commit records one completed optimization iteration: the new potential
// and one fit score for every attached state. Nothing is modified unless
// CanCommit accepts the arguments.
func (f *Force) Commit(potential []float64, scores map[string]float64) error {
	if err := f.CanCommit(potential, scores); err != nil {
		return err
	}

	for id, score := range scores {
		sd := f.states[id]
		sd.fitScores = append(sd.fitScores, score)
	}
	f.potential = clone(potential)
	f.force = negGradient(f.potential, f.dx)
	f.history = append(f.history, clone(potential))
	return nil
}
