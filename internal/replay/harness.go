package replay

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/adaptive-training/internal/batch"
	"github.com/danielpatrickdp/adaptive-training/internal/earlystop"
	"github.com/danielpatrickdp/adaptive-training/internal/lrate"
)

// #region types

// StepResult captures controller outputs after one replayed epoch.
type StepResult struct {
	Epoch      int     `json:"epoch"`
	LR         float64 `json:"lr"`
	BatchSize  int     `json:"batch_size"`
	Stopped    bool    `json:"stopped"`
	StopReason string  `json:"stop_reason,omitempty"`
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalEpochs    int     `json:"total_epochs"`
	StoppedAtEpoch int     `json:"stopped_at_epoch"` // -1 when the run was never stopped
	BestEpoch      int     `json:"best_epoch"`
	RateReductions int     `json:"rate_reductions"`
	BatchResizes   int     `json:"batch_resizes"`
	FinalLR        float64 `json:"final_lr"`
	FinalBatchSize int     `json:"final_batch_size"`
}

// Mismatch is one divergence between a replay and its expected results.
type Mismatch struct {
	Epoch int
	Field string
	Want  string
	Got   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("epoch %d: %s: want %s, got %s", m.Epoch, m.Field, m.Want, m.Got)
}

// #endregion types

// #region replay

// Replay drives fresh controllers over the fixture's metric trace, one epoch
// per entry. Operates entirely in-memory; the controllers are constructed
// from the fixture's configs so runs are reproducible.
func Replay(f *Fixture) ([]StepResult, Summary, error) {
	var (
		lrCtrl    *lrate.Controller
		stopMon   *earlystop.Monitor
		batchCtrl *batch.Controller
		err       error
	)
	if f.LRConfig != nil {
		if lrCtrl, err = lrate.NewController(*f.LRConfig); err != nil {
			return nil, Summary{}, fmt.Errorf("lr config: %w", err)
		}
	}
	if f.StopConfig != nil {
		if stopMon, err = earlystop.NewMonitor(*f.StopConfig); err != nil {
			return nil, Summary{}, fmt.Errorf("stop config: %w", err)
		}
	}
	if f.BatchConfig != nil {
		if batchCtrl, err = batch.NewController(*f.BatchConfig); err != nil {
			return nil, Summary{}, fmt.Errorf("batch config: %w", err)
		}
	}

	results := make([]StepResult, 0, len(f.Epochs))
	summary := Summary{StoppedAtEpoch: -1}

	for _, epoch := range f.Epochs {
		r := StepResult{Epoch: epoch.Metrics.Epoch}

		if lrCtrl != nil {
			st := lrCtrl.Update(epoch.Metrics)
			r.LR = st.CurrentLR
		}
		if batchCtrl != nil {
			if epoch.Batch != nil {
				r.BatchSize = batchCtrl.ObserveBatch(*epoch.Batch)
			} else {
				r.BatchSize = batchCtrl.BatchSize()
			}
		}
		if stopMon != nil && !stopMon.Stopped() {
			if stopMon.Update(epoch.Metrics) {
				st := stopMon.State()
				r.Stopped = true
				r.StopReason = string(st.StopReason)
				summary.StoppedAtEpoch = epoch.Metrics.Epoch
			}
		} else if stopMon != nil {
			r.Stopped = true
			r.StopReason = string(stopMon.State().StopReason)
		}

		results = append(results, r)
		summary.TotalEpochs++

		if r.Stopped {
			break
		}
	}

	if lrCtrl != nil {
		st := lrCtrl.State()
		summary.RateReductions = st.Reductions
		summary.FinalLR = st.CurrentLR
	}
	if batchCtrl != nil {
		st := batchCtrl.State()
		summary.BatchResizes = st.Adjustments
		summary.FinalBatchSize = st.CurrentBatchSize
	}
	if stopMon != nil {
		summary.BestEpoch = stopMon.State().BestEpoch
	}
	return results, summary, nil
}

// #endregion replay

// #region verify

// lrTolerance is the relative tolerance for learning-rate comparisons.
const lrTolerance = 1e-9

// Verify compares replay results against the fixture's expected results and
// returns every divergence. Expected entries for epochs the replay never
// reached are reported as mismatches.
func Verify(f *Fixture, results []StepResult) []Mismatch {
	byEpoch := make(map[int]StepResult, len(results))
	for _, r := range results {
		byEpoch[r.Epoch] = r
	}

	var mismatches []Mismatch
	for _, exp := range f.ExpectedResults {
		got, ok := byEpoch[exp.Epoch]
		if !ok {
			mismatches = append(mismatches, Mismatch{
				Epoch: exp.Epoch, Field: "epoch",
				Want: "result", Got: "missing",
			})
			continue
		}
		if exp.LR != nil && !closeTo(got.LR, *exp.LR) {
			mismatches = append(mismatches, Mismatch{
				Epoch: exp.Epoch, Field: "lr",
				Want: fmt.Sprintf("%g", *exp.LR), Got: fmt.Sprintf("%g", got.LR),
			})
		}
		if exp.BatchSize != nil && got.BatchSize != *exp.BatchSize {
			mismatches = append(mismatches, Mismatch{
				Epoch: exp.Epoch, Field: "batch_size",
				Want: fmt.Sprintf("%d", *exp.BatchSize), Got: fmt.Sprintf("%d", got.BatchSize),
			})
		}
		if exp.Stopped != nil && got.Stopped != *exp.Stopped {
			mismatches = append(mismatches, Mismatch{
				Epoch: exp.Epoch, Field: "stopped",
				Want: fmt.Sprintf("%t", *exp.Stopped), Got: fmt.Sprintf("%t", got.Stopped),
			})
		}
	}
	return mismatches
}

func closeTo(a, b float64) bool {
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return true
	}
	return math.Abs(a-b) <= lrTolerance*scale
}

// #endregion verify
