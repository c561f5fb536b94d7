package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-training/internal/batch"
	"github.com/danielpatrickdp/adaptive-training/internal/earlystop"
	"github.com/danielpatrickdp/adaptive-training/internal/lrate"
	"github.com/danielpatrickdp/adaptive-training/internal/metrics"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a recorded
// metric trace plus the controller configs to drive over it. A nil config
// leaves that controller out of the run.
type Fixture struct {
	Description     string            `json:"description"`
	LRConfig        *lrate.Config     `json:"lr_config,omitempty"`
	StopConfig      *earlystop.Config `json:"stop_config,omitempty"`
	BatchConfig     *batch.Config     `json:"batch_config,omitempty"`
	Epochs          []FixtureEpoch    `json:"epochs"`
	ExpectedResults []ExpectedResult  `json:"expected_results,omitempty"`
}

// FixtureEpoch is one recorded epoch: the training metrics the controllers
// saw, plus optional batch telemetry when the fixture exercises the batch
// controller.
type FixtureEpoch struct {
	Metrics metrics.StepMetrics `json:"metrics"`
	Batch   *batch.BatchMetrics `json:"batch,omitempty"`
}

// ExpectedResult captures the expected controller outputs after one epoch.
// Pointer fields are checked only when present.
type ExpectedResult struct {
	Epoch     int      `json:"epoch"`
	LR        *float64 `json:"lr,omitempty"`
	BatchSize *int     `json:"batch_size,omitempty"`
	Stopped   *bool    `json:"stopped,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// SaveFixture writes a fixture as indented JSON.
func SaveFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion fixture-loader
