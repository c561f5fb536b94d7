package session

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/adaptive-training/internal/batch"
	"github.com/danielpatrickdp/adaptive-training/internal/earlystop"
	"github.com/danielpatrickdp/adaptive-training/internal/gradient"
	"github.com/danielpatrickdp/adaptive-training/internal/lrate"
)

// ErrInvalidConfig reports a rejected session configuration.
var ErrInvalidConfig = errors.New("invalid session config")

// #region config

// Config bundles the four controller configs for one training session.
type Config struct {
	Gradient gradient.Config  `json:"gradient"`
	LR       lrate.Config     `json:"lr"`
	Batch    batch.Config     `json:"batch"`
	Stop     earlystop.Config `json:"stop"`

	// SnapshotEveryEpochs persists controller snapshots on that epoch
	// interval when a store is attached. Zero disables periodic snapshots.
	SnapshotEveryEpochs int `json:"snapshot_every_epochs"`
}

// DefaultConfig returns each controller's defaults with snapshots every
// 5 epochs.
func DefaultConfig() Config {
	return Config{
		Gradient:            gradient.DefaultConfig(),
		LR:                  lrate.DefaultConfig(),
		Batch:               batch.DefaultConfig(),
		Stop:                earlystop.DefaultConfig(),
		SnapshotEveryEpochs: 5,
	}
}

// Validate checks every sub-config.
func (c Config) Validate() error {
	if err := c.Gradient.Validate(); err != nil {
		return fmt.Errorf("%w: gradient: %v", ErrInvalidConfig, err)
	}
	if err := c.LR.Validate(); err != nil {
		return fmt.Errorf("%w: lr: %v", ErrInvalidConfig, err)
	}
	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("%w: batch: %v", ErrInvalidConfig, err)
	}
	if err := c.Stop.Validate(); err != nil {
		return fmt.Errorf("%w: stop: %v", ErrInvalidConfig, err)
	}
	if c.SnapshotEveryEpochs < 0 {
		return fmt.Errorf("%w: snapshot_every_epochs must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// #endregion config

// #region step-plan

// StepPlan is what a training step should apply next: the processed
// gradients (nil while an accumulation round is pending), the learning rate,
// and the batch size for the following batch.
type StepPlan struct {
	Gradients gradient.Buffers
	Pending   bool
	LR        float64
	BatchSize int
	Clipped   bool
}

// #endregion step-plan
