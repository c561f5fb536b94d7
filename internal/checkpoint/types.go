package checkpoint

import "time"

// #region types

// SnapshotInfo describes one stored controller snapshot without its payload.
type SnapshotInfo struct {
	VersionID  string    `json:"version_id"`
	SessionID  string    `json:"session_id"`
	Controller string    `json:"controller"`
	Step       int       `json:"step"`
	CreatedAt  time.Time `json:"created_at"`
}

// Adjustment is one provenance entry recording a controller decision and the
// value transition it caused.
type Adjustment struct {
	SessionID  string    `json:"session_id"`
	Controller string    `json:"controller"`
	EventType  string    `json:"event_type"`
	OldValue   float64   `json:"old_value"`
	NewValue   float64   `json:"new_value"`
	Reason     string    `json:"reason,omitempty"`
	Step       int       `json:"step"`
	CreatedAt  time.Time `json:"created_at"`
}

// StepRecord is one training step as recorded for inspection and fixture
// export.
type StepRecord struct {
	SessionID string    `json:"session_id"`
	Epoch     int       `json:"epoch"`
	Step      int       `json:"step"`
	Loss      float64   `json:"loss"`
	ValLoss   *float64  `json:"val_loss,omitempty"`
	LR        float64   `json:"lr"`
	BatchSize int       `json:"batch_size"`
	CreatedAt time.Time `json:"created_at"`
}

// #endregion types
