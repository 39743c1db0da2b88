package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the batch milestone an Event reports.
type Stage string

// Supported progress stages.
const (
	StageBatchStart Stage = "BATCH_START"
	StageInputDone  Stage = "INPUT_DONE"
	StageBatchDone  Stage = "BATCH_DONE"
)

// Event captures one step of a harvest batch.
type Event struct {
	// BatchID is the UUID assigned to the batch run.
	BatchID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Inputs is the batch size; set on BATCH_START.
	Inputs int
	// Input is the raw input for INPUT_DONE. Pasted text is elided.
	Input string
	// Route is the router classification of the input.
	Route string
	// Site is the sanitized host the input resolved to.
	Site string
	// Status is the harvest outcome of the input.
	Status string
	// Decks counts decks accepted from the input.
	Decks int
	// Warnings counts normalization warnings across those decks.
	Warnings int
	// Dur is the input or batch wall time.
	Dur time.Duration
	// Note carries low-volume context such as an error message.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if _, err := uuid.Parse(e.BatchID); err != nil {
		return fmt.Errorf("batch id: %w", err)
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageBatchStart:
		if e.Inputs < 0 {
			return errors.New("batch start requires a non-negative input count")
		}
	case StageInputDone:
		if e.Status == "" {
			return errors.New("input done requires status")
		}
	case StageBatchDone:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
