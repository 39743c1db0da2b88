package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/deck-harvester/internal/progress"
)

const (
	defaultHistory = 50
	recentInputs   = 20
)

// InputStatus summarizes one finished input of a batch.
type InputStatus struct {
	Input    string  `json:"input"`
	Route    string  `json:"route"`
	Site     string  `json:"site,omitempty"`
	Status   string  `json:"status"`
	Decks    int     `json:"decks"`
	Warnings int     `json:"warnings"`
	Seconds  float64 `json:"seconds"`
	Note     string  `json:"note,omitempty"`
}

// BatchStatus is the live snapshot of a batch.
type BatchStatus struct {
	ID         string         `json:"batch_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Running    bool           `json:"running"`
	Result     string         `json:"result,omitempty"`
	Inputs     int            `json:"inputs"`
	Done       int            `json:"done"`
	Decks      int            `json:"decks"`
	Warnings   int            `json:"warnings"`
	Statuses   map[string]int `json:"statuses"`
	Recent     []InputStatus  `json:"recent"`
}

// StatusSink keeps an in-memory snapshot of recent batches for the status
// server. It retains a bounded number of batches, evicting the oldest.
type StatusSink struct {
	mu      sync.RWMutex
	history int
	batches map[string]*BatchStatus
	order   []string
}

// NewStatusSink builds a StatusSink retaining up to history batches
// (default 50).
func NewStatusSink(history int) *StatusSink {
	if history <= 0 {
		history = defaultHistory
	}
	return &StatusSink{history: history, batches: make(map[string]*BatchStatus)}
}

// Consume folds the events into the snapshot.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		status := s.batchFor(evt)
		switch evt.Stage {
		case progress.StageBatchStart:
			status.StartedAt = evt.TS
			status.Inputs = evt.Inputs
			status.Running = true
		case progress.StageInputDone:
			status.Done++
			status.Decks += evt.Decks
			status.Warnings += evt.Warnings
			status.Statuses[evt.Status]++
			status.Recent = append(status.Recent, InputStatus{
				Input:    evt.Input,
				Route:    evt.Route,
				Site:     evt.Site,
				Status:   evt.Status,
				Decks:    evt.Decks,
				Warnings: evt.Warnings,
				Seconds:  evt.Dur.Seconds(),
				Note:     evt.Note,
			})
			if n := len(status.Recent); n > recentInputs {
				status.Recent = append([]InputStatus(nil), status.Recent[n-recentInputs:]...)
			}
		case progress.StageBatchDone:
			finished := evt.TS
			status.FinishedAt = &finished
			status.Running = false
			status.Result = evt.Status
			if status.Result == "" {
				status.Result = "completed"
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StatusSink) Close(context.Context) error {
	return nil
}

// Batches returns copies of the retained batches, newest first.
func (s *StatusSink) Batches() []BatchStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BatchStatus, 0, len(s.batches))
	for _, status := range s.batches {
		out = append(out, status.clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Batch returns a copy of the batch with id.
func (s *StatusSink) Batch(id string) (BatchStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.batches[id]
	if !ok {
		return BatchStatus{}, false
	}
	return status.clone(), true
}

func (s *StatusSink) batchFor(evt progress.Event) *BatchStatus {
	if status, ok := s.batches[evt.BatchID]; ok {
		return status
	}
	status := &BatchStatus{ID: evt.BatchID, StartedAt: evt.TS, Statuses: map[string]int{}}
	s.batches[evt.BatchID] = status
	s.order = append(s.order, evt.BatchID)
	for len(s.order) > s.history {
		delete(s.batches, s.order[0])
		s.order = s.order[1:]
	}
	return status
}

func (b *BatchStatus) clone() BatchStatus {
	out := *b
	out.Statuses = make(map[string]int, len(b.Statuses))
	for k, v := range b.Statuses {
		out.Statuses[k] = v
	}
	out.Recent = append(make([]InputStatus, 0, len(b.Recent)), b.Recent...)
	if b.FinishedAt != nil {
		finished := *b.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}
