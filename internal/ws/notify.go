package ws

import (
	"encoding/json"

	"jobpulse/internal/domain/posting"

	"go.uber.org/zap"
)

type RunFinishedEvent struct {
	Type   string            `json:"type"`
	Kind   posting.RunKind   `json:"kind"`
	RunID  string            `json:"run_id"`
	Status posting.RunStatus `json:"status"`
	Reason string            `json:"stop_reason,omitempty"`
	Counts posting.RunCounts `json:"counts"`
}

// NotifyRunFinished broadcasts the outcome of a run to every subscriber.
func (h *Hub) NotifyRunFinished(run posting.Run) {
	if h == nil {
		return
	}
	b, err := json.Marshal(RunFinishedEvent{
		Type:   "run_finished",
		Kind:   run.Kind,
		RunID:  run.ID,
		Status: run.Status,
		Reason: run.StopReason,
		Counts: run.Counts,
	})
	if err != nil {
		h.log.Warn("encode run event", zap.Error(err))
		return
	}
	h.Broadcast(b)
}
