package dto

// TriggerResponse acknowledges a run started in the background. Its outcome
// is reported on /api/v1/runs and the run websocket.
type TriggerResponse struct {
	Kind     string `json:"kind"`
	Accepted bool   `json:"accepted"`
}
