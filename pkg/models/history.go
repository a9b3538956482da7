package models

import "time"

// TrainingTrigger names what started a training cycle
type TrainingTrigger string

const (
	TriggerInitialize TrainingTrigger = "initialize"
	TriggerRetrain    TrainingTrigger = "retrain"
	TriggerSchedule   TrainingTrigger = "schedule"
)

// TrainingStatus is the outcome of a training cycle
type TrainingStatus string

const (
	TrainingStatusSucceeded TrainingStatus = "succeeded"
	TrainingStatusFailed    TrainingStatus = "failed"
)

// TrainingRun is one row of the training history
type TrainingRun struct {
	RunID      string          `json:"run_id"`
	Trigger    TrainingTrigger `json:"trigger"`
	Status     TrainingStatus  `json:"status"`
	Strategy   Strategy        `json:"strategy"`
	StartedAt  time.Time       `json:"started_at"`
	Duration   float64         `json:"duration"` // Seconds
	ModelCount int             `json:"model_count"`
	SampleRows int             `json:"sample_rows"`
	Error      string          `json:"error,omitempty"`
}
