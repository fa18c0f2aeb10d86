package domain

import "time"

// Report is everything the reporter needs to render one run. It is built by
// the runner after the last question finishes.
type Report struct {
	RunID          string        `json:"run_id"`
	Mode           Mode          `json:"mode"`
	Dataset        string        `json:"dataset"`
	DatasetVersion string        `json:"dataset_version"`
	AnswerModel    string        `json:"answer_model"`
	JudgeModel     string        `json:"judge_model"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Results        []Result      `json:"results"`
	Summary        RunSummary    `json:"summary"`
}
