package models

import "time"

// BreakdownEntry explains how much one modality moved the final score.
type BreakdownEntry struct {
	Prediction   Label   `json:"prediction"`
	Confidence   float64 `json:"confidence"`
	Weight       float64 `json:"weight"`
	Score        float64 `json:"score"`
	Contribution float64 `json:"contribution"`
}

// FusionResult is the blended verdict returned to callers.
type FusionResult struct {
	AnalysisID      string                      `json:"analysis_id,omitempty"`
	CreatedAt       time.Time                   `json:"created_at,omitempty"`
	FinalPrediction Label                       `json:"final_prediction"`
	FinalConfidence float64                     `json:"final_confidence"`
	FinalScore      float64                     `json:"final_score"`
	Breakdown       map[Modality]BreakdownEntry `json:"breakdown"`
	Reasoning       string                      `json:"reasoning"`
	WeightsUsed     map[Modality]float64        `json:"weights_used"`
	Errors          map[Modality]string         `json:"errors,omitempty"`
}

// Artifact is one uploaded file forwarded to a modality service.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Empty reports whether the artifact carries no payload.
func (a *Artifact) Empty() bool {
	return a == nil || len(a.Data) == 0
}

// FusionRequest is the caller's input to a fusion run.
type FusionRequest struct {
	Text  string
	Audio *Artifact
	Video *Artifact
}
