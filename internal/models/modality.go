package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Modality names one analysis channel.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityVoice Modality = "voice"
	ModalityFace  Modality = "face"
)

// Modalities lists every channel in canonical order. Anything that iterates
// over results uses this order so output stays deterministic.
var Modalities = []Modality{ModalityText, ModalityVoice, ModalityFace}

// ParseModality maps a wire name onto a Modality.
func ParseModality(value string) (Modality, error) {
	switch Modality(strings.ToLower(strings.TrimSpace(value))) {
	case ModalityText:
		return ModalityText, nil
	case ModalityVoice:
		return ModalityVoice, nil
	case ModalityFace:
		return ModalityFace, nil
	default:
		return "", fmt.Errorf("unknown modality %q", value)
	}
}

// Title returns the capitalised name used in reasoning sentences.
func (m Modality) Title() string {
	if m == "" {
		return ""
	}
	return strings.ToUpper(string(m[:1])) + string(m[1:])
}

// Label is the internal verdict enum. Upstream models disagree on spelling,
// so every raw label goes through ParseLabel before any scoring happens.
type Label string

const (
	LabelTruthful  Label = "Truthful"
	LabelDeceptive Label = "Deceptive"
)

var (
	// ErrUnknownLabel marks a modality output whose label is not recognised.
	ErrUnknownLabel = errors.New("unknown prediction label")
	// ErrInvalidConfidence marks a confidence outside [0,1] after normalisation.
	ErrInvalidConfidence = errors.New("confidence out of range")
)

// ParseLabel normalises upstream label spellings ("Lie", "Truth", ...).
func ParseLabel(raw string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "deceptive", "lie":
		return LabelDeceptive, nil
	case "truthful", "truth":
		return LabelTruthful, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLabel, raw)
	}
}

// Lower returns the label in lower case for prose.
func (l Label) Lower() string {
	return strings.ToLower(string(l))
}

// NormalizeConfidence accepts either a fraction or a percentage (the voice
// model reports 0-100) and returns a fraction in [0,1].
func NormalizeConfidence(value float64) (float64, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidConfidence, value)
	}
	if value > 1 {
		value /= 100
	}
	if value < 0 || value > 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidConfidence, value)
	}
	return value, nil
}

// ModalityResult is one modality's verdict after boundary normalisation.
type ModalityResult struct {
	Prediction Label   `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// RawPrediction is the payload returned by a modality service before normalisation.
type RawPrediction struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// Normalize converts a raw upstream prediction into a ModalityResult.
func (r RawPrediction) Normalize() (ModalityResult, error) {
	label, err := ParseLabel(r.Prediction)
	if err != nil {
		return ModalityResult{}, err
	}
	confidence, err := NormalizeConfidence(r.Confidence)
	if err != nil {
		return ModalityResult{}, err
	}
	return ModalityResult{Prediction: label, Confidence: confidence}, nil
}

// DeceptionScore maps the verdict onto a single scale where 1 is maximally deceptive.
func (r ModalityResult) DeceptionScore() float64 {
	if r.Prediction == LabelDeceptive {
		return r.Confidence
	}
	return 1 - r.Confidence
}

// Validate checks that the result is already normalised.
func (r ModalityResult) Validate() error {
	if r.Prediction != LabelTruthful && r.Prediction != LabelDeceptive {
		return fmt.Errorf("%w: %q", ErrUnknownLabel, r.Prediction)
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidConfidence, r.Confidence)
	}
	return nil
}
