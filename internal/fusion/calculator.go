// Package fusion blends per-modality deception verdicts into one result.
//
// The calculator is a pure function of its inputs and its configuration: it
// performs no I/O, holds no mutable state, and is safe for concurrent use.
package fusion

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/vericloud/vericloud-fusion/internal/models"
)

const (
	// DefaultThreshold separates Truthful from Deceptive on the deception scale.
	DefaultThreshold = 0.5
	// DefaultHighConfidence is the bar a single modality must clear to be
	// named as the dominant signal in the reasoning sentence.
	DefaultHighConfidence = 0.7
)

// ErrNoData is returned when no modality produced a usable result.
var ErrNoData = errors.New("no modality data available for fusion")

// Options configures a Calculator. A nil HighConfidence uses
// DefaultHighConfidence; zero is a valid bar.
type Options struct {
	Weights        WeightTable
	Threshold      float64
	HighConfidence *float64
}

// Calculator computes weighted fusion verdicts.
type Calculator struct {
	weights        WeightTable
	threshold      float64
	highConfidence float64
}

// NewCalculator validates opts and returns a Calculator. A zero threshold
// falls back to DefaultThreshold.
func NewCalculator(opts Options) (*Calculator, error) {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	highConfidence := DefaultHighConfidence
	if opts.HighConfidence != nil {
		highConfidence = *opts.HighConfidence
	}
	if opts.Threshold <= 0 || opts.Threshold >= 1 {
		return nil, fmt.Errorf("threshold must be within (0,1), got %v", opts.Threshold)
	}
	if math.IsNaN(highConfidence) || highConfidence < 0 || highConfidence > 1 {
		return nil, fmt.Errorf("high confidence bar must be within [0,1], got %v", highConfidence)
	}
	if err := opts.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid weight table: %w", err)
	}
	return &Calculator{
		weights:        opts.Weights,
		threshold:      opts.Threshold,
		highConfidence: highConfidence,
	}, nil
}

// NewDefaultCalculator returns a Calculator with the stock weight table.
func NewDefaultCalculator() *Calculator {
	return &Calculator{
		weights:        DefaultWeightTable(),
		threshold:      DefaultThreshold,
		highConfidence: DefaultHighConfidence,
	}
}

// Weights exposes the configured weight table.
func (c *Calculator) Weights() WeightTable {
	return c.weights
}

// Calculate blends the present modality results. It does not stamp an
// analysis ID or timestamp; callers own result identity.
func (c *Calculator) Calculate(results map[models.Modality]models.ModalityResult) (models.FusionResult, error) {
	if len(results) == 0 {
		return models.FusionResult{}, ErrNoData
	}

	present := make([]models.Modality, 0, len(results))
	for m := range results {
		if !isKnown(m) {
			return models.FusionResult{}, fmt.Errorf("unknown modality %q", m)
		}
	}
	for _, m := range models.Modalities {
		res, ok := results[m]
		if !ok {
			continue
		}
		if err := res.Validate(); err != nil {
			return models.FusionResult{}, fmt.Errorf("%s result: %w", m, err)
		}
		present = append(present, m)
	}

	weights, err := c.weights.Resolve(present)
	if err != nil {
		return models.FusionResult{}, err
	}

	scores := make([]float64, len(present))
	for i, m := range present {
		scores[i] = results[m].DeceptionScore()
	}

	finalScore := clamp(floats.Dot(weights, scores), 0, 1)
	prediction := models.LabelTruthful
	confidence := 1 - finalScore
	if finalScore > c.threshold {
		prediction = models.LabelDeceptive
		confidence = finalScore
	}

	breakdown := make(map[models.Modality]models.BreakdownEntry, len(present))
	used := make(map[models.Modality]float64, len(present))
	for i, m := range present {
		res := results[m]
		breakdown[m] = models.BreakdownEntry{
			Prediction:   res.Prediction,
			Confidence:   res.Confidence,
			Weight:       weights[i],
			Score:        scores[i],
			Contribution: weights[i] * scores[i],
		}
		used[m] = weights[i]
	}

	return models.FusionResult{
		FinalPrediction: prediction,
		FinalConfidence: confidence,
		FinalScore:      finalScore,
		Breakdown:       breakdown,
		Reasoning:       c.reasoning(prediction, present, results),
		WeightsUsed:     used,
	}, nil
}

// reasoning explains the verdict. The agreement sentence names the shared
// label and is only used when that label is also the final verdict; a
// low-confidence agreement that the weighted score overturns falls through
// to the dominant-signal and mixed-signal sentences.
func (c *Calculator) reasoning(final models.Label, present []models.Modality, results map[models.Modality]models.ModalityResult) string {
	if len(present) == 1 {
		only := results[present[0]]
		return fmt.Sprintf("Only the %s model answered; decision follows its %s prediction (%.1f%% confidence).",
			present[0], only.Prediction.Lower(), only.Confidence*100)
	}

	shared := results[present[0]].Prediction
	agree := true
	for _, m := range present[1:] {
		if results[m].Prediction != shared {
			agree = false
			break
		}
	}
	if agree && shared == final {
		return fmt.Sprintf("All models agree on %s prediction with high confidence.", shared.Lower())
	}

	var dominant models.Modality
	best := -1.0
	for _, m := range present {
		conf := results[m].Confidence
		if conf > c.highConfidence && conf > best {
			dominant = m
			best = conf
		}
	}
	if dominant != "" {
		return fmt.Sprintf("%s model shows strongest signal (%.1f%% confidence) influencing final decision.", dominant.Title(), best*100)
	}
	return "Models show mixed signals. Decision based on weighted consensus."
}

func isKnown(m models.Modality) bool {
	for _, known := range models.Modalities {
		if m == known {
			return true
		}
	}
	return false
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
