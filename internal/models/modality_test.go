package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		raw     string
		want    Label
		wantErr bool
	}{
		{raw: "Deceptive", want: LabelDeceptive},
		{raw: "Lie", want: LabelDeceptive},
		{raw: " lie ", want: LabelDeceptive},
		{raw: "Truthful", want: LabelTruthful},
		{raw: "TRUTH", want: LabelTruthful},
		{raw: "Unknown", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLabel(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownLabel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeConfidence(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		want    float64
		wantErr bool
	}{
		{name: "fraction", value: 0.78, want: 0.78},
		{name: "one", value: 1, want: 1},
		{name: "zero", value: 0, want: 0},
		{name: "percentage", value: 87.5, want: 0.875},
		{name: "hundred", value: 100, want: 1},
		{name: "above hundred", value: 140, wantErr: true},
		{name: "negative", value: -0.1, wantErr: true},
		{name: "nan", value: math.NaN(), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeConfidence(tt.value)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfidence)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRawPredictionNormalize(t *testing.T) {
	res, err := RawPrediction{Prediction: "Lie", Confidence: 64}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, LabelDeceptive, res.Prediction)
	assert.InDelta(t, 0.64, res.Confidence, 1e-9)

	_, err = RawPrediction{Prediction: "Maybe", Confidence: 0.5}.Normalize()
	assert.ErrorIs(t, err, ErrUnknownLabel)
}

func TestDeceptionScoreAtHalfIgnoresLabel(t *testing.T) {
	truthful := ModalityResult{Prediction: LabelTruthful, Confidence: 0.5}
	deceptive := ModalityResult{Prediction: LabelDeceptive, Confidence: 0.5}
	assert.Equal(t, 0.5, truthful.DeceptionScore())
	assert.Equal(t, 0.5, deceptive.DeceptionScore())
}

func TestParseModality(t *testing.T) {
	m, err := ParseModality(" Voice ")
	require.NoError(t, err)
	assert.Equal(t, ModalityVoice, m)
	assert.Equal(t, "Voice", m.Title())

	_, err = ParseModality("gait")
	assert.Error(t, err)
}
