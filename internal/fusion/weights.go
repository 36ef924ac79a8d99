package fusion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/vericloud/vericloud-fusion/internal/models"
)

// weightTolerance bounds float drift when checking that a table sums to one.
const weightTolerance = 1e-6

// Weights assigns a share of the final score to each modality.
type Weights struct {
	Text  float64
	Voice float64
	Face  float64
}

// For returns the weight configured for modality m.
func (w Weights) For(m models.Modality) float64 {
	switch m {
	case models.ModalityText:
		return w.Text
	case models.ModalityVoice:
		return w.Voice
	case models.ModalityFace:
		return w.Face
	default:
		return 0
	}
}

// WeightTable is the static weighting policy. Full applies when all three
// modalities answered, WithoutFace when only text and voice did. Any other
// subset is derived from Full by renormalising over what is present.
type WeightTable struct {
	Full        Weights
	WithoutFace Weights
}

// DefaultWeightTable returns the 40/40/20 and 50/50 split.
func DefaultWeightTable() WeightTable {
	return WeightTable{
		Full:        Weights{Text: 0.40, Voice: 0.40, Face: 0.20},
		WithoutFace: Weights{Text: 0.50, Voice: 0.50},
	}
}

// Validate rejects negative weights and tables that do not sum to one.
func (t WeightTable) Validate() error {
	full := []float64{t.Full.Text, t.Full.Voice, t.Full.Face}
	pair := []float64{t.WithoutFace.Text, t.WithoutFace.Voice}
	for _, w := range append(append([]float64(nil), full...), pair...) {
		if math.IsNaN(w) || w < 0 {
			return fmt.Errorf("weights must be non-negative, got %v", w)
		}
	}
	if t.WithoutFace.Face != 0 {
		return fmt.Errorf("without-face table must not weight face, got %v", t.WithoutFace.Face)
	}
	if sum := floats.Sum(full); math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("full weight table sums to %.6f, want 1", sum)
	}
	if sum := floats.Sum(pair); math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("without-face weight table sums to %.6f, want 1", sum)
	}
	return nil
}

// Resolve returns the weights to apply to the present modalities, in the
// same order as present. The returned weights always sum to one.
func (t WeightTable) Resolve(present []models.Modality) ([]float64, error) {
	if len(present) == 0 {
		return nil, ErrNoData
	}

	var source Weights
	switch {
	case sameSet(present, models.ModalityText, models.ModalityVoice, models.ModalityFace):
		source = t.Full
	case sameSet(present, models.ModalityText, models.ModalityVoice):
		source = t.WithoutFace
	default:
		source = t.Full
	}

	weights := make([]float64, len(present))
	for i, m := range present {
		weights[i] = source.For(m)
	}

	sum := floats.Sum(weights)
	if sum <= 0 {
		for i := range weights {
			weights[i] = 1 / float64(len(weights))
		}
		return weights, nil
	}
	if math.Abs(sum-1) > weightTolerance {
		floats.Scale(1/sum, weights)
	}
	return weights, nil
}

func sameSet(present []models.Modality, want ...models.Modality) bool {
	if len(present) != len(want) {
		return false
	}
	seen := make(map[models.Modality]struct{}, len(present))
	for _, m := range present {
		seen[m] = struct{}{}
	}
	for _, m := range want {
		if _, ok := seen[m]; !ok {
			return false
		}
	}
	return len(seen) == len(want)
}
