package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vericloud/vericloud-fusion/internal/models"
)

func result(label models.Label, confidence float64) models.ModalityResult {
	return models.ModalityResult{Prediction: label, Confidence: confidence}
}

func TestCalculateTextVoiceDisagreement(t *testing.T) {
	calc := NewDefaultCalculator()

	out, err := calc.Calculate(map[models.Modality]models.ModalityResult{
		models.ModalityText:  result(models.LabelTruthful, 0.92),
		models.ModalityVoice: result(models.LabelDeceptive, 0.78),
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.43, out.FinalScore, 1e-9)
	assert.Equal(t, models.LabelTruthful, out.FinalPrediction)
	assert.InDelta(t, 0.57, out.FinalConfidence, 1e-9)
	assert.InDelta(t, 0.08, out.Breakdown[models.ModalityText].Score, 1e-9)
	assert.InDelta(t, 0.78, out.Breakdown[models.ModalityVoice].Score, 1e-9)
	assert.InDelta(t, 0.04, out.Breakdown[models.ModalityText].Contribution, 1e-9)
	assert.InDelta(t, 0.39, out.Breakdown[models.ModalityVoice].Contribution, 1e-9)
	assert.Equal(t, map[models.Modality]float64{models.ModalityText: 0.5, models.ModalityVoice: 0.5}, out.WeightsUsed)
	assert.Equal(t, "Text model shows strongest signal (92.0% confidence) influencing final decision.", out.Reasoning)
}

func TestCalculateAllThreeAgree(t *testing.T) {
	calc := NewDefaultCalculator()

	out, err := calc.Calculate(map[models.Modality]models.ModalityResult{
		models.ModalityText:  result(models.LabelDeceptive, 0.6),
		models.ModalityVoice: result(models.LabelDeceptive, 0.6),
		models.ModalityFace:  result(models.LabelDeceptive, 0.6),
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.6, out.FinalScore, 1e-9)
	assert.Equal(t, models.LabelDeceptive, out.FinalPrediction)
	assert.InDelta(t, 0.6, out.FinalConfidence, 1e-9)
	assert.InDelta(t, 0.4, out.WeightsUsed[models.ModalityText], 1e-9)
	assert.InDelta(t, 0.4, out.WeightsUsed[models.ModalityVoice], 1e-9)
	assert.InDelta(t, 0.2, out.WeightsUsed[models.ModalityFace], 1e-9)
	assert.Equal(t, "All models agree on deceptive prediction with high confidence.", out.Reasoning)
}

func TestCalculateMixedSignals(t *testing.T) {
	calc := NewDefaultCalculator()

	out, err := calc.Calculate(map[models.Modality]models.ModalityResult{
		models.ModalityText:  result(models.LabelDeceptive, 0.55),
		models.ModalityVoice: result(models.LabelTruthful, 0.65),
	})
	require.NoError(t, err)
	assert.Equal(t, "Models show mixed signals. Decision based on weighted consensus.", out.Reasoning)
}

func TestReasoningTieGoesToCanonicalOrder(t *testing.T) {
	calc := NewDefaultCalculator()

	out, err := calc.Calculate(map[models.Modality]models.ModalityResult{
		models.ModalityFace:  result(models.LabelDeceptive, 0.8),
		models.ModalityVoice: result(models.LabelTruthful, 0.8),
		models.ModalityText:  result(models.LabelTruthful, 0.8),
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.32, out.FinalScore, 1e-9)
	assert.Equal(t, "Text model shows strongest signal (80.0% confidence) influencing final decision.", out.Reasoning)
}

func TestReasoningAgreementOverturnedByScore(t *testing.T) {
	calc := NewDefaultCalculator()

	out, err := calc.Calculate(map[models.Modality]models.ModalityResult{
		models.ModalityText:  result(models.LabelDeceptive, 0.3),
		models.ModalityVoice: result(models.LabelDeceptive, 0.3),
	})
	require.NoError(t, err)
	assert.Equal(t, models.LabelTruthful, out.FinalPrediction)
	assert.Equal(t, "Models show mixed signals. Decision based on weighted consensus.", out.Reasoning)
}

func TestReasoningSingleModality(t *testing.T) {
	calc := NewDefaultCalculator()

	out, err := calc.Calculate(map[models.Modality]models.ModalityResult{
		models.ModalityVoice: result(models.LabelDeceptive, 0.64),
	})
	require.NoError(t, err)
	assert.Equal(t, "Only the voice model answered; decision follows its deceptive prediction (64.0% confidence).", out.Reasoning)
}

func TestHighConfidenceBarOfZero(t *testing.T) {
	in := map[models.Modality]models.ModalityResult{
		models.ModalityText:  result(models.LabelDeceptive, 0.55),
		models.ModalityVoice: result(models.LabelTruthful, 0.65),
	}

	zero := 0.0
	calc, err := NewCalculator(Options{Weights: DefaultWeightTable(), HighConfidence: &zero})
	require.NoError(t, err)
	out, err := calc.Calculate(in)
	require.NoError(t, err)
	assert.Equal(t, "Voice model shows strongest signal (65.0% confidence) influencing final decision.", out.Reasoning)

	calc, err = NewCalculator(Options{Weights: DefaultWeightTable()})
	require.NoError(t, err)
	out, err = calc.Calculate(in)
	require.NoError(t, err)
	assert.Equal(t, "Models show mixed signals. Decision based on weighted consensus.", out.Reasoning)

	tooHigh := 1.2
	_, err = NewCalculator(Options{Weights: DefaultWeightTable(), HighConfidence: &tooHigh})
	assert.Error(t, err)
}

func TestCalculateThresholdIsExclusive(t *testing.T) {
	calc := NewDefaultCalculator()

	out, err := calc.Calculate(map[models.Modality]models.ModalityResult{
		models.ModalityText:  result(models.LabelDeceptive, 0.5),
		models.ModalityVoice: result(models.LabelTruthful, 0.5),
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out.FinalScore, 1e-9)
	assert.Equal(t, models.LabelTruthful, out.FinalPrediction)
	assert.InDelta(t, 0.5, out.FinalConfidence, 1e-9)
}

func TestCalculateIsIdempotent(t *testing.T) {
	calc := NewDefaultCalculator()
	in := map[models.Modality]models.ModalityResult{
		models.ModalityText:  result(models.LabelTruthful, 0.81),
		models.ModalityVoice: result(models.LabelDeceptive, 0.66),
		models.ModalityFace:  result(models.LabelTruthful, 0.72),
	}

	first, err := calc.Calculate(in)
	require.NoError(t, err)
	second, err := calc.Calculate(in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCalculateScoreStaysInUnitInterval(t *testing.T) {
	calc := NewDefaultCalculator()
	labels := []models.Label{models.LabelTruthful, models.LabelDeceptive}
	confidences := []float64{0, 0.1, 0.5, 0.9, 1}

	for _, lt := range labels {
		for _, lv := range labels {
			for _, lf := range labels {
				for _, ct := range confidences {
					for _, cv := range confidences {
						for _, cf := range confidences {
							out, err := calc.Calculate(map[models.Modality]models.ModalityResult{
								models.ModalityText:  result(lt, ct),
								models.ModalityVoice: result(lv, cv),
								models.ModalityFace:  result(lf, cf),
							})
							require.NoError(t, err)
							assert.GreaterOrEqual(t, out.FinalScore, 0.0)
							assert.LessOrEqual(t, out.FinalScore, 1.0)
							assert.GreaterOrEqual(t, out.FinalConfidence, 0.5)
						}
					}
				}
			}
		}
	}
}

func TestCalculateSingleModality(t *testing.T) {
	calc := NewDefaultCalculator()

	out, err := calc.Calculate(map[models.Modality]models.ModalityResult{
		models.ModalityText: result(models.LabelTruthful, 0.9),
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, out.FinalScore, 1e-9)
	assert.Equal(t, models.LabelTruthful, out.FinalPrediction)
	assert.InDelta(t, 0.9, out.FinalConfidence, 1e-9)
	assert.InDelta(t, 1.0, out.WeightsUsed[models.ModalityText], 1e-9)
	assert.Equal(t, "Only the text model answered; decision follows its truthful prediction (90.0% confidence).", out.Reasoning)
}

func TestCalculateErrors(t *testing.T) {
	calc := NewDefaultCalculator()

	_, err := calc.Calculate(nil)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = calc.Calculate(map[models.Modality]models.ModalityResult{
		models.ModalityText: {Prediction: "Unknown", Confidence: 0.4},
	})
	assert.ErrorIs(t, err, models.ErrUnknownLabel)

	_, err = calc.Calculate(map[models.Modality]models.ModalityResult{
		models.ModalityText: result(models.LabelTruthful, 1.5),
	})
	assert.ErrorIs(t, err, models.ErrInvalidConfidence)

	_, err = calc.Calculate(map[models.Modality]models.ModalityResult{
		"gait": result(models.LabelTruthful, 0.5),
	})
	assert.Error(t, err)
}

func TestNewCalculatorValidation(t *testing.T) {
	_, err := NewCalculator(Options{Weights: WeightTable{
		Full:        Weights{Text: 0.5, Voice: 0.5, Face: 0.5},
		WithoutFace: Weights{Text: 0.5, Voice: 0.5},
	}})
	assert.Error(t, err)

	_, err = NewCalculator(Options{Weights: DefaultWeightTable(), Threshold: 1.2})
	assert.Error(t, err)

	calc, err := NewCalculator(Options{Weights: DefaultWeightTable()})
	require.NoError(t, err)
	assert.Equal(t, DefaultWeightTable(), calc.Weights())
}

func TestCustomWeightTable(t *testing.T) {
	calc, err := NewCalculator(Options{
		Weights: WeightTable{
			Full:        Weights{Text: 0.2, Voice: 0.3, Face: 0.5},
			WithoutFace: Weights{Text: 0.25, Voice: 0.75},
		},
	})
	require.NoError(t, err)

	out, err := calc.Calculate(map[models.Modality]models.ModalityResult{
		models.ModalityText:  result(models.LabelDeceptive, 1),
		models.ModalityVoice: result(models.LabelTruthful, 1),
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, out.FinalScore, 1e-9)
}
