package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/vericloud/vericloud-fusion/internal/models"
)

func TestResolveWeightsSumToOne(t *testing.T) {
	table := DefaultWeightTable()
	subsets := [][]models.Modality{
		{models.ModalityText, models.ModalityVoice, models.ModalityFace},
		{models.ModalityText, models.ModalityVoice},
		{models.ModalityText, models.ModalityFace},
		{models.ModalityVoice, models.ModalityFace},
		{models.ModalityText},
		{models.ModalityVoice},
		{models.ModalityFace},
	}

	for _, subset := range subsets {
		weights, err := table.Resolve(subset)
		require.NoError(t, err)
		require.Len(t, weights, len(subset))
		assert.InDelta(t, 1.0, floats.Sum(weights), 1e-9, "subset %v", subset)
	}
}

func TestResolveUsesConfiguredTables(t *testing.T) {
	table := DefaultWeightTable()

	weights, err := table.Resolve([]models.Modality{models.ModalityText, models.ModalityVoice})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, weights)

	weights, err = table.Resolve([]models.Modality{models.ModalityText, models.ModalityVoice, models.ModalityFace})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.4, 0.4, 0.2}, weights)

	weights, err = table.Resolve([]models.Modality{models.ModalityText, models.ModalityFace})
	require.NoError(t, err)
	assert.InDelta(t, 0.4/0.6, weights[0], 1e-9)
	assert.InDelta(t, 0.2/0.6, weights[1], 1e-9)
}

func TestResolveZeroWeightFallsBackToEqualShare(t *testing.T) {
	table := WeightTable{
		Full:        Weights{Text: 0.5, Voice: 0.5, Face: 0},
		WithoutFace: Weights{Text: 0.5, Voice: 0.5},
	}
	weights, err := table.Resolve([]models.Modality{models.ModalityFace})
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, weights)
}

func TestResolveEmpty(t *testing.T) {
	_, err := DefaultWeightTable().Resolve(nil)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestWeightTableValidate(t *testing.T) {
	require.NoError(t, DefaultWeightTable().Validate())

	bad := DefaultWeightTable()
	bad.Full.Face = -0.2
	assert.Error(t, bad.Validate())

	bad = DefaultWeightTable()
	bad.WithoutFace.Face = 0.1
	assert.Error(t, bad.Validate())

	bad = DefaultWeightTable()
	bad.WithoutFace.Voice = 0.6
	assert.Error(t, bad.Validate())
}
