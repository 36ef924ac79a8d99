package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vericloud/vericloud-fusion/internal/models"
)

type globalOptions struct {
	server  string
	timeout time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "fusionctl",
		Short:         "Operate the vericloud fusion service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", envOr("VERICLOUD_FUSION_URL", "http://localhost:8000"), "Fusion service base URL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 3*time.Minute, "Request timeout")

	cmd.AddCommand(newScoreCommand(opts), newPredictCommand(opts), newHealthCommand(opts))
	return cmd
}

// parsePrediction reads "Label:confidence", e.g. "Truthful:0.92" or "Lie:78".
func parsePrediction(value string) (models.RawPrediction, error) {
	label, conf, ok := strings.Cut(value, ":")
	if !ok {
		return models.RawPrediction{}, fmt.Errorf("expected LABEL:CONFIDENCE, got %q", value)
	}
	confidence, err := strconv.ParseFloat(strings.TrimSpace(conf), 64)
	if err != nil {
		return models.RawPrediction{}, fmt.Errorf("confidence in %q: %w", value, err)
	}
	raw := models.RawPrediction{Prediction: strings.TrimSpace(label), Confidence: confidence}
	if _, err := raw.Normalize(); err != nil {
		return models.RawPrediction{}, err
	}
	return raw, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
