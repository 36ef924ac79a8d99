package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vericloud/vericloud-fusion/internal/api"
	"github.com/vericloud/vericloud-fusion/internal/config"
	"github.com/vericloud/vericloud-fusion/internal/engine"
	"github.com/vericloud/vericloud-fusion/internal/fusion"
	"github.com/vericloud/vericloud-fusion/internal/grpc/fusionv1"
	"github.com/vericloud/vericloud-fusion/internal/models"
)

type scoreOptions struct {
	text, voice, face string
	configPath        string
	remote            bool
	grpcAddr          string
}

func newScoreCommand(global *globalOptions) *cobra.Command {
	opts := &scoreOptions{}
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Fuse pre-computed modality predictions",
		Long: "Fuse LABEL:CONFIDENCE predictions locally with the configured weight table,\n" +
			"or remotely with --remote (HTTP) or --grpc ADDR.",
		Example: "  fusionctl score --text Truthful:0.92 --voice Lie:78",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := opts.collect()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), global.timeout)
			defer cancel()

			var result models.FusionResult
			switch {
			case opts.grpcAddr != "":
				result, err = scoreGRPC(ctx, opts.grpcAddr, raw)
			case opts.remote:
				result, err = api.NewClient(global.server, global.timeout).Score(ctx, raw)
			default:
				result, err = scoreLocal(opts.configPath, raw)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&opts.text, "text", "", "Text model output, LABEL:CONFIDENCE")
	cmd.Flags().StringVar(&opts.voice, "voice", "", "Voice model output, LABEL:CONFIDENCE")
	cmd.Flags().StringVar(&opts.face, "face", "", "Face model output, LABEL:CONFIDENCE")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Config file supplying weights and threshold for local scoring")
	cmd.Flags().BoolVar(&opts.remote, "remote", false, "Score on the server given by --server")
	cmd.Flags().StringVar(&opts.grpcAddr, "grpc", "", "Score over gRPC at this address")
	cmd.MarkFlagsMutuallyExclusive("remote", "grpc")
	return cmd
}

func (o *scoreOptions) collect() (map[string]models.RawPrediction, error) {
	raw := make(map[string]models.RawPrediction, 3)
	for name, value := range map[string]string{"text": o.text, "voice": o.voice, "face": o.face} {
		if value == "" {
			continue
		}
		prediction, err := parsePrediction(value)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
		raw[name] = prediction
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one of --text, --voice, --face is required")
	}
	return raw, nil
}

func scoreLocal(configPath string, raw map[string]models.RawPrediction) (models.FusionResult, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return models.FusionResult{}, err
	}
	calc, err := fusion.NewCalculator(fusion.Options{
		Weights: fusion.WeightTable{
			Full:        fusion.Weights(cfg.Fusion.Weights),
			WithoutFace: fusion.Weights(cfg.Fusion.WeightsNoFace),
		},
		Threshold:      cfg.Fusion.Threshold,
		HighConfidence: &cfg.Fusion.HighConfidence,
	})
	if err != nil {
		return models.FusionResult{}, err
	}
	eng, err := engine.New(engine.Options{Calculator: calc, Policy: engine.Policy(cfg.Fusion.Policy)})
	if err != nil {
		return models.FusionResult{}, err
	}
	return eng.Score(raw)
}

func scoreGRPC(ctx context.Context, addr string, raw map[string]models.RawPrediction) (models.FusionResult, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return models.FusionResult{}, err
	}
	defer conn.Close()

	result, err := fusionv1.NewFusionClient(conn).Score(ctx, &fusionv1.ScoreRequest{Results: raw})
	if err != nil {
		return models.FusionResult{}, err
	}
	return *result, nil
}
