package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vericloud/vericloud-fusion/internal/api"
	"github.com/vericloud/vericloud-fusion/internal/media"
	"github.com/vericloud/vericloud-fusion/internal/models"
)

func newPredictCommand(global *globalOptions) *cobra.Command {
	var text, textFile, audioPath, videoPath string
	cmd := &cobra.Command{
		Use:     "predict",
		Short:   "Send text, audio and video to a running fusion service",
		Example: "  fusionctl predict --text \"I was at home\" --audio answer.wav --video interview.mp4",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if textFile != "" {
				data, err := os.ReadFile(textFile)
				if err != nil {
					return err
				}
				text = string(data)
			}
			audio, err := loadArtifact(audioPath)
			if err != nil {
				return err
			}
			video, err := loadArtifact(videoPath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), global.timeout)
			defer cancel()
			result, err := api.NewClient(global.server, global.timeout).Fuse(ctx, models.FusionRequest{Text: text, Audio: audio, Video: video})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Transcript to analyse")
	cmd.Flags().StringVar(&textFile, "text-file", "", "Read the transcript from a file")
	cmd.Flags().StringVar(&audioPath, "audio", "", "Audio (or video) file for the voice model")
	cmd.Flags().StringVar(&videoPath, "video", "", "Video or image file for the face model")
	cmd.MarkFlagsMutuallyExclusive("text", "text-file")
	return cmd
}

func newHealthCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show the fusion service health report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), global.timeout)
			defer cancel()
			health, err := api.NewClient(global.server, global.timeout).Health(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), health)
		},
	}
}

func loadArtifact(path string) (*models.Artifact, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	a := &models.Artifact{Filename: filepath.Base(path), Data: data}
	a.ContentType = media.ContentType(a)
	return a, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
