package cmd

import (
	"errors"
	"io/fs"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/icu-agent/icu-agent/agent"
	"github.com/icu-agent/icu-agent/agent/api"
)

var (
	serveAddr string // Listen address
	serveTag  string // Checkpoint tag to load at startup
)

// serveCmd loads a checkpoint and serves predictions over HTTP.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve admission recommendations from a trained checkpoint",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		cfg := loadConfig(cmd)

		store, err := agent.NewCheckpointStore(cfg.Training.CheckpointDir)
		if err != nil {
			logrus.Fatalf("unable to open checkpoint store: %v", err)
		}

		predictor := agent.NewPredictor()
		rng := agent.NewPartitionedRNG(cfg.Seed)
		if err := loadStartupCheckpoint(store, predictor, cfg, rng); err != nil {
			logrus.Fatalf("unable to load checkpoint: %v", err)
		}

		trainer := agent.NewTrainer(cfg, store, predictor, nil)
		server := api.NewServer(predictor, trainer)
		if err := server.Run(serveAddr); err != nil {
			logrus.Fatalf("server stopped: %v", err)
		}
	},
}

// loadStartupCheckpoint prefers the best checkpoint, falls back to
// latest, and tolerates a completely empty store (predictions return a
// model-not-loaded error until /train produces one). A corrupt best
// checkpoint falls back to latest rather than refusing to start.
func loadStartupCheckpoint(store *agent.CheckpointStore, predictor *agent.Predictor, cfg agent.Config, rng *agent.PartitionedRNG) error {
	tags := []string{agent.TagBest, agent.TagLatest}
	if serveTag != "" {
		tags = []string{serveTag}
	}
	var lastErr error
	for _, tag := range tags {
		cp, err := store.Load(tag)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			logrus.Warnf("checkpoint %q unusable, trying fallback: %v", tag, err)
			lastErr = err
			continue
		}
		return predictor.LoadCheckpoint(cp, cfg.Network, rng)
	}
	if lastErr != nil {
		return lastErr
	}
	logrus.Warn("no checkpoint found; serving without a model until training runs")
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8000", "HTTP listen address")
	serveCmd.Flags().StringVar(&serveTag, "tag", "", "Checkpoint tag to load (default: best, then latest)")
	rootCmd.AddCommand(serveCmd)
}
