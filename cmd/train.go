package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/icu-agent/icu-agent/agent"
)

var (
	trainIterations int // Outer training iterations
	trainEpisodes   int // Episodes collected per iteration
	trainWorkers    int // Parallel rollout workers
)

// trainCmd runs the PPO training loop and checkpoints the result.
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the admission policy with PPO",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		cfg := loadConfig(cmd)
		if cmd.Flags().Changed("episodes") {
			cfg.Training.EpisodesPerIteration = trainEpisodes
		}
		if cmd.Flags().Changed("workers") {
			cfg.Training.Workers = trainWorkers
		}

		store, err := agent.NewCheckpointStore(cfg.Training.CheckpointDir)
		if err != nil {
			logrus.Fatalf("unable to open checkpoint store: %v", err)
		}

		// SIGINT/SIGTERM cancel between iterations; the last saved
		// checkpoint stays intact.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logrus.Infof("Starting training: %d iterations, %d episodes/iteration, seed=%d",
			trainIterations, cfg.Training.EpisodesPerIteration, cfg.Seed)
		start := time.Now()

		trainer := agent.NewTrainer(cfg, store, nil, nil)
		result, err := trainer.Run(ctx, trainIterations)
		if err != nil && !errors.Is(err, context.Canceled) {
			logrus.Fatalf("training failed: %v", err)
		}

		status := trainer.Status()
		logrus.Infof("Training complete: %d iterations in %s, final reward %.2f, best reward %.2f, accuracy %.1f%%",
			result.IterationsCompleted, time.Since(start).Round(time.Millisecond),
			result.FinalReward, status.BestReward, status.RollingAccuracy*100)
	},
}

func init() {
	trainCmd.Flags().IntVar(&trainIterations, "iterations", 200, "Number of outer training iterations")
	trainCmd.Flags().IntVar(&trainEpisodes, "episodes", 32, "Episodes collected per iteration")
	trainCmd.Flags().IntVar(&trainWorkers, "workers", 4, "Parallel rollout collection workers")
	rootCmd.AddCommand(trainCmd)
}
