package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/moodtape/moodpipe/capture"
	"github.com/moodtape/moodpipe/orchestrator"
)

var (
	simDuration time.Duration
	simFreq     float64
	simNoise    float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the pipeline against a synthetic tone source",
	Long: `simulate drives the full pipeline without an audio device, feeding a
sine-plus-noise generator through capture, extraction, classification and
fusion, then writes the usual session output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf := loadConfig()

		p, err := orchestrator.NewPipeline(conf)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if simDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, simDuration)
			defer cancel()
		}

		go logMoodStates(ctx, p)

		source := capture.NewSynthetic(conf.Audio.SampleRate, conf.Audio.FrameSize)
		source.Freq = simFreq
		source.NoiseAmp = simNoise
		return p.Run(ctx, source)
	},
}

func init() {
	simulateCmd.Flags().DurationVar(&simDuration, "duration", 30*time.Second, "how long to run")
	simulateCmd.Flags().Float64Var(&simFreq, "freq", 220, "tone frequency in Hz")
	simulateCmd.Flags().Float64Var(&simNoise, "noise", 0.02, "white-noise amplitude")
	rootCmd.AddCommand(simulateCmd)
}
