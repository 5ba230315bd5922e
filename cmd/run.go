package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/moodtape/moodpipe/capture"
	"github.com/moodtape/moodpipe/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline against the default microphone",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf := loadConfig()

		p, err := orchestrator.NewPipeline(conf)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go logMoodStates(ctx, p)

		source := capture.NewPortAudio(conf.Audio.SampleRate, conf.Audio.FrameSize)
		return p.Run(ctx, source)
	},
}

// logMoodStates mirrors the published states to the log so a headless run is
// observable.
func logMoodStates(ctx context.Context, p *orchestrator.Pipeline) {
	sub := p.Engine().Subscribe()
	log := logrus.WithField("component", "mood")
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-sub:
			log.WithFields(logrus.Fields{
				"valence": st.Valence,
				"arousal": st.Arousal,
				"source":  st.Source,
				"seq":     st.Seq,
			}).Info("mood")
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
