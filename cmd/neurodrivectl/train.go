package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"neurodrive/internal/training"
	"neurodrive/pkg/neurodrive"
)

type trainOptions struct {
	runID       string
	hyperparams string
	tracksFile  string
	track       string
	generations int
	population  int
	seed        int64
	resumeFrom  string
	checkpoint  string
	saveEvery   int
	plotTrails  bool
	quiet       bool
	jsonOut     bool
}

func newTrainCmd(root *rootOptions) *cobra.Command {
	opts := &trainOptions{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Evolve a population of drivers on a track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()
			req := neurodrive.TrainRequest{
				RunID:       opts.runID,
				ConfigFile:  opts.hyperparams,
				TracksFile:  opts.tracksFile,
				Track:       opts.track,
				Generations: opts.generations,
				Population:  opts.population,
				ResumeFrom:  opts.resumeFrom,
				Checkpoint:  opts.checkpoint,
				SaveEvery:   opts.saveEvery,
				PlotTrails:  opts.plotTrails,
			}
			if cmd.Flags().Changed("seed") {
				req.Seed = &opts.seed
			}
			return runTrain(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), client, req, opts)
		},
	}
	cmd.Flags().StringVar(&opts.runID, "run-id", "", "run id (generated when empty)")
	cmd.Flags().StringVar(&opts.hyperparams, "hyperparams", "", "INI hyperparameter file")
	cmd.Flags().StringVar(&opts.tracksFile, "tracks", "", "JSON tracks file (built-in tracks when empty)")
	cmd.Flags().StringVar(&opts.track, "track", "", "track name or index")
	cmd.Flags().IntVar(&opts.generations, "generations", 0, "generations to run (0 keeps the configured value)")
	cmd.Flags().IntVar(&opts.population, "population", 0, "population size (0 keeps the configured value)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed")
	cmd.Flags().StringVar(&opts.resumeFrom, "resume-from", "", "genome set to continue from")
	cmd.Flags().StringVar(&opts.checkpoint, "checkpoint", "", "genome set name checkpoints are saved under (run id when empty)")
	cmd.Flags().IntVar(&opts.saveEvery, "save-every", 0, "checkpoint every n generations (0 keeps the configured value)")
	cmd.Flags().BoolVar(&opts.plotTrails, "plot-trails", false, "race the final population once and chart its paths")
	cmd.Flags().BoolVar(&opts.quiet, "quiet", false, "suppress per generation progress")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "emit the run summary as JSON")
	return cmd
}

func runTrain(
	ctx context.Context,
	out, progressOut io.Writer,
	client *neurodrive.Client,
	req neurodrive.TrainRequest,
	opts *trainOptions,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// resolved up front so an interrupt in the first generation can stop the run
	if req.RunID == "" {
		req.RunID = "run-" + uuid.NewString()
	}
	req.Progress = func(p training.Progress) {
		if !opts.quiet {
			fmt.Fprintln(progressOut, formatProgress(p))
		}
	}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	runID := req.RunID
	go watchInterrupts(ctx, sigs, func() error { return client.Stop(runID) }, cancel, progressOut)

	summary, err := client.Train(ctx, req)
	if err != nil {
		return err
	}
	if opts.jsonOut {
		return writeJSON(out, summary)
	}
	status := "completed"
	if summary.Stopped {
		status = "stopped"
	}
	fmt.Fprintf(out, "run_id=%s status=%s track=%s generations=%d best_fitness=%.6f checkpoint=%s artifacts=%s\n",
		summary.RunID,
		status,
		summary.Track,
		len(summary.BestByGeneration),
		summary.FinalBestFitness,
		summary.Checkpoint,
		summary.ArtifactsDir,
	)
	return nil
}

func formatProgress(p training.Progress) string {
	d := p.Diagnostics
	return fmt.Sprintf("generation %s/%s best=%.4f mean=%.4f min=%.4f mutated=%d elapsed=%s",
		humanize.Comma(int64(p.Completed)),
		humanize.Comma(int64(p.Total)),
		d.BestFitness,
		d.MeanFitness,
		d.MinFitness,
		d.Mutated,
		p.Elapsed.Round(time.Millisecond),
	)
}

// watchInterrupts calls stop on the first signal so the run finishes its
// current generation, and cancel on the second. When stop fails, for instance
// because the run is not registered yet, the first signal cancels.
func watchInterrupts(ctx context.Context, sigs <-chan os.Signal, stop func() error, cancel context.CancelFunc, out io.Writer) {
	select {
	case <-sigs:
	case <-ctx.Done():
		return
	}
	if err := stop(); err == nil {
		fmt.Fprintln(out, "stopping after the current generation")
		select {
		case <-sigs:
		case <-ctx.Done():
			return
		}
	}
	cancel()
}
