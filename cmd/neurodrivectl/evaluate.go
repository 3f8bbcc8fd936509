package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"neurodrive/pkg/neurodrive"
)

func newEvaluateCmd(root *rootOptions) *cobra.Command {
	var (
		req     neurodrive.EvaluateRequest
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Race a stored genome set once without evolving it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			items, err := client.Evaluate(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "no genomes evaluated")
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(out, "genome=%d fitness=%.6f segment=%d ticks=%s reason=%s\n",
					item.Index, item.Fitness, item.Segment, humanize.Comma(int64(item.Ticks)), item.Reason)
			}
			if req.TrackPlot != "" {
				fmt.Fprintf(out, "track_plot=%s\n", req.TrackPlot)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Genomes, "genomes", "", "genome set to evaluate")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "evaluate only the first n genomes (0 for all)")
	cmd.Flags().StringVar(&req.ConfigFile, "hyperparams", "", "INI hyperparameter file")
	cmd.Flags().StringVar(&req.TracksFile, "tracks", "", "JSON tracks file (built-in tracks when empty)")
	cmd.Flags().StringVar(&req.Track, "track", "", "track name or index")
	cmd.Flags().StringVar(&req.TrackPlot, "plot", "", "write a PNG chart of the genomes' paths")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit results as JSON")
	return cmd
}
