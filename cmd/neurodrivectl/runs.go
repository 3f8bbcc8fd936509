package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"neurodrive/pkg/neurodrive"
)

// runQuery holds the flags shared by every command that reads one run.
type runQuery struct {
	ref     neurodrive.RunRef
	jsonOut bool
}

func (q *runQuery) register(cmd *cobra.Command, limit int) {
	cmd.Flags().StringVar(&q.ref.RunID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&q.ref.Latest, "latest", false, "use the most recent run from the run index")
	cmd.Flags().IntVar(&q.ref.Limit, "limit", limit, "max entries to print (0 for all)")
	cmd.Flags().BoolVar(&q.jsonOut, "json", false, "emit JSON")
	cmd.MarkFlagsMutuallyExclusive("run-id", "latest")
}

func newRunsCmd(root *rootOptions) *cobra.Command {
	var (
		req     neurodrive.RunsRequest
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			items, err := client.Runs(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "no runs found")
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(out, "run_id=%s created=%s track=%s seed=%d population=%d generations=%d final_best=%.6f\n",
					item.RunID,
					createdAgo(item.CreatedAtUTC),
					item.Track,
					item.Seed,
					item.Population,
					item.Generations,
					item.FinalBestFitness,
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&req.Limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs as JSON")
	return cmd
}

func newFitnessCmd(root *rootOptions) *cobra.Command {
	q := &runQuery{}
	cmd := &cobra.Command{
		Use:   "fitness",
		Short: "Print the best fitness of every generation of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			history, err := client.FitnessHistory(cmd.Context(), q.ref)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if q.jsonOut {
				return writeJSON(out, history)
			}
			for i, best := range history {
				fmt.Fprintf(out, "generation=%d best_fitness=%.6f\n", i, best)
			}
			return nil
		},
	}
	q.register(cmd, 50)
	return cmd
}

func newDiagnosticsCmd(root *rootOptions) *cobra.Command {
	q := &runQuery{}
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Print per generation fitness statistics and operator counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			diagnostics, err := client.Diagnostics(cmd.Context(), q.ref)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if q.jsonOut {
				return writeJSON(out, diagnostics)
			}
			for _, d := range diagnostics {
				fmt.Fprintf(out, "generation=%d best=%.6f mean=%.6f min=%.6f std=%.6f parents=%d children=%d mutated=%d\n",
					d.Generation, d.BestFitness, d.MeanFitness, d.MinFitness, d.StdFitness, d.Parents, d.Children, d.Mutated)
			}
			return nil
		},
	}
	q.register(cmd, 50)
	return cmd
}

func newLineageCmd(root *rootOptions) *cobra.Command {
	q := &runQuery{}
	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Print how the genomes of a run were bred",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			lineage, err := client.Lineage(cmd.Context(), q.ref)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if q.jsonOut {
				return writeJSON(out, lineage)
			}
			for _, rec := range lineage {
				mutation := rec.Mutation
				if mutation == "" {
					mutation = "none"
				}
				fmt.Fprintf(out, "generation=%d genome_id=%s parents=%s reproduction=%s mutation=%s\n",
					rec.Generation, rec.GenomeID, strings.Join(rec.ParentIDs, ","), rec.Reproduction, mutation)
			}
			return nil
		},
	}
	q.register(cmd, 100)
	return cmd
}

func newTopCmd(root *rootOptions) *cobra.Command {
	q := &runQuery{}
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Print the best genomes of a run's final generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			top, err := client.TopGenomes(cmd.Context(), q.ref)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if q.jsonOut {
				return writeJSON(out, top)
			}
			for _, rec := range top {
				fmt.Fprintf(out, "rank=%d fitness=%.6f genome_id=%s layers=%d\n",
					rec.Rank, rec.Fitness, rec.Genome.ID, len(rec.Genome.Layers))
			}
			return nil
		},
	}
	q.register(cmd, 5)
	return cmd
}

func newSummaryCmd(root *rootOptions) *cobra.Command {
	q := &runQuery{}
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize a run's fitness history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			summary, err := client.Summary(cmd.Context(), q.ref)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if q.jsonOut {
				return writeJSON(out, summary)
			}
			fmt.Fprintf(out, "run_id=%s generations=%d initial_best=%.6f final_best=%.6f improvement=%.6f mean=%.6f std=%.6f stagnation=%d\n",
				summary.RunID,
				summary.Generations,
				summary.InitialBest,
				summary.FinalBest,
				summary.Improvement,
				summary.BestMean,
				summary.BestStd,
				summary.Stagnation,
			)
			return nil
		},
	}
	q.register(cmd, 0)
	return cmd
}

func newExportCmd(root *rootOptions) *cobra.Command {
	var req neurodrive.ExportRequest
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts to an export directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			exported, err := client.Export(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&req.Latest, "latest", false, "export the most recent run")
	cmd.Flags().StringVar(&req.OutDir, "out", "", "export directory (exports dir when empty)")
	cmd.MarkFlagsMutuallyExclusive("run-id", "latest")
	return cmd
}

func newGenomesCmd(root *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "genomes",
		Short: "List stored genome sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			sets, err := client.GenomeSets(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, sets)
			}
			if len(sets) == 0 {
				fmt.Fprintln(out, "no genome sets stored")
				return nil
			}
			for _, name := range sets {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit genome set names as JSON")
	return cmd
}

func createdAgo(createdAtUTC string) string {
	t, err := time.Parse(time.RFC3339Nano, createdAtUTC)
	if err != nil {
		return createdAtUTC
	}
	return strings.ReplaceAll(humanize.Time(t), " ", "_")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
