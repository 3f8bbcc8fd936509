package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTracksCmd(root *rootOptions) *cobra.Command {
	var (
		tracksFile string
		jsonOut    bool
	)
	cmd := &cobra.Command{
		Use:   "tracks",
		Short: "List the tracks of a tracks file or the built-in tracks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			items, err := client.Tracks(tracksFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, items)
			}
			for _, item := range items {
				fmt.Fprintf(out, "index=%d name=%s segments=%d bounds=(%.1f,%.1f)-(%.1f,%.1f)\n",
					item.Index, item.Name, item.Segments, item.MinX, item.MinY, item.MaxX, item.MaxY)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tracksFile, "tracks", "", "JSON tracks file (built-in tracks when empty)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit tracks as JSON")
	return cmd
}
