package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-epinet/pkg/algorithms"
	"github.com/dd0wney/cluso-epinet/pkg/network"
	"github.com/dd0wney/cluso-epinet/pkg/sink"
	"github.com/dd0wney/cluso-epinet/pkg/snapshot"
)

func newNetworkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Build one network and print its structure",
		RunE:  runNetwork,
	}
	addInputFlags(cmd)
	cmd.Flags().Int64("seed", 0, "Seed to build the network for")
	cmd.Flags().String("graphml", "", "Also write the network to this directory as GraphML")
	return cmd
}

func runNetwork(cmd *cobra.Command, _ []string) error {
	in, err := loadInputs(cmd)
	if err != nil {
		return err
	}
	seed, _ := cmd.Flags().GetInt64("seed")

	net, err := network.Build(seed, in.params, in.hoods, in.ages)
	if err != nil {
		return err
	}
	summary := algorithms.Summarize(net)

	if dir, _ := cmd.Flags().GetString("graphml"); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		g := sink.NewGraphML(dir)
		snap := snapshot.Capture(net, seed, 0)
		if err := g.Emit(cmd.Context(), seed, 0, snapshot.NewRecord(snap, snap.Counts)); err != nil {
			return err
		}
		if err := g.Close(); err != nil {
			return err
		}
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return encodeJSON(cmd.OutOrStdout(), summary)
	}
	return printSummary(cmd.OutOrStdout(), seed, summary)
}

func printSummary(w io.Writer, seed int64, s algorithms.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "seed\t%d\n", seed)
	fmt.Fprintf(tw, "agents\t%d\n", s.Agents)
	fmt.Fprintf(tw, "edges\t%d\n", s.Edges)
	for _, layer := range slices.Sorted(maps.Keys(s.EdgesByLayer)) {
		fmt.Fprintf(tw, "  %s\t%d\n", layer, s.EdgesByLayer[layer])
	}
	fmt.Fprintf(tw, "mean degree\t%.2f\n", s.MeanDegree)
	fmt.Fprintf(tw, "max degree\t%d\n", s.MaxDegree)
	fmt.Fprintf(tw, "isolated\t%d\n", s.Isolated)
	fmt.Fprintf(tw, "components\t%d (largest %d)\n", s.Components, s.LargestComponent)
	fmt.Fprintf(tw, "triangles\t%d\n", s.Triangles)
	fmt.Fprintf(tw, "clustering\t%.4f\n", s.Clustering)
	return tw.Flush()
}
