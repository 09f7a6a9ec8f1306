package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/sink"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <nng-addr>",
		Short: "Follow the live counts feed of a running batch",
		Example: `  episim run ... --nng-addr tcp://127.0.0.1:40899
  episim watch tcp://127.0.0.1:40899`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}
	cmd.Flags().String("run-id", "", "Only show messages from this run")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	runID, _ := cmd.Flags().GetString("run-id")
	jsonOut, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	err := sink.Watch(ctx, args[0], func(msg sink.FeedMessage) error {
		if runID != "" && msg.RunID != runID {
			return nil
		}
		if jsonOut {
			return encodeJSONLine(out, msg)
		}
		if msg.Finished {
			_, err := fmt.Fprintf(out, "seed %d finished\n", msg.Seed)
			return err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "seed %d t=%-4d", msg.Seed, msg.Timestep)
		for _, st := range disease.AllStates {
			fmt.Fprintf(&b, " %s=%d", st.String()[:3], msg.Counts[st])
		}
		_, err := fmt.Fprintln(out, b.String())
		return err
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
