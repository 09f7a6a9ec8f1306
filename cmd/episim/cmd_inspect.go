package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/sink"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <snapshot.log>",
		Short: "Print the compartment counts stored in a snapshot log",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
	cmd.Flags().Int("timestep", -1, "Print the agent states of one timestep instead")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	records, err := sink.ReadSnapshotLog(args[0])
	if err != nil {
		return err
	}
	jsonOut, _ := cmd.Flags().GetBool("json")
	t, _ := cmd.Flags().GetInt("timestep")

	if t >= 0 {
		for _, r := range records {
			if r.Timestep != t {
				continue
			}
			if r.Record.Snapshot == nil {
				return fmt.Errorf("timestep %d was logged without agent states", t)
			}
			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), r.Record.Snapshot)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "AGENT\tWARD\tAGE\tSTATE")
			for _, a := range r.Record.Snapshot.Agents {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", a.ID, a.Ward, a.Age, a.State)
			}
			return tw.Flush()
		}
		return fmt.Errorf("timestep %d not found in %s", t, args[0])
	}

	if jsonOut {
		type row struct {
			Seed     int64          `json:"seed"`
			Timestep int            `json:"timestep"`
			Counts   disease.Counts `json:"counts"`
		}
		rows := make([]row, len(records))
		for i, r := range records {
			rows[i] = row{r.Seed, r.Timestep, r.Record.Counts}
		}
		return encodeJSON(cmd.OutOrStdout(), rows)
	}
	return printCounts(cmd.OutOrStdout(), records)
}

func printCounts(w io.Writer, records []sink.LogRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := []string{"SEED", "T"}
	for _, s := range disease.AllStates {
		header = append(header, strings.ToUpper(s.String()[:3]))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")
	for _, r := range records {
		row := []string{fmt.Sprint(r.Seed), fmt.Sprint(r.Timestep)}
		for _, v := range r.Record.Counts {
			row = append(row, fmt.Sprint(v))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}
	return tw.Flush()
}
