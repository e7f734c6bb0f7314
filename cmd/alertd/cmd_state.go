package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wdalert/alertd/internal/state"
)

func newStateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the persisted suppression state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				cfg, err := loadConfig()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				file = cfg.Alerts.StatePath
			}
			return runState(cmd.OutOrStdout(), file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "state file to read (default: alerts.state_path from the config)")
	return cmd
}

func runState(out io.Writer, path string) error {
	store, err := state.Open(path)
	if err != nil {
		return err
	}
	printState(out, path, store.Snapshot())
	return nil
}

func printState(out io.Writer, path string, st state.State) {
	events := make(map[string]struct{})
	for e := range st.LastEventSent {
		events[e] = struct{}{}
	}
	for e := range st.SuppressedCount {
		events[e] = struct{}{}
	}
	names := make([]string, 0, len(events))
	for e := range events {
		names = append(names, e)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "%s: %d events, %d content keys\n\n", path, len(names), len(st.LastKeySent))
	if len(names) == 0 {
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tLAST SENT\tSUPPRESSED")
	for _, e := range names {
		last := "never"
		if ts, ok := st.LastEventSent[e]; ok {
			last = humanize.Time(state.Time(ts))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e, last, humanize.Comma(int64(st.SuppressedCount[e])))
	}
	tw.Flush()
}
