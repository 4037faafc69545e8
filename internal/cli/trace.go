package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessella/bazaar/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Run      string
}

// TraceStats holds summary statistics for a trace listing.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Failed      int `json:"failed"`
	Runs        int `json:"runs"`
}

// TraceResult holds the trace command output.
type TraceResult struct {
	Run    string        `json:"run,omitempty"`
	Events []trace.Event `json:"events"`
	Stats  TraceStats    `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded pipeline traces",
		Long: `List pipeline step events from a trace database.

Without --run, all recorded events are listed in sequence order.
With --run, only events of that pipeline run are shown.

Examples:
  bazaar trace --db ./bazaar-trace.db
  bazaar trace --db ./bazaar-trace.db --run 0191d2a0-4f7e-7cc3-8dc9-2a1f0a6b9e42
  bazaar trace --db ./bazaar-trace.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraceDump(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Run, "run", "", "filter to one pipeline run")

	return cmd
}

func runTraceDump(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	st, err := trace.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace database", err)
	}
	defer st.Close()

	events, err := st.List(ctx, opts.Run)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list events", err)
	}

	result := TraceResult{Run: opts.Run, Events: events}
	runs := make(map[string]bool)
	for _, ev := range events {
		runs[ev.Run] = true
		if ev.Status == trace.StatusFail {
			result.Stats.Failed++
		}
	}
	result.Stats.TotalEvents = len(events)
	result.Stats.Runs = len(runs)

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		return json.NewEncoder(w).Encode(result)
	}

	if len(events) == 0 {
		fmt.Fprintln(w, "No events recorded.")
		return nil
	}
	for _, ev := range events {
		line := fmt.Sprintf("%4d  %-36s  %-9s %-12s %-4s", ev.Seq, ev.Run, ev.Pipeline, ev.Step, ev.Status)
		if ev.Detail != "" {
			line += "  " + ev.Detail
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\n%d events, %d runs, %d failed\n", result.Stats.TotalEvents, result.Stats.Runs, result.Stats.Failed)
	return nil
}
