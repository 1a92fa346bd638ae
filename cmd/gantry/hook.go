package gantry

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gantryci/gantry/pkg/logging"
	"github.com/gantryci/gantry/pkg/trigger"
)

var (
	eventKind   string
	eventBranch string
	matchBranch string
	matchKinds  []string
)

// hookCmd is the forge-facing entrypoint: it applies the trigger gate to the
// delivered event and only starts a run when the gate matches. Non-matching
// events exit 0 so webhook deliveries never look like failures.
var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Run the pipeline if a source-control event matches the trigger gate",

	Run: func(cmd *cobra.Command, args []string) {
		if err := logging.Initialize(logFormat, logLevel); err != nil {
			os.Exit(exitFailed)
		}

		gate := trigger.Gate{Branch: matchBranch}
		for _, k := range matchKinds {
			gate.Kinds = append(gate.Kinds, trigger.EventKind(k))
		}

		ev := trigger.Event{Kind: trigger.EventKind(eventKind), Branch: eventBranch}
		if gate.OnEvent(ev) == nil {
			slog.Debug("event ignored by trigger gate", "kind", ev.Kind, "branch", ev.Branch)
			os.Exit(exitSucceeded)
		}

		os.Exit(runPipeline())
	},
}

func init() {
	hookCmd.Flags().StringVar(&eventKind, "event", "", "Delivered event kind: push or pull_request.")
	hookCmd.Flags().StringVar(&eventBranch, "branch", "", "Branch the event targets.")
	hookCmd.Flags().StringVar(&matchBranch, "match-branch", "main", "Branch the gate accepts.")
	hookCmd.Flags().StringSliceVar(&matchKinds, "match-event", nil, "Event kinds the gate accepts. Empty accepts push and pull_request.")
	hookCmd.MarkFlagRequired("event")
	hookCmd.MarkFlagRequired("branch")
}
