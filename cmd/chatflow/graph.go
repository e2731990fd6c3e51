package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/chatflow/internal/presentation/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph <flow-id>",
	Short: "Export the flow graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of a flow. With --session the nodes
the session visited and the one it is waiting on are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		sessionID, _ := cmd.Flags().GetString("session")
		ctx := cmd.Context()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		flow, err := a.Engine.LoadFlow(ctx, owner, args[0])
		if err != nil {
			return fmt.Errorf("failed to load flow %q: %w", args[0], err)
		}

		var overlay *graph.GraphOverlay
		if sessionID != "" {
			state, err := a.Engine.Get(ctx, sessionID)
			if err != nil {
				return err
			}
			overlay = graph.OverlayFromState(state)
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(flow, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("owner", "", "Owner of the flow")
	graphCmd.Flags().String("session", "", "Highlight the path of this session")
}
