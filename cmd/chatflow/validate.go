package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aretw0/chatflow/internal/validator"
	"github.com/aretw0/chatflow/pkg/adapters/flowapi"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/dsl"
)

// flowLister is implemented by flow sources that can enumerate an owner's flows.
type flowLister interface {
	ListFlows(ctx context.Context, ownerID string) ([]domain.FlowSummary, error)
}

var validateCmd = &cobra.Command{
	Use:   "validate [flow-id...]",
	Short: "Check flows for consistency",
	Long: `Reports dangling edges, unreachable nodes, multiple start nodes and branch
handles that can never be taken.

Without arguments every flow of --owner in the configured source is checked.
With --file, flow documents (.json, .yaml) are read from disk instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		files, _ := cmd.Flags().GetStringSlice("file")
		jsonOut, _ := cmd.Flags().GetBool("json")

		flows, err := collectFlows(cmd.Context(), owner, files, args)
		if err != nil {
			return err
		}
		if len(flows) == 0 {
			return fmt.Errorf("no flows to validate")
		}

		reports := make([]*validator.Report, 0, len(flows))
		for _, f := range flows {
			reports = append(reports, validator.ValidateFlow(f))
		}

		out := cmd.OutOrStdout()
		if jsonOut {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(reports); err != nil {
				return err
			}
		} else {
			printReports(out, reports)
		}

		invalid := 0
		for _, r := range reports {
			if !r.Valid() {
				invalid++
			}
		}
		if invalid > 0 {
			return fmt.Errorf("%d of %d flows are invalid", invalid, len(reports))
		}
		return nil
	},
}

func collectFlows(ctx context.Context, owner string, files, ids []string) ([]*domain.Flow, error) {
	var flows []*domain.Flow
	for _, path := range files {
		f, err := readFlowFile(path)
		if err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}
	if len(files) > 0 && len(ids) == 0 {
		return flows, nil
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	if len(ids) == 0 {
		lister, ok := a.Flows.(flowLister)
		if !ok {
			return nil, fmt.Errorf("flow source %q cannot list flows; pass flow ids", cfg.FlowSource)
		}
		summaries, err := lister.ListFlows(ctx, owner)
		if err != nil {
			return nil, err
		}
		for _, s := range summaries {
			ids = append(ids, s.ID)
		}
	}
	for _, id := range ids {
		f, err := a.Engine.LoadFlow(ctx, owner, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load flow %q: %w", id, err)
		}
		if f.ID == "" {
			f.ID = id
		}
		flows = append(flows, f)
	}
	return flows, nil
}

func readFlowFile(path string) (*domain.Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var flow *domain.Flow
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		flow, err = dsl.ParseYAML(data)
	default:
		flow, err = flowapi.DecodeFlow(data, time.Now())
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if flow.ID == "" {
		flow.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return flow, nil
}

func printReports(w io.Writer, reports []*validator.Report) {
	ok := color.New(color.FgGreen, color.Bold)
	bad := color.New(color.FgRed, color.Bold)
	errLine := color.New(color.FgRed)
	warnLine := color.New(color.FgYellow)

	for _, r := range reports {
		if r.Valid() {
			ok.Fprintf(w, "✔ %s", r.FlowID)
		} else {
			bad.Fprintf(w, "✘ %s", r.FlowID)
		}
		fmt.Fprintf(w, " (%d errors, %d warnings)\n", len(r.Errors()), len(r.Warnings()))

		for _, issue := range r.Issues {
			line := errLine
			if issue.Severity == validator.SeverityWarning {
				line = warnLine
			}
			line.Fprintf(w, "    %-7s %s\n", issue.Severity, issue)
		}
	}
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().String("owner", "", "Owner of the flows")
	validateCmd.Flags().StringSlice("file", nil, "Flow documents to validate instead of the configured source")
	validateCmd.Flags().Bool("json", false, "Print the reports as JSON")
}
