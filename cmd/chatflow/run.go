package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/chatflow/internal/presentation/tui"
	"github.com/aretw0/chatflow/pkg/runner"
)

var runCmd = &cobra.Command{
	Use:   "run <flow-id>",
	Short: "Chat with a flow in the terminal",
	Long: `Runs a flow as an interactive conversation on stdin/stdout.

Type "/restart" to start over, "exit" or "quit" to leave. With --json the
conversation is exchanged as NDJSON, one object per line, for scripting.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		sessionID, _ := cmd.Flags().GetString("session")
		jsonMode, _ := cmd.Flags().GetBool("json")
		noBanner, _ := cmd.Flags().GetBool("no-banner")
		width, _ := cmd.Flags().GetInt("width")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		flow, err := a.Engine.LoadFlow(ctx, owner, args[0])
		if err != nil {
			return fmt.Errorf("failed to load flow %q: %w", args[0], err)
		}

		sess := a.Engine.Session(sessionID)
		if err := sess.Start(ctx, flow); err != nil {
			return err
		}
		logger.Debug("session started", "session_id", sess.ID(), "flow_id", flow.ID)

		var handler runner.IOHandler
		if jsonMode {
			handler = runner.NewJSONHandler(cmd.InOrStdin(), cmd.OutOrStdout())
		} else {
			handler = textHandler(cmd.InOrStdin(), cmd.OutOrStdout(), width, !noBanner)
		}

		r := runner.NewRunner(
			runner.WithInputHandler(handler),
			runner.WithLogger(logger),
			runner.WithSubmitTimeout(2*cfg.CallTimeout),
		)
		return r.Run(ctx, sess)
	},
}

// textHandler renders markdown and prints the banner only on a real terminal.
func textHandler(in io.Reader, out io.Writer, width int, banner bool) runner.IOHandler {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return runner.NewTextHandler(in, out)
	}

	if banner {
		tui.PrintBanner(out)
	}
	if width == 0 {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = w - 4
		}
	}
	render, err := tui.NewRenderer(width)
	if err != nil {
		logger.Warn("markdown rendering disabled", "err", err)
		return runner.NewTextHandler(in, out)
	}
	return runner.NewTextHandler(in, out, runner.WithTextHandlerRenderer(render))
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("owner", "", "Owner of the flow")
	runCmd.Flags().String("session", "", "Session id to resume (default: a new session)")
	runCmd.Flags().Bool("json", false, "Exchange the conversation as NDJSON")
	runCmd.Flags().Bool("no-banner", false, "Do not print the banner")
	runCmd.Flags().Int("width", 0, "Wrap width of rendered messages (default: terminal width)")
}
