package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
)

// MsgEnded is shown once the conversation reaches a terminal state.
const MsgEnded = "Conversation ended."

// Runner handles the read-submit loop of a conversation using provided IO.
// It uses an IOHandler strategy to abstract the interaction mode (Text vs JSON).
type Runner struct {
	// Handler is the strategy for IO. Defaults to a TextHandler on Stdin/Stdout.
	Handler IOHandler

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger

	// SubmitTimeout bounds a single submit. Zero means no bound beyond the engine's own.
	SubmitTimeout time.Duration
}

// NewRunner creates a new Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.Handler == nil {
		r.Handler = NewTextHandler(os.Stdin, os.Stdout)
	}
	if r.Logger == nil {
		r.Logger = logging.NewNop()
	}
	return r
}

// Run shows the conversation and feeds it responses until it ends, the input
// is exhausted or ctx is cancelled. The session must already be started.
func (r *Runner) Run(ctx context.Context, conv Conversation) error {
	shown := 0
	for {
		turns := conv.Transcript()
		if len(turns) < shown {
			// Restarted: the transcript was replaced.
			shown = 0
		}
		fresh := turns[shown:]
		shown = len(turns)

		prompt, waiting := conv.Prompt()
		var current *domain.Prompt
		if waiting {
			current = &prompt
		}
		if err := r.Handler.Output(ctx, fresh, current); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
		if !waiting {
			return r.Handler.SystemOutput(ctx, MsgEnded)
		}

		cmd, err := r.Handler.Input(ctx, prompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				r.Logger.Debug("runner: input cancelled", "err", ctx.Err())
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		switch cmd.Kind {
		case CommandQuit:
			return nil
		case CommandRestart:
			if err := conv.Restart(ctx); err != nil {
				return fmt.Errorf("restart error: %w", err)
			}
			shown = 0
			continue
		}

		if err := r.submit(ctx, conv, cmd.Response); err != nil {
			if errors.Is(err, domain.ErrBusy) || errors.Is(err, domain.ErrStaleGeneration) {
				r.Logger.Debug("runner: submit rejected", "err", err)
				if err := r.Handler.SystemOutput(ctx, err.Error()); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("submit error: %w", err)
		}
	}
}

func (r *Runner) submit(ctx context.Context, conv Conversation, resp domain.Response) error {
	if r.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.SubmitTimeout)
		defer cancel()
	}
	return conv.Submit(ctx, resp)
}
