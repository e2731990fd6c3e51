package runner

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Output presents new transcript turns and, when the session waits on a
	// node, the prompt of that node. prompt is nil once the conversation ended.
	Output(ctx context.Context, turns []domain.Turn, prompt *domain.Prompt) error

	// Input reads the answer to prompt.
	// It returns io.EOF when the user is done.
	Input(ctx context.Context, prompt domain.Prompt) (Command, error)

	// SystemOutput presents a meta-message to the user (e.g. errors, status updates).
	// This is distinct from transcript turns.
	SystemOutput(ctx context.Context, msg string) error
}

// CommandKind tells the runner what to do with a line of input.
type CommandKind int

const (
	// CommandRespond submits Response to the session.
	CommandRespond CommandKind = iota
	// CommandRestart starts the conversation over.
	CommandRestart
	// CommandQuit ends the loop without touching the session.
	CommandQuit
)

// Command is one parsed line of input.
type Command struct {
	Kind     CommandKind
	Response domain.Response
}

// Respond wraps a response in a Command.
func Respond(resp domain.Response) Command {
	return Command{Kind: CommandRespond, Response: resp}
}

// Conversation is the session surface the runner needs. *chatflow.Session implements it.
type Conversation interface {
	Transcript() []domain.Turn
	Prompt() (domain.Prompt, bool)
	Submit(ctx context.Context, resp domain.Response) error
	Restart(ctx context.Context) error
}
