/*
Package runner drives a chatflow conversation from a terminal or a pipe.

It is the bridge between a Session and the outside world: every committed
transcript turn is handed to an IOHandler, and the handler turns the next line
of input into a domain.Response for the node the session is waiting on.

# Key Components

  - Runner: the read-submit loop.
  - IOHandler: decouples how turns are shown and how responses are read.
  - TextHandler: interactive CLI usage, with optional markdown rendering.
  - JSONHandler: JSON-Lines for scripts and host processes.

# Usage

	session := engine.Session("cli-user")
	if err := session.Start(ctx, flow); err != nil {
		log.Fatal(err)
	}

	r := runner.NewRunner(runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)))
	if err := r.Run(ctx, session); err != nil {
		log.Fatal(err)
	}
*/
package runner
