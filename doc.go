/*
Package chatflow interprets chatbot conversation flows.

A flow is a graph of typed nodes (text, options, form, singleInput, aiInput,
condition, webhook) joined by edges, as produced by a visual flow editor.
The interpreter walks the graph for one conversation at a time, appending bot,
user, ai and system turns to a transcript and stopping whenever a node needs
the user's answer.

# Concept

The interpreter itself is stateless: it takes a flow and a session snapshot and
returns the next snapshot. Engine adds a flow source (a Loam repository by
default), a session store and per-session locking, so the same conversation can
be driven from a CLI, an HTTP API, a websocket or an MCP client.

Malformed graphs never produce errors: missing start nodes, dangling edges and
loops end the conversation with an explanatory system turn. Provider and webhook
failures are reported in the transcript and the conversation moves on.

# Usage

	eng, err := chatflow.New("./flows")
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	state, err := eng.Start(ctx, "session-123", "acme", "welcome")
	if err != nil {
		log.Fatal(err)
	}
	for _, turn := range state.Transcript {
		fmt.Printf("%s: %s\n", turn.Role, turn.Text)
	}

	state, err = eng.Submit(ctx, "session-123", domain.OptionResponse(0))

For a single embedded conversation over an in-memory flow, use NewSession.
*/
package chatflow
