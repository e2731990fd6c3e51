// Package runtime implements the flow interpreter.
//
// The Engine is stateless: Start, Submit and Restart take a flow and a session
// snapshot and return the next snapshot. Every node is entered at most once per
// generation; revisiting a node pauses the conversation.
package runtime
