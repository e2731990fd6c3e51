/*
Package dsl provides a Go DSL for programmatically constructing chatflow flows.

It lets developers define conversation flows with a fluent builder instead of
drawing them in the editor or writing the JSON by hand. This is particularly
useful for unit tests, examples and generated flows.

Example usage:

	b := dsl.New("support")

	b.Text("welcome", "Hi! How can we help?").Go("menu")

	b.Options("menu", "Pick a topic", "Billing", "Other").
		SaveTo("topic").
		OnOption(0, "billing").
		OnOption(1, "ask")

	b.Input("ask", "Tell us more").SaveTo("details").Go("bye")
	b.Text("billing", "Billing is open 9-5.")
	b.Text("bye", "Thanks, {{ .topic }}!")

	flow, err := b.Build()

Flows can also be written in YAML with ParseYAML, using the same shape as the
editor's JSON documents.
*/
package dsl
