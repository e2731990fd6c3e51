/*
Package domain contains the core model of the chatflow interpreter.

It defines conversation flows as graphs of typed nodes and edges, the
transcript those flows produce, and the per-session State the interpreter
mutates. This package is kept free of I/O and persistence, following
Hexagonal Architecture principles.

# Key Entities

  - Flow: an immutable definition made of Nodes and ordered Edges.
  - Node: a typed step (text, options, form, singleInput, aiInput, condition, webhook).
  - Edge: a transition, optionally discriminated by a source handle ("option-0", "yes", "no").
  - Turn: one bot, user, ai or system entry of the transcript.
  - State: the snapshot of one conversation (current node, visited set, transcript).
  - TranscriptDiff: the delta between two snapshots, pushed to live clients.
*/
package domain
