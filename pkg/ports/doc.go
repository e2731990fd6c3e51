/*
Package ports defines the driven ports (interfaces) of the chatflow interpreter.

These interfaces decouple the core logic from external implementations, allowing
the interpreter to work with various storage backends, flow sources and
network collaborators.

# Key Interfaces

  - FlowLoader / FlowStore: load and persist flow definitions.
  - StateStore: persist and load session State.
  - Responder: completion provider behind aiInput nodes.
  - WebhookInvoker: outbound call behind webhook nodes.
  - ConditionEvaluator: branch decision of condition nodes.
  - DistributedLocker: distributed locking for concurrent session access.
*/
package ports
