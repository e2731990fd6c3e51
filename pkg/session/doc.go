/*
Package session serializes work on each conversation.

The Manager owns the read-modify-write cycle around the interpreter: it takes a
per-session lock (and, when configured, a distributed lock), marks the session
as processing while provider or webhook calls are in flight, rejects
overlapping submits with domain.ErrBusy, and discards results computed for an
older generation after a restart. It also restarts sessions whose flow was
edited and notifies OnChange subscribers after every committed snapshot.
*/
package session
