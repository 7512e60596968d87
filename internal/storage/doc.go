// Package storage implements the durable task store on SQLite
// (modernc.org/sqlite, pure Go).
//
// Tables:
//   - scheduled_tasks   task definitions (indexed by next_run and status)
//   - task_run_logs     append-only run history (FK to the task id, indexed by task_id)
//   - agent_transcripts per-session chat history for the interactive agent
//
// Timestamps are stored as unix milliseconds. Every mutating call is a
// single statement and is committed before it returns.
package storage
