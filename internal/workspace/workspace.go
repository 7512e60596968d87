// Package workspace owns the assistant's working directory: the long-term
// memory file and the conversations/ archive folder.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"clawbot/internal/errs"
)

const (
	MemoryFile       = "MEMORY.md"
	ConversationsDir = "conversations"
)

type Workspace struct {
	Dir  string
	Name string
}

func New(dir, assistantName string) *Workspace {
	return &Workspace{Dir: dir, Name: assistantName}
}

func (w *Workspace) MemoryPath() string        { return filepath.Join(w.Dir, MemoryFile) }
func (w *Workspace) ConversationsPath() string { return filepath.Join(w.Dir, ConversationsDir) }

// Ensure creates the workspace layout and writes the initial memory file if
// there is none. An existing memory file is never overwritten.
func (w *Workspace) Ensure() error {
	if err := os.MkdirAll(w.ConversationsPath(), 0o755); err != nil {
		return errs.Wrap(err, "create workspace")
	}
	f, err := os.OpenFile(w.MemoryPath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		return nil
	}
	if err != nil {
		return errs.Wrap(err, "create memory file")
	}
	defer f.Close()
	if _, err := f.WriteString(initialMemory(w.Name)); err != nil {
		return errs.Wrap(err, "write memory file")
	}
	return nil
}

// Memory returns the memory file content, or "" when it cannot be read.
func (w *Workspace) Memory() string {
	b, err := os.ReadFile(w.MemoryPath())
	if err != nil {
		return ""
	}
	return string(b)
}

func initialMemory(name string) string {
	if name == "" {
		name = "Ape"
	}
	return fmt.Sprintf(`# %[1]s - Personal AI Assistant

You are %[1]s, a personal AI assistant running on Telegram.

## Task Scheduling
When the user asks you to schedule or remind something:
- Use schedule_task with schedule_type "cron" for recurring patterns (e.g. "0 9 * * 1" = every Monday 9am)
- Use schedule_task with schedule_type "interval" for periodic tasks (value in milliseconds, e.g. "3600000" = every hour)
- Use schedule_task with schedule_type "once" for one-time tasks (value is an ISO 8601 timestamp)

## Conversation History
Past exchanges are archived in conversations/, one file per day (YYYY-MM-DD.md).

## User Preferences
(Add user preferences as you learn them)
`, name)
}
