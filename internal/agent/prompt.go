package agent

import (
	"fmt"
	"strings"
)

// TaskInstruction wraps a scheduled task's prompt for a session-less run.
func TaskInstruction(prompt string) string {
	return "You are executing a scheduled task. You MUST use the send_message tool to notify the user before finishing. Task: " + prompt
}

// SystemPrompt builds the system prompt. memory is the current content of
// the workspace memory file and may be empty.
func SystemPrompt(name, memory string) string {
	if strings.TrimSpace(name) == "" {
		name = "Ape"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a personal AI assistant talking to your owner on Telegram.\n", name)
	b.WriteString("Be concise. Use the task tools to schedule, list, pause, resume or cancel follow-up work, ")
	b.WriteString("and send_message to reach the owner from a scheduled task.\n")
	b.WriteString("Schedules: cron takes a cron expression, interval takes milliseconds, once takes an ISO 8601 timestamp.\n")
	if m := strings.TrimSpace(memory); m != "" {
		b.WriteString("\n## Memory\n\n")
		b.WriteString(m)
		b.WriteString("\n")
	}
	return b.String()
}
