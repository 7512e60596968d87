// Package agent is the language-model capability: an instruction plus a
// fixed tool surface goes in, text (and for interactive use a session
// handle) comes out.
//
// Runner talks to any OpenAI-compatible chat completions endpoint and
// drives the tool-calling loop. Interactive wraps a Capability with the
// process-wide lock and the durable session handle used by chat messages.
// Scheduled runs call the Capability directly without a session.
package agent
