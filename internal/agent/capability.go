package agent

import "context"

// Request is one agent invocation.
type Request struct {
	Instruction string
	OwnerID     int64
	// Session resumes a prior conversation; empty starts a new one.
	Session string
	// KeepSession asks the capability to return a handle for the next call.
	KeepSession bool
	Tools       *Toolset
}

type Result struct {
	Text    string
	Session string
}

// Capability is the opaque agent runtime. Implementations must wrap their
// failures with errs.AgentInvocation.
type Capability interface {
	Invoke(ctx context.Context, req Request) (Result, error)
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func(ctx context.Context, req Request) (Result, error)

func (f CapabilityFunc) Invoke(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }
