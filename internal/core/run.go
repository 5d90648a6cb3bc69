package core

import "context"

// RunMode is the default full flow: register, create a server session,
// process every vector set, submit the responses, and check the
// verdict.
type RunMode struct {
	Engine         Engine
	FIPSValidation bool
}

func (m *RunMode) Run(ctx context.Context) error {
	return m.Engine.Run(ctx, m.FIPSValidation)
}
