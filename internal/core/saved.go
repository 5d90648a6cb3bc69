package core

import (
	"context"
	"io"

	"github.com/bfussell/libamvp/util"
)

// Modes operating on a previously saved test session file.

// ResultsMode fetches the current results of a saved session.
type ResultsMode struct {
	Engine      Engine
	Logger      *util.Logger
	Out         io.Writer
	SessionFile string
	SaveFile    string
}

func (m *ResultsMode) Run(ctx context.Context) error {
	out, err := m.Engine.FetchResults(ctx, m.SessionFile)
	if err != nil {
		return err
	}
	return emit(m.Logger, m.Out, m.SaveFile, out)
}

// ResumeMode picks up an incomplete saved session and processes its
// remaining vector sets.
type ResumeMode struct {
	Engine         Engine
	SessionFile    string
	SaveFile       string // where to checkpoint the resumed session
	FIPSValidation bool
}

func (m *ResumeMode) Run(ctx context.Context) error {
	return m.Engine.ResumeSession(ctx, m.SessionFile, m.SaveFile, m.FIPSValidation)
}

// CancelMode cancels a saved session on the server.
type CancelMode struct {
	Engine      Engine
	Logger      *util.Logger
	Out         io.Writer
	SessionFile string
	SaveFile    string
}

func (m *CancelMode) Run(ctx context.Context) error {
	out, err := m.Engine.CancelSession(ctx, m.SessionFile)
	if err != nil {
		return err
	}
	return emit(m.Logger, m.Out, m.SaveFile, out)
}

// ExpectedMode fetches the expected results of a saved sample session.
type ExpectedMode struct {
	Engine      Engine
	Logger      *util.Logger
	Out         io.Writer
	SessionFile string
	SaveFile    string
}

func (m *ExpectedMode) Run(ctx context.Context) error {
	out, err := m.Engine.FetchExpectedResults(ctx, m.SessionFile)
	if err != nil {
		return err
	}
	return emit(m.Logger, m.Out, m.SaveFile, out)
}
