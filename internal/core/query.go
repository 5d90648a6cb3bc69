package core

import (
	"context"
	"fmt"
	"io"

	"github.com/bfussell/libamvp/util"
)

// CostMode asks the server how many vector sets the current
// registration is expected to generate, without starting a session.
type CostMode struct {
	Engine Engine
	Logger *util.Logger
	Out    io.Writer
}

func (m *CostMode) Run(ctx context.Context) error {
	count, err := m.Engine.VectorSetCount()
	if err != nil {
		m.Logger.Error("unable to determine the expected vector set count: %v", err)
		return err
	}
	fmt.Fprintf(m.Out, "The current session is expected to generate %d vector set(s).\n", count)
	return nil
}

// RegistrationMode serializes the registration the engine would send
// and writes it to a file or to standard output.
type RegistrationMode struct {
	Engine   Engine
	Logger   *util.Logger
	Out      io.Writer
	SaveFile string // empty means print
}

func (m *RegistrationMode) Run(ctx context.Context) error {
	reg, err := m.Engine.CurrentRegistration()
	if err != nil {
		return err
	}
	return emit(m.Logger, m.Out, m.SaveFile, reg)
}

// emit writes textual output to saveFile when set, falling back to the
// writer when the save fails.  A failed save is advisory only.
func emit(logger *util.Logger, out io.Writer, saveFile, text string) error {
	if saveFile != "" {
		if err := util.SaveStringToFile(saveFile, text); err == nil {
			logger.Info("output saved to %s", saveFile)
			return nil
		} else {
			logger.Warn("unable to save output to %s: %v", saveFile, err)
		}
	}
	fmt.Fprintln(out, text)
	return nil
}
