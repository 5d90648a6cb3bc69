package core

import (
	"context"

	"github.com/bfussell/libamvp/util"
)

// KATMode runs a local known-answer-test file against the registered
// capability handlers.  Fully offline.
type KATMode struct {
	Engine Engine
	Logger *util.Logger
	File   string
}

func (m *KATMode) Run(ctx context.Context) error {
	if err := m.Engine.LoadKATFile(ctx, m.File); err != nil {
		return err
	}
	m.Logger.Info("known-answer tests passed")
	return nil
}

// OfflineVectorsMode processes a previously downloaded vector request
// file and writes the responses next to it.  Fully offline; pairs with
// a later upload.
type OfflineVectorsMode struct {
	Engine  Engine
	Logger  *util.Logger
	ReqFile string
	RspFile string
}

func (m *OfflineVectorsMode) Run(ctx context.Context) error {
	if err := m.Engine.RunVectorsFromFile(ctx, m.ReqFile, m.RspFile); err != nil {
		return err
	}
	m.Logger.Info("vector responses written to %s", m.RspFile)
	return nil
}
