package core

import "context"

// UploadMode submits vector responses produced offline back to the
// server session they were downloaded from.
type UploadMode struct {
	Engine         Engine
	File           string
	FIPSValidation bool
}

func (m *UploadMode) Run(ctx context.Context) error {
	return m.Engine.UploadVectorsFromFile(ctx, m.File, m.FIPSValidation)
}

// PutArtifactMode PUTs a prepared document against a saved session
// without running any tests first.
type PutArtifactMode struct {
	Engine Engine
	File   string
}

func (m *PutArtifactMode) Run(ctx context.Context) error {
	return m.Engine.PutDataFromFile(ctx, m.File)
}
