// Package core is the orchestration layer.  It selects exactly one
// operational mode from a Config, builds the protocol engine behind
// an interface, and drives the full lifecycle from FIPS gating to
// teardown.
//
// Architecture layers (bottom → top):
//
//	transport  →  capability  →  amvp (engine)  →  core  →  cmd (CLI)
//
// The selector in this package is the single dispatch point: every
// invocation resolves to exactly one Kind, and Execute runs exactly
// one terminal Mode for it.
package core

import (
	"context"

	"github.com/bfussell/libamvp/internal/capability"
)

// Mode represents a complete terminal operation of the client (cost
// query, offline processing, session run, ...).  Each mode owns its
// work from first engine call to final output.
type Mode interface {
	Run(ctx context.Context) error
}

// Engine is the protocol surface the dispatcher drives.  It is
// implemented by *amvp.Session and faked in tests.
type Engine interface {
	// Server and auth parameters, applied before any network use.
	SetServer(host string, port int) error
	SetAPIContext(ctx string) error
	SetPathSegment(segment string) error
	SetCACerts(caFile string) error
	SetCertKey(certFile, keyFile string) error
	SetTOTPCallback(fn func() (string, error))

	// Construction modifiers.
	MarkAsSample()
	MarkAsGetOnly(url string) error
	SetGetSaveFile(path string) error
	MarkAsPostOnly(path string)
	MarkAsDeleteOnly(url string)
	MarkAsRequestOnly(path string)
	MarkAsPutAfterTest(path string)
	MarkAsPostResources(path string) error
	MarkAsCertRequest(path string) error

	// Capability registration.  Manual JSON binding and programmatic
	// capabilities are mutually exclusive.
	EnableHash(alg capability.HashAlg, h capability.Handler) error
	SetHashDomain(alg capability.HashAlg, d capability.Domain) error
	SetJSONFile(path string) error

	// FIPS validation metadata.
	IngestOEMetadata(path string) error
	SetFIPSValidationMetadata(moduleID, oeID int) error

	// Terminal operations.
	VectorSetCount() (int, error)
	CurrentRegistration() (string, error)
	LoadKATFile(ctx context.Context, path string) error
	RunVectorsFromFile(ctx context.Context, reqFile, rspFile string) error
	UploadVectorsFromFile(ctx context.Context, path string, fipsValidation bool) error
	PutDataFromFile(ctx context.Context, path string) error
	FetchResults(ctx context.Context, sessionFile string) (string, error)
	ResumeSession(ctx context.Context, sessionFile, saveFile string, fipsValidation bool) error
	CancelSession(ctx context.Context, sessionFile string) (string, error)
	FetchExpectedResults(ctx context.Context, sessionFile string) (string, error)
	Run(ctx context.Context, fipsValidation bool) error

	// Close releases the engine.  Safe to call exactly once per engine.
	Close() error
}
