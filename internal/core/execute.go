package core

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bfussell/libamvp/config"
	"github.com/bfussell/libamvp/internal/amvp"
	"github.com/bfussell/libamvp/internal/capability"
	"github.com/bfussell/libamvp/internal/fips"
	"github.com/bfussell/libamvp/util"
)

// Factory constructs the protocol engine.  It is called exactly once
// per Execute, after the FIPS gate and mode selection have passed.
type Factory func() (Engine, error)

// DefaultFactory builds the real engine with the given progress sink
// and verbosity level.
func DefaultFactory(progress amvp.ProgressFunc, level int) Factory {
	return func() (Engine, error) {
		return amvp.NewSession(progress, level)
	}
}

// Execute drives one full client invocation: gate, select, construct,
// configure, dispatch, clean up.  Exactly one terminal mode runs.
// prompt supplies a TOTP code interactively when no seed is configured;
// it may be nil.
func Execute(ctx context.Context, cfg *config.Config, params config.ServerParams, logger *util.Logger, factory Factory, prompt func() (string, error)) error {
	// Cleanup runs on every path, including selection failures where
	// no engine was ever constructed.
	var eng Engine
	defer func() {
		cleanup(eng, logger)
	}()

	if err := fips.Gate(ctx, cfg.DisableFIPS, logger); err != nil {
		return err
	}

	kind, err := SelectMode(cfg)
	if err != nil {
		return err
	}
	logger.Verbose("selected mode: %s", kind)

	eng, err = factory()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	if err := applyServerParams(eng, params, prompt); err != nil {
		return err
	}
	if err := applyModifiers(eng, cfg, kind, logger); err != nil {
		return err
	}

	if kind.online() {
		if params.IsDefaultServer() {
			logger.Warn("no server configured, using the default %s:%d", config.DefaultServer, config.DefaultPort)
			logger.Warn("set AMV_SERVER and AMV_PORT to target a real validation service")
		}
		if cfg.FIPSValidation {
			if err := eng.IngestOEMetadata(cfg.MetadataFile); err != nil {
				return err
			}
			if err := eng.SetFIPSValidationMetadata(config.DefaultModuleID, config.DefaultOEID); err != nil {
				return err
			}
		}
	}

	return build(kind, cfg, eng, logger, os.Stdout).Run(ctx)
}

// cleanup releases the engine.  Safe when the engine was never
// constructed.
func cleanup(eng Engine, logger *util.Logger) {
	if eng == nil {
		return
	}
	if err := eng.Close(); err != nil {
		logger.Warn("cleanup: %v", err)
	}
}

func applyServerParams(eng Engine, params config.ServerParams, prompt func() (string, error)) error {
	if err := eng.SetServer(params.Server, params.Port); err != nil {
		return fmt.Errorf("set server: %w", err)
	}
	if err := eng.SetAPIContext(params.APIContext); err != nil {
		return fmt.Errorf("set API context: %w", err)
	}
	if err := eng.SetPathSegment(params.PathSegment); err != nil {
		return fmt.Errorf("set path segment: %w", err)
	}
	if params.CAFile != "" {
		if err := eng.SetCACerts(params.CAFile); err != nil {
			return fmt.Errorf("set CA certs: %w", err)
		}
	}
	if params.HasClientCert() {
		if err := eng.SetCertKey(params.CertFile, params.KeyFile); err != nil {
			return fmt.Errorf("set client cert: %w", err)
		}
	}
	if params.TOTPSeed != "" {
		eng.SetTOTPCallback(amvp.TOTPGenerator(params.TOTPSeed))
	} else if prompt != nil {
		eng.SetTOTPCallback(prompt)
	}
	return nil
}

// applyModifiers applies the construction-time marks and binds the
// registration source.  Manual JSON registration and programmatic
// capability enabling are mutually exclusive; when a JSON file is
// given the enabler never runs.
func applyModifiers(eng Engine, cfg *config.Config, kind Kind, logger *util.Logger) error {
	if cfg.Sample {
		eng.MarkAsSample()
	}
	if cfg.Get {
		if err := eng.MarkAsGetOnly(cfg.GetString); err != nil {
			return err
		}
		if cfg.SaveTo {
			if err := eng.SetGetSaveFile(cfg.SaveFile); err != nil {
				logger.Warn("unable to set the save file, continuing anyway: %v", err)
			}
		}
	}
	if cfg.Post {
		eng.MarkAsPostOnly(cfg.PostFile)
	}
	if cfg.Delete {
		eng.MarkAsDeleteOnly(cfg.DeleteURL)
	}
	if cfg.VectorReq && !cfg.VectorRsp {
		eng.MarkAsRequestOnly(cfg.VectorReqFile)
	}

	// Marks layered on the default run only.  PUT with algorithms
	// registered marks the session first, then the run proceeds.
	if kind == KindRun {
		if cfg.Put && !cfg.EmptyAlg {
			eng.MarkAsPutAfterTest(cfg.PutFile)
		}
		if cfg.PostResources {
			if err := eng.MarkAsPostResources(cfg.PostResourcesFile); err != nil {
				return err
			}
		}
		if cfg.CertReq {
			if err := eng.MarkAsCertRequest(cfg.CertReqFile); err != nil {
				return err
			}
		}
	}

	if cfg.ManualReg {
		return eng.SetJSONFile(cfg.RegFile)
	}
	if cfg.Hash {
		return enableHash(eng, logger)
	}
	return nil
}

// enableHash registers the hash capability set.  Any failure aborts
// the run; partially registered sessions never reach execution.
func enableHash(eng Engine, logger *util.Logger) error {
	if err := eng.EnableHash(capability.SHA2_256, capability.SHA{}); err != nil {
		logger.Error("unable to enable the %s capability: %v", capability.SHA2_256, err)
		return err
	}
	d := capability.Domain{Min: 0, Max: 65536, Increment: 8}
	if err := eng.SetHashDomain(capability.SHA2_256, d); err != nil {
		logger.Error("unable to set the %s message domain: %v", capability.SHA2_256, err)
		return err
	}
	return nil
}

// build maps a selected Kind to its terminal mode.
func build(kind Kind, cfg *config.Config, eng Engine, logger *util.Logger, out io.Writer) Mode {
	saveFile := ""
	if cfg.SaveTo {
		saveFile = cfg.SaveFile
	}

	switch kind {
	case KindCost:
		return &CostMode{Engine: eng, Logger: logger, Out: out}
	case KindGetRegistration:
		return &RegistrationMode{Engine: eng, Logger: logger, Out: out, SaveFile: saveFile}
	case KindKAT:
		return &KATMode{Engine: eng, Logger: logger, File: cfg.KATFile}
	case KindOfflineVectors:
		return &OfflineVectorsMode{Engine: eng, Logger: logger, ReqFile: cfg.VectorReqFile, RspFile: cfg.VectorRspFile}
	case KindUpload:
		return &UploadMode{Engine: eng, File: cfg.VectorUploadFile, FIPSValidation: cfg.FIPSValidation}
	case KindPutArtifact:
		return &PutArtifactMode{Engine: eng, File: cfg.PutFile}
	case KindFetchResults:
		return &ResultsMode{Engine: eng, Logger: logger, Out: out, SessionFile: cfg.SessionFile, SaveFile: saveFile}
	case KindResume:
		return &ResumeMode{Engine: eng, SessionFile: cfg.SessionFile, SaveFile: saveFile, FIPSValidation: cfg.FIPSValidation}
	case KindCancel:
		return &CancelMode{Engine: eng, Logger: logger, Out: out, SessionFile: cfg.SessionFile, SaveFile: saveFile}
	case KindFetchExpected:
		return &ExpectedMode{Engine: eng, Logger: logger, Out: out, SessionFile: cfg.SessionFile, SaveFile: saveFile}
	default:
		return &RunMode{Engine: eng, FIPSValidation: cfg.FIPSValidation}
	}
}
