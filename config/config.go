// Package config defines the runtime configuration for the AMVP client:
// the session config produced from CLI flags and the server parameters
// resolved from the environment.
package config

import "fmt"

// Config holds every tuneable for a single client invocation.  The
// dispatcher in internal/core reads it but never mutates it.
type Config struct {
	// ── Construction-time modifiers ──────────────────────────────────
	Sample    bool   // mark generated vectors as sample
	Get       bool   // GET-only session
	GetString string // query string / URL for GET-only
	Post      bool   // POST-only session
	PostFile  string
	Delete    bool // DELETE-only session
	DeleteURL string
	VectorReq     bool   // write vector request file (offline step 1)
	VectorReqFile string
	VectorRsp     bool   // process vector request into response (offline step 2)
	VectorRspFile string
	ManualReg bool   // register from a raw JSON document
	RegFile   string
	Hash bool // enable the hash capability set

	// ── Terminal actions (mutually exclusive, fixed precedence) ──────
	GetCost       bool // query expected vector-set count
	GetReg        bool // fetch the serialized registration
	KAT           bool // run a local known-answer-test file
	KATFile       string
	VectorUpload     bool // upload previously produced vector responses
	VectorUploadFile string
	Put      bool // PUT an artifact (terminal only with EmptyAlg)
	PutFile  string
	EmptyAlg bool
	GetResults    bool // fetch results for a saved session
	ResumeSession bool // resume a saved, incomplete session
	CancelSession bool // cancel a saved session
	GetExpected   bool // fetch expected results for a saved session
	SessionFile   string

	// ── Modifiers layered on the default run ────────────────────────
	FIPSValidation bool // submit operating-environment metadata
	MetadataFile   string
	PostResources     bool
	PostResourcesFile string
	CertReq     bool // mark the session as a certification request
	CertReqFile string

	// ── Output ───────────────────────────────────────────────────────
	SaveTo   bool // redirect textual output to SaveFile
	SaveFile string
	Level    int // engine verbosity, also the logger level

	// ── Provider gate ────────────────────────────────────────────────
	DisableFIPS bool // bypass the certified-provider gate
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that each selected flag carries the arguments it
// needs.  Mode precedence and the offline-vector pairing rule are the
// dispatcher's concern (core.SelectMode), not validation.
func (c *Config) Validate() error {
	required := []struct {
		set   bool
		value string
		flag  string
	}{
		{c.Get, c.GetString, "get"},
		{c.Post, c.PostFile, "post"},
		{c.Delete, c.DeleteURL, "delete"},
		{c.VectorReq, c.VectorReqFile, "vector-req"},
		{c.VectorRsp, c.VectorRspFile, "vector-rsp"},
		{c.ManualReg, c.RegFile, "manual-registration"},
		{c.KAT, c.KATFile, "kat"},
		{c.VectorUpload, c.VectorUploadFile, "vector-upload"},
		{c.Put, c.PutFile, "put"},
		{c.FIPSValidation, c.MetadataFile, "fips-validation"},
		{c.PostResources, c.PostResourcesFile, "post-resources"},
		{c.CertReq, c.CertReqFile, "cert-req"},
		{c.SaveTo, c.SaveFile, "save-to"},
	}
	for _, r := range required {
		if r.set && r.value == "" {
			return fmt.Errorf("--%s requires a value", r.flag)
		}
	}

	if c.GetResults || c.ResumeSession || c.CancelSession || c.GetExpected {
		if c.SessionFile == "" {
			return fmt.Errorf("session-file operations require a saved session file")
		}
	}

	if c.EmptyAlg && !c.Put {
		return fmt.Errorf("--empty-alg only applies together with --put")
	}

	if c.Level < 0 {
		return fmt.Errorf("level must be non-negative, got %d", c.Level)
	}

	return nil
}
