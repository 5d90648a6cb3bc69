package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/bfussell/libamvp/config"
	"github.com/bfussell/libamvp/internal/capability"
	"github.com/bfussell/libamvp/util"
)

// fakeEngine records every call the dispatcher makes, in order.
type fakeEngine struct {
	calls []string

	enableErr error
	domainErr error
	runErr    error
	closeErr  error

	count    int
	countErr error
	reg      string

	closed int
}

func (f *fakeEngine) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeEngine) SetServer(host string, port int) error { f.record("SetServer(%s,%d)", host, port); return nil }
func (f *fakeEngine) SetAPIContext(ctx string) error        { f.record("SetAPIContext(%s)", ctx); return nil }
func (f *fakeEngine) SetPathSegment(seg string) error       { f.record("SetPathSegment(%s)", seg); return nil }
func (f *fakeEngine) SetCACerts(ca string) error            { f.record("SetCACerts(%s)", ca); return nil }
func (f *fakeEngine) SetCertKey(cert, key string) error     { f.record("SetCertKey(%s,%s)", cert, key); return nil }
func (f *fakeEngine) SetTOTPCallback(func() (string, error)) { f.record("SetTOTPCallback") }

func (f *fakeEngine) MarkAsSample()                      { f.record("MarkAsSample") }
func (f *fakeEngine) MarkAsGetOnly(u string) error       { f.record("MarkAsGetOnly(%s)", u); return nil }
func (f *fakeEngine) SetGetSaveFile(p string) error      { f.record("SetGetSaveFile(%s)", p); return nil }
func (f *fakeEngine) MarkAsPostOnly(p string)            { f.record("MarkAsPostOnly(%s)", p) }
func (f *fakeEngine) MarkAsDeleteOnly(u string)          { f.record("MarkAsDeleteOnly(%s)", u) }
func (f *fakeEngine) MarkAsRequestOnly(p string)         { f.record("MarkAsRequestOnly(%s)", p) }
func (f *fakeEngine) MarkAsPutAfterTest(p string)        { f.record("MarkAsPutAfterTest(%s)", p) }
func (f *fakeEngine) MarkAsPostResources(p string) error { f.record("MarkAsPostResources(%s)", p); return nil }
func (f *fakeEngine) MarkAsCertRequest(p string) error   { f.record("MarkAsCertRequest(%s)", p); return nil }

func (f *fakeEngine) EnableHash(alg capability.HashAlg, h capability.Handler) error {
	f.record("EnableHash(%s)", alg)
	return f.enableErr
}

func (f *fakeEngine) SetHashDomain(alg capability.HashAlg, d capability.Domain) error {
	f.record("SetHashDomain(%s,%d,%d,%d)", alg, d.Min, d.Max, d.Increment)
	return f.domainErr
}

func (f *fakeEngine) SetJSONFile(p string) error { f.record("SetJSONFile(%s)", p); return nil }

func (f *fakeEngine) IngestOEMetadata(p string) error { f.record("IngestOEMetadata(%s)", p); return nil }
func (f *fakeEngine) SetFIPSValidationMetadata(m, o int) error {
	f.record("SetFIPSValidationMetadata(%d,%d)", m, o)
	return nil
}

func (f *fakeEngine) VectorSetCount() (int, error) { f.record("VectorSetCount"); return f.count, f.countErr }
func (f *fakeEngine) CurrentRegistration() (string, error) {
	f.record("CurrentRegistration")
	return f.reg, nil
}
func (f *fakeEngine) LoadKATFile(ctx context.Context, p string) error {
	f.record("LoadKATFile(%s)", p)
	return nil
}
func (f *fakeEngine) RunVectorsFromFile(ctx context.Context, req, rsp string) error {
	f.record("RunVectorsFromFile(%s,%s)", req, rsp)
	return nil
}
func (f *fakeEngine) UploadVectorsFromFile(ctx context.Context, p string, fips bool) error {
	f.record("UploadVectorsFromFile(%s,%v)", p, fips)
	return nil
}
func (f *fakeEngine) PutDataFromFile(ctx context.Context, p string) error {
	f.record("PutDataFromFile(%s)", p)
	return nil
}
func (f *fakeEngine) FetchResults(ctx context.Context, sf string) (string, error) {
	f.record("FetchResults(%s)", sf)
	return "{}", nil
}
func (f *fakeEngine) ResumeSession(ctx context.Context, sf, save string, fips bool) error {
	f.record("ResumeSession(%s,%s,%v)", sf, save, fips)
	return nil
}
func (f *fakeEngine) CancelSession(ctx context.Context, sf string) (string, error) {
	f.record("CancelSession(%s)", sf)
	return "{}", nil
}
func (f *fakeEngine) FetchExpectedResults(ctx context.Context, sf string) (string, error) {
	f.record("FetchExpectedResults(%s)", sf)
	return "{}", nil
}
func (f *fakeEngine) Run(ctx context.Context, fips bool) error {
	f.record("Run(%v)", fips)
	return f.runErr
}
func (f *fakeEngine) Close() error { f.closed++; return f.closeErr }

// ── Test scaffolding ─────────────────────────────────────────────────

func defaultParams() config.ServerParams {
	return config.ServerParams{
		Server:      config.DefaultServer,
		Port:        config.DefaultPort,
		PathSegment: config.DefaultURIPrefix,
	}
}

func runExecute(t *testing.T, cfg *config.Config, params config.ServerParams, fake *fakeEngine) error {
	t.Helper()

	orig := config.FIPSBypassDelay
	config.FIPSBypassDelay = time.Millisecond
	t.Cleanup(func() { config.FIPSBypassDelay = orig })
	cfg.DisableFIPS = true

	logger := util.NewLogger(0)
	logger.SetOutput(io.Discard)

	return Execute(context.Background(), cfg, params, logger,
		func() (Engine, error) { return fake, nil }, nil)
}

func (f *fakeEngine) called(prefix string) bool {
	return slices.IndexFunc(f.calls, func(c string) bool {
		return len(c) >= len(prefix) && c[:len(prefix)] == prefix
	}) >= 0
}

func (f *fakeEngine) indexOf(prefix string) int {
	return slices.IndexFunc(f.calls, func(c string) bool {
		return len(c) >= len(prefix) && c[:len(prefix)] == prefix
	})
}

// ── Scenarios ────────────────────────────────────────────────────────

func TestExecuteDefaultRun(t *testing.T) {
	fake := &fakeEngine{}
	if err := runExecute(t, &config.Config{}, defaultParams(), fake); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	for _, want := range []string{"SetServer(127.0.0.1,443)", "SetPathSegment(amvp/v1)", "Run(false)"} {
		if !slices.Contains(fake.calls, want) {
			t.Errorf("missing call %s in %v", want, fake.calls)
		}
	}
	if fake.closed != 1 {
		t.Errorf("Close called %d times, want 1", fake.closed)
	}
}

func TestExecuteOfflineMismatchNeverBuildsEngine(t *testing.T) {
	factoryCalls := 0
	logger := util.NewLogger(0)
	logger.SetOutput(io.Discard)

	orig := config.FIPSBypassDelay
	config.FIPSBypassDelay = time.Millisecond
	t.Cleanup(func() { config.FIPSBypassDelay = orig })

	cfg := &config.Config{VectorRsp: true, VectorRspFile: "rsp.json", DisableFIPS: true}
	err := Execute(context.Background(), cfg, defaultParams(), logger,
		func() (Engine, error) { factoryCalls++; return &fakeEngine{}, nil }, nil)
	if err == nil {
		t.Fatal("expected the offline-mismatch error")
	}
	if factoryCalls != 0 {
		t.Errorf("factory called %d times, want 0", factoryCalls)
	}
}

func TestExecuteEnablerFailureAborts(t *testing.T) {
	fake := &fakeEngine{enableErr: fmt.Errorf("duplicate capability")}
	cfg := &config.Config{Hash: true}
	if err := runExecute(t, cfg, defaultParams(), fake); err == nil {
		t.Fatal("expected the enabler failure to surface")
	}
	if fake.called("Run(") {
		t.Error("no terminal mode may run after an enabler failure")
	}
	if fake.closed != 1 {
		t.Errorf("Close called %d times, want 1", fake.closed)
	}
}

func TestExecuteDomainFailureAborts(t *testing.T) {
	fake := &fakeEngine{domainErr: fmt.Errorf("bad domain")}
	cfg := &config.Config{Hash: true}
	if err := runExecute(t, cfg, defaultParams(), fake); err == nil {
		t.Fatal("expected the domain failure to surface")
	}
	if fake.called("Run(") {
		t.Error("no terminal mode may run after a domain failure")
	}
}

func TestExecuteHashEnablesSHA256(t *testing.T) {
	fake := &fakeEngine{}
	cfg := &config.Config{Hash: true}
	if err := runExecute(t, cfg, defaultParams(), fake); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !slices.Contains(fake.calls, "EnableHash(SHA2-256)") {
		t.Errorf("calls = %v, missing EnableHash", fake.calls)
	}
	if !slices.Contains(fake.calls, "SetHashDomain(SHA2-256,0,65536,8)") {
		t.Errorf("calls = %v, missing SetHashDomain", fake.calls)
	}
}

func TestExecuteManualJSONSkipsEnabler(t *testing.T) {
	fake := &fakeEngine{}
	cfg := &config.Config{ManualReg: true, RegFile: "reg.json", Hash: true}
	if err := runExecute(t, cfg, defaultParams(), fake); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !fake.called("SetJSONFile(reg.json)") {
		t.Error("manual registration file not bound")
	}
	if fake.called("EnableHash") {
		t.Error("enabler must never run with a manual registration file")
	}
}

func TestExecuteCostPrecedence(t *testing.T) {
	fake := &fakeEngine{count: 3}
	cfg := &config.Config{GetCost: true, KAT: true, KATFile: "kat.json", GetResults: true, SessionFile: "s.json"}
	if err := runExecute(t, cfg, defaultParams(), fake); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !fake.called("VectorSetCount") {
		t.Error("cost mode did not run")
	}
	for _, bad := range []string{"LoadKATFile", "FetchResults", "Run("} {
		if fake.called(bad) {
			t.Errorf("%s ran despite cost precedence", bad)
		}
	}
}

func TestExecutePutMarksBeforeRun(t *testing.T) {
	fake := &fakeEngine{}
	cfg := &config.Config{Put: true, PutFile: "artifact.json"}
	if err := runExecute(t, cfg, defaultParams(), fake); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	mark := fake.indexOf("MarkAsPutAfterTest(artifact.json)")
	run := fake.indexOf("Run(")
	if mark < 0 || run < 0 {
		t.Fatalf("calls = %v, want mark and run", fake.calls)
	}
	if mark > run {
		t.Error("put mark must precede the run")
	}
}

func TestExecutePutEmptyAlg(t *testing.T) {
	fake := &fakeEngine{}
	cfg := &config.Config{Put: true, PutFile: "artifact.json", EmptyAlg: true}
	if err := runExecute(t, cfg, defaultParams(), fake); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !fake.called("PutDataFromFile(artifact.json)") {
		t.Error("put-artifact mode did not run")
	}
	if fake.called("Run(") || fake.called("MarkAsPutAfterTest") {
		t.Error("empty-alg put must not mark or run tests")
	}
}

func TestExecuteMetadataBindingOnlineOnly(t *testing.T) {
	// An online mode ingests and binds the metadata.
	fake := &fakeEngine{}
	cfg := &config.Config{GetResults: true, SessionFile: "s.json", FIPSValidation: true, MetadataFile: "oe.json"}
	if err := runExecute(t, cfg, defaultParams(), fake); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !fake.called("IngestOEMetadata(oe.json)") {
		t.Error("metadata not ingested for an online mode")
	}
	if !fake.called("SetFIPSValidationMetadata(1,1)") {
		t.Error("metadata identifiers not bound")
	}

	// An offline mode never touches the metadata.
	fake = &fakeEngine{count: 1}
	cfg = &config.Config{GetCost: true, FIPSValidation: true, MetadataFile: "oe.json"}
	if err := runExecute(t, cfg, defaultParams(), fake); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fake.called("IngestOEMetadata") {
		t.Error("offline modes must not ingest metadata")
	}
}

func TestExecuteRegistrationSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reg.json")
	fake := &fakeEngine{reg: `{"algorithms":[]}`}
	cfg := &config.Config{GetReg: true, SaveTo: true, SaveFile: path}
	if err := runExecute(t, cfg, defaultParams(), fake); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("registration not saved: %v", err)
	}
	if string(data) != `{"algorithms":[]}` {
		t.Errorf("saved registration = %q", data)
	}
}

func TestExecuteFactoryFailure(t *testing.T) {
	orig := config.FIPSBypassDelay
	config.FIPSBypassDelay = time.Millisecond
	t.Cleanup(func() { config.FIPSBypassDelay = orig })

	logger := util.NewLogger(0)
	logger.SetOutput(io.Discard)

	err := Execute(context.Background(), &config.Config{DisableFIPS: true},
		defaultParams(), logger,
		func() (Engine, error) { return nil, fmt.Errorf("no engine") }, nil)
	if err == nil {
		t.Fatal("expected factory error to surface")
	}
}

func TestExecuteClientCertAppliedAsPair(t *testing.T) {
	fake := &fakeEngine{}
	params := defaultParams()
	params.CertFile = "client.pem" // no key: the half-pair is ignored
	if err := runExecute(t, &config.Config{}, params, fake); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fake.called("SetCertKey") {
		t.Error("a lone certificate must not be applied")
	}

	fake = &fakeEngine{}
	params.KeyFile = "client.key"
	if err := runExecute(t, &config.Config{}, params, fake); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !fake.called("SetCertKey(client.pem,client.key)") {
		t.Error("complete pair not applied")
	}
}

func TestExecuteTOTPFromSeed(t *testing.T) {
	fake := &fakeEngine{}
	params := defaultParams()
	params.TOTPSeed = "JBSWY3DPEHPK3PXP"
	if err := runExecute(t, &config.Config{}, params, fake); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !fake.called("SetTOTPCallback") {
		t.Error("TOTP callback not installed from the seed")
	}
}

func TestCleanupNilEngine(t *testing.T) {
	logger := util.NewLogger(0)
	logger.SetOutput(io.Discard)
	cleanup(nil, logger) // must not panic
}

func TestExecuteSessionModes(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"upload", config.Config{VectorUpload: true, VectorUploadFile: "rsp.json"}, "UploadVectorsFromFile(rsp.json,false)"},
		{"results", config.Config{GetResults: true, SessionFile: "s.json"}, "FetchResults(s.json)"},
		{"resume", config.Config{ResumeSession: true, SessionFile: "s.json"}, "ResumeSession(s.json,,false)"},
		{"cancel", config.Config{CancelSession: true, SessionFile: "s.json"}, "CancelSession(s.json)"},
		{"expected", config.Config{GetExpected: true, SessionFile: "s.json"}, "FetchExpectedResults(s.json)"},
		{"kat", config.Config{KAT: true, KATFile: "kat.json"}, "LoadKATFile(kat.json)"},
		{"offline pair", config.Config{VectorReq: true, VectorReqFile: "req.json", VectorRsp: true, VectorRspFile: "rsp.json"}, "RunVectorsFromFile(req.json,rsp.json)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeEngine{}
			if err := runExecute(t, &tt.cfg, defaultParams(), fake); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if !slices.Contains(fake.calls, tt.want) {
				t.Errorf("calls = %v, want %s", fake.calls, tt.want)
			}
			if fake.closed != 1 {
				t.Errorf("Close called %d times, want 1", fake.closed)
			}
		})
	}
}
