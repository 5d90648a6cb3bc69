package core

import (
	"testing"

	"github.com/bfussell/libamvp/config"
)

func TestSelectModeOfflineMismatch(t *testing.T) {
	cfg := &config.Config{VectorRsp: true, VectorRspFile: "rsp.json"}
	if _, err := SelectMode(cfg); err == nil {
		t.Fatal("expected error for a response file without a request file")
	}

	// The mismatch wins over every terminal flag.
	cfg.GetCost = true
	if _, err := SelectMode(cfg); err == nil {
		t.Fatal("offline mismatch must precede mode selection")
	}
}

func TestSelectModeDefault(t *testing.T) {
	kind, err := SelectMode(&config.Config{})
	if err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	if kind != KindRun {
		t.Errorf("kind = %s, want run", kind)
	}
}

func TestSelectModeTable(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want Kind
	}{
		{"cost", config.Config{GetCost: true}, KindCost},
		{"get-registration", config.Config{GetReg: true}, KindGetRegistration},
		{"kat", config.Config{KAT: true}, KindKAT},
		{"offline pair", config.Config{VectorReq: true, VectorRsp: true}, KindOfflineVectors},
		{"request only is a run", config.Config{VectorReq: true}, KindRun},
		{"upload", config.Config{VectorUpload: true}, KindUpload},
		{"put with empty-alg", config.Config{Put: true, EmptyAlg: true}, KindPutArtifact},
		{"put without empty-alg is a run", config.Config{Put: true}, KindRun},
		{"results", config.Config{GetResults: true}, KindFetchResults},
		{"resume", config.Config{ResumeSession: true}, KindResume},
		{"cancel", config.Config{CancelSession: true}, KindCancel},
		{"expected", config.Config{GetExpected: true}, KindFetchExpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := SelectMode(&tt.cfg)
			if err != nil {
				t.Fatalf("SelectMode: %v", err)
			}
			if kind != tt.want {
				t.Errorf("kind = %s, want %s", kind, tt.want)
			}
		})
	}
}

// TestSelectModePrecedence sets every terminal flag and strips them
// one precedence level at a time: whatever remains highest must win.
func TestSelectModePrecedence(t *testing.T) {
	all := config.Config{
		GetCost:       true,
		GetReg:        true,
		KAT:           true,
		VectorReq:     true,
		VectorRsp:     true,
		VectorUpload:  true,
		Put:           true,
		EmptyAlg:      true,
		GetResults:    true,
		ResumeSession: true,
		CancelSession: true,
		GetExpected:   true,
	}

	order := []struct {
		want  Kind
		strip func(*config.Config)
	}{
		{KindCost, func(c *config.Config) { c.GetCost = false }},
		{KindGetRegistration, func(c *config.Config) { c.GetReg = false }},
		{KindKAT, func(c *config.Config) { c.KAT = false }},
		{KindOfflineVectors, func(c *config.Config) { c.VectorReq, c.VectorRsp = false, false }},
		{KindUpload, func(c *config.Config) { c.VectorUpload = false }},
		{KindPutArtifact, func(c *config.Config) { c.Put, c.EmptyAlg = false, false }},
		{KindFetchResults, func(c *config.Config) { c.GetResults = false }},
		{KindResume, func(c *config.Config) { c.ResumeSession = false }},
		{KindCancel, func(c *config.Config) { c.CancelSession = false }},
		{KindFetchExpected, func(c *config.Config) { c.GetExpected = false }},
		{KindRun, nil},
	}

	cfg := all
	for _, step := range order {
		kind, err := SelectMode(&cfg)
		if err != nil {
			t.Fatalf("SelectMode: %v", err)
		}
		if kind != step.want {
			t.Fatalf("kind = %s, want %s (remaining flags: %+v)", kind, step.want, cfg)
		}
		if step.strip != nil {
			step.strip(&cfg)
		}
	}
}

func TestKindString(t *testing.T) {
	if KindCost.String() != "cost" || KindRun.String() != "run" {
		t.Error("Kind names wrong")
	}
	if Kind(99).String() == "" {
		t.Error("unknown Kind should still format")
	}
}

func TestKindOnline(t *testing.T) {
	offline := []Kind{KindCost, KindGetRegistration, KindKAT, KindOfflineVectors}
	for _, k := range offline {
		if k.online() {
			t.Errorf("%s should not be online", k)
		}
	}
	online := []Kind{KindUpload, KindPutArtifact, KindFetchResults, KindResume, KindCancel, KindFetchExpected, KindRun}
	for _, k := range online {
		if !k.online() {
			t.Errorf("%s should be online", k)
		}
	}
}
