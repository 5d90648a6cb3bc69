package core

import (
	"fmt"

	"github.com/bfussell/libamvp/config"
)

// Kind identifies the single terminal operation selected for an
// invocation.  Declaration order is precedence order: when several
// action flags are set, the lowest Kind wins.
type Kind int

const (
	KindCost Kind = iota
	KindGetRegistration
	KindKAT
	KindOfflineVectors
	KindUpload
	KindPutArtifact
	KindFetchResults
	KindResume
	KindCancel
	KindFetchExpected
	KindRun
)

var kindNames = map[Kind]string{
	KindCost:            "cost",
	KindGetRegistration: "get-registration",
	KindKAT:             "kat",
	KindOfflineVectors:  "offline-vectors",
	KindUpload:          "upload",
	KindPutArtifact:     "put-artifact",
	KindFetchResults:    "fetch-results",
	KindResume:          "resume",
	KindCancel:          "cancel",
	KindFetchExpected:   "fetch-expected",
	KindRun:             "run",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// online reports whether the mode talks to the server as part of a
// test-session flow, which is when the default-server advisory and
// the validation-metadata binding apply.
func (k Kind) online() bool {
	return k >= KindUpload
}

// SelectMode maps a validated Config to exactly one Kind.  It is a
// pure function of the config: no I/O, no engine contact.
func SelectMode(cfg *config.Config) (Kind, error) {
	// Offline response generation is meaningless without the request
	// file that pairs with it.
	if cfg.VectorRsp && !cfg.VectorReq {
		return 0, fmt.Errorf("offline vector processing requires both a request and a response file")
	}

	switch {
	case cfg.GetCost:
		return KindCost, nil
	case cfg.GetReg:
		return KindGetRegistration, nil
	case cfg.KAT:
		return KindKAT, nil
	case cfg.VectorReq && cfg.VectorRsp:
		return KindOfflineVectors, nil
	case cfg.VectorUpload:
		return KindUpload, nil
	case cfg.Put && cfg.EmptyAlg:
		return KindPutArtifact, nil
	case cfg.GetResults:
		return KindFetchResults, nil
	case cfg.ResumeSession:
		return KindResume, nil
	case cfg.CancelSession:
		return KindCancel, nil
	case cfg.GetExpected:
		return KindFetchExpected, nil
	default:
		return KindRun, nil
	}
}
