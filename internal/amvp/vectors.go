package amvp

import (
	"context"
	"encoding/hex"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bfussell/libamvp/internal/capability"
	"github.com/bfussell/libamvp/util"
)

// Monte Carlo dimensions, fixed by the protocol.
const (
	mctOuter = 100
	mctInner = 1000
)

// maxParallelGroups bounds the fan-out when processing test groups.
const maxParallelGroups = 8

// ── Wire model ───────────────────────────────────────────────────────

type vectorSet struct {
	VsID      int    `json:"vsId"`
	Algorithm string `json:"algorithm"`
	Revision  string `json:"revision,omitempty"`
	// Retry is set (seconds) when the server has not finished
	// generating this vector set yet.
	Retry      int         `json:"retry,omitempty"`
	TestGroups []testGroup `json:"testGroups,omitempty"`
}

type testGroup struct {
	TgID     int        `json:"tgId"`
	TestType string     `json:"testType"`
	Tests    []wireTest `json:"tests"`
}

type wireTest struct {
	TcID   int    `json:"tcId"`
	Msg    string `json:"msg"`
	Len    int    `json:"len,omitempty"`    // message length in bits
	OutLen int    `json:"outLen,omitempty"` // requested digest bits (VOT)
	MD     string `json:"md,omitempty"`     // expected digest (KAT files only)
}

type vectorSetResponse struct {
	VsID       int             `json:"vsId"`
	Algorithm  string          `json:"algorithm,omitempty"`
	TestGroups []groupResponse `json:"testGroups"`
}

type groupResponse struct {
	TgID  int            `json:"tgId"`
	Tests []caseResponse `json:"tests"`
}

type caseResponse struct {
	TcID         int         `json:"tcId"`
	MD           string      `json:"md,omitempty"`
	ResultsArray []mctDigest `json:"resultsArray,omitempty"`
}

type mctDigest struct {
	MD string `json:"md"`
}

// ── Processing ───────────────────────────────────────────────────────

// processVectorSet runs every test group of vs through the registered
// handler.  Groups are processed in parallel; the handler contract
// requires concurrency safety.
func (s *Session) processVectorSet(ctx context.Context, vs *vectorSet) (*vectorSetResponse, error) {
	handler, err := s.handlerFor(capability.HashAlg(vs.Algorithm))
	if err != nil {
		return nil, err
	}

	resp := &vectorSetResponse{
		VsID:       vs.VsID,
		Algorithm:  vs.Algorithm,
		TestGroups: make([]groupResponse, len(vs.TestGroups)),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelGroups)
	for i := range vs.TestGroups {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			gr, err := s.processGroup(capability.HashAlg(vs.Algorithm), handler, &vs.TestGroups[i])
			if err != nil {
				s.stats.CaseErrored()
				return fmt.Errorf("vsId %d tgId %d: %w", vs.VsID, vs.TestGroups[i].TgID, err)
			}
			resp.TestGroups[i] = *gr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.stats.VectorSetDone()
	s.logf(util.LogVerbose, "processed vector set %d (%s, %d groups)",
		vs.VsID, vs.Algorithm, len(vs.TestGroups))
	return resp, nil
}

func (s *Session) processGroup(alg capability.HashAlg, h capability.Handler, tg *testGroup) (*groupResponse, error) {
	out := &groupResponse{TgID: tg.TgID, Tests: make([]caseResponse, 0, len(tg.Tests))}

	for i := range tg.Tests {
		wt := &tg.Tests[i]
		var cr caseResponse
		var err error
		switch tg.TestType {
		case "MCT":
			cr, err = s.monteCarlo(alg, h, wt)
		default: // AFT, VOT
			cr, err = s.single(alg, h, tg.TestType, wt)
		}
		if err != nil {
			return nil, fmt.Errorf("tcId %d: %w", wt.TcID, err)
		}
		s.stats.CasePassed()
		out.Tests = append(out.Tests, cr)
	}
	return out, nil
}

// single runs one AFT or VOT case.
func (s *Session) single(alg capability.HashAlg, h capability.Handler, testType string, wt *wireTest) (caseResponse, error) {
	msg, err := decodeHex(wt.Msg)
	if err != nil {
		return caseResponse{}, err
	}
	tc := &capability.HashTestCase{
		Algorithm: alg,
		Type:      capability.AFT,
		Msg:       msg,
	}
	if testType == "VOT" {
		tc.Type = capability.VOT
		tc.XOFLen = wt.OutLen / 8
	} else if capability.DigestSize(alg) == 0 {
		// SHAKE AFT still needs an output length.
		tc.XOFLen = wt.OutLen / 8
	}
	if err := h.Process(tc); err != nil {
		return caseResponse{}, err
	}
	return caseResponse{TcID: wt.TcID, MD: hex.EncodeToString(tc.MD)}, nil
}

// monteCarlo drives the outer/inner Monte Carlo loops, calling the
// handler once per inner step.  SHA-1/SHA-2 chain the m1–m3 seed
// triple; SHA-3 and SHAKE feed each digest back as the next message.
func (s *Session) monteCarlo(alg capability.HashAlg, h capability.Handler, wt *wireTest) (caseResponse, error) {
	seed, err := decodeHex(wt.Msg)
	if err != nil {
		return caseResponse{}, err
	}

	sha3Style := capability.DigestSize(alg) == 0 || isSHA3Family(alg)
	results := make([]mctDigest, 0, mctOuter)

	for outer := 0; outer < mctOuter; outer++ {
		var md []byte
		if sha3Style {
			md = append([]byte(nil), seed...)
			for inner := 0; inner < mctInner; inner++ {
				tc := &capability.HashTestCase{
					Algorithm: alg,
					Type:      capability.MCT,
					Msg:       md,
					XOFLen:    wt.OutLen / 8,
				}
				if err := h.Process(tc); err != nil {
					return caseResponse{}, err
				}
				md = tc.MD
			}
		} else {
			m1 := append([]byte(nil), seed...)
			m2 := append([]byte(nil), seed...)
			m3 := append([]byte(nil), seed...)
			for inner := 0; inner < mctInner; inner++ {
				tc := &capability.HashTestCase{
					Algorithm: alg,
					Type:      capability.MCT,
					M1:        m1,
					M2:        m2,
					M3:        m3,
				}
				if err := h.Process(tc); err != nil {
					return caseResponse{}, err
				}
				m1, m2, m3 = m2, m3, tc.MD
				md = tc.MD
			}
		}
		results = append(results, mctDigest{MD: hex.EncodeToString(md)})
		seed = md
	}

	return caseResponse{TcID: wt.TcID, ResultsArray: results}, nil
}

func isSHA3Family(alg capability.HashAlg) bool {
	switch alg {
	case capability.SHA3_224, capability.SHA3_256, capability.SHA3_384,
		capability.SHA3_512, capability.SHAKE128, capability.SHAKE256:
		return true
	}
	return false
}

// decodeHex tolerates an empty message (zero-length input vectors are
// legal).
func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bad hex message: %w", err)
	}
	return b, nil
}
