package amvp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bfussell/libamvp/internal/capability"
	"github.com/bfussell/libamvp/internal/session"
	"github.com/bfussell/libamvp/internal/transport"
	"github.com/bfussell/libamvp/util"
)

// vectorFile is the on-disk container for offline vector processing.
// A request file carries the session record and the fetched vector
// sets; the matching response file carries the session record and the
// computed responses.
type vectorFile struct {
	Session    *session.Saved      `json:"session,omitempty"`
	VectorSets []vectorSet         `json:"vectorSets,omitempty"`
	Responses  []vectorSetResponse `json:"responses,omitempty"`
}

// ── Known-answer tests ───────────────────────────────────────────────

// LoadKATFile executes a local known-answer vector file: every test
// carries its expected digest, and the run fails if any computed
// digest differs.  No server contact happens.
func (s *Session) LoadKATFile(ctx context.Context, path string) error {
	var sets []vectorSet
	if err := util.ReadJSONFile(path, &sets); err != nil {
		return err
	}
	if len(sets) == 0 {
		return fmt.Errorf("%s: no vector sets", path)
	}

	var mismatches int
	for i := range sets {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.runKATSet(&sets[i])
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		mismatches += n
	}
	if mismatches > 0 {
		return fmt.Errorf("%s: %d known-answer mismatch(es)", path, mismatches)
	}
	s.logf(util.LogNormal, "known-answer file %s passed", path)
	return nil
}

func (s *Session) runKATSet(vs *vectorSet) (int, error) {
	alg := capability.HashAlg(vs.Algorithm)
	handler, err := s.handlerFor(alg)
	if err != nil {
		return 0, err
	}

	var mismatches int
	for gi := range vs.TestGroups {
		tg := &vs.TestGroups[gi]
		if tg.TestType == "MCT" {
			return 0, fmt.Errorf("tgId %d: Monte Carlo groups are not supported in known-answer files", tg.TgID)
		}
		for ti := range tg.Tests {
			wt := &tg.Tests[ti]
			if wt.MD == "" {
				return 0, fmt.Errorf("tgId %d tcId %d: expected digest missing", tg.TgID, wt.TcID)
			}
			cr, err := s.single(alg, handler, tg.TestType, wt)
			if err != nil {
				s.stats.CaseErrored()
				return 0, fmt.Errorf("tcId %d: %w", wt.TcID, err)
			}
			if !strings.EqualFold(cr.MD, wt.MD) {
				s.stats.CaseFailed()
				s.logf(util.LogQuiet, "tcId %d: digest mismatch (got %s, want %s)",
					wt.TcID, cr.MD, wt.MD)
				mismatches++
			}
		}
		s.stats.VectorSetDone()
	}
	return mismatches, nil
}

// ── Offline vector processing ────────────────────────────────────────

// RunVectorsFromFile processes the vector sets in reqPath and writes
// the responses (plus the carried session record) to rspPath.
func (s *Session) RunVectorsFromFile(ctx context.Context, reqPath, rspPath string) error {
	var vf vectorFile
	if err := util.ReadJSONFile(reqPath, &vf); err != nil {
		return err
	}
	if len(vf.VectorSets) == 0 {
		return fmt.Errorf("%s: no vector sets to process", reqPath)
	}

	out := vectorFile{Session: vf.Session}
	for i := range vf.VectorSets {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := s.processVectorSet(ctx, &vf.VectorSets[i])
		if err != nil {
			return fmt.Errorf("%s: %w", reqPath, err)
		}
		out.Responses = append(out.Responses, *resp)
	}

	if err := util.WriteJSONFile(rspPath, &out); err != nil {
		return err
	}
	s.logf(util.LogNormal, "wrote %d vector set response(s) to %s", len(out.Responses), rspPath)
	return nil
}

// UploadVectorsFromFile submits previously computed responses from a
// response file, optionally following up with a FIPS validation.
func (s *Session) UploadVectorsFromFile(ctx context.Context, path string, fipsValidation bool) error {
	var vf vectorFile
	if err := util.ReadJSONFile(path, &vf); err != nil {
		return err
	}
	if vf.Session == nil {
		return fmt.Errorf("%s: response file carries no session record", path)
	}
	if len(vf.Responses) == 0 {
		return fmt.Errorf("%s: no responses to upload", path)
	}

	c, err := s.restore(vf.Session)
	if err != nil {
		return err
	}
	for i := range vf.Responses {
		if err := s.submitResponse(ctx, c, vf.Session.URL, &vf.Responses[i]); err != nil {
			return err
		}
	}
	if err := s.checkVerdict(ctx, c, vf.Session.URL); err != nil {
		return err
	}
	if fipsValidation {
		return s.submitValidation(ctx, c, vf.Session.URL)
	}
	return nil
}

// PutDataFromFile submits an artifact document for validation using
// the session record stored beside it.
func (s *Session) PutDataFromFile(ctx context.Context, path string) error {
	var doc struct {
		Session *session.Saved  `json:"session"`
		Data    json.RawMessage `json:"data"`
	}
	if err := util.ReadJSONFile(path, &doc); err != nil {
		return err
	}
	if doc.Session == nil {
		return fmt.Errorf("%s: artifact carries no session record", path)
	}
	c, err := s.restore(doc.Session)
	if err != nil {
		return err
	}
	return c.DoJSON(ctx, "put", http.MethodPut, doc.Session.URL, doc.Data, nil)
}

// ── Saved-session operations ─────────────────────────────────────────

// FetchResults retrieves the computed results for a saved session and
// returns them as pretty-printed JSON.
func (s *Session) FetchResults(ctx context.Context, sessionFile string) (string, error) {
	saved, err := session.Load(sessionFile)
	if err != nil {
		return "", err
	}
	c, err := s.restore(saved)
	if err != nil {
		return "", err
	}
	body, err := c.GetRaw(ctx, "results", saved.URL+"/results")
	if err != nil {
		return "", err
	}
	return prettyJSON(body), nil
}

// ResumeSession picks up a saved, incomplete session and processes its
// pending vector sets.  The updated record is written to saveFile when
// given, otherwise back to sessionFile (the save-file hint).
func (s *Session) ResumeSession(ctx context.Context, sessionFile, saveFile string, fipsValidation bool) error {
	saved, err := session.Load(sessionFile)
	if err != nil {
		return err
	}
	if len(saved.Pending) == 0 {
		s.logf(util.LogNormal, "session %s has no pending vector sets", saved.ID)
		return nil
	}
	c, err := s.restore(saved)
	if err != nil {
		return err
	}

	savePath := saveFile
	if savePath == "" {
		savePath = sessionFile
	}
	if err := s.processSession(ctx, c, saved, savePath); err != nil {
		return err
	}
	if err := s.checkVerdict(ctx, c, saved.URL); err != nil {
		return err
	}
	if fipsValidation {
		return s.submitValidation(ctx, c, saved.URL)
	}
	return nil
}

// CancelSession cancels a saved session and returns the server's
// cancellation confirmation.
func (s *Session) CancelSession(ctx context.Context, sessionFile string) (string, error) {
	saved, err := session.Load(sessionFile)
	if err != nil {
		return "", err
	}
	c, err := s.restore(saved)
	if err != nil {
		return "", err
	}
	var confirmation json.RawMessage
	if err := c.DoJSON(ctx, "cancel", http.MethodDelete, saved.URL, nil, &confirmation); err != nil {
		return "", err
	}
	s.logf(util.LogNormal, "cancelled session %s", saved.ID)
	return prettyJSON(confirmation), nil
}

// FetchExpectedResults retrieves the expected results for a saved
// sample session.
func (s *Session) FetchExpectedResults(ctx context.Context, sessionFile string) (string, error) {
	saved, err := session.Load(sessionFile)
	if err != nil {
		return "", err
	}
	if !saved.Sample {
		return "", fmt.Errorf("%s: expected results are only available for sample sessions", sessionFile)
	}
	c, err := s.restore(saved)
	if err != nil {
		return "", err
	}
	body, err := c.GetRaw(ctx, "expected", saved.URL+"/expected")
	if err != nil {
		return "", err
	}
	return prettyJSON(body), nil
}

// restore builds the transport and installs the JWT from a saved
// session record.
func (s *Session) restore(saved *session.Saved) (*transport.Client, error) {
	c, err := s.conn()
	if err != nil {
		return nil, err
	}
	c.SetToken(saved.AccessToken)
	return c, nil
}

func prettyJSON(raw []byte) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}
