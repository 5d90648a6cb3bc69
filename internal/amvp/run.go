package amvp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bfussell/libamvp/internal/retry"
	"github.com/bfussell/libamvp/internal/session"
	"github.com/bfussell/libamvp/internal/transport"
	"github.com/bfussell/libamvp/util"
)

type createSessionResponse struct {
	URL          string `json:"url"`
	AccessToken  string `json:"accessToken"`
	VectorSetIDs []int  `json:"vectorSetIds"`
}

type resultsResponse struct {
	Passed  bool            `json:"passed"`
	Results json.RawMessage `json:"results,omitempty"`
}

// Run executes the full session flow: registration, vector retrieval,
// test execution, and submission.  The get/post/delete/request-only
// marks short-circuit parts of that flow; fipsValidation appends a
// validation submission at the end.
func (s *Session) Run(ctx context.Context, fipsValidation bool) error {
	// Single-request session styles resolve before any registration.
	if s.getOnly {
		return s.runGetOnly(ctx)
	}
	if s.postOnly {
		return s.runPostOnly(ctx)
	}
	if s.deleteOnly {
		return s.runDeleteOnly(ctx)
	}

	reg, err := s.buildRegistration()
	if err != nil {
		return err
	}

	c, err := s.conn()
	if err != nil {
		return err
	}
	if err := s.login(ctx); err != nil {
		return err
	}

	target, err := s.endpoint("testSessions")
	if err != nil {
		return err
	}
	var created createSessionResponse
	if err := c.DoJSON(ctx, "register", http.MethodPost, target, json.RawMessage(reg), &created); err != nil {
		return err
	}
	if created.URL == "" || len(created.VectorSetIDs) == 0 {
		return fmt.Errorf("register: server response missing session url or vector sets")
	}
	if created.AccessToken != "" {
		c.SetToken(created.AccessToken)
	}
	sessionURL := s.absolute(created.URL)

	saved := session.New(sessionURL, c.Token(), created.VectorSetIDs)
	saved.Sample = s.sample
	savePath := sessionFileName(saved.ID)
	if err := saved.Write(savePath); err != nil {
		return err
	}
	s.logf(util.LogNormal, "test session registered: %s (saved to %s)", sessionURL, savePath)

	if s.postResources {
		if err := s.postResourcesFileTo(ctx, c, sessionURL); err != nil {
			return err
		}
	}

	if s.requestOnly {
		return s.writeRequestFile(ctx, c, saved)
	}

	if err := s.processSession(ctx, c, saved, savePath); err != nil {
		return err
	}

	if s.putAfterTest {
		if err := s.putFileTo(ctx, c, sessionURL, s.putFile); err != nil {
			return err
		}
	}

	if err := s.checkVerdict(ctx, c, sessionURL); err != nil {
		return err
	}

	if fipsValidation {
		if err := s.submitValidation(ctx, c, sessionURL); err != nil {
			return err
		}
	}

	s.logf(util.LogNormal, "session statistics:\n%s", s.stats.JSON())
	return nil
}

// processSession fetches, runs, and submits every pending vector set,
// checkpointing the saved session file as sets complete.
func (s *Session) processSession(ctx context.Context, c *transport.Client, saved *session.Saved, savePath string) error {
	for _, id := range append([]int(nil), saved.Pending...) {
		vs, err := s.fetchVectorSet(ctx, c, saved.URL, id)
		if err != nil {
			return err
		}
		resp, err := s.processVectorSet(ctx, vs)
		if err != nil {
			return err
		}
		if err := s.submitResponse(ctx, c, saved.URL, resp); err != nil {
			return err
		}
		saved.MarkSubmitted(id)
		if err := saved.Write(savePath); err != nil {
			return err
		}
	}
	return nil
}

// fetchVectorSet polls until the server finishes generating the set.
func (s *Session) fetchVectorSet(ctx context.Context, c *transport.Client, sessionURL string, id int) (*vectorSet, error) {
	target := sessionURL + "/vectorSets/" + strconv.Itoa(id)
	poll := &retry.Backoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  30,
		Jitter:       true,
	}

	var vs vectorSet
	err := poll.Do(ctx, func(attempt int) error {
		vs = vectorSet{}
		if err := c.DoJSON(ctx, "fetch", http.MethodGet, target, nil, &vs); err != nil {
			return retry.Permanent(err)
		}
		if vs.Retry > 0 {
			s.logf(util.LogVerbose, "vector set %d not ready, server asks for %ds", id, vs.Retry)
			return retry.After(time.Duration(vs.Retry)*time.Second,
				fmt.Errorf("vector set %d not ready", id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if vs.VsID == 0 {
		vs.VsID = id
	}
	return &vs, nil
}

func (s *Session) submitResponse(ctx context.Context, c *transport.Client, sessionURL string, resp *vectorSetResponse) error {
	target := sessionURL + "/vectorSets/" + strconv.Itoa(resp.VsID) + "/responses"
	return c.DoJSON(ctx, "submit", http.MethodPost, target, resp, nil)
}

// checkVerdict retrieves the server's disposition for the session.
func (s *Session) checkVerdict(ctx context.Context, c *transport.Client, sessionURL string) error {
	var res resultsResponse
	if err := c.DoJSON(ctx, "results", http.MethodGet, sessionURL+"/results", nil, &res); err != nil {
		return err
	}
	if !res.Passed {
		s.logf(util.LogQuiet, "test session FAILED")
		return fmt.Errorf("test session did not pass")
	}
	s.logf(util.LogNormal, "test session passed")
	return nil
}

// writeRequestFile persists the session's vector sets for offline
// processing together with the session record needed to upload the
// responses later.
func (s *Session) writeRequestFile(ctx context.Context, c *transport.Client, saved *session.Saved) error {
	vf := vectorFile{Session: saved}
	for _, id := range saved.VectorSetIDs {
		vs, err := s.fetchVectorSet(ctx, c, saved.URL, id)
		if err != nil {
			return err
		}
		vf.VectorSets = append(vf.VectorSets, *vs)
	}
	if err := util.WriteJSONFile(s.requestFile, &vf); err != nil {
		return err
	}
	s.logf(util.LogNormal, "wrote vector request file %s (%d sets)",
		s.requestFile, len(vf.VectorSets))
	return nil
}

// ── Single-request session styles ────────────────────────────────────

func (s *Session) runGetOnly(ctx context.Context) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	if err := s.login(ctx); err != nil {
		return err
	}
	body, err := c.GetRaw(ctx, "get", s.absolute(s.getString))
	if err != nil {
		return err
	}
	if s.getSaveFile != "" {
		return util.SaveStringToFile(s.getSaveFile, string(body))
	}
	s.logf(util.LogQuiet, "%s", string(body))
	return nil
}

// postDocument is the on-disk shape of post-only and put payloads:
// the target endpoint plus the document to send.
type postDocument struct {
	URL  string          `json:"url"`
	Data json.RawMessage `json:"data"`
}

func (s *Session) runPostOnly(ctx context.Context) error {
	var doc postDocument
	if err := util.ReadJSONFile(s.postFile, &doc); err != nil {
		return err
	}
	if doc.URL == "" {
		return fmt.Errorf("%s: post document has no url", s.postFile)
	}
	c, err := s.conn()
	if err != nil {
		return err
	}
	if err := s.login(ctx); err != nil {
		return err
	}
	return c.DoJSON(ctx, "post", http.MethodPost, s.absolute(doc.URL), doc.Data, nil)
}

func (s *Session) runDeleteOnly(ctx context.Context) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	if err := s.login(ctx); err != nil {
		return err
	}
	return c.DoJSON(ctx, "delete", http.MethodDelete, s.absolute(s.deleteURL), nil, nil)
}

// ── Helpers ──────────────────────────────────────────────────────────

// absolute resolves a server-relative path against the session base.
func (s *Session) absolute(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	b, err := s.base()
	if err != nil {
		return target
	}
	if strings.HasPrefix(target, "/") {
		// Absolute server path: keep only the scheme and host.
		if i := strings.Index(b, "://"); i >= 0 {
			if j := strings.Index(b[i+3:], "/"); j >= 0 {
				return b[:i+3+j] + target
			}
		}
		return b + target
	}
	return b + "/" + target
}

func sessionFileName(id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return "testsession_" + short + ".json"
}

func (s *Session) postResourcesFileTo(ctx context.Context, c *transport.Client, sessionURL string) error {
	var doc json.RawMessage
	if err := util.ReadJSONFile(s.resourcesFile, &doc); err != nil {
		return err
	}
	return c.DoJSON(ctx, "resources", http.MethodPost, sessionURL+"/resources", doc, nil)
}

func (s *Session) putFileTo(ctx context.Context, c *transport.Client, sessionURL, path string) error {
	var doc json.RawMessage
	if err := util.ReadJSONFile(path, &doc); err != nil {
		return err
	}
	return c.DoJSON(ctx, "put", http.MethodPut, sessionURL, doc, nil)
}
