// Package amvp implements the protocol engine: the stateful session a
// client builds up with setters and marks, then consumes with exactly
// one terminal operation (run, upload, resume, ...).
//
// The dispatcher in internal/core drives this package through the
// core.Engine interface and owns the session for the process lifetime.
package amvp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bfussell/libamvp/internal/capability"
	"github.com/bfussell/libamvp/internal/errors"
	"github.com/bfussell/libamvp/internal/metrics"
	"github.com/bfussell/libamvp/internal/transport"
	"github.com/bfussell/libamvp/util"
)

// ProgressFunc receives leveled status messages from the engine.  It
// is purely observational and must not affect control flow.
type ProgressFunc func(level util.LogLevel, msg string)

// capabilityReg is one registered algorithm capability.
type capabilityReg struct {
	alg     capability.HashAlg
	handler capability.Handler
	domain  capability.Domain
}

// Session is the engine handle.  It is built incrementally by setters
// and marks in any order, then consumed by one terminal operation.
// Not safe for concurrent use; the dispatcher owns it exclusively.
type Session struct {
	progress ProgressFunc
	level    int
	stats    *metrics.Collector

	// server parameters
	server      string
	port        int
	apiContext  string
	pathSegment string
	caFile      string
	certFile    string
	keyFile     string
	baseURL     string // derived; settable directly in tests

	client *transport.Client // built lazily on first network use

	totp func() (string, error)

	// registration sources (mutually exclusive)
	caps     []capabilityReg
	jsonFile string

	// construction-time marks
	sample        bool
	getOnly       bool
	getString     string
	getSaveFile   string
	postOnly      bool
	postFile      string
	deleteOnly    bool
	deleteURL     string
	requestOnly   bool
	requestFile   string
	putAfterTest  bool
	putFile       string
	postResources bool
	resourcesFile string
	certReq       bool
	certReqFile   string

	// validation metadata
	oe       *OEMetadata
	moduleID int
	oeID     int
}

// NewSession creates a session handle.  The progress callback may be
// nil; level sets how chatty the engine is through it.
func NewSession(progress ProgressFunc, level int) (*Session, error) {
	if level < 0 {
		return nil, fmt.Errorf("invalid session level %d", level)
	}
	if progress == nil {
		progress = func(util.LogLevel, string) {}
	}
	return &Session{
		progress: progress,
		level:    level,
		stats:    metrics.New(),
	}, nil
}

// Stats exposes the session's runtime counters.
func (s *Session) Stats() *metrics.Collector { return s.stats }

// logf routes a message through the progress sink, honoring the
// session level.
func (s *Session) logf(level util.LogLevel, format string, args ...interface{}) {
	if int(level) > s.level && level != util.LogQuiet {
		return
	}
	s.progress(level, fmt.Sprintf(format, args...))
}

// progressLogger adapts the progress sink to transport.Logger.
type progressLogger struct{ s *Session }

func (p progressLogger) Verbose(format string, args ...interface{}) {
	p.s.logf(util.LogVerbose, format, args...)
}

// ── Server parameters ────────────────────────────────────────────────

// SetServer records the validation server address.
func (s *Session) SetServer(host string, port int) error {
	if host == "" {
		return errors.New("server host is empty")
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("server port %d out of range", port)
	}
	s.server = host
	s.port = port
	return nil
}

// SetAPIContext sets the API context prefix ("" for none).
func (s *Session) SetAPIContext(ctx string) error {
	s.apiContext = strings.Trim(ctx, "/")
	return nil
}

// SetPathSegment sets the protocol URI prefix, e.g. "amvp/v1".
func (s *Session) SetPathSegment(seg string) error {
	if seg == "" {
		return errors.New("path segment is empty")
	}
	s.pathSegment = strings.Trim(seg, "/")
	return nil
}

// SetCACerts names the CA chain used to verify the server.
func (s *Session) SetCACerts(path string) error {
	if path == "" {
		return errors.New("CA chain path is empty")
	}
	s.caFile = path
	return nil
}

// SetCertKey names the client certificate and key for TLS client auth.
func (s *Session) SetCertKey(certFile, keyFile string) error {
	if certFile == "" || keyFile == "" {
		return errors.New("client cert and key must both be given")
	}
	s.certFile = certFile
	s.keyFile = keyFile
	return nil
}

// SetTOTPCallback installs the second-factor code generator used at
// login.
func (s *Session) SetTOTPCallback(fn func() (string, error)) {
	s.totp = fn
}

// ── Construction-time marks ──────────────────────────────────────────

// MarkAsSample requests sample vector sets (expected results become
// retrievable afterwards).
func (s *Session) MarkAsSample() { s.sample = true }

// MarkAsGetOnly turns the run into a single GET of target.
func (s *Session) MarkAsGetOnly(target string) error {
	if target == "" {
		return errors.New("get-only target is empty")
	}
	s.getOnly = true
	s.getString = target
	return nil
}

// SetGetSaveFile redirects get-only output into a file.
func (s *Session) SetGetSaveFile(path string) error {
	if !s.getOnly {
		return errors.New("save file requires get-only mode")
	}
	if path == "" {
		return errors.New("save file path is empty")
	}
	s.getSaveFile = path
	return nil
}

// MarkAsPostOnly turns the run into a single POST of the file.
func (s *Session) MarkAsPostOnly(path string) { s.postOnly = true; s.postFile = path }

// MarkAsDeleteOnly turns the run into a single DELETE of the URL.
func (s *Session) MarkAsDeleteOnly(target string) { s.deleteOnly = true; s.deleteURL = target }

// MarkAsRequestOnly makes the run stop after writing the vector
// request file instead of processing vectors.
func (s *Session) MarkAsRequestOnly(path string) { s.requestOnly = true; s.requestFile = path }

// MarkAsPutAfterTest schedules a PUT of the file once the run's test
// phase completes.
func (s *Session) MarkAsPutAfterTest(path string) { s.putAfterTest = true; s.putFile = path }

// MarkAsPostResources schedules a resources POST before the run.
func (s *Session) MarkAsPostResources(path string) error {
	if path == "" {
		return errors.New("resources file path is empty")
	}
	s.postResources = true
	s.resourcesFile = path
	return nil
}

// MarkAsCertRequest marks the session registration as a certification
// request described by the given file.
func (s *Session) MarkAsCertRequest(path string) error {
	if path == "" {
		return errors.New("certification request file path is empty")
	}
	s.certReq = true
	s.certReqFile = path
	return nil
}

// ── Capability registration ──────────────────────────────────────────

// EnableHash registers a hash capability with its handler.  Mutually
// exclusive with SetJSONFile.
func (s *Session) EnableHash(alg capability.HashAlg, h capability.Handler) error {
	if s.jsonFile != "" {
		return errors.New("capabilities cannot be enabled after a manual registration file is set")
	}
	if h == nil {
		return fmt.Errorf("%w: nil handler for %s", errors.ErrNoCapability, alg)
	}
	if s.findCap(alg) != nil {
		return fmt.Errorf("capability %s already enabled", alg)
	}
	s.caps = append(s.caps, capabilityReg{alg: alg, handler: h})
	return nil
}

// SetHashDomain declares the message-length domain for an enabled
// hash capability.
func (s *Session) SetHashDomain(alg capability.HashAlg, d capability.Domain) error {
	reg := s.findCap(alg)
	if reg == nil {
		return fmt.Errorf("%w: %s", errors.ErrNoCapability, alg)
	}
	if d.Min < 0 || d.Max < d.Min || d.Increment <= 0 {
		return fmt.Errorf("invalid domain for %s: min=%d max=%d increment=%d",
			alg, d.Min, d.Max, d.Increment)
	}
	reg.domain = d
	return nil
}

func (s *Session) findCap(alg capability.HashAlg) *capabilityReg {
	for i := range s.caps {
		if s.caps[i].alg == alg {
			return &s.caps[i]
		}
	}
	return nil
}

// handlerFor returns the handler registered for alg.
func (s *Session) handlerFor(alg capability.HashAlg) (capability.Handler, error) {
	if reg := s.findCap(alg); reg != nil {
		return reg.handler, nil
	}
	if s.jsonFile != "" {
		// Manual registrations still use the built-in handler set.
		return capability.SHA{}, nil
	}
	return nil, fmt.Errorf("%w: %s", errors.ErrNoCapability, alg)
}

// SetJSONFile binds a raw JSON registration in place of
// capability-based registration.
func (s *Session) SetJSONFile(path string) error {
	if path == "" {
		return errors.New("registration file path is empty")
	}
	if len(s.caps) > 0 {
		return errors.New("a manual registration file cannot be combined with enabled capabilities")
	}
	s.jsonFile = path
	return nil
}

// ── URLs and transport ───────────────────────────────────────────────

// base returns the server base URL including context and path prefix.
func (s *Session) base() (string, error) {
	if s.baseURL != "" {
		return s.baseURL, nil
	}
	if s.server == "" {
		return "", errors.New("server not set")
	}
	parts := []string{"https://" + util.FormatAddr(s.server, s.port)}
	if s.apiContext != "" {
		parts = append(parts, s.apiContext)
	}
	parts = append(parts, s.pathSegment)
	return strings.Join(parts, "/"), nil
}

// endpoint joins the base URL with path elements.
func (s *Session) endpoint(elem ...string) (string, error) {
	b, err := s.base()
	if err != nil {
		return "", err
	}
	u, err := url.JoinPath(b, elem...)
	if err != nil {
		return "", fmt.Errorf("build endpoint: %w", err)
	}
	return u, nil
}

// conn returns the transport client, building it on first use.
func (s *Session) conn() (*transport.Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	c, err := transport.NewClient(transport.TLSFiles{
		CAFile:   s.caFile,
		CertFile: s.certFile,
		KeyFile:  s.keyFile,
	}, progressLogger{s}, s.stats)
	if err != nil {
		return nil, err
	}
	s.client = c
	return c, nil
}

// Close releases everything the session holds.  Safe on a nil or
// never-used session, and safe to call more than once.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	if s.client != nil {
		s.client.HTTP.CloseIdleConnections()
		s.client = nil
	}
	return nil
}
