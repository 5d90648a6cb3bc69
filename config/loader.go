package config

// loader.go - server parameter resolution from environment variables.
//
// The validation server endpoint is configured entirely through the
// environment (the CLI flags only select session behaviour).  Every
// variable has a documented default, so resolution never fails.

import (
	"os"
	"strconv"

	"github.com/bfussell/libamvp/util"
)

// ServerParams is the immutable set of resolved runtime parameters for
// one invocation.  Build it with ResolveEnv and pass it by value.
type ServerParams struct {
	Server      string // AMV_SERVER
	Port        int    // AMV_PORT
	PathSegment string // AMV_URI_PREFIX
	APIContext  string // AMV_API_CONTEXT
	CAFile      string // AMV_CA_FILE (unset when absent)
	CertFile    string // AMV_CERT_FILE (unset when absent)
	KeyFile     string // AMV_KEY_FILE (unset when absent)
	TOTPSeed    string // AMV_TOTP_SEED (unset when absent)
}

// HasClientCert reports whether a usable TLS client identity was
// resolved.  A certificate without its key (or the reverse) is ignored.
func (p ServerParams) HasClientCert() bool {
	return p.CertFile != "" && p.KeyFile != ""
}

// IsDefaultServer reports whether the resolved server is still the
// compiled-in default, which usually means AMV_SERVER was never set.
func (p ServerParams) IsDefaultServer() bool {
	return p.Server == DefaultServer
}

// ResolveEnv reads the AMV_* environment variables and applies the
// documented defaults for anything absent or invalid.  It logs a
// summary of the resolved parameters and always succeeds.
func ResolveEnv(logger *util.Logger) ServerParams {
	p := ServerParams{
		Server:      envOr("AMV_SERVER", DefaultServer),
		Port:        envPort("AMV_PORT"),
		PathSegment: envOr("AMV_URI_PREFIX", DefaultURIPrefix),
		APIContext:  envOr("AMV_API_CONTEXT", DefaultAPIContext),
		CAFile:      os.Getenv("AMV_CA_FILE"),
		CertFile:    os.Getenv("AMV_CERT_FILE"),
		KeyFile:     os.Getenv("AMV_KEY_FILE"),
		TOTPSeed:    os.Getenv("AMV_TOTP_SEED"),
	}

	if (p.CertFile == "") != (p.KeyFile == "") {
		logger.Warn("AMV_CERT_FILE and AMV_KEY_FILE must be set together; ignoring the incomplete pair")
	}

	logger.Info("using the following parameters:")
	logger.Info("    AMV_SERVER:     %s", p.Server)
	logger.Info("    AMV_PORT:       %d", p.Port)
	logger.Info("    AMV_URI_PREFIX: %s", p.PathSegment)
	if p.APIContext != "" {
		logger.Info("    AMV_API_CONTEXT: %s", p.APIContext)
	}
	if p.CAFile != "" {
		logger.Info("    AMV_CA_FILE:    %s", p.CAFile)
	}
	if p.CertFile != "" {
		logger.Info("    AMV_CERT_FILE:  %s", p.CertFile)
	}
	if p.KeyFile != "" {
		logger.Info("    AMV_KEY_FILE:   %s", p.KeyFile)
	}

	return p
}

// ── helpers ──────────────────────────────────────────────────────────

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envPort parses key as a TCP port.  Absent, non-numeric, zero, or
// out-of-range values all fall back to DefaultPort.
func envPort(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return DefaultPort
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 65535 {
		return DefaultPort
	}
	return n
}
