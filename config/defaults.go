package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultServer is used when AMV_SERVER is not set.  Running
	// against it triggers a one-time advisory before the session runs.
	DefaultServer = "127.0.0.1"

	// DefaultPort is the HTTPS port used when AMV_PORT is absent,
	// zero, or unparseable.
	DefaultPort = 443

	// DefaultURIPrefix is the path segment prepended to every
	// protocol endpoint.
	DefaultURIPrefix = "amvp/v1"

	// DefaultAPIContext is the API context prefix (empty for servers
	// that mount the protocol at the root).
	DefaultAPIContext = ""

	// DefaultLevel is the engine verbosity when -v is not given.
	DefaultLevel = 1

	// DefaultRequestTimeout bounds a single HTTP round-trip to the
	// validation server.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRetryMax is how many times the transport retries a
	// request the server answered with 429/503.
	DefaultRetryMax = 10

	// DefaultModuleID and DefaultOEID identify the module and
	// operating environment bound to a validation request when the
	// metadata file does not say otherwise.
	DefaultModuleID = 1
	DefaultOEID     = 1
)

// FIPSBypassDelay is the mandatory acknowledgment pause when the
// certified-provider gate is bypassed with --disable-fips.  A var so
// tests can shorten it.
var FIPSBypassDelay = 5 * time.Second
