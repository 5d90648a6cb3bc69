// Package cmd wires up the CLI flags and dispatches to the core layer.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bfussell/libamvp/config"
	"github.com/bfussell/libamvp/internal/amvp"
	"github.com/bfussell/libamvp/internal/core"
	"github.com/bfussell/libamvp/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X github.com/bfussell/libamvp/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args, resolves the environment, and runs exactly one
// client mode.
func Execute(ctx context.Context, args []string) error {
	cfg := &config.Config{}
	fs := flag.NewFlagSet("amvp_app", flag.ContinueOnError)

	// ── construction modifiers ───────────────────────────────────
	fs.BoolVar(&cfg.Sample, "sample", false, "Request sample vectors with expected results")
	fs.StringVar(&cfg.GetString, "get", "", "Perform a single GET against the given URL or path")
	fs.StringVar(&cfg.PostFile, "post", "", "POST the contents of the given file and exit")
	fs.StringVar(&cfg.DeleteURL, "delete", "", "Perform a single DELETE against the given URL")
	fs.StringVar(&cfg.VectorReqFile, "vector-req", "", "Write the vector request to a file instead of processing")
	fs.StringVar(&cfg.VectorRspFile, "vector-rsp", "", "Process a vector request file, writing responses here")
	fs.StringVar(&cfg.RegFile, "manual-registration", "", "Register from a raw JSON document instead of capabilities")
	fs.BoolVar(&cfg.Hash, "hash", false, "Enable the hash capability set")

	// ── terminal actions ─────────────────────────────────────────
	fs.BoolVar(&cfg.GetCost, "cost", false, "Query the expected vector-set count and exit")
	fs.BoolVar(&cfg.GetReg, "get-registration", false, "Print or save the registration that would be sent")
	fs.StringVar(&cfg.KATFile, "kat", "", "Run a local known-answer-test file")
	fs.StringVar(&cfg.VectorUploadFile, "vector-upload", "", "Upload vector responses produced offline")
	fs.StringVar(&cfg.PutFile, "put", "", "PUT the contents of the given file against the session")
	fs.BoolVar(&cfg.EmptyAlg, "empty-alg", false, "PUT without running tests first (with --put)")
	fs.BoolVar(&cfg.GetResults, "get-results", false, "Fetch results for a saved session")
	fs.BoolVar(&cfg.ResumeSession, "resume", false, "Resume an incomplete saved session")
	fs.BoolVar(&cfg.CancelSession, "cancel", false, "Cancel a saved session")
	fs.BoolVar(&cfg.GetExpected, "get-expected", false, "Fetch expected results for a saved sample session")
	fs.StringVar(&cfg.SessionFile, "session-file", "", "Saved test session file for the flags above")

	// ── run modifiers ────────────────────────────────────────────
	fs.StringVar(&cfg.MetadataFile, "fips-validation", "", "Submit FIPS validation metadata from the given file")
	fs.StringVar(&cfg.PostResourcesFile, "post-resources", "", "POST a resource file after session creation")
	fs.StringVar(&cfg.CertReqFile, "cert-req", "", "Mark the session as a certification request")

	// ── output ───────────────────────────────────────────────────
	fs.StringVar(&cfg.SaveFile, "save-to", "", "Save textual output to a file instead of printing")
	var verbose int
	fs.CountVarP(&verbose, "verbose", "v", "Increase verbosity (repeatable)")

	// ── provider gate ────────────────────────────────────────────
	fs.BoolVar(&cfg.DisableFIPS, "disable-fips", false, "Bypass the certified-provider gate (results not certifiable)")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("amvp_app %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	// String flags imply their booleans; pflag has no set/unset
	// distinction for strings, so presence means selected.
	cfg.Get = cfg.GetString != ""
	cfg.Post = cfg.PostFile != ""
	cfg.Delete = cfg.DeleteURL != ""
	cfg.VectorReq = cfg.VectorReqFile != ""
	cfg.VectorRsp = cfg.VectorRspFile != ""
	cfg.ManualReg = cfg.RegFile != ""
	cfg.KAT = cfg.KATFile != ""
	cfg.VectorUpload = cfg.VectorUploadFile != ""
	cfg.Put = cfg.PutFile != ""
	cfg.FIPSValidation = cfg.MetadataFile != ""
	cfg.PostResources = cfg.PostResourcesFile != ""
	cfg.CertReq = cfg.CertReqFile != ""
	cfg.SaveTo = cfg.SaveFile != ""
	cfg.Level = config.DefaultLevel + verbose

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Level)
	params := config.ResolveEnv(logger)

	factory := core.DefaultFactory(progressSink(logger), cfg.Level)
	return core.Execute(ctx, cfg, params, logger, factory, promptTOTP)
}

// ── helpers ──────────────────────────────────────────────────────────

// progressSink maps engine progress messages onto the CLI logger.
func progressSink(logger *util.Logger) amvp.ProgressFunc {
	return func(level util.LogLevel, msg string) {
		switch {
		case level <= util.LogQuiet:
			logger.Error("%s", msg)
		case level == util.LogNormal:
			logger.Info("%s", msg)
		case level == util.LogVerbose:
			logger.Verbose("%s", msg)
		default:
			logger.Debug("%s", msg)
		}
	}
}

// promptTOTP reads a one-time code from the terminal when no seed is
// configured in the environment.
func promptTOTP() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no TOTP seed configured and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "TOTP code: ")
	code, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(code)), nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `amvp_app – AMVP conformance-test client v%s

Runs crypto module conformance tests against an AMVP validation
service. Server location and TLS material come from the environment:
AMV_SERVER, AMV_PORT, AMV_URI_PREFIX, AMV_API_CONTEXT, AMV_CA_FILE,
AMV_CERT_FILE, AMV_KEY_FILE, AMV_TOTP_SEED.

Usage:
  amvp_app [options]                          Full test session
  amvp_app --hash --cost                      Estimate vector-set count
  amvp_app --vector-req req.json              Download vectors for offline use
  amvp_app --vector-req req.json --vector-rsp rsp.json
                                              Process vectors offline
  amvp_app --vector-upload rsp.json           Upload offline responses
  amvp_app --resume --session-file f.json     Resume a saved session

Options:
`, version)
	fs.PrintDefaults()
}
