// Package fips gates session work behind the certified cryptographic
// module.  The Go FIPS 140-3 module is activated at program start
// (GODEBUG=fips140=on), so enforcement here means confirming it took
// effect and running a bounded self-test before any session exists.
package fips

import (
	"bytes"
	"context"
	"crypto/fips140"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bfussell/libamvp/config"
	"github.com/bfussell/libamvp/internal/errors"
	"github.com/bfussell/libamvp/util"
)

// sleep is stubbed in tests so the bypass path stays fast.
var sleep = func(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Gate enforces or bypasses the certified-provider requirement.  On
// the enforced path any failure is fatal and happens before a session
// is created, so no cleanup is owed.
func Gate(ctx context.Context, disable bool, logger *util.Logger) error {
	if disable {
		bypassWarning(logger)
		sleep(ctx, config.FIPSBypassDelay)
		return nil
	}

	if !fips140.Enabled() {
		return fmt.Errorf("%w: start with GODEBUG=fips140=on to run certified", errors.ErrFIPSProvider)
	}
	if err := SanityCheck(); err != nil {
		return fmt.Errorf("certified module self-test: %w", err)
	}
	logger.Verbose("FIPS 140-3 module active, self-test passed")
	return nil
}

// SanityCheck runs known-answer checks against the active module:
// SHA-256 and HMAC-SHA-256 of fixed inputs.
func SanityCheck() error {
	sum := sha256.Sum256([]byte("abc"))
	want, _ := hex.DecodeString(
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")
	if !bytes.Equal(sum[:], want) {
		return fmt.Errorf("SHA-256 known-answer mismatch")
	}

	mac := hmac.New(sha256.New, []byte("key"))
	mac.Write([]byte("The quick brown fox jumps over the lazy dog"))
	wantMAC, _ := hex.DecodeString(
		"f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8")
	if !hmac.Equal(mac.Sum(nil), wantMAC) {
		return fmt.Errorf("HMAC-SHA-256 known-answer mismatch")
	}

	return nil
}

func bypassWarning(logger *util.Logger) {
	for _, line := range []string{
		"***********************************************************************************",
		"* WARNING: You have chosen not to use the certified provider for this run.  Any  *",
		"* tests created or performed during this run MUST NOT have validation requested  *",
		"* on them unless the certified provider is exclusively enabled by default in     *",
		"* your configuration.  Proceed at your own risk.  Continuing in 5 seconds...     *",
		"***********************************************************************************",
	} {
		logger.Warn("%s", line)
	}
}
