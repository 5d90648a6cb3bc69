package amvp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/bfussell/libamvp/internal/errors"
	"github.com/bfussell/libamvp/util"
)

// TOTPGenerator builds a second-factor code generator from a base32
// seed, suitable for SetTOTPCallback.
func TOTPGenerator(seed string) func() (string, error) {
	seed = strings.ToUpper(strings.TrimSpace(seed))
	return func() (string, error) {
		code, err := totp.GenerateCode(seed, time.Now())
		if err != nil {
			return "", fmt.Errorf("generate TOTP code: %w", err)
		}
		return code, nil
	}
}

type loginRequest struct {
	Password string `json:"password,omitempty"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
}

// login authenticates with the server and installs the issued JWT on
// the transport.  Called once at the start of every online operation.
func (s *Session) login(ctx context.Context) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	if c.Token() != "" {
		return nil // token restored from a saved session
	}

	target, err := s.endpoint("login")
	if err != nil {
		return err
	}

	var req loginRequest
	if s.totp != nil {
		code, err := s.totp()
		if err != nil {
			return fmt.Errorf("%w: %v", errors.ErrAuthFailed, err)
		}
		req.Password = code
	}

	var resp loginResponse
	if err := c.DoJSON(ctx, "login", http.MethodPost, target, req, &resp); err != nil {
		return err
	}
	if resp.AccessToken == "" {
		return fmt.Errorf("%w: server issued no access token", errors.ErrAuthFailed)
	}
	c.SetToken(resp.AccessToken)
	s.logf(util.LogVerbose, "authenticated with %s", s.server)
	return nil
}
