package amvp

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bfussell/libamvp/internal/errors"
)

// protocolRevision is the capability revision advertised in every
// registration this client builds.
const protocolRevision = "1.0"

type domainJSON struct {
	Min       int `json:"min"`
	Max       int `json:"max"`
	Increment int `json:"increment"`
}

type algorithmReg struct {
	Algorithm     string       `json:"algorithm"`
	Revision      string       `json:"revision"`
	MessageLength []domainJSON `json:"messageLength,omitempty"`
}

type registration struct {
	IsSample    bool            `json:"isSample,omitempty"`
	Algorithms  []algorithmReg  `json:"algorithms"`
	CertRequest json.RawMessage `json:"certRequest,omitempty"`
}

// buildRegistration produces the registration document from the
// enabled capabilities, or verbatim from the manual JSON file.
func (s *Session) buildRegistration() (json.RawMessage, error) {
	if s.jsonFile != "" {
		data, err := os.ReadFile(s.jsonFile)
		if err != nil {
			return nil, fmt.Errorf("read registration %s: %w", s.jsonFile, err)
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("registration %s is not valid JSON", s.jsonFile)
		}
		return data, nil
	}

	if len(s.caps) == 0 {
		return nil, fmt.Errorf("%w: nothing registered", errors.ErrNoCapability)
	}

	reg := registration{IsSample: s.sample}
	for _, c := range s.caps {
		a := algorithmReg{
			Algorithm: string(c.alg),
			Revision:  protocolRevision,
		}
		if c.domain.Increment > 0 {
			a.MessageLength = []domainJSON{{
				Min:       c.domain.Min,
				Max:       c.domain.Max,
				Increment: c.domain.Increment,
			}}
		}
		reg.Algorithms = append(reg.Algorithms, a)
	}

	if s.certReq {
		raw, err := os.ReadFile(s.certReqFile)
		if err != nil {
			return nil, fmt.Errorf("read certification request %s: %w", s.certReqFile, err)
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("certification request %s is not valid JSON", s.certReqFile)
		}
		reg.CertRequest = raw
	}

	return json.Marshal(reg)
}

// CurrentRegistration returns the registration document the session
// would send, pretty-printed.
func (s *Session) CurrentRegistration() (string, error) {
	raw, err := s.buildRegistration()
	if err != nil {
		return "", err
	}
	var buf interface{}
	if err := json.Unmarshal(raw, &buf); err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// VectorSetCount reports how many vector sets the current
// registration is expected to generate (one per algorithm).
func (s *Session) VectorSetCount() (int, error) {
	raw, err := s.buildRegistration()
	if err != nil {
		return -1, err
	}
	var reg struct {
		Algorithms []json.RawMessage `json:"algorithms"`
	}
	if err := json.Unmarshal(raw, &reg); err != nil {
		return -1, fmt.Errorf("parse registration: %w", err)
	}
	if len(reg.Algorithms) == 0 {
		return -1, fmt.Errorf("%w: registration lists no algorithms", errors.ErrNoCapability)
	}
	return len(reg.Algorithms), nil
}
