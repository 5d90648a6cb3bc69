package capability

import (
	"crypto/sha1" //nolint:gosec // SHA-1 vectors are part of the conformance surface
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/sha3"

	"github.com/bfussell/libamvp/internal/errors"
)

// SHA handles every hash algorithm family the client registers:
// SHA-1, SHA-2, SHA-3, and the SHAKE XOFs.
type SHA struct{}

// Process computes the digest for one test case.
func (SHA) Process(tc *HashTestCase) error {
	if tc == nil {
		return errors.New("nil test case")
	}

	newHash, xof := constructors(tc.Algorithm)
	if newHash == nil && xof == nil {
		return fmt.Errorf("%w: %s", errors.ErrNoCapability, tc.Algorithm)
	}

	// XOF-oriented path: VOT always, and SHAKE Monte Carlo.
	if xof != nil && (tc.Type == VOT || tc.Type == MCT) {
		if tc.Msg == nil {
			return fmt.Errorf("%s %s: msg missing", tc.Algorithm, tc.Type)
		}
		if tc.XOFLen <= 0 {
			return fmt.Errorf("%s %s: invalid output length %d", tc.Algorithm, tc.Type, tc.XOFLen)
		}
		s := xof()
		s.Write(tc.Msg)
		tc.MD = make([]byte, tc.XOFLen)
		if _, err := s.Read(tc.MD); err != nil {
			return fmt.Errorf("%s: xof read: %w", tc.Algorithm, err)
		}
		return nil
	}

	var h hash.Hash
	if newHash != nil {
		h = newHash()
	} else {
		// SHAKE used as a fixed-length digest (AFT).
		if tc.XOFLen <= 0 {
			return fmt.Errorf("%s AFT: invalid output length %d", tc.Algorithm, tc.XOFLen)
		}
		s := xof()
		s.Write(tc.Msg)
		tc.MD = make([]byte, tc.XOFLen)
		if _, err := s.Read(tc.MD); err != nil {
			return fmt.Errorf("%s: xof read: %w", tc.Algorithm, err)
		}
		return nil
	}

	if tc.Type == MCT && !isSHA3(tc.Algorithm) {
		// One inner Monte Carlo step for the SHA-1/SHA-2 chain:
		// digest of the m1 || m2 || m3 seed triple.  The engine
		// drives the thousand-iteration loop.
		if tc.M1 == nil || tc.M2 == nil || tc.M3 == nil {
			return fmt.Errorf("%s MCT: m1, m2, or m3 missing", tc.Algorithm)
		}
		h.Write(tc.M1)
		h.Write(tc.M2)
		h.Write(tc.M3)
		tc.MD = h.Sum(nil)
		return nil
	}

	// AFT and SHA-3 style MCT: single message in, digest out.
	if tc.Msg == nil {
		return fmt.Errorf("%s %s: msg missing", tc.Algorithm, tc.Type)
	}
	h.Write(tc.Msg)
	tc.MD = h.Sum(nil)
	return nil
}

// constructors returns the fixed-length hash constructor or the XOF
// constructor for alg.  Both are nil for unknown algorithms.
func constructors(alg HashAlg) (func() hash.Hash, func() sha3.ShakeHash) {
	switch alg {
	case SHA1:
		return sha1.New, nil
	case SHA2_224:
		return sha256.New224, nil
	case SHA2_256:
		return sha256.New, nil
	case SHA2_384:
		return sha512.New384, nil
	case SHA2_512:
		return sha512.New, nil
	case SHA2_512_224:
		return sha512.New512_224, nil
	case SHA2_512_256:
		return sha512.New512_256, nil
	case SHA3_224:
		return sha3.New224, nil
	case SHA3_256:
		return sha3.New256, nil
	case SHA3_384:
		return sha3.New384, nil
	case SHA3_512:
		return sha3.New512, nil
	case SHAKE128:
		return nil, sha3.NewShake128
	case SHAKE256:
		return nil, sha3.NewShake256
	default:
		return nil, nil
	}
}

func isSHA3(alg HashAlg) bool {
	switch alg {
	case SHA3_224, SHA3_256, SHA3_384, SHA3_512, SHAKE128, SHAKE256:
		return true
	}
	return false
}

// DigestSize returns the fixed digest size in bytes for alg, or 0 for
// the variable-output SHAKE algorithms.
func DigestSize(alg HashAlg) int {
	switch alg {
	case SHA1:
		return 20
	case SHA2_224, SHA3_224:
		return 28
	case SHA2_256, SHA2_512_256, SHA3_256:
		return 32
	case SHA2_384, SHA3_384:
		return 48
	case SHA2_512, SHA3_512:
		return 64
	case SHA2_512_224:
		return 28
	default:
		return 0
	}
}
