// Package capability defines the crypto test-case handlers the
// protocol engine dispatches vector tests to.  Each Handler
// encapsulates one algorithm family and operates on a plain test-case
// value rather than protocol JSON, which keeps handlers testable and
// decoupled from wire details.
package capability

// TestType distinguishes the vector test styles the server generates.
type TestType int

const (
	// AFT is an algorithm functional test: one message, one digest.
	AFT TestType = iota
	// MCT is a Monte Carlo test: the engine drives 1000 outer
	// iterations, calling the handler once per inner step.
	MCT
	// VOT is a variable-output test for XOF algorithms.
	VOT
)

func (t TestType) String() string {
	switch t {
	case AFT:
		return "AFT"
	case MCT:
		return "MCT"
	case VOT:
		return "VOT"
	default:
		return "unknown"
	}
}

// HashAlg names a hash algorithm the way the protocol spells it.
type HashAlg string

const (
	SHA1         HashAlg = "SHA-1"
	SHA2_224     HashAlg = "SHA2-224"
	SHA2_256     HashAlg = "SHA2-256"
	SHA2_384     HashAlg = "SHA2-384"
	SHA2_512     HashAlg = "SHA2-512"
	SHA2_512_224 HashAlg = "SHA2-512/224"
	SHA2_512_256 HashAlg = "SHA2-512/256"
	SHA3_224     HashAlg = "SHA3-224"
	SHA3_256     HashAlg = "SHA3-256"
	SHA3_384     HashAlg = "SHA3-384"
	SHA3_512     HashAlg = "SHA3-512"
	SHAKE128     HashAlg = "SHAKE-128"
	SHAKE256     HashAlg = "SHAKE-256"
)

// Domain is the parameter domain declared with a capability: the
// message bit-length range the client is willing to be tested on.
type Domain struct {
	Min       int // minimum message length in bits
	Max       int // maximum message length in bits
	Increment int // step between valid lengths
}

// HashTestCase is one hash vector test.  The handler fills MD.
type HashTestCase struct {
	Algorithm HashAlg
	Type      TestType

	// Msg is the input for AFT, VOT, and SHA-3 style MCT cases.
	Msg []byte

	// M1..M3 are the seed triple for one SHA-2 style MCT inner
	// iteration (init, three updates, final).
	M1, M2, M3 []byte

	// XOFLen is the requested output length in bytes for VOT and
	// SHAKE MCT cases.
	XOFLen int

	// MD receives the computed digest.
	MD []byte
}

// Handler processes a single test case.  Implementations must be safe
// for concurrent use: the engine fans test groups out across
// goroutines.
type Handler interface {
	Process(tc *HashTestCase) error
}
